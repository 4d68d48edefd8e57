package commands

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"time"

	"digiscrape/internal/components/telemetry"
	"digiscrape/internal/fetch"
	"digiscrape/internal/render"
	"digiscrape/internal/scraper"
	"digiscrape/internal/scrapers/digi4school"
	"digiscrape/internal/session"
	"digiscrape/internal/volume"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

const envKey = "digiscrape.env"

// env is everything a command needs, built once per invocation.
type env struct {
	cfg      Config
	tel      telemetry.API
	client   *fetch.Client
	renderer *render.Chromium
	shutdown telemetry.Shutdown
}

func getEnv(ctx context.Context) *env {
	return ctx.Value(envKey).(*env)
}

var (
	configPath *string
	verbose    *bool
	dumpHttp   *string
)

var rootCmd = &cobra.Command{
	Use:           "digiscrape",
	Short:         "digiscrape downloads vector ebooks from digi4school as pdf.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// without an explicit --config the file is searched upwards from the cwd
		cfg, err := LoadConfig(*configPath, !cmd.Flags().Changed("config"))
		if err != nil {
			return err
		}
		if *verbose {
			cfg.LogLevel = "debug"
		}

		logger := telemetry.InitSlog(cfg.LogLevel)
		tel := telemetry.SlogAPI{Logger: logger}

		shutdown, err := telemetry.SetupOtlp(cmd.Context(), "digiscrape", cfg.Otlp)
		if err != nil {
			return fmt.Errorf("setup telemetry: %w", err)
		}
		if cfg.PerfStatsSeconds > 0 {
			telemetry.InstrumentPerfStats(cmd.Context(), time.Duration(cfg.PerfStatsSeconds)*time.Second, tel)
		}

		clientOpts, err := cfg.clientOptions(tel)
		if err != nil {
			return err
		}
		if *dumpHttp != "" {
			output, err := fetch.NewFilesystemOutput(*dumpHttp)
			if err != nil {
				return fmt.Errorf("http dump: %w", err)
			}
			clientOpts.Dump = output
		}
		client, err := fetch.NewClient(clientOpts)
		if err != nil {
			return err
		}

		e := &env{
			cfg:    cfg,
			tel:    tel,
			client: client,
			renderer: render.NewChromium(render.ChromiumConfig{
				RemoteURL: cfg.Chromium.RemoteUrl,
				Bin:       cfg.Chromium.Bin,
				Tel:       tel,
			}),
			shutdown: shutdown,
		}
		cmd.SetContext(context.WithValue(cmd.Context(), envKey, e))
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		e := getEnv(cmd.Context())
		if err := e.renderer.Close(); err != nil {
			slog.Warn("failed to close browser", "err", err)
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return e.shutdown(ctx)
	},
}

func init() {
	configPath = rootCmd.PersistentFlags().String("config", "digiscrape.json5", "The config file, a digiscrape.local.json5 next to it overrides it. By default the nearest one up from the working directory is used.")
	verbose = rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable debug logging.")
	dumpHttp = rootCmd.PersistentFlags().String("dump-http", "", "Write every http exchange into this directory (it is emptied first).")
}

func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func newRegistry(e *env, observer func(page uint16, svg string)) *scraper.Registry {
	registry := scraper.NewRegistry()
	digi4school.Register(registry, e.renderer, digi4school.Options{
		Concurrency: e.cfg.AssetConcurrency,
		Observer:    observer,
		Tel:         e.tel,
	})
	return registry
}

// openVolume resolves the session of rawUrl and picks its scraper.
func openVolume(ctx context.Context, e *env, rawUrl string, observer func(page uint16, svg string)) (*volume.Volume, scraper.PageScraper, error) {
	u, err := url.Parse(rawUrl)
	if err != nil {
		return nil, nil, fmt.Errorf("parse url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, nil, fmt.Errorf("url %q is not absolute", rawUrl)
	}

	v := volume.New(volume.Options{
		Url:    u,
		Name:   u.Path,
		Client: e.client,
		Resolver: session.LTIForm{
			MaxHops: e.cfg.MaxLtiHops,
			Tel:     e.tel,
		},
		Registry: newRegistry(e, observer),
		Tel:      e.tel,
	})
	s, err := v.Scraper(ctx)
	if err != nil {
		return nil, nil, err
	}
	return v, s, nil
}

func newTable() table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetOutputMirror(os.Stdout)
	return t
}

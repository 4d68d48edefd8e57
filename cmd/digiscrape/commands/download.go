package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"digiscrape/internal/components/telemetry"
	"digiscrape/internal/pdfdoc"
	"digiscrape/internal/scraper"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var (
	downloadOutput  *string
	downloadFrom    *uint16
	downloadTo      *uint16
	downloadDumpSvg *string
)

func init() {
	downloadOutput = downloadCmd.Flags().StringP("output", "o", "book.pdf", "The merged pdf file to write.")
	downloadFrom = downloadCmd.Flags().Uint16("from", 1, "The first page to download.")
	downloadTo = downloadCmd.Flags().Uint16("to", 0, "The last page to download, 0 means the last page of the book.")
	downloadDumpSvg = downloadCmd.Flags().String("dump-svg", "", "Write every assembled svg page into this directory.")
	rootCmd.AddCommand(downloadCmd)
}

// pageRange clamps [from, to] to the pages 1..count, to == 0 means count.
func pageRange(from, to, count uint16) ([]uint16, error) {
	if count == 0 {
		return nil, fmt.Errorf("book has no pages")
	}
	if from == 0 {
		from = 1
	}
	if to == 0 || to > count {
		to = count
	}
	if from > to {
		return nil, fmt.Errorf("page range %d-%d is empty, the book has %d pages", from, to, count)
	}

	pages := make([]uint16, 0, to-from+1)
	for p := int(from); p <= int(to); p++ {
		pages = append(pages, uint16(p))
	}
	return pages, nil
}

// downloadPages renders pages with at most concurrency pages in flight, results keep the order of pages.
func downloadPages(ctx context.Context, s scraper.PageScraper, pages []uint16, concurrency int, tel telemetry.API) ([][]byte, error) {
	out := make([][]byte, len(pages))

	group, ctx := errgroup.WithContext(ctx)
	if concurrency > 0 {
		group.SetLimit(concurrency)
	}
	for i, page := range pages {
		group.Go(func() error {
			pdf, err := s.FetchPage(ctx, page)
			if err != nil {
				return fmt.Errorf("page %d: %w", page, err)
			}
			out[i] = pdf
			tel.ReportDebug("page done", page, len(pdf))
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func svgDumper(dir string) (func(uint16, string), error) {
	if dir == "" {
		return nil, nil
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	return func(page uint16, svg string) {
		path := filepath.Join(dir, strconv.Itoa(int(page))+".svg")
		if err := os.WriteFile(path, []byte(svg), 0644); err != nil {
			slog.Warn("failed to dump svg", "path", path, "err", err)
		}
	}, nil
}

var downloadCmd = &cobra.Command{
	Use:   "download <url> [-o book.pdf] [--from n] [--to n] [--dump-svg dir]",
	Short: "Downloads a range of pages and merges them into one pdf.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e := getEnv(cmd.Context())
		start := time.Now()

		dump, err := svgDumper(*downloadDumpSvg)
		if err != nil {
			return err
		}
		v, s, err := openVolume(cmd.Context(), e, args[0], dump)
		if err != nil {
			return err
		}
		count, err := s.PageCount(cmd.Context())
		if err != nil {
			return err
		}
		pages, err := pageRange(*downloadFrom, *downloadTo, count)
		if err != nil {
			return err
		}
		slog.Info("downloading", "volume", v.String(), "pages", len(pages), "of", count)

		documents, err := downloadPages(cmd.Context(), s, pages, e.cfg.PageConcurrency, telemetry.NewScopedAPI("download", e.tel))
		if err != nil {
			return err
		}

		f, err := os.Create(*downloadOutput)
		if err != nil {
			return err
		}
		defer f.Close()
		if err := pdfdoc.Merge(documents, f); err != nil {
			return err
		}
		info, err := f.Stat()
		if err != nil {
			return err
		}

		stats := telemetry.SamplePerfStats(cmd.Context(), 200*time.Millisecond)
		t := newTable()
		t.AppendHeader(table.Row{"Output", "Pages", "Size (KB)", "Seconds", "Allocated (MB)"})
		t.AppendRow(table.Row{
			*downloadOutput,
			fmt.Sprintf("%d-%d", pages[0], pages[len(pages)-1]),
			info.Size() / 1000,
			fmt.Sprintf("%.1f", time.Since(start).Seconds()),
			stats.AllocatedMb,
		})
		t.Render()
		return nil
	},
}

package render

import (
	"context"
	"fmt"
	"io"
	"regexp"
	"sync"

	"digiscrape/internal/components/telemetry"
	"digiscrape/internal/pdfdoc"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

const (
	report_chromium_launch = "chromium.launch"
	report_chromium_render = "chromium.render"
)

type ChromiumConfig struct {
	// RemoteURL is the devtools websocket url of a running chrome.
	// Empty launches a local headless chrome.
	RemoteURL string
	// Bin is the chrome binary used when launching locally, empty lets rod find or download one.
	Bin string
	Tel telemetry.API
}

// Chromium renders svg pages with headless chrome's print to pdf.
// The browser is started on first use and shared by concurrent Render calls.
type Chromium struct {
	cfg ChromiumConfig
	tel telemetry.API

	mu       sync.Mutex
	browser  *rod.Browser
	launcher *launcher.Launcher
}

func NewChromium(cfg ChromiumConfig) *Chromium {
	return &Chromium{
		cfg: cfg,
		tel: telemetry.NewScopedAPI("render", telemetry.OrDiscard(cfg.Tel)),
	}
}

func (c *Chromium) connect() (*rod.Browser, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.browser != nil {
		return c.browser, nil
	}

	controlURL := c.cfg.RemoteURL
	if controlURL == "" {
		l := launcher.New().Headless(true)
		if c.cfg.Bin != "" {
			l = l.Bin(c.cfg.Bin)
		}
		u, err := l.Launch()
		if err != nil {
			c.tel.ReportBroken(report_chromium_launch, err)
			return nil, fmt.Errorf("render: launch chrome: %w", err)
		}
		controlURL = u
		c.launcher = l
	}

	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		c.tel.ReportBroken(report_chromium_launch, err, controlURL)
		if c.launcher != nil {
			c.launcher.Kill()
			c.launcher = nil
		}
		return nil, fmt.Errorf("render: connect chrome: %w", err)
	}
	c.tel.ReportDebug("connected to chrome", controlURL)

	c.browser = b
	return b, nil
}

var xmlProlog = regexp.MustCompile(`^\s*(<\?xml[^>]*\?>\s*)?(<!DOCTYPE[^>]*>\s*)?`)

func htmlShell(svg string, page Page) string {
	body := xmlProlog.ReplaceAllString(svg, "")
	return fmt.Sprintf(
		`<!DOCTYPE html><html><head><meta charset="utf-8"><style>`+
			`@page{size:%[1]fpx %[2]fpx;margin:0}`+
			`html,body{margin:0;padding:0}`+
			`body>svg{display:block;width:%[1]fpx;height:%[2]fpx}`+
			`</style></head><body>%[3]s</body></html>`,
		page.Width, page.Height, body,
	)
}

func inches(px float64) *float64 {
	v := px / 96
	return &v
}

// openTab creates a blank tab bound to ctx, creation itself is cancelled with ctx.
func (c *Chromium) openTab(ctx context.Context, b *rod.Browser) (*rod.Page, error) {
	tab, err := b.Context(ctx).Page(proto.TargetCreateTarget{})
	if err != nil {
		if ctx.Err() == nil {
			c.tel.ReportBroken(report_chromium_render, fmt.Errorf("create tab: %w", err))
		}
		return nil, fmt.Errorf("%w: create tab: %w", ErrRender, err)
	}
	return tab, nil
}

func (c *Chromium) Render(ctx context.Context, svg string) ([]byte, error) {
	page, err := Inspect(svg)
	if err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRender, err)
	}

	b, err := c.connect()
	if err != nil {
		return nil, err
	}

	tab, err := c.openTab(ctx, b)
	if err != nil {
		return nil, err
	}
	defer tab.Context(context.Background()).Close()

	err = tab.SetDocumentContent(htmlShell(svg, page))
	if err != nil {
		c.tel.ReportBroken(report_chromium_render, fmt.Errorf("set content: %w", err))
		return nil, fmt.Errorf("%w: set content: %w", ErrRender, err)
	}
	if err := tab.WaitLoad(); err != nil {
		c.tel.ReportWarning(report_chromium_render, fmt.Errorf("wait load: %w", err))
	}

	zero := 0.0
	stream, err := tab.PDF(&proto.PagePrintToPDF{
		PrintBackground:   true,
		PreferCSSPageSize: true,
		PaperWidth:        inches(page.Width),
		PaperHeight:       inches(page.Height),
		MarginTop:         &zero,
		MarginBottom:      &zero,
		MarginLeft:        &zero,
		MarginRight:       &zero,
		PageRanges:        "1",
	})
	if err != nil {
		c.tel.ReportBroken(report_chromium_render, fmt.Errorf("print: %w", err))
		return nil, fmt.Errorf("%w: print: %w", ErrRender, err)
	}
	out, err := io.ReadAll(stream)
	if err != nil {
		return nil, fmt.Errorf("%w: read pdf stream: %w", ErrRender, err)
	}

	if err := pdfdoc.Validate(out); err != nil {
		c.tel.ReportBroken(report_chromium_render, err)
		return nil, fmt.Errorf("%w: %w", ErrRender, err)
	}
	return out, nil
}

// Close shuts down the browser, a local chrome process is killed.
func (c *Chromium) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var err error
	if c.browser != nil {
		err = c.browser.Close()
		c.browser = nil
	}
	if c.launcher != nil {
		c.launcher.Kill()
		c.launcher = nil
	}
	return err
}

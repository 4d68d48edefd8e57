// Package svg assembles self-contained svg pages out of a raw page that
// references its images by relative url, and renders them.
//
// the fixed algorithm lives in Assembler, a source only provides the two
// source specific steps through the Source interface.
package svg

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"digiscrape/internal/components/assert"
	"digiscrape/internal/components/flight"
	"digiscrape/internal/components/telemetry"
	"digiscrape/internal/fetch"
	"digiscrape/internal/render"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

var tracer = otel.Tracer("digiscrape/scraper/svg")
var meter = otel.Meter("digiscrape/scraper/svg")
var assetCounter, _ = meter.Int64Counter("assets_inlined")
var pageCounter, _ = meter.Int64Counter("pages_assembled")

const (
	report_assembler_raw_page     = "assembler.raw-page"
	report_assembler_fetch_assets = "assembler.fetch-assets"
	report_assembler_inline       = "assembler.inline"
	report_assembler_render       = "assembler.render"
)

var (
	ErrMissingContentType   = errors.New("asset has no content-type")
	ErrMalformedContentType = errors.New("asset has a malformed content-type")
	ErrAssembly             = errors.New("page assembly failed")
)

// Source supplies the source specific steps of page assembly.
type Source interface {
	// RawPage returns the unmodified svg of a page.
	RawPage(ctx context.Context, page uint16) (string, error)
	// AssetRequest turns a page relative asset reference into a request.
	AssetRequest(ctx context.Context, ref string) (fetch.Request, error)
}

const DefaultConcurrency = 4

type Option func(*Assembler)

// WithConcurrency caps the number of assets fetched at the same time.
func WithConcurrency(n int) Option {
	return func(a *Assembler) {
		if n > 0 {
			a.concurrency = n
		}
	}
}

// WithObserver calls fn with every assembled document before it is rendered.
func WithObserver(fn func(page uint16, svg string)) Option {
	return func(a *Assembler) {
		a.observer = fn
	}
}

func WithTelemetry(tel telemetry.API) Option {
	return func(a *Assembler) {
		a.tel = telemetry.NewScopedAPI("svg", telemetry.OrDiscard(tel))
	}
}

type Assembler struct {
	source      Source
	renderer    render.Renderer
	concurrency int
	observer    func(page uint16, svg string)
	tel         telemetry.API

	// concurrent assemblies of the same page share one result
	pages singleflight.Group
}

func NewAssembler(source Source, renderer render.Renderer, opts ...Option) *Assembler {
	assert.NotNil(source)
	assert.NotNil(renderer)

	a := &Assembler{
		source:      source,
		renderer:    renderer,
		concurrency: DefaultConcurrency,
		tel:         telemetry.NewScopedAPI("svg", telemetry.Discard{}),
	}
	for _, opt := range opts {
		opt(a)
	}
	assert.Positive(a.concurrency, "concurrency")
	return a
}

// referencePattern matches a whole `xlink:href="<page>/..."` attribute, the
// first group is the reference.
func referencePattern(page uint16) *regexp.Regexp {
	return regexp.MustCompile(`xlink:href="(` + strconv.Itoa(int(page)) + `/[^"]+)"`)
}

// References returns the distinct asset references of a page in order of first appearance.
// only references below the page's own directory (`<page>/...`) belong to the page.
func References(raw string, page uint16) []string {
	var refs []string
	seen := map[string]struct{}{}
	for _, match := range referencePattern(page).FindAllStringSubmatch(raw, -1) {
		ref := match[1]
		if _, ok := seen[ref]; ok {
			continue
		}
		seen[ref] = struct{}{}
		refs = append(refs, ref)
	}
	return refs
}

func contentType(res *fetch.Response) (string, error) {
	values := res.HeaderValues("Content-Type")
	if values == nil {
		return "", fmt.Errorf("%w: %s", ErrMissingContentType, res.URL())
	}
	value := strings.TrimSpace(values[0])
	if value == "" {
		return "", fmt.Errorf("%w: %s: empty value", ErrMalformedContentType, res.URL())
	}
	for i := 0; i < len(value); i++ {
		c := value[i]
		if (c < 0x20 && c != '\t') || c >= 0x7f {
			return "", fmt.Errorf("%w: %s: %q", ErrMalformedContentType, res.URL(), value)
		}
	}
	return value, nil
}

// DataURI encodes an asset as `data:<content-type>;base64,<body>`.
func DataURI(res *fetch.Response) (string, error) {
	mime, err := contentType(res)
	if err != nil {
		return "", err
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(res.Body()), nil
}

func (a *Assembler) fetchAssets(ctx context.Context, refs []string) ([]*fetch.Response, error) {
	assets := make([]*fetch.Response, len(refs))

	group, ctx := errgroup.WithContext(ctx)
	group.SetLimit(a.concurrency)
	for i, ref := range refs {
		group.Go(func() error {
			req, err := a.source.AssetRequest(ctx, ref)
			if err != nil {
				return fmt.Errorf("asset request %s: %w", ref, err)
			}
			res, err := req.Send()
			if err != nil {
				return err
			}
			assets[i] = res
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	return assets, nil
}

// inline swaps the value of every page reference attribute for its data uri.
// only whole attribute values are replaced, so `3/a.png` never touches `13/a.png`.
func inline(raw string, page uint16, refs []string, uris []string) string {
	byRef := make(map[string]string, len(refs))
	for i, ref := range refs {
		byRef[ref] = uris[i]
	}

	pattern := referencePattern(page)
	return pattern.ReplaceAllStringFunc(raw, func(attr string) string {
		uri, ok := byRef[pattern.FindStringSubmatch(attr)[1]]
		if !ok {
			return attr
		}
		return `xlink:href="` + uri + `"`
	})
}

func (a *Assembler) assemble(ctx context.Context, page uint16) (string, error) {
	ctx, span := tracer.Start(ctx, "assembler:assemble")
	defer span.End()
	span.SetAttributes(attribute.Int("page", int(page)))

	raw, err := a.source.RawPage(ctx, page)
	if err != nil {
		span.SetStatus(codes.Error, "failed to fetch raw page")
		a.tel.ReportBroken(report_assembler_raw_page, err, page)
		return "", err
	}

	refs := References(raw, page)
	span.SetAttributes(attribute.Int("assets", len(refs)))
	a.tel.ReportDebug("discovered assets", page, len(refs))
	if len(refs) == 0 {
		pageCounter.Add(ctx, 1)
		return raw, nil
	}

	assets, err := a.fetchAssets(ctx, refs)
	if err != nil {
		span.SetStatus(codes.Error, "failed to fetch assets")
		a.tel.ReportBroken(report_assembler_fetch_assets, err, page)
		return "", err
	}

	uris := make([]string, len(assets))
	for i, asset := range assets {
		uris[i], err = DataURI(asset)
		if err != nil {
			span.SetStatus(codes.Error, "failed to inline asset")
			a.tel.ReportBroken(report_assembler_inline, err, page, refs[i])
			return "", err
		}
		assetCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.String("content_type", asset.Header("Content-Type")),
		))
	}

	pageCounter.Add(ctx, 1)
	return inline(raw, page, refs, uris), nil
}

// PageSVG returns the page with every asset inlined as a data uri.
func (a *Assembler) PageSVG(ctx context.Context, page uint16) (string, error) {
	return flight.Do(ctx, &a.pages, strconv.Itoa(int(page)), func(ctx context.Context) (string, error) {
		return a.assemble(ctx, page)
	})
}

// FetchPage assembles a page and renders it.
func (a *Assembler) FetchPage(ctx context.Context, page uint16) ([]byte, error) {
	svg, err := a.PageSVG(ctx, page)
	if err != nil {
		return nil, err
	}

	if a.observer != nil {
		a.observer(page, svg)
	}

	out, err := a.renderer.Render(ctx, svg)
	if err != nil {
		a.tel.ReportBroken(report_assembler_render, err, page)
		return nil, fmt.Errorf("%w: page %d: %w", ErrAssembly, page, err)
	}
	return out, nil
}

// Package digi4school scrapes the vector ebooks of the digi4school viewer.
//
// a book lives in one directory: every page is `<base><page>.svg` and the
// images of a page are below `<base><page>/`.
package digi4school

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"digiscrape/internal/components/telemetry"
	"digiscrape/internal/fetch"
	"digiscrape/internal/render"
	"digiscrape/internal/scraper"
	"digiscrape/internal/scraper/svg"

	"github.com/PuerkitoBio/goquery"
)

const (
	Host       = "a.digi4school.at"
	PathPrefix = "/ebook/"
)

const report_page_count = "digi4school.page-count"

var ErrPageCount = errors.New("page count not found in viewer")

var navBarPattern = regexp.MustCompile(`IDRViewer\.makeNavBar\(\s*(\d+)`)

type Options struct {
	// Concurrency caps the concurrent asset fetches of one page.
	Concurrency int
	// Observer receives every assembled svg before it is rendered.
	Observer func(page uint16, svg string)
	Tel      telemetry.API
}

type Scraper struct {
	session   *fetch.Response
	client    *fetch.Client
	base      *url.URL
	assembler *svg.Assembler
	tel       telemetry.API
}

// bookBase returns the directory of the viewer url, with a trailing slash.
func bookBase(viewer *url.URL) *url.URL {
	base := *viewer
	base.RawQuery = ""
	base.Fragment = ""
	base.RawPath = ""
	if i := strings.LastIndex(base.Path, "/"); i >= 0 {
		base.Path = base.Path[:i+1]
	} else {
		base.Path = "/"
	}
	return &base
}

func New(session *fetch.Response, client *fetch.Client, renderer render.Renderer, opts Options) *Scraper {
	tel := telemetry.OrDiscard(opts.Tel)
	s := &Scraper{
		session: session,
		client:  client,
		base:    bookBase(session.URL()),
		tel:     telemetry.NewScopedAPI("digi4school", tel),
	}

	assemblerOpts := []svg.Option{
		svg.WithConcurrency(opts.Concurrency),
		svg.WithTelemetry(tel),
	}
	if opts.Observer != nil {
		assemblerOpts = append(assemblerOpts, svg.WithObserver(opts.Observer))
	}
	s.assembler = svg.NewAssembler(s, renderer, assemblerOpts...)
	return s
}

// Constructor binds renderer and opts into a scraper.Constructor.
func Constructor(renderer render.Renderer, opts Options) scraper.Constructor {
	return func(session *fetch.Response, client *fetch.Client) scraper.PageScraper {
		return New(session, client, renderer, opts)
	}
}

func Register(registry *scraper.Registry, renderer render.Renderer, opts Options) {
	registry.Register("digi4school", scraper.MatchHost(Host, PathPrefix), Constructor(renderer, opts))
}

func parseCount(raw string) (uint16, bool) {
	n, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 16)
	if err != nil || n == 0 {
		return 0, false
	}
	return uint16(n), true
}

// PageCount reads the page count out of the viewer already held by the session.
func (s *Scraper) PageCount(ctx context.Context) (uint16, error) {
	doc, err := goquery.NewDocumentFromReader(s.session.Reader())
	if err != nil {
		s.tel.ReportBroken(report_page_count, err, s.session.URL().String())
		return 0, fmt.Errorf("%w: %w", ErrPageCount, err)
	}

	var count uint16
	doc.Find("script").EachWithBreak(func(_ int, script *goquery.Selection) bool {
		match := navBarPattern.FindStringSubmatch(script.Text())
		if match == nil {
			return true
		}
		n, ok := parseCount(match[1])
		if ok {
			count = n
		}
		return !ok
	})
	if count > 0 {
		return count, nil
	}

	if content, ok := doc.Find(`meta[name="pagecount"]`).First().Attr("content"); ok {
		if n, ok := parseCount(content); ok {
			return n, nil
		}
	}

	err = fmt.Errorf("%w: %s", ErrPageCount, s.session.URL())
	s.tel.ReportBroken(report_page_count, err)
	return 0, err
}

func (s *Scraper) resolve(ref string) (*url.URL, error) {
	rel, err := url.Parse(ref)
	if err != nil {
		return nil, err
	}
	return s.base.ResolveReference(rel), nil
}

func (s *Scraper) RawPage(ctx context.Context, page uint16) (string, error) {
	u, err := s.resolve(strconv.Itoa(int(page)) + ".svg")
	if err != nil {
		return "", err
	}
	res, err := s.client.Get(ctx, u).
		SetHeader("Referer", s.session.URL().String()).
		Send()
	if err != nil {
		return "", err
	}
	return res.String(), nil
}

func (s *Scraper) AssetRequest(ctx context.Context, ref string) (fetch.Request, error) {
	u, err := s.resolve(ref)
	if err != nil {
		return fetch.Request{}, err
	}
	return s.client.Get(ctx, u).SetHeader("Referer", s.session.URL().String()), nil
}

func (s *Scraper) FetchPage(ctx context.Context, page uint16) ([]byte, error) {
	return s.assembler.FetchPage(ctx, page)
}

// PageSVG returns the assembled svg of a page without rendering it.
func (s *Scraper) PageSVG(ctx context.Context, page uint16) (string, error) {
	return s.assembler.PageSVG(ctx, page)
}

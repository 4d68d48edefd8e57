// Package volume holds one document volume of the platform and its lazily
// resolved session.
package volume

import (
	"context"
	"net/url"
	"sync/atomic"

	"digiscrape/internal/components/assert"
	"digiscrape/internal/components/flight"
	"digiscrape/internal/components/telemetry"
	"digiscrape/internal/fetch"
	"digiscrape/internal/scraper"
	"digiscrape/internal/session"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/singleflight"
)

var tracer = otel.Tracer("digiscrape/volume")

const (
	report_volume_session = "volume.session"
	report_volume_scraper = "volume.scraper"
)

type Options struct {
	Url       *url.URL
	Name      string
	Thumbnail *url.URL

	Client   *fetch.Client
	Resolver session.Resolver
	Registry *scraper.Registry
	Tel      telemetry.API
}

// Volume is one document (or chapter group) served by the platform.
//
// the session slot goes from empty to resolved exactly once, every caller
// observes the same *fetch.Response afterwards.
type Volume struct {
	url       *url.URL
	name      string
	thumbnail *url.URL

	client   *fetch.Client
	resolver session.Resolver
	registry *scraper.Registry
	tel      telemetry.API

	session   atomic.Pointer[fetch.Response]
	resolving singleflight.Group
}

func New(opts Options) *Volume {
	assert.NotNil(opts.Url)
	assert.NotNil(opts.Client)
	assert.NotNil(opts.Resolver)
	assert.NotNil(opts.Registry)

	copied := *opts.Url
	return &Volume{
		url:       &copied,
		name:      opts.Name,
		thumbnail: opts.Thumbnail,
		client:    opts.Client,
		resolver:  opts.Resolver,
		registry:  opts.Registry,
		tel:       telemetry.NewScopedAPI("volume", telemetry.OrDiscard(opts.Tel)),
	}
}

// FromResponse creates the volume of a single volume document whose session
// response was already fetched. opts.Url is replaced by the response url.
func FromResponse(opts Options, resolved *fetch.Response) *Volume {
	assert.NotNil(resolved)
	opts.Url = resolved.URL()
	v := New(opts)
	v.session.Store(resolved)
	return v
}

func (v *Volume) Url() *url.URL {
	copied := *v.url
	return &copied
}

func (v *Volume) Name() string {
	return v.name
}

func (v *Volume) Thumbnail() *url.URL {
	return v.thumbnail
}

func (v *Volume) String() string {
	return v.name
}

// resolve runs one full session resolution, it does not touch the slot.
func (v *Volume) resolve(ctx context.Context) (*fetch.Response, error) {
	ctx, span := tracer.Start(ctx, "volume:resolve")
	defer span.End()
	span.SetAttributes(attribute.String("url", v.url.String()))

	initial, err := v.client.Get(ctx, v.url).Send()
	if err != nil {
		span.SetStatus(codes.Error, "failed to fetch entry url")
		return nil, err
	}
	resolved, err := v.resolver.Follow(ctx, initial, v.client)
	if err != nil {
		span.SetStatus(codes.Error, "failed to follow session")
		return nil, err
	}
	return resolved, nil
}

// store publishes resolved unless another resolution won, in which case the
// winner's response is returned and resolved is dropped.
func (v *Volume) store(resolved *fetch.Response) *fetch.Response {
	if v.session.CompareAndSwap(nil, resolved) {
		return resolved
	}
	v.tel.ReportDebug("discarding losing session resolution", v.url.String())
	return v.session.Load()
}

// Session returns the resolved session, resolving it on first use.
// concurrent first callers share a single resolution.
func (v *Volume) Session(ctx context.Context) (*fetch.Response, error) {
	if resolved := v.session.Load(); resolved != nil {
		return resolved, nil
	}

	resolved, err := flight.Do(ctx, &v.resolving, "session", func(ctx context.Context) (*fetch.Response, error) {
		if resolved := v.session.Load(); resolved != nil {
			return resolved, nil
		}
		resolved, err := v.resolve(ctx)
		if err != nil {
			return nil, err
		}
		return v.store(resolved), nil
	})
	if err != nil {
		if !flight.IsContextErr(err) {
			v.tel.ReportBroken(report_volume_session, err, v.url.String())
		}
		return nil, err
	}
	return resolved, nil
}

// Scraper resolves the session and builds a new scraper for its destination.
func (v *Volume) Scraper(ctx context.Context) (scraper.PageScraper, error) {
	resolved, err := v.Session(ctx)
	if err != nil {
		return nil, err
	}

	construct, err := v.registry.Resolve(resolved.URL())
	if err != nil {
		v.tel.ReportBroken(report_volume_scraper, err, resolved.URL().String())
		return nil, err
	}
	return construct(resolved, v.client), nil
}

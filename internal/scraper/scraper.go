// Package scraper defines what every source specific scraper can do, and the
// registry that picks a scraper for a resolved session.
//
// a scraper only borrows the resolved session and the shared client, it holds no
// state of its own between calls. each method is independent and may be retried.
package scraper

import (
	"context"

	"digiscrape/internal/fetch"
)

type PageScraper interface {
	// PageCount returns the number of pages in the volume.
	PageCount(ctx context.Context) (uint16, error)
	// FetchPage returns the rendered (pdf) bytes of a single page.
	FetchPage(ctx context.Context, page uint16) ([]byte, error)
}

// Constructor binds a scraper implementation to a resolved session.
type Constructor func(session *fetch.Response, client *fetch.Client) PageScraper

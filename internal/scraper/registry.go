package scraper

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"digiscrape/internal/components/assert"

	"github.com/PuerkitoBio/purell"
)

var ErrUnsupportedSource = errors.New("unsupported source")

const normalizeFlags = purell.FlagsSafe | purell.FlagRemoveDotSegments | purell.FlagRemoveDuplicateSlashes

// Matcher decides if a (normalized) destination url is served by a scraper.
type Matcher func(destination *url.URL) bool

// MatchHost matches urls on the given host (case-insensitive) whose path starts with pathPrefix.
func MatchHost(host, pathPrefix string) Matcher {
	host = strings.ToLower(host)
	return func(destination *url.URL) bool {
		return destination.Hostname() == host && strings.HasPrefix(destination.Path, pathPrefix)
	}
}

type entry struct {
	name      string
	match     Matcher
	construct Constructor
}

// Registry maps destinations to scraper constructors. Entries are checked in registration order.
type Registry struct {
	mu      sync.RWMutex
	entries []entry
}

func NewRegistry() *Registry {
	return &Registry{}
}

func (r *Registry) Register(name string, match Matcher, construct Constructor) {
	assert.NotEmptyStr(name)
	assert.NotNil(match)
	assert.NotNil(construct)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry{name: name, match: match, construct: construct})
}

// Names lists the registered scrapers in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, len(r.entries))
	for i, e := range r.entries {
		names[i] = e.name
	}
	return names
}

func normalize(destination *url.URL) (*url.URL, error) {
	copied := *destination
	normalized, err := url.Parse(purell.NormalizeURL(&copied, normalizeFlags))
	if err != nil {
		return nil, err
	}
	return normalized, nil
}

// Resolve returns the constructor of the first scraper whose matcher accepts destination.
func (r *Registry) Resolve(destination *url.URL) (Constructor, error) {
	normalized, err := normalize(destination)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrUnsupportedSource, destination, err)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, e := range r.entries {
		if e.match(normalized) {
			return e.construct, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedSource, destination)
}

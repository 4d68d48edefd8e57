package commands

import (
	"fmt"
	"net/http"
	"net/url"
	"path/filepath"
	"time"

	"digiscrape/internal/components/telemetry"
	"digiscrape/internal/fetch"
	"digiscrape/internal/scraper/svg"
	"digiscrape/internal/session"
	"digiscrape/pkg/configutil"
)

type CookieConfig struct {
	Url   string `json:"url"`
	Name  string `json:"name"`
	Value string `json:"value"`
}

type ChromiumConfig struct {
	RemoteUrl string `json:"remote_url"`
	Bin       string `json:"bin"`
}

type Config struct {
	UserAgent      string `json:"user_agent"`
	TimeoutSeconds int    `json:"timeout_seconds"`
	// RequestsPerSecond <= 0 disables rate limiting.
	RequestsPerSecond float64 `json:"requests_per_second"`
	Burst             int     `json:"burst"`
	CloudflareBypass  bool    `json:"cloudflare_bypass"`

	// AssetConcurrency <= 0 falls back to svg.DefaultConcurrency.
	AssetConcurrency int `json:"asset_concurrency"`
	// PageConcurrency <= 0 renders every page of the range at once.
	PageConcurrency int `json:"page_concurrency"`
	MaxLtiHops      int `json:"max_lti_hops"`

	// Cookies are usually the session cookies of a logged in browser.
	Cookies []CookieConfig `json:"cookies"`

	Chromium ChromiumConfig       `json:"chromium"`
	Otlp     telemetry.OtlpConfig `json:"otlp"`
	LogLevel string               `json:"log_level"`
	// PerfStatsSeconds <= 0 disables perf stat gauges.
	PerfStatsSeconds int `json:"perf_stats_seconds"`
}

func DefaultConfig() Config {
	return Config{
		UserAgent:         fetch.DefaultUserAgent,
		TimeoutSeconds:    30,
		RequestsPerSecond: 8,
		Burst:             4,
		AssetConcurrency:  svg.DefaultConcurrency,
		PageConcurrency:   2,
		MaxLtiHops:        session.DefaultMaxHops,
		LogLevel:          "info",
	}
}

// LoadConfig reads path over DefaultConfig. with search a bare file name is
// looked up in the cwd and its parents.
func LoadConfig(path string, search bool) (Config, error) {
	var cfg Config
	var err error
	if search && filepath.Base(path) == path {
		cfg, err = configutil.ReadRecursively(path, DefaultConfig())
	} else {
		cfg, err = configutil.ReadOrDefault(path, DefaultConfig())
	}
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	return cfg, nil
}

func (c Config) cookieJar() (map[*url.URL][]*http.Cookie, error) {
	if len(c.Cookies) == 0 {
		return nil, nil
	}

	byUrl := map[string]*url.URL{}
	jar := map[*url.URL][]*http.Cookie{}
	for _, cookie := range c.Cookies {
		u, ok := byUrl[cookie.Url]
		if !ok {
			parsed, err := url.Parse(cookie.Url)
			if err != nil {
				return nil, fmt.Errorf("cookie %s: %w", cookie.Name, err)
			}
			if parsed.Scheme == "" || parsed.Host == "" {
				return nil, fmt.Errorf("cookie %s: url %q is not absolute", cookie.Name, cookie.Url)
			}
			u = parsed
			byUrl[cookie.Url] = u
		}
		jar[u] = append(jar[u], &http.Cookie{Name: cookie.Name, Value: cookie.Value})
	}
	return jar, nil
}

func (c Config) clientOptions(tel telemetry.API) (fetch.ClientOptions, error) {
	cookies, err := c.cookieJar()
	if err != nil {
		return fetch.ClientOptions{}, err
	}
	return fetch.ClientOptions{
		UserAgent:         c.UserAgent,
		Timeout:           time.Duration(c.TimeoutSeconds) * time.Second,
		RequestsPerSecond: c.RequestsPerSecond,
		Burst:             c.Burst,
		CloudflareBypass:  c.CloudflareBypass,
		Cookies:           cookies,
		Tel:               tel,
	}, nil
}

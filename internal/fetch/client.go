package fetch

import (
	"context"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"time"

	"digiscrape/internal/components/telemetry"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"
)

const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36"

type ClientOptions struct {
	UserAgent string
	// Timeout applies to a single request, zero means 30 seconds.
	Timeout time.Duration
	// RequestsPerSecond <= 0 disables rate limiting.
	RequestsPerSecond float64
	// Burst defaults to 1 when rate limiting is enabled.
	Burst int
	// MaxRedirects defaults to 10.
	MaxRedirects int
	// CloudflareBypass wraps the transport with cloudflare-bp-go.
	CloudflareBypass bool
	// Cookies are put into the jar for their urls before the first request.
	Cookies map[*url.URL][]*http.Cookie
	// Dump receives every http exchange when set.
	Dump DumpOutput
	Tel  telemetry.API
}

// Client is the network client shared by every volume and scraper.
// It is configured once in NewClient and never modified afterwards.
type Client struct {
	http *resty.Client
	tel  telemetry.API
}

func NewClient(opts ClientOptions) (*Client, error) {
	tel := telemetry.NewScopedAPI("fetch", telemetry.OrDiscard(opts.Tel))

	httpClient := resty.New()
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	for u, cookies := range opts.Cookies {
		jar.SetCookies(u, cookies)
	}
	httpClient.SetCookieJar(jar)

	if opts.CloudflareBypass {
		httpClient.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(httpClient.GetClient().Transport)
	}

	userAgent := opts.UserAgent
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	httpClient.SetHeader("user-agent", userAgent)

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = time.Second * 30
	}
	httpClient.SetTimeout(timeout)

	maxRedirects := opts.MaxRedirects
	if maxRedirects <= 0 {
		maxRedirects = 10
	}
	httpClient.SetRedirectPolicy(resty.FlexibleRedirectPolicy(maxRedirects))

	if opts.RequestsPerSecond > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		rateLimiter := rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst)
		httpClient.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
			return rateLimiter.Wait(req.Context())
		})
	}

	telemetry.InstrumentResty(httpClient, "digiscrape/fetch", tel)
	if opts.Dump != nil {
		dumpResponses(httpClient, opts.Dump)
	}

	return &Client{http: httpClient, tel: tel}, nil
}

// NewRequest creates a request builder for an absolute url.
func (c *Client) NewRequest(ctx context.Context, method string, u *url.URL) Request {
	copied := *u
	return Request{
		Method: method,
		URL:    &copied,
		req:    c.http.R().SetContext(ctx),
	}
}

func (c *Client) Get(ctx context.Context, u *url.URL) Request {
	return c.NewRequest(ctx, http.MethodGet, u)
}

// Request is a pending request bound to an absolute url.
type Request struct {
	Method string
	URL    *url.URL
	req    *resty.Request
}

func (r Request) SetHeader(key, value string) Request {
	r.req.SetHeader(key, value)
	return r
}

func (r Request) SetFormData(data url.Values) Request {
	r.req.SetFormDataFromValues(data)
	return r
}

func (r Request) SetQuery(values url.Values) Request {
	r.req.SetQueryParamsFromValues(values)
	return r
}

// Send executes the request and reads the whole body. Transport failures
// and non-2xx statuses are returned as *NetworkError.
func (r Request) Send() (*Response, error) {
	res, err := r.req.Execute(r.Method, r.URL.String())
	if err != nil {
		return nil, &NetworkError{Method: r.Method, Url: r.URL.String(), Err: err}
	}
	if !res.IsSuccess() {
		return nil, &NetworkError{Method: r.Method, Url: r.URL.String(), Status: res.StatusCode()}
	}
	return fromResty(res, r.URL), nil
}

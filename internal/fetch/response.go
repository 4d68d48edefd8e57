package fetch

import (
	"bytes"
	"net/http"
	"net/url"

	"github.com/go-resty/resty/v2"
)

// Response is a fully read HTTP response. It is never mutated after construction,
// every accessor hands out a copy, so a *Response can be shared freely between goroutines.
type Response struct {
	url    *url.URL
	status int
	header http.Header
	body   []byte
}

// NewResponse builds a Response from its parts, the arguments are copied.
func NewResponse(u *url.URL, header http.Header, body []byte) *Response {
	copied := *u
	return &Response{
		url:    &copied,
		status: http.StatusOK,
		header: header.Clone(),
		body:   bytes.Clone(body),
	}
}

func fromResty(res *resty.Response, requested *url.URL) *Response {
	final := requested
	// the request attached to the raw response is the last one in a redirect chain
	if res.RawResponse != nil && res.RawResponse.Request != nil && res.RawResponse.Request.URL != nil {
		final = res.RawResponse.Request.URL
	}
	copied := *final
	return &Response{
		url:    &copied,
		status: res.StatusCode(),
		header: res.Header().Clone(),
		body:   bytes.Clone(res.Body()),
	}
}

// URL is the final url after following redirects.
func (r *Response) URL() *url.URL {
	copied := *r.url
	return &copied
}

func (r *Response) StatusCode() int {
	return r.status
}

// Header returns the first value of the named header, the lookup is case-insensitive.
func (r *Response) Header(name string) string {
	return r.header.Get(name)
}

// HeaderValues returns every value of the named header, nil means the header is absent.
func (r *Response) HeaderValues(name string) []string {
	values := r.header.Values(name)
	if len(values) == 0 {
		return nil
	}
	out := make([]string, len(values))
	copy(out, values)
	return out
}

func (r *Response) Headers() http.Header {
	return r.header.Clone()
}

func (r *Response) Body() []byte {
	return bytes.Clone(r.body)
}

func (r *Response) Len() int {
	return len(r.body)
}

func (r *Response) String() string {
	return string(r.body)
}

// Reader reads the body without copying it.
func (r *Response) Reader() *bytes.Reader {
	return bytes.NewReader(r.body)
}

package digi4school

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"digiscrape/internal/components/telemetry"
	"digiscrape/internal/fetch"
	"digiscrape/internal/render"
	"digiscrape/internal/scraper"
	"digiscrape/internal/session"
	"digiscrape/internal/volume"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

const viewerHtml = `<!DOCTYPE html>
<html>
<head>
<title>Mathematik 1</title>
<script src="idrviewer.js"></script>
</head>
<body>
<div id="viewer"></div>
<script>
IDRViewer.config = {};
IDRViewer.makeNavBar(5, ".svg", 1, 1, true);
</script>
</body>
</html>`

const page0 = `<?xml version="1.0" encoding="UTF-8"?>
<svg xmlns="http://www.w3.org/2000/svg" xmlns:xlink="http://www.w3.org/1999/xlink" width="595" height="842">
<image width="595" height="842" xlink:href="0/bg.png"/>
<image x="10" y="10" width="20" height="20" xlink:href="0/img/logo.jpg"/>
<image x="40" y="10" width="20" height="20" xlink:href="0/img/logo.jpg"/>
<image x="70" y="10" width="20" height="20" xlink:href="1/next.png"/>
</svg>`

type platform struct {
	*httptest.Server

	mu       sync.Mutex
	hits     map[string]int
	referers map[string]string
}

func (p *platform) record(r *http.Request) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.hits[r.Method+" "+r.URL.Path]++
	p.referers[r.URL.Path] = r.Header.Get("Referer")
}

func (p *platform) count(key string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.hits[key]
}

func (p *platform) total() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, hits := range p.hits {
		n += hits
	}
	return n
}

func newPlatform(t *testing.T) *platform {
	t.Helper()
	p := &platform{hits: map[string]int{}, referers: map[string]string{}}

	mux := http.NewServeMux()
	mux.HandleFunc("/entry", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/lti", http.StatusFound)
	})
	mux.HandleFunc("/lti", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, `<html><body onload="document.forms[0].submit()">
<form method="post" action="/ebook/5345/">
<input type="hidden" name="oauth_nonce" value="abc">
<input type="hidden" name="resource_link_id" value="5345">
</form></body></html>`)
	})
	mux.HandleFunc("/ebook/5345/", func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ebook/5345/":
			if r.Method != http.MethodPost || r.FormValue("resource_link_id") != "5345" {
				http.Error(w, "launch required", http.StatusForbidden)
				return
			}
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			fmt.Fprint(w, viewerHtml)
		case "/ebook/5345/0.svg":
			w.Header().Set("Content-Type", "image/svg+xml")
			fmt.Fprint(w, page0)
		case "/ebook/5345/0/bg.png":
			w.Header().Set("Content-Type", "image/png")
			w.Write([]byte("png-bytes"))
		case "/ebook/5345/0/img/logo.jpg":
			w.Header().Set("Content-Type", "image/jpeg")
			w.Write([]byte("jpeg-bytes"))
		default:
			http.NotFound(w, r)
		}
	})

	p.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p.record(r)
		mux.ServeHTTP(w, r)
	}))
	return p
}

type renderCall struct {
	mu   sync.Mutex
	svgs []string
}

func (c *renderCall) renderer() render.Renderer {
	return render.Func(func(_ context.Context, svg string) ([]byte, error) {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.svgs = append(c.svgs, svg)
		return []byte("%PDF-mock"), nil
	})
}

func TestEndToEnd(t *testing.T) {
	p := newPlatform(t)
	defer p.Close()

	client, err := fetch.NewClient(fetch.ClientOptions{})
	require.NoError(t, err)

	rendered := &renderCall{}
	var observed []uint16
	registry := scraper.NewRegistry()
	registry.Register("digi4school", scraper.MatchHost("127.0.0.1", PathPrefix), Constructor(rendered.renderer(), Options{
		Observer: func(page uint16, _ string) { observed = append(observed, page) },
	}))

	entry, err := url.Parse(p.URL + "/entry")
	require.NoError(t, err)
	v := volume.New(volume.Options{
		Url:      entry,
		Name:     "Mathematik 1",
		Client:   client,
		Resolver: session.LTIForm{},
		Registry: registry,
		Tel:      &telemetry.Recorder{},
	})

	s, err := v.Scraper(context.Background())
	require.NoError(t, err)
	_, ok := s.(*Scraper)
	require.True(t, ok)

	count, err := s.PageCount(context.Background())
	require.NoError(t, err)
	require.Equal(t, uint16(5), count)

	before := p.total()
	out, err := s.FetchPage(context.Background(), 0)
	require.NoError(t, err)
	require.Equal(t, []byte("%PDF-mock"), out)

	require.Equal(t, 1, p.count("GET /ebook/5345/0.svg"))
	require.Equal(t, 1, p.count("GET /ebook/5345/0/bg.png"))
	require.Equal(t, 1, p.count("GET /ebook/5345/0/img/logo.jpg"))
	require.Equal(t, 0, p.count("GET /ebook/5345/1/next.png"))
	require.Equal(t, 3, p.total()-before)

	viewer := p.URL + "/ebook/5345/"
	require.Equal(t, viewer, p.referers["/ebook/5345/0/bg.png"])
	require.Equal(t, viewer, p.referers["/ebook/5345/0/img/logo.jpg"])

	require.Len(t, rendered.svgs, 1)
	assembled := rendered.svgs[0]
	require.Equal(t, 2, strings.Count(assembled, `xlink:href="data:image/jpeg;base64,anBlZy1ieXRlcw=="`))
	require.Contains(t, assembled, `xlink:href="data:image/png;base64,cG5nLWJ5dGVz"`)
	require.Contains(t, assembled, `xlink:href="1/next.png"`)
	require.Equal(t, []uint16{0}, observed)

	_, err = render.Inspect(assembled)
	require.NoError(t, err)
}

func TestPageCount(t *testing.T) {
	viewer := &url.URL{Scheme: "https", Host: Host, Path: "/ebook/1/index.html"}

	cases := []struct {
		name string
		body string
		want uint16
		err  error
	}{
		{name: "nav bar", body: viewerHtml, want: 5},
		{name: "meta fallback", body: `<html><head><meta name="pagecount" content="212"></head></html>`, want: 212},
		{name: "nav bar wins", body: `<meta name="pagecount" content="3"><script>IDRViewer.makeNavBar( 48, ".svg")</script>`, want: 48},
		{name: "missing", body: `<html><body>nothing here</body></html>`, err: ErrPageCount},
		{name: "zero", body: `<meta name="pagecount" content="0">`, err: ErrPageCount},
		{name: "overflow", body: `<meta name="pagecount" content="70000">`, err: ErrPageCount},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			s := New(fetch.NewResponse(viewer, http.Header{}, []byte(c.body)), nil, render.Func(nil), Options{})
			got, err := s.PageCount(context.Background())
			if c.err != nil {
				require.True(t, errors.Is(err, c.err), "got %v", err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, c.want, got)
		})
	}
}

func TestBookBase(t *testing.T) {
	cases := map[string]string{
		"https://a.digi4school.at/ebook/5345/":               "https://a.digi4school.at/ebook/5345/",
		"https://a.digi4school.at/ebook/5345/index.html?x=1": "https://a.digi4school.at/ebook/5345/",
		"https://a.digi4school.at/ebook/5345/3/#page":        "https://a.digi4school.at/ebook/5345/3/",
		"https://a.digi4school.at":                           "https://a.digi4school.at/",
	}
	for in, want := range cases {
		u, err := url.Parse(in)
		require.NoError(t, err)
		if diff := cmp.Diff(want, bookBase(u).String()); diff != "" {
			t.Errorf("bookBase(%s) mismatch (-want +got):\n%s", in, diff)
		}
	}
}

func TestRegister(t *testing.T) {
	registry := scraper.NewRegistry()
	Register(registry, render.Func(func(context.Context, string) ([]byte, error) { return nil, nil }), Options{})
	require.Equal(t, []string{"digi4school"}, registry.Names())

	matched, err := url.Parse("https://A.digi4school.at/ebook/5345/")
	require.NoError(t, err)
	construct, err := registry.Resolve(matched)
	require.NoError(t, err)

	s := construct(fetch.NewResponse(matched, http.Header{}, []byte(viewerHtml)), nil)
	_, ok := s.(*Scraper)
	require.True(t, ok)

	for _, raw := range []string{"https://digi4school.at/ebook/5345/", "https://a.digi4school.at/login"} {
		u, err := url.Parse(raw)
		require.NoError(t, err)
		_, err = registry.Resolve(u)
		require.True(t, errors.Is(err, scraper.ErrUnsupportedSource), raw)
	}
}

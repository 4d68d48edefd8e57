// Package session resolves an entry url of the content platform into the
// final authenticated response by following the LTI form hand-offs the
// platform serves in between.
package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"digiscrape/internal/components/telemetry"
	"digiscrape/internal/fetch"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

const (
	report_lti_follow = "lti-form.follow"
	report_lti_parse  = "lti-form.parse"
)

var ErrResolution = errors.New("session resolution failed")

// Resolver turns a possibly intermediate response into the final authenticated one.
type Resolver interface {
	Follow(ctx context.Context, initial *fetch.Response, client *fetch.Client) (*fetch.Response, error)
}

const DefaultMaxHops = 8

// LTIForm follows self-submitting html forms (the LTI launch pages the
// platform chains together) until a page without a form is reached.
type LTIForm struct {
	// MaxHops defaults to DefaultMaxHops.
	MaxHops int
	Tel     telemetry.API
}

type form struct {
	method string
	action *url.URL
	values url.Values
}

func (f LTIForm) tel() telemetry.API {
	return telemetry.NewScopedAPI("session", telemetry.OrDiscard(f.Tel))
}

func (f LTIForm) Follow(ctx context.Context, initial *fetch.Response, client *fetch.Client) (*fetch.Response, error) {
	tel := f.tel()
	maxHops := f.MaxHops
	if maxHops <= 0 {
		maxHops = DefaultMaxHops
	}

	current := initial
	for hop := 0; ; hop++ {
		next, err := parseForm(current)
		if err != nil {
			tel.ReportBroken(report_lti_parse, err, current.URL().String())
			return nil, err
		}
		if next == nil {
			tel.ReportDebug("resolved session", current.URL().String(), hop)
			return current, nil
		}
		if hop >= maxHops {
			err := fmt.Errorf("%w: still on a form page after %d hops (%s)", ErrResolution, maxHops, current.URL())
			tel.ReportBroken(report_lti_follow, err)
			return nil, err
		}

		tel.ReportDebug("submit form", next.method, next.action.String())

		var req fetch.Request
		if next.method == http.MethodGet {
			action := *next.action
			query := action.Query()
			for k, v := range next.values {
				query[k] = v
			}
			action.RawQuery = query.Encode()
			req = client.Get(ctx, &action)
		} else {
			req = client.NewRequest(ctx, http.MethodPost, next.action).
				SetHeader("Referer", current.URL().String()).
				SetFormData(next.values)
		}

		current, err = req.Send()
		if err != nil {
			tel.ReportBroken(report_lti_follow, err, next.action.String())
			return nil, err
		}
	}
}

func isHtml(res *fetch.Response) bool {
	contentType := res.Header("Content-Type")
	return contentType == "" || strings.Contains(contentType, "html")
}

// parseForm returns nil if the page does not hand off to another page through a form.
func parseForm(res *fetch.Response) (*form, error) {
	if !isHtml(res) {
		return nil, nil
	}

	doc, err := goquery.NewDocumentFromReader(res.Reader())
	if err != nil {
		return nil, fmt.Errorf("%w: parse html: %w", ErrResolution, err)
	}

	sel := doc.Find("form").First()
	if sel.Length() == 0 {
		return nil, nil
	}

	if sel.Find("input[type=password]").Length() > 0 {
		return nil, fmt.Errorf("%w: %s asks for credentials", ErrResolution, res.URL())
	}

	rawAction, ok := sel.Attr("action")
	rawAction = strings.TrimSpace(rawAction)
	if !ok || rawAction == "" {
		return nil, fmt.Errorf("%w: form on %s has no action", ErrResolution, res.URL())
	}
	action, err := res.URL().Parse(rawAction)
	if err != nil {
		return nil, fmt.Errorf("%w: form action %q: %w", ErrResolution, rawAction, err)
	}

	method := strings.ToUpper(strings.TrimSpace(sel.AttrOr("method", http.MethodGet)))
	if method != http.MethodPost {
		method = http.MethodGet
	}

	values := url.Values{}
	sel.Find("input, textarea, select").Each(func(_ int, field *goquery.Selection) {
		name, ok := field.Attr("name")
		if !ok || name == "" {
			return
		}
		inputType := strings.ToLower(field.AttrOr("type", "text"))
		if (inputType == "checkbox" || inputType == "radio") && !hasAttr(field.Nodes[0], "checked") {
			return
		}
		values.Add(name, fieldValue(field))
	})

	return &form{method: method, action: action, values: values}, nil
}

func hasAttr(node *html.Node, key string) bool {
	for _, a := range node.Attr {
		if a.Key == key {
			return true
		}
	}
	return false
}

func fieldValue(field *goquery.Selection) string {
	switch goquery.NodeName(field) {
	case "textarea":
		return field.Text()
	case "select":
		option := field.Find("option[selected]").First()
		if option.Length() == 0 {
			option = field.Find("option").First()
		}
		if value, ok := option.Attr("value"); ok {
			return value
		}
		return strings.TrimSpace(option.Text())
	}
	return field.AttrOr("value", "")
}

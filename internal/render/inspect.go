package render

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// css pixels per unit
var units = map[string]float64{
	"":   1,
	"px": 1,
	"pt": 96.0 / 72.0,
	"pc": 16,
	"in": 96,
	"cm": 96 / 2.54,
	"mm": 96 / 25.4,
}

// A4 in css pixels
const (
	a4Width  = 210 * 96 / 25.4
	a4Height = 297 * 96 / 25.4
)

// Page describes the root <svg> element of a document.
type Page struct {
	// Width and Height are in css pixels.
	Width  float64
	Height float64
}

func parseLength(raw string) (float64, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.HasSuffix(raw, "%") {
		return 0, false
	}
	end := len(raw)
	for end > 0 && (raw[end-1] >= 'a' && raw[end-1] <= 'z') {
		end--
	}
	factor, ok := units[raw[end:]]
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseFloat(raw[:end], 64)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n * factor, true
}

func parseViewBox(raw string) (float64, float64, bool) {
	fields := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ' ' || r == ',' || r == '\t' || r == '\n'
	})
	if len(fields) != 4 {
		return 0, 0, false
	}
	w, err1 := strconv.ParseFloat(fields[2], 64)
	h, err2 := strconv.ParseFloat(fields[3], 64)
	if err1 != nil || err2 != nil || w <= 0 || h <= 0 {
		return 0, 0, false
	}
	return w, h, true
}

// Inspect checks that svg is a well-formed xml document with an <svg> root and
// reads its page size. Sizes fall back to the viewBox, then to A4.
func Inspect(svg string) (Page, error) {
	decoder := xml.NewDecoder(strings.NewReader(svg))
	decoder.Strict = true

	var page Page
	rootSeen := false
	depth := 0
	for {
		token, err := decoder.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Page{}, fmt.Errorf("%w: malformed svg: %w", ErrRender, err)
		}

		switch t := token.(type) {
		case xml.EndElement:
			depth--
		case xml.StartElement:
			depth++
			if depth > 1 {
				continue
			}
			if rootSeen {
				return Page{}, fmt.Errorf("%w: more than one root element", ErrRender)
			}
			rootSeen = true
			if t.Name.Local != "svg" {
				return Page{}, fmt.Errorf("%w: root element is <%s>, not <svg>", ErrRender, t.Name.Local)
			}
			page = readSize(t)
		}
	}
	if !rootSeen {
		return Page{}, fmt.Errorf("%w: document has no root element", ErrRender)
	}
	return page, nil
}

func readSize(root xml.StartElement) Page {
	var width, height, viewBox string
	for _, attr := range root.Attr {
		if attr.Name.Space != "" {
			continue
		}
		switch attr.Name.Local {
		case "width":
			width = attr.Value
		case "height":
			height = attr.Value
		case "viewBox":
			viewBox = attr.Value
		}
	}

	w, okW := parseLength(width)
	h, okH := parseLength(height)
	if okW && okH {
		return Page{Width: w, Height: h}
	}
	if vw, vh, ok := parseViewBox(viewBox); ok {
		switch {
		case okW:
			return Page{Width: w, Height: w * vh / vw}
		case okH:
			return Page{Width: h * vw / vh, Height: h}
		}
		return Page{Width: vw, Height: vh}
	}
	return Page{Width: a4Width, Height: a4Height}
}

// Package render turns a self-contained svg document into pdf bytes.
package render

import (
	"context"
	"errors"
)

var ErrRender = errors.New("render failed")

type Renderer interface {
	Render(ctx context.Context, svg string) ([]byte, error)
}

// Func adapts a plain function to Renderer.
type Func func(ctx context.Context, svg string) ([]byte, error)

func (f Func) Render(ctx context.Context, svg string) ([]byte, error) {
	return f(ctx, svg)
}

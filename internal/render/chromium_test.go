package render

import (
	"context"
	"testing"

	"digiscrape/internal/components/telemetry"

	"github.com/go-rod/rod/lib/launcher"
	"github.com/stretchr/testify/require"
)

const squareSvg = `<svg xmlns="http://www.w3.org/2000/svg" width="100" height="50"><rect width="100" height="50"/></svg>`

func TestChromiumCancelledBeforeLaunch(t *testing.T) {
	rec := &telemetry.Recorder{}
	c := NewChromium(ChromiumConfig{Bin: "/nonexistent/chrome", Tel: rec})
	defer c.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.Render(ctx, squareSvg)
	require.ErrorIs(t, err, ErrRender)
	require.ErrorIs(t, err, context.Canceled)
	require.Nil(t, c.browser)
	require.Empty(t, rec.Reports())
}

func TestChromiumOpenTabCancelled(t *testing.T) {
	bin, ok := launcher.LookPath()
	if !ok {
		t.Skip("no local chrome")
	}
	rec := &telemetry.Recorder{}
	c := NewChromium(ChromiumConfig{Bin: bin, Tel: rec})
	defer c.Close()

	b, err := c.connect()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = c.openTab(ctx, b)
	require.ErrorIs(t, err, ErrRender)
	require.ErrorIs(t, err, context.Canceled)
	require.Empty(t, rec.Find(telemetry.KindBroken, report_chromium_render))
}

package telemetry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/stretchr/testify/require"
)

func TestScopedAPI(t *testing.T) {
	rec := &Recorder{}
	scoped := NewScopedAPI("assembler", NewScopedAPI("svg", rec))

	scoped.ReportBroken("fetch-assets", "param")
	scoped.ReportWarning("inline")
	scoped.ReportCount("assets", 3)

	reports := rec.Reports()
	require.Len(t, reports, 3)
	require.Equal(t, "svg: assembler: fetch-assets", reports[0].Id)
	require.Equal(t, []any{"param"}, reports[0].Params)
	require.Equal(t, KindWarning, reports[1].Kind)
	require.Equal(t, int64(3), reports[2].Count)

	require.Len(t, rec.Find(KindBroken, "fetch-assets"), 1)
	require.Empty(t, rec.Find(KindBroken, "inline"))
}

func TestInstrumentResty(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	defer server.Close()

	rec := &Recorder{}
	client := resty.New()
	InstrumentResty(client, "test", rec)

	res, err := client.R().Get(server.URL)
	require.NoError(t, err)
	require.Equal(t, http.StatusTeapot, res.StatusCode())

	require.Len(t, rec.Find(KindDebug, report_resty_request), 1)
	require.Len(t, rec.Find(KindDebug, report_resty_response), 1)

	_, err = client.R().Get("http://127.0.0.1:0/unreachable")
	require.Error(t, err)
	require.Len(t, rec.Find(KindBroken, report_resty_response), 1)
}

func TestSetupOtlpDisabled(t *testing.T) {
	shutdown, err := SetupOtlp(context.Background(), "test", OtlpConfig{})
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
}

func TestSamplePerfStats(t *testing.T) {
	stats := SamplePerfStats(context.Background(), 10*time.Millisecond)
	require.GreaterOrEqual(t, stats.AllocatedMb, int64(0))
	require.Positive(t, stats.Goroutines)
}

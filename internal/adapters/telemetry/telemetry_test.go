package telemetry

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsAreScrapable(t *testing.T) {
	ctx := context.Background()
	providers, err := Setup(ctx, Config{ServiceName: "m91-test", TraceExporter: "none"}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = providers.Shutdown(context.Background()) })

	engine, err := NewEngineMetrics(providers.Meter)
	require.NoError(t, err)
	engine.SeatActivated(ctx, false)
	engine.SeatRejected(ctx, "no_available_seats")
	engine.SeatsReleased(ctx, "force_deactivated", 3)
	engine.LicenseTransitioned(ctx, "renew")

	httpMetrics, err := NewHTTPMetrics(providers.Meter)
	require.NoError(t, err)
	httpMetrics.Observe(ctx, http.MethodPost, "/v1/activations", http.StatusCreated, 12*time.Millisecond)

	rec := httptest.NewRecorder()
	providers.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body, _ := io.ReadAll(rec.Body)
	for _, name := range []string{
		"m91_seat_activations_total",
		"m91_seat_rejections_total",
		"m91_seat_releases_total",
		"m91_license_transitions_total",
		"m91_http_requests_total",
	} {
		assert.Contains(t, string(body), name)
	}
}

func TestSetupRejectsUnknownExporter(t *testing.T) {
	_, err := Setup(context.Background(), Config{TraceExporter: "zipkin"}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.Error(t, err)
}

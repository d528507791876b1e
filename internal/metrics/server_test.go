package metrics

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestHealthz(t *testing.T) {
	tests := []struct {
		name   string
		health HealthFunc
		want   int
	}{
		{"healthy", func(ctx context.Context) error { return nil }, http.StatusOK},
		{"unhealthy", func(ctx context.Context) error { return errors.New("db down") }, http.StatusServiceUnavailable},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			NewRouter(tc.health).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
			if rec.Code != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, rec.Code)
			}
		})
	}
}

func TestMetricsEndpointExposesTreasury(t *testing.T) {
	TreasuryBalance.Set(1234)

	rec := httptest.NewRecorder()
	NewRouter(func(ctx context.Context) error { return nil }).
		ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "bingoo_treasury_balance_points 1234") {
		t.Fatalf("treasury gauge missing from /metrics output")
	}
}

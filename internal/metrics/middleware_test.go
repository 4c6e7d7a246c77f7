package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMiddleware(t *testing.T) {
	Init()
	r := chi.NewRouter()
	r.Use(Middleware)
	r.Get("/mw/ok", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	r.Post("/mw/items/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	okBefore := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "200"))
	teapotBefore := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("POST", "418"))

	for _, req := range []*http.Request{
		httptest.NewRequest(http.MethodGet, "/mw/ok", nil),
		httptest.NewRequest(http.MethodPost, "/mw/items/42", nil),
	} {
		r.ServeHTTP(httptest.NewRecorder(), req)
	}

	if got := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "200")) - okBefore; got != 1 {
		t.Errorf("expected one GET 200, got %f", got)
	}
	if got := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("POST", "418")) - teapotBefore; got != 1 {
		t.Errorf("expected one POST 418, got %f", got)
	}
	if val := testutil.CollectAndCount(httpRequestDurationSeconds, "http_request_duration_seconds"); val < 2 {
		t.Errorf("expected duration series for both routes, got %d", val)
	}
}

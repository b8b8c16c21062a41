package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-restore/internal/observability"
	"github.com/odyssey-erp/odyssey-restore/internal/platform/db"
	"github.com/odyssey-erp/odyssey-restore/internal/restore"
	_ "github.com/odyssey-erp/odyssey-restore/testing"
)

type fakeRestorer struct{}

func (fakeRestorer) RestoreBatch(_ context.Context, records []restore.LegacyRecord, _ string) (restore.Summary, error) {
	return restore.Summary{Imported: len(records), TotalProcessed: len(records)}, nil
}

func (fakeRestorer) SyncBranches(context.Context) (restore.SyncResult, error) {
	return restore.SyncResult{Names: []string{}}, nil
}

type connectedHealth struct{}

func (connectedHealth) Snapshot() db.Health { return db.Health{Connected: true} }

func newTestRouter() (http.Handler, *observability.Metrics) {
	metrics := observability.NewMetrics()
	return NewRouter(RouterParams{
		Config:         &Config{AppEnv: "test"},
		RestoreHandler: restore.NewHandler(nil, fakeRestorer{}, connectedHealth{}, 0),
		Metrics:        metrics,
	}), metrics
}

func TestRouterServesRestoreAndHealth(t *testing.T) {
	router, _ := newTestRouter()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	require.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz/db", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/inventory/restore", strings.NewReader(`{"records":[{"productName":"Milk"}]}`))
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"imported":1,"skipped":0,"totalProcessed":1}`, rec.Body.String())

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRouterExposesMetrics(t *testing.T) {
	router, _ := newTestRouter()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `odyssey_http_requests_total{code="200",route="/healthz"} 1`)
}

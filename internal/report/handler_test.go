package report

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
)

func newTestRouter(repo Repository) http.Handler {
	r := chi.NewRouter()
	r.Route("/reports", NewHandler(nil, NewService(repo, nil, nil)).MountRoutes)
	return r
}

func TestHandlerProfitAndLoss(t *testing.T) {
	repo := &fakeRepo{summaries: map[string]Summary{
		"SALE": {Count: 1, Taxable: dec("100.00"), GST: dec("18.00"), Total: dec("118.00")},
	}}
	rec := httptest.NewRecorder()
	newTestRouter(repo).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/reports/profit-loss?from=2026-04-01&to=2026-04-30", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "100", body["grossProfit"])
	require.Equal(t, "18", body["netGstPayable"])
}

func TestHandlerRejectsBadDates(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestRouter(&fakeRepo{}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/reports/profit-loss?from=01-04-2026&to=2026-04-30", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	newTestRouter(&fakeRepo{}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/reports/weekly-sales?weeks=100", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlerWeeklySales(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestRouter(&fakeRepo{}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/reports/weekly-sales?weeks=4&asOf=2026-10-16", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Items []map[string]any `json:"items"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Items, 4)
}

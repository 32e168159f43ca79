package audithttp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/partsdesk/partsdesk/internal/audit"
)

type fakeService struct {
	filters audit.TimelineFilters
	rows    []audit.TimelineRow
}

func (f *fakeService) Timeline(_ context.Context, filters audit.TimelineFilters) (audit.Result, error) {
	f.filters = filters
	return audit.Result{Rows: f.rows, Paging: audit.PagingInfo{Page: filters.Page, PageSize: 20}}, nil
}

func (f *fakeService) Export(_ context.Context, filters audit.TimelineFilters) ([]audit.TimelineRow, error) {
	f.filters = filters
	return f.rows, nil
}

func newServer(t *testing.T, svc *fakeService) *httptest.Server {
	t.Helper()
	h := NewHandler(nil, svc)
	h.now = func() time.Time { return time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC) }
	r := chi.NewRouter()
	r.Route("/audit", h.MountRoutes)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func get(t *testing.T, url string) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestTimelineDefaultsToLastWeek(t *testing.T) {
	svc := &fakeService{rows: []audit.TimelineRow{{ID: 1, Action: "INVOICE_CREATE", Entity: "invoice", EntityID: "1"}}}
	srv := newServer(t, svc)

	resp := get(t, srv.URL+"/audit")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body audit.Result
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Len(t, body.Rows, 1)

	assert.Equal(t, time.Date(2026, 3, 8, 0, 0, 0, 0, time.UTC), svc.filters.From)
	assert.Equal(t, time.Date(2026, 3, 16, 0, 0, 0, 0, time.UTC), svc.filters.To)
	assert.Equal(t, 1, svc.filters.Page)
}

func TestTimelineParsesFilters(t *testing.T) {
	svc := &fakeService{}
	srv := newServer(t, svc)

	resp := get(t, srv.URL+"/audit?from=2026-03-01&to=2026-03-10&actorId=7&entity=invoice&entityId=4&action=invoice_pay&page=2")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotNil(t, svc.filters.ActorID)
	assert.Equal(t, int64(7), *svc.filters.ActorID)
	assert.Equal(t, "invoice", svc.filters.Entity)
	assert.Equal(t, "4", svc.filters.EntityID)
	assert.Equal(t, "INVOICE_PAY", svc.filters.Action)
	assert.Equal(t, 2, svc.filters.Page)
}

func TestTimelineRejectsBadRanges(t *testing.T) {
	srv := newServer(t, &fakeService{})
	for _, q := range []string{
		"?from=2026-03-10&to=2026-03-01",
		"?from=2025-01-01&to=2026-03-01",
		"?from=yesterday",
		"?actorId=abc",
	} {
		resp := get(t, srv.URL+"/audit"+q)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, q)
	}
}

func TestExportServesCSV(t *testing.T) {
	svc := &fakeService{rows: []audit.TimelineRow{{ID: 1, At: time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC), Action: "INVOICE_CREATE", Entity: "invoice", EntityID: "1"}}}
	srv := newServer(t, svc)

	resp := get(t, srv.URL+"/audit/export.csv")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/csv; charset=utf-8", resp.Header.Get("Content-Type"))
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "audit-timeline.csv")
}

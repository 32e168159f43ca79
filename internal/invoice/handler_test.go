package invoice_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/partsdesk/partsdesk/internal/invoice"
)

const saleBody = `{"type":"SALE","date":"2026-03-10T00:00:00Z","customerId":1,"cgstPercent":9,"sgstPercent":9,
"items":[{"partId":1,"quantity":5,"rate":2200}]}`

func newInvoiceServer(t *testing.T) (*httptest.Server, *fixture) {
	t.Helper()
	f := newFixture(t)
	r := chi.NewRouter()
	r.Route("/invoices", invoice.NewHandler(nil, f.svc).MountRoutes)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, f
}

func send(t *testing.T, method, url, body string, headers map[string]string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, bytes.NewBufferString(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeInvoice(t *testing.T, resp *http.Response) invoice.Invoice {
	t.Helper()
	var inv invoice.Invoice
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&inv))
	return inv
}

func TestCreateAndFetchInvoiceOverHTTP(t *testing.T) {
	srv, _ := newInvoiceServer(t)

	resp := send(t, http.MethodPost, srv.URL+"/invoices", saleBody, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, `"1"`, resp.Header.Get("ETag"))
	created := decodeInvoice(t, resp)
	assert.Equal(t, "SAL-2026-001", created.Number)
	requireDecimal(t, "12980", created.Total)

	resp = send(t, http.MethodGet, srv.URL+"/invoices/1", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	fetched := decodeInvoice(t, resp)
	assert.Equal(t, created.ID, fetched.ID)
	require.Len(t, fetched.Items, 1)

	resp = send(t, http.MethodGet, srv.URL+"/invoices?type=SALE&customerId=1", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list struct {
		Items []invoice.Invoice `json:"items"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	require.Len(t, list.Items, 1)
}

func TestCreateRejectsZeroQuantityWithField(t *testing.T) {
	srv, f := newInvoiceServer(t)

	body := `{"type":"SALE","customerId":1,"items":[{"partId":1,"quantity":0,"rate":2200}]}`
	resp := send(t, http.MethodPost, srv.URL+"/invoices", body, nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	var problem struct {
		Field string `json:"field"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&problem))
	assert.Equal(t, "items[0].quantity", problem.Field)
	assert.Empty(t, f.stock.Entries())
}

func TestInvoiceHTTPStatusMapping(t *testing.T) {
	srv, _ := newInvoiceServer(t)
	require.Equal(t, http.StatusCreated, send(t, http.MethodPost, srv.URL+"/invoices", saleBody, nil).StatusCode)

	resp := send(t, http.MethodPut, srv.URL+"/invoices/1", saleBody, map[string]string{"If-Match": `"7"`})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = send(t, http.MethodPatch, srv.URL+"/invoices/1", `{"status":"SUBMITTED","deliveryNote":"DN-1"}`, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	patched := decodeInvoice(t, resp)
	assert.Equal(t, invoice.StatusSubmitted, patched.Status)
	assert.Equal(t, "DN-1", patched.DeliveryNote)

	resp = send(t, http.MethodPut, srv.URL+"/invoices/1", saleBody, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	resp = send(t, http.MethodDelete, srv.URL+"/invoices/1", "", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = send(t, http.MethodGet, srv.URL+"/invoices/99", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = send(t, http.MethodPost, srv.URL+"/invoices", `{"type":"SALE","unknown":1}`, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestPaymentsAndTransitionsOverHTTP(t *testing.T) {
	srv, _ := newInvoiceServer(t)
	require.Equal(t, http.StatusCreated, send(t, http.MethodPost, srv.URL+"/invoices", saleBody, nil).StatusCode)

	resp := send(t, http.MethodPost, srv.URL+"/invoices/1/submit", `{"version":1}`, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = send(t, http.MethodPost, srv.URL+"/invoices/1/payments", `{"amount":"2980","method":"CASH"}`, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var paid struct {
		Payment invoice.Payment `json:"payment"`
		Invoice invoice.Invoice `json:"invoice"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&paid))
	requireDecimal(t, "2980", paid.Invoice.PaidAmount)

	resp = send(t, http.MethodPost, srv.URL+"/invoices/1/pay", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, invoice.StatusPaid, decodeInvoice(t, resp).Status)

	resp = send(t, http.MethodGet, srv.URL+"/invoices/1/payments", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list struct {
		Items []invoice.Payment `json:"items"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	require.Len(t, list.Items, 2)

	resp = send(t, http.MethodPost, srv.URL+"/invoices/1/cancel", "", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestIdempotencyHeaderReplaysCreate(t *testing.T) {
	srv, f := newInvoiceServer(t)
	headers := map[string]string{invoice.IdempotencyHeader: "till-42-0001"}

	first := decodeInvoice(t, send(t, http.MethodPost, srv.URL+"/invoices", saleBody, headers))
	second := decodeInvoice(t, send(t, http.MethodPost, srv.URL+"/invoices", saleBody, headers))
	assert.Equal(t, first.ID, second.ID)
	assert.Len(t, f.stock.Entries(), 1)
}

func TestDeleteDraftOverHTTP(t *testing.T) {
	srv, _ := newInvoiceServer(t)
	require.Equal(t, http.StatusCreated, send(t, http.MethodPost, srv.URL+"/invoices", saleBody, nil).StatusCode)

	resp := send(t, http.MethodDelete, srv.URL+"/invoices/1", "", map[string]string{"If-Match": `"1"`})
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp = send(t, http.MethodGet, srv.URL+"/invoices/1", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

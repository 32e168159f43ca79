package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/partsdesk/partsdesk/internal/shared"
)

func TestRespondErrorMapsTaxonomy(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		field  string
	}{
		{"validation", shared.NewValidationError("items[0].quantity", "must be greater than 0"), http.StatusBadRequest, "items[0].quantity"},
		{"not found", shared.NewNotFoundError("part", 7), http.StatusNotFound, ""},
		{"conflict", fmt.Errorf("save: %w", shared.NewConflictError("invoice", 3, "stale version")), http.StatusConflict, ""},
		{"invalid state", shared.NewInvalidStateError("update", "SUBMITTED"), http.StatusUnprocessableEntity, ""},
		{"persistence", shared.NewPersistenceError("insert invoice", errors.New("conn reset")), http.StatusInternalServerError, ""},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			RespondError(rec, nil, tc.err)
			require.Equal(t, tc.status, rec.Code)
			require.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
			var body ProblemDetail
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			require.Equal(t, tc.status, body.Status)
			require.Equal(t, tc.field, body.Field)
		})
	}
}

func TestRespondErrorHidesInternalDetail(t *testing.T) {
	rec := httptest.NewRecorder()
	RespondError(rec, nil, shared.NewPersistenceError("commit", errors.New("password=secret")))
	require.NotContains(t, rec.Body.String(), "secret")
}

type sampleRequest struct {
	Name  string `json:"name" validate:"required"`
	Items []int  `json:"items" validate:"required,min=1,dive,gt=0"`
}

func TestDecodeAndValidate(t *testing.T) {
	v := NewValidator()

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"x","items":[1,0]}`))
	var dst sampleRequest
	err := DecodeAndValidate(httptest.NewRecorder(), req, v, &dst)
	var ve *shared.ValidationError
	require.ErrorAs(t, err, &ve)
	require.Equal(t, "items[1]", ve.Field)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"x","bogus":1}`))
	err = DecodeAndValidate(httptest.NewRecorder(), req, v, &dst)
	require.ErrorIs(t, err, shared.ErrValidation)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"x","items":[2]}`))
	require.NoError(t, DecodeAndValidate(httptest.NewRecorder(), req, v, &dst))
}

package responses

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	pkgerrors "github.com/wildroots/wildroots-backend/pkg/errors"
	"github.com/wildroots/wildroots-backend/pkg/types"
)

func TestWriteSuccessStatus(t *testing.T) {
	w := httptest.NewRecorder()
	WriteSuccessStatus(w, http.StatusCreated, map[string]string{"donationId": "d-1"})

	require.Equal(t, http.StatusCreated, w.Code)
	require.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var body types.SuccessEnvelope
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	require.Equal(t, "d-1", body.Data.(map[string]any)["donationId"])
}

func TestWriteErrorValidationEchoesMessageAndDetails(t *testing.T) {
	w := httptest.NewRecorder()
	err := pkgerrors.New(pkgerrors.CodeValidation, "validation failed").
		WithDetails(map[string]string{"amount": "must be greater than or equal to 100"})
	WriteError(t.Context(), nil, w, err)

	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Empty(t, w.Header().Get("Retry-After"))

	var body types.ErrorEnvelope
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	require.Equal(t, string(pkgerrors.CodeValidation), body.Error.Code)
	require.Equal(t, "validation failed", body.Error.Message)
	require.False(t, body.Error.Retryable)
	require.NotNil(t, body.Error.Details)
}

func TestWriteErrorPreconditionIsRetryable(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(t.Context(), nil, w, pkgerrors.New(pkgerrors.CodePreconditionPending, "donation not yet known"))

	require.Equal(t, http.StatusConflict, w.Code)
	require.Equal(t, "5", w.Header().Get("Retry-After"))

	var body types.ErrorEnvelope
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	require.True(t, body.Error.Retryable)
	require.Equal(t, "donation not yet known", body.Error.Message)
}

func TestWriteErrorKeepsExistingRetryAfter(t *testing.T) {
	w := httptest.NewRecorder()
	w.Header().Set("Retry-After", "42")
	WriteError(t.Context(), nil, w, pkgerrors.New(pkgerrors.CodeRateLimit, "too many checkouts"))

	require.Equal(t, http.StatusTooManyRequests, w.Code)
	require.Equal(t, "42", w.Header().Get("Retry-After"))
}

func TestWriteErrorHidesInternalDetail(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(t.Context(), nil, w, errors.New("pq: password authentication failed"))

	require.Equal(t, http.StatusInternalServerError, w.Code)

	var body types.ErrorEnvelope
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	require.Equal(t, string(pkgerrors.CodeInternal), body.Error.Code)
	require.NotContains(t, body.Error.Message, "password")
	require.Nil(t, body.Error.Details)
}

func TestWriteErrorLedgerInconsistencyOmitsDetails(t *testing.T) {
	w := httptest.NewRecorder()
	err := pkgerrors.New(pkgerrors.CodeLedgerInconsistency, "refund exceeds donation").
		WithDetails(map[string]any{"amount": 500})
	WriteError(t.Context(), nil, w, err)

	require.Equal(t, http.StatusUnprocessableEntity, w.Code)

	var body types.ErrorEnvelope
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	require.Equal(t, "ledger inconsistency", body.Error.Message)
	require.Nil(t, body.Error.Details)
}

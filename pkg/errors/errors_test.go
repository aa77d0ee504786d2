package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetadataFor(t *testing.T) {
	tests := []struct {
		code      Code
		status    int
		retryable bool
		detailsOK bool
	}{
		{CodeValidation, http.StatusBadRequest, false, true},
		{CodeUnauthorized, http.StatusUnauthorized, false, false},
		{CodeNotFound, http.StatusNotFound, false, false},
		{CodeStateConflict, http.StatusUnprocessableEntity, false, true},
		{CodeIdempotency, http.StatusConflict, false, true},
		{CodeRateLimit, http.StatusTooManyRequests, false, false},
		{CodeTooLarge, http.StatusRequestEntityTooLarge, false, true},
		{CodeDependency, http.StatusServiceUnavailable, true, true},
		{CodePreconditionPending, http.StatusConflict, true, true},
		{CodeLedgerInconsistency, http.StatusUnprocessableEntity, false, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			meta := MetadataFor(tt.code)
			assert.Equal(t, tt.status, meta.HTTPStatus)
			assert.Equal(t, tt.retryable, meta.Retryable)
			assert.Equal(t, tt.detailsOK, meta.DetailsAllowed)
			assert.NotEmpty(t, meta.PublicMessage)
		})
	}

	assert.Equal(t, MetadataFor(CodeInternal), MetadataFor("SOMETHING_UNKNOWN"))
}

func TestWrapKeepsCause(t *testing.T) {
	cause := stdErrors.New("connection refused")
	wrapped := Wrap(CodeDependency, cause, "lock project")

	assert.ErrorIs(t, wrapped, cause)
	assert.Equal(t, "DEPENDENCY_ERROR: lock project: connection refused", wrapped.Error())
	assert.Equal(t, "VALIDATION_ERROR: amount required", New(CodeValidation, "amount required").Error())
	assert.Nil(t, Wrap(CodeInternal, nil, "x").Unwrap())

	details := map[string]any{"field": "amount"}
	typed := New(CodeValidation, "bad amount").WithDetails(details)
	assert.Equal(t, details, typed.Details())
}

func TestNilErrorIsSafe(t *testing.T) {
	var e *Error
	assert.Equal(t, CodeInternal, e.Code())
	assert.Empty(t, e.Message())
	assert.Empty(t, e.Error())
	assert.Nil(t, e.WithDetails("x"))
	assert.Nil(t, As(nil))
}

func TestIsCodeAndRetryableFollowWrappedChain(t *testing.T) {
	pending := fmt.Errorf("reconcile: %w", New(CodePreconditionPending, "donation still pending"))
	assert.True(t, IsCode(pending, CodePreconditionPending))
	assert.True(t, IsRetryable(pending))

	inconsistent := Wrap(CodeLedgerInconsistency, stdErrors.New("negative funding"), "refund rejected")
	assert.False(t, IsRetryable(inconsistent))

	plain := stdErrors.New("plain")
	assert.False(t, IsCode(plain, CodeInternal))
	assert.False(t, IsRetryable(plain))
}

func TestDumpCollectsChain(t *testing.T) {
	err := fmt.Errorf("outer: %w", Wrap(CodeDependency, stdErrors.New("db down"), "lock project"))

	dump := Dump(err)
	assert.Equal(t, CodeDependency, dump.Code)
	assert.True(t, dump.Retryable)
	assert.Len(t, dump.Chain, 3)
	assert.Equal(t, "db down", dump.Root)
	assert.Nil(t, dump.PG)

	assert.Equal(t, ErrorDump{}, Dump(nil))
}

func TestDumpExtractsPostgresFields(t *testing.T) {
	pgxErr := Wrap(CodeConflict, &pgconn.PgError{Code: "23505", ConstraintName: "ux_donations_session_ref", TableName: "donations"}, "insert donation")
	dump := Dump(pgxErr)
	require.NotNil(t, dump.PG)
	assert.Equal(t, "23505", dump.PG.Code)
	assert.Equal(t, "ux_donations_session_ref", dump.PG.Constraint)
	assert.Equal(t, "donations", dump.PG.Table)

	pqErr := fmt.Errorf("refund: %w", &pq.Error{Code: "40001", Table: "conservation_projects"})
	dump = Dump(pqErr)
	require.NotNil(t, dump.PG)
	assert.Equal(t, "40001", dump.PG.Code)
	assert.Equal(t, "conservation_projects", dump.PG.Table)
}

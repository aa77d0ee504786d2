package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/wildroots/wildroots-backend/api/responses"
	pkgerrors "github.com/wildroots/wildroots-backend/pkg/errors"
	"github.com/wildroots/wildroots-backend/pkg/logger"
)

// OperatorAuth admits requests carrying the configured operator bearer token.
func OperatorAuth(token string, logg *logger.Logger) func(http.Handler) http.Handler {
	expected := []byte(strings.TrimSpace(token))
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(expected) == 0 {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "operator access disabled"))
				return
			}
			raw := strings.TrimSpace(r.Header.Get("Authorization"))
			if len(raw) < 7 || !strings.EqualFold(raw[:7], "bearer ") {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "operator token required"))
				return
			}
			presented := []byte(strings.TrimSpace(raw[7:]))
			if subtle.ConstantTimeCompare(presented, expected) != 1 {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "operator token rejected"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

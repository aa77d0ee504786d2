package validators

import (
	"net/http"
	"strconv"
	"strings"

	pkgerrors "github.com/wildroots/wildroots-backend/pkg/errors"
	"github.com/wildroots/wildroots-backend/pkg/pagination"
)

// maxCursorLength bounds the opaque cursor before it reaches the decoder.
const maxCursorLength = 256

// ParsePageParams reads the donor wall's limit and cursor query parameters.
func ParsePageParams(r *http.Request) (pagination.Params, error) {
	limit, err := parseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
	if err != nil {
		return pagination.Params{}, err
	}

	cursor := strings.TrimSpace(r.URL.Query().Get("cursor"))
	if len(cursor) > maxCursorLength {
		return pagination.Params{}, pkgerrors.New(pkgerrors.CodeValidation, "cursor is too long").
			WithDetails(map[string]any{"field": "cursor", "max": maxCursorLength})
	}
	return pagination.Params{Limit: limit, Cursor: cursor}, nil
}

func parseQueryInt(r *http.Request, key string, fallback, lo, hi int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return fallback, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, key+" must be a whole number").
			WithDetails(map[string]any{"field": key})
	}
	if value < lo || value > hi {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, key+" is out of range").
			WithDetails(map[string]any{"field": key, "min": lo, "max": hi})
	}
	return value, nil
}

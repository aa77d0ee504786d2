package validators

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	pkgerrors "github.com/wildroots/wildroots-backend/pkg/errors"
	"github.com/wildroots/wildroots-backend/pkg/pagination"
)

func TestSanitizeText(t *testing.T) {
	require.Equal(t, "hello\nworld", SanitizeText("  hel\x00lo\nworld\x07 ", 0))
	require.Equal(t, "for the ot", SanitizeText("for the otters", 10))
	require.Equal(t, "ñandú", SanitizeText("ñandú salvaje", 5))
}

func TestSanitizeEmail(t *testing.T) {
	require.Equal(t, "donor@example.org", SanitizeEmail("  Donor@Example.ORG "))
}

func TestParsePageParams(t *testing.T) {
	params, err := ParsePageParams(httptest.NewRequest("GET", "/donations", nil))
	require.NoError(t, err)
	require.Equal(t, pagination.DefaultLimit, params.Limit)
	require.Empty(t, params.Cursor)

	params, err = ParsePageParams(httptest.NewRequest("GET", "/donations?limit=5&cursor=abc", nil))
	require.NoError(t, err)
	require.Equal(t, 5, params.Limit)
	require.Equal(t, "abc", params.Cursor)

	for _, query := range []string{"limit=zero", "limit=0", "limit=101", "cursor=" + strings.Repeat("a", 300)} {
		_, err := ParsePageParams(httptest.NewRequest("GET", "/donations?"+query, nil))
		require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), query)
	}
}

type pledge struct {
	Amount int64  `json:"amount" validate:"gte=100,cents"`
	Note   string `json:"note" validate:"max=5"`
}

func TestDecodeJSONBody(t *testing.T) {
	decode := func(body string) (pledge, error) {
		var dest pledge
		req := httptest.NewRequest("POST", "/donations/checkout", strings.NewReader(body))
		err := DecodeJSONBody(httptest.NewRecorder(), req, &dest)
		return dest, err
	}

	got, err := decode(`{"amount":2500,"note":"otter"}`)
	require.NoError(t, err)
	require.Equal(t, int64(2500), got.Amount)

	_, err = decode(`{"amount":2500,"extra":true}`)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = decode(`{"amount":2500}{"amount":1}`)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = decode(`{"amount":100000000}`)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	require.Contains(t, typed.Details(), "amount")

	_, err = decode(`{"amount":50,"note":"too long"}`)
	typed = pkgerrors.As(err)
	require.NotNil(t, typed)
	details, ok := typed.Details().(map[string]string)
	require.True(t, ok)
	require.Equal(t, "must be at least 100", details["amount"])
	require.Equal(t, "must be at most 5", details["note"])

	_, err = decode(`{"note":"` + strings.Repeat("a", MaxBodyBytes) + `"}`)
	typed = pkgerrors.As(err)
	require.NotNil(t, typed)
	require.Equal(t, "request body too large", typed.Message())
	require.Equal(t, pkgerrors.CodeTooLarge, typed.Code())
}

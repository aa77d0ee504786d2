package enums

import (
	"fmt"
	"strings"
)

// Currency is the ISO 4217 code a donation is charged in. The ledger only
// settles USD; other codes can still arrive on processor events and are kept
// verbatim so the reconciler can reject them.
type Currency string

const (
	CurrencyUSD Currency = "USD"
)

func (c Currency) String() string {
	return string(c)
}

func (c Currency) IsValid() bool {
	return c == CurrencyUSD
}

// Symbol is the display prefix for amounts, empty when the code is shown instead.
func (c Currency) Symbol() string {
	if c == CurrencyUSD {
		return "$"
	}
	return ""
}

// ParseCurrency accepts the lowercase codes processor payloads use.
func ParseCurrency(value string) (Currency, error) {
	c := Currency(strings.ToUpper(strings.TrimSpace(value)))
	if !c.IsValid() {
		return "", fmt.Errorf("unsupported currency %q", value)
	}
	return c, nil
}

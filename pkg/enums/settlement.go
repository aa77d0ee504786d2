package enums

import "fmt"

// SettlementEventType is the closed set of processor notifications the ledger understands.
type SettlementEventType string

const (
	SettlementCheckoutCompleted SettlementEventType = "checkout_completed"
	SettlementChargeSucceeded   SettlementEventType = "charge_succeeded"
	SettlementChargeFailed      SettlementEventType = "charge_failed"
	SettlementChargeRefunded    SettlementEventType = "charge_refunded"
	SettlementUnknown           SettlementEventType = "unknown"

	// SettlementFundingAdjustment is written by an operator rebuild, never by the processor.
	SettlementFundingAdjustment SettlementEventType = "funding_adjustment"
)

var validSettlementEventTypes = []SettlementEventType{
	SettlementCheckoutCompleted,
	SettlementChargeSucceeded,
	SettlementChargeFailed,
	SettlementChargeRefunded,
	SettlementUnknown,
	SettlementFundingAdjustment,
}

// String implements fmt.Stringer.
func (t SettlementEventType) String() string {
	return string(t)
}

// IsValid reports whether the value is a known SettlementEventType.
func (t SettlementEventType) IsValid() bool {
	for _, candidate := range validSettlementEventTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// AffectsFunding reports whether events of this type may move a project's total.
func (t SettlementEventType) AffectsFunding() bool {
	return t == SettlementChargeSucceeded || t == SettlementChargeRefunded || t == SettlementFundingAdjustment
}

// ParseSettlementEventType converts raw input into a SettlementEventType.
func ParseSettlementEventType(value string) (SettlementEventType, error) {
	for _, candidate := range validSettlementEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid settlement event type %q", value)
}

// SettlementOutcome records what the reconciler did with an event.
type SettlementOutcome string

const (
	SettlementOutcomeApplied   SettlementOutcome = "applied"
	SettlementOutcomeDuplicate SettlementOutcome = "duplicate"
	SettlementOutcomeRejected  SettlementOutcome = "rejected"
	SettlementOutcomeDeferred  SettlementOutcome = "deferred"
	SettlementOutcomeRecorded  SettlementOutcome = "recorded"
)

var validSettlementOutcomes = []SettlementOutcome{
	SettlementOutcomeApplied,
	SettlementOutcomeDuplicate,
	SettlementOutcomeRejected,
	SettlementOutcomeDeferred,
	SettlementOutcomeRecorded,
}

// String implements fmt.Stringer.
func (o SettlementOutcome) String() string {
	return string(o)
}

// IsValid reports whether the value is a known SettlementOutcome.
func (o SettlementOutcome) IsValid() bool {
	for _, candidate := range validSettlementOutcomes {
		if candidate == o {
			return true
		}
	}
	return false
}

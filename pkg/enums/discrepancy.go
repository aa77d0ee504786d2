package enums

import "fmt"

// DiscrepancyKind classifies entries in the ledger operator queue.
type DiscrepancyKind string

const (
	DiscrepancyFeeShortfall             DiscrepancyKind = "fee_shortfall"
	DiscrepancyRefundExceedsDonation    DiscrepancyKind = "refund_exceeds_donation"
	DiscrepancyNegativeFunding          DiscrepancyKind = "negative_funding"
	DiscrepancyPartialRefund            DiscrepancyKind = "partial_refund"
	DiscrepancyRefundBeforeCapture      DiscrepancyKind = "refund_before_capture"
	DiscrepancySucceededAfterFailure    DiscrepancyKind = "succeeded_after_failure"
	DiscrepancyAmountBelowProjectAmount DiscrepancyKind = "amount_below_project_amount"
	DiscrepancyUnknownProject           DiscrepancyKind = "unknown_project"
	DiscrepancyFundingDrift             DiscrepancyKind = "funding_drift"
	DiscrepancyDuplicateCapture         DiscrepancyKind = "duplicate_capture"
	DiscrepancyUncreditedRefund         DiscrepancyKind = "uncredited_refund"
)

var validDiscrepancyKinds = []DiscrepancyKind{
	DiscrepancyFeeShortfall,
	DiscrepancyRefundExceedsDonation,
	DiscrepancyNegativeFunding,
	DiscrepancyPartialRefund,
	DiscrepancyRefundBeforeCapture,
	DiscrepancySucceededAfterFailure,
	DiscrepancyAmountBelowProjectAmount,
	DiscrepancyUnknownProject,
	DiscrepancyFundingDrift,
	DiscrepancyDuplicateCapture,
	DiscrepancyUncreditedRefund,
}

// String implements fmt.Stringer.
func (k DiscrepancyKind) String() string {
	return string(k)
}

// IsValid reports whether the value is a known DiscrepancyKind.
func (k DiscrepancyKind) IsValid() bool {
	for _, candidate := range validDiscrepancyKinds {
		if candidate == k {
			return true
		}
	}
	return false
}

// ParseDiscrepancyKind converts raw input into a DiscrepancyKind.
func ParseDiscrepancyKind(value string) (DiscrepancyKind, error) {
	for _, candidate := range validDiscrepancyKinds {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid discrepancy kind %q", value)
}

type DiscrepancyStatus string

const (
	DiscrepancyStatusOpen     DiscrepancyStatus = "open"
	DiscrepancyStatusResolved DiscrepancyStatus = "resolved"
)

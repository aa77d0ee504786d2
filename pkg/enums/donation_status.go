package enums

import "fmt"

// DonationStatus maps to the donation_status enum in Postgres.
type DonationStatus string

const (
	DonationStatusPending   DonationStatus = "pending"
	DonationStatusCompleted DonationStatus = "completed"
	DonationStatusFailed    DonationStatus = "failed"
	DonationStatusRefunded  DonationStatus = "refunded"
)

var validDonationStatuses = []DonationStatus{
	DonationStatusPending,
	DonationStatusCompleted,
	DonationStatusFailed,
	DonationStatusRefunded,
}

// String implements fmt.Stringer.
func (s DonationStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known DonationStatus.
func (s DonationStatus) IsValid() bool {
	for _, candidate := range validDonationStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the donation has left pending.
func (s DonationStatus) IsTerminal() bool {
	return s == DonationStatusCompleted || s == DonationStatusFailed || s == DonationStatusRefunded
}

// CanTransitionTo reports whether next is a legal successor of s.
// Only pending -> completed|failed and completed -> refunded are allowed.
func (s DonationStatus) CanTransitionTo(next DonationStatus) bool {
	switch s {
	case DonationStatusPending:
		return next == DonationStatusCompleted || next == DonationStatusFailed
	case DonationStatusCompleted:
		return next == DonationStatusRefunded
	default:
		return false
	}
}

// ParseDonationStatus converts raw input into a DonationStatus.
func ParseDonationStatus(value string) (DonationStatus, error) {
	for _, candidate := range validDonationStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid donation status %q", value)
}

// DonorDonationStatus is the donor-facing rendition of a donation's state.
type DonorDonationStatus string

const (
	DonorStatusProcessing DonorDonationStatus = "processing"
	DonorStatusThankYou   DonorDonationStatus = "thank_you"
	DonorStatusFailed     DonorDonationStatus = "failed"
	DonorStatusRefunded   DonorDonationStatus = "refunded"
)

// DonorStatusFor maps the ledger status onto what a donor is shown.
func DonorStatusFor(status DonationStatus) DonorDonationStatus {
	switch status {
	case DonationStatusCompleted:
		return DonorStatusThankYou
	case DonationStatusFailed:
		return DonorStatusFailed
	case DonationStatusRefunded:
		return DonorStatusRefunded
	default:
		return DonorStatusProcessing
	}
}

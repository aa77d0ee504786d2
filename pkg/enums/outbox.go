package enums

import "fmt"

// OutboxAggregateType maps to the aggregate_type enum in Postgres.
type OutboxAggregateType string

const (
	AggregateDonation    OutboxAggregateType = "donation"
	AggregateProject     OutboxAggregateType = "project"
	AggregateDiscrepancy OutboxAggregateType = "discrepancy"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateDonation,
	AggregateProject,
	AggregateDiscrepancy,
}

// IsValid reports whether the value matches the canonical aggregate_type enum.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	for _, candidate := range validAggregateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType maps to the event_type enum in Postgres.
type OutboxEventType string

const (
	EventDonationCompleted     OutboxEventType = "donation_completed"
	EventDonationFailed        OutboxEventType = "donation_failed"
	EventDonationRefunded      OutboxEventType = "donation_refunded"
	EventProjectStatusChanged  OutboxEventType = "project_status_changed"
	EventProjectFundingRebuilt OutboxEventType = "project_funding_rebuilt"
	EventDiscrepancyRecorded   OutboxEventType = "ledger_discrepancy_recorded"
)

var validOutboxEventTypes = []OutboxEventType{
	EventDonationCompleted,
	EventDonationFailed,
	EventDonationRefunded,
	EventProjectStatusChanged,
	EventProjectFundingRebuilt,
	EventDiscrepancyRecorded,
}

// IsValid reports whether the value matches the canonical event_type enum.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}

// OutboxDLQErrorReason records why the publisher parked an event.
type OutboxDLQErrorReason string

const (
	OutboxDLQReasonMaxAttempts  OutboxDLQErrorReason = "max_attempts"
	OutboxDLQReasonNonRetryable OutboxDLQErrorReason = "non_retryable"
)

func (r OutboxDLQErrorReason) IsValid() bool {
	switch r {
	case OutboxDLQReasonMaxAttempts, OutboxDLQReasonNonRetryable:
		return true
	}
	return false
}

package payloads

import (
	"time"

	"github.com/google/uuid"

	"github.com/wildroots/wildroots-backend/pkg/enums"
)

// DonationCompletedEvent is emitted when a capture is applied to a project.
type DonationCompletedEvent struct {
	DonationID        uuid.UUID  `json:"donation_id"`
	ProjectID         uuid.UUID  `json:"project_id"`
	DonorUserID       *uuid.UUID `json:"donor_user_id,omitempty"`
	ExternalChargeRef string     `json:"external_charge_ref"`
	AmountCents       int64      `json:"amount_cents"`
	ProjectAmount     int64      `json:"project_amount_cents"`
	SiteTipCents      int64      `json:"site_tip_cents"`
	ActualSiteTip     *int64     `json:"actual_site_tip_cents,omitempty"`
	Currency          string     `json:"currency"`
	CompletedAt       time.Time  `json:"completed_at"`
}

// DonationFailedEvent is emitted when a pending donation fails.
type DonationFailedEvent struct {
	DonationID        uuid.UUID `json:"donation_id"`
	ProjectID         uuid.UUID `json:"project_id"`
	ExternalChargeRef string    `json:"external_charge_ref"`
	FailedAt          time.Time `json:"failed_at"`
}

// DonationRefundedEvent is emitted after a full refund reverses project funding.
type DonationRefundedEvent struct {
	DonationID        uuid.UUID `json:"donation_id"`
	ProjectID         uuid.UUID `json:"project_id"`
	ExternalChargeRef string    `json:"external_charge_ref"`
	RefundedCents     int64     `json:"refunded_cents"`
	FundingDelta      int64     `json:"funding_delta_cents"`
	RefundedAt        time.Time `json:"refunded_at"`
}

// ProjectStatusChangedEvent reports an automatic or owner-driven status change.
type ProjectStatusChangedEvent struct {
	ProjectID      uuid.UUID           `json:"project_id"`
	From           enums.ProjectStatus `json:"from"`
	To             enums.ProjectStatus `json:"to"`
	CurrentFunding int64               `json:"current_funding_cents"`
	FundingGoal    int64               `json:"funding_goal_cents"`
	Reason         string              `json:"reason"`
}

// ProjectFundingRebuiltEvent reports that an operator rebuilt the cached counter.
type ProjectFundingRebuiltEvent struct {
	ProjectID     uuid.UUID `json:"project_id"`
	PreviousCents int64     `json:"previous_cents"`
	RebuiltCents  int64     `json:"rebuilt_cents"`
}

// DiscrepancyRecordedEvent notifies operators of a new reconciliation queue entry.
type DiscrepancyRecordedEvent struct {
	DiscrepancyID     uuid.UUID             `json:"discrepancy_id"`
	Kind              enums.DiscrepancyKind `json:"kind"`
	DonationID        *uuid.UUID            `json:"donation_id,omitempty"`
	ProjectID         *uuid.UUID            `json:"project_id,omitempty"`
	ExternalChargeRef *string               `json:"external_charge_ref,omitempty"`
	AmountCents       int64                 `json:"amount_cents"`
}

// Donation events are ordered with the project they fund, so a subscriber
// never sees a completion after the status change it caused.

func (e DonationCompletedEvent) PartitionKey() uuid.UUID { return e.ProjectID }
func (e DonationFailedEvent) PartitionKey() uuid.UUID    { return e.ProjectID }
func (e DonationRefundedEvent) PartitionKey() uuid.UUID  { return e.ProjectID }

func (e DiscrepancyRecordedEvent) PartitionKey() uuid.UUID {
	if e.ProjectID != nil {
		return *e.ProjectID
	}
	return e.DiscrepancyID
}

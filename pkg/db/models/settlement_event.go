package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/wildroots/wildroots-backend/pkg/enums"
	"github.com/wildroots/wildroots-backend/pkg/money"
)

// SettlementEvent is one immutable audit row per processor notification received.
// Amount, ProjectAmount and SiteTip are the estimates known at receipt time;
// the Actual* fields are filled once the processor reports the real fee.
type SettlementEvent struct {
	ID                   uuid.UUID                 `gorm:"column:id;type:uuid;primaryKey"`
	DonationID           *uuid.UUID                `gorm:"column:donation_id;type:uuid;index"`
	ProjectID            *uuid.UUID                `gorm:"column:project_id;type:uuid;index"`
	DonorUserID          *uuid.UUID                `gorm:"column:donor_user_id;type:uuid"`
	RecipientUserID      *uuid.UUID                `gorm:"column:recipient_user_id;type:uuid"`
	ExternalEventID      *string                   `gorm:"column:external_event_id"`
	ExternalChargeRef    string                    `gorm:"column:external_charge_ref;not null;index"`
	ExternalPaymentRef   *string                   `gorm:"column:external_payment_ref"`
	ExternalSessionRef   *string                   `gorm:"column:external_session_ref"`
	Amount               money.Cents               `gorm:"column:amount;not null;default:0"`
	ProjectAmount        money.Cents               `gorm:"column:project_amount;not null;default:0"`
	SiteTip              money.Cents               `gorm:"column:site_tip;not null;default:0"`
	ActualProcessingFee  *money.Cents              `gorm:"column:actual_processing_fee"`
	NetAmount            *money.Cents              `gorm:"column:net_amount"`
	ActualSiteTip        *money.Cents              `gorm:"column:actual_site_tip"`
	FundingDelta         money.Cents               `gorm:"column:funding_delta;not null;default:0"`
	Currency             enums.Currency            `gorm:"column:currency;type:text;not null;default:'USD'"`
	Status               string                    `gorm:"column:status"`
	PaymentMethodSummary *string                   `gorm:"column:payment_method_summary"`
	EventType            enums.SettlementEventType `gorm:"column:event_type;type:settlement_event_type_enum;not null"`
	Outcome              enums.SettlementOutcome   `gorm:"column:outcome;type:settlement_outcome_enum;not null"`
	PayloadHash          string                    `gorm:"column:payload_hash;not null"`
	PayloadChanged       bool                      `gorm:"column:payload_changed;not null;default:false"`
	RawEventPayload      datatypes.JSON            `gorm:"column:raw_event_payload;type:jsonb"`
	RawSettlementDetail  datatypes.JSON            `gorm:"column:raw_settlement_detail;type:jsonb"`
	CreatedAt            time.Time                 `gorm:"column:created_at;autoCreateTime"`
	ProcessedAt          *time.Time                `gorm:"column:processed_at"`
}

package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/wildroots/wildroots-backend/pkg/enums"
	"github.com/wildroots/wildroots-backend/pkg/money"
)

// Donation is one donor's intent to fund a project and its terminal outcome.
// Amounts are provisional while Status is pending.
type Donation struct {
	ID                 uuid.UUID            `gorm:"column:id;type:uuid;primaryKey"`
	ProjectID          uuid.UUID            `gorm:"column:project_id;type:uuid;not null;index"`
	UserID             *uuid.UUID           `gorm:"column:user_id;type:uuid"`
	Amount             money.Cents          `gorm:"column:amount;not null"`
	ProjectAmount      money.Cents          `gorm:"column:project_amount;not null"`
	SiteTip            money.Cents          `gorm:"column:site_tip;not null"`
	CoversFees         bool                 `gorm:"column:covers_fees;not null;default:false"`
	Currency           enums.Currency       `gorm:"column:currency;type:text;not null;default:'USD'"`
	ExternalSessionRef *string              `gorm:"column:external_session_ref;uniqueIndex:ux_donations_session_ref"`
	ExternalPaymentRef *string              `gorm:"column:external_payment_ref;uniqueIndex:ux_donations_payment_ref"`
	ExternalChargeRef  *string              `gorm:"column:external_charge_ref;index"`
	Status             enums.DonationStatus `gorm:"column:status;type:donation_status_enum;not null;default:'pending'"`
	DonorName          *string              `gorm:"column:donor_name"`
	DonorEmail         *string              `gorm:"column:donor_email"`
	Message            *string              `gorm:"column:message"`
	CreatedAt          time.Time            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time            `gorm:"column:updated_at;autoUpdateTime"`
	CompletedAt        *time.Time           `gorm:"column:completed_at"`
	FailedAt           *time.Time           `gorm:"column:failed_at"`
	RefundedAt         *time.Time           `gorm:"column:refunded_at"`
}

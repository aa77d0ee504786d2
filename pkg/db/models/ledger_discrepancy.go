package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/wildroots/wildroots-backend/pkg/enums"
	"github.com/wildroots/wildroots-backend/pkg/money"
)

// LedgerDiscrepancy is an entry in the operator queue for manual reconciliation.
type LedgerDiscrepancy struct {
	ID                uuid.UUID               `gorm:"column:id;type:uuid;primaryKey"`
	Kind              enums.DiscrepancyKind   `gorm:"column:kind;type:discrepancy_kind_enum;not null;uniqueIndex:ux_ledger_discrepancies_ref_kind,priority:2"`
	Status            enums.DiscrepancyStatus `gorm:"column:status;type:text;not null;default:'open'"`
	DonationID        *uuid.UUID              `gorm:"column:donation_id;type:uuid;index"`
	ProjectID         *uuid.UUID              `gorm:"column:project_id;type:uuid;index"`
	SettlementEventID *uuid.UUID              `gorm:"column:settlement_event_id;type:uuid"`
	ExternalChargeRef *string                 `gorm:"column:external_charge_ref;uniqueIndex:ux_ledger_discrepancies_ref_kind,priority:1"`
	Amount            money.Cents             `gorm:"column:amount;not null;default:0"`
	Detail            datatypes.JSON          `gorm:"column:detail;type:jsonb"`
	ResolutionNote    *string                 `gorm:"column:resolution_note"`
	CreatedAt         time.Time               `gorm:"column:created_at;autoCreateTime"`
	ResolvedAt        *time.Time              `gorm:"column:resolved_at"`
}

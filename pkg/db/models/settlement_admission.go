package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/wildroots/wildroots-backend/pkg/enums"
)

// SettlementAdmission marks that the funding effect for (ExternalChargeRef, EventType)
// has been applied. The composite unique index is the ledger's idempotency key.
type SettlementAdmission struct {
	ID                uuid.UUID                 `gorm:"column:id;type:uuid;primaryKey"`
	ExternalChargeRef string                    `gorm:"column:external_charge_ref;not null;uniqueIndex:ux_settlement_admissions_ref_type,priority:1"`
	EventType         enums.SettlementEventType `gorm:"column:event_type;type:settlement_event_type_enum;not null;uniqueIndex:ux_settlement_admissions_ref_type,priority:2"`
	PayloadHash       string                    `gorm:"column:payload_hash;not null"`
	SettlementEventID *uuid.UUID                `gorm:"column:settlement_event_id;type:uuid"`
	CreatedAt         time.Time                 `gorm:"column:created_at;autoCreateTime"`
}

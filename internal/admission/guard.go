// Package admission decides, inside the reconcile transaction, whether a
// settlement event's funding effect may be applied.
package admission

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/wildroots/wildroots-backend/pkg/db/models"
	"github.com/wildroots/wildroots-backend/pkg/enums"
)

// Key identifies one funding effect: a processor charge and the kind of event.
type Key struct {
	ExternalChargeRef string
	EventType         enums.SettlementEventType
	PayloadHash       string
}

func (k Key) validate() error {
	if k.ExternalChargeRef == "" {
		return errors.New("external charge ref is required")
	}
	if !k.EventType.IsValid() || k.EventType == enums.SettlementUnknown || k.EventType == enums.SettlementFundingAdjustment {
		return fmt.Errorf("event type %q cannot be admitted", k.EventType)
	}
	if k.PayloadHash == "" {
		return errors.New("payload hash is required")
	}
	return nil
}

// Decision reports the result of an admission attempt.
type Decision struct {
	Admitted       bool
	AdmissionID    uuid.UUID
	PayloadChanged bool
}

// Duplicate reports whether the key had already been admitted.
func (d Decision) Duplicate() bool { return !d.Admitted }

// Guard admits keys against the settlement_admissions unique constraint.
type Guard struct{}

// NewGuard returns a Guard.
func NewGuard() *Guard { return &Guard{} }

// Admit inserts the key with ON CONFLICT DO NOTHING. Zero affected rows means
// another transaction already admitted it; the admitted hash is then compared
// so replays carrying different content can be flagged.
func (g *Guard) Admit(ctx context.Context, tx *gorm.DB, key Key) (Decision, error) {
	if tx == nil {
		return Decision{}, errors.New("transaction required")
	}
	if err := key.validate(); err != nil {
		return Decision{}, err
	}

	row := models.SettlementAdmission{
		ExternalChargeRef: key.ExternalChargeRef,
		EventType:         key.EventType,
		PayloadHash:       key.PayloadHash,
	}
	res := tx.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "external_charge_ref"}, {Name: "event_type"}},
		DoNothing: true,
	}).Create(&row)
	if res.Error != nil {
		return Decision{}, fmt.Errorf("insert admission: %w", res.Error)
	}
	if res.RowsAffected == 1 {
		return Decision{Admitted: true, AdmissionID: row.ID}, nil
	}

	var existing models.SettlementAdmission
	if err := tx.WithContext(ctx).
		Where("external_charge_ref = ? AND event_type = ?", key.ExternalChargeRef, key.EventType).
		Take(&existing).Error; err != nil {
		return Decision{}, fmt.Errorf("load admitted key: %w", err)
	}
	return Decision{
		Admitted:       false,
		AdmissionID:    existing.ID,
		PayloadChanged: existing.PayloadHash != key.PayloadHash,
	}, nil
}

// Link records which audit row the admission produced. Duplicates keep the
// link to the row that was originally applied.
func (g *Guard) Link(ctx context.Context, tx *gorm.DB, admissionID, settlementEventID uuid.UUID) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	return tx.WithContext(ctx).Model(&models.SettlementAdmission{}).
		Where("id = ? AND settlement_event_id IS NULL", admissionID).
		Update("settlement_event_id", settlementEventID).Error
}

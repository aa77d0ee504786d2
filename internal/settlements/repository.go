package settlements

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/wildroots/wildroots-backend/pkg/db/models"
	"github.com/wildroots/wildroots-backend/pkg/money"
)

// Repository appends to and reads the settlement audit log. There is no
// update or delete: every notification received becomes one row.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Append(ctx context.Context, event *models.SettlementEvent) error
	ListByChargeRef(ctx context.Context, ref string) ([]models.SettlementEvent, error)
	ListByDonation(ctx context.Context, donationID uuid.UUID) ([]models.SettlementEvent, error)
	SumFundingDelta(ctx context.Context, projectID uuid.UUID) (money.Cents, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a settlement repository bound to db.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Append(ctx context.Context, event *models.SettlementEvent) error {
	return r.db.WithContext(ctx).Create(event).Error
}

func (r *repository) ListByChargeRef(ctx context.Context, ref string) ([]models.SettlementEvent, error) {
	var rows []models.SettlementEvent
	err := r.db.WithContext(ctx).
		Where("external_charge_ref = ?", ref).
		Order("created_at ASC").
		Order("id ASC").
		Find(&rows).Error
	return rows, err
}

func (r *repository) ListByDonation(ctx context.Context, donationID uuid.UUID) ([]models.SettlementEvent, error) {
	var rows []models.SettlementEvent
	err := r.db.WithContext(ctx).
		Where("donation_id = ?", donationID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&rows).Error
	return rows, err
}

// SumFundingDelta totals the signed funding effects recorded for a project.
func (r *repository) SumFundingDelta(ctx context.Context, projectID uuid.UUID) (money.Cents, error) {
	var total int64
	err := r.db.WithContext(ctx).
		Model(&models.SettlementEvent{}).
		Select("COALESCE(SUM(funding_delta), 0)").
		Where("project_id = ?", projectID).
		Scan(&total).Error
	return money.Cents(total), err
}

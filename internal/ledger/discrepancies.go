package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/wildroots/wildroots-backend/pkg/db/models"
	"github.com/wildroots/wildroots-backend/pkg/enums"
)

// DiscrepancyRepository persists the operator reconciliation queue.
type DiscrepancyRepository interface {
	WithTx(tx *gorm.DB) DiscrepancyRepository
	Record(ctx context.Context, discrepancy *models.LedgerDiscrepancy) (bool, error)
	FindOpenForProject(ctx context.Context, projectID uuid.UUID, kind enums.DiscrepancyKind) (*models.LedgerDiscrepancy, error)
	ListOpen(ctx context.Context, limit int) ([]models.LedgerDiscrepancy, error)
	Resolve(ctx context.Context, id uuid.UUID, note string, at time.Time) (bool, error)
}

type discrepancyRepository struct {
	db *gorm.DB
}

// NewDiscrepancyRepository returns a discrepancy repository bound to db.
func NewDiscrepancyRepository(db *gorm.DB) DiscrepancyRepository {
	return &discrepancyRepository{db: db}
}

func (r *discrepancyRepository) WithTx(tx *gorm.DB) DiscrepancyRepository {
	if tx == nil {
		return r
	}
	return &discrepancyRepository{db: tx}
}

// Record inserts the entry unless one already exists for the same charge and
// kind. It reports whether a new row was written.
func (r *discrepancyRepository) Record(ctx context.Context, discrepancy *models.LedgerDiscrepancy) (bool, error) {
	if discrepancy.Status == "" {
		discrepancy.Status = enums.DiscrepancyStatusOpen
	}
	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "external_charge_ref"}, {Name: "kind"}},
		DoNothing: true,
	}).Create(discrepancy)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *discrepancyRepository) FindOpenForProject(ctx context.Context, projectID uuid.UUID, kind enums.DiscrepancyKind) (*models.LedgerDiscrepancy, error) {
	var row models.LedgerDiscrepancy
	err := r.db.WithContext(ctx).
		Where("project_id = ? AND kind = ? AND status = ?", projectID, kind, enums.DiscrepancyStatusOpen).
		Order("created_at DESC").
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

func (r *discrepancyRepository) ListOpen(ctx context.Context, limit int) ([]models.LedgerDiscrepancy, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []models.LedgerDiscrepancy
	err := r.db.WithContext(ctx).
		Where("status = ?", enums.DiscrepancyStatusOpen).
		Order("created_at ASC").
		Order("id ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

func (r *discrepancyRepository) Resolve(ctx context.Context, id uuid.UUID, note string, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.LedgerDiscrepancy{}).
		Where("id = ? AND status = ?", id, enums.DiscrepancyStatusOpen).
		Updates(map[string]any{
			"status":          enums.DiscrepancyStatusResolved,
			"resolution_note": note,
			"resolved_at":     at,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

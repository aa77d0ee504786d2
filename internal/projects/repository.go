package projects

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/wildroots/wildroots-backend/pkg/db/models"
	"github.com/wildroots/wildroots-backend/pkg/enums"
	"github.com/wildroots/wildroots-backend/pkg/money"
)

// Repository persists the funding slice of conservation projects. Funding is
// only ever changed with single-statement arithmetic so concurrent
// reconcilers cannot lose an update.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, project *models.ConservationProject) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.ConservationProject, error)
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.ConservationProject, error)
	IncrementFunding(ctx context.Context, id uuid.UUID, amount money.Cents) error
	DecrementFunding(ctx context.Context, id uuid.UUID, amount money.Cents) (bool, error)
	SetFunding(ctx context.Context, id uuid.UUID, amount money.Cents) error
	UpdateStatus(ctx context.Context, id uuid.UUID, from enums.ProjectStatus, updates map[string]any) (bool, error)
	ListIDs(ctx context.Context, after uuid.UUID, limit int) ([]uuid.UUID, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a project repository bound to db.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, project *models.ConservationProject) error {
	return r.db.WithContext(ctx).Create(project).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.ConservationProject, error) {
	return r.find(r.db.WithContext(ctx), id)
}

func (r *repository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.ConservationProject, error) {
	return r.find(r.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), id)
}

func (r *repository) find(q *gorm.DB, id uuid.UUID) (*models.ConservationProject, error) {
	var project models.ConservationProject
	if err := q.Where("id = ?", id).Take(&project).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &project, nil
}

func (r *repository) IncrementFunding(ctx context.Context, id uuid.UUID, amount money.Cents) error {
	res := r.db.WithContext(ctx).
		Model(&models.ConservationProject{}).
		Where("id = ?", id).
		Update("current_funding", gorm.Expr("current_funding + ?", int64(amount)))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// DecrementFunding subtracts amount only if the result stays non-negative.
// It returns false, with no change, when the guard refuses.
func (r *repository) DecrementFunding(ctx context.Context, id uuid.UUID, amount money.Cents) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.ConservationProject{}).
		Where("id = ? AND current_funding >= ?", id, int64(amount)).
		Update("current_funding", gorm.Expr("current_funding - ?", int64(amount)))
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// SetFunding overwrites the cached counter. Only the rebuild path uses it.
func (r *repository) SetFunding(ctx context.Context, id uuid.UUID, amount money.Cents) error {
	if amount < 0 {
		return money.ErrNegative
	}
	return r.db.WithContext(ctx).
		Model(&models.ConservationProject{}).
		Where("id = ?", id).
		Update("current_funding", int64(amount)).Error
}

// UpdateStatus applies updates only while the project is still in from.
func (r *repository) UpdateStatus(ctx context.Context, id uuid.UUID, from enums.ProjectStatus, updates map[string]any) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.ConservationProject{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) ListIDs(ctx context.Context, after uuid.UUID, limit int) ([]uuid.UUID, error) {
	if limit <= 0 {
		limit = 100
	}
	q := r.db.WithContext(ctx).Model(&models.ConservationProject{}).Order("id ASC").Limit(limit)
	if after != uuid.Nil {
		q = q.Where("id > ?", after)
	}
	var ids []uuid.UUID
	if err := q.Pluck("id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

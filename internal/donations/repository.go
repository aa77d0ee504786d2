package donations

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/wildroots/wildroots-backend/pkg/db/models"
	"github.com/wildroots/wildroots-backend/pkg/enums"
	"github.com/wildroots/wildroots-backend/pkg/money"
	"github.com/wildroots/wildroots-backend/pkg/pagination"
)

// Repository persists donations. The ForUpdate finders take a row lock and
// must be called on a repository bound to an open transaction.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, donation *models.Donation) error
	Update(ctx context.Context, donation *models.Donation) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Donation, error)
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Donation, error)
	FindBySessionRefForUpdate(ctx context.Context, ref string) (*models.Donation, error)
	FindByPaymentRefForUpdate(ctx context.Context, ref string) (*models.Donation, error)
	FindByChargeRefForUpdate(ctx context.Context, ref string) (*models.Donation, error)
	ListCompletedByProject(ctx context.Context, params listCompletedParams) ([]publicDonationRow, *pagination.Cursor, error)
	SumCompletedProjectAmount(ctx context.Context, projectID uuid.UUID) (money.Cents, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a donation repository bound to db.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

type listCompletedParams struct {
	ProjectID uuid.UUID
	Limit     int
	Cursor    *pagination.Cursor
}

// publicDonationRow is a completed donation joined with its donor account, if any.
type publicDonationRow struct {
	ID              uuid.UUID
	UserID          *uuid.UUID
	ProjectAmount   money.Cents
	DonorName       *string
	Message         *string
	CompletedAt     time.Time
	UserDisplayName *string
	UserFirstName   *string
	UserLastName    *string
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, donation *models.Donation) error {
	return r.db.WithContext(ctx).Create(donation).Error
}

func (r *repository) Update(ctx context.Context, donation *models.Donation) error {
	return r.db.WithContext(ctx).Save(donation).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Donation, error) {
	return r.first(r.db.WithContext(ctx).Where("id = ?", id))
}

func (r *repository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Donation, error) {
	return r.first(r.locked(ctx).Where("id = ?", id))
}

func (r *repository) FindBySessionRefForUpdate(ctx context.Context, ref string) (*models.Donation, error) {
	return r.first(r.locked(ctx).Where("external_session_ref = ?", ref))
}

func (r *repository) FindByPaymentRefForUpdate(ctx context.Context, ref string) (*models.Donation, error) {
	return r.first(r.locked(ctx).Where("external_payment_ref = ?", ref))
}

func (r *repository) FindByChargeRefForUpdate(ctx context.Context, ref string) (*models.Donation, error) {
	return r.first(r.locked(ctx).Where("external_charge_ref = ?", ref))
}

func (r *repository) locked(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"})
}

func (r *repository) first(q *gorm.DB) (*models.Donation, error) {
	var donation models.Donation
	if err := q.First(&donation).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &donation, nil
}

func (r *repository) ListCompletedByProject(ctx context.Context, params listCompletedParams) ([]publicDonationRow, *pagination.Cursor, error) {
	limit := pagination.LimitWithBuffer(params.Limit)

	query := r.db.WithContext(ctx).
		Table("donations").
		Select(`donations.id, donations.user_id, donations.project_amount, donations.donor_name,
			donations.message, donations.completed_at,
			users.display_name AS user_display_name, users.first_name AS user_first_name,
			users.last_name AS user_last_name`).
		Joins("LEFT JOIN users ON users.id = donations.user_id").
		Where("donations.project_id = ? AND donations.status = ?", params.ProjectID, enums.DonationStatusCompleted)
	if params.Cursor != nil {
		query = query.Where("(donations.completed_at, donations.id) < (?, ?)", params.Cursor.At, params.Cursor.ID)
	}

	var rows []publicDonationRow
	if err := query.Order("donations.completed_at DESC, donations.id DESC").Limit(limit).Scan(&rows).Error; err != nil {
		return nil, nil, err
	}

	page, next := pagination.Trim(rows, params.Limit, func(row publicDonationRow) pagination.Cursor {
		return pagination.Cursor{At: row.CompletedAt, ID: row.ID}
	})
	return page, next, nil
}

// SumCompletedProjectAmount is the authoritative funding total derived from donations.
func (r *repository) SumCompletedProjectAmount(ctx context.Context, projectID uuid.UUID) (money.Cents, error) {
	var total int64
	err := r.db.WithContext(ctx).
		Model(&models.Donation{}).
		Select("COALESCE(SUM(project_amount), 0)").
		Where("project_id = ? AND status = ?", projectID, enums.DonationStatusCompleted).
		Scan(&total).Error
	return money.Cents(total), err
}

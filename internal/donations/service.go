package donations

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/wildroots/wildroots-backend/pkg/db"
	"github.com/wildroots/wildroots-backend/pkg/db/models"
	"github.com/wildroots/wildroots-backend/pkg/enums"
	pkgerrors "github.com/wildroots/wildroots-backend/pkg/errors"
	"github.com/wildroots/wildroots-backend/pkg/logger"
	"github.com/wildroots/wildroots-backend/pkg/money"
	"github.com/wildroots/wildroots-backend/pkg/pagination"
	"github.com/wildroots/wildroots-backend/pkg/stripe"
)

const sessionRefConstraint = "ux_donations_session_ref"

const failedDonationMessage = "We couldn't process this payment and no charge was made. Please try again."

// SessionCreator opens hosted checkout sessions with the payment processor.
type SessionCreator interface {
	CreateCheckoutSession(ctx context.Context, req stripe.CheckoutSessionRequest) (*stripe.CheckoutSession, error)
}

// ProjectReader loads the project a checkout targets.
type ProjectReader interface {
	Get(ctx context.Context, id uuid.UUID) (*models.ConservationProject, error)
}

// CheckoutInput is the donor's checkout request.
type CheckoutInput struct {
	ProjectID  uuid.UUID `validate:"required"`
	Amount     int64     `validate:"gte=100"`
	SiteTip    int64     `validate:"gte=0"`
	CoversFees bool
	UserID     *uuid.UUID
	DonorName  string `validate:"max=120"`
	DonorEmail string `validate:"omitempty,email,max=254"`
	Message    string `validate:"max=1000"`
}

// CheckoutResult is returned to the client to redirect into hosted checkout.
type CheckoutResult struct {
	DonationID  uuid.UUID `json:"donationId"`
	SessionID   string    `json:"sessionId"`
	CheckoutURL string    `json:"checkoutUrl"`
}

// DonorStatus is what the donor sees while and after the payment settles.
type DonorStatus struct {
	DonationID    uuid.UUID                 `json:"donationId"`
	ProjectID     uuid.UUID                 `json:"projectId"`
	Status        enums.DonorDonationStatus `json:"status"`
	ProjectAmount money.Cents               `json:"projectAmount"`
	Message       string                    `json:"message,omitempty"`
}

// PublicDonation is one entry on a project's public donor wall.
type PublicDonation struct {
	DonorName     string      `json:"donorName"`
	ProjectAmount money.Cents `json:"projectAmount"`
	Message       *string     `json:"message,omitempty"`
	CompletedAt   time.Time   `json:"completedAt"`
}

// PublicDonationList wraps a page of public donations and the next cursor.
type PublicDonationList struct {
	Items  []PublicDonation `json:"items"`
	Cursor string           `json:"cursor"`
}

type ServiceParams struct {
	Repo       Repository
	Projects   ProjectReader
	Sessions   SessionCreator
	Fees       money.FeeSchedule
	SuccessURL string
	CancelURL  string
	Logger     *logger.Logger
	Validator  *validator.Validate
}

type Service struct {
	repo       Repository
	projects   ProjectReader
	sessions   SessionCreator
	fees       money.FeeSchedule
	successURL string
	cancelURL  string
	logg       *logger.Logger
	validate   *validator.Validate
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, errors.New("donation repository required")
	}
	if params.Projects == nil {
		return nil, errors.New("project reader required")
	}
	v := params.Validator
	if v == nil {
		v = validator.New()
	}
	return &Service{
		repo:       params.Repo,
		projects:   params.Projects,
		sessions:   params.Sessions,
		fees:       params.Fees,
		successURL: params.SuccessURL,
		cancelURL:  params.CancelURL,
		logg:       params.Logger,
		validate:   v,
	}, nil
}

// CreateCheckout opens a processor checkout session and records the pending
// donation it will settle. Amounts stay provisional until the charge settles.
func (s *Service) CreateCheckout(ctx context.Context, input CheckoutInput) (*CheckoutResult, error) {
	if s.sessions == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "checkout is not configured")
	}
	if err := s.validate.StructCtx(ctx, input); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid checkout request")
	}

	project, err := s.projects.Get(ctx, input.ProjectID)
	if err != nil {
		return nil, err
	}
	if !project.Status.AcceptsDonations() {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "project is not accepting donations").
			WithDetails(map[string]any{"status": project.Status})
	}

	projectAmount := money.Cents(input.Amount)
	siteTip, err := s.tipWithFees(projectAmount, money.Cents(input.SiteTip), input.CoversFees)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid donation amounts")
	}
	total, err := money.Add(projectAmount, siteTip)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid donation amounts")
	}

	donation := &models.Donation{
		ID:            uuid.New(),
		ProjectID:     project.ID,
		UserID:        input.UserID,
		Amount:        total,
		ProjectAmount: projectAmount,
		SiteTip:       siteTip,
		CoversFees:    input.CoversFees,
		Currency:      enums.CurrencyUSD,
		Status:        enums.DonationStatusPending,
		DonorName:     optional(input.DonorName),
		DonorEmail:    optional(input.DonorEmail),
		Message:       optional(input.Message),
	}

	session, err := s.sessions.CreateCheckoutSession(ctx, stripe.CheckoutSessionRequest{
		DonationID:    donation.ID,
		ProjectID:     project.ID,
		UserID:        input.UserID,
		ProjectTitle:  project.Title,
		Amount:        total,
		ProjectAmount: projectAmount,
		CoversFees:    input.CoversFees,
		DonorEmail:    input.DonorEmail,
		SuccessURL:    s.successURL,
		CancelURL:     s.cancelURL,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create checkout session")
	}
	donation.ExternalSessionRef = &session.ID

	if err := s.repo.Create(ctx, donation); err != nil {
		if db.IsUniqueViolation(err, sessionRefConstraint) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeConflict, err, "checkout session already recorded")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create pending donation")
	}

	if s.logg != nil {
		logCtx := s.logg.WithDonationID(ctx, donation.ID.String())
		logCtx = s.logg.WithProjectID(logCtx, project.ID.String())
		logCtx = s.logg.WithFields(logCtx, map[string]any{
			"amount":         int64(total),
			"project_amount": int64(projectAmount),
			"site_tip":       int64(siteTip),
			"session_id":     session.ID,
		})
		s.logg.Info(logCtx, "checkout session created")
	}

	return &CheckoutResult{
		DonationID:  donation.ID,
		SessionID:   session.ID,
		CheckoutURL: session.URL,
	}, nil
}

// tipWithFees adds the estimated processing surcharge to the tip when the
// donor opts to cover fees, so the project amount is never what absorbs it.
func (s *Service) tipWithFees(projectAmount, tip money.Cents, coversFees bool) (money.Cents, error) {
	if !coversFees {
		return tip, nil
	}
	base, err := money.Add(projectAmount, tip)
	if err != nil {
		return 0, err
	}
	gross, err := money.GrossUp(base, s.fees)
	if err != nil {
		return 0, err
	}
	return money.Add(tip, gross-base)
}

// DonorStatus reports the donor-visible state of a donation.
func (s *Service) DonorStatus(ctx context.Context, donationID uuid.UUID) (*DonorStatus, error) {
	if donationID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "donation id required")
	}
	donation, err := s.repo.FindByID(ctx, donationID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load donation")
	}
	if donation == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "donation not found")
	}

	status := &DonorStatus{
		DonationID:    donation.ID,
		ProjectID:     donation.ProjectID,
		Status:        enums.DonorStatusFor(donation.Status),
		ProjectAmount: donation.ProjectAmount,
	}
	if status.Status == enums.DonorStatusFailed {
		status.Message = failedDonationMessage
	}
	return status, nil
}

// PublicDonations lists a project's completed donations, newest first.
func (s *Service) PublicDonations(ctx context.Context, projectID uuid.UUID, params pagination.Params) (*PublicDonationList, error) {
	if _, err := s.projects.Get(ctx, projectID); err != nil {
		return nil, err
	}

	query := listCompletedParams{ProjectID: projectID, Limit: params.Limit}
	if params.Cursor != "" {
		cursor, err := pagination.ParseCursor(params.Cursor)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
		}
		query.Cursor = cursor
	}

	rows, next, err := s.repo.ListCompletedByProject(ctx, query)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list donations")
	}

	items := make([]PublicDonation, 0, len(rows))
	for _, row := range rows {
		items = append(items, PublicDonation{
			DonorName:     PublicDonorName(row),
			ProjectAmount: row.ProjectAmount,
			Message:       row.Message,
			CompletedAt:   row.CompletedAt,
		})
	}

	cursor := ""
	if next != nil {
		cursor = pagination.EncodeCursor(*next)
	}
	return &PublicDonationList{Items: items, Cursor: cursor}, nil
}

func optional(value string) *string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return &value
}

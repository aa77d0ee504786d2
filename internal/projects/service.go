package projects

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/wildroots/wildroots-backend/pkg/db/models"
	"github.com/wildroots/wildroots-backend/pkg/enums"
	pkgerrors "github.com/wildroots/wildroots-backend/pkg/errors"
	"github.com/wildroots/wildroots-backend/pkg/logger"
	"github.com/wildroots/wildroots-backend/pkg/money"
	"github.com/wildroots/wildroots-backend/pkg/outbox"
	"github.com/wildroots/wildroots-backend/pkg/outbox/payloads"
)

// Reasons attached to project_status_changed events.
const (
	ReasonFundingReached  = "funding_reached"
	ReasonFundingReverted = "funding_below_goal"
	ReasonRebuild         = "funding_rebuilt"
	ReasonOwnerComplete   = "owner_complete"
	ReasonOwnerPause      = "owner_pause"
	ReasonOwnerResume     = "owner_resume"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// FundingView is the public funding summary for a project.
type FundingView struct {
	ProjectID             uuid.UUID           `json:"projectId"`
	CurrentFunding        money.Cents         `json:"currentFunding"`
	FundingGoal           money.Cents         `json:"fundingGoal"`
	Status                enums.ProjectStatus `json:"status"`
	PercentFunded         string              `json:"percentFunded"`
	CurrentFundingDisplay string              `json:"currentFundingDisplay"`
	FundingGoalDisplay    string              `json:"fundingGoalDisplay"`
}

// Transition describes a status change applied to a project.
type Transition struct {
	ProjectID uuid.UUID
	From      enums.ProjectStatus
	To        enums.ProjectStatus
	Funding   money.Cents
	Goal      money.Cents
}

// Changed reports whether the status moved.
func (t Transition) Changed() bool { return t.From != t.To }

type ServiceParams struct {
	Repo              Repository
	TransactionRunner txRunner
	Outbox            outbox.Emitter
	Logger            *logger.Logger
}

type Service struct {
	repo   Repository
	tx     txRunner
	outbox outbox.Emitter
	logg   *logger.Logger
	now    func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, errors.New("project repository required")
	}
	if params.TransactionRunner == nil {
		return nil, errors.New("transaction runner required")
	}
	if params.Outbox == nil {
		return nil, errors.New("outbox emitter required")
	}
	return &Service{
		repo:   params.Repo,
		tx:     params.TransactionRunner,
		outbox: params.Outbox,
		logg:   params.Logger,
		now:    func() time.Time { return time.Now().UTC() },
	}, nil
}

// Get returns the project or a not-found error.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.ConservationProject, error) {
	project, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load project")
	}
	if project == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "project not found")
	}
	return project, nil
}

// Funding returns the cached funding summary.
func (s *Service) Funding(ctx context.Context, id uuid.UUID) (*FundingView, error) {
	project, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return NewFundingView(project), nil
}

// NewFundingView renders a project's funding for display.
func NewFundingView(project *models.ConservationProject) *FundingView {
	percent := decimal.Zero
	if project.FundingGoal > 0 {
		percent = decimal.NewFromInt(int64(project.CurrentFunding)).
			Mul(decimal.NewFromInt(100)).
			Div(decimal.NewFromInt(int64(project.FundingGoal)))
	}
	return &FundingView{
		ProjectID:             project.ID,
		CurrentFunding:        project.CurrentFunding,
		FundingGoal:           project.FundingGoal,
		Status:                project.Status,
		PercentFunded:         percent.StringFixed(2),
		CurrentFundingDisplay: money.Format(project.CurrentFunding, enums.CurrencyUSD),
		FundingGoalDisplay:    money.Format(project.FundingGoal, enums.CurrencyUSD),
	}
}

// Reevaluate locks the project, applies Evaluate to its current totals and
// persists any automatic transition. It must run inside the caller's
// transaction, after the funding counter has been adjusted.
func (s *Service) Reevaluate(ctx context.Context, tx *gorm.DB, projectID uuid.UUID) (Transition, error) {
	repo := s.repo.WithTx(tx)
	project, err := repo.FindByIDForUpdate(ctx, projectID)
	if err != nil {
		return Transition{}, err
	}
	if project == nil {
		return Transition{}, pkgerrors.New(pkgerrors.CodeNotFound, "project not found")
	}

	t := Transition{
		ProjectID: project.ID,
		From:      project.Status,
		To:        Evaluate(project.Status, project.CurrentFunding, project.FundingGoal),
		Funding:   project.CurrentFunding,
		Goal:      project.FundingGoal,
	}
	if !t.Changed() {
		return t, nil
	}

	reason := ReasonFundingReached
	if t.To == enums.ProjectStatusActive {
		reason = ReasonFundingReverted
	}
	if err := s.applyTransition(ctx, tx, t, map[string]any{"status": t.To}, reason); err != nil {
		return Transition{}, err
	}
	return t, nil
}

// Complete marks a funded project completed. Only the owner may do this and
// only from funded.
func (s *Service) Complete(ctx context.Context, projectID uuid.UUID) (*models.ConservationProject, error) {
	return s.ownerAction(ctx, projectID, ReasonOwnerComplete, func(p *models.ConservationProject) (enums.ProjectStatus, map[string]any, error) {
		if p.Status != enums.ProjectStatusFunded {
			return "", nil, pkgerrors.New(pkgerrors.CodeStateConflict, "only funded projects can be completed").
				WithDetails(map[string]any{"status": p.Status})
		}
		return enums.ProjectStatusCompleted, map[string]any{
			"status":       enums.ProjectStatusCompleted,
			"completed_at": s.now(),
		}, nil
	})
}

// Pause stops new checkouts for a project that is not completed.
func (s *Service) Pause(ctx context.Context, projectID uuid.UUID) (*models.ConservationProject, error) {
	return s.ownerAction(ctx, projectID, ReasonOwnerPause, func(p *models.ConservationProject) (enums.ProjectStatus, map[string]any, error) {
		switch p.Status {
		case enums.ProjectStatusCompleted:
			return "", nil, pkgerrors.New(pkgerrors.CodeStateConflict, "completed projects cannot be paused")
		case enums.ProjectStatusPaused:
			return "", nil, pkgerrors.New(pkgerrors.CodeStateConflict, "project is already paused")
		}
		return enums.ProjectStatusPaused, map[string]any{
			"status":    enums.ProjectStatusPaused,
			"paused_at": s.now(),
		}, nil
	})
}

// Resume returns a paused project to funded or active depending on its totals.
func (s *Service) Resume(ctx context.Context, projectID uuid.UUID) (*models.ConservationProject, error) {
	return s.ownerAction(ctx, projectID, ReasonOwnerResume, func(p *models.ConservationProject) (enums.ProjectStatus, map[string]any, error) {
		if p.Status != enums.ProjectStatusPaused {
			return "", nil, pkgerrors.New(pkgerrors.CodeStateConflict, "only paused projects can be resumed")
		}
		next := resumeTarget(p.CurrentFunding, p.FundingGoal)
		return next, map[string]any{
			"status":    next,
			"paused_at": nil,
		}, nil
	})
}

type ownerDecision func(p *models.ConservationProject) (enums.ProjectStatus, map[string]any, error)

func (s *Service) ownerAction(ctx context.Context, projectID uuid.UUID, reason string, decide ownerDecision) (*models.ConservationProject, error) {
	var updated *models.ConservationProject
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		project, err := repo.FindByIDForUpdate(ctx, projectID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load project")
		}
		if project == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "project not found")
		}

		next, updates, err := decide(project)
		if err != nil {
			return err
		}
		t := Transition{
			ProjectID: project.ID,
			From:      project.Status,
			To:        next,
			Funding:   project.CurrentFunding,
			Goal:      project.FundingGoal,
		}
		if err := s.applyTransition(ctx, tx, t, updates, reason); err != nil {
			return err
		}
		project.Status = next
		updated = project
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *Service) applyTransition(ctx context.Context, tx *gorm.DB, t Transition, updates map[string]any, reason string) error {
	ok, err := s.repo.WithTx(tx).UpdateStatus(ctx, t.ProjectID, t.From, updates)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update project status")
	}
	if !ok {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "project status changed concurrently")
	}

	if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventProjectStatusChanged,
		AggregateType: enums.AggregateProject,
		AggregateID:   t.ProjectID,
		Actor:         &outbox.ActorRef{Source: reason},
		Data: payloads.ProjectStatusChangedEvent{
			ProjectID:      t.ProjectID,
			From:           t.From,
			To:             t.To,
			CurrentFunding: int64(t.Funding),
			FundingGoal:    int64(t.Goal),
			Reason:         reason,
		},
	}); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit project status change")
	}

	if s.logg != nil {
		logCtx := s.logg.WithProjectID(ctx, t.ProjectID.String())
		logCtx = s.logg.WithFields(logCtx, map[string]any{"from": t.From, "to": t.To, "reason": reason})
		s.logg.Info(logCtx, "project status changed")
	}
	return nil
}

package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/wildroots/wildroots-backend/internal/donations"
	"github.com/wildroots/wildroots-backend/internal/projects"
	"github.com/wildroots/wildroots-backend/internal/settlements"
	"github.com/wildroots/wildroots-backend/pkg/db/models"
	"github.com/wildroots/wildroots-backend/pkg/enums"
	pkgerrors "github.com/wildroots/wildroots-backend/pkg/errors"
	"github.com/wildroots/wildroots-backend/pkg/logger"
	"github.com/wildroots/wildroots-backend/pkg/metrics"
	"github.com/wildroots/wildroots-backend/pkg/money"
	"github.com/wildroots/wildroots-backend/pkg/outbox"
	"github.com/wildroots/wildroots-backend/pkg/outbox/payloads"
)

const (
	defaultCheckBatch   = 200
	adjustmentRefPrefix = "rebuild:"
)

// ProjectBalance compares a project's cached counter with the two totals it
// must equal.
type ProjectBalance struct {
	ProjectID     uuid.UUID   `json:"projectId"`
	Cached        money.Cents `json:"cached"`
	FromDonations money.Cents `json:"fromDonations"`
	FromEvents    money.Cents `json:"fromEvents"`
	Flagged       bool        `json:"flagged"`
}

// Drift is how far the cached counter is from the donation-derived total.
func (b ProjectBalance) Drift() money.Cents {
	return money.Sub(b.Cached, b.FromDonations)
}

// Consistent reports whether all three totals agree.
func (b ProjectBalance) Consistent() bool {
	return b.Cached == b.FromDonations && b.Cached == b.FromEvents
}

// CheckReport summarizes a sweep across projects.
type CheckReport struct {
	Checked    int              `json:"checked"`
	Drifted    []ProjectBalance `json:"drifted"`
	DriftCents money.Cents      `json:"driftCents"`
}

type AuditorParams struct {
	TransactionRunner txRunner
	Donations         donations.Repository
	Projects          projects.Repository
	Evaluator         FundingEvaluator
	Settlements       settlements.Repository
	Discrepancies     DiscrepancyRepository
	Outbox            outbox.Emitter
	Metrics           *metrics.LedgerMetrics
	Logger            *logger.Logger
}

// Auditor checks and repairs cached project funding and serves the operator
// discrepancy queue.
type Auditor struct {
	tx            txRunner
	donations     donations.Repository
	projects      projects.Repository
	evaluator     FundingEvaluator
	settlements   settlements.Repository
	discrepancies DiscrepancyRepository
	outbox        outbox.Emitter
	metrics       *metrics.LedgerMetrics
	logg          *logger.Logger
	now           func() time.Time
}

func NewAuditor(params AuditorParams) (*Auditor, error) {
	switch {
	case params.TransactionRunner == nil:
		return nil, errors.New("transaction runner required")
	case params.Donations == nil:
		return nil, errors.New("donation repository required")
	case params.Projects == nil:
		return nil, errors.New("project repository required")
	case params.Evaluator == nil:
		return nil, errors.New("funding evaluator required")
	case params.Settlements == nil:
		return nil, errors.New("settlement repository required")
	case params.Discrepancies == nil:
		return nil, errors.New("discrepancy repository required")
	case params.Outbox == nil:
		return nil, errors.New("outbox emitter required")
	}
	return &Auditor{
		tx:            params.TransactionRunner,
		donations:     params.Donations,
		projects:      params.Projects,
		evaluator:     params.Evaluator,
		settlements:   params.Settlements,
		discrepancies: params.Discrepancies,
		outbox:        params.Outbox,
		metrics:       params.Metrics,
		logg:          params.Logger,
		now:           func() time.Time { return time.Now().UTC() },
	}, nil
}

// Check compares one project's totals and queues a funding_drift entry when
// they disagree and none is open yet. It never changes the counter. The
// project row is locked first so a reconcile cannot commit between the three
// reads.
func (a *Auditor) Check(ctx context.Context, projectID uuid.UUID) (*ProjectBalance, error) {
	var balance *ProjectBalance
	err := a.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		balance, err = a.balance(ctx, tx, projectID, true)
		if err != nil || balance.Consistent() {
			return err
		}

		discrepancies := a.discrepancies.WithTx(tx)
		open, err := discrepancies.FindOpenForProject(ctx, projectID, enums.DiscrepancyFundingDrift)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load open drift")
		}
		if open != nil {
			return nil
		}
		drift := balance.Drift()
		if drift.IsNegative() {
			drift = -drift
		}
		d := &models.LedgerDiscrepancy{
			Kind:      enums.DiscrepancyFundingDrift,
			Status:    enums.DiscrepancyStatusOpen,
			ProjectID: &balance.ProjectID,
			Amount:    drift,
			Detail: detailJSON(map[string]any{
				"cached":         int64(balance.Cached),
				"from_donations": int64(balance.FromDonations),
				"from_events":    int64(balance.FromEvents),
			}),
		}
		created, err := recordDiscrepancy(ctx, tx, a.discrepancies, a.outbox, d)
		balance.Flagged = created
		return err
	})
	if err != nil {
		return nil, err
	}

	if !balance.Consistent() && a.logg != nil {
		logCtx := a.logg.WithProjectID(ctx, projectID.String())
		logCtx = a.logg.WithFields(logCtx, map[string]any{
			"cached":         int64(balance.Cached),
			"from_donations": int64(balance.FromDonations),
			"from_events":    int64(balance.FromEvents),
		})
		a.logg.Warn(logCtx, "project funding drift detected")
	}
	if balance.Flagged && a.metrics != nil {
		a.metrics.IncDiscrepancy(enums.DiscrepancyFundingDrift.String())
	}
	return balance, nil
}

// CheckAll sweeps every project in id order, batch at a time. Per-project
// failures are collected and do not stop the sweep.
func (a *Auditor) CheckAll(ctx context.Context, batch int) (*CheckReport, error) {
	if batch <= 0 {
		batch = defaultCheckBatch
	}
	report := &CheckReport{}
	var errs error
	after := uuid.Nil
	for {
		if err := ctx.Err(); err != nil {
			return report, multierr.Append(errs, err)
		}
		ids, err := a.projects.ListIDs(ctx, after, batch)
		if err != nil {
			return report, multierr.Append(errs, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list projects"))
		}
		for _, id := range ids {
			balance, err := a.Check(ctx, id)
			if err != nil {
				errs = multierr.Append(errs, fmt.Errorf("project %s: %w", id, err))
				continue
			}
			report.Checked++
			if !balance.Consistent() {
				report.Drifted = append(report.Drifted, *balance)
				drift := balance.Drift()
				if drift.IsNegative() {
					drift = -drift
				}
				report.DriftCents += drift
			}
		}
		if len(ids) < batch {
			break
		}
		after = ids[len(ids)-1]
	}

	if a.metrics != nil {
		a.metrics.SetDriftProjects(len(report.Drifted))
		a.metrics.AddDriftCents(int64(report.DriftCents))
	}
	return report, errs
}

// Rebuild overwrites the cached counter with the donation-derived total,
// re-evaluates the project status and announces the rebuild. A
// funding_adjustment row brings the settlement log to the same total and
// records the counter correction.
func (a *Auditor) Rebuild(ctx context.Context, projectID uuid.UUID) (*ProjectBalance, error) {
	var balance *ProjectBalance
	err := a.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		balance, err = a.balance(ctx, tx, projectID, true)
		if err != nil {
			return err
		}
		if balance.Consistent() {
			return nil
		}
		if balance.Cached != balance.FromDonations {
			if err := a.projects.WithTx(tx).SetFunding(ctx, projectID, balance.FromDonations); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "rebuild project funding")
			}
			if _, err := a.evaluator.Reevaluate(ctx, tx, projectID); err != nil {
				return err
			}
		}
		if err := a.appendAdjustment(ctx, tx, balance); err != nil {
			return err
		}
		if err := a.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventProjectFundingRebuilt,
			AggregateType: enums.AggregateProject,
			AggregateID:   projectID,
			Actor:         &outbox.ActorRef{Source: "ledgerctl"},
			Data: payloads.ProjectFundingRebuiltEvent{
				ProjectID:     projectID,
				PreviousCents: int64(balance.Cached),
				RebuiltCents:  int64(balance.FromDonations),
			},
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit funding rebuilt")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if a.logg != nil {
		logCtx := a.logg.WithProjectID(ctx, projectID.String())
		logCtx = a.logg.WithFields(logCtx, map[string]any{
			"previous": int64(balance.Cached),
			"rebuilt":  int64(balance.FromDonations),
		})
		a.logg.Info(logCtx, "project funding rebuilt")
	}
	rebuilt := *balance
	rebuilt.Cached = balance.FromDonations
	rebuilt.FromEvents = balance.FromDonations
	return &rebuilt, nil
}

// appendAdjustment writes the audit row that justifies a rebuild. Its
// funding_delta is what the settlement log was missing.
func (a *Auditor) appendAdjustment(ctx context.Context, tx *gorm.DB, balance *ProjectBalance) error {
	detail, err := json.Marshal(map[string]any{
		"previous_cached":    int64(balance.Cached),
		"from_donations":     int64(balance.FromDonations),
		"from_events":        int64(balance.FromEvents),
		"counter_correction": int64(money.Sub(balance.FromDonations, balance.Cached)),
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode adjustment detail")
	}
	now := a.now()
	projectID := balance.ProjectID
	row := &models.SettlementEvent{
		ProjectID:           &projectID,
		ExternalChargeRef:   adjustmentRefPrefix + projectID.String(),
		EventType:           enums.SettlementFundingAdjustment,
		Outcome:             enums.SettlementOutcomeApplied,
		FundingDelta:        money.Sub(balance.FromDonations, balance.FromEvents),
		Currency:            enums.CurrencyUSD,
		Status:              "rebuilt",
		PayloadHash:         settlements.PayloadHash(detail),
		RawSettlementDetail: datatypes.JSON(detail),
		ProcessedAt:         &now,
	}
	if err := a.settlements.WithTx(tx).Append(ctx, row); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append funding adjustment")
	}
	return nil
}

func (a *Auditor) balance(ctx context.Context, tx *gorm.DB, projectID uuid.UUID, lock bool) (*ProjectBalance, error) {
	repo := a.projects.WithTx(tx)
	find := repo.FindByID
	if lock {
		find = repo.FindByIDForUpdate
	}
	project, err := find(ctx, projectID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load project")
	}
	if project == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "project not found")
	}
	fromDonations, err := a.donations.WithTx(tx).SumCompletedProjectAmount(ctx, projectID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sum donations")
	}
	fromEvents, err := a.settlements.WithTx(tx).SumFundingDelta(ctx, projectID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sum settlement deltas")
	}
	return &ProjectBalance{
		ProjectID:     projectID,
		Cached:        project.CurrentFunding,
		FromDonations: fromDonations,
		FromEvents:    fromEvents,
	}, nil
}

// OpenDiscrepancies lists the operator queue, oldest first.
func (a *Auditor) OpenDiscrepancies(ctx context.Context, limit int) ([]models.LedgerDiscrepancy, error) {
	rows, err := a.discrepancies.ListOpen(ctx, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list discrepancies")
	}
	return rows, nil
}

// ResolveDiscrepancy closes a queue entry with the operator's note.
func (a *Auditor) ResolveDiscrepancy(ctx context.Context, id uuid.UUID, note string) error {
	if note == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "resolution note required")
	}
	ok, err := a.discrepancies.Resolve(ctx, id, note, a.now())
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "resolve discrepancy")
	}
	if !ok {
		return pkgerrors.New(pkgerrors.CodeNotFound, "open discrepancy not found")
	}
	return nil
}

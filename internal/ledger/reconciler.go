// Package ledger applies settlement events to donations and project funding
// and keeps the cached funding counters honest.
package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/wildroots/wildroots-backend/internal/admission"
	"github.com/wildroots/wildroots-backend/internal/donations"
	"github.com/wildroots/wildroots-backend/internal/projects"
	"github.com/wildroots/wildroots-backend/internal/settlements"
	"github.com/wildroots/wildroots-backend/pkg/db"
	"github.com/wildroots/wildroots-backend/pkg/db/models"
	"github.com/wildroots/wildroots-backend/pkg/enums"
	pkgerrors "github.com/wildroots/wildroots-backend/pkg/errors"
	"github.com/wildroots/wildroots-backend/pkg/logger"
	"github.com/wildroots/wildroots-backend/pkg/metrics"
	"github.com/wildroots/wildroots-backend/pkg/money"
	"github.com/wildroots/wildroots-backend/pkg/outbox"
	"github.com/wildroots/wildroots-backend/pkg/outbox/payloads"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// FundingEvaluator re-derives a project's status after its counter moved.
type FundingEvaluator interface {
	Reevaluate(ctx context.Context, tx *gorm.DB, projectID uuid.UUID) (projects.Transition, error)
}

// Outcome summarizes what Reconcile did with one event.
type Outcome struct {
	Result            enums.SettlementOutcome
	DonationID        uuid.UUID
	ProjectID         uuid.UUID
	SettlementEventID uuid.UUID
	FundingDelta      money.Cents
	ProjectStatus     enums.ProjectStatus
	Discrepancy       enums.DiscrepancyKind
	PayloadChanged    bool

	flagged []enums.DiscrepancyKind
}

type ReconcilerParams struct {
	TransactionRunner txRunner
	Donations         donations.Repository
	Projects          projects.Repository
	Evaluator         FundingEvaluator
	Settlements       settlements.Repository
	Discrepancies     DiscrepancyRepository
	Guard             *admission.Guard
	Outbox            outbox.Emitter
	Metrics           *metrics.LedgerMetrics
	Logger            *logger.Logger
}

// Reconciler turns settlement events into donation, funding and audit changes.
type Reconciler struct {
	tx            txRunner
	donations     donations.Repository
	projects      projects.Repository
	evaluator     FundingEvaluator
	settlements   settlements.Repository
	discrepancies DiscrepancyRepository
	guard         *admission.Guard
	outbox        outbox.Emitter
	metrics       *metrics.LedgerMetrics
	logg          *logger.Logger
	now           func() time.Time
}

func NewReconciler(params ReconcilerParams) (*Reconciler, error) {
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
	guard := params.Guard
	if guard == nil {
		guard = admission.NewGuard()
	}
	return &Reconciler{
		tx:            params.TransactionRunner,
		donations:     params.Donations,
		projects:      params.Projects,
		evaluator:     params.Evaluator,
		settlements:   params.Settlements,
		discrepancies: params.Discrepancies,
		guard:         guard,
		outbox:        params.Outbox,
		metrics:       params.Metrics,
		logg:          params.Logger,
		now:           func() time.Time { return time.Now().UTC() },
	}, nil
}

// Reconcile applies one settlement event in a single transaction. Rejected
// events are recorded separately and reported as a rejected outcome with a
// nil error; retryable conditions come back as errors and commit nothing.
func (r *Reconciler) Reconcile(ctx context.Context, event settlements.Event) (Outcome, error) {
	if event == nil {
		return Outcome{}, pkgerrors.New(pkgerrors.CodeValidation, "settlement event required")
	}
	meta := event.Common()
	if r.logg != nil {
		ctx = r.logg.WithSettlement(ctx, event.Type().String(), meta.Ref())
		if meta.ExternalEventID != "" {
			ctx = r.logg.WithField(ctx, "event_id", meta.ExternalEventID)
		}
	}

	var outcome Outcome
	err := r.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		outcome, err = r.apply(ctx, tx, event)
		return err
	})
	if rejection, ok := asRejection(err); ok {
		return r.recordRejection(ctx, event, rejection)
	}
	if err != nil {
		return Outcome{}, r.fail(ctx, event, err)
	}

	r.observe(ctx, event, outcome)
	return outcome, nil
}

func (r *Reconciler) apply(ctx context.Context, tx *gorm.DB, event settlements.Event) (Outcome, error) {
	switch ev := event.(type) {
	case settlements.CheckoutCompleted:
		return r.applyCheckout(ctx, tx, ev)
	case settlements.ChargeSucceeded:
		return r.applyChargeSucceeded(ctx, tx, ev)
	case settlements.ChargeFailed:
		return r.applyChargeFailed(ctx, tx, ev)
	case settlements.ChargeRefunded:
		return r.applyRefund(ctx, tx, ev)
	case settlements.Unknown:
		return r.audit(ctx, tx, auditInput{event: ev, outcome: enums.SettlementOutcomeRecorded})
	default:
		return Outcome{}, pkgerrors.New(pkgerrors.CodeValidation, "unsupported settlement event")
	}
}

// resolveDonation finds and locks the donation an event refers to, trying
// the donation id metadata first and then each processor reference.
func (r *Reconciler) resolveDonation(ctx context.Context, tx *gorm.DB, meta settlements.Meta) (*models.Donation, error) {
	repo := r.donations.WithTx(tx)
	if meta.DonationID != nil {
		donation, err := repo.FindByIDForUpdate(ctx, *meta.DonationID)
		if err != nil || donation != nil {
			return donation, err
		}
	}
	lookups := []struct {
		ref  string
		find func(context.Context, string) (*models.Donation, error)
	}{
		{meta.ExternalSessionRef, repo.FindBySessionRefForUpdate},
		{meta.ExternalPaymentRef, repo.FindByPaymentRefForUpdate},
		{meta.ExternalChargeRef, repo.FindByChargeRefForUpdate},
	}
	for _, lookup := range lookups {
		if lookup.ref == "" {
			continue
		}
		donation, err := lookup.find(ctx, lookup.ref)
		if err != nil || donation != nil {
			return donation, err
		}
	}
	return nil, nil
}

func (r *Reconciler) admit(ctx context.Context, tx *gorm.DB, event settlements.Event) (admission.Decision, error) {
	return r.guard.Admit(ctx, tx, admission.Key{
		ExternalChargeRef: event.Common().Ref(),
		EventType:         event.Type(),
		PayloadHash:       settlements.PayloadHash(event.Common().RawPayload),
	})
}

type auditInput struct {
	event          settlements.Event
	donation       *models.Donation
	outcome        enums.SettlementOutcome
	delta          money.Cents
	payloadChanged bool
	fee            *settlements.FeeDetail
	paymentMethod  string
	admissionID    uuid.UUID
	transition     *projects.Transition
}

// audit appends the settlement row for the event and returns the outcome
// describing it. Every event that reaches a decision gets exactly one row.
func (r *Reconciler) audit(ctx context.Context, tx *gorm.DB, in auditInput) (Outcome, error) {
	meta := in.event.Common()
	now := r.now()
	row := &models.SettlementEvent{
		ExternalChargeRef: meta.Ref(),
		EventType:         in.event.Type(),
		Outcome:           in.outcome,
		FundingDelta:      in.delta,
		Currency:          meta.Currency,
		Status:            meta.Status,
		PayloadHash:       settlements.PayloadHash(meta.RawPayload),
		PayloadChanged:    in.payloadChanged,
		RawEventPayload:   rawJSON(meta.RawPayload),
		ProcessedAt:       &now,
	}
	if row.Currency == "" {
		row.Currency = enums.CurrencyUSD
	}
	if meta.ExternalEventID != "" {
		row.ExternalEventID = &meta.ExternalEventID
	}
	if meta.ExternalPaymentRef != "" {
		row.ExternalPaymentRef = &meta.ExternalPaymentRef
	}
	if meta.ExternalSessionRef != "" {
		row.ExternalSessionRef = &meta.ExternalSessionRef
	}
	if in.paymentMethod != "" {
		row.PaymentMethodSummary = &in.paymentMethod
	}

	outcome := Outcome{Result: in.outcome, FundingDelta: in.delta, PayloadChanged: in.payloadChanged}
	if d := in.donation; d != nil {
		row.DonationID = &d.ID
		row.ProjectID = &d.ProjectID
		row.DonorUserID = d.UserID
		row.Amount = d.Amount
		row.ProjectAmount = d.ProjectAmount
		row.SiteTip = d.SiteTip
		outcome.DonationID = d.ID
		outcome.ProjectID = d.ProjectID

		project, err := r.projects.WithTx(tx).FindByID(ctx, d.ProjectID)
		if err != nil {
			return Outcome{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load project for audit")
		}
		if project != nil {
			row.RecipientUserID = &project.OwnerID
			outcome.ProjectStatus = project.Status
		}
		if in.fee != nil {
			row.ActualProcessingFee = &in.fee.ProcessingFee
			row.NetAmount = &in.fee.Net
			actual := money.Sub(in.fee.Net, d.ProjectAmount)
			row.ActualSiteTip = &actual
			row.RawSettlementDetail = feeDetailJSON(in.fee)
		}
	}
	if in.transition != nil {
		outcome.ProjectStatus = in.transition.To
	}

	if err := r.settlements.WithTx(tx).Append(ctx, row); err != nil {
		return Outcome{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append settlement event")
	}
	if in.admissionID != uuid.Nil {
		if err := r.guard.Link(ctx, tx, in.admissionID, row.ID); err != nil {
			return Outcome{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "link admission")
		}
	}
	outcome.SettlementEventID = row.ID
	return outcome, nil
}

// flag queues a discrepancy inside tx and notes it on the outcome.
func (r *Reconciler) flag(ctx context.Context, tx *gorm.DB, outcome *Outcome, d *models.LedgerDiscrepancy) error {
	created, err := recordDiscrepancy(ctx, tx, r.discrepancies, r.outbox, d)
	if err != nil {
		return err
	}
	outcome.Discrepancy = d.Kind
	if created {
		outcome.flagged = append(outcome.flagged, d.Kind)
	}
	return nil
}

// recordDiscrepancy writes d unless its charge already carries that kind and
// emits it to operators when the row is new.
func recordDiscrepancy(ctx context.Context, tx *gorm.DB, repo DiscrepancyRepository, emitter outbox.Emitter, d *models.LedgerDiscrepancy) (bool, error) {
	created, err := repo.WithTx(tx).Record(ctx, d)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record discrepancy")
	}
	if !created {
		return false, nil
	}
	if err := emitter.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventDiscrepancyRecorded,
		AggregateType: enums.AggregateDiscrepancy,
		AggregateID:   d.ID,
		Actor:         &outbox.ActorRef{Source: "ledger"},
		Data: payloads.DiscrepancyRecordedEvent{
			DiscrepancyID:     d.ID,
			Kind:              d.Kind,
			DonationID:        d.DonationID,
			ProjectID:         d.ProjectID,
			ExternalChargeRef: d.ExternalChargeRef,
			AmountCents:       int64(d.Amount),
		},
	}); err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit discrepancy")
	}
	return true, nil
}

func newDiscrepancy(kind enums.DiscrepancyKind, amount money.Cents, ref string, outcome Outcome, detail map[string]any) *models.LedgerDiscrepancy {
	d := &models.LedgerDiscrepancy{
		Kind:   kind,
		Status: enums.DiscrepancyStatusOpen,
		Amount: amount,
		Detail: detailJSON(detail),
	}
	if ref != "" {
		d.ExternalChargeRef = &ref
	}
	if outcome.DonationID != uuid.Nil {
		d.DonationID = &outcome.DonationID
	}
	if outcome.ProjectID != uuid.Nil {
		d.ProjectID = &outcome.ProjectID
	}
	if outcome.SettlementEventID != uuid.Nil {
		d.SettlementEventID = &outcome.SettlementEventID
	}
	return d
}

// recordRejection persists a rejected event after the reconcile transaction
// rolled back: the admission so replays are no-ops, the audit row and the
// discrepancy for manual resolution.
func (r *Reconciler) recordRejection(ctx context.Context, event settlements.Event, rejection *Rejection) (Outcome, error) {
	var outcome Outcome
	err := r.tx.WithTx(ctx, func(tx *gorm.DB) error {
		in := auditInput{event: event, outcome: enums.SettlementOutcomeRejected}
		if event.Type() != enums.SettlementUnknown && event.Common().Ref() != "" {
			decision, err := r.admit(ctx, tx, event)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "admit rejected event")
			}
			if decision.Duplicate() {
				in.outcome = enums.SettlementOutcomeDuplicate
				in.payloadChanged = decision.PayloadChanged
			} else {
				in.admissionID = decision.AdmissionID
			}
		}
		if rejection.DonationID != nil {
			donation, err := r.donations.WithTx(tx).FindByID(ctx, *rejection.DonationID)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load donation")
			}
			in.donation = donation
		}

		var err error
		outcome, err = r.audit(ctx, tx, in)
		if err != nil {
			return err
		}
		if in.outcome != enums.SettlementOutcomeRejected {
			return nil
		}
		if outcome.ProjectID == uuid.Nil && rejection.ProjectID != nil {
			outcome.ProjectID = *rejection.ProjectID
		}
		detail := map[string]any{"reason": rejection.Reason}
		for k, v := range rejection.Detail {
			detail[k] = v
		}
		return r.flag(ctx, tx, &outcome, newDiscrepancy(rejection.Kind, rejection.Amount, event.Common().Ref(), outcome, detail))
	})
	if err != nil {
		return Outcome{}, r.fail(ctx, event, err)
	}

	if r.logg != nil && outcome.Result == enums.SettlementOutcomeRejected {
		logCtx := r.logg.WithFields(ctx, map[string]any{
			"discrepancy": rejection.Kind,
			"amount":      int64(rejection.Amount),
		})
		r.logg.Error(logCtx, "settlement rejected", rejection.AsError())
	}
	r.observe(ctx, event, outcome)
	return outcome, nil
}

func (r *Reconciler) fail(ctx context.Context, event settlements.Event, err error) error {
	typed := pkgerrors.As(err)
	if typed == nil {
		typed = pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reconcile settlement")
	}
	if r.logg != nil {
		switch {
		case typed.Code() == pkgerrors.CodePreconditionPending:
			r.logg.Warn(ctx, "settlement deferred until donation is ready: "+typed.Message())
		case db.IsTransient(err):
			r.logg.Warn(r.logg.WithField(ctx, "transient", true), "reconcile transaction conflicted; processor will redeliver")
		default:
			r.logg.Error(ctx, "reconcile settlement failed", typed)
		}
	}
	if r.metrics != nil {
		r.metrics.ObserveSettlement(event.Type().String(), "error")
	}
	return typed
}

func (r *Reconciler) observe(ctx context.Context, event settlements.Event, outcome Outcome) {
	if r.metrics != nil {
		r.metrics.ObserveSettlement(event.Type().String(), outcome.Result.String())
		for _, kind := range outcome.flagged {
			r.metrics.IncDiscrepancy(kind.String())
		}
	}
	if r.logg == nil {
		return
	}
	logCtx := r.logg.WithFields(ctx, map[string]any{
		"outcome":       outcome.Result,
		"funding_delta": int64(outcome.FundingDelta),
	})
	if outcome.DonationID != uuid.Nil {
		logCtx = r.logg.WithDonationID(logCtx, outcome.DonationID.String())
	}
	if outcome.ProjectID != uuid.Nil {
		logCtx = r.logg.WithProjectID(logCtx, outcome.ProjectID.String())
	}
	switch {
	case event.Type() == enums.SettlementUnknown:
		r.logg.Warn(r.logg.WithField(logCtx, "raw_type", event.Common().RawType), "unhandled settlement event type recorded")
	case outcome.Result == enums.SettlementOutcomeDuplicate:
		r.logg.Info(r.logg.WithField(logCtx, "payload_changed", outcome.PayloadChanged), "duplicate settlement event")
	case outcome.Result == enums.SettlementOutcomeRejected:
		// already logged at error level with the discrepancy
	default:
		r.logg.Info(logCtx, "settlement reconciled")
	}
}

func rawJSON(raw []byte) datatypes.JSON {
	if len(raw) == 0 || !json.Valid(raw) {
		return nil
	}
	return datatypes.JSON(raw)
}

func feeDetailJSON(fee *settlements.FeeDetail) datatypes.JSON {
	return detailJSON(map[string]any{
		"balance_transaction": fee.BalanceTransactionRef,
		"fee":                 int64(fee.ProcessingFee),
		"net":                 int64(fee.Net),
	})
}

func detailJSON(detail map[string]any) datatypes.JSON {
	if len(detail) == 0 {
		return nil
	}
	raw, err := json.Marshal(detail)
	if err != nil {
		return nil
	}
	return datatypes.JSON(raw)
}

package ledger

import (
	"context"

	"gorm.io/gorm"

	"github.com/wildroots/wildroots-backend/internal/settlements"
	"github.com/wildroots/wildroots-backend/pkg/db/models"
	"github.com/wildroots/wildroots-backend/pkg/enums"
	pkgerrors "github.com/wildroots/wildroots-backend/pkg/errors"
	"github.com/wildroots/wildroots-backend/pkg/money"
	"github.com/wildroots/wildroots-backend/pkg/outbox"
	"github.com/wildroots/wildroots-backend/pkg/outbox/payloads"
)

// applyChargeSucceeded completes a pending donation and credits its project
// amount to the project. The processor fee is reconciled against the
// platform's share only; the project amount is never reduced.
func (r *Reconciler) applyChargeSucceeded(ctx context.Context, tx *gorm.DB, ev settlements.ChargeSucceeded) (Outcome, error) {
	donation, err := r.resolveDonation(ctx, tx, ev.Meta)
	if err != nil {
		return Outcome{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "resolve donation")
	}
	if donation == nil {
		return Outcome{}, pending("no donation found for captured charge yet")
	}

	decision, err := r.admit(ctx, tx, ev)
	if err != nil {
		return Outcome{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "admit settlement")
	}
	if decision.Duplicate() {
		// a later charge.updated carries the balance transaction under the
		// same key; record it and flag a shortfall it reveals
		outcome, err := r.audit(ctx, tx, auditInput{
			event:          ev,
			donation:       donation,
			outcome:        enums.SettlementOutcomeDuplicate,
			payloadChanged: decision.PayloadChanged,
			fee:            ev.Fee,
			paymentMethod:  ev.PaymentMethodSummary,
		})
		if err != nil {
			return Outcome{}, err
		}
		if donation.Status == enums.DonationStatusCompleted && isCreditedCharge(donation, ev.ExternalChargeRef) {
			if err := r.flagFeeShortfall(ctx, tx, &outcome, donation, ev); err != nil {
				return Outcome{}, err
			}
		}
		return outcome, nil
	}

	switch donation.Status {
	case enums.DonationStatusFailed:
		return Outcome{}, reject(enums.DiscrepancySucceededAfterFailure, ev.Amount, "charge succeeded for a failed donation").
			forDonation(donation.ID, donation.ProjectID)
	case enums.DonationStatusCompleted, enums.DonationStatusRefunded:
		outcome, err := r.audit(ctx, tx, auditInput{
			event:         ev,
			donation:      donation,
			outcome:       enums.SettlementOutcomeRecorded,
			fee:           ev.Fee,
			paymentMethod: ev.PaymentMethodSummary,
			admissionID:   decision.AdmissionID,
		})
		if err != nil || isCreditedCharge(donation, ev.ExternalChargeRef) {
			return outcome, err
		}
		// the donor paid twice and only the first charge was credited
		if err := r.flag(ctx, tx, &outcome, newDiscrepancy(enums.DiscrepancyDuplicateCapture, ev.Amount, ev.ExternalChargeRef, outcome, map[string]any{
			"credited_charge": derefString(donation.ExternalChargeRef),
			"donation_status": donation.Status.String(),
		})); err != nil {
			return Outcome{}, err
		}
		return outcome, nil
	}

	if ev.Amount > 0 && ev.Amount != donation.Amount {
		tip, err := money.SplitFee(ev.Amount, donation.ProjectAmount)
		if err != nil {
			return Outcome{}, reject(enums.DiscrepancyAmountBelowProjectAmount, ev.Amount, err.Error()).
				forDonation(donation.ID, donation.ProjectID).
				with("project_amount", int64(donation.ProjectAmount))
		}
		donation.Amount = ev.Amount
		donation.SiteTip = tip
	}

	now := r.now()
	donation.Status = enums.DonationStatusCompleted
	donation.CompletedAt = &now
	chargeRef := ev.ExternalChargeRef
	donation.ExternalChargeRef = &chargeRef
	if donation.ExternalPaymentRef == nil && ev.ExternalPaymentRef != "" {
		donation.ExternalPaymentRef = &ev.ExternalPaymentRef
	}
	if err := r.donations.WithTx(tx).Update(ctx, donation); err != nil {
		return Outcome{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "complete donation")
	}

	if err := r.projects.WithTx(tx).IncrementFunding(ctx, donation.ProjectID, donation.ProjectAmount); err != nil {
		return Outcome{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "credit project funding")
	}
	transition, err := r.evaluator.Reevaluate(ctx, tx, donation.ProjectID)
	if err != nil {
		return Outcome{}, err
	}

	outcome, err := r.audit(ctx, tx, auditInput{
		event:         ev,
		donation:      donation,
		outcome:       enums.SettlementOutcomeApplied,
		delta:         donation.ProjectAmount,
		fee:           ev.Fee,
		paymentMethod: ev.PaymentMethodSummary,
		admissionID:   decision.AdmissionID,
		transition:    &transition,
	})
	if err != nil {
		return Outcome{}, err
	}
	if err := r.flagFeeShortfall(ctx, tx, &outcome, donation, ev); err != nil {
		return Outcome{}, err
	}

	data := payloads.DonationCompletedEvent{
		DonationID:        donation.ID,
		ProjectID:         donation.ProjectID,
		DonorUserID:       donation.UserID,
		ExternalChargeRef: chargeRef,
		AmountCents:       int64(donation.Amount),
		ProjectAmount:     int64(donation.ProjectAmount),
		SiteTipCents:      int64(donation.SiteTip),
		Currency:          donation.Currency.String(),
		CompletedAt:       now,
	}
	if ev.Fee != nil {
		actual := int64(money.Sub(ev.Fee.Net, donation.ProjectAmount))
		data.ActualSiteTip = &actual
	}
	if err := r.emitDonation(ctx, tx, enums.EventDonationCompleted, donation, data); err != nil {
		return Outcome{}, err
	}
	return outcome, nil
}

// flagFeeShortfall queues a fee_shortfall when the settled net does not cover
// the project amount. The platform absorbs the difference.
func (r *Reconciler) flagFeeShortfall(ctx context.Context, tx *gorm.DB, outcome *Outcome, donation *models.Donation, ev settlements.ChargeSucceeded) error {
	if ev.Fee == nil {
		return nil
	}
	actual := money.Sub(ev.Fee.Net, donation.ProjectAmount)
	if !actual.IsNegative() {
		return nil
	}
	return r.flag(ctx, tx, outcome, newDiscrepancy(enums.DiscrepancyFeeShortfall, -actual, ev.ExternalChargeRef, *outcome, map[string]any{
		"processing_fee":      int64(ev.Fee.ProcessingFee),
		"net_amount":          int64(ev.Fee.Net),
		"project_amount":      int64(donation.ProjectAmount),
		"actual_site_tip":     int64(actual),
		"balance_transaction": ev.Fee.BalanceTransactionRef,
	}))
}

// applyChargeFailed fails a pending donation. Late failures for donations
// that already settled another way are recorded with no effect.
func (r *Reconciler) applyChargeFailed(ctx context.Context, tx *gorm.DB, ev settlements.ChargeFailed) (Outcome, error) {
	donation, err := r.resolveDonation(ctx, tx, ev.Meta)
	if err != nil {
		return Outcome{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "resolve donation")
	}
	if donation == nil {
		return Outcome{}, pending("no donation found for failed charge yet")
	}

	decision, err := r.admit(ctx, tx, ev)
	if err != nil {
		return Outcome{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "admit settlement")
	}
	if decision.Duplicate() {
		return r.audit(ctx, tx, auditInput{
			event:          ev,
			donation:       donation,
			outcome:        enums.SettlementOutcomeDuplicate,
			payloadChanged: decision.PayloadChanged,
		})
	}
	if donation.Status != enums.DonationStatusPending {
		return r.audit(ctx, tx, auditInput{
			event:       ev,
			donation:    donation,
			outcome:     enums.SettlementOutcomeRecorded,
			admissionID: decision.AdmissionID,
		})
	}

	now := r.now()
	donation.Status = enums.DonationStatusFailed
	donation.FailedAt = &now
	if err := r.donations.WithTx(tx).Update(ctx, donation); err != nil {
		return Outcome{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "fail donation")
	}

	outcome, err := r.audit(ctx, tx, auditInput{
		event:       ev,
		donation:    donation,
		outcome:     enums.SettlementOutcomeApplied,
		admissionID: decision.AdmissionID,
	})
	if err != nil {
		return Outcome{}, err
	}
	if err := r.emitDonation(ctx, tx, enums.EventDonationFailed, donation, payloads.DonationFailedEvent{
		DonationID:        donation.ID,
		ProjectID:         donation.ProjectID,
		ExternalChargeRef: ev.ExternalChargeRef,
		FailedAt:          now,
	}); err != nil {
		return Outcome{}, err
	}
	return outcome, nil
}

func (r *Reconciler) emitDonation(ctx context.Context, tx *gorm.DB, eventType enums.OutboxEventType, donation *models.Donation, data any) error {
	if err := r.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateDonation,
		AggregateID:   donation.ID,
		Actor:         &outbox.ActorRef{UserID: donation.UserID, Source: "ledger"},
		Data:          data,
	}); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit "+string(eventType))
	}
	return nil
}

func isCreditedCharge(donation *models.Donation, chargeRef string) bool {
	return donation.ExternalChargeRef != nil && *donation.ExternalChargeRef == chargeRef
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

package ledger

import (
	"context"

	"gorm.io/gorm"

	"github.com/wildroots/wildroots-backend/internal/settlements"
	"github.com/wildroots/wildroots-backend/pkg/db/models"
	"github.com/wildroots/wildroots-backend/pkg/enums"
	pkgerrors "github.com/wildroots/wildroots-backend/pkg/errors"
	"github.com/wildroots/wildroots-backend/pkg/outbox/payloads"
)

// applyRefund reverses a completed donation's funding on a full refund.
// Partial refunds are deferred to an operator without admission, so the
// cumulative full refund that may follow is still applied.
func (r *Reconciler) applyRefund(ctx context.Context, tx *gorm.DB, ev settlements.ChargeRefunded) (Outcome, error) {
	donation, err := r.resolveDonation(ctx, tx, ev.Meta)
	if err != nil {
		return Outcome{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "resolve donation")
	}
	if donation == nil {
		return Outcome{}, pending("no donation found for refunded charge yet")
	}
	if donation.Status == enums.DonationStatusPending {
		return Outcome{}, pending("refund arrived before the charge was reconciled")
	}
	if donation.ExternalChargeRef != nil && ev.ExternalChargeRef != "" && !isCreditedCharge(donation, ev.ExternalChargeRef) {
		return r.applyUncreditedRefund(ctx, tx, ev, donation)
	}

	if donation.Status == enums.DonationStatusCompleted && ev.AmountRefunded > 0 && ev.AmountRefunded < donation.Amount {
		outcome, err := r.audit(ctx, tx, auditInput{event: ev, donation: donation, outcome: enums.SettlementOutcomeDeferred})
		if err != nil {
			return Outcome{}, err
		}
		if err := r.flag(ctx, tx, &outcome, newDiscrepancy(enums.DiscrepancyPartialRefund, ev.AmountRefunded, ev.Ref(), outcome, map[string]any{
			"amount_refunded": int64(ev.AmountRefunded),
			"donation_amount": int64(donation.Amount),
		})); err != nil {
			return Outcome{}, err
		}
		return outcome, nil
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

	switch {
	case donation.Status == enums.DonationStatusFailed:
		return Outcome{}, reject(enums.DiscrepancyRefundBeforeCapture, ev.AmountRefunded, "refund reported for a donation that never captured").
			forDonation(donation.ID, donation.ProjectID)
	case ev.AmountRefunded > donation.Amount:
		return Outcome{}, reject(enums.DiscrepancyRefundExceedsDonation, ev.AmountRefunded-donation.Amount, "refund exceeds the donation amount").
			forDonation(donation.ID, donation.ProjectID).
			with("amount_refunded", int64(ev.AmountRefunded)).
			with("donation_amount", int64(donation.Amount))
	case donation.Status != enums.DonationStatusCompleted || ev.AmountRefunded <= 0:
		return r.audit(ctx, tx, auditInput{
			event:       ev,
			donation:    donation,
			outcome:     enums.SettlementOutcomeRecorded,
			admissionID: decision.AdmissionID,
		})
	}

	ok, err := r.projects.WithTx(tx).DecrementFunding(ctx, donation.ProjectID, donation.ProjectAmount)
	if err != nil {
		return Outcome{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reverse project funding")
	}
	if !ok {
		return Outcome{}, reject(enums.DiscrepancyNegativeFunding, donation.ProjectAmount, "refund would drive project funding below zero").
			forDonation(donation.ID, donation.ProjectID)
	}

	now := r.now()
	donation.Status = enums.DonationStatusRefunded
	donation.RefundedAt = &now
	if err := r.donations.WithTx(tx).Update(ctx, donation); err != nil {
		return Outcome{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "refund donation")
	}

	transition, err := r.evaluator.Reevaluate(ctx, tx, donation.ProjectID)
	if err != nil {
		return Outcome{}, err
	}
	delta := -donation.ProjectAmount
	outcome, err := r.audit(ctx, tx, auditInput{
		event:       ev,
		donation:    donation,
		outcome:     enums.SettlementOutcomeApplied,
		delta:       delta,
		admissionID: decision.AdmissionID,
		transition:  &transition,
	})
	if err != nil {
		return Outcome{}, err
	}
	if err := r.emitDonation(ctx, tx, enums.EventDonationRefunded, donation, payloads.DonationRefundedEvent{
		DonationID:        donation.ID,
		ProjectID:         donation.ProjectID,
		ExternalChargeRef: ev.Ref(),
		RefundedCents:     int64(ev.AmountRefunded),
		FundingDelta:      int64(delta),
		RefundedAt:        now,
	}); err != nil {
		return Outcome{}, err
	}
	return outcome, nil
}

// applyUncreditedRefund records a refund of a charge other than the one that
// funded the donation. The credited charge is still held, so funding stays
// put and the refund is queued for an operator.
func (r *Reconciler) applyUncreditedRefund(ctx context.Context, tx *gorm.DB, ev settlements.ChargeRefunded, donation *models.Donation) (Outcome, error) {
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

	outcome, err := r.audit(ctx, tx, auditInput{
		event:       ev,
		donation:    donation,
		outcome:     enums.SettlementOutcomeRecorded,
		admissionID: decision.AdmissionID,
	})
	if err != nil {
		return Outcome{}, err
	}
	if err := r.flag(ctx, tx, &outcome, newDiscrepancy(enums.DiscrepancyUncreditedRefund, ev.AmountRefunded, ev.Ref(), outcome, map[string]any{
		"credited_charge": *donation.ExternalChargeRef,
		"amount_refunded": int64(ev.AmountRefunded),
		"donation_status": donation.Status.String(),
	})); err != nil {
		return Outcome{}, err
	}
	return outcome, nil
}

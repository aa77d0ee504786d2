package ledger

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/wildroots/wildroots-backend/internal/settlements"
	"github.com/wildroots/wildroots-backend/pkg/db/models"
	"github.com/wildroots/wildroots-backend/pkg/enums"
	pkgerrors "github.com/wildroots/wildroots-backend/pkg/errors"
	"github.com/wildroots/wildroots-backend/pkg/money"
)

// applyCheckout creates or refreshes the pending donation for a completed
// checkout session. It never moves funding.
func (r *Reconciler) applyCheckout(ctx context.Context, tx *gorm.DB, ev settlements.CheckoutCompleted) (Outcome, error) {
	donation, err := r.resolveDonation(ctx, tx, ev.Meta)
	if err != nil {
		return Outcome{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "resolve donation")
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

	in := auditInput{event: ev, outcome: enums.SettlementOutcomeApplied, admissionID: decision.AdmissionID}
	switch {
	case donation == nil:
		donation, err = r.createFromCheckout(ctx, tx, ev)
	case donation.Status == enums.DonationStatusPending:
		err = r.refreshFromCheckout(ctx, tx, donation, ev)
	default:
		in.outcome = enums.SettlementOutcomeRecorded
	}
	if err != nil {
		return Outcome{}, err
	}
	in.donation = donation
	return r.audit(ctx, tx, in)
}

func (r *Reconciler) createFromCheckout(ctx context.Context, tx *gorm.DB, ev settlements.CheckoutCompleted) (*models.Donation, error) {
	if ev.ProjectID == nil {
		return nil, reject(enums.DiscrepancyUnknownProject, ev.AmountTotal, "checkout carries no project reference")
	}
	project, err := r.projects.WithTx(tx).FindByID(ctx, *ev.ProjectID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load project")
	}
	if project == nil {
		return nil, reject(enums.DiscrepancyUnknownProject, ev.AmountTotal, "checkout references an unknown project").
			with("project_id", ev.ProjectID.String())
	}

	projectAmount := ev.AmountTotal
	if ev.ProjectAmount != nil {
		projectAmount = *ev.ProjectAmount
	}
	tip, err := money.SplitFee(ev.AmountTotal, projectAmount)
	if err != nil {
		return nil, reject(enums.DiscrepancyAmountBelowProjectAmount, ev.AmountTotal, err.Error()).
			forDonation(uuid.Nil, project.ID)
	}

	donation := &models.Donation{
		ProjectID:     project.ID,
		UserID:        ev.UserID,
		Amount:        ev.AmountTotal,
		ProjectAmount: projectAmount,
		SiteTip:       tip,
		CoversFees:    ev.CoversFees,
		Currency:      currencyOf(ev.Meta),
		Status:        enums.DonationStatusPending,
		DonorName:     optionalString(ev.DonorName),
		DonorEmail:    optionalString(ev.DonorEmail),
		Message:       optionalString(ev.Message),
	}
	if ev.DonationID != nil {
		donation.ID = *ev.DonationID
	}
	if ev.ExternalSessionRef != "" {
		donation.ExternalSessionRef = &ev.ExternalSessionRef
	}
	if ev.ExternalPaymentRef != "" {
		donation.ExternalPaymentRef = &ev.ExternalPaymentRef
	}
	if err := r.donations.WithTx(tx).Create(ctx, donation); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create donation from checkout")
	}
	return donation, nil
}

// refreshFromCheckout copies the session's totals and references onto the
// pending donation. Amounts stay provisional until the charge settles.
func (r *Reconciler) refreshFromCheckout(ctx context.Context, tx *gorm.DB, donation *models.Donation, ev settlements.CheckoutCompleted) error {
	if ev.AmountTotal > 0 {
		projectAmount := donation.ProjectAmount
		if ev.ProjectAmount != nil {
			projectAmount = *ev.ProjectAmount
		}
		tip, err := money.SplitFee(ev.AmountTotal, projectAmount)
		if err != nil {
			return reject(enums.DiscrepancyAmountBelowProjectAmount, ev.AmountTotal, err.Error()).
				forDonation(donation.ID, donation.ProjectID).
				with("project_amount", int64(projectAmount))
		}
		donation.Amount = ev.AmountTotal
		donation.ProjectAmount = projectAmount
		donation.SiteTip = tip
	}
	if donation.ExternalSessionRef == nil && ev.ExternalSessionRef != "" {
		donation.ExternalSessionRef = &ev.ExternalSessionRef
	}
	if donation.ExternalPaymentRef == nil && ev.ExternalPaymentRef != "" {
		donation.ExternalPaymentRef = &ev.ExternalPaymentRef
	}
	if donation.UserID == nil {
		if donation.DonorName == nil {
			donation.DonorName = optionalString(ev.DonorName)
		}
		if donation.DonorEmail == nil {
			donation.DonorEmail = optionalString(ev.DonorEmail)
		}
	}
	if err := r.donations.WithTx(tx).Update(ctx, donation); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update donation from checkout")
	}
	return nil
}

func currencyOf(meta settlements.Meta) enums.Currency {
	if meta.Currency == "" {
		return enums.CurrencyUSD
	}
	return meta.Currency
}

func optionalString(value string) *string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return &value
}

package ledger

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/wildroots/wildroots-backend/internal/donations"
	"github.com/wildroots/wildroots-backend/internal/projects"
	"github.com/wildroots/wildroots-backend/internal/settlements"
	"github.com/wildroots/wildroots-backend/pkg/db"
	"github.com/wildroots/wildroots-backend/pkg/db/dbtest"
	"github.com/wildroots/wildroots-backend/pkg/db/models"
	"github.com/wildroots/wildroots-backend/pkg/enums"
	"github.com/wildroots/wildroots-backend/pkg/metrics"
	"github.com/wildroots/wildroots-backend/pkg/money"
	"github.com/wildroots/wildroots-backend/pkg/outbox"
)

type harness struct {
	t          *testing.T
	client     *db.Client
	reconciler *Reconciler
	auditor    *Auditor
	projects   projects.Repository
	donations  donations.Repository
}

// failingProjects wraps the real repository and fails IncrementFunding on demand.
type failingProjects struct {
	projects.Repository
	fail *bool
}

func (f failingProjects) WithTx(tx *gorm.DB) projects.Repository {
	return failingProjects{Repository: f.Repository.WithTx(tx), fail: f.fail}
}

func (f failingProjects) IncrementFunding(ctx context.Context, id uuid.UUID, amount money.Cents) error {
	if *f.fail {
		return errors.New("injected failure")
	}
	return f.Repository.IncrementFunding(ctx, id, amount)
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	return newHarnessWithProjects(t, nil)
}

func newHarnessWithProjects(t *testing.T, wrap func(projects.Repository) projects.Repository) *harness {
	t.Helper()
	client := dbtest.Open(t)
	gdb := client.DB()

	projectRepo := projects.NewRepository(gdb)
	if wrap != nil {
		projectRepo = wrap(projectRepo)
	}
	emitter := outbox.NewService(outbox.NewRepository(gdb), nil)
	evaluator, err := projects.NewService(projects.ServiceParams{
		Repo:              projectRepo,
		TransactionRunner: client,
		Outbox:            emitter,
	})
	require.NoError(t, err)

	ledgerMetrics := metrics.NewLedgerMetrics(prometheus.NewRegistry())
	donationRepo := donations.NewRepository(gdb)
	settlementRepo := settlements.NewRepository(gdb)
	discrepancyRepo := NewDiscrepancyRepository(gdb)

	reconciler, err := NewReconciler(ReconcilerParams{
		TransactionRunner: client,
		Donations:         donationRepo,
		Projects:          projectRepo,
		Evaluator:         evaluator,
		Settlements:       settlementRepo,
		Discrepancies:     discrepancyRepo,
		Outbox:            emitter,
		Metrics:           ledgerMetrics,
	})
	require.NoError(t, err)

	auditor, err := NewAuditor(AuditorParams{
		TransactionRunner: client,
		Donations:         donationRepo,
		Projects:          projectRepo,
		Evaluator:         evaluator,
		Settlements:       settlementRepo,
		Discrepancies:     discrepancyRepo,
		Outbox:            emitter,
		Metrics:           ledgerMetrics,
	})
	require.NoError(t, err)

	return &harness{
		t:          t,
		client:     client,
		reconciler: reconciler,
		auditor:    auditor,
		projects:   projectRepo,
		donations:  donationRepo,
	}
}

func (h *harness) seedProject(goal money.Cents) *models.ConservationProject {
	h.t.Helper()
	project := &models.ConservationProject{
		OwnerID:     uuid.New(),
		Title:       "Prairie corridor",
		FundingGoal: goal,
		Status:      enums.ProjectStatusActive,
	}
	require.NoError(h.t, h.projects.Create(context.Background(), project))
	return project
}

// seedDonation stores the pending donation checkout would have created.
func (h *harness) seedDonation(project *models.ConservationProject, amount, projectAmount money.Cents, paymentRef string) *models.Donation {
	h.t.Helper()
	session := "cs_" + paymentRef
	donation := &models.Donation{
		ProjectID:          project.ID,
		Amount:             amount,
		ProjectAmount:      projectAmount,
		SiteTip:            amount - projectAmount,
		Currency:           enums.CurrencyUSD,
		Status:             enums.DonationStatusPending,
		ExternalSessionRef: &session,
		ExternalPaymentRef: &paymentRef,
	}
	require.NoError(h.t, h.donations.Create(context.Background(), donation))
	return donation
}

func (h *harness) project(id uuid.UUID) *models.ConservationProject {
	h.t.Helper()
	project, err := h.projects.FindByID(context.Background(), id)
	require.NoError(h.t, err)
	require.NotNil(h.t, project)
	return project
}

func (h *harness) donation(id uuid.UUID) *models.Donation {
	h.t.Helper()
	donation, err := h.donations.FindByID(context.Background(), id)
	require.NoError(h.t, err)
	require.NotNil(h.t, donation)
	return donation
}

func (h *harness) count(model any, where string, args ...any) int64 {
	h.t.Helper()
	var n int64
	q := h.client.DB().Model(model)
	if where != "" {
		q = q.Where(where, args...)
	}
	require.NoError(h.t, q.Count(&n).Error)
	return n
}

func (h *harness) outboxCount(eventType enums.OutboxEventType) int64 {
	return h.count(&models.OutboxEvent{}, "event_type = ?", eventType)
}

func (h *harness) discrepancies(kind enums.DiscrepancyKind) []models.LedgerDiscrepancy {
	h.t.Helper()
	var rows []models.LedgerDiscrepancy
	require.NoError(h.t, h.client.DB().Where("kind = ?", kind).Find(&rows).Error)
	return rows
}

func meta(eventID, chargeRef, paymentRef string, donationID *uuid.UUID) settlements.Meta {
	return settlements.Meta{
		ExternalEventID:    eventID,
		ExternalChargeRef:  chargeRef,
		ExternalPaymentRef: paymentRef,
		DonationID:         donationID,
		Currency:           enums.CurrencyUSD,
		RawPayload:         []byte(fmt.Sprintf(`{"id":%q,"charge":%q}`, eventID, chargeRef)),
	}
}

func succeeded(eventID, chargeRef, paymentRef string, amount money.Cents, fee *settlements.FeeDetail) settlements.ChargeSucceeded {
	m := meta(eventID, chargeRef, paymentRef, nil)
	m.RawType = "charge.succeeded"
	m.Status = "succeeded"
	return settlements.ChargeSucceeded{Meta: m, Amount: amount, Fee: fee, PaymentMethodSummary: "visa •••• 4242"}
}

func refunded(eventID, chargeRef, paymentRef string, amount, refundedAmount money.Cents) settlements.ChargeRefunded {
	m := meta(eventID, chargeRef, paymentRef, nil)
	m.RawType = "charge.refunded"
	m.RawPayload = []byte(fmt.Sprintf(`{"id":%q,"charge":%q,"amount_refunded":%d}`, eventID, chargeRef, refundedAmount))
	return settlements.ChargeRefunded{Meta: m, Amount: amount, AmountRefunded: refundedAmount}
}

func failed(eventID, chargeRef, paymentRef string, amount money.Cents) settlements.ChargeFailed {
	m := meta(eventID, chargeRef, paymentRef, nil)
	m.RawType = "charge.failed"
	return settlements.ChargeFailed{Meta: m, Amount: amount, FailureCode: "card_declined"}
}

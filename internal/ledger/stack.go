package ledger

import (
	"github.com/wildroots/wildroots-backend/internal/donations"
	"github.com/wildroots/wildroots-backend/internal/projects"
	"github.com/wildroots/wildroots-backend/internal/settlements"
	"github.com/wildroots/wildroots-backend/pkg/db"
	"github.com/wildroots/wildroots-backend/pkg/logger"
	"github.com/wildroots/wildroots-backend/pkg/metrics"
	"github.com/wildroots/wildroots-backend/pkg/outbox"
)

// Stack is the set of ledger components every binary shares.
type Stack struct {
	Donations     donations.Repository
	Projects      *projects.Service
	Reconciler    *Reconciler
	Auditor       *Auditor
	Discrepancies DiscrepancyRepository
}

// NewStack wires the ledger against one database client.
func NewStack(client *db.Client, ledgerMetrics *metrics.LedgerMetrics, logg *logger.Logger) (*Stack, error) {
	gdb := client.DB()
	emitter := outbox.NewService(outbox.NewRepository(gdb), logg)

	projectRepo := projects.NewRepository(gdb)
	projectService, err := projects.NewService(projects.ServiceParams{
		Repo:              projectRepo,
		TransactionRunner: client,
		Outbox:            emitter,
		Logger:            logg,
	})
	if err != nil {
		return nil, err
	}

	donationRepo := donations.NewRepository(gdb)
	settlementRepo := settlements.NewRepository(gdb)
	discrepancyRepo := NewDiscrepancyRepository(gdb)

	reconciler, err := NewReconciler(ReconcilerParams{
		TransactionRunner: client,
		Donations:         donationRepo,
		Projects:          projectRepo,
		Evaluator:         projectService,
		Settlements:       settlementRepo,
		Discrepancies:     discrepancyRepo,
		Outbox:            emitter,
		Metrics:           ledgerMetrics,
		Logger:            logg,
	})
	if err != nil {
		return nil, err
	}

	auditor, err := NewAuditor(AuditorParams{
		TransactionRunner: client,
		Donations:         donationRepo,
		Projects:          projectRepo,
		Evaluator:         projectService,
		Settlements:       settlementRepo,
		Discrepancies:     discrepancyRepo,
		Outbox:            emitter,
		Metrics:           ledgerMetrics,
		Logger:            logg,
	})
	if err != nil {
		return nil, err
	}

	return &Stack{
		Donations:     donationRepo,
		Projects:      projectService,
		Reconciler:    reconciler,
		Auditor:       auditor,
		Discrepancies: discrepancyRepo,
	}, nil
}

package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/wildroots/wildroots-backend/internal/ledger"
	"github.com/wildroots/wildroots-backend/internal/projects"
	"github.com/wildroots/wildroots-backend/internal/settlements"
	"github.com/wildroots/wildroots-backend/pkg/config"
	"github.com/wildroots/wildroots-backend/pkg/db"
	"github.com/wildroots/wildroots-backend/pkg/db/models"
	"github.com/wildroots/wildroots-backend/pkg/logger"
	"github.com/wildroots/wildroots-backend/pkg/outbox"
)

const (
	discrepancyListLimit = 100
	parkedListLimit      = 25
)

type auditor interface {
	Check(ctx context.Context, projectID uuid.UUID) (*ledger.ProjectBalance, error)
	CheckAll(ctx context.Context, batch int) (*ledger.CheckReport, error)
	Rebuild(ctx context.Context, projectID uuid.UUID) (*ledger.ProjectBalance, error)
	OpenDiscrepancies(ctx context.Context, limit int) ([]models.LedgerDiscrepancy, error)
	ResolveDiscrepancy(ctx context.Context, id uuid.UUID, note string) error
}

type ownerActions interface {
	Complete(ctx context.Context, projectID uuid.UUID) (*models.ConservationProject, error)
	Pause(ctx context.Context, projectID uuid.UUID) (*models.ConservationProject, error)
	Resume(ctx context.Context, projectID uuid.UUID) (*models.ConservationProject, error)
}

type outboxOps interface {
	Backlog(ctx context.Context) (outbox.Backlog, error)
	Parked(ctx context.Context, limit int) ([]models.OutboxDLQ, error)
	Requeue(ctx context.Context, eventID uuid.UUID) error
}

type settlementLog interface {
	ListByChargeRef(ctx context.Context, ref string) ([]models.SettlementEvent, error)
	ListByDonation(ctx context.Context, donationID uuid.UUID) ([]models.SettlementEvent, error)
}

type tools struct {
	audit  auditor
	owners ownerActions
	outbox outboxOps
	events settlementLog
}

// outboxTools joins the backlog and dead-letter views for operators.
type outboxTools struct {
	repo        *outbox.Repository
	dlq         *outbox.DLQRepository
	maxAttempts int
}

func (o outboxTools) Backlog(ctx context.Context) (outbox.Backlog, error) {
	return o.repo.Backlog(ctx, o.maxAttempts)
}

func (o outboxTools) Parked(ctx context.Context, limit int) ([]models.OutboxDLQ, error) {
	return o.dlq.List(ctx, limit)
}

func (o outboxTools) Requeue(ctx context.Context, eventID uuid.UUID) error {
	return o.dlq.Requeue(ctx, eventID)
}

type options struct {
	cmd      string
	project  string
	id       string
	note     string
	donation string
	charge   string
	batch    int
}

func main() {
	logg := logger.New(logger.Options{ServiceName: "ledgerctl"})

	_ = godotenv.Load()

	cmd := flag.String("cmd", "check", "ledger command: check|rebuild|discrepancies|resolve|complete|pause|resume|outbox|requeue|events")
	project := flag.String("project", "", "project id (check, rebuild, complete, pause, resume)")
	id := flag.String("id", "", "discrepancy id (resolve) or outbox event id (requeue)")
	note := flag.String("note", "", "resolution note (resolve)")
	donation := flag.String("donation", "", "donation id (events)")
	charge := flag.String("charge", "", "processor charge ref (events)")
	batch := flag.Int("batch", 0, "projects per page when checking every project")
	flag.Parse()

	cfg, err := config.Load()
	requireResource(context.Background(), logg, "config", err)

	logg = logger.New(logger.Options{
		ServiceName: "ledgerctl",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
	})
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env": cfg.App.Env,
		"cmd": *cmd,
	})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	requireResource(ctx, logg, "database", err)
	defer dbClient.Close()

	// metrics are scraped from the long-running binaries only
	stack, err := ledger.NewStack(dbClient, nil, logg)
	requireResource(ctx, logg, "ledger", err)

	opts := options{cmd: *cmd, project: *project, id: *id, note: *note, donation: *donation, charge: *charge, batch: *batch}
	if opts.batch <= 0 {
		opts.batch = cfg.Ledger.ConsistencyBatch
	}
	ops := tools{
		audit:  stack.Auditor,
		owners: stack.Projects,
		outbox: outboxTools{
			repo:        outbox.NewRepository(dbClient.DB()),
			dlq:         outbox.NewDLQRepository(dbClient.DB()),
			maxAttempts: cfg.Outbox.MaxAttempts,
		},
		events: settlements.NewRepository(dbClient.DB()),
	}
	if err := run(ctx, opts, ops, os.Stdout); err != nil {
		logg.Error(ctx, "ledgerctl command failed", err)
		fmt.Fprintf(os.Stderr, "%s failed: %v\n", *cmd, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options, t tools, out io.Writer) error {
	audit, owners := t.audit, t.owners
	cmd := strings.ToLower(strings.TrimSpace(opts.cmd))
	switch cmd {
	case "check":
		if opts.project == "" {
			report, err := audit.CheckAll(ctx, opts.batch)
			if report != nil {
				if printErr := printJSON(out, report); printErr != nil {
					return printErr
				}
			}
			return err
		}
		projectID, err := parseID("project", opts.project)
		if err != nil {
			return err
		}
		balance, err := audit.Check(ctx, projectID)
		if err != nil {
			return err
		}
		return printJSON(out, balance)

	case "rebuild":
		projectID, err := parseID("project", opts.project)
		if err != nil {
			return err
		}
		balance, err := audit.Rebuild(ctx, projectID)
		if err != nil {
			return err
		}
		return printJSON(out, balance)

	case "discrepancies":
		rows, err := audit.OpenDiscrepancies(ctx, discrepancyListLimit)
		if err != nil {
			return err
		}
		return printJSON(out, rows)

	case "resolve":
		discrepancyID, err := parseID("id", opts.id)
		if err != nil {
			return err
		}
		if err := audit.ResolveDiscrepancy(ctx, discrepancyID, strings.TrimSpace(opts.note)); err != nil {
			return err
		}
		_, err = fmt.Fprintf(out, "resolved discrepancy %s\n", discrepancyID)
		return err

	case "complete", "pause", "resume":
		projectID, err := parseID("project", opts.project)
		if err != nil {
			return err
		}
		action := owners.Complete
		switch cmd {
		case "pause":
			action = owners.Pause
		case "resume":
			action = owners.Resume
		}
		project, err := action(ctx, projectID)
		if err != nil {
			return err
		}
		return printJSON(out, projects.NewFundingView(project))

	case "outbox":
		backlog, err := t.outbox.Backlog(ctx)
		if err != nil {
			return err
		}
		parked, err := t.outbox.Parked(ctx, parkedListLimit)
		if err != nil {
			return err
		}
		return printJSON(out, map[string]any{"backlog": backlog, "parked": parked})

	case "requeue":
		eventID, err := parseID("id", opts.id)
		if err != nil {
			return err
		}
		if err := t.outbox.Requeue(ctx, eventID); err != nil {
			return err
		}
		_, err = fmt.Fprintf(out, "requeued outbox event %s\n", eventID)
		return err

	case "events":
		rows, err := listEvents(ctx, t.events, opts)
		if err != nil {
			return err
		}
		return printJSON(out, rows)
	}
	return fmt.Errorf("unknown -cmd value: %s", opts.cmd)
}

// listEvents returns the settlement audit trail of one charge or donation, oldest first.
func listEvents(ctx context.Context, log settlementLog, opts options) ([]models.SettlementEvent, error) {
	if charge := strings.TrimSpace(opts.charge); charge != "" {
		return log.ListByChargeRef(ctx, charge)
	}
	if strings.TrimSpace(opts.donation) == "" {
		return nil, errors.New("events needs -donation or -charge")
	}
	donationID, err := parseID("donation", opts.donation)
	if err != nil {
		return nil, err
	}
	return log.ListByDonation(ctx, donationID)
}

func parseID(flagName, raw string) (uuid.UUID, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return uuid.Nil, fmt.Errorf("missing -%s", flagName)
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid -%s: %w", flagName, err)
	}
	return id, nil
}

func printJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}

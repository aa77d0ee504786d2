package cron

import (
	"context"
	"fmt"

	"go.uber.org/multierr"

	"github.com/wildroots/wildroots-backend/internal/ledger"
	"github.com/wildroots/wildroots-backend/pkg/logger"
)

const defaultConsistencyBatch = 200

type fundingAuditor interface {
	CheckAll(ctx context.Context, batch int) (*ledger.CheckReport, error)
}

type FundingConsistencyJobParams struct {
	Logger    *logger.Logger
	Auditor   fundingAuditor
	BatchSize int
}

// NewFundingConsistencyJob compares every project's cached funding against
// its donations and settlement log. Drift is queued for an operator; the job
// never rewrites a counter on its own.
func NewFundingConsistencyJob(params FundingConsistencyJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Auditor == nil {
		return nil, fmt.Errorf("funding auditor required")
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultConsistencyBatch
	}
	return &fundingConsistencyJob{
		logg:    params.Logger,
		auditor: params.Auditor,
		batch:   batch,
	}, nil
}

type fundingConsistencyJob struct {
	logg    *logger.Logger
	auditor fundingAuditor
	batch   int
}

func (j *fundingConsistencyJob) Name() string { return "funding-consistency" }

func (j *fundingConsistencyJob) Run(ctx context.Context) error {
	report, err := j.auditor.CheckAll(ctx, j.batch)
	failures := multierr.Errors(err)

	fields := map[string]any{
		"failed_projects": len(failures),
	}
	if report != nil {
		fields["projects_checked"] = report.Checked
		fields["projects_drifted"] = len(report.Drifted)
		fields["drift_cents"] = int64(report.DriftCents)
	}
	logCtx := j.logg.WithFields(ctx, fields)

	for _, failure := range failures {
		j.logg.Error(logCtx, "funding consistency check failed", failure)
	}
	if report != nil && len(report.Drifted) > 0 {
		j.logg.Warn(logCtx, "funding consistency check found drift")
	} else {
		j.logg.Info(logCtx, "funding consistency check complete")
	}
	if err != nil {
		return fmt.Errorf("funding consistency: %d project(s) failed: %w", len(failures), err)
	}
	return nil
}

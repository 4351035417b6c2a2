package cron

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/grainhub/warehouse-backend/internal/audit"
	"github.com/grainhub/warehouse-backend/pkg/logger"
)

type ledgerAuditor interface {
	Run(ctx context.Context) (*audit.Report, error)
}

type LedgerAuditJobParams struct {
	Logger  *logger.Logger
	Auditor ledgerAuditor
}

// NewLedgerAuditJob wraps the reconciliation pass as a scheduled job. Any
// mismatch fails the job so it surfaces in the job failure metric.
func NewLedgerAuditJob(params LedgerAuditJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Auditor == nil {
		return nil, fmt.Errorf("ledger auditor required")
	}
	return &ledgerAuditJob{logg: params.Logger, auditor: params.Auditor}, nil
}

type ledgerAuditJob struct {
	logg    *logger.Logger
	auditor ledgerAuditor
}

func (j *ledgerAuditJob) Name() string { return "ledger-audit" }

func (j *ledgerAuditJob) Run(ctx context.Context) error {
	report, err := j.auditor.Run(ctx)
	if report == nil {
		return fmt.Errorf("ledger audit: %w", err)
	}

	for _, m := range report.Mismatches {
		fields := map[string]any{
			"mismatch": m.Kind,
			"entry_id": m.EntryID.String(),
		}
		if m.TransactionID != uuid.Nil {
			fields["transaction_id"] = m.TransactionID.String()
		}
		j.logg.Warn(j.logg.WithFields(ctx, fields), m.Error())
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"entries_checked":      report.EntriesChecked,
		"transactions_checked": report.TransactionsChecked,
		"mismatches":           len(report.Mismatches),
	})
	j.logg.Info(logCtx, "ledger audit complete")

	if err != nil {
		return fmt.Errorf("ledger audit found %d mismatches: %w", len(report.Mismatches), err)
	}
	return nil
}

package cli

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/partsdesk/partsdesk/internal/app"
	"github.com/partsdesk/partsdesk/internal/inventory"
	"github.com/partsdesk/partsdesk/internal/report"
	"github.com/partsdesk/partsdesk/jobs"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	out := new(bytes.Buffer)
	cmd := NewRootCommand(Env{
		Stdout: out,
		Stderr: new(bytes.Buffer),
		LoadConfig: func() (*app.Config, error) {
			return nil, errors.New("config not available in tests")
		},
	})
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestTaskFor(t *testing.T) {
	task, err := TaskFor(jobs.TaskStockIntegrityScan)
	require.NoError(t, err)
	require.Equal(t, jobs.TaskStockIntegrityScan, task.Type())

	task, err = TaskFor(jobs.TaskIdempotencyCleanup)
	require.NoError(t, err)
	require.Equal(t, jobs.TaskIdempotencyCleanup, task.Type())

	_, err = TaskFor("mail:send")
	require.Error(t, err)
}

func TestJobsTriggerRejectsUnknownJobBeforeConnecting(t *testing.T) {
	_, err := run(t, "jobs", "trigger", "mail:send")
	require.ErrorContains(t, err, "unsupported job")
}

func TestReportRequiresValidDates(t *testing.T) {
	_, err := run(t, "report", "pl", "--from", "01/04/2026", "--to", "2026-04-30")
	require.ErrorContains(t, err, "--from")

	_, err = run(t, "report", "pl", "--to", "2026-04-30")
	require.Error(t, err)
}

func TestCommandsSurfaceConfigErrors(t *testing.T) {
	_, err := run(t, "stock", "verify")
	require.ErrorContains(t, err, "load config")
}

func TestRenderProfitAndLoss(t *testing.T) {
	money, err := NewRupees("")
	require.NoError(t, err)
	pl := report.ProfitAndLoss{
		From:          "2026-04-01",
		To:            "2026-04-30",
		Sales:         report.Summary{Count: 3, Taxable: decimal.RequireFromString("250000")},
		Purchases:     report.Summary{Count: 2, Taxable: decimal.RequireFromString("100000")},
		GrossProfit:   decimal.RequireFromString("150000"),
		OutputGST:     decimal.RequireFromString("45000"),
		InputGST:      decimal.RequireFromString("18000"),
		NetGSTPayable: decimal.RequireFromString("27000"),
	}
	out := new(bytes.Buffer)
	require.NoError(t, RenderProfitAndLoss(out, pl, money))

	text := out.String()
	require.True(t, strings.HasPrefix(text, "Profit and loss 2026-04-01 to 2026-04-30"))
	require.Contains(t, text, "Gross profit")
	require.Contains(t, text, "50,000.00")
	require.Contains(t, text, "27,000.00")
}

func TestRenderDiscrepancies(t *testing.T) {
	out := new(bytes.Buffer)
	require.NoError(t, RenderDiscrepancies(out, nil))
	require.Contains(t, out.String(), "match")

	out.Reset()
	require.NoError(t, RenderDiscrepancies(out, []inventory.Discrepancy{
		{PartID: 9, Balance: decimal.NewFromInt(5), LedgerSum: decimal.NewFromInt(3)},
	}))
	require.Contains(t, out.String(), "PART")
	require.Contains(t, out.String(), "9")
}

func TestNewRupeesRejectsBadLocale(t *testing.T) {
	_, err := NewRupees("not a locale!")
	require.Error(t, err)
}

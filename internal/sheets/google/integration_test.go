//go:build integration

package google

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"expensewise/internal/core"
	ports "expensewise/internal/sheets"
)

// Integration tests require a real spreadsheet shared with a service account.
// Run with: go test -tags=integration ./internal/sheets/google

func TestIntegration_MirrorFlow(t *testing.T) {
	spreadsheetID := os.Getenv("GOOGLE_SPREADSHEET_ID")
	if spreadsheetID == "" {
		t.Skip("GOOGLE_SPREADSHEET_ID not set, skipping integration test")
	}
	cfg := Config{
		SpreadsheetID:      spreadsheetID,
		ExpensesSheet:      os.Getenv("GOOGLE_SHEET_NAME"),
		SummarySheet:       os.Getenv("GOOGLE_SUMMARY_SHEET_NAME"),
		ServiceAccountJSON: os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON"),
		ServiceAccountFile: os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE"),
	}

	ctx := context.Background()
	client, err := New(ctx, cfg)
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}

	e := core.Expense{
		ID:        uuid.NewString(),
		UserID:    "integration-test",
		Amount:    core.Money{Cents: 123},
		Category:  "Food",
		Date:      time.Now(),
		CreatedAt: time.Now(),
	}

	ref, err := client.AppendExpense(ctx, e)
	if err != nil {
		t.Fatalf("AppendExpense: %v", err)
	}
	t.Logf("Appended row %s", ref)

	again, err := client.AppendExpense(ctx, e)
	if err != nil {
		t.Fatalf("second AppendExpense: %v", err)
	}
	t.Logf("Second append resolved to %s", again)

	if err := client.DeleteExpense(ctx, e.UserID, e.ID); err != nil {
		t.Fatalf("DeleteExpense: %v", err)
	}

	err = client.AppendDigest(ctx, []ports.DigestRow{{
		Month: time.Now().Format("2006-01"), UserID: e.UserID, Category: "Food", Total: e.Amount, Percentage: 100,
	}})
	if err != nil {
		t.Fatalf("AppendDigest: %v", err)
	}
}

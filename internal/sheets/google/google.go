package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"expensewise/internal/core"
	ports "expensewise/internal/sheets"
)

const defaultRowCacheTTL = 5 * time.Minute

type Config struct {
	SpreadsheetID      string
	ExpensesSheet      string
	SummarySheet       string
	ServiceAccountJSON string
	ServiceAccountFile string
}

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	expensesSheet string
	summarySheet  string

	// Row lookup cache: expense ID -> 1-based row in the expenses sheet.
	mu                 sync.Mutex
	rowIndex           map[string]int
	cachedRowCount     int
	cacheExpiresAt     time.Time
	cacheValidDuration time.Duration
}

var _ ports.Mirror = (*Client)(nil)

// New creates a Sheets client authenticated with a service account.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.SpreadsheetID) == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	if cfg.ExpensesSheet == "" {
		cfg.ExpensesSheet = "Expenses"
	}
	if cfg.SummarySheet == "" {
		cfg.SummarySheet = "Summaries"
	}

	svc, err := newSheetsService(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}
	return &Client{
		svc:                svc,
		spreadsheetID:      cfg.SpreadsheetID,
		expensesSheet:      cfg.ExpensesSheet,
		summarySheet:       cfg.SummarySheet,
		cacheValidDuration: defaultRowCacheTTL,
	}, nil
}

// newSheetsService uses inline JSON, a key file, or GOOGLE_APPLICATION_CREDENTIALS.
func newSheetsService(ctx context.Context, cfg Config) (*gsheet.Service, error) {
	serviceAccountJSON := strings.TrimSpace(cfg.ServiceAccountJSON)
	serviceAccountFile := strings.TrimSpace(cfg.ServiceAccountFile)
	if serviceAccountJSON == "" && serviceAccountFile == "" {
		serviceAccountFile = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	var credentialsJSON []byte
	switch {
	case serviceAccountJSON != "":
		slog.InfoContext(ctx, "Using inline JSON credentials")
		credentialsJSON = []byte(serviceAccountJSON)
	case serviceAccountFile != "":
		slog.InfoContext(ctx, "Reading credentials from file", "path", serviceAccountFile)
		b, err := os.ReadFile(serviceAccountFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		credentialsJSON = b
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}

	service, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return service, nil
}

// AppendExpense writes e as a new row unless its ID is already in the sheet.
func (c *Client) AppendExpense(ctx context.Context, e core.Expense) (string, error) {
	if e.ID == "" {
		return "", errors.New("expense without id")
	}
	if c.svc == nil {
		return "", errors.New("sheets service not initialized")
	}

	row, err := c.findRow(ctx, e.ID)
	if err != nil {
		return "", err
	}
	if row > 0 {
		return rowRef(c.expensesSheet, row), nil
	}

	rng := fmt.Sprintf("%s!A:F", c.expensesSheet)
	vr := &gsheet.ValueRange{Values: [][]any{expenseRow(e)}}
	resp, err := c.svc.Spreadsheets.Values.Append(c.spreadsheetID, rng, vr).
		ValueInputOption("USER_ENTERED").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("append to sheet %s: %w", c.expensesSheet, err)
	}
	c.invalidateRowCache()

	ref := rng
	if resp.Updates != nil && resp.Updates.UpdatedRange != "" {
		ref = resp.Updates.UpdatedRange
	}
	return ref, nil
}

// DeleteExpense removes the expense's row. Rows of other users are never touched.
func (c *Client) DeleteExpense(ctx context.Context, uid, id string) error {
	if c.svc == nil {
		return errors.New("sheets service not initialized")
	}
	row, err := c.findRow(ctx, id)
	if err != nil {
		return err
	}
	if row == 0 {
		slog.DebugContext(ctx, "Expense row not found in sheet, nothing to delete", "id", id)
		return nil
	}

	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, fmt.Sprintf("%s!A%d:B%d", c.expensesSheet, row, row)).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("read row %d: %w", row, err)
	}
	if len(resp.Values) == 0 || len(resp.Values[0]) < 2 || fmt.Sprint(resp.Values[0][1]) != uid {
		return fmt.Errorf("row %d does not belong to user %s", row, uid)
	}

	meta, err := c.svc.Spreadsheets.Get(c.spreadsheetID).Fields("sheets.properties").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("read spreadsheet metadata: %w", err)
	}
	sheetID, ok := sheetIDByTitle(meta.Sheets, c.expensesSheet)
	if !ok {
		return fmt.Errorf("sheet %q not found", c.expensesSheet)
	}

	req := &gsheet.BatchUpdateSpreadsheetRequest{Requests: []*gsheet.Request{{
		DeleteDimension: &gsheet.DeleteDimensionRequest{
			Range: &gsheet.DimensionRange{
				SheetId:    sheetID,
				Dimension:  "ROWS",
				StartIndex: int64(row - 1),
				EndIndex:   int64(row),
			},
		},
	}}}
	if _, err := c.svc.Spreadsheets.BatchUpdate(c.spreadsheetID, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("delete row %d: %w", row, err)
	}
	c.invalidateRowCache()
	return nil
}

// AppendDigest appends monthly digest rows to the summary sheet.
func (c *Client) AppendDigest(ctx context.Context, rows []ports.DigestRow) error {
	if len(rows) == 0 {
		return nil
	}
	if c.svc == nil {
		return errors.New("sheets service not initialized")
	}
	values := make([][]any, 0, len(rows))
	for _, r := range rows {
		values = append(values, digestRow(r))
	}
	rng := fmt.Sprintf("%s!A:E", c.summarySheet)
	_, err := c.svc.Spreadsheets.Values.Append(c.spreadsheetID, rng, &gsheet.ValueRange{Values: values}).
		ValueInputOption("USER_ENTERED").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("append digest to sheet %s: %w", c.summarySheet, err)
	}
	return nil
}

// findRow returns the 1-based row holding id, or 0.
func (c *Client) findRow(ctx context.Context, id string) (int, error) {
	c.mu.Lock()
	if c.rowIndex != nil && time.Now().Before(c.cacheExpiresAt) {
		row := c.rowIndex[id]
		c.mu.Unlock()
		return row, nil
	}
	c.mu.Unlock()

	rng := fmt.Sprintf("%s!A:A", c.expensesSheet)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", rng, err)
	}
	index := indexRows(resp.Values)

	c.mu.Lock()
	c.rowIndex = index
	c.cachedRowCount = len(resp.Values)
	c.cacheExpiresAt = time.Now().Add(c.cacheValidDuration)
	c.mu.Unlock()
	return index[id], nil
}

func (c *Client) invalidateRowCache() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rowIndex = nil
	c.cachedRowCount = 0
	c.cacheExpiresAt = time.Time{}
}

// Package sheets mirrors the ledger into a Google spreadsheet.
package sheets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"budgeteer/internal/core"
	"budgeteer/internal/export"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

type Config struct {
	SpreadsheetID   string
	SheetName       string
	CredentialsFile string
	CredentialsJSON string
	Logger          *slog.Logger
}

// Exporter replaces the contents of one sheet with the ledger.
type Exporter struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheetName     string
	logger        *slog.Logger
}

// New authenticates with service-account credentials, inline JSON first.
func New(ctx context.Context, cfg Config) (*Exporter, error) {
	creds, err := credentials(cfg)
	if err != nil {
		return nil, err
	}
	return NewWithOptions(ctx, cfg,
		goption.WithCredentialsJSON(creds),
		goption.WithScopes(gsheet.SpreadsheetsScope))
}

// NewWithOptions builds the Sheets service from explicit client options.
func NewWithOptions(ctx context.Context, cfg Config, opts ...goption.ClientOption) (*Exporter, error) {
	if strings.TrimSpace(cfg.SpreadsheetID) == "" {
		return nil, errors.New("missing spreadsheet id")
	}
	sheetName := strings.TrimSpace(cfg.SheetName)
	if sheetName == "" {
		sheetName = "Transactions"
	}

	svc, err := gsheet.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Exporter{svc: svc, spreadsheetID: cfg.SpreadsheetID, sheetName: sheetName, logger: logger}, nil
}

func credentials(cfg Config) ([]byte, error) {
	switch {
	case strings.TrimSpace(cfg.CredentialsJSON) != "":
		return []byte(cfg.CredentialsJSON), nil
	case cfg.CredentialsFile != "":
		data, err := os.ReadFile(cfg.CredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		return data, nil
	}
	return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON or GOOGLE_SERVICE_ACCOUNT_FILE)")
}

// Export clears columns A:E and writes the header plus one row per
// transaction. It returns the updated range.
func (e *Exporter) Export(ctx context.Context, txs []core.Transaction) (string, error) {
	clearRange := fmt.Sprintf("%s!A:E", e.sheetName)
	if _, err := e.svc.Spreadsheets.Values.Clear(e.spreadsheetID, clearRange, &gsheet.ClearValuesRequest{}).
		Context(ctx).Do(); err != nil {
		return "", fmt.Errorf("clear %s: %w", clearRange, err)
	}

	rng := fmt.Sprintf("%s!A1", e.sheetName)
	resp, err := e.svc.Spreadsheets.Values.Update(e.spreadsheetID, rng, &gsheet.ValueRange{Values: Rows(txs)}).
		ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("update %s: %w", rng, err)
	}

	e.logger.InfoContext(ctx, "Exported ledger to Google Sheets",
		"spreadsheet_id", e.spreadsheetID,
		"range", resp.UpdatedRange,
		"rows", len(txs))
	return resp.UpdatedRange, nil
}

// Rows lays out the sheet with the same columns as the CSV export.
func Rows(txs []core.Transaction) [][]any {
	out := make([][]any, 0, len(txs)+1)
	header := strings.Split(export.Header, ",")
	row := make([]any, len(header))
	for i, h := range header {
		row[i] = h
	}
	out = append(out, row)

	for _, tx := range txs {
		out = append(out, []any{
			fmt.Sprint(tx.ID),
			tx.Date.USString(),
			tx.Category,
			tx.Description,
			tx.Amount.Float(),
		})
	}
	return out
}

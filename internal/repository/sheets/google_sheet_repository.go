package sheets

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"google.golang.org/api/option"
	sheetsapi "google.golang.org/api/sheets/v4"

	"github.com/mamadbah2/restock/internal/config"
	"github.com/mamadbah2/restock/internal/domain/models"
)

// RowWriter appends rows to a sheet range.
type RowWriter interface {
	WriteRow(ctx context.Context, sheetRange string, values []interface{}) error
}

// GoogleSheetRepository writes rows through the official Google Sheets API.
type GoogleSheetRepository struct {
	service       *sheetsapi.Service
	spreadsheetID string
	logger        *zap.Logger
}

// NewGoogleSheetRepository builds a Google Sheets backed repository instance.
func NewGoogleSheetRepository(ctx context.Context, cfg config.SheetsConfig, logger *zap.Logger) (*GoogleSheetRepository, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	service, err := sheetsapi.NewService(ctx, option.WithCredentialsFile(cfg.CredentialsPath), option.WithScopes(sheetsapi.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize sheets client: %w", err)
	}

	return &GoogleSheetRepository{
		service:       service,
		spreadsheetID: cfg.SpreadsheetID,
		logger:        logger,
	}, nil
}

// WriteRow appends the provided values to the supplied sheet range.
func (r *GoogleSheetRepository) WriteRow(ctx context.Context, sheetRange string, values []interface{}) error {
	if sheetRange == "" {
		return fmt.Errorf("sheetRange must not be empty")
	}

	payload := &sheetsapi.ValueRange{Values: [][]interface{}{values}}

	call := r.service.Spreadsheets.Values.Append(r.spreadsheetID, sheetRange, payload).
		ValueInputOption("USER_ENTERED").
		InsertDataOption("INSERT_ROWS").
		Context(ctx)

	if _, err := call.Do(); err != nil {
		return fmt.Errorf("append row into range %s: %w", sheetRange, err)
	}

	r.logger.Debug("row appended to sheet", zap.String("range", sheetRange))
	return nil
}

// MovementMirror copies movement records into a spreadsheet so branch
// managers can read the audit trail without database access.
type MovementMirror struct {
	writer     RowWriter
	sheetRange string
}

// NewMovementMirror wraps a RowWriter targeting sheetRange.
func NewMovementMirror(writer RowWriter, sheetRange string) *MovementMirror {
	return &MovementMirror{writer: writer, sheetRange: sheetRange}
}

// RecordMovement appends one movement row.
func (m *MovementMirror) RecordMovement(ctx context.Context, record models.MovementRecord) error {
	return m.writer.WriteRow(ctx, m.sheetRange, MovementRow(record))
}

// MovementRow flattens a movement record into sheet columns.
func MovementRow(record models.MovementRecord) []interface{} {
	return []interface{}{
		record.CreatedAt.UTC().Format(time.RFC3339),
		record.LocationID,
		record.ItemName,
		record.QuantityDelta,
		record.PreviousStock,
		record.NewStock,
		record.Reason,
		record.Reference,
		record.Actor,
	}
}

// Package sheets exports archived days to a Google spreadsheet. The sink is
// strictly best-effort bookkeeping on top of the replicated history: the
// ledger never depends on it and a failed append never fails a day-end close.
package sheets

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"google.golang.org/api/option"
	sheetsapi "google.golang.org/api/sheets/v4"

	cashbook "github.com/IndikaEK123456/Cash-Book-5"
)

// DefaultRange is the sheet range rows are appended to when the caller does
// not pick one.
const DefaultRange = "History!A:H"

// Sink appends one spreadsheet row per archived day.
type Sink struct {
	service       *sheetsapi.Service
	spreadsheetID string
	sheetRange    string
	logger        *zap.Logger
}

// New builds a spreadsheet-backed history sink. An empty sheetRange selects
// DefaultRange.
func New(ctx context.Context, spreadsheetID, credentialsPath, sheetRange string, logger *zap.Logger) (*Sink, error) {
	if spreadsheetID == "" {
		return nil, fmt.Errorf("spreadsheet id is required")
	}
	if sheetRange == "" {
		sheetRange = DefaultRange
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	service, err := sheetsapi.NewService(ctx, option.WithCredentialsFile(credentialsPath), option.WithScopes(sheetsapi.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize sheets client: %w", err)
	}

	return &Sink{
		service:       service,
		spreadsheetID: spreadsheetID,
		sheetRange:    sheetRange,
		logger:        logger,
	}, nil
}

// AppendClosedDay appends the archived day's figures as one row: date,
// opening balance, cash in, cash out, card, paypal, totals and the final
// balance the next day opens with.
func (s *Sink) AppendClosedDay(ctx context.Context, record cashbook.HistoryRecord) error {
	totals := cashbook.Aggregate(record.Snapshot.OutParty, record.Snapshot.Main, record.Snapshot.OpeningBalance)

	row := []interface{}{
		record.ClosedDate,
		totals.Opening.String(),
		totals.TotalCashIn.String(),
		totals.TotalCashOut.String(),
		totals.TotalCard.String(),
		totals.TotalPaypal.String(),
		record.FinalBalance.String(),
		record.ID,
	}
	payload := &sheetsapi.ValueRange{Values: [][]interface{}{row}}

	call := s.service.Spreadsheets.Values.Append(s.spreadsheetID, s.sheetRange, payload).
		ValueInputOption("USER_ENTERED").
		InsertDataOption("INSERT_ROWS").
		Context(ctx)

	if _, err := call.Do(); err != nil {
		return fmt.Errorf("append closed day %s: %w", record.ClosedDate, err)
	}

	s.logger.Debug("closed day exported", zap.String("date", record.ClosedDate), zap.String("record", record.ID))
	return nil
}

var _ cashbook.HistorySink = (*Sink)(nil)

package cashbook

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// ClosedDateLayout is the date format of HistoryRecord.ClosedDate.
const ClosedDateLayout = "2006-01-02"

// ExchangeRates maps a currency code to its rate against the book currency.
// Rates are session data set by the editor; where they come from is the
// caller's business.
type ExchangeRates map[string]decimal.Decimal

// Snapshot freezes the full live state of a day at close time.
type Snapshot struct {
	OpeningBalance decimal.Decimal `json:"openingBalance"`
	OutParty       []OutPartyEntry `json:"outPartyEntries"`
	Main           []MainEntry     `json:"mainEntries"`
	Rates          ExchangeRates   `json:"exchangeRates,omitempty"`
}

// HistoryRecord is one archived day. Immutable once appended to the history
// sequence.
type HistoryRecord struct {
	ID           string          `json:"id"`
	ClosedDate   string          `json:"closedDate"`
	FinalBalance decimal.Decimal `json:"finalBalance"`
	Snapshot     Snapshot        `json:"snapshot"`
}

// Validate checks the record shape on arrival from the store.
func (r HistoryRecord) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("history record without id")
	}
	if r.ClosedDate == "" {
		return fmt.Errorf("history record %s: empty closed date", r.ID)
	}
	return nil
}

// History is the replicated prepend-only sequence of archived days, newest
// first. It travels as one value so every replica sees the same order.
type History []HistoryRecord

// Validate checks every record of the sequence.
func (h History) Validate() error {
	for _, r := range h {
		if err := r.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Contains reports whether a record with the given id is already present.
func (h History) Contains(id string) bool {
	for _, r := range h {
		if r.ID == id {
			return true
		}
	}
	return false
}

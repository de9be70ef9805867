package cashbook

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// PayMethod is the tender type of an entry.
type PayMethod string

const (
	Cash   PayMethod = "CASH"
	Card   PayMethod = "CARD"
	Paypal PayMethod = "PAYPAL"
)

// ParseMethod converts a raw payload string into a PayMethod.
func ParseMethod(s string) (PayMethod, error) {
	switch PayMethod(s) {
	case Cash, Card, Paypal:
		return PayMethod(s), nil
	default:
		return "", fmt.Errorf("unknown pay method %q", s)
	}
}

// Valid reports whether the method is one of the known tender types.
func (m PayMethod) Valid() bool {
	return m == Cash || m == Card || m == Paypal
}

// OutPartyEntry is a single amount received from an out party. Seq is a
// display hint assigned at creation time only; replicas may disagree on it
// and nothing may key or order aggregation by it.
type OutPartyEntry struct {
	ID     string          `json:"id"`
	Seq    int             `json:"sequenceIndex"`
	Method PayMethod       `json:"method"`
	Amount decimal.Decimal `json:"amount"`
}

// Validate checks the entry against the ledger invariants. Missing amounts
// decode as zero, which is valid; negative amounts are not.
func (e OutPartyEntry) Validate() error {
	if e.ID == "" {
		return fmt.Errorf("out-party entry without id")
	}
	if !e.Method.Valid() {
		return fmt.Errorf("out-party entry %s: unknown pay method %q", e.ID, e.Method)
	}
	if e.Amount.IsNegative() {
		return fmt.Errorf("out-party entry %s: negative amount %s", e.ID, e.Amount)
	}
	return nil
}

// MainEntry is a single main-book row. Room may be empty.
type MainEntry struct {
	ID          string          `json:"id"`
	Room        string          `json:"roomNumber"`
	Description string          `json:"description"`
	Method      PayMethod       `json:"method"`
	CashIn      decimal.Decimal `json:"cashIn"`
	CashOut     decimal.Decimal `json:"cashOut"`
}

// Validate checks the entry against the ledger invariants.
func (e MainEntry) Validate() error {
	if e.ID == "" {
		return fmt.Errorf("main entry without id")
	}
	if !e.Method.Valid() {
		return fmt.Errorf("main entry %s: unknown pay method %q", e.ID, e.Method)
	}
	if e.CashIn.IsNegative() {
		return fmt.Errorf("main entry %s: negative cash in %s", e.ID, e.CashIn)
	}
	if e.CashOut.IsNegative() {
		return fmt.Errorf("main entry %s: negative cash out %s", e.ID, e.CashOut)
	}
	return nil
}

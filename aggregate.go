package cashbook

import "github.com/shopspring/decimal"

// Totals is the full set of derived figures for one day of the book.
type Totals struct {
	Opening   decimal.Decimal `json:"openingBalance"`
	OutCash   decimal.Decimal `json:"outCash"`
	OutCard   decimal.Decimal `json:"outCard"`
	OutPaypal decimal.Decimal `json:"outPaypal"`
	CashIn    decimal.Decimal `json:"cashIn"`
	CashOut   decimal.Decimal `json:"cashOut"`
	CardIn    decimal.Decimal `json:"cardIn"`
	PaypalIn  decimal.Decimal `json:"paypalIn"`

	// TotalCard and TotalPaypal combine out-party receipts with main-book
	// income of the same tender.
	TotalCard   decimal.Decimal `json:"totalCard"`
	TotalPaypal decimal.Decimal `json:"totalPaypal"`

	TotalCashIn  decimal.Decimal `json:"totalCashIn"`
	TotalCashOut decimal.Decimal `json:"totalCashOut"`
	FinalBalance decimal.Decimal `json:"finalBalance"`
}

// Aggregate derives the day's totals from the live entries and the opening
// balance. It is a pure function: same inputs in any order give the same
// totals, and nothing else feeds it.
//
// Every out-party amount counts as cash received into the main book, whatever
// its tender. Card and PayPal income is then mirrored back out as a
// settlement of non-cash tender, so TotalCashOut carries card/PayPal amounts
// on top of the literal main-book cash-out rows. That mirror is a business
// rule of the book, not an accounting identity: keep the formula as written.
func Aggregate(outParty []OutPartyEntry, main []MainEntry, opening decimal.Decimal) Totals {
	t := Totals{Opening: opening}

	for _, e := range outParty {
		switch e.Method {
		case Cash:
			t.OutCash = t.OutCash.Add(e.Amount)
		case Card:
			t.OutCard = t.OutCard.Add(e.Amount)
		case Paypal:
			t.OutPaypal = t.OutPaypal.Add(e.Amount)
		}
	}

	for _, e := range main {
		t.CashIn = t.CashIn.Add(e.CashIn)
		t.CashOut = t.CashOut.Add(e.CashOut)
		switch e.Method {
		case Card:
			t.CardIn = t.CardIn.Add(e.CashIn)
		case Paypal:
			t.PaypalIn = t.PaypalIn.Add(e.CashIn)
		}
	}

	t.TotalCard = t.OutCard.Add(t.CardIn)
	t.TotalPaypal = t.OutPaypal.Add(t.PaypalIn)

	t.TotalCashIn = opening.Add(t.CashIn).Add(t.OutCash).Add(t.OutCard).Add(t.OutPaypal)
	t.TotalCashOut = t.CashOut.Add(t.TotalCard).Add(t.TotalPaypal)
	t.FinalBalance = t.TotalCashIn.Sub(t.TotalCashOut)

	return t
}

package cashbook

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/IndikaEK123456/Cash-Book-5/replication"
)

// Codecs for every replicated payload of a session. All payloads are strict
// JSON: decode, then validate, and drop what does not hold up.

func outPartyCodec() replication.Codec[OutPartyEntry] {
	return replication.NewJSONCodec(OutPartyEntry.Validate)
}

func mainCodec() replication.Codec[MainEntry] {
	return replication.NewJSONCodec(MainEntry.Validate)
}

// The opening balance is a bare signed decimal; any well-formed number is
// acceptable.
func balanceCodec() replication.Codec[decimal.Decimal] {
	return replication.NewJSONCodec[decimal.Decimal](nil)
}

func ratesCodec() replication.Codec[ExchangeRates] {
	return replication.NewJSONCodec(func(r ExchangeRates) error {
		for code, rate := range r {
			if code == "" {
				return fmt.Errorf("exchange rate without currency code")
			}
			if rate.IsNegative() {
				return fmt.Errorf("exchange rate %s: negative rate %s", code, rate)
			}
		}
		return nil
	})
}

func historyCodec() replication.Codec[History] {
	return replication.NewJSONCodec(History.Validate)
}

func markerCodec() replication.Codec[HistoryRecord] {
	return replication.NewJSONCodec(HistoryRecord.Validate)
}

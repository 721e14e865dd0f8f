// Package vat resolves the VAT slot an order line is booked under.
package vat

import (
	"github.com/shopspring/decimal"
)

// SlotCount is the number of canonical rate positions a VAT table defines.
const SlotCount = 4

// Slot is the stable index (0..3) of a rate inside a VAT table. Downstream
// consumers key on the slot instead of the floating rate value.
type Slot int

// Valid reports whether s addresses one of the canonical positions.
func (s Slot) Valid() bool {
	return s >= 0 && s < SlotCount
}

// Table is a VAT configuration for one country of a sales channel.
type Table struct {
	// ID identifies the configuration and is stamped on order lines as the country VAT id.
	ID        int64                      `json:"id"`
	ChannelID int64                      `json:"channelId"`
	CountryID int64                      `json:"countryId"`
	StoreID   int64                      `json:"storeId"`
	Rates     [SlotCount]decimal.Decimal `json:"rates"`
	Standard  bool                       `json:"standard"`
}

// Match returns the first slot carrying exactly rate.
func (t Table) Match(rate decimal.Decimal) (Slot, bool) {
	for i, r := range t.Rates {
		if r.Equal(rate) {
			return Slot(i), true
		}
	}
	return 0, false
}

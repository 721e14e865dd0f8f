// Package basket holds the basket snapshot read at conversion time and the
// reconciliation applied to persisted lines after a stock shortage.
package basket

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/toko-orderlines/internal/stock"
)

// PropertyTypeFile marks a property whose value references an uploaded file.
const PropertyTypeFile = "file"

// Property is a custom order property attached to a basket line. Value holds
// the property text; numeric and boolean values keep their JSON literal form.
type Property struct {
	PropertyID int64  `json:"propertyId"`
	Type       string `json:"type"`
	Value      string `json:"value"`
}

// UnmarshalJSON accepts string, number, boolean and null values. File
// references must be strings.
func (p *Property) UnmarshalJSON(data []byte) error {
	var raw struct {
		PropertyID int64           `json:"propertyId"`
		Type       string          `json:"type"`
		Value      json.RawMessage `json:"value"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	p.PropertyID, p.Type, p.Value = raw.PropertyID, raw.Type, ""

	value := bytes.TrimSpace(raw.Value)
	switch {
	case len(value) == 0 || bytes.Equal(value, []byte("null")):
		return nil
	case value[0] == '"':
		return json.Unmarshal(value, &p.Value)
	case p.IsFile():
		return fmt.Errorf("property %d: file reference must be a string", p.PropertyID)
	case value[0] == '{' || value[0] == '[':
		return fmt.Errorf("property %d: unsupported value %s", p.PropertyID, value)
	}
	p.Value = string(value)
	return nil
}

// IsFile reports whether the property value is a file reference.
func (p Property) IsFile() bool {
	return p.Type == PropertyTypeFile
}

// VariationTexts carries the descriptive names of a variation.
type VariationTexts struct {
	Name1         string `json:"name1"`
	Name2         string `json:"name2"`
	Name3         string `json:"name3"`
	VariationName string `json:"variationName"`
}

// Line is a single basket entry as submitted for conversion.
type Line struct {
	// ID is the basket-item id. Positive ids are server-assigned and persisted.
	ID                    int64
	ItemID                int64
	VariationID           int64
	OrderRowID            int64
	Quantity              int
	Price                 decimal.Decimal
	DefaultBasePrice      decimal.Decimal
	SpecialOfferBasePrice *decimal.Decimal
	AttributeTotalMarkup  decimal.Decimal
	Rebate                decimal.Decimal
	ShippingProfileID     int64
	ReferrerID            int64
	VatRate               decimal.Decimal
	Properties            []Property
	Texts                 VariationTexts
}

// Persisted reports whether the line lives in basket storage.
func (l Line) Persisted() bool {
	return l.ID > 0
}

// OriginalGrossPrice is the special-offer base price when it is the price
// currently applied, and the default base price otherwise. A special-offer
// price equal to the default price takes the default path.
func (l Line) OriginalGrossPrice() decimal.Decimal {
	if l.SpecialOfferBasePrice != nil &&
		!l.SpecialOfferBasePrice.Equal(l.DefaultBasePrice) &&
		l.Price.Equal(*l.SpecialOfferBasePrice) {
		return l.Price
	}
	return l.DefaultBasePrice
}

// CheckItem projects the line onto the fields the stock check needs.
func (l Line) CheckItem() stock.CheckItem {
	return stock.CheckItem{
		BasketItemID: l.ID,
		ItemID:       l.ItemID,
		VariationID:  l.VariationID,
		OrderRowID:   l.OrderRowID,
		Quantity:     l.Quantity,
	}
}

// Basket is the snapshot of a shopper's basket at conversion time.
type Basket struct {
	ID                     int64
	Lines                  []Line
	ShippingAmount         decimal.Decimal
	CouponDiscount         decimal.Decimal
	ShippingDeleteByCoupon bool
	// BasketRebate is a percentage applied on top of every line's own rebate.
	BasketRebate           decimal.Decimal
	Currency               string
	PaymentMethodID        int64
	ChannelID              int64
	ShippingCountryID      int64
}

// Shortage records a line that failed the stock check together with the net
// quantity that is still available. The net quantity may be zero or negative.
type Shortage struct {
	Line        Line
	NetQuantity int
}

// Package orderitem turns a basket snapshot into the order lines handed to
// order persistence.
package orderitem

import (
	"github.com/shopspring/decimal"

	"github.com/noah-isme/toko-orderlines/internal/vat"
)

// Type tags the kind of an order line.
type Type int

const (
	TypeVariation        Type = 1
	TypeShippingCosts    Type = 6
	TypePaymentSurcharge Type = 7
)

func (t Type) String() string {
	switch t {
	case TypeVariation:
		return "variation"
	case TypeShippingCosts:
		return "shipping_costs"
	case TypePaymentSurcharge:
		return "payment_surcharge"
	default:
		return "unknown"
	}
}

// Names of the synthetic lines appended to every order.
const (
	ShippingCostsName    = "shipping costs"
	PaymentSurchargeName = "payment surcharge"
)

// Amount is the price of a line in one currency.
type Amount struct {
	Currency           string          `json:"currency"`
	PriceOriginalGross decimal.Decimal `json:"priceOriginalGross"`
	Surcharge          decimal.Decimal `json:"surcharge"`
	Discount           decimal.Decimal `json:"discount"`
	IsPercentage       bool            `json:"isPercentage"`
}

// Property is a resolved custom property of an order line.
type Property struct {
	PropertyID int64  `json:"propertyId"`
	Value      string `json:"value"`
}

// Line is a single order line.
type Line struct {
	Type              Type            `json:"typeId"`
	ReferrerID        int64           `json:"referrerId"`
	ItemVariationID   int64           `json:"itemVariationId,omitempty"`
	Quantity          int             `json:"quantity"`
	Name              string          `json:"orderItemName"`
	ShippingProfileID int64           `json:"shippingProfileId,omitempty"`
	CountryVatID      int64           `json:"countryVatId"`
	VatRate           decimal.Decimal `json:"vatRate"`
	VatField          vat.Slot        `json:"vatField"`
	Properties        []Property      `json:"properties,omitempty"`
	Amounts           []Amount        `json:"amounts"`
}

package basket_test

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-orderlines/internal/basket"
)

func dec(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func decPtr(v string) *decimal.Decimal {
	d := dec(v)
	return &d
}

func TestOriginalGrossPrice(t *testing.T) {
	cases := []struct {
		name string
		line basket.Line
		want string
	}{
		{
			name: "default price applied",
			line: basket.Line{Price: dec("20.00"), DefaultBasePrice: dec("20.00"), SpecialOfferBasePrice: decPtr("15.00")},
			want: "20",
		},
		{
			name: "special offer applied",
			line: basket.Line{Price: dec("15.00"), DefaultBasePrice: dec("20.00"), SpecialOfferBasePrice: decPtr("15.00")},
			want: "15",
		},
		{
			name: "no special offer",
			line: basket.Line{Price: dec("12.50"), DefaultBasePrice: dec("20.00")},
			want: "20",
		},
		{
			name: "graduated price falls back to default",
			line: basket.Line{Price: dec("18.00"), DefaultBasePrice: dec("20.00"), SpecialOfferBasePrice: decPtr("15.00")},
			want: "20",
		},
		{
			name: "special equals default takes default path",
			line: basket.Line{Price: dec("20.00"), DefaultBasePrice: dec("20.00"), SpecialOfferBasePrice: decPtr("20.00")},
			want: "20",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := tc.line.OriginalGrossPrice()
			require.True(t, got.Equal(dec(tc.want)), "got %s want %s", got, tc.want)
		})
	}
}

func TestLinePersisted(t *testing.T) {
	require.True(t, basket.Line{ID: 1}.Persisted())
	require.False(t, basket.Line{ID: 0}.Persisted())
	require.False(t, basket.Line{ID: -3}.Persisted())
}

func TestLineCheckItem(t *testing.T) {
	line := basket.Line{ID: 5, ItemID: 100, VariationID: 1010, OrderRowID: 9, Quantity: 3, Price: dec("1")}
	item := line.CheckItem()
	require.Equal(t, int64(5), item.BasketItemID)
	require.Equal(t, int64(100), item.ItemID)
	require.Equal(t, int64(1010), item.VariationID)
	require.Equal(t, int64(9), item.OrderRowID)
	require.Equal(t, 3, item.Quantity)
}

func TestPropertyIsFile(t *testing.T) {
	require.True(t, basket.Property{Type: basket.PropertyTypeFile}.IsFile())
	require.False(t, basket.Property{Type: "text"}.IsFile())
}

func TestPropertyUnmarshalTypedValues(t *testing.T) {
	var props []basket.Property
	raw := `[
		{"propertyId":1,"type":"text","value":"red"},
		{"propertyId":2,"type":"int","value":3},
		{"propertyId":3,"type":"float","value":2.50},
		{"propertyId":4,"type":"selection","value":true},
		{"propertyId":5,"type":"empty","value":null},
		{"propertyId":6,"type":"file","value":"basket/a.pdf"}
	]`
	require.NoError(t, json.Unmarshal([]byte(raw), &props))
	require.Equal(t, []basket.Property{
		{PropertyID: 1, Type: "text", Value: "red"},
		{PropertyID: 2, Type: "int", Value: "3"},
		{PropertyID: 3, Type: "float", Value: "2.50"},
		{PropertyID: 4, Type: "selection", Value: "true"},
		{PropertyID: 5, Type: "empty", Value: ""},
		{PropertyID: 6, Type: basket.PropertyTypeFile, Value: "basket/a.pdf"},
	}, props)
}

func TestPropertyUnmarshalRejectsNonStringFile(t *testing.T) {
	var p basket.Property
	require.Error(t, json.Unmarshal([]byte(`{"propertyId":6,"type":"file","value":42}`), &p))
	require.Error(t, json.Unmarshal([]byte(`{"propertyId":7,"type":"text","value":{"a":1}}`), &p))
}

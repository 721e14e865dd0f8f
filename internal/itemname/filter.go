// Package itemname picks the display name of a variation for an order line.
package itemname

import (
	"strings"

	"github.com/noah-isme/toko-orderlines/internal/basket"
)

// Filter selects one of the three item names and optionally appends the
// variation name.
type Filter struct {
	// Preferred is 1, 2 or 3. Other values behave like 1.
	Preferred           int
	AppendVariationName bool
}

// DisplayName returns the preferred name, falling back to Name1 when the
// preferred one is blank.
func (f Filter) DisplayName(t basket.VariationTexts) string {
	name := ""
	switch f.Preferred {
	case 2:
		name = t.Name2
	case 3:
		name = t.Name3
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = strings.TrimSpace(t.Name1)
	}
	if !f.AppendVariationName {
		return name
	}
	variation := strings.TrimSpace(t.VariationName)
	switch {
	case variation == "":
		return name
	case name == "":
		return variation
	default:
		return name + " " + variation
	}
}

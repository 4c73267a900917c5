/*
Package units converts unit prices between order units and price units.

PURPOSE:
  Receiving staff often quote a price in a different unit than the one the
  station ordered in (ordered in 斤, invoice says per 千克). The receiving
  transaction stores every price in the line's order unit, so the entered
  price must be converted first.

SUPPORTED UNITS:
  Only weight-class units have known factors (grams-equivalent):
    克 / g          1
    千克 / kg / 公斤  1000
    斤              500
  Everything else (个, 箱, 包, ...) is a "non-weight" unit and can only be
  converted to itself.

PRICE SCALING:
  A price scales inversely to quantity. 1 千克 is 1000 克, so a price of 0.01
  per 克 is 10 per 千克:

    Convert(0.01, "克", "千克") == 10

SEE ALSO:
  - purchasing/receiving.go: Uses Convert inside the lock transaction
*/
package units

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrNotConvertible is returned when no conversion factor exists between two units.
var ErrNotConvertible = errors.New("units are not convertible")

// Canonical weight units, in the order offered to operators.
const (
	Gram     = "克"
	Kilogram = "千克"
	Jin      = "斤"
)

var weightFactors = map[string]decimal.Decimal{
	"g":  decimal.NewFromInt(1),
	"克":  decimal.NewFromInt(1),
	"kg": decimal.NewFromInt(1000),
	"千克": decimal.NewFromInt(1000),
	"公斤": decimal.NewFromInt(1000),
	"斤":  decimal.NewFromInt(500),
}

func rawKey(unit string) string {
	return strings.ToLower(strings.TrimSpace(unit))
}

// NormalizeAlias maps the ASCII aliases "g" and "kg" (any case) to 克 and 千克.
// Any other unit is returned trimmed.
func NormalizeAlias(unit string) string {
	switch rawKey(unit) {
	case "g":
		return Gram
	case "kg":
		return Kilogram
	}
	return strings.TrimSpace(unit)
}

// IsWeightUnit reports whether unit has a known grams-equivalent factor.
func IsWeightUnit(unit string) bool {
	_, ok := weightFactors[rawKey(unit)]
	return ok
}

// Convert re-expresses a price quoted per fromUnit as a price per toUnit.
// Same units (after alias normalization, case-insensitive) return price unchanged.
func Convert(price decimal.Decimal, fromUnit, toUnit string) (decimal.Decimal, error) {
	if rawKey(NormalizeAlias(fromUnit)) == rawKey(NormalizeAlias(toUnit)) {
		return price, nil
	}

	fromFactor, fromOK := weightFactors[rawKey(fromUnit)]
	toFactor, toOK := weightFactors[rawKey(toUnit)]
	if !fromOK || !toOK {
		return decimal.Decimal{}, ErrNotConvertible
	}

	return price.Mul(toFactor).Div(fromFactor), nil
}

// PriceUnitOptions lists the units an operator may quote a price in: the order
// unit, then the caller's unit library, then the canonical weight units.
// Entries are alias-normalized and de-duplicated, keeping first occurrence.
func PriceUnitOptions(orderUnit string, library []string) []string {
	seen := make(map[string]bool)
	var out []string
	push := func(u string) {
		clean := NormalizeAlias(u)
		if clean == "" || seen[clean] {
			return
		}
		seen[clean] = true
		out = append(out, clean)
	}

	push(orderUnit)
	for _, u := range library {
		push(u)
	}
	push(Gram)
	push(Kilogram)
	push(Jin)
	return out
}

// Package unit normalizes heterogeneous product quantity metadata into a
// canonical (value, dimension) pair and converts between compatible units.
// Mass is kept in kilograms, volume in liters, count in pieces.
package unit

import (
	"errors"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// Dimension is the kind of quantity stock is tracked in.
type Dimension string

const (
	// Count is discrete pieces.
	Count Dimension = "count"
	// Mass is kilograms.
	Mass Dimension = "mass"
	// Volume is liters.
	Volume Dimension = "volume"
)

// ErrUnsellable indicates the product metadata cannot yield a usable
// consumption figure for the requested stock dimension.
var ErrUnsellable = errors.New("unit: product is unsellable in the requested dimension")

// ErrIncompatible indicates a conversion between incompatible dimensions.
var ErrIncompatible = errors.New("unit: incompatible dimensions")

// Quantity is a parsed product quantity in base units of its dimension.
type Quantity struct {
	Value float64
	Dim   Dimension
	// Detected is false when no unit token could be found and the value
	// fell back to Count.
	Detected bool
}

// Descriptor carries the raw unit metadata a product may declare. Sources are
// consulted in field order: quantity text, numeric quantity plus explicit
// unit, size label, then the count fallback.
type Descriptor struct {
	QuantityText  string
	QuantityValue float64
	QuantityUnit  string
	SizeLabel     string
}

var quantityPattern = regexp.MustCompile(`^([0-9]*\.?[0-9]+)\s*([A-Za-z]+)$`)

// factor maps a normalized unit token to its dimension and multiplier into
// base units.
var tokenTable = map[string]struct {
	dim    Dimension
	factor float64
}{
	"nos": {Count, 1}, "no": {Count, 1}, "pc": {Count, 1}, "pcs": {Count, 1},
	"piece": {Count, 1}, "pieces": {Count, 1}, "num": {Count, 1}, "number": {Count, 1},
	"kg": {Mass, 1}, "kilo": {Mass, 1}, "kilogram": {Mass, 1}, "kilograms": {Mass, 1},
	"g": {Mass, 0.001}, "gm": {Mass, 0.001}, "gram": {Mass, 0.001}, "grams": {Mass, 0.001},
	"l": {Volume, 1}, "ltr": {Volume, 1}, "liter": {Volume, 1}, "liters": {Volume, 1},
	"ml": {Volume, 0.001}, "milli": {Volume, 0.001}, "milliliter": {Volume, 0.001}, "milliliters": {Volume, 0.001},
}

// ParseToken parses a "150 ML" style quantity string into base units.
func ParseToken(s string) (Quantity, bool) {
	m := quantityPattern.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return Quantity{}, false
	}
	value, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return Quantity{}, false
	}
	entry, ok := tokenTable[strings.ToLower(m[2])]
	if !ok {
		return Quantity{}, false
	}
	return Quantity{Value: value * entry.factor, Dim: entry.dim, Detected: true}, true
}

// Parse resolves a descriptor into a canonical quantity using the fixed
// source order. When nothing matches the result is one count with
// Detected=false; a bare numeric quantity keeps its value so the small-unit
// fallback can apply later.
func Parse(d Descriptor) Quantity {
	if q, ok := ParseToken(d.QuantityText); ok {
		return q
	}
	if d.QuantityValue > 0 {
		if entry, ok := tokenTable[strings.ToLower(strings.TrimSpace(d.QuantityUnit))]; ok {
			return Quantity{Value: d.QuantityValue * entry.factor, Dim: entry.dim, Detected: true}
		}
		return Quantity{Value: d.QuantityValue, Dim: Count, Detected: false}
	}
	if q, ok := ParseToken(d.SizeLabel); ok {
		return q
	}
	return Quantity{Value: 1, Dim: Count, Detected: false}
}

// Convert translates a value between dimensions. Mass and volume convert
// one-to-one (1 L taken as 1 kg, a canteen-liquids policy; callers needing
// density accuracy must supply it per product). Count never converts.
func Convert(value float64, from, to Dimension) (float64, error) {
	if from == to {
		return value, nil
	}
	if (from == Mass && to == Volume) || (from == Volume && to == Mass) {
		return value, nil
	}
	return 0, ErrIncompatible
}

// smallUnitFallback covers legacy products that store a bare number like
// "500" meaning 500 g or 500 mL. Scheduled for removal once product data is
// cleaned; values outside the window are taken as already in base units.
const (
	fallbackMin = 50
	fallbackMax = 2000
)

// Consumption computes how much stock an order line consumes in the target
// dimension: parsed value x noQty x orderQty, converted. Mass and volume are
// rounded to 3 decimals, count to a whole number.
func Consumption(q Quantity, noQty float64, orderQty float64, target Dimension) (float64, error) {
	if noQty <= 0 {
		noQty = 1
	}
	value := q.Value
	dim := q.Dim

	if !q.Detected && (target == Mass || target == Volume) {
		if value >= fallbackMin && value <= fallbackMax {
			value = value / 1000
		}
		dim = target
	}

	if target == Mass || target == Volume {
		converted, err := Convert(value, dim, target)
		if err != nil {
			return 0, ErrUnsellable
		}
		if converted == 0 {
			return 0, ErrUnsellable
		}
		return round3(converted * noQty * orderQty), nil
	}

	// Count target: detected count units multiply through; anything else
	// falls back to pieces per item.
	if q.Detected && dim == Count {
		return math.Round(value * noQty * orderQty), nil
	}
	return math.Round(noQty * orderQty), nil
}

// Format renders a base-unit value in the dimension's canonical unit.
func Format(value float64, dim Dimension) string {
	switch dim {
	case Mass:
		return strconv.FormatFloat(round3(value), 'f', -1, 64) + " kg"
	case Volume:
		return strconv.FormatFloat(round3(value), 'f', -1, 64) + " L"
	default:
		return strconv.FormatFloat(math.Round(value), 'f', -1, 64) + " Nos"
	}
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}

package coin

import (
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"
)

const (
	// Atomic units in one large unit
	AtomicPerLarge = 100

	LargeUnitName  = "gold"
	AtomicUnitName = "silver"
)

var (
	atomicPerLarge = decimal.NewFromInt(AtomicPerLarge)

	// Decimal places needed to show every atomic unit of a large unit
	largeUnitPlaces = int32(len(strconv.Itoa(AtomicPerLarge - 1)))
)

// ToLargeUnit converts atomic units to large units: 12345 -> 123.45
func ToLargeUnit(units int64) decimal.Decimal {
	return decimal.NewFromInt(units).Div(atomicPerLarge)
}

// ToAtomicUnit converts large units to atomic units truncating the sub-unit part: 0.999 -> 99
func ToAtomicUnit(large decimal.Decimal) int64 {
	return large.Mul(atomicPerLarge).IntPart()
}

// FormatDisplay renders units as "123 gold 45 silver".
// Zero components are omitted, amounts under one large unit use the atomic name only.
func FormatDisplay(units int64) string {
	sign, abs := splitSign(units)
	large, rest := abs/AtomicPerLarge, abs%AtomicPerLarge

	switch {
	case large == 0:
		return fmt.Sprintf("%s%d %s", sign, rest, AtomicUnitName)
	case rest == 0:
		return fmt.Sprintf("%s%d %s", sign, large, LargeUnitName)
	default:
		return fmt.Sprintf("%s%d %s %d %s", sign, large, LargeUnitName, rest, AtomicUnitName)
	}
}

// FormatAsLargeUnit renders units as large units with fixed decimals: "123.45 gold"
func FormatAsLargeUnit(units int64) string {
	return ToLargeUnit(units).StringFixed(largeUnitPlaces) + " " + LargeUnitName
}

// math.MinInt64 has no positive int64 counterpart, so the magnitude is unsigned
func splitSign(units int64) (string, uint64) {
	if units < 0 {
		return "-", uint64(-(units + 1)) + 1
	}
	return "", uint64(units)
}

package coin

import (
	"fmt"
	"math"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestToLargeUnit(t *testing.T) {
	tests := []struct {
		units    int64
		expected string
	}{
		{12345, "123.45"},
		{100, "1"},
		{1, "0.01"},
		{0, "0"},
		{-250, "-2.5"},
	}

	for _, tt := range tests {
		got := ToLargeUnit(tt.units)

		require.Truef(t, got.Equal(decimal.RequireFromString(tt.expected)), "ToLargeUnit(%d) = %s, want %s", tt.units, got, tt.expected)
	}
}

func TestToAtomicUnit(t *testing.T) {
	t.Run("truncates sub-unit part", func(t *testing.T) {
		require.Equal(t, int64(99), ToAtomicUnit(decimal.RequireFromString("0.999")), "0.999 must never round up to 100")
		require.Equal(t, int64(12345), ToAtomicUnit(decimal.RequireFromString("123.456")))
		require.Equal(t, int64(0), ToAtomicUnit(decimal.RequireFromString("0.009")))
	})

	t.Run("round trip for whole large units", func(t *testing.T) {
		for _, units := range []int64{0, 100, 500, 123400, 100 * 1_000_000} {
			require.Equal(t, units, ToAtomicUnit(ToLargeUnit(units)), "round trip must be exact for %d", units)
		}
	})
}

func TestFormatDisplay(t *testing.T) {
	tests := []struct {
		units    int64
		expected string
	}{
		{12345, "123 gold 45 silver"},
		{0, "0 silver"},
		{99, "99 silver"},
		{100, "1 gold"},
		{101, "1 gold 1 silver"},
		{-12345, "-123 gold 45 silver"},
		{math.MinInt64, "-92233720368547758 gold 8 silver"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			require.Equal(t, tt.expected, FormatDisplay(tt.units))
		})
	}
}

func TestFormatAsLargeUnit(t *testing.T) {
	require.Equal(t, "123.45 gold", FormatAsLargeUnit(12345))
	require.Equal(t, "0.05 gold", FormatAsLargeUnit(5))
	require.Equal(t, "0.00 gold", FormatAsLargeUnit(0))
	require.Equal(t, "7.00 gold", FormatAsLargeUnit(700))
}

func TestUnitFunctionsAgreeOnRatio(t *testing.T) {
	for _, units := range []int64{0, 1, AtomicPerLarge - 1, AtomicPerLarge, 12345, 987654321, -12345} {
		t.Run(fmt.Sprint(units), func(t *testing.T) {
			large := ToLargeUnit(units)
			require.True(t, large.Mul(decimal.NewFromInt(AtomicPerLarge)).Equal(decimal.NewFromInt(units)))

			rendered, found := strings.CutSuffix(FormatAsLargeUnit(units), " "+LargeUnitName)
			require.True(t, found)
			require.True(t, decimal.RequireFromString(rendered).Equal(large), "%s must render %s", rendered, large)

			abs := units
			if abs < 0 {
				abs = -abs
			}
			whole, rest := abs/AtomicPerLarge, abs%AtomicPerLarge
			display := FormatDisplay(units)
			if whole > 0 {
				require.Contains(t, display, fmt.Sprintf("%d %s", whole, LargeUnitName))
			}
			if rest > 0 || whole == 0 {
				require.Contains(t, display, fmt.Sprintf("%d %s", rest, AtomicUnitName))
			}
		})
	}
}

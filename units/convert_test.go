package units_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/kitchen-orders/units"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// =============================================================================
// ALIASES
// =============================================================================

func TestNormalizeAlias(t *testing.T) {
	assert.Equal(t, "克", units.NormalizeAlias("g"))
	assert.Equal(t, "克", units.NormalizeAlias(" G "))
	assert.Equal(t, "千克", units.NormalizeAlias("KG"))
	assert.Equal(t, "斤", units.NormalizeAlias(" 斤"))
	assert.Equal(t, "箱", units.NormalizeAlias("箱"))
	assert.Equal(t, "Box", units.NormalizeAlias(" Box "), "non-alias units keep their case")
}

func TestIsWeightUnit(t *testing.T) {
	for _, u := range []string{"g", "克", "KG", "千克", "公斤", "斤"} {
		assert.True(t, units.IsWeightUnit(u), u)
	}
	for _, u := range []string{"个", "箱", "", "lb"} {
		assert.False(t, units.IsWeightUnit(u), u)
	}
}

// =============================================================================
// CONVERSION
// =============================================================================

func TestConvert_SameUnit_Unchanged(t *testing.T) {
	// Non-weight units convert to themselves without a factor.
	got, err := units.Convert(dec("12.5"), "箱", " 箱 ")
	require.NoError(t, err)
	assert.True(t, got.Equal(dec("12.5")))

	// Aliases compare equal to their canonical form.
	got, err = units.Convert(dec("3"), "kg", "千克")
	require.NoError(t, err)
	assert.True(t, got.Equal(dec("3")))
}

func TestConvert_WeightUnits(t *testing.T) {
	tests := []struct {
		price, from, to, want string
	}{
		// 10 per 克 is 10000 per 千克
		{"10", "克", "千克", "10000"},
		// 10 per 千克 is 5 per 斤 (1 斤 = 0.5 千克)
		{"10", "千克", "斤", "5"},
		{"10", "斤", "千克", "20"},
		{"10", "千克", "克", "0.01"},
		{"8", "公斤", "g", "0.008"},
		{"2", "g", "斤", "1000"},
	}

	for _, tt := range tests {
		t.Run(tt.from+"->"+tt.to, func(t *testing.T) {
			got, err := units.Convert(dec(tt.price), tt.from, tt.to)
			require.NoError(t, err)
			assert.True(t, got.Equal(dec(tt.want)), "got %s want %s", got, tt.want)
		})
	}
}

func TestConvert_NonWeight_NotConvertible(t *testing.T) {
	_, err := units.Convert(dec("5"), "个", "箱")
	assert.ErrorIs(t, err, units.ErrNotConvertible)

	_, err = units.Convert(dec("5"), "个", "千克")
	assert.ErrorIs(t, err, units.ErrNotConvertible)
}

// =============================================================================
// PRICE UNIT OPTIONS
// =============================================================================

func TestPriceUnitOptions_OrderAndDedup(t *testing.T) {
	got := units.PriceUnitOptions("kg", []string{"箱", "g", "箱", "斤", " "})
	assert.Equal(t, []string{"千克", "箱", "克", "斤"}, got)
}

func TestPriceUnitOptions_EmptyLibrary(t *testing.T) {
	got := units.PriceUnitOptions("个", nil)
	assert.Equal(t, []string{"个", "克", "千克", "斤"}, got)
}

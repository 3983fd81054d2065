package pricing

import (
	"testing"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLineSubtotal_DiscountAndVAT(t *testing.T) {
	got := LineSubtotal(2, 100, 10, 15)
	assert.InDelta(t, 207.00, got, 1e-9)
}

func TestLineSubtotal_ZeroRatesIsIdentity(t *testing.T) {
	faker := gofakeit.New(42)
	for i := 0; i < 200; i++ {
		qty := float64(faker.Number(0, 500))
		price := faker.Price(0, 10000)
		require.Equal(t, qty*price, LineSubtotal(qty, price, 0, 0), "qty=%v price=%v", qty, price)
	}
}

func TestLineSubtotal_Monotonic(t *testing.T) {
	faker := gofakeit.New(7)
	for i := 0; i < 200; i++ {
		qty := float64(faker.Number(0, 100))
		price := faker.Price(0, 5000)
		discount := faker.Float64Range(0, 100)
		vat := faker.Float64Range(0, 30)

		base := LineSubtotal(qty, price, discount, vat)
		assert.GreaterOrEqual(t, LineSubtotal(qty+1, price, discount, vat), base)
		assert.GreaterOrEqual(t, LineSubtotal(qty, price+0.01, discount, vat), base)
		assert.GreaterOrEqual(t, base, 0.0)
	}
}

func TestLineSubtotal_FullDiscount(t *testing.T) {
	assert.Equal(t, 0.0, LineSubtotal(5, 20, 100, 15))
}

func TestVATAmount(t *testing.T) {
	assert.InDelta(t, 27.0, VATAmount(2, 100, 10, 15), 1e-9)
	assert.InDelta(t, LineSubtotal(2, 100, 10, 15), NetAmount(2, 100, 10)+VATAmount(2, 100, 10, 15), 1e-9)
}

func TestSum(t *testing.T) {
	assert.Equal(t, 0.3, Sum(0.1, 0.2))
	assert.Equal(t, 0.0, Sum())
}

func TestRound2(t *testing.T) {
	tests := []struct {
		input    float64
		expected float64
	}{
		{206.99999999999997, 207.00},
		{25.505, 25.51},
		{0, 0},
		{1234.5, 1234.5},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, Round2(tt.input), "Round2(%v)", tt.input)
	}
}

func TestFormat(t *testing.T) {
	tests := []struct {
		amount   float64
		tag      string
		expected string
	}{
		{1234.5, "SR", "SR 1,234.50"},
		{25.5, "USD", "USD 25.50"},
		{12.3456, "KD", "KD 12.346"},
		{99, "XYZ", "XYZ 99.00"},
		{1500, "", "1,500.00"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, Format(tt.amount, tt.tag))
	}
}

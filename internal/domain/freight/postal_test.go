package freight

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestNormalizePostalCode(t *testing.T) {
	assert.Equal(t, "01310100", NormalizePostalCode("01310-100"))
	assert.Equal(t, "01310100", NormalizePostalCode(" 01.310-100 "))
	assert.Equal(t, "", NormalizePostalCode("abc"))
}

func TestValidPostalCode(t *testing.T) {
	assert.True(t, ValidPostalCode("89010-025"))
	assert.False(t, ValidPostalCode("8901-025"))
	assert.False(t, ValidPostalCode(""))
}

func TestMergeBasket_SumaRepetidosYOrdena(t *testing.T) {
	got := MergeBasket([]BasketLine{
		{ProductID: "p2", Quantity: 1},
		{ProductID: "p1", Quantity: 3},
		{ProductID: "p2", Quantity: 4},
	})
	assert.Equal(t, []BasketLine{
		{ProductID: "p1", Quantity: 3},
		{ProductID: "p2", Quantity: 5},
	}, got)
}

func TestInsuranceValue(t *testing.T) {
	got := InsuranceValue(
		[]decimal.Decimal{decimal.NewFromInt(50), decimal.RequireFromString("12.5")},
		[]int64{2, 4},
	)
	assert.True(t, decimal.NewFromInt(150).Equal(got), "50*2 + 12.5*4 = 150, got %s", got)
}

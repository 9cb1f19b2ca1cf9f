package postgres

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestNumericConversion(t *testing.T) {
	for _, v := range []string{"0", "42.5", "1000000000", "0.000123", "-7.25"} {
		d := decimal.RequireFromString(v)
		n := toNumeric(d)
		assert.True(t, n.Valid)
		assert.True(t, fromNumeric(n).Equal(d), v)
	}
	assert.True(t, fromNumeric(toNumeric(decimal.Decimal{})).IsZero())
}

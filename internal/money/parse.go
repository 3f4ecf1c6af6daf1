package money

import (
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	maxHundredths = decimal.NewFromInt(math.MaxInt64)
	minHundredths = decimal.NewFromInt(-math.MaxInt64)
)

// ParseDecimal converts decimal text into hundredths, rounding half away from
// zero past the second fraction digit. Dot (12.34) and comma (12,34)
// separators are accepted, as are a leading sign and an exponent (1.5e2).
//
// The same scale serves money (minor units) and percentages (basis points):
//
//	ParseDecimal("12.34")  -> 1234
//	ParseDecimal("33,335") -> 3334
//	ParseDecimal("-0.5")   -> -50
func ParseDecimal(s string) (int64, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", ".")
	if s == "" {
		return 0, ErrInvalidAmount
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, ErrInvalidAmount
	}
	return Hundredths(d)
}

// Hundredths converts d to an integer count of hundredths.
func Hundredths(d decimal.Decimal) (int64, error) {
	v := d.Shift(2).Round(0)
	if v.GreaterThan(maxHundredths) || v.LessThan(minHundredths) {
		return 0, ErrOverflow
	}
	return v.IntPart(), nil
}

// FormatDecimal renders hundredths as a plain decimal string ("-12.05").
func FormatDecimal(v int64) string {
	return decimal.New(v, -2).StringFixed(2)
}

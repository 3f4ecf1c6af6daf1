package money

import (
	"math"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArithmetic(t *testing.T) {
	a := New(1050, "PHP")
	b := New(250, "PHP")

	sum, err := a.Add(b)
	require.NoError(t, err)
	assert.Equal(t, New(1300, "PHP"), sum)

	diff, err := b.Sub(a)
	require.NoError(t, err)
	assert.Equal(t, int64(-800), diff.Amount)
	assert.True(t, diff.IsNegative())

	tripled, err := b.Mul(3)
	require.NoError(t, err)
	assert.Equal(t, int64(750), tripled.Amount)

	_, err = a.Add(New(1, "USD"))
	assert.ErrorIs(t, err, ErrCurrencyMismatch)

	_, err = New(math.MaxInt64, "PHP").Add(New(1, "PHP"))
	assert.ErrorIs(t, err, ErrOverflow)

	_, err = New(math.MaxInt64/2+1, "PHP").Mul(2)
	assert.ErrorIs(t, err, ErrOverflow)

	adopted, err := Zero("").Add(b)
	require.NoError(t, err)
	assert.Equal(t, "PHP", adopted.Currency)
}

func TestString(t *testing.T) {
	assert.Equal(t, "PHP 12.34", New(1234, "PHP").String())
	assert.Equal(t, "-0.05", New(-5, "").String())
	assert.Equal(t, "USD 100.00", New(10000, "USD").String())
}

func TestDistribute(t *testing.T) {
	tests := []struct {
		name    string
		total   int64
		weights []int64
		want    []int64
	}{
		{"equal thirds", 1000, []int64{1, 1, 1}, []int64{334, 333, 333}},
		{"equal sevenths", 100, []int64{1, 1, 1, 1, 1, 1, 1}, []int64{15, 15, 14, 14, 14, 14, 14}},
		{"percentages", 300, []int64{3333, 3333, 3334}, []int64{100, 100, 100}},
		{"largest remainder wins", 100, []int64{1, 2}, []int64{33, 67}},
		{"zero weight stays zero", 101, []int64{0, 1, 1}, []int64{0, 51, 50}},
		{"negative total", -1000, []int64{1, 1, 1}, []int64{-334, -333, -333}},
		{"single part", 999, []int64{5}, []int64{999}},
		{"zero total", 0, []int64{1, 3}, []int64{0, 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parts, err := New(tt.total, "PHP").Distribute(tt.weights)
			require.NoError(t, err)

			got := make([]int64, len(parts))
			for i, p := range parts {
				got[i] = p.Amount
				assert.Equal(t, "PHP", p.Currency)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDistributeConservation(t *testing.T) {
	weightSets := [][]int64{
		{1, 1, 1},
		{7, 13, 29, 1},
		{3333, 3333, 3334},
		{1, 0, 0, 0, 1},
		{999999, 1},
		{2, 3, 5, 7, 11, 13, 17, 19, 23},
	}
	for total := int64(-257); total <= 1013; total += 17 {
		for _, weights := range weightSets {
			parts, err := New(total, "PHP").Distribute(weights)
			require.NoError(t, err)
			require.Len(t, parts, len(weights))

			var wsum int64
			for _, w := range weights {
				wsum += w
			}

			var sum int64
			for i, p := range parts {
				sum += p.Amount
				ideal := float64(total) * float64(weights[i]) / float64(wsum)
				assert.LessOrEqual(t, math.Abs(float64(p.Amount)-ideal), 1.0,
					"part %d of %d with weights %v", i, total, weights)
			}
			assert.Equal(t, total, sum, "weights %v", weights)
		}
	}
}

func TestDistributeLargeValues(t *testing.T) {
	parts, err := New(math.MaxInt64, "PHP").Distribute([]int64{math.MaxInt64 / 2, math.MaxInt64 / 2})
	require.NoError(t, err)
	assert.Equal(t, uint64(math.MaxInt64), uint64(parts[0].Amount)+uint64(parts[1].Amount))
}

func TestDistributeErrors(t *testing.T) {
	_, err := New(100, "PHP").Distribute(nil)
	assert.ErrorIs(t, err, ErrInvalidWeights)

	_, err = New(100, "PHP").Distribute([]int64{0, 0})
	assert.ErrorIs(t, err, ErrInvalidWeights)

	_, err = New(100, "PHP").Distribute([]int64{1, -1, 3})
	assert.ErrorIs(t, err, ErrInvalidWeights)

	_, err = New(100, "PHP").Distribute([]int64{math.MaxInt64, 1})
	assert.ErrorIs(t, err, ErrOverflow)
}

func TestParseDecimal(t *testing.T) {
	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{"12.34", 1234, false},
		{"12,34", 1234, false},
		{"12.345", 1235, false},
		{"12.344", 1234, false},
		{"7", 700, false},
		{".5", 50, false},
		{"0", 0, false},
		{"-3.10", -310, false},
		{"+1.01", 101, false},
		{" 33.33 ", 3333, false},
		{"", 0, true},
		{"-", 0, true},
		{"1.2.3", 0, true},
		{"12a", 0, true},
		{"1e3", 100000, false},
		{"1.5e2", 15000, false},
		{"-0.005", -1, false},
		{"0x10", 0, true},
		{"99999999999999999999", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseDecimal(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFormatDecimal(t *testing.T) {
	assert.Equal(t, "0.00", FormatDecimal(0))
	assert.Equal(t, "0.07", FormatDecimal(7))
	assert.Equal(t, "1234.50", FormatDecimal(123450))
	assert.Equal(t, "-1.01", FormatDecimal(-101))
	assert.Equal(t, "-0.50", FormatDecimal(-50))
}

func TestHundredths(t *testing.T) {
	v, err := Hundredths(decimal.RequireFromString("159.995"))
	require.NoError(t, err)
	assert.Equal(t, int64(16000), v)

	_, err = Hundredths(decimal.New(1, 20))
	assert.ErrorIs(t, err, ErrOverflow)
}

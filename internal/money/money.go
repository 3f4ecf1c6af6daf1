// Package money implements fixed-point currency arithmetic over integer minor
// units (centavos, cents). Floating point never enters a calculation; values
// that arrive as decimal text are converted with ParseDecimal.
package money

import (
	"errors"
	"fmt"
	"math"
	"math/bits"
	"sort"
)

// DefaultCurrency is used when no currency is configured.
const DefaultCurrency = "PHP"

var (
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrCurrencyMismatch = errors.New("currency mismatch")
	ErrInvalidWeights   = errors.New("weights must be non-negative with a positive sum")
	ErrOverflow         = errors.New("amount overflows int64 minor units")
)

// Money is a signed count of minor currency units tagged with an ISO currency code.
type Money struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

// New returns amount minor units of currency.
func New(amount int64, currency string) Money {
	return Money{Amount: amount, Currency: currency}
}

// Zero returns a zero amount in currency.
func Zero(currency string) Money {
	return Money{Currency: currency}
}

func (m Money) IsZero() bool     { return m.Amount == 0 }
func (m Money) IsPositive() bool { return m.Amount > 0 }
func (m Money) IsNegative() bool { return m.Amount < 0 }

// Add returns m+o. Both values must share a currency; an empty currency
// adopts the other side's.
func (m Money) Add(o Money) (Money, error) {
	cur, err := m.commonCurrency(o)
	if err != nil {
		return Money{}, err
	}
	sum := m.Amount + o.Amount
	if (o.Amount > 0 && sum < m.Amount) || (o.Amount < 0 && sum > m.Amount) {
		return Money{}, ErrOverflow
	}
	return Money{Amount: sum, Currency: cur}, nil
}

// Sub returns m-o.
func (m Money) Sub(o Money) (Money, error) {
	if o.Amount == math.MinInt64 {
		return Money{}, ErrOverflow
	}
	return m.Add(o.Neg())
}

// Mul returns m multiplied by n.
func (m Money) Mul(n int64) (Money, error) {
	if m.Amount == 0 || n == 0 {
		return Money{Currency: m.Currency}, nil
	}
	p := m.Amount * n
	if p/n != m.Amount || (m.Amount == -1 && n == math.MinInt64) || (n == -1 && m.Amount == math.MinInt64) {
		return Money{}, ErrOverflow
	}
	return Money{Amount: p, Currency: m.Currency}, nil
}

// Neg returns -m.
func (m Money) Neg() Money {
	return Money{Amount: -m.Amount, Currency: m.Currency}
}

// String renders the amount for logs, e.g. "PHP 12.34". Presentation layers
// do their own locale formatting.
func (m Money) String() string {
	if m.Currency == "" {
		return FormatDecimal(m.Amount)
	}
	return m.Currency + " " + FormatDecimal(m.Amount)
}

func (m Money) commonCurrency(o Money) (string, error) {
	switch {
	case m.Currency == o.Currency:
		return m.Currency, nil
	case m.Currency == "":
		return o.Currency, nil
	case o.Currency == "":
		return m.Currency, nil
	}
	return "", fmt.Errorf("%w: %s vs %s", ErrCurrencyMismatch, m.Currency, o.Currency)
}

// Distribute partitions m into len(weights) parts proportional to weights
// using the largest-remainder method. Every part is floored first; the
// leftover units go one at a time to the parts with the largest fractional
// remainder, ties going to the lower index. The parts always sum to m and
// each is within one minor unit of its exact proportional share.
//
// A negative m is distributed by magnitude and the parts negated.
func (m Money) Distribute(weights []int64) ([]Money, error) {
	if len(weights) == 0 {
		return nil, ErrInvalidWeights
	}
	var sum uint64
	for _, w := range weights {
		if w < 0 {
			return nil, ErrInvalidWeights
		}
		next := sum + uint64(w)
		if next < sum || next > math.MaxInt64 {
			return nil, ErrOverflow
		}
		sum = next
	}
	if sum == 0 {
		return nil, ErrInvalidWeights
	}
	if m.Amount == math.MinInt64 {
		return nil, ErrOverflow
	}

	negative := m.Amount < 0
	total := uint64(m.Amount)
	if negative {
		total = uint64(-m.Amount)
	}

	floors := make([]uint64, len(weights))
	remainders := make([]uint64, len(weights))
	var allocated uint64
	for i, w := range weights {
		hi, lo := bits.Mul64(total, uint64(w))
		q, r := bits.Div64(hi, lo, sum)
		floors[i] = q
		remainders[i] = r
		allocated += q
	}

	order := make([]int, len(weights))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return remainders[order[a]] > remainders[order[b]]
	})
	for k := uint64(0); k < total-allocated; k++ {
		floors[order[k]]++
	}

	parts := make([]Money, len(weights))
	for i, f := range floors {
		amount := int64(f)
		if negative {
			amount = -amount
		}
		parts[i] = Money{Amount: amount, Currency: m.Currency}
	}
	return parts, nil
}


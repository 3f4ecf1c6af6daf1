package calculator

import (
	"github.com/mmynk/opensplit/internal/money"
)

// Transfer is a suggested payment that moves balances toward zero.
type Transfer struct {
	From   string
	To     string
	Amount money.Money
}

// PlanSettlements turns zero-sum net balances (positive = owed money) into
// directed transfers that bring every member to zero.
//
// Greedy matching: the largest debtor pays the largest creditor the smaller
// of the two magnitudes until nothing is left. Ties in magnitude go to the
// lowest user ID, so the plan is deterministic. This is not guaranteed to be
// the minimum number of transfers, but it never needs more than n-1.
func PlanSettlements(balances map[string]money.Money) ([]Transfer, error) {
	currency := ""
	sum := money.Zero("")
	var debtors, creditors []party
	for id, net := range balances {
		if net.Currency != "" {
			if currency != "" && currency != net.Currency {
				return nil, invalid("currency", "balances mix %s and %s", currency, net.Currency)
			}
			currency = net.Currency
		}
		var err error
		if sum, err = sum.Add(net); err != nil {
			return nil, invalid("balance", "%v", err)
		}
		switch {
		case net.IsNegative():
			debtors = append(debtors, party{id: id, amount: -net.Amount})
		case net.IsPositive():
			creditors = append(creditors, party{id: id, amount: net.Amount})
		}
	}
	if !sum.IsZero() {
		sum.Currency = currency
		return nil, &UnbalancedInputError{Sum: sum}
	}

	var transfers []Transfer
	for len(debtors) > 0 && len(creditors) > 0 {
		d := largest(debtors)
		c := largest(creditors)

		amount := min(debtors[d].amount, creditors[c].amount)
		transfers = append(transfers, Transfer{
			From:   debtors[d].id,
			To:     creditors[c].id,
			Amount: money.New(amount, currency),
		})

		debtors[d].amount -= amount
		creditors[c].amount -= amount
		if debtors[d].amount == 0 {
			debtors = remove(debtors, d)
		}
		if creditors[c].amount == 0 {
			creditors = remove(creditors, c)
		}
	}
	return transfers, nil
}

type party struct {
	id     string
	amount int64 // magnitude, always positive
}

// largest returns the index of the biggest amount, lowest ID on ties.
func largest(ps []party) int {
	best := 0
	for i := 1; i < len(ps); i++ {
		if ps[i].amount > ps[best].amount ||
			(ps[i].amount == ps[best].amount && ps[i].id < ps[best].id) {
			best = i
		}
	}
	return best
}

func remove(ps []party, i int) []party {
	ps[i] = ps[len(ps)-1]
	return ps[:len(ps)-1]
}

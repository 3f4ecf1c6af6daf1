package calculator

import (
	"sort"

	"github.com/mmynk/opensplit/internal/models"
	"github.com/mmynk/opensplit/internal/money"
)

// ExpenseForBalance is an expense with the minimal information needed for
// balance calculations.
type ExpenseForBalance struct {
	ID      string
	PayerID string
	Total   money.Money
	Splits  []models.ExpenseSplit
}

// SettlementForBalance is a recorded payment with the minimal information
// needed for balance calculations.
type SettlementForBalance struct {
	FromUserID string // Who paid (debtor settling up)
	ToUserID   string // Who received (creditor being paid)
	Amount     money.Money
}

// MemberBalance is the balance information for one group member.
type MemberBalance struct {
	UserID    string
	Net       money.Money // Positive = is owed money, negative = owes money
	TotalPaid money.Money // Paid for expenses plus settlements sent
	TotalOwed money.Money // Shares of expenses plus settlements received
}

// DebtEdge is a direct, unsimplified debt from one member to another.
type DebtEdge struct {
	From   string // Person who owes
	To     string // Person who is owed
	Amount money.Money
}

// Balances is the result of ComputeBalances.
type Balances struct {
	Currency string

	// Members is sorted by user ID.
	Members []MemberBalance

	// Pairwise nets what each pair of members owe each other from the
	// expenses they shared, before any simplification. Sorted by From, To.
	Pairwise []DebtEdge
}

// Net returns the net balance of every member.
func (b *Balances) Net() map[string]money.Money {
	net := make(map[string]money.Money, len(b.Members))
	for _, m := range b.Members {
		net[m.UserID] = m.Net
	}
	return net
}

// Of returns the net balance of userID, zero if unknown.
func (b *Balances) Of(userID string) money.Money {
	for _, m := range b.Members {
		if m.UserID == userID {
			return m.Net
		}
	}
	return money.Zero(b.Currency)
}

// ComputeBalances aggregates expenses and settlements into per-member net
// balances: net = paid - owed. Every member in members appears even with a
// zero balance; participants outside the list are included too.
//
// Algorithm:
//   - For each expense: the payer contributed +total, each participant owes their split
//   - For each settlement: the sender's balance improves, the receiver's decreases
//   - The nets of a group always sum to zero; anything else is an UnbalancedInputError
func ComputeBalances(currency string, members []string, expenses []ExpenseForBalance, settlements []SettlementForBalance) (*Balances, error) {
	balances := make(map[string]*MemberBalance)
	get := func(id string) *MemberBalance {
		b, ok := balances[id]
		if !ok {
			b = &MemberBalance{
				UserID:    id,
				Net:       money.Zero(currency),
				TotalPaid: money.Zero(currency),
				TotalOwed: money.Zero(currency),
			}
			balances[id] = b
		}
		return b
	}
	for _, m := range members {
		get(m)
	}

	// debts[debtor][creditor] = amount
	debts := make(map[string]map[string]int64)
	addDebt := func(from, to string, amount int64) {
		if from == to || amount == 0 {
			return
		}
		if debts[from] == nil {
			debts[from] = make(map[string]int64)
		}
		debts[from][to] += amount
	}

	for _, e := range expenses {
		if e.PayerID == "" {
			return nil, invalid("payer", "expense %s has no payer", e.ID)
		}
		if e.Total.Currency != "" && e.Total.Currency != currency {
			return nil, invalid("currency", "expense %s is in %s, group uses %s", e.ID, e.Total.Currency, currency)
		}

		payer := get(e.PayerID)
		var err error
		if payer.TotalPaid, err = payer.TotalPaid.Add(e.Total); err != nil {
			return nil, invalid("total", "%v", err)
		}

		splitSum := money.Zero(currency)
		for _, s := range e.Splits {
			p := get(s.UserID)
			if p.TotalOwed, err = p.TotalOwed.Add(s.Amount); err != nil {
				return nil, invalid("split", "%v", err)
			}
			if splitSum, err = splitSum.Add(s.Amount); err != nil {
				return nil, invalid("split", "%v", err)
			}
			addDebt(s.UserID, e.PayerID, s.Amount.Amount)
		}
		if splitSum.Amount != e.Total.Amount {
			return nil, invalid("splits", "expense %s splits sum to %s, total is %s",
				e.ID, money.FormatDecimal(splitSum.Amount), money.FormatDecimal(e.Total.Amount))
		}
	}

	for _, s := range settlements {
		if !s.Amount.IsPositive() {
			return nil, invalid("settlement", "amount must be positive")
		}
		if s.FromUserID == s.ToUserID {
			return nil, invalid("settlement", "%s cannot pay themselves", s.FromUserID)
		}
		from, to := get(s.FromUserID), get(s.ToUserID)
		var err error
		// Sender's balance improves as if they paid; receiver's drops as if they owed.
		if from.TotalPaid, err = from.TotalPaid.Add(s.Amount); err != nil {
			return nil, invalid("settlement", "%v", err)
		}
		if to.TotalOwed, err = to.TotalOwed.Add(s.Amount); err != nil {
			return nil, invalid("settlement", "%v", err)
		}
		addDebt(s.ToUserID, s.FromUserID, s.Amount.Amount)
	}

	result := &Balances{Currency: currency}
	total := money.Zero(currency)
	for _, b := range balances {
		net, err := b.TotalPaid.Sub(b.TotalOwed)
		if err != nil {
			return nil, invalid("balance", "%v", err)
		}
		b.Net = net
		if total, err = total.Add(net); err != nil {
			return nil, invalid("balance", "%v", err)
		}
		result.Members = append(result.Members, *b)
	}
	if !total.IsZero() {
		return nil, &UnbalancedInputError{Sum: total}
	}
	sort.Slice(result.Members, func(i, j int) bool { return result.Members[i].UserID < result.Members[j].UserID })

	result.Pairwise = netPairs(currency, debts)
	return result, nil
}

// netPairs collapses debts in both directions between each pair into one edge.
func netPairs(currency string, debts map[string]map[string]int64) []DebtEdge {
	type pair struct{ a, b string }
	net := make(map[pair]int64)
	for from, row := range debts {
		for to, amount := range row {
			if from < to {
				net[pair{from, to}] += amount
			} else {
				net[pair{to, from}] -= amount
			}
		}
	}

	var edges []DebtEdge
	for p, amount := range net {
		switch {
		case amount > 0:
			edges = append(edges, DebtEdge{From: p.a, To: p.b, Amount: money.New(amount, currency)})
		case amount < 0:
			edges = append(edges, DebtEdge{From: p.b, To: p.a, Amount: money.New(-amount, currency)})
		}
	}
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].From != edges[j].From {
			return edges[i].From < edges[j].From
		}
		return edges[i].To < edges[j].To
	})
	return edges
}

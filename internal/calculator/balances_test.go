package calculator

import (
	"math/rand"
	"reflect"
	"testing"

	"github.com/mmynk/opensplit/internal/models"
	"github.com/mmynk/opensplit/internal/money"
)

func expenseFor(t *testing.T, id, payer string, total int64, spec SplitSpec) ExpenseForBalance {
	t.Helper()
	splits, err := CalculateSplit(php(total), spec)
	if err != nil {
		t.Fatalf("CalculateSplit failed: %v", err)
	}
	return ExpenseForBalance{ID: id, PayerID: payer, Total: php(total), Splits: splits}
}

func TestComputeBalances(t *testing.T) {
	expenses := []ExpenseForBalance{
		// Alice pays 900 for three: everyone owes 300
		expenseFor(t, "e1", "Alice", 900, EqualSplit{Participants: []string{"Alice", "Bob", "Charlie"}}),
		// Bob pays 300 for Alice and himself
		expenseFor(t, "e2", "Bob", 300, EqualSplit{Participants: []string{"Alice", "Bob"}}),
	}

	b, err := ComputeBalances("PHP", []string{"Alice", "Bob", "Charlie", "Dana"}, expenses, nil)
	if err != nil {
		t.Fatalf("ComputeBalances failed: %v", err)
	}

	// Alice: paid 900, owes 300 + 150 = 450 -> +450
	// Bob: paid 300, owes 300 + 150 = 450 -> -150
	// Charlie: paid 0, owes 300 -> -300
	want := map[string]int64{"Alice": 450, "Bob": -150, "Charlie": -300, "Dana": 0}
	for user, net := range want {
		if got := b.Of(user).Amount; got != net {
			t.Errorf("%s: expected net %d, got %d", user, net, got)
		}
	}
	if len(b.Members) != 4 {
		t.Fatalf("expected 4 members, got %d", len(b.Members))
	}
	if b.Members[0].UserID != "Alice" {
		t.Errorf("expected members sorted by id, first is %q", b.Members[0].UserID)
	}

	alice := b.Members[0]
	if alice.TotalPaid.Amount != 900 || alice.TotalOwed.Amount != 450 {
		t.Errorf("expected Alice paid 900 owed 450, got %d and %d", alice.TotalPaid.Amount, alice.TotalOwed.Amount)
	}

	// Bob owes Alice 300 for e1, Alice owes Bob 150 for e2: net Bob -> Alice 150
	wantEdges := []DebtEdge{
		{From: "Bob", To: "Alice", Amount: php(150)},
		{From: "Charlie", To: "Alice", Amount: php(300)},
	}
	if !reflect.DeepEqual(b.Pairwise, wantEdges) {
		t.Errorf("expected pairwise %v, got %v", wantEdges, b.Pairwise)
	}
}

func TestComputeBalances_WithSettlements(t *testing.T) {
	expenses := []ExpenseForBalance{
		expenseFor(t, "e1", "Alice", 1000, EqualSplit{Participants: []string{"Alice", "Bob"}}),
	}
	settlements := []SettlementForBalance{
		{FromUserID: "Bob", ToUserID: "Alice", Amount: php(500)},
	}

	b, err := ComputeBalances("PHP", nil, expenses, settlements)
	if err != nil {
		t.Fatalf("ComputeBalances failed: %v", err)
	}
	if !b.Of("Alice").IsZero() || !b.Of("Bob").IsZero() {
		t.Errorf("expected settled balances, got %v and %v", b.Of("Alice"), b.Of("Bob"))
	}
	if len(b.Pairwise) != 0 {
		t.Errorf("expected no debts, got %v", b.Pairwise)
	}
}

func TestComputeBalances_Errors(t *testing.T) {
	good := expenseFor(t, "e1", "Alice", 1000, EqualSplit{Participants: []string{"Alice", "Bob"}})

	noPayer := good
	noPayer.PayerID = ""

	leaky := good
	leaky.Splits = append([]models.ExpenseSplit(nil), good.Splits...)
	leaky.Splits[0].Amount = php(499)

	foreign := good
	foreign.Total = money.New(1000, "USD")

	tests := []struct {
		name        string
		expenses    []ExpenseForBalance
		settlements []SettlementForBalance
	}{
		{"missing payer", []ExpenseForBalance{noPayer}, nil},
		{"splits not summing", []ExpenseForBalance{leaky}, nil},
		{"currency", []ExpenseForBalance{foreign}, nil},
		{"self payment", nil, []SettlementForBalance{{FromUserID: "A", ToUserID: "A", Amount: php(1)}}},
		{"zero payment", nil, []SettlementForBalance{{FromUserID: "A", ToUserID: "B", Amount: php(0)}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ComputeBalances("PHP", nil, tt.expenses, tt.settlements)
			if !sameErrorType(err, &ValidationError{}) {
				t.Errorf("expected ValidationError, got %v", err)
			}
		})
	}
}

// Net balances of any expense set sum to exactly zero.
func TestComputeBalances_ZeroSum(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	people := []string{"ana", "ben", "cai", "dee", "eli"}

	for round := 0; round < 100; round++ {
		var expenses []ExpenseForBalance
		for i := 0; i < rng.Intn(12)+1; i++ {
			n := rng.Intn(len(people)) + 1
			perm := rng.Perm(len(people))[:n]
			ids := make([]string, n)
			for j, p := range perm {
				ids[j] = people[p]
			}
			payer := people[rng.Intn(len(people))]
			expenses = append(expenses, expenseFor(t, "e", payer, rng.Int63n(100_000)+1, EqualSplit{Participants: ids}))
		}
		var settlements []SettlementForBalance
		if rng.Intn(2) == 0 {
			settlements = append(settlements, SettlementForBalance{FromUserID: "ana", ToUserID: "ben", Amount: php(rng.Int63n(5000) + 1)})
		}

		b, err := ComputeBalances("PHP", people, expenses, settlements)
		if err != nil {
			t.Fatalf("round %d: ComputeBalances failed: %v", round, err)
		}

		var sum int64
		for _, m := range b.Members {
			sum += m.Net.Amount
			if m.Net.Amount != m.TotalPaid.Amount-m.TotalOwed.Amount {
				t.Errorf("round %d member %s: net %d != paid %d - owed %d", round, m.UserID, m.Net.Amount, m.TotalPaid.Amount, m.TotalOwed.Amount)
			}
		}
		if sum != 0 {
			t.Fatalf("round %d: nets sum to %d", round, sum)
		}

		// Pairwise edges describe the same nets.
		fromEdges := make(map[string]int64)
		for _, e := range b.Pairwise {
			fromEdges[e.From] -= e.Amount.Amount
			fromEdges[e.To] += e.Amount.Amount
		}
		for _, m := range b.Members {
			if fromEdges[m.UserID] != m.Net.Amount {
				t.Errorf("round %d member %s: edges give %d, net is %d", round, m.UserID, fromEdges[m.UserID], m.Net.Amount)
			}
		}
	}
}

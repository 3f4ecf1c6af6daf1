package calculator

import (
	"sort"

	"github.com/mmynk/opensplit/internal/models"
	"github.com/mmynk/opensplit/internal/money"
)

// PercentBase is 100% expressed in basis points.
const PercentBase = 10000

// percentTolerance is how far percentages may stray from 100% (0.01%).
const percentTolerance = 1

// SplitSpec is the mode-specific input to CalculateSplit. It is implemented
// by EqualSplit, PercentageSplit, AmountSplit and ItemSplit only.
type SplitSpec interface {
	Mode() models.SplitMode
	isSplitSpec()
}

// EqualSplit divides the total evenly.
type EqualSplit struct {
	Participants []string
}

// PercentageSplit divides the total by percentage.
type PercentageSplit struct {
	Shares []PercentShare
}

// PercentShare is one participant's percentage in basis points (3333 = 33.33%).
type PercentShare struct {
	UserID      string
	BasisPoints int64
}

// AmountSplit assigns explicit amounts that must add up to the total.
type AmountSplit struct {
	Shares []AmountShare
}

// AmountShare is one participant's fixed amount.
type AmountShare struct {
	UserID string
	Amount money.Money
}

// ItemSplit divides each receipt line among its assignees. Participants is
// optional; members listed there but assigned nothing still get a zero split.
type ItemSplit struct {
	Items        []models.ExpenseItem
	Participants []string
}

func (EqualSplit) Mode() models.SplitMode      { return models.SplitEqual }
func (PercentageSplit) Mode() models.SplitMode { return models.SplitPercentage }
func (AmountSplit) Mode() models.SplitMode     { return models.SplitAmount }
func (ItemSplit) Mode() models.SplitMode       { return models.SplitItem }

func (EqualSplit) isSplitSpec()      {}
func (PercentageSplit) isSplitSpec() {}
func (AmountSplit) isSplitSpec()     {}
func (ItemSplit) isSplitSpec()       {}

// CalculateSplit computes each participant's share of total. The returned
// splits follow the participant order of spec and always sum to total
// exactly. Rounding leftovers go to the largest fractional remainders, ties
// to the lowest user ID.
func CalculateSplit(total money.Money, spec SplitSpec) ([]models.ExpenseSplit, error) {
	if !total.IsPositive() {
		return nil, invalid("total", "must be greater than zero")
	}
	if spec == nil {
		return nil, invalid("split_mode", "missing")
	}

	switch s := spec.(type) {
	case EqualSplit:
		return splitEqual(total, s)
	case PercentageSplit:
		return splitPercentage(total, s)
	case AmountSplit:
		return splitAmount(total, s)
	case ItemSplit:
		return splitItems(total, s)
	default:
		return nil, invalid("split_mode", "unsupported %T", spec)
	}
}

func splitEqual(total money.Money, s EqualSplit) ([]models.ExpenseSplit, error) {
	if len(s.Participants) == 0 {
		return nil, &EmptyParticipantsError{Mode: models.SplitEqual}
	}
	if err := checkParticipants("participants", s.Participants); err != nil {
		return nil, err
	}

	weights := make([]int64, len(s.Participants))
	for i := range weights {
		weights[i] = 1
	}
	amounts, err := allocate(total, s.Participants, weights)
	if err != nil {
		return nil, err
	}

	splits := make([]models.ExpenseSplit, len(s.Participants))
	for i, id := range s.Participants {
		splits[i] = models.ExpenseSplit{UserID: id, Amount: amounts[i]}
	}
	return splits, nil
}

func splitPercentage(total money.Money, s PercentageSplit) ([]models.ExpenseSplit, error) {
	if len(s.Shares) == 0 {
		return nil, &EmptyParticipantsError{Mode: models.SplitPercentage}
	}

	ids := make([]string, len(s.Shares))
	weights := make([]int64, len(s.Shares))
	var sum int64
	for i, share := range s.Shares {
		if share.BasisPoints < 0 || share.BasisPoints > PercentBase {
			return nil, invalid("percentage", "%s has %s%%, must be between 0 and 100",
				share.UserID, money.FormatDecimal(share.BasisPoints))
		}
		ids[i] = share.UserID
		weights[i] = share.BasisPoints
		sum += share.BasisPoints
	}
	if err := checkParticipants("percentage", ids); err != nil {
		return nil, err
	}
	if diff := sum - PercentBase; diff > percentTolerance || diff < -percentTolerance {
		return nil, invalid("percentage", "percentages must total 100%%, got %s%%", money.FormatDecimal(sum))
	}

	amounts, err := allocate(total, ids, weights)
	if err != nil {
		return nil, err
	}

	splits := make([]models.ExpenseSplit, len(s.Shares))
	for i, share := range s.Shares {
		bp := share.BasisPoints
		splits[i] = models.ExpenseSplit{UserID: share.UserID, Amount: amounts[i], Percentage: &bp}
	}
	return splits, nil
}

func splitAmount(total money.Money, s AmountSplit) ([]models.ExpenseSplit, error) {
	if len(s.Shares) == 0 {
		return nil, &EmptyParticipantsError{Mode: models.SplitAmount}
	}

	ids := make([]string, len(s.Shares))
	splits := make([]models.ExpenseSplit, len(s.Shares))
	sum := money.Zero(total.Currency)
	for i, share := range s.Shares {
		if share.Amount.IsNegative() {
			return nil, invalid("amount", "%s has a negative amount", share.UserID)
		}
		amount := share.Amount
		if amount.Currency == "" {
			amount.Currency = total.Currency
		}
		next, err := sum.Add(amount)
		if err != nil {
			return nil, invalid("amount", "%v", err)
		}
		sum = next
		ids[i] = share.UserID
		splits[i] = models.ExpenseSplit{UserID: share.UserID, Amount: amount}
	}
	if err := checkParticipants("amount", ids); err != nil {
		return nil, err
	}
	if sum.Amount != total.Amount {
		return nil, invalid("amount", "amounts total %s but the expense is %s",
			money.FormatDecimal(sum.Amount), money.FormatDecimal(total.Amount))
	}
	return splits, nil
}

func splitItems(total money.Money, s ItemSplit) ([]models.ExpenseSplit, error) {
	if len(s.Items) == 0 {
		return nil, &EmptyParticipantsError{Mode: models.SplitItem}
	}

	explicit := len(s.Participants) > 0
	var participants []string
	index := make(map[string]int)
	if explicit {
		if err := checkParticipants("participants", s.Participants); err != nil {
			return nil, err
		}
		for i, id := range s.Participants {
			index[id] = i
		}
		participants = append(participants, s.Participants...)
	}

	subtotals := make([]money.Money, len(participants))
	itemIDs := make([][]string, len(participants))
	itemsSum := money.Zero(total.Currency)

	for _, item := range s.Items {
		if len(item.AssignedTo) == 0 {
			return nil, &UnassignedItemError{ItemID: item.ID, ItemName: item.Name}
		}
		if item.Total.IsNegative() {
			return nil, invalid("items", "item %q has a negative total", item.Name)
		}
		if err := checkParticipants("items", item.AssignedTo); err != nil {
			return nil, err
		}
		lineTotal := item.Total
		if lineTotal.Currency == "" {
			lineTotal.Currency = total.Currency
		}
		next, err := itemsSum.Add(lineTotal)
		if err != nil {
			return nil, invalid("items", "%v", err)
		}
		itemsSum = next

		for _, id := range item.AssignedTo {
			if _, ok := index[id]; ok {
				continue
			}
			if explicit {
				return nil, invalid("items", "item %q is assigned to %s, who is not a participant", item.Name, id)
			}
			index[id] = len(participants)
			participants = append(participants, id)
			subtotals = append(subtotals, money.Zero(total.Currency))
			itemIDs = append(itemIDs, nil)
		}

		weights := make([]int64, len(item.AssignedTo))
		for i := range weights {
			weights[i] = 1
		}
		shares, err := allocate(lineTotal, item.AssignedTo, weights)
		if err != nil {
			return nil, err
		}
		for i, id := range item.AssignedTo {
			pos := index[id]
			if subtotals[pos], err = subtotals[pos].Add(shares[i]); err != nil {
				return nil, invalid("items", "%v", err)
			}
			if item.ID != "" {
				itemIDs[pos] = append(itemIDs[pos], item.ID)
			}
		}
	}

	final := subtotals
	if discrepancy, err := total.Sub(itemsSum); err != nil {
		return nil, invalid("items", "%v", err)
	} else if !discrepancy.IsZero() {
		// Tax, service charge or discount: spread in proportion to each
		// member's item subtotal.
		if !itemsSum.IsPositive() {
			return nil, invalid("items", "items total zero, cannot apportion %s", discrepancy)
		}
		weights := make([]int64, len(subtotals))
		for i, st := range subtotals {
			weights[i] = st.Amount
		}
		adjustments, err := allocate(discrepancy, participants, weights)
		if err != nil {
			return nil, err
		}
		final = make([]money.Money, len(subtotals))
		for i := range subtotals {
			if final[i], err = subtotals[i].Add(adjustments[i]); err != nil {
				return nil, invalid("items", "%v", err)
			}
		}
	}

	splits := make([]models.ExpenseSplit, len(participants))
	for i, id := range participants {
		amount := final[i]
		amount.Currency = total.Currency
		splits[i] = models.ExpenseSplit{UserID: id, Amount: amount, ItemIDs: itemIDs[i]}
	}
	return splits, nil
}

// allocate distributes total over ids by weight with the remainder going to
// the lowest ID on ties. Results are returned in the order of ids.
func allocate(total money.Money, ids []string, weights []int64) ([]money.Money, error) {
	order := make([]int, len(ids))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return ids[order[a]] < ids[order[b]] })

	sorted := make([]int64, len(weights))
	for i, pos := range order {
		sorted[i] = weights[pos]
	}
	parts, err := total.Distribute(sorted)
	if err != nil {
		return nil, invalid("weights", "%v", err)
	}

	out := make([]money.Money, len(ids))
	for i, pos := range order {
		out[pos] = parts[i]
	}
	return out, nil
}

// checkParticipants rejects empty and duplicate IDs. Duplicates are never merged.
func checkParticipants(field string, ids []string) error {
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if id == "" {
			return invalid(field, "participant id is empty")
		}
		if seen[id] {
			return invalid(field, "duplicate participant %s", id)
		}
		seen[id] = true
	}
	return nil
}

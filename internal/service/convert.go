package service

import (
	"github.com/mmynk/opensplit/internal/cache"
	"github.com/mmynk/opensplit/internal/models"
	"github.com/mmynk/opensplit/pkg/api"
)

func toAPIGroup(g *models.Group) *api.Group {
	members := make([]*api.Member, len(g.Members))
	for i, m := range g.Members {
		members[i] = &api.Member{UserID: m.UserID, Role: string(m.Role), JoinedAt: m.JoinedAt}
	}
	return &api.Group{
		ID:          g.ID,
		Name:        g.Name,
		Description: g.Description,
		CreatedBy:   g.CreatedBy,
		Members:     members,
		CreatedAt:   g.CreatedAt,
		UpdatedAt:   g.UpdatedAt,
	}
}

func toAPIExpense(e *models.Expense) *api.Expense {
	out := &api.Expense{
		ID:          e.ID,
		GroupID:     e.GroupID,
		CreatedBy:   e.CreatedBy,
		PayerID:     e.Payer(),
		Description: e.Description,
		Notes:       e.Notes,
		Total:       e.Total.Amount,
		Currency:    e.Total.Currency,
		ReceiptURL:  e.ReceiptURL,
		OCRText:     e.OCRText,
		SplitMode:   string(e.SplitMode),
		Items:       toAPIItems(e.Items),
		Splits:      toAPISplits(e.Splits),
		CreatedAt:   e.CreatedAt,
		UpdatedAt:   e.UpdatedAt,
	}
	if !e.Date.IsZero() {
		out.Date = e.Date.Format(models.DateLayout)
	}
	return out
}

func toAPIItems(items []models.ExpenseItem) []*api.ExpenseItem {
	if len(items) == 0 {
		return nil
	}
	out := make([]*api.ExpenseItem, len(items))
	for i, item := range items {
		out[i] = &api.ExpenseItem{
			ID:         item.ID,
			Name:       item.Name,
			Quantity:   item.Quantity,
			UnitPrice:  item.UnitPrice.Amount,
			Total:      item.Total.Amount,
			AssignedTo: item.AssignedTo,
		}
	}
	return out
}

func toAPISplits(splits []models.ExpenseSplit) []*api.ExpenseSplit {
	out := make([]*api.ExpenseSplit, len(splits))
	for i, s := range splits {
		out[i] = &api.ExpenseSplit{
			UserID:     s.UserID,
			Amount:     s.Amount.Amount,
			Percentage: s.Percentage,
			ItemIDs:    s.ItemIDs,
		}
	}
	return out
}

func toAPISettlement(s *models.Settlement) *api.Settlement {
	return &api.Settlement{
		ID:         s.ID,
		GroupID:    s.GroupID,
		FromUserID: s.FromUserID,
		ToUserID:   s.ToUserID,
		Amount:     s.Amount.Amount,
		Currency:   s.Amount.Currency,
		Note:       s.Note,
		CreatedBy:  s.CreatedBy,
		CreatedAt:  s.CreatedAt,
	}
}

func toAPIBalances(entry *cache.Entry) *api.GetGroupBalancesResponse {
	b := entry.Balances
	resp := &api.GetGroupBalancesResponse{
		Currency:       b.Currency,
		MemberBalances: make([]*api.MemberBalance, len(b.Members)),
		DebtMatrix:     make([]*api.DebtEdge, len(b.Pairwise)),
		Transfers:      make([]*api.Transfer, len(entry.Transfers)),
	}
	for i, m := range b.Members {
		resp.MemberBalances[i] = &api.MemberBalance{
			UserID:     m.UserID,
			NetBalance: m.Net.Amount,
			TotalPaid:  m.TotalPaid.Amount,
			TotalOwed:  m.TotalOwed.Amount,
		}
	}
	for i, d := range b.Pairwise {
		resp.DebtMatrix[i] = &api.DebtEdge{From: d.From, To: d.To, Amount: d.Amount.Amount}
	}
	for i, t := range entry.Transfers {
		resp.Transfers[i] = &api.Transfer{From: t.From, To: t.To, Amount: t.Amount.Amount}
	}
	return resp
}

func toAPIProfile(u *models.User) *api.Profile {
	return &api.Profile{
		UserID:            u.ID,
		Email:             u.Email,
		FullName:          u.FullName,
		ContactNumber:     u.ContactNumber,
		BankAccountName:   u.BankAccountName,
		BankAccountNumber: u.BankAccountNumber,
		GCashNumber:       u.GCashNumber,
		InstapayQRURL:     u.InstapayQRURL,
		ProfileImageURL:   u.ProfileImageURL,
		CreatedAt:         u.CreatedAt,
		UpdatedAt:         u.UpdatedAt,
	}
}

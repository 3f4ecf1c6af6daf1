package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"connectrpc.com/connect"

	"github.com/mmynk/opensplit/internal/calculator"
	"github.com/mmynk/opensplit/internal/events"
	"github.com/mmynk/opensplit/internal/models"
	"github.com/mmynk/opensplit/internal/money"
	"github.com/mmynk/opensplit/internal/storage"
	"github.com/mmynk/opensplit/pkg/api"
	"github.com/mmynk/opensplit/pkg/api/apiconnect"
)

// ExpenseService implements the Connect ExpenseService.
type ExpenseService struct {
	apiconnect.UnimplementedExpenseServiceHandler
	*ledger
	ocr ReceiptScanner
}

// NewExpenseService creates a new ExpenseService with the given storage backend.
func NewExpenseService(store storage.Store, opts Options) *ExpenseService {
	return &ExpenseService{ledger: newLedger(store, opts), ocr: opts.OCR}
}

// CalculateSplit previews a split without saving anything.
func (s *ExpenseService) CalculateSplit(ctx context.Context, req *connect.Request[api.CalculateSplitRequest]) (*connect.Response[api.CalculateSplitResponse], error) {
	slog.Info("CalculateSplit request received",
		"total", req.Msg.Total,
		"split_mode", req.Msg.SplitMode,
	)

	currency, err := s.resolveCurrency(req.Msg.Currency)
	if err != nil {
		return nil, fail("CalculateSplit", err)
	}
	spec, items, err := splitSpec(&req.Msg.SplitInput, currency)
	if err != nil {
		return nil, fail("CalculateSplit", err)
	}
	total := money.New(req.Msg.Total, currency)
	splits, err := calculator.CalculateSplit(total, spec)
	if err != nil {
		return nil, fail("CalculateSplit", err, "split_mode", spec.Mode())
	}
	s.metrics.SplitCalculated(string(spec.Mode()))

	for _, split := range splits {
		slog.Debug("Participant split", "user_id", split.UserID, "amount", split.Amount.Amount)
	}

	resp := &api.CalculateSplitResponse{
		Currency: currency,
		Splits:   toAPISplits(splits),
	}
	if spec.Mode() == models.SplitItem {
		for _, item := range items {
			resp.ItemsSubtotal += item.Total.Amount
		}
		resp.Adjustment = total.Amount - resp.ItemsSubtotal
	}
	return connect.NewResponse(resp), nil
}

// CreateExpense computes the splits of a new expense and persists it.
func (s *ExpenseService) CreateExpense(ctx context.Context, req *connect.Request[api.CreateExpenseRequest]) (*connect.Response[api.CreateExpenseResponse], error) {
	slog.Info("CreateExpense request received",
		"group_id", req.Msg.GroupID,
		"total", req.Msg.Total,
		"split_mode", req.Msg.SplitMode,
	)

	userID, err := caller(ctx)
	if err != nil {
		return nil, connectError(err)
	}
	var group *models.Group
	if req.Msg.GroupID != "" {
		if group, userID, err = s.memberGroup(ctx, req.Msg.GroupID); err != nil {
			return nil, fail("CreateExpense", err, "group_id", req.Msg.GroupID)
		}
	}

	expense := &models.Expense{GroupID: req.Msg.GroupID, CreatedBy: userID}
	if err := s.apply(expense, &req.Msg.ExpenseInput); err != nil {
		return nil, fail("CreateExpense", err)
	}
	if err := checkInvolvement(expense, group, userID); err != nil {
		return nil, fail("CreateExpense", err)
	}

	// Save to storage (generates ID, item IDs and timestamps)
	if err := s.store.SaveExpense(ctx, expense); err != nil {
		return nil, fail("CreateExpense", err)
	}
	models.LinkSplitItems(expense)
	s.metrics.SplitCalculated(string(expense.SplitMode))
	s.changed(ctx, expense.GroupID, events.ReasonExpense)

	slog.Info("Expense created", "expense_id", expense.ID, "group_id", expense.GroupID)

	return connect.NewResponse(&api.CreateExpenseResponse{Expense: toAPIExpense(expense)}), nil
}

// GetExpense retrieves an expense with its items and splits.
func (s *ExpenseService) GetExpense(ctx context.Context, req *connect.Request[api.GetExpenseRequest]) (*connect.Response[api.GetExpenseResponse], error) {
	slog.Info("GetExpense request received", "expense_id", req.Msg.ExpenseID)

	expense, _, _, err := s.loadForCaller(ctx, req.Msg.ExpenseID)
	if err != nil {
		return nil, fail("GetExpense", err, "expense_id", req.Msg.ExpenseID)
	}

	return connect.NewResponse(&api.GetExpenseResponse{Expense: toAPIExpense(expense)}), nil
}

// UpdateExpense replaces an expense's fields and recomputes all of its
// splits. The group and creator never change.
func (s *ExpenseService) UpdateExpense(ctx context.Context, req *connect.Request[api.UpdateExpenseRequest]) (*connect.Response[api.UpdateExpenseResponse], error) {
	slog.Info("UpdateExpense request received",
		"expense_id", req.Msg.ExpenseID,
		"total", req.Msg.Total,
		"split_mode", req.Msg.SplitMode,
	)

	expense, group, userID, err := s.loadForCaller(ctx, req.Msg.ExpenseID)
	if err != nil {
		return nil, fail("UpdateExpense", err, "expense_id", req.Msg.ExpenseID)
	}
	if !canEdit(expense, group, userID) {
		return nil, connectError(errNotEditor)
	}

	if err := s.apply(expense, &req.Msg.ExpenseInput); err != nil {
		return nil, fail("UpdateExpense", err, "expense_id", expense.ID)
	}
	if err := checkInvolvement(expense, group, userID); err != nil {
		return nil, fail("UpdateExpense", err, "expense_id", expense.ID)
	}

	if err := s.store.SaveExpense(ctx, expense); err != nil {
		return nil, fail("UpdateExpense", err, "expense_id", expense.ID)
	}
	models.LinkSplitItems(expense)
	s.metrics.SplitCalculated(string(expense.SplitMode))
	s.changed(ctx, expense.GroupID, events.ReasonExpense)

	slog.Info("Expense updated", "expense_id", expense.ID)

	return connect.NewResponse(&api.UpdateExpenseResponse{Expense: toAPIExpense(expense)}), nil
}

// DeleteExpense removes an expense with its items and splits.
func (s *ExpenseService) DeleteExpense(ctx context.Context, req *connect.Request[api.DeleteExpenseRequest]) (*connect.Response[api.DeleteExpenseResponse], error) {
	slog.Info("DeleteExpense request received", "expense_id", req.Msg.ExpenseID)

	expense, group, userID, err := s.loadForCaller(ctx, req.Msg.ExpenseID)
	if err != nil {
		return nil, fail("DeleteExpense", err, "expense_id", req.Msg.ExpenseID)
	}
	if !canEdit(expense, group, userID) {
		return nil, connectError(errNotEditor)
	}

	if err := s.store.DeleteExpense(ctx, expense.ID); err != nil {
		return nil, fail("DeleteExpense", err, "expense_id", expense.ID)
	}
	s.changed(ctx, expense.GroupID, events.ReasonExpense)

	slog.Info("Expense deleted", "expense_id", expense.ID)

	return connect.NewResponse(&api.DeleteExpenseResponse{}), nil
}

// ListExpenses returns a group's expenses, most recent first.
func (s *ExpenseService) ListExpenses(ctx context.Context, req *connect.Request[api.ListExpensesRequest]) (*connect.Response[api.ListExpensesResponse], error) {
	slog.Info("ListExpenses request received", "group_id", req.Msg.GroupID)

	group, _, err := s.memberGroup(ctx, req.Msg.GroupID)
	if err != nil {
		return nil, fail("ListExpenses", err, "group_id", req.Msg.GroupID)
	}

	expenses, err := s.store.LoadExpenses(ctx, group.ID)
	if err != nil {
		return nil, fail("ListExpenses", err, "group_id", group.ID)
	}

	out := make([]*api.Expense, len(expenses))
	for i, expense := range expenses {
		out[i] = toAPIExpense(expense)
	}

	slog.Info("ListExpenses successful", "group_id", group.ID, "count", len(out))

	return connect.NewResponse(&api.ListExpensesResponse{Expenses: out}), nil
}

// ScanReceipt sends a receipt photo to the OCR service and returns the
// extracted lines, unassigned, ready for an item split.
func (s *ExpenseService) ScanReceipt(ctx context.Context, req *connect.Request[api.ScanReceiptRequest]) (*connect.Response[api.ScanReceiptResponse], error) {
	slog.Info("ScanReceipt request received", "filename", req.Msg.Filename, "size", len(req.Msg.Image))

	if s.ocr == nil {
		return nil, connectError(errOCRDisabled)
	}
	if len(req.Msg.Image) == 0 {
		return nil, invalidArgument("image required")
	}
	filename := req.Msg.Filename
	if filename == "" {
		filename = "receipt.jpg"
	}

	receipt, err := s.ocr.ParseReceipt(ctx, filename, req.Msg.Image)
	if err != nil {
		slog.Warn("ScanReceipt failed", "filename", filename, "error", err)
		return nil, connectError(err)
	}

	slog.Info("ScanReceipt successful", "merchant", receipt.MerchantName, "items_count", len(receipt.Items))

	return connect.NewResponse(&api.ScanReceiptResponse{
		MerchantName: receipt.MerchantName,
		Currency:     s.currency,
		Items:        toAPIItems(receipt.ExpenseItems(s.currency)),
		Subtotal:     receipt.Subtotal,
		Tax:          receipt.Tax,
		Total:        receipt.Total,
		Date:         receipt.Date,
		OCRText:      receipt.OCRText,
	}), nil
}

// loadForCaller loads an expense the caller may see: any expense of a group
// they belong to, or a personal expense they created, paid or share in.
func (s *ExpenseService) loadForCaller(ctx context.Context, expenseID string) (*models.Expense, *models.Group, string, error) {
	userID, err := caller(ctx)
	if err != nil {
		return nil, nil, "", err
	}
	if expenseID == "" {
		return nil, nil, "", invalidArgument("expense_id required")
	}
	expense, err := s.store.GetExpense(ctx, expenseID)
	if err != nil {
		return nil, nil, "", err
	}
	if expense.GroupID == "" {
		if !expense.Involves(userID) {
			return nil, nil, "", errNotInvolved
		}
		return expense, nil, userID, nil
	}
	group, userID, err := s.memberGroup(ctx, expense.GroupID)
	if err != nil {
		return nil, nil, "", err
	}
	return expense, group, userID, nil
}

// canEdit allows the creator, the payer and group admins to change an expense.
func canEdit(e *models.Expense, group *models.Group, userID string) bool {
	if e.CreatedBy == userID || e.Payer() == userID {
		return true
	}
	return group != nil && group.IsAdmin(userID)
}

// apply copies the caller's input onto e and recomputes its splits.
func (s *ExpenseService) apply(e *models.Expense, in *api.ExpenseInput) error {
	currency, err := s.resolveCurrency(in.Currency)
	if err != nil {
		return err
	}
	spec, items, err := splitSpec(&in.SplitInput, currency)
	if err != nil {
		return err
	}
	total := money.New(in.Total, currency)
	splits, err := calculator.CalculateSplit(total, spec)
	if err != nil {
		return err
	}

	if in.Date != "" {
		date, err := time.Parse(models.DateLayout, in.Date)
		if err != nil {
			return &calculator.ValidationError{Field: "date", Reason: "must be YYYY-MM-DD"}
		}
		e.Date = date
	}
	e.PayerID = strings.TrimSpace(in.PayerID)
	e.Description = strings.TrimSpace(in.Description)
	e.Notes = strings.TrimSpace(in.Notes)
	e.ReceiptURL = in.ReceiptURL
	e.OCRText = in.OCRText
	e.Total = total
	e.SplitMode = spec.Mode()
	e.Items = items
	e.Splits = splits
	return e.Validate()
}

func (s *ExpenseService) resolveCurrency(currency string) (string, error) {
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if currency == "" || currency == s.currency {
		return s.currency, nil
	}
	return "", &calculator.ValidationError{Field: "currency", Reason: fmt.Sprintf("only %s is supported", s.currency)}
}

// checkInvolvement requires group expenses to stay among members and
// personal expenses to include the caller.
func checkInvolvement(e *models.Expense, group *models.Group, userID string) error {
	if group == nil {
		if e.Payer() == userID {
			return nil
		}
		for _, id := range e.Participants() {
			if id == userID {
				return nil
			}
		}
		return &calculator.ValidationError{Field: "participant_ids", Reason: "you must pay for or share in a personal expense"}
	}
	if !group.IsMember(e.Payer()) {
		return &calculator.ValidationError{Field: "payer_id", Reason: e.Payer() + " is not a member of this group"}
	}
	for _, id := range e.Participants() {
		if !group.IsMember(id) {
			return &calculator.ValidationError{Field: "participant_ids", Reason: id + " is not a member of this group"}
		}
	}
	return nil
}

// splitSpec turns the wire description of a split into a calculator spec.
// Fields belonging to another mode are rejected rather than ignored.
func splitSpec(in *api.SplitInput, currency string) (calculator.SplitSpec, []models.ExpenseItem, error) {
	mode := models.SplitMode(strings.ToLower(strings.TrimSpace(in.SplitMode)))
	if mode == "" {
		mode = models.SplitEqual
	}
	if !mode.Valid() {
		return nil, nil, &calculator.ValidationError{Field: "split_mode", Reason: models.ErrInvalidSplitMode.Error()}
	}

	for _, f := range []struct {
		field string
		set   bool
	}{
		{"participant_ids", len(in.ParticipantIDs) > 0 && mode != models.SplitEqual && mode != models.SplitItem},
		{"percentages", len(in.Percentages) > 0 && mode != models.SplitPercentage},
		{"amounts", len(in.Amounts) > 0 && mode != models.SplitAmount},
		{"items", len(in.Items) > 0 && mode != models.SplitItem},
	} {
		if f.set {
			return nil, nil, &calculator.ValidationError{Field: f.field, Reason: fmt.Sprintf("not used by %s splits", mode)}
		}
	}

	switch mode {
	case models.SplitPercentage:
		shares := make([]calculator.PercentShare, len(in.Percentages))
		for i, p := range in.Percentages {
			bp, err := money.ParseDecimal(p.Percent)
			if err != nil {
				return nil, nil, &calculator.ValidationError{Field: "percentages", Reason: fmt.Sprintf("%q is not a percentage", p.Percent)}
			}
			shares[i] = calculator.PercentShare{UserID: p.UserID, BasisPoints: bp}
		}
		return calculator.PercentageSplit{Shares: shares}, nil, nil
	case models.SplitAmount:
		shares := make([]calculator.AmountShare, len(in.Amounts))
		for i, a := range in.Amounts {
			shares[i] = calculator.AmountShare{UserID: a.UserID, Amount: money.New(a.Amount, currency)}
		}
		return calculator.AmountSplit{Shares: shares}, nil, nil
	case models.SplitItem:
		items, err := toModelItems(in.Items, currency)
		if err != nil {
			return nil, nil, err
		}
		return calculator.ItemSplit{Items: items, Participants: in.ParticipantIDs}, items, nil
	default:
		return calculator.EqualSplit{Participants: in.ParticipantIDs}, nil, nil
	}
}

// toModelItems fills in defaults: quantity 1, the line total from unit
// price times quantity, and the unit price from an evenly divisible total.
// Item IDs are always assigned by the store.
func toModelItems(in []*api.ExpenseItem, currency string) ([]models.ExpenseItem, error) {
	items := make([]models.ExpenseItem, len(in))
	for i, it := range in {
		name := strings.TrimSpace(it.Name)
		if name == "" {
			return nil, &calculator.ValidationError{Field: "items", Reason: fmt.Sprintf("item %d has no name", i+1)}
		}
		if it.Quantity < 0 || it.UnitPrice < 0 || it.Total < 0 {
			return nil, &calculator.ValidationError{Field: "items", Reason: fmt.Sprintf("item %q has a negative value", name)}
		}
		qty := it.Quantity
		if qty == 0 {
			qty = 1
		}
		unit := money.New(it.UnitPrice, currency)
		total := money.New(it.Total, currency)
		if total.IsZero() && unit.IsPositive() {
			var err error
			if total, err = unit.Mul(qty); err != nil {
				return nil, err
			}
		}
		if unit.IsZero() && total.Amount%qty == 0 {
			unit = money.New(total.Amount/qty, currency)
		}
		items[i] = models.ExpenseItem{
			Name:       name,
			Quantity:   qty,
			UnitPrice:  unit,
			Total:      total,
			AssignedTo: it.AssignedTo,
		}
	}
	return items, nil
}

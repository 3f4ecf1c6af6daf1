package service

import (
	"context"
	"log/slog"

	"github.com/mmynk/opensplit/internal/cache"
	"github.com/mmynk/opensplit/internal/calculator"
	"github.com/mmynk/opensplit/internal/events"
	"github.com/mmynk/opensplit/internal/metrics"
	"github.com/mmynk/opensplit/internal/middleware"
	"github.com/mmynk/opensplit/internal/models"
	"github.com/mmynk/opensplit/internal/money"
	"github.com/mmynk/opensplit/internal/ocr"
	"github.com/mmynk/opensplit/internal/storage"
)

// ReceiptScanner extracts line items from a receipt photo.
type ReceiptScanner interface {
	ParseReceipt(ctx context.Context, filename string, image []byte) (*ocr.Receipt, error)
}

// Options holds the collaborators shared by the services. Nil fields fall
// back to no-op implementations.
type Options struct {
	// Currency every amount is recorded in.
	Currency string
	Cache    cache.BalanceCache
	Events   events.Publisher
	Metrics  *metrics.Metrics
	// OCR is optional; ScanReceipt fails with Unavailable without it.
	OCR ReceiptScanner
}

// ledger is the state shared by GroupService and ExpenseService: loading
// groups for the caller, computing balances through the cache and
// announcing changes.
type ledger struct {
	store    storage.Store
	cache    cache.BalanceCache
	events   events.Publisher
	metrics  *metrics.Metrics
	currency string
}

func newLedger(store storage.Store, opts Options) *ledger {
	l := &ledger{
		store:    store,
		cache:    opts.Cache,
		events:   opts.Events,
		metrics:  opts.Metrics,
		currency: opts.Currency,
	}
	if l.cache == nil {
		l.cache = cache.Noop{}
	}
	if l.events == nil {
		l.events = events.Noop{}
	}
	if l.currency == "" {
		l.currency = money.DefaultCurrency
	}
	return l
}

// caller returns the authenticated user.
func caller(ctx context.Context) (string, error) {
	userID := middleware.GetUserID(ctx)
	if userID == "" {
		return "", errUnauthenticated
	}
	return userID, nil
}

// memberGroup loads a group the caller belongs to.
func (l *ledger) memberGroup(ctx context.Context, groupID string) (*models.Group, string, error) {
	userID, err := caller(ctx)
	if err != nil {
		return nil, "", err
	}
	if groupID == "" {
		return nil, "", invalidArgument("group_id required")
	}
	group, err := l.store.GetGroup(ctx, groupID)
	if err != nil {
		return nil, "", err
	}
	if !group.IsMember(userID) {
		return nil, "", errNotMember
	}
	return group, userID, nil
}

// balances returns the group's balances and suggested transfers, from the
// cache when possible. A result computed while the group changed is
// returned but not cached.
func (l *ledger) balances(ctx context.Context, group *models.Group) (*cache.Entry, error) {
	entry, gen, ok, cacheErr := l.cache.Get(ctx, group.ID)
	switch {
	case cacheErr != nil:
		l.metrics.CacheResult("error")
		slog.Warn("Balance cache read failed", "group_id", group.ID, "error", cacheErr)
	case ok:
		l.metrics.CacheResult("hit")
		return entry, nil
	default:
		l.metrics.CacheResult("miss")
	}

	entry, err := l.freshBalances(ctx, group)
	if err != nil {
		return nil, err
	}
	// Without a generation the entry cannot be checked for staleness.
	if cacheErr == nil {
		if err := l.cache.Set(ctx, group.ID, gen, entry); err != nil {
			slog.Warn("Balance cache write failed", "group_id", group.ID, "error", err)
		}
	}
	return entry, nil
}

// freshBalances computes the group's balances from the store, bypassing
// the cache. Decisions that must not act on stale data use it directly.
func (l *ledger) freshBalances(ctx context.Context, group *models.Group) (*cache.Entry, error) {
	expenses, err := l.store.LoadExpenses(ctx, group.ID)
	if err != nil {
		return nil, err
	}
	settlements, err := l.store.ListSettlementsByGroup(ctx, group.ID)
	if err != nil {
		return nil, err
	}

	entry, err := computeEntry(l.currency, group, expenses, settlements)
	if err != nil {
		return nil, err
	}
	l.metrics.SettlementPlanned(len(entry.Transfers))
	return entry, nil
}

// changed drops the cached balances of a group after a committed write and
// tells the other instances to do the same. Failures only log: the cache
// entry expires on its own.
func (l *ledger) changed(ctx context.Context, groupID, reason string) {
	if groupID == "" {
		return
	}
	if err := l.cache.Invalidate(ctx, groupID); err != nil {
		slog.Warn("Balance cache invalidation failed", "group_id", groupID, "error", err)
	}
	if err := l.events.PublishGroupChanged(ctx, groupID, reason); err != nil {
		slog.Warn("Publishing group change failed", "group_id", groupID, "reason", reason, "error", err)
	}
}

func computeEntry(currency string, group *models.Group, expenses []*models.Expense, settlements []*models.Settlement) (*cache.Entry, error) {
	forBalance := make([]calculator.ExpenseForBalance, len(expenses))
	for i, e := range expenses {
		forBalance[i] = calculator.ExpenseForBalance{
			ID:      e.ID,
			PayerID: e.Payer(),
			Total:   e.Total,
			Splits:  e.Splits,
		}
	}
	paid := make([]calculator.SettlementForBalance, len(settlements))
	for i, s := range settlements {
		paid[i] = calculator.SettlementForBalance{
			FromUserID: s.FromUserID,
			ToUserID:   s.ToUserID,
			Amount:     s.Amount,
		}
	}

	balances, err := calculator.ComputeBalances(currency, group.MemberIDs(), forBalance, paid)
	if err != nil {
		return nil, err
	}
	transfers, err := calculator.PlanSettlements(balances.Net())
	if err != nil {
		return nil, err
	}
	return &cache.Entry{Balances: balances, Transfers: transfers}, nil
}

package service

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"connectrpc.com/connect"

	"github.com/mmynk/opensplit/internal/cache"
	"github.com/mmynk/opensplit/internal/metrics"
	"github.com/mmynk/opensplit/internal/middleware"
	"github.com/mmynk/opensplit/internal/models"
	"github.com/mmynk/opensplit/internal/storage"
	"github.com/mmynk/opensplit/internal/storage/sqlite"
	"github.com/mmynk/opensplit/pkg/api"
	"github.com/mmynk/opensplit/pkg/api/apiconnect"
)

const testUserHeader = "X-Test-User"

// testAuthInterceptor trusts the user named in the X-Test-User header.
func testAuthInterceptor() connect.UnaryInterceptorFunc {
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			if user := req.Header().Get(testUserHeader); user != "" {
				ctx = middleware.WithUser(ctx, user, user+"@example.com")
			}
			return next(ctx, req)
		}
	}
}

// as builds a request sent by user.
func as[T any](user string, msg *T) *connect.Request[T] {
	req := connect.NewRequest(msg)
	req.Header().Set(testUserHeader, user)
	return req
}

type publishedEvent struct {
	groupID string
	reason  string
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []publishedEvent
}

func (p *recordingPublisher) PublishGroupChanged(_ context.Context, groupID, reason string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, publishedEvent{groupID, reason})
	return nil
}

func (p *recordingPublisher) count(groupID, reason string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, e := range p.events {
		if e.groupID == groupID && e.reason == reason {
			n++
		}
	}
	return n
}

type testEnv struct {
	groups   apiconnect.GroupServiceClient
	expenses apiconnect.ExpenseServiceClient
	profiles apiconnect.ProfileServiceClient
	store    storage.Store
	cache    *cache.LRU
	events   *recordingPublisher
}

// setupTestServer creates a test server for all services over a temporary
// SQLite database.
func setupTestServer(t *testing.T, scanner ReceiptScanner) (*testEnv, func()) {
	t.Helper()
	return setupTestServerWith(t, scanner, nil)
}

// setupTestServerWith is setupTestServer with the services' store wrapped
// by wrap, when set.
func setupTestServerWith(t *testing.T, scanner ReceiptScanner, wrap func(storage.Store) storage.Store) (*testEnv, func()) {
	t.Helper()

	// Create temp database
	tmpFile, err := os.CreateTemp("", "test-*.db")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	tmpFile.Close()

	store, err := sqlite.New(tmpFile.Name())
	if err != nil {
		os.Remove(tmpFile.Name())
		t.Fatalf("failed to create store: %v", err)
	}

	env := &testEnv{
		store:  store,
		cache:  cache.NewLRU(16, time.Minute),
		events: &recordingPublisher{},
	}
	opts := Options{
		Currency: "PHP",
		Cache:    env.cache,
		Events:   env.events,
		Metrics:  metrics.New(),
		OCR:      scanner,
	}

	var svcStore storage.Store = store
	if wrap != nil {
		svcStore = wrap(store)
	}

	interceptors := connect.WithInterceptors(testAuthInterceptor())
	mux := http.NewServeMux()
	mux.Handle(apiconnect.NewGroupServiceHandler(NewGroupService(svcStore, opts), interceptors))
	mux.Handle(apiconnect.NewExpenseServiceHandler(NewExpenseService(svcStore, opts), interceptors))
	mux.Handle(apiconnect.NewProfileServiceHandler(NewProfileService(svcStore), interceptors))

	server := httptest.NewServer(mux)

	env.groups = apiconnect.NewGroupServiceClient(http.DefaultClient, server.URL)
	env.expenses = apiconnect.NewExpenseServiceClient(http.DefaultClient, server.URL)
	env.profiles = apiconnect.NewProfileServiceClient(http.DefaultClient, server.URL)

	cleanup := func() {
		server.Close()
		store.Close()
		os.Remove(tmpFile.Name())
	}

	return env, cleanup
}

// createGroup makes a group owned by owner with the given members.
func createGroup(t *testing.T, env *testEnv, owner string, members ...string) *api.Group {
	t.Helper()
	resp, err := env.groups.CreateGroup(context.Background(), as(owner, &api.CreateGroupRequest{
		Name:      "Boracay Trip",
		MemberIDs: members,
	}))
	if err != nil {
		t.Fatalf("CreateGroup failed: %v", err)
	}
	return resp.Msg.Group
}

// createAmountExpense records an expense paid by payer with fixed shares.
func createAmountExpense(t *testing.T, env *testEnv, groupID, payer string, total int64, shares map[string]int64) *api.Expense {
	t.Helper()
	var amounts []*api.AmountShare
	for _, user := range []string{"alice", "bob", "carol", "dave"} {
		if amount, ok := shares[user]; ok {
			amounts = append(amounts, &api.AmountShare{UserID: user, Amount: amount})
		}
	}
	resp, err := env.expenses.CreateExpense(context.Background(), as(payer, &api.CreateExpenseRequest{
		GroupID: groupID,
		ExpenseInput: api.ExpenseInput{
			Description: "Dinner",
			Total:       total,
			SplitInput:  api.SplitInput{SplitMode: api.SplitAmount, Amounts: amounts},
		},
	}))
	if err != nil {
		t.Fatalf("CreateExpense failed: %v", err)
	}
	return resp.Msg.Expense
}

func wantCode(t *testing.T, err error, code connect.Code) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %v error, got nil", code)
	}
	if got := connect.CodeOf(err); got != code {
		t.Fatalf("expected %v, got %v (%v)", code, got, err)
	}
}

func TestCreateGroup(t *testing.T) {
	env, cleanup := setupTestServer(t, nil)
	defer cleanup()

	group := createGroup(t, env, "alice", "bob", "carol", "bob", "alice")

	if group.ID == "" {
		t.Error("expected group ID to be generated")
	}
	if group.CreatedBy != "alice" {
		t.Errorf("expected creator alice, got %q", group.CreatedBy)
	}
	if len(group.Members) != 3 {
		t.Fatalf("expected 3 members (duplicates dropped), got %d", len(group.Members))
	}
	if group.Members[0].UserID != "alice" || group.Members[0].Role != "admin" {
		t.Errorf("expected alice as first admin member, got %+v", group.Members[0])
	}
	for _, m := range group.Members[1:] {
		if m.Role != "member" {
			t.Errorf("expected %s to be a member, got %s", m.UserID, m.Role)
		}
	}
	if group.CreatedAt == 0 {
		t.Error("expected CreatedAt to be set")
	}
}

func TestCreateGroup_Validation(t *testing.T) {
	env, cleanup := setupTestServer(t, nil)
	defer cleanup()

	_, err := env.groups.CreateGroup(context.Background(), as("alice", &api.CreateGroupRequest{Name: "   "}))
	wantCode(t, err, connect.CodeInvalidArgument)

	_, err = env.groups.CreateGroup(context.Background(), connect.NewRequest(&api.CreateGroupRequest{Name: "Anonymous"}))
	wantCode(t, err, connect.CodeUnauthenticated)
}

func TestGetGroup(t *testing.T) {
	env, cleanup := setupTestServer(t, nil)
	defer cleanup()

	group := createGroup(t, env, "alice", "bob")

	resp, err := env.groups.GetGroup(context.Background(), as("bob", &api.GetGroupRequest{GroupID: group.ID}))
	if err != nil {
		t.Fatalf("GetGroup failed: %v", err)
	}
	if resp.Msg.Group.Name != "Boracay Trip" {
		t.Errorf("expected name 'Boracay Trip', got %q", resp.Msg.Group.Name)
	}

	_, err = env.groups.GetGroup(context.Background(), as("mallory", &api.GetGroupRequest{GroupID: group.ID}))
	wantCode(t, err, connect.CodePermissionDenied)

	_, err = env.groups.GetGroup(context.Background(), as("alice", &api.GetGroupRequest{GroupID: "non-existent-id"}))
	wantCode(t, err, connect.CodeNotFound)

	_, err = env.groups.GetGroup(context.Background(), as("alice", &api.GetGroupRequest{}))
	wantCode(t, err, connect.CodeInvalidArgument)
}

func TestListGroups(t *testing.T) {
	env, cleanup := setupTestServer(t, nil)
	defer cleanup()

	createGroup(t, env, "alice", "bob")
	createGroup(t, env, "bob")
	createGroup(t, env, "carol")

	resp, err := env.groups.ListGroups(context.Background(), as("bob", &api.ListGroupsRequest{}))
	if err != nil {
		t.Fatalf("ListGroups failed: %v", err)
	}
	if len(resp.Msg.Groups) != 2 {
		t.Errorf("expected bob to see 2 groups, got %d", len(resp.Msg.Groups))
	}

	resp, err = env.groups.ListGroups(context.Background(), as("nobody", &api.ListGroupsRequest{}))
	if err != nil {
		t.Fatalf("ListGroups failed: %v", err)
	}
	if len(resp.Msg.Groups) != 0 {
		t.Errorf("expected no groups, got %d", len(resp.Msg.Groups))
	}
}

func TestUpdateGroup(t *testing.T) {
	env, cleanup := setupTestServer(t, nil)
	defer cleanup()

	group := createGroup(t, env, "alice", "bob")

	resp, err := env.groups.UpdateGroup(context.Background(), as("alice", &api.UpdateGroupRequest{
		GroupID:     group.ID,
		Name:        "Siargao Trip",
		Description: "March",
	}))
	if err != nil {
		t.Fatalf("UpdateGroup failed: %v", err)
	}
	if resp.Msg.Group.Name != "Siargao Trip" || resp.Msg.Group.Description != "March" {
		t.Errorf("update not applied: %+v", resp.Msg.Group)
	}
	if len(resp.Msg.Group.Members) != 2 {
		t.Errorf("expected members to be unchanged, got %d", len(resp.Msg.Group.Members))
	}

	_, err = env.groups.UpdateGroup(context.Background(), as("bob", &api.UpdateGroupRequest{GroupID: group.ID, Name: "Mine"}))
	wantCode(t, err, connect.CodePermissionDenied)

	_, err = env.groups.UpdateGroup(context.Background(), as("alice", &api.UpdateGroupRequest{GroupID: group.ID, Name: ""}))
	wantCode(t, err, connect.CodeInvalidArgument)
}

func TestDeleteGroup_RefusedWhileExpensesExist(t *testing.T) {
	env, cleanup := setupTestServer(t, nil)
	defer cleanup()
	ctx := context.Background()

	group := createGroup(t, env, "alice", "bob")
	expense := createAmountExpense(t, env, group.ID, "alice", 1000, map[string]int64{"alice": 500, "bob": 500})

	_, err := env.groups.DeleteGroup(ctx, as("bob", &api.DeleteGroupRequest{GroupID: group.ID}))
	wantCode(t, err, connect.CodePermissionDenied)

	_, err = env.groups.DeleteGroup(ctx, as("alice", &api.DeleteGroupRequest{GroupID: group.ID}))
	wantCode(t, err, connect.CodeFailedPrecondition)

	if _, err := env.expenses.DeleteExpense(ctx, as("alice", &api.DeleteExpenseRequest{ExpenseID: expense.ID})); err != nil {
		t.Fatalf("DeleteExpense failed: %v", err)
	}
	if _, err := env.groups.DeleteGroup(ctx, as("alice", &api.DeleteGroupRequest{GroupID: group.ID})); err != nil {
		t.Fatalf("DeleteGroup failed: %v", err)
	}

	_, err = env.groups.GetGroup(ctx, as("alice", &api.GetGroupRequest{GroupID: group.ID}))
	wantCode(t, err, connect.CodeNotFound)
}

func TestAddMember(t *testing.T) {
	env, cleanup := setupTestServer(t, nil)
	defer cleanup()
	ctx := context.Background()

	group := createGroup(t, env, "alice", "bob")

	resp, err := env.groups.AddMember(ctx, as("alice", &api.AddMemberRequest{GroupID: group.ID, UserID: "carol"}))
	if err != nil {
		t.Fatalf("AddMember failed: %v", err)
	}
	if len(resp.Msg.Group.Members) != 3 {
		t.Errorf("expected 3 members, got %d", len(resp.Msg.Group.Members))
	}
	if env.events.count(group.ID, "membership") != 1 {
		t.Error("expected a membership change to be published")
	}

	_, err = env.groups.AddMember(ctx, as("alice", &api.AddMemberRequest{GroupID: group.ID, UserID: "carol"}))
	wantCode(t, err, connect.CodeAlreadyExists)

	_, err = env.groups.AddMember(ctx, as("bob", &api.AddMemberRequest{GroupID: group.ID, UserID: "dave"}))
	wantCode(t, err, connect.CodePermissionDenied)

	_, err = env.groups.AddMember(ctx, as("alice", &api.AddMemberRequest{GroupID: group.ID, UserID: "dave", Role: "owner"}))
	wantCode(t, err, connect.CodeInvalidArgument)
}

func TestRemoveMember_RequiresSettledBalance(t *testing.T) {
	env, cleanup := setupTestServer(t, nil)
	defer cleanup()
	ctx := context.Background()

	group := createGroup(t, env, "alice", "bob", "carol")
	createAmountExpense(t, env, group.ID, "alice", 600, map[string]int64{"alice": 200, "bob": 400})

	// bob owes alice 400
	_, err := env.groups.RemoveMember(ctx, as("bob", &api.RemoveMemberRequest{GroupID: group.ID}))
	wantCode(t, err, connect.CodeFailedPrecondition)

	if _, err := env.groups.RecordSettlement(ctx, as("bob", &api.RecordSettlementRequest{
		GroupID:  group.ID,
		ToUserID: "alice",
		Amount:   400,
	})); err != nil {
		t.Fatalf("RecordSettlement failed: %v", err)
	}

	if _, err := env.groups.RemoveMember(ctx, as("bob", &api.RemoveMemberRequest{GroupID: group.ID})); err != nil {
		t.Fatalf("RemoveMember failed after settling: %v", err)
	}

	// carol never had a balance; only an admin may remove her
	_, err = env.groups.RemoveMember(ctx, as("bob", &api.RemoveMemberRequest{GroupID: group.ID, UserID: "carol"}))
	wantCode(t, err, connect.CodePermissionDenied)
	if _, err := env.groups.RemoveMember(ctx, as("alice", &api.RemoveMemberRequest{GroupID: group.ID, UserID: "carol"})); err != nil {
		t.Fatalf("admin RemoveMember failed: %v", err)
	}

	_, err = env.groups.RemoveMember(ctx, as("alice", &api.RemoveMemberRequest{GroupID: group.ID}))
	wantCode(t, err, connect.CodeFailedPrecondition)

	_, err = env.groups.RemoveMember(ctx, as("alice", &api.RemoveMemberRequest{GroupID: group.ID, UserID: "zed"}))
	wantCode(t, err, connect.CodeNotFound)
}

// pausingStore holds the next LoadExpenses call after it has read from the
// database until release is closed.
type pausingStore struct {
	storage.Store
	armed   chan struct{}
	loaded  chan struct{}
	release chan struct{}
}

func newPausingStore(inner storage.Store) *pausingStore {
	return &pausingStore{
		Store:   inner,
		armed:   make(chan struct{}, 1),
		loaded:  make(chan struct{}),
		release: make(chan struct{}),
	}
}

func (p *pausingStore) LoadExpenses(ctx context.Context, groupID string) ([]*models.Expense, error) {
	expenses, err := p.Store.LoadExpenses(ctx, groupID)
	select {
	case <-p.armed:
		close(p.loaded)
		<-p.release
	default:
	}
	return expenses, err
}

func TestGetGroupBalances_ReadRacingWrite(t *testing.T) {
	var paused *pausingStore
	env, cleanup := setupTestServerWith(t, nil, func(s storage.Store) storage.Store {
		paused = newPausingStore(s)
		return paused
	})
	defer cleanup()
	ctx := context.Background()

	group := createGroup(t, env, "alice", "bob")

	// The read loads an empty ledger, then waits while an expense commits.
	paused.armed <- struct{}{}
	done := make(chan error, 1)
	go func() {
		_, err := env.groups.GetGroupBalances(ctx, as("alice", &api.GetGroupBalancesRequest{GroupID: group.ID}))
		done <- err
	}()
	<-paused.loaded

	if _, err := env.expenses.CreateExpense(ctx, as("alice", &api.CreateExpenseRequest{
		GroupID: group.ID,
		ExpenseInput: api.ExpenseInput{
			Description: "Island hopping",
			Total:       1000,
			SplitInput:  api.SplitInput{SplitMode: api.SplitEqual, ParticipantIDs: []string{"alice", "bob"}},
		},
	})); err != nil {
		t.Fatalf("CreateExpense failed: %v", err)
	}

	close(paused.release)
	if err := <-done; err != nil {
		t.Fatalf("GetGroupBalances failed: %v", err)
	}

	if _, _, ok, _ := env.cache.Get(ctx, group.ID); ok {
		t.Fatal("balances computed before the expense must not be cached")
	}

	resp, err := env.groups.GetGroupBalances(ctx, as("alice", &api.GetGroupBalancesRequest{GroupID: group.ID}))
	if err != nil {
		t.Fatalf("GetGroupBalances failed: %v", err)
	}
	for _, b := range resp.Msg.MemberBalances {
		if b.UserID == "bob" && b.NetBalance != -500 {
			t.Errorf("expected bob at -500, got %d", b.NetBalance)
		}
	}

	_, err = env.groups.RemoveMember(ctx, as("bob", &api.RemoveMemberRequest{GroupID: group.ID}))
	wantCode(t, err, connect.CodeFailedPrecondition)
}

func TestRemoveMember_IgnoresCachedBalances(t *testing.T) {
	env, cleanup := setupTestServer(t, nil)
	defer cleanup()
	ctx := context.Background()

	group := createGroup(t, env, "alice", "bob")
	createAmountExpense(t, env, group.ID, "alice", 1000, map[string]int64{"alice": 500, "bob": 500})

	// Plant an entry claiming everyone is settled, as a lagging instance
	// might still hold.
	_, gen, _, _ := env.cache.Get(ctx, group.ID)
	settled, err := computeEntry("PHP", &models.Group{ID: group.ID, Members: []models.GroupMember{{UserID: "alice"}, {UserID: "bob"}}}, nil, nil)
	if err != nil {
		t.Fatalf("computeEntry failed: %v", err)
	}
	if err := env.cache.Set(ctx, group.ID, gen, settled); err != nil {
		t.Fatalf("cache Set failed: %v", err)
	}

	_, err = env.groups.RemoveMember(ctx, as("bob", &api.RemoveMemberRequest{GroupID: group.ID}))
	wantCode(t, err, connect.CodeFailedPrecondition)
}

func TestGetGroupBalances(t *testing.T) {
	env, cleanup := setupTestServer(t, nil)
	defer cleanup()
	ctx := context.Background()

	group := createGroup(t, env, "alice", "bob", "carol", "dave")
	createAmountExpense(t, env, group.ID, "alice", 500, map[string]int64{"bob": 200, "carol": 300})

	resp, err := env.groups.GetGroupBalances(ctx, as("bob", &api.GetGroupBalancesRequest{GroupID: group.ID}))
	if err != nil {
		t.Fatalf("GetGroupBalances failed: %v", err)
	}

	want := map[string]int64{"alice": 500, "bob": -200, "carol": -300, "dave": 0}
	if len(resp.Msg.MemberBalances) != len(want) {
		t.Fatalf("expected %d balances, got %d", len(want), len(resp.Msg.MemberBalances))
	}
	var sum int64
	for _, b := range resp.Msg.MemberBalances {
		if b.NetBalance != want[b.UserID] {
			t.Errorf("%s: expected net %d, got %d", b.UserID, want[b.UserID], b.NetBalance)
		}
		sum += b.NetBalance
	}
	if sum != 0 {
		t.Errorf("balances must sum to zero, got %d", sum)
	}
	if resp.Msg.Currency != "PHP" {
		t.Errorf("expected PHP, got %q", resp.Msg.Currency)
	}

	transfers := map[string]int64{}
	for _, tr := range resp.Msg.Transfers {
		if tr.To != "alice" {
			t.Errorf("unexpected transfer %+v", tr)
		}
		transfers[tr.From] = tr.Amount
	}
	if len(transfers) != 2 || transfers["bob"] != 200 || transfers["carol"] != 300 {
		t.Errorf("expected bob->alice 200 and carol->alice 300, got %+v", resp.Msg.Transfers)
	}
	if len(resp.Msg.DebtMatrix) != 2 {
		t.Errorf("expected 2 pairwise debts, got %d", len(resp.Msg.DebtMatrix))
	}

	_, err = env.groups.GetGroupBalances(ctx, as("mallory", &api.GetGroupBalancesRequest{GroupID: group.ID}))
	wantCode(t, err, connect.CodePermissionDenied)
}

func TestGetGroupBalances_CacheInvalidatedOnWrite(t *testing.T) {
	env, cleanup := setupTestServer(t, nil)
	defer cleanup()
	ctx := context.Background()

	group := createGroup(t, env, "alice", "bob")
	createAmountExpense(t, env, group.ID, "alice", 1000, map[string]int64{"alice": 500, "bob": 500})

	if _, err := env.groups.GetGroupBalances(ctx, as("alice", &api.GetGroupBalancesRequest{GroupID: group.ID})); err != nil {
		t.Fatalf("GetGroupBalances failed: %v", err)
	}
	if _, _, ok, _ := env.cache.Get(ctx, group.ID); !ok {
		t.Fatal("expected balances to be cached")
	}

	createAmountExpense(t, env, group.ID, "bob", 300, map[string]int64{"alice": 300})
	if _, _, ok, _ := env.cache.Get(ctx, group.ID); ok {
		t.Fatal("expected cache entry to be invalidated by the new expense")
	}
	if env.events.count(group.ID, "expense") != 2 {
		t.Errorf("expected 2 expense events, got %d", env.events.count(group.ID, "expense"))
	}

	resp, err := env.groups.GetGroupBalances(ctx, as("alice", &api.GetGroupBalancesRequest{GroupID: group.ID}))
	if err != nil {
		t.Fatalf("GetGroupBalances failed: %v", err)
	}
	for _, b := range resp.Msg.MemberBalances {
		// alice: +500 -300, bob: -500 +300
		if b.UserID == "alice" && b.NetBalance != 200 {
			t.Errorf("expected alice at 200 after recompute, got %d", b.NetBalance)
		}
	}
}

func TestRecordSettlement_Validation(t *testing.T) {
	env, cleanup := setupTestServer(t, nil)
	defer cleanup()
	ctx := context.Background()

	group := createGroup(t, env, "alice", "bob")

	tests := []struct {
		name string
		req  *api.RecordSettlementRequest
		code connect.Code
	}{
		{"missing recipient", &api.RecordSettlementRequest{GroupID: group.ID, Amount: 100}, connect.CodeInvalidArgument},
		{"to self", &api.RecordSettlementRequest{GroupID: group.ID, ToUserID: "bob", Amount: 100}, connect.CodeInvalidArgument},
		{"zero amount", &api.RecordSettlementRequest{GroupID: group.ID, ToUserID: "alice"}, connect.CodeInvalidArgument},
		{"non-member recipient", &api.RecordSettlementRequest{GroupID: group.ID, ToUserID: "zed", Amount: 100}, connect.CodeInvalidArgument},
		{"unknown group", &api.RecordSettlementRequest{GroupID: "nope", ToUserID: "alice", Amount: 100}, connect.CodeNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.groups.RecordSettlement(ctx, as("bob", tt.req))
			wantCode(t, err, tt.code)
		})
	}
}

func TestSettlements_ListAndDelete(t *testing.T) {
	env, cleanup := setupTestServer(t, nil)
	defer cleanup()
	ctx := context.Background()

	group := createGroup(t, env, "alice", "bob", "carol")

	resp, err := env.groups.RecordSettlement(ctx, as("bob", &api.RecordSettlementRequest{
		GroupID:  group.ID,
		ToUserID: "alice",
		Amount:   250,
		Note:     "GCash",
	}))
	if err != nil {
		t.Fatalf("RecordSettlement failed: %v", err)
	}
	settlement := resp.Msg.Settlement
	if settlement.FromUserID != "bob" || settlement.CreatedBy != "bob" || settlement.Currency != "PHP" {
		t.Errorf("unexpected settlement %+v", settlement)
	}

	list, err := env.groups.ListSettlements(ctx, as("carol", &api.ListSettlementsRequest{GroupID: group.ID}))
	if err != nil {
		t.Fatalf("ListSettlements failed: %v", err)
	}
	if len(list.Msg.Settlements) != 1 || list.Msg.Settlements[0].Note != "GCash" {
		t.Fatalf("expected the recorded settlement, got %+v", list.Msg.Settlements)
	}

	_, err = env.groups.DeleteSettlement(ctx, as("carol", &api.DeleteSettlementRequest{SettlementID: settlement.ID}))
	wantCode(t, err, connect.CodePermissionDenied)

	if _, err := env.groups.DeleteSettlement(ctx, as("alice", &api.DeleteSettlementRequest{SettlementID: settlement.ID})); err != nil {
		t.Fatalf("DeleteSettlement failed: %v", err)
	}
	_, err = env.groups.DeleteSettlement(ctx, as("alice", &api.DeleteSettlementRequest{SettlementID: settlement.ID}))
	wantCode(t, err, connect.CodeNotFound)

	if env.events.count(group.ID, "settlement") != 2 {
		t.Errorf("expected 2 settlement events, got %d", env.events.count(group.ID, "settlement"))
	}
}

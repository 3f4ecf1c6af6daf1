package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"connectrpc.com/connect"

	"github.com/mmynk/opensplit/internal/events"
	"github.com/mmynk/opensplit/internal/models"
	"github.com/mmynk/opensplit/internal/money"
	"github.com/mmynk/opensplit/internal/storage"
	"github.com/mmynk/opensplit/pkg/api"
	"github.com/mmynk/opensplit/pkg/api/apiconnect"
)

// GroupService implements the Connect GroupService: groups, membership,
// balances and recorded settlements.
type GroupService struct {
	apiconnect.UnimplementedGroupServiceHandler
	*ledger
}

// NewGroupService creates a new GroupService with the given storage backend.
func NewGroupService(store storage.Store, opts Options) *GroupService {
	return &GroupService{ledger: newLedger(store, opts)}
}

// CreateGroup creates a new group. The caller becomes its admin.
func (s *GroupService) CreateGroup(ctx context.Context, req *connect.Request[api.CreateGroupRequest]) (*connect.Response[api.CreateGroupResponse], error) {
	slog.Info("CreateGroup request received",
		"name", req.Msg.Name,
		"members_count", len(req.Msg.MemberIDs),
	)

	userID, err := caller(ctx)
	if err != nil {
		return nil, connectError(err)
	}

	group := &models.Group{
		Name:        strings.TrimSpace(req.Msg.Name),
		Description: strings.TrimSpace(req.Msg.Description),
		CreatedBy:   userID,
	}
	seen := map[string]bool{userID: true}
	for _, id := range req.Msg.MemberIDs {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		group.Members = append(group.Members, models.GroupMember{UserID: id, Role: models.RoleMember})
	}
	group.EnsureCreatorAdmin(0)

	if err := group.Validate(); err != nil {
		return nil, fail("CreateGroup", err)
	}

	// Save to storage (generates ID and CreatedAt)
	if err := s.store.CreateGroup(ctx, group); err != nil {
		return nil, fail("CreateGroup", err)
	}

	slog.Info("Group created", "group_id", group.ID)

	return connect.NewResponse(&api.CreateGroupResponse{Group: toAPIGroup(group)}), nil
}

// GetGroup retrieves a group the caller belongs to.
func (s *GroupService) GetGroup(ctx context.Context, req *connect.Request[api.GetGroupRequest]) (*connect.Response[api.GetGroupResponse], error) {
	slog.Info("GetGroup request received", "group_id", req.Msg.GroupID)

	group, _, err := s.memberGroup(ctx, req.Msg.GroupID)
	if err != nil {
		return nil, fail("GetGroup", err, "group_id", req.Msg.GroupID)
	}

	slog.Info("GetGroup successful", "group_id", group.ID, "name", group.Name)

	return connect.NewResponse(&api.GetGroupResponse{Group: toAPIGroup(group)}), nil
}

// ListGroups retrieves every group the caller belongs to.
func (s *GroupService) ListGroups(ctx context.Context, req *connect.Request[api.ListGroupsRequest]) (*connect.Response[api.ListGroupsResponse], error) {
	slog.Info("ListGroups request received")

	userID, err := caller(ctx)
	if err != nil {
		return nil, connectError(err)
	}

	groups, err := s.store.ListGroupsForUser(ctx, userID)
	if err != nil {
		return nil, fail("ListGroups", err)
	}

	out := make([]*api.Group, len(groups))
	for i, group := range groups {
		out[i] = toAPIGroup(group)
	}

	slog.Info("ListGroups successful", "count", len(groups))

	return connect.NewResponse(&api.ListGroupsResponse{Groups: out}), nil
}

// UpdateGroup renames a group or changes its description. Admins only.
func (s *GroupService) UpdateGroup(ctx context.Context, req *connect.Request[api.UpdateGroupRequest]) (*connect.Response[api.UpdateGroupResponse], error) {
	slog.Info("UpdateGroup request received",
		"group_id", req.Msg.GroupID,
		"name", req.Msg.Name,
	)

	group, userID, err := s.memberGroup(ctx, req.Msg.GroupID)
	if err != nil {
		return nil, fail("UpdateGroup", err, "group_id", req.Msg.GroupID)
	}
	if !group.IsAdmin(userID) {
		return nil, connectError(errNotAdmin)
	}

	group.Name = strings.TrimSpace(req.Msg.Name)
	group.Description = strings.TrimSpace(req.Msg.Description)
	if err := group.Validate(); err != nil {
		return nil, fail("UpdateGroup", err, "group_id", group.ID)
	}

	if err := s.store.UpdateGroup(ctx, group); err != nil {
		return nil, fail("UpdateGroup", err, "group_id", group.ID)
	}

	// Fetch updated group to get UpdatedAt
	updated, err := s.store.GetGroup(ctx, group.ID)
	if err != nil {
		return nil, fail("UpdateGroup", err, "group_id", group.ID)
	}
	s.changed(ctx, group.ID, events.ReasonGroup)

	slog.Info("Group updated", "group_id", group.ID)

	return connect.NewResponse(&api.UpdateGroupResponse{Group: toAPIGroup(updated)}), nil
}

// DeleteGroup removes a group. Admins only, and only once it has no expenses.
func (s *GroupService) DeleteGroup(ctx context.Context, req *connect.Request[api.DeleteGroupRequest]) (*connect.Response[api.DeleteGroupResponse], error) {
	slog.Info("DeleteGroup request received", "group_id", req.Msg.GroupID)

	group, userID, err := s.memberGroup(ctx, req.Msg.GroupID)
	if err != nil {
		return nil, fail("DeleteGroup", err, "group_id", req.Msg.GroupID)
	}
	if !group.IsAdmin(userID) {
		return nil, connectError(errNotAdmin)
	}

	count, err := s.store.CountExpenses(ctx, group.ID)
	if err != nil {
		return nil, fail("DeleteGroup", err, "group_id", group.ID)
	}
	if count > 0 {
		return nil, connectError(fmt.Errorf("%w (%d)", errGroupInUse, count))
	}

	if err := s.store.DeleteGroup(ctx, group.ID); err != nil {
		return nil, fail("DeleteGroup", err, "group_id", group.ID)
	}
	s.changed(ctx, group.ID, events.ReasonGroup)

	slog.Info("Group deleted", "group_id", group.ID)

	return connect.NewResponse(&api.DeleteGroupResponse{}), nil
}

// AddMember adds a user to a group. Admins only.
func (s *GroupService) AddMember(ctx context.Context, req *connect.Request[api.AddMemberRequest]) (*connect.Response[api.AddMemberResponse], error) {
	slog.Info("AddMember request received",
		"group_id", req.Msg.GroupID,
		"user_id", req.Msg.UserID,
		"role", req.Msg.Role,
	)

	group, userID, err := s.memberGroup(ctx, req.Msg.GroupID)
	if err != nil {
		return nil, fail("AddMember", err, "group_id", req.Msg.GroupID)
	}
	if !group.IsAdmin(userID) {
		return nil, connectError(errNotAdmin)
	}

	newMember := strings.TrimSpace(req.Msg.UserID)
	if newMember == "" {
		return nil, invalidArgument("user_id required")
	}
	role := models.Role(req.Msg.Role)
	if role == "" {
		role = models.RoleMember
	}
	if !role.Valid() {
		return nil, connectError(models.ErrInvalidRole)
	}

	member := &models.GroupMember{GroupID: group.ID, UserID: newMember, Role: role}
	if err := s.store.AddMember(ctx, member); err != nil {
		return nil, fail("AddMember", err, "group_id", group.ID, "user_id", newMember)
	}
	group.Members = append(group.Members, *member)
	s.changed(ctx, group.ID, events.ReasonMembership)

	slog.Info("Member added", "group_id", group.ID, "user_id", newMember)

	return connect.NewResponse(&api.AddMemberResponse{Group: toAPIGroup(group)}), nil
}

// RemoveMember removes a user from a group. Admins may remove anyone but the
// creator; members may remove themselves. A member with a nonzero balance
// cannot leave until they settle up.
func (s *GroupService) RemoveMember(ctx context.Context, req *connect.Request[api.RemoveMemberRequest]) (*connect.Response[api.RemoveMemberResponse], error) {
	slog.Info("RemoveMember request received",
		"group_id", req.Msg.GroupID,
		"user_id", req.Msg.UserID,
	)

	group, userID, err := s.memberGroup(ctx, req.Msg.GroupID)
	if err != nil {
		return nil, fail("RemoveMember", err, "group_id", req.Msg.GroupID)
	}
	target := req.Msg.UserID
	if target == "" {
		target = userID
	}
	if target != userID && !group.IsAdmin(userID) {
		return nil, connectError(errNotAdmin)
	}
	if !group.IsMember(target) {
		return nil, connectError(fmt.Errorf("member %s: %w", target, storage.ErrNotFound))
	}
	if target == group.CreatedBy {
		return nil, connectError(errCreatorMembership)
	}

	// Never trust the cache here: another instance may not have seen the
	// latest write yet.
	entry, err := s.freshBalances(ctx, group)
	if err != nil {
		return nil, fail("RemoveMember", err, "group_id", group.ID)
	}
	if net := entry.Balances.Of(target); !net.IsZero() {
		return nil, connectError(fmt.Errorf("%w: %s is at %s", errOutstandingBalance, target, money.FormatDecimal(net.Amount)))
	}

	if err := s.store.RemoveMember(ctx, group.ID, target); err != nil {
		return nil, fail("RemoveMember", err, "group_id", group.ID, "user_id", target)
	}
	s.changed(ctx, group.ID, events.ReasonMembership)

	slog.Info("Member removed", "group_id", group.ID, "user_id", target)

	return connect.NewResponse(&api.RemoveMemberResponse{}), nil
}

// GetGroupBalances returns every member's net balance, the pairwise debts
// and the suggested transfers that settle the group.
func (s *GroupService) GetGroupBalances(ctx context.Context, req *connect.Request[api.GetGroupBalancesRequest]) (*connect.Response[api.GetGroupBalancesResponse], error) {
	groupID := req.Msg.GroupID
	slog.Info("GetGroupBalances request received", "group_id", groupID)

	group, _, err := s.memberGroup(ctx, groupID)
	if err != nil {
		return nil, fail("GetGroupBalances", err, "group_id", groupID)
	}

	entry, err := s.balances(ctx, group)
	if err != nil {
		return nil, fail("GetGroupBalances", err, "group_id", groupID)
	}

	slog.Info("GetGroupBalances successful",
		"group_id", groupID,
		"members_count", len(entry.Balances.Members),
		"debts_count", len(entry.Balances.Pairwise),
		"transfers_count", len(entry.Transfers),
	)

	return connect.NewResponse(toAPIBalances(entry)), nil
}

// RecordSettlement records a payment between two members.
func (s *GroupService) RecordSettlement(ctx context.Context, req *connect.Request[api.RecordSettlementRequest]) (*connect.Response[api.RecordSettlementResponse], error) {
	slog.Info("RecordSettlement request received",
		"group_id", req.Msg.GroupID,
		"from", req.Msg.FromUserID,
		"to", req.Msg.ToUserID,
		"amount", req.Msg.Amount,
	)

	group, userID, err := s.memberGroup(ctx, req.Msg.GroupID)
	if err != nil {
		return nil, fail("RecordSettlement", err, "group_id", req.Msg.GroupID)
	}

	from := req.Msg.FromUserID
	if from == "" {
		from = userID
	}
	switch {
	case req.Msg.ToUserID == "":
		return nil, invalidArgument("to_user_id required")
	case from == req.Msg.ToUserID:
		return nil, invalidArgument("cannot record a payment to yourself")
	case req.Msg.Amount <= 0:
		return nil, invalidArgument("amount must be positive")
	case !group.IsMember(from):
		return nil, invalidArgument(from + " is not a member of this group")
	case !group.IsMember(req.Msg.ToUserID):
		return nil, invalidArgument(req.Msg.ToUserID + " is not a member of this group")
	}

	settlement := &models.Settlement{
		GroupID:    group.ID,
		FromUserID: from,
		ToUserID:   req.Msg.ToUserID,
		Amount:     money.New(req.Msg.Amount, s.currency),
		CreatedBy:  userID,
		Note:       strings.TrimSpace(req.Msg.Note),
	}
	if err := s.store.CreateSettlement(ctx, settlement); err != nil {
		return nil, fail("RecordSettlement", err, "group_id", group.ID)
	}
	s.changed(ctx, group.ID, events.ReasonSettlement)

	slog.Info("Settlement recorded", "group_id", group.ID, "settlement_id", settlement.ID)

	return connect.NewResponse(&api.RecordSettlementResponse{Settlement: toAPISettlement(settlement)}), nil
}

// ListSettlements returns a group's recorded payments, newest first.
func (s *GroupService) ListSettlements(ctx context.Context, req *connect.Request[api.ListSettlementsRequest]) (*connect.Response[api.ListSettlementsResponse], error) {
	slog.Info("ListSettlements request received", "group_id", req.Msg.GroupID)

	group, _, err := s.memberGroup(ctx, req.Msg.GroupID)
	if err != nil {
		return nil, fail("ListSettlements", err, "group_id", req.Msg.GroupID)
	}

	settlements, err := s.store.ListSettlementsByGroup(ctx, group.ID)
	if err != nil {
		return nil, fail("ListSettlements", err, "group_id", group.ID)
	}

	out := make([]*api.Settlement, len(settlements))
	for i, settlement := range settlements {
		out[i] = toAPISettlement(settlement)
	}

	return connect.NewResponse(&api.ListSettlementsResponse{Settlements: out}), nil
}

// DeleteSettlement removes a recorded payment. Allowed for the two parties,
// whoever recorded it, and group admins.
func (s *GroupService) DeleteSettlement(ctx context.Context, req *connect.Request[api.DeleteSettlementRequest]) (*connect.Response[api.DeleteSettlementResponse], error) {
	slog.Info("DeleteSettlement request received", "settlement_id", req.Msg.SettlementID)

	if req.Msg.SettlementID == "" {
		return nil, invalidArgument("settlement_id required")
	}
	settlement, err := s.store.GetSettlement(ctx, req.Msg.SettlementID)
	if err != nil {
		return nil, fail("DeleteSettlement", err, "settlement_id", req.Msg.SettlementID)
	}
	group, userID, err := s.memberGroup(ctx, settlement.GroupID)
	if err != nil {
		return nil, fail("DeleteSettlement", err, "settlement_id", settlement.ID)
	}

	involved := userID == settlement.FromUserID || userID == settlement.ToUserID || userID == settlement.CreatedBy
	if !involved && !group.IsAdmin(userID) {
		return nil, connect.NewError(connect.CodePermissionDenied, errors.New("only the parties to a payment or an admin can delete it"))
	}

	if err := s.store.DeleteSettlement(ctx, settlement.ID); err != nil {
		return nil, fail("DeleteSettlement", err, "settlement_id", settlement.ID)
	}
	s.changed(ctx, group.ID, events.ReasonSettlement)

	slog.Info("Settlement deleted", "group_id", group.ID, "settlement_id", settlement.ID)

	return connect.NewResponse(&api.DeleteSettlementResponse{}), nil
}

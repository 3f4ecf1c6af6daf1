// Package api defines the request and response messages of the OpenSplit
// RPC services. Messages are plain structs encoded as JSON; see the
// apiconnect package for handlers and clients.
//
// All amounts are integer minor units (centavos) in the currency named
// next to them. Dates are "YYYY-MM-DD". Timestamps are Unix seconds.
package api

// Split modes accepted in SplitInput.SplitMode.
const (
	SplitEqual      = "equal"
	SplitPercentage = "percentage"
	SplitAmount     = "amount"
	SplitItem       = "item"
)

// Group is a set of members sharing expenses.
type Group struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedBy   string    `json:"created_by"`
	Members     []*Member `json:"members"`
	CreatedAt   int64     `json:"created_at"`
	UpdatedAt   int64     `json:"updated_at"`
}

// Member is one membership of a group.
type Member struct {
	UserID   string `json:"user_id"`
	Role     string `json:"role"`
	JoinedAt int64  `json:"joined_at"`
}

type CreateGroupRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	// MemberIDs are added as regular members. The caller becomes admin.
	MemberIDs []string `json:"member_ids,omitempty"`
}

type CreateGroupResponse struct {
	Group *Group `json:"group"`
}

type GetGroupRequest struct {
	GroupID string `json:"group_id"`
}

type GetGroupResponse struct {
	Group *Group `json:"group"`
}

type ListGroupsRequest struct{}

type ListGroupsResponse struct {
	Groups []*Group `json:"groups"`
}

type UpdateGroupRequest struct {
	GroupID     string `json:"group_id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

type UpdateGroupResponse struct {
	Group *Group `json:"group"`
}

type DeleteGroupRequest struct {
	GroupID string `json:"group_id"`
}

type DeleteGroupResponse struct{}

type AddMemberRequest struct {
	GroupID string `json:"group_id"`
	UserID  string `json:"user_id"`
	// Role is "admin" or "member". Empty means member.
	Role string `json:"role,omitempty"`
}

type AddMemberResponse struct {
	Group *Group `json:"group"`
}

type RemoveMemberRequest struct {
	GroupID string `json:"group_id"`
	UserID  string `json:"user_id"`
}

type RemoveMemberResponse struct{}

// MemberBalance is one member's position in a group. A positive
// NetBalance means the member is owed money.
type MemberBalance struct {
	UserID     string `json:"user_id"`
	NetBalance int64  `json:"net_balance"`
	TotalPaid  int64  `json:"total_paid"`
	TotalOwed  int64  `json:"total_owed"`
}

// DebtEdge is the net amount From owes To across all expenses.
type DebtEdge struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Amount int64  `json:"amount"`
}

// Transfer is a suggested payment that settles up the group.
type Transfer struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Amount int64  `json:"amount"`
}

type GetGroupBalancesRequest struct {
	GroupID string `json:"group_id"`
}

type GetGroupBalancesResponse struct {
	Currency       string           `json:"currency"`
	MemberBalances []*MemberBalance `json:"member_balances"`
	DebtMatrix     []*DebtEdge      `json:"debt_matrix"`
	Transfers      []*Transfer      `json:"transfers"`
}

// Settlement is a recorded payment between two members.
type Settlement struct {
	ID         string `json:"id"`
	GroupID    string `json:"group_id"`
	FromUserID string `json:"from_user_id"`
	ToUserID   string `json:"to_user_id"`
	Amount     int64  `json:"amount"`
	Currency   string `json:"currency"`
	Note       string `json:"note,omitempty"`
	CreatedBy  string `json:"created_by"`
	CreatedAt  int64  `json:"created_at"`
}

type RecordSettlementRequest struct {
	GroupID string `json:"group_id"`
	// FromUserID defaults to the caller.
	FromUserID string `json:"from_user_id,omitempty"`
	ToUserID   string `json:"to_user_id"`
	Amount     int64  `json:"amount"`
	Note       string `json:"note,omitempty"`
}

type RecordSettlementResponse struct {
	Settlement *Settlement `json:"settlement"`
}

type ListSettlementsRequest struct {
	GroupID string `json:"group_id"`
}

type ListSettlementsResponse struct {
	Settlements []*Settlement `json:"settlements"`
}

type DeleteSettlementRequest struct {
	SettlementID string `json:"settlement_id"`
}

type DeleteSettlementResponse struct{}

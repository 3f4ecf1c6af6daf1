package models

import (
	"errors"
	"strings"
)

// Role is a member's permission level within a group.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
)

var (
	ErrEmptyGroupName = errors.New("group name is required")
	ErrGroupNameLong  = errors.New("group name too long (max 100 characters)")
	ErrInvalidRole    = errors.New("role must be admin or member")
)

// Group is a set of users who share expenses.
type Group struct {
	// ID is the unique identifier for the group (UUID format).
	ID string

	// Name is the display name of the group (e.g., "Roommates", "Boracay Trip").
	Name string

	// Description is optional free text.
	Description string

	// CreatedBy is the user ID of the creator. The creator is always an admin member.
	CreatedBy string

	// Members lists every membership, creator included.
	Members []GroupMember

	// CreatedAt and UpdatedAt are Unix timestamps.
	CreatedAt int64
	UpdatedAt int64
}

// GroupMember is a (group, user) pair with a role.
type GroupMember struct {
	GroupID  string
	UserID   string
	Role     Role
	JoinedAt int64
}

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleMember
}

// Validate checks the fields a caller controls.
func (g *Group) Validate() error {
	name := strings.TrimSpace(g.Name)
	if name == "" {
		return ErrEmptyGroupName
	}
	if len(name) > 100 {
		return ErrGroupNameLong
	}
	for _, m := range g.Members {
		if !m.Role.Valid() {
			return ErrInvalidRole
		}
	}
	return nil
}

// Member returns the membership for userID, if any.
func (g *Group) Member(userID string) (GroupMember, bool) {
	for _, m := range g.Members {
		if m.UserID == userID {
			return m, true
		}
	}
	return GroupMember{}, false
}

// IsMember reports whether userID belongs to the group.
func (g *Group) IsMember(userID string) bool {
	_, ok := g.Member(userID)
	return ok
}

// IsAdmin reports whether userID is an admin. The creator always is.
func (g *Group) IsAdmin(userID string) bool {
	if userID != "" && userID == g.CreatedBy {
		return true
	}
	m, ok := g.Member(userID)
	return ok && m.Role == RoleAdmin
}

// MemberIDs returns the user IDs of all members in membership order.
func (g *Group) MemberIDs() []string {
	ids := make([]string, len(g.Members))
	for i, m := range g.Members {
		ids[i] = m.UserID
	}
	return ids
}

// EnsureCreatorAdmin makes the creator an admin member, adding the
// membership if it is missing.
func (g *Group) EnsureCreatorAdmin(joinedAt int64) {
	for i := range g.Members {
		if g.Members[i].UserID == g.CreatedBy {
			g.Members[i].Role = RoleAdmin
			return
		}
	}
	g.Members = append([]GroupMember{{
		GroupID:  g.ID,
		UserID:   g.CreatedBy,
		Role:     RoleAdmin,
		JoinedAt: joinedAt,
	}}, g.Members...)
}

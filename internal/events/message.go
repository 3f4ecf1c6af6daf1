// Package events fans group-change notifications out to every server
// instance so each can drop its cached balances.
package events

import (
	"encoding/json"
	"fmt"
	"time"
)

// Reasons a group changed.
const (
	ReasonExpense    = "expense"
	ReasonSettlement = "settlement"
	ReasonMembership = "membership"
	ReasonGroup      = "group"
)

// GroupChanged is published after a committed write that affects a
// group's balances.
type GroupChanged struct {
	GroupID string    `json:"group_id"`
	Reason  string    `json:"reason"`
	Origin  string    `json:"origin"` // instance that made the change
	At      time.Time `json:"at"`
}

func (m *GroupChanged) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// GroupChangedFromJSON decodes and checks a message body.
func GroupChangedFromJSON(data []byte) (*GroupChanged, error) {
	var m GroupChanged
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	if m.GroupID == "" {
		return nil, fmt.Errorf("message has no group_id")
	}
	return &m, nil
}

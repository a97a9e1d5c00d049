package model

import "time"

// EventEntityRelation links an event to an entity with a free-text role
// such as "participant" or "location". Both referenced ids should exist in
// the respective stores; a dangling reference is a detectable integrity
// issue, not fatal.
type EventEntityRelation struct {
	ID        string    `json:"id"`
	EventID   string    `json:"event_id"`
	EntityID  string    `json:"entity_id"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

// Key identifies the logical edge regardless of the minted relation id.
// Two relations with the same key are duplicates.
func (r *EventEntityRelation) Key() string {
	return r.EventID + "|" + r.EntityID + "|" + r.Role
}

package model

import "time"

// AuditLog records one state-changing action.
type AuditLog struct {
	ID        string         `json:"id"`
	ActorID   string         `json:"actorId"`
	Action    string         `json:"action"`
	Target    string         `json:"target"`
	Timestamp time.Time      `json:"timestamp"`
	Category  string         `json:"category"`
	Meta      map[string]any `json:"meta,omitempty"`
}

// Audit categories.
const (
	CategoryItem      = "item"
	CategoryInventory = "inventory"
	CategoryIssue     = "issue"
	CategoryPurchase  = "purchase"
	CategoryUser      = "user"
	CategorySystem    = "system"
)

// ActivitySummary is a dashboard feed entry. Entries are only ever prepended.
type ActivitySummary struct {
	ID          string    `json:"id"`
	Type        string    `json:"type"`
	Description string    `json:"description"`
	Timestamp   time.Time `json:"timestamp"`
}

// Activity types.
const (
	ActivityIssue     = "issue"
	ActivityPurchase  = "purchase"
	ActivityInventory = "inventory"
	ActivityUser      = "user"
)

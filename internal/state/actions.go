package state

import "github.com/erazemk/oskrba/internal/model"

// Action is one of the named mutations the store accepts. The set is closed:
// only types in this package implement it.
type Action interface {
	// Kind returns the action name used in logs.
	Kind() string
	action()
}

// Hydrate replaces the whole state. It records nothing in the audit log.
type Hydrate struct {
	State model.AppState
}

// AddItem registers a new item. An empty ID is replaced by a generated one.
type AddItem struct {
	Item    model.Item
	ActorID string
}

// UpdateItem replaces the item with the same ID.
type UpdateItem struct {
	Item    model.Item
	ActorID string
}

// DeleteItem removes an item. Requests that reference it keep the dangling id.
type DeleteItem struct {
	ID      string
	ActorID string
}

// SetItems replaces the entire item list, as done by a CSV import.
type SetItems struct {
	Items   []model.Item
	ActorID string
}

// AdjustInventory sets an item's stock to NewStock (in base units).
type AdjustInventory struct {
	ItemID   string
	NewStock int
	ActorID  string
	Note     string
}

// UpsertIssueRequest inserts or replaces an issue request by ID.
// Description labels the change in the audit log and activity feed.
type UpsertIssueRequest struct {
	Request     model.IssueRequest
	ActorID     string
	Description string
}

// UpsertPurchaseRequest inserts or replaces a purchase request by ID.
type UpsertPurchaseRequest struct {
	Request     model.PurchaseRequest
	ActorID     string
	Description string
}

// DeleteIssueRequest removes an issue request.
type DeleteIssueRequest struct {
	ID      string
	ActorID string
}

// DeletePurchaseRequest removes a purchase request.
type DeletePurchaseRequest struct {
	ID      string
	ActorID string
}

// UpsertUser inserts or replaces a user by ID.
type UpsertUser struct {
	User        model.User
	ActorID     string
	Description string
}

// RemoveUser removes a user.
type RemoveUser struct {
	ID      string
	ActorID string
}

// DeleteAuditLog removes one audit entry and records that it did so.
type DeleteAuditLog struct {
	ID      string
	ActorID string
}

// ClearAuditLogs removes every audit entry and records that it did so.
type ClearAuditLogs struct {
	ActorID string
}

func (Hydrate) Kind() string               { return "HYDRATE" }
func (AddItem) Kind() string               { return "ADD_ITEM" }
func (UpdateItem) Kind() string            { return "UPDATE_ITEM" }
func (DeleteItem) Kind() string            { return "DELETE_ITEM" }
func (SetItems) Kind() string              { return "SET_ITEMS" }
func (AdjustInventory) Kind() string       { return "ADJUST_INVENTORY" }
func (UpsertIssueRequest) Kind() string    { return "UPSERT_ISSUE_REQUEST" }
func (UpsertPurchaseRequest) Kind() string { return "UPSERT_PURCHASE_REQUEST" }
func (DeleteIssueRequest) Kind() string    { return "DELETE_ISSUE_REQUEST" }
func (DeletePurchaseRequest) Kind() string { return "DELETE_PURCHASE_REQUEST" }
func (UpsertUser) Kind() string            { return "UPSERT_USER" }
func (RemoveUser) Kind() string            { return "REMOVE_USER" }
func (DeleteAuditLog) Kind() string        { return "DELETE_AUDIT_LOG" }
func (ClearAuditLogs) Kind() string        { return "CLEAR_AUDIT_LOGS" }

func (Hydrate) action()               {}
func (AddItem) action()               {}
func (UpdateItem) action()            {}
func (DeleteItem) action()            {}
func (SetItems) action()              {}
func (AdjustInventory) action()       {}
func (UpsertIssueRequest) action()    {}
func (UpsertPurchaseRequest) action() {}
func (DeleteIssueRequest) action()    {}
func (DeletePurchaseRequest) action() {}
func (UpsertUser) action()            {}
func (RemoveUser) action()            {}
func (DeleteAuditLog) action()        {}
func (ClearAuditLogs) action()        {}

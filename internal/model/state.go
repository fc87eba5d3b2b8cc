package model

import "slices"

// AppState is the whole aggregate persisted as a single blob.
// AuditLogs and Activities are kept newest first.
type AppState struct {
	Users            []User            `json:"users"`
	Items            []Item            `json:"items"`
	IssueRequests    []IssueRequest    `json:"issueRequests"`
	PurchaseRequests []PurchaseRequest `json:"purchaseRequests"`
	AuditLogs        []AuditLog        `json:"auditLogs"`
	Activities       []ActivitySummary `json:"activities"`
}

// Normalize replaces nil lists with empty ones so the blob always
// serializes arrays rather than nulls.
func (s *AppState) Normalize() {
	if s.Users == nil {
		s.Users = []User{}
	}
	if s.Items == nil {
		s.Items = []Item{}
	}
	if s.IssueRequests == nil {
		s.IssueRequests = []IssueRequest{}
	}
	if s.PurchaseRequests == nil {
		s.PurchaseRequests = []PurchaseRequest{}
	}
	if s.AuditLogs == nil {
		s.AuditLogs = []AuditLog{}
	}
	if s.Activities == nil {
		s.Activities = []ActivitySummary{}
	}
}

// Clone returns a deep copy that shares no slices or maps with s.
func (s AppState) Clone() AppState {
	out := AppState{
		Users:            append([]User(nil), s.Users...),
		Items:            append([]Item(nil), s.Items...),
		IssueRequests:    make([]IssueRequest, len(s.IssueRequests)),
		PurchaseRequests: make([]PurchaseRequest, len(s.PurchaseRequests)),
		AuditLogs:        make([]AuditLog, len(s.AuditLogs)),
		Activities:       append([]ActivitySummary(nil), s.Activities...),
	}
	for i, r := range s.IssueRequests {
		r.LineItems = append([]RequestLineItem(nil), r.LineItems...)
		out.IssueRequests[i] = r
	}
	for i, r := range s.PurchaseRequests {
		r.LineItems = append([]RequestLineItem(nil), r.LineItems...)
		out.PurchaseRequests[i] = r
	}
	for i, l := range s.AuditLogs {
		if l.Meta != nil {
			l.Meta = cloneMeta(l.Meta)
		}
		out.AuditLogs[i] = l
	}
	out.Normalize()
	return out
}

// cloneMeta copies audit metadata down through nested slices and maps.
func cloneMeta(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch v := v.(type) {
	case []string:
		return slices.Clone(v)
	case []any:
		out := make([]any, len(v))
		for i, e := range v {
			out[i] = cloneValue(e)
		}
		return out
	case map[string]any:
		return cloneMeta(v)
	default:
		return v
	}
}

// FindItem returns the item with the given id, or false if there is none.
func (s AppState) FindItem(id string) (Item, bool) {
	for _, it := range s.Items {
		if it.ID == id {
			return it, true
		}
	}
	return Item{}, false
}

// FindUser returns the user with the given id, or false if there is none.
func (s AppState) FindUser(id string) (User, bool) {
	for _, u := range s.Users {
		if u.ID == id {
			return u, true
		}
	}
	return User{}, false
}

// FindUserByUsername looks a user up by login name.
func (s AppState) FindUserByUsername(username string) (User, bool) {
	for _, u := range s.Users {
		if u.Username == username {
			return u, true
		}
	}
	return User{}, false
}

// AdminCount returns the number of users with the admin role.
func (s AppState) AdminCount() int {
	n := 0
	for _, u := range s.Users {
		if u.IsAdmin() {
			n++
		}
	}
	return n
}

// LowStockItems returns items at or below their reorder point, in list order.
func (s AppState) LowStockItems() []Item {
	var low []Item
	for _, it := range s.Items {
		if it.IsLowStock() {
			low = append(low, it)
		}
	}
	return low
}

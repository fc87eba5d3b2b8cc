// Package state holds the application state store: a closed set of actions
// and a pure reducer that applies them, recording audit and activity entries.
package state

import (
	"fmt"
	"time"

	"github.com/erazemk/oskrba/internal/model"
)

// Reducer applies actions to a state. Now and NewID default to time.Now and
// model.NewID when nil.
type Reducer struct {
	Now   func() time.Time
	NewID func() string
}

// Reduce applies a to s with the default clock and id generator.
func Reduce(s model.AppState, a Action) model.AppState {
	return Reducer{}.Reduce(s, a)
}

// Reduce returns the state that results from applying a to s. The input is
// never modified; actions that refer to missing ids return s unchanged.
func (r Reducer) Reduce(s model.AppState, a Action) model.AppState {
	next, _ := r.reduce(s, a)
	return next
}

// reduce also reports whether the action changed anything.
func (r Reducer) reduce(s model.AppState, a Action) (model.AppState, bool) {
	switch a := a.(type) {
	case Hydrate:
		return a.State, true
	case AddItem:
		return r.addItem(s, a), true
	case UpdateItem:
		return r.updateItem(s, a)
	case DeleteItem:
		return r.deleteItem(s, a)
	case SetItems:
		return r.setItems(s, a), true
	case AdjustInventory:
		return r.adjustInventory(s, a)
	case UpsertIssueRequest:
		return r.upsertIssue(s, a), true
	case UpsertPurchaseRequest:
		return r.upsertPurchase(s, a), true
	case DeleteIssueRequest:
		return r.deleteIssue(s, a)
	case DeletePurchaseRequest:
		return r.deletePurchase(s, a)
	case UpsertUser:
		return r.upsertUser(s, a), true
	case RemoveUser:
		return r.removeUser(s, a)
	case DeleteAuditLog:
		return r.deleteAuditLog(s, a)
	case ClearAuditLogs:
		return r.clearAuditLogs(s, a), true
	}
	return s, false
}

func (r Reducer) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

func (r Reducer) newID() string {
	if r.NewID != nil {
		return r.NewID()
	}
	return model.NewID()
}

// record prepends an audit entry and, when activityType is non-empty, an
// activity entry. s must already be a copy owned by the caller.
func (r Reducer) record(s *model.AppState, log model.AuditLog, activityType, description string) {
	now := r.now()
	log.ID = r.newID()
	log.Timestamp = now
	s.AuditLogs = prepend(s.AuditLogs, log)
	if activityType != "" {
		s.Activities = prepend(s.Activities, model.ActivitySummary{
			ID:          r.newID(),
			Type:        activityType,
			Description: description,
			Timestamp:   now,
		})
	}
}

func (r Reducer) addItem(s model.AppState, a AddItem) model.AppState {
	item := a.Item
	if item.ID == "" {
		item.ID = r.newID()
	}
	s.Items = append(clone(s.Items), item)
	r.record(&s, model.AuditLog{
		ActorID:  a.ActorID,
		Action:   "item registered",
		Target:   ItemLabel(item),
		Category: model.CategoryItem,
		Meta:     map[string]any{"sku": item.SKU},
	}, model.ActivityInventory, fmt.Sprintf("%s registered %s", UserName(s, a.ActorID), ItemLabel(item)))
	return s
}

func (r Reducer) updateItem(s model.AppState, a UpdateItem) (model.AppState, bool) {
	i := indexOf(s.Items, func(it model.Item) bool { return it.ID == a.Item.ID })
	if i < 0 {
		return s, false
	}
	s.Items = replaceAt(s.Items, i, a.Item)
	r.record(&s, model.AuditLog{
		ActorID:  a.ActorID,
		Action:   "item updated",
		Target:   ItemLabel(a.Item),
		Category: model.CategoryItem,
		Meta:     map[string]any{"sku": a.Item.SKU, "stock": a.Item.Stock},
	}, model.ActivityInventory, fmt.Sprintf("%s updated %s", UserName(s, a.ActorID), ItemLabel(a.Item)))
	return s, true
}

func (r Reducer) deleteItem(s model.AppState, a DeleteItem) (model.AppState, bool) {
	i := indexOf(s.Items, func(it model.Item) bool { return it.ID == a.ID })
	if i < 0 {
		return s, false
	}
	removed := s.Items[i]
	s.Items = removeAt(s.Items, i)
	r.record(&s, model.AuditLog{
		ActorID:  a.ActorID,
		Action:   "item deleted",
		Target:   ItemLabel(removed),
		Category: model.CategoryItem,
		Meta:     map[string]any{"sku": removed.SKU},
	}, model.ActivityInventory, fmt.Sprintf("%s deleted %s", UserName(s, a.ActorID), ItemLabel(removed)))
	return s, true
}

func (r Reducer) setItems(s model.AppState, a SetItems) model.AppState {
	items := make([]model.Item, len(a.Items))
	for i, it := range a.Items {
		if it.ID == "" {
			it.ID = r.newID()
		}
		items[i] = it
	}
	s.Items = items
	r.record(&s, model.AuditLog{
		ActorID:  a.ActorID,
		Action:   "items imported",
		Target:   fmt.Sprintf("%d items", len(items)),
		Category: model.CategoryItem,
		Meta:     map[string]any{"count": len(items)},
	}, model.ActivityInventory, fmt.Sprintf("%s imported %d items", UserName(s, a.ActorID), len(items)))
	return s
}

func (r Reducer) adjustInventory(s model.AppState, a AdjustInventory) (model.AppState, bool) {
	i := indexOf(s.Items, func(it model.Item) bool { return it.ID == a.ItemID })
	if i < 0 {
		return s, false
	}
	item := s.Items[i]
	previous := item.Stock
	delta := a.NewStock - previous
	item.Stock = a.NewStock
	s.Items = replaceAt(s.Items, i, item)

	meta := map[string]any{
		"delta":         delta,
		"previousStock": previous,
		"stock":         a.NewStock,
	}
	if a.Note != "" {
		meta["note"] = a.Note
	}
	r.record(&s, model.AuditLog{
		ActorID:  a.ActorID,
		Action:   direction(delta),
		Target:   ItemLabel(item),
		Category: model.CategoryInventory,
		Meta:     meta,
	}, model.ActivityInventory, adjustmentDescription(ItemLabel(item), delta, a.NewStock))
	return s, true
}

func (r Reducer) upsertIssue(s model.AppState, a UpsertIssueRequest) model.AppState {
	now := r.now()
	req := a.Request
	req.LineItems = clone(req.LineItems)

	i := -1
	if req.ID != "" {
		i = indexOf(s.IssueRequests, func(x model.IssueRequest) bool { return x.ID == req.ID })
	}
	if i >= 0 {
		prev := s.IssueRequests[i]
		req.CreatedAt = prev.CreatedAt
		req.UpdatedAt = advance(prev.UpdatedAt, now)
		s.IssueRequests = replaceAt(s.IssueRequests, i, req)
	} else {
		req.ID = r.newID()
		req.CreatedAt = now
		req.UpdatedAt = now
		s.IssueRequests = append(clone(s.IssueRequests), req)
	}

	action := describe(a.Description, "issue request saved")
	target := RequestTarget(s, req.LineItems)
	r.record(&s, model.AuditLog{
		ActorID:  a.ActorID,
		Action:   action,
		Target:   target,
		Category: model.CategoryIssue,
		Meta:     requestMeta(s, req.ID, req.Status, req.LineItems),
	}, model.ActivityIssue, fmt.Sprintf("%s: %s (%s)", UserName(s, a.ActorID), action, target))
	return s
}

func (r Reducer) upsertPurchase(s model.AppState, a UpsertPurchaseRequest) model.AppState {
	now := r.now()
	req := a.Request
	req.LineItems = clone(req.LineItems)

	i := -1
	if req.ID != "" {
		i = indexOf(s.PurchaseRequests, func(x model.PurchaseRequest) bool { return x.ID == req.ID })
	}
	if i >= 0 {
		prev := s.PurchaseRequests[i]
		req.CreatedAt = prev.CreatedAt
		req.UpdatedAt = advance(prev.UpdatedAt, now)
		s.PurchaseRequests = replaceAt(s.PurchaseRequests, i, req)
	} else {
		req.ID = r.newID()
		req.CreatedAt = now
		req.UpdatedAt = now
		s.PurchaseRequests = append(clone(s.PurchaseRequests), req)
	}

	action := describe(a.Description, "purchase request saved")
	target := RequestTarget(s, req.LineItems)
	meta := requestMeta(s, req.ID, req.Status, req.LineItems)
	if req.AttachmentName != "" {
		meta["attachment"] = req.AttachmentName
	}
	r.record(&s, model.AuditLog{
		ActorID:  a.ActorID,
		Action:   action,
		Target:   target,
		Category: model.CategoryPurchase,
		Meta:     meta,
	}, model.ActivityPurchase, fmt.Sprintf("%s: %s (%s)", UserName(s, a.ActorID), action, target))
	return s
}

func (r Reducer) deleteIssue(s model.AppState, a DeleteIssueRequest) (model.AppState, bool) {
	i := indexOf(s.IssueRequests, func(x model.IssueRequest) bool { return x.ID == a.ID })
	if i < 0 {
		return s, false
	}
	removed := s.IssueRequests[i]
	s.IssueRequests = removeAt(s.IssueRequests, i)
	target := RequestTarget(s, removed.LineItems)
	r.record(&s, model.AuditLog{
		ActorID:  a.ActorID,
		Action:   "issue request deleted",
		Target:   target,
		Category: model.CategoryIssue,
		Meta:     requestMeta(s, removed.ID, removed.Status, removed.LineItems),
	}, model.ActivityIssue, fmt.Sprintf("%s deleted an issue request (%s)", UserName(s, a.ActorID), target))
	return s, true
}

func (r Reducer) deletePurchase(s model.AppState, a DeletePurchaseRequest) (model.AppState, bool) {
	i := indexOf(s.PurchaseRequests, func(x model.PurchaseRequest) bool { return x.ID == a.ID })
	if i < 0 {
		return s, false
	}
	removed := s.PurchaseRequests[i]
	s.PurchaseRequests = removeAt(s.PurchaseRequests, i)
	target := RequestTarget(s, removed.LineItems)
	r.record(&s, model.AuditLog{
		ActorID:  a.ActorID,
		Action:   "purchase request deleted",
		Target:   target,
		Category: model.CategoryPurchase,
		Meta:     requestMeta(s, removed.ID, removed.Status, removed.LineItems),
	}, model.ActivityPurchase, fmt.Sprintf("%s deleted a purchase request (%s)", UserName(s, a.ActorID), target))
	return s, true
}

func (r Reducer) upsertUser(s model.AppState, a UpsertUser) model.AppState {
	user := a.User
	i := -1
	if user.ID != "" {
		i = indexOf(s.Users, func(u model.User) bool { return u.ID == user.ID })
	}
	if i >= 0 {
		s.Users = replaceAt(s.Users, i, user)
	} else {
		user.ID = r.newID()
		s.Users = append(clone(s.Users), user)
	}

	action := describe(a.Description, "user saved")
	r.record(&s, model.AuditLog{
		ActorID:  a.ActorID,
		Action:   action,
		Target:   user.DisplayName(),
		Category: model.CategoryUser,
		Meta:     map[string]any{"role": user.Role, "process": user.Process},
	}, model.ActivityUser, fmt.Sprintf("%s: %s (%s)", UserName(s, a.ActorID), action, user.DisplayName()))
	return s
}

func (r Reducer) removeUser(s model.AppState, a RemoveUser) (model.AppState, bool) {
	i := indexOf(s.Users, func(u model.User) bool { return u.ID == a.ID })
	if i < 0 {
		return s, false
	}
	removed := s.Users[i]
	actor := UserName(s, a.ActorID)
	s.Users = removeAt(s.Users, i)
	r.record(&s, model.AuditLog{
		ActorID:  a.ActorID,
		Action:   "user removed",
		Target:   removed.DisplayName(),
		Category: model.CategoryUser,
		Meta:     map[string]any{"role": removed.Role, "process": removed.Process},
	}, model.ActivityUser, fmt.Sprintf("%s removed user %s", actor, removed.DisplayName()))
	return s, true
}

func (r Reducer) deleteAuditLog(s model.AppState, a DeleteAuditLog) (model.AppState, bool) {
	i := indexOf(s.AuditLogs, func(l model.AuditLog) bool { return l.ID == a.ID })
	if i < 0 {
		return s, false
	}
	removed := s.AuditLogs[i]
	s.AuditLogs = removeAt(s.AuditLogs, i)
	r.record(&s, model.AuditLog{
		ActorID:  a.ActorID,
		Action:   "audit log deleted",
		Target:   removed.Action,
		Category: model.CategorySystem,
		Meta: map[string]any{
			"deletedId":     removed.ID,
			"deletedAction": removed.Action,
			"deletedTarget": removed.Target,
		},
	}, "", "")
	return s, true
}

func (r Reducer) clearAuditLogs(s model.AppState, a ClearAuditLogs) model.AppState {
	count := len(s.AuditLogs)
	s.AuditLogs = []model.AuditLog{}
	r.record(&s, model.AuditLog{
		ActorID:  a.ActorID,
		Action:   "audit logs cleared",
		Target:   "audit log",
		Category: model.CategorySystem,
		Meta:     map[string]any{"count": count},
	}, "", "")
	return s
}

func requestMeta(s model.AppState, id, status string, lines []model.RequestLineItem) map[string]any {
	return map[string]any{
		"requestId": id,
		"status":    status,
		"items":     LineItemNames(s, lines),
	}
}

func describe(description, fallback string) string {
	if description == "" {
		return fallback
	}
	return description
}

// advance returns now, or prev+1ms when the clock has not moved past prev.
func advance(prev, now time.Time) time.Time {
	if now.After(prev) {
		return now
	}
	return prev.Add(time.Millisecond)
}

func indexOf[T any](list []T, match func(T) bool) int {
	for i, v := range list {
		if match(v) {
			return i
		}
	}
	return -1
}

func clone[T any](list []T) []T {
	return append([]T(nil), list...)
}

func prepend[T any](list []T, v T) []T {
	out := make([]T, 0, len(list)+1)
	out = append(out, v)
	return append(out, list...)
}

func replaceAt[T any](list []T, i int, v T) []T {
	out := clone(list)
	out[i] = v
	return out
}

func removeAt[T any](list []T, i int) []T {
	out := make([]T, 0, len(list)-1)
	out = append(out, list[:i]...)
	return append(out, list[i+1:]...)
}

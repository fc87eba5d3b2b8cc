package state

import (
	"fmt"

	"github.com/erazemk/oskrba/internal/model"
)

// Placeholders for references that no longer resolve.
const (
	UnknownItem = "unknown item"
	UnknownUser = "unknown user"
)

// ItemLabel returns the display name of an item, including its option.
func ItemLabel(it model.Item) string {
	if it.Option != "" {
		return fmt.Sprintf("%s (%s)", it.Name, it.Option)
	}
	return it.Name
}

// ItemName resolves an item id against the current item list.
func ItemName(s model.AppState, id string) string {
	if it, ok := s.FindItem(id); ok {
		return ItemLabel(it)
	}
	return UnknownItem
}

// UserName resolves a user id against the current user list.
func UserName(s model.AppState, id string) string {
	if u, ok := s.FindUser(id); ok {
		return u.DisplayName()
	}
	return UnknownUser
}

// LineItemNames resolves every line item to a display name, in order.
func LineItemNames(s model.AppState, lines []model.RequestLineItem) []string {
	names := make([]string, 0, len(lines))
	for _, l := range lines {
		names = append(names, ItemName(s, l.ItemID))
	}
	return names
}

// RequestTarget summarizes a request by its first line item, e.g.
// "A4 Paper and 2 more".
func RequestTarget(s model.AppState, lines []model.RequestLineItem) string {
	if len(lines) == 0 {
		return "no items"
	}
	first := ItemName(s, lines[0].ItemID)
	if len(lines) == 1 {
		return first
	}
	return fmt.Sprintf("%s and %d more", first, len(lines)-1)
}

// direction returns the audit action for a stock change.
func direction(delta int) string {
	switch {
	case delta > 0:
		return "inbound"
	case delta < 0:
		return "outbound"
	default:
		return "adjusted"
	}
}

func adjustmentDescription(name string, delta, stock int) string {
	switch {
	case delta > 0:
		return fmt.Sprintf("%s stocked in (+%d, now %d)", name, delta, stock)
	case delta < 0:
		return fmt.Sprintf("%s drawn down (%d, now %d)", name, delta, stock)
	default:
		return fmt.Sprintf("%s stock count confirmed at %d", name, stock)
	}
}

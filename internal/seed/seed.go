// Package seed builds the default dataset used when no state has been stored yet.
package seed

import (
	"time"

	"github.com/erazemk/oskrba/internal/model"
)

// Default administrator credentials. Change them after the first login.
const (
	AdminUsername = "admin"
	AdminPassword = "admin1234"
)

// New returns a fresh default state stamped with now. Every call generates new ids.
func New(now time.Time) model.AppState {
	admin := model.User{
		ID:       model.NewID(),
		Username: AdminUsername,
		Name:     "Administrator",
		Password: AdminPassword,
		Role:     model.RoleAdmin,
		Process:  "Administration",
	}
	staff := model.User{
		ID:       model.NewID(),
		Username: "user",
		Name:     "Staff Member",
		Password: "user1234",
		Role:     model.RoleUser,
		Process:  "Assembly",
	}

	items := []model.Item{
		{ID: model.NewID(), Name: "A4 Paper", Description: "80 g/m², 500 sheets per ream", Category: "Office", Unit: model.UnitBox, UnitsPerBox: 5, SKU: "OF-A4-80", Threshold: 10, Stock: 25},
		{ID: model.NewID(), Name: "Nitrile Gloves", Category: "Safety", Unit: model.UnitBox, UnitsPerBox: 100, Option: "M", SKU: "SF-GLV-M", Threshold: 200, Stock: 450},
		{ID: model.NewID(), Name: "Nitrile Gloves", Category: "Safety", Unit: model.UnitBox, UnitsPerBox: 100, Option: "L", SKU: "SF-GLV-L", Threshold: 200, Stock: 150},
		{ID: model.NewID(), Name: "Ballpoint Pen", Category: "Office", Unit: model.UnitEach, Option: "Blue", SKU: "OF-PEN-BL", Threshold: 20, Stock: 64},
		{ID: model.NewID(), Name: "Cable Ties", Description: "200 mm", Category: "Maintenance", Unit: model.UnitEach, SKU: "MT-CT-200", Threshold: 50, Stock: 30},
	}

	state := model.AppState{
		Users: []model.User{admin, staff},
		Items: items,
		AuditLogs: []model.AuditLog{{
			ID:        model.NewID(),
			ActorID:   admin.ID,
			Action:    "default data seeded",
			Target:    "system",
			Timestamp: now,
			Category:  model.CategorySystem,
			Meta:      map[string]any{"users": 2, "items": len(items)},
		}},
	}
	state.Normalize()
	return state
}

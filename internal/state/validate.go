package state

import (
	"errors"

	"github.com/erazemk/oskrba/internal/model"
)

// ErrLastAdmin is returned when an action would leave no admin user.
var ErrLastAdmin = errors.New("cannot remove or demote the last admin")

// Validate checks preconditions the reducer does not enforce. The reducer
// itself accepts every action; callers that want guards run Validate first.
func Validate(s model.AppState, a Action) error {
	switch a := a.(type) {
	case RemoveUser:
		if u, ok := s.FindUser(a.ID); ok && u.IsAdmin() && s.AdminCount() <= 1 {
			return ErrLastAdmin
		}
	case UpsertUser:
		if u, ok := s.FindUser(a.User.ID); ok && u.IsAdmin() && !a.User.IsAdmin() && s.AdminCount() <= 1 {
			return ErrLastAdmin
		}
	}
	return nil
}

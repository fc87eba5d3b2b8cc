package auth

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/erazemk/oskrba/internal/localstore"
	"github.com/erazemk/oskrba/internal/model"
)

// SessionKey is the local storage key of the session marker.
const SessionKey = "oskrba:session"

// Session identifies the signed-in user across restarts.
type Session struct {
	UserID string `json:"userId"`
}

// SaveSession stores the session marker for userID.
func SaveSession(ctx context.Context, s *localstore.Storage, userID string) error {
	data, err := json.Marshal(Session{UserID: userID})
	if err != nil {
		return fmt.Errorf("encoding session: %w", err)
	}
	if err := s.Set(ctx, SessionKey, string(data)); err != nil {
		return fmt.Errorf("saving session: %w", err)
	}
	return nil
}

// LoadSession returns the stored session, or nil if there is none or it is unreadable.
func LoadSession(ctx context.Context, s *localstore.Storage) (*Session, error) {
	raw, ok, err := s.Get(ctx, SessionKey)
	if err != nil {
		return nil, fmt.Errorf("loading session: %w", err)
	}
	if !ok {
		return nil, nil
	}
	var sess Session
	if err := json.Unmarshal([]byte(raw), &sess); err != nil || sess.UserID == "" {
		return nil, nil
	}
	return &sess, nil
}

// ClearSession removes the session marker.
func ClearSession(ctx context.Context, s *localstore.Storage) error {
	if err := s.Remove(ctx, SessionKey); err != nil {
		return fmt.Errorf("clearing session: %w", err)
	}
	return nil
}

// CurrentUser resolves the stored session against state. It returns false
// when there is no session or its user no longer exists.
func CurrentUser(ctx context.Context, s *localstore.Storage, state model.AppState) (model.User, bool, error) {
	sess, err := LoadSession(ctx, s)
	if err != nil || sess == nil {
		return model.User{}, false, err
	}
	u, ok := state.FindUser(sess.UserID)
	return u, ok, nil
}

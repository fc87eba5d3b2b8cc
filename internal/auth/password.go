package auth

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/erazemk/oskrba/internal/model"
)

// ErrInvalidCredentials is returned for an unknown user or a wrong password.
var ErrInvalidCredentials = errors.New("invalid username or password")

// HashPassword returns a bcrypt hash suitable for model.User.Password.
func HashPassword(password string, cost int) (string, error) {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", fmt.Errorf("hashing password: %w", err)
	}
	return string(hash), nil
}

// CheckPassword compares a password against a stored value. Stored values
// that look like bcrypt hashes are verified with bcrypt; anything else is
// treated as a legacy plaintext password.
func CheckPassword(stored, password string) bool {
	if isBcrypt(stored) {
		return bcrypt.CompareHashAndPassword([]byte(stored), []byte(password)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(stored), []byte(password)) == 1
}

func isBcrypt(s string) bool {
	return len(s) == 60 && (strings.HasPrefix(s, "$2a$") || strings.HasPrefix(s, "$2b$") || strings.HasPrefix(s, "$2y$"))
}

// Authenticate finds the user with the given username in state and checks
// the password.
func Authenticate(state model.AppState, username, password string) (model.User, error) {
	u, ok := state.FindUserByUsername(username)
	if !ok || !CheckPassword(u.Password, password) {
		return model.User{}, ErrInvalidCredentials
	}
	return u, nil
}

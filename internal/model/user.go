package model

import "fmt"

// User is an account that can sign in and submit requests.
// Password is stored as given (plaintext or a bcrypt hash); see auth.CheckPassword.
type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Name     string `json:"name"`
	Password string `json:"password"`
	Role     string `json:"role"`
	Process  string `json:"process"`
}

// Roles.
const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

// RoleAtLeast checks if role meets or exceeds the minimum required role.
func RoleAtLeast(role, minimum string) bool {
	levels := map[string]int{
		RoleAdmin: 2,
		RoleUser:  1,
	}
	return levels[role] >= levels[minimum] && levels[minimum] > 0
}

// IsAdmin reports whether the user holds the admin role.
func (u User) IsAdmin() bool {
	return RoleAtLeast(u.Role, RoleAdmin)
}

// DisplayName returns the name shown in audit and activity text.
func (u User) DisplayName() string {
	if u.Name != "" {
		return u.Name
	}
	return u.Username
}

// MinPasswordLength is the shortest password accepted for new accounts.
const MinPasswordLength = 8

// ValidatePassword checks that a password is acceptable for a new account.
func ValidatePassword(password string) error {
	if len(password) < MinPasswordLength {
		return fmt.Errorf("password must be at least %d characters", MinPasswordLength)
	}
	return nil
}

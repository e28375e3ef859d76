package users

import (
	"fmt"
	"slices"
	"strings"
	"time"
	"unicode"

	"golang.org/x/crypto/bcrypt"
)

// RoleAdministrator bypasses claim requirements that list it as an override role.
const RoleAdministrator = "Administrator"

// Claim is a single (type, value) pair. A user may hold several values for one type.
type Claim struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// Role is a named group of claims granted to every member.
type Role struct {
	Name   string  `json:"name"`
	Claims []Claim `json:"claims,omitempty"`
}

type User struct {
	ID                 string     `json:"id,omitempty"`
	Email              string     `json:"email,omitempty"`
	NormalizedEmail    string     `json:"-"`
	Username           string     `json:"username,omitempty"`
	NormalizedUsername string     `json:"-"`
	PasswordHash       string     `json:"-"` // never serialize
	EmailConfirmed     bool       `json:"email_confirmed"`
	TwoFactorEnabled   bool       `json:"two_factor_enabled"`
	LockoutEnd         *time.Time `json:"lockout_end,omitempty"`
	AccessFailedCount  int        `json:"-"`
	Roles              []string   `json:"roles,omitempty"`
	Claims             []Claim    `json:"claims,omitempty"`
	DateJoined         time.Time  `json:"date_joined,omitempty"`
	LastLogin          time.Time  `json:"last_login,omitempty"`
}

// Normalize returns the lookup form of an email or username.
func Normalize(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// Normalize refreshes the normalized lookup fields from Email and Username.
func (u *User) Normalize() {
	u.NormalizedEmail = Normalize(u.Email)
	u.NormalizedUsername = Normalize(u.Username)
}

func (u *User) IsLockedOut(now time.Time) bool {
	return u.LockoutEnd != nil && u.LockoutEnd.After(now)
}

func (u *User) HasRole(role string) bool {
	return slices.Contains(u.Roles, role)
}

// Clone returns a deep copy so stores never share slices with callers.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	c := *u
	c.Roles = slices.Clone(u.Roles)
	c.Claims = slices.Clone(u.Claims)
	if u.LockoutEnd != nil {
		end := *u.LockoutEnd
		c.LockoutEnd = &end
	}
	return &c
}

// ValidatePasswordStrength checks if password meets security requirements:
// - At least 8 characters long
// - Contains uppercase and lowercase letters
// - Contains at least one number
func ValidatePasswordStrength(password string) error {
	if len(password) < 8 {
		return fmt.Errorf("password must be at least 8 characters long")
	}

	var (
		hasUpper  bool
		hasLower  bool
		hasNumber bool
	)

	for _, char := range password {
		if unicode.IsUpper(char) {
			hasUpper = true
		} else if unicode.IsLower(char) {
			hasLower = true
		} else if unicode.IsDigit(char) {
			hasNumber = true
		}
	}

	if !hasUpper {
		return fmt.Errorf("password must contain at least one uppercase letter")
	}
	if !hasLower {
		return fmt.Errorf("password must contain at least one lowercase letter")
	}
	if !hasNumber {
		return fmt.Errorf("password must contain at least one number")
	}

	return nil
}

func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(bytes), err
}

func CheckPasswordHash(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}

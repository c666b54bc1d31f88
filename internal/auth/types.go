package auth

import (
	"errors"
	"regexp"
	"strings"
	"time"
)

// usernamePattern: alphanumeric, dots, hyphens, underscores, 1-64 characters.
var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9._-]{1,64}$`)

// minPasswordLength is the shortest password Register accepts.
const minPasswordLength = 6

// maxRFIDLength bounds a registered badge UID.
const maxRFIDLength = 128

// IsValidUsername checks if a username meets format requirements.
func IsValidUsername(username string) bool {
	return usernamePattern.MatchString(username)
}

// NormalizeRFID trims whitespace from a badge UID. Comparison against
// presented credentials stays exact; only the stored form is trimmed.
func NormalizeRFID(uid string) string {
	return strings.TrimSpace(uid)
}

// User is a dashboard account.
type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"` // never serialised
	RFIDUID      string    `json:"rfid_uid,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// Domain errors for the auth package.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidUsername    = errors.New("invalid username")
	ErrPasswordTooShort   = errors.New("password too short")
	ErrInvalidRFID        = errors.New("invalid rfid uid")
	ErrUserNotFound       = errors.New("user not found")
	ErrUsernameExists     = errors.New("username already exists")
	ErrTokenInvalid       = errors.New("invalid token")
)

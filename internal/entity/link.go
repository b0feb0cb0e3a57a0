// Package entity defines the entities and errors used in the application.
// It includes the Link struct, which maps a short code to a target URL together
// with its click metadata, and the error taxonomy shared by every layer.
package entity

import (
	"errors"
	"regexp"
	"time"
)

const (
	// MinCodeLength is the shortest accepted short code.
	MinCodeLength = 6
	// MaxCodeLength is the longest accepted short code.
	MaxCodeLength = 8
	// CodeAlphabet is the set of characters a short code may contain.
	CodeAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"
)

var codeRegexp = regexp.MustCompile(`^[A-Za-z0-9]{6,8}$`)

// reservedCodes are top-level route names that would shadow a redirect.
var reservedCodes = map[string]struct{}{
	"health":  {},
	"swagger": {},
}

var (
	// ErrInvalidInput is returned when a target URL or a requested short code is malformed.
	ErrInvalidInput = errors.New("invalid input")
	// ErrCodeConflict is returned when a requested short code is already taken.
	ErrCodeConflict = errors.New("code already exists")
	// ErrDuplicateKey is returned by a store when an insert violates code uniqueness.
	ErrDuplicateKey = errors.New("duplicate key")
	// ErrLinkNotFound is returned when no link has the given short code.
	ErrLinkNotFound = errors.New("link not found")
	// ErrUnavailable is returned when the store timed out or the connection failed.
	ErrUnavailable = errors.New("store unavailable")
)

// Link represents a shortened URL.
type Link struct {
	Code        string     // Code is the short identifier used in the redirect path.
	TargetURL   string     // TargetURL is the absolute URL the code redirects to.
	TotalClicks int64      // TotalClicks is the number of redirects served for the code.
	LastClicked *time.Time // LastClicked is the time of the latest redirect, nil if never clicked.
	CreatedAt   time.Time  // CreatedAt is the timestamp when the link was created.
}

// IsValidCode reports whether code has 6 to 8 characters from [A-Za-z0-9] and
// is not one of the reserved route names.
func IsValidCode(code string) bool {
	return codeRegexp.MatchString(code) && !IsReservedCode(code)
}

// IsReservedCode reports whether code is taken by a fixed route.
func IsReservedCode(code string) bool {
	_, ok := reservedCodes[code]
	return ok
}

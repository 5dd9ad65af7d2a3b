package utils

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// MaxNotesLength bounds approver notes
const MaxNotesLength = 2000

var (
	userIDRegex  = regexp.MustCompile(`^[A-Za-z0-9_.:@\-]{1,128}$`)
	controlChars = regexp.MustCompile(`[\x00-\x08\x0b\x0c\x0e-\x1f\x7f]`)
)

// ValidateUserID checks an opaque user identifier taken from a request
func ValidateUserID(id string) error {
	if !userIDRegex.MatchString(id) {
		return fmt.Errorf("invalid user id: %q", id)
	}
	return nil
}

// SanitizeString removes control characters, keeping tabs and newlines
func SanitizeString(s string) string {
	return controlChars.ReplaceAllString(s, "")
}

// NormalizeNotes sanitizes free text notes. Blank notes become nil.
func NormalizeNotes(notes *string) (*string, error) {
	if notes == nil {
		return nil, nil
	}
	cleaned := strings.TrimSpace(SanitizeString(*notes))
	if cleaned == "" {
		return nil, nil
	}
	if utf8.RuneCountInString(cleaned) > MaxNotesLength {
		return nil, fmt.Errorf("notes exceed %d characters", MaxNotesLength)
	}
	return &cleaned, nil
}

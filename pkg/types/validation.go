package types

import (
	"regexp"
)

// FUNCTIONAL DISCOVERY: Regex compiled once at package initialization
// for better performance in high-frequency validation scenarios
var (
	userIDRegex       = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
	languageCodeRegex = regexp.MustCompile(`^[a-z]{2,3}(-[A-Za-z0-9]{2,8})*$`)
)

// IsValidUserID checks if a user ID meets format requirements
func IsValidUserID(userID string) bool {
	if len(userID) < 1 || len(userID) > 64 {
		return false
	}
	return userIDRegex.MatchString(userID)
}

// IsValidLanguageCode checks the normalized form stored on users and messages:
// a lower-case ISO 639 code optionally followed by subtags.
func IsValidLanguageCode(code string) bool {
	return len(code) <= 35 && languageCodeRegex.MatchString(code)
}

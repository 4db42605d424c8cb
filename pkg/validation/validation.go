package validation

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	// EmailRegex validates email format
	EmailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

	// IdentifierRegex validates session, participant and invitation ids
	IdentifierRegex = regexp.MustCompile(`^[a-zA-Z0-9_.:-]+$`)
)

const (
	maxIdentifierLength = 128
	maxNameLength       = 120
	maxMessageLength    = 2000
)

// ValidateEmail validates an invitee or participant email address
func ValidateEmail(email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return fmt.Errorf("email is required")
	}
	if len(email) > 254 {
		return fmt.Errorf("email is too long (max 254 characters)")
	}
	if !EmailRegex.MatchString(email) {
		return fmt.Errorf("invalid email format")
	}
	return nil
}

// ValidateIdentifier validates an opaque id such as a session or participant id.
func ValidateIdentifier(id, fieldName string) error {
	if id == "" {
		return fmt.Errorf("%s is required", fieldName)
	}
	if len(id) > maxIdentifierLength {
		return fmt.Errorf("%s is too long (max %d characters)", fieldName, maxIdentifierLength)
	}
	if !IdentifierRegex.MatchString(id) {
		return fmt.Errorf("invalid %s format", fieldName)
	}
	return nil
}

// ValidateDisplayName validates a participant or invitee display name
func ValidateDisplayName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("name is required")
	}
	if !utf8.ValidString(name) {
		return fmt.Errorf("name contains invalid characters")
	}
	return ValidateStringLength(name, 1, maxNameLength, "name")
}

// ValidateMessage validates the optional invitation message
func ValidateMessage(message string) error {
	if message == "" {
		return nil
	}
	return ValidateStringLength(message, 0, maxMessageLength, "message")
}

// ValidateURL validates an http(s) endpoint such as a webhook target
func ValidateURL(urlStr string) error {
	if urlStr == "" {
		return fmt.Errorf("URL is required")
	}
	u, err := url.Parse(urlStr)
	if err != nil {
		return fmt.Errorf("invalid URL format: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid URL scheme (must be http or https)")
	}
	if u.Host == "" {
		return fmt.Errorf("URL must have a host")
	}
	return nil
}

// ValidateMaxParticipants validates a session capacity
func ValidateMaxParticipants(max int) error {
	if max < 1 {
		return fmt.Errorf("max participants must be at least 1")
	}
	if max > 50 {
		return fmt.Errorf("max participants is too high (max 50)")
	}
	return nil
}

// ValidateStringLength validates string length
func ValidateStringLength(s string, min, max int, fieldName string) error {
	length := utf8.RuneCountInString(s)
	if length < min {
		return fmt.Errorf("%s must be at least %d characters", fieldName, min)
	}
	if length > max {
		return fmt.Errorf("%s is too long (max %d characters)", fieldName, max)
	}
	return nil
}

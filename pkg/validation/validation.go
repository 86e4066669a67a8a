package validation

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	// RoomIDRegex validates room ID format
	RoomIDRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

	// UserIDRegex validates user ID format
	UserIDRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

	// dangerousChars matches shell and argument-breaking characters. Any value
	// that can end up in an encoder process argument must be free of these.
	dangerousChars = regexp.MustCompile("[;&|$\\\\<>`]")
)

// AssertSafeString rejects values containing shell metacharacters or control
// characters. This is the only defense between caller-supplied strings and the
// encoder's argument vector, so it must never be bypassed or softened into a
// sanitize-and-continue.
func AssertSafeString(value, field string) error {
	if dangerousChars.MatchString(value) {
		return fmt.Errorf("invalid characters in %s", field)
	}
	for _, r := range value {
		if r < 0x20 || r == 0x7f {
			return fmt.Errorf("invalid characters in %s", field)
		}
	}
	return nil
}

// ValidateRoomID validates room ID
func ValidateRoomID(roomID string) error {
	if roomID == "" {
		return fmt.Errorf("room ID is required")
	}
	if len(roomID) > 100 {
		return fmt.Errorf("room ID is too long (max 100 characters)")
	}
	if !RoomIDRegex.MatchString(roomID) {
		return fmt.Errorf("invalid room ID format")
	}
	return nil
}

// ValidateUserID validates user ID
func ValidateUserID(userID string) error {
	if userID == "" {
		return fmt.Errorf("user ID is required")
	}
	if len(userID) > 100 {
		return fmt.Errorf("user ID is too long (max 100 characters)")
	}
	if !UserIDRegex.MatchString(userID) {
		return fmt.Errorf("invalid user ID format")
	}
	return nil
}

// ValidateUserName validates display name
func ValidateUserName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("user name is required")
	}
	if len(name) > 100 {
		return fmt.Errorf("user name is too long (max 100 characters)")
	}
	if !utf8.ValidString(name) {
		return fmt.Errorf("user name contains invalid characters")
	}
	return nil
}

// ValidateIngestURL validates an RTMP ingest base URL
func ValidateIngestURL(urlStr string) error {
	if urlStr == "" {
		return fmt.Errorf("ingest URL is required")
	}
	if err := AssertSafeString(urlStr, "ingest URL"); err != nil {
		return err
	}
	parsed, err := url.Parse(urlStr)
	if err != nil {
		return fmt.Errorf("invalid ingest URL: %w", err)
	}
	if parsed.Scheme != "rtmp" && parsed.Scheme != "rtmps" {
		return fmt.Errorf("ingest URL must use rtmp or rtmps scheme")
	}
	if parsed.Host == "" {
		return fmt.Errorf("ingest URL must have a host")
	}
	return nil
}

// ValidateMessage validates a chat message body
func ValidateMessage(message string) error {
	message = strings.TrimSpace(message)
	if message == "" {
		return fmt.Errorf("message is required")
	}
	if len(message) > 2000 {
		return fmt.Errorf("message is too long (max 2000 characters)")
	}
	if !utf8.ValidString(message) {
		return fmt.Errorf("message contains invalid characters")
	}
	return nil
}

// Package validation checks the identifiers and URLs that cross the
// daemon's API and the bridge command surface.
package validation

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

var (
	// RoomCodeRegex validates room code format
	RoomCodeRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

	// UserIDRegex validates customer user id format
	UserIDRegex = regexp.MustCompile(`^[a-zA-Z0-9_.@-]+$`)
)

// ValidateRoomCode validates a room code
func ValidateRoomCode(code string) error {
	code = strings.TrimSpace(code)
	if code == "" {
		return fmt.Errorf("room code is required")
	}
	if len(code) > 100 {
		return fmt.Errorf("room code is too long (max 100 characters)")
	}
	if !RoomCodeRegex.MatchString(code) {
		return fmt.Errorf("invalid room code format (only letters, numbers, _, - allowed)")
	}
	return nil
}

// ValidateUserID validates a customer user id
func ValidateUserID(userID string) error {
	if userID == "" {
		return fmt.Errorf("user id is required")
	}
	if len(userID) > 100 {
		return fmt.Errorf("user id is too long (max 100 characters)")
	}
	if !UserIDRegex.MatchString(userID) {
		return fmt.Errorf("invalid user id format")
	}
	return nil
}

// ValidateUsername validates a display name
func ValidateUsername(username string) error {
	username = strings.TrimSpace(username)
	if username == "" {
		return fmt.Errorf("username is required")
	}
	if len(username) > 50 {
		return fmt.Errorf("username is too long (max 50 characters)")
	}
	return nil
}

// ValidateIngestURL validates an RTMP ingest URL
func ValidateIngestURL(urlStr string) error {
	if urlStr == "" {
		return fmt.Errorf("URL is required")
	}
	u, err := url.Parse(urlStr)
	if err != nil {
		return fmt.Errorf("invalid URL format: %w", err)
	}
	if u.Scheme != "rtmp" && u.Scheme != "rtmps" {
		return fmt.Errorf("invalid URL scheme (must be rtmp or rtmps)")
	}
	if u.Host == "" {
		return fmt.Errorf("URL must have a host")
	}
	return nil
}

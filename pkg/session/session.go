package session

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"time"
)

// CookieDomain is the domain saved cookies are scoped to
const CookieDomain = ".instagram.com"

// cookieLifetime is the expiry written into materialized cookie jars
const cookieLifetime = 30 * 24 * time.Hour

// Session is an authenticated platform session imported by the user
type Session struct {
	Username  string    `json:"username"`
	SessionID string    `json:"session_id"`
	CSRFToken string    `json:"csrf_token"`
	DSUserID  string    `json:"ds_user_id,omitempty"`
	UserAgent string    `json:"user_agent,omitempty"`
	SavedAt   time.Time `json:"saved_at"`
}

// Errors
var (
	ErrNotFound       = errors.New("no saved session")
	ErrInvalidSession = errors.New("invalid session")
)

// Validate checks that the cookies required for authenticated requests are present
func (s *Session) Validate() error {
	if s == nil {
		return ErrInvalidSession
	}
	var missing []string
	if strings.TrimSpace(s.SessionID) == "" {
		missing = append(missing, "sessionid")
	}
	if strings.TrimSpace(s.CSRFToken) == "" {
		missing = append(missing, "csrftoken")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrInvalidSession, strings.Join(missing, ", "))
	}
	return nil
}

// DeriveUserID fills DSUserID from the session cookie when it is empty.
// The sessionid cookie starts with the numeric user id followed by "%3A".
func (s *Session) DeriveUserID() {
	if s.DSUserID != "" {
		return
	}
	if i := strings.Index(s.SessionID, "%3A"); i > 0 {
		s.DSUserID = s.SessionID[:i]
	}
}

// CookieJar renders the session as a Netscape cookies.txt file
func (s *Session) CookieJar(now time.Time) []byte {
	expires := now.Add(cookieLifetime).Unix()

	var buf bytes.Buffer
	buf.WriteString("# Netscape HTTP Cookie File\n")
	write := func(name, value string) {
		if value == "" {
			return
		}
		fmt.Fprintf(&buf, "%s\tTRUE\t/\tTRUE\t%d\t%s\t%s\n", CookieDomain, expires, name, value)
	}
	write("sessionid", s.SessionID)
	write("csrftoken", s.CSRFToken)
	write("ds_user_id", s.DSUserID)
	return buf.Bytes()
}

// Masked returns a copy with secrets masked for display
func (s *Session) Masked() Session {
	m := *s
	m.SessionID = maskString(s.SessionID)
	m.CSRFToken = maskString(s.CSRFToken)
	return m
}

// maskString masks all but the first 4 and last 4 characters of a string
func maskString(s string) string {
	if len(s) <= 8 {
		return "********"
	}
	return s[:4] + "..." + s[len(s)-4:]
}

package session

import "time"

// Session is one authenticated browser session. Everything except
// LastActive is fixed when the session is created.
type Session struct {
	ID     string
	UserID string

	IP      string
	Browser string
	OS      string
	Device  string

	CreatedAt  time.Time
	LastActive time.Time
}

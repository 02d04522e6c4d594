package chat

import "time"

// AnonymousSender is the sender shown for sessions that never set a display name.
const AnonymousSender = "Anonymous"

// SessionID identifies one live connection. Ids are never reused while the
// connection is open.
type SessionID string

// Session captures one connected party.
type Session struct {
	ID          SessionID
	DisplayName string
	ConnectedAt time.Time
}

// Named reports whether the session has announced a display name.
func (s Session) Named() bool {
	return s.DisplayName != ""
}

// Name returns the display name, or AnonymousSender when none was set.
func (s Session) Name() string {
	if !s.Named() {
		return AnonymousSender
	}
	return s.DisplayName
}

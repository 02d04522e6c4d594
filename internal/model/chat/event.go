package chat

// Event is an inbound event produced by one connection. The set of
// implementations is closed so dispatch can switch over it exhaustively.
type Event interface {
	Session() SessionID
	isEvent()
}

// SetNameEvent announces a display name.
type SetNameEvent struct {
	SessionID SessionID
	Name      string
}

// ChatEvent carries a text message.
type ChatEvent struct {
	SessionID SessionID
	Text      string
}

// MediaEvent carries a reference returned by the upload service.
type MediaEvent struct {
	SessionID SessionID
	URL       string
	MediaType string
}

// DisconnectEvent is raised once when a connection's read loop ends.
type DisconnectEvent struct {
	SessionID SessionID
}

func (e SetNameEvent) Session() SessionID    { return e.SessionID }
func (e ChatEvent) Session() SessionID       { return e.SessionID }
func (e MediaEvent) Session() SessionID      { return e.SessionID }
func (e DisconnectEvent) Session() SessionID { return e.SessionID }

func (SetNameEvent) isEvent()    {}
func (ChatEvent) isEvent()       {}
func (MediaEvent) isEvent()      {}
func (DisconnectEvent) isEvent() {}

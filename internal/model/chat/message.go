package chat

import (
	"fmt"
	"time"
)

const (
	joinedSuffix = "joined the chat"
	leftSuffix   = "left the chat"
)

// Message is a transient broadcast payload. The set of implementations is closed:
// SystemMessage, ChatMessage and MediaMessage.
type Message interface {
	isMessage()
}

// SystemMessage is an informational notice without a sender.
type SystemMessage struct {
	Text string
}

// ChatMessage is a text message stamped at dispatch time.
type ChatMessage struct {
	Sender    string
	Text      string
	Timestamp time.Time
}

// MediaMessage references an asset previously stored by the upload service.
type MediaMessage struct {
	Sender    string
	URL       string
	MediaType string
	Timestamp time.Time
}

func (SystemMessage) isMessage() {}
func (ChatMessage) isMessage()   {}
func (MediaMessage) isMessage()  {}

// Joined builds the notice broadcast after a session names itself.
func Joined(name string) SystemMessage {
	return SystemMessage{Text: fmt.Sprintf("%s %s", name, joinedSuffix)}
}

// Left builds the notice broadcast after a named session disconnects.
func Left(name string) SystemMessage {
	return SystemMessage{Text: fmt.Sprintf("%s %s", name, leftSuffix)}
}

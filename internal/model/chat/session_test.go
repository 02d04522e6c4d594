package chat

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSessionName(t *testing.T) {
	var s Session
	assert.False(t, s.Named())
	assert.Equal(t, AnonymousSender, s.Name())

	s.DisplayName = "alice"
	assert.True(t, s.Named())
	assert.Equal(t, "alice", s.Name())
}

func TestJoinedAndLeft(t *testing.T) {
	assert.Equal(t, SystemMessage{Text: "alice joined the chat"}, Joined("alice"))
	assert.Equal(t, SystemMessage{Text: "alice left the chat"}, Left("alice"))
}

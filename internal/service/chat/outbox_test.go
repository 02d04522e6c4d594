package chat

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/talknest/backend/internal/model/chat"
)

func TestOutbox_Deliver(t *testing.T) {
	o := NewOutbox(4)
	require.NoError(t, o.Deliver(chat.SystemMessage{Text: "hello"}))

	msg := <-o.Messages()
	assert.Equal(t, chat.SystemMessage{Text: "hello"}, msg)
}

func TestOutbox_DeliverFull(t *testing.T) {
	o := NewOutbox(1)
	require.NoError(t, o.Deliver(chat.SystemMessage{Text: "first"}))
	assert.ErrorIs(t, o.Deliver(chat.SystemMessage{Text: "overflow"}), ErrOutboxFull)
}

func TestOutbox_DeliverClosed(t *testing.T) {
	o := NewOutbox(1)
	o.Close()
	o.Close()
	assert.ErrorIs(t, o.Deliver(chat.SystemMessage{Text: "late"}), ErrOutboxClosed)

	_, open := <-o.Messages()
	assert.False(t, open)
}

func TestOutbox_DefaultSize(t *testing.T) {
	o := NewOutbox(0)
	assert.Equal(t, defaultOutboxSize, cap(o.messages))
}

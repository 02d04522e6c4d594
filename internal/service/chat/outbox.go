package chat

import (
	"errors"
	"sync"

	"github.com/zhouzirui/talknest/backend/internal/model/chat"
)

const defaultOutboxSize = 64

var (
	ErrOutboxFull   = errors.New("outbox full")
	ErrOutboxClosed = errors.New("outbox closed")
)

// Outbox is a bounded per-session queue drained by the connection's writer.
// Deliver never blocks, so one slow reader cannot hold up a broadcast.
type Outbox struct {
	messages chan chat.Message
	mu       sync.Mutex
	closed   bool
}

// NewOutbox creates an Outbox holding up to size pending messages.
func NewOutbox(size int) *Outbox {
	if size <= 0 {
		size = defaultOutboxSize
	}
	return &Outbox{messages: make(chan chat.Message, size)}
}

// Deliver enqueues msg, failing fast when the queue is full or closed.
func (o *Outbox) Deliver(msg chat.Message) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return ErrOutboxClosed
	}
	select {
	case o.messages <- msg:
		return nil
	default:
		return ErrOutboxFull
	}
}

// Messages returns the channel the writer drains. It is closed by Close.
func (o *Outbox) Messages() <-chan chat.Message {
	return o.messages
}

// Close stops further deliveries. Calling it more than once is a no-op.
func (o *Outbox) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.closed {
		o.closed = true
		close(o.messages)
	}
}

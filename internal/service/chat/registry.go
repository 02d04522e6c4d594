package chat

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/zhouzirui/talknest/backend/internal/model/chat"
)

var (
	ErrUnknownSession = errors.New("unknown session")
	ErrNameAlreadySet = errors.New("display name already set")
)

// Sink receives broadcast messages for one session.
type Sink interface {
	Deliver(msg chat.Message) error
}

// Member pairs a session record with the sink its messages go to.
type Member struct {
	Session chat.Session
	Sink    Sink
}

type entry struct {
	session chat.Session
	sink    Sink
}

// Registry tracks the currently connected sessions. All methods are safe for
// concurrent use.
type Registry struct {
	mu           sync.RWMutex
	entries      map[chat.SessionID]*entry
	renameLocked bool
	newID        func() chat.SessionID
}

// RegistryOption customises a Registry.
type RegistryOption func(*Registry)

// WithRenameLocked makes SetName reject a second name for the same session.
func WithRenameLocked() RegistryOption {
	return func(r *Registry) { r.renameLocked = true }
}

// NewRegistry returns an empty registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		entries: make(map[chat.SessionID]*entry),
		newID: func() chat.SessionID {
			return chat.SessionID(uuid.NewString())
		},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds an unnamed session bound to sink and returns its id.
func (r *Registry) Register(sink Sink) chat.SessionID {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := r.newID()
	for {
		if _, taken := r.entries[id]; !taken {
			break
		}
		id = r.newID()
	}

	r.entries[id] = &entry{
		session: chat.Session{ID: id, ConnectedAt: time.Now().UTC()},
		sink:    sink,
	}
	return id
}

// SetName assigns the display name of a live session.
func (r *Registry) SetName(id chat.SessionID, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok {
		return ErrUnknownSession
	}
	if r.renameLocked && e.session.Named() {
		return ErrNameAlreadySet
	}
	e.session.DisplayName = name
	return nil
}

// Unregister removes a session and returns its final record.
func (r *Registry) Unregister(id chat.SessionID) (chat.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok {
		return chat.Session{}, ErrUnknownSession
	}
	delete(r.entries, id)
	return e.session, nil
}

// Lookup returns a copy of one session record.
func (r *Registry) Lookup(id chat.SessionID) (chat.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[id]
	if !ok {
		return chat.Session{}, ErrUnknownSession
	}
	return e.session, nil
}

// Snapshot returns the current membership. The result is a copy and may be
// stale as soon as it is returned.
func (r *Registry) Snapshot() []Member {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return lo.MapToSlice(r.entries, func(_ chat.SessionID, e *entry) Member {
		return Member{Session: e.session, Sink: e.sink}
	})
}

// Count returns the number of live sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

package chat

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/zhouzirui/talknest/backend/internal/model/chat"
)

// Dispatcher turns inbound events into broadcasts to every registered session.
// It never returns an error to the caller: a bad event is logged and dropped.
type Dispatcher struct {
	registry *Registry
	log      *zap.Logger
	now      func() time.Time
}

// DispatcherOption customises a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithClock overrides the time source used to stamp messages.
func WithClock(now func() time.Time) DispatcherOption {
	return func(d *Dispatcher) { d.now = now }
}

// NewDispatcher wires a dispatcher to the registry it fans out over.
func NewDispatcher(registry *Registry, log *zap.Logger, opts ...DispatcherOption) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	d := &Dispatcher{
		registry: registry,
		log:      log.Named("dispatcher"),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch routes one inbound event. Events from one session must be passed
// in the order they were received.
func (d *Dispatcher) Dispatch(ctx context.Context, evt chat.Event) {
	if err := ctx.Err(); err != nil && !isDisconnect(evt) {
		d.log.Debug("dropping event after cancellation", zap.String("session", string(evt.Session())))
		return
	}

	switch e := evt.(type) {
	case chat.SetNameEvent:
		d.OnSetName(e.SessionID, e.Name)
	case chat.ChatEvent:
		d.OnChat(e.SessionID, e.Text)
	case chat.MediaEvent:
		d.OnMedia(e.SessionID, e.URL, e.MediaType)
	case chat.DisconnectEvent:
		d.OnDisconnect(e.SessionID)
	default:
		d.log.Warn("unhandled event type", zap.String("session", string(evt.Session())))
	}
}

func isDisconnect(evt chat.Event) bool {
	_, ok := evt.(chat.DisconnectEvent)
	return ok
}

// OnSetName names the session and announces it to everyone, sender included.
// A blank name is ignored.
func (d *Dispatcher) OnSetName(id chat.SessionID, name string) {
	name = strings.TrimSpace(name)
	if name == "" {
		return
	}

	if err := d.registry.SetName(id, name); err != nil {
		d.logRecoverable("set name rejected", id, err)
		return
	}

	d.log.Info("session named", zap.String("session", string(id)), zap.String("name", name))
	d.Broadcast(chat.Joined(name))
}

// OnChat broadcasts text under the sender's display name. Blank text is ignored.
func (d *Dispatcher) OnChat(id chat.SessionID, text string) {
	if strings.TrimSpace(text) == "" {
		return
	}

	d.Broadcast(chat.ChatMessage{
		Sender:    d.senderName(id),
		Text:      text,
		Timestamp: d.now(),
	})
}

// OnMedia broadcasts an uploaded asset reference as received.
func (d *Dispatcher) OnMedia(id chat.SessionID, url, mediaType string) {
	d.Broadcast(chat.MediaMessage{
		Sender:    d.senderName(id),
		URL:       url,
		MediaType: mediaType,
		Timestamp: d.now(),
	})
}

// OnDisconnect removes the session and, if it had a name, tells the sessions
// that remain.
func (d *Dispatcher) OnDisconnect(id chat.SessionID) {
	session, err := d.registry.Unregister(id)
	if err != nil {
		d.logRecoverable("disconnect for absent session", id, err)
		return
	}

	d.log.Info("session disconnected", zap.String("session", string(id)), zap.Bool("named", session.Named()))
	if session.Named() {
		d.Broadcast(chat.Left(session.DisplayName))
	}
}

// Broadcast delivers msg to every session registered at call time and returns
// how many deliveries succeeded.
func (d *Dispatcher) Broadcast(msg chat.Message) int {
	delivered := 0
	for _, member := range d.registry.Snapshot() {
		if err := member.Sink.Deliver(msg); err != nil {
			d.log.Warn("delivery dropped",
				zap.String("session", string(member.Session.ID)),
				zap.Error(err),
			)
			continue
		}
		delivered++
	}
	return delivered
}

func (d *Dispatcher) senderName(id chat.SessionID) string {
	session, err := d.registry.Lookup(id)
	if err != nil {
		d.logRecoverable("sender lookup failed", id, err)
		return chat.AnonymousSender
	}
	return session.Name()
}

func (d *Dispatcher) logRecoverable(msg string, id chat.SessionID, err error) {
	fields := []zap.Field{zap.String("session", string(id)), zap.Error(err)}
	if errors.Is(err, ErrUnknownSession) {
		d.log.Debug(msg, fields...)
		return
	}
	d.log.Warn(msg, fields...)
}

package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/orchestra-mcp/chatrelay/src/types"
	"github.com/rs/zerolog"
)

// Session drives one chat connection: it owns the typing debouncer and the
// reconciler, writes outgoing frames and publishes view updates.
type Session struct {
	conn      types.Conn
	writeMu   sync.Mutex
	debouncer *Debouncer
	recon     *Reconciler
	updates   chan Update
	maxSize   int
	logger    zerolog.Logger
	closeOnce sync.Once
}

// Option configures a Session.
type Option func(*sessionOptions)

type sessionOptions struct {
	debounce []DebounceOption
	maxSize  int
}

// WithDebounceOptions passes options through to the typing debouncer.
func WithDebounceOptions(opts ...DebounceOption) Option {
	return func(o *sessionOptions) { o.debounce = append(o.debounce, opts...) }
}

// WithMaxMessageSize overrides types.MaxMessageSize for outgoing frames.
func WithMaxMessageSize(n int) Option {
	return func(o *sessionOptions) { o.maxSize = n }
}

// NewSession wraps an open connection.
func NewSession(conn types.Conn, logger zerolog.Logger, opts ...Option) *Session {
	o := sessionOptions{maxSize: types.MaxMessageSize}
	for _, opt := range opts {
		opt(&o)
	}

	s := &Session{
		conn:    conn,
		recon:   NewReconciler(),
		updates: make(chan Update, 64),
		maxSize: o.maxSize,
		logger:  logger.With().Str("component", "session").Logger(),
	}
	s.debouncer = NewDebouncer(s.emitPresence, o.debounce...)
	return s
}

// Updates delivers view changes. It is closed when Run returns.
func (s *Session) Updates() <-chan Update { return s.updates }

// Reconciler exposes the conversation state.
func (s *Session) Reconciler() *Reconciler { return s.recon }

// Debouncer exposes the local typing state.
func (s *Session) Debouncer() *Debouncer { return s.debouncer }

// Run reads frames until the connection fails or ctx is done.
func (s *Session) Run(ctx context.Context) error {
	defer close(s.updates)

	stop := context.AfterFunc(ctx, func() { s.conn.Close() })
	defer stop()

	for {
		var env types.Envelope
		if err := s.conn.ReadJSON(&env); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("read: %w", err)
		}

		u := s.recon.Apply(env)
		if u.Outcome == Ignored {
			s.logger.Debug().Str("event", env.Event).Msg("ignored frame")
			continue
		}
		select {
		case s.updates <- u:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Input reports the current text input content to the typing debouncer.
func (s *Session) Input(text string) {
	s.debouncer.Input(text)
}

// SendMessage sends text and renders it optimistically.
func (s *Session) SendMessage(text string) (Item, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Item{}, ErrEmptyMessage
	}
	if _, ok := s.recon.Self(); !ok {
		return Item{}, ErrIdentityPending
	}
	if err := s.write(types.EventChatMessage, text); err != nil {
		return Item{}, err
	}
	item, err := s.recon.LocalMessage(text)
	s.debouncer.Flush()
	return item, err
}

// SendAttachment sends a file and renders it optimistically. Oversized
// attachments fail with ErrPayloadTooLarge before anything is written.
func (s *Session) SendAttachment(att types.Attachment) (Item, error) {
	if _, ok := s.recon.Self(); !ok {
		return Item{}, ErrIdentityPending
	}
	if err := s.write(types.EventChatAttachment, att); err != nil {
		return Item{}, err
	}
	return s.recon.LocalAttachment(att)
}

// Submit sends the attachments and then the text, stopping at the first
// failure. Items already sent are returned alongside the error.
func (s *Session) Submit(text string, attachments []types.Attachment) ([]Item, error) {
	var items []Item
	for _, att := range attachments {
		item, err := s.SendAttachment(att)
		if err != nil {
			return items, fmt.Errorf("send attachment %q: %w", att.Name, err)
		}
		items = append(items, item)
	}

	if strings.TrimSpace(text) == "" {
		if len(items) == 0 {
			return nil, ErrEmptyMessage
		}
		return items, nil
	}
	item, err := s.SendMessage(text)
	if err != nil {
		return items, fmt.Errorf("send message: %w", err)
	}
	return append(items, item), nil
}

// Close stops typing notifications and closes the connection.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.debouncer.Close()
		err = s.conn.Close()
	})
	return err
}

func (s *Session) emitPresence(event string) {
	if err := s.write(event, nil); err != nil {
		s.logger.Warn().Err(err).Str("event", event).Msg("presence not sent")
	}
}

// write encodes a frame once, checks it against the size cap and only then
// puts it on the wire.
func (s *Session) write(event string, payload any) error {
	env, err := types.NewEnvelope(event, payload)
	if err != nil {
		return fmt.Errorf("encode %s: %w", event, err)
	}
	frame, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode %s: %w", event, err)
	}
	if len(frame) > s.maxSize {
		return fmt.Errorf("%s frame of %d bytes: %w", event, len(frame), ErrPayloadTooLarge)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.conn.WriteJSON(json.RawMessage(frame)); err != nil {
		return fmt.Errorf("write %s: %w", event, err)
	}
	return nil
}

// IsTooLarge reports whether err came from the size cap.
func IsTooLarge(err error) bool {
	return errors.Is(err, ErrPayloadTooLarge)
}

package client

import (
	"encoding/json"
	"sort"
	"sync"

	"github.com/orchestra-mcp/chatrelay/src/types"
)

// Placement says how a rendered item is laid out.
type Placement int

const (
	// PlacementPeer is left aligned with the peer's avatar.
	PlacementPeer Placement = iota
	// PlacementSelf is right aligned in the local user's style.
	PlacementSelf
	// PlacementSystem is centered and unstyled.
	PlacementSystem
)

// Item is one rendered line of the conversation.
type Item struct {
	SenderID   string
	Text       string
	Attachment *types.Attachment
	Placement  Placement
}

// Outcome is what Apply did with an inbound frame.
type Outcome int

const (
	Ignored Outcome = iota
	Rendered
	Suppressed
	PresenceChanged
	IdentityAssigned
)

// Update is emitted for every inbound frame that changed the view.
type Update struct {
	Outcome Outcome
	Item    *Item
	// Typing is the indicator text after the frame was applied.
	Typing string
}

// Typing indicator phrasing.
const (
	oneTyping  = "Someone is typing…"
	manyTyping = "Multiple people are typing…"
)

// Reconciler merges optimistic local renders with server echoes and tracks
// which peers are typing.
type Reconciler struct {
	mu       sync.Mutex
	self     string
	hasSelf  bool
	typers   map[string]struct{}
	timeline []Item
}

// NewReconciler creates a reconciler with no identity yet.
func NewReconciler() *Reconciler {
	return &Reconciler{typers: make(map[string]struct{})}
}

// Self returns the local connection id once the server has assigned it.
func (r *Reconciler) Self() (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.self, r.hasSelf
}

// SetSelf records the local connection id.
func (r *Reconciler) SetSelf(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.self = id
	r.hasSelf = id != ""
	delete(r.typers, id)
}

// LocalMessage renders a message the local user is sending.
func (r *Reconciler) LocalMessage(text string) (Item, error) {
	return r.local(Item{Text: text})
}

// LocalAttachment renders an attachment the local user is sending.
func (r *Reconciler) LocalAttachment(att types.Attachment) (Item, error) {
	return r.local(Item{Attachment: &att})
}

func (r *Reconciler) local(item Item) (Item, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.hasSelf {
		return Item{}, ErrIdentityPending
	}
	item.SenderID = r.self
	item.Placement = PlacementSelf
	r.timeline = append(r.timeline, item)
	return item, nil
}

// Apply folds one inbound frame into the state.
func (r *Reconciler) Apply(env types.Envelope) Update {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch env.Event {
	case types.EventWelcome:
		var w types.Welcome
		_ = json.Unmarshal(env.Data, &w)
		if w.ID == "" {
			return r.updateLocked(Ignored, nil)
		}
		r.self, r.hasSelf = w.ID, true
		delete(r.typers, w.ID)
		return r.updateLocked(IdentityAssigned, nil)

	case types.EventChatMessage:
		var msg types.ChatMessage
		_ = json.Unmarshal(env.Data, &msg)
		return r.authoredLocked(Item{SenderID: msg.SenderID, Text: msg.Text})

	case types.EventChatAttachment:
		var msg types.AttachmentMessage
		_ = json.Unmarshal(env.Data, &msg)
		att := msg.Attachment
		return r.authoredLocked(Item{SenderID: msg.SenderID, Attachment: &att})

	case types.EventTyping:
		id := presenceID(env)
		if id == "" || r.isSelfLocked(id) {
			return r.updateLocked(Ignored, nil)
		}
		r.typers[id] = struct{}{}
		return r.updateLocked(PresenceChanged, nil)

	case types.EventStopTyping:
		id := presenceID(env)
		if id == "" {
			return r.updateLocked(Ignored, nil)
		}
		delete(r.typers, id)
		return r.updateLocked(PresenceChanged, nil)
	}
	return r.updateLocked(Ignored, nil)
}

// authoredLocked handles a chat event: our own echo is dropped, anything
// else clears the sender's typing state and is rendered.
func (r *Reconciler) authoredLocked(item Item) Update {
	if r.isSelfLocked(item.SenderID) {
		return r.updateLocked(Suppressed, nil)
	}
	if item.SenderID != "" {
		delete(r.typers, item.SenderID)
	}
	item.Placement = r.placementLocked(item.SenderID)
	r.timeline = append(r.timeline, item)
	return r.updateLocked(Rendered, &item)
}

func (r *Reconciler) isSelfLocked(id string) bool {
	return r.hasSelf && id == r.self
}

func (r *Reconciler) placementLocked(id string) Placement {
	switch {
	case id == types.SystemSender:
		return PlacementSystem
	case r.isSelfLocked(id):
		return PlacementSelf
	default:
		return PlacementPeer
	}
}

func (r *Reconciler) updateLocked(outcome Outcome, item *Item) Update {
	return Update{Outcome: outcome, Item: item, Typing: r.indicatorLocked()}
}

// TypingIndicator returns the text shown under the conversation.
func (r *Reconciler) TypingIndicator() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.indicatorLocked()
}

func (r *Reconciler) indicatorLocked() string {
	switch len(r.typers) {
	case 0:
		return ""
	case 1:
		return oneTyping
	default:
		return manyTyping
	}
}

// Typers returns the ids currently shown as typing, sorted.
func (r *Reconciler) Typers() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.typers))
	for id := range r.typers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Timeline returns a copy of everything rendered so far.
func (r *Reconciler) Timeline() []Item {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Item, len(r.timeline))
	copy(out, r.timeline)
	return out
}

func presenceID(env types.Envelope) string {
	var p types.Presence
	_ = json.Unmarshal(env.Data, &p)
	return p.SenderID
}

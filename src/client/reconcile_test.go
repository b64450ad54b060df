package client

import (
	"encoding/json"
	"testing"

	"github.com/orchestra-mcp/chatrelay/src/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func frame(t *testing.T, event string, payload any) types.Envelope {
	t.Helper()
	env, err := types.NewEnvelope(event, payload)
	require.NoError(t, err)
	return env
}

func TestLocalSendNeedsIdentity(t *testing.T) {
	r := NewReconciler()

	_, err := r.LocalMessage("too early")
	assert.ErrorIs(t, err, ErrIdentityPending)
	assert.Empty(t, r.Timeline())

	u := r.Apply(frame(t, types.EventWelcome, types.Welcome{ID: "s1"}))
	assert.Equal(t, IdentityAssigned, u.Outcome)

	item, err := r.LocalMessage("hello")
	require.NoError(t, err)
	assert.Equal(t, Item{SenderID: "s1", Text: "hello", Placement: PlacementSelf}, item)
}

func TestOwnEchoIsSuppressed(t *testing.T) {
	r := NewReconciler()
	r.SetSelf("s1")

	_, err := r.LocalMessage("hello")
	require.NoError(t, err)

	u := r.Apply(frame(t, types.EventChatMessage, types.ChatMessage{SenderID: "s1", Text: "hello"}))
	assert.Equal(t, Suppressed, u.Outcome)
	assert.Nil(t, u.Item)
	assert.Len(t, r.Timeline(), 1)

	att := types.Attachment{Name: "a.txt", MimeType: "text/plain", Size: 1, Data: "YQ=="}
	_, err = r.LocalAttachment(att)
	require.NoError(t, err)
	u = r.Apply(frame(t, types.EventChatAttachment, types.AttachmentMessage{SenderID: "s1", Attachment: att}))
	assert.Equal(t, Suppressed, u.Outcome)
	assert.Len(t, r.Timeline(), 2)
}

func TestPlacementBySender(t *testing.T) {
	r := NewReconciler()
	r.SetSelf("s1")

	u := r.Apply(frame(t, types.EventChatMessage, types.ChatMessage{SenderID: types.SystemSender, Text: types.JoinNotice}))
	require.Equal(t, Rendered, u.Outcome)
	assert.Equal(t, PlacementSystem, u.Item.Placement)

	u = r.Apply(frame(t, types.EventChatMessage, types.ChatMessage{SenderID: "s2", Text: "yo"}))
	require.Equal(t, Rendered, u.Outcome)
	assert.Equal(t, PlacementPeer, u.Item.Placement)
	assert.Equal(t, "yo", u.Item.Text)

	u = r.Apply(frame(t, types.EventChatAttachment, types.AttachmentMessage{
		SenderID:   "s3",
		Attachment: types.Attachment{Name: "doc.pdf", MimeType: "application/pdf"},
	}))
	require.Equal(t, Rendered, u.Outcome)
	require.NotNil(t, u.Item.Attachment)
	assert.Equal(t, "doc.pdf", u.Item.Attachment.Name)
	assert.Equal(t, PlacementPeer, u.Item.Placement)
}

func TestTypingSetTracksPeers(t *testing.T) {
	r := NewReconciler()
	r.SetSelf("s1")

	u := r.Apply(frame(t, types.EventTyping, types.Presence{SenderID: "s2"}))
	assert.Equal(t, PresenceChanged, u.Outcome)
	assert.Equal(t, "Someone is typing…", u.Typing)

	u = r.Apply(frame(t, types.EventTyping, types.Presence{SenderID: "s3"}))
	assert.Equal(t, "Multiple people are typing…", u.Typing)
	assert.Equal(t, []string{"s2", "s3"}, r.Typers())

	u = r.Apply(frame(t, types.EventStopTyping, types.Presence{SenderID: "s3"}))
	assert.Equal(t, "Someone is typing…", u.Typing)

	// A message from a typer ends their typing.
	u = r.Apply(frame(t, types.EventChatMessage, types.ChatMessage{SenderID: "s2", Text: "done"}))
	assert.Equal(t, Rendered, u.Outcome)
	assert.Equal(t, "", u.Typing)
	assert.Empty(t, r.Typers())
}

func TestTypingIgnoresSelfAndBlankIDs(t *testing.T) {
	r := NewReconciler()
	r.SetSelf("s1")

	assert.Equal(t, Ignored, r.Apply(frame(t, types.EventTyping, types.Presence{SenderID: "s1"})).Outcome)
	assert.Equal(t, Ignored, r.Apply(frame(t, types.EventTyping, nil)).Outcome)
	assert.Equal(t, Ignored, r.Apply(frame(t, types.EventStopTyping, nil)).Outcome)
	assert.Empty(t, r.Typers())
}

func TestStopTypingForUnknownPeerIsHarmless(t *testing.T) {
	r := NewReconciler()
	u := r.Apply(frame(t, types.EventStopTyping, types.Presence{SenderID: "ghost"}))
	assert.Equal(t, PresenceChanged, u.Outcome)
	assert.Equal(t, "", r.TypingIndicator())
}

func TestWelcomeDropsSelfFromTypers(t *testing.T) {
	r := NewReconciler()
	r.Apply(frame(t, types.EventTyping, types.Presence{SenderID: "s1"}))
	require.Equal(t, []string{"s1"}, r.Typers())

	r.Apply(frame(t, types.EventWelcome, types.Welcome{ID: "s1"}))
	assert.Empty(t, r.Typers())

	id, ok := r.Self()
	assert.True(t, ok)
	assert.Equal(t, "s1", id)
}

func TestMalformedFramesDegrade(t *testing.T) {
	r := NewReconciler()
	r.SetSelf("s1")

	u := r.Apply(types.Envelope{Event: types.EventChatMessage, Data: json.RawMessage(`"not an object"`)})
	require.Equal(t, Rendered, u.Outcome)
	assert.Equal(t, Item{Placement: PlacementPeer}, *u.Item)

	assert.Equal(t, Ignored, r.Apply(types.Envelope{Event: types.EventWelcome}).Outcome)
	assert.Equal(t, Ignored, r.Apply(types.Envelope{Event: "mystery"}).Outcome)

	id, _ := r.Self()
	assert.Equal(t, "s1", id)
}

func TestEchoBeforeIdentityIsRendered(t *testing.T) {
	r := NewReconciler()
	u := r.Apply(frame(t, types.EventChatMessage, types.ChatMessage{SenderID: "s9", Text: "early"}))
	require.Equal(t, Rendered, u.Outcome)
	assert.Equal(t, PlacementPeer, u.Item.Placement)
}

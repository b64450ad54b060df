package hub

import (
	"github.com/orchestra-mcp/chatrelay/src/types"
)

type audience int

const (
	// audienceAll includes the sender, which drops its own echo.
	audienceAll audience = iota
	audienceOthers
)

// route says who receives an event kind and how the outbound payload is
// built from the stamped inbound frame.
type route struct {
	audience audience
	build    func(env types.Envelope) any
}

func defaultRoutes() map[string]route {
	presence := func(env types.Envelope) any {
		return types.Presence{SenderID: env.ClientID}
	}
	return map[string]route{
		types.EventChatMessage: {
			audience: audienceAll,
			build: func(env types.Envelope) any {
				return types.ChatMessage{SenderID: env.ClientID, Text: types.TextOf(env.Data)}
			},
		},
		types.EventChatAttachment: {
			audience: audienceAll,
			build: func(env types.Envelope) any {
				return types.AttachmentMessage{SenderID: env.ClientID, Attachment: types.AttachmentOf(env.Data)}
			},
		},
		types.EventTyping:     {audience: audienceOthers, build: presence},
		types.EventStopTyping: {audience: audienceOthers, build: presence},
	}
}

func (h *Hub) handleMessage(env types.Envelope) {
	// A frame read just before the socket failed can arrive after the
	// disconnect was handled. Relaying it would undo the stop typing peers
	// already got.
	if _, live := h.registry.Get(env.ClientID); !live {
		h.logger.Debug().Str("event", env.Event).Str("client_id", env.ClientID).Msg("sender gone, dropping")
		return
	}

	r, ok := h.routes[env.Event]
	if !ok {
		h.logger.Debug().Str("event", env.Event).Str("client_id", env.ClientID).Msg("no route")
		return
	}

	exclude := ""
	if r.audience == audienceOthers {
		exclude = env.ClientID
	}
	h.fanOut(env.Event, r.build(env), exclude)
}

// fanOut delivers one event to every live client except exclude. A
// recipient that cannot take the frame is skipped; the rest still get it.
func (h *Hub) fanOut(event string, payload any, exclude string) int {
	out, err := types.NewEnvelope(event, payload)
	if err != nil {
		h.logger.Error().Err(err).Str("event", event).Msg("encode failed")
		return 0
	}

	delivered := 0
	for _, c := range h.registry.Snapshot() {
		if exclude != "" && c.ID == exclude {
			continue
		}
		if h.deliver(c, out) {
			delivered++
		}
	}
	return delivered
}

func (h *Hub) sendTo(c *Client, event string, payload any) bool {
	out, err := types.NewEnvelope(event, payload)
	if err != nil {
		h.logger.Error().Err(err).Str("event", event).Msg("encode failed")
		return false
	}
	return h.deliver(c, out)
}

func (h *Hub) deliver(c *Client, out types.Envelope) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error().Interface("panic", r).Str("client_id", c.ID).Msg("deliver recovered")
			ok = false
		}
	}()

	if c.isClosed() {
		return false
	}
	select {
	case c.Send <- out:
		return true
	default:
		h.logger.Warn().Str("client_id", c.ID).Str("event", out.Event).Msg("send buffer full, dropping")
		return false
	}
}

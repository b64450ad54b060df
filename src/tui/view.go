package tui

import (
	"fmt"
	"hash/fnv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/orchestra-mcp/chatrelay/src/client"
	"github.com/orchestra-mcp/chatrelay/src/types"
)

var (
	selfBubble = lipgloss.NewStyle().
			Padding(0, 1).
			Foreground(lipgloss.Color("231")).
			Background(lipgloss.Color("62"))
	peerBubble = lipgloss.NewStyle().
			Padding(0, 1).
			Foreground(lipgloss.Color("252")).
			Background(lipgloss.Color("237"))
	systemLine = lipgloss.NewStyle().Faint(true)
	typingLine = lipgloss.NewStyle().Italic(true).Faint(true)
	statusLine = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))

	// Avatar colors, picked by hashing the sender id.
	avatarPalette = []lipgloss.Color{"39", "42", "170", "208", "214", "99", "45", "161"}
)

const avatarWidth = 6

// avatar is the terminal stand-in for the identicon: a short, stably
// colored tag derived from the sender id.
func avatar(id string) string {
	if id == "" {
		id = "unknown"
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	color := avatarPalette[h.Sum32()%uint32(len(avatarPalette))]

	tag := id
	if len(tag) > avatarWidth {
		tag = tag[:avatarWidth]
	}
	return lipgloss.NewStyle().Bold(true).Foreground(color).Render(tag)
}

// describeAttachment renders the attachment preview line.
func describeAttachment(att types.Attachment) string {
	name := att.Name
	if name == "" {
		name = "file"
	}
	mimeType := att.MimeType
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	switch {
	case strings.HasPrefix(mimeType, "image/"):
		return fmt.Sprintf("[image] %s", name)
	case mimeType == "application/pdf":
		return fmt.Sprintf("[pdf] %s", name)
	default:
		size := att.Size
		if size < 0 {
			size = 0
		}
		return fmt.Sprintf("[file] %s (%s)", name, humanize.IBytes(uint64(size)))
	}
}

// renderItem lays out one conversation line at the given width: our own
// lines on the right, peers on the left, system notices centered.
// Attachments carry their number n for /save.
func renderItem(item client.Item, n, width int) string {
	body := item.Text
	if item.Attachment != nil {
		body = fmt.Sprintf("#%d %s", n, describeAttachment(*item.Attachment))
	}
	if width <= 0 {
		width = 80
	}

	switch item.Placement {
	case client.PlacementSystem:
		return lipgloss.PlaceHorizontal(width, lipgloss.Center, systemLine.Render(body))
	case client.PlacementSelf:
		line := lipgloss.JoinHorizontal(lipgloss.Bottom, selfBubble.Render(body), " ", avatar(item.SenderID))
		return lipgloss.PlaceHorizontal(width, lipgloss.Right, line)
	default:
		line := lipgloss.JoinHorizontal(lipgloss.Bottom, avatar(item.SenderID), " ", peerBubble.Render(body))
		return lipgloss.PlaceHorizontal(width, lipgloss.Left, line)
	}
}

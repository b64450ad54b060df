package client

import (
	"encoding/base64"
	"fmt"
	"mime"
	"os"
	"path/filepath"

	"github.com/orchestra-mcp/chatrelay/src/types"
)

const defaultMimeType = "application/octet-stream"

// LoadAttachment reads a file into an attachment ready to send. Files that
// could never fit in a frame are refused before they are read.
func LoadAttachment(path string) (types.Attachment, error) {
	info, err := os.Stat(path)
	if err != nil {
		return types.Attachment{}, fmt.Errorf("stat attachment: %w", err)
	}
	if info.IsDir() {
		return types.Attachment{}, fmt.Errorf("attachment %s is a directory", path)
	}
	if base64.StdEncoding.EncodedLen(int(info.Size())) > types.MaxMessageSize {
		return types.Attachment{}, fmt.Errorf("attachment %s (%d bytes): %w", path, info.Size(), ErrPayloadTooLarge)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return types.Attachment{}, fmt.Errorf("read attachment: %w", err)
	}
	return NewAttachment(filepath.Base(path), mime.TypeByExtension(filepath.Ext(path)), raw), nil
}

// NewAttachment encodes raw bytes as an attachment.
func NewAttachment(name, mimeType string, raw []byte) types.Attachment {
	if mimeType == "" {
		mimeType = defaultMimeType
	}
	return types.Attachment{
		Name:     name,
		MimeType: mimeType,
		Size:     int64(len(raw)),
		Data:     base64.StdEncoding.EncodeToString(raw),
	}
}

// SaveAttachment decodes att and writes it to path. When path is an
// existing directory the file keeps the attachment's own base name.
func SaveAttachment(att types.Attachment, path string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(att.Data)
	if err != nil {
		return "", fmt.Errorf("decode attachment %q: %w", att.Name, err)
	}

	if info, err := os.Stat(path); err == nil && info.IsDir() {
		name := filepath.Base(att.Name)
		if name == "." || name == string(filepath.Separator) || name == "" {
			name = "attachment"
		}
		path = filepath.Join(path, name)
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return "", fmt.Errorf("write attachment: %w", err)
	}
	return path, nil
}

package service

import (
	"errors"
	"fmt"

	"github.com/orchestra-mcp/chatrelay/src/hub"
	"github.com/orchestra-mcp/chatrelay/src/types"
	"github.com/rs/zerolog"
)

// ErrClientNotFound is returned for ids with no live connection.
var ErrClientNotFound = errors.New("client not found")

// Status summarizes the relay for the info endpoint.
type Status struct {
	Endpoint       string `json:"endpoint"`
	Clients        int    `json:"clients"`
	MaxMessageSize int64  `json:"max_message_size"`
}

// Service provides the read side of the relay to HTTP handlers.
type Service struct {
	hub      *hub.Hub
	endpoint string
	maxSize  int64
	logger   zerolog.Logger
}

// New creates a new relay service backed by the given hub. A maxSize of
// zero reports types.MaxMessageSize.
func New(h *hub.Hub, endpoint string, maxSize int64, logger zerolog.Logger) *Service {
	if maxSize <= 0 {
		maxSize = types.MaxMessageSize
	}
	return &Service{hub: h, endpoint: endpoint, maxSize: maxSize, logger: logger}
}

// Status reports the endpoint and live connection count.
func (s *Service) Status() Status {
	return Status{
		Endpoint:       s.endpoint,
		Clients:        s.hub.ClientCount(),
		MaxMessageSize: s.maxSize,
	}
}

// GetConnectedClients returns info for every connected client.
func (s *Service) GetConnectedClients() []types.ClientInfo {
	ids := s.hub.ConnectedClients()
	infos := make([]types.ClientInfo, 0, len(ids))
	for _, id := range ids {
		// The client may have left between the two reads.
		if info := s.hub.ClientInfo(id); info != nil {
			infos = append(infos, *info)
		}
	}
	return infos
}

// GetClientInfo returns info for a connected client, or error.
func (s *Service) GetClientInfo(clientID string) (*types.ClientInfo, error) {
	info := s.hub.ClientInfo(clientID)
	if info == nil {
		s.logger.Debug().Str("client_id", clientID).Msg("client lookup missed")
		return nil, fmt.Errorf("client %s: %w", clientID, ErrClientNotFound)
	}
	return info, nil
}

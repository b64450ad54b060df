package client

import "errors"

var (
	// ErrIdentityPending is returned for sends attempted before the server
	// has told us our connection id.
	ErrIdentityPending = errors.New("client: identity not assigned yet")

	// ErrPayloadTooLarge is returned when a frame would exceed
	// types.MaxMessageSize. Nothing is written in that case.
	ErrPayloadTooLarge = errors.New("client: payload exceeds maximum message size")

	// ErrEmptyMessage is returned when there is nothing to send.
	ErrEmptyMessage = errors.New("client: empty message")
)

package domain

import "errors"

// Error taxonomy for the orchestration layer. Adapters map these to wire
// error events; nothing below WorkerDied is ever fatal to a connection.
var (
	ErrAuthenticationFailed = errors.New("authentication failed")
	ErrRateLimited          = errors.New("rate limited")
	ErrRoomUnavailable      = errors.New("room unavailable")
	ErrRoomClosed           = errors.New("room closed")
	ErrPeerNotFound         = errors.New("peer not found")
	ErrTransportNotFound    = errors.New("transport not found")
	ErrTransportConnected   = errors.New("transport already connected")
	ErrTransportNotReady    = errors.New("transport not connected")
	ErrProducerNotFound     = errors.New("producer not found")
	ErrConsumerNotFound     = errors.New("consumer not found")
	ErrNotConsumable        = errors.New("producer not consumable with given capabilities")
	ErrNotOwner             = errors.New("resource owned by another peer")
	ErrMediaTimeout         = errors.New("media engine call timed out")
)

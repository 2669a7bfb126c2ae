package domain

// RoomID is caller-supplied, typically the voice-channel identifier.
type RoomID string

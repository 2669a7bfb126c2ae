package core

import (
	"github.com/pion/webrtc/v4"

	"github.com/inkbytefo/oxis-xcord-sub000/internal/domain"
	"github.com/inkbytefo/oxis-xcord-sub000/internal/media"
)

// Participant is a read-only view for APIs (no transport fields).
type Participant struct {
	ID       domain.UserID `json:"userId"`
	Username string        `json:"username"`
	Muted    bool          `json:"muted"`
}

// ConsumerInfo is the descriptor returned from Consume; the consumer it
// describes starts paused.
type ConsumerInfo struct {
	ID            string               `json:"id"`
	ProducerID    string               `json:"producerId"`
	Kind          media.Kind           `json:"kind"`
	RTPParameters webrtc.RTPParameters `json:"rtpParameters"`
}

type RoomInfo struct {
	ID        domain.RoomID `json:"roomId"`
	PeerCount int           `json:"participantCount"`
}

// pushEvent is the {type, data} frame shape shared with the gateway.
type pushEvent struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Room-scoped event payloads fanned out to remaining peers. The gateway
// owns the request/response message set; these are the server-push half.
type userJoinedData struct {
	UserID   domain.UserID `json:"userId"`
	Username string        `json:"username"`
}

type userLeftData struct {
	UserID   domain.UserID `json:"userId"`
	Username string        `json:"username"`
}

type userMutedData struct {
	UserID  domain.UserID `json:"userId"`
	IsMuted bool          `json:"isMuted"`
}

type newProducerData struct {
	ProducerID string        `json:"producerId"`
	Kind       media.Kind    `json:"kind"`
	PeerID     domain.UserID `json:"peerId"`
}

type producerClosedData struct {
	ProducerID string        `json:"producerId"`
	PeerID     domain.UserID `json:"peerId"`
}

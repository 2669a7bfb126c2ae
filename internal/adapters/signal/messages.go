package signal

import (
	"encoding/json"

	"github.com/pion/webrtc/v4"

	"github.com/inkbytefo/oxis-xcord-sub000/internal/core"
	"github.com/inkbytefo/oxis-xcord-sub000/internal/domain"
	"github.com/inkbytefo/oxis-xcord-sub000/internal/media"
)

// Client -> server message types. The dispatch switch in handleSignal is
// the closed set; unknown types get an error event.
const (
	msgJoinRoom         = "join-room"
	msgLeaveRoom        = "leave-room"
	msgCreateTransport  = "create-transport"
	msgConnectTransport = "connect-transport"
	msgProduce          = "produce"
	msgConsume          = "consume"
	msgResumeConsumer   = "resume-consumer"
	msgMute             = "mute"
)

// Every frame in both directions is {type, data}.
type envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type joinRoomPayload struct {
	RoomID string `json:"roomId"`
}

type leaveRoomPayload struct {
	RoomID string `json:"roomId"`
}

type createTransportPayload struct {
	RoomID string `json:"roomId"`
}

type connectTransportPayload struct {
	RoomID         string                `json:"roomId"`
	TransportID    string                `json:"transportId"`
	DTLSParameters webrtc.DTLSParameters `json:"dtlsParameters"`
}

type producePayload struct {
	RoomID        string               `json:"roomId"`
	TransportID   string               `json:"transportId"`
	Kind          media.Kind           `json:"kind"`
	RTPParameters webrtc.RTPParameters `json:"rtpParameters"`
}

type consumePayload struct {
	RoomID          string                 `json:"roomId"`
	TransportID     string                 `json:"transportId"`
	ProducerID      string                 `json:"producerId"`
	RTPCapabilities webrtc.RTPCapabilities `json:"rtpCapabilities"`
}

type resumeConsumerPayload struct {
	RoomID     string `json:"roomId"`
	ConsumerID string `json:"consumerId"`
}

type mutePayload struct {
	RoomID  string `json:"roomId"`
	IsMuted bool   `json:"isMuted"`
}

// Server -> client request/response data objects. Room-scoped push events
// (user-joined, new-producer, ...) are built by core and fanned out there.
type connectedData struct {
	SocketID core.SessionID `json:"socketId"`
	User     *domain.User   `json:"user"`
}

type roomInfoData struct {
	RoomID       domain.RoomID      `json:"roomId"`
	Participants []core.Participant `json:"participants"`
}

type leftData struct {
	RoomID domain.RoomID `json:"roomId"`
}

type transportParametersData struct {
	RoomID domain.RoomID `json:"roomId"`
	media.TransportParams
}

type producedData struct {
	RoomID     domain.RoomID `json:"roomId"`
	ProducerID string        `json:"producerId"`
}

type consumerParametersData struct {
	RoomID domain.RoomID `json:"roomId"`
	core.ConsumerInfo
}

type errorData struct {
	Message string `json:"message"`
}

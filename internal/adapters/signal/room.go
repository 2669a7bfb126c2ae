package signal

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/inkbytefo/oxis-xcord-sub000/internal/core"
	"github.com/inkbytefo/oxis-xcord-sub000/internal/domain"
)

func (ctl *Controller) handleJoinRoom(
	ctx context.Context,
	sid core.SessionID,
	conn *WsSignalConn,
	data []byte,
) {
	var p joinRoomPayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad join payload")
		ctl.sendError(conn, "bad payload")
		return
	}
	if p.RoomID == "" {
		ctl.sendError(conn, "missing roomId")
		return
	}

	roomID := domain.RoomID(p.RoomID)
	log.Info().Str("module", "signal").Str("sid", string(sid)).Str("room", p.RoomID).Msg("join-room")

	room, participants, err := ctl.Orch.Join(ctx, sid, roomID)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Str("room", p.RoomID).Msg("join failed")
		ctl.sendOpError(conn, err)
		return
	}

	ctl.sendEvent(conn, "room-info", roomInfoData{
		RoomID:       room.ID(),
		Participants: participants,
	})
}

// handleLeaveRoom leaves one room; the connection stays up.
func (ctl *Controller) handleLeaveRoom(
	sid core.SessionID,
	conn *WsSignalConn,
	data []byte,
) {
	var p leaveRoomPayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad leave payload")
		ctl.sendError(conn, "bad payload")
		return
	}

	roomID := domain.RoomID(p.RoomID)
	log.Info().Str("module", "signal").Str("sid", string(sid)).Str("room", p.RoomID).Msg("leave-room")
	ctl.Orch.Leave(sid, roomID)
	ctl.sendEvent(conn, "left", leftData{RoomID: roomID})
}

func (ctl *Controller) handleMute(
	sid core.SessionID,
	conn *WsSignalConn,
	data []byte,
) {
	var p mutePayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad mute payload")
		ctl.sendError(conn, "bad payload")
		return
	}

	room, err := ctl.Orch.Room(sid, domain.RoomID(p.RoomID))
	if err != nil {
		ctl.sendOpError(conn, err)
		return
	}
	if err := room.SetMuted(ctl.principal(sid), p.IsMuted); err != nil {
		ctl.sendOpError(conn, err)
	}
}

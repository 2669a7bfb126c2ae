package app

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/inkbytefo/oxis-xcord-sub000/internal/core"
	"github.com/inkbytefo/oxis-xcord-sub000/internal/domain"
)

// Orchestrator coordinates the session registry and the room registry.
// The signaling gateway drives it; rooms own their media resources.
type Orchestrator struct {
	Registry *Registry
	Rooms    *RoomManager

	// OnPeerChange observes global peer membership changes (metrics hook).
	OnPeerChange func(delta int)
}

// Join puts the session's user into roomID, creating the room lazily. If a
// racing last-leave closed the room between lookup and join, it retries
// against a fresh instance.
func (o *Orchestrator) Join(ctx context.Context, sid core.SessionID, roomID domain.RoomID) (*core.Room, []core.Participant, error) {
	sess, ok := o.Registry.Session(sid)
	if !ok {
		return nil, nil, domain.ErrPeerNotFound
	}

	for {
		room, err := o.Rooms.GetOrCreate(ctx, roomID)
		if err != nil {
			return nil, nil, err
		}
		participants, err := room.Join(sess)
		if errors.Is(err, domain.ErrRoomClosed) {
			continue
		}
		if err != nil {
			return nil, nil, err
		}
		o.Registry.AddRoom(sid, roomID)
		if o.OnPeerChange != nil {
			o.OnPeerChange(1)
		}
		log.Info().Str("module", "app.orch").Str("sid", string(sid)).Str("room", string(roomID)).Msg("joined room")
		return room, participants, nil
	}
}

// Room resolves a live room the session is actually a member of.
func (o *Orchestrator) Room(sid core.SessionID, roomID domain.RoomID) (*core.Room, error) {
	if !o.Registry.InRoom(sid, roomID) {
		return nil, domain.ErrPeerNotFound
	}
	room, ok := o.Rooms.Get(roomID)
	if !ok {
		return nil, domain.ErrRoomClosed
	}
	return room, nil
}

// Leave removes the session's user from one room.
func (o *Orchestrator) Leave(sid core.SessionID, roomID domain.RoomID) {
	sess, ok := o.Registry.Session(sid)
	if !ok {
		return
	}
	member := o.Registry.InRoom(sid, roomID)
	o.Registry.RemoveRoom(sid, roomID)
	if room, found := o.Rooms.Get(roomID); found && member {
		room.Leave(sess.User().ID)
		if o.OnPeerChange != nil {
			o.OnPeerChange(-1)
		}
	}
}

// Disconnect leaves every joined room and unbinds the session. Skipping a
// room here would leak its transports, so the walk is unconditional.
func (o *Orchestrator) Disconnect(sid core.SessionID) {
	for _, roomID := range o.Registry.RoomsOf(sid) {
		o.Leave(sid, roomID)
	}
	o.Registry.Unbind(sid)
	log.Info().Str("module", "app.orch").Str("sid", string(sid)).Msg("session disconnected")
}

package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/inkbytefo/oxis-xcord-sub000/internal/core"
	"github.com/inkbytefo/oxis-xcord-sub000/internal/domain"
	"github.com/inkbytefo/oxis-xcord-sub000/internal/media"
)

// DefaultAudioCodecs is the router codec config for voice rooms.
func DefaultAudioCodecs() []webrtc.RTPCodecCapability {
	return []webrtc.RTPCodecCapability{{
		MimeType:  webrtc.MimeTypeOpus,
		ClockRate: 48000,
		Channels:  2,
	}}
}

// RoomManager is the room registry: at most one live Room per id. Creation
// is atomic with respect to concurrent callers; the double-checked lock
// holds the write lock across router creation, so a racing second join
// waits instead of creating a duplicate.
type RoomManager struct {
	pool        *media.Pool
	codecs      []webrtc.RTPCodecCapability
	callTimeout time.Duration
	onChange    func(delta int)

	mu    sync.RWMutex
	rooms map[domain.RoomID]*core.Room
}

type RoomManagerOptions struct {
	Codecs      []webrtc.RTPCodecCapability
	CallTimeout time.Duration
	// OnChange observes room count changes (metrics hook).
	OnChange func(delta int)
}

func NewRoomManager(pool *media.Pool, opts RoomManagerOptions) *RoomManager {
	if len(opts.Codecs) == 0 {
		opts.Codecs = DefaultAudioCodecs()
	}
	return &RoomManager{
		pool:        pool,
		codecs:      opts.Codecs,
		callTimeout: opts.CallTimeout,
		onChange:    opts.OnChange,
		rooms:       make(map[domain.RoomID]*core.Room),
	}
}

// GetOrCreate returns the live room for id, creating it lazily. A failed
// router init surfaces as ErrRoomUnavailable and registers nothing.
func (m *RoomManager) GetOrCreate(ctx context.Context, id domain.RoomID) (*core.Room, error) {
	m.mu.RLock()
	room, ok := m.rooms[id]
	m.mu.RUnlock()
	if ok {
		return room, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if room, ok = m.rooms[id]; ok {
		return room, nil
	}

	worker := m.pool.Acquire()
	cctx, cancel := media.CallContext(ctx, m.callTimeout)
	defer cancel()
	router, err := worker.CreateRouter(cctx, m.codecs)
	if err != nil {
		log.Error().Err(err).Str("module", "app.rooms").Str("room", string(id)).Str("worker", worker.ID()).Msg("router init failed")
		return nil, fmt.Errorf("%w: %v", domain.ErrRoomUnavailable, media.MapErr(err))
	}

	room = core.NewRoom(id, worker, router, m.callTimeout, m.remove)
	m.rooms[id] = room
	if m.onChange != nil {
		m.onChange(1)
	}
	log.Info().Str("module", "app.rooms").Str("room", string(id)).Str("worker", worker.ID()).Msg("room created")
	return room, nil
}

// Get returns the room without creating it.
func (m *RoomManager) Get(id domain.RoomID) (*core.Room, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	room, ok := m.rooms[id]
	return room, ok
}

// Close removes and destroys a room. Safe on an already-removed id.
func (m *RoomManager) Close(id domain.RoomID) {
	m.mu.RLock()
	room, ok := m.rooms[id]
	m.mu.RUnlock()
	if !ok {
		return
	}
	// Room.Close cascades and calls remove through onClosed.
	room.Close()
}

// remove drops a closed room from the registry. Invoked by the room itself
// once it reaches the closed state; idempotent.
func (m *RoomManager) remove(id domain.RoomID) {
	m.mu.Lock()
	_, ok := m.rooms[id]
	delete(m.rooms, id)
	m.mu.Unlock()
	if ok {
		if m.onChange != nil {
			m.onChange(-1)
		}
		log.Info().Str("module", "app.rooms").Str("room", string(id)).Msg("room removed")
	}
}

func (m *RoomManager) List() []core.RoomInfo {
	// Snapshot first: PeerCount takes the room lock, and a closing room
	// takes the registry lock, so never hold both here.
	m.mu.RLock()
	rooms := make([]*core.Room, 0, len(m.rooms))
	for _, r := range m.rooms {
		rooms = append(rooms, r)
	}
	m.mu.RUnlock()

	out := make([]core.RoomInfo, 0, len(rooms))
	for _, r := range rooms {
		out = append(out, core.RoomInfo{ID: r.ID(), PeerCount: r.PeerCount()})
	}
	return out
}

func (m *RoomManager) ListIDs() []domain.RoomID {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.RoomID, 0, len(m.rooms))
	for id := range m.rooms {
		out = append(out, id)
	}
	return out
}

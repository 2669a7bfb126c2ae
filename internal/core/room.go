package core

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/inkbytefo/oxis-xcord-sub000/internal/domain"
	"github.com/inkbytefo/oxis-xcord-sub000/internal/media"
)

type RoomState string

const (
	StateInitializing RoomState = "initializing"
	StateActive       RoomState = "active"
	StateEmpty        RoomState = "empty"
	StateClosed       RoomState = "closed"
)

// Room owns one router and every transport/producer/consumer of the peers
// currently inside it. All mutating operations serialize on r.mu; engine
// calls run under the lock but always carry a deadline, so the
// serialization domain cannot hang.
//
// Resource ownership is strictly hierarchical: a destroy cascades downward
// (producers/consumers before their transport, transports before the
// router) and is best-effort; one failing close never stops the rest.
type Room struct {
	id          domain.RoomID
	worker      media.Worker
	router      media.Router
	callTimeout time.Duration
	onClosed    func(domain.RoomID)

	mu         sync.Mutex
	state      RoomState
	peers      map[domain.UserID]*peerState
	transports map[string]*transportState
	producers  map[string]*producerState
	consumers  map[string]*consumerState
}

type peerState struct {
	meta       *domain.Peer
	session    PeerSession
	transports map[string]struct{}
}

type transportState struct {
	owner     domain.UserID
	transport media.Transport
	connected bool
	producers map[string]struct{}
	consumers map[string]struct{}
}

type producerState struct {
	owner       domain.UserID
	transportID string
	producer    media.Producer
}

type consumerState struct {
	owner       domain.UserID
	transportID string
	producerID  string
	consumer    media.Consumer
}

// NewRoom wires a freshly created router. The registry registers the room
// only after this returns, so Initializing is never observable outside the
// registry's critical section.
func NewRoom(id domain.RoomID, worker media.Worker, router media.Router, callTimeout time.Duration, onClosed func(domain.RoomID)) *Room {
	return &Room{
		id:          id,
		worker:      worker,
		router:      router,
		callTimeout: callTimeout,
		onClosed:    onClosed,
		state:       StateActive,
		peers:       make(map[domain.UserID]*peerState),
		transports:  make(map[string]*transportState),
		producers:   make(map[string]*producerState),
		consumers:   make(map[string]*consumerState),
	}
}

func (r *Room) ID() domain.RoomID { return r.id }

func (r *Room) State() RoomState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *Room) PeerCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.peers)
}

func (r *Room) Participants() []Participant {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.participantsLocked()
}

func (r *Room) participantsLocked() []Participant {
	out := make([]Participant, 0, len(r.peers))
	for _, p := range r.peers {
		out = append(out, Participant{
			ID:       p.meta.User.ID,
			Username: p.meta.User.Username,
			Muted:    p.meta.Muted,
		})
	}
	return out
}

// Join adds a peer and returns the current participant snapshot. A repeat
// join from a reconnecting socket replaces the stored session.
func (r *Room) Join(sess PeerSession) ([]Participant, error) {
	user := sess.User()
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == StateClosed {
		return nil, domain.ErrRoomClosed
	}

	if p, ok := r.peers[user.ID]; ok {
		p.session = sess
		return r.participantsLocked(), nil
	}

	r.peers[user.ID] = &peerState{
		meta:       domain.NewPeer(user),
		session:    sess,
		transports: make(map[string]struct{}),
	}
	r.state = StateActive
	log.Info().Str("module", "core.room").Str("room", string(r.id)).Str("user", string(user.ID)).Msg("peer joined")

	r.broadcastLocked(user.ID, "user-joined", userJoinedData{
		UserID:   user.ID,
		Username: user.Username,
	})
	return r.participantsLocked(), nil
}

// CreateTransport allocates an engine transport for the peer and returns
// the ICE/DTLS parameters the client needs to connect.
func (r *Room) CreateTransport(ctx context.Context, peerID domain.UserID) (media.TransportParams, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == StateClosed {
		return media.TransportParams{}, domain.ErrRoomClosed
	}
	peer, ok := r.peers[peerID]
	if !ok {
		return media.TransportParams{}, domain.ErrPeerNotFound
	}

	cctx, cancel := media.CallContext(ctx, r.callTimeout)
	defer cancel()
	t, err := r.router.CreateTransport(cctx)
	if err != nil {
		return media.TransportParams{}, fmt.Errorf("create transport: %w", media.MapErr(err))
	}

	id := t.ID()
	r.transports[id] = &transportState{
		owner:     peerID,
		transport: t,
		producers: make(map[string]struct{}),
		consumers: make(map[string]struct{}),
	}
	peer.transports[id] = struct{}{}
	t.OnClose(func() { r.onTransportClosed(id) })

	log.Info().Str("module", "core.room").Str("room", string(r.id)).Str("transport", id).Str("user", string(peerID)).Msg("transport created")
	return t.Parameters(), nil
}

func (r *Room) ConnectTransport(ctx context.Context, peerID domain.UserID, transportID string, dtls webrtc.DTLSParameters) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	ts, ok := r.transports[transportID]
	if !ok {
		return domain.ErrTransportNotFound
	}
	if ts.owner != peerID {
		return domain.ErrNotOwner
	}
	if ts.connected {
		return domain.ErrTransportConnected
	}

	cctx, cancel := media.CallContext(ctx, r.callTimeout)
	defer cancel()
	if err := ts.transport.Connect(cctx, dtls); err != nil {
		return fmt.Errorf("connect transport %s: %w", transportID, media.MapErr(err))
	}
	ts.connected = true
	return nil
}

// Produce creates a producer on a connected transport and announces it to
// every other peer. The broadcast is at-least-once: a failed send is
// logged, the producer is retained either way.
func (r *Room) Produce(ctx context.Context, peerID domain.UserID, transportID string, kind media.Kind, params webrtc.RTPParameters) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ts, ok := r.transports[transportID]
	if !ok {
		return "", domain.ErrTransportNotFound
	}
	if ts.owner != peerID {
		return "", domain.ErrNotOwner
	}
	if !ts.connected {
		return "", domain.ErrTransportNotReady
	}

	cctx, cancel := media.CallContext(ctx, r.callTimeout)
	defer cancel()
	p, err := ts.transport.Produce(cctx, kind, params)
	if err != nil {
		return "", fmt.Errorf("produce on %s: %w", transportID, media.MapErr(err))
	}

	id := p.ID()
	r.producers[id] = &producerState{owner: peerID, transportID: transportID, producer: p}
	ts.producers[id] = struct{}{}
	p.OnClose(func() { r.onProducerClosed(id) })

	log.Info().Str("module", "core.room").Str("room", string(r.id)).Str("producer", id).Str("user", string(peerID)).Msg("producer created")
	r.broadcastLocked(peerID, "new-producer", newProducerData{
		ProducerID: id,
		Kind:       p.Kind(),
		PeerID:     peerID,
	})
	return id, nil
}

// Consume creates a paused consumer of producerID on the peer's transport.
// An empty transportID resolves to the peer's connected transport (send and
// receive share one in the single-transport deployment). The caller resumes
// the consumer separately.
func (r *Room) Consume(ctx context.Context, peerID domain.UserID, transportID, producerID string, caps webrtc.RTPCapabilities) (ConsumerInfo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ts, err := r.transportForLocked(peerID, transportID)
	if err != nil {
		return ConsumerInfo{}, err
	}
	if !ts.connected {
		return ConsumerInfo{}, domain.ErrTransportNotReady
	}
	if _, ok := r.producers[producerID]; !ok {
		return ConsumerInfo{}, domain.ErrProducerNotFound
	}
	if !r.router.CanConsume(producerID, caps) {
		return ConsumerInfo{}, domain.ErrNotConsumable
	}

	cctx, cancel := media.CallContext(ctx, r.callTimeout)
	defer cancel()
	c, err := ts.transport.Consume(cctx, producerID, caps)
	if err != nil {
		return ConsumerInfo{}, fmt.Errorf("consume %s: %w", producerID, media.MapErr(err))
	}

	id := c.ID()
	r.consumers[id] = &consumerState{owner: peerID, transportID: ts.transport.ID(), producerID: producerID, consumer: c}
	ts.consumers[id] = struct{}{}
	c.OnClose(func() { r.onConsumerClosed(id) })

	log.Info().Str("module", "core.room").Str("room", string(r.id)).Str("consumer", id).Str("producer", producerID).Str("user", string(peerID)).Msg("consumer created")
	return ConsumerInfo{
		ID:            id,
		ProducerID:    producerID,
		Kind:          c.Kind(),
		RTPParameters: c.RTPParameters(),
	}, nil
}

func (r *Room) ResumeConsumer(ctx context.Context, peerID domain.UserID, consumerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cs, ok := r.consumers[consumerID]
	if !ok {
		return domain.ErrConsumerNotFound
	}
	if cs.owner != peerID {
		return domain.ErrNotOwner
	}

	cctx, cancel := media.CallContext(ctx, r.callTimeout)
	defer cancel()
	if err := cs.consumer.Resume(cctx); err != nil {
		return fmt.Errorf("resume consumer %s: %w", consumerID, media.MapErr(err))
	}
	return nil
}

func (r *Room) SetMuted(peerID domain.UserID, muted bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	peer, ok := r.peers[peerID]
	if !ok {
		return domain.ErrPeerNotFound
	}
	peer.meta.Muted = muted
	r.broadcastLocked(peerID, "user-muted", userMutedData{
		UserID:  peerID,
		IsMuted: muted,
	})
	return nil
}

// Leave cascades the peer's resources, notifies the rest of the room, and
// closes the room when it empties. Racing disconnect handlers make this
// idempotent: the second call finds no peer and returns.
func (r *Room) Leave(peerID domain.UserID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.leaveLocked(peerID)
}

func (r *Room) leaveLocked(peerID domain.UserID) {
	peer, ok := r.peers[peerID]
	if !ok {
		return
	}

	for tid := range peer.transports {
		r.closeTransportLocked(tid)
	}
	delete(r.peers, peerID)
	log.Info().Str("module", "core.room").Str("room", string(r.id)).Str("user", string(peerID)).Msg("peer left")

	r.broadcastLocked(peerID, "user-left", userLeftData{
		UserID:   peerID,
		Username: peer.meta.User.Username,
	})

	if len(r.peers) == 0 && r.state != StateClosed {
		r.state = StateEmpty
		r.closeLocked()
	}
}

// Close tears the whole room down: every remaining peer's resources, then
// the router. Idempotent.
func (r *Room) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == StateClosed {
		return
	}
	for peerID := range r.peers {
		peer := r.peers[peerID]
		for tid := range peer.transports {
			r.closeTransportLocked(tid)
		}
		delete(r.peers, peerID)
	}
	r.closeLocked()
}

func (r *Room) closeLocked() {
	if r.state == StateClosed {
		return
	}
	r.state = StateClosed
	if err := r.router.Close(); err != nil {
		log.Warn().Err(err).Str("module", "core.room").Str("room", string(r.id)).Msg("router close")
	}
	log.Info().Str("module", "core.room").Str("room", string(r.id)).Msg("room closed")
	if r.onClosed != nil {
		r.onClosed(r.id)
	}
}

// closeTransportLocked cascades: producers (and their consumers) first,
// then stray consumers, then the transport itself. Best-effort throughout.
func (r *Room) closeTransportLocked(tid string) {
	ts, ok := r.transports[tid]
	if !ok {
		return
	}

	for pid := range ts.producers {
		r.closeProducerLocked(pid)
	}
	for cid := range ts.consumers {
		r.closeConsumerLocked(cid)
	}

	delete(r.transports, tid)
	if peer, ok := r.peers[ts.owner]; ok {
		delete(peer.transports, tid)
	}
	if err := ts.transport.Close(); err != nil {
		log.Warn().Err(err).Str("module", "core.room").Str("transport", tid).Msg("transport close")
	}
}

// closeProducerLocked closes every consumer referencing the producer before
// the producer itself and announces producer-closed to the other peers.
func (r *Room) closeProducerLocked(pid string) {
	ps, ok := r.producers[pid]
	if !ok {
		return
	}
	delete(r.producers, pid)
	if ts, ok := r.transports[ps.transportID]; ok {
		delete(ts.producers, pid)
	}

	for cid, cs := range r.consumers {
		if cs.producerID == pid {
			r.closeConsumerLocked(cid)
		}
	}

	if err := ps.producer.Close(); err != nil {
		log.Warn().Err(err).Str("module", "core.room").Str("producer", pid).Msg("producer close")
	}
	r.broadcastLocked(ps.owner, "producer-closed", producerClosedData{
		ProducerID: pid,
		PeerID:     ps.owner,
	})
}

func (r *Room) closeConsumerLocked(cid string) {
	cs, ok := r.consumers[cid]
	if !ok {
		return
	}
	delete(r.consumers, cid)
	if ts, ok := r.transports[cs.transportID]; ok {
		delete(ts.consumers, cid)
	}
	if err := cs.consumer.Close(); err != nil {
		log.Warn().Err(err).Str("module", "core.room").Str("consumer", cid).Msg("consumer close")
	}
}

// transportForLocked resolves a peer's transport, by id when given or by
// picking the peer's connected transport otherwise.
func (r *Room) transportForLocked(peerID domain.UserID, transportID string) (*transportState, error) {
	if transportID != "" {
		ts, ok := r.transports[transportID]
		if !ok {
			return nil, domain.ErrTransportNotFound
		}
		if ts.owner != peerID {
			return nil, domain.ErrNotOwner
		}
		return ts, nil
	}
	for _, ts := range r.transports {
		if ts.owner == peerID && ts.connected {
			return ts, nil
		}
	}
	return nil, domain.ErrTransportNotFound
}

// Engine-side close notifications. These run on engine goroutines; the map
// lookups make them no-ops for resources the room already tore down.
func (r *Room) onTransportClosed(tid string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closeTransportLocked(tid)
}

func (r *Room) onProducerClosed(pid string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closeProducerLocked(pid)
}

func (r *Room) onConsumerClosed(cid string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closeConsumerLocked(cid)
}

// broadcastLocked fans an event out to every peer except the originator.
// Backpressure and send failures are logged, never propagated: missed
// notifications are recoverable via a room-state query.
func (r *Room) broadcastLocked(except domain.UserID, typ string, data any) {
	b, err := json.Marshal(pushEvent{Type: typ, Data: data})
	if err != nil {
		log.Error().Err(err).Str("module", "core.room").Msg("broadcast marshal")
		return
	}
	for id, p := range r.peers {
		if id == except {
			continue
		}
		if err := p.session.Signal().TrySend(b); err != nil {
			log.Warn().Err(err).Str("module", "core.room").Str("room", string(r.id)).Str("user", string(id)).Msg("broadcast dropped")
		}
	}
}

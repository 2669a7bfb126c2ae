package core_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/require"

	"github.com/inkbytefo/oxis-xcord-sub000/internal/core"
	"github.com/inkbytefo/oxis-xcord-sub000/internal/domain"
	"github.com/inkbytefo/oxis-xcord-sub000/internal/testsupport/enginestub"
)

// captureConn records every frame a room fans out to a peer.
type captureConn struct {
	mu     sync.Mutex
	frames [][]byte
}

func (c *captureConn) TrySend(f core.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	b := make([]byte, len(f))
	copy(b, f)
	c.frames = append(c.frames, b)
	return nil
}

func (c *captureConn) Close() {}

// eventsOfType returns the data objects of every {type, data} frame of the
// given type.
func (c *captureConn) eventsOfType(typ string) []map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []map[string]any
	for _, f := range c.frames {
		var m struct {
			Type string         `json:"type"`
			Data map[string]any `json:"data"`
		}
		if err := json.Unmarshal(f, &m); err != nil {
			continue
		}
		if m.Type == typ {
			out = append(out, m.Data)
		}
	}
	return out
}

type roomFixture struct {
	engine *enginestub.Engine
	room   *core.Room

	mu     sync.Mutex
	closed []domain.RoomID
}

func newRoomFixture(t *testing.T) *roomFixture {
	t.Helper()
	ctx := context.Background()
	f := &roomFixture{engine: enginestub.New()}

	w, err := f.engine.CreateWorker(ctx)
	require.NoError(t, err)
	router, err := w.CreateRouter(ctx, nil)
	require.NoError(t, err)

	f.room = core.NewRoom("r1", w, router, time.Second, func(id domain.RoomID) {
		f.mu.Lock()
		f.closed = append(f.closed, id)
		f.mu.Unlock()
	})
	return f
}

func (f *roomFixture) closedRooms() []domain.RoomID {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.RoomID(nil), f.closed...)
}

func join(t *testing.T, room *core.Room, id, name string) *captureConn {
	t.Helper()
	conn := &captureConn{}
	user := &domain.User{ID: domain.UserID(id), Username: name}
	_, err := room.Join(core.NewPeerSession(user, conn))
	require.NoError(t, err)
	return conn
}

// readyTransport creates and connects a transport for the peer.
func readyTransport(t *testing.T, room *core.Room, peer domain.UserID) string {
	t.Helper()
	ctx := context.Background()
	params, err := room.CreateTransport(ctx, peer)
	require.NoError(t, err)
	require.NotEmpty(t, params.ID)
	require.NotEmpty(t, params.ICEParameters.UsernameFragment)
	require.NoError(t, room.ConnectTransport(ctx, peer, params.ID, webrtc.DTLSParameters{}))
	return params.ID
}

func TestRoomLifecycleScenario(t *testing.T) {
	f := newRoomFixture(t)
	room := f.room
	ctx := context.Background()

	connA := join(t, room, "a", "Alice")
	require.Equal(t, core.StateActive, room.State())
	require.Equal(t, 1, room.PeerCount())

	connB := join(t, room, "b", "Bob")
	require.Len(t, connA.eventsOfType("user-joined"), 1)
	require.Empty(t, connB.eventsOfType("user-joined"))

	// A produces.
	ta := readyTransport(t, room, "a")
	producerID, err := room.Produce(ctx, "a", ta, "audio", webrtc.RTPParameters{})
	require.NoError(t, err)

	// Exactly one announcement, and not to the originator.
	require.Len(t, connB.eventsOfType("new-producer"), 1)
	require.Empty(t, connA.eventsOfType("new-producer"))
	require.Equal(t, producerID, connB.eventsOfType("new-producer")[0]["producerId"])

	// B consumes; the consumer starts paused and resumes on request.
	tb := readyTransport(t, room, "b")
	info, err := room.Consume(ctx, "b", tb, producerID, webrtc.RTPCapabilities{})
	require.NoError(t, err)
	require.Equal(t, producerID, info.ProducerID)

	consumers := f.engine.Consumers()
	require.Len(t, consumers, 1)
	require.True(t, consumers[0].Paused())
	require.NoError(t, room.ResumeConsumer(ctx, "b", info.ID))
	require.False(t, consumers[0].Paused())

	// A disconnects: producer and B's consumer cascade closed, B notified.
	room.Leave("a")
	require.Len(t, connB.eventsOfType("user-left"), 1)
	require.Len(t, connB.eventsOfType("producer-closed"), 1)
	require.True(t, f.engine.Producers()[0].Closed())
	require.True(t, consumers[0].Closed())
	require.Equal(t, 1, room.PeerCount())

	// B disconnects: room closes and reports itself to the registry.
	room.Leave("b")
	require.Equal(t, core.StateClosed, room.State())
	require.Equal(t, []domain.RoomID{"r1"}, f.closedRooms())
}

func TestProduceBroadcastsToAllOthers(t *testing.T) {
	f := newRoomFixture(t)
	room := f.room
	ctx := context.Background()

	connA := join(t, room, "a", "Alice")
	connB := join(t, room, "b", "Bob")
	connC := join(t, room, "c", "Cara")

	ta := readyTransport(t, room, "a")
	_, err := room.Produce(ctx, "a", ta, "audio", webrtc.RTPParameters{})
	require.NoError(t, err)

	require.Empty(t, connA.eventsOfType("new-producer"))
	require.Len(t, connB.eventsOfType("new-producer"), 1)
	require.Len(t, connC.eventsOfType("new-producer"), 1)
}

func TestLeaveIsIdempotent(t *testing.T) {
	f := newRoomFixture(t)
	room := f.room

	join(t, room, "a", "Alice")
	connB := join(t, room, "b", "Bob")

	room.Leave("a")
	room.Leave("a")

	require.Len(t, connB.eventsOfType("user-left"), 1)
	require.Equal(t, 1, room.PeerCount())
}

func TestTransportErrors(t *testing.T) {
	f := newRoomFixture(t)
	room := f.room
	ctx := context.Background()

	join(t, room, "a", "Alice")

	err := room.ConnectTransport(ctx, "a", "no-such-transport", webrtc.DTLSParameters{})
	require.ErrorIs(t, err, domain.ErrTransportNotFound)

	params, err := room.CreateTransport(ctx, "a")
	require.NoError(t, err)

	// Produce before connect is rejected.
	_, err = room.Produce(ctx, "a", params.ID, "audio", webrtc.RTPParameters{})
	require.ErrorIs(t, err, domain.ErrTransportNotReady)

	require.NoError(t, room.ConnectTransport(ctx, "a", params.ID, webrtc.DTLSParameters{}))
	err = room.ConnectTransport(ctx, "a", params.ID, webrtc.DTLSParameters{})
	require.ErrorIs(t, err, domain.ErrTransportConnected)

	// Another peer cannot touch A's transport.
	join(t, room, "b", "Bob")
	_, err = room.Produce(ctx, "b", params.ID, "audio", webrtc.RTPParameters{})
	require.ErrorIs(t, err, domain.ErrNotOwner)

	// CreateTransport requires membership.
	_, err = room.CreateTransport(ctx, "ghost")
	require.ErrorIs(t, err, domain.ErrPeerNotFound)
}

func TestConsumeErrors(t *testing.T) {
	f := newRoomFixture(t)
	room := f.room
	ctx := context.Background()

	join(t, room, "a", "Alice")
	join(t, room, "b", "Bob")

	ta := readyTransport(t, room, "a")
	producerID, err := room.Produce(ctx, "a", ta, "audio", webrtc.RTPParameters{})
	require.NoError(t, err)

	tb := readyTransport(t, room, "b")

	_, err = room.Consume(ctx, "b", tb, "stale-producer", webrtc.RTPCapabilities{})
	require.ErrorIs(t, err, domain.ErrProducerNotFound)

	f.engine.CanConsumeFn = func(string, webrtc.RTPCapabilities) bool { return false }
	_, err = room.Consume(ctx, "b", tb, producerID, webrtc.RTPCapabilities{})
	require.ErrorIs(t, err, domain.ErrNotConsumable)
	f.engine.CanConsumeFn = nil

	info, err := room.Consume(ctx, "b", tb, producerID, webrtc.RTPCapabilities{})
	require.NoError(t, err)

	err = room.ResumeConsumer(ctx, "a", info.ID)
	require.ErrorIs(t, err, domain.ErrNotOwner)
	err = room.ResumeConsumer(ctx, "b", "no-such-consumer")
	require.ErrorIs(t, err, domain.ErrConsumerNotFound)
}

func TestConsumeResolvesPeerTransport(t *testing.T) {
	f := newRoomFixture(t)
	room := f.room
	ctx := context.Background()

	join(t, room, "a", "Alice")
	join(t, room, "b", "Bob")

	ta := readyTransport(t, room, "a")
	producerID, err := room.Produce(ctx, "a", ta, "audio", webrtc.RTPParameters{})
	require.NoError(t, err)

	// No transport at all yet.
	_, err = room.Consume(ctx, "b", "", producerID, webrtc.RTPCapabilities{})
	require.ErrorIs(t, err, domain.ErrTransportNotFound)

	readyTransport(t, room, "b")
	info, err := room.Consume(ctx, "b", "", producerID, webrtc.RTPCapabilities{})
	require.NoError(t, err)
	require.Equal(t, producerID, info.ProducerID)
}

func TestMediaCallTimeout(t *testing.T) {
	ctx := context.Background()
	engine := enginestub.New()
	w, err := engine.CreateWorker(ctx)
	require.NoError(t, err)
	router, err := w.CreateRouter(ctx, nil)
	require.NoError(t, err)

	room := core.NewRoom("r1", w, router, 10*time.Millisecond, nil)
	conn := &captureConn{}
	user := &domain.User{ID: "a", Username: "Alice"}
	_, err = room.Join(core.NewPeerSession(user, conn))
	require.NoError(t, err)

	engine.Delay = 200 * time.Millisecond
	_, err = room.CreateTransport(ctx, "a")
	require.ErrorIs(t, err, domain.ErrMediaTimeout)
}

func TestEngineSideProducerCloseCascades(t *testing.T) {
	f := newRoomFixture(t)
	room := f.room
	ctx := context.Background()

	join(t, room, "a", "Alice")
	connB := join(t, room, "b", "Bob")

	ta := readyTransport(t, room, "a")
	producerID, err := room.Produce(ctx, "a", ta, "audio", webrtc.RTPParameters{})
	require.NoError(t, err)

	tb := readyTransport(t, room, "b")
	_, err = room.Consume(ctx, "b", tb, producerID, webrtc.RTPCapabilities{})
	require.NoError(t, err)

	// The engine reports the producer closed; the room must cascade.
	require.NoError(t, f.engine.Producers()[0].Close())

	require.Eventually(t, func() bool {
		return f.engine.Consumers()[0].Closed()
	}, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		return len(connB.eventsOfType("producer-closed")) == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestMuteBroadcast(t *testing.T) {
	f := newRoomFixture(t)
	room := f.room

	connA := join(t, room, "a", "Alice")
	connB := join(t, room, "b", "Bob")

	require.NoError(t, room.SetMuted("a", true))
	require.Empty(t, connA.eventsOfType("user-muted"))
	events := connB.eventsOfType("user-muted")
	require.Len(t, events, 1)
	require.Equal(t, true, events[0]["isMuted"])

	for _, p := range room.Participants() {
		if p.ID == "a" {
			require.True(t, p.Muted)
		}
	}

	require.ErrorIs(t, room.SetMuted("ghost", true), domain.ErrPeerNotFound)
}

func TestRejoinReplacesSession(t *testing.T) {
	f := newRoomFixture(t)
	room := f.room

	join(t, room, "a", "Alice")
	conn2 := &captureConn{}
	user := &domain.User{ID: "a", Username: "Alice"}
	parts, err := room.Join(core.NewPeerSession(user, conn2))
	require.NoError(t, err)
	require.Len(t, parts, 1)
	require.Equal(t, 1, room.PeerCount())

	// Events now reach the replacement connection.
	join(t, room, "b", "Bob")
	require.Len(t, conn2.eventsOfType("user-joined"), 1)
}

package media

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"

	"github.com/inkbytefo/oxis-xcord-sub000/internal/domain"
)

// LocalEngine is an in-process loopback engine for development deployments
// that run without a native media engine. It hands out handles and
// plausible transport parameters but forwards no media.
type LocalEngine struct{}

func NewLocalEngine() *LocalEngine { return &LocalEngine{} }

func (e *LocalEngine) CreateWorker(ctx context.Context) (Worker, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &localWorker{id: uuid.NewString(), closers: newCloserList()}, nil
}

// closerList delivers close/death notifications asynchronously, per the
// Engine contract.
type closerList struct {
	mu     sync.Mutex
	fns    []func()
	closed bool
}

func newCloserList() *closerList { return &closerList{} }

func (c *closerList) subscribe(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fns = append(c.fns, fn)
}

// fire runs callbacks once, on their own goroutine.
func (c *closerList) fire() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	fns := c.fns
	c.mu.Unlock()
	go func() {
		for _, fn := range fns {
			fn()
		}
	}()
}

func (c *closerList) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

type localWorker struct {
	id      string
	closers *closerList
}

func (w *localWorker) ID() string       { return w.id }
func (w *localWorker) OnDied(fn func()) { w.closers.subscribe(fn) }
func (w *localWorker) Close() error     { return nil }

func (w *localWorker) CreateRouter(ctx context.Context, codecs []webrtc.RTPCodecCapability) (Router, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &localRouter{id: uuid.NewString(), codecs: codecs}, nil
}

type localRouter struct {
	id     string
	codecs []webrtc.RTPCodecCapability
}

func (r *localRouter) ID() string   { return r.id }
func (r *localRouter) Close() error { return nil }

func (r *localRouter) CanConsume(producerID string, caps webrtc.RTPCapabilities) bool {
	if producerID == "" {
		return false
	}
	for _, c := range caps.Codecs {
		for _, rc := range r.codecs {
			if c.MimeType == rc.MimeType {
				return true
			}
		}
	}
	return false
}

func (r *localRouter) CreateTransport(ctx context.Context) (Transport, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	id := uuid.NewString()
	sum := sha256.Sum256([]byte(id))
	return &localTransport{
		params: TransportParams{
			ID: id,
			ICEParameters: webrtc.ICEParameters{
				UsernameFragment: uuid.NewString()[:8],
				Password:         uuid.NewString(),
			},
			ICECandidates: []webrtc.ICECandidate{{
				Foundation: "0",
				Priority:   1,
				Address:    "127.0.0.1",
				Protocol:   webrtc.ICEProtocolUDP,
				Port:       40000,
				Component:  1,
				Typ:        webrtc.ICECandidateTypeHost,
			}},
			DTLSParameters: webrtc.DTLSParameters{
				Role: webrtc.DTLSRoleAuto,
				Fingerprints: []webrtc.DTLSFingerprint{{
					Algorithm: "sha-256",
					Value:     hex.EncodeToString(sum[:]),
				}},
			},
		},
		closers: newCloserList(),
	}, nil
}

type localTransport struct {
	params  TransportParams
	closers *closerList

	mu        sync.Mutex
	connected bool
}

func (t *localTransport) ID() string                  { return t.params.ID }
func (t *localTransport) Parameters() TransportParams { return t.params }
func (t *localTransport) OnClose(fn func())           { t.closers.subscribe(fn) }

func (t *localTransport) Close() error {
	t.closers.fire()
	return nil
}

func (t *localTransport) Connect(ctx context.Context, dtls webrtc.DTLSParameters) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.connected {
		return domain.ErrTransportConnected
	}
	if len(dtls.Fingerprints) == 0 {
		return fmt.Errorf("connect transport %s: no dtls fingerprints", t.params.ID)
	}
	t.connected = true
	return nil
}

func (t *localTransport) Produce(ctx context.Context, kind Kind, params webrtc.RTPParameters) (Producer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &localProducer{id: uuid.NewString(), kind: kind, closers: newCloserList()}, nil
}

func (t *localTransport) Consume(ctx context.Context, producerID string, caps webrtc.RTPCapabilities) (Consumer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &localConsumer{
		id:         uuid.NewString(),
		producerID: producerID,
		kind:       KindAudio,
		paused:     true,
		closers:    newCloserList(),
	}, nil
}

type localProducer struct {
	id      string
	kind    Kind
	closers *closerList
}

func (p *localProducer) ID() string        { return p.id }
func (p *localProducer) Kind() Kind        { return p.kind }
func (p *localProducer) OnClose(fn func()) { p.closers.subscribe(fn) }
func (p *localProducer) Close() error {
	p.closers.fire()
	return nil
}

type localConsumer struct {
	id         string
	producerID string
	kind       Kind
	closers    *closerList

	mu     sync.Mutex
	paused bool
}

func (c *localConsumer) ID() string                          { return c.id }
func (c *localConsumer) ProducerID() string                  { return c.producerID }
func (c *localConsumer) Kind() Kind                          { return c.kind }
func (c *localConsumer) RTPParameters() webrtc.RTPParameters { return webrtc.RTPParameters{} }
func (c *localConsumer) OnClose(fn func())                   { c.closers.subscribe(fn) }

func (c *localConsumer) Paused() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.paused
}

func (c *localConsumer) Resume(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.paused = false
	return nil
}

func (c *localConsumer) Close() error {
	c.closers.fire()
	return nil
}

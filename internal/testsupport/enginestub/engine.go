// Package enginestub is an in-memory media engine with scriptable failures
// for exercising the orchestration layer in tests.
package enginestub

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"

	"github.com/inkbytefo/oxis-xcord-sub000/internal/media"
)

// Engine implements media.Engine. Zero value behaves like a healthy
// engine; set the hook fields to script failures. Delay applies to every
// engine call and respects the caller's context, which is how tests drive
// media timeouts.
type Engine struct {
	mu        sync.Mutex
	workers   []*Worker
	producers []*Producer
	consumers []*Consumer

	Delay        time.Duration
	WorkerErr    error
	RouterErr    error
	TransportErr error
	ConnectErr   error
	ProduceErr   error
	ConsumeErr   error
	// CanConsumeFn overrides consumability; nil means always true.
	CanConsumeFn func(producerID string, caps webrtc.RTPCapabilities) bool
}

func New() *Engine { return &Engine{} }

func (e *Engine) wait(ctx context.Context) error {
	if e.Delay <= 0 {
		return ctx.Err()
	}
	select {
	case <-time.After(e.Delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) CreateWorker(ctx context.Context) (media.Worker, error) {
	if err := e.wait(ctx); err != nil {
		return nil, err
	}
	if e.WorkerErr != nil {
		return nil, e.WorkerErr
	}
	w := &Worker{id: uuid.NewString(), engine: e}
	e.mu.Lock()
	e.workers = append(e.workers, w)
	e.mu.Unlock()
	return w, nil
}

// Workers returns every worker created so far.
func (e *Engine) Workers() []*Worker {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*Worker(nil), e.workers...)
}

// Producers returns every producer created so far.
func (e *Engine) Producers() []*Producer {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*Producer(nil), e.producers...)
}

// Consumers returns every consumer created so far.
func (e *Engine) Consumers() []*Consumer {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*Consumer(nil), e.consumers...)
}

type Worker struct {
	id     string
	engine *Engine

	mu   sync.Mutex
	died []func()
}

func (w *Worker) ID() string   { return w.id }
func (w *Worker) Close() error { return nil }

func (w *Worker) OnDied(fn func()) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.died = append(w.died, fn)
}

// Kill simulates engine-side worker death. Callbacks fire on their own
// goroutine per the adapter contract.
func (w *Worker) Kill() {
	w.mu.Lock()
	fns := append([]func(){}, w.died...)
	w.mu.Unlock()
	go func() {
		for _, fn := range fns {
			fn()
		}
	}()
}

func (w *Worker) CreateRouter(ctx context.Context, codecs []webrtc.RTPCodecCapability) (media.Router, error) {
	if err := w.engine.wait(ctx); err != nil {
		return nil, err
	}
	if w.engine.RouterErr != nil {
		return nil, w.engine.RouterErr
	}
	return &Router{id: uuid.NewString(), engine: w.engine}, nil
}

type Router struct {
	id     string
	engine *Engine
}

func (r *Router) ID() string   { return r.id }
func (r *Router) Close() error { return nil }

func (r *Router) CanConsume(producerID string, caps webrtc.RTPCapabilities) bool {
	if r.engine.CanConsumeFn != nil {
		return r.engine.CanConsumeFn(producerID, caps)
	}
	return true
}

func (r *Router) CreateTransport(ctx context.Context) (media.Transport, error) {
	if err := r.engine.wait(ctx); err != nil {
		return nil, err
	}
	if r.engine.TransportErr != nil {
		return nil, r.engine.TransportErr
	}
	return &Transport{
		id:     uuid.NewString(),
		engine: r.engine,
	}, nil
}

type Transport struct {
	id     string
	engine *Engine

	mu        sync.Mutex
	connected bool
	closed    bool
	onClose   []func()
}

func (t *Transport) ID() string { return t.id }

func (t *Transport) Parameters() media.TransportParams {
	return media.TransportParams{
		ID: t.id,
		ICEParameters: webrtc.ICEParameters{
			UsernameFragment: "stub-ufrag",
			Password:         "stub-pwd",
		},
		ICECandidates: []webrtc.ICECandidate{{
			Foundation: "0",
			Address:    "127.0.0.1",
			Port:       40000,
			Protocol:   webrtc.ICEProtocolUDP,
			Typ:        webrtc.ICECandidateTypeHost,
			Component:  1,
			Priority:   1,
		}},
		DTLSParameters: webrtc.DTLSParameters{
			Role: webrtc.DTLSRoleAuto,
			Fingerprints: []webrtc.DTLSFingerprint{{
				Algorithm: "sha-256",
				Value:     "stub-fingerprint",
			}},
		},
	}
}

func (t *Transport) OnClose(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onClose = append(t.onClose, fn)
}

func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	fns := append([]func(){}, t.onClose...)
	t.mu.Unlock()
	go func() {
		for _, fn := range fns {
			fn()
		}
	}()
	return nil
}

func (t *Transport) Connect(ctx context.Context, dtls webrtc.DTLSParameters) error {
	if err := t.engine.wait(ctx); err != nil {
		return err
	}
	if t.engine.ConnectErr != nil {
		return t.engine.ConnectErr
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.connected = true
	return nil
}

func (t *Transport) Produce(ctx context.Context, kind media.Kind, params webrtc.RTPParameters) (media.Producer, error) {
	if err := t.engine.wait(ctx); err != nil {
		return nil, err
	}
	if t.engine.ProduceErr != nil {
		return nil, t.engine.ProduceErr
	}
	p := &Producer{id: uuid.NewString(), kind: kind}
	t.engine.mu.Lock()
	t.engine.producers = append(t.engine.producers, p)
	t.engine.mu.Unlock()
	return p, nil
}

func (t *Transport) Consume(ctx context.Context, producerID string, caps webrtc.RTPCapabilities) (media.Consumer, error) {
	if err := t.engine.wait(ctx); err != nil {
		return nil, err
	}
	if t.engine.ConsumeErr != nil {
		return nil, t.engine.ConsumeErr
	}
	c := &Consumer{
		id:         uuid.NewString(),
		producerID: producerID,
		kind:       media.KindAudio,
		paused:     true,
	}
	t.engine.mu.Lock()
	t.engine.consumers = append(t.engine.consumers, c)
	t.engine.mu.Unlock()
	return c, nil
}

type Producer struct {
	id   string
	kind media.Kind

	mu      sync.Mutex
	closed  bool
	onClose []func()
}

func (p *Producer) ID() string       { return p.id }
func (p *Producer) Kind() media.Kind { return p.kind }

func (p *Producer) OnClose(fn func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onClose = append(p.onClose, fn)
}

func (p *Producer) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	fns := append([]func(){}, p.onClose...)
	p.mu.Unlock()
	go func() {
		for _, fn := range fns {
			fn()
		}
	}()
	return nil
}

func (p *Producer) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

type Consumer struct {
	id         string
	producerID string
	kind       media.Kind

	mu      sync.Mutex
	paused  bool
	closed  bool
	onClose []func()
}

func (c *Consumer) ID() string                          { return c.id }
func (c *Consumer) ProducerID() string                  { return c.producerID }
func (c *Consumer) Kind() media.Kind                    { return c.kind }
func (c *Consumer) RTPParameters() webrtc.RTPParameters { return webrtc.RTPParameters{} }

func (c *Consumer) Paused() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.paused
}

func (c *Consumer) Resume(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.paused = false
	return nil
}

func (c *Consumer) OnClose(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onClose = append(c.onClose, fn)
}

func (c *Consumer) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	fns := append([]func(){}, c.onClose...)
	c.mu.Unlock()
	go func() {
		for _, fn := range fns {
			fn()
		}
	}()
	return nil
}

func (c *Consumer) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

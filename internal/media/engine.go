// Package media defines the boundary to the external media engine.
// The orchestrator only ever talks to these interfaces; ICE, DTLS, SRTP and
// RTP forwarding live on the other side of them.
package media

import (
	"context"
	"errors"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/inkbytefo/oxis-xcord-sub000/internal/domain"
)

type Kind string

const KindAudio Kind = "audio"

// TransportParams is what a client needs to establish the ICE/DTLS leg.
type TransportParams struct {
	ID             string                `json:"id"`
	ICEParameters  webrtc.ICEParameters  `json:"iceParameters"`
	ICECandidates  []webrtc.ICECandidate `json:"iceCandidates"`
	DTLSParameters webrtc.DTLSParameters `json:"dtlsParameters"`
}

// Engine creates workers. One Engine per process.
type Engine interface {
	CreateWorker(ctx context.Context) (Worker, error)
}

// Worker is an opaque engine execution context. Owned by the Pool.
//
// OnDied callbacks are invoked on a separate goroutine, never synchronously
// from Close. The same holds for every OnClose below; re-entrant delivery
// from inside a Close call would deadlock the room lock.
type Worker interface {
	ID() string
	CreateRouter(ctx context.Context, codecs []webrtc.RTPCodecCapability) (Router, error)
	OnDied(fn func())
	Close() error
}

// Router is the per-room routing context, bound to exactly one Worker.
type Router interface {
	ID() string
	CanConsume(producerID string, caps webrtc.RTPCapabilities) bool
	CreateTransport(ctx context.Context) (Transport, error)
	Close() error
}

type Transport interface {
	ID() string
	Parameters() TransportParams
	Connect(ctx context.Context, dtls webrtc.DTLSParameters) error
	Produce(ctx context.Context, kind Kind, params webrtc.RTPParameters) (Producer, error)
	Consume(ctx context.Context, producerID string, caps webrtc.RTPCapabilities) (Consumer, error)
	OnClose(fn func())
	Close() error
}

type Producer interface {
	ID() string
	Kind() Kind
	OnClose(fn func())
	Close() error
}

// Consumer starts paused; the owner resumes it once its transport is ready.
type Consumer interface {
	ID() string
	ProducerID() string
	Kind() Kind
	RTPParameters() webrtc.RTPParameters
	Paused() bool
	Resume(ctx context.Context) error
	OnClose(fn func())
	Close() error
}

// CallContext bounds an engine call. Callers pass the result through
// MapErr so a deadline surfaces as domain.ErrMediaTimeout.
func CallContext(parent context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return context.WithTimeout(parent, timeout)
}

// MapErr converts context deadline errors from engine calls into the
// recoverable media-timeout error; everything else passes through.
func MapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.ErrMediaTimeout
	}
	return err
}

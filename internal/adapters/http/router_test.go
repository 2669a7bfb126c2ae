package http_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	httpadapter "github.com/inkbytefo/oxis-xcord-sub000/internal/adapters/http"
	"github.com/inkbytefo/oxis-xcord-sub000/internal/adapters/signal"
	"github.com/inkbytefo/oxis-xcord-sub000/internal/app"
	"github.com/inkbytefo/oxis-xcord-sub000/internal/auth"
	"github.com/inkbytefo/oxis-xcord-sub000/internal/config"
	"github.com/inkbytefo/oxis-xcord-sub000/internal/domain"
	"github.com/inkbytefo/oxis-xcord-sub000/internal/media"
	"github.com/inkbytefo/oxis-xcord-sub000/internal/testsupport/enginestub"
)

func newServer(t *testing.T) (*httptest.Server, *enginestub.Engine) {
	t.Helper()
	engine := enginestub.New()
	pool, err := media.NewPool(context.Background(), engine, media.PoolOptions{
		Size:      1,
		Grace:     time.Minute,
		Terminate: func() {},
	})
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	orch := &app.Orchestrator{
		Registry: app.NewRegistry(),
		Rooms:    app.NewRoomManager(pool, app.RoomManagerOptions{CallTimeout: time.Second}),
	}
	verifier := auth.VerifierFunc(func(context.Context, string) (*auth.Identity, error) {
		return nil, domain.ErrAuthenticationFailed
	})
	ctl := signal.NewController(orch, verifier, signal.NewRateLimiter(nil, signal.Budget{}, signal.Budget{}, nil))

	cfg := &config.Config{Mode: "test", Secret: "test-secret"}
	r := httpadapter.SetupRouter(context.Background(), cfg, httpadapter.Deps{
		Orch:       orch,
		Pool:       pool,
		Controller: ctl,
	})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, engine
}

func TestHealthEndpoint(t *testing.T) {
	srv, engine := newServer(t)

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// A dead worker degrades the report.
	engine.Workers()[0].Kill()
	require.Eventually(t, func() bool {
		resp, err := http.Get(srv.URL + "/health")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		return resp.StatusCode == http.StatusServiceUnavailable
	}, 2*time.Second, 20*time.Millisecond)
}

func TestRoomsEndpoint(t *testing.T) {
	srv, _ := newServer(t)

	resp, err := http.Get(srv.URL + "/rooms")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, resp.Header.Get("Content-Type"), "application/json")
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _ := newServer(t)

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestSignalRequiresAuth(t *testing.T) {
	srv, _ := newServer(t)

	resp, err := http.Get(srv.URL + "/ws/signal")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

package metrics

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCollectorsRegisterAndServe(t *testing.T) {
	m := New()
	m.RoomsActive.Add(2)
	m.PeersConnected.Add(5)
	m.RateLimited.WithLabelValues("join").Inc()
	m.WorkerDeaths.Inc()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), "voice_rooms_active 2")
	require.Contains(t, string(body), "voice_peers_connected 5")
	require.Contains(t, string(body), `voice_rate_limited_total{class="join"} 1`)
	require.Contains(t, string(body), "voice_worker_deaths_total 1")
}

func TestSeparateRegistries(t *testing.T) {
	// Two instances must not collide the way default-registry metrics do.
	a := New()
	b := New()
	a.WorkerDeaths.Inc()

	rec := httptest.NewRecorder()
	b.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	require.Contains(t, string(body), "voice_worker_deaths_total 0")
}

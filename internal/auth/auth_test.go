package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/inkbytefo/oxis-xcord-sub000/internal/domain"
)

func identityServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/verify", r.URL.Path)
		switch r.Header.Get("Authorization") {
		case "Bearer good-token":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"id":"u1","username":"alice","roles":["speaker"]}`))
		case "Bearer empty-id":
			_, _ = w.Write([]byte(`{"id":"","username":"nobody"}`))
		case "Bearer not-json":
			_, _ = w.Write([]byte(`<html>`))
		default:
			w.WriteHeader(http.StatusUnauthorized)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestHTTPVerifierAccepts(t *testing.T) {
	srv := identityServer(t)
	v := NewHTTPVerifier(srv.URL, time.Second)

	id, err := v.Verify(context.Background(), "good-token")
	require.NoError(t, err)
	require.Equal(t, domain.UserID("u1"), id.ID)
	require.Equal(t, "alice", id.Username)
	require.Equal(t, []string{"speaker"}, id.Roles)
}

func TestHTTPVerifierRejects(t *testing.T) {
	srv := identityServer(t)
	v := NewHTTPVerifier(srv.URL, time.Second)
	ctx := context.Background()

	for _, token := range []string{"", "bad-token", "empty-id", "not-json"} {
		_, err := v.Verify(ctx, token)
		require.ErrorIs(t, err, domain.ErrAuthenticationFailed, "token %q", token)
	}
}

func TestHTTPVerifierServiceDown(t *testing.T) {
	srv := identityServer(t)
	srv.Close()
	v := NewHTTPVerifier(srv.URL, 100*time.Millisecond)

	_, err := v.Verify(context.Background(), "good-token")
	require.Error(t, err)
	// A transport failure is not an auth rejection.
	require.NotErrorIs(t, err, domain.ErrAuthenticationFailed)
}

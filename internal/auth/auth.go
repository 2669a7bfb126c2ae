// Package auth delegates bearer-token verification to the external
// identity service. Any rejection maps to domain.ErrAuthenticationFailed;
// the gateway closes the connection without retrying.
package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/inkbytefo/oxis-xcord-sub000/internal/domain"
)

type Identity struct {
	ID       domain.UserID `json:"id"`
	Username string        `json:"username"`
	Roles    []string      `json:"roles"`
}

type Verifier interface {
	Verify(ctx context.Context, token string) (*Identity, error)
}

// VerifierFunc adapts a function to the Verifier interface.
type VerifierFunc func(ctx context.Context, token string) (*Identity, error)

func (f VerifierFunc) Verify(ctx context.Context, token string) (*Identity, error) {
	return f(ctx, token)
}

// HTTPVerifier asks the identity service to validate a token.
// GET {base}/verify with the token as a bearer header; 200 returns the
// identity document, anything else is a rejection.
type HTTPVerifier struct {
	base   string
	client *http.Client
}

func NewHTTPVerifier(baseURL string, timeout time.Duration) *HTTPVerifier {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &HTTPVerifier{
		base:   baseURL,
		client: &http.Client{Timeout: timeout},
	}
}

func (v *HTTPVerifier) Verify(ctx context.Context, token string) (*Identity, error) {
	if token == "" {
		return nil, domain.ErrAuthenticationFailed
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.base+"/verify", nil)
	if err != nil {
		return nil, fmt.Errorf("auth request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := v.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("auth service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", domain.ErrAuthenticationFailed, resp.StatusCode)
	}

	var id Identity
	if err := json.NewDecoder(resp.Body).Decode(&id); err != nil {
		return nil, fmt.Errorf("%w: bad identity document: %v", domain.ErrAuthenticationFailed, err)
	}
	if id.ID == "" {
		return nil, fmt.Errorf("%w: empty user id", domain.ErrAuthenticationFailed)
	}
	return &id, nil
}

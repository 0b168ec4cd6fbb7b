package client

import (
	"context"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// TokenSource supplies the bearer token attached to API requests.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a fixed bearer token.
type StaticToken string

func (s StaticToken) Token(context.Context) (string, error) {
	return string(s), nil
}

// RefreshingSource caches a fetched token and refreshes it shortly before
// the expiry encoded in its claims. The token is not validated here;
// validation is the server's job, the client only needs the exp claim.
type RefreshingSource struct {
	fetch func(ctx context.Context) (string, error)

	mu      sync.Mutex
	token   string
	expires time.Time
}

// NewRefreshingSource wraps a token fetch function.
func NewRefreshingSource(fetch func(ctx context.Context) (string, error)) *RefreshingSource {
	if fetch == nil {
		panic("client.NewRefreshingSource: fetch func is required")
	}
	return &RefreshingSource{fetch: fetch}
}

func (r *RefreshingSource) Token(ctx context.Context) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Refresh a minute early so a token never expires mid-request.
	if r.token != "" && time.Now().Add(time.Minute).Before(r.expires) {
		return r.token, nil
	}

	token, err := r.fetch(ctx)
	if err != nil {
		return "", err
	}
	r.token = token
	r.expires = tokenExpiry(token)
	return token, nil
}

func tokenExpiry(token string) time.Time {
	claims := jwt.MapClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return time.Now().Add(5 * time.Minute)
	}
	exp, ok := claims["exp"].(float64)
	if !ok {
		return time.Now().Add(5 * time.Minute)
	}
	return time.Unix(int64(exp), 0)
}

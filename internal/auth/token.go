// Package auth handles join tokens: fetching them by room code
// through the bridge, inspecting their claims without a verification
// key, and caching them until shortly before expiry.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"roomlink/pkg/cache"
)

var ErrTokenExpired = errors.New("auth token expired")

// TokenInfo is what a join token claims about itself. Tokens are
// issued by the conferencing backend; the SDK only reads them, so no
// signature verification happens here.
type TokenInfo struct {
	Room      string
	Subject   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Inspect decodes a token's claims without verifying the signature.
func Inspect(token string) (*TokenInfo, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	info := &TokenInfo{}
	if v, ok := claims["room"].(string); ok {
		info.Room = v
	}
	if sub, err := claims.GetSubject(); err == nil {
		info.Subject = sub
	}
	if iat, err := claims.GetIssuedAt(); err == nil && iat != nil {
		info.IssuedAt = iat.Time
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		info.ExpiresAt = exp.Time
	}
	return info, nil
}

// Validate checks a token's expiry claim against the current time.
func Validate(token string, now time.Time) error {
	info, err := Inspect(token)
	if err != nil {
		return err
	}
	if !info.ExpiresAt.IsZero() && now.After(info.ExpiresAt) {
		return ErrTokenExpired
	}
	return nil
}

// Fetcher exchanges a room code for a token. The session facade
// satisfies this through its getAuthTokenByRoomCode command.
type Fetcher interface {
	AuthTokenByRoomCode(ctx context.Context, roomCode, userID, endpoint string) (string, error)
}

// TokenProvider caches fetched tokens per room code and user until
// shortly before they expire.
type TokenProvider struct {
	fetcher Fetcher
	cache   *cache.Cache
	now     func() time.Time

	// margin subtracted from the expiry when deciding the cache TTL,
	// so a cached token is never handed out about to lapse
	margin time.Duration
}

func NewTokenProvider(fetcher Fetcher, defaultTTL time.Duration) *TokenProvider {
	return &TokenProvider{
		fetcher: fetcher,
		cache:   cache.NewCache(defaultTTL),
		now:     time.Now,
		margin:  time.Minute,
	}
}

// Token returns a cached non-expired token for the room code, fetching
// a fresh one when needed.
func (p *TokenProvider) Token(ctx context.Context, roomCode, userID string) (string, error) {
	key := roomCode + ":" + userID
	if v, ok := p.cache.Get(key); ok {
		token := v.(string)
		if Validate(token, p.now()) == nil {
			return token, nil
		}
		p.cache.Delete(key)
	}

	token, err := p.fetcher.AuthTokenByRoomCode(ctx, roomCode, userID, "")
	if err != nil {
		return "", fmt.Errorf("fetch token for room %q: %w", roomCode, err)
	}

	if info, err := Inspect(token); err == nil && !info.ExpiresAt.IsZero() {
		ttl := info.ExpiresAt.Sub(p.now()) - p.margin
		if ttl > 0 {
			p.cache.SetWithTTL(key, token, ttl)
		}
	} else {
		p.cache.Set(key, token)
	}
	return token, nil
}

// Close stops the cache's cleanup goroutine.
func (p *TokenProvider) Close() {
	p.cache.Stop()
}

package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
)

// Bot is an authenticated caller identity. Each integration bot owns one API
// key and posts into one destination stream.
type Bot struct {
	Name   string
	APIKey string
	Stream string
}

type botKey struct{}

// WithBot attaches the authenticated bot to the request context.
func WithBot(ctx context.Context, b Bot) context.Context {
	return context.WithValue(ctx, botKey{}, b)
}

// BotFromContext returns the authenticated bot, if any.
func BotFromContext(ctx context.Context) (Bot, bool) {
	b, ok := ctx.Value(botKey{}).(Bot)
	return b, ok
}

// ExtractAPIKey pulls the caller's API key from the request. The key may be
// supplied as an api_key query parameter (webhook URL convention) or as an
// Authorization: Bearer header.
func ExtractAPIKey(r *http.Request) (string, error) {
	if key := strings.TrimSpace(r.URL.Query().Get("api_key")); key != "" {
		return key, nil
	}

	auth := r.Header.Get("Authorization")
	if auth == "" {
		return "", errors.New("missing api_key parameter or Authorization header")
	}

	const prefix = "Bearer "
	if !strings.HasPrefix(auth, prefix) {
		return "", errors.New("invalid Authorization header format")
	}

	key := strings.TrimSpace(strings.TrimPrefix(auth, prefix))
	if key == "" {
		return "", errors.New("missing API key")
	}
	return key, nil
}

func constantTimeEqual(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// Registry resolves API keys to bots.
type Registry struct {
	bots []Bot
}

// NewRegistry builds a registry from configured bots.
func NewRegistry(bots []Bot) *Registry {
	return &Registry{bots: bots}
}

// Authenticate matches a presented API key against every configured bot.
// Comparison is constant-time per bot to avoid leaking key material through
// timing.
func (r *Registry) Authenticate(presented string) (Bot, bool) {
	for _, b := range r.bots {
		if constantTimeEqual(presented, b.APIKey) {
			return b, true
		}
	}
	return Bot{}, false
}

// Len reports how many bots are registered.
func (r *Registry) Len() int {
	return len(r.bots)
}

package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/krishanu7/battleship-engine/internal/apperr"
	"github.com/krishanu7/battleship-engine/pkg/httpx"
	"github.com/krishanu7/battleship-engine/pkg/log"
)

type contextKey int

const playerIDKey contextKey = iota

var ErrUnauthenticated = apperr.New(apperr.ErrUnauthenticated, "missing or invalid credentials")

func WithPlayerID(ctx context.Context, playerID string) context.Context {
	return context.WithValue(ctx, playerIDKey, playerID)
}

func PlayerIDFromContext(ctx context.Context) (string, bool) {
	playerID, ok := ctx.Value(playerIDKey).(string)
	return playerID, ok && playerID != ""
}

// Middleware resolves the bearer token to a player id in the request context.
func Middleware(tokens *Tokens) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			bearerToken, err := parseBearerToken(r)
			if err != nil {
				unauthorized(w, err)
				return
			}
			playerID, err := tokens.Parse(bearerToken)
			if err != nil {
				log.Debug("Rejected token: %v", err)
				unauthorized(w, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithPlayerID(r.Context(), playerID)))
		})
	}
}

func unauthorized(w http.ResponseWriter, err error) {
	httpx.WriteError(w, apperr.Wrap(apperr.ErrUnauthenticated, err, ErrUnauthenticated.Message))
}

func parseBearerToken(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", fmt.Errorf("authorization header is missing")
	}
	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return "", fmt.Errorf("invalid Authorization header format")
	}
	return parts[1], nil
}

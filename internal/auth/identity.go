// Package auth resolves the session user. The identity is a read-only fact:
// resolved once at startup and immutable for the session's lifetime.
package auth

import (
	"context"
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/minjae-lab/collabchat/internal/chat"
)

// Claims are the identity claims the collaboration backend puts into its
// access tokens.
type Claims struct {
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// UserFetcher resolves the current user from the backend, used when no access
// token is configured.
type UserFetcher interface {
	CurrentUser(ctx context.Context) (chat.Identity, error)
}

// Resolve determines the session user. A configured access token is decoded
// locally; the signature is the server's business, the client only needs the
// identity claims. Without a token the backend is asked directly.
func Resolve(ctx context.Context, token string, fetcher UserFetcher) (chat.Identity, error) {
	if token != "" {
		if id, err := FromToken(token); err == nil {
			return id, nil
		}
	}

	if fetcher == nil {
		return chat.Identity{}, fmt.Errorf("no usable token and no user endpoint")
	}

	id, err := fetcher.CurrentUser(ctx)
	if err != nil {
		return chat.Identity{}, fmt.Errorf("resolve current user: %w", err)
	}
	return id, nil
}

// FromToken extracts the identity claims from a JWT access token without
// verifying the signature.
func FromToken(token string) (chat.Identity, error) {
	var claims Claims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return chat.Identity{}, fmt.Errorf("parse token: %w", err)
	}
	if claims.UserID == 0 {
		return chat.Identity{}, fmt.Errorf("token carries no user id")
	}
	return chat.Identity{UserID: claims.UserID, Name: claims.Username}, nil
}

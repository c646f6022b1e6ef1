package db

import (
	"context"
	"errors"
)

// AuthTokenKey is the key under which the bearer credential is stored.
const AuthTokenKey = "authToken"

// ErrStoreUnavailable wraps every backend failure of a token store. It is
// recoverable: callers move on to the next credential source.
var ErrStoreUnavailable = errors.New("token store unavailable")

// TokenStore is a small durable key-value store shared by the foreground
// app and the background worker. Get returns "" for an absent key.
type TokenStore interface {
	Put(ctx context.Context, key, value string) error
	Get(ctx context.Context, key string) (string, error)
	Remove(ctx context.Context, key string) error
}

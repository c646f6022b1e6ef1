package db

import (
	"context"
	"errors"

	log "github.com/sirupsen/logrus"
)

// Fallback reads and writes through Primary and moves to Secondary whenever
// Primary is unavailable. An absent key in Primary is not a failure.
type Fallback struct {
	Primary   TokenStore
	Secondary TokenStore
	Logger    log.FieldLogger
}

func (f *Fallback) logger() log.FieldLogger {
	if f.Logger == nil {
		return log.StandardLogger()
	}
	return f.Logger
}

func (f *Fallback) Put(ctx context.Context, key, value string) error {
	err := f.Primary.Put(ctx, key, value)
	if err == nil {
		return nil
	}
	f.logger().WithError(err).WithField("key", key).Warn("Primary token store write failed, using secondary")
	return f.Secondary.Put(ctx, key, value)
}

func (f *Fallback) Get(ctx context.Context, key string) (string, error) {
	value, err := f.Primary.Get(ctx, key)
	if err == nil {
		return value, nil
	}
	f.logger().WithError(err).WithField("key", key).Warn("Primary token store read failed, using secondary")
	return f.Secondary.Get(ctx, key)
}

// Remove clears key from both stores. It fails only if both do.
func (f *Fallback) Remove(ctx context.Context, key string) error {
	errPrimary := f.Primary.Remove(ctx, key)
	errSecondary := f.Secondary.Remove(ctx, key)
	if errPrimary != nil && errSecondary != nil {
		return errors.Join(errPrimary, errSecondary)
	}
	return nil
}

package auth

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/ukydev/fleet-driver/internal/db"
	"github.com/ukydev/fleet-driver/internal/models"
)

// DriverLookup maps a user to their driver profile.
type DriverLookup interface {
	GetDriverByUserID(ctx context.Context, userID int64, token string) (*models.DriverResponse, error)
}

// Resolver derives the driver identity from the stored credential.
type Resolver struct {
	session db.TokenStore
	durable db.TokenStore
	lookup  DriverLookup
	logger  log.FieldLogger
	now     func() time.Time

	mu       sync.Mutex
	memoKey  string
	identity models.DriverIdentity
}

// NewResolver builds a resolver reading the session store first and the
// durable store second.
func NewResolver(session, durable db.TokenStore, lookup DriverLookup, logger log.FieldLogger) *Resolver {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Resolver{
		session: session,
		durable: durable,
		lookup:  lookup,
		logger:  logger.WithField("component", "identity"),
		now:     time.Now,
	}
}

// SetLookup wires the driver lookup after construction, for callers whose
// backend client itself takes the resolver as its credential source.
func (r *Resolver) SetLookup(lookup DriverLookup) {
	r.lookup = lookup
}

// Credential returns the current bearer credential, or "" when none is
// readable from either store.
func (r *Resolver) Credential(ctx context.Context) string {
	if r.session != nil {
		token, err := r.session.Get(ctx, db.AuthTokenKey)
		if err != nil {
			r.logger.WithError(err).Warn("Session credential unreadable")
		}
		if token != "" {
			return token
		}
	}
	if r.durable != nil {
		token, err := r.durable.Get(ctx, db.AuthTokenKey)
		if err != nil {
			r.logger.WithError(err).Warn("Stored credential unreadable")
			return ""
		}
		return token
	}
	return ""
}

// Token implements api.TokenSource.
func (r *Resolver) Token(ctx context.Context) (string, error) {
	return r.Credential(ctx), nil
}

// ResolveDriverID walks session credential, stored credential, decode and
// driver lookup, in that order. Any failed step ends the walk.
func (r *Resolver) ResolveDriverID(ctx context.Context) (int64, bool) {
	identity, ok := r.Identity(ctx)
	return identity.DriverID, ok
}

// Identity is ResolveDriverID with the user id attached.
func (r *Resolver) Identity(ctx context.Context) (models.DriverIdentity, bool) {
	token := r.Credential(ctx)
	if token == "" {
		r.logger.Debug("No credential available")
		return models.DriverIdentity{}, false
	}

	claims, err := DecodeCredential(token)
	if err != nil {
		r.logger.WithError(err).Warn("No user ID found in token")
		return models.DriverIdentity{}, false
	}
	// An identity lives only as long as its credential, memoized or not.
	if claims.Expired(r.now()) {
		r.logger.WithField("user_id", claims.UserID).Warn("Credential expired")
		r.forget()
		return models.DriverIdentity{}, false
	}

	r.mu.Lock()
	if r.memoKey == token {
		identity := r.identity
		r.mu.Unlock()
		return identity, true
	}
	r.mu.Unlock()
	if r.lookup == nil {
		return models.DriverIdentity{}, false
	}

	resp, err := r.lookup.GetDriverByUserID(ctx, claims.UserID, token)
	if err != nil {
		r.logger.WithError(err).WithField("user_id", claims.UserID).Error("Error getting current user driver ID")
		return models.DriverIdentity{}, false
	}
	if resp == nil || resp.Driver == nil || resp.Driver.ID == 0 {
		r.logger.WithField("user_id", claims.UserID).Warn("No driver linked to user")
		return models.DriverIdentity{}, false
	}

	identity := models.DriverIdentity{DriverID: resp.Driver.ID, UserID: claims.UserID}
	r.mu.Lock()
	r.memoKey = token
	r.identity = identity
	r.mu.Unlock()
	return identity, true
}

// Login stores a freshly issued credential in both stores. A durable store
// failure is logged; the session still holds the credential.
func (r *Resolver) Login(ctx context.Context, token string) error {
	if _, err := DecodeCredential(token); err != nil {
		return err
	}
	r.forget()
	if r.session != nil {
		if err := r.session.Put(ctx, db.AuthTokenKey, token); err != nil {
			return err
		}
	}
	if r.durable != nil {
		if err := r.durable.Put(ctx, db.AuthTokenKey, token); err != nil {
			r.logger.WithError(err).Warn("Failed to store auth token for background access")
		}
	}
	return nil
}

// Logout clears the credential from both stores.
func (r *Resolver) Logout(ctx context.Context) error {
	r.forget()
	var firstErr error
	for _, store := range []db.TokenStore{r.session, r.durable} {
		if store == nil {
			continue
		}
		if err := store.Remove(ctx, db.AuthTokenKey); err != nil {
			r.logger.WithError(err).Warn("Failed to remove auth token")
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (r *Resolver) forget() {
	r.mu.Lock()
	r.memoKey = ""
	r.identity = models.DriverIdentity{}
	r.mu.Unlock()
}

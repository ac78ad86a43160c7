// Package service implements the profile domain operations. Every mutation
// is one storage transaction that locks the user row first; reads go
// through the visibility check before anything about another user is
// returned.
package service

import (
	"context"
	"time"

	apperrors "github.com/rbrinkke/userprofile-api/internal/errors"
	"github.com/rbrinkke/userprofile-api/internal/logging"
	"github.com/rbrinkke/userprofile-api/internal/models"
	"github.com/rbrinkke/userprofile-api/internal/storage"
	"github.com/rbrinkke/userprofile-api/internal/validation"
)

// Engine is the single entry point for profile operations
type Engine struct {
	store  storage.Store
	logger *logging.Logger
	now    func() time.Time
}

// Option configures an Engine
type Option func(*Engine)

// WithClock replaces time.Now, mainly for tests
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// NewEngine creates an engine over store
func NewEngine(store storage.Store, logger *logging.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = logging.Nop()
	}
	e := &Engine{
		store:  store,
		logger: logger.WithField("component", "profile_engine"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) clock() time.Time {
	return e.now().UTC()
}

// inTx runs fn as one unit of work and classifies whatever it returns
func (e *Engine) inTx(ctx context.Context, op string, fn func(q storage.Querier) error) error {
	return apperrors.FromStorage(op, e.store.WithTx(ctx, fn))
}

// locked runs fn with userID's row locked for the rest of the transaction
func (e *Engine) locked(ctx context.Context, op, userID string, fn func(q storage.Querier, u *models.User) error) error {
	return e.inTx(ctx, op, func(q storage.Querier) error {
		u, err := q.GetUserForUpdate(ctx, userID)
		if err != nil {
			return err
		}
		return fn(q, u)
	})
}

// owned is locked for mutations made on the owner's behalf. An anonymized
// account refuses them all.
func (e *Engine) owned(ctx context.Context, op, userID string, fn func(q storage.Querier, u *models.User) error) error {
	return e.locked(ctx, op, userID, func(q storage.Querier, u *models.User) error {
		if IsTombstoned(u) {
			return accountDeleted(u)
		}
		return fn(q, u)
	})
}

// event logs a successful mutation
func (e *Engine) event(name, userID string, fields map[string]interface{}) {
	l := e.logger.WithField("event", name).WithField("user_id", userID)
	if len(fields) > 0 {
		l = l.WithFields(fields)
	}
	l.Info("profile mutation applied")
}

// rejected logs a refused state transition
func (e *Engine) rejected(name, userID string, err error) {
	e.logger.WithField("event", name).WithField("user_id", userID).WithError(err).Warn("transition rejected")
}

// canonical rewrites every id in place to its canonical UUID form
func canonical(ids ...*string) error {
	for _, id := range ids {
		c, err := validation.CanonicalUserID(*id)
		if err != nil {
			return err
		}
		*id = c
	}
	return nil
}

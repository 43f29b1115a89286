// Package auth owns the session lifecycle: resolution of a usable session
// from durable storage (with transparent refresh and self-healing deletion),
// and the device-code login flow that produces one.
package auth

import (
	"context"
	"sync"
	"time"

	"github.com/jrsteele09/go-realms-auth/identity"
	"github.com/jrsteele09/go-realms-auth/session"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// SessionManager orchestrates store, validity predicates and refresher to
// answer "do we have a usable session" and "give me one". The durable record
// is the source of truth: the manager never caches the session itself, only
// the derived UserInfo projection.
type SessionManager struct {
	store     session.Store
	refresher identity.Refresher
	log       zerolog.Logger
	nowTime   func() time.Time // nowTime function (injectable for testing)

	// resolveLock serializes the whole load→validate→refresh→persist region
	// so concurrent resolutions under a stale session trigger at most one
	// refresh and all callers observe the same result.
	resolveLock sync.Mutex

	cacheLock sync.Mutex
	userInfo  *session.UserInfo
}

// SessionManagerOption defines a function type to modify the SessionManager instance.
type SessionManagerOption func(*SessionManager)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) SessionManagerOption {
	return func(sm *SessionManager) {
		sm.nowTime = nowFunc
	}
}

// WithLogger sets the manager's logger.
func WithLogger(log zerolog.Logger) SessionManagerOption {
	return func(sm *SessionManager) {
		sm.log = log
	}
}

// NewSessionManager initializes a new SessionManager with required dependencies.
// Optional configuration can be provided via options (e.g., WithNowTime for testing).
func NewSessionManager(store session.Store, refresher identity.Refresher, options ...SessionManagerOption) (*SessionManager, error) {
	if store == nil {
		return nil, errors.New("[NewSessionManager] store is required")
	}
	if refresher == nil {
		return nil, errors.New("[NewSessionManager] refresher is required")
	}

	manager := &SessionManager{
		store:     store,
		refresher: refresher,
		log:       zerolog.Nop(),
		nowTime:   time.Now,
	}
	for _, opt := range options {
		opt(manager)
	}
	return manager, nil
}

// Resolve loads, validates and if necessary refreshes the stored session,
// returning (nil, nil) when no usable session can be produced. Storage and
// parse faults are absorbed here: callers see "no session", the fault goes
// to the log. A malformed or unusable record is deleted so the next call
// starts clean. The only error Resolve returns is context cancellation.
func (sm *SessionManager) Resolve(ctx context.Context) (*session.Session, error) {
	sm.resolveLock.Lock()
	defer sm.resolveLock.Unlock()
	return sm.resolveLocked(ctx)
}

func (sm *SessionManager) resolveLocked(ctx context.Context) (*session.Session, error) {
	sess, err := sm.store.Load(ctx)
	if err != nil {
		sm.log.Warn().Err(err).Msg("session load failed")
		if errors.Is(err, session.ParseFaultErr) {
			sm.deleteRecord(ctx)
		}
		sm.invalidateUserInfo()
		return nil, nil
	}
	if sess == nil {
		return nil, nil
	}

	if !sess.IsUsable() {
		sm.log.Warn().Msg("stored session lacks the service access grant, discarding")
		sm.deleteRecord(ctx)
		sm.invalidateUserInfo()
		return nil, nil
	}

	if !sess.IsStale(sm.nowTime()) {
		return sess, nil
	}

	fresh, err := sm.refresher.Refresh(ctx, sess)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		sm.log.Warn().Err(err).Msg("session refresh failed, discarding stale record")
		sm.deleteRecord(ctx)
		sm.invalidateUserInfo()
		return nil, nil
	}
	if !fresh.IsUsable() {
		sm.log.Warn().Msg("refreshed session lacks the service access grant, discarding")
		sm.deleteRecord(ctx)
		sm.invalidateUserInfo()
		return nil, nil
	}

	if err := sm.store.Save(ctx, fresh); err != nil {
		// The refreshed session is still good for this caller even if it
		// could not be saved; the next resolution will refresh again.
		sm.log.Warn().Err(err).Msg("persisting refreshed session failed")
	}
	sm.invalidateUserInfo()
	return fresh, nil
}

// HasValidSession reports whether a usable, non-stale session is available,
// refreshing along the way if needed.
func (sm *SessionManager) HasValidSession(ctx context.Context) bool {
	sess, err := sm.Resolve(ctx)
	return err == nil && sess != nil
}

// UserInfo returns the cached projection of the current session, deriving and
// caching it from a fresh resolution when empty. (nil, nil) means no session.
func (sm *SessionManager) UserInfo(ctx context.Context) (*session.UserInfo, error) {
	sm.cacheLock.Lock()
	if sm.userInfo != nil {
		info := *sm.userInfo
		sm.cacheLock.Unlock()
		return &info, nil
	}
	sm.cacheLock.Unlock()

	sess, err := sm.Resolve(ctx)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, nil
	}

	info := sess.UserInfo()
	sm.cacheLock.Lock()
	sm.userInfo = &info
	sm.cacheLock.Unlock()
	return &info, nil
}

// Clear deletes the persisted session and drops the UserInfo cache. It is
// idempotent; a delete failure is logged, not propagated.
func (sm *SessionManager) Clear(ctx context.Context) error {
	sm.resolveLock.Lock()
	defer sm.resolveLock.Unlock()

	sm.invalidateUserInfo()
	sm.deleteRecord(ctx)
	return nil
}

// Persist writes the session through to the store. Unlike resolution-internal
// writes, faults here propagate: a login that cannot be saved must fail.
func (sm *SessionManager) Persist(ctx context.Context, sess *session.Session) error {
	sm.resolveLock.Lock()
	defer sm.resolveLock.Unlock()

	if err := sm.store.Save(ctx, sess); err != nil {
		return errors.Wrap(err, "[SessionManager.Persist] store.Save")
	}
	sm.invalidateUserInfo()
	return nil
}

func (sm *SessionManager) deleteRecord(ctx context.Context) {
	if err := sm.store.Delete(ctx); err != nil {
		sm.log.Warn().Err(err).Msg("session delete failed")
	}
}

func (sm *SessionManager) invalidateUserInfo() {
	sm.cacheLock.Lock()
	sm.userInfo = nil
	sm.cacheLock.Unlock()
}

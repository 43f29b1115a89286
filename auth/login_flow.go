package auth

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-realms-auth/identity"
	"github.com/jrsteele09/go-realms-auth/session"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// AttemptState is the position of a login attempt in its state machine.
// Terminal states are absorbing; an attempt reaches exactly one of them.
type AttemptState int32

const (
	StateIdle AttemptState = iota
	StateAwaitingVerification
	StateExchanging
	StateSucceeded
	StateFailed
	StateCancelled
)

// Terminal reports whether the state is absorbing.
func (s AttemptState) Terminal() bool {
	return s == StateSucceeded || s == StateFailed || s == StateCancelled
}

func (s AttemptState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingVerification:
		return "awaiting-verification"
	case StateExchanging:
		return "exchanging"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	case StateCancelled:
		return "cancelled"
	}
	return "unknown"
}

// Callbacks carries the caller's notification hooks for one login attempt.
// OnChallenge is always invoked before any terminal notification; a cancelled
// attempt may invoke nothing at all. All hooks are optional.
type Callbacks struct {
	OnChallenge func(identity.Challenge)
	OnSuccess   func(*session.Session)
	OnError     func(error)
}

// LoginFlow drives the device-code acquisition end-to-end: request a code,
// surface it to the caller, await user completion, validate the result, and
// hand the session to the manager for persistence.
type LoginFlow struct {
	provider identity.Provider
	manager  *SessionManager
	log      zerolog.Logger
}

// LoginFlowOption defines a function type to modify the LoginFlow instance.
type LoginFlowOption func(*LoginFlow)

// WithFlowLogger sets the flow's logger.
func WithFlowLogger(log zerolog.Logger) LoginFlowOption {
	return func(lf *LoginFlow) {
		lf.log = log
	}
}

// NewLoginFlow initializes a new LoginFlow with required dependencies.
func NewLoginFlow(provider identity.Provider, manager *SessionManager, options ...LoginFlowOption) (*LoginFlow, error) {
	if provider == nil {
		return nil, errors.New("[NewLoginFlow] provider is required")
	}
	if manager == nil {
		return nil, errors.New("[NewLoginFlow] manager is required")
	}

	flow := &LoginFlow{
		provider: provider,
		manager:  manager,
		log:      zerolog.Nop(),
	}
	for _, opt := range options {
		opt(flow)
	}
	return flow, nil
}

// Attempt is one in-flight login. Cancellation is cooperative: Cancel wins
// any race against a not-yet-delivered terminal notification by taking the
// terminal slot first, and interrupts the provider exchange via context.
type Attempt struct {
	id     string
	state  atomic.Int32
	cancel context.CancelFunc
	done   chan struct{}

	errLock sync.Mutex
	err     error
}

// ID identifies the attempt in logs.
func (a *Attempt) ID() string {
	return a.id
}

// State returns the attempt's current state.
func (a *Attempt) State() AttemptState {
	return AttemptState(a.state.Load())
}

// Done is closed when the attempt's background work has finished.
func (a *Attempt) Done() <-chan struct{} {
	return a.done
}

// Err returns the terminal error: the failure cause, LoginCancelledErr after
// cancellation, or nil while running or after success.
func (a *Attempt) Err() error {
	a.errLock.Lock()
	defer a.errLock.Unlock()
	return a.err
}

// Cancel moves the attempt to Cancelled if no terminal state was reached yet
// and interrupts the underlying exchange. It may be called at any time and
// suppresses any subsequent success or failure notification.
func (a *Attempt) Cancel() {
	if a.finish(StateCancelled) {
		a.setErr(LoginCancelledErr)
	}
	a.cancel()
}

// advance moves between non-terminal states; it fails when cancellation has
// already taken the terminal slot.
func (a *Attempt) advance(from, to AttemptState) bool {
	return a.state.CompareAndSwap(int32(from), int32(to))
}

// finish claims the single terminal slot for state to. Exactly one caller
// ever wins, everyone else becomes a no-op.
func (a *Attempt) finish(to AttemptState) bool {
	for {
		current := AttemptState(a.state.Load())
		if current.Terminal() {
			return false
		}
		if a.state.CompareAndSwap(int32(current), int32(to)) {
			return true
		}
	}
}

func (a *Attempt) setErr(err error) {
	a.errLock.Lock()
	a.err = err
	a.errLock.Unlock()
}

// Start launches a login attempt in the background and returns its handle.
// Intended usage is single-flight: at most one active attempt per manager.
func (lf *LoginFlow) Start(callbacks Callbacks) *Attempt {
	ctx, cancel := context.WithCancel(context.Background())
	attempt := &Attempt{
		id:     uuid.New().String(),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go lf.run(ctx, attempt, callbacks)
	return attempt
}

func (lf *LoginFlow) run(ctx context.Context, attempt *Attempt, callbacks Callbacks) {
	defer close(attempt.done)
	defer attempt.cancel()

	log := lf.log.With().Str("attemptID", attempt.id).Logger()

	challenge, err := lf.provider.RequestDeviceCode(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		lf.fail(attempt, callbacks, log, errors.Wrap(err, "[LoginFlow] RequestDeviceCode"))
		return
	}
	if !attempt.advance(StateIdle, StateAwaitingVerification) {
		return
	}
	log.Debug().Str("userCode", challenge.UserCode).Msg("device code issued")
	if callbacks.OnChallenge != nil {
		callbacks.OnChallenge(*challenge)
	}
	if !attempt.advance(StateAwaitingVerification, StateExchanging) {
		return
	}

	sess, err := lf.provider.AwaitAuthorization(ctx, challenge)
	if err != nil {
		if ctx.Err() != nil || errors.Is(err, context.Canceled) {
			return
		}
		lf.fail(attempt, callbacks, log, errors.Wrap(err, "[LoginFlow] AwaitAuthorization"))
		return
	}

	// Provider-level success is not enough: without the service access
	// grant the session is dead weight, so the attempt fails.
	if !sess.IsUsable() {
		lf.fail(attempt, callbacks, log, errors.Wrap(NotUsableErr, "[LoginFlow] provider completed"))
		return
	}

	// Persist before reporting success, so a caller observing Succeeded can
	// rely on the durable copy being in place.
	if err := lf.manager.Persist(ctx, sess); err != nil {
		lf.fail(attempt, callbacks, log, errors.Wrap(err, "[LoginFlow] persist"))
		return
	}

	if attempt.finish(StateSucceeded) {
		log.Info().Msg("login succeeded")
		if callbacks.OnSuccess != nil {
			callbacks.OnSuccess(sess)
		}
	}
}

func (lf *LoginFlow) fail(attempt *Attempt, callbacks Callbacks, log zerolog.Logger, err error) {
	if !attempt.finish(StateFailed) {
		return
	}
	attempt.setErr(err)
	log.Warn().Err(err).Msg("login failed")
	if callbacks.OnError != nil {
		callbacks.OnError(err)
	}
}

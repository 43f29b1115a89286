package identityfakes

import (
	"context"
	"sync"

	"github.com/jrsteele09/go-realms-auth/identity"
	"github.com/jrsteele09/go-realms-auth/session"
)

var _ identity.Provider = (*FakeProvider)(nil)

// FakeProvider is a scripted identity.Provider. Tests set the result fields
// up front; AwaitAuthorization optionally blocks on Gate so cancellation can
// be exercised deterministically.
type FakeProvider struct {
	lock sync.Mutex

	Challenge    *identity.Challenge
	ChallengeErr error

	AwaitSession *session.Session
	AwaitErr     error
	// Gate, when non-nil, holds AwaitAuthorization until it is closed or the
	// context is cancelled.
	Gate chan struct{}

	RefreshSession *session.Session
	RefreshErr     error

	DeviceCodeCalls int
	AwaitCalls      int
	RefreshCalls    int
}

func NewFakeProvider() *FakeProvider {
	return &FakeProvider{}
}

func (fp *FakeProvider) RequestDeviceCode(_ context.Context) (*identity.Challenge, error) {
	fp.lock.Lock()
	defer fp.lock.Unlock()

	fp.DeviceCodeCalls++
	if fp.ChallengeErr != nil {
		return nil, fp.ChallengeErr
	}
	if fp.Challenge != nil {
		return fp.Challenge, nil
	}
	return &identity.Challenge{
		UserCode:        "ABCD-1234",
		VerificationURI: "https://login.example.com/device",
	}, nil
}

func (fp *FakeProvider) AwaitAuthorization(ctx context.Context, _ *identity.Challenge) (*session.Session, error) {
	fp.lock.Lock()
	fp.AwaitCalls++
	gate := fp.Gate
	sess, err := fp.AwaitSession, fp.AwaitErr
	fp.lock.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	return sess, err
}

func (fp *FakeProvider) Refresh(ctx context.Context, _ *session.Session) (*session.Session, error) {
	fp.lock.Lock()
	defer fp.lock.Unlock()

	fp.RefreshCalls++
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if fp.RefreshErr != nil {
		return nil, fp.RefreshErr
	}
	return fp.RefreshSession, nil
}

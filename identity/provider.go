// Package identity wraps the external identity provider: the device-code
// grant that produces a session, and the refresh exchange that renews one.
// The rest of the module treats both as opaque capabilities.
package identity

import (
	"context"
	"time"

	"github.com/jrsteele09/go-realms-auth/session"
	"golang.org/x/oauth2"
)

// Challenge is the ephemeral device-code challenge surfaced to the user: a
// short code to type in at the verification URL. It lives for one login
// attempt and is discarded when the attempt concludes.
type Challenge struct {
	UserCode                string
	VerificationURI         string
	VerificationURIComplete string
	ExpiresAt               time.Time
	Interval                time.Duration

	deviceAuth *oauth2.DeviceAuthResponse
}

// Provider is the identity-provider collaborator.
type Provider interface {
	// RequestDeviceCode starts a device-code grant and returns the
	// user-facing challenge.
	RequestDeviceCode(ctx context.Context) (*Challenge, error)

	// AwaitAuthorization polls the provider until the user completes the
	// challenge, then assembles a full session from the result. It blocks
	// until completion, ctx cancellation, or challenge expiry.
	AwaitAuthorization(ctx context.Context, challenge *Challenge) (*session.Session, error)

	Refresher
}

// Refresher is the narrow slice of Provider that session resolution needs.
type Refresher interface {
	// Refresh exchanges a stale session for a renewed one. It does not
	// persist; the caller owns persistence. Failures wrap RefreshFaultErr.
	Refresh(ctx context.Context, old *session.Session) (*session.Session, error)
}

package session

import (
	"encoding/json"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
)

// CurrentSchemaVersion is the record version written by this build. Records
// carrying an older version are treated as stale and refreshed before use.
const CurrentSchemaVersion = 2

// Session is the persisted credential bundle granting access to the gated
// realms service. It is replaced as a whole value on refresh or re-login and
// never mutated field-by-field; the durable copy held by a Store is the source
// of truth across process restarts.
type Session struct {
	SchemaVersion int            `json:"schemaVersion"`         // Record format version (see CurrentSchemaVersion)
	IssuedAt      time.Time      `json:"issuedAt"`              // When the identity provider issued this bundle
	ExpiresAt     time.Time      `json:"expiresAt,omitempty"`   // When the bundle should be renewed; zero means "read the token"
	Identity      *IdentityChain `json:"identity,omitempty"`    // Provider-level identity and refresh material
	ServiceToken  *ServiceToken  `json:"serviceToken,omitempty"` // The grant required by the gated service
}

// IdentityChain holds the provider-level credentials the session was built
// from. The core never interprets these beyond what UserInfo needs; they are
// carried verbatim so the refresh exchange can replay them.
type IdentityChain struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken,omitempty"`
	TokenType    string `json:"tokenType,omitempty"`
	UserID       string `json:"userId,omitempty"`
	Username     string `json:"username,omitempty"`
}

// ServiceToken is the access grant required by the gated service. A session
// without one is never usable, regardless of expiry.
type ServiceToken struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt,omitempty"`
}

// UserInfo is the cacheable projection of a Session that callers display.
// It is always derived, never persisted on its own.
type UserInfo struct {
	Name             string
	ID               string
	HasServiceAccess bool
}

// IsUsable reports whether the session carries the service access grant.
func (s *Session) IsUsable() bool {
	return s != nil && s.ServiceToken != nil && s.ServiceToken.Token != ""
}

// IsStale reports whether the session should be refreshed before use: its
// expiry has passed, its record format predates CurrentSchemaVersion, or its
// service token has expired. A session with no determinable expiry is treated
// as stale so it gets refreshed rather than trusted.
func (s *Session) IsStale(now time.Time) bool {
	if s == nil {
		return true
	}
	if s.SchemaVersion < CurrentSchemaVersion {
		return true
	}
	if !s.ExpiresAt.IsZero() {
		return !now.Before(s.ExpiresAt)
	}
	if s.ServiceToken != nil {
		if !s.ServiceToken.ExpiresAt.IsZero() {
			return !now.Before(s.ServiceToken.ExpiresAt)
		}
		if exp, ok := tokenExpiry(s.ServiceToken.Token); ok {
			return !now.Before(exp)
		}
	}
	return true
}

// UserInfo derives the display projection of the session.
func (s *Session) UserInfo() UserInfo {
	info := UserInfo{HasServiceAccess: s.IsUsable()}
	if s != nil && s.Identity != nil {
		info.Name = s.Identity.Username
		info.ID = s.Identity.UserID
	}
	return info
}

// Encode serializes the session to its durable record form.
func Encode(s *Session) ([]byte, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, errors.Wrap(err, "[session.Encode] json.Marshal")
	}
	return data, nil
}

// Decode parses a durable record back into a Session. A malformed record is
// reported as a ParseFaultErr; callers treat that the same as "no session".
func Decode(data []byte) (*Session, error) {
	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, errors.Wrap(ParseFaultErr, err.Error())
	}
	return &s, nil
}

// tokenExpiry reads the exp claim out of a JWT-shaped service token without
// verifying its signature. Verification belongs to the service, not to us;
// we only need the timestamp.
func tokenExpiry(raw string) (time.Time, bool) {
	tok, _, err := jwt.NewParser().ParseUnverified(raw, jwt.MapClaims{})
	if err != nil {
		return time.Time{}, false
	}
	exp, err := tok.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}

package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/jrsteele09/go-realms-auth/session"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
)

const serviceExchangeTimeout = 30 * time.Second

// ProviderSettings configures an OAuthProvider. Either IssuerURL (OIDC
// discovery) or the explicit endpoint URLs must be supplied.
type ProviderSettings struct {
	ClientID  string
	Scopes    []string
	IssuerURL string

	// Explicit endpoints, used when IssuerURL is empty.
	DeviceAuthURL string
	TokenURL      string

	// ServiceAuthURL is where the provider-level access token is exchanged
	// for the gated-service token.
	ServiceAuthURL string
}

// OAuthProvider implements Provider on top of the standard OAuth2 device
// grant, with optional OIDC discovery and ID-token claims for the user's
// identity.
type OAuthProvider struct {
	oauth          oauth2.Config
	verifier       *oidc.IDTokenVerifier
	serviceAuthURL string
	httpClient     *http.Client
	log            zerolog.Logger
	nowTime        func() time.Time
}

var _ Provider = (*OAuthProvider)(nil)

// OAuthProviderOption modifies an OAuthProvider.
type OAuthProviderOption func(*OAuthProvider)

// WithHTTPClient sets the client used for the service-token exchange.
func WithHTTPClient(client *http.Client) OAuthProviderOption {
	return func(p *OAuthProvider) {
		p.httpClient = client
	}
}

// WithLogger sets the provider's logger.
func WithLogger(log zerolog.Logger) OAuthProviderOption {
	return func(p *OAuthProvider) {
		p.log = log
	}
}

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) OAuthProviderOption {
	return func(p *OAuthProvider) {
		p.nowTime = nowFunc
	}
}

// NewOAuthProvider initializes a provider. When settings.IssuerURL is set the
// endpoints come from OIDC discovery and ID tokens are verified; otherwise the
// explicit endpoint URLs are used as-is.
func NewOAuthProvider(ctx context.Context, settings ProviderSettings, options ...OAuthProviderOption) (*OAuthProvider, error) {
	if settings.ClientID == "" {
		return nil, errors.New("[NewOAuthProvider] ClientID is required")
	}
	if settings.ServiceAuthURL == "" {
		return nil, errors.New("[NewOAuthProvider] ServiceAuthURL is required")
	}

	provider := &OAuthProvider{
		serviceAuthURL: settings.ServiceAuthURL,
		httpClient:     &http.Client{Timeout: serviceExchangeTimeout},
		log:            zerolog.Nop(),
		nowTime:        time.Now,
	}

	endpoint := oauth2.Endpoint{
		DeviceAuthURL: settings.DeviceAuthURL,
		TokenURL:      settings.TokenURL,
	}
	if settings.IssuerURL != "" {
		oidcProvider, err := oidc.NewProvider(ctx, settings.IssuerURL)
		if err != nil {
			return nil, errors.Wrap(err, "[NewOAuthProvider] oidc.NewProvider")
		}
		endpoint = oidcProvider.Endpoint()
		provider.verifier = oidcProvider.Verifier(&oidc.Config{ClientID: settings.ClientID})
	} else if settings.DeviceAuthURL == "" || settings.TokenURL == "" {
		return nil, errors.New("[NewOAuthProvider] either IssuerURL or explicit endpoints are required")
	}

	provider.oauth = oauth2.Config{
		ClientID: settings.ClientID,
		Scopes:   settings.Scopes,
		Endpoint: endpoint,
	}

	for _, opt := range options {
		opt(provider)
	}
	return provider, nil
}

// RequestDeviceCode starts the device-code grant.
func (p *OAuthProvider) RequestDeviceCode(ctx context.Context) (*Challenge, error) {
	deviceAuth, err := p.oauth.DeviceAuth(ctx)
	if err != nil {
		return nil, errors.Wrap(ProviderFaultErr, err.Error())
	}
	return &Challenge{
		UserCode:                deviceAuth.UserCode,
		VerificationURI:         deviceAuth.VerificationURI,
		VerificationURIComplete: deviceAuth.VerificationURIComplete,
		ExpiresAt:               deviceAuth.Expiry,
		Interval:                time.Duration(deviceAuth.Interval) * time.Second,
		deviceAuth:              deviceAuth,
	}, nil
}

// AwaitAuthorization polls until the user approves the challenge, then builds
// the full session. Context cancellation surfaces as ctx.Err so callers can
// tell a cancelled attempt from a provider rejection.
func (p *OAuthProvider) AwaitAuthorization(ctx context.Context, challenge *Challenge) (*session.Session, error) {
	if challenge == nil || challenge.deviceAuth == nil {
		return nil, errors.Wrap(ProviderFaultErr, "challenge not issued by this provider")
	}

	token, err := p.oauth.DeviceAccessToken(ctx, challenge.deviceAuth)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, errors.Wrap(ProviderFaultErr, err.Error())
	}

	sess, err := p.buildSession(ctx, token)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, errors.Wrap(ProviderFaultErr, err.Error())
	}
	return sess, nil
}

// Refresh replays the refresh grant and rebuilds the session.
func (p *OAuthProvider) Refresh(ctx context.Context, old *session.Session) (*session.Session, error) {
	if old == nil || old.Identity == nil || old.Identity.RefreshToken == "" {
		return nil, errors.Wrap(RefreshFaultErr, NoRefreshableErr.Error())
	}

	source := p.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: old.Identity.RefreshToken})
	token, err := source.Token()
	if err != nil {
		return nil, errors.Wrap(RefreshFaultErr, err.Error())
	}

	sess, err := p.buildSession(ctx, token)
	if err != nil {
		return nil, errors.Wrap(RefreshFaultErr, err.Error())
	}
	return sess, nil
}

// serviceAuthResponse is the gated service's answer to the token exchange.
type serviceAuthResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
	UserID      string `json:"user_id"`
	Username    string `json:"username"`
}

// buildSession assembles a Session from a fresh provider token: identity
// claims from the ID token when discovery is configured, plus the service
// token from the exchange endpoint. An exchange that answers without a token
// still yields a session; usability is judged by the caller.
func (p *OAuthProvider) buildSession(ctx context.Context, token *oauth2.Token) (*session.Session, error) {
	now := p.nowTime()

	identity := &session.IdentityChain{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		TokenType:    token.Type(),
	}
	if p.verifier != nil {
		if rawIDToken, ok := token.Extra("id_token").(string); ok {
			idToken, err := p.verifier.Verify(ctx, rawIDToken)
			if err != nil {
				return nil, errors.Wrap(err, "[buildSession] ID token verification failed")
			}
			var claims struct {
				Sub  string `json:"sub"`
				Name string `json:"preferred_username"`
			}
			if err := idToken.Claims(&claims); err != nil {
				return nil, errors.Wrap(err, "[buildSession] claims")
			}
			identity.UserID = claims.Sub
			identity.Username = claims.Name
		}
	}

	svc, err := p.exchangeServiceToken(ctx, token.AccessToken)
	if err != nil {
		return nil, err
	}

	sess := &session.Session{
		SchemaVersion: session.CurrentSchemaVersion,
		IssuedAt:      now,
		ExpiresAt:     token.Expiry,
		Identity:      identity,
	}
	if svc.AccessToken != "" {
		sess.ServiceToken = &session.ServiceToken{Token: svc.AccessToken}
		if svc.ExpiresIn > 0 {
			sess.ServiceToken.ExpiresAt = now.Add(time.Duration(svc.ExpiresIn) * time.Second)
		}
	}
	if identity.UserID == "" {
		identity.UserID = svc.UserID
	}
	if identity.Username == "" {
		identity.Username = svc.Username
	}
	return sess, nil
}

func (p *OAuthProvider) exchangeServiceToken(ctx context.Context, accessToken string) (*serviceAuthResponse, error) {
	body, err := json.Marshal(map[string]string{"accessToken": accessToken})
	if err != nil {
		return nil, errors.Wrap(err, "[exchangeServiceToken] marshal")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.serviceAuthURL, bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "[exchangeServiceToken] new request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "[exchangeServiceToken] do")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("[exchangeServiceToken] service answered %d: %s", resp.StatusCode, payload)
	}

	var svc serviceAuthResponse
	if err := json.NewDecoder(resp.Body).Decode(&svc); err != nil {
		return nil, errors.Wrap(err, "[exchangeServiceToken] decode")
	}
	p.log.Debug().Str("userID", svc.UserID).Msg("service token exchanged")
	return &svc, nil
}

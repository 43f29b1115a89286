// Package realms is the thin client for the gated world-hosting service.
// Every operation resolves a session through the session manager first and
// fails cleanly with auth.NoSessionErr when none is available; beyond that
// the calls are stateless pass-throughs.
package realms

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/jrsteele09/go-realms-auth/auth"
	"github.com/jrsteele09/go-realms-auth/session"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

const defaultRequestTimeout = 30 * time.Second

// World is one hosted world visible to the current user.
type World struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"motd"`
	Owner       string `json:"owner"`
	State       string `json:"state"`
	MaxPlayers  int    `json:"maxPlayers"`
	Expired     bool   `json:"expired"`
}

// Client issues session-gated calls against the realms service.
type Client struct {
	baseURL       string
	clientVersion string
	httpClient    *http.Client
	sessions      *auth.SessionManager
	log           zerolog.Logger
}

// ClientOption defines a function type to modify the Client instance.
type ClientOption func(*Client)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithLogger sets the client's logger.
func WithLogger(log zerolog.Logger) ClientOption {
	return func(c *Client) {
		c.log = log
	}
}

// WithClientVersion sets the version string sent with each request.
func WithClientVersion(version string) ClientOption {
	return func(c *Client) {
		c.clientVersion = version
	}
}

// NewClient initializes a realms client talking to baseURL.
func NewClient(baseURL string, sessions *auth.SessionManager, options ...ClientOption) (*Client, error) {
	if baseURL == "" {
		return nil, errors.New("[realms.NewClient] baseURL is required")
	}
	if sessions == nil {
		return nil, errors.New("[realms.NewClient] session manager is required")
	}

	client := &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: defaultRequestTimeout},
		sessions:   sessions,
		log:        zerolog.Nop(),
	}
	for _, opt := range options {
		opt(client)
	}
	return client, nil
}

// Available reports whether the service is reachable and accepting this user.
func (c *Client) Available(ctx context.Context) (bool, error) {
	var resp struct {
		Available bool `json:"available"`
	}
	if err := c.do(ctx, http.MethodGet, "/v1/availability", &resp); err != nil {
		return false, err
	}
	return resp.Available, nil
}

// Worlds lists the worlds the current user can see.
func (c *Client) Worlds(ctx context.Context) ([]World, error) {
	var resp struct {
		Worlds []World `json:"worlds"`
	}
	if err := c.do(ctx, http.MethodGet, "/v1/worlds", &resp); err != nil {
		return nil, err
	}
	return resp.Worlds, nil
}

// Join asks the service for the connection address of a world.
func (c *Client) Join(ctx context.Context, worldID int64) (string, error) {
	var resp struct {
		Address string `json:"address"`
	}
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/v1/worlds/%d/join", worldID), &resp); err != nil {
		return "", err
	}
	return resp.Address, nil
}

// AcceptInvite accepts a pending invite.
func (c *Client) AcceptInvite(ctx context.Context, inviteID string) error {
	return c.do(ctx, http.MethodPut, "/v1/invites/"+inviteID+"/accept", nil)
}

// Leave removes the current user from a world they were invited to.
func (c *Client) Leave(ctx context.Context, worldID int64) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/v1/worlds/%d/membership", worldID), nil)
}

// do resolves a session, issues the request, and decodes the answer into out
// when out is non-nil.
func (c *Client) do(ctx context.Context, method, path string, out any) error {
	sess, err := c.sessions.Resolve(ctx)
	if err != nil {
		return err
	}
	if sess == nil {
		return auth.NoSessionErr
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return errors.Wrap(err, "[realms.Client.do] new request")
	}
	req.Header.Set("Cookie", sessionCookie(sess, c.clientVersion))
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(ServiceUnavailableErr, err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		c.log.Warn().Int("status", resp.StatusCode).Str("path", path).Msg("realms call rejected")
		return errors.Wrapf(ServiceFaultErr, "%s %s answered %d: %s", method, path, resp.StatusCode, payload)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrap(err, "[realms.Client.do] decode")
	}
	return nil
}

// sessionCookie renders the session identity header the service expects.
func sessionCookie(sess *session.Session, version string) string {
	var uid, user, token string
	if sess.ServiceToken != nil {
		token = sess.ServiceToken.Token
	}
	if sess.Identity != nil {
		uid = sess.Identity.UserID
		user = sess.Identity.Username
	}
	return fmt.Sprintf("sid=token:%s:%s;user=%s;version=%s", token, uid, user, version)
}

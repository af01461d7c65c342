// Package client talks to a fleetglass server: accounts, location
// writes and the live fleet feed.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"fleetglass.app/auth"
	"fleetglass.app/store"
)

// StoreError wraps a failed write or subscription against the server.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// Client is safe for concurrent use. The session token is set by Login
// and cleared by Logout.
type Client struct {
	base string
	http *http.Client

	mu    sync.RWMutex
	token string
}

func New(baseURL string) *Client {
	return &Client{
		base: strings.TrimRight(baseURL, "/"),
		http: &http.Client{Timeout: 10 * time.Second},
	}
}

// Token returns the current session token, empty when signed out.
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

func (c *Client) setToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

type sessionResponse struct {
	Identity *auth.Identity `json:"identity"`
	Token    string         `json:"token"`
}

// Register creates an account. It does not sign in.
func (c *Client) Register(ctx context.Context, email, password string) (*auth.Identity, error) {
	var out sessionResponse
	err := c.call(ctx, "POST", "/api/register",
		map[string]string{"email": email, "password": password}, &out)
	if err != nil {
		return nil, err
	}
	return out.Identity, nil
}

// Login signs in and retains the session token for later calls. The
// returned identity carries the resolved role.
func (c *Client) Login(ctx context.Context, email, password string) (*auth.Identity, error) {
	var out sessionResponse
	err := c.call(ctx, "POST", "/api/login",
		map[string]string{"email": email, "password": password}, &out)
	if err != nil {
		return nil, err
	}
	c.setToken(out.Token)
	return out.Identity, nil
}

// Logout signs out server-side (which deletes the caller's location
// records) and drops the token. Calling it signed out is a no-op.
func (c *Client) Logout(ctx context.Context) error {
	if c.Token() == "" {
		return nil
	}
	err := c.call(ctx, "POST", "/api/logout", nil, nil)
	c.setToken("")
	return err
}

// Me fetches the caller's identity with a freshly resolved role.
func (c *Client) Me(ctx context.Context) (*auth.Identity, error) {
	var out sessionResponse
	if err := c.call(ctx, "GET", "/api/me", nil, &out); err != nil {
		return nil, err
	}
	return out.Identity, nil
}

// UpsertLocation writes the caller's current position.
func (c *Client) UpsertLocation(ctx context.Context, lat, lon float64) (*store.Sample, error) {
	var out store.Sample
	err := c.call(ctx, "PUT", "/api/location",
		map[string]float64{"latitude": lat, "longitude": lon}, &out)
	if err != nil {
		return nil, &StoreError{Op: "upsert", Err: err}
	}
	return &out, nil
}

// DeleteLocations removes every location record the caller owns.
func (c *Client) DeleteLocations(ctx context.Context) error {
	if err := c.call(ctx, "DELETE", "/api/location", nil, nil); err != nil {
		return &StoreError{Op: "delete", Err: err}
	}
	return nil
}

func (c *Client) call(ctx context.Context, method, path string, body, out interface{}) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if token := c.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &auth.Error{Kind: auth.KindNetwork, Message: auth.UserMessage(auth.KindNetwork)}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return decodeError(resp)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// decodeError turns an HTTP failure back into the auth taxonomy so the
// tracker shows the same messages a browser session would. The server
// names the kind in the body; the status code alone cannot separate a
// weak password from a malformed email.
func decodeError(resp *http.Response) error {
	var body struct {
		Error string `json:"error"`
		Kind  string `json:"kind"`
	}
	json.NewDecoder(resp.Body).Decode(&body)
	if body.Error == "" {
		body.Error = resp.Status
	}
	if body.Kind != "" {
		return &auth.Error{Kind: auth.Kind(body.Kind), Message: body.Error}
	}

	// responses from outside the auth layer carry no kind
	kind := auth.KindUnknown
	switch resp.StatusCode {
	case http.StatusUnauthorized:
		kind = auth.KindInvalidCredentials
	case http.StatusConflict:
		kind = auth.KindEmailInUse
	case http.StatusTooManyRequests:
		kind = auth.KindRateLimited
	}
	return &auth.Error{Kind: kind, Message: body.Error}
}

// Package client is the launcher-side API client: login, periodic session
// verification, logout. The launcher embeds this and polls Status to decide
// whether the game may keep running.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/dukerupert/raven/internal/entitlement"
	"github.com/dukerupert/raven/internal/middleware"
)

// Config holds client configuration.
type Config struct {
	BaseURL string
	// Secret is the same shared secret the server holds; the wire key is
	// derived, never sent raw.
	Secret         string
	VerifyInterval time.Duration
}

// Status is the client's view of the current session.
type Status struct {
	LoggedIn     bool                `json:"logged_in"`
	UserID       int64               `json:"user_id"`
	Nickname     string              `json:"nickname"`
	Subscription entitlement.Summary `json:"subscription"`
	Offline      bool                `json:"offline"`
	Warning      string              `json:"warning,omitempty"`
	LastChecked  time.Time           `json:"last_checked"`
}

type userPayload struct {
	UserID       int64               `json:"user_id"`
	Nickname     string              `json:"nickname"`
	Subscription entitlement.Summary `json:"subscription"`
}

type envelope struct {
	Success      bool         `json:"success"`
	Error        string       `json:"error"`
	SessionToken string       `json:"session_token"`
	User         *userPayload `json:"user"`
}

// Client talks to the auth service. Safe for concurrent use.
type Client struct {
	mu         sync.RWMutex
	cfg        Config
	apiKey     string
	status     Status
	token      string
	hwid       string
	httpClient *http.Client

	cancel context.CancelFunc
	done   chan struct{}
}

func New(cfg Config) *Client {
	if cfg.VerifyInterval == 0 {
		cfg.VerifyInterval = 10 * time.Minute
	}
	return &Client{
		cfg:    cfg,
		apiKey: middleware.DeriveAPIKey(cfg.Secret),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Login authenticates and stores the session token for later verifies.
func (c *Client) Login(ctx context.Context, nickname, password, hwid string) error {
	env, err := c.post(ctx, "/api/auth/login", map[string]string{
		"nickname": nickname,
		"password": password,
		"hwid":     hwid,
	})
	if err != nil {
		c.setOffline(err.Error())
		return err
	}
	if !env.Success {
		return fmt.Errorf("login rejected: %s", env.Error)
	}
	if env.User == nil || env.SessionToken == "" {
		return fmt.Errorf("login response missing session")
	}

	c.mu.Lock()
	c.token = env.SessionToken
	c.hwid = hwid
	c.status = Status{
		LoggedIn:     true,
		UserID:       env.User.UserID,
		Nickname:     env.User.Nickname,
		Subscription: env.User.Subscription,
		LastChecked:  time.Now(),
	}
	c.mu.Unlock()
	return nil
}

// Verify re-checks the stored session. A network failure flips the offline
// flag but keeps the session: the server is the one that expires it, and
// the launcher decides how long it tolerates running blind.
func (c *Client) Verify(ctx context.Context) error {
	c.mu.RLock()
	token, hwid := c.token, c.hwid
	c.mu.RUnlock()
	if token == "" {
		return fmt.Errorf("not logged in")
	}

	env, err := c.post(ctx, "/api/auth/verify_session", map[string]string{
		"session_token": token,
		"hwid":          hwid,
	})
	if err != nil {
		c.setOffline("unable to reach auth server")
		return err
	}
	if !env.Success {
		c.mu.Lock()
		c.token = ""
		c.status = Status{LoggedIn: false, Warning: env.Error, LastChecked: time.Now()}
		c.mu.Unlock()
		return fmt.Errorf("session rejected: %s", env.Error)
	}

	c.mu.Lock()
	c.status = Status{
		LoggedIn:     true,
		UserID:       env.User.UserID,
		Nickname:     env.User.Nickname,
		Subscription: env.User.Subscription,
		LastChecked:  time.Now(),
	}
	c.mu.Unlock()
	return nil
}

// Logout revokes the session server-side and clears local state. The
// server's logout never fails, so neither does this beyond transport
// errors.
func (c *Client) Logout(ctx context.Context) error {
	c.mu.Lock()
	token := c.token
	c.token = ""
	c.status = Status{LastChecked: time.Now()}
	c.mu.Unlock()

	if token == "" {
		return nil
	}
	_, err := c.post(ctx, "/api/auth/logout", map[string]string{"session_token": token})
	return err
}

// Status returns the current session view.
func (c *Client) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}

// Start begins periodic verification until Stop or ctx cancellation.
func (c *Client) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.done = make(chan struct{})

	go func() {
		defer close(c.done)
		ticker := time.NewTicker(c.cfg.VerifyInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.Verify(ctx)
			}
		}
	}()
}

// Stop halts periodic verification.
func (c *Client) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
	if c.done != nil {
		<-c.done
	}
}

func (c *Client) post(ctx context.Context, path string, payload any) (*envelope, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, fmt.Errorf("%s: bad API key", path)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s: status %d", path, resp.StatusCode)
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &env, nil
}

func (c *Client) setOffline(warning string) {
	c.mu.Lock()
	c.status.Offline = true
	c.status.Warning = warning
	c.mu.Unlock()
}

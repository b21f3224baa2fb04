package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/opd-ai/neochat/models"
)

// DefaultTimeout bounds every relay round trip.
const DefaultTimeout = 10 * time.Second

// Config configures a relay client.
type Config struct {
	// URL is the relay base URL, without a trailing slash.
	URL string
	// Timeout bounds each request. Zero means DefaultTimeout.
	Timeout time.Duration
	// RequestsPerSecond limits outgoing requests. Zero disables limiting.
	RequestsPerSecond float64
	// Burst is the limiter bucket size. Values below 1 are treated as 1.
	Burst int
}

// Client talks to a relay over HTTP. It is safe for concurrent use.
type Client struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
}

// NewClient creates a relay client.
func NewClient(cfg Config) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.URL), "/")
	if base == "" {
		return nil, ErrNoURL
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("invalid relay url: %w", err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	c := &Client{
		baseURL: base,
		http:    &http.Client{Timeout: timeout},
	}
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}

	logrus.WithFields(logrus.Fields{
		"function": "relay.NewClient",
		"url":      base,
		"timeout":  timeout.String(),
		"rps":      cfg.RequestsPerSecond,
	}).Info("Relay client created")

	return c, nil
}

// Send posts an envelope to the relay.
func (c *Client) Send(ctx context.Context, env Envelope) error {
	return c.do(ctx, http.MethodPost, "/send", env, nil)
}

// Poll fetches the envelopes queued for hash.
func (c *Client) Poll(ctx context.Context, hash string) ([]Envelope, error) {
	var resp PollResponse
	if err := c.do(ctx, http.MethodGet, "/poll/"+url.PathEscape(hash), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Messages, nil
}

// Ack deletes a delivered envelope from the relay.
func (c *Client) Ack(ctx context.Context, hash, messageID string) error {
	path := "/ack/" + url.PathEscape(hash) + "/" + url.PathEscape(messageID)
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

// UpdateProfile publishes the local profile.
func (c *Client) UpdateProfile(ctx context.Context, user models.User) error {
	update := ProfileUpdate{
		ID:        user.ID,
		Username:  user.Username,
		Status:    user.Status,
		AvatarURL: user.AvatarURL,
	}
	return c.do(ctx, http.MethodPost, "/profile", update, nil)
}

// GetProfile looks up a published profile. It returns ErrUserNotFound when
// the relay answers 404.
func (c *Client) GetProfile(ctx context.Context, id string) (models.User, error) {
	var user models.User
	err := c.do(ctx, http.MethodGet, "/profile/"+url.PathEscape(id), nil, &user)
	var se *StatusError
	if errors.As(err, &se) && se.Code == http.StatusNotFound {
		return models.User{}, ErrUserNotFound
	}
	if err != nil {
		return models.User{}, err
	}
	return user, nil
}

// Status fetches the relay's health report.
func (c *Client) Status(ctx context.Context) (StatusResponse, error) {
	var status StatusResponse
	err := c.do(ctx, http.MethodGet, "/status", nil, &status)
	return status, err
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("relay rate limit: %w", err)
		}
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "relay.Client.do",
			"method":   method,
			"path":     path,
			"error":    err.Error(),
		}).Warn("Relay request failed")
		return fmt.Errorf("relay %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, resp.Body)
		logrus.WithFields(logrus.Fields{
			"function": "relay.Client.do",
			"method":   method,
			"path":     path,
			"status":   resp.StatusCode,
		}).Debug("Relay returned error status")
		return &StatusError{Code: resp.StatusCode}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode relay response: %w", err)
	}
	return nil
}

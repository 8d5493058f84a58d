package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/iotail/kennel-core/internal/infrastructure/config"
)

const (
	defaultTimeout  = 10 * time.Second
	defaultRetryMax = 3

	// retryBaseDelay is the first backoff step for retried reads.
	retryBaseDelay = 500 * time.Millisecond
)

// Client talks to the catalog REST API.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type Client struct {
	baseURL  string
	token    string
	retryMax int
	http     *http.Client
}

// New creates a catalog client from configuration.
func New(cfg config.CatalogConfig) *Client {
	timeout := time.Duration(cfg.Timeout) * time.Second
	if cfg.Timeout <= 0 {
		timeout = defaultTimeout
	}
	retryMax := cfg.RetryMax
	if retryMax <= 0 {
		retryMax = defaultRetryMax
	}
	return &Client{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		token:    cfg.Token,
		retryMax: retryMax,
		http:     &http.Client{Timeout: timeout},
	}
}

// Stores fetches all stores with their kennels.
func (c *Client) Stores(ctx context.Context) ([]Store, error) {
	var stores []Store
	if err := c.getJSON(ctx, "/stores", &stores); err != nil {
		return nil, err
	}
	return stores, nil
}

// Users fetches all registered users with their dogs.
func (c *Client) Users(ctx context.Context) ([]User, error) {
	var users []User
	if err := c.getJSON(ctx, "/users", &users); err != nil {
		return nil, err
	}
	return users, nil
}

// User fetches one user by ID.
func (c *Client) User(ctx context.Context, userID string) (*User, error) {
	var user User
	if err := c.getJSON(ctx, "/users/"+userID, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// Breeds fetches the breed catalog with ambient comfort ranges.
func (c *Client) Breeds(ctx context.Context) ([]Breed, error) {
	var breeds []Breed
	if err := c.getJSON(ctx, "/breeds", &breeds); err != nil {
		return nil, err
	}
	return breeds, nil
}

// kennelMutation is the request body for book/lock/free.
type kennelMutation struct {
	StoreID  string `json:"storeID"`
	KennelID int    `json:"kennelID"`
}

// Book marks a kennel as booked in the catalog. Not retried.
func (c *Client) Book(ctx context.Context, storeID string, kennelID int) error {
	return c.postJSON(ctx, "/book", kennelMutation{StoreID: storeID, KennelID: kennelID}, nil)
}

// Lock marks a kennel as occupied in the catalog. Not retried.
func (c *Client) Lock(ctx context.Context, storeID string, kennelID int) error {
	return c.postJSON(ctx, "/lock", kennelMutation{StoreID: storeID, KennelID: kennelID}, nil)
}

// Free clears a kennel's booked and occupied flags in the catalog. Not retried.
func (c *Client) Free(ctx context.Context, storeID string, kennelID int) error {
	return c.postJSON(ctx, "/free", kennelMutation{StoreID: storeID, KennelID: kennelID}, nil)
}

// heartbeat is the availability announcement body.
type heartbeat struct {
	Category  string `json:"category"`
	ServiceID string `json:"serviceID"`
}

// Heartbeat announces this service instance to the catalog registry.
func (c *Client) Heartbeat(ctx context.Context, serviceID string) error {
	return c.postJSON(ctx, "/heartbeat", heartbeat{Category: "service", ServiceID: serviceID}, nil)
}

// getJSON performs a GET with retry and decodes the response body into out.
func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	var lastErr error
	for attempt := 0; attempt < c.retryMax; attempt++ {
		if attempt > 0 {
			delay := retryBaseDelay * time.Duration(1<<(attempt-1))
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return fmt.Errorf("%w: %w", ErrService, ctx.Err())
			}
		}

		err := c.do(ctx, http.MethodGet, path, nil, out)
		if err == nil {
			return nil
		}
		// Only transport and server failures are worth retrying.
		if !isRetryable(err) {
			return err
		}
		lastErr = err
	}
	return lastErr
}

// postJSON performs a single POST attempt with a JSON body.
func (c *Client) postJSON(ctx context.Context, path string, body, out any) error {
	return c.do(ctx, http.MethodPost, path, body, out)
}

// do executes one HTTP round trip and maps the status code onto the
// package's sentinel errors.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("catalog: encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("catalog: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrService, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s %s", ErrNotFound, method, path)
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: %s %s", ErrUnauthorized, method, path)
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: %s %s returned %d", ErrService, method, path, resp.StatusCode)
	case resp.StatusCode >= 400:
		return fmt.Errorf("catalog: %s %s returned %d", method, path, resp.StatusCode)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("%w: decode response: %w", ErrService, err)
		}
	}
	return nil
}

// isRetryable reports whether a read failure may succeed on retry.
// Not-found and auth failures are definitive; service failures are not.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrUnauthorized) {
		return false
	}
	return true
}

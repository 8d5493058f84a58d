package push

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/iotail/kennel-core/internal/infrastructure/config"
)

const defaultTimeout = 5 * time.Second

// Sink delivers push notifications to user devices.
//
// Delivery is best-effort: callers log failures and carry on, because a
// missed notification must never block a reservation transition.
type Sink interface {
	// Send delivers one notification to the device identified by token.
	Send(ctx context.Context, token, title, body string) error
}

// FCM delivers notifications through the Firebase Cloud Messaging HTTP API.
type FCM struct {
	url       string
	serverKey string
	http      *http.Client
}

// NewFCM creates an FCM sink from configuration.
func NewFCM(cfg config.PushConfig) *FCM {
	timeout := time.Duration(cfg.Timeout) * time.Second
	if cfg.Timeout <= 0 {
		timeout = defaultTimeout
	}
	return &FCM{
		url:       cfg.URL,
		serverKey: cfg.ServerKey,
		http:      &http.Client{Timeout: timeout},
	}
}

// fcmMessage is the legacy FCM send payload.
type fcmMessage struct {
	To           string          `json:"to"`
	Notification fcmNotification `json:"notification"`
}

type fcmNotification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// Send delivers one notification through FCM.
func (f *FCM) Send(ctx context.Context, token, title, body string) error {
	payload, err := json.Marshal(fcmMessage{
		To:           token,
		Notification: fcmNotification{Title: title, Body: body},
	})
	if err != nil {
		return fmt.Errorf("push: encode message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("push: build request: %w", err)
	}
	req.Header.Set("Authorization", "key="+f.serverKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.http.Do(req)
	if err != nil {
		return fmt.Errorf("push: send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("push: provider returned %d", resp.StatusCode)
	}
	return nil
}

// Noop is a Sink that discards all notifications. Used when push delivery
// is disabled in configuration.
type Noop struct{}

// Send discards the notification.
func (Noop) Send(context.Context, string, string, string) error { return nil }

package push

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

	"github.com/fleetline/dispatch-backend/pkg/config"
)

const (
	defaultEndpoint             = "https://fcm.googleapis.com/fcm/send"
	responseBodyReadLimit int64 = 4096
)

// ErrInvalidToken signals the stored device token is no longer registered
// with the provider; callers should clear it.
var ErrInvalidToken = errors.New("push: device token not registered")

// Client is the push-notification delivery contract the dispatch core
// consumes. Delivery is best effort; only ErrInvalidToken carries meaning
// beyond "log and move on".
type Client interface {
	SendToToken(ctx context.Context, token, title, body string, data map[string]string) (string, error)
	SendToTopic(ctx context.Context, topic, title, body string, data map[string]string) error
	SubscribeToTopic(ctx context.Context, token, topic string) error
}

// HTTPClient talks to an FCM-compatible HTTP endpoint.
type HTTPClient struct {
	httpClient *http.Client
	endpoint   string
	serverKey  string
}

// Option configures optional client behavior.
type Option func(*HTTPClient)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *HTTPClient) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// NewHTTPClient builds the push client from configuration.
func NewHTTPClient(cfg config.PushConfig, opts ...Option) (*HTTPClient, error) {
	key := strings.TrimSpace(cfg.ServerKey)
	if key == "" {
		return nil, errors.New("push server key is required")
	}

	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		endpoint = defaultEndpoint
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	client := &HTTPClient{
		httpClient: &http.Client{Timeout: timeout},
		endpoint:   endpoint,
		serverKey:  key,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client, nil
}

type message struct {
	To           string            `json:"to"`
	Notification *notification     `json:"notification,omitempty"`
	Data         map[string]string `json:"data,omitempty"`
}

type notification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

type sendResponse struct {
	MessageID string `json:"message_id"`
	Results   []struct {
		MessageID string `json:"message_id"`
		Error     string `json:"error"`
	} `json:"results"`
}

// SendToToken delivers a notification to a single device token.
func (c *HTTPClient) SendToToken(ctx context.Context, token, title, body string, data map[string]string) (string, error) {
	if strings.TrimSpace(token) == "" {
		return "", ErrInvalidToken
	}
	resp, err := c.send(ctx, message{
		To:           token,
		Notification: &notification{Title: title, Body: body},
		Data:         data,
	})
	if err != nil {
		return "", err
	}
	for _, result := range resp.Results {
		if result.Error == "NotRegistered" || result.Error == "InvalidRegistration" {
			return "", ErrInvalidToken
		}
		if result.Error != "" {
			return "", fmt.Errorf("push: provider error %s", result.Error)
		}
		if result.MessageID != "" {
			return result.MessageID, nil
		}
	}
	return resp.MessageID, nil
}

// SendToTopic delivers a notification to every device subscribed to topic.
func (c *HTTPClient) SendToTopic(ctx context.Context, topic, title, body string, data map[string]string) error {
	if strings.TrimSpace(topic) == "" {
		return errors.New("push: topic is required")
	}
	_, err := c.send(ctx, message{
		To:           "/topics/" + topic,
		Notification: &notification{Title: title, Body: body},
		Data:         data,
	})
	return err
}

// SubscribeToTopic registers a device token on a topic.
func (c *HTTPClient) SubscribeToTopic(ctx context.Context, token, topic string) error {
	if strings.TrimSpace(token) == "" {
		return ErrInvalidToken
	}
	if strings.TrimSpace(topic) == "" {
		return errors.New("push: topic is required")
	}

	url := fmt.Sprintf("https://iid.googleapis.com/iid/v1/%s/rel/topics/%s", token, topic)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return fmt.Errorf("push: build subscribe request: %w", err)
	}
	req.Header.Set("Authorization", "key="+c.serverKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("push: subscribe request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusBadRequest {
		return ErrInvalidToken
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("push: subscribe failed with status %d", resp.StatusCode)
	}
	return nil
}

func (c *HTTPClient) send(ctx context.Context, msg message) (*sendResponse, error) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("push: encode message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("push: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "key="+c.serverKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("push: send request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, responseBodyReadLimit))
	if err != nil {
		return nil, fmt.Errorf("push: read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("push: provider returned status %d", resp.StatusCode)
	}

	var decoded sendResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("push: decode response: %w", err)
	}
	return &decoded, nil
}

package pushclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// RegistryClient talks to the push registry HTTP API.
type RegistryClient struct {
	httpClient *http.Client
	baseURL    string
	token      func(ctx context.Context) (string, error)
}

// NewRegistryClient creates a client for baseURL. token supplies the bearer
// token for authenticated calls.
func NewRegistryClient(baseURL string, token func(ctx context.Context) (string, error)) *RegistryClient {
	return &RegistryClient{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		baseURL: baseURL,
		token:   token,
	}
}

// APIError is a non-2xx response from the registry.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("registry error: status=%d, message=%s", e.Status, e.Message)
}

// Unwrap maps well-known responses to the package sentinels.
func (e *APIError) Unwrap() error {
	switch {
	case e.Status == http.StatusConflict || e.Code == "device_limit_reached":
		return ErrDeviceLimit
	case e.Status == http.StatusNotFound:
		return ErrNotFound
	case e.Status == http.StatusUnauthorized:
		return ErrNotAuthenticated
	}
	return nil
}

// PublicKey fetches the application server key devices subscribe with.
func (c *RegistryClient) PublicKey(ctx context.Context) (string, error) {
	var resp struct {
		PublicKey string `json:"publicKey"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/push/vapid-public-key", false, nil, &resp); err != nil {
		return "", err
	}
	if resp.PublicKey == "" {
		return "", fmt.Errorf("registry returned an empty public key")
	}
	return resp.PublicKey, nil
}

// Subscribe registers sub for the caller, or refreshes it if already known.
func (c *RegistryClient) Subscribe(ctx context.Context, sub Subscription, userAgent string) error {
	body := struct {
		Subscription
		UserAgent string `json:"userAgent,omitempty"`
	}{sub, userAgent}
	return c.doJSON(ctx, http.MethodPost, "/push/subscribe", true, body, nil)
}

// Unsubscribe removes the caller's registration for endpoint.
func (c *RegistryClient) Unsubscribe(ctx context.Context, endpoint string) error {
	body := map[string]string{"endpoint": endpoint}
	return c.doJSON(ctx, http.MethodDelete, "/push/unsubscribe", true, body, nil)
}

// List returns the caller's registered devices in the current workspace.
func (c *RegistryClient) List(ctx context.Context) ([]ServerSubscription, error) {
	var resp struct {
		Subscriptions []ServerSubscription `json:"subscriptions"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/push/subscriptions", true, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Subscriptions, nil
}

func (c *RegistryClient) doJSON(ctx context.Context, method, path string, authenticated bool, body any, result any) error {
	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	if authenticated && c.token != nil {
		tok, err := c.token(ctx)
		if err != nil {
			return fmt.Errorf("get access token: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errBody struct {
			Error   string `json:"error"`
			Message string `json:"message"`
		}
		raw, _ := io.ReadAll(resp.Body)
		_ = json.Unmarshal(raw, &errBody)
		apiErr := &APIError{Status: resp.StatusCode, Code: errBody.Error, Message: errBody.Message}
		if apiErr.Message == "" {
			apiErr.Message = string(raw)
		}
		return apiErr
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("decode response body: %w", err)
		}
	}
	return nil
}

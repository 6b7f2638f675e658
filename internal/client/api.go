package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"suivipro/internal/domain/notification"
)

// APIError is a decoded server-side error envelope.
type APIError struct {
	StatusCode int    `json:"-"`
	Code       string `json:"code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %s (%d): %s", e.Code, e.StatusCode, e.Message)
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *APIError       `json:"error"`
}

// APIClient talks to the notification endpoints. It is safe for concurrent
// use; per-call cancellation goes through the context.
type APIClient struct {
	baseURL string
	http    *http.Client

	tokenMu sync.RWMutex
	token   string
}

func NewAPIClient(baseURL, token string) *APIClient {
	return &APIClient{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

// SetToken swaps the bearer token after a re-login. In-flight requests keep
// the token they started with; the polling loops pick the new one up on their
// next call.
func (c *APIClient) SetToken(token string) {
	c.tokenMu.Lock()
	c.token = token
	c.tokenMu.Unlock()
}

func (c *APIClient) bearer() string {
	c.tokenMu.RLock()
	defer c.tokenMu.RUnlock()
	return c.token
}

func (c *APIClient) do(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.bearer())
	req.Header.Set("X-Request-ID", uuid.NewString())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	if !env.Success {
		apiErr := env.Error
		if apiErr == nil {
			apiErr = &APIError{Code: "UNKNOWN", Message: "unexpected response"}
		}
		apiErr.StatusCode = resp.StatusCode
		return apiErr
	}

	if out != nil {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("decode payload: %w", err)
		}
	}
	return nil
}

// List fetches one page of notifications, newest first.
func (c *APIClient) List(ctx context.Context, page, limit int) (*notification.NotificationListResponse, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("limit", strconv.Itoa(limit))

	var out notification.NotificationListResponse
	if err := c.do(ctx, http.MethodGet, "/api/v1/notifications?"+q.Encode(), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *APIClient) UnreadCount(ctx context.Context) (int64, error) {
	var out notification.UnreadCountResponse
	if err := c.do(ctx, http.MethodGet, "/api/v1/notifications/unread/count", nil, &out); err != nil {
		return 0, err
	}
	return out.Count, nil
}

func (c *APIClient) MarkRead(ctx context.Context, id int64) (*notification.NotificationResponse, error) {
	var out notification.NotificationResponse
	path := fmt.Sprintf("/api/v1/notifications/%d/read", id)
	if err := c.do(ctx, http.MethodPut, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *APIClient) MarkAllRead(ctx context.Context) error {
	return c.do(ctx, http.MethodPut, "/api/v1/notifications/read-all", nil, nil)
}

func (c *APIClient) MarkAllUnread(ctx context.Context) error {
	return c.do(ctx, http.MethodPut, "/api/v1/notifications/unread-all", nil, nil)
}

func (c *APIClient) Delete(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/api/v1/notifications/%d", id), nil, nil)
}

func (c *APIClient) DeleteAll(ctx context.Context) (int64, error) {
	var out notification.DeletedCountResponse
	if err := c.do(ctx, http.MethodDelete, "/api/v1/notifications/delete-all", nil, &out); err != nil {
		return 0, err
	}
	return out.DeletedCount, nil
}

// Cleanup asks the server to drop this user's notifications older than the
// cutoff.
func (c *APIClient) Cleanup(ctx context.Context, cutoff time.Time) (int64, error) {
	req := notification.CleanupRequest{CutoffDate: cutoff.Format(time.RFC3339)}
	var out notification.DeletedCountResponse
	if err := c.do(ctx, http.MethodDelete, "/api/v1/notifications/cleanup", req, &out); err != nil {
		return 0, err
	}
	return out.DeletedCount, nil
}

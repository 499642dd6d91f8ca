// Package client is a Go client for the intake API used by cmd/intake.
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
	"strings"
	"sync"
	"time"

	"github.com/iliyamo/medconcierge/internal/model"
	"github.com/iliyamo/medconcierge/internal/service"
)

// APIError is a non-2xx answer decoded from the {"error": ...} body.
type APIError struct {
	Status  int                  `json:"-"`
	Message string               `json:"error"`
	Details []service.FieldError `json:"details,omitempty"`
}

func (e *APIError) Error() string {
	if len(e.Details) == 0 {
		return fmt.Sprintf("api %d: %s", e.Status, e.Message)
	}
	parts := make([]string, 0, len(e.Details))
	for _, d := range e.Details {
		parts = append(parts, d.Field+" "+d.Message)
	}
	return fmt.Sprintf("api %d: %s (%s)", e.Status, e.Message, strings.Join(parts, "; "))
}

type Client struct {
	base string
	http *http.Client

	mu    sync.RWMutex
	token string
}

// New returns a client for baseURL, e.g. http://localhost:8080. A nil hc
// gets a client with a 10s timeout.
func New(baseURL string, hc *http.Client) *Client {
	if hc == nil {
		hc = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{base: strings.TrimRight(baseURL, "/"), http: hc}
}

func (c *Client) SetToken(tok string) {
	c.mu.Lock()
	c.token = tok
	c.mu.Unlock()
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.mu.RLock()
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	c.mu.RUnlock()

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode}
		if err := json.NewDecoder(resp.Body).Decode(apiErr); err != nil || apiErr.Message == "" {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
		return apiErr
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// Submit posts a completed wizard.
func (c *Client) Submit(ctx context.Context, req service.SubmissionRequest) (service.SubmissionResult, error) {
	var out struct {
		Data service.SubmissionResult `json:"data"`
	}
	err := c.do(ctx, http.MethodPost, "/api/applications", req, &out)
	return out.Data, err
}

// Login signs in and keeps the access token for later calls.
func (c *Client) Login(ctx context.Context, phone, password string) error {
	var out struct {
		Access struct {
			Token string `json:"token"`
		} `json:"access"`
	}
	err := c.do(ctx, http.MethodPost, "/api/auth/login", map[string]string{"phone": phone, "password": password}, &out)
	if err != nil {
		return err
	}
	c.SetToken(out.Access.Token)
	return nil
}

func (c *Client) ForgotPassword(ctx context.Context, phone string) error {
	return c.do(ctx, http.MethodPost, "/api/auth/forgot-password", map[string]string{"phone": phone}, nil)
}

func (c *Client) ResetPassword(ctx context.Context, phone, code, password string) error {
	return c.do(ctx, http.MethodPost, "/api/auth/reset-password",
		map[string]string{"phone": phone, "code": code, "password": password}, nil)
}

// Applications lists the caller's applications, newest first.
func (c *Client) Applications(ctx context.Context, page, limit int) (service.ListResult, error) {
	q := url.Values{}
	if page > 0 {
		q.Set("page", strconv.Itoa(page))
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	path := "/api/applications"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var out service.ListResult
	err := c.do(ctx, http.MethodGet, path, nil, &out)
	return out, err
}

// Messages fetches a thread, or only messages newer than after when it is
// non-zero.
func (c *Client) Messages(ctx context.Context, appID, after uint64) (service.Thread, error) {
	path := "/api/applications/" + strconv.FormatUint(appID, 10) + "/messages"
	if after > 0 {
		path += "?after=" + strconv.FormatUint(after, 10)
	}
	var out service.Thread
	err := c.do(ctx, http.MethodGet, path, nil, &out)
	return out, err
}

func (c *Client) PostMessage(ctx context.Context, appID uint64, content string) (model.Message, error) {
	var out model.Message
	err := c.do(ctx, http.MethodPost, "/api/applications/"+strconv.FormatUint(appID, 10)+"/messages",
		map[string]string{"content": content}, &out)
	return out, err
}

func (c *Client) MarkRead(ctx context.Context, appID uint64) (uint64, error) {
	var out struct {
		LastReadID uint64 `json:"lastReadId"`
	}
	err := c.do(ctx, http.MethodPatch, "/api/applications/"+strconv.FormatUint(appID, 10)+"/messages/read", nil, &out)
	return out.LastReadID, err
}

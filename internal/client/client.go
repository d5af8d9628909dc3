// Package client reads helpdesk collections over the HTTP API for polling views.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk/internal/api/dto"
)

// APIError is a non-success response from the API.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api %d %s: %s", e.Status, e.Code, e.Message)
}

// Client is a minimal authenticated API reader.
type Client struct {
	baseURL string
	token   string
	timeout time.Duration
}

// New builds a client. timeout bounds every request.
func New(baseURL, token string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), token: token, timeout: timeout}
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Tickets lists tickets visible to the token's owner. query may be nil.
func (c *Client) Tickets(ctx context.Context, query url.Values) ([]dto.TicketSummary, error) {
	path := "/api/v1/tickets"
	if len(query) > 0 {
		path += "?" + query.Encode()
	}
	var out []dto.TicketSummary
	if err := c.get(ctx, path, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Ticket fetches one ticket with its thread.
func (c *Client) Ticket(ctx context.Context, id string) (*dto.TicketDetailResponse, error) {
	var out dto.TicketDetailResponse
	if err := c.get(ctx, "/api/v1/tickets/"+url.PathEscape(id), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Notices lists the notices visible to the token's owner.
func (c *Client) Notices(ctx context.Context) ([]dto.NoticeResponse, error) {
	var out []dto.NoticeResponse
	if err := c.get(ctx, "/api/v1/notices", &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	timeout := c.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}

	agent := fiber.Get(c.baseURL + path).Timeout(timeout)
	if c.token != "" {
		agent.Set("Authorization", "Bearer "+c.token)
	}
	status, body, errs := agent.Bytes()
	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	if status < 200 || status >= 300 || env.Error != nil {
		apiErr := &APIError{Status: status}
		if env.Error != nil {
			apiErr.Code, apiErr.Message = env.Error.Code, env.Error.Message
		}
		return apiErr
	}
	return json.Unmarshal(env.Data, out)
}

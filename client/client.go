// Package client implements the HTTP side of the board engine: snapshot
// fetches, move persistence and the push event stream.
package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/bytedance/sonic"
	log "github.com/sirupsen/logrus"

	"boardsync/board"
	"boardsync/domain"
)

const responseMaxSize = 4 * 1024 * 1024 // 4 MiB

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.Code, e.Body)
}

// Client talks to a board API. It implements the engine's TaskFetcher,
// StatusFetcher and TaskMover interfaces plus the workflow Fetcher.
type Client struct {
	baseURL string
	tokens  TokenSource
	http    *http.Client
	logger  *log.Logger
}

// New creates a client for the given API base URL.
func New(baseURL string, tokens TokenSource, logger *log.Logger) *Client {
	if tokens == nil {
		tokens = StaticToken("")
	}
	if logger == nil {
		panic("client.New: logger is required")
	}
	return &Client{
		baseURL: baseURL,
		tokens:  tokens,
		http:    &http.Client{Timeout: 60 * time.Second},
		logger:  logger,
	}
}

type tasksResponse struct {
	Tasks []domain.Task `json:"tasks"`
}

type statusesResponse struct {
	Statuses []domain.Status `json:"statuses"`
}

// FetchTasks retrieves the full task snapshot for a board.
func (c *Client) FetchTasks(ctx context.Context, boardID string) ([]domain.Task, error) {
	var resp tasksResponse
	path := "/api/boards/" + url.PathEscape(boardID) + "/tasks"
	if err := c.getJSON(ctx, path, &resp); err != nil {
		return nil, err
	}
	return resp.Tasks, nil
}

// FetchStatuses retrieves the board's column configuration.
func (c *Client) FetchStatuses(ctx context.Context, boardID string) ([]domain.Status, error) {
	var resp statusesResponse
	path := "/api/boards/" + url.PathEscape(boardID) + "/statuses"
	if err := c.getJSON(ctx, path, &resp); err != nil {
		return nil, err
	}
	return resp.Statuses, nil
}

// FetchWorkflow retrieves one workflow definition.
func (c *Client) FetchWorkflow(ctx context.Context, workflowID string) (domain.Workflow, error) {
	var wf domain.Workflow
	path := "/api/workflows/" + url.PathEscape(workflowID)
	if err := c.getJSON(ctx, path, &wf); err != nil {
		return domain.Workflow{}, err
	}
	return wf, nil
}

// MoveTask persists a committed drag.
func (c *Client) MoveTask(ctx context.Context, taskID string, move board.MoveRequest) error {
	body, err := sonic.Marshal(move)
	if err != nil {
		return err
	}
	path := "/api/tasks/" + url.PathEscape(taskID)
	req, err := c.newRequest(ctx, http.MethodPatch, path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if move.IdempotencyKey != "" {
		req.Header.Set("Idempotency-Key", move.IdempotencyKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return statusError(resp)
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, responseMaxSize))
	return nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return statusError(resp)
	}

	dec := sonic.ConfigStd.NewDecoder(io.LimitReader(resp.Body, responseMaxSize))
	return dec.Decode(out)
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("token: %w", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, nil
}

func statusError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	return &StatusError{Code: resp.StatusCode, Body: string(data)}
}

// Package client is the Go client for the Lakitu chat API. It pairs
// the HTTP/SSE transport with a conversation.Conversation so callers
// get multi-round chat with tool call visibility out of one type.
package client

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

	"github.com/koopa0/lakitu/internal/chat"
	"github.com/koopa0/lakitu/internal/conversation"
	"github.com/koopa0/lakitu/internal/log"
	"github.com/koopa0/lakitu/internal/stream"
)

// defaultTimeout bounds one whole round including tool executions.
const defaultTimeout = 300 * time.Second

// ErrRoundFailed indicates the server ended the round with an error
// event. The conversation's LastError carries the detail.
var ErrRoundFailed = errors.New("round failed")

// errRoundOver stops the SSE decoder once the terminal event arrived.
var errRoundOver = errors.New("round over")

// Config contains client parameters.
type Config struct {
	BaseURL    string       // e.g. "http://localhost:8080"
	HTTPClient *http.Client // nil uses a default with a round-scale timeout
	Logger     log.Logger   // nil uses a no-op logger
}

// Client talks to one Lakitu server and tracks one conversation.
// Not safe for concurrent Send calls; the conversation's submit gating
// rejects overlapping rounds.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     log.Logger
	conv       *conversation.Conversation
}

// New creates a Client for the server at cfg.BaseURL.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("base URL is required")
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.NewNop()
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: httpClient,
		logger:     logger,
		conv:       conversation.New(),
	}, nil
}

// Conversation exposes the tracked state for rendering.
func (c *Client) Conversation() *conversation.Conversation {
	return c.conv
}

// Reset discards the conversation and starts a fresh one.
func (c *Client) Reset() {
	c.conv = conversation.New()
}

// Send submits one user message, streams the round, and returns the
// assistant's final text. onEvent, when non-nil, observes every event
// after it has been applied to the conversation.
func (c *Client) Send(ctx context.Context, text string, onEvent func(chat.Event)) (string, error) {
	if err := c.conv.Submit(text); err != nil {
		return "", fmt.Errorf("submit: %w", err)
	}

	body, err := json.Marshal(map[string]any{"messages": c.conv.Messages()})
	if err != nil {
		c.abortRound(err)
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat/stream", bytes.NewReader(body))
	if err != nil {
		c.abortRound(err)
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.abortRound(err)
		return "", fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		err := fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
		c.abortRound(err)
		return "", err
	}

	decodeErr := stream.Decode(ctx, resp.Body, func(ev chat.Event) error {
		if err := c.conv.Apply(ev); err != nil {
			c.logger.Warn("dropping inconsistent event", "type", ev.Type, "error", err)
		} else if onEvent != nil {
			onEvent(ev)
		}
		if ev.Terminal() {
			return errRoundOver
		}
		return nil
	})
	if decodeErr != nil && !errors.Is(decodeErr, errRoundOver) {
		c.abortRound(decodeErr)
		return "", fmt.Errorf("read stream: %w", decodeErr)
	}
	if c.conv.Active() {
		// Stream ended without a terminal event.
		err := errors.New("stream ended before turn finished")
		c.abortRound(err)
		return "", err
	}

	if roundErr := c.conv.LastError(); roundErr != nil {
		return "", fmt.Errorf("%w: %s", ErrRoundFailed, roundErr.Message)
	}

	turns := c.conv.Turns()
	return turns[len(turns)-1].Content, nil
}

// abortRound closes the open round after a transport failure so the
// conversation can accept the next submission.
func (c *Client) abortRound(err error) {
	applyErr := c.conv.Apply(chat.Event{
		Type: chat.EventError,
		Err:  &chat.RoundError{Message: err.Error()},
	})
	if applyErr != nil {
		c.logger.Warn("aborting round", "error", applyErr)
	}
}

// ToolInfo describes one server-side tool.
type ToolInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	LongRunning bool   `json:"longRunning"`
}

// Tools fetches the server's registered tool descriptors.
func (c *Client) Tools(ctx context.Context) ([]ToolInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tools", nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("server returned %d", resp.StatusCode)
	}
	var body struct {
		Tools []ToolInfo `json:"tools"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return body.Tools, nil
}

// Healthy reports whether the server's health probe answers OK.
func (c *Client) Healthy(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server returned %d", resp.StatusCode)
	}
	return nil
}

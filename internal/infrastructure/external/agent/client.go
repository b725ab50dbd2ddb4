// Package agent implements the evaluation agent runtime client.
// This package handles all communication with the hosted AI agent service:
// one invocation per student, each in a fresh session, with the response
// delivered as a stream of text fragments.
package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

// ClientConfig contains configuration for the agent runtime client.
type ClientConfig struct {
	// BaseURL is the agent runtime base URL.
	BaseURL string

	// AgentID identifies the deployed agent.
	AgentID string

	// AgentAliasID identifies the agent alias (deployment stage).
	AgentAliasID string

	// APIKey is the bearer token for authentication (if applicable).
	APIKey string

	// ResponseHeaderTimeout bounds the wait for response headers. The
	// response body is a stream and is not subject to this timeout.
	ResponseHeaderTimeout time.Duration

	// Logger for structured logging.
	Logger *slog.Logger

	// Debug enables debug logging.
	Debug bool
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig(baseURL string) ClientConfig {
	return ClientConfig{
		BaseURL:               baseURL,
		ResponseHeaderTimeout: 30 * time.Second,
	}
}

// Client is the agent runtime client.
type Client struct {
	config     ClientConfig
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a new agent runtime client.
func NewClient(config ClientConfig) *Client {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	return &Client{
		config: config,
		// No overall client timeout: responses are streamed and may
		// legitimately take longer than any fixed request budget.
		httpClient: &http.Client{
			Transport: &http.Transport{
				ResponseHeaderTimeout: config.ResponseHeaderTimeout,
			},
		},
		logger: config.Logger,
	}
}

// invokeRequest is the JSON body of an invocation request.
type invokeRequest struct {
	InputText string `json:"inputText"`
}

// Invoke sends inputText to the agent under the given session identifier and
// returns the response stream. The caller owns the stream and must drain or
// close it.
func (c *Client) Invoke(ctx context.Context, sessionID, inputText string) (*ResponseStream, error) {
	endpoint := fmt.Sprintf("%s/agents/%s/agentAliases/%s/sessions/%s/text",
		c.config.BaseURL,
		url.PathEscape(c.config.AgentID),
		url.PathEscape(c.config.AgentAliasID),
		url.PathEscape(sessionID),
	)

	body, err := json.Marshal(invokeRequest{InputText: inputText})
	if err != nil {
		return nil, fmt.Errorf("agent: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("agent: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	if c.config.Debug {
		c.logger.Debug("invoking agent",
			"agent_id", c.config.AgentID,
			"session_id", sessionID,
		)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("agent: execute request: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, fmt.Errorf("agent: invocation failed with status %d", resp.StatusCode)
	}

	return newResponseStream(resp.Body), nil
}

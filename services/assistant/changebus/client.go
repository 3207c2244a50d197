// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package changebus

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/minbar-platform/minbar/services/assistant/datatypes"
)

// DefaultReconnectDelay is the fixed pause before a reconnect attempt. The
// delay is deliberately constant rather than exponential: change events are
// low-volume and a predictable five seconds keeps client behavior easy to
// reason about.
const DefaultReconnectDelay = 5 * time.Second

// ClientState is the subscriber connection lifecycle.
type ClientState string

const (
	StateConnecting   ClientState = "connecting"
	StateOpen         ClientState = "open"
	StateReconnecting ClientState = "reconnecting"
	StateClosed       ClientState = "closed"
)

// Client is a reconnecting consumer of the /v1/stream SSE endpoint.
//
// # Description
//
// Run connects, forwards every decoded event to OnEvent, and on any
// transport error schedules exactly one reconnect after the fixed delay. A
// reconnect that fails counts as a new error and schedules the next one;
// the client never gives up on its own. Close is terminal.
//
// # Thread Safety
//
// Safe for concurrent use. OnEvent is invoked from Run's goroutine only.
type Client struct {
	// BaseURL is the server root, e.g. "http://assistant:8080".
	BaseURL string
	// Topics are the subscribed routing keys.
	Topics []string
	// OnEvent receives every decoded event. Must be set before Run.
	OnEvent func(datatypes.StreamEvent)
	// ReconnectDelay overrides the fixed reconnect pause. Zero means the
	// default.
	ReconnectDelay time.Duration
	// HTTPClient overrides the transport. Nil means a client with no
	// overall timeout, which a long-lived stream requires.
	HTTPClient *http.Client

	mu     sync.Mutex
	state  ClientState
	closed chan struct{}
	once   sync.Once
}

// NewClient creates a subscriber client for the given topics.
func NewClient(baseURL string, topics []string, onEvent func(datatypes.StreamEvent)) *Client {
	return &Client{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		Topics:  topics,
		OnEvent: onEvent,
		state:   StateConnecting,
		closed:  make(chan struct{}),
	}
}

// State returns the current lifecycle state.
func (c *Client) State() ClientState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Client) setState(s ClientState) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// Close terminates the client. Idempotent; Run returns soon after.
func (c *Client) Close() {
	c.once.Do(func() {
		close(c.closed)
	})
}

// Run consumes the stream until Close is called or ctx is canceled.
//
// Each connection attempt that fails, before or after events flowed, moves
// the client to Reconnecting, waits the fixed delay, and tries again once.
func (c *Client) Run(ctx context.Context) {
	delay := c.ReconnectDelay
	if delay <= 0 {
		delay = DefaultReconnectDelay
	}

	for {
		if c.done(ctx) {
			c.setState(StateClosed)
			return
		}

		c.setState(StateConnecting)
		err := c.consume(ctx)
		if c.done(ctx) {
			c.setState(StateClosed)
			return
		}

		slog.Warn("Change stream connection lost, reconnecting",
			"delay", delay, "error", err)
		c.setState(StateReconnecting)

		select {
		case <-time.After(delay):
		case <-c.closed:
			c.setState(StateClosed)
			return
		case <-ctx.Done():
			c.setState(StateClosed)
			return
		}
	}
}

func (c *Client) done(ctx context.Context) bool {
	select {
	case <-c.closed:
		return true
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

// consume opens one connection and pumps events until it breaks.
func (c *Client) consume(ctx context.Context) error {
	streamURL := fmt.Sprintf("%s/v1/stream?topics=%s",
		c.BaseURL, url.QueryEscape(strings.Join(c.Topics, ",")))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		// Close must tear down the in-flight request, not just the loop.
		select {
		case <-c.closed:
			cancel()
		case <-ctx.Done():
		}
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, streamURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create stream request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")

	httpClient := c.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("stream connection failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("stream returned status %d", resp.StatusCode)
	}

	c.setState(StateOpen)
	slog.Info("Change stream connected", "topics", c.Topics)

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "" {
			continue
		}

		var event datatypes.StreamEvent
		if err := json.Unmarshal([]byte(data), &event); err != nil {
			slog.Warn("Skipping unparseable stream event", "error", err)
			continue
		}
		c.OnEvent(event)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("stream read failed: %w", err)
	}
	return fmt.Errorf("stream ended")
}

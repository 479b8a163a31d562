// Package chat is the outbound side of the chat transport: plain text
// replies posted into threads via the Slack-compatible Web API.
package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/max-mines/epic-bot/core/config"
)

// Poster is what the conversation engine needs from the transport: send
// text to a thread, or ephemerally to one user.
type Poster interface {
	// PostMessage posts text to a channel, threaded under threadTS when
	// non-empty. Returns the posted message's timestamp, which doubles as
	// the thread id for replies to it.
	PostMessage(ctx context.Context, channelID, threadTS, text string) (string, error)

	// PostEphemeral posts text visible only to one user in a channel.
	PostEphemeral(ctx context.Context, channelID, userID, text string) error
}

// Client implements Poster against the Slack Web API.
type Client struct {
	http    *http.Client
	baseURL string
	token   string
}

func NewClient(cfg config.ChatConfig) *Client {
	return &Client{
		http:    &http.Client{Timeout: 30 * time.Second},
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		token:   cfg.BotToken,
	}
}

type postMessageRequest struct {
	Channel  string `json:"channel"`
	Text     string `json:"text"`
	ThreadTS string `json:"thread_ts,omitempty"`
	User     string `json:"user,omitempty"`
}

type apiResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
	TS    string `json:"ts"`
}

func (c *Client) PostMessage(ctx context.Context, channelID, threadTS, text string) (string, error) {
	resp, err := c.call(ctx, "chat.postMessage", postMessageRequest{
		Channel:  channelID,
		Text:     text,
		ThreadTS: threadTS,
	})
	if err != nil {
		return "", err
	}
	return resp.TS, nil
}

func (c *Client) PostEphemeral(ctx context.Context, channelID, userID, text string) error {
	_, err := c.call(ctx, "chat.postEphemeral", postMessageRequest{
		Channel: channelID,
		Text:    text,
		User:    userID,
	})
	return err
}

func (c *Client) call(ctx context.Context, method string, body postMessageRequest) (*apiResponse, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/"+method, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("chat %s: %w", method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4*1024))
		return nil, fmt.Errorf("chat %s http %d: %s", method, resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var apiResp apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("chat %s: decoding response: %w", method, err)
	}
	if !apiResp.OK {
		if apiResp.Error == "" {
			return nil, fmt.Errorf("chat %s failed", method)
		}
		return nil, fmt.Errorf("chat %s failed: %s", method, apiResp.Error)
	}

	return &apiResp, nil
}

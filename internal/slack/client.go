// Package slack implements the message-scraping capabilities the channel
// adapter consumes: channel name resolution and incremental history fetch.
package slack

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/prdeck/prdeck/internal/source"
)

// Client talks to the Slack Web API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

func NewClient(baseURL, token string, httpClient *http.Client) *Client {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = "https://slack.com/api"
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{
		baseURL:    baseURL,
		token:      strings.TrimSpace(token),
		httpClient: httpClient,
	}
}

type envelope struct {
	OK       bool   `json:"ok"`
	Error    string `json:"error"`
	Channels []struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"channels"`
	Messages []struct {
		Text string `json:"text"`
		TS   string `json:"ts"`
	} `json:"messages"`
	ResponseMetadata struct {
		NextCursor string `json:"next_cursor"`
	} `json:"response_metadata"`
}

// ResolveChannelID finds the channel id for a human-readable name, paging
// through conversations.list. The name may carry a leading '#'.
func (c *Client) ResolveChannelID(ctx context.Context, name string) (string, error) {
	name = strings.TrimPrefix(strings.TrimSpace(name), "#")
	if name == "" {
		return "", fmt.Errorf("empty channel name")
	}
	cursor := ""
	for {
		q := url.Values{}
		q.Set("limit", "200")
		q.Set("exclude_archived", "true")
		if cursor != "" {
			q.Set("cursor", cursor)
		}
		env, err := c.call(ctx, "conversations.list", q)
		if err != nil {
			return "", err
		}
		for _, channel := range env.Channels {
			if channel.Name == name {
				return channel.ID, nil
			}
		}
		cursor = env.ResponseMetadata.NextCursor
		if cursor == "" {
			return "", fmt.Errorf("channel %q not found", name)
		}
	}
}

// MessagesSince fetches channel history. A nil since fetches the most recent
// window; otherwise only messages created after the stamp are returned.
func (c *Client) MessagesSince(ctx context.Context, channelID string, since *time.Time) ([]source.Message, error) {
	if strings.TrimSpace(channelID) == "" {
		return nil, fmt.Errorf("empty channel id")
	}
	var messages []source.Message
	cursor := ""
	for {
		q := url.Values{}
		q.Set("channel", channelID)
		q.Set("limit", "200")
		if since != nil {
			q.Set("oldest", formatSlackTS(*since))
		}
		if cursor != "" {
			q.Set("cursor", cursor)
		}
		env, err := c.call(ctx, "conversations.history", q)
		if err != nil {
			return nil, err
		}
		for _, msg := range env.Messages {
			messages = append(messages, source.Message{
				Text:      msg.Text,
				Timestamp: parseSlackTS(msg.TS),
			})
		}
		cursor = env.ResponseMetadata.NextCursor
		if cursor == "" {
			return messages, nil
		}
	}
}

func (c *Client) call(ctx context.Context, method string, q url.Values) (*envelope, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/"+method+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	payload, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return nil, readErr
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &source.HTTPError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(payload))}
	}
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, err
	}
	if !env.OK {
		// Slack reports quota exhaustion in the envelope, not the status.
		if env.Error == "ratelimited" {
			return nil, fmt.Errorf("%s: %w", method, source.ErrRateLimited)
		}
		return nil, fmt.Errorf("%s: %s", method, env.Error)
	}
	return &env, nil
}

// Slack timestamps are fractional seconds since the epoch, e.g.
// "1712345678.000200".
func parseSlackTS(ts string) time.Time {
	value, err := strconv.ParseFloat(ts, 64)
	if err != nil {
		return time.Time{}
	}
	sec := int64(value)
	nsec := int64((value - float64(sec)) * 1e9)
	return time.Unix(sec, nsec).UTC()
}

func formatSlackTS(t time.Time) string {
	return fmt.Sprintf("%d.%06d", t.Unix(), t.Nanosecond()/1000)
}

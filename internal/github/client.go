// Package github implements the hosting-platform capabilities the engine
// consumes: query search, per-PR status, and bare-reference resolution.
package github

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

	"github.com/prdeck/prdeck/internal/inbox"
	"github.com/prdeck/prdeck/internal/source"
)

// Client talks to the GitHub REST API. Transient failures and 5xx responses
// are retried with exponential delay, honoring Retry-After when present.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
}

func NewClient(baseURL, token string, httpClient *http.Client) *Client {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = "https://api.github.com"
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{
		baseURL:    baseURL,
		token:      strings.TrimSpace(token),
		httpClient: httpClient,
		maxRetries: 3,
		baseDelay:  100 * time.Millisecond,
		maxDelay:   2 * time.Second,
	}
}

type searchResponse struct {
	Items []searchItem `json:"items"`
}

type searchItem struct {
	Number  int    `json:"number"`
	Title   string `json:"title"`
	HTMLURL string `json:"html_url"`
	State   string `json:"state"`
	User    struct {
		Login string `json:"login"`
	} `json:"user"`
	PullRequest *struct {
		MergedAt *string `json:"merged_at"`
	} `json:"pull_request"`
}

// SearchPRs runs a free-text search scoped to pull requests. Search results
// carry no head SHA; the status pass fills it in.
func (c *Client) SearchPRs(ctx context.Context, query string) ([]inbox.DiscoveredPR, error) {
	q := url.Values{}
	q.Set("q", query+" type:pr")
	q.Set("per_page", "100")
	var out searchResponse
	if err := c.doJSON(ctx, http.MethodGet, "/search/issues?"+q.Encode(), &out); err != nil {
		return nil, err
	}
	discovered := make([]inbox.DiscoveredPR, 0, len(out.Items))
	for _, item := range out.Items {
		owner, repo, ok := splitPRURL(item.HTMLURL)
		if !ok {
			continue
		}
		state := inbox.PRState(item.State)
		if item.PullRequest != nil && item.PullRequest.MergedAt != nil {
			state = inbox.PRStateMerged
		}
		discovered = append(discovered, inbox.DiscoveredPR{
			Owner:  owner,
			Repo:   repo,
			Number: item.Number,
			Title:  item.Title,
			Author: item.User.Login,
			URL:    item.HTMLURL,
			State:  state,
		})
	}
	return discovered, nil
}

type pullResponse struct {
	Number  int    `json:"number"`
	Title   string `json:"title"`
	HTMLURL string `json:"html_url"`
	State   string `json:"state"`
	Merged  bool   `json:"merged"`
	User    struct {
		Login string `json:"login"`
	} `json:"user"`
	Head struct {
		SHA string `json:"sha"`
	} `json:"head"`
}

// GetStatus returns the current head SHA and open/closed/merged state.
func (c *Client) GetStatus(ctx context.Context, owner, repo string, number int) (inbox.StatusResult, error) {
	pull, err := c.getPull(ctx, owner, repo, number)
	if err != nil {
		return inbox.StatusResult{}, err
	}
	return inbox.StatusResult{
		HeadSHA: pull.Head.SHA,
		State:   pullState(pull),
	}, nil
}

// PRDetails resolves a bare reference to full PR metadata.
func (c *Client) PRDetails(ctx context.Context, owner, repo string, number int) (inbox.DiscoveredPR, error) {
	pull, err := c.getPull(ctx, owner, repo, number)
	if err != nil {
		return inbox.DiscoveredPR{}, err
	}
	return inbox.DiscoveredPR{
		Owner:   owner,
		Repo:    repo,
		Number:  pull.Number,
		Title:   pull.Title,
		Author:  pull.User.Login,
		URL:     pull.HTMLURL,
		HeadSHA: pull.Head.SHA,
		State:   pullState(pull),
	}, nil
}

func (c *Client) getPull(ctx context.Context, owner, repo string, number int) (*pullResponse, error) {
	path := fmt.Sprintf("/repos/%s/%s/pulls/%d", url.PathEscape(owner), url.PathEscape(repo), number)
	var out pullResponse
	if err := c.doJSON(ctx, http.MethodGet, path, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func pullState(pull *pullResponse) inbox.PRState {
	switch {
	case pull.Merged:
		return inbox.PRStateMerged
	case pull.State == "closed":
		return inbox.PRStateClosed
	default:
		return inbox.PRStateOpen
	}
}

func splitPRURL(raw string) (owner, repo string, ok bool) {
	parsed, err := url.Parse(raw)
	if err != nil {
		return "", "", false
	}
	parts := strings.Split(strings.Trim(parsed.Path, "/"), "/")
	if len(parts) < 4 || parts[2] != "pull" {
		return "", "", false
	}
	return parts[0], parts[1], true
}

func (c *Client) doJSON(ctx context.Context, method, requestPath string, out any) error {
	for attempt := 0; ; attempt++ {
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+requestPath, nil)
		if err != nil {
			return err
		}
		req.Header.Set("Accept", "application/vnd.github+json")
		if c.token != "" {
			req.Header.Set("Authorization", "Bearer "+c.token)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if attempt < c.maxRetries {
				if waitErr := waitWithContext(ctx, c.retryDelay(attempt+1, "")); waitErr != nil {
					return waitErr
				}
				continue
			}
			return err
		}
		payload, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			return readErr
		}

		if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
			if out == nil || len(payload) == 0 {
				return nil
			}
			return json.Unmarshal(payload, out)
		}

		if resp.StatusCode >= 500 && resp.StatusCode <= 599 && attempt < c.maxRetries {
			if waitErr := waitWithContext(ctx, c.retryDelay(attempt+1, resp.Header.Get("Retry-After"))); waitErr != nil {
				return waitErr
			}
			continue
		}

		var errPayload struct {
			Message string `json:"message"`
		}
		_ = json.Unmarshal(payload, &errPayload)
		status := resp.StatusCode
		// Secondary rate limits arrive as 403 with a zeroed quota header;
		// normalize them so callers classify on status alone.
		if status == http.StatusForbidden && resp.Header.Get("X-RateLimit-Remaining") == "0" {
			status = http.StatusTooManyRequests
		}
		return &source.HTTPError{
			StatusCode: status,
			Message:    errPayload.Message,
		}
	}
}

func (c *Client) retryDelay(attempt int, retryAfterHeader string) time.Duration {
	maxDelay := c.maxDelay
	if maxDelay <= 0 {
		maxDelay = 2 * time.Second
	}
	if retryAfter := parseRetryAfter(retryAfterHeader); retryAfter > 0 {
		if retryAfter > maxDelay {
			return maxDelay
		}
		return retryAfter
	}
	delay := c.baseDelay
	if delay <= 0 {
		delay = 100 * time.Millisecond
	}
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= maxDelay {
			return maxDelay
		}
	}
	if delay > maxDelay {
		return maxDelay
	}
	return delay
}

func parseRetryAfter(header string) time.Duration {
	header = strings.TrimSpace(header)
	if header == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(header); err == nil && seconds >= 0 {
		return time.Duration(seconds) * time.Second
	}
	if ts, err := time.Parse(time.RFC1123, header); err == nil {
		if delta := time.Until(ts); delta > 0 {
			return delta
		}
	}
	return 0
}

func waitWithContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

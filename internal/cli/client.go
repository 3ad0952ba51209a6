package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/prdeck/prdeck/config"
	"github.com/prdeck/prdeck/internal/inbox"
	"github.com/prdeck/prdeck/internal/service"
)

// apiClient talks to a running "prdeck serve" instance over its local API.
type apiClient struct {
	baseURL string
	http    *http.Client
}

func newAPIClient() (*apiClient, error) {
	cfg, err := config.NewConfig()
	if err != nil {
		return nil, err
	}
	return &apiClient{
		baseURL: "http://" + cfg.ServerAddr(),
		http:    &http.Client{Timeout: 30 * time.Second},
	}, nil
}

func (c *apiClient) GetState(ctx context.Context) (*inbox.State, error) {
	var state inbox.State
	if err := c.do(ctx, http.MethodGet, "/v1/state", nil, &state); err != nil {
		return nil, err
	}
	return &state, nil
}

func (c *apiClient) TriggerPoll(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/v1/poll", nil, nil)
}

func (c *apiClient) AddSource(ctx context.Context, src inbox.Source) (*inbox.Source, error) {
	var added inbox.Source
	if err := c.do(ctx, http.MethodPost, "/v1/sources", src, &added); err != nil {
		return nil, err
	}
	return &added, nil
}

func (c *apiClient) UpdateSource(ctx context.Context, id string, patch service.SourcePatch) error {
	return c.do(ctx, http.MethodPatch, "/v1/sources/"+id, patch, nil)
}

func (c *apiClient) RemoveSource(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/v1/sources/"+id, nil, nil)
}

func (c *apiClient) IgnorePR(ctx context.Context, prID string) error {
	body := map[string]string{"prId": prID}
	return c.do(ctx, http.MethodPost, "/v1/ignore", body, nil)
}

func (c *apiClient) MovePR(ctx context.Context, prID string, column inbox.Column) error {
	body := map[string]any{"prId": prID, "column": column}
	return c.do(ctx, http.MethodPost, "/v1/move", body, nil)
}

func (c *apiClient) AddPR(ctx context.Context, owner, repo string, number int) error {
	body := map[string]any{"owner": owner, "repo": repo, "number": number}
	return c.do(ctx, http.MethodPost, "/v1/prs", body, nil)
}

func (c *apiClient) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(encoded)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("is prdeck serve running? request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var apiErr struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		}
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Message != "" {
			return fmt.Errorf("%s: %s", apiErr.Code, apiErr.Message)
		}
		return fmt.Errorf("unexpected status %d from %s", resp.StatusCode, path)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

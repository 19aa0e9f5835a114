package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// ErrRemoteUnavailable wraps transport-level failures talking to the system
// of record. The orchestrator treats it as a per-operation sync failure.
var ErrRemoteUnavailable = errors.New("remote system unavailable")

// EntityState is the remote side's view of one entity at fetch time.
type EntityState struct {
	Exists    bool           `json:"exists"`
	EntityID  string         `json:"entity_id"`
	Data      map[string]any `json:"data,omitempty"`
	UpdatedAt time.Time      `json:"updated_at"`
}

type Client interface {
	FetchEntity(ctx context.Context, entityType, entityID string) (*EntityState, error)
	// FetchByNaturalKey looks an entity up by a natural key field (e.g. an
	// employee's email) instead of its identifier.
	FetchByNaturalKey(ctx context.Context, entityType, field, value string) (*EntityState, error)
	Upsert(ctx context.Context, entityType, entityID string, state map[string]any) error
	Delete(ctx context.Context, entityType, entityID string) error
}

// HTTPClient talks to the remote HR system of record over its REST API.
type HTTPClient struct {
	baseURL string
	client  *http.Client
}

func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

func (c *HTTPClient) FetchEntity(ctx context.Context, entityType, entityID string) (*EntityState, error) {
	endpoint := fmt.Sprintf("%s/entities/%s/%s", c.baseURL, url.PathEscape(entityType), url.PathEscape(entityID))
	return c.fetch(ctx, endpoint, entityID)
}

func (c *HTTPClient) FetchByNaturalKey(ctx context.Context, entityType, field, value string) (*EntityState, error) {
	endpoint := fmt.Sprintf("%s/entities/%s?%s", c.baseURL, url.PathEscape(entityType),
		url.Values{field: []string{value}}.Encode())
	return c.fetch(ctx, endpoint, "")
}

func (c *HTTPClient) fetch(ctx context.Context, endpoint, entityID string) (*EntityState, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build remote request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRemoteUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return &EntityState{Exists: false, EntityID: entityID}, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: unexpected status %d", ErrRemoteUnavailable, resp.StatusCode)
	}

	var state EntityState
	if err := json.NewDecoder(resp.Body).Decode(&state); err != nil {
		return nil, fmt.Errorf("failed to decode remote entity: %w", err)
	}
	state.Exists = true
	return &state, nil
}

func (c *HTTPClient) Upsert(ctx context.Context, entityType, entityID string, state map[string]any) error {
	body, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal entity state: %w", err)
	}

	endpoint := fmt.Sprintf("%s/entities/%s/%s", c.baseURL, url.PathEscape(entityType), url.PathEscape(entityID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build remote request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return c.expectOK(req)
}

func (c *HTTPClient) Delete(ctx context.Context, entityType, entityID string) error {
	endpoint := fmt.Sprintf("%s/entities/%s/%s", c.baseURL, url.PathEscape(entityType), url.PathEscape(entityID))
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to build remote request: %w", err)
	}

	return c.expectOK(req)
}

func (c *HTTPClient) expectOK(req *http.Request) error {
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRemoteUnavailable, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated, http.StatusNoContent:
		return nil
	case http.StatusNotFound:
		// Deleting an already-deleted entity is fine.
		if req.Method == http.MethodDelete {
			return nil
		}
	}
	return fmt.Errorf("%w: unexpected status %d", ErrRemoteUnavailable, resp.StatusCode)
}

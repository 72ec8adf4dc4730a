//go:build integration

package helpers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

// Revision mirrors the JSON form of a configuration revision.
type Revision struct {
	ID          string          `json:"revision_id"`
	ElementID   string          `json:"element_id"`
	Series      string          `json:"series_name"`
	State       string          `json:"state"`
	ContentType string          `json:"content_type"`
	ContentHash string          `json:"content_hash"`
	Comment     string          `json:"comment,omitempty"`
	Creator     string          `json:"creator,omitempty"`
	Content     json.RawMessage `json:"content,omitempty"`
}

// StoreResult mirrors the JSON form of a store or restore outcome.
type StoreResult struct {
	Revision Revision `json:"revision"`
	Created  bool     `json:"created"`
}

// ConfigClient calls the configuration REST API of one element.
type ConfigClient struct {
	baseURL string
	element string
	user    string
	http    *http.Client
}

// NewConfigClient creates a client acting as user on element.
func NewConfigClient(baseURL, element, user string) *ConfigClient {
	return &ConfigClient{
		baseURL: baseURL,
		element: element,
		user:    user,
		http:    &http.Client{},
	}
}

func (c *ConfigClient) path(format string, args ...any) string {
	return c.baseURL + "/api/v1/elements/" + url.PathEscape(c.element) + fmt.Sprintf(format, args...)
}

// Do sends a JSON request and decodes a JSON response into out. It returns
// the status code.
func (c *ConfigClient) Do(method, target string, body, out any) (int, error) {
	var reader io.Reader = http.NoBody
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("marshaling request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, target, reader) //nolint:noctx // test client
	if err != nil {
		return 0, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.user != "" {
		req.Header.Set("X-Remote-User", c.user)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("sending request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if out != nil && resp.StatusCode < http.StatusMultipleChoices && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("decoding response: %w", err)
		}
	}
	return resp.StatusCode, nil
}

// Store stores content in series.
func (c *ConfigClient) Store(series, state, content, comment string) (*StoreResult, int, error) {
	var out StoreResult
	status, err := c.Do(http.MethodPost, c.path("/configs/%s", series), map[string]any{
		"state":   state,
		"content": content,
		"comment": comment,
	}, &out)
	return &out, status, err
}

// Active returns the ACTIVE revision of series.
func (c *ConfigClient) Active(series string) (*Revision, int, error) {
	var out Revision
	status, err := c.Do(http.MethodGet, c.path("/configs/%s/active", series), nil, &out)
	return &out, status, err
}

// Latest returns the most recent revision of series.
func (c *ConfigClient) Latest(series string) (*Revision, int, error) {
	var out Revision
	status, err := c.Do(http.MethodGet, c.path("/configs/%s", series), nil, &out)
	return &out, status, err
}

// History lists the revisions of series.
func (c *ConfigClient) History(series string) ([]Revision, int, error) {
	var out []Revision
	status, err := c.Do(http.MethodGet, c.path("/configs/%s/revisions", series), nil, &out)
	return out, status, err
}

// Activate activates revision id.
func (c *ConfigClient) Activate(id string) (*Revision, int, error) {
	var out Revision
	status, err := c.Do(http.MethodPost, c.path("/revisions/%s/activate", id), nil, &out)
	return &out, status, err
}

// Restore copies revision id into a new candidate.
func (c *ConfigClient) Restore(id, comment string) (*StoreResult, int, error) {
	var out StoreResult
	status, err := c.Do(http.MethodPost, c.path("/revisions/%s/restore", id), map[string]string{"comment": comment}, &out)
	return &out, status, err
}

// Remove removes revision id.
func (c *ConfigClient) Remove(id string) (int, error) {
	return c.Do(http.MethodDelete, c.path("/revisions/%s", id), nil, nil)
}

// Purge removes revisions of series beyond the history limit.
func (c *ConfigClient) Purge(series string) (int, int, error) {
	var out struct {
		Count int `json:"count"`
	}
	status, err := c.Do(http.MethodPost, c.path("/configs/%s/purge", series), nil, &out)
	return out.Count, status, err
}

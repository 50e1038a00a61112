package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// HTTPClient implements Client against the external system's REST API.
type HTTPClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewHTTPClient creates an HTTPClient. Every request carries the given
// timeout so a stalled source cannot wedge a poll cycle.
func NewHTTPClient(baseURL, apiKey string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

func (c *HTTPClient) QueryIncidents(ctx context.Context, site string, since, until time.Time) ([]Incident, error) {
	q := url.Values{}
	q.Set("since", since.UTC().Format(time.RFC3339))
	q.Set("until", until.UTC().Format(time.RFC3339))

	path := fmt.Sprintf("/api/v1/sites/%s/incidents", url.PathEscape(site))

	var incidents []Incident
	if err := c.get(ctx, path, q, &incidents); err != nil {
		return nil, fmt.Errorf("query incidents for site %s: %w", site, err)
	}
	return incidents, nil
}

func (c *HTTPClient) QueryNotes(ctx context.Context, site, subjectID, category string, since, until time.Time) ([]Note, error) {
	q := url.Values{}
	q.Set("category", category)
	q.Set("since", since.UTC().Format(time.RFC3339))
	q.Set("until", until.UTC().Format(time.RFC3339))

	path := fmt.Sprintf("/api/v1/sites/%s/subjects/%s/notes",
		url.PathEscape(site), url.PathEscape(subjectID))

	var notes []Note
	if err := c.get(ctx, path, q, &notes); err != nil {
		return nil, fmt.Errorf("query notes for subject %s: %w", subjectID, err)
	}
	return notes, nil
}

func (c *HTTPClient) get(ctx context.Context, path string, q url.Values, out interface{}) error {
	u := c.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		// Network failure or timeout: transient, retried next poll.
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		return nil
	case resp.StatusCode == http.StatusNotFound:
		// The source reports "nothing found" as 404 on some deployments;
		// treat it as an empty result, not a failure.
		return nil
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	default:
		return fmt.Errorf("source returned status %d", resp.StatusCode)
	}
}

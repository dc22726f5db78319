package search

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const DefaultEndpoint = "https://api.duckduckgo.com/"

// DuckDuckGo queries the DuckDuckGo Instant Answer API.
type DuckDuckGo struct {
	endpoint string
	client   *http.Client
}

// NewDuckDuckGo creates a client. An empty endpoint uses DefaultEndpoint.
func NewDuckDuckGo(endpoint string) *DuckDuckGo {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	return &DuckDuckGo{
		endpoint: endpoint,
		client:   &http.Client{Timeout: 15 * time.Second},
	}
}

type ddgResponse struct {
	Heading       string     `json:"Heading"`
	AbstractText  string     `json:"AbstractText"`
	AbstractURL   string     `json:"AbstractURL"`
	RelatedTopics []ddgTopic `json:"RelatedTopics"`
}

// ddgTopic is either a leaf result or a named group of topics.
type ddgTopic struct {
	Text     string     `json:"Text"`
	FirstURL string     `json:"FirstURL"`
	Name     string     `json:"Name"`
	Topics   []ddgTopic `json:"Topics"`
}

func (d *DuckDuckGo) Search(ctx context.Context, query string, maxResults int) ([]Result, error) {
	if maxResults <= 0 {
		maxResults = 5
	}

	params := url.Values{}
	params.Set("q", query)
	params.Set("format", "json")
	params.Set("no_html", "1")
	params.Set("skip_disambig", "1")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create search request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("search returned status %d: %s", resp.StatusCode, string(body))
	}

	var payload ddgResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	var results []Result
	if payload.AbstractText != "" {
		results = append(results, Result{
			Title:   payload.Heading,
			Snippet: payload.AbstractText,
			Link:    payload.AbstractURL,
		})
	}
	results = appendTopics(results, payload.RelatedTopics, maxResults)
	if len(results) > maxResults {
		results = results[:maxResults]
	}
	return results, nil
}

func appendTopics(results []Result, topics []ddgTopic, limit int) []Result {
	for _, t := range topics {
		if len(results) >= limit {
			break
		}
		if len(t.Topics) > 0 {
			results = appendTopics(results, t.Topics, limit)
			continue
		}
		if t.Text == "" {
			continue
		}
		title, _, _ := strings.Cut(t.Text, " - ")
		results = append(results, Result{Title: title, Snippet: t.Text, Link: t.FirstURL})
	}
	return results
}

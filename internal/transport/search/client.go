// Package search is the HTTP client for the upstream retrieval indexes. The
// lexical (BM25) and dense (vector) services share the same JSON contract
// and differ only by endpoint.
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/kailas-cloud/fusegate/internal/domain"
)

// Config holds the upstream index endpoints.
type Config struct {
	LexicalURL string
	DenseURL   string
	APIKey     string
	Timeout    time.Duration
}

// Client implements domain.LexicalSearcher and domain.DenseSearcher.
type Client struct {
	lexicalURL string
	denseURL   string
	apiKey     string
	http       *http.Client
}

var (
	_ domain.LexicalSearcher = (*Client)(nil)
	_ domain.DenseSearcher   = (*Client)(nil)
)

// NewClient creates an upstream search client.
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		lexicalURL: cfg.LexicalURL,
		denseURL:   cfg.DenseURL,
		apiKey:     cfg.APIKey,
		http:       &http.Client{Timeout: timeout},
	}
}

type searchRequest struct {
	Query   string   `json:"query"`
	TopK    int      `json:"top_k"`
	Include []string `json:"include,omitempty"`
	Exclude []string `json:"exclude,omitempty"`
	Or      []string `json:"or,omitempty"`
}

type searchHit struct {
	ID      string  `json:"id"`
	DocID   string  `json:"doc_id"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}

type searchResponse struct {
	Hits []searchHit `json:"hits"`
}

// SearchLexical queries the BM25 index, forwarding the parsed boolean hints
// for server-side filtering.
func (c *Client) SearchLexical(ctx context.Context, query string, hints domain.Hints, topK int) ([]domain.Candidate, error) {
	req := searchRequest{
		Query: query, TopK: topK,
		Include: hints.Include, Exclude: hints.Exclude, Or: hints.Or,
	}
	hits, err := c.post(ctx, c.lexicalURL, req)
	if err != nil {
		return nil, err
	}
	return toCandidates(hits, domain.SourceLexical), nil
}

// SearchDense queries the vector index.
func (c *Client) SearchDense(ctx context.Context, query string, topK int) ([]domain.Candidate, error) {
	hits, err := c.post(ctx, c.denseURL, searchRequest{Query: query, TopK: topK})
	if err != nil {
		return nil, err
	}
	return toCandidates(hits, domain.SourceDense), nil
}

func (c *Client) post(ctx context.Context, url string, req searchRequest) ([]searchHit, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal search request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build search request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			return nil, fmt.Errorf("search request: %w", domain.ErrUpstreamTimeout)
		}
		return nil, fmt.Errorf("search request: %w", domain.ErrUpstreamUnavailable)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("search upstream status %d: %s: %w",
			resp.StatusCode, string(msg), domain.ErrUpstreamUnavailable)
	}

	var parsed searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode search response: %w", domain.ErrUpstreamUnavailable)
	}
	return parsed.Hits, nil
}

func isTimeout(err error) bool {
	var t interface{ Timeout() bool }
	return errors.As(err, &t) && t.Timeout()
}

func toCandidates(hits []searchHit, source domain.Source) []domain.Candidate {
	cands := make([]domain.Candidate, 0, len(hits))
	for _, h := range hits {
		docID := h.DocID
		if docID == "" {
			docID = h.ID
		}
		cands = append(cands, domain.Candidate{
			ID: h.ID, DocID: docID, Content: h.Content, Score: h.Score, Source: source,
		})
	}
	return cands
}

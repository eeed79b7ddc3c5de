package index

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// PineconeConfig configures the REST client for a Pinecone-compatible
// serverless index.
type PineconeConfig struct {
	APIKey    string
	Host      string
	Namespace string
	Timeout   time.Duration
}

// Pinecone implements Index against the Pinecone data-plane HTTP API.
type Pinecone struct {
	cfg        PineconeConfig
	httpClient *http.Client
}

// NewPinecone validates the configuration and builds the client. Missing
// credentials fail fast here so no request is ever attempted against an
// unconfigured index.
func NewPinecone(cfg PineconeConfig) (*Pinecone, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("index api_key required")
	}
	if cfg.Host == "" {
		return nil, fmt.Errorf("index host required")
	}
	if !strings.HasPrefix(cfg.Host, "http") {
		cfg.Host = "https://" + cfg.Host
	}
	cfg.Host = strings.TrimSuffix(cfg.Host, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Pinecone{cfg: cfg, httpClient: &http.Client{Timeout: cfg.Timeout}}, nil
}

func (p *Pinecone) Upsert(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	type vector struct {
		ID       string    `json:"id"`
		Values   []float32 `json:"values"`
		Metadata Metadata  `json:"metadata"`
	}
	vectors := make([]vector, len(records))
	for i, rec := range records {
		vectors[i] = vector{ID: rec.ID, Values: rec.Vector, Metadata: rec.Metadata}
	}
	body := map[string]interface{}{"vectors": vectors}
	if p.cfg.Namespace != "" {
		body["namespace"] = p.cfg.Namespace
	}
	return p.post(ctx, "/vectors/upsert", body, nil)
}

func (p *Pinecone) Query(ctx context.Context, vec []float32, topK int) ([]Hit, error) {
	if len(vec) == 0 {
		return nil, fmt.Errorf("query vector must not be empty")
	}
	if topK <= 0 {
		topK = 10
	}
	body := map[string]interface{}{
		"vector":          vec,
		"topK":            topK,
		"includeMetadata": true,
	}
	if p.cfg.Namespace != "" {
		body["namespace"] = p.cfg.Namespace
	}
	var resp struct {
		Matches []struct {
			ID       string   `json:"id"`
			Score    float64  `json:"score"`
			Metadata Metadata `json:"metadata"`
		} `json:"matches"`
	}
	if err := p.post(ctx, "/query", body, &resp); err != nil {
		return nil, err
	}
	hits := make([]Hit, len(resp.Matches))
	for i, m := range resp.Matches {
		hits[i] = Hit{ID: m.ID, Score: m.Score, Metadata: m.Metadata}
	}
	return hits, nil
}

func (p *Pinecone) Fetch(ctx context.Context, id string) (Record, bool, error) {
	q := url.Values{}
	q.Set("ids", id)
	if p.cfg.Namespace != "" {
		q.Set("namespace", p.cfg.Namespace)
	}
	req, err := http.NewRequestWithContext(ctx, "GET", p.cfg.Host+"/vectors/fetch?"+q.Encode(), nil)
	if err != nil {
		return Record{}, false, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Api-Key", p.cfg.APIKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return Record{}, false, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Record{}, false, fmt.Errorf("API returned status: %d", resp.StatusCode)
	}

	var fetchResp struct {
		Vectors map[string]struct {
			ID       string    `json:"id"`
			Values   []float32 `json:"values"`
			Metadata Metadata  `json:"metadata"`
		} `json:"vectors"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&fetchResp); err != nil {
		return Record{}, false, fmt.Errorf("failed to parse response: %w", err)
	}
	vec, ok := fetchResp.Vectors[id]
	if !ok {
		return Record{}, false, nil
	}
	return Record{ID: vec.ID, Vector: vec.Values, Metadata: vec.Metadata}, true, nil
}

func (p *Pinecone) DeleteAll(ctx context.Context) error {
	body := map[string]interface{}{"deleteAll": true}
	if p.cfg.Namespace != "" {
		body["namespace"] = p.cfg.Namespace
	}
	return p.post(ctx, "/vectors/delete", body, nil)
}

func (p *Pinecone) Stats(ctx context.Context) (Stats, error) {
	var resp struct {
		TotalVectorCount int64 `json:"totalVectorCount"`
	}
	if err := p.post(ctx, "/describe_index_stats", map[string]interface{}{}, &resp); err != nil {
		return Stats{}, err
	}
	return Stats{VectorCount: resp.TotalVectorCount}, nil
}

func (p *Pinecone) post(ctx context.Context, path string, body interface{}, out interface{}) error {
	jsonData, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, "POST", p.cfg.Host+path, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Api-Key", p.cfg.APIKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("API returned status: %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

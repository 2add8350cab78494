package search

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/opensearch-project/opensearch-go/v2"
	"github.com/opensearch-project/opensearch-go/v2/opensearchapi"

	"github.com/tbourn/go-match-backend/internal/config"
)

// NewOpenSearchClient builds a client from configuration.
func NewOpenSearchClient(cfg config.OpenSearchConfig) (*opensearch.Client, error) {
	osCfg := opensearch.Config{
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{MinVersion: tls.VersionTLS12},
		},
		Addresses: []string{cfg.URL},
	}
	if cfg.Username != "" && cfg.Password != "" {
		osCfg.Username = cfg.Username
		osCfg.Password = cfg.Password
	}
	return opensearch.NewClient(osCfg)
}

// OpenSearchIndex stores demand vectors in an OpenSearch k-NN index.
type OpenSearchIndex struct {
	client    *opensearch.Client
	index     string
	dimension int
}

// NewOpenSearchIndex wraps client; call EnsureIndex once at startup.
func NewOpenSearchIndex(client *opensearch.Client, index string, dimension int) *OpenSearchIndex {
	return &OpenSearchIndex{client: client, index: index, dimension: dimension}
}

type osDocument struct {
	Vector    []float32 `json:"vector"`
	UserID    string    `json:"user_id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// EnsureIndex creates the k-NN index with a cosine-similarity vector field
// if it does not exist yet.
func (o *OpenSearchIndex) EnsureIndex(ctx context.Context) error {
	exists := opensearchapi.IndicesExistsRequest{Index: []string{o.index}}
	res, err := exists.Do(ctx, o.client)
	if err != nil {
		return fmt.Errorf("failed to check index existence: %w", err)
	}
	res.Body.Close()
	if res.StatusCode == http.StatusOK {
		return nil
	}

	create := opensearchapi.IndicesCreateRequest{
		Index: o.index,
		Body:  strings.NewReader(o.mapping()),
	}
	res, err = create.Do(ctx, o.client)
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("error creating index: %s", res.String())
	}
	return nil
}

func (o *OpenSearchIndex) mapping() string {
	return fmt.Sprintf(`{
	"settings": {"index": {"knn": true}},
	"mappings": {
		"properties": {
			"vector":     {"type": "knn_vector", "dimension": %d, "method": {"name": "hnsw", "space_type": "cosinesimil", "engine": "lucene"}},
			"user_id":    {"type": "keyword"},
			"content":    {"type": "text"},
			"created_at": {"type": "date"},
			"expires_at": {"type": "date"}
		}
	}
}`, o.dimension)
}

// Upsert implements Index.
func (o *OpenSearchIndex) Upsert(ctx context.Context, e Entry) error {
	if o.dimension > 0 && len(e.Vector) != o.dimension {
		return ErrDimensionMismatch
	}
	data, err := json.Marshal(osDocument{
		Vector:    e.Vector,
		UserID:    e.Metadata.UserID,
		Content:   e.Metadata.Content,
		CreatedAt: e.Metadata.CreatedAt,
		ExpiresAt: e.Metadata.ExpiresAt,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal entry: %w", err)
	}
	req := opensearchapi.IndexRequest{
		Index:      o.index,
		DocumentID: e.ID,
		Body:       bytes.NewReader(data),
		Refresh:    "wait_for",
	}
	res, err := req.Do(ctx, o.client)
	if err != nil {
		return fmt.Errorf("failed to index document: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("error indexing document: %s", res.String())
	}
	return nil
}

// Query implements Index using an approximate k-NN query.
func (o *OpenSearchIndex) Query(ctx context.Context, vector []float32, topK int) ([]Match, error) {
	if o.dimension > 0 && len(vector) != o.dimension {
		return nil, ErrDimensionMismatch
	}
	if topK <= 0 {
		topK = 10
	}
	query := map[string]any{
		"size": topK,
		"query": map[string]any{
			"knn": map[string]any{
				"vector": map[string]any{"vector": vector, "k": topK},
			},
		},
		"_source": map[string]any{"excludes": []string{"vector"}},
	}
	body, err := json.Marshal(query)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal query: %w", err)
	}
	req := opensearchapi.SearchRequest{
		Index: []string{o.index},
		Body:  bytes.NewReader(body),
	}
	res, err := req.Do(ctx, o.client)
	if err != nil {
		return nil, fmt.Errorf("failed to execute search: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		if res.StatusCode == http.StatusNotFound {
			return []Match{}, nil
		}
		return nil, fmt.Errorf("search request failed: %s", res.String())
	}

	var parsed struct {
		Hits struct {
			Hits []struct {
				ID     string     `json:"_id"`
				Score  float64    `json:"_score"`
				Source osDocument `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	out := make([]Match, 0, len(parsed.Hits.Hits))
	for _, h := range parsed.Hits.Hits {
		out = append(out, Match{
			ID:    h.ID,
			Score: h.Score,
			Metadata: Metadata{
				UserID:    h.Source.UserID,
				Content:   h.Source.Content,
				CreatedAt: h.Source.CreatedAt,
				ExpiresAt: h.Source.ExpiresAt,
			},
		})
	}
	SortMatches(out)
	return out, nil
}

// Delete implements Index. Missing documents are not an error.
func (o *OpenSearchIndex) Delete(ctx context.Context, ids ...string) error {
	for _, id := range ids {
		req := opensearchapi.DeleteRequest{Index: o.index, DocumentID: id}
		res, err := req.Do(ctx, o.client)
		if err != nil {
			return fmt.Errorf("failed to delete document: %w", err)
		}
		res.Body.Close()
		if res.IsError() && res.StatusCode != http.StatusNotFound {
			return fmt.Errorf("error deleting document %s: %s", id, res.String())
		}
	}
	return nil
}

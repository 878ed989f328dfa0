package sources

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/elastic/go-elasticsearch/v8"

	"recommend-workers/internal/models"
)

// ElasticsearchSource searches an index of normalized candidate documents.
// Documents carry a geo_point under "geo" for location-bound categories.
type ElasticsearchSource struct {
	name     string
	category models.Category
	index    string
	client   *elasticsearch.Client
}

func NewElasticsearchSource(name string, category models.Category, index string, client *elasticsearch.Client) *ElasticsearchSource {
	return &ElasticsearchSource{name: name, category: category, index: index, client: client}
}

func (s *ElasticsearchSource) Name() string              { return s.name }
func (s *ElasticsearchSource) Category() models.Category { return s.category }

func (s *ElasticsearchSource) Fetch(ctx context.Context, q Query) ([]models.Candidate, error) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(s.buildQuery(q)); err != nil {
		return nil, fmt.Errorf("encode search: %w", err)
	}

	res, err := s.client.Search(
		s.client.Search.WithContext(ctx),
		s.client.Search.WithIndex(s.index),
		s.client.Search.WithBody(&buf),
	)
	if err != nil {
		return nil, fmt.Errorf("%s: search: %w", s.name, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("%s: search error: %s", s.name, res.Status())
	}

	var result struct {
		Hits struct {
			Hits []struct {
				ID     string           `json:"_id"`
				Source models.Candidate `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("%s: decode search: %w", s.name, err)
	}

	out := make([]models.Candidate, 0, len(result.Hits.Hits))
	for _, hit := range result.Hits.Hits {
		c := hit.Source
		if c.ID == "" {
			c.ID = hit.ID
		}
		out = append(out, c)
	}
	return normalize(out, s.category, s.name), nil
}

func (s *ElasticsearchSource) buildQuery(q Query) map[string]interface{} {
	filters := []interface{}{
		map[string]interface{}{
			"term": map[string]interface{}{"category": string(s.category)},
		},
	}

	// Upstream filtering uses the same 2x tolerance as the geo filter so it never
	// drops candidates the pipeline would have kept.
	if q.hasLocation() && q.RadiusMeters != nil && *q.RadiusMeters > 0 && s.category.IsLocationBound() {
		filters = append(filters, map[string]interface{}{
			"geo_distance": map[string]interface{}{
				"distance": fmt.Sprintf("%.0fm", *q.RadiusMeters*2),
				"geo":      map[string]float64{"lat": *q.Lat, "lon": *q.Lng},
			},
		})
	}

	boolQuery := map[string]interface{}{"filter": filters}
	if q.Text != "" {
		boolQuery["must"] = []interface{}{
			map[string]interface{}{
				"multi_match": map[string]interface{}{
					"query":  q.Text,
					"fields": []string{"title^3", "description", "tags^2"},
				},
			},
		}
	}

	return map[string]interface{}{
		"size":  q.limitOrDefault(),
		"query": map[string]interface{}{"bool": boolQuery},
	}
}

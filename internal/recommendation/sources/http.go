package sources

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	httpclient "recommend-workers/internal/common/http"
	"recommend-workers/internal/models"
)

// HTTPSource reads candidates from a JSON upstream exposing
// GET {base}/candidates.
type HTTPSource struct {
	name     string
	category models.Category
	baseURL  string
	client   *httpclient.Client
}

func NewHTTPSource(name string, category models.Category, baseURL string, client *httpclient.Client) *HTTPSource {
	return &HTTPSource{
		name:     name,
		category: category,
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   client,
	}
}

func (s *HTTPSource) Name() string              { return s.name }
func (s *HTTPSource) Category() models.Category { return s.category }

type candidatesResponse struct {
	Candidates []models.Candidate `json:"candidates"`
}

func (s *HTTPSource) Fetch(ctx context.Context, q Query) ([]models.Candidate, error) {
	var resp candidatesResponse
	if err := s.client.GetJSON(ctx, s.buildURL(q), &resp); err != nil {
		return nil, fmt.Errorf("%s: %w", s.name, err)
	}
	return normalize(resp.Candidates, s.category, s.name), nil
}

func (s *HTTPSource) buildURL(q Query) string {
	params := url.Values{}
	params.Set("category", string(s.category))
	params.Set("limit", strconv.Itoa(q.limitOrDefault()))
	if q.hasLocation() {
		params.Set("lat", strconv.FormatFloat(*q.Lat, 'f', -1, 64))
		params.Set("lng", strconv.FormatFloat(*q.Lng, 'f', -1, 64))
	}
	if q.RadiusMeters != nil {
		params.Set("radius", strconv.FormatFloat(*q.RadiusMeters, 'f', 0, 64))
	}
	if q.Text != "" {
		params.Set("q", q.Text)
	}
	return s.baseURL + "/candidates?" + params.Encode()
}

package sources

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/elastic/go-elasticsearch/v8"

	httpclient "recommend-workers/internal/common/http"
	"recommend-workers/internal/common/logger"
	"recommend-workers/internal/models"
	"recommend-workers/pkg/registry"
)

// Backends holds the shared clients sources are built on. A nil backend makes
// manifest entries of that kind fail to build.
type Backends struct {
	HTTP          *httpclient.Client
	Elasticsearch *elasticsearch.Client
	DefaultIndex  string
	Postgres      *sql.DB
}

// Build turns a manifest into a Registry. Each source is wrapped with its own
// timeout, falling back to defaultTimeout.
func Build(m *registry.SourceManifest, b Backends, defaultTimeout time.Duration, log logger.Logger) (*Registry, error) {
	log = logger.ForComponent(log, "sources")
	built := make([]Source, 0, len(m.Sources))

	for _, def := range m.Sources {
		category, ok := models.ParseCategory(def.Category)
		if !ok {
			return nil, fmt.Errorf("source %q: unknown category %q", def.Name, def.Category)
		}
		name := def.Name
		if name == "" {
			name = fmt.Sprintf("%s-%s", def.Kind, category)
		}

		src, err := buildOne(def, name, category, b)
		if err != nil {
			return nil, fmt.Errorf("source %q: %w", name, err)
		}

		timeout := def.TimeoutOr(defaultTimeout)
		built = append(built, WithTimeout(src, timeout))
		log.Info("Candidate source registered", map[string]interface{}{
			"source":   name,
			"category": string(category),
			"kind":     string(def.Kind),
			"timeout":  timeout.String(),
		})
	}

	return NewRegistry(built...)
}

func buildOne(def registry.SourceDefinition, name string, category models.Category, b Backends) (Source, error) {
	switch def.Kind {
	case registry.KindHTTP:
		if b.HTTP == nil {
			return nil, fmt.Errorf("no http client configured")
		}
		return NewHTTPSource(name, category, def.BaseURL, b.HTTP), nil
	case registry.KindElasticsearch:
		if b.Elasticsearch == nil {
			return nil, fmt.Errorf("no elasticsearch client configured")
		}
		index := def.Index
		if index == "" {
			index = b.DefaultIndex
		}
		return NewElasticsearchSource(name, category, index, b.Elasticsearch), nil
	case registry.KindPostgres:
		if b.Postgres == nil {
			return nil, fmt.Errorf("no postgres connection configured")
		}
		return NewPostgresSource(name, category, def.Table, b.Postgres)
	default:
		return nil, fmt.Errorf("unknown kind %q", def.Kind)
	}
}

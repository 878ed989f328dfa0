// pkg/registry/schema.go
package registry

// SourceManifest lists the candidate source bound to each category. It is read
// once at startup.
type SourceManifest struct {
	Version     string             `json:"version"`
	LastUpdated string             `json:"lastUpdated"`
	Sources     []SourceDefinition `json:"sources"`
}

type SourceKind string

const (
	KindHTTP          SourceKind = "http"
	KindElasticsearch SourceKind = "elasticsearch"
	KindPostgres      SourceKind = "postgres"
)

type SourceDefinition struct {
	Name        string     `json:"name"`
	Category    string     `json:"category"`
	Kind        SourceKind `json:"kind"`
	BaseURL     string     `json:"baseUrl,omitempty"`
	Index       string     `json:"index,omitempty"`
	Table       string     `json:"table,omitempty"`
	Timeout     string     `json:"timeout,omitempty"`
	Description string     `json:"description,omitempty"`
	Tags        []string   `json:"tags,omitempty"`
}

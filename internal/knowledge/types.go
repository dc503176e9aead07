package knowledge

import (
	"fmt"
	"time"
)

// CollectionDocumentation holds chunked markdown documentation.
const CollectionDocumentation = "documentation"

// CaseStudyCollection names the collection of simulated retrofit scenarios
// for one climate scenario year.
func CaseStudyCollection(timeHorizon int) string {
	return fmt.Sprintf("case_studies_%d", timeHorizon)
}

// Document is one entry in the knowledge store.
type Document struct {
	ID         string
	Collection string
	Content    string
	Metadata   map[string]string
	CreatedAt  time.Time
}

// Result is a single search hit with its cosine similarity score.
type Result struct {
	Document   Document
	Similarity float32
}

// SearchOption configures search behavior using functional options.
type SearchOption func(*searchConfig)

type searchConfig struct {
	topK       int
	collection string
	filter     map[string]string
	timeout    time.Duration
}

// WithTopK sets the maximum number of results to return. Default is 5.
func WithTopK(k int) SearchOption {
	return func(c *searchConfig) {
		c.topK = k
	}
}

// WithCollection restricts the search to a single collection.
func WithCollection(name string) SearchOption {
	return func(c *searchConfig) {
		c.collection = name
	}
}

// WithFilter adds a metadata filter. Multiple filters combine with AND.
func WithFilter(key, value string) SearchOption {
	return func(c *searchConfig) {
		if c.filter == nil {
			c.filter = make(map[string]string)
		}
		c.filter[key] = value
	}
}

func buildSearchConfig(opts []SearchOption) *searchConfig {
	cfg := &searchConfig{
		topK:    5,
		timeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

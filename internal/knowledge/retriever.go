package knowledge

import (
	"context"

	"github.com/isabella-tue/retrofit/internal/log"
)

// defaultTimeHorizon is the climate scenario assumed when the session has
// not established one.
const defaultTimeHorizon = 2020

// Retriever performs hybrid retrieval: documentation chunks plus case
// studies matching the session's climate scenario.
type Retriever struct {
	store  *Store
	nDocs  int
	nCases int
	logger log.Logger
}

// NewRetriever creates a retriever that fetches nDocs documentation chunks
// and nCases case studies per query.
func NewRetriever(store *Store, nDocs, nCases int, logger log.Logger) *Retriever {
	return &Retriever{store: store, nDocs: nDocs, nCases: nCases, logger: logger}
}

// Retrieve returns documentation and case study hits for the query.
// A failing collection is logged and skipped rather than failing the whole
// retrieval; chat answers degrade gracefully without context.
func (r *Retriever) Retrieve(ctx context.Context, query string, timeHorizon int) []Result {
	if timeHorizon == 0 {
		timeHorizon = defaultTimeHorizon
	}

	var results []Result

	docs, err := r.store.Search(ctx, query,
		WithCollection(CollectionDocumentation), WithTopK(r.nDocs))
	if err != nil {
		r.logger.Warn("documentation retrieval failed", "error", err)
	} else {
		results = append(results, docs...)
	}

	cases, err := r.store.Search(ctx, query,
		WithCollection(CaseStudyCollection(timeHorizon)), WithTopK(r.nCases))
	if err != nil {
		r.logger.Warn("case study retrieval failed",
			"time_horizon", timeHorizon, "error", err)
	} else {
		results = append(results, cases...)
	}

	return results
}

// SimilarBuildings finds case studies resembling a natural language
// building description.
func (r *Retriever) SimilarBuildings(ctx context.Context, query string, timeHorizon, n int) ([]Result, error) {
	if timeHorizon == 0 {
		timeHorizon = defaultTimeHorizon
	}
	return r.store.Search(ctx, query,
		WithCollection(CaseStudyCollection(timeHorizon)), WithTopK(n))
}

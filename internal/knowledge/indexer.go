package knowledge

import (
	"context"
	"errors"
	"fmt"

	"github.com/isabella-tue/retrofit/internal/log"
)

// indexBatchSize bounds how many documents share one embedding request.
const indexBatchSize = 100

// caseStudyYears are the climate scenario years with simulation exports.
var caseStudyYears = []int{2020, 2050, 2100}

// Indexer loads documentation and case studies into the knowledge store.
// Reindexing a collection replaces its previous contents.
type Indexer struct {
	store     *Store
	docsDir   string
	inputsDir string
	logger    log.Logger
}

// NewIndexer creates an indexer reading markdown from docsDir and
// simulation CSVs from inputsDir.
func NewIndexer(store *Store, docsDir, inputsDir string, logger log.Logger) *Indexer {
	return &Indexer{
		store:     store,
		docsDir:   docsDir,
		inputsDir: inputsDir,
		logger:    logger,
	}
}

// IndexDocs chunks and indexes every markdown file in the docs directory.
// Returns the number of chunks indexed.
func (i *Indexer) IndexDocs(ctx context.Context) (int, error) {
	chunks, err := ChunkMarkdownDir(i.docsDir)
	if err != nil {
		return 0, fmt.Errorf("chunk documentation: %w", err)
	}
	if len(chunks) == 0 {
		i.logger.Warn("no markdown files found", "dir", i.docsDir)
		return 0, nil
	}

	if err := i.store.DeleteCollection(ctx, CollectionDocumentation); err != nil {
		return 0, err
	}

	docs := make([]Document, len(chunks))
	for n, chunk := range chunks {
		docs[n] = Document{
			ID:         fmt.Sprintf("doc_%d", n),
			Collection: CollectionDocumentation,
			Content:    chunk.Text,
			Metadata:   chunk.Metadata,
		}
	}
	if err := i.addInBatches(ctx, docs); err != nil {
		return 0, err
	}

	i.logger.Info("indexed documentation", "chunks", len(docs), "dir", i.docsDir)
	return len(docs), nil
}

// IndexCaseStudies indexes the simulation results for one climate scenario
// year. Returns the number of rows indexed; a missing CSV is not an error.
func (i *Indexer) IndexCaseStudies(ctx context.Context, timeHorizon int) (int, error) {
	path, err := FindCaseStudyCSV(i.inputsDir, timeHorizon)
	if err != nil {
		if errors.Is(err, ErrNoCaseStudyCSV) {
			i.logger.Warn("no case study CSV", "time_horizon", timeHorizon, "dir", i.inputsDir)
			return 0, nil
		}
		return 0, err
	}

	docs, err := ReadCaseStudies(path, timeHorizon)
	if err != nil {
		return 0, err
	}
	if len(docs) == 0 {
		return 0, nil
	}

	if err := i.store.DeleteCollection(ctx, CaseStudyCollection(timeHorizon)); err != nil {
		return 0, err
	}
	if err := i.addInBatches(ctx, docs); err != nil {
		return 0, err
	}

	i.logger.Info("indexed case studies",
		"time_horizon", timeHorizon, "rows", len(docs), "file", path)
	return len(docs), nil
}

// Run indexes documentation and every case study year.
func (i *Indexer) Run(ctx context.Context) error {
	docCount, err := i.IndexDocs(ctx)
	if err != nil {
		return err
	}

	total := docCount
	for _, year := range caseStudyYears {
		count, err := i.IndexCaseStudies(ctx, year)
		if err != nil {
			return err
		}
		total += count
	}

	i.logger.Info("indexing complete", "documents", total)
	return nil
}

func (i *Indexer) addInBatches(ctx context.Context, docs []Document) error {
	for start := 0; start < len(docs); start += indexBatchSize {
		end := min(start+indexBatchSize, len(docs))
		if err := i.store.AddBatch(ctx, docs[start:end]); err != nil {
			return err
		}
	}
	return nil
}

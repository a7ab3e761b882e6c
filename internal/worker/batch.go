package worker

import (
	"context"

	"github.com/personaforge/personaforge/internal/model"
)

// Extractor turns one input source into extraction records. The pipeline
// implements this; the batch layer only handles the fan-out.
type Extractor interface {
	ExtractSource(ctx context.Context, source model.InputSource) ([]model.ExtractionRecord, error)
}

// ExtractionJob extracts one source.
type ExtractionJob struct {
	Source    model.InputSource
	Extractor Extractor
}

// Execute runs the extraction job.
func (j *ExtractionJob) Execute(ctx context.Context) Result {
	records, err := j.Extractor.ExtractSource(ctx, j.Source)
	return &ExtractionResult{
		SourceID: j.Source.ID,
		Records:  records,
		Error:    err,
	}
}

// ExtractionResult is the outcome of one source's extraction.
type ExtractionResult struct {
	SourceID string
	Records  []model.ExtractionRecord
	Error    error
}

// GetError returns the error from the extraction result.
func (r *ExtractionResult) GetError() error {
	return r.Error
}

// BatchProcessor extracts multiple sources concurrently.
type BatchProcessor struct {
	extractor   Extractor
	concurrency int
}

// NewBatchProcessor creates a new batch processor.
func NewBatchProcessor(extractor Extractor, concurrency int) *BatchProcessor {
	return &BatchProcessor{
		extractor:   extractor,
		concurrency: concurrency,
	}
}

// ProcessSources fans the sources out over the worker pool and collects
// per-source results. Result order follows completion, not submission.
// Submission runs on its own goroutine while this one drains, so the pool
// buffers never limit the batch size.
func (b *BatchProcessor) ProcessSources(ctx context.Context, sources []model.InputSource) []*ExtractionResult {
	if len(sources) == 0 {
		return []*ExtractionResult{}
	}

	pool := NewPool(ctx, b.concurrency)
	pool.Start()

	go func() {
		for _, source := range sources {
			pool.Submit(&ExtractionJob{
				Source:    source,
				Extractor: b.extractor,
			})
		}
		pool.Close()
	}()

	results := pool.Wait()

	extractionResults := make([]*ExtractionResult, len(results))
	for i, result := range results {
		extractionResults[i] = result.(*ExtractionResult)
	}

	return extractionResults
}

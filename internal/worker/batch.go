package worker

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/ppiankov/rollcall/internal/model"
	"github.com/ppiankov/rollcall/internal/pipeline"
)

// Advancer drives one artifact until it stops making progress
type Advancer interface {
	Run(ctx context.Context, artifactID string) (pipeline.Outcome, error)
}

// DueLister lists artifacts ready for their next stage
type DueLister interface {
	DueArtifacts(ctx context.Context, now time.Time, limit int) ([]model.Artifact, error)
}

// AdvanceJob advances one artifact
type AdvanceJob struct {
	ArtifactID string
	Index      int
	Advancer   Advancer
}

// Execute runs the artifact through the pipeline
func (j *AdvanceJob) Execute(ctx context.Context) Result {
	out, err := j.Advancer.Run(ctx, j.ArtifactID)
	return &AdvanceResult{
		ArtifactID: j.ArtifactID,
		Index:      j.Index,
		Outcome:    out,
		Error:      err,
	}
}

// AdvanceResult is where an artifact ended up after a batch pass
type AdvanceResult struct {
	ArtifactID string
	Index      int
	Outcome    pipeline.Outcome
	Error      error
}

// GetError returns the error from advancing the artifact
func (r *AdvanceResult) GetError() error {
	return r.Error
}

// BatchProcessor advances many artifacts concurrently. Artifacts are
// independent: one failing or paused artifact does not hold up the others.
type BatchProcessor struct {
	advancer    Advancer
	concurrency int
	logger      *slog.Logger
}

// NewBatchProcessor creates a batch processor
func NewBatchProcessor(advancer Advancer, concurrency int, logger *slog.Logger) *BatchProcessor {
	if logger == nil {
		logger = slog.Default()
	}
	return &BatchProcessor{
		advancer:    advancer,
		concurrency: concurrency,
		logger:      logger,
	}
}

// ProcessArtifacts advances ids concurrently and returns results in input order
func (b *BatchProcessor) ProcessArtifacts(ctx context.Context, ids []string) []*AdvanceResult {
	if len(ids) == 0 {
		return []*AdvanceResult{}
	}

	pool := NewPool(ctx, b.concurrency)
	pool.Start()

	out := make([]*AdvanceResult, len(ids))
	for i, id := range ids {
		if !pool.Submit(&AdvanceJob{ArtifactID: id, Index: i, Advancer: b.advancer}) {
			out[i] = &AdvanceResult{ArtifactID: id, Index: i, Error: ctx.Err()}
		}
	}

	for _, r := range pool.Wait() {
		ar, ok := r.(*AdvanceResult)
		if !ok {
			b.logger.Error("Artifact job failed", "error", r.GetError())
			continue
		}
		out[ar.Index] = ar
	}
	for i, r := range out {
		if r == nil {
			out[i] = &AdvanceResult{ArtifactID: ids[i], Index: i, Error: fmt.Errorf("artifact %s was not processed", ids[i])}
		}
		if out[i].Error != nil {
			b.logger.Warn("Artifact advance failed", "artifact_id", ids[i], "error", out[i].Error)
		}
	}
	return out
}

// ProcessDue advances up to limit artifacts that are due at now
func (b *BatchProcessor) ProcessDue(ctx context.Context, lister DueLister, now time.Time, limit int) ([]*AdvanceResult, error) {
	due, err := lister.DueArtifacts(ctx, now, limit)
	if err != nil {
		return nil, fmt.Errorf("list due artifacts: %w", err)
	}
	ids := make([]string, 0, len(due))
	for _, a := range due {
		ids = append(ids, a.ID)
	}
	return b.ProcessArtifacts(ctx, ids), nil
}

// ProcessFile reads artifact ids from a file and advances them
func (b *BatchProcessor) ProcessFile(ctx context.Context, filePath string) ([]*AdvanceResult, error) {
	ids, err := ReadIDsFromFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("read artifact ids: %w", err)
	}

	return b.ProcessArtifacts(ctx, ids), nil
}

// Tally counts results per outcome; errors are counted under "error"
func Tally(results []*AdvanceResult) map[string]int {
	out := make(map[string]int)
	for _, r := range results {
		if r.Error != nil {
			out["error"]++
			continue
		}
		out[string(r.Outcome)]++
	}
	return out
}

// ReadIDsFromFile reads one artifact id per line, skipping blanks, comments
// and duplicates
func ReadIDsFromFile(filePath string) ([]string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer func() { _ = file.Close() }()

	var ids []string
	seen := make(map[string]bool)

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if !seen[line] {
			seen[line] = true
			ids = append(ids, line)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan file: %w", err)
	}

	return ids, nil
}

// Package batch converts several statements concurrently. Each document is
// parsed on its own; a failure is recorded in that document's Result and never
// affects the others.
package batch

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/insightdelivered/releve-converter/internal/logger"
	"github.com/insightdelivered/releve-converter/internal/models"
	"github.com/insightdelivered/releve-converter/internal/parser"
)

// DefaultWorkers is used when Run is given a non-positive worker count.
const DefaultWorkers = 4

// Job is one document to convert.
type Job struct {
	// Name identifies the document in results and logs, usually its path.
	Name string
	// Load returns the document's text lines.
	Load func(ctx context.Context) ([]string, error)
}

// Result is the outcome of one Job.
type Result struct {
	Name      string
	RunID     uuid.UUID
	Statement *models.Statement
	Err       error
	Duration  time.Duration
}

// OK reports whether the document converted.
func (r Result) OK() bool { return r.Err == nil }

// Run parses jobs with at most workers in flight and returns one Result per
// job, in input order. The returned error is non-nil only when ctx ends
// before every job ran; document failures live in the results.
func Run(ctx context.Context, p *parser.Parser, jobs []Job, workers int) ([]Result, error) {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	log := logger.FromContext(ctx).With().Str("component", "batch").Logger()

	results := make([]Result, len(jobs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i, job := range jobs {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			results[i] = runOne(gctx, p, job)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		for i := range results {
			if results[i].RunID == uuid.Nil {
				results[i] = Result{Name: jobs[i].Name, Err: err}
			}
		}
		return results, fmt.Errorf("batch interrupted: %w", err)
	}

	failed := 0
	for _, r := range results {
		if !r.OK() {
			failed++
		}
	}
	log.Info().Int("documents", len(jobs)).Int("failed", failed).Msg("batch finished")
	return results, nil
}

func runOne(ctx context.Context, p *parser.Parser, job Job) (res Result) {
	res = Result{Name: job.Name, RunID: uuid.New()}
	log := logger.FromContext(ctx).With().
		Str("document", job.Name).
		Str("run_id", res.RunID.String()).
		Logger()
	ctx = logger.WithContext(ctx, log)

	start := time.Now()
	defer func() { res.Duration = time.Since(start) }()

	lines, err := job.Load(ctx)
	if err != nil {
		res.Err = fmt.Errorf("load %s: %w", job.Name, err)
		log.Error().Err(err).Msg("document load failed")
		return res
	}

	stmt, err := p.Parse(ctx, lines)
	if err != nil {
		res.Err = err
		log.Error().Err(err).Str("kind", parser.Kind(err)).Msg("document rejected")
		return res
	}
	res.Statement = stmt
	return res
}

package inspection

import (
	"cmp"
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/sourcegraph/conc/pool"
)

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) { r.logger = l }
}

// Runner runs a set of inspections concurrently.
type Runner struct {
	inspections []Inspection
	logger      *slog.Logger
}

// NewRunner returns a Runner for inspections.
func NewRunner(inspections []Inspection, opts ...Option) *Runner {
	r := &Runner{inspections: inspections, logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Inspections returns the inspections the runner executes.
func (r *Runner) Inspections() []Inspection {
	return r.inspections
}

// Run executes every inspection whose severity is not DoNotShow and
// returns the unsuppressed results ordered by module, position and
// inspection name.
func (r *Runner) Run(ctx context.Context, s *Snapshot) ([]Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p := pool.NewWithResults[[]Result]().WithContext(ctx)
	for _, insp := range r.inspections {
		if insp.Severity() == DoNotShow {
			continue
		}
		p.Go(func(ctx context.Context) ([]Result, error) {
			results, err := insp.Inspect(ctx, s)
			if err != nil {
				return nil, fmt.Errorf("inspection %s: %w", insp.Name(), err)
			}
			r.logger.Debug("inspection finished", "inspection", insp.Name(), "results", len(results))
			return results, nil
		})
	}
	batches, err := p.Wait()
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	if err != nil {
		return nil, err
	}

	var out []Result
	suppressed := 0
	for _, batch := range batches {
		for _, res := range batch {
			if isSuppressed(res, s) {
				suppressed++
				continue
			}
			out = append(out, res)
		}
	}
	slices.SortFunc(out, compareResults)
	r.logger.Info("inspections complete", "results", len(out), "suppressed", suppressed)
	return out, nil
}

func compareResults(a, b Result) int {
	if c := cmp.Compare(a.Module.String(), b.Module.String()); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Line, b.Line); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Col, b.Col); c != 0 {
		return c
	}
	return cmp.Compare(a.Inspection, b.Inspection)
}

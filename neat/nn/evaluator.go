package nn

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/baldhumanity/neatgraph/neat"
)

// Evaluator scores a compiled phenotype.
type Evaluator interface {
	Evaluate(ctx context.Context, p *Program) (float64, error)
}

// EvaluatorFunc adapts a plain function to Evaluator.
type EvaluatorFunc func(ctx context.Context, p *Program) (float64, error)

func (f EvaluatorFunc) Evaluate(ctx context.Context, p *Program) (float64, error) {
	return f(ctx, p)
}

// EvaluateAll turns an Evaluator into a population fitness function that
// compiles and scores up to workers organisms at a time. The first error
// cancels the remaining evaluations.
func EvaluateAll(evaluator Evaluator, workers int) neat.FitnessFunc {
	return func(ctx context.Context, organisms []*neat.Organism) error {
		eg, ctx := errgroup.WithContext(ctx)
		eg.SetLimit(max(workers, 1))
		for _, o := range organisms {
			eg.Go(func() error {
				if err := ctx.Err(); err != nil {
					return err
				}
				prog, err := Compile(o.Genome)
				if err != nil {
					return fmt.Errorf("organism %d: %w", o.Key, err)
				}
				fitness, err := evaluator.Evaluate(ctx, prog)
				if err != nil {
					return fmt.Errorf("organism %d: %w", o.Key, err)
				}
				o.Fitness = fitness
				return nil
			})
		}
		return eg.Wait()
	}
}

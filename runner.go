package dataflow

import (
	"context"
	"errors"
	"fmt"

	"github.com/creastat/dataflow/core"
	"github.com/creastat/infra/telemetry"
)

// ErrStalled is returned when no operator could be fired for too many rounds
// while some were still unfinished
var ErrStalled = errors.New("dataflow stalled")

// RunnerConfig configures a Runner
type RunnerConfig struct {
	Operators []*Operator
	// Active reports operators that have work of their own without input
	// data, such as sources. An active operator is fired even when it has
	// no input and is closed only once it is no longer active. Nil means
	// none are.
	Active func(op *Operator) bool
	// MaxIdleRounds defaults to DefaultConfig().Runner.MaxIdleRounds
	MaxIdleRounds int
	Logger        telemetry.Logger
}

// Runner is a reference single-goroutine driver. It polls every operator in
// round-robin order, fires the schedulable ones and closes the finished ones.
// Backpressure is level-triggered: a blocked operator is simply skipped
// until a later round observes that it can make progress again.
type Runner struct {
	ops           []*Operator
	active        func(op *Operator) bool
	maxIdleRounds int
	logger        telemetry.Logger
}

// NewRunner creates a runner over the given operators
func NewRunner(config RunnerConfig) *Runner {
	maxIdle := config.MaxIdleRounds
	if maxIdle <= 0 {
		maxIdle = DefaultConfig().Runner.MaxIdleRounds
	}
	active := config.Active
	if active == nil {
		active = func(*Operator) bool { return false }
	}
	return &Runner{
		ops:           config.Operators,
		active:        active,
		maxIdleRounds: maxIdle,
		logger:        config.Logger.WithModule("runner"),
	}
}

// Run drives the operators until all of them finished. A fatal fire error,
// a stall or a cancelled context tears every operator down and is returned.
func (r *Runner) Run(ctx context.Context) error {
	defer r.closeAll()

	r.logger.Info("runner started", telemetry.Int("operators", len(r.ops)))

	idleRounds := 0
	for round := 0; ; round++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		// progress counts closes and successful fires; a retryable failure
		// leaves the dataflow where it was
		open, progress := 0, 0
		var retry error
		for _, op := range r.ops {
			if op.closed {
				continue
			}
			active := r.active(op)
			if !active && op.IsFinished() {
				op.Close()
				progress++
				continue
			}
			open++

			// blocks are lifted only inside Fire, so a blocked operator is
			// polled even when it has no data of its own
			ok, err := op.Schedulable(active || op.hasBlocks())
			if err != nil {
				r.logger.Error("failed to poll operator", telemetry.String("operator", op.Info().String()), telemetry.Err(err))
				return fmt.Errorf("poll %v: %w", op.Info(), err)
			}
			if !ok {
				continue
			}

			if err := op.Fire(); err != nil {
				if core.IsRetryable(err) {
					r.logger.Warn("fire failed, will retry", telemetry.String("operator", op.Info().String()), telemetry.Err(err))
					retry = err
					continue
				}
				r.logger.Error("fire failed", telemetry.String("operator", op.Info().String()), telemetry.Err(err))
				return fmt.Errorf("fire %v: %w", op.Info(), err)
			}
			progress++
		}

		if open == 0 {
			r.logger.Info("runner finished", telemetry.Int("rounds", round+1))
			return nil
		}

		if progress > 0 {
			idleRounds = 0
			continue
		}
		idleRounds++
		if idleRounds >= r.maxIdleRounds {
			r.logger.Error("runner stalled", telemetry.Int("open_operators", open), telemetry.Int("rounds", round+1))
			if retry != nil {
				return fmt.Errorf("%d operators unfinished after %d idle rounds: %w: %w", open, idleRounds, ErrStalled, retry)
			}
			return fmt.Errorf("%d operators unfinished after %d idle rounds: %w", open, idleRounds, ErrStalled)
		}
	}
}

func (r *Runner) closeAll() {
	for _, op := range r.ops {
		if !op.closed {
			op.Close()
		}
	}
}

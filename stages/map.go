package stages

import (
	"fmt"

	"github.com/creastat/dataflow/core"
	"github.com/creastat/infra/telemetry"
)

// MapFunc transforms one record. Returning an error marked with
// core.Retryable keeps the operator schedulable; any other error is fatal.
type MapFunc func(record any) (any, error)

// MapConfig holds map stage configuration
type MapConfig struct {
	Fn MapFunc
	// MaxBatchesPerFire bounds the batches pulled from each input in one
	// fire. Zero means drain whatever is available.
	MaxBatchesPerFire int
	Logger            telemetry.Logger
}

// Map applies a function to every record and writes the results to every
// output under the tag of the source batch
type Map struct {
	config MapConfig
}

// NewMap creates a new map stage
func NewMap(config MapConfig) *Map {
	return &Map{config: config}
}

// Name returns the stage name
func (m *Map) Name() string {
	return "map"
}

// OnReceive implements core.OperatorCore. A batch interrupted by a
// retryable failure is handed back to an input that implements
// core.BatchRequeuer and applied again on a later fire. Batches already
// written stay written.
func (m *Map) OnReceive(inputs []core.Input, outputs []core.Output) error {
	if m.config.Fn == nil {
		return core.Fatal(fmt.Errorf("%s: no function configured", m.Name()))
	}
	writers, err := batchWriters(outputs)
	if err != nil {
		return err
	}

	for index, input := range inputs {
		reader, ok := input.(core.BatchReader)
		if !ok {
			return core.Fatal(fmt.Errorf("%s: input %d cannot be read", m.Name(), index))
		}
		for pulled := 0; m.config.MaxBatchesPerFire <= 0 || pulled < m.config.MaxBatchesPerFire; pulled++ {
			batch, ok := reader.Pull()
			if !ok {
				break
			}

			out, err := m.apply(batch)
			if err != nil {
				if rq, ok := input.(core.BatchRequeuer); ok && core.IsRetryable(err) {
					rq.Requeue(batch)
				}
				return err
			}
			for _, w := range writers {
				if err := w.Push(out); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func (m *Map) apply(batch core.Batch) (core.Batch, error) {
	records := make([]any, 0, len(batch.Records))
	for _, record := range batch.Records {
		result, err := m.config.Fn(record)
		if err != nil {
			m.config.Logger.Warn("map function failed",
				telemetry.String("tag", batch.Tag.String()),
				telemetry.Bool("retryable", core.IsRetryable(err)),
				telemetry.Err(err))
			return core.Batch{}, err
		}
		records = append(records, result)
	}
	return core.Batch{Tag: batch.Tag, Records: records}, nil
}

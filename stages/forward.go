// Package stages holds ready-made operator computations for dataflows built
// on the memport data plane, or on any data plane whose ports implement
// core.BatchReader and core.BatchWriter.
package stages

import (
	"fmt"

	"github.com/creastat/dataflow/core"
	"github.com/creastat/infra/telemetry"
)

// ForwardConfig holds forward stage configuration
type ForwardConfig struct {
	// MaxBatchesPerFire bounds the batches pulled from each input in one
	// fire. Zero means drain whatever is available.
	MaxBatchesPerFire int
	Logger            telemetry.Logger
}

// Forward copies every batch it reads to every output. Scope ends take the
// default notification path.
type Forward struct {
	config ForwardConfig
}

// NewForward creates a new forward stage
func NewForward(config ForwardConfig) *Forward {
	return &Forward{config: config}
}

// Name returns the stage name
func (f *Forward) Name() string {
	return "forward"
}

// OnReceive implements core.OperatorCore
func (f *Forward) OnReceive(inputs []core.Input, outputs []core.Output) error {
	writers, err := batchWriters(outputs)
	if err != nil {
		return err
	}
	for index, input := range inputs {
		reader, ok := input.(core.BatchReader)
		if !ok {
			return core.Fatal(fmt.Errorf("%s: input %d cannot be read", f.Name(), index))
		}
		moved := 0
		for f.config.MaxBatchesPerFire <= 0 || moved < f.config.MaxBatchesPerFire {
			batch, ok := reader.Pull()
			if !ok {
				break
			}
			moved++
			for _, w := range writers {
				if err := w.Push(batch); err != nil {
					return err
				}
			}
		}
		if moved > 0 {
			f.config.Logger.Debug("forwarded batches",
				telemetry.Int("input", index),
				telemetry.Int("batches", moved))
		}
	}
	return nil
}

func batchWriters(outputs []core.Output) ([]core.BatchWriter, error) {
	writers := make([]core.BatchWriter, len(outputs))
	for index, output := range outputs {
		w, ok := output.(core.BatchWriter)
		if !ok {
			return nil, core.Fatal(fmt.Errorf("output %d cannot be written", index))
		}
		writers[index] = w
	}
	return writers, nil
}

package dataflow

import (
	"fmt"

	"github.com/creastat/dataflow/core"
)

// ValidationError represents a validation error with context
type ValidationError struct {
	Message string
	Details string
}

func (e ValidationError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s", e.Message, e.Details)
	}
	return e.Message
}

// ValidateBuilder checks that a builder can produce a usable operator
func ValidateBuilder(b *OperatorBuilder) error {
	if b.compute.IsZero() {
		return ValidationError{
			Message: "operator validation failed",
			Details: fmt.Sprintf("operator %v has no computation", b.info),
		}
	}

	if err := ValidateScopeLevel(b.info.ScopeLevel); err != nil {
		return err
	}

	for index, input := range b.inputs {
		if input == nil {
			return ValidationError{
				Message: "operator validation failed",
				Details: fmt.Sprintf("input %d of operator %v is nil", index, b.info),
			}
		}
	}

	for index, ob := range b.outputs {
		if ob == nil {
			return ValidationError{
				Message: "operator validation failed",
				Details: fmt.Sprintf("output %d of operator %v is nil", index, b.info),
			}
		}
		if ob.Port().Index != index {
			return ValidationError{
				Message: "operator validation failed",
				Details: fmt.Sprintf("output builder at position %d addresses port %v", index, ob.Port()),
			}
		}
	}

	return nil
}

// ValidateScopeLevel checks a configured nesting depth
func ValidateScopeLevel(level int) error {
	if level < 0 || level > core.MaxScopeLevel {
		return ValidationError{
			Message: "invalid scope level",
			Details: fmt.Sprintf("%d is outside [0, %d]", level, core.MaxScopeLevel),
		}
	}
	return nil
}

// ValidateOutputSpec checks the batching and capacity settings of an output
func ValidateOutputSpec(spec core.OutputSpec) error {
	if spec.BatchSize <= 0 {
		return ValidationError{
			Message: "invalid output spec",
			Details: fmt.Sprintf("batch size must be positive, got %d", spec.BatchSize),
		}
	}
	if spec.ScopeCapacity <= 0 {
		return ValidationError{
			Message: "invalid output spec",
			Details: fmt.Sprintf("scope capacity must be positive, got %d", spec.ScopeCapacity),
		}
	}
	if spec.BatchCapacity < 0 {
		return ValidationError{
			Message: "invalid output spec",
			Details: fmt.Sprintf("batch capacity must not be negative, got %d", spec.BatchCapacity),
		}
	}
	return nil
}

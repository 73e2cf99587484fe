package core

// NotifyStrategy defines how scope notifications are merged across ports
type NotifyStrategy string

const (
	// StrategySISO passes end and cancel signals straight through
	StrategySISO NotifyStrategy = "single-input-single-output"

	// StrategyMISO merges end signals across inputs; cancels pass through
	StrategyMISO NotifyStrategy = "multi-input-single-output"

	// StrategySIMO merges cancels across outputs; end signals pass through
	StrategySIMO NotifyStrategy = "single-input-multi-output"

	// StrategyMIMO merges both
	StrategyMIMO NotifyStrategy = "multi-input-multi-output"
)

// MergesEnd reports whether end signals wait for every input
func (s NotifyStrategy) MergesEnd() bool {
	return s == StrategyMISO || s == StrategyMIMO
}

// MergesCancel reports whether cancels wait for every output
func (s NotifyStrategy) MergesCancel() bool {
	return s == StrategySIMO || s == StrategyMIMO
}

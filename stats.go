package dataflow

import "time"

// Stats accumulates how often an operator was fired and how long it was busy
type Stats struct {
	Fires uint64
	Busy  time.Duration
}

// AvgFire returns the mean duration of a fire
func (s Stats) AvgFire() time.Duration {
	if s.Fires == 0 {
		return 0
	}
	return s.Busy / time.Duration(s.Fires)
}

// track opens a fire; the returned func closes it and must run on every exit
// path of the fire
func (s *Stats) track() func() {
	start := time.Now()
	return func() {
		s.Fires++
		s.Busy += time.Since(start)
	}
}

package engine

import (
	"fmt"
	"time"
)

// IntervalTable is the spaced-repetition schedule: a strictly
// increasing sequence of offsets from "now", indexed by stage. Stages
// past the end of the table repeat the last offset, so a schedule
// degrades to a fixed cadence instead of terminating.
type IntervalTable struct {
	offsets []time.Duration
}

// NewIntervalTable builds a table from explicit offsets. The sequence
// must be non-empty and strictly increasing.
func NewIntervalTable(offsets []time.Duration) (IntervalTable, error) {
	if len(offsets) == 0 {
		return IntervalTable{}, fmt.Errorf("interval table must not be empty")
	}
	for i, d := range offsets {
		if d < 0 {
			return IntervalTable{}, fmt.Errorf("interval %d: offset %s must not be negative", i, d)
		}
		if i > 0 && d <= offsets[i-1] {
			return IntervalTable{}, fmt.Errorf("interval %d: offset %s must be greater than %s", i, d, offsets[i-1])
		}
	}
	table := IntervalTable{offsets: make([]time.Duration, len(offsets))}
	copy(table.offsets, offsets)
	return table, nil
}

// NewIntervalTableDays builds a table from day offsets, e.g. {1, 3, 7, 15, 30}.
func NewIntervalTableDays(days []int) (IntervalTable, error) {
	offsets := make([]time.Duration, len(days))
	for i, d := range days {
		offsets[i] = time.Duration(d) * 24 * time.Hour
	}
	return NewIntervalTable(offsets)
}

// Len returns the number of defined stages.
func (t IntervalTable) Len() int {
	return len(t.offsets)
}

// OffsetForStage returns the offset from "now" for the given stage.
// Stages beyond the last index return the last offset (the fallback
// cadence); negative stages return the first.
func (t IntervalTable) OffsetForStage(stage int) time.Duration {
	if stage < 0 {
		stage = 0
	}
	if stage >= len(t.offsets) {
		stage = len(t.offsets) - 1
	}
	return t.offsets[stage]
}

package perf

import (
	"runtime"
	"time"

	"github.com/rs/zerolog"
)

// RunTracker samples wall time and heap usage for one simulation run.
// Construction starts the clock; Finish records the sample. Callers defer
// Finish immediately after NewRunTracker so the sample is recorded on all
// exit paths, including early returns.
type RunTracker struct {
	name       string
	logger     zerolog.Logger
	start      time.Time
	startAlloc uint64
	bars       int
	finished   bool
	sample     Sample
}

// Sample is one recorded run measurement.
type Sample struct {
	Name       string
	Duration   time.Duration
	Bars       int
	BarsPerSec float64
	AllocDelta int64
	Goroutines int
}

// NewRunTracker starts tracking a named run.
func NewRunTracker(name string, logger zerolog.Logger) *RunTracker {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return &RunTracker{
		name:       name,
		logger:     logger,
		start:      time.Now(),
		startAlloc: m.HeapAlloc,
	}
}

// SetBars records how many bars the run processed, for throughput.
func (t *RunTracker) SetBars(n int) {
	t.bars = n
}

// Finish records the sample. Safe to call more than once; only the first
// call takes the measurement.
func (t *RunTracker) Finish() Sample {
	if t.finished {
		return t.sample
	}
	t.finished = true

	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	elapsed := time.Since(t.start)
	sample := Sample{
		Name:       t.name,
		Duration:   elapsed,
		Bars:       t.bars,
		AllocDelta: int64(m.HeapAlloc) - int64(t.startAlloc),
		Goroutines: runtime.NumGoroutine(),
	}
	if t.bars > 0 && elapsed > 0 {
		sample.BarsPerSec = float64(t.bars) / elapsed.Seconds()
	}
	t.sample = sample

	t.logger.Debug().
		Str("run", sample.Name).
		Dur("duration", sample.Duration).
		Int("bars", sample.Bars).
		Float64("bars_per_sec", sample.BarsPerSec).
		Int64("alloc_delta", sample.AllocDelta).
		Msg("Run finished")

	return sample
}

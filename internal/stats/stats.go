// Package stats records association-wait timings and summarizes them with
// HDR histogram percentiles.
package stats

import (
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// Recorder collects wait durations. Safe for concurrent use so the parallel
// association-wait variant can record from multiple goroutines.
type Recorder struct {
	mu   sync.Mutex
	hist *hdrhistogram.Histogram
}

// NewRecorder creates a recorder covering 1µs to 1 hour at 3 significant
// figures.
func NewRecorder() *Recorder {
	return &Recorder{hist: hdrhistogram.New(1, 3600000000, 3)}
}

// Record adds one wait duration.
func (r *Recorder) Record(d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_ = r.hist.RecordValue(d.Microseconds())
}

// Summary holds the percentile summary of the recorded waits.
type Summary struct {
	Count int64         `json:"count"`
	Min   time.Duration `json:"min"`
	Mean  time.Duration `json:"mean"`
	P50   time.Duration `json:"p50"`
	P99   time.Duration `json:"p99"`
	Max   time.Duration `json:"max"`
}

// Summary snapshots the current recording.
func (r *Recorder) Summary() Summary {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.hist.TotalCount() == 0 {
		return Summary{}
	}
	us := func(v int64) time.Duration { return time.Duration(v) * time.Microsecond }
	return Summary{
		Count: r.hist.TotalCount(),
		Min:   us(r.hist.Min()),
		Mean:  time.Duration(r.hist.Mean()) * time.Microsecond,
		P50:   us(r.hist.ValueAtQuantile(50)),
		P99:   us(r.hist.ValueAtQuantile(99)),
		Max:   us(r.hist.Max()),
	}
}

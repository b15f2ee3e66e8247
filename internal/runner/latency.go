package runner

import (
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// Latency describes the durations of the finished items of a run, in ms.
type Latency struct {
	Min  int64   `json:"min"`
	P50  int64   `json:"p50"`
	P95  int64   `json:"p95"`
	Max  int64   `json:"max"`
	Mean float64 `json:"mean"`
}

const maxRecordedLatency = int64(10 * time.Minute / time.Microsecond)

// LatencyOf aggregates the durations of items that reached success or error.
// It returns nil when none did.
func LatencyOf(items []Item) *Latency {
	h := hdrhistogram.New(1, maxRecordedLatency, 3)
	for _, it := range items {
		if it.Status != StatusSuccess && it.Status != StatusError {
			continue
		}
		us := it.Duration.Microseconds()
		if us < 1 {
			us = 1
		}
		if us > maxRecordedLatency {
			us = maxRecordedLatency
		}
		_ = h.RecordValue(us)
	}
	if h.TotalCount() == 0 {
		return nil
	}

	ms := func(us int64) int64 { return us / 1000 }
	return &Latency{
		Min:  ms(h.Min()),
		P50:  ms(h.ValueAtQuantile(50)),
		P95:  ms(h.ValueAtQuantile(95)),
		Max:  ms(h.Max()),
		Mean: h.Mean() / 1000,
	}
}

// Package frequency tracks a rolling event rate, used by the streaming
// server to report frames-per-second being consumed.
package frequency

import (
	"log/slog"
	"time"
)

type Frequency struct {
	Interval time.Duration
	count    int
	total    int
	LastTime time.Time
}

func (f *Frequency) Add(count int) {
	f.count += count
	f.total += count
}

func (f *Frequency) Check(log *slog.Logger) {
	now := time.Now()
	elapsed := now.Sub(f.LastTime)
	if elapsed >= f.Interval {
		average := float64(f.count) / elapsed.Seconds()
		log.Info("frame rate", "count", f.count, "average_per_sec", average)
		f.count = 0
		f.LastTime = now
	}
}

// Package metrics accumulates counters for the batch driver's worker pool.
package metrics

import (
	"log/slog"
	"sync"
	"time"
)

// Decode tracks success/failure counts and timing for utterance decodes
// dispatched through the worker pool.
type Decode struct {
	mu                 sync.Mutex
	totalUtterances    int
	successfulDecodes  int
	failedDecodes      int
	totalExecutionTime time.Duration
	executionCount     int
}

func (m *Decode) RecordSuccess(duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.totalUtterances++
	m.successfulDecodes++
	m.totalExecutionTime += duration
	m.executionCount++
}

func (m *Decode) RecordFailure(duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.totalUtterances++
	m.failedDecodes++
	m.totalExecutionTime += duration
	m.executionCount++
}

func (m *Decode) Snapshot() (total, succeeded, failed int, avg time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	avg = 0
	if m.executionCount > 0 {
		avg = m.totalExecutionTime / time.Duration(m.executionCount)
	}
	return m.totalUtterances, m.successfulDecodes, m.failedDecodes, avg
}

func (m *Decode) Log(log *slog.Logger) {
	total, succeeded, failed, avg := m.Snapshot()
	log.Info("batch decode metrics",
		"total", total,
		"succeeded", succeeded,
		"failed", failed,
		"avg_decode_time", avg,
	)
}

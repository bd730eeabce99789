package decoder

import (
	"context"
	"fmt"
	"time"

	"ctcbeam/internal/decoder/hotword"
	"ctcbeam/internal/domain/models"
	"ctcbeam/internal/utils"
	"ctcbeam/internal/utils/metrics"
	"ctcbeam/internal/workers"
)

// Utterance pairs a probability matrix with the number of leading frames
// actually populated; frames beyond ValidLength are padding and ignored.
type Utterance struct {
	Frames      [][]float64
	ValidLength int
}

func (u Utterance) clampedFrames() [][]float64 {
	n := u.ValidLength
	if n > len(u.Frames) {
		n = len(u.Frames)
	}
	if n < 0 {
		n = 0
	}
	return u.Frames[:n]
}

// BatchDriver fans per-utterance decoding out across a bounded worker
// pool. Scorer and HotwordScorer are read-only and shared by every
// worker; each utterance still gets its own exclusive DecoderState.
type BatchDriver struct {
	opts     Options
	scorer   *Scorer
	hotwords *hotword.Scorer
	pool     *workers.Pool[Utterance, decodeOutcome]
	metrics  *metrics.Decode
}

type decodeOutcome struct {
	hypotheses []models.Hypothesis
	stats      utils.PathTrieStats
	err        error
}

// Scorer returns the language model/lexicon scorer the driver decodes
// with, or nil if none was configured. Exposed so a caller that also
// drives a streaming endpoint directly (outside DecodeBatch) can build
// DecoderStates with the identical scorer.
func (b *BatchDriver) Scorer() *Scorer { return b.scorer }

// Hotwords returns the hotword scorer the driver decodes with, or nil if
// none was configured.
func (b *BatchDriver) Hotwords() *hotword.Scorer { return b.hotwords }

// Metrics returns the driver's running success/failure/timing counters,
// suitable for periodic logging by the caller.
func (b *BatchDriver) Metrics() *metrics.Decode { return b.metrics }

// NewBatchDriver builds a driver that decodes each utterance with a fresh
// DecoderState constructed from opts/scorer/hotwords, using opts.NumProcesses
// worker goroutines.
func NewBatchDriver(opts Options, scorer *Scorer, hw *hotword.Scorer) (*BatchDriver, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return &BatchDriver{
		opts:     opts,
		scorer:   scorer,
		hotwords: hw,
		pool:     workers.New[Utterance, decodeOutcome](opts.NumProcesses),
		metrics:  &metrics.Decode{},
	}, nil
}

// BatchResult is one utterance's outcome: its ranked hypotheses, or a
// non-nil Err if the decode failed (a shape mismatch or bad frame). A
// failure in one utterance never prevents the others in the same batch
// from returning results.
type BatchResult struct {
	Hypotheses []models.Hypothesis
	TrieStats  utils.PathTrieStats
	Err        error
}

// DecodeBatch runs a stateless decode of every utterance: each task builds
// its own DecoderState, feeds every frame, and returns its final decode.
func (b *BatchDriver) DecodeBatch(ctx context.Context, utterances []Utterance) []BatchResult {
	jobs := make([]workers.Job[Utterance, decodeOutcome], len(utterances))
	for i, u := range utterances {
		jobs[i] = workers.Job[Utterance, decodeOutcome]{
			Description: workers.JobDescriptor{ID: workers.JobID(fmt.Sprintf("utterance-%d", i))},
			ExecFn:      b.decodeOne,
			Args:        u,
		}
	}
	results := b.pool.Run(ctx, jobs)
	return toBatchResults(results)
}

func (b *BatchDriver) decodeOne(ctx context.Context, u Utterance) (decodeOutcome, error) {
	start := time.Now()
	state, err := NewState(b.opts, b.scorer, b.hotwords)
	if err != nil {
		b.metrics.RecordFailure(time.Since(start))
		return decodeOutcome{err: err}, nil
	}
	if err := state.Next(u.clampedFrames()); err != nil {
		b.metrics.RecordFailure(time.Since(start))
		return decodeOutcome{err: err}, nil
	}
	hyps := state.Decode()
	b.metrics.RecordSuccess(time.Since(start))
	return decodeOutcome{hypotheses: hyps, stats: state.Stats()}, nil
}

// StreamTask is one entry in a stateful streaming batch: Frames to feed
// into an existing DecoderState, and whether this is the final chunk for
// that stream (in which case Decode is invoked and its result returned).
type StreamTask struct {
	State   *DecoderState
	Frames  [][]float64
	IsFinal bool
}

// DecodeStreamingBatch advances each task's DecoderState with its frames,
// invoking Decode only on tasks marked final; non-final tasks return an
// empty hypothesis list so the caller can keep streaming the same state.
func (b *BatchDriver) DecodeStreamingBatch(ctx context.Context, tasks []StreamTask) []BatchResult {
	jobs := make([]workers.Job[StreamTask, decodeOutcome], len(tasks))
	for i, t := range tasks {
		jobs[i] = workers.Job[StreamTask, decodeOutcome]{
			Description: workers.JobDescriptor{ID: workers.JobID(fmt.Sprintf("stream-%d", i))},
			ExecFn:      b.decodeStreamStep,
			Args:        t,
		}
	}
	pool := workers.New[StreamTask, decodeOutcome](b.opts.NumProcesses)
	results := pool.Run(ctx, jobs)
	return toBatchResults(results)
}

func (b *BatchDriver) decodeStreamStep(ctx context.Context, t StreamTask) (decodeOutcome, error) {
	start := time.Now()
	if t.State == nil {
		b.metrics.RecordFailure(time.Since(start))
		return decodeOutcome{err: fmt.Errorf("decoder: streaming task missing state")}, nil
	}
	if err := t.State.Next(t.Frames); err != nil {
		b.metrics.RecordFailure(time.Since(start))
		return decodeOutcome{err: err}, nil
	}
	if !t.IsFinal {
		b.metrics.RecordSuccess(time.Since(start))
		return decodeOutcome{}, nil
	}
	hyps := t.State.Decode()
	b.metrics.RecordSuccess(time.Since(start))
	return decodeOutcome{hypotheses: hyps, stats: t.State.Stats()}, nil
}

func toBatchResults(results []workers.Result[decodeOutcome]) []BatchResult {
	out := make([]BatchResult, len(results))
	for i, r := range results {
		if r.Err != nil {
			out[i] = BatchResult{Err: r.Err}
			continue
		}
		out[i] = BatchResult{Hypotheses: r.Value.hypotheses, TrieStats: r.Value.stats, Err: r.Value.err}
	}
	return out
}

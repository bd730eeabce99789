// Package stream exposes the decoder over HTTP with Server-Sent Events:
// a client opens a stream, pushes frame chunks to it incrementally, and
// receives partial acknowledgements plus a final ranked hypothesis list
// over the same SSE channel, without the client ever needing to hold its
// own DecoderState.
package stream

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/r3labs/sse/v2"

	"ctcbeam/internal/decoder"
	"ctcbeam/internal/decoder/hotword"
	"ctcbeam/internal/domain/models"
	"ctcbeam/internal/lib/logger/sl"
	"ctcbeam/internal/utils/frequency"
)

// Server owns one DecoderState per open stream, keyed by a server-issued
// stream id, and republishes every Next/Decode outcome as an SSE event on
// that id's channel.
type Server struct {
	log    *slog.Logger
	events *sse.Server
	opts   decoder.Options
	scorer *decoder.Scorer
	hw     *hotword.Scorer

	mu     sync.Mutex
	states map[string]*decoder.DecoderState

	rateMu    sync.Mutex
	frameRate *frequency.Frequency
}

func New(log *slog.Logger, opts decoder.Options, scorer *decoder.Scorer, hw *hotword.Scorer) *Server {
	events := sse.New()
	events.AutoReplay = false
	return &Server{
		log:       log,
		events:    events,
		opts:      opts,
		scorer:    scorer,
		hw:        hw,
		states:    make(map[string]*decoder.DecoderState),
		frameRate: &frequency.Frequency{Interval: 30 * time.Second, LastTime: time.Now()},
	}
}

// Handler returns the HTTP mux backing the streaming decode endpoints:
//
//	POST /streams            create a new stream, returns {"id": "..."}
//	POST /streams/{id}/frames  push a chunk of frames, optionally final
//	GET  /streams/{id}/events  subscribe to the SSE channel for id
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /streams", s.handleCreate)
	mux.HandleFunc("POST /streams/{id}/frames", s.handleFrames)
	mux.HandleFunc("GET /streams/{id}/events", s.handleEvents)
	return mux
}

type createResponse struct {
	ID string `json:"id"`
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	id, err := newStreamID()
	if err != nil {
		http.Error(w, "failed to allocate stream id", http.StatusInternalServerError)
		return
	}

	state, err := decoder.NewState(s.opts, s.scorer, s.hw)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	s.states[id] = state
	s.mu.Unlock()
	s.events.CreateStream(id)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(createResponse{ID: id})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	q := r.URL.Query()
	q.Set("stream", id)
	r.URL.RawQuery = q.Encode()
	s.events.ServeHTTP(w, r)
}

type framesRequest struct {
	Frames [][]float64 `json:"frames"`
	Final  bool        `json:"final"`
}

type frameAckEvent struct {
	Type        string `json:"type"`
	FramesTaken int    `json:"frames_taken"`
}

type finalEvent struct {
	Type        string              `json:"type"`
	Hypotheses  []models.Hypothesis `json:"hypotheses"`
}

func (s *Server) handleFrames(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	s.mu.Lock()
	state, ok := s.states[id]
	s.mu.Unlock()
	if !ok {
		http.Error(w, "unknown stream id", http.StatusNotFound)
		return
	}

	var req framesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	if err := state.Next(req.Frames); err != nil {
		s.log.Error("stream decode step failed", "stream_id", id, sl.Err(err))
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.rateMu.Lock()
	s.frameRate.Add(len(req.Frames))
	s.frameRate.Check(s.log)
	s.rateMu.Unlock()

	ack, err := json.Marshal(frameAckEvent{Type: "ack", FramesTaken: len(req.Frames)})
	if err == nil {
		s.events.Publish(id, &sse.Event{Event: []byte("ack"), Data: ack})
	}

	if req.Final {
		hyps := state.Decode()
		final, err := json.Marshal(finalEvent{Type: "final", Hypotheses: hyps})
		if err == nil {
			s.events.Publish(id, &sse.Event{Event: []byte("final"), Data: final})
		}

		s.mu.Lock()
		delete(s.states, id)
		s.mu.Unlock()
		s.events.RemoveStream(id)
	}

	w.WriteHeader(http.StatusAccepted)
}

func newStreamID() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("stream: generate id: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

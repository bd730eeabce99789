// Package lm provides the n-gram language model used to rescore CTC beam
// search hypotheses. A Model is a finite-state machine over vocabulary ids:
// states are opaque integers, and scoring a word from a state yields both a
// log10 conditional probability and the state to continue from, following a
// backoff chain when the requested order has no explicit entry.
package lm

import (
	"bufio"
	"encoding/gob"
	"fmt"
	"io"
	"strings"
)

// OOVLogProb is assigned to a word with no unigram entry, mirroring the
// fixed out-of-vocabulary penalty used by the original scorer.
const OOVLogProb = -100.0

// NullContextState is the state the model is in before any word has been
// consumed, i.e. the state used to score the first word of a sentence.
const NullContextState = 0

// Model is the interface the decoder's Scorer depends on. NgramModel is the
// only implementation, but the interface keeps the decoder package free of
// a hard dependency on the storage format.
type Model interface {
	// VocabIndex returns the model's internal id for word, or false if it
	// is out-of-vocabulary.
	VocabIndex(word string) (int, bool)
	// Order returns the highest n-gram order the model was built with.
	Order() int
	// Score returns the log10 conditional probability of wordID given
	// state, and the state to use for the following word.
	Score(state int, wordID int) (logProb float64, next int)
	// IsOOV reports whether wordID is the out-of-vocabulary sentinel.
	IsOOV(wordID int) bool
	// NullContextState returns the state to start scoring a fresh n-gram
	// window from, with no preceding history.
	NullContextState() int
}

type transition struct {
	wordID  int
	next    int
	logProb float64
}

type backoff struct {
	state      int
	logBackoff float64
}

// NgramModel is a back-off n-gram language model stored as an explicit
// state graph: each state corresponds to a distinct (bounded) history, and
// transitions from it give the log10 probability of the next word and the
// state that history transitions to. Histories for which no explicit
// transition exists fall back through backoff edges, accumulating the
// backoff weight, until either a transition is found or the null context is
// reached.
type NgramModel struct {
	order int
	vocab map[string]int
	words []string

	transitions [][]transition
	backoffs    []backoff
}

// NewNgramModel builds an empty model of the given order, ready to be
// populated by BuildFromCorpus or Load.
func NewNgramModel(order int) *NgramModel {
	return &NgramModel{
		order: order,
		vocab: make(map[string]int),
		transitions: [][]transition{
			{}, // state 0: null context
		},
		backoffs: []backoff{{state: NullContextState, logBackoff: 0}},
	}
}

func (m *NgramModel) Order() int { return m.order }

func (m *NgramModel) NullContextState() int { return NullContextState }

func (m *NgramModel) VocabIndex(word string) (int, bool) {
	id, ok := m.vocab[strings.ToLower(word)]
	return id, ok
}

func (m *NgramModel) IsOOV(wordID int) bool { return wordID < 0 }

// internWord returns the id for word, allocating one if this is the first
// time it has been seen.
func (m *NgramModel) internWord(word string) int {
	word = strings.ToLower(word)
	if id, ok := m.vocab[word]; ok {
		return id
	}
	id := len(m.words)
	m.vocab[word] = id
	m.words = append(m.words, word)
	return id
}

// newState allocates a fresh state with no outgoing transitions and a
// backoff edge to parent.
func (m *NgramModel) newState(parent int, logBackoff float64) int {
	id := len(m.transitions)
	m.transitions = append(m.transitions, nil)
	m.backoffs = append(m.backoffs, backoff{state: parent, logBackoff: logBackoff})
	return id
}

func (m *NgramModel) addTransition(state, wordID, next int, logProb float64) {
	m.transitions[state] = append(m.transitions[state], transition{wordID: wordID, next: next, logProb: logProb})
}

func (m *NgramModel) findTransition(state, wordID int) (transition, bool) {
	for _, tr := range m.transitions[state] {
		if tr.wordID == wordID {
			return tr, true
		}
	}
	return transition{}, false
}

// Score walks the backoff chain from state looking for an explicit
// transition on wordID, accumulating backoff weight for every state it
// falls through. If wordID is never seen at all it is scored as OOV from
// the null context.
func (m *NgramModel) Score(state int, wordID int) (float64, int) {
	if wordID < 0 || wordID >= len(m.words) {
		return OOVLogProb, NullContextState
	}

	accumBackoff := 0.0
	cur := state
	for {
		if tr, ok := m.findTransition(cur, wordID); ok {
			return tr.logProb + accumBackoff, tr.next
		}
		if cur == NullContextState {
			// Unigram miss: word is in vocab (it has an id) but this
			// exact state never transitioned on it and backoff bottomed
			// out at the null context without a unigram entry either.
			return OOVLogProb + accumBackoff, NullContextState
		}
		b := m.backoffs[cur]
		accumBackoff += b.logBackoff
		cur = b.state
	}
}

// SentenceLogProb scores a full token sequence from the null context,
// summing conditional log10 probabilities and walking state transitions in
// order. Unknown words are penalized with unkLogProb instead of the
// model's own OOV score, letting callers apply a decoder-specific penalty.
func (m *NgramModel) SentenceLogProb(words []string, unkLogProb float64) float64 {
	state := NullContextState
	total := 0.0
	for _, w := range words {
		id, ok := m.VocabIndex(w)
		if !ok {
			total += unkLogProb
			continue
		}
		lp, next := m.Score(state, id)
		total += lp
		state = next
	}
	return total
}

// Save serializes the model with gob, suitable for caching in leveldb
// keyed by a content hash of the source corpus.
func (m *NgramModel) Save(w io.Writer) error {
	bw := bufio.NewWriter(w)
	enc := gob.NewEncoder(bw)
	if err := enc.Encode(m.order); err != nil {
		return fmt.Errorf("lm: encode order: %w", err)
	}
	if err := enc.Encode(m.words); err != nil {
		return fmt.Errorf("lm: encode vocab: %w", err)
	}
	if err := enc.Encode(m.transitions); err != nil {
		return fmt.Errorf("lm: encode transitions: %w", err)
	}
	if err := enc.Encode(m.backoffs); err != nil {
		return fmt.Errorf("lm: encode backoffs: %w", err)
	}
	return bw.Flush()
}

// Load deserializes a model previously written by Save.
func Load(r io.Reader) (*NgramModel, error) {
	dec := gob.NewDecoder(r)
	m := &NgramModel{vocab: make(map[string]int)}
	if err := dec.Decode(&m.order); err != nil {
		return nil, fmt.Errorf("lm: decode order: %w", err)
	}
	if err := dec.Decode(&m.words); err != nil {
		return nil, fmt.Errorf("lm: decode vocab: %w", err)
	}
	if err := dec.Decode(&m.transitions); err != nil {
		return nil, fmt.Errorf("lm: decode transitions: %w", err)
	}
	if err := dec.Decode(&m.backoffs); err != nil {
		return nil, fmt.Errorf("lm: decode backoffs: %w", err)
	}
	for i, w := range m.words {
		m.vocab[w] = i
	}
	return m, nil
}

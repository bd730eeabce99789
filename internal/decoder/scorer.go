package decoder

import (
	"math"
	"strings"

	"ctcbeam/internal/decoder/lm"
	"ctcbeam/internal/decoder/pathtrie"
)

// OOVScore is returned by CondLogProb the moment any token in the n-gram
// window is out of the language model's vocabulary.
const OOVScore = -1000.0

// startToken marks a padding position before the left edge of a sentence;
// endToken marks the position immediately after its last word.
const (
	startToken = "<s>"
	endToken   = "</s>"
)

// log10OfE converts a base-10 log-probability to a natural log: dividing
// by log10(e) is the same as multiplying by ln(10).
const log10OfE = 0.4342944819

// Scorer combines an optional language model and an optional lexicon
// constraint into a single cost applied during beam expansion. It holds no
// per-decode state: CondLogProb is a pure function of its inputs, so one
// Scorer is shared read-only across every concurrently decoding utterance.
type Scorer struct {
	Alpha          float64
	Beta           float64
	Kind           LMKind
	Vocab          []string
	SpaceID        int
	ApostropheID   int
	TokenSeparator byte
	MaxOrder       int

	model   lm.Model
	lexicon pathtrie.Acceptor
}

// NewScorer builds a Scorer over an optional language model and an
// optional lexicon acceptor. Passing a nil model disables LM rescoring and
// the word-insertion bonus (only the lexicon constraint applies); passing a
// nil lexicon disables the lexicon constraint.
func NewScorer(alpha, beta float64, kind LMKind, vocab []string, tokenSeparator byte, model lm.Model, lexicon pathtrie.Acceptor) *Scorer {
	s := &Scorer{
		Alpha:          alpha,
		Beta:           beta,
		Kind:           kind,
		Vocab:          vocab,
		TokenSeparator: tokenSeparator,
		model:          model,
		lexicon:        lexicon,
	}
	s.SpaceID, s.ApostropheID = -2, -3
	for i, tok := range vocab {
		switch tok {
		case " ":
			s.SpaceID = i
		case "'":
			s.ApostropheID = i
		}
	}
	if model != nil {
		s.MaxOrder = model.Order()
	} else {
		s.MaxOrder = 1
	}
	return s
}

func (s *Scorer) HasLM() bool            { return s.model != nil }
func (s *Scorer) HasLexicon() bool       { return s.lexicon != nil }
func (s *Scorer) Lexicon() pathtrie.Acceptor { return s.lexicon }

func (s *Scorer) tokenString(labelID int) string {
	if labelID < 0 || labelID >= len(s.Vocab) {
		return ""
	}
	return s.Vocab[labelID]
}

// MakeNgram builds the word tuple the language model should be scored on
// when extending node. For character and BPE models the tuple is just the
// node's own token padded on the left with start markers: per-character
// context is already threaded through the trie, so the LM only needs the
// newest symbol. For word models it walks backward collecting whole words
// separated by the vocabulary's space token, stopping once MaxOrder words
// have accumulated or the root is reached, and pads any remaining leading
// slots with start markers.
func (s *Scorer) MakeNgram(node *pathtrie.Node) []string {
	order := s.MaxOrder
	if order < 1 {
		order = 1
	}
	ngram := make([]string, order)
	for i := range ngram {
		ngram[i] = startToken
	}

	if s.Kind != KindWord {
		ngram[order-1] = s.tokenString(node.Character)
		return ngram
	}

	words := make([]string, 0, order)
	var buf []rune
	flush := func() {
		if len(buf) == 0 {
			return
		}
		// buf was built walking toward the root, so it holds the word
		// spelled backward.
		rev := make([]rune, len(buf))
		for i, r := range buf {
			rev[len(buf)-1-i] = r
		}
		words = append(words, string(rev))
		buf = buf[:0]
	}

	cur := node
	for !cur.IsRoot() && len(words) < order {
		if cur.Character == s.SpaceID {
			flush()
		} else {
			tok := s.tokenString(cur.Character)
			for _, r := range tok {
				buf = append(buf, r)
			}
		}
		cur = cur.Parent
	}
	flush()

	// words were collected most-recent-first; reverse into sentence order
	// and right-align into the fixed-width ngram slice.
	n := len(words)
	if n > order {
		n = order
	}
	for i := 0; i < n; i++ {
		ngram[order-1-i] = words[i]
	}
	return ngram
}

// CondLogProb scores an n-gram window from the model's null context,
// returning OOVScore immediately if any token is unknown to the model.
// Every model score is accumulated in the model's native log10 convention
// and converted to natural log once at the end.
func (s *Scorer) CondLogProb(ngram []string) float64 {
	if s.model == nil {
		return 0
	}
	state := s.model.NullContextState()
	var total float64
	for _, w := range ngram {
		id, ok := s.model.VocabIndex(w)
		if !ok {
			return OOVScore
		}
		lp, next := s.model.Score(state, id)
		total += lp
		state = next
	}
	return total / log10OfE
}

// SentenceLogProb scores a full word sequence by padding it with MaxOrder-1
// leading start markers and a trailing end marker, then summing CondLogProb
// over every overlapping window of width MaxOrder.
func (s *Scorer) SentenceLogProb(words []string) float64 {
	if s.model == nil {
		return 0
	}
	order := s.MaxOrder
	if order < 1 {
		order = 1
	}
	padded := make([]string, 0, len(words)+order)
	for i := 0; i < order-1; i++ {
		padded = append(padded, startToken)
	}
	padded = append(padded, words...)
	padded = append(padded, endToken)

	var total float64
	for i := order - 1; i < len(padded); i++ {
		total += s.CondLogProb(padded[i-order+1 : i+1])
	}
	return total
}

// SplitLabels renders a label sequence as the string it spells and splits
// it into scoring units: individual characters for a character model, or
// whitespace-delimited words for word/BPE models.
func (s *Scorer) SplitLabels(labelIDs []int) []string {
	var sb strings.Builder
	for _, id := range labelIDs {
		sb.WriteString(s.tokenString(id))
	}
	text := sb.String()

	if s.Kind == KindCharacter {
		out := make([]string, 0, len(text))
		for _, r := range text {
			out = append(out, string(r))
		}
		return out
	}
	return strings.Fields(text)
}

func clampNonNegative(x float64) float64 {
	return math.Max(0, x)
}

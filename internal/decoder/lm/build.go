package lm

import (
	"bufio"
	"io"
	"iter"
	"math"
	"strings"
	"unicode"

	snowballeng "github.com/kljensen/snowball/english"

	"ctcbeam/internal/utils"
)

// Sentence-boundary tokens the model reserves so BuildFromCorpus can mark
// sentence boundaries without colliding with a real word.
const (
	BeginSentence = "<s>"
	EndSentence   = "</s>"
)

// tokenize splits raw corpus text on anything that isn't a letter or digit,
// mirroring the boundary rule the full-text tokenizer uses for document
// text.
func tokenize(content string) iter.Seq[string] {
	return func(yield func(string) bool) {
		lastSplit := -1
		for i, char := range content {
			if !(unicode.IsLetter(char) || unicode.IsNumber(char)) {
				if lastSplit != -1 {
					if !yield(content[lastSplit:i]) {
						return
					}
				}
				lastSplit = -1
			} else if lastSplit == -1 {
				lastSplit = i
			}
		}
		if lastSplit != -1 {
			yield(content[lastSplit:])
		}
	}
}

func toLower(seq iter.Seq[string]) iter.Seq[string] {
	return func(yield func(string) bool) {
		for token := range seq {
			if !yield(strings.ToLower(token)) {
				return
			}
		}
	}
}

func stem(seq iter.Seq[string]) iter.Seq[string] {
	return func(yield func(string) bool) {
		for token := range seq {
			if !yield(snowballeng.Stem(token, false)) {
				return
			}
		}
	}
}

// BuildOptions controls corpus preprocessing. Stopword filtering is left
// off by default: a language model needs function words to score fluency,
// unlike full-text search indexing which drops them to save index space.
type BuildOptions struct {
	Order     int
	Stem      bool
	Stopwords map[string]struct{}
}

func DefaultBuildOptions() BuildOptions {
	return BuildOptions{Order: 3}
}

// ngramKey identifies a (history, next word) transition seen during
// training, used as the count-table key.
type ngramKey struct {
	history string
	wordID  int
}

// BuildFromCorpus trains an n-gram model by reading one sentence per line
// from r, tokenizing, lowercasing, and optionally stemming each line the
// same way document text is preprocessed for indexing, then counting
// maximum-likelihood n-gram transitions up to opts.Order with absolute
// discounting to hold probability mass back for backoff.
func BuildFromCorpus(r io.Reader, opts BuildOptions) (*NgramModel, error) {
	if opts.Order < 1 {
		opts.Order = 1
	}
	m := NewNgramModel(opts.Order)

	counts := make(map[ngramKey]int)
	historyTotals := make(map[string]int)
	historyStates := map[string]int{"": NullContextState}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := utils.Clean(scanner.Text())
		if line == "" {
			continue
		}
		tokens := tokenize(line)
		tokens = toLower(tokens)
		if opts.Stem {
			tokens = stem(tokens)
		}

		words := []string{BeginSentence}
		for tok := range tokens {
			if opts.Stopwords != nil {
				if _, skip := opts.Stopwords[tok]; skip {
					continue
				}
			}
			words = append(words, tok)
		}
		words = append(words, EndSentence)

		ids := make([]int, len(words))
		for i, w := range words {
			ids[i] = m.internWord(w)
		}

		for n := 1; n <= opts.Order; n++ {
			for i := n - 1; i < len(ids); i++ {
				hist := historyKey(ids[i-n+1 : i])
				key := ngramKey{history: hist, wordID: ids[i]}
				counts[key]++
				historyTotals[hist]++
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	// Materialize states bottom-up: every history that occurred gets a
	// state, linked by backoff to the history one word shorter.
	for key := range counts {
		ensureHistoryState(m, historyStates, key.history)
	}

	const discount = 0.5
	for key, c := range counts {
		state := historyStates[key.history]
		total := historyTotals[key.history]
		prob := (float64(c) - discount) / float64(total)
		if prob <= 0 {
			prob = 1e-8
		}
		_, next := ensureWordState(m, historyStates, key.history, key.wordID)
		m.addTransition(state, key.wordID, next, math.Log10(prob))
	}

	assignBackoffWeights(m, historyStates, historyTotals, counts, discount)

	return m, nil
}

// historyKey renders a context as a delimited string of word ids, used only
// during training to deduplicate identical histories into one state.
func historyKey(ids []int) string {
	if len(ids) == 0 {
		return ""
	}
	var b strings.Builder
	for i, id := range ids {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(itoa(id))
	}
	return b.String()
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

func ensureHistoryState(m *NgramModel, states map[string]int, hist string) int {
	if s, ok := states[hist]; ok {
		return s
	}
	parentKey, _, hasParent := splitHistory(hist)
	parent := NullContextState
	if hasParent {
		parent = ensureHistoryState(m, states, parentKey)
	}
	s := m.newState(parent, 0)
	states[hist] = s
	return s
}

// ensureWordState returns the state reached by extending hist with wordID:
// the history state for the most recent order-1 words, creating it if this
// is the first time that history has been needed.
func ensureWordState(m *NgramModel, states map[string]int, hist string, wordID int) (string, int) {
	var parts []string
	if hist != "" {
		parts = strings.Split(hist, ",")
	}
	parts = append(parts, itoa(wordID))
	keep := max(m.order-1, 0)
	parts = parts[len(parts)-min(keep, len(parts)):]
	extended := strings.Join(parts, ",")
	return extended, ensureHistoryState(m, states, extended)
}

// splitHistory drops the oldest word from a history key, returning the
// shorter history used as the backoff target.
func splitHistory(hist string) (string, int, bool) {
	if hist == "" {
		return "", 0, false
	}
	parts := strings.Split(hist, ",")
	if len(parts) <= 1 {
		return "", 0, false
	}
	return strings.Join(parts[1:], ","), len(parts) - 1, true
}

// assignBackoffWeights computes, for every history state with a shorter
// backoff target, the log10 weight needed so that probability mass held
// back by discounting at this order is redistributed proportionally to the
// backed-off distribution, following the standard Katz backoff identity.
func assignBackoffWeights(m *NgramModel, states map[string]int, totals map[string]int, counts map[ngramKey]int, discount float64) {
	for hist, state := range states {
		total, ok := totals[hist]
		if !ok || total == 0 {
			continue
		}
		parentHist, _, hasParent := splitHistory(hist)
		if !hasParent {
			continue
		}
		var numSeen int
		for key := range counts {
			if key.history == hist {
				numSeen++
			}
		}
		heldBack := discount * float64(numSeen) / float64(total)
		if heldBack <= 0 {
			continue
		}

		var backedOffMass float64
		for key := range counts {
			if key.history != hist {
				continue
			}
			parentState := states[parentHist]
			lp, _ := m.Score(parentState, key.wordID)
			backedOffMass += math.Pow(10, lp)
		}
		denom := 1.0 - backedOffMass
		if denom <= 1e-12 {
			continue
		}
		weight := heldBack / denom
		if weight <= 0 {
			continue
		}
		m.backoffs[state] = backoff{state: states[parentHist], logBackoff: math.Log10(weight)}
	}
}

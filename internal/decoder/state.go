package decoder

import (
	"fmt"
	"math"
	"sort"

	"ctcbeam/internal/decoder/hotword"
	"ctcbeam/internal/decoder/pathtrie"
	"ctcbeam/internal/domain/models"
	"ctcbeam/internal/utils"
)

// floatMin mirrors FLT_MIN: the smallest positive normal float32, added
// before taking a log so a zero probability never produces -Inf outright.
const floatMin = 1.1754943508222875e-38

// DecoderState drives prefix beam search for a single utterance. It owns
// the root PathTrie and the active frontier exclusively: no other
// goroutine may call Next or Decode on the same state concurrently, but a
// Scorer and HotwordScorer shared across many states are read-only and
// safe to share by reference.
type DecoderState struct {
	opts     Options
	scorer   *Scorer
	hotwords *hotword.Scorer

	spaceID      int
	apostropheID int
	absTimeStep  int

	root     *pathtrie.Node
	prefixes []*pathtrie.Node
}

// NewState constructs a fresh DecoderState ready to consume frames.
func NewState(opts Options, scorer *Scorer, hw *hotword.Scorer) (*DecoderState, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	spaceID, apostropheID := opts.spaceAndApostropheIDs()

	root := pathtrie.NewRoot()
	if scorer != nil && scorer.HasLexicon() {
		root.HasLexicon = true
		root.LexiconState = scorer.Lexicon().Start()
	}
	if hw != nil {
		root.HotwordState = hw.Start()
	}

	return &DecoderState{
		opts:         opts,
		scorer:       scorer,
		hotwords:     hw,
		spaceID:      spaceID,
		apostropheID: apostropheID,
		root:         root,
		prefixes:     []*pathtrie.Node{root},
	}, nil
}

// Stats reports the current shape of the frontier's prefix trie, for
// diagnostic display alongside a decode's timing and hypothesis count.
func (d *DecoderState) Stats() utils.PathTrieStats {
	return utils.MeasurePathTrie(d.root)
}

// Next consumes a sequence of probability frames, advancing the frontier
// one timestep per frame. It may be called repeatedly on the same state to
// stream frames incrementally.
func (d *DecoderState) Next(frames [][]float64) error {
	for _, frame := range frames {
		if len(frame) != len(d.opts.Vocab) {
			return fmt.Errorf("decoder: frame width %d does not match vocab size %d", len(frame), len(d.opts.Vocab))
		}
		d.stepFrame(frame)
		d.absTimeStep++
	}
	return nil
}

type prunedEntry struct {
	label int
	logp  float64
}

// getPrunedLogProbs narrows a frame down to the highest-probability labels,
// first by rank (cutoff_top_n) and then by cumulative probability mass
// (cutoff_prob), mirroring the reference decoder's two-stage cutoff.
func (d *DecoderState) getPrunedLogProbs(frame []float64) []prunedEntry {
	entries := make([]prunedEntry, len(frame))
	for i, p := range frame {
		lp := p
		if !d.opts.LogProbsInput {
			lp = math.Log(p + floatMin)
		}
		entries[i] = prunedEntry{label: i, logp: lp}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].logp > entries[j].logp })

	limit := d.opts.CutoffTopN
	if limit > len(entries) {
		limit = len(entries)
	}
	entries = entries[:limit]

	if d.opts.CutoffProb >= 1.0 {
		return entries
	}
	cum := 0.0
	cutAt := len(entries)
	for i, e := range entries {
		cum += math.Exp(e.logp)
		if cum >= d.opts.CutoffProb {
			cutAt = i + 1
			break
		}
	}
	return entries[:cutAt]
}

// prefixLess orders prefixes by descending hotword-augmented score,
// breaking ties by ascending character id, matching the reference
// comparator used both for the early-exit cutoff and final beam trim.
func prefixLess(a, b *pathtrie.Node) bool {
	if a.ScoreHW != b.ScoreHW {
		return a.ScoreHW > b.ScoreHW
	}
	return a.Character < b.Character
}

func (d *DecoderState) sortedPrefixes() []*pathtrie.Node {
	sorted := append([]*pathtrie.Node(nil), d.prefixes...)
	sort.Slice(sorted, func(i, j int) bool { return prefixLess(sorted[i], sorted[j]) })
	return sorted
}

func (d *DecoderState) beta() float64 {
	if d.scorer == nil {
		return 0
	}
	return d.scorer.Beta
}

func (d *DecoderState) stepFrame(frame []float64) {
	sorted := d.sortedPrefixes()

	k := len(sorted)
	if k > d.opts.BeamWidth {
		k = d.opts.BeamWidth
	}
	minCutoff := math.Inf(-1)
	fullBeam := false
	if d.scorer != nil && k > 0 {
		blankLogP := frame[d.opts.BlankID]
		if !d.opts.LogProbsInput {
			blankLogP = math.Log(frame[d.opts.BlankID] + floatMin)
		}
		minCutoff = sorted[k-1].ScoreHW + blankLogP - clampNonNegative(d.beta())
		fullBeam = len(d.prefixes) == d.opts.BeamWidth
	}

	for _, entry := range d.getPrunedLogProbs(frame) {
		c, logPC := entry.label, entry.logp

		for _, prefix := range sorted {
			if fullBeam && logPC+prefix.ScoreHW < minCutoff {
				break
			}

			if c == d.opts.BlankID {
				prefix.LogProbBCur = pathtrie.LogSumExp(prefix.LogProbBCur, logPC+prefix.Score)
				prefix.LogProbBCurHW = pathtrie.LogSumExp(prefix.LogProbBCurHW, logPC+prefix.ScoreHW)
				continue
			}

			if c == prefix.Character {
				prefix.LogProbNBCur = pathtrie.LogSumExp(prefix.LogProbNBCur, logPC+prefix.LogProbNBPrev)
				prefix.LogProbNBCurHW = pathtrie.LogSumExp(prefix.LogProbNBCurHW, logPC+prefix.LogProbNBPrevHW)
			}

			d.expand(prefix, c, logPC)
		}
	}

	d.prefixes = d.prefixes[:0]
	d.root.IterateToVec(&d.prefixes)

	if len(d.prefixes) >= d.opts.BeamWidth {
		sort.Slice(d.prefixes, func(i, j int) bool { return prefixLess(d.prefixes[i], d.prefixes[j]) })
		for _, stale := range d.prefixes[d.opts.BeamWidth:] {
			stale.Remove()
		}
		d.prefixes = d.prefixes[:d.opts.BeamWidth]
	}
}

// expand extends prefix by label c at the current timestep, updating the
// child's non-blank accumulators with any LM and hotword contributions.
func (d *DecoderState) expand(prefix *pathtrie.Node, c int, logPC float64) {
	var lex pathtrie.Acceptor
	checkLexicon := d.scorer != nil && d.scorer.HasLexicon() && !d.opts.IsBPEBased
	if d.scorer != nil {
		lex = d.scorer.Lexicon()
	}

	newPath, ok := prefix.GetOrCreateChild(c, d.absTimeStep, logPC, lex, checkLexicon, true)
	if !ok {
		return
	}

	newPath.IsWordStartChar = d.isWordStart(newPath, prefix)

	lmScore := d.lmContribution(prefix, newPath, c)

	hotwordScore, isCompleteHotword := d.hotwordContribution(prefix, newPath, c)
	newPath.HotwordScore = hotwordScore

	base := prefix.Score
	if c == prefix.Character {
		base = prefix.LogProbBPrev
	}
	logP := logPC + lmScore + base
	logPHW := logP + hotwordScore

	ordinary := logP
	if isCompleteHotword {
		ordinary = logPHW
	}

	newPath.LogProbNBCur = pathtrie.LogSumExp(newPath.LogProbNBCur, ordinary)
	newPath.LogProbNBCurHW = pathtrie.LogSumExp(newPath.LogProbNBCurHW, logPHW)
}

func (d *DecoderState) isWordStart(newPath, prefix *pathtrie.Node) bool {
	if d.opts.IsBPEBased {
		tok := ""
		if newPath.Character >= 0 && newPath.Character < len(d.opts.Vocab) {
			tok = d.opts.Vocab[newPath.Character]
		}
		if len(tok) > 0 && tok[0] == d.opts.TokenSeparator {
			return false
		}
		if newPath.Character == d.apostropheID || prefix.Character == d.apostropheID {
			return false
		}
		return true
	}
	return prefix.Character == d.spaceID || prefix.IsRoot()
}

// lmContribution computes alpha*cond_log_prob(ngram)+beta when the scorer
// applies at this transition, plus a BPE out-of-vocabulary penalty tracked
// through a manually threaded lexicon cursor (the trie's own lexicon
// cursor is only maintained in character mode, since BPE decoding disables
// per-step lexicon gating to let sub-word pieces merge freely).
func (d *DecoderState) lmContribution(prefix, newPath *pathtrie.Node, c int) float64 {
	if d.scorer == nil || !d.scorer.HasLM() {
		return 0
	}

	var lmScore float64
	isWordBoundary := c == d.spaceID
	if d.scorer.Kind != KindWord || isWordBoundary {
		var ngramNode *pathtrie.Node
		if d.scorer.Kind == KindWord {
			ngramNode = prefix
		} else {
			ngramNode = newPath
		}
		ngram := d.scorer.MakeNgram(ngramNode)
		lmScore = d.scorer.Alpha*d.scorer.CondLogProb(ngram) + d.scorer.Beta
	}

	if d.opts.IsBPEBased && d.scorer.HasLexicon() {
		if d.bpeTokenIsOOV(prefix, newPath, c) {
			lmScore += d.opts.UnkScore
		}
	}
	return lmScore
}

// bpeTokenIsOOV threads a lexicon cursor across BPE continuation tokens
// manually (the trie skips lexicon gating for BPE so sub-word merges are
// not blocked), restarting the cursor at every word-start token.
func (d *DecoderState) bpeTokenIsOOV(prefix, newPath *pathtrie.Node, c int) bool {
	lex := d.scorer.Lexicon()
	state := prefix.LexiconState
	if newPath.IsWordStartChar {
		state = lex.Start()
	}
	next, ok := lex.Next(state, c+1)
	if !ok {
		newPath.HasLexicon = false
		return true
	}
	newPath.HasLexicon = true
	newPath.LexiconState = next
	return false
}

// hotwordContribution advances the hotword match cursor for newPath and
// returns the fractional boost plus whether this transition completes a
// hotword (at which point the boost is permanently absorbed into the
// ordinary score, per the decoder's hotword promotion rule).
func (d *DecoderState) hotwordContribution(prefix, newPath *pathtrie.Node, c int) (float64, bool) {
	if d.hotwords == nil {
		newPath.HotwordState = 0
		return 0, false
	}

	matchLen := prefix.HotwordMatchLen
	next, ok := d.hotwords.IsHotpath(prefix.HotwordState, c)
	if !ok {
		if newPath.IsWordStartChar {
			next, ok = d.hotwords.IsHotpath(d.hotwords.Start(), c)
			matchLen = 0
		}
	}
	if !ok {
		newPath.IsHotpath = false
		newPath.HotwordState = d.hotwords.Start()
		newPath.HotwordMatchLen = 0
		newPath.PartialHotword = ""
		return 0, false
	}

	matchLen++
	remaining := d.hotwords.RemainingLength(next)
	if remaining < 0 {
		newPath.IsHotpath = false
		newPath.HotwordState = d.hotwords.Start()
		newPath.HotwordMatchLen = 0
		return 0, false
	}

	weight := d.hotwords.NearestWeight(next)
	newPath.IsHotpath = true
	newPath.HotwordState = next
	newPath.HotwordMatchLen = matchLen
	newPath.ShortestUnigramLen = matchLen + remaining
	newPath.HotwordWeight = weight
	if newPath.Character >= 0 && newPath.Character < len(d.opts.Vocab) {
		newPath.PartialHotword = prefix.PartialHotword + d.opts.Vocab[newPath.Character]
	}

	boost := d.hotwords.EstimatePartialScore(next, matchLen, weight)
	isComplete := matchLen > 0 && remaining == 0
	return boost, isComplete
}

// Decode produces the ranked hypothesis list for the frontier as it
// stands. It does not mutate decoder state, so it may be called multiple
// times, including between streamed Next calls, and always returns the
// same result for an unchanged frontier.
func (d *DecoderState) Decode() []models.Hypothesis {
	type candidate struct {
		node     *pathtrie.Node
		adjScore float64
	}

	candidates := make([]candidate, len(d.prefixes))
	for i, p := range d.prefixes {
		adj := p.Score
		if d.scorer != nil && d.scorer.HasLM() && d.scorer.Kind == KindWord && p.Character != d.spaceID {
			ngram := d.scorer.MakeNgram(p)
			adj += d.scorer.Alpha*d.scorer.CondLogProb(ngram) + d.scorer.Beta
		}
		candidates[i] = candidate{node: p, adjScore: adj}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].adjScore != candidates[j].adjScore {
			return candidates[i].adjScore > candidates[j].adjScore
		}
		return candidates[i].node.Character < candidates[j].node.Character
	})

	if len(candidates) > d.opts.BeamWidth {
		candidates = candidates[:d.opts.BeamWidth]
	}

	results := make([]models.Hypothesis, len(candidates))
	for i, cand := range candidates {
		labels, timesteps := cand.node.PathToVec()
		approxCTC := cand.adjScore
		if d.scorer != nil && d.scorer.HasLM() && d.scorer.Kind == KindWord {
			words := d.scorer.SplitLabels(labels)
			approxCTC = cand.adjScore - float64(len(labels))*d.scorer.Beta - d.scorer.Alpha*d.scorer.SentenceLogProb(words)
		}
		results[i] = models.Hypothesis{Score: approxCTC, Tokens: labels, Timesteps: timesteps}
	}
	return results
}

package lm

import (
	"bytes"
	"strings"
	"testing"
)

func TestBuildFromCorpusScoresSeenBigramHigherThanUnseen(t *testing.T) {
	corpus := strings.NewReader("the cat sat on the mat\nthe cat ran\nthe dog sat\n")
	m, err := BuildFromCorpus(corpus, BuildOptions{Order: 2})
	if err != nil {
		t.Fatalf("BuildFromCorpus: %v", err)
	}

	catID, ok := m.VocabIndex("cat")
	if !ok {
		t.Fatalf("expected cat to be in vocabulary")
	}
	theID, ok := m.VocabIndex("the")
	if !ok {
		t.Fatalf("expected the to be in vocabulary")
	}

	seenLP, _ := m.Score(func() int {
		_, state := m.Score(NullContextState, theID)
		return state
	}(), catID)

	zebraID := -1 // guaranteed OOV
	oovLP, nextState := m.Score(NullContextState, zebraID)
	if nextState != NullContextState {
		t.Fatalf("expected OOV scoring to return to null context, got %d", nextState)
	}
	if oovLP != OOVLogProb {
		t.Fatalf("expected OOV log prob %v, got %v", OOVLogProb, oovLP)
	}
	if seenLP <= oovLP {
		t.Fatalf("expected seen bigram log-prob %v to beat OOV score %v", seenLP, oovLP)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	corpus := strings.NewReader("alpha beta gamma\nalpha beta delta\n")
	m, err := BuildFromCorpus(corpus, BuildOptions{Order: 2})
	if err != nil {
		t.Fatalf("BuildFromCorpus: %v", err)
	}

	var buf bytes.Buffer
	if err := m.Save(&buf); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := Load(&buf)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	betaID, ok := loaded.VocabIndex("beta")
	if !ok {
		t.Fatalf("expected beta to survive the round trip")
	}
	if loaded.Order() != m.Order() {
		t.Fatalf("expected order to round-trip, got %d want %d", loaded.Order(), m.Order())
	}
	_ = betaID
}

func TestSentenceLogProbPenalizesUnknownWords(t *testing.T) {
	corpus := strings.NewReader("a short sentence about nothing in particular\n")
	m, err := BuildFromCorpus(corpus, BuildOptions{Order: 2})
	if err != nil {
		t.Fatalf("BuildFromCorpus: %v", err)
	}

	known := m.SentenceLogProb([]string{"a", "short"}, -10)
	unknown := m.SentenceLogProb([]string{"zzzqqqxxx"}, -10)
	if unknown != -10 {
		t.Fatalf("expected unk penalty applied directly, got %v", unknown)
	}
	if known >= 0 {
		t.Fatalf("expected a negative log-probability for a known bigram, got %v", known)
	}
}

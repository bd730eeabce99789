package lexicon

import (
	"bytes"
	"testing"
)

func charIDs(vocab map[rune]int) func(string) ([]int, error) {
	return func(word string) ([]int, error) {
		ids := make([]int, 0, len(word))
		for _, r := range word {
			ids = append(ids, vocab[r])
		}
		return ids, nil
	}
}

func TestBuildAndAcceptSharedPrefix(t *testing.T) {
	vocab := map[rune]int{'c': 0, 'a': 1, 't': 2, 'r': 3}
	f, err := Build([]string{"cat", "car"}, charIDs(vocab))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	state := f.Start()
	for _, label := range []int{1, 2, 3} { // c,a,t shifted by +1
		next, ok := f.Next(state, label)
		if !ok {
			t.Fatalf("expected transition on label %d from state %d", label, state)
		}
		state = next
	}
	if !f.IsFinal(state) {
		t.Fatalf("expected state after 'cat' to be final")
	}
}

func TestNextRejectsUnknownLabel(t *testing.T) {
	vocab := map[rune]int{'c': 0, 'a': 1, 't': 2}
	f, err := Build([]string{"cat"}, charIDs(vocab))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if _, ok := f.Next(f.Start(), 99); ok {
		t.Fatalf("expected no transition for an unseen label")
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	vocab := map[rune]int{'d': 0, 'o': 1, 'g': 2}
	f, err := Build([]string{"dog"}, charIDs(vocab))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	var buf bytes.Buffer
	if err := f.Save(&buf); err != nil {
		t.Fatalf("Save: %v", err)
	}
	loaded, err := Load(&buf)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	state := loaded.Start()
	for _, label := range []int{1, 2, 3} {
		next, ok := loaded.Next(state, label)
		if !ok {
			t.Fatalf("expected transition on label %d after round trip", label)
		}
		state = next
	}
	if !loaded.IsFinal(state) {
		t.Fatalf("expected final state to survive round trip")
	}
}

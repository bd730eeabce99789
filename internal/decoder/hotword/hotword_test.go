package hotword

import "testing"

func TestIsHotpathFollowsSharedPrefix(t *testing.T) {
	s := New()
	if err := s.AddHotword([]int{1, 2, 3}, 5.0); err != nil {
		t.Fatalf("AddHotword: %v", err)
	}
	if err := s.AddHotword([]int{1, 2, 4}, 3.0); err != nil {
		t.Fatalf("AddHotword: %v", err)
	}
	s.Finalize()

	state := s.Start()
	state, ok := s.IsHotpath(state, 1)
	if !ok {
		t.Fatalf("expected hotpath on first shared label")
	}
	state, ok = s.IsHotpath(state, 2)
	if !ok {
		t.Fatalf("expected hotpath on second shared label")
	}
	if s.IsComplete(state) {
		t.Fatalf("shared prefix state should not be complete")
	}

	final, ok := s.IsHotpath(state, 3)
	if !ok || !s.IsComplete(final) {
		t.Fatalf("expected completing the first hotword")
	}
	if w := s.Weight(final); w != 5.0 {
		t.Fatalf("expected weight 5.0, got %v", w)
	}
}

func TestIsHotpathRejectsDivergentLabel(t *testing.T) {
	s := New()
	_ = s.AddHotword([]int{1, 2, 3}, 1.0)
	s.Finalize()

	if _, ok := s.IsHotpath(s.Start(), 9); ok {
		t.Fatalf("expected no hotpath for an unrelated label")
	}
}

func TestEstimatePartialScoreGrowsTowardCompletion(t *testing.T) {
	s := New()
	_ = s.AddHotword([]int{1, 2, 3, 4}, 10.0)
	s.Finalize()

	state := s.Start()
	state, _ = s.IsHotpath(state, 1)
	farScore := s.EstimatePartialScore(state, 1, 10.0)

	state, _ = s.IsHotpath(state, 2)
	state, _ = s.IsHotpath(state, 3)
	nearScore := s.EstimatePartialScore(state, 3, 10.0)

	if !(nearScore > farScore) {
		t.Fatalf("expected score closer to completion (%v) to exceed score further away (%v)", nearScore, farScore)
	}
	if nearScore >= 10.0 {
		t.Fatalf("expected partial score to stay below full weight until complete, got %v", nearScore)
	}
}

func TestAddHotwordRejectsEmptySequence(t *testing.T) {
	s := New()
	if err := s.AddHotword(nil, 1.0); err == nil {
		t.Fatalf("expected error for empty hotword")
	}
}

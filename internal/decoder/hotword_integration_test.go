package decoder

import (
	"testing"

	"ctcbeam/internal/decoder/hotword"
)

// Scenario E: two candidates differ only in completing "CAT" vs "CAR", with
// "CAR" acoustically preferred; a hotword boost on "CAT" should flip the
// ranking, while decoding without the hotword scorer leaves the acoustic
// preference intact.
func buildCatCarOptions() Options {
	opts := DefaultOptions()
	opts.Vocab = []string{"C", "A", "T", "R", "_"}
	opts.BlankID = 4
	opts.BeamWidth = 10
	return opts
}

func catCarFrames() [][]float64 {
	return [][]float64{
		{0.90, 0.02, 0.02, 0.02, 0.04},
		{0.02, 0.90, 0.02, 0.02, 0.04},
		{0.02, 0.02, 0.40, 0.42, 0.14},
	}
}

func TestScenarioEWithoutHotwordAcousticPreferenceWins(t *testing.T) {
	state, err := NewState(buildCatCarOptions(), nil, nil)
	if err != nil {
		t.Fatalf("NewState: %v", err)
	}
	if err := state.Next(catCarFrames()); err != nil {
		t.Fatalf("Next: %v", err)
	}

	top := state.Decode()[0]
	if len(top.Tokens) != 3 || top.Tokens[0] != 0 || top.Tokens[1] != 1 || top.Tokens[2] != 3 {
		t.Fatalf("expected acoustic winner CAR=[0,1,3], got %v", top.Tokens)
	}
}

func TestScenarioEWithHotwordBoostCATWins(t *testing.T) {
	hw := hotword.New()
	if err := hw.AddHotword([]int{0, 1, 2}, 5.0); err != nil {
		t.Fatalf("AddHotword: %v", err)
	}
	hw.Finalize()

	state, err := NewState(buildCatCarOptions(), nil, hw)
	if err != nil {
		t.Fatalf("NewState: %v", err)
	}
	if err := state.Next(catCarFrames()); err != nil {
		t.Fatalf("Next: %v", err)
	}

	top := state.Decode()[0]
	if len(top.Tokens) != 3 || top.Tokens[0] != 0 || top.Tokens[1] != 1 || top.Tokens[2] != 2 {
		t.Fatalf("expected hotword-boosted winner CAT=[0,1,2], got %v", top.Tokens)
	}
}

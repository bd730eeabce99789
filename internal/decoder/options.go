package decoder

import "fmt"

// LMKind selects the tokenisation boundary semantics a Scorer's language
// model was trained with.
type LMKind int

const (
	KindCharacter LMKind = iota
	KindBPE
	KindWord
)

func (k LMKind) String() string {
	switch k {
	case KindCharacter:
		return "character"
	case KindBPE:
		return "bpe"
	case KindWord:
		return "word"
	default:
		return "unknown"
	}
}

// Options configures a DecoderState. The zero value is invalid; use
// DefaultOptions and override fields as needed.
type Options struct {
	Vocab          []string
	BlankID        int
	BeamWidth      int
	CutoffTopN     int
	CutoffProb     float64
	NumProcesses   int
	LogProbsInput  bool
	IsBPEBased     bool
	UnkScore       float64
	TokenSeparator byte
}

// DefaultOptions returns the option defaults used when a caller does not
// override them, matching the reference decoder's constants.
func DefaultOptions() Options {
	return Options{
		BeamWidth:      100,
		CutoffTopN:     40,
		CutoffProb:     1.0,
		NumProcesses:   4,
		LogProbsInput:  false,
		IsBPEBased:     false,
		UnkScore:       -5,
		TokenSeparator: '#',
	}
}

// Validate checks the invariant configuration preconditions, returning a
// descriptive error for the first violation found.
func (o Options) Validate() error {
	if len(o.Vocab) == 0 {
		return fmt.Errorf("decoder: vocab must not be empty")
	}
	if o.BlankID < 0 || o.BlankID >= len(o.Vocab) {
		return fmt.Errorf("decoder: blank_id %d out of range [0,%d)", o.BlankID, len(o.Vocab))
	}
	if o.BeamWidth <= 0 {
		return fmt.Errorf("decoder: beam_width must be positive, got %d", o.BeamWidth)
	}
	if o.CutoffTopN <= 0 {
		return fmt.Errorf("decoder: cutoff_top_n must be positive, got %d", o.CutoffTopN)
	}
	if o.CutoffProb <= 0 || o.CutoffProb > 1 {
		return fmt.Errorf("decoder: cutoff_prob must be in (0,1], got %v", o.CutoffProb)
	}
	if o.NumProcesses <= 0 {
		return fmt.Errorf("decoder: num_processes must be positive, got %d", o.NumProcesses)
	}
	return nil
}

// spaceAndApostropheIDs scans the vocabulary once for the space and
// apostrophe token ids, returning -2/-3 sentinels when absent so they can
// never collide with a real vocabulary index.
func (o Options) spaceAndApostropheIDs() (spaceID, apostropheID int) {
	spaceID, apostropheID = -2, -3
	for i, tok := range o.Vocab {
		switch tok {
		case " ":
			spaceID = i
		case "'":
			apostropheID = i
		}
	}
	return spaceID, apostropheID
}

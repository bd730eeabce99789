// Package app wires together a Config, the leveldb-backed storage, the
// language model, lexicon, and hotword artifacts it references, and the
// batch decode driver that uses them — following the teacher's pattern of
// a small App/StorageApp split, generalized from a single full-text
// service to the decoder's richer artifact set.
package app

import (
	"bufio"
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"ctcbeam/config"
	"ctcbeam/internal/decoder"
	"ctcbeam/internal/decoder/hotword"
	"ctcbeam/internal/decoder/lexicon"
	"ctcbeam/internal/decoder/lm"
	"ctcbeam/internal/decoder/pathtrie"
	"ctcbeam/internal/lib/logger/sl"
	"ctcbeam/internal/utils"
)

// App bundles the decode service's runtime dependencies: the batch driver
// ready to decode utterances, and the storage layer backing its artifact
// cache and history log.
type App struct {
	Batch      *decoder.BatchDriver
	Options    decoder.Options
	StorageApp *StorageApp
}

// New builds an App from cfg: it loads or trains the language model,
// loads or builds the lexicon, loads the hotword list, and assembles the
// Scorer and BatchDriver that decode requests will run against.
func New(log *slog.Logger, cfg *config.Config) (*App, error) {
	storageApp, err := NewStorageApp(log, cfg.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("app: storage: %w", err)
	}

	opts := decoderOptionsFromConfig(cfg.Decoder)
	if err := opts.Validate(); err != nil {
		storageApp.Stop()
		return nil, fmt.Errorf("app: %w", err)
	}

	model, err := loadOrBuildLM(log, storageApp, cfg.LM)
	if err != nil {
		storageApp.Stop()
		return nil, fmt.Errorf("app: language model: %w", err)
	}

	lex, err := loadOrBuildLexicon(log, storageApp, cfg.Lexicon, opts)
	if err != nil {
		storageApp.Stop()
		return nil, fmt.Errorf("app: lexicon: %w", err)
	}

	kind := lmKindFromString(cfg.LM.Kind)
	var scorer *decoder.Scorer
	if model != nil || lex != nil {
		// model and lex are typed nil pointers when unset; boxing a typed
		// nil into the lm.Model/pathtrie.Acceptor interfaces would make
		// Scorer.HasLM/HasLexicon see a non-nil interface, so each is only
		// assigned into its interface variable when genuinely present.
		var lmModel lm.Model
		if model != nil {
			lmModel = model
		}
		var lexAcceptor pathtrie.Acceptor
		if lex != nil {
			lexAcceptor = lex
		}
		scorer = decoder.NewScorer(cfg.Decoder.Alpha, cfg.Decoder.Beta, kind, opts.Vocab, opts.TokenSeparator, lmModel, lexAcceptor)
	}

	hw, err := loadHotwords(cfg.Hotwords, opts)
	if err != nil {
		storageApp.Stop()
		return nil, fmt.Errorf("app: hotwords: %w", err)
	}

	batch, err := decoder.NewBatchDriver(opts, scorer, hw)
	if err != nil {
		storageApp.Stop()
		return nil, fmt.Errorf("app: batch driver: %w", err)
	}

	return &App{Batch: batch, Options: opts, StorageApp: storageApp}, nil
}

func (a *App) Stop() error {
	return a.StorageApp.Stop()
}

func decoderOptionsFromConfig(c config.DecoderConfig) decoder.Options {
	opts := decoder.DefaultOptions()
	opts.Vocab = c.Vocab
	opts.BlankID = c.BlankID
	if c.BeamWidth > 0 {
		opts.BeamWidth = c.BeamWidth
	}
	if c.CutoffTopN > 0 {
		opts.CutoffTopN = c.CutoffTopN
	}
	if c.CutoffProb > 0 {
		opts.CutoffProb = c.CutoffProb
	}
	if c.NumProcesses > 0 {
		opts.NumProcesses = c.NumProcesses
	}
	opts.LogProbsInput = c.LogProbsInput
	opts.IsBPEBased = c.IsBPEBased
	opts.UnkScore = c.UnkScore
	if c.TokenSeparator != "" {
		opts.TokenSeparator = c.TokenSeparator[0]
	}
	return opts
}

func lmKindFromString(kind string) decoder.LMKind {
	switch strings.ToLower(kind) {
	case "bpe":
		return decoder.KindBPE
	case "word":
		return decoder.KindWord
	default:
		return decoder.KindCharacter
	}
}

// loadOrBuildLM returns the configured language model, preferring a
// prebuilt artifact file, then a cached-by-content-hash build from the
// corpus, then training fresh and caching the result. A Config with
// neither ArtifactPath nor CorpusPath set disables the language model.
func loadOrBuildLM(log *slog.Logger, storageApp *StorageApp, cfg config.LMConfig) (*lm.NgramModel, error) {
	if cfg.ArtifactPath != "" {
		f, err := os.Open(cfg.ArtifactPath)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return lm.Load(f)
	}
	if cfg.CorpusPath == "" {
		return nil, nil
	}

	data, err := os.ReadFile(cfg.CorpusPath)
	if err != nil {
		return nil, err
	}
	hash := contentHash(data)

	ctx := context.Background()
	if cached, err := storageApp.Storage().GetArtifact(ctx, hash); err == nil {
		model, err := lm.Load(bytes.NewReader(cached))
		if err == nil {
			log.Info("loaded cached language model", "hash", hash)
			return model, nil
		}
		log.Warn("discarding unreadable cached language model", sl.Err(err))
	}

	buildOpts := lm.DefaultBuildOptions()
	if cfg.Order > 0 {
		buildOpts.Order = cfg.Order
	}
	var model *lm.NgramModel
	mem := utils.MeasureMemory(func() {
		model, err = lm.BuildFromCorpus(bytes.NewReader(data), buildOpts)
	})
	if err != nil {
		return nil, err
	}
	log.Info("trained language model", "hash", hash, "heap_bytes", mem.HeapAlloc)

	var buf bytes.Buffer
	if err := model.Save(&buf); err == nil {
		if err := storageApp.Storage().PutArtifact(ctx, hash, buf.Bytes()); err != nil {
			log.Warn("failed to cache trained language model", sl.Err(err))
		}
	}
	return model, nil
}

// loadOrBuildLexicon mirrors loadOrBuildLM for the lexicon FST: the word
// list is tokenized into vocabulary ids one character at a time, matching
// opts.Vocab. A Config with neither path set disables the lexicon
// constraint.
func loadOrBuildLexicon(log *slog.Logger, storageApp *StorageApp, cfg config.LexiconConfig, opts decoder.Options) (*lexicon.FST, error) {
	if cfg.ArtifactPath != "" {
		f, err := os.Open(cfg.ArtifactPath)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return lexicon.Load(f)
	}
	if cfg.WordListPath == "" {
		return nil, nil
	}

	data, err := os.ReadFile(cfg.WordListPath)
	if err != nil {
		return nil, err
	}
	hash := contentHash(data)

	ctx := context.Background()
	if cached, err := storageApp.Storage().GetArtifact(ctx, hash); err == nil {
		f, err := lexicon.Load(bytes.NewReader(cached))
		if err == nil {
			log.Info("loaded cached lexicon", "hash", hash)
			return f, nil
		}
		log.Warn("discarding unreadable cached lexicon", sl.Err(err))
	}

	words := splitNonEmptyLines(data)
	charIDs := vocabCharIndex(opts.Vocab)
	f, err := lexicon.Build(words, func(word string) ([]int, error) {
		return wordToVocabIDs(word, charIDs)
	})
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := f.Save(&buf); err == nil {
		if err := storageApp.Storage().PutArtifact(ctx, hash, buf.Bytes()); err != nil {
			log.Warn("failed to cache built lexicon", sl.Err(err))
		}
	}
	return f, nil
}

// loadHotwords reads a hotword list: one "word<TAB>weight" pair per line.
// A Config with no FilePath set disables hotword boosting.
func loadHotwords(cfg config.LoaderConfig, opts decoder.Options) (*hotword.Scorer, error) {
	if cfg.FilePath == "" {
		return nil, nil
	}
	f, err := os.Open(cfg.FilePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	charIDs := vocabCharIndex(opts.Vocab)
	hw := hotword.New()
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		parts := strings.Split(line, "\t")
		if len(parts) != 2 {
			return nil, fmt.Errorf("app: malformed hotword line %q", line)
		}
		weight, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
		if err != nil {
			return nil, fmt.Errorf("app: hotword weight %q: %w", parts[1], err)
		}
		ids, err := wordToVocabIDs(strings.TrimSpace(parts[0]), charIDs)
		if err != nil {
			return nil, err
		}
		if err := hw.AddHotword(ids, weight); err != nil {
			return nil, err
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	hw.Finalize()
	return hw, nil
}

func vocabCharIndex(vocab []string) map[string]int {
	idx := make(map[string]int, len(vocab))
	for i, tok := range vocab {
		idx[tok] = i
	}
	return idx
}

// wordToVocabIDs tokenizes a whitespace-free word one rune at a time,
// mapping each rune to its vocabulary index. It is shared by lexicon and
// hotword loading since both constrain beam labels the same way.
func wordToVocabIDs(word string, charIDs map[string]int) ([]int, error) {
	ids := make([]int, 0, len(word))
	for _, r := range word {
		id, ok := charIDs[string(r)]
		if !ok {
			return nil, fmt.Errorf("app: token %q not in vocabulary", string(r))
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func splitNonEmptyLines(data []byte) []string {
	var words []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			words = append(words, line)
		}
	}
	return words
}

func contentHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

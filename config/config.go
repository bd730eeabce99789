package config

import (
	"flag"
	"fmt"
	"os"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config is the top-level decode-service configuration: where its storage
// lives, how its decoder and scorer are parameterized, and where the
// artifacts (language model, lexicon, hotword list) that feed the scorer
// are read from.
type Config struct {
	Env         string        `yaml:"env" env-default:"local"`
	StoragePath string        `yaml:"storage_path" env-default:"./data/decode.db"`
	Decoder     DecoderConfig `yaml:"decoder"`
	LM          LMConfig      `yaml:"lm"`
	Lexicon     LexiconConfig `yaml:"lexicon"`
	Hotwords    LoaderConfig  `yaml:"hotwords"`
	Stream      StreamConfig  `yaml:"stream"`
}

// DecoderConfig mirrors decoder.Options; it is kept as a separate,
// yaml-tagged struct rather than embedding decoder.Options directly so
// the decoder package never needs to know about cleanenv tags.
type DecoderConfig struct {
	Vocab          []string `yaml:"vocab" env-required:"true"`
	BlankID        int      `yaml:"blank_id" env-required:"true"`
	BeamWidth      int      `yaml:"beam_width" env-default:"100"`
	CutoffTopN     int      `yaml:"cutoff_top_n" env-default:"40"`
	CutoffProb     float64  `yaml:"cutoff_prob" env-default:"1.0"`
	NumProcesses   int      `yaml:"num_processes" env-default:"4"`
	LogProbsInput  bool     `yaml:"log_probs_input" env-default:"false"`
	IsBPEBased     bool     `yaml:"is_bpe_based" env-default:"false"`
	UnkScore       float64  `yaml:"unk_score" env-default:"-5"`
	TokenSeparator string   `yaml:"token_separator" env-default:"#"`
	Alpha          float64  `yaml:"alpha" env-default:"0"`
	Beta           float64  `yaml:"beta" env-default:"0"`
}

// LMConfig points at a corpus to train a language model from, or a
// previously trained artifact to load directly.
type LMConfig struct {
	ArtifactPath string `yaml:"artifact_path" env-default:""`
	CorpusPath   string `yaml:"corpus_path" env-default:""`
	Order        int    `yaml:"order" env-default:"3"`
	Kind         string `yaml:"kind" env-default:"character"`
}

// LexiconConfig points at a word list to build a dictionary FST from, or
// a previously built artifact.
type LexiconConfig struct {
	ArtifactPath string `yaml:"artifact_path" env-default:""`
	WordListPath string `yaml:"word_list_path" env-default:""`
}

// LoaderConfig names a flat-file source to load records from, following
// the dump-loader convention the rest of the configuration uses.
type LoaderConfig struct {
	FilePath string `yaml:"file_path" env-default:""`
}

// StreamConfig configures the SSE streaming decode endpoint.
type StreamConfig struct {
	Addr string `yaml:"addr" env-default:":8080"`
}

func MustLoad() *Config {
	configPathFlag := flag.String("config", "", "Path to the config file")
	storagePathFlag := flag.String("storage-path", "", "Path to the storage file")
	lmCorpusFlag := flag.String("lm-corpus-path", "", "Path to the language model training corpus")
	lexiconPathFlag := flag.String("lexicon-path", "", "Path to the lexicon word list")
	flag.Parse()

	configPath := *configPathFlag
	if configPath == "" {
		configPath = fetchConfigPath()
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		panic("config file does not exist: " + configPath)
	}

	var cfg Config
	if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
		panic("error loading config file: " + err.Error())
	}

	if *storagePathFlag != "" {
		cfg.StoragePath = *storagePathFlag
	}
	if *lmCorpusFlag != "" {
		cfg.LM.CorpusPath = *lmCorpusFlag
	}
	if *lexiconPathFlag != "" {
		cfg.Lexicon.WordListPath = *lexiconPathFlag
	}

	return &cfg
}

// fetchConfigPath resolves the config path from environment variable or
// default if it was not set in a command line flag.
// Priority: flag > env > default.
func fetchConfigPath() string {
	res := os.Getenv("CONFIG_PATH")
	if res == "" {
		cwd, _ := os.Getwd()
		fmt.Println("Current working directory:", cwd)
	}

	if res == "" {
		res = "./config/config_local.yaml"
	}

	fmt.Println("Config path:", res)
	return res
}

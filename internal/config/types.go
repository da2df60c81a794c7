// Package config loads and validates murmur's JSONC runtime configuration.
package config

// Config is the fully resolved runtime configuration.
type Config struct {
	Engine        EngineConfig
	Audio         AudioConfig
	Recognizer    RecognizerConfig
	Grammars      map[string]GrammarSource
	ActiveGrammar string
	Publish       PublishConfig
	Metrics       MetricsConfig
	Log           LogConfig
	Debug         DebugConfig
}

// EngineConfig selects and tunes the decoding backend.
type EngineConfig struct {
	Backend        string
	AcousticModel  string
	Dictionary     string
	LanguageWeight float64
}

// AudioConfig describes the capture device and block layout.
type AudioConfig struct {
	Source      string
	SampleRate  int
	Channels    int
	BlockFrames int
}

// RecognizerConfig tunes the segmenter loop and result shape.
type RecognizerConfig struct {
	PollIntervalMS int
	Result         string
}

// GrammarSource is one named JSGF grammar, read from File or given inline as Text.
type GrammarSource struct {
	Name string
	File string
	Text string
}

// PublishConfig enables result publishing to NATS when NATSURL is set.
type PublishConfig struct {
	NATSURL string
	Subject string
}

// MetricsConfig enables the Prometheus endpoint when Listen is set.
type MetricsConfig struct {
	Listen string
}

type LogConfig struct {
	Level string
}

// DebugConfig toggles local debug artifacts.
type DebugConfig struct {
	EnableAudioDump bool
}

// Warning is a non-fatal config issue, optionally tied to a source line.
type Warning struct {
	Line    int
	Message string
}

const (
	ResultText       = "text"
	ResultWords      = "words"
	ResultConfidence = "confidence"
)

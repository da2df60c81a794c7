package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseEmptyContentReturnsBase(t *testing.T) {
	cfg, warnings, err := Parse("  \n", Default())
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)
	require.NotEmpty(t, warnings)
}

func TestParseRejectsNonObject(t *testing.T) {
	_, _, err := Parse("engine.backend = vosk", Default())
	require.Error(t, err)
	require.Contains(t, err.Error(), "JSONC object")
}

func TestParseFullConfig(t *testing.T) {
	cfg, warnings, err := Parse(`
// murmur configuration
{
  "engine": {
    "backend": " vosk ",
    "acoustic_model": "/models/en",
    "language_weight": 9.0,
  },
  "audio": {"source": "alsa_input.usb", "sample_rate": 48000, "channels": 2, "block_frames": 480},
  "recognizer": {"poll_interval_ms": 20, "result": "Confidence"},
  "grammars": {
    "greet": {"text": "#JSGF V1.0; grammar g; public <r> = hello;"},
    "menu": {"file": "menu.gram"},
  },
  "active_grammar": "menu",
  "publish": {"nats_url": "nats://127.0.0.1:4222", "subject": "voice.results"},
  "metrics": {"listen": "127.0.0.1:9464"},
  "log": {"level": "DEBUG"},
  "debug": {"audio_dump": true},
}
`, Default())
	require.NoError(t, err)
	require.Empty(t, warnings)

	require.Equal(t, "vosk", cfg.Engine.Backend)
	require.Equal(t, "/models/en", cfg.Engine.AcousticModel)
	require.InDelta(t, 9.0, cfg.Engine.LanguageWeight, 1e-9)
	require.Equal(t, AudioConfig{Source: "alsa_input.usb", SampleRate: 48000, Channels: 2, BlockFrames: 480}, cfg.Audio)
	require.Equal(t, RecognizerConfig{PollIntervalMS: 20, Result: ResultConfidence}, cfg.Recognizer)
	require.Equal(t, GrammarSource{Name: "menu", File: "menu.gram"}, cfg.Grammars["menu"])
	require.Equal(t, "greet", cfg.Grammars["greet"].Name)
	require.Equal(t, "menu", cfg.ActiveGrammar)
	require.Equal(t, PublishConfig{NATSURL: "nats://127.0.0.1:4222", Subject: "voice.results"}, cfg.Publish)
	require.Equal(t, "127.0.0.1:9464", cfg.Metrics.Listen)
	require.Equal(t, "debug", cfg.Log.Level)
	require.True(t, cfg.Debug.EnableAudioDump)
}

func TestParseDoesNotMutateBaseGrammars(t *testing.T) {
	base := Default()
	_, _, err := Parse(`{"grammars": {"a": {"text": "grammar a; public <r> = a;"}}}`, base)
	require.NoError(t, err)
	require.Empty(t, base.Grammars)
}

func TestParseRejectsUnknownField(t *testing.T) {
	_, _, err := Parse(`{"engine": {"lm": "x"}}`, Default())
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown field")
}

func TestParseRejectsEmptyGrammarName(t *testing.T) {
	_, _, err := Parse(`{"grammars": {" ": {"text": "grammar a; public <r> = a;"}}}`, Default())
	require.Error(t, err)
	require.Contains(t, err.Error(), "empty grammar name")
}

func TestParseRejectsMultipleTopLevelValues(t *testing.T) {
	_, _, err := Parse(`{"log":{"level":"info"}}{"log":{"level":"debug"}}`, Default())
	require.Error(t, err)
	require.Contains(t, err.Error(), "multiple JSON values")
}

func TestParseTypeErrorIncludesLocation(t *testing.T) {
	_, _, err := Parse(`{
  "audio": {"sample_rate": "fast"}
}`, Default())
	require.Error(t, err)
	require.Contains(t, err.Error(), "line 2")
	require.Contains(t, err.Error(), "column")
}

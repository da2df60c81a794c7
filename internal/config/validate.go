package config

import (
	"fmt"
	"net/url"
	"slices"
	"strings"
)

// Validate enforces config invariants and returns non-fatal warnings.
func Validate(cfg Config) ([]Warning, error) {
	warnings := make([]Warning, 0)

	if strings.TrimSpace(cfg.Engine.Backend) == "" {
		return nil, fmt.Errorf("engine.backend must not be empty")
	}
	if cfg.Engine.LanguageWeight <= 0 {
		return nil, fmt.Errorf("engine.language_weight must be > 0")
	}
	if strings.TrimSpace(cfg.Engine.AcousticModel) == "" {
		warnings = append(warnings, Warning{Message: "engine.acoustic_model is empty; the backend will refuse to open"})
	}

	if cfg.Audio.SampleRate < 8000 || cfg.Audio.SampleRate > 192000 {
		return nil, fmt.Errorf("audio.sample_rate must be between 8000 and 192000")
	}
	if cfg.Audio.Channels != 1 && cfg.Audio.Channels != 2 {
		return nil, fmt.Errorf("audio.channels must be 1 or 2")
	}
	if cfg.Audio.BlockFrames <= 0 {
		return nil, fmt.Errorf("audio.block_frames must be > 0")
	}

	if cfg.Recognizer.PollIntervalMS <= 0 || cfg.Recognizer.PollIntervalMS > 1000 {
		return nil, fmt.Errorf("recognizer.poll_interval_ms must be between 1 and 1000")
	}
	switch cfg.Recognizer.Result {
	case ResultText, ResultWords, ResultConfidence:
	default:
		return nil, fmt.Errorf("recognizer.result must be one of: text, words, confidence")
	}

	for _, source := range OrderedGrammars(cfg) {
		hasFile := source.File != ""
		hasText := strings.TrimSpace(source.Text) != ""
		if hasFile == hasText {
			return nil, fmt.Errorf("grammars.%s must set exactly one of file or text", source.Name)
		}
	}
	if cfg.ActiveGrammar != "" {
		if _, ok := cfg.Grammars[cfg.ActiveGrammar]; !ok {
			return nil, fmt.Errorf("active_grammar references unknown grammar %q", cfg.ActiveGrammar)
		}
	} else if len(cfg.Grammars) > 0 {
		warnings = append(warnings, Warning{Message: "grammars are configured but active_grammar is unset; decoding stays unconstrained until one is activated"})
	}

	if cfg.Publish.NATSURL != "" {
		if _, err := url.Parse(cfg.Publish.NATSURL); err != nil {
			return nil, fmt.Errorf("publish.nats_url is invalid: %w", err)
		}
		if strings.TrimSpace(cfg.Publish.Subject) == "" {
			return nil, fmt.Errorf("publish.subject must not be empty when publish.nats_url is set")
		}
	}

	switch cfg.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return nil, fmt.Errorf("log.level must be one of: debug, info, warn, error")
	}

	return warnings, nil
}

// OrderedGrammars returns the configured grammars sorted by name.
func OrderedGrammars(cfg Config) []GrammarSource {
	names := make([]string, 0, len(cfg.Grammars))
	for name := range cfg.Grammars {
		names = append(names, name)
	}
	slices.Sort(names)

	out := make([]GrammarSource, 0, len(names))
	for _, name := range names {
		source := cfg.Grammars[name]
		source.Name = name
		out = append(out, source)
	}
	return out
}

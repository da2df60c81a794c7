package config

import (
	"encoding/json"
	"fmt"
	"maps"
	"strings"
)

// Parse decodes JSONC content on top of base, then validates the result.
// Empty content validates and returns base unchanged.
func Parse(content string, base Config) (Config, []Warning, error) {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		warnings, err := Validate(base)
		if err != nil {
			return Config{}, nil, err
		}
		return base, warnings, nil
	}
	if !strings.HasPrefix(trimmed, "{") && !strings.HasPrefix(trimmed, "/") {
		return Config{}, nil, fmt.Errorf("config must be a JSONC object")
	}
	return parseJSONC(content, base)
}

type jsoncConfig struct {
	Engine *struct {
		Backend        *string  `json:"backend"`
		AcousticModel  *string  `json:"acoustic_model"`
		Dictionary     *string  `json:"dictionary"`
		LanguageWeight *float64 `json:"language_weight"`
	} `json:"engine"`
	Audio *struct {
		Source      *string `json:"source"`
		SampleRate  *int    `json:"sample_rate"`
		Channels    *int    `json:"channels"`
		BlockFrames *int    `json:"block_frames"`
	} `json:"audio"`
	Recognizer *struct {
		PollIntervalMS *int    `json:"poll_interval_ms"`
		Result         *string `json:"result"`
	} `json:"recognizer"`
	Grammars map[string]struct {
		File *string `json:"file"`
		Text *string `json:"text"`
	} `json:"grammars"`
	ActiveGrammar *string `json:"active_grammar"`
	Publish       *struct {
		NATSURL *string `json:"nats_url"`
		Subject *string `json:"subject"`
	} `json:"publish"`
	Metrics *struct {
		Listen *string `json:"listen"`
	} `json:"metrics"`
	Log *struct {
		Level *string `json:"level"`
	} `json:"log"`
	Debug *struct {
		AudioDump *bool `json:"audio_dump"`
	} `json:"debug"`
}

func parseJSONC(content string, base Config) (Config, []Warning, error) {
	normalized, err := normalizeJSONC(content)
	if err != nil {
		return Config{}, nil, err
	}

	decoder := json.NewDecoder(strings.NewReader(normalized))
	decoder.DisallowUnknownFields()

	var payload jsoncConfig
	if err := decoder.Decode(&payload); err != nil {
		return Config{}, nil, wrapJSONDecodeError(normalized, err)
	}
	if err := ensureSingleJSONValue(decoder); err != nil {
		return Config{}, nil, wrapJSONDecodeError(normalized, err)
	}

	cfg := base
	cfg.Grammars = maps.Clone(base.Grammars)
	if cfg.Grammars == nil {
		cfg.Grammars = map[string]GrammarSource{}
	}
	if err := payload.applyTo(&cfg); err != nil {
		return Config{}, nil, err
	}

	warnings, err := Validate(cfg)
	if err != nil {
		return Config{}, nil, err
	}
	return cfg, warnings, nil
}

func (payload jsoncConfig) applyTo(cfg *Config) error {
	if e := payload.Engine; e != nil {
		setTrimmed(&cfg.Engine.Backend, e.Backend)
		setTrimmed(&cfg.Engine.AcousticModel, e.AcousticModel)
		setTrimmed(&cfg.Engine.Dictionary, e.Dictionary)
		if e.LanguageWeight != nil {
			cfg.Engine.LanguageWeight = *e.LanguageWeight
		}
	}

	if a := payload.Audio; a != nil {
		setTrimmed(&cfg.Audio.Source, a.Source)
		setInt(&cfg.Audio.SampleRate, a.SampleRate)
		setInt(&cfg.Audio.Channels, a.Channels)
		setInt(&cfg.Audio.BlockFrames, a.BlockFrames)
	}

	if r := payload.Recognizer; r != nil {
		setInt(&cfg.Recognizer.PollIntervalMS, r.PollIntervalMS)
		if r.Result != nil {
			cfg.Recognizer.Result = strings.ToLower(strings.TrimSpace(*r.Result))
		}
	}

	for rawName, g := range payload.Grammars {
		name := strings.TrimSpace(rawName)
		if name == "" {
			return fmt.Errorf("grammars: empty grammar name")
		}
		source := GrammarSource{Name: name}
		setTrimmed(&source.File, g.File)
		if g.Text != nil {
			source.Text = *g.Text
		}
		cfg.Grammars[name] = source
	}
	setTrimmed(&cfg.ActiveGrammar, payload.ActiveGrammar)

	if p := payload.Publish; p != nil {
		setTrimmed(&cfg.Publish.NATSURL, p.NATSURL)
		setTrimmed(&cfg.Publish.Subject, p.Subject)
	}
	if m := payload.Metrics; m != nil {
		setTrimmed(&cfg.Metrics.Listen, m.Listen)
	}
	if l := payload.Log; l != nil && l.Level != nil {
		cfg.Log.Level = strings.ToLower(strings.TrimSpace(*l.Level))
	}
	if d := payload.Debug; d != nil && d.AudioDump != nil {
		cfg.Debug.EnableAudioDump = *d.AudioDump
	}
	return nil
}

func setTrimmed(dst *string, v *string) {
	if v != nil {
		*dst = strings.TrimSpace(*v)
	}
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}

package config

// Default returns the baseline configuration used when no file is present.
func Default() Config {
	return Config{
		Engine: EngineConfig{
			Backend:        "vosk",
			LanguageWeight: 7.5,
		},
		Audio: AudioConfig{
			Source:      "default",
			SampleRate:  44100,
			Channels:    1,
			BlockFrames: 1024,
		},
		Recognizer: RecognizerConfig{
			PollIntervalMS: 10,
			Result:         ResultText,
		},
		Grammars: map[string]GrammarSource{},
		Publish: PublishConfig{
			Subject: "murmur.results",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Package doctor runs readiness checks for config, engine, grammars and audio.
package doctor

import (
	"context"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/rbright/murmur/internal/audio"
	"github.com/rbright/murmur/internal/config"
	"github.com/rbright/murmur/internal/engine"
	"github.com/rbright/murmur/internal/grammar"
	"github.com/rbright/murmur/internal/publish"
)

// Check is one assertion result.
type Check struct {
	Name    string
	Pass    bool
	Message string
}

// Report is the full check output.
type Report struct {
	Checks []Check
}

// OK returns true when all checks pass.
func (r Report) OK() bool {
	for _, check := range r.Checks {
		if !check.Pass {
			return false
		}
	}
	return true
}

// String renders the report as user-facing text output.
func (r Report) String() string {
	var b strings.Builder
	for _, check := range r.Checks {
		status := "OK"
		if !check.Pass {
			status = "FAIL"
		}
		fmt.Fprintf(&b, "[%s] %s: %s\n", status, check.Name, check.Message)
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// Run executes every check against a loaded config.
func Run(ctx context.Context, loaded config.Loaded) Report {
	cfg := loaded.Config
	checks := []Check{checkConfig(loaded)}

	checks = append(checks, checkEnv("XDG_RUNTIME_DIR", func(v string) bool {
		return strings.TrimSpace(v) != ""
	}, "control socket directory available", "XDG_RUNTIME_DIR is empty; activate/status/stop cannot reach a listener"))

	checks = append(checks, checkBackend(cfg.Engine.Backend, engine.Backends()))
	checks = append(checks, checkPath("engine.acoustic_model", cfg.Engine.AcousticModel, true))
	if cfg.Engine.Dictionary != "" {
		checks = append(checks, checkPath("engine.dictionary", cfg.Engine.Dictionary, true))
	}

	for _, source := range config.OrderedGrammars(cfg) {
		checks = append(checks, checkGrammar(source))
	}
	checks = append(checks, checkActiveGrammar(cfg))

	checks = append(checks, checkAudioServer(ctx))
	if cfg.Publish.NATSURL != "" {
		checks = append(checks, checkNATS(cfg.Publish))
	}

	return Report{Checks: checks}
}

func checkConfig(loaded config.Loaded) Check {
	if !loaded.Exists {
		return Check{Name: "config", Pass: true, Message: fmt.Sprintf("%q not found; using defaults", loaded.Path)}
	}
	return Check{Name: "config", Pass: true, Message: fmt.Sprintf("loaded %q", loaded.Path)}
}

// checkEnv validates an environment variable through a caller-supplied predicate.
func checkEnv(name string, predicate func(string) bool, okMsg, failMsg string) Check {
	if predicate(os.Getenv(name)) {
		return Check{Name: name, Pass: true, Message: okMsg}
	}
	return Check{Name: name, Pass: false, Message: failMsg}
}

func checkBackend(name string, compiled []string) Check {
	if slices.Contains(compiled, name) {
		return Check{Name: "engine.backend", Pass: true, Message: fmt.Sprintf("%s compiled in", name)}
	}
	available := "none"
	if len(compiled) > 0 {
		available = strings.Join(compiled, ", ")
	}
	return Check{
		Name:    "engine.backend",
		Pass:    false,
		Message: fmt.Sprintf("%s not compiled in (available: %s); rebuild with -tags %s", name, available, name),
	}
}

func checkPath(name string, path string, wantDir bool) Check {
	if strings.TrimSpace(path) == "" {
		return Check{Name: name, Pass: false, Message: "path is empty"}
	}
	info, err := os.Stat(path)
	if err != nil {
		return Check{Name: name, Pass: false, Message: err.Error()}
	}
	if wantDir && !info.IsDir() {
		return Check{Name: name, Pass: false, Message: fmt.Sprintf("%s is not a directory", path)}
	}
	return Check{Name: name, Pass: true, Message: fmt.Sprintf("found %s", path)}
}

func checkGrammar(source config.GrammarSource) Check {
	name := "grammars." + source.Name
	text := source.Text
	if source.File != "" {
		data, err := os.ReadFile(source.File)
		if err != nil {
			return Check{Name: name, Pass: false, Message: err.Error()}
		}
		text = string(data)
	}

	parsed, err := grammar.Parse(text)
	if err != nil {
		return Check{Name: name, Pass: false, Message: err.Error()}
	}
	return Check{
		Name:    name,
		Pass:    true,
		Message: fmt.Sprintf("grammar %s: %d public rules, %d words", parsed.Name, len(parsed.Public), len(parsed.Vocabulary())),
	}
}

func checkActiveGrammar(cfg config.Config) Check {
	if cfg.ActiveGrammar == "" {
		return Check{Name: "active_grammar", Pass: true, Message: "unset; decoding is unconstrained until a grammar is activated"}
	}
	if _, ok := cfg.Grammars[cfg.ActiveGrammar]; !ok {
		return Check{Name: "active_grammar", Pass: false, Message: fmt.Sprintf("unknown grammar %q", cfg.ActiveGrammar)}
	}
	return Check{Name: "active_grammar", Pass: true, Message: cfg.ActiveGrammar}
}

func checkAudioServer(ctx context.Context) Check {
	server, err := audio.ProbeServer(ctx)
	if err != nil {
		return Check{Name: "audio.server", Pass: false, Message: err.Error()}
	}
	return Check{Name: "audio.server", Pass: true, Message: fmt.Sprintf("connected to %s", server)}
}

func checkNATS(cfg config.PublishConfig) Check {
	pub, err := publish.Connect(publish.Config{URL: cfg.NATSURL, Subject: cfg.Subject, ConnectTimeout: 2 * time.Second}, nil)
	if err != nil {
		return Check{Name: "publish.nats", Pass: false, Message: err.Error()}
	}
	pub.Close()
	return Check{Name: "publish.nats", Pass: true, Message: fmt.Sprintf("reachable at %s (subject %s)", cfg.NATSURL, cfg.Subject)}
}

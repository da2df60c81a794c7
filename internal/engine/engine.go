// Package engine defines the decoding-engine contract used by the recognizer
// and a registry of compiled-in backends.
package engine

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// SampleRate is the PCM rate every backend decodes at.
const SampleRate = 16000

// ErrUnknownBackend indicates Open was asked for a backend that is not compiled in.
var ErrUnknownBackend = errors.New("unknown engine backend")

// Config carries the model locations an engine session is created from.
type Config struct {
	AcousticModel string
	Dictionary    string
	SampleRate    int
}

// Segment is one recognized word of a finished utterance.
type Segment struct {
	Word    string
	LogProb float64
}

// Grammar is a compiled grammar model owned by the caller until installed.
type Grammar interface {
	Close() error
}

// Decoder is one engine session.
//
// Calls are not safe for concurrent use; the recognizer serializes them.
// Hypothesis and Segments are valid between EndUtterance and the next
// StartUtterance.
type Decoder interface {
	StartUtterance() error
	EndUtterance() error
	// Process decodes already-captured 16 kHz mono PCM without blocking on I/O.
	Process(pcm []int16) error
	InSpeech() bool
	Hypothesis() string
	Segments() []Segment
	LogToLinear(logProb float64) float64

	CompileGrammar(text string, weight float64) (Grammar, error)
	InstallGrammar(key string, g Grammar) error
	SetSearch(key string) error

	Close() error
}

// Opener creates a decoder session for one backend.
type Opener func(Config) (Decoder, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Opener{}
)

// Register makes a backend available to Open. It panics on duplicate names.
func Register(name string, open Opener) {
	registryMu.Lock()
	defer registryMu.Unlock()

	if open == nil {
		panic("engine: Register opener is nil")
	}
	if _, dup := registry[name]; dup {
		panic("engine: Register called twice for backend " + name)
	}
	registry[name] = open
}

// Open creates a decoder with the named backend.
func Open(name string, cfg Config) (Decoder, error) {
	registryMu.RLock()
	open, ok := registry[name]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w %q (compiled in: %v)", ErrUnknownBackend, name, Backends())
	}

	if cfg.SampleRate == 0 {
		cfg.SampleRate = SampleRate
	}
	return open(cfg)
}

// Backends lists registered backend names in sorted order.
func Backends() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

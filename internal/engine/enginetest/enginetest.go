// Package enginetest provides a scripted in-memory decoder for tests.
package enginetest

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/rbright/murmur/internal/engine"
	"github.com/rbright/murmur/internal/grammar"
)

// Utterance is the result the engine reports when the next utterance ends.
type Utterance struct {
	Hypothesis string
	Segments   []engine.Segment
}

// Grammar is a compiled grammar produced by Engine.CompileGrammar.
type Grammar struct {
	*grammar.Grammar
	Weight float64

	mu     sync.Mutex
	closed bool
}

// Close marks the grammar released.
func (g *Grammar) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.closed = true
	return nil
}

// Closed reports whether Close was called.
func (g *Grammar) Closed() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.closed
}

// Engine is an engine.Decoder whose voice-activity flag follows a script:
// each Process call consumes one entry, and the flag stays false once the
// script is exhausted.
type Engine struct {
	mu sync.Mutex

	speech  []bool
	results []Utterance

	startCalls    int
	failStartAt   int
	failStartWith error
	failSearch    error

	calls     []string
	grammars  map[string]*Grammar
	search    string
	inSpeech  bool
	open      bool
	current   Utterance
	processed int
	samples   int
	closed    bool
}

var _ engine.Decoder = (*Engine)(nil)

// New builds a scripted engine. results are handed out one per EndUtterance.
func New(speech []bool, results ...Utterance) *Engine {
	return &Engine{
		speech:   append([]bool(nil), speech...),
		results:  append([]Utterance(nil), results...),
		grammars: make(map[string]*Grammar),
	}
}

// FailStart makes the nth StartUtterance call (1-based) return err.
func (e *Engine) FailStart(n int, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.failStartAt = n
	e.failStartWith = err
}

// FailSearch makes every SetSearch call return err; nil restores success.
func (e *Engine) FailSearch(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.failSearch = err
}

func (e *Engine) StartUtterance() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.startCalls++
	if e.failStartAt > 0 && e.startCalls == e.failStartAt {
		e.calls = append(e.calls, "start:error")
		return e.failStartWith
	}
	if e.open {
		return errors.New("utterance already open")
	}
	e.open = true
	e.inSpeech = false
	e.current = Utterance{}
	e.calls = append(e.calls, "start")
	return nil
}

func (e *Engine) EndUtterance() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.open {
		return errors.New("no open utterance")
	}
	e.open = false
	e.inSpeech = false
	if len(e.results) > 0 {
		e.current = e.results[0]
		e.results = e.results[1:]
	}
	e.calls = append(e.calls, "end")
	return nil
}

func (e *Engine) Process(pcm []int16) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.open {
		return errors.New("process outside utterance")
	}
	e.samples += len(pcm)
	if e.processed < len(e.speech) {
		e.inSpeech = e.speech[e.processed]
	} else {
		e.inSpeech = false
	}
	e.processed++
	e.calls = append(e.calls, "process")
	return nil
}

func (e *Engine) InSpeech() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.inSpeech
}

func (e *Engine) Hypothesis() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current.Hypothesis
}

func (e *Engine) Segments() []engine.Segment {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]engine.Segment(nil), e.current.Segments...)
}

func (e *Engine) LogToLinear(logProb float64) float64 {
	return math.Exp(logProb)
}

func (e *Engine) CompileGrammar(text string, weight float64) (engine.Grammar, error) {
	parsed, err := grammar.Parse(text)
	if err != nil {
		return nil, err
	}
	return &Grammar{Grammar: parsed, Weight: weight}, nil
}

func (e *Engine) InstallGrammar(key string, g engine.Grammar) error {
	compiled, ok := g.(*Grammar)
	if !ok {
		return fmt.Errorf("foreign grammar type %T", g)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.grammars[key] = compiled
	e.calls = append(e.calls, "install:"+key)
	return nil
}

func (e *Engine) SetSearch(key string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.failSearch != nil {
		e.calls = append(e.calls, "search:error")
		return e.failSearch
	}
	if _, ok := e.grammars[key]; !ok {
		return fmt.Errorf("no search named %q", key)
	}
	e.search = key
	e.calls = append(e.calls, "search:"+key)
	return nil
}

func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	e.calls = append(e.calls, "close")
	return nil
}

// Calls returns the ordered log of engine calls.
func (e *Engine) Calls() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.calls...)
}

// Search returns the key of the current search.
func (e *Engine) Search() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.search
}

// Installed returns the sorted keys of installed grammars.
func (e *Engine) Installed() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	keys := make([]string, 0, len(e.grammars))
	for key := range e.grammars {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// InstalledGrammar returns the grammar installed under key, if any.
func (e *Engine) InstalledGrammar(key string) (*Grammar, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	g, ok := e.grammars[key]
	return g, ok
}

// Processed returns how many Process calls were made.
func (e *Engine) Processed() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.processed
}

// Samples returns the total PCM samples fed.
func (e *Engine) Samples() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.samples
}

// Closed reports whether Close was called.
func (e *Engine) Closed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

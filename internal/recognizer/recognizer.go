// Package recognizer segments a live audio stream into utterances, decodes
// them against a switchable named grammar and dispatches results.
package recognizer

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/rbright/murmur/internal/audio"
	"github.com/rbright/murmur/internal/engine"
	"github.com/rbright/murmur/internal/fsm"
)

const (
	DefaultLanguageWeight = 7.5
	DefaultPollInterval   = 10 * time.Millisecond
)

// Config tunes a Recognizer.
type Config struct {
	// Backend names the engine registered with engine.Register (Open only).
	Backend string
	Engine  engine.Config

	LanguageWeight float64
	PollInterval   time.Duration

	// Meter overrides the global OpenTelemetry meter.
	Meter metric.Meter
	// OnAudio observes each converted 16 kHz block on the loop goroutine.
	OnAudio func(pcm []int16)
}

func (c Config) withDefaults() Config {
	if c.LanguageWeight <= 0 {
		c.LanguageWeight = DefaultLanguageWeight
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	return c
}

// Source delivers interleaved float32 frames without blocking. Read returns
// 0 when nothing is buffered and io.EOF once the source has ended.
type Source interface {
	Format() audio.Format
	Read(dst []float32) (int, error)
}

// Recognizer owns one engine session, its grammars and the loop goroutine.
type Recognizer struct {
	logger  *slog.Logger
	cfg     Config
	metrics *metrics

	// mu serializes every engine call between callers and the loop.
	mu         sync.Mutex
	decoder    engine.Decoder
	grammars   *grammarRegistry
	handler    Handler
	state      fsm.State
	running    bool
	started    bool
	closed     bool
	utterances int
	err        error

	cancel context.CancelFunc
	done   chan struct{}
}

// Open creates the engine session named by cfg.Backend and wraps it.
func Open(cfg Config, logger *slog.Logger) (*Recognizer, error) {
	if strings.TrimSpace(cfg.Backend) == "" {
		return nil, fmt.Errorf("%w: engine backend is required", ErrConfiguration)
	}
	dec, err := engine.Open(cfg.Backend, cfg.Engine)
	if err != nil {
		return nil, fmt.Errorf("%w: open engine %q: %w", ErrConfiguration, cfg.Backend, err)
	}
	r, err := New(dec, cfg, logger)
	if err != nil {
		_ = dec.Close()
		return nil, err
	}
	return r, nil
}

// New wraps an already-open decoder. The recognizer takes ownership of it.
func New(dec engine.Decoder, cfg Config, logger *slog.Logger) (*Recognizer, error) {
	if dec == nil {
		return nil, fmt.Errorf("%w: decoder is nil", ErrConfiguration)
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	cfg = cfg.withDefaults()

	m, err := newMetrics(cfg.Meter)
	if err != nil {
		logger.Warn("metrics unavailable", "error", err.Error())
		m = noopMetrics()
	}

	return &Recognizer{
		logger:   logger,
		cfg:      cfg,
		metrics:  m,
		decoder:  dec,
		grammars: newGrammarRegistry(),
		state:    fsm.StateIdle,
		done:     make(chan struct{}),
	}, nil
}

// SetHandler registers h as the only result handler; nil removes it.
func (r *Recognizer) SetHandler(h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handler = h
}

// OnText registers fn for hypothesis text, replacing any handler.
func (r *Recognizer) OnText(fn func(text string)) {
	if fn == nil {
		r.SetHandler(nil)
		return
	}
	r.SetHandler(TextHandler(fn))
}

// OnWords registers fn for word lists, replacing any handler.
func (r *Recognizer) OnWords(fn func(words []string)) {
	if fn == nil {
		r.SetHandler(nil)
		return
	}
	r.SetHandler(WordsHandler(fn))
}

// OnConfidence registers fn for words with confidences, replacing any handler.
func (r *Recognizer) OnConfidence(fn func(words []WordConfidence)) {
	if fn == nil {
		r.SetHandler(nil)
		return
	}
	r.SetHandler(ConfidenceHandler(fn))
}

// AddGrammar compiles text and installs it under key. A parse failure leaves
// the registry untouched. While running, activation takes effect at the
// next utterance boundary.
func (r *Recognizer) AddGrammar(key string, text string, activate bool) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("%w: grammar key is empty", ErrConfiguration)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrClosed
	}

	compiled, err := r.decoder.CompileGrammar(text, r.cfg.LanguageWeight)
	if err != nil {
		return fmt.Errorf("%w: grammar %q: %w", ErrGrammarParse, key, err)
	}

	switched, err := r.grammars.add(r.decoder, key, compiled, activate, r.running)
	if err != nil {
		return err
	}
	if switched {
		r.metrics.grammarSwitch(context.Background(), key)
	}

	r.logger.Info("grammar added", "grammar", key, "activate", activate, "active_grammar", r.grammars.effective())
	return nil
}

// AddGrammarFile reads grammar text from path and adds it under key.
func (r *Recognizer) AddGrammarFile(key string, path string, activate bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("%w: read grammar %q: %w", ErrResourceLoad, path, err)
	}
	return r.AddGrammar(key, string(data), activate)
}

// Activate makes key the current search. It fails with ErrGrammarNotFound
// for unknown keys and leaves the active grammar unchanged.
func (r *Recognizer) Activate(key string) error {
	key = strings.TrimSpace(key)

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrClosed
	}

	switched, err := r.grammars.activate(r.decoder, key, r.running)
	if err != nil {
		return err
	}
	if switched {
		r.metrics.grammarSwitch(context.Background(), key)
	}
	r.logger.Info("grammar activated", "grammar", key, "deferred", !switched)
	return nil
}

// ActiveGrammar returns the current search key, or the queued one while a
// switch waits for the next utterance boundary.
func (r *Recognizer) ActiveGrammar() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.grammars.effective()
}

// Grammars lists registered grammar keys in sorted order.
func (r *Recognizer) Grammars() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.grammars.keys()
}

// State returns the segmenter state.
func (r *Recognizer) State() fsm.State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Utterances returns how many utterances have closed.
func (r *Recognizer) Utterances() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.utterances
}

// Start opens the first utterance and runs the loop on its own goroutine.
// Initialization failures are returned before any goroutine starts.
func (r *Recognizer) Start(ctx context.Context, src Source) error {
	if src == nil {
		return fmt.Errorf("%w: audio source is nil", ErrConfiguration)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrClosed
	}
	if r.started {
		return ErrAlreadyStarted
	}

	conv, err := newConverter(src.Format())
	if err != nil {
		return err
	}

	if err := r.decoder.StartUtterance(); err != nil {
		r.state, _ = fsm.Transition(r.state, fsm.EventFail)
		return fmt.Errorf("%w: %w", ErrUtteranceStart, err)
	}
	r.transitionLocked(fsm.EventOpen)

	loopCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.started = true
	r.running = true

	format := src.Format()
	r.logger.Info("recognizer started",
		"sample_rate", format.SampleRate,
		"channels", format.Channels,
		"block_frames", format.FramesPerBlock,
		"active_grammar", r.grammars.effective(),
	)

	go r.run(loopCtx, src, conv)
	return nil
}

// Done is closed once the loop has exited, or on Close if it never started.
func (r *Recognizer) Done() <-chan struct{} {
	return r.done
}

// Err returns the error that terminated the loop, if any.
func (r *Recognizer) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Stop signals the loop and waits for it to exit. The open utterance is
// discarded. Stop is idempotent and returns the loop's terminal error.
func (r *Recognizer) Stop() error {
	r.mu.Lock()
	cancel := r.cancel
	r.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	<-r.done
	return r.Err()
}

// Close stops the loop and releases grammars, then the engine. Start fails
// with ErrClosed once Close has begun.
func (r *Recognizer) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	cancel := r.cancel
	r.mu.Unlock()

	if cancel != nil {
		cancel()
		<-r.done
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.started {
		close(r.done)
		r.transitionLocked(fsm.EventStop)
	}

	r.grammars.close()
	if err := r.decoder.Close(); err != nil {
		return fmt.Errorf("close engine: %w", err)
	}
	r.logger.Info("recognizer closed", "utterances", r.utterances)
	return nil
}

// transitionLocked applies one event; invalid transitions are logged only.
func (r *Recognizer) transitionLocked(event fsm.Event) {
	next, err := fsm.Transition(r.state, event)
	if err != nil {
		r.logger.Debug("ignored state transition", "state", string(r.state), "event", string(event), "error", err.Error())
		return
	}
	r.state = next
}

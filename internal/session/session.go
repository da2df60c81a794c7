// Package session runs one listening session: it builds the recognizer
// from config, loads grammars, forwards results and serves IPC commands.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/metric"

	"github.com/rbright/murmur/internal/audio"
	"github.com/rbright/murmur/internal/config"
	"github.com/rbright/murmur/internal/convert"
	"github.com/rbright/murmur/internal/engine"
	"github.com/rbright/murmur/internal/fsm"
	"github.com/rbright/murmur/internal/ipc"
	"github.com/rbright/murmur/internal/publish"
	"github.com/rbright/murmur/internal/recognizer"
)

// Reason names why Run returned.
type Reason string

const (
	ReasonStopped     Reason = "stopped"
	ReasonInterrupted Reason = "interrupted"
	ReasonSourceEnded Reason = "source_ended"
	ReasonFailed      Reason = "failed"
)

// Publisher receives every dispatched result.
type Publisher interface {
	Publish(context.Context, publish.Event) error
}

// Options carries collaborators that are not part of the config file.
type Options struct {
	Logger    *slog.Logger
	Meter     metric.Meter
	Publisher Publisher
	// Output receives one line per dispatched result.
	Output io.Writer
	// DumpDir receives <session-id>.wav when debug.audio_dump is enabled.
	DumpDir string
	// OpenEngine defaults to engine.Open.
	OpenEngine func(backend string, cfg engine.Config) (engine.Decoder, error)
}

// Result summarizes one Run.
type Result struct {
	SessionID     string
	Reason        Reason
	State         fsm.State
	Utterances    int
	Dispatched    int64
	PublishErrors int64
	AudioDump     string
	Err           error
	StartedAt     time.Time
	FinishedAt    time.Time
}

// Controller owns the recognizer for one session.
type Controller struct {
	id        string
	logger    *slog.Logger
	rec       *recognizer.Recognizer
	publisher Publisher
	output    io.Writer
	dump      *audioDump
	dumpDir   string

	dispatched    atomic.Int64
	publishErrors atomic.Int64
	running       atomic.Bool
	stops         chan struct{}
}

// New opens the configured engine, loads every configured grammar and
// registers the result handler named by recognizer.result.
func New(cfg config.Config, opts Options) (*Controller, error) {
	id := uuid.NewString()
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	logger = logger.With("session_id", id)

	c := &Controller{
		id:        id,
		logger:    logger,
		publisher: opts.Publisher,
		output:    opts.Output,
		dumpDir:   opts.DumpDir,
		stops:     make(chan struct{}, 1),
	}

	recCfg := recognizer.Config{
		Backend:        cfg.Engine.Backend,
		Engine:         engine.Config{AcousticModel: cfg.Engine.AcousticModel, Dictionary: cfg.Engine.Dictionary},
		LanguageWeight: cfg.Engine.LanguageWeight,
		PollInterval:   time.Duration(cfg.Recognizer.PollIntervalMS) * time.Millisecond,
		Meter:          opts.Meter,
	}
	if cfg.Debug.EnableAudioDump {
		c.dump = &audioDump{}
		recCfg.OnAudio = c.dump.append
	}

	open := opts.OpenEngine
	if open == nil {
		open = engine.Open
	}
	dec, err := open(cfg.Engine.Backend, recCfg.Engine)
	if err != nil {
		return nil, fmt.Errorf("%w: open engine %q: %w", recognizer.ErrConfiguration, cfg.Engine.Backend, err)
	}
	rec, err := recognizer.New(dec, recCfg, logger)
	if err != nil {
		_ = dec.Close()
		return nil, err
	}
	c.rec = rec

	if err := c.loadGrammars(cfg); err != nil {
		_ = rec.Close()
		return nil, err
	}

	handler, err := c.handlerFor(cfg.Recognizer.Result)
	if err != nil {
		_ = rec.Close()
		return nil, err
	}
	rec.SetHandler(handler)
	return c, nil
}

func (c *Controller) loadGrammars(cfg config.Config) error {
	for _, source := range config.OrderedGrammars(cfg) {
		activate := source.Name == cfg.ActiveGrammar
		var err error
		if source.File != "" {
			err = c.rec.AddGrammarFile(source.Name, source.File, activate)
		} else {
			err = c.rec.AddGrammar(source.Name, source.Text, activate)
		}
		if err != nil {
			return fmt.Errorf("load grammar %q: %w", source.Name, err)
		}
	}
	return nil
}

func (c *Controller) handlerFor(kind string) (recognizer.Handler, error) {
	switch recognizer.Kind(kind) {
	case recognizer.KindText, "":
		return recognizer.TextHandler(func(text string) {
			c.emit(publish.Event{Kind: string(recognizer.KindText), Text: text}, text)
		}), nil
	case recognizer.KindWords:
		return recognizer.WordsHandler(func(words []string) {
			c.emit(publish.Event{Kind: string(recognizer.KindWords), Words: words}, strings.Join(words, " "))
		}), nil
	case recognizer.KindConfidence:
		return recognizer.ConfidenceHandler(func(scored []recognizer.WordConfidence) {
			ev := publish.Event{Kind: string(recognizer.KindConfidence)}
			parts := make([]string, 0, len(scored))
			for _, wc := range scored {
				ev.Words = append(ev.Words, wc.Word)
				ev.Confidences = append(ev.Confidences, wc.Confidence)
				parts = append(parts, fmt.Sprintf("%s(%.2f)", wc.Word, wc.Confidence))
			}
			c.emit(ev, strings.Join(parts, " "))
		}), nil
	default:
		return nil, fmt.Errorf("%w: unknown result kind %q", recognizer.ErrConfiguration, kind)
	}
}

// emit runs on the recognizer loop goroutine.
func (c *Controller) emit(ev publish.Event, line string) {
	ev.SessionID = c.id
	ev.Utterance = c.rec.Utterances()
	ev.Timestamp = time.Now().UTC()
	c.dispatched.Add(1)

	c.logger.Info("utterance result", "utterance", ev.Utterance, "kind", ev.Kind, "result", line)
	if c.output != nil {
		fmt.Fprintln(c.output, line)
	}
	if c.publisher != nil {
		if err := c.publisher.Publish(context.Background(), ev); err != nil {
			c.publishErrors.Add(1)
			c.logger.Error("publish result failed", "utterance", ev.Utterance, "error", err.Error())
		}
	}
}

// ID returns the session UUID.
func (c *Controller) ID() string {
	return c.id
}

// Recognizer exposes the underlying recognizer.
func (c *Controller) Recognizer() *recognizer.Recognizer {
	return c.rec
}

// Run listens on src until ctx ends, a stop command arrives, the source
// ends or the loop fails. It closes the recognizer before returning.
func (c *Controller) Run(ctx context.Context, src recognizer.Source) Result {
	result := Result{SessionID: c.id, StartedAt: time.Now()}

	if err := c.rec.Start(ctx, src); err != nil {
		result.Reason = ReasonFailed
		result.Err = err
		return c.finish(result)
	}
	c.running.Store(true)
	c.logger.Info("session listening",
		"active_grammar", c.rec.ActiveGrammar(),
		"grammars", c.rec.Grammars(),
	)

	select {
	case <-ctx.Done():
	case <-c.stops:
		result.Reason = ReasonStopped
	case <-c.rec.Done():
		result.Reason = ReasonSourceEnded
	}
	if ctx.Err() != nil {
		result.Reason = ReasonInterrupted
	}

	if err := c.rec.Stop(); err != nil {
		result.Reason = ReasonFailed
		result.Err = err
	}
	c.running.Store(false)
	return c.finish(result)
}

func (c *Controller) finish(result Result) Result {
	result.State = c.rec.State()
	result.Utterances = c.rec.Utterances()
	result.Dispatched = c.dispatched.Load()
	result.PublishErrors = c.publishErrors.Load()

	if err := c.rec.Close(); err != nil {
		result.Err = errors.Join(result.Err, err)
	}

	if c.dump != nil {
		path, err := c.writeDump()
		if err != nil {
			c.logger.Error("write audio dump failed", "error", err.Error())
		} else {
			result.AudioDump = path
		}
	}

	result.FinishedAt = time.Now()
	return result
}

// Close releases the recognizer when Run was never called.
func (c *Controller) Close() error {
	return c.rec.Close()
}

// Handle serves IPC commands for the running session.
func (c *Controller) Handle(_ context.Context, req ipc.Request) ipc.Response {
	switch req.Command {
	case ipc.CommandStatus:
		return ipc.Response{
			OK:            true,
			State:         string(c.rec.State()),
			Session:       c.id,
			ActiveGrammar: c.rec.ActiveGrammar(),
			Utterances:    c.rec.Utterances(),
		}
	case ipc.CommandGrammars:
		return ipc.Response{
			OK:            true,
			State:         string(c.rec.State()),
			ActiveGrammar: c.rec.ActiveGrammar(),
			Grammars:      c.rec.Grammars(),
		}
	case ipc.CommandActivate:
		return c.activate(req.Grammar)
	case ipc.CommandStop:
		return c.requestStop()
	default:
		return ipc.Response{OK: false, State: string(c.rec.State()), Error: fmt.Sprintf("unknown command: %s", req.Command)}
	}
}

func (c *Controller) activate(name string) ipc.Response {
	if err := c.rec.Activate(name); err != nil {
		return ipc.Response{OK: false, State: string(c.rec.State()), Error: err.Error()}
	}
	message := fmt.Sprintf("grammar %s active", name)
	if c.running.Load() {
		message = fmt.Sprintf("grammar %s active from next utterance", name)
	}
	return ipc.Response{OK: true, State: string(c.rec.State()), ActiveGrammar: c.rec.ActiveGrammar(), Message: message}
}

func (c *Controller) requestStop() ipc.Response {
	state := string(c.rec.State())
	if !c.running.Load() {
		return ipc.Response{OK: false, State: state, Error: fmt.Sprintf("cannot stop from state %s", state)}
	}
	select {
	case c.stops <- struct{}{}:
		return ipc.Response{OK: true, State: state, Message: "stop requested"}
	default:
		return ipc.Response{OK: true, State: state, Message: "stop already requested"}
	}
}

func (c *Controller) writeDump() (string, error) {
	if c.dumpDir == "" {
		return "", errors.New("no dump directory configured")
	}
	if err := os.MkdirAll(c.dumpDir, 0o700); err != nil {
		return "", err
	}
	path := filepath.Join(c.dumpDir, c.id+".wav")
	if err := audio.WriteWAV(path, convert.OutputRate, c.dump.samples()); err != nil {
		return "", err
	}
	c.logger.Info("audio dump written", "path", path)
	return path, nil
}

// audioDump accumulates the converted stream fed to the engine.
type audioDump struct {
	mu  sync.Mutex
	pcm []int16
}

func (d *audioDump) append(pcm []int16) {
	d.mu.Lock()
	d.pcm = append(d.pcm, pcm...)
	d.mu.Unlock()
}

func (d *audioDump) samples() []int16 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]int16(nil), d.pcm...)
}

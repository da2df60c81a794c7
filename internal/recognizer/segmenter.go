package recognizer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rbright/murmur/internal/audio"
	"github.com/rbright/murmur/internal/convert"
	"github.com/rbright/murmur/internal/fsm"
)

func newConverter(format audio.Format) (*convert.Converter, error) {
	conv, err := convert.New(format)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}
	return conv, nil
}

// run is the segmenter loop. It exits when ctx is cancelled, the source
// ends, or a step fails.
func (r *Recognizer) run(ctx context.Context, src Source, conv *convert.Converter) {
	defer close(r.done)

	block := make([]float32, src.Format().BlockSamples())
	idle := time.NewTimer(r.cfg.PollInterval)
	defer idle.Stop()

	for {
		if ctx.Err() != nil {
			r.finish(nil)
			return
		}

		n, err := src.Read(block)
		if errors.Is(err, io.EOF) {
			r.logger.Info("audio source ended")
			r.finish(nil)
			return
		}
		if err != nil {
			r.finish(fmt.Errorf("read audio: %w", err))
			return
		}

		if n == 0 {
			idle.Reset(r.cfg.PollInterval)
			select {
			case <-ctx.Done():
			case <-idle.C:
			}
			continue
		}

		if err := r.step(ctx, conv, block[:n]); err != nil {
			r.finish(err)
			return
		}
	}
}

// step converts one block, feeds it, and closes and reopens the utterance
// on a speech to silence edge.
func (r *Recognizer) step(ctx context.Context, conv *convert.Converter, block []float32) error {
	pcm, err := conv.Convert(block)
	if err != nil {
		return fmt.Errorf("convert audio: %w", err)
	}
	if len(pcm) == 0 {
		return nil
	}
	r.metrics.converted(ctx, len(pcm))
	if r.cfg.OnAudio != nil {
		r.cfg.OnAudio(pcm)
	}

	r.mu.Lock()
	if err := r.decoder.Process(pcm); err != nil {
		r.mu.Unlock()
		return fmt.Errorf("decode audio: %w", err)
	}

	speech := r.decoder.InSpeech()
	switch {
	case speech && r.state == fsm.StateListening:
		r.transitionLocked(fsm.EventSpeech)
		r.mu.Unlock()
		return nil
	case !speech && r.state == fsm.StateSpeaking:
		// close below
	default:
		r.mu.Unlock()
		return nil
	}

	r.transitionLocked(fsm.EventSilence)
	if err := r.decoder.EndUtterance(); err != nil {
		r.mu.Unlock()
		return fmt.Errorf("end utterance: %w", err)
	}
	r.utterances++
	utterance := r.utterances

	var deliver func()
	if r.handler != nil {
		deliver = r.handler.prepare(r.decoder)
	}
	r.mu.Unlock()

	r.metrics.utterance(ctx, deliver != nil)
	r.logger.Debug("utterance closed", "utterance", utterance, "dispatched", deliver != nil)
	if deliver != nil {
		deliver()
	}

	return r.reopen(ctx)
}

// reopen applies a queued grammar switch and starts the next utterance.
func (r *Recognizer) reopen(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	switched, err := r.grammars.applyPending(r.decoder)
	if err != nil {
		r.logger.Error("deferred grammar switch failed", "error", err.Error())
	} else if switched != "" {
		r.metrics.grammarSwitch(ctx, switched)
		r.logger.Info("grammar switched", "grammar", switched)
	}

	if err := r.decoder.StartUtterance(); err != nil {
		return fmt.Errorf("%w: %w", ErrUtteranceStart, err)
	}
	r.transitionLocked(fsm.EventOpen)
	return nil
}

// finish records the loop outcome and leaves grammar activation immediate.
func (r *Recognizer) finish(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.running = false
	if r.cancel != nil {
		r.cancel()
	}

	if switched, perr := r.grammars.applyPending(r.decoder); perr != nil {
		r.logger.Error("deferred grammar switch failed", "error", perr.Error())
	} else if switched != "" {
		r.metrics.grammarSwitch(context.Background(), switched)
	}

	if err != nil {
		r.err = err
		r.transitionLocked(fsm.EventFail)
		r.logger.Error("recognizer loop failed", "error", err.Error(), "utterances", r.utterances)
		return
	}
	r.transitionLocked(fsm.EventStop)
	r.logger.Info("recognizer stopped", "utterances", r.utterances)
}

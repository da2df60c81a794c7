//go:build vosk

package vosk

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"

	vosk "github.com/alphacep/vosk-api/go"

	"github.com/rbright/murmur/internal/engine"
	"github.com/rbright/murmur/internal/grammar"
)

// maxPhrases bounds grammar expansion into the phrase list vosk accepts.
const maxPhrases = 10000

func init() {
	engine.Register("vosk", Open)
}

type wordResult struct {
	Conf float64 `json:"conf"`
	Word string  `json:"word"`
}

type finalResult struct {
	Text   string       `json:"text"`
	Result []wordResult `json:"result"`
}

type partialResult struct {
	Partial string `json:"partial"`
}

// compiledGrammar is a grammar flattened into vosk's JSON phrase list.
type compiledGrammar struct {
	phrases string
	weight  float64
}

func (*compiledGrammar) Close() error { return nil }

// Decoder adapts a vosk model and recognizer to engine.Decoder.
//
// Vosk has no explicit utterance API: an utterance spans Reset to the
// endpoint it detects or to FinalResult, and the voice-activity flag is
// derived from whether the partial hypothesis is non-empty.
type Decoder struct {
	model *vosk.VoskModel
	rec   *vosk.VoskRecognizer
	rate  float64

	grammars map[string]*compiledGrammar

	open      bool
	inSpeech  bool
	heard     bool
	closeNext bool
	endpoint  bool
	last      finalResult
}

// Open loads the model directory at cfg.AcousticModel. cfg.Dictionary is
// unused because vosk models carry their own lexicon.
func Open(cfg engine.Config) (engine.Decoder, error) {
	if cfg.AcousticModel == "" {
		return nil, errors.New("vosk: acoustic model path is required")
	}
	if _, err := os.Stat(cfg.AcousticModel); err != nil {
		return nil, fmt.Errorf("vosk: model %q: %w", cfg.AcousticModel, err)
	}

	vosk.SetLogLevel(-1)
	model, err := vosk.NewModel(cfg.AcousticModel)
	if err != nil {
		return nil, fmt.Errorf("vosk: load model: %w", err)
	}

	rate := float64(cfg.SampleRate)
	rec, err := vosk.NewRecognizer(model, rate)
	if err != nil {
		model.Free()
		return nil, fmt.Errorf("vosk: create recognizer: %w", err)
	}
	rec.SetWords(1)

	return &Decoder{
		model:    model,
		rec:      rec,
		rate:     rate,
		grammars: make(map[string]*compiledGrammar),
	}, nil
}

func (d *Decoder) StartUtterance() error {
	if d.rec == nil {
		return errors.New("vosk: decoder closed")
	}
	d.rec.Reset()
	d.open = true
	d.inSpeech = false
	d.heard = false
	d.closeNext = false
	d.endpoint = false
	return nil
}

func (d *Decoder) EndUtterance() error {
	if !d.open {
		return errors.New("vosk: no open utterance")
	}
	d.open = false
	d.inSpeech = false
	if d.endpoint {
		return nil
	}
	return d.decodeFinal(d.rec.FinalResult())
}

func (d *Decoder) Process(pcm []int16) error {
	if !d.open {
		return errors.New("vosk: process outside utterance")
	}
	if d.closeNext {
		d.inSpeech = false
		return nil
	}
	if d.endpoint {
		return nil
	}

	buf := make([]byte, len(pcm)*2)
	for i, sample := range pcm {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(sample))
	}

	if d.rec.AcceptWaveform(buf) == 1 {
		d.endpoint = true
		if err := d.decodeFinal(d.rec.Result()); err != nil {
			return err
		}
		// A word short enough to start and end inside one block still has
		// to be seen as speech once so the utterance closes with it.
		if !d.heard && d.last.Text != "" {
			d.inSpeech = true
			d.closeNext = true
			return nil
		}
		d.inSpeech = false
		return nil
	}

	var partial partialResult
	if err := json.Unmarshal([]byte(d.rec.PartialResult()), &partial); err != nil {
		return fmt.Errorf("vosk: decode partial result: %w", err)
	}
	d.inSpeech = partial.Partial != ""
	if d.inSpeech {
		d.heard = true
	}
	return nil
}

func (d *Decoder) decodeFinal(raw string) error {
	var result finalResult
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return fmt.Errorf("vosk: decode result: %w", err)
	}
	d.last = result
	return nil
}

func (d *Decoder) InSpeech() bool { return d.inSpeech }

func (d *Decoder) Hypothesis() string { return d.last.Text }

func (d *Decoder) Segments() []engine.Segment {
	out := make([]engine.Segment, 0, len(d.last.Result))
	for _, word := range d.last.Result {
		out = append(out, engine.Segment{Word: word.Word, LogProb: math.Log(word.Conf)})
	}
	return out
}

func (d *Decoder) LogToLinear(logProb float64) float64 {
	return math.Exp(logProb)
}

// CompileGrammar expands the grammar into its phrase list. Vosk applies no
// language weight in grammar mode, so weight is only recorded.
func (d *Decoder) CompileGrammar(text string, weight float64) (engine.Grammar, error) {
	parsed, err := grammar.Parse(text)
	if err != nil {
		return nil, err
	}
	phrases, err := parsed.Phrases(maxPhrases)
	if err != nil {
		return nil, err
	}
	encoded, err := json.Marshal(phrases)
	if err != nil {
		return nil, fmt.Errorf("vosk: encode phrases: %w", err)
	}
	return &compiledGrammar{phrases: string(encoded), weight: weight}, nil
}

func (d *Decoder) InstallGrammar(key string, g engine.Grammar) error {
	compiled, ok := g.(*compiledGrammar)
	if !ok {
		return fmt.Errorf("vosk: foreign grammar type %T", g)
	}
	d.grammars[key] = compiled
	return nil
}

// SetSearch swaps in a recognizer constrained to the grammar under key.
func (d *Decoder) SetSearch(key string) error {
	compiled, ok := d.grammars[key]
	if !ok {
		return fmt.Errorf("vosk: no grammar installed as %q", key)
	}

	rec, err := vosk.NewRecognizerGrm(d.model, d.rate, compiled.phrases)
	if err != nil {
		return fmt.Errorf("vosk: create grammar recognizer: %w", err)
	}
	rec.SetWords(1)

	if d.rec != nil {
		d.rec.Free()
	}
	d.rec = rec
	d.endpoint = false
	d.closeNext = false
	return nil
}

func (d *Decoder) Close() error {
	if d.rec != nil {
		d.rec.Free()
		d.rec = nil
	}
	if d.model != nil {
		d.model.Free()
		d.model = nil
	}
	return nil
}

package recognizer

import (
	"strings"

	"github.com/rbright/murmur/internal/engine"
)

// Kind names the result shape a Handler extracts.
type Kind string

const (
	KindText       Kind = "text"
	KindWords      Kind = "words"
	KindConfidence Kind = "confidence"
)

// WordConfidence is one recognized word with a linear confidence.
type WordConfidence struct {
	Word       string  `json:"word"`
	Confidence float64 `json:"confidence"`
}

// Handler receives the result of each closed utterance that produced one.
// It is one of TextHandler, WordsHandler or ConfidenceHandler.
//
// Handlers run on the recognizer loop goroutine after the utterance ended
// and before the next one opens. They may call Activate but must not call
// Stop or Close.
type Handler interface {
	Kind() Kind
	// prepare reads results from the engine while they are valid and
	// returns the call to make once the engine lock is released, or nil
	// when the utterance produced nothing.
	prepare(results engine.Decoder) func()
}

// TextHandler receives the best hypothesis.
type TextHandler func(text string)

// WordsHandler receives the recognized words in order.
type WordsHandler func(words []string)

// ConfidenceHandler receives the recognized words with confidences.
type ConfidenceHandler func(words []WordConfidence)

func (TextHandler) Kind() Kind       { return KindText }
func (WordsHandler) Kind() Kind      { return KindWords }
func (ConfidenceHandler) Kind() Kind { return KindConfidence }

func (h TextHandler) prepare(results engine.Decoder) func() {
	text := strings.TrimSpace(results.Hypothesis())
	if text == "" {
		return nil
	}
	return func() { h(text) }
}

func (h WordsHandler) prepare(results engine.Decoder) func() {
	var words []string
	for _, seg := range results.Segments() {
		if word, ok := spokenWord(seg.Word); ok {
			words = append(words, word)
		}
	}
	if len(words) == 0 {
		return nil
	}
	return func() { h(words) }
}

func (h ConfidenceHandler) prepare(results engine.Decoder) func() {
	var words []WordConfidence
	for _, seg := range results.Segments() {
		word, ok := spokenWord(seg.Word)
		if !ok {
			continue
		}
		words = append(words, WordConfidence{Word: word, Confidence: results.LogToLinear(seg.LogProb)})
	}
	if len(words) == 0 {
		return nil
	}
	return func() { h(words) }
}

// spokenWord drops silence and filler markers such as <s>, <sil>, [NOISE]
// and ++BREATH++, and strips alternate pronunciation suffixes like "(2)".
func spokenWord(word string) (string, bool) {
	word = strings.TrimSpace(word)
	if word == "" {
		return "", false
	}
	switch {
	case strings.HasPrefix(word, "<") && strings.HasSuffix(word, ">"),
		strings.HasPrefix(word, "[") && strings.HasSuffix(word, "]"),
		strings.HasPrefix(word, "++") && strings.HasSuffix(word, "++"),
		word == "(NULL)":
		return "", false
	}
	if i := strings.LastIndexByte(word, '('); i > 0 && strings.HasSuffix(word, ")") {
		if isDigits(word[i+1 : len(word)-1]) {
			word = word[:i]
		}
	}
	return word, true
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

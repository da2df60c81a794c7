package recognizer

import "errors"

var (
	// ErrConfiguration indicates the engine or converter could not be built.
	ErrConfiguration = errors.New("recognizer configuration error")
	// ErrGrammarParse indicates grammar text failed to compile.
	ErrGrammarParse = errors.New("grammar parse error")
	// ErrResourceLoad indicates grammar source could not be read.
	ErrResourceLoad = errors.New("grammar resource load error")
	// ErrGrammarNotFound indicates activation of an unknown grammar key.
	ErrGrammarNotFound = errors.New("grammar not found")
	// ErrUtteranceStart indicates the engine refused to open an utterance.
	ErrUtteranceStart = errors.New("utterance start failed")
	// ErrAlreadyStarted is returned by a second Start.
	ErrAlreadyStarted = errors.New("recognizer already started")
	// ErrClosed is returned by operations after Close.
	ErrClosed = errors.New("recognizer closed")
)

package recognizer

import (
	"fmt"
	"sort"

	"github.com/rbright/murmur/internal/engine"
)

// grammarRegistry tracks compiled grammars and which one is the engine's
// current search. Callers hold the recognizer mutex.
type grammarRegistry struct {
	models map[string]engine.Grammar
	active string

	pending    string
	hasPending bool

	// retired holds replaced models the current search may still use.
	retired []engine.Grammar
}

func newGrammarRegistry() *grammarRegistry {
	return &grammarRegistry{models: make(map[string]engine.Grammar)}
}

// add installs g under key, replacing any previous model. A replaced model
// that may still back the current search is released once the search moves
// off it. With deferred set, activation waits for applyPending.
func (r *grammarRegistry) add(dec engine.Decoder, key string, g engine.Grammar, activate bool, deferred bool) (bool, error) {
	if err := dec.InstallGrammar(key, g); err != nil {
		_ = g.Close()
		return false, fmt.Errorf("install grammar %q: %w", key, err)
	}

	previous, replaced := r.models[key]
	r.models[key] = g

	// The engine search for an active key still refers to the old model
	// until it is selected again, unless another switch is already queued.
	inSearch := replaced && key == r.active
	if inSearch && (!r.hasPending || r.pending == key) {
		activate = true
	}

	switched := false
	if activate {
		var err error
		switched, err = r.activate(dec, key, deferred)
		if err != nil {
			r.restore(dec, key, previous, replaced)
			_ = g.Close()
			return false, err
		}
	}

	if replaced && previous != g {
		if inSearch && !switched {
			r.retired = append(r.retired, previous)
		} else {
			_ = previous.Close()
		}
	}
	return switched, nil
}

// restore puts back the model key held before a failed add.
func (r *grammarRegistry) restore(dec engine.Decoder, key string, previous engine.Grammar, replaced bool) {
	if !replaced {
		delete(r.models, key)
		return
	}
	r.models[key] = previous
	_ = dec.InstallGrammar(key, previous)
}

// activate switches the search to key, or queues the switch when deferred.
// It reports whether the engine search changed now.
func (r *grammarRegistry) activate(dec engine.Decoder, key string, deferred bool) (bool, error) {
	if _, ok := r.models[key]; !ok {
		return false, fmt.Errorf("%w: %q", ErrGrammarNotFound, key)
	}

	if deferred {
		r.pending = key
		r.hasPending = true
		return false, nil
	}

	if err := dec.SetSearch(key); err != nil {
		return false, fmt.Errorf("activate grammar %q: %w", key, err)
	}
	r.active = key
	r.hasPending = false
	r.pending = ""
	r.releaseRetired()
	return true, nil
}

// applyPending performs a queued activation. It returns the key switched to,
// or "" when nothing was queued.
func (r *grammarRegistry) applyPending(dec engine.Decoder) (string, error) {
	if !r.hasPending {
		return "", nil
	}
	key := r.pending
	r.hasPending = false
	r.pending = ""

	if err := dec.SetSearch(key); err != nil {
		return "", fmt.Errorf("activate grammar %q: %w", key, err)
	}
	r.active = key
	r.releaseRetired()
	return key, nil
}

func (r *grammarRegistry) releaseRetired() {
	for _, g := range r.retired {
		_ = g.Close()
	}
	r.retired = nil
}

// effective reports the key that is, or is about to become, the current search.
func (r *grammarRegistry) effective() string {
	if r.hasPending {
		return r.pending
	}
	return r.active
}

func (r *grammarRegistry) keys() []string {
	keys := make([]string, 0, len(r.models))
	for key := range r.models {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// close releases every model. The engine must not be decoding.
func (r *grammarRegistry) close() {
	for key, g := range r.models {
		_ = g.Close()
		delete(r.models, key)
	}
	r.releaseRetired()
	r.active = ""
	r.pending = ""
	r.hasPending = false
}

// Package grammar parses JSGF-style rule grammars into finite-state models.
//
// Supported syntax: the "#JSGF V1.0;" header, "grammar NAME;", public and
// private rule definitions, alternation with optional /weights/, grouping,
// [optional] items, Kleene * and +, <rule> references including <NULL> and
// <VOID>, quoted multi-word tokens, {tags} (ignored) and C-style comments.
// Import statements are rejected.
package grammar

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

const (
	ruleNull = "NULL"
	ruleVoid = "VOID"

	// maxDepth bounds rule-reference nesting during matching and expansion.
	maxDepth = 64
)

var (
	// ErrTooManyPhrases indicates phrase expansion exceeded the caller's limit.
	ErrTooManyPhrases = errors.New("grammar expands to too many phrases")
	// ErrRecursive indicates expansion hit a self-referencing rule.
	ErrRecursive = errors.New("grammar is recursive")
)

// SyntaxError reports malformed grammar text with its source position.
type SyntaxError struct {
	Line    int
	Column  int
	Message string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("line %d column %d: %s", e.Line, e.Column, e.Message)
}

// Expansion is one node of a rule body.
type Expansion interface {
	expansion()
}

// Token matches one word, or a run of words when quoted with spaces.
type Token struct {
	Text string
}

// RuleRef refers to another rule by name.
type RuleRef struct {
	Name string
}

// Sequence matches its items in order.
type Sequence []Expansion

// Alternatives matches any one of its choices.
type Alternatives []Alternative

// Alternative is one weighted choice.
type Alternative struct {
	Weight    float64
	Expansion Expansion
}

// Optional matches its expansion zero or one time.
type Optional struct {
	Expansion Expansion
}

// Repeat matches its expansion at least Min times (Min is 0 for *, 1 for +).
type Repeat struct {
	Expansion Expansion
	Min       int
}

func (Token) expansion()        {}
func (RuleRef) expansion()      {}
func (Sequence) expansion()     {}
func (Alternatives) expansion() {}
func (Optional) expansion()     {}
func (Repeat) expansion()       {}

// Rule is one named rule definition.
type Rule struct {
	Name      string
	Public    bool
	Expansion Expansion
}

// Grammar is a parsed and validated rule grammar.
type Grammar struct {
	Name   string
	Rules  map[string]*Rule
	Public []string
}

// Accepts reports whether words form a sentence of any public rule.
// Token comparison is case-insensitive.
func (g *Grammar) Accepts(words []string) bool {
	for _, name := range g.Public {
		for _, end := range g.match(g.Rules[name].Expansion, words, 0, 0) {
			if end == len(words) {
				return true
			}
		}
	}
	return false
}

// match returns the sorted set of positions where exp can finish when started at pos.
func (g *Grammar) match(exp Expansion, words []string, pos int, depth int) []int {
	switch e := exp.(type) {
	case Token:
		end := pos
		for _, field := range strings.Fields(e.Text) {
			if end >= len(words) || !strings.EqualFold(words[end], field) {
				return nil
			}
			end++
		}
		return []int{end}
	case RuleRef:
		switch e.Name {
		case ruleNull:
			return []int{pos}
		case ruleVoid:
			return nil
		}
		if depth >= maxDepth {
			return nil
		}
		rule, ok := g.Rules[e.Name]
		if !ok {
			return nil
		}
		return g.match(rule.Expansion, words, pos, depth+1)
	case Sequence:
		current := []int{pos}
		for _, item := range e {
			next := positionSet{}
			for _, p := range current {
				next.add(g.match(item, words, p, depth)...)
			}
			if len(next) == 0 {
				return nil
			}
			current = next.sorted()
		}
		return current
	case Alternatives:
		out := positionSet{}
		for _, alt := range e {
			out.add(g.match(alt.Expansion, words, pos, depth)...)
		}
		return out.sorted()
	case Optional:
		out := positionSet{}
		out.add(pos)
		out.add(g.match(e.Expansion, words, pos, depth)...)
		return out.sorted()
	case Repeat:
		reached := positionSet{}
		if e.Min == 0 {
			reached.add(pos)
		}
		seen := positionSet{}
		frontier := g.match(e.Expansion, words, pos, depth)
		for len(frontier) > 0 {
			next := positionSet{}
			for _, p := range frontier {
				if seen.has(p) {
					continue
				}
				seen.add(p)
				reached.add(p)
				next.add(g.match(e.Expansion, words, p, depth)...)
			}
			frontier = next.sorted()
		}
		return reached.sorted()
	default:
		return nil
	}
}

// Phrases enumerates the sentences of all public rules, deduplicated in
// declaration order. Repeats expand to a single occurrence (and, for *, to
// none). It fails with ErrTooManyPhrases past limit and ErrRecursive on
// self-referencing rules.
func (g *Grammar) Phrases(limit int) ([]string, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("phrase limit must be > 0")
	}

	seen := make(map[string]struct{})
	out := make([]string, 0)
	for _, name := range g.Public {
		seqs, err := g.expand(g.Rules[name].Expansion, []string{name}, limit)
		if err != nil {
			return nil, fmt.Errorf("rule <%s>: %w", name, err)
		}
		for _, seq := range seqs {
			phrase := strings.Join(seq, " ")
			if phrase == "" {
				continue
			}
			if _, ok := seen[phrase]; ok {
				continue
			}
			seen[phrase] = struct{}{}
			out = append(out, phrase)
			if len(out) > limit {
				return nil, ErrTooManyPhrases
			}
		}
	}
	return out, nil
}

func (g *Grammar) expand(exp Expansion, stack []string, limit int) ([][]string, error) {
	switch e := exp.(type) {
	case Token:
		return [][]string{strings.Fields(e.Text)}, nil
	case RuleRef:
		switch e.Name {
		case ruleNull:
			return [][]string{{}}, nil
		case ruleVoid:
			return nil, nil
		}
		for _, active := range stack {
			if active == e.Name {
				return nil, fmt.Errorf("%w: <%s>", ErrRecursive, e.Name)
			}
		}
		rule, ok := g.Rules[e.Name]
		if !ok {
			return nil, fmt.Errorf("undefined rule <%s>", e.Name)
		}
		return g.expand(rule.Expansion, append(stack, e.Name), limit)
	case Sequence:
		product := [][]string{{}}
		for _, item := range e {
			parts, err := g.expand(item, stack, limit)
			if err != nil {
				return nil, err
			}
			next := make([][]string, 0, len(product)*len(parts))
			for _, prefix := range product {
				for _, part := range parts {
					joined := make([]string, 0, len(prefix)+len(part))
					joined = append(joined, prefix...)
					joined = append(joined, part...)
					next = append(next, joined)
				}
			}
			if len(next) > limit {
				return nil, ErrTooManyPhrases
			}
			product = next
		}
		return product, nil
	case Alternatives:
		var out [][]string
		for _, alt := range e {
			parts, err := g.expand(alt.Expansion, stack, limit)
			if err != nil {
				return nil, err
			}
			out = append(out, parts...)
			if len(out) > limit {
				return nil, ErrTooManyPhrases
			}
		}
		return out, nil
	case Optional:
		parts, err := g.expand(e.Expansion, stack, limit)
		if err != nil {
			return nil, err
		}
		return append([][]string{{}}, parts...), nil
	case Repeat:
		parts, err := g.expand(e.Expansion, stack, limit)
		if err != nil {
			return nil, err
		}
		if e.Min == 0 {
			return append([][]string{{}}, parts...), nil
		}
		return parts, nil
	default:
		return nil, fmt.Errorf("unsupported expansion %T", exp)
	}
}

// Vocabulary returns the sorted set of lower-cased words used by any rule.
func (g *Grammar) Vocabulary() []string {
	words := make(map[string]struct{})
	var walk func(Expansion)
	walk = func(exp Expansion) {
		switch e := exp.(type) {
		case Token:
			for _, field := range strings.Fields(e.Text) {
				words[strings.ToLower(field)] = struct{}{}
			}
		case Sequence:
			for _, item := range e {
				walk(item)
			}
		case Alternatives:
			for _, alt := range e {
				walk(alt.Expansion)
			}
		case Optional:
			walk(e.Expansion)
		case Repeat:
			walk(e.Expansion)
		}
	}
	for _, rule := range g.Rules {
		walk(rule.Expansion)
	}

	out := make([]string, 0, len(words))
	for word := range words {
		out = append(out, word)
	}
	sort.Strings(out)
	return out
}

type positionSet map[int]struct{}

func (s positionSet) add(positions ...int) {
	for _, p := range positions {
		s[p] = struct{}{}
	}
}

func (s positionSet) has(p int) bool {
	_, ok := s[p]
	return ok
}

func (s positionSet) sorted() []int {
	out := make([]int, 0, len(s))
	for p := range s {
		out = append(out, p)
	}
	sort.Ints(out)
	return out
}

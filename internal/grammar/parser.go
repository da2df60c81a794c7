package grammar

import (
	"fmt"
	"strings"
)

// Parse reads grammar text and validates rule references.
func Parse(text string) (*Grammar, error) {
	tokens, err := lex(text)
	if err != nil {
		return nil, err
	}

	p := &parser{tokens: tokens}
	g, err := p.parseGrammar()
	if err != nil {
		return nil, err
	}
	if err := p.validate(g); err != nil {
		return nil, err
	}
	return g, nil
}

type parser struct {
	tokens []token
	pos    int
	refs   []token
}

func (p *parser) peek() token {
	return p.tokens[p.pos]
}

func (p *parser) next() token {
	tok := p.tokens[p.pos]
	if tok.kind != tokEOF {
		p.pos++
	}
	return tok
}

func (p *parser) errorf(tok token, format string, args ...any) error {
	return &SyntaxError{Line: tok.line, Column: tok.column, Message: fmt.Sprintf(format, args...)}
}

func (p *parser) expect(kind tokenKind) (token, error) {
	tok := p.next()
	if tok.kind != kind {
		return tok, p.errorf(tok, "expected %s, found %s", kind, describe(tok))
	}
	return tok, nil
}

func describe(tok token) string {
	if tok.kind == tokWord || tok.kind == tokRuleRef {
		return fmt.Sprintf("%s %q", tok.kind, tok.text)
	}
	return tok.kind.String()
}

func (p *parser) parseGrammar() (*Grammar, error) {
	if tok := p.peek(); tok.kind == tokHeader {
		p.next()
		if !strings.HasPrefix(tok.text, "#JSGF") {
			return nil, p.errorf(tok, "header must start with #JSGF")
		}
	}

	g := &Grammar{Rules: make(map[string]*Rule)}

	tok := p.next()
	if tok.kind != tokWord || tok.quoted || tok.text != "grammar" {
		return nil, p.errorf(tok, "expected grammar declaration, found %s", describe(tok))
	}
	name, err := p.expect(tokWord)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(tokSemicolon); err != nil {
		return nil, err
	}
	g.Name = name.text

	for p.peek().kind != tokEOF {
		if err := p.parseStatement(g); err != nil {
			return nil, err
		}
	}
	return g, nil
}

func (p *parser) parseStatement(g *Grammar) error {
	tok := p.next()
	public := false
	if tok.kind == tokWord && !tok.quoted {
		switch tok.text {
		case "import":
			return p.errorf(tok, "import statements are not supported")
		case "public":
			public = true
			tok = p.next()
		}
	}
	if tok.kind != tokRuleRef {
		return p.errorf(tok, "expected rule definition, found %s", describe(tok))
	}
	if tok.text == ruleNull || tok.text == ruleVoid {
		return p.errorf(tok, "cannot redefine special rule <%s>", tok.text)
	}
	if _, exists := g.Rules[tok.text]; exists {
		return p.errorf(tok, "rule <%s> defined twice", tok.text)
	}

	if _, err := p.expect(tokEquals); err != nil {
		return err
	}
	body, err := p.parseAlternatives()
	if err != nil {
		return err
	}
	if _, err := p.expect(tokSemicolon); err != nil {
		return err
	}

	g.Rules[tok.text] = &Rule{Name: tok.text, Public: public, Expansion: body}
	if public {
		g.Public = append(g.Public, tok.text)
	}
	return nil
}

func (p *parser) parseAlternatives() (Expansion, error) {
	var alts Alternatives
	for {
		start := p.peek()
		weight := 1.0
		if start.kind == tokWeight {
			p.next()
			weight = start.weight
		}
		seq, err := p.parseSequence()
		if err != nil {
			return nil, err
		}
		alts = append(alts, Alternative{Weight: weight, Expansion: seq})

		if p.peek().kind != tokPipe {
			break
		}
		p.next()
	}

	if len(alts) == 1 {
		return alts[0].Expansion, nil
	}
	return alts, nil
}

func (p *parser) parseSequence() (Expansion, error) {
	var items Sequence
	for {
		switch p.peek().kind {
		case tokWord, tokRuleRef, tokLParen, tokLBracket:
			item, err := p.parseItem()
			if err != nil {
				return nil, err
			}
			items = append(items, item)
			continue
		}
		break
	}

	switch len(items) {
	case 0:
		tok := p.peek()
		return nil, p.errorf(tok, "expected token, rule reference or group, found %s", describe(tok))
	case 1:
		return items[0], nil
	default:
		return items, nil
	}
}

func (p *parser) parseItem() (Expansion, error) {
	tok := p.next()

	var exp Expansion
	switch tok.kind {
	case tokWord:
		exp = Token{Text: tok.text}
	case tokRuleRef:
		p.refs = append(p.refs, tok)
		exp = RuleRef{Name: tok.text}
	case tokLParen:
		inner, err := p.parseAlternatives()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tokRParen); err != nil {
			return nil, err
		}
		exp = inner
	case tokLBracket:
		inner, err := p.parseAlternatives()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tokRBracket); err != nil {
			return nil, err
		}
		exp = Optional{Expansion: inner}
	default:
		return nil, p.errorf(tok, "unexpected %s", describe(tok))
	}

	for {
		switch p.peek().kind {
		case tokStar:
			p.next()
			exp = Repeat{Expansion: exp, Min: 0}
		case tokPlus:
			p.next()
			exp = Repeat{Expansion: exp, Min: 1}
		case tokTag:
			p.next()
		default:
			return exp, nil
		}
	}
}

// validate checks that every reference resolves and at least one rule is public.
func (p *parser) validate(g *Grammar) error {
	for _, ref := range p.refs {
		if ref.text == ruleNull || ref.text == ruleVoid {
			continue
		}
		if _, ok := g.Rules[ref.text]; !ok {
			return p.errorf(ref, "undefined rule <%s>", ref.text)
		}
	}
	if len(g.Public) == 0 {
		return p.errorf(p.peek(), "grammar %q has no public rules", g.Name)
	}
	return nil
}

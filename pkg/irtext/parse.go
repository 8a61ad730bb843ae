package irtext

import (
	"fmt"
	"strconv"
)

// The parser builds a name-based syntax tree first; resolution to numbered
// IR entities happens in a second step so branches may name blocks that
// appear later in the text.

type astModule struct {
	decls []astDecl
	funcs []astFunc
}

type astDecl struct {
	name    string
	params  []astSigParam
	results []astSigParam
	conv    string
}

type astFunc struct {
	astDecl
	blocks []astBlock
}

type astSigParam struct {
	ty     string
	signed bool
}

type astBlock struct {
	name   string
	params []astBlockParam
	insts  []astInst
	line   int
}

type astBlockParam struct {
	name string
	ty   string
}

type astTarget struct {
	block string
	args  []string
}

type astInst struct {
	results []string
	op      string
	suffix  string // type suffix, as in iconst.i64
	cond    string // icmp condition
	args    []string
	imm     int64
	off     int64
	callee  string
	targets []astTarget
	trap    string
	line    int
}

// Parser parses IR text into an astModule.
type Parser struct {
	s         *Scanner
	curToken  Token
	peekToken Token
	errors    []string

	// DefaultConv fills in the calling convention for functions that omit
	// one; empty means the convention is required.
	DefaultConv string
}

// NewParser creates a Parser over the given source text.
func NewParser(src string) *Parser {
	p := &Parser{s: NewScanner(src)}
	p.nextToken()
	p.nextToken()
	return p
}

func (p *Parser) nextToken() {
	p.curToken = p.peekToken
	p.peekToken = p.s.Next()
}

// Errors returns the accumulated parse errors.
func (p *Parser) Errors() []string { return p.errors }

func (p *Parser) addError(msg string) {
	p.errors = append(p.errors, fmt.Sprintf("line %d, col %d: %s",
		p.curToken.Line, p.curToken.Column, msg))
}

func (p *Parser) curTokenIs(t TokenType) bool  { return p.curToken.Type == t }
func (p *Parser) peekTokenIs(t TokenType) bool { return p.peekToken.Type == t }

func (p *Parser) expect(t TokenType) bool {
	if p.curTokenIs(t) {
		p.nextToken()
		return true
	}
	p.addError(fmt.Sprintf("expected %s, got %s", t, p.curToken.Type))
	return false
}

func (p *Parser) parseModule() *astModule {
	m := &astModule{}
	for !p.curTokenIs(TokenEOF) {
		switch {
		case p.curTokenIs(TokenIdent) && p.curToken.Literal == "declare":
			p.nextToken()
			if d, ok := p.parseHeader(); ok {
				m.decls = append(m.decls, d)
			}
		case p.curTokenIs(TokenIdent) && p.curToken.Literal == "function":
			p.nextToken()
			if f, ok := p.parseFunction(); ok {
				m.funcs = append(m.funcs, f)
			}
		default:
			p.addError(fmt.Sprintf("expected 'function' or 'declare', got %q", p.curToken.Literal))
			p.nextToken()
		}
		if len(p.errors) > 0 {
			return m
		}
	}
	return m
}

// parseHeader parses %name(params) -> results conv.
func (p *Parser) parseHeader() (astDecl, bool) {
	var d astDecl
	if !p.curTokenIs(TokenSym) {
		p.addError(fmt.Sprintf("expected function name, got %s", p.curToken.Type))
		return d, false
	}
	d.name = p.curToken.Literal
	p.nextToken()

	if !p.expect(TokenLParen) {
		return d, false
	}
	for !p.curTokenIs(TokenRParen) {
		sp, ok := p.parseSigParam()
		if !ok {
			return d, false
		}
		d.params = append(d.params, sp)
		if p.curTokenIs(TokenComma) {
			p.nextToken()
		}
	}
	p.nextToken() // consume ')'

	if p.curTokenIs(TokenArrow) {
		p.nextToken()
		for {
			sp, ok := p.parseSigParam()
			if !ok {
				return d, false
			}
			d.results = append(d.results, sp)
			if !p.curTokenIs(TokenComma) {
				break
			}
			p.nextToken()
		}
	}

	if p.curTokenIs(TokenIdent) && p.curToken.Literal != "function" && p.curToken.Literal != "declare" {
		d.conv = p.curToken.Literal
		p.nextToken()
	} else {
		d.conv = p.DefaultConv
	}
	return d, true
}

// parseSigParam parses a type with an optional sext/uext annotation.
func (p *Parser) parseSigParam() (astSigParam, bool) {
	var sp astSigParam
	if !p.curTokenIs(TokenIdent) {
		p.addError(fmt.Sprintf("expected type, got %s", p.curToken.Type))
		return sp, false
	}
	sp.ty = p.curToken.Literal
	p.nextToken()
	if p.curTokenIs(TokenIdent) {
		switch p.curToken.Literal {
		case "sext":
			sp.signed = true
			p.nextToken()
		case "uext":
			p.nextToken()
		}
	}
	return sp, true
}

func (p *Parser) parseFunction() (astFunc, bool) {
	var f astFunc
	d, ok := p.parseHeader()
	if !ok {
		return f, false
	}
	f.astDecl = d

	if !p.expect(TokenLBrace) {
		return f, false
	}
	for !p.curTokenIs(TokenRBrace) && !p.curTokenIs(TokenEOF) {
		b, ok := p.parseBlock()
		if !ok {
			return f, false
		}
		f.blocks = append(f.blocks, b)
	}
	if !p.expect(TokenRBrace) {
		return f, false
	}
	if len(f.blocks) == 0 {
		p.addError(fmt.Sprintf("function %%%s has no blocks", f.name))
		return f, false
	}
	return f, true
}

func (p *Parser) parseBlock() (astBlock, bool) {
	var b astBlock
	b.line = p.curToken.Line
	if !p.curTokenIs(TokenIdent) {
		p.addError(fmt.Sprintf("expected block label, got %s", p.curToken.Type))
		return b, false
	}
	b.name = p.curToken.Literal
	p.nextToken()

	if p.curTokenIs(TokenLParen) {
		p.nextToken()
		for !p.curTokenIs(TokenRParen) {
			var bp astBlockParam
			if !p.curTokenIs(TokenIdent) {
				p.addError(fmt.Sprintf("expected parameter name, got %s", p.curToken.Type))
				return b, false
			}
			bp.name = p.curToken.Literal
			p.nextToken()
			if !p.expect(TokenColon) {
				return b, false
			}
			if !p.curTokenIs(TokenIdent) {
				p.addError(fmt.Sprintf("expected type, got %s", p.curToken.Type))
				return b, false
			}
			bp.ty = p.curToken.Literal
			p.nextToken()
			b.params = append(b.params, bp)
			if p.curTokenIs(TokenComma) {
				p.nextToken()
			}
		}
		p.nextToken() // consume ')'
	}
	if !p.expect(TokenColon) {
		return b, false
	}

	for p.curTokenIs(TokenIdent) && !p.startsBlock() {
		inst, ok := p.parseInst()
		if !ok {
			return b, false
		}
		b.insts = append(b.insts, inst)
	}
	return b, true
}

// startsBlock reports whether the current token opens the next block header:
// an identifier followed by '(' or ':'.
func (p *Parser) startsBlock() bool {
	if !p.curTokenIs(TokenIdent) {
		return false
	}
	return p.peekTokenIs(TokenColon) || p.peekTokenIs(TokenLParen)
}

func (p *Parser) parseInst() (astInst, bool) {
	var inst astInst
	inst.line = p.curToken.Line

	// Result list: v1 = ... or v1, v2 = ...
	if p.peekTokenIs(TokenAssign) || p.peekTokenIs(TokenComma) {
		for {
			if !p.curTokenIs(TokenIdent) {
				p.addError(fmt.Sprintf("expected result name, got %s", p.curToken.Type))
				return inst, false
			}
			inst.results = append(inst.results, p.curToken.Literal)
			p.nextToken()
			if p.curTokenIs(TokenComma) {
				p.nextToken()
				continue
			}
			break
		}
		if !p.expect(TokenAssign) {
			return inst, false
		}
	}

	if !p.curTokenIs(TokenIdent) {
		p.addError(fmt.Sprintf("expected opcode, got %s", p.curToken.Type))
		return inst, false
	}
	inst.op = p.curToken.Literal
	p.nextToken()

	if p.curTokenIs(TokenDot) {
		p.nextToken()
		if !p.curTokenIs(TokenIdent) {
			p.addError(fmt.Sprintf("expected type suffix, got %s", p.curToken.Type))
			return inst, false
		}
		inst.suffix = p.curToken.Literal
		p.nextToken()
	}

	switch inst.op {
	case "iconst":
		return p.parseImm(inst)
	case "icmp":
		return p.parseIcmp(inst)
	case "call":
		return p.parseCall(inst)
	case "jump":
		return p.parseJump(inst)
	case "brif":
		return p.parseBrif(inst)
	case "trap":
		return p.parseTrap(inst)
	case "load", "store":
		return p.parseMem(inst)
	default:
		return p.parseValueArgs(inst)
	}
}

func (p *Parser) parseImm(inst astInst) (astInst, bool) {
	if !p.curTokenIs(TokenInt) {
		p.addError(fmt.Sprintf("expected integer, got %s", p.curToken.Type))
		return inst, false
	}
	v, err := parseInt(p.curToken.Literal)
	if err != nil {
		p.addError(fmt.Sprintf("bad integer %q", p.curToken.Literal))
		return inst, false
	}
	inst.imm = v
	p.nextToken()
	return inst, true
}

func (p *Parser) parseIcmp(inst astInst) (astInst, bool) {
	if !p.curTokenIs(TokenIdent) {
		p.addError(fmt.Sprintf("expected condition, got %s", p.curToken.Type))
		return inst, false
	}
	inst.cond = p.curToken.Literal
	p.nextToken()
	return p.parseValueArgs(inst)
}

func (p *Parser) parseCall(inst astInst) (astInst, bool) {
	if !p.curTokenIs(TokenSym) {
		p.addError(fmt.Sprintf("expected callee name, got %s", p.curToken.Type))
		return inst, false
	}
	inst.callee = p.curToken.Literal
	p.nextToken()
	if !p.expect(TokenLParen) {
		return inst, false
	}
	for !p.curTokenIs(TokenRParen) {
		if !p.curTokenIs(TokenIdent) {
			p.addError(fmt.Sprintf("expected value, got %s", p.curToken.Type))
			return inst, false
		}
		inst.args = append(inst.args, p.curToken.Literal)
		p.nextToken()
		if p.curTokenIs(TokenComma) {
			p.nextToken()
		}
	}
	p.nextToken() // consume ')'
	return inst, true
}

func (p *Parser) parseJump(inst astInst) (astInst, bool) {
	t, ok := p.parseTarget()
	if !ok {
		return inst, false
	}
	inst.targets = append(inst.targets, t)
	return inst, true
}

func (p *Parser) parseBrif(inst astInst) (astInst, bool) {
	if !p.curTokenIs(TokenIdent) {
		p.addError(fmt.Sprintf("expected condition value, got %s", p.curToken.Type))
		return inst, false
	}
	inst.args = append(inst.args, p.curToken.Literal)
	p.nextToken()
	for range [2]int{} {
		if !p.expect(TokenComma) {
			return inst, false
		}
		t, ok := p.parseTarget()
		if !ok {
			return inst, false
		}
		inst.targets = append(inst.targets, t)
	}
	return inst, true
}

func (p *Parser) parseTarget() (astTarget, bool) {
	var t astTarget
	if !p.curTokenIs(TokenIdent) {
		p.addError(fmt.Sprintf("expected block label, got %s", p.curToken.Type))
		return t, false
	}
	t.block = p.curToken.Literal
	p.nextToken()
	if p.curTokenIs(TokenLParen) {
		p.nextToken()
		for !p.curTokenIs(TokenRParen) {
			if !p.curTokenIs(TokenIdent) {
				p.addError(fmt.Sprintf("expected value, got %s", p.curToken.Type))
				return t, false
			}
			t.args = append(t.args, p.curToken.Literal)
			p.nextToken()
			if p.curTokenIs(TokenComma) {
				p.nextToken()
			}
		}
		p.nextToken() // consume ')'
	}
	return t, true
}

func (p *Parser) parseTrap(inst astInst) (astInst, bool) {
	if !p.curTokenIs(TokenIdent) {
		p.addError(fmt.Sprintf("expected trap code, got %s", p.curToken.Type))
		return inst, false
	}
	inst.trap = p.curToken.Literal
	p.nextToken()
	return inst, true
}

// parseMem parses load/store operands with an optional +offset on the
// address value.
func (p *Parser) parseMem(inst astInst) (astInst, bool) {
	inst, ok := p.parseValueArgs(inst)
	if !ok {
		return inst, false
	}
	if p.curTokenIs(TokenPlus) {
		p.nextToken()
		if !p.curTokenIs(TokenInt) {
			p.addError(fmt.Sprintf("expected offset, got %s", p.curToken.Type))
			return inst, false
		}
		v, err := parseInt(p.curToken.Literal)
		if err != nil {
			p.addError(fmt.Sprintf("bad offset %q", p.curToken.Literal))
			return inst, false
		}
		inst.off = v
		p.nextToken()
	}
	return inst, true
}

func (p *Parser) parseValueArgs(inst astInst) (astInst, bool) {
	for p.curTokenIs(TokenIdent) && !p.startsBlock() && !isInstEnd(p.curToken.Literal) &&
		!p.peekTokenIs(TokenAssign) {
		inst.args = append(inst.args, p.curToken.Literal)
		p.nextToken()
		if !p.curTokenIs(TokenComma) {
			break
		}
		p.nextToken()
	}
	return inst, true
}

// isInstEnd reports identifiers that can only begin the next statement, so a
// no-operand instruction like "return" does not swallow them.
func isInstEnd(lit string) bool {
	return lit == "function" || lit == "declare"
}

func parseInt(s string) (int64, error) {
	neg := false
	if len(s) > 0 && s[0] == '-' {
		neg = true
		s = s[1:]
	}
	// Parse as unsigned so full-width bit patterns like 0xffffffffffffffff
	// round-trip; the sign flag then negates in two's complement.
	u, err := strconv.ParseUint(s, 0, 64)
	if err != nil {
		return 0, err
	}
	v := int64(u)
	if neg {
		v = -v
	}
	return v, nil
}

package parser

import (
	"strconv"
	"strings"

	"github.com/inputlayer/inputlayer/value"
)

// Parser turns pre-lexed tokens into a Statement list (spec.md §4.2).
type Parser struct {
	tokens []Token
	pos    int
	src    string
}

// Parse lexes and parses src into zero or more statements.
func Parse(src string) ([]Statement, error) {
	lex := NewLexer(src)
	var tokens []Token
	for {
		tok, err := lex.Next()
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, tok)
		if tok.Kind == TokEOF {
			break
		}
	}
	p := &Parser{tokens: tokens, src: src}
	// offset maps a token's 1-based line/column (columns count bytes) back
	// to its byte position in src.
	offset := func(t Token) int {
		off := 0
		for line := 1; line < t.Line; line++ {
			off += strings.IndexByte(src[off:], '\n') + 1
		}
		return off + t.Column - 1
	}
	var stmts []Statement
	for p.peek().Kind != TokEOF {
		start := p.peek()
		stmt, err := p.parseStatement()
		if err != nil {
			return nil, err
		}
		if rs, ok := stmt.(*RuleStmt); ok {
			end := p.tokens[p.pos-1] // the clause's closing '.'
			rs.SourceText = src[offset(start) : offset(end)+1]
		}
		stmts = append(stmts, stmt)
	}
	return stmts, nil
}

func (p *Parser) peek() Token      { return p.tokens[p.pos] }
func (p *Parser) peekAt(n int) Token {
	if p.pos+n >= len(p.tokens) {
		return p.tokens[len(p.tokens)-1]
	}
	return p.tokens[p.pos+n]
}
func (p *Parser) advance() Token {
	t := p.tokens[p.pos]
	if p.pos < len(p.tokens)-1 {
		p.pos++
	}
	return t
}

func (p *Parser) expect(kind TokenKind, what string) (Token, error) {
	t := p.peek()
	if t.Kind != kind {
		return Token{}, NewParseError(t.Line, t.Column, "expected %s, found %q", what, t.Text)
	}
	return p.advance(), nil
}

func (p *Parser) parseStatement() (Statement, error) {
	tok := p.peek()
	switch tok.Kind {
	case TokDot:
		return p.parseMeta()
	case TokQuestion:
		return p.parseQuery()
	case TokPlus:
		return p.parsePlusStatement()
	case TokMinus:
		return p.parseDelete()
	case TokIdent:
		return p.parseSessionRule()
	default:
		return nil, NewParseError(tok.Line, tok.Column, "unexpected token %q at start of statement", tok.Text)
	}
}

func (p *Parser) parseMeta() (Statement, error) {
	dot := p.advance()
	cmd, err := p.expect(TokIdent, "meta command")
	if err != nil {
		return nil, err
	}
	var args []string
	for {
		t := p.peek()
		if t.Kind == TokDot || t.Kind == TokEOF || t.Kind == TokPlus || t.Kind == TokMinus || t.Kind == TokQuestion {
			break
		}
		args = append(args, t.Text)
		p.advance()
	}
	if p.peek().Kind == TokDot {
		p.advance()
	}
	return &MetaStmt{Command: cmd.Text, Args: args, Line: dot.Line, Column: dot.Column}, nil
}

func (p *Parser) parseQuery() (Statement, error) {
	q := p.advance() // '?'
	if _, err := p.expect(TokMinus, "'-' after '?'"); err != nil {
		return nil, err
	}
	goal, err := p.parseAtom()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(TokDot, "'.'"); err != nil {
		return nil, err
	}
	return &QueryStmt{Goal: goal, Line: q.Line, Column: q.Column}, nil
}

func (p *Parser) parsePlusStatement() (Statement, error) {
	plus := p.advance()
	name, err := p.expect(TokIdent, "relation name")
	if err != nil {
		return nil, err
	}

	if p.peek().Kind == TokLBracket {
		rows, err := p.parseBulkRows()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(TokDot, "'.'"); err != nil {
			return nil, err
		}
		return &InsertStmt{Relation: name.Text, Rows: rows, Line: plus.Line, Column: plus.Column}, nil
	}

	if p.peek().Kind != TokLParen {
		return nil, NewParseError(p.peek().Line, p.peek().Column, "expected '(' or '[' after relation name %q", name.Text)
	}

	if p.isSchemaAhead() {
		cols, err := p.parseSchemaColumns()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(TokDot, "'.'"); err != nil {
			return nil, err
		}
		return &SchemaStmt{Relation: name.Text, Columns: cols, Line: plus.Line, Column: plus.Column}, nil
	}

	head := &Atom{Relation: name.Text, Line: name.Line, Column: name.Column}
	args, err := p.parseTermArgs()
	if err != nil {
		return nil, err
	}
	head.Args = args

	switch p.peek().Kind {
	case TokDot:
		p.advance()
		return &InsertStmt{Relation: name.Text, Rows: [][]Term{args}, Line: plus.Line, Column: plus.Column}, nil
	case TokArrow:
		p.advance()
		body, err := p.parseBody()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(TokDot, "'.'"); err != nil {
			return nil, err
		}
		rule := &Rule{Head: head, Body: body, Line: plus.Line, Column: plus.Column}
		return &RuleStmt{Rule: rule, Persistent: true}, nil
	default:
		t := p.peek()
		return nil, NewParseError(t.Line, t.Column, "expected '.' or ':-' after %q(...)", name.Text)
	}
}

// isSchemaAhead peeks past the opening '(' to check for `ident : ident`,
// the column-declaration shape that disambiguates a schema statement from
// an insert row or rule head.
func (p *Parser) isSchemaAhead() bool {
	return p.peekAt(1).Kind == TokIdent && p.peekAt(2).Kind == TokColon
}

func (p *Parser) parseSchemaColumns() ([]ColumnDecl, error) {
	if _, err := p.expect(TokLParen, "'('"); err != nil {
		return nil, err
	}
	var cols []ColumnDecl
	for {
		name, err := p.expect(TokIdent, "column name")
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(TokColon, "':'"); err != nil {
			return nil, err
		}
		typ, err := p.expect(TokIdent, "column type")
		if err != nil {
			return nil, err
		}
		cols = append(cols, ColumnDecl{Name: name.Text, Type: typ.Text})
		if p.peek().Kind == TokComma {
			p.advance()
			continue
		}
		break
	}
	if _, err := p.expect(TokRParen, "')'"); err != nil {
		return nil, err
	}
	return cols, nil
}

func (p *Parser) parseBulkRows() ([][]Term, error) {
	if _, err := p.expect(TokLBracket, "'['"); err != nil {
		return nil, err
	}
	var rows [][]Term
	for {
		row, err := p.parseTermArgs()
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
		if p.peek().Kind == TokComma {
			p.advance()
			continue
		}
		break
	}
	if _, err := p.expect(TokRBracket, "']'"); err != nil {
		return nil, err
	}
	return rows, nil
}

func (p *Parser) parseDelete() (Statement, error) {
	minus := p.advance()
	name, err := p.expect(TokIdent, "relation name")
	if err != nil {
		return nil, err
	}

	if p.peek().Kind == TokLBracket {
		rows, err := p.parseBulkRows()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(TokDot, "'.'"); err != nil {
			return nil, err
		}
		return &DeleteStmt{Relation: name.Text, Rows: rows, Line: minus.Line, Column: minus.Column}, nil
	}

	head := &Atom{Relation: name.Text, Line: name.Line, Column: name.Column}
	args, err := p.parseTermArgs()
	if err != nil {
		return nil, err
	}
	head.Args = args

	switch p.peek().Kind {
	case TokDot:
		p.advance()
		return &DeleteStmt{Relation: name.Text, Rows: [][]Term{args}, Line: minus.Line, Column: minus.Column}, nil
	case TokArrow:
		p.advance()
		body, err := p.parseBody()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(TokDot, "'.'"); err != nil {
			return nil, err
		}
		rule := &Rule{Head: head, Body: body, Line: minus.Line, Column: minus.Column}
		return &DeleteStmt{Relation: name.Text, Rule: rule, Line: minus.Line, Column: minus.Column}, nil
	default:
		t := p.peek()
		return nil, NewParseError(t.Line, t.Column, "expected '.' or ':-' after %q(...)", name.Text)
	}
}

func (p *Parser) parseSessionRule() (Statement, error) {
	name, err := p.expect(TokIdent, "relation name")
	if err != nil {
		return nil, err
	}
	head := &Atom{Relation: name.Text, Line: name.Line, Column: name.Column}
	args, err := p.parseTermArgs()
	if err != nil {
		return nil, err
	}
	head.Args = args
	if _, err := p.expect(TokArrow, "':-'"); err != nil {
		return nil, err
	}
	body, err := p.parseBody()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(TokDot, "'.'"); err != nil {
		return nil, err
	}
	rule := &Rule{Head: head, Body: body, Line: name.Line, Column: name.Column}
	return &RuleStmt{Rule: rule, Persistent: false}, nil
}

func (p *Parser) parseTermArgs() ([]Term, error) {
	if _, err := p.expect(TokLParen, "'('"); err != nil {
		return nil, err
	}
	if p.peek().Kind == TokRParen {
		p.advance()
		return nil, nil
	}
	var args []Term
	for {
		t, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		args = append(args, t)
		if p.peek().Kind == TokComma {
			p.advance()
			continue
		}
		break
	}
	if _, err := p.expect(TokRParen, "')'"); err != nil {
		return nil, err
	}
	return args, nil
}

func (p *Parser) parseTerm() (Term, error) {
	t := p.peek()
	switch t.Kind {
	case TokVariable:
		p.advance()
		return Term{IsVar: true, VarName: t.Text}, nil
	case TokAnonymous:
		p.advance()
		return Term{IsAnonymous: true}, nil
	case TokInt:
		p.advance()
		n, err := strconv.ParseInt(t.Text, 10, 64)
		if err != nil {
			return Term{}, NewParseError(t.Line, t.Column, "invalid integer literal %q", t.Text)
		}
		return Term{Const: value.Int64(n)}, nil
	case TokFloat:
		p.advance()
		f, err := strconv.ParseFloat(t.Text, 64)
		if err != nil {
			return Term{}, NewParseError(t.Line, t.Column, "invalid float literal %q", t.Text)
		}
		return Term{Const: value.Float64(f)}, nil
	case TokString:
		p.advance()
		return Term{Const: value.String(t.Text)}, nil
	case TokMinus:
		p.advance()
		inner, err := p.parseTerm()
		if err != nil {
			return Term{}, err
		}
		switch inner.Const.Kind() {
		case value.KindInt64:
			return Term{Const: value.Int64(-inner.Const.AsInt64())}, nil
		case value.KindFloat64:
			return Term{Const: value.Float64(-inner.Const.AsFloat64())}, nil
		default:
			return Term{}, NewParseError(t.Line, t.Column, "unary '-' requires a numeric literal")
		}
	case TokLBracket:
		return p.parseVectorLiteral()
	case TokIdent:
		p.advance()
		switch t.Text {
		case "true":
			return Term{Const: value.Bool(true)}, nil
		case "false":
			return Term{Const: value.Bool(false)}, nil
		case "null":
			return Term{Const: value.Null()}, nil
		default:
			return Term{Const: value.String(t.Text)}, nil
		}
	default:
		return Term{}, NewParseError(t.Line, t.Column, "expected a term, found %q", t.Text)
	}
}

func (p *Parser) parseVectorLiteral() (Term, error) {
	open := p.advance() // '['
	var floats []float64
	allInt := true
	if p.peek().Kind != TokRBracket {
		for {
			neg := false
			if p.peek().Kind == TokMinus {
				p.advance()
				neg = true
			}
			t := p.peek()
			switch t.Kind {
			case TokInt:
				p.advance()
				n, err := strconv.ParseInt(t.Text, 10, 64)
				if err != nil {
					return Term{}, NewParseError(t.Line, t.Column, "invalid vector element %q", t.Text)
				}
				v := float64(n)
				if neg {
					v = -v
				}
				floats = append(floats, v)
			case TokFloat:
				p.advance()
				allInt = false
				f, err := strconv.ParseFloat(t.Text, 64)
				if err != nil {
					return Term{}, NewParseError(t.Line, t.Column, "invalid vector element %q", t.Text)
				}
				if neg {
					f = -f
				}
				floats = append(floats, f)
			default:
				return Term{}, NewParseError(t.Line, t.Column, "expected numeric vector element, found %q", t.Text)
			}
			if p.peek().Kind == TokComma {
				p.advance()
				continue
			}
			break
		}
	}
	if _, err := p.expect(TokRBracket, "']'"); err != nil {
		return Term{}, err
	}
	if allInt {
		vi := make([]int8, len(floats))
		for i, f := range floats {
			vi[i] = int8(f)
		}
		return Term{Const: value.VectorI8(vi)}, nil
	}
	vf := make([]float32, len(floats))
	for i, f := range floats {
		vf[i] = float32(f)
	}
	_ = open
	return Term{Const: value.VectorF32(vf)}, nil
}

func (p *Parser) parseAtom() (*Atom, error) {
	negated := false
	start := p.peek()
	if p.peek().Kind == TokBang {
		p.advance()
		negated = true
	}
	name, err := p.expect(TokIdent, "relation name")
	if err != nil {
		return nil, err
	}
	args, err := p.parseTermArgs()
	if err != nil {
		return nil, err
	}
	return &Atom{Relation: name.Text, Args: args, Negated: negated, Line: start.Line, Column: start.Column}, nil
}

func (p *Parser) parseBody() ([]BodyAtom, error) {
	var body []BodyAtom
	for {
		ba, err := p.parseBodyAtom()
		if err != nil {
			return nil, err
		}
		body = append(body, ba)
		if p.peek().Kind == TokComma {
			p.advance()
			continue
		}
		break
	}
	return body, nil
}

// parseBodyAtom parses one body element: a (possibly negated) relation atom,
// a comparison, or an arithmetic/aggregate binding (spec.md §3, §4.2).
func (p *Parser) parseBodyAtom() (BodyAtom, error) {
	if p.peek().Kind == TokBang {
		atom, err := p.parseAtom()
		if err != nil {
			return BodyAtom{}, err
		}
		return BodyAtom{Atom: atom}, nil
	}

	// Disambiguate `relation(args)` atoms from `Var = expr` bindings and
	// bare comparisons by lookahead: an atom starts with a lowercase ident
	// immediately followed by '('.
	if p.peek().Kind == TokIdent && p.peekAt(1).Kind == TokLParen {
		atom, err := p.parseAtom()
		if err != nil {
			return BodyAtom{}, err
		}
		return BodyAtom{Atom: atom}, nil
	}

	// Var = agg<arg> or Var = expr, else a bare comparison.
	if p.peek().Kind == TokVariable && p.peekAt(1).Kind == TokEq {
		varName := p.advance().Text
		line, col := p.peek().Line, p.peek().Column
		p.advance() // '='
		expr, err := p.parseExpr()
		if err != nil {
			return BodyAtom{}, err
		}
		return BodyAtom{Binding: &Binding{Var: varName, Expr: expr, Line: line, Column: col}}, nil
	}

	return p.parseComparison()
}

func (p *Parser) parseComparison() (BodyAtom, error) {
	left, err := p.parseExpr()
	if err != nil {
		return BodyAtom{}, err
	}
	t := p.peek()
	var op Comparator
	switch t.Kind {
	case TokEq:
		op = CmpEq
	case TokNeq:
		op = CmpNeq
	case TokLt:
		op = CmpLt
	case TokLte:
		op = CmpLte
	case TokGt:
		op = CmpGt
	case TokGte:
		op = CmpGte
	default:
		return BodyAtom{}, NewParseError(t.Line, t.Column, "expected a comparison operator, found %q", t.Text)
	}
	p.advance()
	right, err := p.parseExpr()
	if err != nil {
		return BodyAtom{}, err
	}
	return BodyAtom{Comparison: &Comparison{Op: op, Left: left, Right: right, Line: t.Line, Column: t.Column}}, nil
}

// parseExpr parses arithmetic with standard left-associative precedence:
// '*','/','%' bind tighter than '+','-'. Aggregates (agg<var>) and bare
// terms are the leaves. The lexer reads '%' as a comment, so a TokPercent
// never reaches parseMulDiv from Parse.
func (p *Parser) parseExpr() (Expr, error) {
	return p.parseAddSub()
}

func (p *Parser) parseAddSub() (Expr, error) {
	left, err := p.parseMulDiv()
	if err != nil {
		return nil, err
	}
	for p.peek().Kind == TokPlus || p.peek().Kind == TokMinus {
		opTok := p.advance()
		right, err := p.parseMulDiv()
		if err != nil {
			return nil, err
		}
		left = &BinaryExpr{Op: opTok.Text[0], Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseMulDiv() (Expr, error) {
	left, err := p.parsePrimaryExpr()
	if err != nil {
		return nil, err
	}
	for p.peek().Kind == TokStar || p.peek().Kind == TokSlash || p.peek().Kind == TokPercent {
		opTok := p.advance()
		right, err := p.parsePrimaryExpr()
		if err != nil {
			return nil, err
		}
		left = &BinaryExpr{Op: opTok.Text[0], Left: left, Right: right}
	}
	return left, nil
}

func aggFuncName(s string) bool {
	switch s {
	case "count", "sum", "min", "max", "avg", "count_distinct", "top_k":
		return true
	default:
		return false
	}
}

func (p *Parser) parsePrimaryExpr() (Expr, error) {
	t := p.peek()
	if t.Kind == TokIdent && aggFuncName(t.Text) && p.peekAt(1).Kind == TokLt {
		p.advance() // func name
		p.advance() // '<'
		arg := ""
		if p.peek().Kind == TokVariable || p.peek().Kind == TokIdent {
			arg = p.advance().Text
		}
		k := 0
		if p.peek().Kind == TokComma {
			p.advance()
			kt, err := p.expect(TokInt, "top_k count")
			if err != nil {
				return nil, err
			}
			n, _ := strconv.Atoi(kt.Text)
			k = n
		}
		if _, err := p.expect(TokGt, "'>'"); err != nil {
			return nil, err
		}
		return &AggExpr{Func: t.Text, Arg: arg, K: k}, nil
	}
	if t.Kind == TokLParen {
		p.advance()
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(TokRParen, "')'"); err != nil {
			return nil, err
		}
		return e, nil
	}
	term, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	return &TermExpr{Term: term}, nil
}

package sandbox

import (
	"fmt"

	"github.com/fensak-dev/approval-engine/internal/enginerr"
)

type parser struct {
	toks []token
	pos  int
}

// Parse turns programText into a Program AST. Tokenizing and parsing
// errors are reported as RuleExecutionFailure, the same kind as a runtime
// guest failure, with a "tokenizing rule program" or "parsing rule
// program" message prefix; either way approval is blocked.
func Parse(src string) (*Program, error) {
	toks, err := tokenize(src)
	if err != nil {
		return nil, enginerr.Wrap(enginerr.RuleExecutionFailure, "tokenizing rule program", err)
	}
	p := &parser{toks: toks}
	prog := &Program{}
	for !p.atEOF() {
		stmt, err := p.parseStatement()
		if err != nil {
			return nil, enginerr.Wrap(enginerr.RuleExecutionFailure, "parsing rule program", err)
		}
		prog.Statements = append(prog.Statements, stmt)
	}
	return prog, nil
}

func (p *parser) cur() token  { return p.toks[p.pos] }
func (p *parser) atEOF() bool { return p.cur().kind == tokEOF }

func (p *parser) advance() token {
	t := p.toks[p.pos]
	if p.pos < len(p.toks)-1 {
		p.pos++
	}
	return t
}

func (p *parser) isPunct(s string) bool {
	c := p.cur()
	return c.kind == tokPunct && c.text == s
}

func (p *parser) isKeyword(s string) bool {
	c := p.cur()
	return c.kind == tokKeyword && c.text == s
}

func (p *parser) expectPunct(s string) error {
	if !p.isPunct(s) {
		return fmt.Errorf("line %d: expected %q, got %q", p.cur().line, s, p.cur().text)
	}
	p.advance()
	return nil
}

func (p *parser) skipPunct(s string) bool {
	if p.isPunct(s) {
		p.advance()
		return true
	}
	return false
}

func (p *parser) parseStatement() (Node, error) {
	switch {
	case p.isKeyword("function"):
		return p.parseFunctionDecl()
	case p.isKeyword("var") || p.isKeyword("let") || p.isKeyword("const"):
		return p.parseVarDecl()
	case p.isKeyword("return"):
		return p.parseReturn()
	case p.isKeyword("if"):
		return p.parseIf()
	case p.isKeyword("while"):
		return p.parseWhile()
	case p.isKeyword("for"):
		return p.parseFor()
	case p.isPunct("{"):
		block, err := p.parseBlock()
		if err != nil {
			return nil, err
		}
		return &BlockStmt{Statements: block}, nil
	default:
		expr, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		p.skipPunct(";")
		return &ExprStmt{Expr: expr}, nil
	}
}

func (p *parser) parseBlock() ([]Node, error) {
	if err := p.expectPunct("{"); err != nil {
		return nil, err
	}
	var stmts []Node
	for !p.isPunct("}") {
		if p.atEOF() {
			return nil, fmt.Errorf("line %d: unterminated block", p.cur().line)
		}
		stmt, err := p.parseStatement()
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, stmt)
	}
	p.advance()
	return stmts, nil
}

func (p *parser) parseFunctionDecl() (Node, error) {
	p.advance()
	if p.cur().kind != tokIdent {
		return nil, fmt.Errorf("line %d: expected function name", p.cur().line)
	}
	name := p.advance().text
	params, err := p.parseParamList()
	if err != nil {
		return nil, err
	}
	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	return &FunctionDecl{Name: name, Params: params, Body: body}, nil
}

func (p *parser) parseParamList() ([]string, error) {
	if err := p.expectPunct("("); err != nil {
		return nil, err
	}
	var params []string
	for !p.isPunct(")") {
		if len(params) > 0 {
			if err := p.expectPunct(","); err != nil {
				return nil, err
			}
		}
		if p.cur().kind != tokIdent {
			return nil, fmt.Errorf("line %d: expected parameter name", p.cur().line)
		}
		params = append(params, p.advance().text)
	}
	p.advance()
	return params, nil
}

func (p *parser) parseVarDecl() (Node, error) {
	p.advance()
	if p.cur().kind != tokIdent {
		return nil, fmt.Errorf("line %d: expected identifier after var/let/const", p.cur().line)
	}
	name := p.advance().text
	var value Node
	if p.skipPunct("=") {
		v, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		value = v
	}
	p.skipPunct(";")
	return &VarDecl{Name: name, Value: value}, nil
}

func (p *parser) parseReturn() (Node, error) {
	p.advance()
	if p.isPunct(";") || p.isPunct("}") {
		p.skipPunct(";")
		return &ReturnStmt{}, nil
	}
	value, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	p.skipPunct(";")
	return &ReturnStmt{Value: value}, nil
}

func (p *parser) parseIf() (Node, error) {
	p.advance()
	if err := p.expectPunct("("); err != nil {
		return nil, err
	}
	cond, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if err := p.expectPunct(")"); err != nil {
		return nil, err
	}
	thenBody, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	var elseBody []Node
	if p.isKeyword("else") {
		p.advance()
		if p.isKeyword("if") {
			elseIf, err := p.parseIf()
			if err != nil {
				return nil, err
			}
			elseBody = []Node{elseIf}
		} else {
			elseBody, err = p.parseBlock()
			if err != nil {
				return nil, err
			}
		}
	}
	return &IfStmt{Cond: cond, Then: thenBody, Else: elseBody}, nil
}

func (p *parser) parseWhile() (Node, error) {
	p.advance()
	if err := p.expectPunct("("); err != nil {
		return nil, err
	}
	cond, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if err := p.expectPunct(")"); err != nil {
		return nil, err
	}
	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	return &WhileStmt{Cond: cond, Body: body}, nil
}

func (p *parser) parseFor() (Node, error) {
	p.advance()
	if err := p.expectPunct("("); err != nil {
		return nil, err
	}
	var init Node
	if !p.isPunct(";") {
		var err error
		if p.isKeyword("var") || p.isKeyword("let") || p.isKeyword("const") {
			init, err = p.parseVarDecl()
			if err != nil {
				return nil, err
			}
		} else {
			expr, err := p.parseExpression()
			if err != nil {
				return nil, err
			}
			init = &ExprStmt{Expr: expr}
		}
	}
	p.skipPunct(";")
	var cond Node
	if !p.isPunct(";") {
		c, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		cond = c
	}
	if err := p.expectPunct(";"); err != nil {
		return nil, err
	}
	var post Node
	if !p.isPunct(")") {
		e, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		post = e
	}
	if err := p.expectPunct(")"); err != nil {
		return nil, err
	}
	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	return &ForStmt{Init: init, Cond: cond, Post: post, Body: body}, nil
}

// Expression parsing: precedence-climbing over the small operator set
// the dialect needs (assignment, ||, &&, equality, relational,
// additive, multiplicative, unary, postfix, primary).

func (p *parser) parseExpression() (Node, error) {
	return p.parseAssignment()
}

func (p *parser) parseAssignment() (Node, error) {
	left, err := p.parseLogicalOr()
	if err != nil {
		return nil, err
	}
	if p.isPunct("=") {
		p.advance()
		value, err := p.parseAssignment()
		if err != nil {
			return nil, err
		}
		switch left.(type) {
		case *Ident, *MemberExpr, *IndexExpr:
			return &AssignExpr{Target: left, Value: value}, nil
		default:
			return nil, fmt.Errorf("line %d: invalid assignment target", p.cur().line)
		}
	}
	return left, nil
}

func (p *parser) parseLogicalOr() (Node, error) {
	left, err := p.parseLogicalAnd()
	if err != nil {
		return nil, err
	}
	for p.isPunct("||") {
		p.advance()
		right, err := p.parseLogicalAnd()
		if err != nil {
			return nil, err
		}
		left = &LogicalExpr{Op: "||", Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseLogicalAnd() (Node, error) {
	left, err := p.parseEquality()
	if err != nil {
		return nil, err
	}
	for p.isPunct("&&") {
		p.advance()
		right, err := p.parseEquality()
		if err != nil {
			return nil, err
		}
		left = &LogicalExpr{Op: "&&", Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseEquality() (Node, error) {
	left, err := p.parseRelational()
	if err != nil {
		return nil, err
	}
	for p.isPunct("==") || p.isPunct("!=") || p.isPunct("===") || p.isPunct("!==") {
		op := p.advance().text
		right, err := p.parseRelational()
		if err != nil {
			return nil, err
		}
		left = &BinaryExpr{Op: op, Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseRelational() (Node, error) {
	left, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	for p.isPunct("<") || p.isPunct(">") || p.isPunct("<=") || p.isPunct(">=") {
		op := p.advance().text
		right, err := p.parseAdditive()
		if err != nil {
			return nil, err
		}
		left = &BinaryExpr{Op: op, Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseAdditive() (Node, error) {
	left, err := p.parseMultiplicative()
	if err != nil {
		return nil, err
	}
	for p.isPunct("+") || p.isPunct("-") {
		op := p.advance().text
		right, err := p.parseMultiplicative()
		if err != nil {
			return nil, err
		}
		left = &BinaryExpr{Op: op, Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseMultiplicative() (Node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.isPunct("*") || p.isPunct("/") || p.isPunct("%") {
		op := p.advance().text
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = &BinaryExpr{Op: op, Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseUnary() (Node, error) {
	if p.isPunct("!") || p.isPunct("-") {
		op := p.advance().text
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &UnaryExpr{Op: op, Operand: operand}, nil
	}
	return p.parsePostfix()
}

func (p *parser) parsePostfix() (Node, error) {
	expr, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for {
		switch {
		case p.isPunct("."):
			p.advance()
			if p.cur().kind != tokIdent && p.cur().kind != tokKeyword {
				return nil, fmt.Errorf("line %d: expected property name after '.'", p.cur().line)
			}
			prop := p.advance().text
			expr = &MemberExpr{Object: expr, Property: prop}
		case p.isPunct("["):
			p.advance()
			idx, err := p.parseExpression()
			if err != nil {
				return nil, err
			}
			if err := p.expectPunct("]"); err != nil {
				return nil, err
			}
			expr = &IndexExpr{Object: expr, Index: idx}
		case p.isPunct("("):
			args, err := p.parseArgList()
			if err != nil {
				return nil, err
			}
			expr = &CallExpr{Callee: expr, Args: args}
		default:
			return expr, nil
		}
	}
}

func (p *parser) parseArgList() ([]Node, error) {
	if err := p.expectPunct("("); err != nil {
		return nil, err
	}
	var args []Node
	for !p.isPunct(")") {
		if len(args) > 0 {
			if err := p.expectPunct(","); err != nil {
				return nil, err
			}
		}
		arg, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		args = append(args, arg)
	}
	p.advance()
	return args, nil
}

func (p *parser) parsePrimary() (Node, error) {
	c := p.cur()
	switch {
	case c.kind == tokNumber:
		p.advance()
		return &NumberLit{Value: c.num}, nil
	case c.kind == tokString:
		p.advance()
		return &StringLit{Value: c.text}, nil
	case c.kind == tokKeyword && c.text == "true":
		p.advance()
		return &BoolLit{Value: true}, nil
	case c.kind == tokKeyword && c.text == "false":
		p.advance()
		return &BoolLit{Value: false}, nil
	case c.kind == tokKeyword && c.text == "null":
		p.advance()
		return &NullLit{}, nil
	case c.kind == tokKeyword && c.text == "function":
		return p.parseFunctionLit()
	case c.kind == tokIdent:
		p.advance()
		return &Ident{Name: c.text}, nil
	case p.isPunct("("):
		p.advance()
		expr, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		if err := p.expectPunct(")"); err != nil {
			return nil, err
		}
		return expr, nil
	case p.isPunct("["):
		return p.parseArrayLit()
	case p.isPunct("{"):
		return p.parseObjectLit()
	default:
		return nil, fmt.Errorf("line %d: unexpected token %q", c.line, c.text)
	}
}

func (p *parser) parseFunctionLit() (Node, error) {
	p.advance()
	if p.cur().kind == tokIdent {
		p.advance()
	}
	params, err := p.parseParamList()
	if err != nil {
		return nil, err
	}
	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	return &FunctionLit{Params: params, Body: body}, nil
}

func (p *parser) parseArrayLit() (Node, error) {
	p.advance()
	var elems []Node
	for !p.isPunct("]") {
		if len(elems) > 0 {
			if err := p.expectPunct(","); err != nil {
				return nil, err
			}
		}
		el, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		elems = append(elems, el)
	}
	p.advance()
	return &ArrayLit{Elements: elems}, nil
}

func (p *parser) parseObjectLit() (Node, error) {
	p.advance()
	obj := &ObjectLit{}
	for !p.isPunct("}") {
		if len(obj.Keys) > 0 {
			if err := p.expectPunct(","); err != nil {
				return nil, err
			}
		}
		var key string
		switch {
		case p.cur().kind == tokIdent || p.cur().kind == tokKeyword:
			key = p.advance().text
		case p.cur().kind == tokString:
			key = p.advance().text
		default:
			return nil, fmt.Errorf("line %d: expected object key", p.cur().line)
		}
		if err := p.expectPunct(":"); err != nil {
			return nil, err
		}
		value, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		obj.Keys = append(obj.Keys, key)
		obj.Values = append(obj.Values, value)
	}
	p.advance()
	return obj, nil
}

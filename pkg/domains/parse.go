/*
 * Copyright (c) 2024-present Entago, Ltd.
 */

package domains

import (
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

// Textual domain notation, the external form of domains:
//
//	state = "done" and not (amount < 100 or partner_id.name ilike "acme")
//	tag_ids any (name in ["urgent", "late"])
//
// Keywords are lowercase. Field paths are dotted identifiers.

var domainLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "NotIn", Pattern: `\bnot\s+in\b`},
	{Name: "NotAny", Pattern: `\bnot\s+any\b`},
	{Name: "Keyword", Pattern: `\b(and|or|not|in|like|ilike|child_of|parent_of|any|null|true|false)\b`},
	{Name: "Path", Pattern: `[a-zA-Z_]\w*(\.[a-zA-Z_]\w*)*`},
	{Name: "Float", Pattern: `[-+]?\d+\.\d+`},
	{Name: "Int", Pattern: `[-+]?\d+`},
	{Name: "Operator", Pattern: `!=|<=|>=|=ilike|=like|[=<>]`},
	{Name: "String", Pattern: `("(\\"|[^"])*")|('(\\'|[^'])*')`},
	{Name: "Punct", Pattern: `[\[\],()]`},
	{Name: "Whitespace", Pattern: `[ \r\n\t]+`},
})

var domainParser = participle.MustBuild[orAST](
	participle.Lexer(domainLexer),
	participle.Elide("Whitespace"),
	participle.Unquote("String"),
	participle.UseLookahead(2),
)

type orAST struct {
	First *andAST   `parser:"@@"`
	Rest  []*andAST `parser:"( 'or' @@ )*"`
}

type andAST struct {
	First *unaryAST   `parser:"@@"`
	Rest  []*unaryAST `parser:"( 'and' @@ )*"`
}

type unaryAST struct {
	Not   *unaryAST `parser:"'not' @@"`
	Group *orAST    `parser:"| '(' @@ ')'"`
	Cond  *condAST  `parser:"| @@"`
}

type condAST struct {
	Path string   `parser:"@Path"`
	Any  *anyAST  `parser:"( @@"`
	Cmp  *cmpAST  `parser:"| @@ )"`
}

type anyAST struct {
	Op  string `parser:"@( NotAny | 'any' )"`
	Sub *orAST `parser:"'(' @@ ')'"`
}

type cmpAST struct {
	Op    string    `parser:"@( NotIn | Operator | 'in' | 'like' | 'ilike' | 'child_of' | 'parent_of' )"`
	Value *valueAST `parser:"@@"`
}

type valueAST struct {
	List   []*scalarAST `parser:"'[' ( @@ ( ',' @@ )* )? ']'"`
	Scalar *scalarAST   `parser:"| @@"`
}

type scalarAST struct {
	Str   *string  `parser:"@String"`
	Float *float64 `parser:"| @Float"`
	Int   *int64   `parser:"| @Int"`
	True  bool     `parser:"| @'true'"`
	False bool     `parser:"| @'false'"`
	Null  bool     `parser:"| 'null'"`
}

// Parse reads the textual domain notation.
func Parse(text string) (Expr, error) {
	if strings.TrimSpace(text) == "" {
		return TRUE, nil
	}
	ast, err := domainParser.ParseString("", text)
	if err != nil {
		return nil, errInvalid("%v", err)
	}
	return ast.expr(), nil
}

// MustParse is Parse panicking on error, for static declarations.
func MustParse(text string) Expr {
	e, err := Parse(text)
	if err != nil {
		panic(err)
	}
	return e
}

func (a *orAST) expr() Expr {
	out := []Expr{a.First.expr()}
	for _, sub := range a.Rest {
		out = append(out, sub.expr())
	}
	return Or(out...)
}

func (a *andAST) expr() Expr {
	out := []Expr{a.First.expr()}
	for _, sub := range a.Rest {
		out = append(out, sub.expr())
	}
	return And(out...)
}

func (a *unaryAST) expr() Expr {
	switch {
	case a.Not != nil:
		return Not(a.Not.expr())
	case a.Group != nil:
		return a.Group.expr()
	}
	return a.Cond.expr()
}

func (a *condAST) expr() Expr {
	if a.Any != nil {
		op := OpAny
		if normalizeOp(a.Any.Op) == string(OpNotAny) {
			op = OpNotAny
		}
		return Condition{Path: a.Path, Op: op, Value: a.Any.Sub.expr()}
	}
	return Condition{
		Path:  a.Path,
		Op:    Operator(normalizeOp(a.Cmp.Op)),
		Value: a.Cmp.Value.value(),
	}
}

// normalizeOp collapses the whitespace inside two-word operators.
func normalizeOp(op string) string {
	return strings.Join(strings.Fields(op), " ")
}

func (a *valueAST) value() any {
	if a.Scalar != nil {
		return a.Scalar.value()
	}
	out := make([]any, len(a.List))
	for i, item := range a.List {
		out[i] = item.value()
	}
	return out
}

func (a *scalarAST) value() any {
	switch {
	case a.Str != nil:
		return *a.Str
	case a.Float != nil:
		return *a.Float
	case a.Int != nil:
		return *a.Int
	case a.True:
		return true
	case a.False:
		return false
	}
	return nil
}

/*
 * Copyright (c) 2024-present Entago, Ltd.
 */

package domains

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestConstructors(t *testing.T) {
	require := require.New(t)

	t.Run("should fold constants", func(t *testing.T) {
		require.Equal(TRUE, And())
		require.Equal(FALSE, Or())
		require.Equal(FALSE, Not(TRUE))
		require.Equal(TRUE, Not(FALSE))
		require.Equal(FALSE, And(Leaf("a", OpEq, 1), FALSE))
		require.Equal(TRUE, Or(Leaf("a", OpEq, 1), TRUE))
	})

	t.Run("should flatten nested chains", func(t *testing.T) {
		e := And(And(Leaf("a", OpEq, 1), Leaf("b", OpEq, 2)), Leaf("c", OpEq, 3))
		and, ok := e.(AndExpr)
		require.True(ok)
		require.Len(and.Exprs, 3)
	})

	t.Run("should drop single operand wrappers", func(t *testing.T) {
		leaf := Leaf("a", OpEq, 1)
		require.Equal(Expr(leaf), And(leaf))
		require.Equal(Expr(leaf), Or(leaf))
	})

	t.Run("should cancel double negation", func(t *testing.T) {
		leaf := Leaf("a", OpEq, 1)
		require.Equal(Expr(leaf), Not(Not(leaf)))
	})
}

func TestNormalize(t *testing.T) {
	require := require.New(t)

	t.Run("should apply De Morgan", func(t *testing.T) {
		e := Normalize(Not(And(Leaf("a", OpEq, 1), Leaf("b", OpLess, 2))))
		or, ok := e.(OrExpr)
		require.True(ok)
		require.Len(or.Exprs, 2)
		require.Equal(Condition{Path: "a", Op: OpNotEq, Value: 1}, or.Exprs[0])
		require.Equal(Condition{Path: "b", Op: OpGreatEq, Value: 2}, or.Exprs[1])
	})

	t.Run("should keep NOT on pattern operators", func(t *testing.T) {
		e := Normalize(Not(Leaf("name", OpILike, "x")))
		not, ok := e.(NotExpr)
		require.True(ok)
		require.Equal(Condition{Path: "name", Op: OpILike, Value: "x"}, not.Expr)
	})

	t.Run("should keep NOT on dotted paths", func(t *testing.T) {
		e := Normalize(Not(Leaf("partner_id.name", OpEq, "x")))
		_, ok := e.(NotExpr)
		require.True(ok)
	})

	t.Run("should be idempotent", func(t *testing.T) {
		e := Not(Or(Leaf("a", OpIn, []any{1, 2}), Not(Leaf("b", OpEq, true))))
		once := Normalize(e)
		require.Equal(once.String(), Normalize(once).String())
	})
}

func TestFromList(t *testing.T) {
	require := require.New(t)

	t.Run("should read implicit AND", func(t *testing.T) {
		e, err := FromList([]any{
			[]any{"state", "=", "done"},
			[]any{"amount", ">", 100},
		})
		require.NoError(err)
		require.Equal("& (state = \"done\") (amount > 100)", e.String())
	})

	t.Run("should read prefix operators", func(t *testing.T) {
		e, err := FromList([]any{
			"|",
			[]any{"a", "=", 1},
			"!",
			[]any{"b", "=", 2},
		})
		require.NoError(err)
		require.Equal("| (a = 1) (b != 2)", Normalize(e).String())
	})

	t.Run("should read any sub-domains", func(t *testing.T) {
		e, err := FromList([]any{
			[]any{"tag_ids", "any", []any{[]any{"name", "=", "A"}}},
		})
		require.NoError(err)
		cond, ok := e.(Condition)
		require.True(ok)
		require.Equal(OpAny, cond.Op)
		_, ok = cond.Value.(Condition)
		require.True(ok)
	})

	t.Run("should reject malformed input", func(t *testing.T) {
		_, err := FromList([]any{"&", []any{"a", "=", 1}})
		require.ErrorIs(err, ErrInvalidDomain)

		_, err = FromList([]any{[]any{"a", "??", 1}})
		require.ErrorIs(err, ErrInvalidDomain)

		_, err = FromList([]any{[]any{"a", "="}})
		require.ErrorIs(err, ErrInvalidDomain)
	})

	t.Run("should treat empty list as TRUE", func(t *testing.T) {
		e, err := FromList(nil)
		require.NoError(err)
		require.Equal(TRUE, e)
	})
}

func TestParse(t *testing.T) {
	require := require.New(t)

	t.Run("should parse comparisons and precedence", func(t *testing.T) {
		e, err := Parse(`state = "done" and amount >= 10.5 or closed = true`)
		require.NoError(err)
		or, ok := e.(OrExpr)
		require.True(ok)
		require.Len(or.Exprs, 2)
		_, ok = or.Exprs[0].(AndExpr)
		require.True(ok)
	})

	t.Run("should parse not and grouping", func(t *testing.T) {
		e, err := Parse(`not (a = 1 or b != 2)`)
		require.NoError(err)
		norm := Normalize(e)
		and, ok := norm.(AndExpr)
		require.True(ok)
		require.Len(and.Exprs, 2)
	})

	t.Run("should parse lists and not in", func(t *testing.T) {
		e, err := Parse(`state not in ["draft", "cancel"]`)
		require.NoError(err)
		cond, ok := e.(Condition)
		require.True(ok)
		require.Equal(OpNotIn, cond.Op)
		require.Equal([]any{"draft", "cancel"}, cond.Value)
	})

	t.Run("should parse dotted paths", func(t *testing.T) {
		e, err := Parse(`partner_id.country_id.code = "BE"`)
		require.NoError(err)
		cond, ok := e.(Condition)
		require.True(ok)
		require.Equal("partner_id.country_id.code", cond.Path)
	})

	t.Run("should parse any with sub-domain", func(t *testing.T) {
		e, err := Parse(`tag_ids any (name = "A" and active = true)`)
		require.NoError(err)
		cond, ok := e.(Condition)
		require.True(ok)
		require.Equal(OpAny, cond.Op)
		sub, ok := cond.Value.(Expr)
		require.True(ok)
		_, ok = sub.(AndExpr)
		require.True(ok)
	})

	t.Run("should parse hierarchy operators", func(t *testing.T) {
		e, err := Parse(`id child_of 42`)
		require.NoError(err)
		cond, ok := e.(Condition)
		require.True(ok)
		require.Equal(OpChildOf, cond.Op)
		require.Equal(int64(42), cond.Value)
	})

	t.Run("should treat blank text as TRUE", func(t *testing.T) {
		e, err := Parse("   ")
		require.NoError(err)
		require.Equal(TRUE, e)
	})

	t.Run("should reject garbage", func(t *testing.T) {
		_, err := Parse(`a ==== b`)
		require.ErrorIs(err, ErrInvalidDomain)
	})
}

func TestFieldsAndWalk(t *testing.T) {
	require := require.New(t)

	e := And(
		Leaf("partner_id.name", OpEq, "x"),
		Or(Leaf("state", OpEq, "done"), Leaf("amount", OpLess, 5)),
		Leaf("tag_ids", OpAny, Leaf("name", OpEq, "A")),
	)
	require.Equal([]string{"amount", "partner_id", "state", "tag_ids"}, Fields(e))

	count := 0
	Walk(e, func(Condition) { count++ })
	require.Equal(5, count) // sub-domain leaf of any is visited too
}

/*
 * Copyright (c) 2024-present Entago, Ltd.
 */

package queries

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/entago/entago/pkg/domains"
	"github.com/entago/entago/pkg/modeldef"
)

type builder struct {
	c      *Compiler
	spec   Spec
	joins  []string
	joined map[string]bool
	args   []any
}

func (b *builder) arg(v any) string {
	b.args = append(b.args, v)
	return b.c.dialect.Placeholder(len(b.args))
}

func (b *builder) compile(e domains.Expr, ent modeldef.IEntity, alias string) (string, error) {
	switch t := e.(type) {
	case domains.AndExpr:
		return b.junction(t.Exprs, " AND ", ent, alias)
	case domains.OrExpr:
		return b.junction(t.Exprs, " OR ", ent, alias)
	case domains.NotExpr:
		inner, err := b.compile(t.Expr, ent, alias)
		if err != nil {
			return "", err
		}
		return "(NOT " + inner + ")", nil
	case domains.Condition:
		return b.walk(strings.Split(t.Path, "."), t.Op, t.Value, ent, alias)
	}
	if e == domains.FALSE {
		return "FALSE", nil
	}
	return "TRUE", nil
}

func (b *builder) junction(exprs []domains.Expr, sep string, ent modeldef.IEntity, alias string) (string, error) {
	parts := make([]string, len(exprs))
	for i, sub := range exprs {
		s, err := b.compile(sub, ent, alias)
		if err != nil {
			return "", err
		}
		parts[i] = s
	}
	return "(" + strings.Join(parts, sep) + ")", nil
}

// walk compiles one leaf, consuming the dotted path segment by segment.
func (b *builder) walk(segs []string, op domains.Operator, value any, ent modeldef.IEntity, alias string) (string, error) {
	name := segs[0]
	fld, err := ent.MustField(name)
	if err != nil {
		return "", err
	}

	// non-stored related fields delegate to their path
	if fld.Related() != "" && !fld.Stored() {
		spliced := append(strings.Split(fld.Related(), "."), segs[1:]...)
		return b.walk(spliced, op, value, ent, alias)
	}

	if len(segs) > 1 {
		switch fld.Kind() {
		case modeldef.KindMany2one:
			co, err := b.c.reg.MustEntity(fld.Comodel())
			if err != nil {
				return "", err
			}
			joinAlias := alias + "__" + name
			b.addJoin(alias, name, co.Table(), joinAlias)
			return b.walk(segs[1:], op, value, co, joinAlias)
		case modeldef.KindOne2many, modeldef.KindMany2many:
			return b.exists(fld, alias, false, func(co modeldef.IEntity, coAlias string) (string, error) {
				return b.walk(segs[1:], op, value, co, coAlias)
			})
		}
		if fld.Compute() != "" && !fld.Stored() {
			return "", errUnsearchable(ent.Name(), name)
		}
		return "", fmt.Errorf("%w: «%s» is not relational in path", modeldef.ErrFieldResolution, name)
	}

	// terminal: non-stored computed fields go through their translator
	if fld.Compute() != "" && !fld.Stored() {
		fn := b.c.searches[fld.SearchFn()]
		if fld.SearchFn() == "" || fn == nil {
			return "", errUnsearchable(ent.Name(), name)
		}
		repl, err := fn(op, value)
		if err != nil {
			return "", err
		}
		return b.compile(domains.Normalize(repl), ent, alias)
	}

	// hierarchy operators resolve against the entity holding parent_path
	if op == domains.OpChildOf || op == domains.OpParentOf {
		return b.hierarchyLeaf(fld, ent, alias, op, value)
	}

	switch fld.Kind() {
	case modeldef.KindMany2one:
		return b.many2oneLeaf(fld, ent, alias, op, value)
	case modeldef.KindOne2many, modeldef.KindMany2many:
		return b.x2manyLeaf(fld, ent, alias, op, value)
	}
	return b.scalarLeaf(fld, ent, alias, op, value)
}

func (b *builder) addJoin(alias, field, coTable, joinAlias string) {
	if b.joined == nil {
		b.joined = make(map[string]bool)
	}
	if b.joined[joinAlias] {
		return
	}
	b.joined[joinAlias] = true
	b.joins = append(b.joins, fmt.Sprintf(
		"LEFT JOIN %s AS %s ON %s.%s = %s.%s",
		qi(coTable), qi(joinAlias), qi(alias), qi(field), qi(joinAlias), qi(modeldef.FieldID)))
}

// exists emits an EXISTS sub-query over a to-many relation; inner builds the
// predicate against the comodel alias.
func (b *builder) exists(fld modeldef.IField, alias string, negate bool,
	inner func(co modeldef.IEntity, coAlias string) (string, error)) (string, error) {

	co, err := b.c.reg.MustEntity(fld.Comodel())
	if err != nil {
		return "", err
	}
	coAlias := alias + "__" + fld.Name()

	var sb strings.Builder
	if negate {
		sb.WriteString("NOT ")
	}
	sb.WriteString("EXISTS (SELECT 1 FROM ")
	switch fld.Kind() {
	case modeldef.KindOne2many:
		fmt.Fprintf(&sb, "%s AS %s WHERE %s.%s = %s.%s",
			qi(co.Table()), qi(coAlias),
			qi(coAlias), qi(fld.InverseName()), qi(alias), qi(modeldef.FieldID))
	case modeldef.KindMany2many:
		relAlias := coAlias + "__rel"
		fmt.Fprintf(&sb, "%s AS %s JOIN %s AS %s ON %s.%s = %s.%s WHERE %s.%s = %s.%s",
			qi(fld.RelTable()), qi(relAlias),
			qi(co.Table()), qi(coAlias),
			qi(coAlias), qi(modeldef.FieldID), qi(relAlias), qi(fld.Column2()),
			qi(relAlias), qi(fld.Column1()), qi(alias), qi(modeldef.FieldID))
	default:
		return "", errBadOperator(co.Name(), fld.Name(), "exists")
	}

	pred, err := inner(co, coAlias)
	if err != nil {
		return "", err
	}
	sb.WriteString(" AND ")
	sb.WriteString(pred)
	sb.WriteString(")")
	return sb.String(), nil
}

// many2oneLeaf compiles a terminal condition on a to-one field.
func (b *builder) many2oneLeaf(fld modeldef.IField, ent modeldef.IEntity, alias string, op domains.Operator, value any) (string, error) {
	col := qi(alias) + "." + qi(fld.Name())

	switch op {
	case domains.OpEq, domains.OpNotEq:
		if value == nil || value == false {
			if op == domains.OpEq {
				return col + " IS NULL", nil
			}
			return col + " IS NOT NULL", nil
		}
		if s, ok := value.(string); ok {
			// comparing a relation to a string means its display name
			return b.displayNameMatch(fld, alias, op, s)
		}
		id, err := toID(value)
		if err != nil {
			return "", errBadOperator(ent.Name(), fld.Name(), op)
		}
		if op == domains.OpEq {
			return col + " = " + b.arg(id), nil
		}
		return "(" + col + " != " + b.arg(id) + " OR " + col + " IS NULL)", nil

	case domains.OpIn, domains.OpNotIn:
		ids, err := toIDList(value)
		if err != nil {
			return "", errBadOperator(ent.Name(), fld.Name(), op)
		}
		return b.inList(col, ids, op == domains.OpNotIn), nil

	case domains.OpLike, domains.OpILike, domains.OpEqLike, domains.OpEqILike:
		s, _ := value.(string)
		return b.displayNameMatch(fld, alias, op, s)

	case domains.OpAny, domains.OpNotAny:
		sub, ok := value.(domains.Expr)
		if !ok {
			return "", errBadOperator(ent.Name(), fld.Name(), op)
		}
		negate := op == domains.OpNotAny
		return b.relatedPred(fld, alias, negate, func(co modeldef.IEntity, coAlias string) (string, error) {
			return b.compile(domains.Normalize(sub), co, coAlias)
		})
	}
	return "", errBadOperator(ent.Name(), fld.Name(), op)
}

// relatedPred wraps a predicate over the target of a to-one relation:
// EXISTS (SELECT 1 FROM co WHERE co.id = alias.col AND pred).
func (b *builder) relatedPred(fld modeldef.IField, alias string, negate bool,
	inner func(co modeldef.IEntity, coAlias string) (string, error)) (string, error) {

	co, err := b.c.reg.MustEntity(fld.Comodel())
	if err != nil {
		return "", err
	}
	coAlias := alias + "__" + fld.Name()
	pred, err := inner(co, coAlias)
	if err != nil {
		return "", err
	}
	neg := ""
	if negate {
		neg = "NOT "
	}
	return fmt.Sprintf("%sEXISTS (SELECT 1 FROM %s AS %s WHERE %s.%s = %s.%s AND %s)",
		neg, qi(co.Table()), qi(coAlias),
		qi(coAlias), qi(modeldef.FieldID), qi(alias), qi(fld.Name()), pred), nil
}

func (b *builder) displayNameMatch(fld modeldef.IField, alias string, op domains.Operator, s string) (string, error) {
	return b.relatedPred(fld, alias, false, func(co modeldef.IEntity, coAlias string) (string, error) {
		rec, err := co.MustField(co.RecName())
		if err != nil {
			return "", err
		}
		return b.scalarLeaf(rec, co, coAlias, op, s)
	})
}

// x2manyLeaf compiles a terminal condition on a to-many field.
func (b *builder) x2manyLeaf(fld modeldef.IField, ent modeldef.IEntity, alias string, op domains.Operator, value any) (string, error) {
	switch op {
	case domains.OpAny, domains.OpNotAny:
		sub, ok := value.(domains.Expr)
		if !ok {
			return "", errBadOperator(ent.Name(), fld.Name(), op)
		}
		return b.exists(fld, alias, op == domains.OpNotAny, func(co modeldef.IEntity, coAlias string) (string, error) {
			return b.compile(domains.Normalize(sub), co, coAlias)
		})

	case domains.OpEq, domains.OpNotEq:
		if value == nil || value == false {
			// empty relation
			return b.exists(fld, alias, op == domains.OpEq, func(modeldef.IEntity, string) (string, error) {
				return "TRUE", nil
			})
		}
		fallthrough

	case domains.OpIn, domains.OpNotIn:
		ids, err := toIDList(value)
		if err != nil {
			return "", errBadOperator(ent.Name(), fld.Name(), op)
		}
		negate := op == domains.OpNotIn || op == domains.OpNotEq
		if len(ids) == 0 {
			if negate {
				return "TRUE", nil
			}
			return "FALSE", nil
		}
		return b.exists(fld, alias, negate, func(co modeldef.IEntity, coAlias string) (string, error) {
			return b.inList(qi(coAlias)+"."+qi(modeldef.FieldID), ids, false), nil
		})

	case domains.OpLike, domains.OpILike, domains.OpEqLike, domains.OpEqILike:
		s, _ := value.(string)
		return b.exists(fld, alias, false, func(co modeldef.IEntity, coAlias string) (string, error) {
			rec, err := co.MustField(co.RecName())
			if err != nil {
				return "", err
			}
			return b.scalarLeaf(rec, co, coAlias, op, s)
		})
	}
	return "", errBadOperator(ent.Name(), fld.Name(), op)
}

// hierarchyLeaf lowers child_of/parent_of onto parent_path prefix matches.
func (b *builder) hierarchyLeaf(fld modeldef.IField, ent modeldef.IEntity, alias string, op domains.Operator, value any) (string, error) {
	ids, err := toIDList(value)
	if err != nil {
		return "", errBadOperator(ent.Name(), fld.Name(), op)
	}
	if len(ids) == 0 {
		return "FALSE", nil
	}

	switch {
	case fld.Name() == modeldef.FieldID:
		return b.hierarchyPred(ent, alias, op, ids)
	case fld.Kind() == modeldef.KindMany2one:
		return b.relatedPred(fld, alias, false, func(co modeldef.IEntity, coAlias string) (string, error) {
			return b.hierarchyPred(co, coAlias, op, ids)
		})
	case fld.Kind() == modeldef.KindOne2many || fld.Kind() == modeldef.KindMany2many:
		return b.exists(fld, alias, false, func(co modeldef.IEntity, coAlias string) (string, error) {
			return b.hierarchyPred(co, coAlias, op, ids)
		})
	}
	return "", errBadOperator(ent.Name(), fld.Name(), op)
}

func (b *builder) hierarchyPred(ent modeldef.IEntity, alias string, op domains.Operator, ids []int64) (string, error) {
	if ent.ParentField() == "" {
		return "", fmt.Errorf("%w: «%s» has no parent field", ErrNotHierarchical, ent.Name())
	}
	path := qi(alias) + "." + qi(modeldef.FieldParentPath)
	if op == domains.OpChildOf {
		other := alias + "__anc"
		return fmt.Sprintf("EXISTS (SELECT 1 FROM %s AS %s WHERE %s AND %s LIKE %s.%s || '%%')",
			qi(ent.Table()), qi(other),
			b.inList(qi(other)+"."+qi(modeldef.FieldID), ids, false),
			path, qi(other), qi(modeldef.FieldParentPath)), nil
	}
	other := alias + "__desc"
	return fmt.Sprintf("EXISTS (SELECT 1 FROM %s AS %s WHERE %s AND %s.%s LIKE %s || '%%')",
		qi(ent.Table()), qi(other),
		b.inList(qi(other)+"."+qi(modeldef.FieldID), ids, false),
		qi(other), qi(modeldef.FieldParentPath), path), nil
}

// scalarLeaf compiles a terminal condition on a column-backed field.
func (b *builder) scalarLeaf(fld modeldef.IField, ent modeldef.IEntity, alias string, op domains.Operator, value any) (string, error) {
	lhs := b.columnExpr(fld, alias)

	switch op {
	case domains.OpEq, domains.OpNotEq:
		if value == nil {
			if op == domains.OpEq {
				return lhs + " IS NULL", nil
			}
			return lhs + " IS NOT NULL", nil
		}
		if fld.Kind() == modeldef.KindBoolean {
			// unset boolean columns count as false
			bv, _ := value.(bool)
			if (op == domains.OpEq) == !bv {
				return "(" + lhs + " = " + b.arg(false) + " OR " + lhs + " IS NULL)", nil
			}
			return lhs + " = " + b.arg(true), nil
		}
		if fld.Kind() == modeldef.KindFloat && fld.Precision() > 0 {
			return b.floatEq(lhs, fld, op, value)
		}
		v, err := b.convArg(fld, value)
		if err != nil {
			return "", err
		}
		if op == domains.OpEq {
			return lhs + " = " + b.arg(v), nil
		}
		return "(" + lhs + " != " + b.arg(v) + " OR " + lhs + " IS NULL)", nil

	case domains.OpLess, domains.OpLessEq, domains.OpGreater, domains.OpGreatEq:
		v, err := b.convArg(fld, value)
		if err != nil {
			return "", err
		}
		return lhs + " " + string(op) + " " + b.arg(v), nil

	case domains.OpIn, domains.OpNotIn:
		items, ok := value.([]any)
		if !ok {
			items = []any{value}
		}
		if len(items) == 0 {
			if op == domains.OpNotIn {
				return "TRUE", nil
			}
			return "FALSE", nil
		}
		phs := make([]string, len(items))
		for i, item := range items {
			v, err := b.convArg(fld, item)
			if err != nil {
				return "", err
			}
			phs[i] = b.arg(v)
		}
		if op == domains.OpNotIn {
			return "(" + lhs + " NOT IN (" + strings.Join(phs, ", ") + ") OR " + lhs + " IS NULL)", nil
		}
		return lhs + " IN (" + strings.Join(phs, ", ") + ")", nil

	case domains.OpLike, domains.OpILike, domains.OpEqLike, domains.OpEqILike:
		s, ok := value.(string)
		if !ok || s == "" {
			// pattern match against NULL or nothing is constant false
			return "FALSE", nil
		}
		pattern := s
		if op == domains.OpLike || op == domains.OpILike {
			pattern = "%" + s + "%"
		}
		ci := op == domains.OpILike || op == domains.OpEqILike
		return b.c.dialect.Like(lhs, b.arg(pattern), ci, false), nil
	}
	return "", errBadOperator(ent.Name(), fld.Name(), op)
}

// columnExpr renders the SQL expression reading a stored field, unwrapping
// translated and company-dependent JSON columns.
func (b *builder) columnExpr(fld modeldef.IField, alias string) string {
	col := qi(alias) + "." + qi(fld.Name())
	switch {
	case fld.Translate():
		locale := b.spec.Locale
		if locale == "" {
			locale = b.c.canonical
		}
		if locale == b.c.canonical {
			return b.c.dialect.JSONText(col, locale)
		}
		return "COALESCE(" + b.c.dialect.JSONText(col, locale) + ", " + b.c.dialect.JSONText(col, b.c.canonical) + ")"
	case fld.CompanyDependent():
		expr := b.c.dialect.JSONText(col, fmt.Sprint(b.spec.Company))
		switch fld.Kind() {
		case modeldef.KindInteger, modeldef.KindFloat, modeldef.KindDecimal, modeldef.KindMany2one:
			return "CAST(" + expr + " AS NUMERIC)"
		}
		return expr
	}
	return col
}

// floatEq compares a float field within its declared precision.
func (b *builder) floatEq(lhs string, fld modeldef.IField, op domains.Operator, value any) (string, error) {
	v, err := toFloat(value)
	if err != nil {
		return "", err
	}
	eps := math.Pow(10, -float64(fld.Precision()))
	if op == domains.OpEq {
		return "(" + lhs + " >= " + b.arg(v-eps) + " AND " + lhs + " <= " + b.arg(v+eps) + ")", nil
	}
	return "(" + lhs + " < " + b.arg(v-eps) + " OR " + lhs + " > " + b.arg(v+eps) + " OR " + lhs + " IS NULL)", nil
}

func (b *builder) inList(col string, ids []int64, negate bool) string {
	if len(ids) == 0 {
		if negate {
			return "TRUE"
		}
		return "FALSE"
	}
	phs := make([]string, len(ids))
	for i, id := range ids {
		phs[i] = b.arg(id)
	}
	if negate {
		return "(" + col + " NOT IN (" + strings.Join(phs, ", ") + ") OR " + col + " IS NULL)"
	}
	return col + " IN (" + strings.Join(phs, ", ") + ")"
}

// convArg converts a domain literal into the storage form of the field.
func (b *builder) convArg(fld modeldef.IField, value any) (any, error) {
	switch fld.Kind() {
	case modeldef.KindInteger, modeldef.KindMany2one:
		return toID(value)
	case modeldef.KindFloat:
		return toFloat(value)
	case modeldef.KindDecimal:
		d, err := toDecimal(value)
		if err != nil {
			return nil, err
		}
		_, scale := fld.Digits()
		return d.StringFixed(int32(scale)), nil
	case modeldef.KindDate:
		return toDateString(value, DateLayout)
	case modeldef.KindDatetime:
		return toDateString(value, DatetimeLayout)
	case modeldef.KindBoolean:
		bv, ok := value.(bool)
		if !ok {
			return nil, fmt.Errorf("expected bool, got %T", value)
		}
		return bv, nil
	}
	return fmt.Sprint(value), nil
}

// Storage layouts for temporal values, identical across dialects.
const (
	DateLayout     = "2006-01-02"
	DatetimeLayout = "2006-01-02 15:04:05"
)

func toID(v any) (int64, error) {
	switch t := v.(type) {
	case int64:
		return t, nil
	case int:
		return int64(t), nil
	case int32:
		return int64(t), nil
	case float64:
		return int64(t), nil
	}
	return 0, fmt.Errorf("expected record id, got %T", v)
}

func toIDList(v any) ([]int64, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case []int64:
		return t, nil
	case []any:
		out := make([]int64, 0, len(t))
		for _, item := range t {
			id, err := toID(item)
			if err != nil {
				return nil, err
			}
			out = append(out, id)
		}
		return out, nil
	default:
		id, err := toID(v)
		if err != nil {
			return nil, err
		}
		return []int64{id}, nil
	}
}

func toFloat(v any) (float64, error) {
	switch t := v.(type) {
	case float64:
		return t, nil
	case float32:
		return float64(t), nil
	case int64:
		return float64(t), nil
	case int:
		return float64(t), nil
	}
	return 0, fmt.Errorf("expected number, got %T", v)
}

func toDecimal(v any) (decimal.Decimal, error) {
	switch t := v.(type) {
	case decimal.Decimal:
		return t, nil
	case string:
		return decimal.NewFromString(t)
	case float64:
		return decimal.NewFromFloat(t), nil
	case int64:
		return decimal.NewFromInt(t), nil
	case int:
		return decimal.NewFromInt(int64(t)), nil
	}
	return decimal.Zero, fmt.Errorf("expected decimal, got %T", v)
}

func toDateString(v any, layout string) (string, error) {
	switch t := v.(type) {
	case string:
		return t, nil
	case time.Time:
		return t.UTC().Format(layout), nil
	}
	return "", fmt.Errorf("expected time, got %T", v)
}

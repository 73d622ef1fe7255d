/*
 * Copyright (c) 2024-present Entago, Ltd.
 */

package queries

import (
	"fmt"
	"strings"

	"github.com/entago/entago/pkg/domains"
)

// Aggregate is one aggregated output column of a grouped read.
type Aggregate struct {
	Name  string // output column name
	Fn    string // one of the dialect's closed aggregate set
	Field string // stored field, "" for count(*)
}

// GroupSpec describes one grouped read over an entity.
type GroupSpec struct {
	Domain     domains.Expr
	Rules      RuleContext
	GroupBy    []string
	Aggregates []Aggregate
	Limit      int
	Offset     int

	Locale  string
	Company int64
}

// CountColumn is the implicit per-group row count of every grouped read.
const CountColumn = "__count"

// ReadGroup compiles a grouped SELECT. Every GroupBy field must be a stored
// field of the entity; rows group on raw column values, relational grouping
// keys come back as ids.
func (c *Compiler) ReadGroup(entity string, spec GroupSpec) (Query, error) {
	e, err := c.reg.MustEntity(entity)
	if err != nil {
		return Query{}, err
	}

	effective := domains.Normalize(domains.And(spec.Domain, c.RuleDomain(entity, spec.Rules)))
	b := &builder{c: c, spec: Spec{Rules: spec.Rules, Locale: spec.Locale, Company: spec.Company}}
	cond, err := b.compile(effective, e, e.Table())
	if err != nil {
		return Query{}, err
	}

	groupCols := make([]string, len(spec.GroupBy))
	for i, name := range spec.GroupBy {
		fld, err := e.MustField(name)
		if err != nil {
			return Query{}, err
		}
		if !fld.Stored() {
			return Query{}, errUnsearchable(entity, name)
		}
		groupCols[i] = qi(e.Table()) + "." + qi(name)
	}

	sel := make([]string, 0, len(groupCols)+len(spec.Aggregates)+1)
	sel = append(sel, groupCols...)
	for _, agg := range spec.Aggregates {
		expr := "*"
		if agg.Field != "" {
			fld, err := e.MustField(agg.Field)
			if err != nil {
				return Query{}, err
			}
			if !fld.Stored() {
				return Query{}, errUnsearchable(entity, agg.Field)
			}
			expr = qi(e.Table()) + "." + qi(agg.Field)
		}
		rendered, ok := c.dialect.Aggregate(agg.Fn, expr)
		if !ok {
			return Query{}, fmt.Errorf("%w: aggregate «%s»", ErrBadOperator, agg.Fn)
		}
		sel = append(sel, rendered+" AS "+qi(agg.Name))
	}
	countExpr, _ := c.dialect.Aggregate("count", "*")
	sel = append(sel, countExpr+" AS "+qi(CountColumn))

	var sb strings.Builder
	sb.WriteString("SELECT ")
	sb.WriteString(strings.Join(sel, ", "))
	sb.WriteString(" FROM ")
	sb.WriteString(qi(e.Table()))
	for _, join := range b.joins {
		sb.WriteString(" ")
		sb.WriteString(join)
	}
	sb.WriteString(" WHERE ")
	sb.WriteString(cond)
	if len(groupCols) > 0 {
		sb.WriteString(" GROUP BY ")
		sb.WriteString(strings.Join(groupCols, ", "))
		sb.WriteString(" ORDER BY ")
		sb.WriteString(strings.Join(groupCols, ", "))
	}
	if spec.Limit > 0 {
		fmt.Fprintf(&sb, " LIMIT %d", spec.Limit)
	}
	if spec.Offset > 0 {
		fmt.Fprintf(&sb, " OFFSET %d", spec.Offset)
	}

	return Query{SQL: sb.String(), Args: b.args}, nil
}

/*
 * Copyright (c) 2024-present Entago, Ltd.
 */

package istorage

import (
	"fmt"
	"strings"
)

// Postgres is the PostgreSQL dialect.
var Postgres Dialect = pgDialect{}

// SQLite is the SQLite dialect. Drivers enable case_sensitive_like so that
// LIKE is case-sensitive and the ilike family lowers both sides.
var SQLite Dialect = sqliteDialect{}

type pgDialect struct{}

func (pgDialect) Name() string { return "postgres" }

func (pgDialect) Placeholder(n int) string { return fmt.Sprintf("$%d", n) }

func (pgDialect) Like(lhs, rhs string, caseInsensitive, negate bool) string {
	op := "LIKE"
	if caseInsensitive {
		op = "ILIKE"
	}
	if negate {
		op = "NOT " + op
	}
	return fmt.Sprintf("%s %s %s", lhs, op, rhs)
}

func (pgDialect) JSONText(column, key string) string {
	return fmt.Sprintf("%s->>'%s'", column, sqlEscape(key))
}

func (pgDialect) Aggregate(fn, expr string) (string, bool) {
	switch fn {
	case "count":
		return "count(" + expr + ")", true
	case "count_distinct":
		return "count(distinct " + expr + ")", true
	case "sum", "avg", "min", "max", "array_agg", "bool_and", "bool_or":
		return fn + "(" + expr + ")", true
	}
	return "", false
}

func (pgDialect) ForUpdate() string { return " FOR UPDATE" }

type sqliteDialect struct{}

func (sqliteDialect) Name() string { return "sqlite" }

func (sqliteDialect) Placeholder(int) string { return "?" }

func (sqliteDialect) Like(lhs, rhs string, caseInsensitive, negate bool) string {
	if caseInsensitive {
		lhs = "lower(" + lhs + ")"
		rhs = "lower(" + rhs + ")"
	}
	op := "LIKE"
	if negate {
		op = "NOT LIKE"
	}
	return fmt.Sprintf("%s %s %s", lhs, op, rhs)
}

func (sqliteDialect) JSONText(column, key string) string {
	return fmt.Sprintf("json_extract(%s, '$.%s')", column, sqlEscape(key))
}

func (sqliteDialect) Aggregate(fn, expr string) (string, bool) {
	switch fn {
	case "count":
		return "count(" + expr + ")", true
	case "count_distinct":
		return "count(distinct " + expr + ")", true
	case "sum", "avg", "min", "max":
		return fn + "(" + expr + ")", true
	case "array_agg":
		return "json_group_array(" + expr + ")", true
	case "bool_and":
		return "min(" + expr + ")", true
	case "bool_or":
		return "max(" + expr + ")", true
	}
	return "", false
}

func (sqliteDialect) ForUpdate() string { return "" }

// sqlEscape doubles single quotes for values interpolated into dialect
// fragments (JSON keys are registry- or environment-controlled, this is a
// second fence).
func sqlEscape(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}

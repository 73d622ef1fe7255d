/*
 * Copyright (c) 2024-present Entago, Ltd.
 */

// Package records is the record runtime: Environments bind a subject,
// locale and company to one storage transaction, RecordSets expose the
// entity operations over ordered id sets, and the write pipeline keeps
// stored computed fields, hierarchy paths and row rules consistent.
package records

import (
	"github.com/entago/entago/pkg/accessctl"
	"github.com/entago/entago/pkg/domains"
	"github.com/entago/entago/pkg/istorage"
	"github.com/entago/entago/pkg/modeldef"
	"github.com/entago/entago/pkg/queries"
)

// ComputeFunc recomputes one computed field for every record of the set and
// writes the results back through SetComputed.
type ComputeFunc func(rs RecordSet) error

// ConstraintFunc validates a declared constraint over the written records.
// A non-nil error rejects the whole write.
type ConstraintFunc func(rs RecordSet) error

// DefaultFunc produces the default value of a field for a new record.
type DefaultFunc func(env *Environment) (any, error)

// Config assembles an Engine.
type Config struct {
	Registry modeldef.IRegistry
	Storage  istorage.IStorage
	ACL      accessctl.IACL
	Rules    accessctl.IRuleSet

	Computes    map[string]ComputeFunc
	Constraints map[string]ConstraintFunc
	Defaults    map[string]DefaultFunc
	Searches    map[string]queries.SearchFunc

	// CanonicalLocale is the translation fallback, default "en".
	CanonicalLocale string
}

// SearchOptions tunes Search beyond the domain.
type SearchOptions struct {
	Order  string
	Limit  int
	Offset int
	Lock   bool
}

// NamePair is one id with its display name.
type NamePair struct {
	ID   int64
	Name string
}

// Group is one row of a grouped read: the grouping keys, the aggregates by
// output name, and the per-group record count.
type Group struct {
	Keys       map[string]any
	Aggregates map[string]any
	Count      int64
}

// FieldInfo is the introspection record of one field.
type FieldInfo struct {
	Name      string
	Kind      modeldef.Kind
	Label     string
	Required  bool
	Readonly  bool
	Stored    bool
	Translate bool
	Comodel   string
	Selection []modeldef.Option
	Domain    domains.Expr
}

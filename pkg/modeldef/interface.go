/*
 * Copyright (c) 2024-present Entago, Ltd.
 */

// Package modeldef compiles declarative model descriptions into an immutable
// registry of entities.
//
// Business modules declare entities through the builder API; the registry is
// built once per database at startup and is then shared read-only. Builders
// panic on declaration mistakes (they run at startup, before any request);
// Build returns joined validation errors.
package modeldef

import "github.com/entago/entago/pkg/domains"

// IRegistry is the canonical, immutable set of entities.
type IRegistry interface {
	// Entity returns an entity by name, nil when unknown.
	Entity(name string) IEntity

	// MustEntity returns an entity by name or an ErrUnknownEntity.
	MustEntity(name string) (IEntity, error)

	// Entities visits entities in declaration order.
	Entities(cb func(IEntity))

	// EntityCount returns the number of registered entities.
	EntityCount() int

	// LinkTables visits the many-to-many link tables of the registry,
	// ordered by table name.
	LinkTables(cb func(LinkTable))
}

// IEntity is a named record type with a schema.
type IEntity interface {
	Name() string
	Table() string

	// Field returns a field by name, nil when absent.
	Field(name string) IField

	// MustField returns a field by name or an ErrFieldResolution.
	MustField(name string) (IField, error)

	// Fields visits fields in declaration order, system fields first.
	Fields(cb func(IField))
	FieldCount() int

	// Order is the default search order ("name desc, id").
	Order() string

	// RecName is the display-name field ("name" when present, else "id").
	RecName() string

	// Delegates lists delegation inheritance parents as (parent entity,
	// reference field) pairs, in declaration order.
	Delegates() []Delegate

	// ParentField is the self-referential field backing child_of/parent_of,
	// empty when the entity is not hierarchical. Hierarchical entities carry
	// a materialized parent_path column.
	ParentField() string

	// Constraints lists the declared model constraints.
	Constraints() []Constraint

	// ResolvePath walks a dotted field path starting at this entity and
	// returns the fields of each segment. All segments but the last must be
	// relational.
	ResolvePath(path string) ([]IField, error)
}

// IField is a typed attribute of an entity, immutable after registry build.
type IField interface {
	Name() string
	Kind() Kind
	Label() string

	// Stored reports whether the field materializes as a table column
	// (scalar and to-one kinds, plus stored computed fields).
	Stored() bool

	Required() bool
	Readonly() bool
	Translate() bool
	CompanyDependent() bool
	Index() bool
	Unique() bool

	// IsSys reports registry-reserved fields (id, audit columns, parent_path).
	IsSys() bool

	// Computed fields.
	Compute() string    // bound compute function name, "" when plain
	Depends() []string  // declared dependency paths
	SearchFn() string   // bound search translator name, "" when unsearchable
	Related() string    // dotted path of a related field, "" otherwise

	// Relational attributes.
	Comodel() string         // related entity name
	InverseName() string     // one2many: the many2one on the comodel
	RelTable() string        // many2many link table
	Column1() string         // many2many: column referencing this entity
	Column2() string         // many2many: column referencing the comodel
	OnDelete() OnDelete      // to-one referential policy
	Domain() domains.Expr    // declared domain restriction on the relation

	// Kind parameters.
	Size() int              // char bound, 0 = unbounded
	Precision() int         // float digits after the point
	Digits() (int, int)     // decimal (precision, scale)
	Selection() []Option    // selection enumeration

	// Default returns the declared literal default and whether one exists.
	Default() (any, bool)
	// DefaultFn is a bound default function name, "" when none.
	DefaultFn() string
}

// Option is one (value, label) pair of a selection enumeration.
type Option struct {
	Value string
	Label string
}

// Delegate is one delegation-inheritance edge.
type Delegate struct {
	Parent   string // parent entity name
	RefField string // required many2one on the child referencing the parent row
}

// Constraint is a declared model constraint, checked by the write pipeline.
// The predicate itself is bound by name in the runtime configuration.
type Constraint struct {
	Name    string   // bound predicate name
	Fields  []string // fields whose write triggers the check
	Message string   // user-visible violation message
}

// LinkTable describes a many-to-many storage table.
type LinkTable struct {
	Table   string
	Column1 string // references the owning entity
	Column2 string // references the comodel
	Entity1 string
	Entity2 string
}

/*
 * Copyright (c) 2024-present Entago, Ltd.
 */

package modeldef

import (
	"fmt"

	"github.com/entago/entago/pkg/domains"
)

// # Implements:
//   - IField
type field struct {
	name       string
	kind       Kind
	label      string
	required   bool
	readonly   bool
	translate  bool
	companyDep bool
	index      bool
	unique     bool
	sys        bool

	stored       bool
	storedForced bool // computed field explicitly declared stored

	compute  string
	depends  []string
	searchFn string
	related  string

	comodel  string
	inverse  string
	relTable string
	column1  string
	column2  string
	onDelete OnDelete
	domain   domains.Expr

	size      int
	precision int
	digits    [2]int
	selection []Option

	defValue   any
	hasDefault bool
	defFn      string
}

func newField(name string, kind Kind, opts ...FieldOption) *field {
	f := &field{
		name:   name,
		kind:   kind,
		stored: kind.Scalar() || kind == KindMany2one,
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.compute != "" || f.related != "" {
		f.stored = f.storedForced
	}
	if f.label == "" {
		f.label = name
	}
	return f
}

func (f *field) Name() string           { return f.name }
func (f *field) Kind() Kind             { return f.kind }
func (f *field) Label() string          { return f.label }
func (f *field) Stored() bool           { return f.stored }
func (f *field) Required() bool         { return f.required }
func (f *field) Readonly() bool         { return f.readonly }
func (f *field) Translate() bool        { return f.translate }
func (f *field) CompanyDependent() bool { return f.companyDep }
func (f *field) Index() bool            { return f.index }
func (f *field) Unique() bool           { return f.unique }
func (f *field) IsSys() bool            { return f.sys }
func (f *field) Compute() string        { return f.compute }
func (f *field) Depends() []string      { return f.depends }
func (f *field) SearchFn() string       { return f.searchFn }
func (f *field) Related() string        { return f.related }
func (f *field) Comodel() string        { return f.comodel }
func (f *field) InverseName() string    { return f.inverse }
func (f *field) RelTable() string       { return f.relTable }
func (f *field) Column1() string        { return f.column1 }
func (f *field) Column2() string        { return f.column2 }
func (f *field) OnDelete() OnDelete     { return f.onDelete }
func (f *field) Domain() domains.Expr   { return f.domain }
func (f *field) Size() int              { return f.size }
func (f *field) Precision() int         { return f.precision }
func (f *field) Digits() (int, int)     { return f.digits[0], f.digits[1] }
func (f *field) Selection() []Option    { return f.selection }
func (f *field) DefaultFn() string      { return f.defFn }

func (f *field) Default() (any, bool) { return f.defValue, f.hasDefault }

func (f *field) String() string {
	return fmt.Sprintf("%s field «%s»", f.kind, f.name)
}

// FieldOption tunes a field declaration.
type FieldOption func(*field)

// Required marks the field as NOT NULL.
func Required(f *field) { f.required = true }

// Readonly rejects direct writes; computed fields are readonly unless an
// inverse function is bound in the runtime configuration.
func Readonly(f *field) { f.readonly = true }

// Translate stores the value per locale in a JSON column.
func Translate(f *field) { f.translate = true }

// CompanyDependent stores the value per company in a JSON column.
func CompanyDependent(f *field) { f.companyDep = true }

// Indexed declares a supporting index on the column.
func Indexed(f *field) { f.index = true }

// Unique declares a unique constraint on the column, implying an index.
func Unique(f *field) { f.unique = true; f.index = true }

// Stored materializes a computed or related field as a column kept fresh by
// the dependency graph.
func Stored(f *field) { f.storedForced = true }

// Label sets the user-visible string label.
func Label(label string) FieldOption {
	return func(f *field) { f.label = label }
}

// Size bounds a char field.
func Size(n int) FieldOption {
	return func(f *field) { f.size = n }
}

// Precision sets the float comparison precision (digits after the point).
func Precision(n int) FieldOption {
	return func(f *field) { f.precision = n }
}

// Digits sets decimal (precision, scale).
func Digits(precision, scale int) FieldOption {
	return func(f *field) { f.digits = [2]int{precision, scale} }
}

// Selection sets the enumeration of a selection field.
func Selection(options ...Option) FieldOption {
	return func(f *field) { f.selection = options }
}

// Default declares a literal default value.
func Default(v any) FieldOption {
	return func(f *field) { f.defValue = v; f.hasDefault = true }
}

// DefaultFn declares a default function by name; the function is bound in
// the runtime configuration.
func DefaultFn(name string) FieldOption {
	return func(f *field) { f.defFn = name }
}

// Compute declares the compute function name and the dependency paths it
// reads. The declaration is the sole source of dependency edges.
func Compute(name string, depends ...string) FieldOption {
	return func(f *field) { f.compute = name; f.depends = depends }
}

// Search binds a search translator to a non-stored computed field; without
// one, searching on the field fails.
func Search(name string) FieldOption {
	return func(f *field) { f.searchFn = name }
}

// OnDeletePolicy sets the referential policy of a to-one field.
func OnDeletePolicy(p OnDelete) FieldOption {
	return func(f *field) { f.onDelete = p }
}

// Domain restricts the admissible targets of a relational field.
func Domain(e domains.Expr) FieldOption {
	return func(f *field) { f.domain = e }
}

// clone returns a copy for inheritance merging.
func (f *field) clone() *field {
	c := *f
	c.depends = append([]string(nil), f.depends...)
	c.selection = append([]Option(nil), f.selection...)
	return &c
}

/*
 * Copyright (c) 2024-present Entago, Ltd.
 */

package modeldef

import (
	"fmt"
	"sort"
	"strings"
)

// Builder collects model declarations and compiles them into a registry.
//
// Declaration mistakes panic (declarations run once at startup); semantic
// problems that need the whole graph are reported by Build.
type Builder struct {
	decls   map[string]*EntityBuilder
	ordered []string
}

// New makes an empty model declaration builder.
func New() *Builder {
	return &Builder{decls: make(map[string]*EntityBuilder)}
}

// AddEntity declares a new entity.
//
// # Panics:
//   - if the name is empty or already declared.
func (b *Builder) AddEntity(name string, opts ...EntityOption) *EntityBuilder {
	if name == "" {
		panic(fmt.Errorf("empty entity name: %w", ErrInvalidDeclaration))
	}
	if _, dup := b.decls[name]; dup {
		panic(fmt.Errorf("entity «%s» already declared: %w", name, ErrInvalidDeclaration))
	}
	eb := &EntityBuilder{name: name}
	for _, opt := range opts {
		opt(eb)
	}
	b.decls[name] = eb
	b.ordered = append(b.ordered, name)
	return eb
}

// Extend reopens an earlier declaration; fields added here override earlier
// fields of the same name.
//
// # Panics:
//   - if the entity was not declared.
func (b *Builder) Extend(name string) *EntityBuilder {
	eb, ok := b.decls[name]
	if !ok {
		panic(fmt.Errorf("cannot extend undeclared entity «%s»: %w", name, ErrInvalidDeclaration))
	}
	return eb
}

// EntityOption tunes an entity declaration.
type EntityOption func(*EntityBuilder)

// Abstract marks the entity as a pure mixin: it is merged into its users and
// does not materialize in the registry.
func Abstract(eb *EntityBuilder) { eb.abstract = true }

// Table overrides the derived table name.
func Table(table string) EntityOption {
	return func(eb *EntityBuilder) { eb.table = table }
}

// Order sets the default search order key list.
func Order(order string) EntityOption {
	return func(eb *EntityBuilder) { eb.order = order }
}

// RecName sets the display-name field.
func RecName(name string) EntityOption {
	return func(eb *EntityBuilder) { eb.recName = name }
}

// EntityBuilder declares one entity.
type EntityBuilder struct {
	name        string
	table       string
	order       string
	recName     string
	abstract    bool
	mixins      []string
	delegates   []Delegate
	parentField string
	constraints []Constraint
	fields      []*field
}

// Mixin merges the fields and constraints of the named entities into this
// one (same table). Later fields override by name.
func (eb *EntityBuilder) Mixin(names ...string) *EntityBuilder {
	eb.mixins = append(eb.mixins, names...)
	return eb
}

// Delegate declares delegation inheritance: rows of this entity reference a
// parent row through refField and expose the parent's fields transparently.
func (eb *EntityBuilder) Delegate(parent, refField string) *EntityBuilder {
	eb.delegates = append(eb.delegates, Delegate{Parent: parent, RefField: refField})
	return eb
}

// SetParentField declares the self-referential hierarchy field; the entity
// gets a materialized parent_path column.
func (eb *EntityBuilder) SetParentField(name string) *EntityBuilder {
	eb.parentField = name
	return eb
}

// AddField declares a scalar field.
//
// # Panics:
//   - if name is empty or duplicate within this declaration block,
//   - if kind is relational (use the dedicated methods).
func (eb *EntityBuilder) AddField(name string, kind Kind, opts ...FieldOption) *EntityBuilder {
	if kind.Relational() {
		panic(fmt.Errorf("«%s»: use AddMany2one/AddOne2many/AddMany2many for relations: %w", name, ErrInvalidDeclaration))
	}
	eb.appendField(newField(name, kind, opts...))
	return eb
}

// AddMany2one declares a to-one relation stored as a foreign key column.
func (eb *EntityBuilder) AddMany2one(name, comodel string, opts ...FieldOption) *EntityBuilder {
	f := newField(name, KindMany2one, opts...)
	f.comodel = comodel
	eb.appendField(f)
	return eb
}

// AddOne2many declares the inverse of a to-one relation on the comodel.
func (eb *EntityBuilder) AddOne2many(name, comodel, inverse string, opts ...FieldOption) *EntityBuilder {
	f := newField(name, KindOne2many, opts...)
	f.comodel = comodel
	f.inverse = inverse
	f.stored = false
	eb.appendField(f)
	return eb
}

// AddMany2many declares a symmetric relation stored in a link table. The
// table and column names derive from the two entities unless overridden.
func (eb *EntityBuilder) AddMany2many(name, comodel string, opts ...FieldOption) *EntityBuilder {
	f := newField(name, KindMany2many, opts...)
	f.comodel = comodel
	f.stored = false
	eb.appendField(f)
	return eb
}

// RelTable overrides the link table naming of a many2many field.
func RelTable(table, column1, column2 string) FieldOption {
	return func(f *field) {
		f.relTable = table
		f.column1 = column1
		f.column2 = column2
	}
}

// AddRelated declares a field delegating to the terminal field of a dotted
// path; kind and parameters are resolved at build time.
func (eb *EntityBuilder) AddRelated(name, path string, opts ...FieldOption) *EntityBuilder {
	f := newField(name, KindNull, opts...)
	f.related = path
	f.stored = f.storedForced
	eb.appendField(f)
	return eb
}

// AddConstraint declares a model constraint; the predicate is bound by name
// in the runtime configuration.
func (eb *EntityBuilder) AddConstraint(name string, fields []string, message string) *EntityBuilder {
	eb.constraints = append(eb.constraints, Constraint{Name: name, Fields: fields, Message: message})
	return eb
}

func (eb *EntityBuilder) appendField(f *field) {
	if f.name == "" {
		panic(fmt.Errorf("%s: empty field name: %w", eb.name, ErrInvalidDeclaration))
	}
	if isReservedField(f.name) {
		panic(fmt.Errorf("%s: field name «%s» is reserved: %w", eb.name, f.name, ErrInvalidDeclaration))
	}
	if len(eb.fields) >= MaxEntityFieldCount {
		panic(fmt.Errorf("%s: maximum field count (%d) exceeded: %w", eb.name, MaxEntityFieldCount, ErrInvalidDeclaration))
	}
	eb.fields = append(eb.fields, f)
}

func isReservedField(name string) bool {
	switch name {
	case FieldID, FieldCreated, FieldUpdated, FieldParentPath:
		return true
	}
	return false
}

// Build compiles the declarations into an immutable registry: mixin chains
// are merged, delegation parents are exposed through generated related
// fields, hierarchy columns are added, and the whole graph is validated.
func (b *Builder) Build() (IRegistry, error) {
	reg := &registry{entities: make(map[string]*entity)}

	// merge mixin chains, abstract declarations do not materialize
	merged := make(map[string][]*field)
	state := make(map[string]int) // 0 unvisited, 1 visiting, 2 done
	var mergeFields func(name string) ([]*field, error)
	mergeFields = func(name string) ([]*field, error) {
		if ff, ok := merged[name]; ok {
			return ff, nil
		}
		eb, ok := b.decls[name]
		if !ok {
			return nil, errUnknownEntity(name)
		}
		switch state[name] {
		case 1:
			return nil, fmt.Errorf("%w through «%s»", ErrInheritanceCycle, name)
		case 2:
			return merged[name], nil
		}
		state[name] = 1
		var out []*field
		put := func(f *field) {
			for i := range out {
				if out[i].name == f.name {
					out[i] = f
					return
				}
			}
			out = append(out, f)
		}
		for _, mixin := range eb.mixins {
			mixed, err := mergeFields(mixin)
			if err != nil {
				return nil, err
			}
			for _, f := range mixed {
				put(f.clone())
			}
		}
		for _, f := range eb.fields {
			put(f)
		}
		state[name] = 2
		merged[name] = out
		return out, nil
	}

	for _, name := range b.ordered {
		eb := b.decls[name]
		if eb.abstract {
			continue
		}
		table := eb.table
		if table == "" {
			table = strings.ReplaceAll(name, ".", "_")
		}
		e := newEntity(reg, name, table)
		e.order = eb.order
		e.recName = eb.recName
		e.parentField = eb.parentField
		e.delegates = append([]Delegate(nil), eb.delegates...)

		e.putField(&field{name: FieldID, kind: KindInteger, label: "ID", stored: true, readonly: true, sys: true})
		e.putField(&field{name: FieldCreated, kind: KindDatetime, label: "Created on", stored: true, readonly: true, sys: true})
		e.putField(&field{name: FieldUpdated, kind: KindDatetime, label: "Last updated on", stored: true, readonly: true, sys: true})

		ff, err := mergeFields(name)
		if err != nil {
			return nil, err
		}
		for _, f := range ff {
			e.putField(f)
		}

		// constraints of mixins apply to the user entity
		for _, mixin := range collectMixins(b, eb, nil) {
			e.constraints = append(e.constraints, b.decls[mixin].constraints...)
		}
		e.constraints = append(e.constraints, eb.constraints...)

		if e.parentField != "" {
			e.putField(&field{name: FieldParentPath, kind: KindChar, label: "Parent path", stored: true, readonly: true, sys: true, index: true})
		}

		reg.entities[name] = e
		reg.ordered = append(reg.ordered, name)
	}

	if err := expandDelegates(reg); err != nil {
		return nil, err
	}
	if err := resolveRelated(reg); err != nil {
		return nil, err
	}
	if err := validate(reg); err != nil {
		return nil, err
	}

	collectLinkTables(reg)
	return reg, nil
}

func collectMixins(b *Builder, eb *EntityBuilder, acc []string) []string {
	for _, m := range eb.mixins {
		if mb, ok := b.decls[m]; ok {
			acc = collectMixins(b, mb, acc)
			acc = append(acc, m)
		}
	}
	return acc
}

// expandDelegates wires delegation inheritance: the reference field is
// required with cascade, and every parent field not shadowed by the child
// materializes as a related field through the reference.
func expandDelegates(reg *registry) error {
	// detect cycles in the delegation graph first
	state := make(map[string]int)
	var visit func(name string) error
	visit = func(name string) error {
		switch state[name] {
		case 1:
			return fmt.Errorf("%w: delegation through «%s»", ErrInheritanceCycle, name)
		case 2:
			return nil
		}
		state[name] = 1
		e, ok := reg.entities[name]
		if !ok {
			return errUnknownEntity(name)
		}
		for _, d := range e.delegates {
			if err := visit(d.Parent); err != nil {
				return err
			}
		}
		state[name] = 2
		return nil
	}
	for _, name := range reg.ordered {
		if err := visit(name); err != nil {
			return err
		}
	}

	// expand in topological order so grand-parent fields propagate
	done := make(map[string]bool)
	var expand func(name string) error
	expand = func(name string) error {
		if done[name] {
			return nil
		}
		done[name] = true
		e := reg.entities[name]
		for _, d := range e.delegates {
			if err := expand(d.Parent); err != nil {
				return err
			}
			parent, ok := reg.entities[d.Parent]
			if !ok {
				return errUnknownEntity(d.Parent)
			}
			ref, ok := e.fields[d.RefField]
			if !ok {
				ref = &field{name: d.RefField, kind: KindMany2one, label: d.RefField, stored: true, comodel: d.Parent}
				e.putField(ref)
			}
			ref.required = true
			ref.onDelete = OnDeleteCascade
			if ref.kind != KindMany2one || ref.comodel != d.Parent {
				return errDeclaration("%s: delegation field «%s» must be a many2one to «%s»", e.name, d.RefField, d.Parent)
			}
			for _, fn := range parent.fieldsOrdered {
				pf := parent.fields[fn]
				if pf.sys {
					continue
				}
				if _, shadowed := e.fields[fn]; shadowed {
					continue
				}
				rel := pf.clone()
				rel.related = d.RefField + "." + pf.name
				rel.stored = false
				rel.compute = ""
				rel.depends = nil
				e.putField(rel)
			}
		}
		return nil
	}
	for _, name := range reg.ordered {
		if err := expand(name); err != nil {
			return err
		}
	}
	return nil
}

// resolveRelated copies kind and parameters from the terminal field of each
// related path.
func resolveRelated(reg *registry) error {
	for _, name := range reg.ordered {
		e := reg.entities[name]
		for _, fn := range e.fieldsOrdered {
			f := e.fields[fn]
			if f.related == "" {
				continue
			}
			chain, err := e.ResolvePath(f.related)
			if err != nil {
				return fmt.Errorf("%s: related «%s»: %w", e.name, f.name, err)
			}
			term := chain[len(chain)-1].(*field)
			f.kind = term.kind
			f.comodel = term.comodel
			f.inverse = term.inverse
			f.size = term.size
			f.precision = term.precision
			f.digits = term.digits
			f.selection = append([]Option(nil), term.selection...)
			f.translate = f.translate || term.translate
			if f.stored {
				// stored related is a stored computed field depending on
				// its whole path
				f.depends = []string{f.related}
			}
		}
	}
	return nil
}

// collectLinkTables finalizes many2many storage naming and gathers the
// distinct link tables.
func collectLinkTables(reg *registry) {
	seen := make(map[string]bool)
	for _, name := range reg.ordered {
		e := reg.entities[name]
		for _, fn := range e.fieldsOrdered {
			f := e.fields[fn]
			if f.kind != KindMany2many {
				continue
			}
			co, ok := reg.entities[f.comodel]
			if !ok {
				continue // reported by validate
			}
			if f.relTable == "" {
				t1, t2 := e.table, co.table
				if t2 < t1 {
					t1, t2 = t2, t1
				}
				f.relTable = t1 + "_" + t2 + "_rel"
			}
			if f.column1 == "" {
				f.column1 = e.table + "_id"
			}
			if f.column2 == "" {
				f.column2 = co.table + "_id"
				if f.column2 == f.column1 {
					f.column2 = co.table + "_id2"
				}
			}
			if !seen[f.relTable] {
				seen[f.relTable] = true
				reg.links = append(reg.links, LinkTable{
					Table:   f.relTable,
					Column1: f.column1,
					Column2: f.column2,
					Entity1: e.name,
					Entity2: co.name,
				})
			}
		}
	}
	sort.Slice(reg.links, func(i, j int) bool { return reg.links[i].Table < reg.links[j].Table })
}

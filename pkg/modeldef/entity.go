/*
 * Copyright (c) 2024-present Entago, Ltd.
 */

package modeldef

import (
	"fmt"
	"strings"
)

// # Implements:
//   - IEntity
type entity struct {
	reg         *registry
	name        string
	table       string
	order       string
	recName     string
	parentField string
	delegates   []Delegate
	constraints []Constraint

	fields        map[string]*field
	fieldsOrdered []string
}

func newEntity(reg *registry, name, table string) *entity {
	return &entity{
		reg:    reg,
		name:   name,
		table:  table,
		fields: make(map[string]*field),
	}
}

func (e *entity) Name() string  { return e.name }
func (e *entity) Table() string { return e.table }

func (e *entity) Field(name string) IField {
	if f, ok := e.fields[name]; ok {
		return f
	}
	return nil
}

func (e *entity) MustField(name string) (IField, error) {
	if f, ok := e.fields[name]; ok {
		return f, nil
	}
	return nil, errFieldResolution(e.name, name)
}

func (e *entity) Fields(cb func(IField)) {
	for _, n := range e.fieldsOrdered {
		cb(e.fields[n])
	}
}

func (e *entity) FieldCount() int { return len(e.fieldsOrdered) }

func (e *entity) Order() string {
	if e.order == "" {
		return DefaultOrder
	}
	return e.order
}

func (e *entity) RecName() string {
	if e.recName != "" {
		return e.recName
	}
	if _, ok := e.fields[DefaultRecName]; ok {
		return DefaultRecName
	}
	return FieldID
}

func (e *entity) Delegates() []Delegate     { return e.delegates }
func (e *entity) ParentField() string       { return e.parentField }
func (e *entity) Constraints() []Constraint { return e.constraints }

func (e *entity) ResolvePath(path string) ([]IField, error) {
	segments := strings.Split(path, ".")
	out := make([]IField, 0, len(segments))
	cur := e
	for i, seg := range segments {
		f, ok := cur.fields[seg]
		if !ok {
			return nil, errFieldResolution(cur.name, seg)
		}
		out = append(out, f)
		if i == len(segments)-1 {
			break
		}
		if !f.kind.Relational() {
			return nil, fmt.Errorf("%w: «%s» is not relational in path «%s»", ErrFieldResolution, seg, path)
		}
		next, ok := e.reg.entities[f.comodel]
		if !ok {
			return nil, errUnknownEntity(f.comodel)
		}
		cur = next
	}
	return out, nil
}

func (e *entity) String() string { return fmt.Sprintf("entity «%s»", e.name) }

// putField appends or overrides a field, keeping the position of the first
// occurrence on override.
func (e *entity) putField(f *field) {
	if _, exists := e.fields[f.name]; !exists {
		e.fieldsOrdered = append(e.fieldsOrdered, f.name)
	}
	e.fields[f.name] = f
}

// # Implements:
//   - IRegistry
type registry struct {
	entities map[string]*entity
	ordered  []string
	links    []LinkTable
}

func (r *registry) Entity(name string) IEntity {
	if e, ok := r.entities[name]; ok {
		return e
	}
	return nil
}

func (r *registry) MustEntity(name string) (IEntity, error) {
	if e, ok := r.entities[name]; ok {
		return e, nil
	}
	return nil, errUnknownEntity(name)
}

func (r *registry) Entities(cb func(IEntity)) {
	for _, n := range r.ordered {
		cb(r.entities[n])
	}
}

func (r *registry) EntityCount() int { return len(r.ordered) }

func (r *registry) LinkTables(cb func(LinkTable)) {
	for _, lt := range r.links {
		cb(lt)
	}
}

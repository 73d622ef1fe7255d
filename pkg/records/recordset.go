/*
 * Copyright (c) 2024-present Entago, Ltd.
 */

package records

import (
	"fmt"
	"sort"

	"golang.org/x/exp/slices"

	"github.com/entago/entago/pkg/modeldef"
)

// RecordSet is an ordered, duplicate-free set of ids of one entity bound to
// an Environment. The zero RecordSet is empty and unusable; sets come from
// Environment.Set, Search or Browse.
type RecordSet struct {
	env    *Environment
	entity string
	ids    []int64
}

// Env returns the bound Environment.
func (rs RecordSet) Env() *Environment { return rs.env }

// Entity returns the entity name.
func (rs RecordSet) Entity() string { return rs.entity }

// IDs returns the ids in set order. The slice is shared, callers must not
// mutate it.
func (rs RecordSet) IDs() []int64 { return rs.ids }

// Len returns the number of records.
func (rs RecordSet) Len() int { return len(rs.ids) }

// IsEmpty reports an empty set.
func (rs RecordSet) IsEmpty() bool { return len(rs.ids) == 0 }

// ID returns the id of a singleton set.
func (rs RecordSet) ID() (int64, error) {
	if err := rs.EnsureOne(); err != nil {
		return 0, err
	}
	return rs.ids[0], nil
}

// EnsureOne fails unless the set holds exactly one record.
func (rs RecordSet) EnsureOne() error {
	if len(rs.ids) != 1 {
		return fmt.Errorf("%w: «%s» holds %d records", ErrSingleton, rs.entity, len(rs.ids))
	}
	return nil
}

// Browse returns the set of the given ids in the same Environment.
func (rs RecordSet) Browse(ids ...int64) RecordSet {
	return RecordSet{env: rs.env, entity: rs.entity, ids: dedupIDs(ids)}
}

// Record returns the singleton sub-set at position i.
func (rs RecordSet) Record(i int) RecordSet {
	return RecordSet{env: rs.env, entity: rs.entity, ids: rs.ids[i : i+1]}
}

// Each visits the records one by one as singleton sets.
func (rs RecordSet) Each(fn func(r RecordSet) error) error {
	for i := range rs.ids {
		if err := fn(rs.Record(i)); err != nil {
			return err
		}
	}
	return nil
}

// Chunks visits the records in sub-sets of at most size records, keeping the
// receiver's order. Batch processing over large sets goes through here so the
// prefetch window stays bounded.
func (rs RecordSet) Chunks(size int, fn func(chunk RecordSet) error) error {
	if size <= 0 {
		size = 1
	}
	for lo := 0; lo < len(rs.ids); lo += size {
		hi := lo + size
		if hi > len(rs.ids) {
			hi = len(rs.ids)
		}
		chunk := RecordSet{env: rs.env, entity: rs.entity, ids: rs.ids[lo:hi]}
		if err := fn(chunk); err != nil {
			return err
		}
	}
	return nil
}

// Union returns the records of both sets; order of the receiver first, then
// the new records of other in their order.
func (rs RecordSet) Union(other RecordSet) RecordSet {
	rs.mustSameSet(other)
	out := make([]int64, 0, len(rs.ids)+len(other.ids))
	seen := make(map[int64]struct{}, len(rs.ids))
	for _, id := range rs.ids {
		seen[id] = struct{}{}
		out = append(out, id)
	}
	for _, id := range other.ids {
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	return RecordSet{env: rs.env, entity: rs.entity, ids: out}
}

// Intersect keeps the receiver's records present in other, receiver order.
func (rs RecordSet) Intersect(other RecordSet) RecordSet {
	rs.mustSameSet(other)
	keep := idSet(other.ids)
	out := make([]int64, 0, len(rs.ids))
	for _, id := range rs.ids {
		if _, ok := keep[id]; ok {
			out = append(out, id)
		}
	}
	return RecordSet{env: rs.env, entity: rs.entity, ids: out}
}

// Difference drops the receiver's records present in other, receiver order.
func (rs RecordSet) Difference(other RecordSet) RecordSet {
	rs.mustSameSet(other)
	drop := idSet(other.ids)
	out := make([]int64, 0, len(rs.ids))
	for _, id := range rs.ids {
		if _, ok := drop[id]; !ok {
			out = append(out, id)
		}
	}
	return RecordSet{env: rs.env, entity: rs.entity, ids: out}
}

// Contains reports whether every record of other is in the receiver.
func (rs RecordSet) Contains(other RecordSet) bool {
	rs.mustSameSet(other)
	have := idSet(rs.ids)
	for _, id := range other.ids {
		if _, ok := have[id]; !ok {
			return false
		}
	}
	return true
}

// Equal reports set equality: same entity, same ids regardless of order.
// Order matters for iteration only.
func (rs RecordSet) Equal(other RecordSet) bool {
	if rs.entity != other.entity || len(rs.ids) != len(other.ids) {
		return false
	}
	have := idSet(rs.ids)
	for _, id := range other.ids {
		if _, ok := have[id]; !ok {
			return false
		}
	}
	return true
}

// SameOrder reports same entity, same ids, same order.
func (rs RecordSet) SameOrder(other RecordSet) bool {
	return rs.entity == other.entity && slices.Equal(rs.ids, other.ids)
}

// Filtered keeps the records the predicate accepts, preserving order.
func (rs RecordSet) Filtered(pred func(r RecordSet) (bool, error)) (RecordSet, error) {
	out := make([]int64, 0, len(rs.ids))
	for i := range rs.ids {
		ok, err := pred(rs.Record(i))
		if err != nil {
			return RecordSet{}, err
		}
		if ok {
			out = append(out, rs.ids[i])
		}
	}
	return RecordSet{env: rs.env, entity: rs.entity, ids: out}, nil
}

// Sorted returns a copy ordered by the key function (stable).
func (rs RecordSet) Sorted(less func(a, b RecordSet) bool) RecordSet {
	idx := make([]int, len(rs.ids))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(i, j int) bool {
		return less(rs.Record(idx[i]), rs.Record(idx[j]))
	})
	out := make([]int64, len(rs.ids))
	for i, j := range idx {
		out[i] = rs.ids[j]
	}
	return RecordSet{env: rs.env, entity: rs.entity, ids: out}
}

// Mapped collects field values of every record in set order. A relational
// field yields the union recordset instead, see MappedSet.
func (rs RecordSet) Mapped(field string) ([]any, error) {
	out := make([]any, len(rs.ids))
	for i, id := range rs.ids {
		v, err := rs.getField(id, field)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// MappedSet follows a relational field and returns the union of the
// targets, in first-seen order.
func (rs RecordSet) MappedSet(field string) (RecordSet, error) {
	fld, err := rs.mustEntity().MustField(field)
	if err != nil {
		return RecordSet{}, err
	}
	if !fld.Kind().Relational() {
		return RecordSet{}, errInvalidValue(rs.entity, field, "not relational")
	}
	target := rs.env.Set(fld.Comodel())
	for _, id := range rs.ids {
		v, err := rs.getField(id, field)
		if err != nil {
			return RecordSet{}, err
		}
		switch t := v.(type) {
		case nil:
		case int64:
			target = target.Union(rs.env.Set(fld.Comodel(), t))
		case []int64:
			target = target.Union(rs.env.Set(fld.Comodel(), t...))
		default:
			return RecordSet{}, errInvalidValue(rs.entity, field, v)
		}
	}
	return target, nil
}

func (rs RecordSet) mustSameSet(other RecordSet) {
	if other.entity != "" && other.entity != rs.entity {
		panic("recordset entity mismatch: " + rs.entity + " vs " + other.entity)
	}
}

func (rs RecordSet) mustEntity() modeldef.IEntity {
	return rs.env.engine().reg.Entity(rs.entity)
}

func idSet(ids []int64) map[int64]struct{} {
	out := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		out[id] = struct{}{}
	}
	return out
}

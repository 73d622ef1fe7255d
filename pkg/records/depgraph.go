/*
 * Copyright (c) 2024-present Entago, Ltd.
 */

package records

import (
	"fmt"
	"sort"
	"strings"

	"golang.org/x/exp/slices"

	"github.com/entago/entago/pkg/domains"
	"github.com/entago/entago/pkg/modeldef"
)

// dependency is one edge of the recompute graph: when trigger changes, the
// computed field must be recomputed for the records reached backwards
// through prefix.
type dependency struct {
	entity  string // entity owning the computed field
	field   string // the computed field
	prefix  string // relational path from entity to the trigger, "" = self
	trigger string // trigger entity
	source  string // trigger field
}

// depGraph indexes dependencies by (trigger entity, trigger field).
type depGraph struct {
	byTrigger map[string][]dependency
}

func depKey(entity, field string) string { return entity + "\x00" + field }

// buildDepGraph walks the declared dependency paths of every stored
// computed field and every stored related field. Each step of a path is a
// trigger: rewriting the relation itself recomputes just like rewriting the
// terminal field. Paths were validated at registry build.
func buildDepGraph(reg modeldef.IRegistry) *depGraph {
	g := &depGraph{byTrigger: make(map[string][]dependency)}
	reg.Entities(func(ent modeldef.IEntity) {
		ent.Fields(func(fld modeldef.IField) {
			if !fld.Stored() || (fld.Compute() == "" && fld.Related() == "") {
				return
			}
			for _, path := range fld.Depends() {
				chain, err := ent.ResolvePath(path)
				if err != nil {
					continue
				}
				segs := strings.Split(path, ".")
				trigger := ent.Name()
				for i, seg := range segs {
					dep := dependency{
						entity:  ent.Name(),
						field:   fld.Name(),
						prefix:  strings.Join(segs[:i], "."),
						trigger: trigger,
						source:  seg,
					}
					key := depKey(trigger, seg)
					g.byTrigger[key] = append(g.byTrigger[key], dep)
					if i < len(segs)-1 {
						trigger = chain[i].Comodel()
					}
				}
			}
		})
	})
	return g
}

// recomputeTodo is the per-transaction set of pending recomputations.
type recomputeTodo struct {
	pending  map[string]map[int64]struct{} // (entity,field) -> ids
	running  bool
	schedErr error
}

func newRecomputeTodo() *recomputeTodo {
	return &recomputeTodo{pending: make(map[string]map[int64]struct{})}
}

// maxRecomputePasses bounds chained recomputation depth; beyond it the
// dependency graph is considered cyclic.
const maxRecomputePasses = 100

// markModified schedules the dependents of the written fields. Affected
// records are resolved by searching backwards through the dependency
// prefix.
func (t *recomputeTodo) markModified(env *Environment, entity string, ids []int64, fields []string) {
	if len(ids) == 0 {
		return
	}
	g := env.engine().deps
	for _, field := range fields {
		for _, dep := range g.byTrigger[depKey(entity, field)] {
			t.schedule(env, dep, ids)
		}
	}
}

func (t *recomputeTodo) schedule(env *Environment, dep dependency, ids []int64) {
	affected := ids
	if dep.prefix != "" {
		idsAny := make([]any, len(ids))
		for i, id := range ids {
			idsAny[i] = id
		}
		found, err := env.Sudo().WithInactiveTest().Set(dep.entity).Search(
			domains.Leaf(dep.prefix, domains.OpIn, idsAny), SearchOptions{})
		if err != nil {
			if t.schedErr == nil {
				t.schedErr = fmt.Errorf("resolving dependents of %s.%s: %w",
					dep.entity, dep.field, err)
			}
			return
		}
		affected = found.IDs()
	}
	if len(affected) == 0 {
		return
	}
	key := depKey(dep.entity, dep.field)
	set, ok := t.pending[key]
	if !ok {
		set = make(map[int64]struct{})
		t.pending[key] = set
	}
	for _, id := range affected {
		set[id] = struct{}{}
		env.st.cache.invalidateField(dep.entity, id, dep.field)
	}
}

// isPending reports whether the record's field awaits recomputation.
func (t *recomputeTodo) isPending(entity, field string, id int64) bool {
	set, ok := t.pending[depKey(entity, field)]
	if !ok {
		return false
	}
	_, ok = set[id]
	return ok
}

// run drains the pending recomputations matched by keep (nil keeps all).
// Every matching key drains in one pass; computed fields writing into other
// computed fields' triggers chain across passes within the budget.
func (t *recomputeTodo) run(env *Environment, keep func(entity, field string) bool) error {
	if t.schedErr != nil {
		err := t.schedErr
		t.schedErr = nil
		return err
	}
	if t.running {
		return nil // a compute's own searches do not re-enter the drain
	}
	t.running = true
	defer func() { t.running = false }()
	for pass := 0; pass < maxRecomputePasses; pass++ {
		keys := make([]string, 0, len(t.pending))
		for key := range t.pending {
			entity, field, _ := strings.Cut(key, "\x00")
			if keep == nil || keep(entity, field) {
				keys = append(keys, key)
			}
		}
		if len(keys) == 0 {
			return nil
		}
		sort.Strings(keys)

		for _, key := range keys {
			set := t.pending[key]
			delete(t.pending, key)

			entity, field, _ := strings.Cut(key, "\x00")
			ids := make([]int64, 0, len(set))
			for id := range set {
				ids = append(ids, id)
			}
			slices.Sort(ids)

			// records unlinked since scheduling have nothing to recompute
			alive, err := env.Sudo().Set(entity, ids...).Exists()
			if err != nil {
				return err
			}
			if alive.IsEmpty() {
				continue
			}

			ent, err := env.engine().reg.MustEntity(entity)
			if err != nil {
				return err
			}
			fld, err := ent.MustField(field)
			if err != nil {
				return err
			}
			if fld.Compute() == "" {
				if err := materializeRelated(env, entity, fld, alive.IDs()); err != nil {
					return err
				}
				continue
			}
			fn := env.engine().computes[fld.Compute()]
			if err := fn(env.Sudo().Set(entity, alive.IDs()...)); err != nil {
				return err
			}
		}
		if t.schedErr != nil {
			err := t.schedErr
			t.schedErr = nil
			return err
		}
	}
	return fmt.Errorf("%w: recomputation did not settle", ErrCyclicRecompute)
}

// materializeRelated copies the terminal value of a stored related field
// into its column.
func materializeRelated(env *Environment, entity string, fld modeldef.IField, ids []int64) error {
	rs := env.Sudo().Set(entity, ids...)
	for _, id := range ids {
		v, err := rs.readRelated(id, fld)
		if err != nil {
			return err
		}
		col, err := toColumnValue(fld, v)
		if err != nil {
			return err
		}
		q, err := env.engine().compiler.Update(entity, []int64{id},
			map[string]any{fld.Name(): col})
		if err != nil {
			return err
		}
		if _, err := env.cursor().Execute(env.ctx(), q.SQL, q.Args...); err != nil {
			return err
		}
		env.st.cache.set(entity, id, fld.Name(), v)
		env.st.todo.markModified(env, entity, []int64{id}, []string{fld.Name()})
	}
	return nil
}

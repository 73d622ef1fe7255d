/*
 * Copyright (c) 2024-present Entago, Ltd.
 */

package records

import (
	"fmt"
	"strings"

	"golang.org/x/exp/slices"

	"github.com/entago/entago/pkg/accessctl"
	"github.com/entago/entago/pkg/domains"
	"github.com/entago/entago/pkg/modeldef"
)

// Get returns the value of a field of a singleton set, in cache form:
// scalars as Go values, to-one as int64 (nil when unset), to-many as
// []int64 in relation order.
func (rs RecordSet) Get(field string) (any, error) {
	id, err := rs.ID()
	if err != nil {
		return nil, err
	}
	return rs.getField(id, field)
}

// GetString returns a char/text/selection field value, "" when unset.
func (rs RecordSet) GetString(field string) (string, error) {
	v, err := rs.Get(field)
	if err != nil || v == nil {
		return "", err
	}
	s, ok := v.(string)
	if !ok {
		return "", errInvalidValue(rs.entity, field, v)
	}
	return s, nil
}

// GetSet follows a relational field of a singleton set.
func (rs RecordSet) GetSet(field string) (RecordSet, error) {
	if err := rs.EnsureOne(); err != nil {
		return RecordSet{}, err
	}
	return rs.MappedSet(field)
}

// Read returns one map per record, in set order, with the requested fields
// plus id. Nil fields means every non-system field.
func (rs RecordSet) Read(fields []string) ([]map[string]any, error) {
	if err := rs.env.check(rs.entity, accessctl.ModeRead); err != nil {
		return nil, err
	}
	if err := rs.checkReadRules(rs.ids); err != nil {
		return nil, err
	}
	ent := rs.mustEntity()
	if fields == nil {
		ent.Fields(func(f modeldef.IField) {
			if f.Name() != modeldef.FieldID {
				fields = append(fields, f.Name())
			}
		})
	}
	out := make([]map[string]any, len(rs.ids))
	for i, id := range rs.ids {
		row := make(map[string]any, len(fields)+1)
		row[modeldef.FieldID] = id
		for _, field := range fields {
			v, err := rs.getField(id, field)
			if err != nil {
				return nil, err
			}
			row[field] = v
		}
		out[i] = row
	}
	return out, nil
}

// NameGet returns the display names of the records, in set order.
func (rs RecordSet) NameGet() ([]NamePair, error) {
	ent := rs.mustEntity()
	out := make([]NamePair, len(rs.ids))
	for i, id := range rs.ids {
		v, err := rs.getField(id, ent.RecName())
		if err != nil {
			return nil, err
		}
		name := fmt.Sprint(v)
		if v == nil {
			name = fmt.Sprintf("%s,%d", rs.entity, id)
		}
		out[i] = NamePair{ID: id, Name: name}
	}
	return out, nil
}

// DefaultGet returns the default values of the fields for a new record.
// Nil fields means every field with a declared default.
func (rs RecordSet) DefaultGet(fields []string) (map[string]any, error) {
	ent := rs.mustEntity()
	pick := func(f modeldef.IField) (any, bool, error) {
		if fn := f.DefaultFn(); fn != "" {
			v, err := rs.env.engine().defaults[fn](rs.env)
			if err != nil {
				return nil, false, err
			}
			return v, true, nil
		}
		if v, ok := f.Default(); ok {
			return v, true, nil
		}
		return nil, false, nil
	}

	out := make(map[string]any)
	var firstErr error
	if fields == nil {
		ent.Fields(func(f modeldef.IField) {
			if firstErr != nil || f.IsSys() {
				return
			}
			if v, ok, err := pick(f); err != nil {
				firstErr = err
			} else if ok {
				out[f.Name()] = v
			}
		})
		return out, firstErr
	}
	for _, name := range fields {
		f, err := ent.MustField(name)
		if err != nil {
			return nil, err
		}
		if v, ok, err := pick(f); err != nil {
			return nil, err
		} else if ok {
			out[name] = v
		}
	}
	return out, nil
}

// FieldsGet returns the schema of the entity's fields.
func (rs RecordSet) FieldsGet() map[string]FieldInfo {
	out := make(map[string]FieldInfo)
	rs.mustEntity().Fields(func(f modeldef.IField) {
		out[f.Name()] = FieldInfo{
			Name:      f.Name(),
			Kind:      f.Kind(),
			Label:     f.Label(),
			Required:  f.Required(),
			Readonly:  f.Readonly() || f.IsSys(),
			Stored:    f.Stored(),
			Translate: f.Translate(),
			Comodel:   f.Comodel(),
			Selection: f.Selection(),
			Domain:    f.Domain(),
		}
	})
	return out
}

// getField resolves one field of one record, through the cache.
func (rs RecordSet) getField(id int64, field string) (any, error) {
	if err := rs.checkReadRules([]int64{id}); err != nil {
		return nil, err
	}
	ent := rs.mustEntity()
	fld, err := ent.MustField(field)
	if err != nil {
		return nil, err
	}

	switch {
	case fld.Related() != "" && !fld.Stored():
		return rs.readRelated(id, fld)
	case fld.Compute() != "" && !fld.Stored():
		if err := rs.ensureComputed(fld); err != nil {
			return nil, err
		}
	case fld.Kind() == modeldef.KindOne2many:
		return rs.readOne2many(id, fld)
	case fld.Kind() == modeldef.KindMany2many:
		return rs.readMany2many(id, fld)
	default:
		// a pending recomputation must land before the column is read
		if rs.env.st.todo.isPending(rs.entity, field, id) {
			if err := rs.env.Flush(); err != nil {
				return nil, err
			}
		}
		if err := rs.ensureFetched(id, field); err != nil {
			return nil, err
		}
	}

	v, ok := rs.env.st.cache.get(rs.entity, id, field)
	if !ok {
		return nil, nil
	}
	if loc, isLoc := v.(localized); isLoc {
		return rs.resolveLocalized(fld, loc), nil
	}
	return v, nil
}

func (rs RecordSet) resolveLocalized(fld modeldef.IField, loc localized) any {
	if fld.CompanyDependent() {
		return loc[fmt.Sprint(rs.env.company)]
	}
	if v, ok := loc[rs.env.locale]; ok && v != nil {
		return v
	}
	return loc[rs.env.engine().canonical]
}

// checkReadRules verifies the subject's read rules once per record and
// remembers the verdict for the rest of the transaction.
func (rs RecordSet) checkReadRules(ids []int64) error {
	env := rs.env
	if env.subject.Superuser || env.engine().rules == nil {
		return nil
	}
	key := strings.Join(env.subject.Groups, ",") + "\x00" + rs.entity
	seen, ok := env.st.ruleOK[key]
	if !ok {
		seen = make(map[int64]struct{})
		env.st.ruleOK[key] = seen
	}
	var unchecked []int64
	for _, id := range ids {
		if id <= 0 {
			continue // drafts never hit storage
		}
		if _, ok := seen[id]; !ok {
			unchecked = append(unchecked, id)
		}
	}
	if len(unchecked) == 0 {
		return nil
	}
	if err := rs.checkRules(unchecked, accessctl.ModeRead); err != nil {
		return err
	}
	for _, id := range unchecked {
		seen[id] = struct{}{}
	}
	return nil
}

// ensureFetched loads the simple stored columns of the record's prefetch
// batch into the cache.
func (rs RecordSet) ensureFetched(id int64, field string) error {
	if id <= 0 {
		return nil // drafts live in the cache only
	}
	cache := rs.env.st.cache
	if _, ok := cache.get(rs.entity, id, field); ok {
		return nil
	}
	cache.markPrefetch(rs.entity, rs.ids)

	ids := cache.prefetchIDs(rs.entity, []int64{id}, field)
	slices.Sort(ids)

	ent := rs.mustEntity()
	var cols []modeldef.IField
	ent.Fields(func(f modeldef.IField) {
		if f.Stored() && (f.Kind().Scalar() || f.Kind() == modeldef.KindMany2one) {
			cols = append(cols, f)
		}
	})

	dialect := rs.env.engine().storage.Dialect()
	names := make([]string, len(cols))
	for i, f := range cols {
		names[i] = `"` + f.Name() + `"`
	}
	phs := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, rid := range ids {
		phs[i] = dialect.Placeholder(i + 1)
		args[i] = rid
	}
	sql := fmt.Sprintf(`SELECT %s FROM "%s" WHERE "id" IN (%s)`,
		strings.Join(names, ", "), ent.Table(), strings.Join(phs, ", "))

	rows, err := rs.env.cursor().Query(rs.env.ctx(), sql, args...)
	if err != nil {
		return err
	}
	defer rows.Close()

	fetched := make(map[int64]struct{}, len(ids))
	for rows.Next() {
		dests := make([]any, len(cols))
		for i, f := range cols {
			dests[i] = scanDest(f)
		}
		if err := rows.Scan(dests...); err != nil {
			return err
		}
		var rid int64
		values := make(map[string]any, len(cols))
		for i, f := range cols {
			v, err := fromScan(f, dests[i])
			if err != nil {
				return err
			}
			if f.Name() == modeldef.FieldID {
				rid, _ = v.(int64)
			}
			values[f.Name()] = v
		}
		for name, v := range values {
			cache.set(rs.entity, rid, name, v)
		}
		fetched[rid] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return err
	}
	if _, ok := fetched[id]; !ok {
		return fmt.Errorf("%w: %s(%d)", ErrMissingRecord, rs.entity, id)
	}
	return nil
}

func (rs RecordSet) readOne2many(id int64, fld modeldef.IField) (any, error) {
	cache := rs.env.st.cache
	if v, ok := cache.get(rs.entity, id, fld.Name()); ok {
		return v, nil
	}
	if id <= 0 {
		return []int64(nil), nil
	}
	found, err := rs.env.Sudo().WithInactiveTest().Set(fld.Comodel()).Search(
		domains.Leaf(fld.InverseName(), domains.OpEq, id), SearchOptions{})
	if err != nil {
		return nil, err
	}
	ids := append([]int64(nil), found.IDs()...)
	cache.set(rs.entity, id, fld.Name(), ids)
	return ids, nil
}

func (rs RecordSet) readMany2many(id int64, fld modeldef.IField) (any, error) {
	cache := rs.env.st.cache
	if v, ok := cache.get(rs.entity, id, fld.Name()); ok {
		return v, nil
	}
	if id <= 0 {
		return []int64(nil), nil
	}
	q := rs.env.engine().compiler.LinkSelect(fld, []int64{id})
	rows, err := rs.env.cursor().Query(rs.env.ctx(), q.SQL, q.Args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var owner, target int64
		if err := rows.Scan(&owner, &target); err != nil {
			return nil, err
		}
		ids = append(ids, target)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	cache.set(rs.entity, id, fld.Name(), ids)
	return ids, nil
}

// readRelated follows the related path and returns the terminal value of
// the first reachable record.
func (rs RecordSet) readRelated(id int64, fld modeldef.IField) (any, error) {
	segs := strings.Split(fld.Related(), ".")
	cur := rs.Browse(id)
	for _, seg := range segs[:len(segs)-1] {
		next, err := cur.MappedSet(seg)
		if err != nil {
			return nil, err
		}
		if next.IsEmpty() {
			return nil, nil
		}
		cur = next.Record(0)
	}
	return cur.getField(cur.ids[0], segs[len(segs)-1])
}

// ensureComputed runs the compute function for the records of the set that
// miss the field.
func (rs RecordSet) ensureComputed(fld modeldef.IField) error {
	cache := rs.env.st.cache
	var missing []int64
	for _, id := range rs.ids {
		if _, ok := cache.get(rs.entity, id, fld.Name()); !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	fn := rs.env.engine().computes[fld.Compute()]
	return fn(rs.env.Sudo().Set(rs.entity, missing...))
}

// SetComputed stores a computed value for every record of the set. Stored
// computed fields also land in their column and cascade to their own
// dependents.
func (rs RecordSet) SetComputed(field string, v any) error {
	ent := rs.mustEntity()
	fld, err := ent.MustField(field)
	if err != nil {
		return err
	}
	if fld.Compute() == "" {
		return fmt.Errorf("%w: «%s.%s» is not computed", ErrInvalidValue, rs.entity, field)
	}
	cv, err := toCacheValue(rs.entity, fld, v)
	if err != nil {
		return err
	}
	for _, id := range rs.ids {
		rs.env.st.cache.set(rs.entity, id, field, cv)
	}
	if !fld.Stored() {
		return nil
	}
	var persisted []int64
	for _, id := range rs.ids {
		if id > 0 {
			persisted = append(persisted, id)
		}
	}
	if len(persisted) == 0 {
		return nil
	}
	col, err := toColumnValue(fld, cv)
	if err != nil {
		return err
	}
	q, err := rs.env.engine().compiler.Update(rs.entity, persisted, map[string]any{field: col})
	if err != nil {
		return err
	}
	if _, err := rs.env.cursor().Execute(rs.env.ctx(), q.SQL, q.Args...); err != nil {
		return err
	}
	rs.env.st.todo.markModified(rs.env, rs.entity, persisted, []string{field})
	return nil
}

// cacheRaw converts and stores a value for a draft or freshly created
// record, wrapping translated and company-dependent values under the active
// key.
func (rs RecordSet) cacheRaw(id int64, field string, v any) error {
	ent := rs.mustEntity()
	fld, err := ent.MustField(field)
	if err != nil {
		return err
	}
	cv, err := toCacheValue(rs.entity, fld, v)
	if err != nil {
		return err
	}
	cache := rs.env.st.cache
	if fld.Translate() || fld.CompanyDependent() {
		key := rs.env.locale
		if fld.CompanyDependent() {
			key = fmt.Sprint(rs.env.company)
		}
		loc, _ := cache.get(rs.entity, id, field)
		m, ok := loc.(localized)
		if !ok {
			m = localized{}
		}
		m[key] = cv
		cache.set(rs.entity, id, field, m)
		return nil
	}
	cache.set(rs.entity, id, field, cv)
	return nil
}

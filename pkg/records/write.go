/*
 * Copyright (c) 2024-present Entago, Ltd.
 */

package records

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/untillpro/goutils/logger"

	"github.com/entago/entago/pkg/accessctl"
	"github.com/entago/entago/pkg/domains"
	"github.com/entago/entago/pkg/modeldef"
	"github.com/entago/entago/pkg/queries"
)

// Create inserts one record with the given values over the declared
// defaults, runs the declared constraints and verifies the subject's create
// rules. The whole pipeline runs under a savepoint; a failing step leaves
// the transaction as it was.
func (rs RecordSet) Create(values map[string]any) (RecordSet, error) {
	if err := rs.env.check(rs.entity, accessctl.ModeCreate); err != nil {
		return RecordSet{}, err
	}
	merged, err := rs.DefaultGet(nil)
	if err != nil {
		return RecordSet{}, err
	}
	for k, v := range values {
		merged[k] = v
	}

	var created RecordSet
	err = rs.withSavepoint(func() error {
		var err error
		created, err = rs.doCreate(merged)
		return err
	})
	if err != nil {
		return RecordSet{}, err
	}
	return created, nil
}

func (rs RecordSet) doCreate(values map[string]any) (RecordSet, error) {
	ent := rs.mustEntity()
	plan, err := rs.splitValues(ent, values)
	if err != nil {
		return RecordSet{}, err
	}

	// delegation parents exist before the child row referencing them
	for _, d := range ent.Delegates() {
		if _, given := plan.columns[d.RefField]; given {
			continue
		}
		parent, err := rs.env.Sudo().Set(d.Parent).Create(plan.delegated[d.RefField])
		if err != nil {
			return RecordSet{}, err
		}
		id, err := parent.ID()
		if err != nil {
			return RecordSet{}, err
		}
		plan.columns[d.RefField] = id
	}

	for _, name := range requiredFields(ent) {
		if v, ok := plan.columns[name]; !ok || v == nil {
			return RecordSet{}, errMissingRequired(rs.entity, name)
		}
	}

	now := time.Now().UTC().Format(datetimeLayout)
	plan.columns[modeldef.FieldCreated] = now
	plan.columns[modeldef.FieldUpdated] = now

	cols, err := rs.columnValues(ent, plan.columns)
	if err != nil {
		return RecordSet{}, err
	}
	q, err := rs.env.engine().compiler.Insert(rs.entity, cols)
	if err != nil {
		return RecordSet{}, err
	}
	rows, err := rs.env.cursor().Query(rs.env.ctx(), q.SQL, q.Args...)
	if err != nil {
		return RecordSet{}, err
	}
	var id int64
	if rows.Next() {
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return RecordSet{}, err
		}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return RecordSet{}, err
	}
	rows.Close()

	created := rs.Browse(id)
	for name, v := range plan.columns {
		if err := created.cacheRaw(id, name, v); err != nil {
			return RecordSet{}, err
		}
	}

	if ent.ParentField() != "" {
		if err := created.initParentPath(ent, id, plan.columns[ent.ParentField()]); err != nil {
			return RecordSet{}, err
		}
	}

	for field, cmds := range plan.relations {
		if err := created.applyCommands(field, id, cmds); err != nil {
			return RecordSet{}, err
		}
	}

	written := make([]string, 0, len(plan.columns))
	for name := range plan.columns {
		written = append(written, name)
	}
	rs.env.st.todo.markModified(rs.env, rs.entity, []int64{id}, written)

	if err := created.runConstraints(ent, written); err != nil {
		return RecordSet{}, err
	}
	if err := created.checkRules([]int64{id}, accessctl.ModeCreate); err != nil {
		return RecordSet{}, err
	}
	if logger.IsVerbose() {
		logger.Verbose("created", rs.entity, "id", id)
	}
	return created, nil
}

// Write updates the records with the given values, applies relation
// commands, reruns triggered constraints and verifies the write rules over
// both the prior and the resulting rows.
func (rs RecordSet) Write(values map[string]any) error {
	if rs.IsEmpty() {
		return nil
	}
	if err := rs.env.check(rs.entity, accessctl.ModeWrite); err != nil {
		return err
	}
	for _, id := range rs.ids {
		if id <= 0 {
			return rs.writeDraft(values)
		}
	}
	if err := rs.checkRules(rs.ids, accessctl.ModeWrite); err != nil {
		return err
	}
	return rs.withSavepoint(func() error { return rs.doWrite(values) })
}

func (rs RecordSet) doWrite(values map[string]any) error {
	ent := rs.mustEntity()
	plan, err := rs.splitValues(ent, values)
	if err != nil {
		return err
	}

	// writes into delegated fields land on each record's parent row
	for refField, parentValues := range plan.delegated {
		if len(parentValues) == 0 {
			continue
		}
		parents, err := rs.MappedSet(refField)
		if err != nil {
			return err
		}
		if err := parents.Sudo().Write(parentValues); err != nil {
			return err
		}
	}

	for name, v := range plan.columns {
		fld, _ := ent.MustField(name)
		if v == nil && fld != nil && fld.Required() {
			return errMissingRequired(rs.entity, name)
		}
	}

	if pf := ent.ParentField(); pf != "" {
		if v, ok := plan.columns[pf]; ok {
			if err := rs.moveSubtrees(ent, v); err != nil {
				return err
			}
		}
	}

	if len(plan.columns) > 0 {
		plan.columns[modeldef.FieldUpdated] = time.Now().UTC().Format(datetimeLayout)
		if err := rs.writeColumns(ent, plan.columns); err != nil {
			return err
		}
	}

	for field, cmds := range plan.relations {
		for _, id := range rs.ids {
			if err := rs.applyCommands(field, id, cmds); err != nil {
				return err
			}
		}
	}

	written := make([]string, 0, len(plan.columns)+len(plan.relations))
	for name := range plan.columns {
		written = append(written, name)
	}
	for name := range plan.relations {
		written = append(written, name)
	}
	rs.env.st.todo.markModified(rs.env, rs.entity, rs.ids, written)

	if err := rs.runConstraints(ent, written); err != nil {
		return err
	}
	return rs.checkRules(rs.ids, accessctl.ModeWrite)
}

// writeDraft updates cache-only records.
func (rs RecordSet) writeDraft(values map[string]any) error {
	for _, id := range rs.ids {
		for field, v := range values {
			if err := rs.cacheRaw(id, field, v); err != nil {
				return err
			}
		}
	}
	return nil
}

// Unlink deletes the records, honoring incoming reference policies:
// restrict blocks, cascade deletes the referencing records, set null
// detaches them. Many-to-many links always go.
func (rs RecordSet) Unlink() error {
	if rs.IsEmpty() {
		return nil
	}
	if err := rs.env.check(rs.entity, accessctl.ModeUnlink); err != nil {
		return err
	}
	if err := rs.checkRules(rs.ids, accessctl.ModeUnlink); err != nil {
		return err
	}
	return rs.withSavepoint(rs.doUnlink)
}

func (rs RecordSet) doUnlink() error {
	env := rs.env
	reg := env.engine().reg

	// dependents recompute against the world without these records
	var stored []string
	rs.mustEntity().Fields(func(f modeldef.IField) {
		if f.Stored() {
			stored = append(stored, f.Name())
		}
	})
	env.st.todo.markModified(env, rs.entity, rs.ids, stored)

	var refErr error
	reg.Entities(func(other modeldef.IEntity) {
		if refErr != nil {
			return
		}
		other.Fields(func(f modeldef.IField) {
			if refErr != nil {
				return
			}
			switch f.Kind() {
			case modeldef.KindMany2one:
				if f.Comodel() != rs.entity || !f.Stored() {
					return
				}
				refErr = rs.resolveIncoming(other, f)
			case modeldef.KindMany2many:
				if f.Comodel() != rs.entity {
					return
				}
				refErr = rs.dropIncomingLinks(other, f)
			}
		})
	})
	if refErr != nil {
		return refErr
	}

	// outgoing many2many links
	rs.mustEntity().Fields(func(f modeldef.IField) {
		if refErr != nil || f.Kind() != modeldef.KindMany2many {
			return
		}
		for _, id := range rs.ids {
			q := env.engine().compiler.LinkDelete(f, id, 0)
			if _, err := env.cursor().Execute(env.ctx(), q.SQL, q.Args...); err != nil {
				refErr = err
				return
			}
		}
	})
	if refErr != nil {
		return refErr
	}

	q, err := env.engine().compiler.Delete(rs.entity, rs.ids)
	if err != nil {
		return err
	}
	if _, err := env.cursor().Execute(env.ctx(), q.SQL, q.Args...); err != nil {
		return err
	}
	for _, id := range rs.ids {
		env.st.cache.invalidateRecord(rs.entity, id)
	}
	return nil
}

func (rs RecordSet) resolveIncoming(other modeldef.IEntity, f modeldef.IField) error {
	idsAny := make([]any, len(rs.ids))
	for i, id := range rs.ids {
		idsAny[i] = id
	}
	refs, err := rs.env.Sudo().WithInactiveTest().Set(other.Name()).Search(
		domains.Leaf(f.Name(), domains.OpIn, idsAny), SearchOptions{})
	if err != nil {
		return err
	}
	if refs.IsEmpty() {
		return nil
	}
	switch f.OnDelete() {
	case modeldef.OnDeleteRestrict:
		return fmt.Errorf("%w: «%s.%s» still references «%s»",
			ErrConstraintViolation, other.Name(), f.Name(), rs.entity)
	case modeldef.OnDeleteCascade:
		if other.Name() == rs.entity {
			refs = refs.Difference(rs)
			if refs.IsEmpty() {
				return nil
			}
		}
		return refs.Sudo().Unlink()
	default:
		return refs.Sudo().Write(map[string]any{f.Name(): nil})
	}
}

func (rs RecordSet) dropIncomingLinks(other modeldef.IEntity, f modeldef.IField) error {
	dialect := rs.env.engine().storage.Dialect()
	phs := make([]string, len(rs.ids))
	args := make([]any, len(rs.ids))
	for i, id := range rs.ids {
		phs[i] = dialect.Placeholder(i + 1)
		args[i] = id
	}
	sql := fmt.Sprintf(`DELETE FROM "%s" WHERE "%s" IN (%s)`,
		f.RelTable(), f.Column2(), strings.Join(phs, ", "))
	if _, err := rs.env.cursor().Execute(rs.env.ctx(), sql, args...); err != nil {
		return err
	}
	rs.env.st.cache.invalidateEntityField(other.Name(), f.Name())
	return nil
}

// Sudo rebinds the set to a superuser variant of its Environment.
func (rs RecordSet) Sudo() RecordSet {
	return RecordSet{env: rs.env.Sudo(), entity: rs.entity, ids: rs.ids}
}

// valuePlan is a write's values split by destination.
type valuePlan struct {
	columns   map[string]any            // cache-form column values
	relations map[string][]Command      // to-many edits
	delegated map[string]map[string]any // refField to parent values
}

func (rs RecordSet) splitValues(ent modeldef.IEntity, values map[string]any) (valuePlan, error) {
	plan := valuePlan{
		columns:   make(map[string]any),
		relations: make(map[string][]Command),
		delegated: make(map[string]map[string]any),
	}
	for _, d := range ent.Delegates() {
		plan.delegated[d.RefField] = make(map[string]any)
	}

	for name, v := range values {
		fld, err := ent.MustField(name)
		if err != nil {
			return valuePlan{}, err
		}
		if fld.IsSys() {
			return valuePlan{}, fmt.Errorf("%w: «%s.%s»", ErrReadonlyField, rs.entity, name)
		}

		if rel := fld.Related(); rel != "" && !fld.Stored() {
			// delegated field: route to the parent record behind the
			// reference
			ref, rest, ok := strings.Cut(rel, ".")
			if parent, isDelegated := plan.delegated[ref]; ok && isDelegated && !strings.Contains(rest, ".") {
				parent[rest] = v
				continue
			}
			return valuePlan{}, fmt.Errorf("%w: «%s.%s»", ErrReadonlyField, rs.entity, name)
		}
		if fld.Compute() != "" {
			return valuePlan{}, fmt.Errorf("%w: «%s.%s» is computed", ErrReadonlyField, rs.entity, name)
		}
		if fld.Related() != "" {
			// stored related columns are kept fresh by the dependency graph
			return valuePlan{}, fmt.Errorf("%w: «%s.%s» is related", ErrReadonlyField, rs.entity, name)
		}

		switch fld.Kind() {
		case modeldef.KindOne2many, modeldef.KindMany2many:
			cmds, err := normalizeCommands(rs.entity, name, v)
			if err != nil {
				return valuePlan{}, err
			}
			plan.relations[name] = cmds
		default:
			cv, err := toCacheValue(rs.entity, fld, v)
			if err != nil {
				return valuePlan{}, err
			}
			plan.columns[name] = cv
		}
	}
	return plan, nil
}

func normalizeCommands(entity, field string, v any) ([]Command, error) {
	switch t := v.(type) {
	case nil:
		return []Command{Clear()}, nil
	case []Command:
		return t, nil
	case Command:
		return []Command{t}, nil
	case []int64:
		return []Command{Set(t...)}, nil
	case []any:
		out := make([]Command, len(t))
		for i, item := range t {
			cmd, ok := item.(Command)
			if !ok {
				return nil, errInvalidValue(entity, field, v)
			}
			out[i] = cmd
		}
		return out, nil
	}
	return nil, errInvalidValue(entity, field, v)
}

func requiredFields(ent modeldef.IEntity) []string {
	var out []string
	ent.Fields(func(f modeldef.IField) {
		if f.Required() && f.Stored() && !f.IsSys() && f.Compute() == "" && f.Related() == "" {
			out = append(out, f.Name())
		}
	})
	return out
}

// columnValues converts cache-form values into column values. Translated
// and company-dependent writes land under the active key over the stored
// map.
func (rs RecordSet) columnValues(ent modeldef.IEntity, values map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(values))
	for name, v := range values {
		fld, err := ent.MustField(name)
		if err != nil {
			return nil, err
		}
		if fld.Translate() || fld.CompanyDependent() {
			key := rs.env.locale
			if fld.CompanyDependent() {
				key = fmt.Sprint(rs.env.company)
			}
			v = localized{key: v}
		}
		col, err := toColumnValue(fld, v)
		if err != nil {
			return nil, err
		}
		out[name] = col
	}
	return out, nil
}

// writeColumns updates the columns for every record. Localized columns
// merge per record, plain columns go in one batch.
func (rs RecordSet) writeColumns(ent modeldef.IEntity, values map[string]any) error {
	plain := make(map[string]any)
	var localizedFields []modeldef.IField
	for name, v := range values {
		fld, err := ent.MustField(name)
		if err != nil {
			return err
		}
		if fld.Translate() || fld.CompanyDependent() {
			localizedFields = append(localizedFields, fld)
			continue
		}
		plain[name] = v
		for _, id := range rs.ids {
			rs.env.st.cache.set(rs.entity, id, name, v)
		}
	}

	if len(plain) > 0 {
		q, err := rs.env.engine().compiler.Update(rs.entity, rs.ids, plain)
		if err != nil {
			return err
		}
		if _, err := rs.env.cursor().Execute(rs.env.ctx(), q.SQL, q.Args...); err != nil {
			return err
		}
	}

	for _, fld := range localizedFields {
		key := rs.env.locale
		if fld.CompanyDependent() {
			key = fmt.Sprint(rs.env.company)
		}
		for _, id := range rs.ids {
			if err := rs.ensureFetched(id, fld.Name()); err != nil {
				return err
			}
			cur, _ := rs.env.st.cache.get(rs.entity, id, fld.Name())
			m, ok := cur.(localized)
			if !ok {
				m = localized{}
			}
			m[key] = values[fld.Name()]
			col, err := toColumnValue(fld, m)
			if err != nil {
				return err
			}
			q, err := rs.env.engine().compiler.Update(rs.entity, []int64{id}, map[string]any{fld.Name(): col})
			if err != nil {
				return err
			}
			if _, err := rs.env.cursor().Execute(rs.env.ctx(), q.SQL, q.Args...); err != nil {
				return err
			}
			rs.env.st.cache.set(rs.entity, id, fld.Name(), m)
		}
	}
	return nil
}

// withSavepoint runs fn inside a uniquely named savepoint, rolling back to
// it on failure.
func (rs RecordSet) withSavepoint(fn func() error) error {
	name := "sp_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	cur := rs.env.cursor()
	ctx := rs.env.ctx()
	if err := cur.Savepoint(ctx, name); err != nil {
		return err
	}
	if err := fn(); err != nil {
		if rbErr := cur.RollbackToSavepoint(ctx, name); rbErr != nil {
			logger.Error("rollback to savepoint:", rbErr)
		}
		return err
	}
	return cur.ReleaseSavepoint(ctx, name)
}

// checkRules verifies the ids survive the subject's rule domain for mode.
func (rs RecordSet) checkRules(ids []int64, mode accessctl.Mode) error {
	env := rs.env
	if env.subject.Superuser || env.engine().rules == nil {
		return nil
	}
	rd := env.engine().compiler.RuleDomain(rs.entity, env.ruleContext(mode))
	if rd == domains.TRUE {
		return nil
	}
	idsAny := make([]any, len(ids))
	for i, id := range ids {
		idsAny[i] = id
	}
	q, err := env.engine().compiler.Search(rs.entity, queries.Spec{
		Domain:  domains.Leaf(modeldef.FieldID, domains.OpIn, idsAny),
		Rules:   env.ruleContext(mode),
		Count:   true,
		Locale:  env.locale,
		Company: env.company,
	})
	if err != nil {
		return err
	}
	rows, err := env.cursor().Query(env.ctx(), q.SQL, q.Args...)
	if err != nil {
		return err
	}
	defer rows.Close()
	var n int64
	if rows.Next() {
		if err := rows.Scan(&n); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}
	if n != int64(len(ids)) {
		return accessctl.ErrAccessDenied(rs.entity, mode)
	}
	return nil
}

// runConstraints executes the declared constraints triggered by the
// written fields.
func (rs RecordSet) runConstraints(ent modeldef.IEntity, written []string) error {
	touched := make(map[string]struct{}, len(written))
	for _, name := range written {
		touched[name] = struct{}{}
	}
	for _, c := range ent.Constraints() {
		hit := len(c.Fields) == 0
		for _, f := range c.Fields {
			if _, ok := touched[f]; ok {
				hit = true
				break
			}
		}
		if !hit {
			continue
		}
		fn := rs.env.engine().constraints[c.Name]
		if err := fn(rs.Sudo()); err != nil {
			return fmt.Errorf("%w: %s: %w", ErrConstraintViolation, c.Message, err)
		}
	}
	return nil
}

// initParentPath writes the hierarchy path of a fresh record.
func (rs RecordSet) initParentPath(ent modeldef.IEntity, id int64, parent any) error {
	prefix := ""
	if pid, ok := parent.(int64); ok && pid > 0 {
		p, err := rs.Browse(pid).getField(pid, modeldef.FieldParentPath)
		if err != nil {
			return err
		}
		if s, ok := p.(string); ok {
			prefix = s
		}
	}
	path := prefix + strconv.FormatInt(id, 10) + "/"
	q, err := rs.env.engine().compiler.Update(rs.entity, []int64{id},
		map[string]any{modeldef.FieldParentPath: path})
	if err != nil {
		return err
	}
	if _, err := rs.env.cursor().Execute(rs.env.ctx(), q.SQL, q.Args...); err != nil {
		return err
	}
	rs.env.st.cache.set(rs.entity, id, modeldef.FieldParentPath, path)
	return nil
}

// moveSubtrees re-roots the hierarchy paths of the records and all of
// their descendants under the new parent.
func (rs RecordSet) moveSubtrees(ent modeldef.IEntity, newParent any) error {
	parentPrefix := ""
	if pid, ok := newParent.(int64); ok && pid > 0 {
		p, err := rs.Browse(pid).getField(pid, modeldef.FieldParentPath)
		if err != nil {
			return err
		}
		if s, ok := p.(string); ok {
			parentPrefix = s
		}
	}
	dialect := rs.env.engine().storage.Dialect()
	for _, id := range rs.ids {
		old, err := rs.getField(id, modeldef.FieldParentPath)
		if err != nil {
			return err
		}
		oldPath, _ := old.(string)
		if oldPath == "" {
			oldPath = strconv.FormatInt(id, 10) + "/"
		}
		newPath := parentPrefix + strconv.FormatInt(id, 10) + "/"
		if strings.HasPrefix(parentPrefix, oldPath) {
			return fmt.Errorf("%w: moving «%s»(%d) under its own descendant",
				ErrConstraintViolation, rs.entity, id)
		}
		if newPath == oldPath {
			continue
		}
		sql := fmt.Sprintf(
			`UPDATE "%s" SET "%s" = %s || substr("%s", %s) WHERE "%s" LIKE %s`,
			ent.Table(), modeldef.FieldParentPath,
			dialect.Placeholder(1), modeldef.FieldParentPath, dialect.Placeholder(2),
			modeldef.FieldParentPath, dialect.Placeholder(3))
		args := []any{newPath, len(oldPath) + 1, oldPath + "%"}
		if _, err := rs.env.cursor().Execute(rs.env.ctx(), sql, args...); err != nil {
			return err
		}
	}
	rs.env.st.cache.invalidateEntityField(rs.entity, modeldef.FieldParentPath)
	return nil
}

// applyCommands edits one to-many relation of one record.
func (rs RecordSet) applyCommands(field string, owner int64, cmds []Command) error {
	ent := rs.mustEntity()
	fld, err := ent.MustField(field)
	if err != nil {
		return err
	}
	if owner <= 0 {
		return fmt.Errorf("%w: relation edits on %s(%d)", ErrDraft, rs.entity, owner)
	}
	env := rs.env
	co := env.Sudo().Set(fld.Comodel())

	switch fld.Kind() {
	case modeldef.KindOne2many:
		for _, cmd := range cmds {
			if err := rs.applyOne2many(fld, co, owner, cmd); err != nil {
				return err
			}
		}
	case modeldef.KindMany2many:
		for _, cmd := range cmds {
			if err := rs.applyMany2many(fld, co, owner, cmd); err != nil {
				return err
			}
		}
	default:
		return errInvalidValue(rs.entity, field, "not a to-many field")
	}
	env.st.cache.invalidateField(rs.entity, owner, field)
	return nil
}

func (rs RecordSet) applyOne2many(fld modeldef.IField, co RecordSet, owner int64, cmd Command) error {
	inverse := fld.InverseName()
	switch cmd.Code {
	case CmdCreate:
		values := make(map[string]any, len(cmd.Values)+1)
		for k, v := range cmd.Values {
			values[k] = v
		}
		values[inverse] = owner
		_, err := co.Create(values)
		return err
	case CmdUpdate:
		return co.Browse(cmd.ID).Write(cmd.Values)
	case CmdDelete:
		return co.Browse(cmd.ID).Unlink()
	case CmdUnlink:
		return co.Browse(cmd.ID).Write(map[string]any{inverse: nil})
	case CmdLink:
		return co.Browse(cmd.ID).Write(map[string]any{inverse: owner})
	case CmdClear, CmdSet:
		current, err := co.Search(domains.Leaf(inverse, domains.OpEq, owner), SearchOptions{})
		if err != nil {
			return err
		}
		keep := idSet(cmd.IDs)
		for _, id := range current.IDs() {
			if _, ok := keep[id]; ok {
				continue
			}
			if err := co.Browse(id).Write(map[string]any{inverse: nil}); err != nil {
				return err
			}
		}
		for _, id := range cmd.IDs {
			if err := co.Browse(id).Write(map[string]any{inverse: owner}); err != nil {
				return err
			}
		}
		return nil
	}
	return errInvalidValue(rs.entity, fld.Name(), cmd.Code)
}

func (rs RecordSet) applyMany2many(fld modeldef.IField, co RecordSet, owner int64, cmd Command) error {
	env := rs.env
	link := func(id int64) error {
		q := env.engine().compiler.LinkDelete(fld, owner, id)
		if _, err := env.cursor().Execute(env.ctx(), q.SQL, q.Args...); err != nil {
			return err
		}
		q = env.engine().compiler.LinkInsert(fld, owner, id)
		_, err := env.cursor().Execute(env.ctx(), q.SQL, q.Args...)
		return err
	}
	clear := func() error {
		q := env.engine().compiler.LinkDelete(fld, owner, 0)
		_, err := env.cursor().Execute(env.ctx(), q.SQL, q.Args...)
		return err
	}

	switch cmd.Code {
	case CmdCreate:
		created, err := co.Create(cmd.Values)
		if err != nil {
			return err
		}
		id, err := created.ID()
		if err != nil {
			return err
		}
		return link(id)
	case CmdUpdate:
		return co.Browse(cmd.ID).Write(cmd.Values)
	case CmdDelete:
		q := env.engine().compiler.LinkDelete(fld, owner, cmd.ID)
		if _, err := env.cursor().Execute(env.ctx(), q.SQL, q.Args...); err != nil {
			return err
		}
		return co.Browse(cmd.ID).Unlink()
	case CmdUnlink:
		q := env.engine().compiler.LinkDelete(fld, owner, cmd.ID)
		_, err := env.cursor().Execute(env.ctx(), q.SQL, q.Args...)
		return err
	case CmdLink:
		return link(cmd.ID)
	case CmdClear:
		return clear()
	case CmdSet:
		if err := clear(); err != nil {
			return err
		}
		for _, id := range cmd.IDs {
			q := env.engine().compiler.LinkInsert(fld, owner, id)
			if _, err := env.cursor().Execute(env.ctx(), q.SQL, q.Args...); err != nil {
				return err
			}
		}
		return nil
	}
	return errInvalidValue(rs.entity, fld.Name(), cmd.Code)
}

/*
 * Copyright (c) 2024-present Entago, Ltd.
 */

package records

import (
	"fmt"
	"strings"

	"github.com/entago/entago/pkg/accessctl"
	"github.com/entago/entago/pkg/domains"
	"github.com/entago/entago/pkg/modeldef"
	"github.com/entago/entago/pkg/queries"
)

// Search returns the records matching the domain, honoring the subject's
// row rules, in the requested or declared order. Pending recomputations are
// flushed first so the search sees its own transaction's writes.
func (rs RecordSet) Search(domain domains.Expr, opts SearchOptions) (RecordSet, error) {
	if err := rs.env.check(rs.entity, accessctl.ModeRead); err != nil {
		return RecordSet{}, err
	}
	if err := rs.env.Flush(); err != nil {
		return RecordSet{}, err
	}
	q, err := rs.env.engine().compiler.Search(rs.entity, queries.Spec{
		Domain:  rs.activeFilter(domain),
		Rules:   rs.env.ruleContext(accessctl.ModeRead),
		Order:   opts.Order,
		Limit:   opts.Limit,
		Offset:  opts.Offset,
		Lock:    opts.Lock,
		Locale:  rs.env.locale,
		Company: rs.env.company,
	})
	if err != nil {
		return RecordSet{}, err
	}
	ids, err := rs.queryIDs(q)
	if err != nil {
		return RecordSet{}, err
	}
	rs.env.st.cache.markPrefetch(rs.entity, ids)
	return RecordSet{env: rs.env, entity: rs.entity, ids: ids}, nil
}

// SearchCount returns the number of matching records.
func (rs RecordSet) SearchCount(domain domains.Expr) (int64, error) {
	if err := rs.env.check(rs.entity, accessctl.ModeRead); err != nil {
		return 0, err
	}
	if err := rs.env.Flush(); err != nil {
		return 0, err
	}
	q, err := rs.env.engine().compiler.Search(rs.entity, queries.Spec{
		Domain:  rs.activeFilter(domain),
		Rules:   rs.env.ruleContext(accessctl.ModeRead),
		Count:   true,
		Locale:  rs.env.locale,
		Company: rs.env.company,
	})
	if err != nil {
		return 0, err
	}
	rows, err := rs.env.cursor().Query(rs.env.ctx(), q.SQL, q.Args...)
	if err != nil {
		return 0, err
	}
	defer rows.Close()
	var n int64
	if rows.Next() {
		if err := rows.Scan(&n); err != nil {
			return 0, err
		}
	}
	return n, rows.Err()
}

// SearchRead searches and reads in one call.
func (rs RecordSet) SearchRead(domain domains.Expr, fields []string, opts SearchOptions) ([]map[string]any, error) {
	found, err := rs.Search(domain, opts)
	if err != nil {
		return nil, err
	}
	return found.Read(fields)
}

// Exists returns the subset of the receiver's ids present in the database.
// Draft ids never exist.
func (rs RecordSet) Exists() (RecordSet, error) {
	var stored []int64
	for _, id := range rs.ids {
		if id > 0 {
			stored = append(stored, id)
		}
	}
	if len(stored) == 0 {
		return rs.Browse(), nil
	}
	ent := rs.mustEntity()
	dialect := rs.env.engine().storage.Dialect()
	phs := make([]string, len(stored))
	args := make([]any, len(stored))
	for i, id := range stored {
		phs[i] = dialect.Placeholder(i + 1)
		args[i] = id
	}
	sql := fmt.Sprintf(`SELECT "id" FROM "%s" WHERE "id" IN (%s)`, ent.Table(), strings.Join(phs, ", "))
	rows, err := rs.env.cursor().Query(rs.env.ctx(), sql, args...)
	if err != nil {
		return RecordSet{}, err
	}
	defer rows.Close()
	alive := make(map[int64]struct{}, len(stored))
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return RecordSet{}, err
		}
		alive[id] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return RecordSet{}, err
	}
	out := make([]int64, 0, len(stored))
	for _, id := range rs.ids {
		if _, ok := alive[id]; ok {
			out = append(out, id)
		}
	}
	return rs.Browse(out...), nil
}

// NameSearch finds records whose display name matches, case-insensitively.
func (rs RecordSet) NameSearch(name string, limit int) ([]NamePair, error) {
	ent := rs.mustEntity()
	domain := domains.TRUE
	if name != "" {
		domain = domains.Leaf(ent.RecName(), domains.OpILike, name)
	}
	found, err := rs.Search(domain, SearchOptions{Limit: limit})
	if err != nil {
		return nil, err
	}
	return found.NameGet()
}

// ReadGroup groups matching records and aggregates over them.
func (rs RecordSet) ReadGroup(domain domains.Expr, groupBy []string, aggregates []queries.Aggregate) ([]Group, error) {
	if err := rs.env.check(rs.entity, accessctl.ModeRead); err != nil {
		return nil, err
	}
	if err := rs.env.Flush(); err != nil {
		return nil, err
	}
	ent := rs.mustEntity()
	q, err := rs.env.engine().compiler.ReadGroup(rs.entity, queries.GroupSpec{
		Domain:     rs.activeFilter(domain),
		Rules:      rs.env.ruleContext(accessctl.ModeRead),
		GroupBy:    groupBy,
		Aggregates: aggregates,
		Locale:     rs.env.locale,
		Company:    rs.env.company,
	})
	if err != nil {
		return nil, err
	}
	rows, err := rs.env.cursor().Query(rs.env.ctx(), q.SQL, q.Args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	keyFields := make([]modeldef.IField, len(groupBy))
	for i, name := range groupBy {
		f, err := ent.MustField(name)
		if err != nil {
			return nil, err
		}
		keyFields[i] = f
	}

	var out []Group
	for rows.Next() {
		dests := make([]any, 0, len(groupBy)+len(aggregates)+1)
		for _, f := range keyFields {
			dests = append(dests, scanDest(f))
		}
		for range aggregates {
			dests = append(dests, new(any))
		}
		var count int64
		dests = append(dests, &count)
		if err := rows.Scan(dests...); err != nil {
			return nil, err
		}
		g := Group{
			Keys:       make(map[string]any, len(groupBy)),
			Aggregates: make(map[string]any, len(aggregates)),
			Count:      count,
		}
		for i, f := range keyFields {
			v, err := fromScan(f, dests[i])
			if err != nil {
				return nil, err
			}
			g.Keys[f.Name()] = v
		}
		for i, agg := range aggregates {
			g.Aggregates[agg.Name] = *dests[len(groupBy)+i].(*any)
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

// activeFilter hides archived records unless the view tests inactive ones
// or the domain already decides on the active field.
func (rs RecordSet) activeFilter(domain domains.Expr) domains.Expr {
	if rs.env.inactiveTest {
		return domain
	}
	ent := rs.mustEntity()
	active := ent.Field("active")
	if active == nil || active.Kind() != modeldef.KindBoolean {
		return domain
	}
	for _, f := range domains.Fields(domain) {
		if f == "active" || strings.HasPrefix(f, "active.") {
			return domain
		}
	}
	return domains.And(domain, domains.Leaf("active", domains.OpEq, true))
}

// queryIDs runs a compiled id select.
func (rs RecordSet) queryIDs(q queries.Query) ([]int64, error) {
	rows, err := rs.env.cursor().Query(rs.env.ctx(), q.SQL, q.Args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

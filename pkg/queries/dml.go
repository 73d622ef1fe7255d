/*
 * Copyright (c) 2024-present Entago, Ltd.
 */

package queries

import (
	"fmt"
	"sort"
	"strings"

	"github.com/entago/entago/pkg/modeldef"
)

// Insert builds an INSERT for one row. Column order is deterministic so the
// statement text is stable for identical column sets. The statement returns
// the new row id.
func (c *Compiler) Insert(entity string, values map[string]any) (Query, error) {
	e, err := c.reg.MustEntity(entity)
	if err != nil {
		return Query{}, err
	}
	cols := make([]string, 0, len(values))
	for col := range values {
		cols = append(cols, col)
	}
	sort.Strings(cols)

	names := make([]string, len(cols))
	phs := make([]string, len(cols))
	args := make([]any, len(cols))
	for i, col := range cols {
		if _, err := e.MustField(col); err != nil {
			return Query{}, err
		}
		names[i] = qi(col)
		phs[i] = c.dialect.Placeholder(i + 1)
		args[i] = values[col]
	}

	sql := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING %s",
		qi(e.Table()), strings.Join(names, ", "), strings.Join(phs, ", "), qi(modeldef.FieldID))
	return Query{SQL: sql, Args: args}, nil
}

// Update builds an UPDATE of the given columns for a set of ids.
func (c *Compiler) Update(entity string, ids []int64, values map[string]any) (Query, error) {
	e, err := c.reg.MustEntity(entity)
	if err != nil {
		return Query{}, err
	}
	if len(ids) == 0 || len(values) == 0 {
		return Query{}, nil
	}
	cols := make([]string, 0, len(values))
	for col := range values {
		cols = append(cols, col)
	}
	sort.Strings(cols)

	var args []any
	sets := make([]string, len(cols))
	for i, col := range cols {
		if _, err := e.MustField(col); err != nil {
			return Query{}, err
		}
		args = append(args, values[col])
		sets[i] = qi(col) + " = " + c.dialect.Placeholder(len(args))
	}
	phs := make([]string, len(ids))
	for i, id := range ids {
		args = append(args, id)
		phs[i] = c.dialect.Placeholder(len(args))
	}

	sql := fmt.Sprintf("UPDATE %s SET %s WHERE %s IN (%s)",
		qi(e.Table()), strings.Join(sets, ", "), qi(modeldef.FieldID), strings.Join(phs, ", "))
	return Query{SQL: sql, Args: args}, nil
}

// Delete builds a DELETE for a set of ids.
func (c *Compiler) Delete(entity string, ids []int64) (Query, error) {
	e, err := c.reg.MustEntity(entity)
	if err != nil {
		return Query{}, err
	}
	if len(ids) == 0 {
		return Query{}, nil
	}
	args := make([]any, len(ids))
	phs := make([]string, len(ids))
	for i, id := range ids {
		args[i] = id
		phs[i] = c.dialect.Placeholder(i + 1)
	}
	sql := fmt.Sprintf("DELETE FROM %s WHERE %s IN (%s)",
		qi(e.Table()), qi(modeldef.FieldID), strings.Join(phs, ", "))
	return Query{SQL: sql, Args: args}, nil
}

// LinkInsert builds the INSERT into a many2many link table.
func (c *Compiler) LinkInsert(fld modeldef.IField, ownerID, targetID int64) Query {
	sql := fmt.Sprintf("INSERT INTO %s (%s, %s) VALUES (%s, %s)",
		qi(fld.RelTable()), qi(fld.Column1()), qi(fld.Column2()),
		c.dialect.Placeholder(1), c.dialect.Placeholder(2))
	return Query{SQL: sql, Args: []any{ownerID, targetID}}
}

// LinkDelete builds the DELETE from a many2many link table. With targetID 0
// every link of the owner is removed.
func (c *Compiler) LinkDelete(fld modeldef.IField, ownerID, targetID int64) Query {
	if targetID == 0 {
		sql := fmt.Sprintf("DELETE FROM %s WHERE %s = %s",
			qi(fld.RelTable()), qi(fld.Column1()), c.dialect.Placeholder(1))
		return Query{SQL: sql, Args: []any{ownerID}}
	}
	sql := fmt.Sprintf("DELETE FROM %s WHERE %s = %s AND %s = %s",
		qi(fld.RelTable()), qi(fld.Column1()), c.dialect.Placeholder(1),
		qi(fld.Column2()), c.dialect.Placeholder(2))
	return Query{SQL: sql, Args: []any{ownerID, targetID}}
}

// LinkSelect builds the SELECT of link targets for a set of owners, ordered
// by owner then target for deterministic recordset order.
func (c *Compiler) LinkSelect(fld modeldef.IField, ownerIDs []int64) Query {
	phs := make([]string, len(ownerIDs))
	args := make([]any, len(ownerIDs))
	for i, id := range ownerIDs {
		args[i] = id
		phs[i] = c.dialect.Placeholder(i + 1)
	}
	sql := fmt.Sprintf("SELECT %s, %s FROM %s WHERE %s IN (%s) ORDER BY %s, %s",
		qi(fld.Column1()), qi(fld.Column2()), qi(fld.RelTable()),
		qi(fld.Column1()), strings.Join(phs, ", "),
		qi(fld.Column1()), qi(fld.Column2()))
	return Query{SQL: sql, Args: args}
}

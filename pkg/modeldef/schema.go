/*
 * Copyright (c) 2024-present Entago, Ltd.
 */

package modeldef

import (
	"fmt"
	"strings"
)

// DDLDialect selects the SQL flavor of generated schema statements.
type DDLDialect uint8

const (
	DDLPostgres DDLDialect = iota
	DDLSQLite
)

// Column is one column of a table schema.
type Column struct {
	Name     string
	SQLType  string
	NotNull  bool
	Unique   bool
	RefTable string // foreign key target table, "" when none
	OnDelete string // SQL referential action for RefTable
}

// TableDef is the computed storage schema of one entity.
type TableDef struct {
	Name    string
	Columns []Column
	Indexes []string // indexed column names (unique ones excluded)
}

// TableSchema computes the table definition of an entity: one column per
// stored field, translated and company-dependent fields as JSON columns.
func TableSchema(reg IRegistry, e IEntity, dialect DDLDialect) TableDef {
	td := TableDef{Name: e.Table()}
	e.Fields(func(fld IField) {
		if !fld.Stored() {
			return
		}
		col := Column{
			Name:    fld.Name(),
			SQLType: columnType(fld, dialect),
			NotNull: fld.Required() || fld.Name() == FieldID,
			Unique:  fld.Unique(),
		}
		if fld.Kind() == KindMany2one && !fld.Translate() {
			if target := reg.Entity(fld.Comodel()); target != nil {
				col.RefTable = target.Table()
				col.OnDelete = fkAction(fld.OnDelete())
			}
		}
		td.Columns = append(td.Columns, col)
		if fld.Index() && !fld.Unique() {
			td.Indexes = append(td.Indexes, fld.Name())
		}
	})
	return td
}

func fkAction(p OnDelete) string {
	switch p {
	case OnDeleteCascade:
		return "CASCADE"
	case OnDeleteRestrict:
		return "RESTRICT"
	}
	return "SET NULL"
}

func columnType(fld IField, dialect DDLDialect) string {
	if fld.Name() == FieldID {
		if dialect == DDLPostgres {
			return "BIGSERIAL PRIMARY KEY"
		}
		return "INTEGER PRIMARY KEY AUTOINCREMENT"
	}
	if fld.Translate() || fld.CompanyDependent() {
		if dialect == DDLPostgres {
			return "JSONB"
		}
		return "TEXT" // sqlite stores JSON as text
	}
	switch fld.Kind() {
	case KindBoolean:
		return "BOOLEAN"
	case KindInteger, KindMany2one:
		return "BIGINT"
	case KindFloat:
		return "DOUBLE PRECISION"
	case KindDecimal:
		p, s := fld.Digits()
		if p == 0 {
			return "NUMERIC"
		}
		return fmt.Sprintf("NUMERIC(%d,%d)", p, s)
	case KindChar, KindSelection:
		if size := fld.Size(); size > 0 {
			return fmt.Sprintf("VARCHAR(%d)", size)
		}
		return "VARCHAR"
	case KindText:
		return "TEXT"
	case KindDate:
		return "DATE"
	case KindDatetime:
		return "TIMESTAMP"
	case KindBinary:
		if dialect == DDLPostgres {
			return "BYTEA"
		}
		return "BLOB"
	}
	return "TEXT"
}

// DDL renders the CREATE TABLE and CREATE INDEX statements for the whole
// registry, entities in declaration order, link tables last.
func DDL(reg IRegistry, dialect DDLDialect) []string {
	var out []string
	reg.Entities(func(e IEntity) {
		td := TableSchema(reg, e, dialect)
		var cols []string
		for _, c := range td.Columns {
			line := fmt.Sprintf("%s %s", quoteIdent(c.Name), c.SQLType)
			if c.NotNull && c.Name != FieldID {
				line += " NOT NULL"
			}
			if c.Unique {
				line += " UNIQUE"
			}
			if c.RefTable != "" {
				line += fmt.Sprintf(" REFERENCES %s (%s) ON DELETE %s", quoteIdent(c.RefTable), FieldID, c.OnDelete)
			}
			cols = append(cols, line)
		}
		out = append(out, fmt.Sprintf("CREATE TABLE %s (\n  %s\n)", quoteIdent(td.Name), strings.Join(cols, ",\n  ")))
		for _, idx := range td.Indexes {
			out = append(out, fmt.Sprintf("CREATE INDEX %s ON %s (%s)",
				quoteIdent(td.Name+"_"+idx+"_idx"), quoteIdent(td.Name), quoteIdent(idx)))
		}
	})
	reg.LinkTables(func(lt LinkTable) {
		e1 := reg.Entity(lt.Entity1).Table()
		e2 := reg.Entity(lt.Entity2).Table()
		out = append(out, fmt.Sprintf(
			"CREATE TABLE %s (\n  %s BIGINT NOT NULL REFERENCES %s (%s) ON DELETE CASCADE,\n  %s BIGINT NOT NULL REFERENCES %s (%s) ON DELETE CASCADE,\n  PRIMARY KEY (%s, %s)\n)",
			quoteIdent(lt.Table),
			quoteIdent(lt.Column1), quoteIdent(e1), FieldID,
			quoteIdent(lt.Column2), quoteIdent(e2), FieldID,
			quoteIdent(lt.Column1), quoteIdent(lt.Column2)))
	})
	return out
}

func quoteIdent(name string) string {
	return `"` + name + `"`
}

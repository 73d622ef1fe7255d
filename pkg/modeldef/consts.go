/*
 * Copyright (c) 2024-present Entago, Ltd.
 */

package modeldef

// Kind enumerates field kinds.
type Kind uint8

const (
	KindNull Kind = iota
	KindBoolean
	KindInteger
	KindFloat
	KindDecimal
	KindChar
	KindText
	KindSelection
	KindDate
	KindDatetime
	KindBinary
	KindMany2one
	KindOne2many
	KindMany2many

	KindCount
)

var kindNames = map[Kind]string{
	KindNull:      "null",
	KindBoolean:   "boolean",
	KindInteger:   "integer",
	KindFloat:     "float",
	KindDecimal:   "decimal",
	KindChar:      "char",
	KindText:      "text",
	KindSelection: "selection",
	KindDate:      "date",
	KindDatetime:  "datetime",
	KindBinary:    "binary",
	KindMany2one:  "many2one",
	KindOne2many:  "one2many",
	KindMany2many: "many2many",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown"
}

// Relational returns true for the three relation kinds.
func (k Kind) Relational() bool {
	return k == KindMany2one || k == KindOne2many || k == KindMany2many
}

// Scalar returns true for column-backed value kinds.
func (k Kind) Scalar() bool {
	return k >= KindBoolean && k <= KindBinary
}

// OnDelete is the referential policy of a to-one field.
type OnDelete uint8

const (
	// OnDeleteSetNull clears the reference when the target is unlinked.
	// Default.
	OnDeleteSetNull OnDelete = iota
	// OnDeleteRestrict refuses to unlink a referenced target.
	OnDeleteRestrict
	// OnDeleteCascade unlinks the referring record together with its target.
	OnDeleteCascade
)

func (p OnDelete) String() string {
	switch p {
	case OnDeleteRestrict:
		return "restrict"
	case OnDeleteCascade:
		return "cascade"
	}
	return "set null"
}

const (
	// FieldID is the reserved integer primary key, present on every entity.
	FieldID = "id"
	// FieldCreated and FieldUpdated are maintained by the write pipeline.
	FieldCreated = "create_date"
	FieldUpdated = "write_date"
	// FieldParentPath is the materialized path column of hierarchical
	// entities, backing the child_of and parent_of operators.
	FieldParentPath = "parent_path"

	// DefaultOrder is the order applied when an entity declares none.
	DefaultOrder = FieldID

	// DefaultRecName is the display-name field convention.
	DefaultRecName = "name"
)

// MaxEntityFieldCount bounds a single entity's field map.
const MaxEntityFieldCount = 512

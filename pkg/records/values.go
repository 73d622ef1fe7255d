/*
 * Copyright (c) 2024-present Entago, Ltd.
 */

package records

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"github.com/entago/entago/pkg/modeldef"
)

// Storage layouts for temporal values.
const (
	dateLayout     = "2006-01-02"
	datetimeLayout = "2006-01-02 15:04:05"
)

// localized is the cache form of translated and company-dependent fields:
// raw value per locale or per company key.
type localized map[string]any

// toCacheValue normalizes a caller value into its cache form. Translated
// and company-dependent fields are handled by the caller, this converts the
// per-key raw value.
func toCacheValue(entity string, fld modeldef.IField, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch fld.Kind() {
	case modeldef.KindBoolean:
		b, ok := v.(bool)
		if !ok {
			return nil, errInvalidValue(entity, fld.Name(), v)
		}
		return b, nil

	case modeldef.KindInteger:
		switch t := v.(type) {
		case int64:
			return t, nil
		case int:
			return int64(t), nil
		case int32:
			return int64(t), nil
		case float64:
			return int64(t), nil
		}
		return nil, errInvalidValue(entity, fld.Name(), v)

	case modeldef.KindFloat:
		switch t := v.(type) {
		case float64:
			return t, nil
		case float32:
			return float64(t), nil
		case int64:
			return float64(t), nil
		case int:
			return float64(t), nil
		}
		return nil, errInvalidValue(entity, fld.Name(), v)

	case modeldef.KindDecimal:
		d, err := asDecimal(v)
		if err != nil {
			return nil, errInvalidValue(entity, fld.Name(), v)
		}
		_, scale := fld.Digits()
		return d.StringFixed(int32(scale)), nil

	case modeldef.KindChar, modeldef.KindText:
		s, ok := v.(string)
		if !ok {
			return nil, errInvalidValue(entity, fld.Name(), v)
		}
		if fld.Kind() == modeldef.KindChar && fld.Size() > 0 && len([]rune(s)) > fld.Size() {
			return nil, errInvalidValue(entity, fld.Name(), "value exceeds size")
		}
		return s, nil

	case modeldef.KindSelection:
		s, ok := v.(string)
		if !ok {
			return nil, errInvalidValue(entity, fld.Name(), v)
		}
		for _, opt := range fld.Selection() {
			if opt.Value == s {
				return s, nil
			}
		}
		return nil, errInvalidValue(entity, fld.Name(), v)

	case modeldef.KindDate:
		return asDateString(entity, fld, v, dateLayout)

	case modeldef.KindDatetime:
		return asDateString(entity, fld, v, datetimeLayout)

	case modeldef.KindBinary:
		// opaque bytes, no interpretation
		switch t := v.(type) {
		case []byte:
			return append([]byte(nil), t...), nil
		case string:
			return []byte(t), nil
		}
		return nil, errInvalidValue(entity, fld.Name(), v)

	case modeldef.KindMany2one:
		switch t := v.(type) {
		case int64:
			if t == 0 {
				return nil, nil
			}
			return t, nil
		case int:
			if t == 0 {
				return nil, nil
			}
			return int64(t), nil
		}
		return nil, errInvalidValue(entity, fld.Name(), v)

	case modeldef.KindOne2many, modeldef.KindMany2many:
		switch t := v.(type) {
		case []int64:
			return append([]int64(nil), t...), nil
		case []int:
			out := make([]int64, len(t))
			for i, id := range t {
				out[i] = int64(id)
			}
			return out, nil
		}
		return nil, errInvalidValue(entity, fld.Name(), v)
	}
	return nil, errInvalidValue(entity, fld.Name(), v)
}

// toColumnValue converts a cache value into the SQL column value.
// Localized maps marshal to JSON.
func toColumnValue(fld modeldef.IField, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	if fld.Translate() || fld.CompanyDependent() {
		loc, ok := v.(localized)
		if !ok {
			loc = localized{}
		}
		raw, err := json.Marshal(loc)
		if err != nil {
			return nil, err
		}
		return string(raw), nil
	}
	return v, nil
}

// scanDest returns a scan target for the column of a field.
func scanDest(fld modeldef.IField) any {
	switch fld.Kind() {
	case modeldef.KindBoolean:
		return new(sql.NullBool)
	case modeldef.KindInteger, modeldef.KindMany2one:
		return new(sql.NullInt64)
	case modeldef.KindFloat:
		return new(sql.NullFloat64)
	case modeldef.KindBinary:
		return new([]byte)
	default:
		// decimal, char, text, selection, date, datetime and JSON columns
		// all travel as text
		return new(sql.NullString)
	}
}

// fromScan converts a scanned column value into its cache form.
func fromScan(fld modeldef.IField, dest any) (any, error) {
	switch t := dest.(type) {
	case *sql.NullBool:
		if !t.Valid {
			return nil, nil
		}
		return t.Bool, nil
	case *sql.NullInt64:
		if !t.Valid {
			return nil, nil
		}
		return t.Int64, nil
	case *sql.NullFloat64:
		if !t.Valid {
			return nil, nil
		}
		return t.Float64, nil
	case *[]byte:
		if *t == nil {
			return nil, nil
		}
		return append([]byte(nil), *t...), nil
	case *sql.NullString:
		if !t.Valid {
			return nil, nil
		}
		if fld.Translate() || fld.CompanyDependent() {
			loc := localized{}
			if t.String != "" {
				if err := json.Unmarshal([]byte(t.String), &loc); err != nil {
					return nil, err
				}
			}
			return loc, nil
		}
		if fld.Kind() == modeldef.KindDecimal {
			// numeric affinity may strip trailing zeros on the way back
			d, err := decimal.NewFromString(t.String)
			if err != nil {
				return nil, err
			}
			_, scale := fld.Digits()
			return d.StringFixed(int32(scale)), nil
		}
		return t.String, nil
	}
	return nil, errInvalidValue("", fld.Name(), dest)
}

func asDecimal(v any) (decimal.Decimal, error) {
	switch t := v.(type) {
	case decimal.Decimal:
		return t, nil
	case string:
		return decimal.NewFromString(t)
	case float64:
		return decimal.NewFromFloat(t), nil
	case int64:
		return decimal.NewFromInt(t), nil
	case int:
		return decimal.NewFromInt(int64(t)), nil
	}
	return decimal.Zero, errInvalidValue("", "", v)
}

func asDateString(entity string, fld modeldef.IField, v any, layout string) (any, error) {
	switch t := v.(type) {
	case time.Time:
		return t.UTC().Format(layout), nil
	case string:
		if _, err := time.Parse(layout, t); err != nil {
			return nil, errInvalidValue(entity, fld.Name(), v)
		}
		return t, nil
	}
	return nil, errInvalidValue(entity, fld.Name(), v)
}

package mapping

import (
	"fmt"
	"strings"
	"time"

	"github.com/nmcampfin/campfin-etl/modules/campfin/extract"
)

// Mapper casts raw rows through a mapping table. It knows nothing about
// individual entity kinds.
type Mapper struct {
	loc *time.Location
}

// NewMapper returns a mapper interpreting zone-less dates in loc.
func NewMapper(loc *time.Location) *Mapper {
	if loc == nil {
		loc = time.UTC
	}
	return &Mapper{loc: loc}
}

func (m *Mapper) Map(row extract.Row, t *Table) (Record, error) {
	rec := Record{
		Kind:   t.Kind,
		Line:   row.Line,
		Values: make(map[string]any, len(t.Fields)),
	}

	// the key is cast first so a bad key always wins over other failures
	keyField, _ := t.Field(t.KeyField)
	key, err := m.castField(row, t, keyField, &rec)
	if err != nil {
		return rec, err
	}
	rec.Values[keyField.Target] = key
	rec.Key = KeyString(key)

	for _, f := range t.Fields {
		if f.Target == t.KeyField {
			continue
		}
		v, err := m.castField(row, t, f, &rec)
		if err != nil {
			return rec, err
		}
		rec.Values[f.Target] = v
	}
	return rec, nil
}

func (m *Mapper) castField(row extract.Row, t *Table, f Field, rec *Record) (any, error) {
	column, raw, present := sourceValue(row, f)
	if strings.TrimSpace(raw) == "" {
		present = false
	}
	if !present && f.Default != nil {
		raw = *f.Default
		present = true
		if raw == "" && f.Type == TypeString {
			return "", nil
		}
	}
	if !present || strings.TrimSpace(raw) == "" {
		if f.Required {
			return nil, &FieldMappingError{
				Kind: t.Kind, Line: row.Line, Column: column, Target: f.Target,
				Key: f.Target == t.KeyField, Reason: "required value missing",
			}
		}
		return nil, nil
	}

	v, err := m.cast(raw, f)
	if err != nil {
		if f.Required {
			return nil, &FieldMappingError{
				Kind: t.Kind, Line: row.Line, Column: column, Target: f.Target, Value: raw,
				Key: f.Target == t.KeyField, Reason: err.Error(),
			}
		}
		rec.Warnings = append(rec.Warnings, fmt.Sprintf("%s: %v: %q", column, err, raw))
		return nil, nil
	}
	return v, nil
}

func (m *Mapper) cast(raw string, f Field) (any, error) {
	switch f.Type {
	case TypeInteger:
		return castInteger(raw)
	case TypeFloat:
		return castFloat(raw)
	case TypeMoney:
		return castMoney(raw)
	case TypeBoolean:
		return castBoolean(raw)
	case TypeDate:
		return castDate(raw, m.loc)
	case TypeTimestamp:
		return castTimestamp(raw, m.loc)
	case TypeString:
		return castString(raw, f.MaxLen), nil
	default:
		return nil, fmt.Errorf("unknown target type %s", f.Type)
	}
}

// sourceValue returns the first non-empty value among the source column and its aliases.
func sourceValue(row extract.Row, f Field) (string, string, bool) {
	if v, ok := row.Lookup(f.Source); ok && strings.TrimSpace(v) != "" {
		return f.Source, v, true
	}
	for _, alias := range f.Aliases {
		if v, ok := row.Lookup(alias); ok && strings.TrimSpace(v) != "" {
			return alias, v, true
		}
	}
	return f.Source, "", false
}

package mapping

import (
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

type TargetType string

const (
	TypeInteger   TargetType = "integer"
	TypeFloat     TargetType = "float"
	TypeMoney     TargetType = "money"
	TypeBoolean   TargetType = "boolean"
	TypeDate      TargetType = "date"
	TypeTimestamp TargetType = "timestamp"
	TypeString    TargetType = "string"
)

// Field maps one source column onto one storage field.
type Field struct {
	Source   string     `yaml:"source" validate:"required"`
	Aliases  []string   `yaml:"aliases,omitempty" validate:"omitempty,dive,required"`
	Target   string     `yaml:"target" validate:"required"`
	Type     TargetType `yaml:"type" validate:"required,oneof=integer float money boolean date timestamp string"`
	Required bool       `yaml:"required,omitempty"`
	// Default replaces an empty source value before casting.
	Default *string `yaml:"default,omitempty"`
	MaxLen  int     `yaml:"max_len,omitempty" validate:"gte=0"`
}

// Table is the mapping for one entity kind.
type Table struct {
	Kind         string  `yaml:"kind" validate:"required"`
	StorageTable string  `yaml:"storage_table" validate:"required"`
	KeyField     string  `yaml:"key_field" validate:"required"`
	Fields       []Field `yaml:"fields" validate:"required,min=1,dive"`

	// EntityKind marks kinds owning an Entity; EntityUserIDField names the
	// field carrying the upstream user id. That field is not a storage column.
	EntityKind        string `yaml:"entity_kind,omitempty" validate:"omitempty,oneof=candidate pac lobbyist organization other"`
	EntityUserIDField string `yaml:"entity_user_id_field,omitempty" validate:"required_with=EntityKind"`

	SlugField   string   `yaml:"slug_field,omitempty"`
	SlugSources []string `yaml:"slug_sources,omitempty" validate:"required_with=SlugField"`

	Links []Link `yaml:"links,omitempty" validate:"omitempty,dive"`
}

// Link resolves a mapped external reference to the internal id of a parent
// row: Column is set to ParentTable.id where ParentTable.ParentKey = Field.
type Link struct {
	Field       string `yaml:"field" validate:"required"`
	Column      string `yaml:"column" validate:"required"`
	ParentTable string `yaml:"parent_table" validate:"required"`
	ParentKey   string `yaml:"parent_key" validate:"required"`
}

func (t *Table) Field(target string) (Field, bool) {
	for _, f := range t.Fields {
		if f.Target == target {
			return f, true
		}
	}
	return Field{}, false
}

// Project returns a table reading only the named targets of t, all required,
// keyed on the first one. Targets t does not map are left out.
func (t *Table) Project(targets ...string) *Table {
	out := &Table{Kind: t.Kind, StorageTable: t.StorageTable}
	for _, target := range targets {
		f, ok := t.Field(target)
		if !ok {
			continue
		}
		f.Required = true
		out.Fields = append(out.Fields, f)
	}
	if len(targets) > 0 {
		out.KeyField = targets[0]
	}
	return out
}

func (t *Table) KeyType() TargetType {
	f, _ := t.Field(t.KeyField)
	return f.Type
}

// StorageFields lists the fields persisted as columns of StorageTable.
func (t *Table) StorageFields() []Field {
	out := make([]Field, 0, len(t.Fields))
	for _, f := range t.Fields {
		if f.Target == t.EntityUserIDField {
			continue
		}
		out = append(out, f)
	}
	return out
}

// Record is one mapped row.
type Record struct {
	Kind     string
	Line     int
	Key      string
	Values   map[string]any
	Warnings []string
}

func (r Record) String(field string) string {
	s, _ := r.Values[field].(string)
	return s
}

func (r Record) Int(field string) (int64, bool) {
	v, ok := r.Values[field].(int64)
	return v, ok
}

func (r Record) Money(field string) (decimal.Decimal, bool) {
	v, ok := r.Values[field].(decimal.Decimal)
	return v, ok
}

func (r Record) Time(field string) (time.Time, bool) {
	v, ok := r.Values[field].(time.Time)
	return v, ok
}

func (r Record) Bool(field string) (bool, bool) {
	v, ok := r.Values[field].(bool)
	return v, ok
}

// KeyString renders a key value the same way for mapped and stored rows.
func KeyString(v any) string {
	switch k := v.(type) {
	case nil:
		return ""
	case int64:
		return strconv.FormatInt(k, 10)
	case int32:
		return strconv.FormatInt(int64(k), 10)
	case int:
		return strconv.Itoa(k)
	case string:
		return k
	case decimal.Decimal:
		return k.String()
	case time.Time:
		return k.UTC().Format(time.RFC3339Nano)
	default:
		return fmt.Sprint(k)
	}
}

package mapping

import (
	"errors"
	"fmt"
	"io"
	"regexp"
	"sort"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/nmcampfin/campfin-etl/pkg/constants"
)

var identifierRe = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// Registry holds validated mapping tables by kind.
type Registry struct {
	tables map[string]*Table
}

func NewRegistry(tables ...Table) (*Registry, error) {
	r := &Registry{tables: make(map[string]*Table, len(tables))}
	for i := range tables {
		if err := r.put(tables[i]); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Registry) Table(kind string) (*Table, bool) {
	t, ok := r.tables[kind]
	return t, ok
}

func (r *Registry) Kinds() []string {
	out := make([]string, 0, len(r.tables))
	for k := range r.tables {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Override replaces or adds tables, validating each one.
func (r *Registry) Override(tables ...Table) error {
	for i := range tables {
		if err := r.put(tables[i]); err != nil {
			return err
		}
	}
	return nil
}

func (r *Registry) put(t Table) error {
	if err := ValidateTable(&t); err != nil {
		return err
	}
	if r.tables == nil {
		r.tables = make(map[string]*Table)
	}
	tt := t
	r.tables[t.Kind] = &tt
	return nil
}

type yamlDocument struct {
	Tables []Table `yaml:"tables"`
}

// LoadTablesYAML reads mapping tables from a YAML document with a top-level
// "tables" list. Tables are validated by the registry they are added to.
func LoadTablesYAML(r io.Reader) ([]Table, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var doc yamlDocument
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode mapping yaml: %w", err)
	}
	if len(doc.Tables) == 0 {
		return nil, fmt.Errorf("mapping yaml: no tables")
	}
	return doc.Tables, nil
}

// ValidateTable checks a table once at load time.
func ValidateTable(t *Table) error {
	if err := constants.Validate.Struct(t); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fmt.Errorf("mapping table %q: field %s fails %q", t.Kind, verrs[0].Namespace(), verrs[0].Tag())
		}
		return fmt.Errorf("mapping table %q: %w", t.Kind, err)
	}
	if !identifierRe.MatchString(t.StorageTable) {
		return fmt.Errorf("mapping table %q: invalid storage table %q", t.Kind, t.StorageTable)
	}

	targets := make(map[string]struct{}, len(t.Fields))
	sources := make(map[string]struct{}, len(t.Fields))
	for _, f := range t.Fields {
		if !identifierRe.MatchString(f.Target) {
			return fmt.Errorf("mapping table %q: invalid target field %q", t.Kind, f.Target)
		}
		if _, dup := targets[f.Target]; dup {
			return fmt.Errorf("mapping table %q: duplicate target field %q", t.Kind, f.Target)
		}
		targets[f.Target] = struct{}{}
		for _, s := range append([]string{f.Source}, f.Aliases...) {
			if _, dup := sources[s]; dup {
				return fmt.Errorf("mapping table %q: source column %q mapped twice", t.Kind, s)
			}
			sources[s] = struct{}{}
		}
	}

	key, ok := t.Field(t.KeyField)
	if !ok {
		return fmt.Errorf("mapping table %q: key field %q is not mapped", t.Kind, t.KeyField)
	}
	if !key.Required {
		return fmt.Errorf("mapping table %q: key field %q must be required", t.Kind, t.KeyField)
	}
	switch key.Type {
	case TypeInteger, TypeString:
	default:
		return fmt.Errorf("mapping table %q: key field %q must be integer or string, got %s", t.Kind, t.KeyField, key.Type)
	}

	if t.EntityUserIDField != "" {
		f, ok := t.Field(t.EntityUserIDField)
		if !ok {
			return fmt.Errorf("mapping table %q: entity user id field %q is not mapped", t.Kind, t.EntityUserIDField)
		}
		if f.Type != TypeInteger {
			return fmt.Errorf("mapping table %q: entity user id field %q must be integer", t.Kind, t.EntityUserIDField)
		}
		if t.EntityUserIDField == t.KeyField {
			return fmt.Errorf("mapping table %q: entity user id field cannot be the key", t.Kind)
		}
	}
	for _, l := range t.Links {
		for _, ident := range []string{l.Column, l.ParentTable, l.ParentKey} {
			if !identifierRe.MatchString(ident) {
				return fmt.Errorf("mapping table %q: invalid link identifier %q", t.Kind, ident)
			}
		}
		if _, ok := targets[l.Field]; !ok {
			return fmt.Errorf("mapping table %q: link field %q is not mapped", t.Kind, l.Field)
		}
		if _, clash := targets[l.Column]; clash {
			return fmt.Errorf("mapping table %q: link column %q is also a mapped field", t.Kind, l.Column)
		}
	}
	if t.SlugField != "" {
		if !identifierRe.MatchString(t.SlugField) {
			return fmt.Errorf("mapping table %q: invalid slug field %q", t.Kind, t.SlugField)
		}
		for _, s := range t.SlugSources {
			if _, ok := targets[s]; !ok {
				return fmt.Errorf("mapping table %q: slug source %q is not mapped", t.Kind, s)
			}
		}
	}
	return nil
}

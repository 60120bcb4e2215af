// Package changeset partitions an import batch into new, changed and unchanged
// keys against the rows already stored for the same kind.
package changeset

import (
	"github.com/nmcampfin/campfin-etl/modules/campfin/mapping"
)

// Snapshot is the stored state of one row, keyed by external key.
type Snapshot struct {
	ID     int64
	Values map[string]any
}

type ChangeSet struct {
	New       []string
	Changed   []string
	Unchanged []string
	// ChangedFields lists, per changed key, the storage fields that differ.
	ChangedFields map[string][]string
	// Duplicates are keys seen more than once in the batch; the last row won.
	Duplicates []string
	// Records holds the winning record per key.
	Records map[string]mapping.Record
	// IDs holds the stored internal id per changed or unchanged key.
	IDs map[string]int64
}

func (cs ChangeSet) Empty() bool {
	return len(cs.New) == 0 && len(cs.Changed) == 0
}

// Keys returns the distinct keys of a batch in first-seen order.
func Keys(batch []mapping.Record) []string {
	seen := make(map[string]struct{}, len(batch))
	out := make([]string, 0, len(batch))
	for _, r := range batch {
		if _, ok := seen[r.Key]; ok {
			continue
		}
		seen[r.Key] = struct{}{}
		out = append(out, r.Key)
	}
	return out
}

// Resolve diffs batch against stored in one pass over each side. Stored rows
// whose key is absent from the batch are ignored; absence never means delete.
func Resolve(batch []mapping.Record, stored map[string]Snapshot, t *mapping.Table) ChangeSet {
	cs := ChangeSet{
		ChangedFields: make(map[string][]string),
		Records:       make(map[string]mapping.Record, len(batch)),
		IDs:           make(map[string]int64),
	}

	order := make([]string, 0, len(batch))
	dup := make(map[string]bool)
	for _, r := range batch {
		if _, seen := cs.Records[r.Key]; seen {
			if !dup[r.Key] {
				dup[r.Key] = true
				cs.Duplicates = append(cs.Duplicates, r.Key)
			}
		} else {
			order = append(order, r.Key)
		}
		cs.Records[r.Key] = r
	}

	fields := comparedFields(t)
	for _, key := range order {
		snap, ok := stored[key]
		if !ok {
			cs.New = append(cs.New, key)
			continue
		}
		cs.IDs[key] = snap.ID
		diff := Diff(cs.Records[key], snap, fields)
		if len(diff) == 0 {
			cs.Unchanged = append(cs.Unchanged, key)
			continue
		}
		cs.Changed = append(cs.Changed, key)
		cs.ChangedFields[key] = diff
	}
	return cs
}

// Diff returns the fields of rec that differ from snap, in table order.
func Diff(rec mapping.Record, snap Snapshot, fields []mapping.Field) []string {
	var out []string
	for _, f := range fields {
		if !Equal(f.Type, rec.Values[f.Target], snap.Values[f.Target]) {
			out = append(out, f.Target)
		}
	}
	return out
}

// comparedFields are the storage columns other than the key. Slugs are derived
// after the upsert and never compared.
func comparedFields(t *mapping.Table) []mapping.Field {
	var out []mapping.Field
	for _, f := range t.StorageFields() {
		if f.Target == t.KeyField || f.Target == t.SlugField {
			continue
		}
		out = append(out, f)
	}
	return out
}

// ComparedFields exposes the columns a snapshot must carry for t.
func ComparedFields(t *mapping.Table) []mapping.Field {
	return comparedFields(t)
}

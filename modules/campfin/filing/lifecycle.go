package filing

import "sort"

type State string

const (
	StateNone           State = "none"
	StateFinal          State = "final"
	StateAmendedPending State = "amended_pending"
	StateSuperseded     State = "superseded"
)

type Transition string

const (
	// Create writes a new final filing.
	Create Transition = "create"
	// CreatePending writes a non-final filing next to whatever exists.
	CreatePending Transition = "create_pending"
	// Link re-applies a submission already stored; dependents are kept.
	Link Transition = "link"
	// Promote turns a stored non-final filing final in place.
	Promote Transition = "promote"
	// Supersede deletes the stored final filings with their dependents and
	// creates the incoming one fresh.
	Supersede Transition = "supersede"
)

// Decision is the outcome of Decide. Target is the stored row touched by
// Link and Promote; Delete lists rows removed by Supersede and Promote.
// A linked row keeps its own final flag, carried in TargetFinal.
type Decision struct {
	Transition  Transition
	Target      int64
	TargetFinal bool
	Delete      []int64
}

// StateOf reports the lifecycle state of the stored filings of one key.
func StateOf(existing []Existing) State {
	if len(existing) == 0 {
		return StateNone
	}
	for _, e := range existing {
		if e.Final {
			return StateFinal
		}
	}
	return StateAmendedPending
}

// Decide picks the transition for an incoming filing given every stored
// filing of the same key.
func Decide(existing []Existing, in Filing) Decision {
	var finals, olderVersions []int64
	var same, placeholder *Existing
	var latestPending *Existing
	for i := range existing {
		e := &existing[i]
		if e.Identity == in.Identity {
			same = e
		}
		if e.Final {
			finals = append(finals, e.ID)
			if e.Identity == (Identity{}) {
				placeholder = e
			}
			continue
		}
		if latestPending == nil || e.ID > latestPending.ID {
			latestPending = e
		}
		if in.Identity.ReportID != 0 && e.Identity.ReportID == in.Identity.ReportID && e.Identity != in.Identity {
			olderVersions = append(olderVersions, e.ID)
		}
	}

	if same != nil {
		if !in.Final || same.Final {
			return Decision{Transition: Link, Target: same.ID, TargetFinal: same.Final}
		}
		return Decision{Transition: Promote, Target: same.ID, Delete: append(without(finals, same.ID), olderVersions...)}
	}

	if !in.Final {
		return Decision{Transition: CreatePending}
	}
	// a final filing opened by a transaction load carries no upstream
	// identity yet; the first export row for its key adopts it
	if len(finals) == 1 && placeholder != nil {
		return Decision{Transition: Link, Target: placeholder.ID, TargetFinal: true}
	}
	// a final version replaces pending versions of the same report too
	if len(finals) > 0 {
		return Decision{Transition: Supersede, Delete: append(finals, olderVersions...)}
	}
	if latestPending != nil {
		return Decision{Transition: Promote, Target: latestPending.ID, Delete: without(olderVersions, latestPending.ID)}
	}
	return Decision{Transition: Create}
}

// CheckBatch returns one conflict per key that carries final filings with
// different identities. Exact repeats of one submission are not conflicts.
func CheckBatch(incoming []Filing) []*SupersessionConflictError {
	byKey := make(map[Key][]Identity)
	var order []Key
	for _, f := range incoming {
		if !f.Final {
			continue
		}
		ids, seen := byKey[f.Key]
		if !seen {
			order = append(order, f.Key)
		}
		if !containsIdentity(ids, f.Identity) {
			byKey[f.Key] = append(ids, f.Identity)
		}
	}

	var out []*SupersessionConflictError
	for _, k := range order {
		ids := byKey[k]
		if len(ids) < 2 {
			continue
		}
		sort.Slice(ids, func(i, j int) bool {
			if ids[i].ReportID != ids[j].ReportID {
				return ids[i].ReportID < ids[j].ReportID
			}
			return ids[i].ReportVersionID < ids[j].ReportVersionID
		})
		out = append(out, &SupersessionConflictError{Key: k, Identities: ids})
	}
	return out
}

func containsIdentity(ids []Identity, id Identity) bool {
	for _, x := range ids {
		if x == id {
			return true
		}
	}
	return false
}

func without(ids []int64, id int64) []int64 {
	var out []int64
	for _, x := range ids {
		if x != id {
			out = append(out, x)
		}
	}
	return out
}

// Package source numbers citation references in reading order.
//
// The registry is a pure function over a message's citations: it never owns
// state. Numbers are recomputed on every insert because arrival order does not
// match text order (a citation may reference an earlier span).
package source

import (
	"sort"

	"github.com/hupe1980/agentdeck/core"
	"github.com/hupe1980/agentdeck/transform"
)

// Add appends a reference built from c, re-sorts the full set by start index
// (unknown positions last, stable for ties) and renumbers 1..N. It returns the
// new set and the added reference carrying its final number. The input slice
// is not modified.
func Add(sources []core.SourceReference, c core.Citation) ([]core.SourceReference, core.SourceReference) {
	ref := NewReference(c)

	out := make([]core.SourceReference, len(sources), len(sources)+1)
	copy(out, sources)
	out = append(out, ref)
	Number(out)

	for _, s := range out {
		if s.ID == ref.ID {
			return out, s
		}
	}
	return out, ref
}

// NewReference builds an unnumbered reference with a fresh id.
func NewReference(c core.Citation) core.SourceReference {
	return core.SourceReference{
		ID:          core.NewID(),
		URL:         c.URL,
		StartIndex:  c.StartIndex,
		EndIndex:    c.EndIndex,
		Title:       c.Title,
		Description: c.Description,
	}
}

// Number sorts sources in place by start index (nil last, stable) and assigns
// Number = rank.
func Number(sources []core.SourceReference) {
	sort.SliceStable(sources, func(i, j int) bool {
		return less(sources[i].StartIndex, sources[j].StartIndex)
	})
	for i := range sources {
		sources[i].Number = i + 1
	}
}

func less(a, b *int) bool {
	switch {
	case a == nil:
		return false
	case b == nil:
		return true
	default:
		return *a < *b
	}
}

// Valid reports whether sources satisfy the numbering invariant: sorted by
// start index they carry 1..N with no gaps.
func Valid(sources []core.SourceReference) bool {
	cp := make([]core.SourceReference, len(sources))
	copy(cp, sources)
	sort.SliceStable(cp, func(i, j int) bool {
		if less(cp[i].StartIndex, cp[j].StartIndex) {
			return true
		}
		if less(cp[j].StartIndex, cp[i].StartIndex) {
			return false
		}
		return cp[i].Number < cp[j].Number
	})
	for i, s := range cp {
		if s.Number != i+1 {
			return false
		}
	}
	return true
}

// Collect derives the numbered source list of a message from its citation
// transforms plus unanchored references. Numbers are written back into fresh
// copies of the citation transforms; other transforms are passed through.
func Collect(ts []transform.Transform, loose []core.SourceReference) ([]core.SourceReference, []transform.Transform) {
	var all []core.SourceReference
	for _, t := range ts {
		if c, ok := t.(*transform.Citation); ok {
			all = append(all, c.Sources...)
		}
	}
	all = append(all, loose...)
	Number(all)

	numbers := make(map[string]int, len(all))
	for _, s := range all {
		numbers[s.ID] = s.Number
	}

	out := make([]transform.Transform, len(ts))
	for i, t := range ts {
		c, ok := t.(*transform.Citation)
		if !ok {
			out[i] = t
			continue
		}
		cp := c.Clone()
		for j := range cp.Sources {
			cp.Sources[j].Number = numbers[cp.Sources[j].ID]
		}
		out[i] = cp
	}
	return all, out
}

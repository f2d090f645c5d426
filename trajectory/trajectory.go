// Package trajectory collects the reasoning and tool-use records attached to
// an agent message.
package trajectory

import (
	"github.com/hupe1980/agentdeck/core"
)

// identityFields never make an entry viewable on their own.
var identityFields = map[string]struct{}{
	"kind":          {},
	"id":            {},
	"key":           {},
	"trajectory_id": {},
}

// Append records raw as a new entry with a locally generated id. Arrival order
// is preserved and the input slice is not modified.
func Append(entries []core.TrajectoryEntry, raw map[string]any) ([]core.TrajectoryEntry, core.TrajectoryEntry) {
	entry := core.TrajectoryEntry{
		ID:     core.NewID(),
		Kind:   core.MetadataKindTrajectory,
		Fields: make(map[string]any, len(raw)),
	}
	for k, v := range raw {
		if k == "kind" {
			if s, ok := v.(string); ok && s != "" {
				entry.Kind = s
			}
			continue
		}
		entry.Fields[k] = v
	}

	out := make([]core.TrajectoryEntry, len(entries), len(entries)+1)
	copy(out, entries)
	out = append(out, entry)
	return out, entry
}

// IsViewable reports whether the entry carries any informative field.
// Bookkeeping-only entries stay in the list but are not rendered.
func IsViewable(e core.TrajectoryEntry) bool {
	for k, v := range e.Fields {
		if _, skip := identityFields[k]; skip {
			continue
		}
		if populated(v) {
			return true
		}
	}
	return false
}

// Viewable filters entries down to the ones worth rendering.
func Viewable(entries []core.TrajectoryEntry) []core.TrajectoryEntry {
	var out []core.TrajectoryEntry
	for _, e := range entries {
		if IsViewable(e) {
			out = append(out, e)
		}
	}
	return out
}

func populated(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case string:
		return x != ""
	case []any:
		return len(x) > 0
	case map[string]any:
		return len(x) > 0
	default:
		return true
	}
}

// Package diff computes recursive structural differences between two
// JSON-like values (maps, slices, leaves), keyed by dot/bracket field paths.
// It is schema-agnostic so the same walk serves customer, project, task and
// billing blobs.
package diff

import (
	"fmt"
	"reflect"
	"sort"
)

type ChangeKind string

const (
	KindChanged ChangeKind = "changed"
	KindAdded   ChangeKind = "added"
	KindRemoved ChangeKind = "removed"
)

// Change is one leaf-level difference. Path uses dot and bracket-index
// notation, e.g. "tasks_data[2].estimated_hours".
type Change struct {
	Path string
	Kind ChangeKind
	Old  any
	New  any
}

// Compute walks original and corrected and returns every leaf difference in
// deterministic (sorted-key, index) order.
func Compute(original, corrected any) []Change {
	var changes []Change
	walk("", original, corrected, &changes)
	return changes
}

// LeafCount returns the number of leaf values in a JSON-like value. Used to
// turn a change count into a proportion.
func LeafCount(v any) int {
	switch t := v.(type) {
	case map[string]any:
		total := 0
		for _, child := range t {
			total += LeafCount(child)
		}
		return total
	case []any:
		total := 0
		for _, child := range t {
			total += LeafCount(child)
		}
		return total
	default:
		return 1
	}
}

func walk(path string, original, corrected any, out *[]Change) {
	origMap, origIsMap := original.(map[string]any)
	corrMap, corrIsMap := corrected.(map[string]any)
	if origIsMap && corrIsMap {
		walkMaps(path, origMap, corrMap, out)
		return
	}

	origSlice, origIsSlice := original.([]any)
	corrSlice, corrIsSlice := corrected.([]any)
	if origIsSlice && corrIsSlice {
		walkSlices(path, origSlice, corrSlice, out)
		return
	}

	if !reflect.DeepEqual(original, corrected) {
		*out = append(*out, Change{Path: path, Kind: KindChanged, Old: original, New: corrected})
	}
}

func walkMaps(path string, original, corrected map[string]any, out *[]Change) {
	keys := make([]string, 0, len(original)+len(corrected))
	seen := make(map[string]struct{}, len(original)+len(corrected))
	for k := range original {
		keys = append(keys, k)
		seen[k] = struct{}{}
	}
	for k := range corrected {
		if _, ok := seen[k]; !ok {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	for _, k := range keys {
		childPath := k
		if path != "" {
			childPath = path + "." + k
		}
		origVal, inOrig := original[k]
		corrVal, inCorr := corrected[k]
		switch {
		case inOrig && inCorr:
			walk(childPath, origVal, corrVal, out)
		case inCorr:
			*out = append(*out, Change{Path: childPath, Kind: KindAdded, New: corrVal})
		default:
			*out = append(*out, Change{Path: childPath, Kind: KindRemoved, Old: origVal})
		}
	}
}

func walkSlices(path string, original, corrected []any, out *[]Change) {
	shared := len(original)
	if len(corrected) < shared {
		shared = len(corrected)
	}
	for i := 0; i < shared; i++ {
		walk(fmt.Sprintf("%s[%d]", path, i), original[i], corrected[i], out)
	}
	for i := shared; i < len(corrected); i++ {
		*out = append(*out, Change{Path: fmt.Sprintf("%s[%d]", path, i), Kind: KindAdded, New: corrected[i]})
	}
	for i := shared; i < len(original); i++ {
		*out = append(*out, Change{Path: fmt.Sprintf("%s[%d]", path, i), Kind: KindRemoved, Old: original[i]})
	}
}

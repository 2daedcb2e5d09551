package diff

import (
	"fmt"
	"strconv"
	"strings"
)

type segment struct {
	key   string
	index int // -1 when the segment is a plain key
}

// Apply sets value at the dot/bracket path inside root, creating intermediate
// maps and extending slices as needed, and returns the updated root. The
// input is not mutated in place when root itself must be replaced.
func Apply(root any, path string, value any) (any, error) {
	segments, err := parsePath(path)
	if err != nil {
		return nil, err
	}
	if len(segments) == 0 {
		return value, nil
	}
	return applySegments(root, segments, value)
}

func applySegments(node any, segments []segment, value any) (any, error) {
	seg := segments[0]

	m, ok := node.(map[string]any)
	if !ok {
		if node != nil {
			return nil, fmt.Errorf("path segment %q: expected object, got %T", seg.key, node)
		}
		m = make(map[string]any)
	}

	if seg.index < 0 {
		if len(segments) == 1 {
			m[seg.key] = value
			return m, nil
		}
		child, err := applySegments(m[seg.key], segments[1:], value)
		if err != nil {
			return nil, err
		}
		m[seg.key] = child
		return m, nil
	}

	slice, _ := m[seg.key].([]any)
	for len(slice) <= seg.index {
		slice = append(slice, nil)
	}
	if len(segments) == 1 {
		slice[seg.index] = value
	} else {
		child, err := applySegments(slice[seg.index], segments[1:], value)
		if err != nil {
			return nil, err
		}
		slice[seg.index] = child
	}
	m[seg.key] = slice
	return m, nil
}

func parsePath(path string) ([]segment, error) {
	if strings.TrimSpace(path) == "" {
		return nil, nil
	}
	var segments []segment
	for _, part := range strings.Split(path, ".") {
		if part == "" {
			return nil, fmt.Errorf("empty segment in path %q", path)
		}
		open := strings.Index(part, "[")
		if open < 0 {
			segments = append(segments, segment{key: part, index: -1})
			continue
		}
		if !strings.HasSuffix(part, "]") || open == 0 {
			return nil, fmt.Errorf("malformed segment %q in path %q", part, path)
		}
		idx, err := strconv.Atoi(part[open+1 : len(part)-1])
		if err != nil || idx < 0 {
			return nil, fmt.Errorf("bad index in segment %q of path %q", part, path)
		}
		segments = append(segments, segment{key: part[:open], index: idx})
	}
	return segments, nil
}

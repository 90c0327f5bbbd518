// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package mount

import (
	"strconv"
	"strings"
)

// pathKind distinguishes a normal, mount-priority-resolved lookup from
// a fully-qualified one that bypasses mount resolution entirely.
type pathKind int

const (
	kindNormal pathKind = iota
	kindFullyQualified
)

// parsedPath is the result of splitting and classifying a lookup path.
type parsedPath struct {
	kind        pathKind
	hasExplicit bool
	explicitID  int64
	remainder   string   // valid when kind == kindFullyQualified
	segments    []string // valid when kind == kindNormal
}

func isSep(b byte) bool { return b == '/' || b == '\\' }

// splitRaw splits path on '/' and '\', dropping empty segments.
func splitRaw(path string) []string {
	var segs []string
	start := 0
	for i := 0; i < len(path); i++ {
		if isSep(path[i]) {
			if i > start {
				segs = append(segs, path[start:i])
			}
			start = i + 1
		}
	}
	if start < len(path) {
		segs = append(segs, path[start:])
	}
	return segs
}

// parsePath classifies a lookup path: stem detection ("name:/"),
// absolute-path / Windows-drive detection, and "."/".." resolution
// with underflow reclassified as absolute.
func parsePath(path string) parsedPath {
	// Stem detection: scan up to the first separator looking for
	// "name:/" immediately preceding it.
	for i := 0; i < len(path); i++ {
		if isSep(path[i]) {
			break
		}
		if path[i] == ':' && i+1 < len(path) && isSep(path[i+1]) {
			stem := path[:i]
			if id, err := strconv.ParseInt(stem, 10, 64); err == nil {
				return parsedPath{kind: kindFullyQualified, hasExplicit: true, explicitID: id, remainder: path[i+2:]}
			}
			// Non-numeric stem (e.g. a Windows drive letter): fall
			// back to the default mount with the path untouched.
			return parsedPath{kind: kindFullyQualified, remainder: path}
		}
	}

	if len(path) > 0 && isSep(path[0]) {
		return parsedPath{kind: kindFullyQualified, remainder: path}
	}

	var segs []string
	for _, raw := range splitRaw(path) {
		switch raw {
		case ".":
			continue
		case "..":
			if len(segs) == 0 {
				// Underflow: reclassify as absolute, bypassing the
				// mounting tree entirely.
				return parsedPath{kind: kindFullyQualified, remainder: path}
			}
			segs = segs[:len(segs)-1]
		default:
			segs = append(segs, raw)
		}
	}
	return parsedPath{kind: kindNormal, segments: segs}
}

// normalizeMountPoint splits a mount point into segments, dropping
// leading/trailing separators and "."/".." components. No underflow
// fallback applies here: a mount point is caller-controlled, not a
// lookup path.
func normalizeMountPoint(mountPoint string) []string {
	var segs []string
	for _, raw := range splitRaw(mountPoint) {
		switch raw {
		case ".", "":
			continue
		case "..":
			if len(segs) > 0 {
				segs = segs[:len(segs)-1]
			}
		default:
			segs = append(segs, raw)
		}
	}
	return segs
}

// joinSegments rebuilds a forward-slash path from segments.
func joinSegments(segs []string) string {
	return strings.Join(segs, "/")
}

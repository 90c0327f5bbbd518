// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package shadergraph

// orderedSet accumulates unique strings in first-seen order, used for
// the raw-shader include set and instantiation-prefix sets
// (InstantiatedShader.RawShaderIncludes / InstantiationPrefix are
// conceptually sets, but the generated composite include fragment
// needs a stable, reproducible #include order).
type orderedSet struct {
	seen  map[string]bool
	order []string
}

func newOrderedSet() *orderedSet {
	return &orderedSet{seen: make(map[string]bool)}
}

func (s *orderedSet) add(v string) {
	if s.seen[v] {
		return
	}
	s.seen[v] = true
	s.order = append(s.order, v)
}

func (s *orderedSet) items() []string {
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package sprite

import "github.com/gviegas/forge/internal/bitvec"

// attrInterner assigns small, stable integer indices to attribute
// semantics so that liveness sets can be represented as a bitvec.V
// instead of a slice scanned linearly on every membership test, which
// is the backward pass's dominant operation.
type attrInterner struct {
	index map[string]int
	attrs []Attribute
}

func newAttrInterner() *attrInterner {
	return &attrInterner{index: make(map[string]int)}
}

func (in *attrInterner) intern(a Attribute) int {
	key := a.semanticAndIdx()
	if i, ok := in.index[key]; ok {
		return i
	}
	i := len(in.attrs)
	in.index[key] = i
	in.attrs = append(in.attrs, a)
	return i
}

// attrSet is a bitvec-backed membership set over attrInterner indices.
// It is built fresh for each backward-pass step from an ordered slice
// and never cloned or aliased, so in-place Set/Unset mutation through
// bitvec.V is safe.
type attrSet struct {
	interner *attrInterner
	bits     bitvec.V[uint32]
}

func newAttrSet(interner *attrInterner, attrs []Attribute) *attrSet {
	s := &attrSet{interner: interner}
	s.growTo(len(interner.attrs))
	for _, a := range attrs {
		s.add(a)
	}
	return s
}

func (s *attrSet) growTo(n int) {
	for s.bits.Len() < n {
		s.bits.Grow(1)
	}
}

func (s *attrSet) add(a Attribute) {
	idx := s.interner.intern(a)
	s.growTo(idx + 1)
	s.bits.Set(idx)
}

func (s *attrSet) has(a Attribute) bool {
	idx, ok := s.interner.index[a.semanticAndIdx()]
	if !ok || idx >= s.bits.Len() {
		return false
	}
	return s.bits.IsSet(idx)
}

// Copyright 2023 Gustavo C. Viegas. All rights reserved.

// Package sprite implements the sprite-pipeline arranger: given a
// heterogeneous set of patches tagged by stage intent and a set of
// input-assembler attribute semantics, it arranges VS/optional-GS/PS
// patches by tracking attribute liveness backwards and inserting
// system patches, then emits HLSL fragments forwards. Real shader
// code generation is out of scope here; the emitted text is enough to
// exercise the arranging algorithm and produce well-formed, non-empty
// fragments.
package sprite

import (
	"fmt"
	"strconv"

	"github.com/gviegas/forge/shadergraph/graph"
)

// Tag classifies a patch (or system patch) by the stage intent it
// declares, mirroring the SV_Sprite*/SV_Auto* markers used to tag
// patches in the source material.
type Tag int

const (
	SpriteVS Tag = iota
	SpriteGS
	SpriteGSPredicate
	SpritePS
	AutoVS
	AutoPS
)

func (t Tag) String() string {
	switch t {
	case SpriteVS:
		return "SV_SpriteVS"
	case SpriteGS:
		return "SV_SpriteGS"
	case SpriteGSPredicate:
		return "SV_SpriteGSPredicate"
	case SpritePS:
		return "SV_SpritePS"
	case AutoVS:
		return "SV_AutoVS"
	case AutoPS:
		return "SV_AutoPS"
	default:
		return "Tag(?)"
	}
}

// Patch is one HLSL fragment with a tagged stage intent and the
// parameter signature it reads and writes.
type Patch struct {
	Name      string
	Tag       Tag
	Signature graph.Signature
}

// SystemPatch is a library entry available to fill still-unprovided
// attributes during arranging.
type SystemPatch struct {
	Name      string
	Signature graph.Signature
}

// Attribute is a working attribute: a semantic split into its base
// name and trailing numeric index (POSITION, COLOR0 -> COLOR, 0),
// plus the HLSL type it carries.
type Attribute struct {
	Semantic string
	Idx      int
	Type     string
}

func (a Attribute) semanticAndIdx() string {
	if a.Idx == 0 {
		return a.Semantic
	}
	return a.Semantic + strconv.Itoa(a.Idx)
}

// splitSemanticIdx splits a trailing run of digits off semantic, e.g.
// "COLOR0" -> ("COLOR", 0), "POSITION" -> ("POSITION", 0).
func splitSemanticIdx(semantic string) (string, int) {
	i := len(semantic)
	for i > 0 && semantic[i-1] >= '0' && semantic[i-1] <= '9' {
		i--
	}
	if i == len(semantic) {
		return semantic, 0
	}
	idx, _ := strconv.Atoi(semantic[i:])
	return semantic[:i], idx
}

func paramToAttribute(p graph.Param) Attribute {
	sem, idx := splitSemanticIdx(p.Name)
	return Attribute{Semantic: sem, Idx: idx, Type: p.Type}
}

func containsAttr(set []Attribute, a Attribute) bool {
	for _, s := range set {
		if s.Semantic == a.Semantic && s.Idx == a.Idx {
			return true
		}
	}
	return false
}

func attributesByDirection(sig graph.Signature, dir graph.Direction) []Attribute {
	var out []Attribute
	for _, p := range sig.Params {
		if p.Direction == dir {
			out = append(out, paramToAttribute(p))
		}
	}
	return out
}

// updateActiveAttributesBackwards asks whether sig is enabled given
// the set of attributes active after it (postActive): a patch is
// enabled if it writes any currently-active attribute, or any
// "SV_"-prefixed system value. When enabled, the returned set is
// postActive with sig's exclusive writes removed and sig's reads
// added; when not, postActive is returned unchanged. Membership tests
// against postActive and the write set run against an interned
// bitvec.V rather than a linear scan, since this is the backward
// pass's dominant operation over potentially large attribute sets.
func updateActiveAttributesBackwards(interner *attrInterner, sig graph.Signature, postActive []Attribute) (result []Attribute, enabled bool) {
	postSet := newAttrSet(interner, postActive)
	for _, p := range sig.Params {
		if p.Direction != graph.Out {
			continue
		}
		sem, _ := splitSemanticIdx(p.Name)
		if len(sem) >= 3 && sem[:3] == "SV_" {
			enabled = true
			break
		}
		if postSet.has(paramToAttribute(p)) {
			enabled = true
			break
		}
	}
	if !enabled {
		result = append(result, postActive...)
		return
	}

	writeSet := newAttrSet(interner, attributesByDirection(sig, graph.Out))
	for _, a := range postActive {
		if !writeSet.has(a) {
			result = append(result, a)
		}
	}
	resultSet := newAttrSet(interner, result)
	for _, a := range attributesByDirection(sig, graph.In) {
		if !resultSet.has(a) {
			result = append(result, a)
			resultSet.add(a)
		}
	}
	return
}

// maxSystemPatchIterations bounds system-patch insertion at a
// 32-iteration convergence ceiling.
const maxSystemPatchIterations = 32

// arrangeStage runs backwards liveness over patches starting from
// required (the stage's output attributes), dropping patches that
// never become enabled and inserting library system patches to cover
// attributes nothing in patches provides. It returns the ordered,
// enabled patch list and the attributes still needed from outside the
// stage (e.g. from an earlier stage, or the input assembler).
func arrangeStage(patches []Patch, required []Attribute, library []SystemPatch, stageTag Tag) ([]Patch, []Attribute, error) {
	working := append([]Patch(nil), patches...)

	for iter := 0; ; iter++ {
		interner := newAttrInterner()
		active := required
		enabled := make([]bool, len(working))
		for i := len(working) - 1; i >= 0; i-- {
			result, en := updateActiveAttributesBackwards(interner, working[i].Signature, active)
			active = result
			enabled[i] = en
		}

		var kept []Patch
		for i, p := range working {
			if enabled[i] {
				kept = append(kept, p)
			}
		}

		if len(active) == 0 {
			return kept, nil, nil
		}

		best, ok := pickSystemPatch(library, active)
		if !ok {
			return kept, active, nil
		}
		if iter >= maxSystemPatchIterations {
			return nil, nil, fmt.Errorf("sprite: system-patch insertion for %s did not converge within %d iterations",
				stageTag, maxSystemPatchIterations)
		}

		inserted := Patch{Name: best.Name, Tag: stageTag, Signature: best.Signature}
		working = append([]Patch{inserted}, kept...)
	}
}

// pickSystemPatch scores library candidates by (matched outputs
// descending, unmatched inputs ascending, library position ascending)
// and returns the best scorer that provides at least one needed
// attribute.
func pickSystemPatch(library []SystemPatch, needed []Attribute) (SystemPatch, bool) {
	best := -1
	var bestMatched, bestUnmatched int
	for i, sp := range library {
		matched := 0
		for _, o := range attributesByDirection(sp.Signature, graph.Out) {
			if containsAttr(needed, o) {
				matched++
			}
		}
		if matched == 0 {
			continue
		}
		unmatched := 0
		for _, in := range attributesByDirection(sp.Signature, graph.In) {
			if !containsAttr(needed, in) {
				unmatched++
			}
		}
		if best == -1 || matched > bestMatched || (matched == bestMatched && unmatched < bestUnmatched) {
			best, bestMatched, bestUnmatched = i, matched, unmatched
		}
	}
	if best == -1 {
		return SystemPatch{}, false
	}
	return library[best], true
}

// StageFragment is one synthesized HLSL fragment plus the signature
// FragmentWriter assembled for it.
type StageFragment struct {
	Source    string
	Signature graph.Signature
}

var svPosition = Attribute{Semantic: "SV_Position", Idx: 0, Type: "float4"}

// Arrange partitions patches by tag, arranges each of the PS, GS
// (optional) and VS stages back to front, and emits their HLSL
// fragments. iaAttributes are the input-assembler
// attribute semantics available to the vertex stage; any attribute
// still needed after arranging VS that is not among them is an error.
func Arrange(patches []Patch, iaAttributes []Attribute, library []SystemPatch) (vs, gs, ps *StageFragment, err error) {
	var psPatches, gsPatches, vsPatches []Patch
	for _, p := range patches {
		switch p.Tag {
		case SpritePS, AutoPS:
			psPatches = append(psPatches, p)
		case SpriteGS, SpriteGSPredicate:
			gsPatches = append(gsPatches, p)
		case SpriteVS, AutoVS:
			vsPatches = append(vsPatches, p)
		}
	}

	psRequired := []Attribute{{Semantic: "SV_Target", Idx: 0, Type: "float4"}}
	psOrdered, psNeeded, err := arrangeStage(psPatches, psRequired, library, SpritePS)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("sprite: pixel stage: %w", err)
	}

	hasGS := len(gsPatches) > 0
	var gsOrdered []Patch
	gsNeeded := psNeeded
	if hasGS {
		gsRequired := append([]Attribute{svPosition}, psNeeded...)
		gsOrdered, gsNeeded, err = arrangeStage(gsPatches, gsRequired, library, SpriteGS)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("sprite: geometry stage: %w", err)
		}
	}

	vsOrdered, vsNeeded, err := arrangeStage(vsPatches, gsNeeded, library, SpriteVS)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("sprite: vertex stage: %w", err)
	}
	for _, a := range vsNeeded {
		if !containsAttr(iaAttributes, a) {
			return nil, nil, nil, fmt.Errorf("sprite: attribute %s not provided by input assembler or any patch",
				a.semanticAndIdx())
		}
	}

	vs = emitVS(vsOrdered, vsNeeded)
	if hasGS {
		gs = emitGS(gsOrdered, gsNeeded, psNeeded)
	}
	ps = emitPS(psOrdered, psNeeded)
	return vs, gs, ps, nil
}

func emitVS(ordered []Patch, externalNeeded []Attribute) *StageFragment {
	w := newFragmentWriter()
	for _, a := range externalNeeded {
		w.WriteInputParameter(a)
	}
	for _, p := range ordered {
		w.WriteCall(p.Name, p.Signature)
	}
	return &StageFragment{Source: w.complete("VSMain"), Signature: w.signature}
}

func emitPS(ordered []Patch, externalNeeded []Attribute) *StageFragment {
	w := newFragmentWriter()
	for _, a := range externalNeeded {
		w.WriteInputParameter(a)
	}
	for _, p := range ordered {
		w.WriteCall(p.Name, p.Signature)
	}
	w.WriteOutputParameter(Attribute{Semantic: "SV_Target", Idx: 0, Type: "float4"})
	return &StageFragment{Source: w.complete("PSMain"), Signature: w.signature}
}

// emitGS additionally declares the GSInput/GSOutput structs and
// appends four output vertices.
func emitGS(ordered []Patch, externalNeeded, outputsForPS []Attribute) *StageFragment {
	var b fragBuilder
	b.writeln("struct GSInput {")
	for _, a := range externalNeeded {
		b.writelnf("\t%s v_%s : %s;", a.Type, fieldName(a), a.semanticAndIdx())
	}
	b.writeln("};")
	b.writeln("")
	b.writeln("struct GSOutput {")
	for _, a := range outputsForPS {
		b.writelnf("\t%s v_%s : %s;", a.Type, fieldName(a), a.semanticAndIdx())
	}
	b.writeln("\tfloat4 position : SV_Position;")
	b.writeln("};")
	b.writeln("")

	w := newFragmentWriter()
	for _, a := range externalNeeded {
		w.WriteInputParameter(a)
	}
	for _, p := range ordered {
		w.WriteCall(p.Name, p.Signature)
	}
	for _, a := range outputsForPS {
		w.WriteOutputParameter(a)
	}
	b.writeString(w.complete("GSMain"))

	b.writeln("")
	b.writeln("\t[maxvertexcount(4)]")
	b.writeln("\tGSOutput output;")
	for i := 0; i < 4; i++ {
		b.writelnf("\tappend.Append(output); // vertex %d", i)
	}

	return &StageFragment{Source: b.String(), Signature: w.signature}
}

func fieldName(a Attribute) string {
	if a.Idx == 0 {
		return a.Semantic
	}
	return fmt.Sprintf("%s_%d", a.Semantic, a.Idx)
}

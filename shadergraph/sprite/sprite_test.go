// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package sprite

import (
	"strings"
	"testing"

	"github.com/gviegas/forge/shadergraph/graph"
)

func TestSplitSemanticIdx(t *testing.T) {
	cases := []struct {
		in       string
		sem      string
		idx      int
	}{
		{"POSITION", "POSITION", 0},
		{"COLOR0", "COLOR", 0},
		{"COLOR1", "COLOR", 1},
		{"SV_Target", "SV_Target", 0},
	}
	for _, c := range cases {
		sem, idx := splitSemanticIdx(c.in)
		if sem != c.sem || idx != c.idx {
			t.Fatalf("splitSemanticIdx(%q):\nhave (%q, %d)\nwant (%q, %d)", c.in, sem, idx, c.sem, c.idx)
		}
	}
}

// TestArrangeTwoRawPatches reproduces the sprite-arranger scenario:
// three raw patches tagged SV_SpriteVS/SV_SpriteGS/SV_SpritePS plus IA
// attributes {POSITION, COLOR} yield three non-empty fragments, with
// the GS fragment declaring input/output structs and four vertices,
// all within the 32-iteration convergence ceiling.
func TestArrangeTwoRawPatches(t *testing.T) {
	vsPatch := Patch{
		Name: "vs_passthrough",
		Tag:  SpriteVS,
		Signature: graph.Signature{
			Params: []graph.Param{
				{Name: "POSITION", Type: "float3", Direction: graph.In},
				{Name: "COLOR", Type: "float4", Direction: graph.In},
				{Name: "SV_Position", Type: "float4", Direction: graph.Out},
				{Name: "COLOR", Type: "float4", Direction: graph.Out},
			},
		},
	}
	gsPatch := Patch{
		Name: "gs_expand",
		Tag:  SpriteGS,
		Signature: graph.Signature{
			Params: []graph.Param{
				{Name: "SV_Position", Type: "float4", Direction: graph.In},
				{Name: "COLOR", Type: "float4", Direction: graph.In},
				{Name: "SV_Position", Type: "float4", Direction: graph.Out},
				{Name: "COLOR", Type: "float4", Direction: graph.Out},
			},
		},
	}
	psPatch := Patch{
		Name: "ps_output",
		Tag:  SpritePS,
		Signature: graph.Signature{
			Params: []graph.Param{
				{Name: "COLOR", Type: "float4", Direction: graph.In},
				{Name: "SV_Target", Type: "float4", Direction: graph.Out},
			},
		},
	}

	ia := []Attribute{
		{Semantic: "POSITION", Idx: 0, Type: "float3"},
		{Semantic: "COLOR", Idx: 0, Type: "float4"},
	}

	vs, gs, ps, err := Arrange([]Patch{vsPatch, gsPatch, psPatch}, ia, nil)
	if err != nil {
		t.Fatalf("Arrange:\nhave error %v\nwant nil", err)
	}
	if vs == nil || vs.Source == "" {
		t.Fatalf("Arrange: vs fragment is empty")
	}
	if ps == nil || ps.Source == "" {
		t.Fatalf("Arrange: ps fragment is empty")
	}
	if gs == nil || gs.Source == "" {
		t.Fatalf("Arrange: gs fragment is empty")
	}
	if !strings.Contains(gs.Source, "struct GSInput") || !strings.Contains(gs.Source, "struct GSOutput") {
		t.Fatalf("Arrange: gs fragment missing struct declarations:\n%s", gs.Source)
	}
	if strings.Count(gs.Source, "append.Append(output)") != 4 {
		t.Fatalf("Arrange: gs fragment does not emit exactly four output vertices:\n%s", gs.Source)
	}
}

func TestArrangeFillsMissingAttributeFromSystemPatchLibrary(t *testing.T) {
	psPatch := Patch{
		Name: "ps_shade",
		Tag:  SpritePS,
		Signature: graph.Signature{
			Params: []graph.Param{
				{Name: "NORMAL", Type: "float3", Direction: graph.In},
				{Name: "SV_Target", Type: "float4", Direction: graph.Out},
			},
		},
	}
	vsPatch := Patch{
		Name: "vs_passthrough",
		Tag:  SpriteVS,
		Signature: graph.Signature{
			Params: []graph.Param{
				{Name: "POSITION", Type: "float3", Direction: graph.In},
				{Name: "SV_Position", Type: "float4", Direction: graph.Out},
			},
		},
	}
	library := []SystemPatch{
		{
			Name: "sys_compute_normal",
			Signature: graph.Signature{
				Params: []graph.Param{
					{Name: "POSITION", Type: "float3", Direction: graph.In},
					{Name: "NORMAL", Type: "float3", Direction: graph.Out},
				},
			},
		},
	}
	ia := []Attribute{{Semantic: "POSITION", Idx: 0, Type: "float3"}}

	vs, gs, ps, err := Arrange([]Patch{vsPatch, psPatch}, ia, library)
	if err != nil {
		t.Fatalf("Arrange:\nhave error %v\nwant nil", err)
	}
	if gs != nil {
		t.Fatalf("Arrange: have gs fragment, want nil (no GS patches supplied)")
	}
	if !strings.Contains(ps.Source, "ps_shade") {
		t.Fatalf("Arrange: ps fragment missing its own call:\n%s", ps.Source)
	}
	if !strings.Contains(ps.Source, "sys_compute_normal") {
		t.Fatalf("Arrange: ps fragment missing inserted system patch sys_compute_normal:\n%s", ps.Source)
	}
	if !strings.Contains(vs.Source, "vs_passthrough") {
		t.Fatalf("Arrange: vs fragment missing its own call:\n%s", vs.Source)
	}
}

func TestArrangeUnresolvedAttributeFails(t *testing.T) {
	psPatch := Patch{
		Name: "ps_shade",
		Tag:  SpritePS,
		Signature: graph.Signature{
			Params: []graph.Param{
				{Name: "TANGENT", Type: "float3", Direction: graph.In},
				{Name: "SV_Target", Type: "float4", Direction: graph.Out},
			},
		},
	}
	_, _, _, err := Arrange([]Patch{psPatch}, nil, nil)
	if err == nil {
		t.Fatalf("Arrange:\nhave nil error\nwant error for unresolved TANGENT attribute")
	}
}

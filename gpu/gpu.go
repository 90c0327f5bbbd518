// Copyright 2023 Gustavo C. Viegas. All rights reserved.

// Package gpu declares the core's three external collaborators: an
// opaque device handle, a shader-bytecode compiler, and a fixed
// pipeline layout describing named descriptor-set slots. The core
// never implements any of these — it only consumes them, the same way
// a renderer consumes a graphics-device handle without itself
// implementing a graphics API.
package gpu

import "errors"

// Device is an opaque handle to the underlying graphics device. The
// core never calls methods on it; it exists so that collaborators
// (a BytecodeCompiler, a real pipeline builder downstream of this
// core) can be handed the same device reference the host already
// opened.
type Device any

// Stage identifies the shader stage bytecode is compiled for.
type Stage int

const (
	StageVertex Stage = iota
	StageGeometry
	StagePixel
	StageCompute
)

func (s Stage) String() string {
	switch s {
	case StageVertex:
		return "vertex"
	case StageGeometry:
		return "geometry"
	case StagePixel:
		return "pixel"
	case StageCompute:
		return "compute"
	default:
		return "stage(?)"
	}
}

// ErrUnsupportedStage is returned by a BytecodeCompiler asked to
// compile for a stage it does not support.
var ErrUnsupportedStage = errors.New("gpu: unsupported shader stage")

// BytecodeCompiler turns HLSL-like source text produced by the
// instantiator into backend-specific bytecode. Real implementations
// wrap a driver-specific compiler (DXC, glslang, etc.); this core only
// depends on the interface.
type BytecodeCompiler interface {
	Compile(stage Stage, source string, entryPoint string) ([]byte, error)
}

// SlotType classifies a descriptor-set slot.
type SlotType int

const (
	SlotConstantBuffer SlotType = iota
	SlotTexture
	SlotSampler
	SlotUAV
	SlotRawUAV // non-dynamic-offset UAV, upgradeable to a dynamic-offset slot
)

func (t SlotType) String() string {
	switch t {
	case SlotConstantBuffer:
		return "cbv"
	case SlotTexture:
		return "srv"
	case SlotSampler:
		return "sampler"
	case SlotUAV:
		return "uav"
	case SlotRawUAV:
		return "raw-uav"
	default:
		return "slot(?)"
	}
}

// Slot is one named, indexed entry of a PipelineLayout.
type Slot struct {
	Name          string
	SlotIdx       int
	Type          SlotType
	ArrayCount    int
	CBIdx         int // index into PipelineLayout.ConstantBuffers; -1 if not a CB slot
	FixedSampler  int // index into PipelineLayout.FixedSamplers; -1 if none
	DynamicOffset bool
}

// CBField is one member of a ConstantBuffer.
type CBField struct {
	Name   string
	Type   string // e.g. "float4", "float4x4"
	Offset int
}

// ConstantBuffer is a named, ordered set of fields backing one or
// more CB slots. Two ConstantBuffer values are considered the same CB
// for linking purposes ("fold cb_idx back-references") when they are
// pointer-identical.
type ConstantBuffer struct {
	Name   string
	Fields []CBField
}

// FixedSampler is a sampler baked into the pipeline layout rather than
// bound per draw.
type FixedSampler struct {
	Name string
}

// PipelineLayout is the fixed target layout the descriptor-set linker
// (shadergraph/desclink) must conform instantiated descriptor sets to:
// the pipeline-layout input supplied by the embedding host.
type PipelineLayout struct {
	Slots           []Slot
	ConstantBuffers []*ConstantBuffer
	FixedSamplers   []FixedSampler

	// AllowSlotTypeModification relaxes linking step 1/4: unmatched
	// input slots may receive freshly allocated indices instead of
	// being required to fit an existing fixed-layout slot.
	AllowSlotTypeModification bool
}

// SlotByName returns the fixed-layout slot with the given name, if
// any.
func (p *PipelineLayout) SlotByName(name string) (Slot, bool) {
	for _, s := range p.Slots {
		if s.Name == name {
			return s, true
		}
	}
	return Slot{}, false
}

// SlotByIndex returns the fixed-layout slot at the given slot index,
// if any.
func (p *PipelineLayout) SlotByIndex(idx int) (Slot, bool) {
	for _, s := range p.Slots {
		if s.SlotIdx == idx {
			return s, true
		}
	}
	return Slot{}, false
}

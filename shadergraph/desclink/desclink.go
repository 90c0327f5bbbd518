// Copyright 2023 Gustavo C. Viegas. All rights reserved.

// Package desclink implements the descriptor-set linker: given a
// material's captured input layout and a fixed pipeline layout, it
// produces a linked layout conforming to the fixed layout's slot
// indices. It generalizes a fixed four-descriptor-heap scheme into a
// data-driven linker over arbitrary named slots.
package desclink

import (
	"errors"
	"fmt"
	"sort"

	"github.com/gviegas/forge/gpu"
)

// ErrLinkMismatch is returned when an input slot cannot be placed
// anywhere in the fixed layout and AllowSlotTypeModification is not
// set.
var ErrLinkMismatch = errors.New("desclink: unmatched input slot")

// work pairs a slot with the *gpu.ConstantBuffer it actually refers
// to (nil for non-CB slots), resolved from whichever layout (input or
// fixed) originally owned it. Slot.CBIdx is only meaningful relative
// to its owning layout's ConstantBuffers slice, so it must be
// resolved to a pointer before slots from both layouts can be mixed.
type work struct {
	slot gpu.Slot
	cb   *gpu.ConstantBuffer
}

func resolveCB(l *gpu.PipelineLayout, s gpu.Slot) *gpu.ConstantBuffer {
	if s.Type != gpu.SlotConstantBuffer || s.CBIdx < 0 || s.CBIdx >= len(l.ConstantBuffers) {
		return nil
	}
	return l.ConstantBuffers[s.CBIdx]
}

// Link conforms input to fixed in six steps: explicit index, then
// same-name preference, then first compatible free slot, then (when
// allowed) fresh allocation or pass-through of untouched fixed slots,
// then cb_idx back-reference folding, then a final sort by index.
func Link(input, fixed *gpu.PipelineLayout) (*gpu.PipelineLayout, error) {
	usedFixed := make([]bool, len(fixed.Slots))
	placed := make(map[int]work) // slot index -> placement

	var unassigned []work
	for _, s := range input.Slots {
		w := work{slot: s, cb: resolveCB(input, s)}
		if s.SlotIdx < 0 {
			unassigned = append(unassigned, w)
			continue
		}
		// Step 1: explicit slot index.
		if idx, ok := indexOf(fixed.Slots, s.SlotIdx); ok {
			fs := fixed.Slots[idx]
			if !compatible(s, fs) && !input.AllowSlotTypeModification {
				return nil, fmt.Errorf("%w: %q at index %d incompatible with fixed slot %q",
					ErrLinkMismatch, s.Name, s.SlotIdx, fs.Name)
			}
			usedFixed[idx] = true
		}
		placed[s.SlotIdx] = w
	}

	// Step 2: same-name preference.
	var afterStep2 []work
	for _, w := range unassigned {
		if idx, ok := findUnusedByName(fixed.Slots, usedFixed, w.slot); ok {
			usedFixed[idx] = true
			w.slot.SlotIdx = fixed.Slots[idx].SlotIdx
			placed[w.slot.SlotIdx] = w
			continue
		}
		afterStep2 = append(afterStep2, w)
	}

	// Step 3: first unused compatible fixed slot.
	var unmatched []work
	for _, w := range afterStep2 {
		if idx, ok := findUnusedCompatible(fixed.Slots, usedFixed, w.slot); ok {
			usedFixed[idx] = true
			w.slot.SlotIdx = fixed.Slots[idx].SlotIdx
			placed[w.slot.SlotIdx] = w
			continue
		}
		unmatched = append(unmatched, w)
	}

	// Step 4.
	if input.AllowSlotTypeModification {
		next := nextFreeIndex(placed)
		for _, fs := range fixed.Slots {
			if fs.SlotIdx >= next {
				next = fs.SlotIdx + 1
			}
		}
		for _, w := range unmatched {
			w.slot.SlotIdx = next
			placed[next] = w
			next++
		}
	} else {
		if len(unmatched) > 0 {
			return nil, fmt.Errorf("%w: %q has no compatible fixed-layout slot", ErrLinkMismatch, unmatched[0].slot.Name)
		}
		for i, fs := range fixed.Slots {
			if usedFixed[i] {
				continue
			}
			if _, occupied := placed[fs.SlotIdx]; occupied {
				continue
			}
			placed[fs.SlotIdx] = work{slot: fs, cb: resolveCB(fixed, fs)}
		}
	}

	return assemble(input.AllowSlotTypeModification, placed), nil
}

func indexOf(slots []gpu.Slot, slotIdx int) (int, bool) {
	for i, s := range slots {
		if s.SlotIdx == slotIdx {
			return i, true
		}
	}
	return -1, false
}

func findUnusedByName(slots []gpu.Slot, used []bool, in gpu.Slot) (int, bool) {
	for i, s := range slots {
		if used[i] || s.Name != in.Name {
			continue
		}
		if compatible(in, s) {
			return i, true
		}
	}
	return -1, false
}

func findUnusedCompatible(slots []gpu.Slot, used []bool, in gpu.Slot) (int, bool) {
	for i, s := range slots {
		if used[i] {
			continue
		}
		if compatible(in, s) {
			return i, true
		}
	}
	return -1, false
}

func nextFreeIndex(placed map[int]work) int {
	max := -1
	for idx := range placed {
		if idx > max {
			max = idx
		}
	}
	return max + 1
}

// compatible reports whether an input slot may occupy a fixed-layout
// slot: exact type match, or a non-dynamic-offset UAV upgrading to a
// dynamic-offset UAV slot.
func compatible(in, fixed gpu.Slot) bool {
	if in.Type == fixed.Type && in.ArrayCount <= fixed.ArrayCount {
		return true
	}
	if in.Type == gpu.SlotRawUAV && fixed.Type == gpu.SlotUAV && fixed.DynamicOffset {
		return true
	}
	return false
}

// assemble folds CB back-references by pointer identity (step 5) and
// sorts the output slots by index (step 6).
func assemble(allowModification bool, placed map[int]work) *gpu.PipelineLayout {
	out := &gpu.PipelineLayout{AllowSlotTypeModification: allowModification}
	cbIndex := make(map[*gpu.ConstantBuffer]int)

	indices := make([]int, 0, len(placed))
	for idx := range placed {
		indices = append(indices, idx)
	}
	sort.Ints(indices)

	for _, idx := range indices {
		w := placed[idx]
		s := w.slot
		s.SlotIdx = idx
		if w.cb != nil {
			i, ok := cbIndex[w.cb]
			if !ok {
				out.ConstantBuffers = append(out.ConstantBuffers, w.cb)
				i = len(out.ConstantBuffers) - 1
				cbIndex[w.cb] = i
			}
			s.CBIdx = i
		}
		out.Slots = append(out.Slots, s)
	}
	return out
}

// cbFieldSize returns a rough packing size, in bytes, for a
// constant-buffer field's HLSL type. This is a
// simplified stand-in for a real std140/HLSL cbuffer packing
// optimizer (real shader codegen is out of scope here); it is enough
// to produce deterministic, non-overlapping offsets.
func cbFieldSize(t string) int {
	switch t {
	case "float", "int", "uint", "bool":
		return 4
	case "float2":
		return 8
	case "float3":
		return 12
	case "float4":
		return 16
	case "float4x4":
		return 64
	default:
		return 16
	}
}

// PackConstantBuffer assigns byte offsets to cb's fields in their
// current order, per the "sort by name then optimize element order
// for packing" convention — ordering is the caller's
// responsibility (shadergraph sorts by name before calling this);
// PackConstantBuffer only assigns offsets.
func PackConstantBuffer(cb *gpu.ConstantBuffer) {
	offset := 0
	for i := range cb.Fields {
		cb.Fields[i].Offset = offset
		offset += cbFieldSize(cb.Fields[i].Type)
	}
}

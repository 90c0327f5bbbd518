// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package shadergraph

import (
	"github.com/cespare/xxhash/v2"
	"github.com/mitchellh/hashstructure"

	"github.com/gviegas/forge/shadergraph/graph"
)

// CalculateInstanceHash folds an InstantiationRequest into a 64-bit
// fingerprint: hashstructure walks the struct (and, transitively,
// every nested *InstantiationRequest in ParameterBindings) in field
// and slice order, so the fold is order-sensitive over bindings and
// curried parameters and is stable across processes for identical
// request trees. CustomProvider is excluded via its `hash:"ignore"`
// tag since it carries no reproducible identity.
func CalculateInstanceHash(req *InstantiationRequest) (uint64, error) {
	h, err := hashstructure.Hash(req, nil)
	if err != nil {
		return 0, err
	}
	return h, nil
}

// PatchCollectionFingerprint hashes the deserialized content of a
// patch collection (its entries, in the order ParsePatchCollection
// produced them) so that two collections with identical content hash
// equal regardless of how the bytes were whitespace-formatted.
// xxhash provides the 64-bit digest; cespare/xxhash is already used
// for path-segment hashing (mount.Tree), reused here for consistency.
func PatchCollectionFingerprint(entries []graph.PatchEntry) uint64 {
	d := xxhash.New()
	writeEntries(d, entries)
	return d.Sum64()
}

func writeEntries(d *xxhash.Digest, entries []graph.PatchEntry) {
	for _, e := range entries {
		d.Write([]byte(e.Name))
		d.Write([]byte{0})
		d.Write([]byte(e.ArchiveRef))
		d.Write([]byte{0})
		d.Write([]byte(e.Implements))
		d.Write([]byte{0})
		writeEntries(d, e.Params)
		d.Write([]byte{1}) // block terminator, disambiguates nesting depth
	}
}

package storage

import (
	"fmt"

	gocid "github.com/ipfs/go-cid"
	"github.com/multiformats/go-multibase"
	"github.com/multiformats/go-multihash"
)

// computeCID and cidToString are adapted from the teacher's
// internal/dag/store.go (ObjectStore.ComputeCID / CIDToFilename). There,
// the CID was the primary on-disk filename; here it is secondary to the
// spec-mandated hex rootHash key layout (§4.6 Variant B) and is instead
// stamped into each object's structured user metadata, so a caller that
// already speaks CIDs (e.g. an IPFS-aware auditor) can cross-reference a
// stored tree body without recomputing its hash.

// computeCID derives a CIDv1 (raw codec, SHA2-256 multihash) over data.
func computeCID(data []byte) (gocid.Cid, error) {
	mh, err := multihash.Sum(data, multihash.SHA2_256, -1)
	if err != nil {
		return gocid.Undef, fmt.Errorf("storage: compute cid: %w", err)
	}
	return gocid.NewCidV1(gocid.Raw, mh), nil
}

// cidToString renders c as base32-lowercase multibase text, suitable for an
// HTTP header value.
func cidToString(c gocid.Cid) string {
	encoded, _ := multibase.Encode(multibase.Base32, c.Bytes())
	return encoded
}

// Package hash computes the deterministic identifiers and payload-binding
// digests used throughout the treasury arbitration domain. It uses blake3
// as the 256-bit collision-resistant hash in place of the distilled
// reference's SHA-256; both are generic 256-bit digests and the rest of
// this module's dependency stack already reaches for blake3 for exactly
// this purpose.
package hash

import (
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"lukechampine.com/blake3"
)

// Digest is a 256-bit blake3 output.
type Digest [32]byte

// MarshalJSON renders a Digest as a hex string rather than a 32-element
// number array.
func (d Digest) MarshalJSON() ([]byte, error) {
	return json.Marshal(hex.EncodeToString(d[:]))
}

// UnmarshalJSON parses a Digest from its hex string form.
func (d *Digest) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	raw, err := hex.DecodeString(s)
	if err != nil {
		return err
	}
	if len(raw) != 32 {
		return fmt.Errorf("digest must be 32 bytes, got %d", len(raw))
	}
	copy(d[:], raw)
	return nil
}

func sum(parts ...[]byte) Digest {
	h := blake3.New(32, nil)
	for _, p := range parts {
		h.Write(p)
	}
	var out Digest
	copy(out[:], h.Sum(nil))
	return out
}

// PayoutID is the compact 64-bit identifier derived from a payout's
// immutable fields: the owning safe, asset type, recipient, amount, the
// optional mint, and an optional metadata hash. It is the low 8 bytes of
// the full payload digest read back as a little-endian uint64, mirroring
// compute_payout_id's truncation of the original's SHA-256 digest.
func PayoutID(safe, recipient [20]byte, assetType byte, amount uint64, mint *[20]byte, metadataHash *Digest) uint64 {
	amountLE := make([]byte, 8)
	binary.LittleEndian.PutUint64(amountLE, amount)

	parts := [][]byte{safe[:], {assetType}, recipient[:], amountLE}
	if mint != nil {
		parts = append(parts, mint[:])
	}
	if metadataHash != nil {
		parts = append(parts, metadataHash[:])
	}
	digest := sum(parts...)
	return binary.LittleEndian.Uint64(digest[:8])
}

// QueuePayloadHash binds the full arguments of a queue_payout command to
// the policy snapshot that was active at queue time, so a governance-proof
// authorization cannot be replayed against a payout queued under a
// different policy. Same shape as PayoutID but keyed by the policy's
// identity rather than the safe, and returned as the full 256-bit digest.
func QueuePayloadHash(safePolicy, recipient [20]byte, assetType byte, amount uint64, mint *[20]byte, metadataHash *Digest) Digest {
	amountLE := make([]byte, 8)
	binary.LittleEndian.PutUint64(amountLE, amount)

	parts := [][]byte{safePolicy[:], {assetType}, recipient[:], amountLE}
	if mint != nil {
		parts = append(parts, mint[:])
	}
	if metadataHash != nil {
		parts = append(parts, metadataHash[:])
	}
	return sum(parts...)
}

// ProgramID derives a deterministic 20-byte identity for a named
// governance program, the same blake3-derivation-over-a-seed idiom this
// module uses for vault keys: operators configure known governance
// programs by human-readable name, and this projects that name down to
// the 20-byte identity space proposal accounts are compared against.
func ProgramID(name string) [20]byte {
	digest := sum([]byte("governance_program"), []byte(name))
	var out [20]byte
	copy(out[:], digest[12:])
	return out
}

// RulingPayloadHash binds a record_ruling command to the specific payout,
// dispute round, outcome and finality flag it is ruling on.
func RulingPayloadHash(payoutID uint64, round uint8, outcome byte, isFinal bool) Digest {
	idLE := make([]byte, 8)
	binary.LittleEndian.PutUint64(idLE, payoutID)
	finalByte := byte(0)
	if isFinal {
		finalByte = 1
	}
	return sum(idLE, []byte{round}, []byte{outcome}, []byte{finalByte})
}

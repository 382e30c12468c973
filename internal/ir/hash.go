package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity.
// The version suffix allows the key algorithm to change without collisions.
const (
	DomainExec     = "pymd/exec/v1"
	DomainDisplay  = "pymd/display/v1"
	DomainBlock    = "pymd/block/v1"
	DomainDocument = "pymd/document/v1"
	DomainState    = "pymd/state/v1"
)

// hashWithDomain computes SHA256(domain + 0x00 + data) as lower-case hex.
// The null separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// contentDigest hashes raw bytes without normalization. Key material that
// carries user text goes through it first so that texts differing only in
// Unicode normalization or invalid bytes never share a key.
func contentDigest(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

func snapshotMaterial(snap Snapshot) []any {
	pairs := make([]any, len(snap))
	for i, b := range snap {
		pairs[i] = []string{contentDigest(b.Name), contentDigest(b.Repr)}
	}
	return pairs
}

func mustHash(domain string, material any) string {
	canonical, err := MarshalCanonical(material)
	if err != nil {
		// Material is built from ints, strings and []any only.
		panic(fmt.Sprintf("%s: %v", domain, err))
	}
	return hashWithDomain(domain, canonical)
}

// ExecKey derives the cache key for an executable block.
//
// The key covers the block position, its exact text, and the sorted snapshot
// of the environment it runs against. Identical text at another position
// yields a different key.
func ExecKey(index int, text string, snap Snapshot) string {
	return mustHash(DomainExec, []any{index, contentDigest(text), snapshotMaterial(snap)})
}

// DisplayKey derives the cache key for a display block. It depends on the
// text only.
func DisplayKey(text string) string {
	return mustHash(DomainDisplay, []any{contentDigest(text)})
}

// BlockHash fingerprints a block for change detection. Position is excluded;
// comparison is positional in the caller.
func BlockHash(b ScriptBlock) string {
	return mustHash(DomainBlock, []any{b.Kind.String(), contentDigest(b.Source)})
}

// DocumentHash fingerprints raw document text for the whole-document shortcut.
func DocumentHash(raw string) string {
	return hashWithDomain(DomainDocument, []byte(raw))
}

// StateDigest fingerprints a snapshot.
func StateDigest(snap Snapshot) string {
	return mustHash(DomainState, snapshotMaterial(snap))
}

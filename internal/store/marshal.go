package store

import (
	"encoding/json"
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/treeleaves30760/PyMD/internal/ir"
)

// stateEncMode encodes snapshots with RFC 8949 core deterministic rules so
// equal snapshots always produce equal bytes.
var stateEncMode = mustEncMode()

func mustEncMode() cbor.EncMode {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("store: cbor enc mode: %v", err))
	}
	return em
}

// marshalPostState converts a snapshot to canonical CBOR for the post_state BLOB.
// Bindings are stored as [name, repr] pairs in snapshot order.
func marshalPostState(snap ir.Snapshot) ([]byte, error) {
	pairs := make([][2]string, len(snap))
	for i, b := range snap {
		pairs[i] = [2]string{b.Name, b.Repr}
	}
	data, err := stateEncMode.Marshal(pairs)
	if err != nil {
		return nil, fmt.Errorf("marshal post state: %w", err)
	}
	return data, nil
}

// unmarshalPostState parses a post_state BLOB back into a snapshot.
func unmarshalPostState(data []byte) (ir.Snapshot, error) {
	var pairs [][2]string
	if err := cbor.Unmarshal(data, &pairs); err != nil {
		return nil, fmt.Errorf("unmarshal post state: %w", err)
	}
	snap := make(ir.Snapshot, len(pairs))
	for i, p := range pairs {
		snap[i] = ir.Binding{Name: p[0], Repr: p[1]}
	}
	return snap, nil
}

// marshalHeavyImports converts module names to canonical JSON TEXT.
func marshalHeavyImports(modules []string) (string, error) {
	if modules == nil {
		modules = []string{}
	}
	data, err := ir.MarshalCanonical(modules)
	if err != nil {
		return "", fmt.Errorf("marshal heavy imports: %w", err)
	}
	return string(data), nil
}

// unmarshalHeavyImports parses heavy_imports TEXT. An empty list reads back as nil.
func unmarshalHeavyImports(data string) ([]string, error) {
	if data == "" || data == "[]" {
		return nil, nil
	}
	var modules []string
	if err := json.Unmarshal([]byte(data), &modules); err != nil {
		return nil, fmt.Errorf("unmarshal heavy imports: %w", err)
	}
	return modules, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

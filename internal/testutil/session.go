package testutil

// FixedSessionGenerator returns the same session ID every time.
//
// The same scenario run with the same generator produces byte-identical
// execution logs. Unlike engine.FixedGenerator, which returns IDs in
// sequence, it never runs out.
type FixedSessionGenerator struct {
	id string
}

// NewFixedSessionGenerator creates a generator for id.
// If id is empty, Generate returns "test-session-default".
func NewFixedSessionGenerator(id string) *FixedSessionGenerator {
	if id == "" {
		id = "test-session-default"
	}
	return &FixedSessionGenerator{id: id}
}

// Generate returns the fixed session ID.
// Implements engine.SessionIDGenerator.
func (g *FixedSessionGenerator) Generate() string {
	return g.id
}

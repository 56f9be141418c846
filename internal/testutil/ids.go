package testutil

// FixedIDGenerator returns the same worker instance id every time.
//
// This keeps worker log output stable across runs so that scenario traces
// and diagnostics can be compared byte-for-byte.
//
// Thread-safety: FixedIDGenerator is stateless and safe for concurrent use.
type FixedIDGenerator struct {
	id string
}

// NewFixedIDGenerator creates a generator that always returns id.
// If id is empty, Generate() returns "test-worker".
func NewFixedIDGenerator(id string) *FixedIDGenerator {
	if id == "" {
		id = "test-worker"
	}
	return &FixedIDGenerator{id: id}
}

// Generate returns the fixed id.
//
// Implements engine.IDGenerator.
func (g *FixedIDGenerator) Generate() string {
	return g.id
}

package repo

import "testing"

// The compile-time check in neo4j.go ensures interface compliance; a real
// Neo4j is needed for integration coverage. Construction defaults are
// verifiable without a driver.
func TestNewNeo4jRepoDefaults(t *testing.T) {
	r := NewNeo4jRepo[map[string]any, string](
		nil,
		"Descriptor",
		func(m map[string]any) map[string]any { return m },
		nil,
	)
	if r.label != "Descriptor" {
		t.Fatalf("label = %s, want Descriptor", r.label)
	}
	if r.idKey != "id" {
		t.Fatalf("idKey = %s, want id", r.idKey)
	}
}

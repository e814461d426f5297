// Package graph builds the semantic relationship graph over embedded
// service descriptors: nodes, threshold-gated weighted edges, clustering
// passes, and recommendation synthesis.
package graph

import "time"

// EdgeKind categorizes the relationship between two nodes.
type EdgeKind string

const (
	// EdgeSameType links nodes sharing a category tag.
	EdgeSameType EdgeKind = "same-type"
	// EdgeComplementary links category pairs on the synergy allow-list.
	EdgeComplementary EdgeKind = "complementary"
	// EdgeCrossType links everything else that clears the threshold.
	EdgeCrossType EdgeKind = "cross-type"
)

// Priority ranks a recommendation.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
)

// Recommendation kinds.
const (
	RecHighSimilarity    = "high-similarity"
	RecCapabilityCluster = "capability-cluster"
)

// Node is one descriptor's place in the graph, carrying denormalized
// metadata so no lookup back to the descriptor source is needed at render
// time.
type Node struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Type         string   `json:"type"`
	Capabilities []string `json:"capabilities"`
	Description  string   `json:"description,omitempty"`
}

// Edge is a weighted, unordered relationship between two distinct nodes.
// From/To follow node-list order (i < j), which fixes iteration order for
// deterministic output without affecting the edge set's content.
type Edge struct {
	From               string   `json:"from"`
	To                 string   `json:"to"`
	Weight             float64  `json:"weight"`
	Kind               EdgeKind `json:"kind"`
	SharedCapabilities []string `json:"shared_capabilities,omitempty"`
}

// Cluster groups node IDs by a shared trait with a human label. Clusters
// from the two passes are independent covers, not a disjoint partition.
type Cluster struct {
	Label   string   `json:"label"`
	Trait   string   `json:"trait"`
	Members []string `json:"members"`
}

// Recommendation is one priority-ranked actionable observation derived
// from the similarity data.
type Recommendation struct {
	Kind         string   `json:"kind"`
	Priority     Priority `json:"priority"`
	Message      string   `json:"message"`
	Participants []string `json:"participants"`
}

// SemanticGraph is the aggregate output of a build: the displayable,
// analyzable document the presentation layer consumes.
type SemanticGraph struct {
	GeneratedAt     time.Time        `json:"generated_at"`
	NodeCount       int              `json:"node_count"`
	EdgeCount       int              `json:"edge_count"`
	Nodes           []Node           `json:"nodes"`
	Edges           []Edge           `json:"edges"`
	Clusters        []Cluster        `json:"clusters"`
	Recommendations []Recommendation `json:"recommendations"`
}

package graph

import (
	"fmt"
	"time"

	"github.com/LoomworksAI/apiloom/engine/embed"
)

// Policy constants. The reference behavior hardcodes both; they stay named
// constants rather than configuration.
const (
	// EdgeThreshold gates edge inclusion: a complete graph over N nodes is
	// O(N^2) and useless past a handful of nodes, so only pairs scoring
	// strictly above the threshold survive.
	EdgeThreshold = 0.3

	// HighSimilarityThreshold triggers the high-similarity recommendation.
	HighSimilarityThreshold = 0.8
)

// complementaryPairs is the fixed allow-list of cross-category pairs
// considered synergistic. Keys are ordered (a < b lexically is not assumed;
// both orientations are checked at lookup).
var complementaryPairs = map[[2]string]bool{
	{"ai", "version-control"}:     true,
	{"ai", "data"}:                true,
	{"ai", "communication"}:       true,
	{"monitoring", "cloud"}:       true,
	{"payments", "communication"}: true,
}

// Builder converts a vector set into a SemanticGraph. It holds no state;
// two builds over the same input produce byte-identical documents apart
// from GeneratedAt.
type Builder struct {
	now func() time.Time
}

// NewBuilder creates a Builder using the wall clock.
func NewBuilder() *Builder {
	return &Builder{now: time.Now}
}

// Build constructs the full graph document: one node per vector, threshold-
// gated edges over every unordered pair in node-list order, both clustering
// passes, and the recommendation list. It fails only on dimension mismatch
// between vectors, which the embedding layer should have made impossible.
func (b *Builder) Build(vectors []embed.Vector) (*SemanticGraph, error) {
	nodes := make([]Node, len(vectors))
	for i, v := range vectors {
		nodes[i] = Node{
			ID:           v.ID,
			Name:         v.Name,
			Type:         v.Type,
			Capabilities: v.Capabilities,
			Description:  v.Description,
		}
	}

	edges, records, err := buildEdges(vectors)
	if err != nil {
		return nil, err
	}

	return &SemanticGraph{
		GeneratedAt:     b.now(),
		NodeCount:       len(nodes),
		EdgeCount:       len(edges),
		Nodes:           nodes,
		Edges:           edges,
		Clusters:        buildClusters(nodes),
		Recommendations: buildRecommendations(nodes, edges, records),
	}, nil
}

// buildEdges evaluates pairs in node-list order (i < j) and keeps those
// scoring strictly above EdgeThreshold. The full record list (one per kept
// edge, in edge order) feeds recommendation synthesis.
func buildEdges(vectors []embed.Vector) ([]Edge, []embed.SimilarityRecord, error) {
	var edges []Edge
	var records []embed.SimilarityRecord

	for i := 0; i < len(vectors); i++ {
		for j := i + 1; j < len(vectors); j++ {
			rec, err := embed.Similarity(vectors[i], vectors[j])
			if err != nil {
				return nil, nil, fmt.Errorf("graph: %s vs %s: %w", vectors[i].ID, vectors[j].ID, err)
			}
			if rec.Score <= EdgeThreshold {
				continue
			}
			edges = append(edges, Edge{
				From:               rec.IDA,
				To:                 rec.IDB,
				Weight:             rec.Score,
				Kind:               edgeKind(vectors[i].Type, vectors[j].Type),
				SharedCapabilities: rec.SharedCapabilities,
			})
			records = append(records, rec)
		}
	}
	return edges, records, nil
}

func edgeKind(typeA, typeB string) EdgeKind {
	if typeA == typeB {
		return EdgeSameType
	}
	if complementaryPairs[[2]string{typeA, typeB}] || complementaryPairs[[2]string{typeB, typeA}] {
		return EdgeComplementary
	}
	return EdgeCrossType
}

// buildClusters runs the two independent passes. Groupings are materialized
// in first-seen order so output never depends on map iteration.
func buildClusters(nodes []Node) []Cluster {
	var clusters []Cluster

	// Pass 1: group by category tag.
	byType := make(map[string][]string)
	var typeOrder []string
	for _, n := range nodes {
		if _, seen := byType[n.Type]; !seen {
			typeOrder = append(typeOrder, n.Type)
		}
		byType[n.Type] = append(byType[n.Type], n.ID)
	}
	for _, t := range typeOrder {
		members := byType[t]
		if len(members) < 2 {
			continue
		}
		clusters = append(clusters, Cluster{
			Label:   fmt.Sprintf("%s services", t),
			Trait:   t,
			Members: members,
		})
	}

	// Pass 2: group by each declared capability; a node may appear in
	// multiple capability clusters.
	byCap := make(map[string][]string)
	var capOrder []string
	for _, n := range nodes {
		for _, c := range n.Capabilities {
			if _, seen := byCap[c]; !seen {
				capOrder = append(capOrder, c)
			}
			byCap[c] = append(byCap[c], n.ID)
		}
	}
	for _, c := range capOrder {
		members := byCap[c]
		if len(members) < 2 {
			continue
		}
		clusters = append(clusters, Cluster{
			Label:   fmt.Sprintf("%s providers", c),
			Trait:   c,
			Members: members,
		})
	}

	return clusters
}

// buildRecommendations applies the two rule classes in emission order:
// high-similarity rules first (edge order), then capability rules
// (capability-discovery order). No resort, no cross-class dedup.
func buildRecommendations(nodes []Node, edges []Edge, records []embed.SimilarityRecord) []Recommendation {
	names := make(map[string]string, len(nodes))
	for _, n := range nodes {
		names[n.ID] = n.Name
	}

	var recs []Recommendation
	for _, r := range records {
		if r.Score <= HighSimilarityThreshold {
			continue
		}
		recs = append(recs, Recommendation{
			Kind:     RecHighSimilarity,
			Priority: PriorityHigh,
			Message: fmt.Sprintf("%s and %s are highly similar (%.2f); consider consolidating or load-sharing",
				names[r.IDA], names[r.IDB], r.Score),
			Participants: []string{r.IDA, r.IDB},
		})
	}

	// Capability saturation: collect, per capability shared by any edge
	// pair, the distinct node IDs touching an edge that shares it.
	participants := make(map[string][]string)
	var capOrder []string
	for _, e := range edges {
		for _, c := range e.SharedCapabilities {
			if _, seen := participants[c]; !seen {
				capOrder = append(capOrder, c)
			}
			participants[c] = appendUnique(participants[c], e.From)
			participants[c] = appendUnique(participants[c], e.To)
		}
	}
	for _, c := range capOrder {
		ids := participants[c]
		if len(ids) <= 2 {
			continue
		}
		recs = append(recs, Recommendation{
			Kind:     RecCapabilityCluster,
			Priority: PriorityMedium,
			Message: fmt.Sprintf("%d services share the %q capability; consider a routing or failover policy",
				len(ids), c),
			Participants: ids,
		})
	}

	return recs
}

func appendUnique(ids []string, id string) []string {
	for _, existing := range ids {
		if existing == id {
			return ids
		}
	}
	return append(ids, id)
}

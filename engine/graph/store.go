package graph

import (
	"context"
	"fmt"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"

	"github.com/LoomworksAI/apiloom/pkg/repo"
)

// GraphStore persists built graphs to Neo4j so downstream consumers can
// query relationships after the process that built them is gone.
type GraphStore struct {
	driver neo4j.DriverWithContext
	nodes  *repo.Neo4jRepo[Node, string]
}

// NewStore creates a GraphStore.
func NewStore(driver neo4j.DriverWithContext) *GraphStore {
	return &GraphStore{
		driver: driver,
		nodes:  newNodeRepo(driver),
	}
}

// GetNode returns a stored descriptor node by ID.
func (g *GraphStore) GetNode(ctx context.Context, id string) (Node, error) {
	return g.nodes.Get(ctx, id)
}

// ListNodes returns stored descriptor nodes in ID order.
func (g *GraphStore) ListNodes(ctx context.Context, opts repo.ListOpts) ([]Node, error) {
	return g.nodes.List(ctx, opts)
}

// SaveGraph merges all nodes and relationship edges of a built graph in a
// single write transaction. Existing nodes are updated, not duplicated.
func (g *GraphStore) SaveGraph(ctx context.Context, sg *SemanticGraph) error {
	sess := g.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer sess.Close(ctx)

	_, err := sess.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		for _, n := range sg.Nodes {
			cypher := `MERGE (s:Service {id: $id}) SET s += $props`
			if _, err := tx.Run(ctx, cypher, map[string]any{
				"id":    n.ID,
				"props": nodeToMap(n),
			}); err != nil {
				return nil, err
			}
		}
		for _, e := range sg.Edges {
			cypher := fmt.Sprintf(
				`MATCH (a:Service {id: $from}), (b:Service {id: $to})
				 MERGE (a)-[r:%s]->(b)
				 SET r.weight = $weight, r.shared = $shared`,
				sanitizeRelKind(string(e.Kind)),
			)
			if _, err := tx.Run(ctx, cypher, map[string]any{
				"from":   e.From,
				"to":     e.To,
				"weight": e.Weight,
				"shared": e.SharedCapabilities,
			}); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	return err
}

// Neighbors returns descriptor nodes within the given traversal depth.
func (g *GraphStore) Neighbors(ctx context.Context, nodeID string, depth int) ([]Node, error) {
	if depth <= 0 {
		depth = 1
	}
	sess := g.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer sess.Close(ctx)

	cypher := fmt.Sprintf(
		`MATCH (start:Service {id: $id})-[*1..%d]-(n:Service)
		 WHERE n.id <> $id
		 RETURN DISTINCT n ORDER BY n.id`, depth)
	result, err := sess.Run(ctx, cypher, map[string]any{"id": nodeID})
	if err != nil {
		return nil, err
	}
	return collectNodes(ctx, result)
}

// FindByType returns all stored nodes of a given category tag.
func (g *GraphStore) FindByType(ctx context.Context, category string) ([]Node, error) {
	sess := g.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer sess.Close(ctx)

	cypher := `MATCH (n:Service {type: $type}) RETURN n ORDER BY n.id`
	result, err := sess.Run(ctx, cypher, map[string]any{"type": category})
	if err != nil {
		return nil, err
	}
	return collectNodes(ctx, result)
}

// FindByCapability returns all stored nodes declaring a capability.
func (g *GraphStore) FindByCapability(ctx context.Context, capability string) ([]Node, error) {
	sess := g.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer sess.Close(ctx)

	cypher := `MATCH (n:Service) WHERE $cap IN n.capabilities RETURN n ORDER BY n.id`
	result, err := sess.Run(ctx, cypher, map[string]any{"cap": capability})
	if err != nil {
		return nil, err
	}
	return collectNodes(ctx, result)
}

func newNodeRepo(driver neo4j.DriverWithContext) *repo.Neo4jRepo[Node, string] {
	return repo.NewNeo4jRepo[Node, string](driver, "Service", nodeToMap, nodeFromRecord)
}

func nodeToMap(n Node) map[string]any {
	return map[string]any{
		"id":           n.ID,
		"name":         n.Name,
		"type":         n.Type,
		"capabilities": n.Capabilities,
		"description":  n.Description,
	}
}

func nodeFromRecord(record *neo4j.Record) (Node, error) {
	raw, ok := record.Get("n")
	if !ok {
		return Node{}, fmt.Errorf("record has no node column")
	}
	dbNode, ok := raw.(dbtype.Node)
	if !ok {
		return Node{}, fmt.Errorf("unexpected record type %T", raw)
	}
	return nodeFromProps(dbNode.Props), nil
}

func collectNodes(ctx context.Context, result neo4j.ResultWithContext) ([]Node, error) {
	var items []Node
	for result.Next(ctx) {
		node, _, err := neo4j.GetRecordValue[dbtype.Node](result.Record(), "n")
		if err != nil {
			return nil, err
		}
		items = append(items, nodeFromProps(node.Props))
	}
	return items, nil
}

// nodeFromProps constructs a Node from Neo4j node properties.
func nodeFromProps(props map[string]any) Node {
	n := Node{
		ID:          strProp(props, "id"),
		Name:        strProp(props, "name"),
		Type:        strProp(props, "type"),
		Description: strProp(props, "description"),
	}
	if caps, ok := props["capabilities"].([]any); ok {
		for _, c := range caps {
			if s, ok := c.(string); ok {
				n.Capabilities = append(n.Capabilities, s)
			}
		}
	}
	return n
}

func strProp(props map[string]any, key string) string {
	if s, ok := props[key].(string); ok {
		return s
	}
	return ""
}

// sanitizeRelKind ensures the relationship kind is a valid Cypher
// identifier, uppercased per Neo4j convention.
func sanitizeRelKind(kind string) string {
	safe := make([]byte, 0, len(kind))
	for i := 0; i < len(kind); i++ {
		c := kind[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '_':
			safe = append(safe, c)
		case c == '-':
			safe = append(safe, '_')
		}
	}
	if len(safe) == 0 {
		return "RELATED_TO"
	}
	return strings.ToUpper(string(safe))
}

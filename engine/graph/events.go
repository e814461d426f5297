package graph

import "time"

// SubjectIndexed announces a completed index run over NATS.
const SubjectIndexed = "loom.graph.indexed"

// IndexedEvent is the payload published on SubjectIndexed.
type IndexedEvent struct {
	Nodes int       `json:"nodes"`
	Edges int       `json:"edges"`
	At    time.Time `json:"at"`
}

package semantic

// SearchResult is a single vector search hit: a descriptor similar to the
// query vector, with its denormalized payload.
type SearchResult struct {
	ID           string   `json:"id"`
	DescriptorID string   `json:"descriptor_id"`
	Score        float32  `json:"score"`
	Name         string   `json:"name"`
	Type         string   `json:"type"`
	Capabilities []string `json:"capabilities,omitempty"`
	Description  string   `json:"description,omitempty"`
}

// VectorRecord is a single descriptor embedding to store in Qdrant.
type VectorRecord struct {
	ID        string
	Embedding []float32
	Payload   map[string]any // descriptor_id, name, type, capabilities, description, source
}

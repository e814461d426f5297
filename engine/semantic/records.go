package semantic

import (
	"github.com/google/uuid"

	"github.com/LoomworksAI/apiloom/engine/embed"
)

// PointID derives a stable Qdrant point id from a descriptor id, so
// re-indexing the same descriptor overwrites its point instead of
// accumulating duplicates.
func PointID(descriptorID string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("apiloom:"+descriptorID)).String()
}

// RecordsFromVectors converts generated embedding vectors into storable
// records, carrying the denormalized descriptor metadata as payload.
func RecordsFromVectors(vectors []embed.Vector) []VectorRecord {
	records := make([]VectorRecord, 0, len(vectors))
	for _, v := range vectors {
		records = append(records, VectorRecord{
			ID:        PointID(v.ID),
			Embedding: v.Values,
			Payload: map[string]any{
				"descriptor_id": v.ID,
				"name":          v.Name,
				"type":          v.Type,
				"capabilities":  v.Capabilities,
				"description":   v.Description,
			},
		})
	}
	return records
}

package segment

import (
	"fmt"

	"github.com/google/uuid"
)

// RecordID builds the logical vector-record id for a document segment.
func RecordID(documentID string, sequenceIndex int) string {
	return fmt.Sprintf("%s-chunk-%d", documentID, sequenceIndex)
}

// PointID derives the vector-store point id from a logical record id.
// Qdrant only accepts UUID or integer ids, so the logical id is hashed into
// a deterministic UUIDv5; the same segment always maps to the same point.
func PointID(recordID string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(recordID)).String()
}

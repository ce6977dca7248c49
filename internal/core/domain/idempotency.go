package domain

import (
	"time"

	"github.com/google/uuid"
)

// IdempotencyLog records that a session has been committed, so a retried
// commit for a session that is no longer in memory can still be answered.
type IdempotencyLog struct {
	Key          string    `json:"key"` // Format: "commit:<session_id>"
	BatchID      uuid.UUID `json:"batch_id"`
	ResponseJSON []byte    `json:"response_json"` // Serialized PaymentBatch
	CreatedAt    time.Time `json:"created_at"`
}

// BuildCommitKey constructs the idempotency key for a session commit.
func BuildCommitKey(sessionID uuid.UUID) string {
	return "commit:" + sessionID.String()
}

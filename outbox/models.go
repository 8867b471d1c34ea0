package outbox

import (
	"encoding/json"
	"time"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusProcessed Status = "processed"
	StatusDead      Status = "dead"
)

// Message is a transactional outbox row. It is written in the same transaction
// as the state change it announces and delivered only after that commit.
type Message struct {
	ID        string
	Topic     string
	Payload   json.RawMessage
	Status    Status
	Attempts  int
	LastError *string
	CreatedAt time.Time
}

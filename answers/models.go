package answers

import "time"

// Entry is a learned answer. SourceRequestID is set when the entry was produced
// by resolving a help request and nil for entries seeded by hand.
type Entry struct {
	ID              string
	Question        string
	Answer          string
	SourceRequestID *string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// UpdateParams carries a full overwrite of an entry's question and answer text.
type UpdateParams struct {
	ID       string
	Question string
	Answer   string
}

package helprequest

import (
	"time"

	"frontdesk/answers"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusResolved   Status = "resolved"
	StatusUnresolved Status = "unresolved"
)

// Terminal reports whether no further transitions are accepted from s.
func (s Status) Terminal() bool {
	return s == StatusResolved || s == StatusUnresolved
}

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusResolved, StatusUnresolved:
		return true
	default:
		return false
	}
}

// HelpRequest is an escalated caller question. It is a permanent audit record:
// SupervisorResponse and RespondedAt are set exactly when Status is resolved.
// LearnedAt is set once the answer has been handed to the answer store; it
// stays set even if that entry is later edited or deleted.
type HelpRequest struct {
	ID                 string
	CallerName         string
	CallerPhone        string
	Question           string
	Status             Status
	SupervisorResponse *string
	CreatedAt          time.Time
	RespondedAt        *time.Time
	ExpiresAt          time.Time
	LearnedAt          *time.Time
}

type CreateParams struct {
	CallerName  string
	CallerPhone string
	Question    string
}

type RespondParams struct {
	RequestID string
	Response  string
}

// Resolution is the committed outcome of a supervisor response: the resolved
// request and the learned answer it produced.
type Resolution struct {
	Request HelpRequest
	Entry   answers.Entry
}

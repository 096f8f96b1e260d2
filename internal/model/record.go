package model

import (
	"time"

	"github.com/google/uuid"
)

// Status is the outcome of a claimed task as kept in the task ledger.
type Status string

const (
	StatusClaimed      Status = "claimed"
	StatusDone         Status = "done"
	StatusFailed       Status = "failed"
	StatusDropped      Status = "dropped"
	StatusRequeued     Status = "requeued"
	StatusDeadLettered Status = "dead_lettered"
)

// Record is one row of the task ledger.
type Record struct {
	ID        uuid.UUID `json:"id"`
	Location  string    `json:"location"`
	Operation Operation `json:"operation"`
	Status    Status    `json:"status"`
	Reason    string    `json:"reason,omitempty"`
	Attempt   int       `json:"attempt"`
	Result    string    `json:"result,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Record returns a ledger row for the task in the given status.
func (t Task) Record(status Status) Record {
	return Record{
		ID:        t.ID,
		Location:  t.Location,
		Operation: t.Operation,
		Status:    status,
		Attempt:   t.Attempt,
	}
}

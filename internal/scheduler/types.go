// Package scheduler implements the reputation-weighted task scheduler:
// submission, peer scoring, assignment, completion, and re-assignment when
// membership signals a peer failure.
package scheduler

import (
	"time"

	"github.com/CamiloWG/adhocfabric/internal/ids"
)

// Status is a task's lifecycle state.
type Status int

const (
	Pending Status = iota
	Assigned
	Running
	Completed
	Failed
	Migrating
)

func (s Status) String() string {
	switch s {
	case Pending:
		return "Pending"
	case Assigned:
		return "Assigned"
	case Running:
		return "Running"
	case Completed:
		return "Completed"
	case Failed:
		return "Failed"
	case Migrating:
		return "Migrating"
	default:
		return "Unknown"
	}
}

// TaskRecord is one entry in the scheduler table.
type TaskRecord struct {
	TaskID       ids.TaskID
	OwnerNode    ids.NodeID
	AssignedNode ids.NodeID
	Description  string
	Priority     int // clamped to [1,10]
	Status       Status

	CreatedAt   time.Time
	StartedAt   time.Time
	CompletedAt time.Time

	Input    []byte
	Result   []byte
	ExitCode int

	// GasUsed is an optional cost-accounting counter populated by the
	// executor collaborator through complete(); scoring never reads it.
	GasUsed uint64
}

// Clone returns a value copy safe to hand outside the table guard.
func (t *TaskRecord) Clone() TaskRecord {
	cp := *t
	cp.Input = append([]byte(nil), t.Input...)
	cp.Result = append([]byte(nil), t.Result...)
	return cp
}

func clampPriority(p int) int {
	if p < 1 {
		return 1
	}
	if p > 10 {
		return 10
	}
	return p
}

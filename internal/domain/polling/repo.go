package polling

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Repository interface {
	CreateRun(ctx context.Context, run *PollRun) error
	// FinalizeRun writes the terminal status and completion fields. It only
	// touches runs still in_progress, so a run transitions exactly once.
	FinalizeRun(ctx context.Context, run *PollRun) error
	GetRun(ctx context.Context, id uuid.UUID) (*PollRun, error)
	ListRuns(ctx context.Context, limit, offset int) ([]*PollRun, int, error)

	// AddMessage appends one write-once audit row.
	AddMessage(ctx context.Context, msg *PollMessage) error
	ListMessages(ctx context.Context, runID uuid.UUID) ([]*PollMessage, error)

	// MarkAbandoned forces runs stuck in_progress for longer than maxAge
	// into the error status. Abandoned runs are never resumed.
	MarkAbandoned(ctx context.Context, maxAge time.Duration) (int64, error)
}

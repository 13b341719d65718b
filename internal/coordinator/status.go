package coordinator

import (
	"context"
	"encoding/json"
	"time"

	"github.com/giak/mnemolite/internal/cachel2"
)

// statusTTL bounds how long a stale status record survives in L2 after
// its last write (long enough to outlive any single indexing run).
const statusTTL = 24 * time.Hour

// State is an IndexingStatus transition (§4.10).
type State string

const (
	StateInProgress State = "in_progress"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
)

// Status is the §6.1 IndexingStatus result, adapted from the teacher's
// process-local internal/async.IndexProgressSnapshot into an L2-backed,
// cross-process record keyed by repository.
type Status struct {
	Repository     string    `json:"repository"`
	State          State     `json:"state"`
	FilesTotal     int       `json:"files_total"`
	FilesProcessed int       `json:"files_processed"`
	ChunksTotal    int       `json:"chunks_total"`
	ErrorMessage   string    `json:"error_message,omitempty"`
	StartedAt      time.Time `json:"started_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// StatusTracker persists IndexingStatus transitions to L2 so any process
// serving get_indexing_status sees the status of a run driven by another
// process/worker.
type StatusTracker struct {
	l2 *cachel2.Cache
}

// NewStatusTracker builds a tracker over the shared L2 cache.
func NewStatusTracker(l2 *cachel2.Cache) *StatusTracker {
	return &StatusTracker{l2: l2}
}

func statusKey(repository string) string {
	return "indexing_status:" + repository
}

// Start records a fresh in_progress status, overwriting any prior record.
func (s *StatusTracker) Start(ctx context.Context, repository string, filesTotal int) {
	now := nowFunc()
	s.write(ctx, Status{
		Repository: repository,
		State:      StateInProgress,
		FilesTotal: filesTotal,
		StartedAt:  now,
		UpdatedAt:  now,
	})
}

// Update merges progress counters into the existing status.
func (s *StatusTracker) Update(ctx context.Context, repository string, filesProcessed, chunksTotal int) {
	st, ok := s.Get(ctx, repository)
	if !ok {
		return
	}
	st.FilesProcessed = filesProcessed
	st.ChunksTotal = chunksTotal
	st.UpdatedAt = nowFunc()
	s.write(ctx, st)
}

// Complete transitions the status to completed.
func (s *StatusTracker) Complete(ctx context.Context, repository string) {
	st, ok := s.Get(ctx, repository)
	if !ok {
		st = Status{Repository: repository, StartedAt: nowFunc()}
	}
	st.State = StateCompleted
	st.UpdatedAt = nowFunc()
	s.write(ctx, st)
}

// Fail transitions the status to failed with the given message.
func (s *StatusTracker) Fail(ctx context.Context, repository, message string) {
	st, ok := s.Get(ctx, repository)
	if !ok {
		st = Status{Repository: repository, StartedAt: nowFunc()}
	}
	st.State = StateFailed
	st.ErrorMessage = message
	st.UpdatedAt = nowFunc()
	s.write(ctx, st)
}

// Get returns the current status for repository, if any has been recorded.
func (s *StatusTracker) Get(ctx context.Context, repository string) (Status, bool) {
	raw, ok := s.l2.Get(ctx, statusKey(repository))
	if !ok {
		return Status{}, false
	}
	var st Status
	if err := json.Unmarshal(raw, &st); err != nil {
		return Status{}, false
	}
	return st, true
}

func (s *StatusTracker) write(ctx context.Context, st Status) {
	raw, err := json.Marshal(st)
	if err != nil {
		return
	}
	s.l2.Set(ctx, statusKey(st.Repository), raw, statusTTL)
}

// nowFunc is overridable in tests; production always uses time.Now.
var nowFunc = time.Now

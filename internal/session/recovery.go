package session

import (
	"context"
	"sync"

	"github.com/RanFeng/ilog"
)

// Checkpoint is the playback position captured immediately before a source
// swap. Generation records which swap it belongs to.
type Checkpoint struct {
	Time       float64
	WasPlaying bool
	Generation int64
}

// RecoveryManager restores playback continuity across source swaps. A
// checkpoint is consumed at most once, and only if no further swap happened
// between capture and the new source's duration-known signal.
type RecoveryManager struct {
	mu sync.Mutex
	cp *Checkpoint
}

func NewRecoveryManager() *RecoveryManager {
	return &RecoveryManager{}
}

// Capture records the outgoing source's position. A checkpoint left over
// from an earlier, never-completed swap is discarded here.
func (r *RecoveryManager) Capture(seconds float64, wasPlaying bool, generation int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cp = &Checkpoint{Time: seconds, WasPlaying: wasPlaying, Generation: generation}
}

// Consume hands out the pending checkpoint if it still belongs to the
// current generation. Either way the checkpoint is cleared: a stale one is
// never applied, a fresh one is applied exactly once.
func (r *RecoveryManager) Consume(ctx context.Context, currentGeneration int64) (Checkpoint, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cp == nil {
		return Checkpoint{}, false
	}
	cp := *r.cp
	r.cp = nil
	if cp.Generation != currentGeneration {
		ilog.EventInfo(ctx, "stale_checkpoint_discarded",
			"checkpointGeneration", cp.Generation, "generation", currentGeneration)
		return Checkpoint{}, false
	}
	return cp, true
}

// Reset drops any pending checkpoint.
func (r *RecoveryManager) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cp = nil
}

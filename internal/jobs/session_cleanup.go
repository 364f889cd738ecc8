package jobs

import (
	"context"
	"log"
	"time"

	"fundpilot/internal/services"
)

// FailedSession records one session the sweep could not retire
type FailedSession struct {
	SessionID string `json:"session_id"`
	Reason    string `json:"reason"`
}

// SweepResult is the outcome of one cleanup pass. Fatal is set only when
// the expired-session query itself failed and no sessions were attempted.
type SweepResult struct {
	Cleared []string        `json:"cleared_sessions"`
	Failed  []FailedSession `json:"failed_sessions"`
	Fatal   error           `json:"-"`
}

// SessionCleanupJob retires expired sessions: it wins the reclaimed flag,
// releases the upstream credential, and drops the conversation buffer.
// Failures on one session never stop the pass; retrying is safe because
// the reclaimed flag is claimed exactly once.
type SessionCleanupJob struct {
	ledger   services.SessionLedger
	pool     *services.KeyPool
	buffers  *services.BufferService
	metrics  *services.Metrics
	interval time.Duration
	timeout  time.Duration
}

// NewSessionCleanupJob creates the cleanup job
func NewSessionCleanupJob(
	ledger services.SessionLedger,
	pool *services.KeyPool,
	buffers *services.BufferService,
	metrics *services.Metrics,
	interval, timeout time.Duration,
) *SessionCleanupJob {
	return &SessionCleanupJob{
		ledger:   ledger,
		pool:     pool,
		buffers:  buffers,
		metrics:  metrics,
		interval: interval,
		timeout:  timeout,
	}
}

// Run executes one sweep pass
func (j *SessionCleanupJob) Run(ctx context.Context) error {
	result := j.Sweep(ctx)
	if result.Fatal != nil {
		return result.Fatal
	}
	return nil
}

// GetNextRunTime returns when the job should run next
func (j *SessionCleanupJob) GetNextRunTime() time.Time {
	return time.Now().Add(j.interval)
}

// Sweep finds all expired, unreclaimed sessions and retires each one
func (j *SessionCleanupJob) Sweep(ctx context.Context) *SweepResult {
	result := &SweepResult{
		Cleared: []string{},
		Failed:  []FailedSession{},
	}

	queryCtx, cancel := context.WithTimeout(ctx, j.timeout)
	expired, err := j.ledger.ExpiredUnreclaimed(queryCtx, time.Now().UTC())
	cancel()
	if err != nil {
		log.Printf("❌ [CLEANUP] Expired-session query failed: %v", err)
		result.Fatal = err
		return result
	}

	if len(expired) == 0 {
		log.Printf("✅ [CLEANUP] No expired sessions to clear")
		return result
	}

	log.Printf("🧹 [CLEANUP] Found %d expired session(s)", len(expired))

	for _, session := range expired {
		sessionCtx, cancel := context.WithTimeout(ctx, j.timeout)
		reclaimed, err := j.ledger.MarkReclaimed(sessionCtx, session.SessionID)
		cancel()

		if err != nil {
			log.Printf("⚠️  [CLEANUP] Failed to reclaim session %s: %v", session.SessionID, err)
			result.Failed = append(result.Failed, FailedSession{
				SessionID: session.SessionID,
				Reason:    err.Error(),
			})
			if j.metrics != nil {
				j.metrics.SweepFailed.Inc()
			}
			continue
		}
		if !reclaimed {
			// Another sweep won this session; its resources are already freed
			continue
		}

		j.pool.Release(session.SessionID)
		j.buffers.Remove(session.SessionID)

		result.Cleared = append(result.Cleared, session.SessionID)
		if j.metrics != nil {
			j.metrics.SweepCleared.Inc()
		}
	}

	log.Printf("✅ [CLEANUP] Sweep done: %d cleared, %d failed",
		len(result.Cleared), len(result.Failed))
	return result
}

package jobs

import (
	"context"
	"log"
	"sync"
	"time"
)

// Job is a periodic background task
type Job interface {
	Run(ctx context.Context) error
	GetNextRunTime() time.Time
}

// JobScheduler runs registered jobs on their own cadence. Each job gets one
// goroutine that sleeps until the job's next run time, runs it, and repeats.
type JobScheduler struct {
	jobs    map[string]Job
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

// NewJobScheduler creates an empty scheduler
func NewJobScheduler() *JobScheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &JobScheduler{
		jobs:   make(map[string]Job),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Register adds a job under a unique name. Must be called before Start.
func (s *JobScheduler) Register(name string, job Job) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.jobs[name] = job
	log.Printf("✅ [SCHEDULER] Registered job: %s", name)
}

// Start launches one worker goroutine per registered job
func (s *JobScheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return
	}
	s.running = true

	log.Printf("🚀 [SCHEDULER] Starting job scheduler with %d jobs", len(s.jobs))
	for name, job := range s.jobs {
		s.wg.Add(1)
		go s.runLoop(name, job)
	}
}

func (s *JobScheduler) runLoop(name string, job Job) {
	defer s.wg.Done()

	for {
		nextRun := job.GetNextRunTime()
		wait := time.Until(nextRun)
		if wait < 0 {
			wait = 0
		}
		log.Printf("⏰ [SCHEDULER] Job '%s' scheduled to run at %s (in %v)",
			name, nextRun.Format(time.RFC3339), wait)

		timer := time.NewTimer(wait)
		select {
		case <-s.ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		start := time.Now()
		log.Printf("▶️  [SCHEDULER] Running job: %s", name)
		if err := job.Run(s.ctx); err != nil {
			log.Printf("❌ [SCHEDULER] Job '%s' failed: %v", name, err)
		} else {
			log.Printf("✅ [SCHEDULER] Job '%s' completed in %v", name, time.Since(start))
		}
	}
}

// RunNow executes a job immediately, outside its schedule
func (s *JobScheduler) RunNow(name string) error {
	s.mu.Lock()
	job, exists := s.jobs[name]
	s.mu.Unlock()

	if !exists {
		log.Printf("⚠️  [SCHEDULER] Job '%s' not found", name)
		return nil
	}

	log.Printf("🚀 [SCHEDULER] Running job '%s' immediately", name)
	return job.Run(s.ctx)
}

// Stop cancels all job loops and waits for in-flight runs to finish
func (s *JobScheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	log.Println("🛑 [SCHEDULER] Stopping job scheduler...")
	s.running = false
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
	log.Println("✅ [SCHEDULER] Job scheduler stopped")
}

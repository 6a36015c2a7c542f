package cron

import (
	"sync"
	"time"

	rcron "github.com/robfig/cron/v3"

	"github.com/stateflow/stateflow/pkg/service"
)

// Runner drives the scheduler periodically. Each tick processes the
// half-open window (lastRun, now], so consecutive ticks never fire the
// same due transition twice. All ticks run on cron's single goroutine;
// windows cannot overlap.
type Runner struct {
	svc    *service.WorkflowService
	logger service.Logger
	cron   *rcron.Cron

	mu      sync.Mutex
	lastRun int64
}

// NewRunner schedules RunDue with the given cron expression (e.g.
// "@every 1m"). The first window starts at construction time: records
// already overdue at startup are picked up by widening lastRun backwards
// via SetLastRun.
func NewRunner(svc *service.WorkflowService, logger service.Logger, spec string) (*Runner, error) {
	r := &Runner{
		svc:     svc,
		logger:  logger,
		cron:    rcron.New(),
		lastRun: time.Now().Unix(),
	}
	if _, err := r.cron.AddFunc(spec, r.tick); err != nil {
		return nil, err
	}
	return r, nil
}

// SetLastRun moves the start of the next window, typically backwards to
// catch transitions that came due while the process was down.
func (r *Runner) SetLastRun(ts int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastRun = ts
}

func (r *Runner) Start() {
	r.cron.Start()
}

// Stop halts the cron loop and waits for a running tick to finish.
func (r *Runner) Stop() {
	ctx := r.cron.Stop()
	<-ctx.Done()
}

func (r *Runner) tick() {
	now := time.Now().Unix()
	r.mu.Lock()
	start := r.lastRun
	r.lastRun = now
	r.mu.Unlock()

	if err := r.svc.RunDue(start, now); err != nil {
		r.logger.Errorf("scheduler run over window (%d, %d] failed: %v", start, now, err)
		// Re-open the window so the failed query is retried next tick.
		r.mu.Lock()
		if r.lastRun == now {
			r.lastRun = start
		}
		r.mu.Unlock()
	}
}

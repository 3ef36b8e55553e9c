package cron

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// JobFunc is one scheduled maintenance task. Jobs receive a fresh context
// per run and report errors instead of logging them internally.
type JobFunc func(ctx context.Context) error

type job struct {
	name string
	spec string
	fn   JobFunc
}

// Runner owns the cron schedule. Jobs are registered by name before Start
// and can also be fired manually through RunJob for the admin endpoint.
type Runner struct {
	cron   *cron.Cron
	logger *slog.Logger

	mu      sync.Mutex
	jobs    map[string]job
	lastRun map[string]time.Time
}

func NewRunner(logger *slog.Logger) *Runner {
	return &Runner{
		cron:    cron.New(),
		logger:  logger,
		jobs:    make(map[string]job),
		lastRun: make(map[string]time.Time),
	}
}

func (r *Runner) Register(name, spec string, fn JobFunc) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.jobs[name]; exists {
		return fmt.Errorf("cron job %q already registered", name)
	}
	if _, err := r.cron.AddFunc(spec, func() {
		r.execute(context.Background(), name, fn)
	}); err != nil {
		return fmt.Errorf("cron spec %q for job %q: %w", spec, name, err)
	}
	r.jobs[name] = job{name: name, spec: spec, fn: fn}
	return nil
}

func (r *Runner) Start() {
	r.cron.Start()
	r.logger.Info("cron runner started", "jobs", len(r.jobs))
}

// Stop waits for in-flight jobs to finish.
func (r *Runner) Stop() {
	ctx := r.cron.Stop()
	<-ctx.Done()
	r.logger.Info("cron runner stopped")
}

// RunJob fires a registered job immediately; used by the admin trigger
// endpoint.
func (r *Runner) RunJob(ctx context.Context, name string) error {
	r.mu.Lock()
	j, ok := r.jobs[name]
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("unknown cron job %q", name)
	}
	return r.execute(ctx, name, j.fn)
}

// JobStatus is the admin-facing view of one registered job.
type JobStatus struct {
	Name    string     `json:"name"`
	Spec    string     `json:"spec"`
	LastRun *time.Time `json:"last_run,omitempty"`
}

func (r *Runner) Jobs() []JobStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]JobStatus, 0, len(r.jobs))
	for name, j := range r.jobs {
		st := JobStatus{Name: name, Spec: j.spec}
		if t, ok := r.lastRun[name]; ok {
			last := t
			st.LastRun = &last
		}
		out = append(out, st)
	}
	sort.Slice(out, func(i, k int) bool { return out[i].Name < out[k].Name })
	return out
}

// execute wraps a job run with panic recovery so one broken job cannot take
// the scheduler down.
func (r *Runner) execute(ctx context.Context, name string, fn JobFunc) (err error) {
	started := time.Now()
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("cron job %q panicked: %v", name, rec)
			r.logger.Error("cron job panicked", "job", name, "panic", rec, "stack", string(debug.Stack()))
		}
	}()

	r.logger.Info("cron job started", "job", name)
	err = fn(ctx)

	r.mu.Lock()
	r.lastRun[name] = started
	r.mu.Unlock()

	if err != nil {
		r.logger.Error("cron job failed", "job", name, "duration", time.Since(started), "err", err)
		return err
	}
	r.logger.Info("cron job finished", "job", name, "duration", time.Since(started))
	return nil
}

// Package scheduler owns the periodic jobs of a session.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// EntryID identifies a registered job
type EntryID = cron.EntryID

// every fires at a fixed interval after each run. Unlike the "@every"
// descriptor it keeps sub-second precision.
type every time.Duration

func (d every) Next(t time.Time) time.Time {
	return t.Add(time.Duration(d))
}

// Scheduler manages cron jobs. Overlapping runs of one job are skipped and
// panics are recovered and logged.
type Scheduler struct {
	cron *cron.Cron
	log  *slog.Logger

	mu      sync.Mutex
	running bool
}

// New creates a stopped scheduler
func New(log *slog.Logger) *Scheduler {
	if log == nil {
		log = slog.Default()
	}
	cl := cronLogger{log: log}
	return &Scheduler{
		// Recover must sit inside SkipIfStillRunning so a panic still
		// releases the run token.
		cron: cron.New(cron.WithLogger(cl), cron.WithChain(
			cron.SkipIfStillRunning(cl),
			cron.Recover(cl),
		)),
		log: log,
	}
}

// Every registers fn to run once per interval
func (s *Scheduler) Every(interval time.Duration, fn func()) (EntryID, error) {
	if interval <= 0 {
		return 0, fmt.Errorf("invalid interval %s", interval)
	}
	return s.cron.Schedule(every(interval), cron.FuncJob(fn)), nil
}

// Add registers fn on a standard cron spec or descriptor ("@hourly")
func (s *Scheduler) Add(spec string, fn func()) (EntryID, error) {
	id, err := s.cron.AddFunc(spec, fn)
	if err != nil {
		return 0, fmt.Errorf("register job %q: %w", spec, err)
	}
	return id, nil
}

// Remove unregisters a job. Runs already in progress finish.
func (s *Scheduler) Remove(id EntryID) {
	s.cron.Remove(id)
}

// Jobs returns the number of registered jobs
func (s *Scheduler) Jobs() int {
	return len(s.cron.Entries())
}

// Start begins running jobs in the background
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.cron.Start()
	s.log.Info("scheduler started", slog.Int("jobs", s.Jobs()))
}

// Stop halts the scheduler. The returned context is done once
// in-flight jobs have finished.
func (s *Scheduler) Stop() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false
	ctx := s.cron.Stop()
	s.log.Info("scheduler stopped")
	return ctx
}

// Running reports whether the scheduler was started and not stopped
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// cronLogger adapts slog to cron.Logger
type cronLogger struct {
	log *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error("cron: "+msg, append([]interface{}{slog.Any("error", err)}, keysAndValues...)...)
}

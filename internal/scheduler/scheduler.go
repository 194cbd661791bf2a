// Package scheduler runs named periodic tasks on cron cadences. A failing
// or panicking run is logged and never stops later firings.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dmitrijs2005/postkeeper/internal/common"
	"github.com/dmitrijs2005/postkeeper/internal/logging"
	"github.com/robfig/cron/v3"
)

// Task is one periodic unit of work.
type Task func(ctx context.Context) error

var ErrStopped = errors.New("scheduler stopped")

// Scheduler owns a cron instance. Runs of the same task never overlap; a
// firing that finds the previous run still active is skipped.
type Scheduler struct {
	cron   *cron.Cron
	logger logging.Logger
	base   context.Context

	mu      sync.Mutex
	entries map[string]cron.EntryID
	stopped bool
}

// New creates a scheduler. base is handed to every run; stopping the
// scheduler does not cancel it so in-flight runs finish their writes.
func New(base context.Context, logger logging.Logger) *Scheduler {
	cl := cronLogger{logger: logger}
	return &Scheduler{
		cron: cron.New(
			cron.WithLogger(cl),
			cron.WithChain(cron.SkipIfStillRunning(cl)),
		),
		logger:  logger,
		base:    base,
		entries: make(map[string]cron.EntryID),
	}
}

// Add registers task under name with a standard five-field cron spec or a
// descriptor such as "@every 1m".
func (s *Scheduler) Add(name, spec string, task Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return ErrStopped
	}
	if _, ok := s.entries[name]; ok {
		return fmt.Errorf("task %q: %w", name, common.ErrDuplicateID)
	}
	id, err := s.cron.AddFunc(spec, func() { _ = s.Run(s.base, name, task) })
	if err != nil {
		return fmt.Errorf("task %q: invalid schedule %q: %w", name, spec, err)
	}
	s.entries[name] = id
	return nil
}

// Remove unschedules a task. A run in progress completes.
func (s *Scheduler) Remove(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.entries[name]; ok {
		s.cron.Remove(id)
		delete(s.entries, name)
	}
}

// Names returns the registered task names.
func (s *Scheduler) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.entries))
	for n := range s.entries {
		out = append(out, n)
	}
	return out
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop prevents new firings and waits for running tasks or ctx.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()

	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run executes task once with the same boundary handling as a scheduled
// firing: panics are recovered and errors are logged and returned.
func (s *Scheduler) Run(ctx context.Context, name string, task Task) (err error) {
	log := s.logger.With(common.LogKeyTask, name)
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task %s panicked: %v", name, r)
			log.Error(ctx, "task panicked", "panic", r)
		}
	}()

	log.Debug(ctx, "task started")
	if err = task(ctx); err != nil {
		log.Error(ctx, "task failed", "error", err)
		return err
	}
	log.Debug(ctx, "task finished")
	return nil
}

// cronLogger routes cron's own messages into our logger.
type cronLogger struct {
	logger logging.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(context.Background(), "cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(context.Background(), "cron: "+msg, append(keysAndValues, "error", err)...)
}

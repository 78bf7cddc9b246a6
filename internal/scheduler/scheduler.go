// Package scheduler runs periodic diagnostic dumps of the discovery indexes.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/watzon/topiccache/internal/metrics"
)

// Source renders the state to dump.
type Source interface {
	Diagnostics() string
}

// Scheduler dumps a Source to the log on a cron schedule.
type Scheduler struct {
	cron     *cron.Cron
	source   Source
	logger   zerolog.Logger
	schedule string

	mu      sync.Mutex
	started bool
}

// New creates a scheduler for expression. An empty expression yields a
// scheduler whose Start and Stop do nothing.
func New(expression string, source Source, logger zerolog.Logger) (*Scheduler, error) {
	s := &Scheduler{
		source:   source,
		logger:   logger,
		schedule: expression,
	}
	if expression == "" {
		return s, nil
	}

	schedule, err := NewCronParser().Parse(expression)
	if err != nil {
		return nil, err
	}

	s.cron = cron.New()
	s.cron.Schedule(schedule, cron.FuncJob(s.RunNow))
	return s, nil
}

// Enabled reports whether a schedule is configured.
func (s *Scheduler) Enabled() bool {
	return s.cron != nil
}

// Start begins background processing.
func (s *Scheduler) Start() {
	if s.cron == nil {
		s.logger.Debug().Msg("Diagnostics schedule disabled")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true
	s.cron.Start()

	event := s.logger.Info().Str("schedule", s.schedule)
	if next, err := NewCronParser().NextRun(s.schedule, time.Now()); err == nil {
		event = event.Time("next_run", next)
	}
	event.Msg("Diagnostics scheduler started")
}

// Stop halts the schedule and waits for a running dump to finish or for ctx
// to be done.
func (s *Scheduler) Stop(ctx context.Context) {
	s.mu.Lock()
	if s.cron == nil || !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	s.mu.Unlock()

	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
	}
	s.logger.Info().Msg("Diagnostics scheduler stopped")
}

// RunNow performs one dump synchronously. The source is not rendered when
// debug logging is disabled.
func (s *Scheduler) RunNow() {
	e := s.logger.Debug()
	if !e.Enabled() {
		return
	}
	metrics.RecordDiagnosticsDump()
	e.Msg("Discovery caches\n" + s.source.Diagnostics())
}

package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"merchantdispatch/internal/pkg/errs"

	"github.com/robfig/cron/v3"
	"go.uber.org/atomic"
)

const (
	// DefaultPollInterval is the live poll cadence while any order is active.
	DefaultPollInterval = 4 * time.Second
	// DefaultPollTimeout bounds one poll request.
	DefaultPollTimeout = 15 * time.Second
)

// PollTarget is the part of the reconciliation engine the live poll drives.
type PollTarget interface {
	Refresh(ctx context.Context) error
	AllTerminal() bool
}

// LivePollJob refreshes one screen session's orders on a fixed interval. It stops
// itself once every tracked order is terminal; Focus restarts it.
type LivePollJob struct {
	target   PollTarget
	interval time.Duration
	timeout  time.Duration
	logger   *slog.Logger

	mu      sync.Mutex
	cron    *cron.Cron
	running atomic.Bool
}

// NewLivePollJob creates a stopped job. A zero interval takes DefaultPollInterval.
// Intervals below one second are rounded up by the scheduler.
func NewLivePollJob(target PollTarget, interval time.Duration, logger *slog.Logger) (*LivePollJob, error) {
	var errList []error
	if target == nil {
		errList = append(errList, errs.NewValueIsRequiredError("target"))
	}
	if logger == nil {
		errList = append(errList, errs.NewValueIsRequiredError("logger"))
	}
	if err := errors.Join(errList...); err != nil {
		return nil, err
	}
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	return &LivePollJob{
		target:   target,
		interval: interval,
		timeout:  DefaultPollTimeout,
		logger:   logger.With("component", "live_poll_job"),
	}, nil
}

// Start schedules the poll. Starting a running job is a no-op.
func (j *LivePollJob) Start() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.running.Load() {
		return nil
	}

	c := cron.New()
	if _, err := c.AddFunc(fmt.Sprintf("@every %s", j.interval), j.tick); err != nil {
		return fmt.Errorf("schedule live poll: %w", err)
	}
	c.Start()
	j.cron = c
	j.running.Store(true)
	j.logger.InfoContext(context.Background(), "Live poll job started", "interval", j.interval.String())
	return nil
}

// Stop unschedules the poll. A tick already in flight finishes on its own.
func (j *LivePollJob) Stop() {
	j.mu.Lock()
	defer j.mu.Unlock()
	if !j.running.Load() {
		return
	}
	j.cron.Stop()
	j.running.Store(false)
	j.logger.InfoContext(context.Background(), "Live poll job stopped")
}

// Running reports whether the poll is scheduled.
func (j *LivePollJob) Running() bool {
	return j.running.Load()
}

// Focus refreshes immediately and restarts the schedule when something is still
// active, as when the merchant's screen regains focus.
func (j *LivePollJob) Focus(ctx context.Context) error {
	if err := j.RunOnce(ctx); err != nil {
		return err
	}
	if j.target.AllTerminal() {
		return nil
	}
	return j.Start()
}

// RunOnce performs one refresh and stops the schedule when every order finished.
func (j *LivePollJob) RunOnce(ctx context.Context) error {
	err := j.target.Refresh(ctx)
	if j.target.AllTerminal() {
		j.Stop()
	}
	return err
}

func (j *LivePollJob) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()
	if err := j.RunOnce(ctx); err != nil {
		j.logger.WarnContext(ctx, "Live poll failed", "error", err)
	}
}

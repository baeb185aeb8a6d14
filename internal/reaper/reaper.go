// Package reaper runs the periodic session cleanup in the background.
package reaper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/loykin/walletvisor/internal/orchestrator"
)

// ErrBusy is returned by RunOnce while another pass is in progress.
var ErrBusy = errors.New("cleanup already running")

// Cleaner performs one reconciliation pass over every user.
type Cleaner interface {
	Cleanup(ctx context.Context) (orchestrator.Report, error)
}

// Reaper calls Cleanup on a fixed period. Passes never overlap: a tick that
// arrives while the previous pass still runs is skipped.
type Reaper struct {
	c      Cleaner
	period time.Duration
	log    *slog.Logger

	running atomic.Bool

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	last    orchestrator.Report
	lastAt  time.Time
	lastErr error
}

// ParseSchedule accepts "@every <duration>" or a bare duration.
func ParseSchedule(expr string) (time.Duration, error) {
	expr = strings.TrimSpace(expr)
	s := strings.TrimSpace(strings.TrimPrefix(expr, "@every "))
	if strings.HasPrefix(s, "@") || strings.Contains(s, " ") {
		return 0, fmt.Errorf("unsupported schedule: %s (only @every <duration> supported)", expr)
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid schedule duration: %w", err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("schedule duration must be > 0")
	}
	return d, nil
}

func New(c Cleaner, period time.Duration, log *slog.Logger) (*Reaper, error) {
	if c == nil {
		return nil, errors.New("reaper requires a cleaner")
	}
	if period <= 0 {
		return nil, fmt.Errorf("reaper period must be > 0, got %s", period)
	}
	if log == nil {
		log = slog.Default()
	}
	return &Reaper{c: c, period: period, log: log.With("component", "reaper")}, nil
}

// Start launches the background loop bound to ctx. Call Stop to end it.
func (r *Reaper) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.done != nil {
		return errors.New("reaper already started")
	}
	ctx, r.cancel = context.WithCancel(ctx)
	r.done = make(chan struct{})
	go r.loop(ctx, r.done)
	r.log.Info("reaper started", "period", r.period)
	return nil
}

func (r *Reaper) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	t := time.NewTicker(r.period)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if _, err := r.RunOnce(ctx); errors.Is(err, ErrBusy) {
				r.log.Debug("previous pass still running, tick skipped")
			}
		}
	}
}

// RunOnce performs a single pass now, returning ErrBusy if one is active.
func (r *Reaper) RunOnce(ctx context.Context) (orchestrator.Report, error) {
	if !r.running.CompareAndSwap(false, true) {
		return orchestrator.Report{}, ErrBusy
	}
	defer r.running.Store(false)

	rep, err := r.c.Cleanup(ctx)
	if err != nil {
		r.log.Warn("cleanup pass failed", "failed", rep.Failed, "err", err)
	}
	r.mu.Lock()
	r.last, r.lastAt, r.lastErr = rep, time.Now(), err
	r.mu.Unlock()
	return rep, err
}

// Last returns the most recent pass, its completion time and its error.
func (r *Reaper) Last() (orchestrator.Report, time.Time, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last, r.lastAt, r.lastErr
}

// Stop cancels the loop and any pass in flight, then waits for it to exit.
func (r *Reaper) Stop() {
	r.mu.Lock()
	cancel, done := r.cancel, r.done
	r.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

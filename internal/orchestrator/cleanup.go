package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/loykin/walletvisor/internal/history"
	"github.com/loykin/walletvisor/internal/metrics"
)

// Report summarises one Cleanup pass.
type Report struct {
	Scanned   int `json:"scanned"`
	Expired   int `json:"expired"`
	Cleared   int `json:"cleared"`
	Failed    int `json:"failed"`
	Connected int `json:"connected"`
}

// Cleanup stops sessions older than the session lifetime and clears records
// whose container no longer exists. Users are reconciled independently; the
// returned error joins every per-user failure.
func (o *Orchestrator) Cleanup(ctx context.Context) (Report, error) {
	start := time.Now()
	users, err := o.st.List(ctx)
	if err != nil {
		metrics.ObserveOperation("cleanup", err, time.Since(start).Seconds())
		return Report{}, fmt.Errorf("list users: %w", err)
	}

	var (
		expired, cleared, failed, connected atomic.Int64
		mu                                  sync.Mutex
		errs                                []error
	)
	var g errgroup.Group
	g.SetLimit(o.cfg.Concurrency)
	for _, u := range users {
		g.Go(func() error {
			out, err := o.reconcile(ctx, u)
			if out.expired {
				expired.Add(1)
			}
			if out.cleared {
				cleared.Add(1)
			}
			if out.connected {
				connected.Add(1)
			}
			if err != nil {
				failed.Add(1)
				o.logger().Warn("reconcile wallet", "user", u, "err", err)
				mu.Lock()
				errs = append(errs, fmt.Errorf("%s: %w", u, err))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	rep := Report{
		Scanned:   len(users),
		Expired:   int(expired.Load()),
		Cleared:   int(cleared.Load()),
		Failed:    int(failed.Load()),
		Connected: int(connected.Load()),
	}
	err = errors.Join(errs...)
	metrics.AddReaped("expired", rep.Expired)
	metrics.AddReaped("cleared", rep.Cleared)
	metrics.AddReaped("failed", rep.Failed)
	metrics.ObserveCleanup(time.Since(start).Seconds(), rep.Connected)
	metrics.ObserveOperation("cleanup", err, time.Since(start).Seconds())
	if rep.Expired+rep.Cleared+rep.Failed > 0 {
		o.logger().Info("cleanup pass", "scanned", rep.Scanned, "expired", rep.Expired,
			"cleared", rep.Cleared, "failed", rep.Failed)
	}
	return rep, err
}

type outcome struct {
	expired, cleared, connected bool
}

// reconcile touches only username's record.
func (o *Orchestrator) reconcile(ctx context.Context, username string) (outcome, error) {
	var out outcome
	rec, ok, err := o.st.Load(ctx, username)
	if err != nil {
		return out, fmt.Errorf("load: %w", err)
	}
	if !ok {
		return out, nil
	}

	if rec.Expired(o.now(), o.cfg.SessionLifetime) {
		out.expired = true
		if err := o.StopContainer(ctx, rec.Container); err != nil {
			o.logger().Warn("stop expired wallet", "user", username, "container", rec.Container, "err", err)
		}
		o.record(ctx, history.EventExpireWallet, rec, "")
		if err := o.sleep(ctx, o.cfg.SettleDelay); err != nil {
			return out, err
		}
		if rec.Container == "" {
			// nothing to probe; the session fields alone are stale
			rec.ClearConnection()
			if err := o.st.Save(ctx, rec); err != nil {
				return out, fmt.Errorf("save: %w", err)
			}
			out.cleared = true
			o.record(ctx, history.EventClearWallet, rec, "expired")
			return out, nil
		}
	}

	if rec.Container == "" {
		out.connected = rec.Connected
		return out, nil
	}
	alive, err := o.ContainerExists(ctx, rec.Container)
	if err != nil {
		out.connected = rec.Connected
		return out, err
	}
	if alive {
		out.connected = rec.Connected
		return out, nil
	}
	stale := rec
	rec.ClearConnection()
	if err := o.st.Save(ctx, rec); err != nil {
		return out, fmt.Errorf("save: %w", err)
	}
	out.cleared = true
	o.record(ctx, history.EventClearWallet, stale, "container gone")
	return out, nil
}

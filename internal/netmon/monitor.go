package netmon

import (
	"context"
	"errors"
	"time"

	"github.com/matricare/sync-client/internal/store"
	"github.com/matricare/sync-client/internal/syncer"
	"go.uber.org/zap"
)

// Signal is one connectivity observation from the platform or the prober.
type Signal struct {
	Reachable         bool
	InternetReachable bool
}

// Syncer is the sync trigger invoked on reconnect.
type Syncer interface {
	Sync(ctx context.Context) error
}

// Pinger checks backend reachability. The remote client implements it.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Monitor folds connectivity signals into the status store's offline flag.
// An offline-to-online transition triggers exactly one sync; going offline
// only flips the flag; an in-flight sync is allowed to fail naturally and
// gets retried on the next reconnect or manual trigger.
type Monitor struct {
	status *store.StatusStore
	syncer Syncer
	logger *zap.Logger
}

// NewMonitor creates a monitor over the given status store and sync trigger.
func NewMonitor(status *store.StatusStore, syncer Syncer, logger *zap.Logger) *Monitor {
	return &Monitor{
		status: status,
		syncer: syncer,
		logger: logger,
	}
}

// Apply processes one connectivity signal.
func (m *Monitor) Apply(ctx context.Context, sig Signal) {
	offline := !(sig.Reachable && sig.InternetReachable)
	changed := m.status.SetOffline(offline)
	if !changed {
		return
	}

	if offline {
		m.logger.Warn("connectivity lost, buffering readings locally")
		return
	}

	m.logger.Info("connectivity restored, triggering sync")
	go func() {
		if err := m.syncer.Sync(ctx); err != nil && !errors.Is(err, syncer.ErrSyncInFlight) {
			m.logger.Warn("reconnect-triggered sync failed", zap.Error(err))
		}
	}()
}

// Watch consumes signals until ctx is cancelled.
func (m *Monitor) Watch(ctx context.Context, signals <-chan Signal) {
	for {
		select {
		case <-ctx.Done():
			return
		case sig, ok := <-signals:
			if !ok {
				return
			}
			m.Apply(ctx, sig)
		}
	}
}

// Prober produces connectivity signals by polling the backend's health
// endpoint. It stands in for a platform connectivity API: reachability and
// internet reachability collapse into one probe outcome.
type Prober struct {
	pinger   Pinger
	interval time.Duration
	timeout  time.Duration
	logger   *zap.Logger
}

// NewProber creates a prober polling at interval with a per-probe timeout.
func NewProber(pinger Pinger, interval, timeout time.Duration, logger *zap.Logger) *Prober {
	return &Prober{
		pinger:   pinger,
		interval: interval,
		timeout:  timeout,
		logger:   logger,
	}
}

// Run emits a signal per probe, starting immediately, until ctx is
// cancelled. It closes signals on return.
func (p *Prober) Run(ctx context.Context, signals chan<- Signal) {
	defer close(signals)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		sig := p.probe(ctx)
		select {
		case signals <- sig:
		case <-ctx.Done():
			return
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return
		}
	}
}

func (p *Prober) probe(ctx context.Context) Signal {
	probeCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	if err := p.pinger.Ping(probeCtx); err != nil {
		p.logger.Debug("connectivity probe failed", zap.Error(err))
		return Signal{}
	}
	return Signal{Reachable: true, InternetReachable: true}
}

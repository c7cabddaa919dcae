// Package agent connects a scan loop to the sponsor store: it hydrates the
// loop from storage, asks for a register download when storage is empty and
// forwards later store changes to the loop.
package agent

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"sponsorcheck/internal/registry"
	"sponsorcheck/internal/scan"
	"sponsorcheck/internal/storage"
)

// Refresher triggers an immediate register download.
type Refresher interface {
	ForceRefresh(ctx context.Context) bool
}

// Store is the slice of storage.DB the agent reads from.
type Store interface {
	Enabled(ctx context.Context) (bool, error)
	ListSponsorKeys(ctx context.Context) ([]string, error)
	Subscribe() *storage.Subscription
}

type Agent struct {
	db        Store
	loop      *scan.Loop
	refresher Refresher
	log       *zap.Logger
}

func New(db Store, loop *scan.Loop, refresher Refresher) *Agent {
	return &Agent{db: db, loop: loop, refresher: refresher, log: zap.L().Named("agent")}
}

// Run drives the loop until ctx is done. Store reads happen here, off the
// loop goroutine, and their results are posted to the loop as events.
//
// The subscription is opened before hydration so no change is missed, but
// it is only drained once hydration has been posted: a change that lands
// mid-hydrate is applied after it, never overwritten by the older read.
func (a *Agent) Run(ctx context.Context) error {
	sub := a.db.Subscribe()
	defer sub.Close()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.loop.Run(ctx) })
	g.Go(func() error {
		if err := ignoreStop(a.hydrate(ctx)); err != nil {
			return err
		}
		return ignoreStop(a.follow(ctx, sub))
	})
	return g.Wait()
}

// Toggle delivers an enabled flag straight to the loop without going through
// storage.
func (a *Agent) Toggle(ctx context.Context, enabled bool) error {
	return a.loop.SetEnabled(ctx, enabled)
}

func (a *Agent) hydrate(ctx context.Context) error {
	enabled, err := a.db.Enabled(ctx)
	if err != nil {
		a.log.Warn("read enabled flag", zap.Error(err))
	}
	keys, err := a.db.ListSponsorKeys(ctx)
	if err != nil {
		a.log.Warn("read sponsor keys", zap.Error(err))
	}

	if len(keys) > 0 {
		return a.loop.Hydrate(ctx, enabled, registry.FromKeys(keys))
	}

	// Nothing stored yet: apply the flag, then wait on a download.
	if err := a.loop.Hydrate(ctx, enabled, registry.New()); err != nil {
		return err
	}
	if a.refresher == nil || !a.refresher.ForceRefresh(ctx) {
		a.log.Warn("no sponsor data available, staying idle")
		return nil
	}
	return a.reloadRegistry(ctx)
}

func (a *Agent) follow(ctx context.Context, sub *storage.Subscription) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case _, ok := <-sub.C:
			if !ok {
				return nil
			}
		}

		for _, key := range sub.Drain() {
			var err error
			switch key {
			case storage.KeySponsors:
				err = a.reloadRegistry(ctx)
			case storage.KeyEnabled:
				err = a.reloadEnabled(ctx)
			}
			if errors.Is(err, scan.ErrStopped) || ctx.Err() != nil {
				return err
			}
			if err != nil {
				a.log.Warn("apply store change", zap.String("key", key), zap.Error(err))
			}
		}
	}
}

func (a *Agent) reloadRegistry(ctx context.Context) error {
	keys, err := a.db.ListSponsorKeys(ctx)
	if err != nil {
		return err
	}
	return a.loop.RegistryChanged(ctx, registry.FromKeys(keys))
}

func (a *Agent) reloadEnabled(ctx context.Context) error {
	enabled, err := a.db.Enabled(ctx)
	if err != nil {
		return err
	}
	return a.loop.SetEnabled(ctx, enabled)
}

func ignoreStop(err error) error {
	if errors.Is(err, scan.ErrStopped) || errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

package scheduler

import (
	"context"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"sponsorcheck/internal"
	"sponsorcheck/internal/config"
	"sponsorcheck/internal/report"
	"sponsorcheck/internal/storage"
)

type Refresher interface {
	RefreshIfStale(ctx context.Context, maxAge time.Duration) (internal.RefreshResult, bool, error)
}

// Service keeps the stored register fresh, checking on start and then every
// REFRESH_CHECK_INTERVAL_SEC.
type Service struct {
	db        *storage.DB
	refresher Refresher
	cfg       config.Config
	interval  time.Duration
}

func NewService(db *storage.DB, refresher Refresher, cfg config.Config) *Service {
	interval := cfg.RefreshCheckInterval()
	if interval <= 0 {
		interval = time.Hour
	}
	return &Service{db: db, refresher: refresher, cfg: cfg, interval: interval}
}

func (s *Service) Run(ctx context.Context) error {

	for {
		if err := s.runCycle(ctx); err != nil {
			zap.L().Error("scheduler: cycle failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(s.interval):
		}
	}
}

func (s *Service) runCycle(ctx context.Context) error {
	res, ran, err := s.refresher.RefreshIfStale(ctx, s.cfg.RegisterMaxAge())
	if err != nil {
		return err
	}
	if !ran {
		zap.L().Debug("scheduler: register is fresh")
		return nil
	}
	if !res.Success {
		if res.Err == nil {
			return eris.Errorf("scheduler: refresh %s failed", res.TraceID)
		}
		return eris.Wrapf(res.Err, "scheduler: refresh %s", res.TraceID)
	}

	if s.cfg.RefreshAutoExport {
		if err := s.exportRegister(ctx, res); err != nil {
			return err
		}
	}

	zap.L().Info("scheduler: cycle done", zap.String("trace_id", res.TraceID), zap.Int("count", res.Count))
	return nil
}

func (s *Service) exportRegister(ctx context.Context, res internal.RefreshResult) error {
	records, err := s.db.ListSponsors(ctx)
	if err != nil {
		return err
	}
	filename := "sponsors_" + res.FinishedAt.UTC().Format("20060102T150405Z") + ".xlsx"
	return report.ExportSponsorsToXLSX(records, filepath.Join(s.cfg.OutputDir, "register", filename))
}

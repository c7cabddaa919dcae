package register

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"sponsorcheck/internal"
	"sponsorcheck/internal/config"
	"sponsorcheck/internal/registry"
	"sponsorcheck/internal/storage"
)

// Downloader fetches the raw register.
type Downloader interface {
	Download(ctx context.Context) (Payload, error)
}

// defaultRefreshTimeout bounds a refresh when no download timeout is set.
const defaultRefreshTimeout = 5 * time.Minute

type SyncService struct {
	db      *storage.DB
	source  Downloader
	format  Format
	reg     *registry.Registry
	flight  singleflight.Group
	timeout time.Duration
	now     func() time.Time
}

func NewSyncService(db *storage.DB, cfg config.Config) *SyncService {
	return NewSyncServiceWith(db, NewClient(cfg), cfg)
}

func NewSyncServiceWith(db *storage.DB, source Downloader, cfg config.Config) *SyncService {
	format, err := ParseFormat(cfg.RegisterFormat)
	if err != nil {
		zap.L().Warn("register: falling back to format auto", zap.String("format", cfg.RegisterFormat))
		format = FormatAuto
	}
	return &SyncService{db: db, source: source, format: format, timeout: refreshTimeout(cfg), now: time.Now}
}

// refreshTimeout leaves room for every download attempt plus backoff.
func refreshTimeout(cfg config.Config) time.Duration {
	if cfg.RegisterTimeoutMs <= 0 {
		return defaultRefreshTimeout
	}
	return time.Duration(cfg.RegisterTimeoutMs)*time.Millisecond*maxAttempts + 30*time.Second
}

// AttachRegistry makes successful refreshes also replace reg in place.
func (s *SyncService) AttachRegistry(reg *registry.Registry) {
	s.reg = reg
}

// Refresh downloads, parses and persists the register. Concurrent callers
// share one run. On failure the stored snapshot is left as it was.
//
// The shared run is detached from any single caller's ctx, so a caller
// that gives up does not fail the others; it is bounded by s.timeout.
func (s *SyncService) Refresh(ctx context.Context) internal.RefreshResult {
	v, _, _ := s.flight.Do("refresh", func() (any, error) {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
		defer cancel()
		return s.refresh(rctx), nil
	})
	return v.(internal.RefreshResult)
}

func (s *SyncService) refresh(ctx context.Context) internal.RefreshResult {
	res := internal.RefreshResult{TraceID: uuid.NewString(), StartedAt: s.now().UTC()}
	log := zap.L().With(zap.String("trace_id", res.TraceID))
	log.Info("register: refresh started")

	records, err := s.fetch(ctx)
	if err == nil {
		err = s.db.ReplaceSponsors(ctx, records, res.StartedAt)
	}

	res.FinishedAt = s.now().UTC()
	if err != nil {
		res.Err = err
		log.Error("register: refresh failed", zap.Error(err))
	} else {
		res.Success = true
		res.Count = len(records)
		if s.reg != nil {
			keys := make([]string, len(records))
			for i, r := range records {
				keys[i] = r.Key
			}
			s.reg.Replace(keys)
		}
		log.Info("register: refresh finished",
			zap.Int("count", res.Count),
			zap.Duration("took", res.FinishedAt.Sub(res.StartedAt)),
		)
	}

	if err := s.db.InsertRefreshRun(context.WithoutCancel(ctx), res); err != nil {
		log.Warn("register: record refresh run", zap.Error(err))
	}
	return res
}

func (s *SyncService) fetch(ctx context.Context) ([]internal.SponsorRecord, error) {
	payload, err := s.source.Download(ctx)
	if err != nil {
		return nil, err
	}
	records, err := ParsePayload(payload, s.format)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, eris.New("register: no usable rows")
	}
	return records, nil
}

// ForceRefresh runs a refresh now and reports whether it succeeded.
func (s *SyncService) ForceRefresh(ctx context.Context) bool {
	return s.Refresh(ctx).Success
}

// RefreshIfStale refreshes when lastUpdated is missing or older than maxAge.
// It returns ran=false when the stored register is fresh enough.
func (s *SyncService) RefreshIfStale(ctx context.Context, maxAge time.Duration) (internal.RefreshResult, bool, error) {
	last, err := s.db.LastUpdated(ctx)
	if err != nil {
		return internal.RefreshResult{}, false, err
	}
	if last != nil && s.now().Sub(*last) < maxAge {
		return internal.RefreshResult{}, false, nil
	}
	return s.Refresh(ctx), true, nil
}

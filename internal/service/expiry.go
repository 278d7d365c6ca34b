package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/vectorstored/internal/errdefs"
	"github.com/fyrsmithlabs/vectorstored/internal/logging"
	"github.com/fyrsmithlabs/vectorstored/internal/metadata"
)

// ExpireDue marks every vector store whose expiry has passed as expired
// and returns how many it changed. Expired stores keep their chunks but
// reject searches and new files.
func (s *Service) ExpireDue(ctx context.Context) (int, error) {
	now := s.now()
	due, err := s.meta.ListExpirable(ctx, now)
	if err != nil {
		return 0, err
	}
	expired := 0
	for _, candidate := range due {
		vsCtx := logging.WithVectorStoreID(ctx, candidate.ID)
		_, err := s.updateVectorStore(vsCtx, candidate.ID, func(vs *metadata.VectorStore) error {
			// Activity since the listing pushes the expiry out again.
			if vs.Status == metadata.VectorStoreExpired || vs.ExpiresAt == nil || vs.ExpiresAt.After(now) {
				return errSkip
			}
			vs.Status = metadata.VectorStoreExpired
			return nil
		})
		switch {
		case err == nil:
			expired++
			s.logger.Info(vsCtx, "vector store expired")
		case errors.Is(err, errSkip) || errdefs.IsNotFound(err):
		default:
			return expired, err
		}
	}
	return expired, nil
}

var errSkip = errors.New("skip")

// ExpirySweeper runs ExpireDue on a cron schedule. Overlapping runs are
// skipped.
type ExpirySweeper struct {
	svc     *Service
	cron    *cron.Cron
	logger  *logging.Logger
	running atomic.Bool

	mu  sync.Mutex
	ctx context.Context
}

// NewExpirySweeper schedules sweeps. schedule accepts five-field cron
// expressions and descriptors such as "@every 1h".
func NewExpirySweeper(svc *Service, schedule string) (*ExpirySweeper, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	sw := &ExpirySweeper{
		svc:    svc,
		cron:   cron.New(cron.WithParser(parser)),
		logger: svc.logger.Named("expiry"),
		ctx:    context.Background(),
	}
	if _, err := sw.cron.AddFunc(schedule, sw.tick); err != nil {
		return nil, errdefs.Wrap(errdefs.CodeConfiguration, err, "expiry schedule %q", schedule)
	}
	return sw, nil
}

// Start begins sweeping; ctx scopes every sweep.
func (sw *ExpirySweeper) Start(ctx context.Context) {
	sw.mu.Lock()
	sw.ctx = ctx
	sw.mu.Unlock()
	sw.cron.Start()
	sw.logger.Info(ctx, "expiry sweeper started")
}

// Stop halts the schedule and waits for a running sweep.
func (sw *ExpirySweeper) Stop() {
	<-sw.cron.Stop().Done()
}

// Sweep runs one sweep now unless one is already running.
func (sw *ExpirySweeper) Sweep(ctx context.Context) (int, error) {
	if !sw.running.CompareAndSwap(false, true) {
		sw.logger.Debug(ctx, "expiry sweep skipped: still running")
		return 0, nil
	}
	defer sw.running.Store(false)
	return sw.svc.ExpireDue(ctx)
}

func (sw *ExpirySweeper) tick() {
	sw.mu.Lock()
	ctx := sw.ctx
	sw.mu.Unlock()
	if ctx.Err() != nil {
		return
	}
	n, err := sw.Sweep(ctx)
	if err != nil {
		sw.logger.Error(ctx, "expiry sweep failed", zap.Error(err))
		return
	}
	if n > 0 {
		sw.logger.Info(ctx, "expiry sweep complete", zap.Int("expired", n))
	}
}

package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/virtualgrid/moneyserver/internal/app/metrics"
	"github.com/virtualgrid/moneyserver/internal/app/storage"
	"github.com/virtualgrid/moneyserver/pkg/logger"
)

// Sweeper periodically fails transactions stuck in Pending. A transaction
// older than the dead time can no longer settle; its debit leg never ran, so
// failing it releases nothing and only closes the record.
type Sweeper struct {
	txlog    storage.TransactionLog
	metrics  *metrics.Registry
	deadTime time.Duration
	interval time.Duration
	log      *logger.Logger

	cron *cron.Cron
	now  func() int64
}

func NewSweeper(txlog storage.TransactionLog, m *metrics.Registry,
	deadTime, interval time.Duration, log *logger.Logger) *Sweeper {
	return &Sweeper{
		txlog:    txlog,
		metrics:  m,
		deadTime: deadTime,
		interval: interval,
		log:      log,
		now:      func() int64 { return time.Now().Unix() },
	}
}

func (s *Sweeper) Name() string { return "expiry-sweeper" }

func (s *Sweeper) Start(ctx context.Context) error {
	s.cron = cron.New()
	spec := fmt.Sprintf("@every %s", s.interval)
	if _, err := s.cron.AddFunc(spec, func() { s.Sweep(context.Background()) }); err != nil {
		return fmt.Errorf("schedule sweep: %w", err)
	}
	s.cron.Start()
	return nil
}

func (s *Sweeper) Stop(ctx context.Context) error {
	if s.cron == nil {
		return nil
	}
	stopCtx := s.cron.Stop()
	select {
	case <-stopCtx.Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

// Sweep runs one expiry pass.
func (s *Sweeper) Sweep(ctx context.Context) {
	deadline := s.now() - int64(s.deadTime.Seconds())
	expired, err := s.txlog.ExpirePending(ctx, deadline)
	if err != nil {
		s.log.WithError(err).Error("expiry sweep failed")
		return
	}
	if expired > 0 {
		s.metrics.ExpiredPending.Add(float64(expired))
		s.log.WithField("expired", expired).Info("expired stale pending transactions")
	}
}

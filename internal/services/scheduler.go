package services

import (
	"context"
	"fmt"
	"time"

	"auction-engine/internal/domain"
	"auction-engine/internal/metrics"
	"auction-engine/pkg/logger"

	"github.com/robfig/cron/v3"
)

// LifecycleScheduler closes expired lots on a fixed interval so closure becomes visible
// to readers without waiting for the next bid attempt.
type LifecycleScheduler struct {
	cron           *cron.Cron
	interval       time.Duration
	store          domain.LotStore
	clock          domain.Clock
	eventPub       domain.EventPublisher
	leaderElection domain.LeaderElection
	instanceID     string
	metrics        *metrics.Metrics
	log            logger.Logger
}

// NewLifecycleScheduler builds the sweep job. leaderElection may be nil, in which case
// every instance sweeps.
func NewLifecycleScheduler(
	interval time.Duration,
	store domain.LotStore,
	clock domain.Clock,
	eventPub domain.EventPublisher,
	leaderElection domain.LeaderElection,
	instanceID string,
	m *metrics.Metrics,
	log logger.Logger,
) *LifecycleScheduler {
	return &LifecycleScheduler{
		cron:           cron.New(cron.WithSeconds()),
		interval:       interval,
		store:          store,
		clock:          clock,
		eventPub:       eventPub,
		leaderElection: leaderElection,
		instanceID:     instanceID,
		metrics:        m,
		log:            log,
	}
}

func (s *LifecycleScheduler) Start(ctx context.Context) error {
	s.log.Info("Starting lifecycle scheduler", "interval", s.interval.String())

	_, err := s.cron.AddFunc(fmt.Sprintf("@every %s", s.interval), func() {
		if _, err := s.Sweep(ctx); err != nil {
			s.log.Error("Sweep failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("schedule sweep: %w", err)
	}

	s.cron.Start()
	return nil
}

// Stop halts the cron loop and waits for a running sweep to finish.
func (s *LifecycleScheduler) Stop() error {
	s.log.Info("Stopping lifecycle scheduler")
	<-s.cron.Stop().Done()
	return nil
}

// Sweep runs one tick and returns the ids of the lots it closed.
func (s *LifecycleScheduler) Sweep(ctx context.Context) ([]string, error) {
	if s.leaderElection != nil {
		isLeader, err := s.leaderElection.IsLeader(ctx, s.instanceID)
		if err != nil {
			return nil, fmt.Errorf("check leadership: %w", err)
		}
		if !isLeader {
			return nil, nil
		}
	}

	now := s.clock.Now()
	closed, err := s.store.CloseExpired(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("close expired lots: %w", err)
	}
	if len(closed) == 0 {
		return nil, nil
	}

	s.metrics.LotsClosedBy("sweep", len(closed))
	s.log.Info("Closed expired lots", "count", len(closed), "lot_ids", closed)

	for _, lotID := range closed {
		publishClosed(ctx, s.store, s.eventPub, lotID, now, s.log)
	}
	return closed, nil
}

// RunElection keeps trying to acquire leadership until ctx is done.
func (s *LifecycleScheduler) RunElection(ctx context.Context, retry time.Duration) error {
	if s.leaderElection == nil {
		return nil
	}

	ticker := time.NewTicker(retry)
	defer ticker.Stop()

	for {
		became, err := s.leaderElection.BecomeLeader(ctx, s.instanceID)
		if err != nil {
			s.log.Error("Failed to attempt leadership", "error", err)
		} else if became {
			s.log.Info("Became sweep leader", "instance_id", s.instanceID)
		}

		select {
		case <-ctx.Done():
			releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			if err := s.leaderElection.ReleaseLeadership(releaseCtx, s.instanceID); err != nil {
				s.log.Error("Failed to release leadership", "error", err)
			}
			return nil
		case <-ticker.C:
		}
	}
}

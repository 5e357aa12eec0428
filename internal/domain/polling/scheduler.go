package polling

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/ehr/hie/internal/platform/db"
)

// Scheduler triggers a poll run on a fixed interval for one tenant scope.
// A tick that finds the previous run still in flight is skipped, never
// queued. A watchdog sweep marks runs stuck in_progress past the abandon
// interval as errored; abandoned runs are eligible for a manual retrigger,
// never resumed.
type Scheduler struct {
	svc          *Service
	repo         Repository
	pool         *pgxpool.Pool
	tenant       string
	interval     time.Duration
	abandonAfter time.Duration
	logger       zerolog.Logger

	stop chan struct{}
	done chan struct{}

	// scoped checks out a tenant-scoped connection for one tick.
	// Overridable so scheduler tests run without a database.
	scoped func(ctx context.Context) (context.Context, func(), error)
}

func NewScheduler(svc *Service, repo Repository, pool *pgxpool.Pool, tenant string, interval, abandonAfter time.Duration, logger zerolog.Logger) *Scheduler {
	s := &Scheduler{
		svc:          svc,
		repo:         repo,
		pool:         pool,
		tenant:       tenant,
		interval:     interval,
		abandonAfter: abandonAfter,
		logger:       logger,
		stop:         make(chan struct{}),
		done:         make(chan struct{}),
	}
	s.scoped = func(ctx context.Context) (context.Context, func(), error) {
		sctx, conn, err := db.AcquireScoped(ctx, s.pool, s.tenant)
		if err != nil {
			return ctx, nil, err
		}
		return sctx, conn.Release, nil
	}
	return s
}

func (s *Scheduler) Start() {
	s.logger.Info().Str("tenant", s.tenant).Dur("interval", s.interval).Msg("poll scheduler started")
	go s.run()
}

// Stop halts the ticker and waits for an in-flight tick to finish, or for
// ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) error {
	close(s.stop)
	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) run() {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.sweepAbandoned()
			s.tick()
		}
	}
}

func (s *Scheduler) tick() {
	// Bound each tick so a hung run cannot outlive its interval by much;
	// the gateway call carries its own shorter timeout.
	ctx, cancel := context.WithTimeout(context.Background(), s.interval)
	defer cancel()

	ctx, release, err := s.scoped(ctx)
	if err != nil {
		s.logger.Error().Err(err).Str("tenant", s.tenant).Msg("scheduled poll could not acquire tenant connection")
		return
	}
	defer release()

	if _, err := s.svc.ExecutePoll(ctx, s.tenant, TriggerScheduled); err != nil {
		if errors.Is(err, ErrPollAlreadyRunning) {
			s.logger.Debug().Str("tenant", s.tenant).Msg("scheduled poll skipped, previous run still in flight")
			return
		}
		s.logger.Error().Err(err).Str("tenant", s.tenant).Msg("scheduled poll failed")
	}
}

func (s *Scheduler) sweepAbandoned() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	ctx, release, err := s.scoped(ctx)
	if err != nil {
		s.logger.Error().Err(err).Str("tenant", s.tenant).Msg("watchdog could not acquire tenant connection")
		return
	}
	defer release()

	n, err := s.repo.MarkAbandoned(ctx, s.abandonAfter)
	if err != nil {
		s.logger.Error().Err(err).Str("tenant", s.tenant).Msg("watchdog sweep failed")
		return
	}
	if n > 0 {
		s.logger.Warn().Int64("runs", n).Str("tenant", s.tenant).Msg("abandoned poll runs marked as errored")
	}
}

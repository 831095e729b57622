package settlement

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/atmx/league-engine/internal/leaderboard"
	"github.com/atmx/league-engine/internal/metrics"
	"github.com/atmx/league-engine/internal/model"
	"github.com/atmx/league-engine/internal/repo"
)

// SchedulerConfig holds configuration for the settlement scheduler.
type SchedulerConfig struct {
	// Interval is how often ended games are looked for.
	Interval time.Duration

	// MaxConcurrent is how many groups are evaluated in parallel. Games
	// within one group are always settled one after another.
	MaxConcurrent int
}

// DefaultSchedulerConfig returns the default scheduler configuration.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		Interval:      time.Minute,
		MaxConcurrent: 4,
	}
}

// Scheduler periodically settles every ended, unprocessed game.
type Scheduler struct {
	engine *Engine
	repo   *repo.Repository
	cfg    SchedulerConfig
	logger *slog.Logger
}

// NewScheduler creates a scheduler driving engine.
func NewScheduler(engine *Engine, r *repo.Repository, cfg SchedulerConfig) *Scheduler {
	def := DefaultSchedulerConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.MaxConcurrent < 1 {
		cfg.MaxConcurrent = def.MaxConcurrent
	}
	return &Scheduler{engine: engine, repo: r, cfg: cfg, logger: engine.logger}
}

// Start runs a pass immediately and then on every tick until ctx is done.
func (s *Scheduler) Start(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	s.logger.Info("settlement scheduler started", "interval", s.cfg.Interval.String())
	s.pass(ctx)

	for {
		select {
		case <-ticker.C:
			s.pass(ctx)
		case <-ctx.Done():
			s.logger.Info("settlement scheduler stopped")
			return nil
		}
	}
}

func (s *Scheduler) pass(ctx context.Context) {
	if _, err := s.RunOnce(ctx); err != nil {
		s.logger.Error("settlement pass failed", "err", err)
	}
}

// RunOnce evaluates every group once and returns the results of games that
// were looked at. Per-game errors are logged and left for the next pass;
// only failing to list groups is returned.
func (s *Scheduler) RunOnce(ctx context.Context) ([]Result, error) {
	metrics.SchedulerPasses.Inc()

	groups, err := s.repo.ListGroups(ctx)
	if err != nil {
		return nil, err
	}

	var (
		mu      sync.Mutex
		results []Result
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.MaxConcurrent)
	for i := range groups {
		group := groups[i]
		if !group.Betting.Enabled {
			continue
		}
		g.Go(func() error {
			rs := s.settleGroup(gctx, &group)
			mu.Lock()
			results = append(results, rs...)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return results, nil
}

func (s *Scheduler) settleGroup(ctx context.Context, group *model.Group) []Result {
	games, err := s.repo.ListGames(ctx, group.ID)
	if err != nil {
		s.logger.Error("list games failed", "group", group.ID, "err", err)
		return nil
	}

	now := s.engine.now()
	var results []Result
	var standings []model.LeaderboardEntry
	for i := range games {
		game := &games[i]
		if !game.Ended(now) {
			continue
		}

		if standings == nil {
			standings, err = s.Standings(ctx, group)
			if err != nil {
				s.logger.Error("load standings failed", "group", group.ID, "err", err)
				return results
			}
		}

		res, err := s.engine.Settle(ctx, group, game, standings)
		if err != nil {
			s.logger.Error("settlement failed", "group", group.ID, "game", game.ID, "err", err)
			continue
		}
		if res.Outcome == OutcomeSettled {
			// The group record changed; later games must see the new periods.
			if fresh, err := s.repo.GetGroup(ctx, group.ID); err == nil {
				group = fresh
			}
		}
		results = append(results, *res)
	}
	return results
}

// Standings ranks the group's members by their current portfolios.
func (s *Scheduler) Standings(ctx context.Context, group *model.Group) ([]model.LeaderboardEntry, error) {
	users, err := s.repo.GetUsers(ctx, group.MemberIDs)
	if err != nil {
		return nil, err
	}
	portfolios, err := s.repo.GetPortfolios(ctx, group.MemberIDs)
	if err != nil {
		return nil, err
	}
	return leaderboard.Standings(group.MemberIDs, users, portfolios), nil
}

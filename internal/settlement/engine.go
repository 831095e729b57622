// Package settlement settles finished group games: it picks the betting
// period, splits the pot, records the period on the group, broadcasts a
// payout notification, appends the betting history and finally marks the
// game processed.
//
// Every write is to an independent key. The processed-set write is always
// last, so a crash anywhere before it leaves the game unprocessed and the
// next pass retries. The earlier writes are keyed by game id and skip
// themselves when already present, which makes that retry safe. A
// settlement lease taken before any write keeps two settlers from working
// the same game at once.
package settlement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/atmx/league-engine/internal/metrics"
	"github.com/atmx/league-engine/internal/model"
	"github.com/atmx/league-engine/internal/payout"
	"github.com/atmx/league-engine/internal/repo"
)

// Outcome describes what a Settle call did.
type Outcome string

const (
	OutcomeSettled          Outcome = "settled"
	OutcomeDisabled         Outcome = "betting_disabled"
	OutcomeNotEnded         Outcome = "not_ended"
	OutcomeAlreadyProcessed Outcome = "already_processed"
	OutcomeNoStandings      Outcome = "no_standings"
	OutcomeClaimed          Outcome = "claimed_elsewhere"
)

// DefaultLease is how long a settler holds a game before others may retry.
const DefaultLease = 2 * time.Minute

// idSpace namespaces the deterministic ids derived from game ids.
var idSpace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("league-engine/settlement"))

// Broadcaster receives payout notifications once they are stored.
type Broadcaster interface {
	BroadcastPayout(n model.PayoutNotification)
}

// Result reports one settlement attempt.
type Result struct {
	GroupID      string                    `json:"group_id"`
	GameID       string                    `json:"game_id"`
	Outcome      Outcome                   `json:"outcome"`
	Period       *model.BettingPeriod      `json:"period,omitempty"`
	Notification *model.PayoutNotification `json:"notification,omitempty"`
	Remainder    decimal.Decimal           `json:"remainder"`
}

// Engine settles games against a repository.
type Engine struct {
	repo   *repo.Repository
	hub    Broadcaster
	owner  string
	lease  time.Duration
	now    func() time.Time
	logger *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithOwner sets the lease owner name. Defaults to a random id.
func WithOwner(owner string) Option {
	return func(e *Engine) { e.owner = owner }
}

// WithLease sets the settlement lease duration.
func WithLease(d time.Duration) Option {
	return func(e *Engine) { e.lease = d }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// NewEngine creates a settlement engine.
// Pass nil for hub if broadcasting is not needed.
func NewEngine(r *repo.Repository, hub Broadcaster, opts ...Option) *Engine {
	e := &Engine{
		repo:   r,
		hub:    hub,
		owner:  uuid.New().String(),
		lease:  DefaultLease,
		now:    func() time.Time { return time.Now().UTC() },
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Settle settles game for group given its final standings, ordered best
// first. Unmet preconditions are not errors: they come back as an Outcome
// and the game is simply evaluated again later.
func (e *Engine) Settle(ctx context.Context, group *model.Group, game *model.GroupGame, standings []model.LeaderboardEntry) (res *Result, err error) {
	start := time.Now()
	now := e.now()
	res = &Result{GroupID: group.ID, GameID: game.ID, Remainder: decimal.Zero}

	defer func() {
		if err != nil {
			metrics.SettlementErrors.Inc()
			return
		}
		metrics.SettlementsTotal.WithLabelValues(string(res.Outcome)).Inc()
		if res.Outcome == OutcomeSettled {
			metrics.SettlementLatency.Observe(time.Since(start).Seconds())
		}
	}()

	if !group.Betting.Enabled {
		res.Outcome = OutcomeDisabled
		return res, nil
	}
	if !game.Ended(now) {
		res.Outcome = OutcomeNotEnded
		return res, nil
	}
	done, err := e.repo.IsProcessed(ctx, game.ID)
	if err != nil {
		return nil, fmt.Errorf("check processed %s: %w", game.ID, err)
	}
	if done {
		res.Outcome = OutcomeAlreadyProcessed
		return res, nil
	}
	if len(standings) == 0 {
		res.Outcome = OutcomeNoStandings
		return res, nil
	}

	claimed, err := e.repo.ClaimSettlement(ctx, game.ID, e.owner, now, e.lease)
	if err != nil {
		return nil, fmt.Errorf("claim %s: %w", game.ID, err)
	}
	if !claimed {
		res.Outcome = OutcomeClaimed
		return res, nil
	}
	defer func() {
		// Release on the way out so a failed attempt can be retried at once.
		if relErr := e.repo.ReleaseSettlement(context.WithoutCancel(ctx), game.ID, e.owner); relErr != nil {
			e.logger.Warn("release settlement lease failed", "game", game.ID, "err", relErr)
		}
	}()

	// Another settler may have finished between the first check and the claim.
	if done, err = e.repo.IsProcessed(ctx, game.ID); err != nil {
		return nil, fmt.Errorf("check processed %s: %w", game.ID, err)
	} else if done {
		res.Outcome = OutcomeAlreadyProcessed
		return res, nil
	}

	// A previous attempt may have stored the period or the notification
	// before failing. Those records are final: the retry finishes from them
	// rather than from the standings it was handed this time.
	period, n, err := e.priorAttempt(ctx, group.ID, game.ID)
	if err != nil {
		return nil, err
	}
	switch {
	case period != nil:
	case n != nil:
		p := BuildPeriod(game, n.PeriodType, group.Betting.PotFor(n.PeriodType), n.WinnerPayouts, now)
		period = &p
	default:
		pt := PeriodType(game.StartDate, game.EndDate, group.Betting)
		pot := group.Betting.PotFor(pt)
		payouts, err := payout.Compute(standings, group.Betting.PayoutStructure, pot)
		if err != nil {
			return nil, fmt.Errorf("compute payouts for %s: %w", game.ID, err)
		}
		p := BuildPeriod(game, pt, pot, payouts, now)
		period = &p
	}
	if n == nil {
		built, err := e.buildNotification(ctx, group, game, standings, period.PeriodType, period.WinnerPayouts, now)
		if err != nil {
			return nil, err
		}
		n = &built
	}
	periodType, pot, payouts := period.PeriodType, period.Payout, period.WinnerPayouts

	if _, err := e.repo.AppendPeriod(ctx, group.ID, *period); err != nil {
		return nil, fmt.Errorf("append period for %s: %w", game.ID, err)
	}

	appended, err := e.repo.AppendNotification(ctx, *n)
	if err != nil {
		return nil, fmt.Errorf("append notification for %s: %w", game.ID, err)
	}
	if appended && e.hub != nil {
		e.hub.BroadcastPayout(*n)
	}

	if _, err := e.repo.AppendHistory(ctx, historyEntries(group, *period, *n, now)...); err != nil {
		return nil, fmt.Errorf("append history for %s: %w", game.ID, err)
	}

	// Last write: from here on the game is settled.
	if _, err := e.repo.MarkProcessed(ctx, game.ID); err != nil {
		return nil, fmt.Errorf("mark processed %s: %w", game.ID, err)
	}

	metrics.PayoutsTotal.WithLabelValues(string(periodType)).Add(payout.Total(payouts).InexactFloat64())

	e.logger.Info("game settled",
		"group", group.ID,
		"game", game.ID,
		"period_type", periodType,
		"pot", pot.String(),
		"winner", n.WinnerUserID,
		"payouts", len(payouts),
		"owing_members", len(n.MemberPayments),
	)

	res.Outcome = OutcomeSettled
	res.Period = period
	res.Notification = n
	res.Remainder = payout.Remainder(pot, payouts)
	return res, nil
}

// BuildPeriod creates the settlement record for a game, already stamped as
// notified.
func BuildPeriod(game *model.GroupGame, pt model.PeriodType, pot decimal.Decimal, payouts []model.WinnerPayout, now time.Time) model.BettingPeriod {
	notifiedAt := now
	return model.BettingPeriod{
		ID:               deriveID("period", game.ID),
		GameID:           game.ID,
		PeriodType:       pt,
		StartDate:        game.StartDate,
		EndDate:          game.EndDate,
		Payout:           pot,
		PayoutStatus:     model.PayoutNotified,
		PayoutNotifiedAt: &notifiedAt,
		WinnerPayouts:    payouts,
	}
}

// MemberPayments assigns what every member without a payout owes: the
// distributed total split evenly among them.
func MemberPayments(memberIDs []string, payouts []model.WinnerPayout) []model.MemberPayment {
	paid := make(map[string]bool, len(payouts))
	for _, p := range payouts {
		paid[p.UserID] = true
	}

	var owing []string
	seen := make(map[string]bool, len(memberIDs))
	for _, id := range memberIDs {
		if paid[id] || seen[id] {
			continue
		}
		seen[id] = true
		owing = append(owing, id)
	}
	if len(owing) == 0 {
		return []model.MemberPayment{}
	}

	share := payout.Total(payouts).Div(decimal.NewFromInt(int64(len(owing))))
	out := make([]model.MemberPayment, 0, len(owing))
	for _, id := range owing {
		out = append(out, model.MemberPayment{
			UserID:        id,
			AmountOwed:    share,
			PaymentStatus: model.PaymentPending,
		})
	}
	return out
}

// priorAttempt loads the period and notification an earlier attempt at
// gameID stored, if any.
func (e *Engine) priorAttempt(ctx context.Context, groupID, gameID string) (*model.BettingPeriod, *model.PayoutNotification, error) {
	var period *model.BettingPeriod
	g, err := e.repo.GetGroup(ctx, groupID)
	switch {
	case err == nil:
		for i := range g.Periods {
			if g.Periods[i].GameID == gameID {
				period = &g.Periods[i]
				break
			}
		}
	case errors.Is(err, repo.ErrNotFound):
	default:
		return nil, nil, fmt.Errorf("load group %s: %w", groupID, err)
	}

	list, err := e.repo.ListNotifications(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("load notifications: %w", err)
	}
	id := deriveID("notification", gameID)
	for i := range list {
		if list[i].ID == id {
			return period, &list[i], nil
		}
	}
	return period, nil, nil
}

func (e *Engine) buildNotification(ctx context.Context, group *model.Group, game *model.GroupGame, standings []model.LeaderboardEntry, pt model.PeriodType, payouts []model.WinnerPayout, now time.Time) (model.PayoutNotification, error) {
	// The top payout names the winner so the notification always agrees
	// with a period stored by an earlier attempt.
	winner := standings[0]
	if len(payouts) > 0 && payouts[0].UserID != winner.UserID {
		winner = model.LeaderboardEntry{UserID: payouts[0].UserID}
		for _, s := range standings {
			if s.UserID == winner.UserID {
				winner = s
				break
			}
		}
	}

	var accounts []string
	u, err := e.repo.GetUser(ctx, winner.UserID)
	switch {
	case err == nil:
		accounts = u.PaymentAccounts
		if winner.Username == "" {
			winner.Username, winner.Avatar = u.Username, u.Avatar
		}
	case errors.Is(err, repo.ErrNotFound):
	default:
		return model.PayoutNotification{}, fmt.Errorf("load winner %s: %w", winner.UserID, err)
	}
	if accounts == nil {
		accounts = []string{}
	}

	members := group.MemberIDs
	if len(members) == 0 {
		for _, s := range standings {
			members = append(members, s.UserID)
		}
	}

	return model.PayoutNotification{
		ID:                    deriveID("notification", game.ID),
		GroupID:               group.ID,
		GroupName:             group.Name,
		GameID:                game.ID,
		WinnerUserID:          winner.UserID,
		WinnerUsername:        winner.Username,
		WinnerAvatar:          winner.Avatar,
		PeriodType:            pt,
		MemberPayments:        MemberPayments(members, payouts),
		WinnerPaymentAccounts: accounts,
		WinnerPayouts:         payouts,
		CreatedAt:             now,
	}, nil
}

func historyEntries(group *model.Group, period model.BettingPeriod, n model.PayoutNotification, now time.Time) []model.HistoryEntry {
	entries := make([]model.HistoryEntry, 0, len(period.WinnerPayouts)+len(n.MemberPayments))
	for _, p := range period.WinnerPayouts {
		entries = append(entries, model.HistoryEntry{
			ID:         deriveID("history", period.GameID, p.UserID, model.HistoryWon),
			GroupID:    group.ID,
			GameID:     period.GameID,
			PeriodID:   period.ID,
			UserID:     p.UserID,
			Kind:       model.HistoryWon,
			Amount:     p.Payout,
			PeriodType: period.PeriodType,
			CreatedAt:  now,
		})
	}
	for _, m := range n.MemberPayments {
		entries = append(entries, model.HistoryEntry{
			ID:         deriveID("history", period.GameID, m.UserID, model.HistoryOwes),
			GroupID:    group.ID,
			GameID:     period.GameID,
			PeriodID:   period.ID,
			UserID:     m.UserID,
			Kind:       model.HistoryOwes,
			Amount:     m.AmountOwed,
			PeriodType: period.PeriodType,
			CreatedAt:  now,
		})
	}
	return entries
}

// deriveID returns a stable id for the given parts, so a retried
// settlement produces the same records.
func deriveID(parts ...string) string {
	return uuid.NewSHA1(idSpace, []byte(strings.Join(parts, "/"))).String()
}

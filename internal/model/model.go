// Package model defines the core domain types shared across the league engine.
// All monetary values use shopspring/decimal; never float64 for money.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// RelationshipStatus is the social label a viewer attaches to another user.
type RelationshipStatus string

const (
	StatusFriend    RelationshipStatus = "friend"
	StatusRival     RelationshipStatus = "rival"
	StatusMentor    RelationshipStatus = "mentor"
	StatusMentee    RelationshipStatus = "mentee"
	StatusColleague RelationshipStatus = "colleague"
	StatusFamily    RelationshipStatus = "family"
	StatusOther     RelationshipStatus = "other"
)

// Valid reports whether s is one of the known relationship tags.
func (s RelationshipStatus) Valid() bool {
	switch s {
	case StatusFriend, StatusRival, StatusMentor, StatusMentee,
		StatusColleague, StatusFamily, StatusOther:
		return true
	}
	return false
}

// PeriodType classifies a betting cycle.
type PeriodType string

const (
	PeriodWeekly  PeriodType = "weekly"
	PeriodMonthly PeriodType = "monthly"
	PeriodSeason  PeriodType = "season"
)

// PayoutStructure names an allocation table for splitting a pot.
type PayoutStructure string

const (
	WinnerTakeAll PayoutStructure = "winner-take-all"
	Top3          PayoutStructure = "top-3"
	Top5          PayoutStructure = "top-5"
)

// Payout status of a BettingPeriod.
const (
	PayoutPending  = "pending"
	PayoutNotified = "notified"
	PayoutPaid     = "paid"
)

// Payment status of a single member's debt in a PayoutNotification.
const (
	PaymentPending      = "pending"
	PaymentAcknowledged = "acknowledged"
)

// History entry kinds.
const (
	HistoryWon  = "won"
	HistoryOwes = "owes"
)

// User is a player profile. FriendIDs is the user's own friend list.
type User struct {
	ID              string   `json:"id"`
	Username        string   `json:"username"`
	Avatar          string   `json:"avatar"`
	FriendIDs       []string `json:"friend_ids"`
	PaymentAccounts []string `json:"payment_accounts,omitempty"`
}

// Portfolio is the simulated portfolio value of a user.
type Portfolio struct {
	UserID        string          `json:"user_id"`
	StartingValue decimal.Decimal `json:"starting_value"`
	CurrentValue  decimal.Decimal `json:"current_value"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

var hundred = decimal.NewFromInt(100)

// ReturnValue is CurrentValue - StartingValue.
func (p Portfolio) ReturnValue() decimal.Decimal {
	return p.CurrentValue.Sub(p.StartingValue)
}

// ReturnPercent is the return relative to the starting value, in percent.
// A zero starting value yields zero.
func (p Portfolio) ReturnPercent() decimal.Decimal {
	if p.StartingValue.IsZero() {
		return decimal.Zero
	}
	return p.ReturnValue().Div(p.StartingValue).Mul(hundred)
}

// LeaderboardEntry is one row of a ranked standings list. Rank is derived
// on every aggregation pass and never stored.
type LeaderboardEntry struct {
	UserID         string          `json:"user_id"`
	Username       string          `json:"username"`
	Avatar         string          `json:"avatar"`
	ReturnPercent  decimal.Decimal `json:"return_percent"`
	ReturnValue    decimal.Decimal `json:"return_value"`
	Rank           int             `json:"rank"`
	PortfolioValue decimal.Decimal `json:"portfolio_value"`
}

// Relationship stores both directions of a user pair in a single record.
// UserA sorts before UserB; TagAB is how A labels B.
type Relationship struct {
	UserA     string             `json:"user_a"`
	UserB     string             `json:"user_b"`
	TagAB     RelationshipStatus `json:"tag_ab"`
	TagBA     RelationshipStatus `json:"tag_ba"`
	UpdatedAt time.Time          `json:"updated_at"`
}

// BettingSettings is the group's betting configuration. Read-only to
// settlement.
type BettingSettings struct {
	Enabled         bool            `json:"enabled"`
	WeeklyEnabled   bool            `json:"weekly_enabled"`
	MonthlyEnabled  bool            `json:"monthly_enabled"`
	SeasonEnabled   bool            `json:"season_enabled"`
	WeeklyPot       decimal.Decimal `json:"weekly_pot"`
	MonthlyPot      decimal.Decimal `json:"monthly_pot"`
	SeasonPot       decimal.Decimal `json:"season_pot"`
	PayoutStructure PayoutStructure `json:"payout_structure"`
}

// PotFor returns the configured pot for a period type.
func (b BettingSettings) PotFor(pt PeriodType) decimal.Decimal {
	switch pt {
	case PeriodWeekly:
		return b.WeeklyPot
	case PeriodMonthly:
		return b.MonthlyPot
	default:
		return b.SeasonPot
	}
}

// Group is a friend group competing in games. Periods is the settled
// betting history of the group, appended once per settled game.
type Group struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	OwnerID   string          `json:"owner_id"`
	MemberIDs []string        `json:"member_ids"`
	Betting   BettingSettings `json:"betting"`
	Periods   []BettingPeriod `json:"periods"`
	CreatedAt time.Time       `json:"created_at"`
}

// HasMember reports whether userID belongs to the group.
func (g *Group) HasMember(userID string) bool {
	for _, id := range g.MemberIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// GroupGame is a time-boxed competition among group members.
type GroupGame struct {
	ID        string    `json:"id"`
	GroupID   string    `json:"group_id"`
	Name      string    `json:"name"`
	StartDate time.Time `json:"start_date"`
	EndDate   time.Time `json:"end_date"`
	CreatedAt time.Time `json:"created_at"`
}

// Ended reports whether the game is eligible for settlement at now.
func (g *GroupGame) Ended(now time.Time) bool {
	return !now.Before(g.EndDate)
}

// WinnerPayout is one ranked participant's share of a pot.
type WinnerPayout struct {
	UserID     string          `json:"user_id"`
	Payout     decimal.Decimal `json:"payout"`
	Percentage decimal.Decimal `json:"percentage"`
}

// BettingPeriod is the settlement record of one game.
type BettingPeriod struct {
	ID               string          `json:"id"`
	GameID           string          `json:"game_id"`
	PeriodType       PeriodType      `json:"period_type"`
	StartDate        time.Time       `json:"start_date"`
	EndDate          time.Time       `json:"end_date"`
	Payout           decimal.Decimal `json:"payout"`
	PayoutStatus     string          `json:"payout_status"`
	PayoutNotifiedAt *time.Time      `json:"payout_notified_at,omitempty"`
	WinnerPayouts    []WinnerPayout  `json:"winner_payouts"`
}

// MemberPayment is what one member owes after a settlement.
type MemberPayment struct {
	UserID        string          `json:"user_id"`
	AmountOwed    decimal.Decimal `json:"amount_owed"`
	PaymentStatus string          `json:"payment_status"`
}

// PayoutNotification is a broadcast fact describing a settlement. It is
// never deleted; viewers dismiss it locally.
type PayoutNotification struct {
	ID                    string          `json:"id"`
	GroupID               string          `json:"group_id"`
	GroupName             string          `json:"group_name"`
	GameID                string          `json:"game_id"`
	WinnerUserID          string          `json:"winner_user_id"`
	WinnerUsername        string          `json:"winner_username"`
	WinnerAvatar          string          `json:"winner_avatar"`
	PeriodType            PeriodType      `json:"period_type"`
	MemberPayments        []MemberPayment `json:"member_payments"`
	WinnerPaymentAccounts []string        `json:"winner_payment_accounts"`
	WinnerPayouts         []WinnerPayout  `json:"winner_payouts"`
	CreatedAt             time.Time       `json:"created_at"`
}

// HistoryEntry is an immutable record in the global betting history log.
// Once created, these are never modified or deleted.
type HistoryEntry struct {
	ID         string          `json:"id"`
	GroupID    string          `json:"group_id"`
	GameID     string          `json:"game_id"`
	PeriodID   string          `json:"period_id"`
	UserID     string          `json:"user_id"`
	Kind       string          `json:"kind"` // "won" or "owes"
	Amount     decimal.Decimal `json:"amount"`
	PeriodType PeriodType      `json:"period_type"`
	CreatedAt  time.Time       `json:"created_at"`
}

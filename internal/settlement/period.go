package settlement

import (
	"time"

	"github.com/atmx/league-engine/internal/model"
)

const (
	day = 24 * time.Hour

	// One day of slack absorbs boundary and timezone drift.
	weeklyMax  = 7*day + day
	monthlyMax = 30*day + day
)

// NaturalPeriod classifies a game purely by duration.
func NaturalPeriod(start, end time.Time) model.PeriodType {
	dur := end.Sub(start)
	switch {
	case dur <= weeklyMax:
		return model.PeriodWeekly
	case dur <= monthlyMax:
		return model.PeriodMonthly
	default:
		return model.PeriodSeason
	}
}

// PeriodType picks the betting period for a game. When the natural period
// is not enabled for the group the game settles as season, whatever its
// duration and whether or not season is enabled. In that case the payout
// is SeasonPot, which may be zero.
func PeriodType(start, end time.Time, b model.BettingSettings) model.PeriodType {
	switch NaturalPeriod(start, end) {
	case model.PeriodWeekly:
		if b.WeeklyEnabled {
			return model.PeriodWeekly
		}
	case model.PeriodMonthly:
		if b.MonthlyEnabled {
			return model.PeriodMonthly
		}
	}
	return model.PeriodSeason
}

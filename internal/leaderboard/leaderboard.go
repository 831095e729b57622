// Package leaderboard ranks users by portfolio return.
//
// Aggregation is a pure function of its inputs and is recomputed on every
// call; nothing is cached across friend list, relationship or portfolio
// changes.
package leaderboard

import (
	"errors"
	"fmt"
	"sort"

	"github.com/atmx/league-engine/internal/model"
)

// FilterAll disables relationship filtering.
const FilterAll = "all"

// ErrInvalidFilter is returned by ParseFilter for unknown values.
var ErrInvalidFilter = errors.New("leaderboard: invalid relationship filter")

// Filter is either FilterAll or a relationship tag.
type Filter string

// ParseFilter validates a filter value. Empty means all.
func ParseFilter(s string) (Filter, error) {
	if s == "" || s == FilterAll {
		return FilterAll, nil
	}
	if !model.RelationshipStatus(s).Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidFilter, s)
	}
	return Filter(s), nil
}

// Input bundles everything a viewer's leaderboard depends on.
type Input struct {
	ViewerID      string
	FriendIDs     []string
	Relationships map[string]model.RelationshipStatus // other user → viewer's tag
	Users         map[string]model.User
	Portfolios    map[string]model.Portfolio
	Filter        Filter
}

// Aggregate builds the viewer's ranked leaderboard.
//
// The candidate set is the viewer's friends plus the viewer. Users without a
// portfolio are dropped. With a non-"all" filter, entries whose tag (friend
// when unset) differs are dropped, except the viewer's own entry.
func Aggregate(in Input) []model.LeaderboardEntry {
	ids := make([]string, 0, len(in.FriendIDs)+1)
	seen := make(map[string]bool, len(in.FriendIDs)+1)
	for _, id := range in.FriendIDs {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	if !seen[in.ViewerID] {
		ids = append(ids, in.ViewerID)
	}

	filter := in.Filter
	if filter == "" {
		filter = FilterAll
	}

	entries := make([]model.LeaderboardEntry, 0, len(ids))
	for _, id := range ids {
		p, ok := in.Portfolios[id]
		if !ok {
			continue
		}
		if filter != FilterAll && id != in.ViewerID {
			tag, ok := in.Relationships[id]
			if !ok || tag == "" {
				tag = model.StatusFriend
			}
			if Filter(tag) != filter {
				continue
			}
		}
		entries = append(entries, entryFor(id, in.Users[id], p))
	}

	Rank(entries)
	return entries
}

// Standings ranks a fixed member set, e.g. a group's final standings.
// Members without a portfolio are excluded.
func Standings(memberIDs []string, users map[string]model.User, portfolios map[string]model.Portfolio) []model.LeaderboardEntry {
	entries := make([]model.LeaderboardEntry, 0, len(memberIDs))
	for _, id := range memberIDs {
		p, ok := portfolios[id]
		if !ok {
			continue
		}
		entries = append(entries, entryFor(id, users[id], p))
	}
	Rank(entries)
	return entries
}

// Rank sorts entries by return percent, best first, keeping input order for
// ties, and assigns 1-based ranks.
func Rank(entries []model.LeaderboardEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].ReturnPercent.GreaterThan(entries[j].ReturnPercent)
	})
	for i := range entries {
		entries[i].Rank = i + 1
	}
}

func entryFor(id string, u model.User, p model.Portfolio) model.LeaderboardEntry {
	username := u.Username
	if username == "" {
		username = id
	}
	return model.LeaderboardEntry{
		UserID:         id,
		Username:       username,
		Avatar:         u.Avatar,
		ReturnPercent:  p.ReturnPercent(),
		ReturnValue:    p.ReturnValue(),
		PortfolioValue: p.CurrentValue,
	}
}

package leaderboard

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/atmx/league-engine/internal/model"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

// portfolio returns a portfolio with the given return percent on a 1000 base.
func portfolio(id string, pct float64) model.Portfolio {
	return model.Portfolio{
		UserID:        id,
		StartingValue: d(1000),
		CurrentValue:  d(1000 + pct*10),
	}
}

func portfolios(ps ...model.Portfolio) map[string]model.Portfolio {
	m := make(map[string]model.Portfolio, len(ps))
	for _, p := range ps {
		m[p.UserID] = p
	}
	return m
}

func ids(entries []model.LeaderboardEntry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.UserID
	}
	return out
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestAggregate_RankContiguity(t *testing.T) {
	entries := Aggregate(Input{
		ViewerID:  "me",
		FriendIDs: []string{"a", "b", "c"},
		Portfolios: portfolios(
			portfolio("me", 5), portfolio("a", 12), portfolio("b", -3), portfolio("c", 7),
		),
	})

	if got := ids(entries); !equal(got, []string{"a", "c", "me", "b"}) {
		t.Fatalf("unexpected order: %v", got)
	}
	for i, e := range entries {
		if e.Rank != i+1 {
			t.Errorf("entry %d has rank %d", i, e.Rank)
		}
		if i > 0 && e.ReturnPercent.GreaterThan(entries[i-1].ReturnPercent) {
			t.Errorf("entry %d out of order", i)
		}
	}
}

func TestAggregate_StableTies(t *testing.T) {
	entries := Aggregate(Input{
		ViewerID:   "me",
		FriendIDs:  []string{"x", "y", "z"},
		Portfolios: portfolios(portfolio("x", 4), portfolio("y", 4), portfolio("z", 4), portfolio("me", 1)),
	})
	if got := ids(entries); !equal(got, []string{"x", "y", "z", "me"}) {
		t.Errorf("ties should keep input order, got %v", got)
	}
}

func TestAggregate_AddsViewerOnce(t *testing.T) {
	entries := Aggregate(Input{
		ViewerID:   "me",
		FriendIDs:  []string{"a", "me", "a"},
		Portfolios: portfolios(portfolio("me", 1), portfolio("a", 2)),
	})
	if len(entries) != 2 {
		t.Errorf("expected viewer and one friend, got %v", ids(entries))
	}
}

func TestAggregate_OnlyFriends(t *testing.T) {
	entries := Aggregate(Input{
		ViewerID:   "me",
		FriendIDs:  []string{"a"},
		Portfolios: portfolios(portfolio("me", 1), portfolio("a", 2), portfolio("stranger", 99)),
	})
	for _, e := range entries {
		if e.UserID == "stranger" {
			t.Error("non-friend should not appear on the leaderboard")
		}
	}
}

func TestAggregate_MissingPortfolioExcluded(t *testing.T) {
	entries := Aggregate(Input{
		ViewerID:   "me",
		FriendIDs:  []string{"a", "ghost"},
		Portfolios: portfolios(portfolio("me", 1), portfolio("a", 2)),
	})
	if got := ids(entries); !equal(got, []string{"a", "me"}) {
		t.Errorf("expected ghost excluded, got %v", got)
	}
}

func TestAggregate_FilterRetainsSelf(t *testing.T) {
	in := Input{
		ViewerID:  "me",
		FriendIDs: []string{"a", "b", "c"},
		Relationships: map[string]model.RelationshipStatus{
			"a":  model.StatusRival,
			"b":  model.StatusMentor,
			"me": model.StatusFamily,
		},
		Portfolios: portfolios(
			portfolio("me", 1), portfolio("a", 2), portfolio("b", 3), portfolio("c", 4),
		),
	}

	for _, f := range []Filter{"rival", "mentor", "friend", "colleague"} {
		in.Filter = f
		entries := Aggregate(in)
		found := false
		for _, e := range entries {
			if e.UserID == "me" {
				found = true
			}
		}
		if !found {
			t.Errorf("filter %q dropped the viewer", f)
		}
	}
}

func TestAggregate_FilterDefaultsToFriend(t *testing.T) {
	entries := Aggregate(Input{
		ViewerID:  "me",
		FriendIDs: []string{"a", "b", "c"},
		Relationships: map[string]model.RelationshipStatus{
			"a": model.StatusRival,
		},
		Portfolios: portfolios(
			portfolio("me", 1), portfolio("a", 2), portfolio("b", 3), portfolio("c", 4),
		),
		Filter: "friend",
	})
	if got := ids(entries); !equal(got, []string{"c", "b", "me"}) {
		t.Errorf("expected untagged friends and viewer, got %v", got)
	}

	rivals := Aggregate(Input{
		ViewerID:      "me",
		FriendIDs:     []string{"a", "b"},
		Relationships: map[string]model.RelationshipStatus{"a": model.StatusRival},
		Portfolios:    portfolios(portfolio("me", 9), portfolio("a", 2), portfolio("b", 3)),
		Filter:        "rival",
	})
	if got := ids(rivals); !equal(got, []string{"me", "a"}) {
		t.Errorf("expected viewer and rival, got %v", got)
	}
	if rivals[0].Rank != 1 || rivals[1].Rank != 2 {
		t.Errorf("ranks should be recomputed after filtering: %+v", rivals)
	}
}

func TestAggregate_UserDetails(t *testing.T) {
	entries := Aggregate(Input{
		ViewerID:   "me",
		Users:      map[string]model.User{"me": {ID: "me", Username: "Me!", Avatar: "🦊"}},
		Portfolios: portfolios(portfolio("me", 10)),
	})
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	e := entries[0]
	if e.Username != "Me!" || e.Avatar != "🦊" {
		t.Errorf("user details not copied: %+v", e)
	}
	if !e.PortfolioValue.Equal(d(1100)) || !e.ReturnValue.Equal(d(100)) || !e.ReturnPercent.Equal(d(10)) {
		t.Errorf("unexpected figures: %+v", e)
	}
}

func TestStandings(t *testing.T) {
	entries := Standings(
		[]string{"a", "b", "c"},
		nil,
		portfolios(portfolio("a", 1), portfolio("c", 8)),
	)
	if got := ids(entries); !equal(got, []string{"c", "a"}) {
		t.Errorf("unexpected standings: %v", got)
	}
	if entries[0].Username != "c" {
		t.Errorf("username should fall back to id, got %q", entries[0].Username)
	}
}

func TestParseFilter(t *testing.T) {
	if f, err := ParseFilter(""); err != nil || f != FilterAll {
		t.Errorf("empty filter should be all, got %q %v", f, err)
	}
	if f, err := ParseFilter("mentee"); err != nil || f != "mentee" {
		t.Errorf("expected mentee, got %q %v", f, err)
	}
	if _, err := ParseFilter("stranger"); !errors.Is(err, ErrInvalidFilter) {
		t.Errorf("expected ErrInvalidFilter, got %v", err)
	}
}

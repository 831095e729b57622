package league_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/atmx/league-engine/internal/league"
	"github.com/atmx/league-engine/internal/model"
	"github.com/atmx/league-engine/internal/repo"
	"github.com/atmx/league-engine/internal/settlement"
	"github.com/atmx/league-engine/internal/store"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

// newTestEnv creates a test Service with in-memory store and chi router.
func newTestEnv(t *testing.T) (*repo.Repository, chi.Router) {
	t.Helper()
	r := repo.New(store.NewMemoryStore())
	engine := settlement.NewEngine(r, nil)
	sched := settlement.NewScheduler(engine, r, settlement.DefaultSchedulerConfig())
	svc := league.NewService(r, sched, nil)

	router := chi.NewRouter()
	router.Route("/api/v1", svc.Routes)
	return r, router
}

func do(t *testing.T, router chi.Router, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func seedUser(t *testing.T, router chi.Router, id string, friends []string, start, current float64) {
	t.Helper()
	w := do(t, router, "PUT", "/api/v1/users/"+id, league.UserRequest{
		Username:  id + "-name",
		FriendIDs: friends,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("put user %s: %d %s", id, w.Code, w.Body.String())
	}
	if start > 0 {
		w = do(t, router, "PUT", "/api/v1/users/"+id+"/portfolio", league.PortfolioRequest{
			StartingValue: d(start),
			CurrentValue:  d(current),
		})
		if w.Code != http.StatusOK {
			t.Fatalf("put portfolio %s: %d %s", id, w.Code, w.Body.String())
		}
	}
}

// --- Users and leaderboard ---

func TestGetUser_NotFound(t *testing.T) {
	_, router := newTestEnv(t)

	w := do(t, router, "GET", "/api/v1/users/ghost", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}

func TestPutUser_RoundTrip(t *testing.T) {
	_, router := newTestEnv(t)
	seedUser(t, router, "alice", []string{"bob"}, 0, 0)

	w := do(t, router, "GET", "/api/v1/users/alice", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var u model.User
	json.Unmarshal(w.Body.Bytes(), &u)
	if u.Username != "alice-name" || len(u.FriendIDs) != 1 || u.FriendIDs[0] != "bob" {
		t.Errorf("unexpected user: %+v", u)
	}
}

func TestPutPortfolio_NegativeRejected(t *testing.T) {
	_, router := newTestEnv(t)

	w := do(t, router, "PUT", "/api/v1/users/alice/portfolio", league.PortfolioRequest{
		StartingValue: d(-1),
		CurrentValue:  d(100),
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestGetLeaderboard_RanksFriendsAndSelf(t *testing.T) {
	_, router := newTestEnv(t)
	seedUser(t, router, "alice", []string{"bob", "carol", "dave"}, 1000, 1050) // +5%
	seedUser(t, router, "bob", nil, 1000, 1200)                               // +20%
	seedUser(t, router, "carol", nil, 1000, 900)                              // -10%
	seedUser(t, router, "dave", nil, 0, 0)                                    // no portfolio

	w := do(t, router, "GET", "/api/v1/users/alice/leaderboard", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var entries []model.LeaderboardEntry
	json.Unmarshal(w.Body.Bytes(), &entries)

	want := []string{"bob", "alice", "carol"}
	if len(entries) != len(want) {
		t.Fatalf("expected %d entries, got %+v", len(want), entries)
	}
	for i, id := range want {
		if entries[i].UserID != id || entries[i].Rank != i+1 {
			t.Errorf("entry %d = %s rank %d, want %s rank %d", i, entries[i].UserID, entries[i].Rank, id, i+1)
		}
	}
	if !entries[0].ReturnPercent.Equal(d(20)) {
		t.Errorf("bob's return should be 20%%, got %s", entries[0].ReturnPercent)
	}
}

func TestGetLeaderboard_FilterKeepsSelf(t *testing.T) {
	_, router := newTestEnv(t)
	seedUser(t, router, "alice", []string{"bob", "carol"}, 1000, 1000)
	seedUser(t, router, "bob", nil, 1000, 1100)
	seedUser(t, router, "carol", nil, 1000, 1100)

	w := do(t, router, "PUT", "/api/v1/users/alice/relationships/bob", league.RelationshipRequest{Status: model.StatusRival})
	if w.Code != http.StatusOK {
		t.Fatalf("set relationship: %d %s", w.Code, w.Body.String())
	}

	w = do(t, router, "GET", "/api/v1/users/alice/leaderboard?filter=rival", nil)
	var entries []model.LeaderboardEntry
	json.Unmarshal(w.Body.Bytes(), &entries)
	if len(entries) != 2 || entries[0].UserID != "bob" || entries[1].UserID != "alice" {
		t.Errorf("rival filter should keep bob and alice, got %+v", entries)
	}

	// carol has no tag and counts as friend.
	w = do(t, router, "GET", "/api/v1/users/alice/leaderboard?filter=friend", nil)
	json.Unmarshal(w.Body.Bytes(), &entries)
	if len(entries) != 2 || entries[0].UserID != "carol" {
		t.Errorf("friend filter should keep carol and alice, got %+v", entries)
	}
}

func TestGetLeaderboard_InvalidFilter(t *testing.T) {
	_, router := newTestEnv(t)
	seedUser(t, router, "alice", nil, 1000, 1000)

	w := do(t, router, "GET", "/api/v1/users/alice/leaderboard?filter=enemy", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

// --- Relationships ---

func TestSetRelationship_Reciprocal(t *testing.T) {
	_, router := newTestEnv(t)

	w := do(t, router, "PUT", "/api/v1/users/alice/relationships/bob", league.RelationshipRequest{Status: model.StatusMentor})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	w = do(t, router, "GET", "/api/v1/users/bob/relationships", nil)
	var views []league.RelationshipView
	json.Unmarshal(w.Body.Bytes(), &views)
	if len(views) != 1 || views[0].UserID != "alice" || views[0].Status != model.StatusMentee {
		t.Errorf("bob should see alice as mentee, got %+v", views)
	}
}

func TestSetRelationship_Invalid(t *testing.T) {
	_, router := newTestEnv(t)

	tests := []struct {
		name, path string
		status     model.RelationshipStatus
	}{
		{"self", "/api/v1/users/alice/relationships/alice", model.StatusFriend},
		{"unknown tag", "/api/v1/users/alice/relationships/bob", "nemesis"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, router, "PUT", tt.path, league.RelationshipRequest{Status: tt.status})
			if w.Code != http.StatusBadRequest {
				t.Errorf("expected 400, got %d", w.Code)
			}
		})
	}
}

// --- Groups and games ---

func bettingTop3() model.BettingSettings {
	return model.BettingSettings{
		Enabled:         true,
		WeeklyEnabled:   true,
		SeasonEnabled:   true,
		WeeklyPot:       d(100),
		SeasonPot:       d(1000),
		PayoutStructure: model.Top3,
	}
}

func TestCreateGroup_Valid(t *testing.T) {
	_, router := newTestEnv(t)

	w := do(t, router, "POST", "/api/v1/groups", league.CreateGroupRequest{
		Name:      "Desk",
		OwnerID:   "alice",
		MemberIDs: []string{"bob", "alice", "bob"},
		Betting:   bettingTop3(),
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var g model.Group
	json.Unmarshal(w.Body.Bytes(), &g)
	if g.ID == "" {
		t.Error("expected generated id")
	}
	if len(g.MemberIDs) != 2 || g.MemberIDs[0] != "alice" {
		t.Errorf("owner first, duplicates removed: %v", g.MemberIDs)
	}
}

func TestCreateGroup_InvalidBetting(t *testing.T) {
	_, router := newTestEnv(t)

	bad := bettingTop3()
	bad.PayoutStructure = "top-7"
	w := do(t, router, "POST", "/api/v1/groups", league.CreateGroupRequest{Name: "Desk", OwnerID: "alice", Betting: bad})
	if w.Code != http.StatusBadRequest {
		t.Errorf("unknown structure: expected 400, got %d", w.Code)
	}

	bad = bettingTop3()
	bad.WeeklyPot = d(-5)
	w = do(t, router, "POST", "/api/v1/groups", league.CreateGroupRequest{Name: "Desk", OwnerID: "alice", Betting: bad})
	if w.Code != http.StatusBadRequest {
		t.Errorf("negative pot: expected 400, got %d", w.Code)
	}
}

func TestCreateGroup_DuplicateID(t *testing.T) {
	_, router := newTestEnv(t)
	req := league.CreateGroupRequest{ID: "g1", Name: "Desk", OwnerID: "alice"}

	do(t, router, "POST", "/api/v1/groups", req)
	w := do(t, router, "POST", "/api/v1/groups", req)
	if w.Code != http.StatusConflict {
		t.Errorf("expected 409, got %d", w.Code)
	}
}

func TestCreateGame_Validation(t *testing.T) {
	_, router := newTestEnv(t)
	do(t, router, "POST", "/api/v1/groups", league.CreateGroupRequest{ID: "g1", Name: "Desk", OwnerID: "alice"})
	start := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)

	w := do(t, router, "POST", "/api/v1/groups/g1/games", league.CreateGameRequest{StartDate: start, EndDate: start})
	if w.Code != http.StatusBadRequest {
		t.Errorf("zero-length game: expected 400, got %d", w.Code)
	}

	w = do(t, router, "POST", "/api/v1/groups/nope/games", league.CreateGameRequest{StartDate: start, EndDate: start.Add(time.Hour)})
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown group: expected 404, got %d", w.Code)
	}

	w = do(t, router, "POST", "/api/v1/groups/g1/games", league.CreateGameRequest{ID: "w1", StartDate: start, EndDate: start.Add(time.Hour)})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}

	w = do(t, router, "GET", "/api/v1/groups/g1/games", nil)
	var games []model.GroupGame
	json.Unmarshal(w.Body.Bytes(), &games)
	if len(games) != 1 || games[0].ID != "w1" {
		t.Errorf("unexpected games: %+v", games)
	}
}

func TestUpdateBetting(t *testing.T) {
	_, router := newTestEnv(t)
	do(t, router, "POST", "/api/v1/groups", league.CreateGroupRequest{ID: "g1", Name: "Desk", OwnerID: "alice"})

	w := do(t, router, "PUT", "/api/v1/groups/g1/betting", bettingTop3())
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var g model.Group
	json.Unmarshal(w.Body.Bytes(), &g)
	if !g.Betting.Enabled || g.Betting.PayoutStructure != model.Top3 {
		t.Errorf("settings not applied: %+v", g.Betting)
	}

	w = do(t, router, "PUT", "/api/v1/groups/missing/betting", bettingTop3())
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}

// --- Settlement flow ---

// seedSettledLeague builds a four-member group with one ended weekly game
// and runs a settlement pass.
func seedSettledLeague(t *testing.T) (*repo.Repository, chi.Router, model.PayoutNotification) {
	t.Helper()
	r, router := newTestEnv(t)
	seedUser(t, router, "alice", nil, 1000, 1300)
	seedUser(t, router, "bob", nil, 1000, 1200)
	seedUser(t, router, "carol", nil, 1000, 1100)
	seedUser(t, router, "dave", nil, 1000, 900)

	do(t, router, "POST", "/api/v1/groups", league.CreateGroupRequest{
		ID:        "g1",
		Name:      "Desk",
		OwnerID:   "alice",
		MemberIDs: []string{"bob", "carol", "dave"},
		Betting:   bettingTop3(),
	})
	end := time.Now().UTC().Add(-time.Hour)
	w := do(t, router, "POST", "/api/v1/groups/g1/games", league.CreateGameRequest{
		ID:        "w1",
		StartDate: end.Add(-6 * 24 * time.Hour),
		EndDate:   end,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create game: %d %s", w.Code, w.Body.String())
	}

	w = do(t, router, "POST", "/api/v1/settlement/run", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("settlement run: %d %s", w.Code, w.Body.String())
	}
	var resp struct {
		Settled int                 `json:"settled"`
		Results []settlement.Result `json:"results"`
	}
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Settled != 1 || len(resp.Results) != 1 || resp.Results[0].Notification == nil {
		t.Fatalf("expected one settlement, got %s", w.Body.String())
	}
	return r, router, *resp.Results[0].Notification
}

func TestSettlementRun_CreatesPeriodAndNotification(t *testing.T) {
	_, router, n := seedSettledLeague(t)

	if n.WinnerUserID != "alice" || n.PeriodType != model.PeriodWeekly {
		t.Errorf("unexpected notification: %+v", n)
	}

	w := do(t, router, "GET", "/api/v1/groups/g1/periods", nil)
	var periods []model.BettingPeriod
	json.Unmarshal(w.Body.Bytes(), &periods)
	if len(periods) != 1 || periods[0].PayoutStatus != model.PayoutNotified {
		t.Fatalf("expected one notified period, got %+v", periods)
	}

	// A second run settles nothing new.
	w = do(t, router, "POST", "/api/v1/settlement/run", nil)
	var resp struct {
		Settled int `json:"settled"`
	}
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Settled != 0 {
		t.Errorf("second run should settle nothing, got %d", resp.Settled)
	}
}

func TestNotifications_VisibleAndDismiss(t *testing.T) {
	_, router, n := seedSettledLeague(t)

	w := do(t, router, "GET", "/api/v1/users/dave/notifications", nil)
	var list []model.PayoutNotification
	json.Unmarshal(w.Body.Bytes(), &list)
	if len(list) != 1 || list[0].ID != n.ID {
		t.Fatalf("dave owes and should see the notification, got %+v", list)
	}

	w = do(t, router, "GET", "/api/v1/users/stranger/notifications", nil)
	json.Unmarshal(w.Body.Bytes(), &list)
	if len(list) != 0 {
		t.Errorf("uninvolved user should see nothing, got %d", len(list))
	}

	w = do(t, router, "POST", "/api/v1/notifications/"+n.ID+"/dismiss", league.ActorRequest{UserID: "dave"})
	if w.Code != http.StatusOK {
		t.Fatalf("dismiss: %d %s", w.Code, w.Body.String())
	}
	w = do(t, router, "GET", "/api/v1/users/dave/notifications", nil)
	json.Unmarshal(w.Body.Bytes(), &list)
	if len(list) != 0 {
		t.Errorf("dismissed notification should be hidden for dave, got %d", len(list))
	}

	// Dismissal is per user.
	w = do(t, router, "GET", "/api/v1/users/alice/notifications", nil)
	json.Unmarshal(w.Body.Bytes(), &list)
	if len(list) != 1 {
		t.Errorf("alice should still see the notification, got %d", len(list))
	}

	w = do(t, router, "POST", "/api/v1/notifications/missing/dismiss", league.ActorRequest{UserID: "dave"})
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown notification: expected 404, got %d", w.Code)
	}
}

func TestAcknowledgePayment(t *testing.T) {
	r, router, n := seedSettledLeague(t)

	w := do(t, router, "POST", "/api/v1/notifications/"+n.ID+"/acknowledge", league.ActorRequest{UserID: "alice"})
	if w.Code != http.StatusForbidden {
		t.Errorf("winner cannot acknowledge: expected 403, got %d", w.Code)
	}

	w = do(t, router, "POST", "/api/v1/notifications/"+n.ID+"/acknowledge", league.ActorRequest{UserID: "dave"})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var got model.PayoutNotification
	json.Unmarshal(w.Body.Bytes(), &got)
	if got.MemberPayments[0].PaymentStatus != model.PaymentAcknowledged {
		t.Errorf("payment should be acknowledged: %+v", got.MemberPayments)
	}

	g, err := r.GetGroup(context.Background(), "g1")
	if err != nil {
		t.Fatalf("get group: %v", err)
	}
	if g.Periods[0].PayoutStatus != model.PayoutPaid {
		t.Errorf("period should be paid once nobody owes, got %s", g.Periods[0].PayoutStatus)
	}

	// Idempotent.
	w = do(t, router, "POST", "/api/v1/notifications/"+n.ID+"/acknowledge", league.ActorRequest{UserID: "dave"})
	if w.Code != http.StatusOK {
		t.Errorf("re-acknowledge should be a no-op, got %d", w.Code)
	}
}

func TestListHistory(t *testing.T) {
	_, router, _ := seedSettledLeague(t)

	w := do(t, router, "GET", "/api/v1/users/dave/history", nil)
	var entries []model.HistoryEntry
	json.Unmarshal(w.Body.Bytes(), &entries)
	if len(entries) != 1 || entries[0].Kind != model.HistoryOwes || !entries[0].Amount.Equal(d(100)) {
		t.Errorf("dave should owe the full distributed 100, got %+v", entries)
	}

	w = do(t, router, "GET", "/api/v1/users/alice/history", nil)
	json.Unmarshal(w.Body.Bytes(), &entries)
	if len(entries) != 1 || entries[0].Kind != model.HistoryWon || !entries[0].Amount.Equal(d(60)) {
		t.Errorf("alice should have won 60, got %+v", entries)
	}
}

func TestRunSettlement_NoScheduler(t *testing.T) {
	svc := league.NewService(repo.New(store.NewMemoryStore()), nil, nil)
	router := chi.NewRouter()
	router.Route("/api/v1", svc.Routes)

	w := do(t, router, "POST", "/api/v1/settlement/run", nil)
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", w.Code)
	}
}

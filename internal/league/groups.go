package league

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/atmx/league-engine/internal/model"
	"github.com/atmx/league-engine/internal/payout"
)

// CreateGroupRequest is the JSON body for POST /groups.
type CreateGroupRequest struct {
	ID        string                `json:"id"` // optional; generated when empty
	Name      string                `json:"name"`
	OwnerID   string                `json:"owner_id"`
	MemberIDs []string              `json:"member_ids"`
	Betting   model.BettingSettings `json:"betting"`
}

// CreateGameRequest is the JSON body for POST /groups/{groupID}/games.
type CreateGameRequest struct {
	ID        string    `json:"id"` // optional; generated when empty
	Name      string    `json:"name"`
	StartDate time.Time `json:"start_date"`
	EndDate   time.Time `json:"end_date"`
}

// CreateGroup handles POST /api/v1/groups
func (s *Service) CreateGroup(w http.ResponseWriter, r *http.Request) {
	var req CreateGroupRequest
	if err := decode(r, &req); err != nil {
		writeErr(w, err)
		return
	}
	if req.Name == "" || req.OwnerID == "" {
		writeErr(w, fmt.Errorf("%w: name and owner_id are required", errInvalidInput))
		return
	}
	if err := validateBetting(req.Betting); err != nil {
		writeErr(w, err)
		return
	}

	g := &model.Group{
		ID:        req.ID,
		Name:      req.Name,
		OwnerID:   req.OwnerID,
		MemberIDs: uniqueMembers(req.OwnerID, req.MemberIDs),
		Betting:   req.Betting,
		Periods:   []model.BettingPeriod{},
		CreatedAt: s.now(),
	}
	if g.ID == "" {
		g.ID = uuid.New().String()
	}

	if err := s.repo.CreateGroup(r.Context(), g); err != nil {
		writeErr(w, err)
		return
	}

	slog.Info("group created",
		"id", g.ID,
		"owner", g.OwnerID,
		"members", len(g.MemberIDs),
		"betting", g.Betting.Enabled,
	)
	writeJSON(w, http.StatusCreated, g)
}

// GetGroup handles GET /api/v1/groups/{groupID}
func (s *Service) GetGroup(w http.ResponseWriter, r *http.Request) {
	g, err := s.repo.GetGroup(r.Context(), chi.URLParam(r, "groupID"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

// UpdateBetting handles PUT /api/v1/groups/{groupID}/betting
// Settlement reads these settings; it never writes them.
func (s *Service) UpdateBetting(w http.ResponseWriter, r *http.Request) {
	groupID := chi.URLParam(r, "groupID")

	var req model.BettingSettings
	if err := decode(r, &req); err != nil {
		writeErr(w, err)
		return
	}
	if err := validateBetting(req); err != nil {
		writeErr(w, err)
		return
	}

	g, err := s.repo.UpdateGroup(r.Context(), groupID, func(g *model.Group) error {
		g.Betting = req
		return nil
	})
	if err != nil {
		writeErr(w, err)
		return
	}

	slog.Info("betting settings updated", "group", groupID, "enabled", req.Enabled, "structure", req.PayoutStructure)
	writeJSON(w, http.StatusOK, g)
}

// CreateGame handles POST /api/v1/groups/{groupID}/games
func (s *Service) CreateGame(w http.ResponseWriter, r *http.Request) {
	groupID := chi.URLParam(r, "groupID")
	ctx := r.Context()

	var req CreateGameRequest
	if err := decode(r, &req); err != nil {
		writeErr(w, err)
		return
	}
	if req.StartDate.IsZero() || !req.EndDate.After(req.StartDate) {
		writeErr(w, fmt.Errorf("%w: end_date must be after start_date", errInvalidInput))
		return
	}

	if _, err := s.repo.GetGroup(ctx, groupID); err != nil {
		writeErr(w, err)
		return
	}

	game := &model.GroupGame{
		ID:        req.ID,
		GroupID:   groupID,
		Name:      req.Name,
		StartDate: req.StartDate.UTC(),
		EndDate:   req.EndDate.UTC(),
		CreatedAt: s.now(),
	}
	if game.ID == "" {
		game.ID = uuid.New().String()
	}

	if err := s.repo.AddGame(ctx, game); err != nil {
		writeErr(w, err)
		return
	}

	slog.Info("game created", "group", groupID, "game", game.ID, "end", game.EndDate)
	writeJSON(w, http.StatusCreated, game)
}

// ListGames handles GET /api/v1/groups/{groupID}/games
func (s *Service) ListGames(w http.ResponseWriter, r *http.Request) {
	games, err := s.repo.ListGames(r.Context(), chi.URLParam(r, "groupID"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, games)
}

// ListPeriods handles GET /api/v1/groups/{groupID}/periods
// Returns the group's settled betting periods, oldest first.
func (s *Service) ListPeriods(w http.ResponseWriter, r *http.Request) {
	g, err := s.repo.GetGroup(r.Context(), chi.URLParam(r, "groupID"))
	if err != nil {
		writeErr(w, err)
		return
	}
	periods := g.Periods
	if periods == nil {
		periods = []model.BettingPeriod{}
	}
	writeJSON(w, http.StatusOK, periods)
}

func validateBetting(b model.BettingSettings) error {
	if b.WeeklyPot.IsNegative() || b.MonthlyPot.IsNegative() || b.SeasonPot.IsNegative() {
		return payout.ErrNegativePot
	}
	if b.Enabled && !payout.Valid(b.PayoutStructure) {
		return fmt.Errorf("%w: %q", payout.ErrUnknownStructure, b.PayoutStructure)
	}
	return nil
}

// uniqueMembers returns members with the owner first and duplicates removed.
func uniqueMembers(owner string, members []string) []string {
	out := []string{owner}
	seen := map[string]bool{owner: true}
	for _, id := range members {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

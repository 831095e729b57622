package league

import (
	"fmt"
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/atmx/league-engine/internal/leaderboard"
	"github.com/atmx/league-engine/internal/model"
	"github.com/atmx/league-engine/internal/relationship"
)

// UserRequest is the JSON body for PUT /users/{userID}.
type UserRequest struct {
	Username        string   `json:"username"`
	Avatar          string   `json:"avatar"`
	FriendIDs       []string `json:"friend_ids"`
	PaymentAccounts []string `json:"payment_accounts"`
}

// PortfolioRequest is the JSON body for PUT /users/{userID}/portfolio.
type PortfolioRequest struct {
	StartingValue decimal.Decimal `json:"starting_value"`
	CurrentValue  decimal.Decimal `json:"current_value"`
}

// RelationshipRequest is the JSON body for PUT /users/{userID}/relationships/{otherID}.
type RelationshipRequest struct {
	Status model.RelationshipStatus `json:"status"`
}

// RelationshipView is one relationship as seen by a viewer.
type RelationshipView struct {
	UserID string                   `json:"user_id"`
	Status model.RelationshipStatus `json:"status"`
}

// PutUser handles PUT /api/v1/users/{userID}
func (s *Service) PutUser(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	var req UserRequest
	if err := decode(r, &req); err != nil {
		writeErr(w, err)
		return
	}
	if req.FriendIDs == nil {
		req.FriendIDs = []string{}
	}

	u := &model.User{
		ID:              userID,
		Username:        req.Username,
		Avatar:          req.Avatar,
		FriendIDs:       req.FriendIDs,
		PaymentAccounts: req.PaymentAccounts,
	}
	if u.Username == "" {
		u.Username = userID
	}
	if err := s.repo.PutUser(r.Context(), u); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// GetUser handles GET /api/v1/users/{userID}
func (s *Service) GetUser(w http.ResponseWriter, r *http.Request) {
	u, err := s.repo.GetUser(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// PutPortfolio handles PUT /api/v1/users/{userID}/portfolio
func (s *Service) PutPortfolio(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	var req PortfolioRequest
	if err := decode(r, &req); err != nil {
		writeErr(w, err)
		return
	}
	if req.StartingValue.IsNegative() || req.CurrentValue.IsNegative() {
		writeErr(w, fmt.Errorf("%w: portfolio values must not be negative", errInvalidInput))
		return
	}

	p := &model.Portfolio{
		UserID:        userID,
		StartingValue: req.StartingValue,
		CurrentValue:  req.CurrentValue,
		UpdatedAt:     s.now(),
	}
	if err := s.repo.PutPortfolio(r.Context(), p); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// GetLeaderboard handles GET /api/v1/users/{userID}/leaderboard
// Ranks the viewer and their friends, optionally filtered by ?filter=<tag>.
func (s *Service) GetLeaderboard(w http.ResponseWriter, r *http.Request) {
	viewerID := chi.URLParam(r, "userID")
	ctx := r.Context()

	filter, err := leaderboard.ParseFilter(r.URL.Query().Get("filter"))
	if err != nil {
		writeErr(w, err)
		return
	}

	viewer, err := s.repo.GetUser(ctx, viewerID)
	if err != nil {
		writeErr(w, err)
		return
	}

	records, err := s.repo.ListRelationships(ctx, viewerID)
	if err != nil {
		writeErr(w, err)
		return
	}

	ids := append([]string{viewerID}, viewer.FriendIDs...)
	users, err := s.repo.GetUsers(ctx, ids)
	if err != nil {
		writeErr(w, err)
		return
	}
	portfolios, err := s.repo.GetPortfolios(ctx, ids)
	if err != nil {
		writeErr(w, err)
		return
	}

	entries := leaderboard.Aggregate(leaderboard.Input{
		ViewerID:      viewerID,
		FriendIDs:     viewer.FriendIDs,
		Relationships: relationship.ViewOf(records, viewerID),
		Users:         users,
		Portfolios:    portfolios,
		Filter:        filter,
	})
	writeJSON(w, http.StatusOK, entries)
}

// SetRelationship handles PUT /api/v1/users/{userID}/relationships/{otherID}
// Tags otherID from userID's side; the other side gets the dual tag.
func (s *Service) SetRelationship(w http.ResponseWriter, r *http.Request) {
	viewerID := chi.URLParam(r, "userID")
	otherID := chi.URLParam(r, "otherID")

	var req RelationshipRequest
	if err := decode(r, &req); err != nil {
		writeErr(w, err)
		return
	}

	rec, err := s.repo.SetRelationship(r.Context(), viewerID, otherID, req.Status, s.now())
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// ListRelationships handles GET /api/v1/users/{userID}/relationships
func (s *Service) ListRelationships(w http.ResponseWriter, r *http.Request) {
	viewerID := chi.URLParam(r, "userID")

	records, err := s.repo.ListRelationships(r.Context(), viewerID)
	if err != nil {
		writeErr(w, err)
		return
	}

	view := relationship.ViewOf(records, viewerID)
	out := make([]RelationshipView, 0, len(view))
	for id, status := range view {
		out = append(out, RelationshipView{UserID: id, Status: status})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	writeJSON(w, http.StatusOK, out)
}

// Package league provides the HTTP handlers for users, relationships,
// groups, games, payout notifications and settlement runs.
//
// All monetary values use shopspring/decimal; never float64 for money.
package league

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/atmx/league-engine/internal/leaderboard"
	"github.com/atmx/league-engine/internal/notify"
	"github.com/atmx/league-engine/internal/payout"
	"github.com/atmx/league-engine/internal/relationship"
	"github.com/atmx/league-engine/internal/repo"
	"github.com/atmx/league-engine/internal/settlement"
)

var (
	errInvalidBody  = errors.New("league: invalid request body")
	errInvalidInput = errors.New("league: invalid input")
)

// Service handles league operations. State lives in the repository; the
// service itself holds none, so any number of instances can serve the same
// store.
type Service struct {
	repo      *repo.Repository
	scheduler *settlement.Scheduler
	wsHub     *WSHub // optional WebSocket hub for real-time broadcasts
	now       func() time.Time
}

// NewService creates a new league service.
// Pass nil for hub if WebSocket broadcasting is not needed.
func NewService(r *repo.Repository, sched *settlement.Scheduler, hub *WSHub) *Service {
	return &Service{
		repo:      r,
		scheduler: sched,
		wsHub:     hub,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Routes registers the league API on r. The caller picks the prefix.
func (s *Service) Routes(r chi.Router) {
	// Users and portfolios.
	r.Put("/users/{userID}", s.PutUser)
	r.Get("/users/{userID}", s.GetUser)
	r.Put("/users/{userID}/portfolio", s.PutPortfolio)
	r.Get("/users/{userID}/leaderboard", s.GetLeaderboard)

	// Relationships.
	r.Put("/users/{userID}/relationships/{otherID}", s.SetRelationship)
	r.Get("/users/{userID}/relationships", s.ListRelationships)

	// Groups, games and settled periods.
	r.Post("/groups", s.CreateGroup)
	r.Get("/groups/{groupID}", s.GetGroup)
	r.Put("/groups/{groupID}/betting", s.UpdateBetting)
	r.Post("/groups/{groupID}/games", s.CreateGame)
	r.Get("/groups/{groupID}/games", s.ListGames)
	r.Get("/groups/{groupID}/periods", s.ListPeriods)

	// Notifications and history.
	r.Get("/users/{userID}/notifications", s.ListNotifications)
	r.Post("/notifications/{notificationID}/dismiss", s.DismissNotification)
	r.Post("/notifications/{notificationID}/acknowledge", s.AcknowledgePayment)
	r.Get("/users/{userID}/history", s.ListHistory)

	// Settlement.
	r.Post("/settlement/run", s.RunSettlement)
}

// RunSettlement handles POST /api/v1/settlement/run
// Runs one scheduler pass synchronously and returns what it did.
func (s *Service) RunSettlement(w http.ResponseWriter, r *http.Request) {
	if s.scheduler == nil {
		writeError(w, "settlement scheduler not configured", http.StatusServiceUnavailable)
		return
	}

	results, err := s.scheduler.RunOnce(r.Context())
	if err != nil {
		slog.Error("manual settlement pass failed", "err", err)
		writeError(w, "settlement pass failed", http.StatusInternalServerError)
		return
	}
	if results == nil {
		results = []settlement.Result{}
	}

	settled := 0
	for _, res := range results {
		if res.Outcome == settlement.OutcomeSettled {
			settled++
		}
	}
	slog.Info("manual settlement pass", "evaluated", len(results), "settled", settled)

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"settled": settled,
		"results": results,
	})
}

func decode(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errInvalidBody
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeErr maps a domain error onto a status code.
func writeErr(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, errInvalidBody),
		errors.Is(err, errInvalidInput),
		errors.Is(err, relationship.ErrSelfRelationship),
		errors.Is(err, relationship.ErrInvalidStatus),
		errors.Is(err, relationship.ErrNotParticipant),
		errors.Is(err, leaderboard.ErrInvalidFilter),
		errors.Is(err, payout.ErrUnknownStructure),
		errors.Is(err, payout.ErrNegativePot):
		status = http.StatusBadRequest
	case errors.Is(err, notify.ErrNotPayer):
		status = http.StatusForbidden
	case errors.Is(err, repo.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, repo.ErrExists), errors.Is(err, repo.ErrConflict):
		status = http.StatusConflict
	}

	msg := err.Error()
	if status == http.StatusInternalServerError {
		slog.Error("request failed", "err", err)
		msg = "internal error"
	}
	writeError(w, msg, status)
}

package league

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/atmx/league-engine/internal/model"
	"github.com/atmx/league-engine/internal/notify"
	"github.com/atmx/league-engine/internal/repo"
)

// ActorRequest is the JSON body for dismiss and acknowledge.
type ActorRequest struct {
	UserID string `json:"user_id"`
}

// ListNotifications handles GET /api/v1/users/{userID}/notifications
// Returns the notifications involving the user, minus dismissed ones.
func (s *Service) ListNotifications(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	ctx := r.Context()

	all, err := s.repo.ListNotifications(ctx)
	if err != nil {
		writeErr(w, err)
		return
	}
	dismissed, err := s.repo.Dismissed(ctx, userID)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, notify.Visible(userID, all, dismissed))
}

// DismissNotification handles POST /api/v1/notifications/{notificationID}/dismiss
// Hides the notification for one user only; the shared record stays.
func (s *Service) DismissNotification(w http.ResponseWriter, r *http.Request) {
	notificationID := chi.URLParam(r, "notificationID")
	ctx := r.Context()

	var req ActorRequest
	if err := decode(r, &req); err != nil {
		writeErr(w, err)
		return
	}
	if req.UserID == "" {
		writeErr(w, fmt.Errorf("%w: user_id is required", errInvalidInput))
		return
	}

	if _, err := s.findNotification(ctx, notificationID); err != nil {
		writeErr(w, err)
		return
	}
	if err := s.repo.Dismiss(ctx, req.UserID, notificationID); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "dismissed"})
}

// AcknowledgePayment handles POST /api/v1/notifications/{notificationID}/acknowledge
// The owing member marks their payment as made. Once nobody owes anything
// the group's period for the game moves to paid.
func (s *Service) AcknowledgePayment(w http.ResponseWriter, r *http.Request) {
	notificationID := chi.URLParam(r, "notificationID")
	ctx := r.Context()

	var req ActorRequest
	if err := decode(r, &req); err != nil {
		writeErr(w, err)
		return
	}
	if req.UserID == "" {
		writeErr(w, fmt.Errorf("%w: user_id is required", errInvalidInput))
		return
	}

	changed := false
	n, err := s.repo.UpdateNotification(ctx, notificationID, func(n *model.PayoutNotification) (bool, error) {
		var err error
		changed, err = notify.Acknowledge(n, req.UserID)
		return changed, err
	})
	if err != nil {
		writeErr(w, err)
		return
	}

	if len(notify.Outstanding(n)) == 0 {
		if err := s.markPaid(ctx, n); err != nil {
			writeErr(w, err)
			return
		}
	}

	if changed {
		slog.Info("payment acknowledged", "notification", n.ID, "group", n.GroupID, "user", req.UserID)
		if s.wsHub != nil {
			s.wsHub.Broadcast(WSMessage{Type: MsgPaymentAcknowledged, Notification: n})
		}
	}
	writeJSON(w, http.StatusOK, n)
}

// ListHistory handles GET /api/v1/users/{userID}/history
func (s *Service) ListHistory(w http.ResponseWriter, r *http.Request) {
	entries, err := s.repo.ListHistory(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		writeErr(w, err)
		return
	}
	if entries == nil {
		entries = []model.HistoryEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Service) findNotification(ctx context.Context, id string) (*model.PayoutNotification, error) {
	all, err := s.repo.ListNotifications(ctx)
	if err != nil {
		return nil, err
	}
	for i := range all {
		if all[i].ID == id {
			return &all[i], nil
		}
	}
	return nil, fmt.Errorf("%w: notification %s", repo.ErrNotFound, id)
}

// markPaid moves the game's period to paid. Already-paid periods are left
// alone.
func (s *Service) markPaid(ctx context.Context, n *model.PayoutNotification) error {
	_, err := s.repo.UpdateGroup(ctx, n.GroupID, func(g *model.Group) error {
		for i := range g.Periods {
			if g.Periods[i].GameID == n.GameID {
				g.Periods[i].PayoutStatus = model.PayoutPaid
			}
		}
		return nil
	})
	return err
}

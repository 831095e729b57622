package repo

import (
	"context"
	"errors"
	"time"

	"github.com/atmx/league-engine/internal/model"
)

// Claim is a settlement lease on one game.
type Claim struct {
	GameID    string    `json:"game_id"`
	Owner     string    `json:"owner"`
	ExpiresAt time.Time `json:"expires_at"`
}

// IsProcessed reports whether gameID is in the processed set.
func (r *Repository) IsProcessed(ctx context.Context, gameID string) (bool, error) {
	ids, _, err := getJSON[[]string](ctx, r.st, keyProcessed)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	for _, id := range ids {
		if id == gameID {
			return true, nil
		}
	}
	return false, nil
}

// MarkProcessed adds gameID to the processed set. added is false when it
// was already present.
func (r *Repository) MarkProcessed(ctx context.Context, gameID string) (added bool, err error) {
	err = update(ctx, r.st, keyProcessed, func(cur *[]string, _ bool) (bool, error) {
		added = false
		for _, id := range *cur {
			if id == gameID {
				return false, nil
			}
		}
		*cur = append(*cur, gameID)
		added = true
		return true, nil
	})
	return added, err
}

// ClaimSettlement takes the settlement lease on gameID for owner until
// now+lease. It fails (false, nil) while another owner holds an unexpired
// lease. Re-claiming one's own lease extends it.
func (r *Repository) ClaimSettlement(ctx context.Context, gameID, owner string, now time.Time, lease time.Duration) (bool, error) {
	claimed := false
	err := update(ctx, r.st, prefixClaim+esc(gameID), func(cur *Claim, exists bool) (bool, error) {
		claimed = false
		if exists && cur.Owner != owner && now.Before(cur.ExpiresAt) {
			return false, nil
		}
		*cur = Claim{GameID: gameID, Owner: owner, ExpiresAt: now.Add(lease)}
		claimed = true
		return true, nil
	})
	return claimed, err
}

// ReleaseSettlement expires owner's lease on gameID so another settler can
// take it immediately. Leases held by someone else are left alone.
func (r *Repository) ReleaseSettlement(ctx context.Context, gameID, owner string) error {
	return update(ctx, r.st, prefixClaim+esc(gameID), func(cur *Claim, exists bool) (bool, error) {
		if !exists || cur.Owner != owner || cur.ExpiresAt.IsZero() {
			return false, nil
		}
		cur.ExpiresAt = time.Time{}
		return true, nil
	})
}

// AppendHistory adds entries to the global betting history log, skipping
// any whose id is already recorded. It returns how many were added.
func (r *Repository) AppendHistory(ctx context.Context, entries ...model.HistoryEntry) (int, error) {
	added := 0
	err := update(ctx, r.st, keyHistory, func(cur *[]model.HistoryEntry, _ bool) (bool, error) {
		added = 0
		seen := make(map[string]bool, len(*cur))
		for _, e := range *cur {
			seen[e.ID] = true
		}
		for _, e := range entries {
			if seen[e.ID] {
				continue
			}
			seen[e.ID] = true
			*cur = append(*cur, e)
			added++
		}
		return added > 0, nil
	})
	return added, err
}

// ListHistory returns the history entries; an empty userID returns all.
func (r *Repository) ListHistory(ctx context.Context, userID string) ([]model.HistoryEntry, error) {
	all, _, err := getJSON[[]model.HistoryEntry](ctx, r.st, keyHistory)
	if errors.Is(err, ErrNotFound) {
		return []model.HistoryEntry{}, nil
	}
	if err != nil {
		return nil, err
	}
	if userID == "" {
		return all, nil
	}
	out := []model.HistoryEntry{}
	for _, e := range all {
		if e.UserID == userID {
			out = append(out, e)
		}
	}
	return out, nil
}

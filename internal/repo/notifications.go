package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/atmx/league-engine/internal/model"
)

// AppendNotification adds n to the broadcast list unless a notification
// with the same id is already there. appended reports whether it was added.
func (r *Repository) AppendNotification(ctx context.Context, n model.PayoutNotification) (appended bool, err error) {
	err = update(ctx, r.st, keyNotifications, func(cur *[]model.PayoutNotification, _ bool) (bool, error) {
		appended = false
		for _, existing := range *cur {
			if existing.ID == n.ID {
				return false, nil
			}
		}
		*cur = append(*cur, n)
		appended = true
		return true, nil
	})
	return appended, err
}

// ListNotifications returns every payout notification, oldest first.
func (r *Repository) ListNotifications(ctx context.Context) ([]model.PayoutNotification, error) {
	list, _, err := getJSON[[]model.PayoutNotification](ctx, r.st, keyNotifications)
	if errors.Is(err, ErrNotFound) {
		return []model.PayoutNotification{}, nil
	}
	return list, err
}

// UpdateNotification applies fn to the notification with the given id.
func (r *Repository) UpdateNotification(ctx context.Context, id string, fn func(n *model.PayoutNotification) (bool, error)) (*model.PayoutNotification, error) {
	var out model.PayoutNotification
	err := update(ctx, r.st, keyNotifications, func(cur *[]model.PayoutNotification, _ bool) (bool, error) {
		for i := range *cur {
			n := &(*cur)[i]
			if n.ID != id {
				continue
			}
			changed, err := fn(n)
			out = *n
			return changed, err
		}
		return false, fmt.Errorf("%w: notification %s", ErrNotFound, id)
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Dismiss hides a notification for one user. The notification itself is
// untouched.
func (r *Repository) Dismiss(ctx context.Context, userID, notificationID string) error {
	return update(ctx, r.st, prefixDismissed+esc(userID), func(cur *[]string, _ bool) (bool, error) {
		for _, id := range *cur {
			if id == notificationID {
				return false, nil
			}
		}
		*cur = append(*cur, notificationID)
		return true, nil
	})
}

// Dismissed returns the set of notification ids userID has dismissed.
func (r *Repository) Dismissed(ctx context.Context, userID string) (map[string]bool, error) {
	ids, _, err := getJSON[[]string](ctx, r.st, prefixDismissed+esc(userID))
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set, nil
}

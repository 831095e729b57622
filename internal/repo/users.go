package repo

import (
	"context"
	"errors"

	"github.com/atmx/league-engine/internal/model"
)

// PutUser creates or replaces a user profile.
func (r *Repository) PutUser(ctx context.Context, u *model.User) error {
	return putJSON(ctx, r.st, prefixUser+esc(u.ID), u)
}

// GetUser retrieves a user by id.
func (r *Repository) GetUser(ctx context.Context, id string) (*model.User, error) {
	u, _, err := getJSON[model.User](ctx, r.st, prefixUser+esc(id))
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// GetUsers loads the users that exist among ids. Missing users are skipped.
func (r *Repository) GetUsers(ctx context.Context, ids []string) (map[string]model.User, error) {
	users := make(map[string]model.User, len(ids))
	for _, id := range ids {
		u, err := r.GetUser(ctx, id)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		users[id] = *u
	}
	return users, nil
}

// PutPortfolio creates or replaces a user's portfolio snapshot.
func (r *Repository) PutPortfolio(ctx context.Context, p *model.Portfolio) error {
	return putJSON(ctx, r.st, prefixPortfolio+esc(p.UserID), p)
}

// GetPortfolio retrieves a user's portfolio.
func (r *Repository) GetPortfolio(ctx context.Context, userID string) (*model.Portfolio, error) {
	p, _, err := getJSON[model.Portfolio](ctx, r.st, prefixPortfolio+esc(userID))
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// GetPortfolios loads the portfolios that exist among userIDs. Users with
// no portfolio are absent from the result.
func (r *Repository) GetPortfolios(ctx context.Context, userIDs []string) (map[string]model.Portfolio, error) {
	out := make(map[string]model.Portfolio, len(userIDs))
	for _, id := range userIDs {
		p, err := r.GetPortfolio(ctx, id)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out[id] = *p
	}
	return out, nil
}

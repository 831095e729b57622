package repo

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/atmx/league-engine/internal/model"
)

// ErrExists is returned when creating an entity whose id is taken.
var ErrExists = errors.New("repo: already exists")

// CreateGroup persists a new group. Fails with ErrExists if the id is taken.
func (r *Repository) CreateGroup(ctx context.Context, g *model.Group) error {
	return update(ctx, r.st, prefixGroup+esc(g.ID), func(cur *model.Group, exists bool) (bool, error) {
		if exists {
			return false, fmt.Errorf("%w: group %s", ErrExists, g.ID)
		}
		*cur = *g
		return true, nil
	})
}

// GetGroup retrieves a group by id.
func (r *Repository) GetGroup(ctx context.Context, id string) (*model.Group, error) {
	g, _, err := getJSON[model.Group](ctx, r.st, prefixGroup+esc(id))
	if err != nil {
		return nil, err
	}
	return &g, nil
}

// ListGroups returns all groups.
func (r *Repository) ListGroups(ctx context.Context) ([]model.Group, error) {
	ids, err := r.listKeys(ctx, prefixGroup)
	if err != nil {
		return nil, err
	}
	groups := make([]model.Group, 0, len(ids))
	for _, id := range ids {
		g, err := r.GetGroup(ctx, id)
		if errors.Is(err, ErrNotFound) {
			continue // deleted between list and read
		}
		if err != nil {
			return nil, err
		}
		groups = append(groups, *g)
	}
	sort.Slice(groups, func(i, j int) bool {
		if groups[i].CreatedAt.Equal(groups[j].CreatedAt) {
			return groups[i].ID < groups[j].ID
		}
		return groups[i].CreatedAt.Before(groups[j].CreatedAt)
	})
	return groups, nil
}

// UpdateGroup applies fn to the stored group under compare-and-swap.
func (r *Repository) UpdateGroup(ctx context.Context, id string, fn func(g *model.Group) error) (*model.Group, error) {
	var out model.Group
	err := update(ctx, r.st, prefixGroup+esc(id), func(cur *model.Group, exists bool) (bool, error) {
		if !exists {
			return false, fmt.Errorf("%w: group %s", ErrNotFound, id)
		}
		if err := fn(cur); err != nil {
			return false, err
		}
		out = *cur
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// AppendPeriod adds a settled betting period to the group's history. A
// period for the same game is never appended twice; appended reports
// whether this call wrote it.
func (r *Repository) AppendPeriod(ctx context.Context, groupID string, p model.BettingPeriod) (appended bool, err error) {
	err = update(ctx, r.st, prefixGroup+esc(groupID), func(cur *model.Group, exists bool) (bool, error) {
		appended = false
		if !exists {
			return false, fmt.Errorf("%w: group %s", ErrNotFound, groupID)
		}
		for _, existing := range cur.Periods {
			if existing.GameID == p.GameID {
				return false, nil
			}
		}
		cur.Periods = append(cur.Periods, p)
		appended = true
		return true, nil
	})
	return appended, err
}

// AddGame appends a game to the group's game list.
func (r *Repository) AddGame(ctx context.Context, game *model.GroupGame) error {
	return update(ctx, r.st, prefixGames+esc(game.GroupID), func(cur *[]model.GroupGame, _ bool) (bool, error) {
		for _, g := range *cur {
			if g.ID == game.ID {
				return false, fmt.Errorf("%w: game %s", ErrExists, game.ID)
			}
		}
		*cur = append(*cur, *game)
		return true, nil
	})
}

// ListGames returns the group's games in creation order.
func (r *Repository) ListGames(ctx context.Context, groupID string) ([]model.GroupGame, error) {
	games, _, err := getJSON[[]model.GroupGame](ctx, r.st, prefixGames+esc(groupID))
	if errors.Is(err, ErrNotFound) {
		return []model.GroupGame{}, nil
	}
	return games, err
}

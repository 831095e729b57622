package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/atmx/league-engine/internal/model"
	"github.com/atmx/league-engine/internal/relationship"
)

func relationshipKey(a, b string) string {
	lo, hi := relationship.Pair(a, b)
	return prefixRelationship + esc(lo) + ":" + esc(hi)
}

// SetRelationship labels other from viewer's side. Both directions are
// stored in one record, so the dual label is written in the same swap.
func (r *Repository) SetRelationship(ctx context.Context, viewer, other string, status model.RelationshipStatus, now time.Time) (*model.Relationship, error) {
	fresh, err := relationship.New(viewer, other)
	if err != nil {
		return nil, err
	}

	var out model.Relationship
	err = update(ctx, r.st, relationshipKey(viewer, other), func(cur *model.Relationship, exists bool) (bool, error) {
		if !exists {
			*cur = *fresh
		}
		if err := relationship.Set(cur, viewer, status, now); err != nil {
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

// GetRelationship returns the record for a pair, or ErrNotFound.
func (r *Repository) GetRelationship(ctx context.Context, a, b string) (*model.Relationship, error) {
	rel, _, err := getJSON[model.Relationship](ctx, r.st, relationshipKey(a, b))
	if err != nil {
		return nil, err
	}
	return &rel, nil
}

// ListRelationships returns every record involving userID.
func (r *Repository) ListRelationships(ctx context.Context, userID string) ([]model.Relationship, error) {
	keys, err := r.st.Keys(ctx, prefixRelationship)
	if err != nil {
		return nil, err
	}

	me := esc(userID)
	var out []model.Relationship
	for _, k := range keys {
		parts := strings.SplitN(strings.TrimPrefix(k, prefixRelationship), ":", 2)
		if len(parts) != 2 || (parts[0] != me && parts[1] != me) {
			continue
		}
		rel, _, err := getJSON[model.Relationship](ctx, r.st, k)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, rel)
	}
	return out, nil
}

// Package repo maps league entities onto the key-value store. Every entity
// is a JSON whole-value blob under one key; list-valued keys are updated
// with a compare-and-swap retry loop so concurrent appends are never lost.
package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/atmx/league-engine/internal/store"
)

var (
	// ErrNotFound is returned when an entity does not exist.
	ErrNotFound = errors.New("repo: not found")

	// ErrConflict is returned when a compare-and-swap update kept losing
	// to concurrent writers.
	ErrConflict = errors.New("repo: too many concurrent updates")
)

// maxUpdateAttempts bounds the CAS retry loop in update.
const maxUpdateAttempts = 8

// Key layout.
const (
	prefixUser         = "user:"
	prefixPortfolio    = "portfolio:"
	prefixGroup        = "group:"
	prefixGames        = "games:"
	prefixRelationship = "relationship:"
	prefixDismissed    = "dismissed:"
	prefixClaim        = "settlement:claim:"
	keyNotifications   = "notifications"
	keyProcessed       = "settlement:processed"
	keyHistory         = "history"
)

// Repository provides typed access to league entities.
type Repository struct {
	st store.Store
}

// New creates a repository over st.
func New(st store.Store) *Repository {
	return &Repository{st: st}
}

func getJSON[T any](ctx context.Context, st store.Store, key string) (T, int64, error) {
	var v T
	it, err := st.Get(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		return v, 0, ErrNotFound
	}
	if err != nil {
		return v, 0, err
	}
	if err := json.Unmarshal(it.Value, &v); err != nil {
		return v, 0, fmt.Errorf("decode %s: %w", key, err)
	}
	return v, it.Version, nil
}

func putJSON(ctx context.Context, st store.Store, key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return st.Set(ctx, key, data)
}

// update runs a read-modify-write on key. fn receives the current value
// (zero value when absent) and reports whether it changed anything; an
// unchanged value is not written back.
func update[T any](ctx context.Context, st store.Store, key string, fn func(cur *T, exists bool) (bool, error)) error {
	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		cur, version, err := getJSON[T](ctx, st, key)
		exists := true
		if errors.Is(err, ErrNotFound) {
			exists = false
		} else if err != nil {
			return err
		}

		changed, err := fn(&cur, exists)
		if err != nil || !changed {
			return err
		}

		data, err := json.Marshal(cur)
		if err != nil {
			return fmt.Errorf("encode %s: %w", key, err)
		}
		ok, err := st.CompareAndSwap(ctx, key, version, data)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrConflict, key)
}

// listKeys returns the id portion of every key under prefix.
func (r *Repository) listKeys(ctx context.Context, prefix string) ([]string, error) {
	keys, err := r.st.Keys(ctx, prefix)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(keys))
	for _, k := range keys {
		ids = append(ids, unesc(strings.TrimPrefix(k, prefix)))
	}
	return ids, nil
}

// esc makes an id safe to embed in a ':'-separated key.
func esc(id string) string { return url.QueryEscape(id) }

func unesc(s string) string {
	id, err := url.QueryUnescape(s)
	if err != nil {
		return s
	}
	return id
}

// Package selection keeps the set of ingredient instances the user wants to
// buy, persisted as one JSON document.
package selection

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"slices"
	"sync"

	"despensa/internal/cache"
	"despensa/internal/ingredients"
	"despensa/internal/recipes"

	"github.com/samber/lo"
)

// StorageKey holds a JSON array of selected ingredient instance ids.
const StorageKey = "selected_ingredients"

// Store is the set of selected ingredient instance ids. Every mutation swaps
// the set and rewrites the whole document under the lock. Persisting is best
// effort: failures are logged and never returned.
type Store struct {
	mu    sync.RWMutex
	ids   map[string]struct{}
	cache cache.Cache
}

var _ ingredients.Selection = (*Store)(nil)

// Load reads the persisted selection once. A missing or unreadable document
// starts an empty store.
func Load(ctx context.Context, c cache.Cache) *Store {
	s := &Store{ids: map[string]struct{}{}, cache: c}

	rc, err := c.Get(ctx, StorageKey)
	if err != nil {
		if !errors.Is(err, cache.ErrNotFound) {
			slog.WarnContext(ctx, "failed to read selection, starting empty", "error", err)
		}
		return s
	}
	defer func() {
		if err := rc.Close(); err != nil {
			slog.ErrorContext(ctx, "failed to close selection reader", "error", err)
		}
	}()

	var ids []string
	if err := json.NewDecoder(rc).Decode(&ids); err != nil {
		slog.WarnContext(ctx, "corrupt selection document, starting empty", "error", err)
		return s
	}
	for _, id := range ids {
		s.ids[id] = struct{}{}
	}
	return s
}

// Initialize selects every ingredient in rs, but only when nothing is
// selected yet. Existing selections survive recipe set changes, including
// ids that no longer match any recipe.
func (s *Store) Initialize(ctx context.Context, rs []recipes.Recipe) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.ids) > 0 {
		return
	}
	next := make(map[string]struct{})
	for _, id := range ingredients.AllIDs(rs) {
		next[id] = struct{}{}
	}
	s.replace(ctx, next)
}

// ToggleByName flips a whole group: when every instance named name is
// selected they are all cleared, otherwise they are all selected. The group
// is never left half selected.
func (s *Store) ToggleByName(ctx context.Context, rs []recipes.Recipe, name string) {
	ids := ingredients.IDsNamed(rs, name)
	if len(ids) == 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.copyLocked()
	if ingredients.AllSelected(ids, lockedView{s}) {
		for _, id := range ids {
			delete(next, id)
		}
	} else {
		for _, id := range ids {
			next[id] = struct{}{}
		}
	}
	s.replace(ctx, next)
}

// ToggleByID flips a single instance.
func (s *Store) ToggleByID(ctx context.Context, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.copyLocked()
	if _, ok := next[id]; ok {
		delete(next, id)
	} else {
		next[id] = struct{}{}
	}
	s.replace(ctx, next)
}

func (s *Store) IsSelected(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.ids[id]
	return ok
}

// IDs returns a sorted snapshot of the selected ids.
func (s *Store) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedKeys(s.ids)
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.ids)
}

// SelectedOf returns the ids of r's ingredients that are currently selected,
// in recipe order.
func (s *Store) SelectedOf(r recipes.Recipe) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return lo.Filter(r.IngredientIDs(), func(id string, _ int) bool {
		_, ok := s.ids[id]
		return ok
	})
}

func (s *Store) copyLocked() map[string]struct{} {
	next := make(map[string]struct{}, len(s.ids))
	for id := range s.ids {
		next[id] = struct{}{}
	}
	return next
}

// replace must be called with the write lock held.
func (s *Store) replace(ctx context.Context, next map[string]struct{}) {
	s.ids = next
	body, err := json.Marshal(sortedKeys(next))
	if err != nil {
		slog.ErrorContext(ctx, "failed to encode selection", "error", err)
		return
	}
	if err := s.cache.Put(ctx, StorageKey, string(body), cache.Unconditional()); err != nil {
		slog.WarnContext(ctx, "failed to persist selection", "count", len(next), "error", err)
	}
}

// lockedView reads the set while the caller already holds the lock.
type lockedView struct{ s *Store }

func (v lockedView) IsSelected(id string) bool {
	_, ok := v.s.ids[id]
	return ok
}

func sortedKeys(m map[string]struct{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

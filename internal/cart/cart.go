// Package cart holds the recipes saved for a shopping list, each with its own
// serving count and ingredient selection snapshot.
package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"despensa/internal/cache"
	"despensa/internal/ingredients"
	"despensa/internal/pricing"
	"despensa/internal/recipes"

	"github.com/samber/lo"
)

// StorageKey holds the cart as a JSON array of entries.
const StorageKey = "cart"

var ErrInvalidServings = errors.New("servings must be at least 1")

type Entry struct {
	Recipe              recipes.Recipe `json:"recipe"`
	Servings            int            `json:"servings"`
	SelectedIngredients []string       `json:"selectedIngredients"`
}

// selectionStore is the part of the selection store the cart reads.
type selectionStore interface {
	ingredients.Selection
	SelectedOf(r recipes.Recipe) []string
}

// Cart is an ordered list of entries keyed by recipe id. Every mutation
// rewrites the whole document; there is no incremental log.
type Cart struct {
	mu        sync.RWMutex
	entries   []Entry
	cache     cache.Cache
	selection selectionStore
}

// Load reads the persisted cart once. A missing or unreadable document starts
// an empty cart.
func Load(ctx context.Context, c cache.Cache, sel selectionStore) *Cart {
	ct := &Cart{cache: c, selection: sel}

	rc, err := c.Get(ctx, StorageKey)
	if err != nil {
		if !errors.Is(err, cache.ErrNotFound) {
			slog.WarnContext(ctx, "failed to read cart, starting empty", "error", err)
		}
		return ct
	}
	defer func() {
		if err := rc.Close(); err != nil {
			slog.ErrorContext(ctx, "failed to close cart reader", "error", err)
		}
	}()

	if err := json.NewDecoder(rc).Decode(&ct.entries); err != nil {
		slog.WarnContext(ctx, "corrupt cart document, starting empty", "error", err)
		ct.entries = nil
	}
	return ct
}

// Add upserts recipe by id: an existing entry is replaced in place, otherwise
// the entry is appended. A nil selectedIDs snapshots the recipe's ingredients
// that are selected right now.
func (c *Cart) Add(ctx context.Context, recipe recipes.Recipe, servings int, selectedIDs []string) error {
	if servings < 1 {
		return fmt.Errorf("add %s: %w", recipe.ID, ErrInvalidServings)
	}
	if selectedIDs == nil {
		selectedIDs = c.selection.SelectedOf(recipe)
	}
	entry := Entry{
		Recipe:              recipe,
		Servings:            servings,
		SelectedIngredients: slices.Clone(selectedIDs),
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	next := slices.Clone(c.entries)
	if i := slices.IndexFunc(next, func(e Entry) bool { return e.Recipe.ID == recipe.ID }); i >= 0 {
		next[i] = entry
	} else {
		next = append(next, entry)
	}
	c.replace(ctx, next)
	slog.InfoContext(ctx, "added recipe to cart", "recipe", recipe.ID, "servings", servings, "selected", len(entry.SelectedIngredients))
	return nil
}

// Remove drops the entry for recipeID. Selection state of its ingredients is
// left alone so re-adding the recipe restores it.
func (c *Cart) Remove(ctx context.Context, recipeID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	next := lo.Reject(c.entries, func(e Entry, _ int) bool { return e.Recipe.ID == recipeID })
	if len(next) == len(c.entries) {
		return
	}
	c.replace(ctx, next)
	slog.InfoContext(ctx, "removed recipe from cart", "recipe", recipeID)
}

func (c *Cart) Entries() []Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.entries)
}

func (c *Cart) Recipes() []recipes.Recipe {
	return lo.Map(c.Entries(), func(e Entry, _ int) recipes.Recipe { return e.Recipe })
}

func (c *Cart) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// TotalIngredients counts the distinct ingredient names across the cart that
// are selected, not the raw instance count.
func (c *Cart) TotalIngredients() int {
	return len(ingredients.SelectedOnly(ingredients.Group(c.Recipes(), c.selection)))
}

// Item is one shopping list line: a selected group with each recipe scaled
// to its cart servings, priced at one supermarket.
type Item struct {
	ingredients.Grouped
	Packs int     `json:"packs"`
	Price float64 `json:"price"`
}

type ShoppingList struct {
	Supermarket string  `json:"supermarket"`
	Items       []Item  `json:"items"`
	Total       float64 `json:"total"`
}

// ShoppingList groups the selected ingredients of the cart and prices them at
// supermarket.
func (c *Cart) ShoppingList(supermarket string) (*ShoppingList, error) {
	groups := c.selectedGroups()
	q, err := pricing.QuoteFor(supermarket, lines(groups))
	if err != nil {
		return nil, err
	}
	list := &ShoppingList{Supermarket: q.Supermarket, Total: q.Total}
	for i, g := range groups {
		list.Items = append(list.Items, Item{Grouped: g, Packs: q.Lines[i].Packs, Price: q.Lines[i].Price})
	}
	return list, nil
}

// EstimatePrice is the simulated total of the cart at supermarket.
func (c *Cart) EstimatePrice(supermarket string) (float64, error) {
	q, err := pricing.QuoteFor(supermarket, lines(c.selectedGroups()))
	if err != nil {
		return 0, err
	}
	return q.Total, nil
}

// Compare prices the cart at every supermarket, cheapest first.
func (c *Cart) Compare() []pricing.Quote {
	return pricing.Compare(lines(c.selectedGroups()))
}

func (c *Cart) selectedGroups() []ingredients.Grouped {
	scaled := lo.Map(c.Entries(), func(e Entry, _ int) recipes.Recipe {
		return recipes.Scale(e.Recipe, e.Servings)
	})
	return ingredients.SelectedOnly(ingredients.Group(scaled, c.selection))
}

func lines(groups []ingredients.Grouped) []pricing.Line {
	return lo.Map(groups, func(g ingredients.Grouped, _ int) pricing.Line {
		return pricing.Line{Name: g.Name, Amount: g.TotalAmount, Unit: g.Unit}
	})
}

// replace must be called with the write lock held.
func (c *Cart) replace(ctx context.Context, next []Entry) {
	c.entries = next
	if c.entries == nil {
		c.entries = []Entry{}
	}
	body, err := json.Marshal(c.entries)
	if err != nil {
		slog.ErrorContext(ctx, "failed to encode cart", "error", err)
		return
	}
	if err := c.cache.Put(ctx, StorageKey, string(body), cache.Unconditional()); err != nil {
		slog.WarnContext(ctx, "failed to persist cart", "entries", len(c.entries), "error", err)
	}
}

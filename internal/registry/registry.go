// Package registry wires the stores around the current working recipe set. A
// Registry is built once at startup and shared by the CLI and the HTTP API.
package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"slices"
	"sync"

	"despensa/internal/cache"
	"despensa/internal/cart"
	"despensa/internal/ingredients"
	"despensa/internal/plan"
	"despensa/internal/recipes"
	"despensa/internal/selection"

	"github.com/samber/lo"
)

// StorageKey holds the working recipe set and the plan it came from.
const StorageKey = "plan"

// recipePrefix keys archived recipes by content hash. They are written once.
const recipePrefix = "recipe/"

// hashPattern matches the url-safe base64 of a 128 bit hash.
var hashPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{22}==$`)

var ErrNoBuilder = errors.New("no plan builder configured")

type planBuilder interface {
	Build(ctx context.Context, req plan.Request) (*plan.Plan, error)
}

type snapshot struct {
	Recipes []recipes.Recipe `json:"recipes"`
	Plan    *plan.Plan       `json:"plan,omitempty"`
}

type Registry struct {
	cache     cache.Cache
	builder   planBuilder
	selection *selection.Store
	cart      *cart.Cart

	// persistMu orders working set writes so the stored document always
	// matches the last swap.
	persistMu sync.Mutex
	mu        sync.RWMutex
	snapshot  snapshot
}

// New loads the persisted selection, cart and working set from c. builder may
// be nil when plans are never built, in which case Plan fails.
func New(ctx context.Context, c cache.Cache, builder planBuilder) *Registry {
	sel := selection.Load(ctx, c)
	reg := &Registry{
		cache:     c,
		builder:   builder,
		selection: sel,
		cart:      cart.Load(ctx, c, sel),
	}
	reg.snapshot = loadSnapshot(ctx, c)
	return reg
}

func loadSnapshot(ctx context.Context, c cache.Cache) snapshot {
	rc, err := c.Get(ctx, StorageKey)
	if err != nil {
		if !errors.Is(err, cache.ErrNotFound) {
			slog.WarnContext(ctx, "failed to read working set, starting empty", "error", err)
		}
		return snapshot{}
	}
	defer func() {
		if err := rc.Close(); err != nil {
			slog.ErrorContext(ctx, "failed to close working set reader", "error", err)
		}
	}()

	var snap snapshot
	if err := json.NewDecoder(rc).Decode(&snap); err != nil {
		slog.WarnContext(ctx, "corrupt working set document, starting empty", "error", err)
		return snapshot{}
	}
	return snap
}

// SetRecipes replaces the working set. Selection is seeded only when nothing
// is selected yet.
func (r *Registry) SetRecipes(ctx context.Context, rs []recipes.Recipe) {
	r.setSnapshot(ctx, snapshot{Recipes: slices.Clone(rs)})
}

// Plan builds a plan for req and makes its recipes the working set.
func (r *Registry) Plan(ctx context.Context, req plan.Request) (*plan.Plan, error) {
	if r.builder == nil {
		return nil, ErrNoBuilder
	}
	p, err := r.builder.Build(ctx, req)
	if err != nil {
		return nil, err
	}
	r.setSnapshot(ctx, snapshot{Recipes: p.Recipes(), Plan: p})
	slog.InfoContext(ctx, "built plan", "slots", len(p.Slots), "people", p.Request.People)
	return p, nil
}

func (r *Registry) setSnapshot(ctx context.Context, snap snapshot) {
	if snap.Recipes == nil {
		snap.Recipes = []recipes.Recipe{}
	}
	r.persistMu.Lock()
	r.mu.Lock()
	r.snapshot = snap
	body, err := json.Marshal(snap)
	r.mu.Unlock()

	if err != nil {
		slog.ErrorContext(ctx, "failed to encode working set", "error", err)
	} else if err := r.cache.Put(ctx, StorageKey, string(body), cache.Unconditional()); err != nil {
		slog.ErrorContext(ctx, "failed to persist working set", "error", err)
	}
	r.persistMu.Unlock()

	r.selection.Initialize(ctx, snap.Recipes)
	r.archive(ctx, snap.Recipes)
}

// archive keeps every recipe of the working set retrievable by hash after
// the set moves on.
func (r *Registry) archive(ctx context.Context, rs []recipes.Recipe) {
	for _, rc := range lo.UniqBy(rs, func(rc recipes.Recipe) string { return rc.ComputeHash() }) {
		body, err := json.Marshal(rc)
		if err != nil {
			slog.ErrorContext(ctx, "failed to encode recipe", "recipe", rc.ID, "error", err)
			continue
		}
		err = r.cache.Put(ctx, recipePrefix+rc.ComputeHash(), string(body), cache.IfNoneMatch())
		if err != nil && !errors.Is(err, cache.ErrAlreadyExists) {
			slog.WarnContext(ctx, "failed to archive recipe", "recipe", rc.ID, "error", err)
		}
	}
}

// Archived loads a recipe previously part of a working set by its hash. A
// string that is not a recipe hash is reported as not found.
func (r *Registry) Archived(ctx context.Context, hash string) (recipes.Recipe, error) {
	if !hashPattern.MatchString(hash) {
		return recipes.Recipe{}, fmt.Errorf("recipe %q: %w", hash, cache.ErrNotFound)
	}
	rc, err := r.cache.Get(ctx, recipePrefix+hash)
	if err != nil {
		return recipes.Recipe{}, err
	}
	defer func() {
		if err := rc.Close(); err != nil {
			slog.ErrorContext(ctx, "failed to close recipe reader", "error", err)
		}
	}()
	var out recipes.Recipe
	if err := json.NewDecoder(rc).Decode(&out); err != nil {
		return recipes.Recipe{}, fmt.Errorf("decode recipe %s: %w", hash, err)
	}
	return out, nil
}

// Loading reports whether the plan builder is waiting on the recipe bank.
func (r *Registry) Loading() bool {
	l, ok := r.builder.(interface{ Loading() bool })
	return ok && l.Loading()
}

// Recipes returns the current working set.
func (r *Registry) Recipes() []recipes.Recipe {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.snapshot.Recipes)
}

// CurrentPlan returns the plan behind the working set, or nil when the set
// was assigned directly.
func (r *Registry) CurrentPlan() *plan.Plan {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snapshot.Plan
}

// Recipe finds a recipe of the working set by id.
func (r *Registry) Recipe(id string) (recipes.Recipe, bool) {
	return findRecipe(r.Recipes(), id)
}

// Grouped is the ingredient list of the working set.
func (r *Registry) Grouped() []ingredients.Grouped {
	return ingredients.Group(r.Recipes(), r.selection)
}

func (r *Registry) ToggleByName(ctx context.Context, name string) {
	r.selection.ToggleByName(ctx, r.Recipes(), name)
}

func (r *Registry) ToggleByID(ctx context.Context, id string) {
	r.selection.ToggleByID(ctx, id)
}

func (r *Registry) Selection() *selection.Store {
	return r.selection
}

func (r *Registry) Cart() *cart.Cart {
	return r.cart
}

// Store is the document store every piece of state is persisted to.
func (r *Registry) Store() cache.Cache {
	return r.cache
}

func findRecipe(rs []recipes.Recipe, id string) (recipes.Recipe, bool) {
	i := slices.IndexFunc(rs, func(rc recipes.Recipe) bool { return rc.ID == id })
	if i < 0 {
		return recipes.Recipe{}, false
	}
	return rs[i], true
}

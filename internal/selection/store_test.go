package selection

import (
	"context"
	"errors"
	"io"
	"testing"

	"despensa/internal/cache"
	"despensa/internal/ingredients"
	"despensa/internal/recipes"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tomatoRecipes() []recipes.Recipe {
	return []recipes.Recipe{
		{ID: "A", Title: "RecipeA", Ingredients: []recipes.Ingredient{{ID: "a1", Name: "Tomate", Amount: "2", Unit: "ud"}}},
		{ID: "B", Title: "RecipeB", Ingredients: []recipes.Ingredient{{ID: "b1", Name: "Tomate", Amount: "3", Unit: "ud"}}},
	}
}

func TestInitialize_SeedsEmptyStore(t *testing.T) {
	ctx := t.Context()
	s := Load(ctx, cache.NewInMemoryCache())
	rs := tomatoRecipes()

	s.Initialize(ctx, rs)

	assert.Equal(t, []string{"a1", "b1"}, s.IDs())
	assert.True(t, ingredients.Group(rs, s)[0].IsSelected)
}

func TestInitialize_IsIdempotent(t *testing.T) {
	ctx := t.Context()
	c := cache.NewInMemoryCache()
	s := Load(ctx, c)
	rs := tomatoRecipes()

	s.Initialize(ctx, rs)
	first := s.IDs()
	s.Initialize(ctx, rs)

	assert.Equal(t, first, s.IDs())
	assert.Equal(t, 1, c.Writes(StorageKey), "second call should not rewrite")
}

func TestInitialize_KeepsExistingSelectionAcrossRecipeChanges(t *testing.T) {
	ctx := t.Context()
	s := Load(ctx, cache.NewInMemoryCache())
	s.Initialize(ctx, tomatoRecipes())
	s.ToggleByID(ctx, "a1")

	other := []recipes.Recipe{{ID: "C", Title: "C", Ingredients: []recipes.Ingredient{{ID: "c1", Name: "Ajo"}}}}
	s.Initialize(ctx, other)

	assert.Equal(t, []string{"b1"}, s.IDs(), "stale ids stay and new recipes are not seeded")
	assert.False(t, s.IsSelected("c1"))
}

func TestToggleByName_AllOrNothing(t *testing.T) {
	ctx := t.Context()
	s := Load(ctx, cache.NewInMemoryCache())
	rs := tomatoRecipes()
	s.Initialize(ctx, rs)

	s.ToggleByName(ctx, rs, "Tomate")
	assert.Empty(t, s.IDs())

	s.ToggleByName(ctx, rs, "Tomate")
	assert.Equal(t, []string{"a1", "b1"}, s.IDs())
}

func TestToggleByName_MixedGroupBecomesFullySelected(t *testing.T) {
	ctx := t.Context()
	s := Load(ctx, cache.NewInMemoryCache())
	rs := tomatoRecipes()
	s.Initialize(ctx, rs)
	s.ToggleByID(ctx, "b1")
	require.False(t, ingredients.Group(rs, s)[0].IsSelected)

	s.ToggleByName(ctx, rs, "Tomate")

	assert.True(t, s.IsSelected("a1"))
	assert.True(t, s.IsSelected("b1"))
	assert.True(t, ingredients.Group(rs, s)[0].IsSelected)
}

func TestToggleByName_NeverLeavesMixedState(t *testing.T) {
	ctx := t.Context()
	rs := tomatoRecipes()
	starts := [][]string{nil, {"a1"}, {"b1"}, {"a1", "b1"}}
	for _, start := range starts {
		s := Load(ctx, cache.NewInMemoryCache())
		for _, id := range start {
			s.ToggleByID(ctx, id)
		}
		s.ToggleByName(ctx, rs, "Tomate")
		assert.Equal(t, s.IsSelected("a1"), s.IsSelected("b1"), "start %v", start)
	}
}

func TestToggleByName_UnknownNameIsNoop(t *testing.T) {
	ctx := t.Context()
	c := cache.NewInMemoryCache()
	s := Load(ctx, c)
	s.ToggleByName(ctx, tomatoRecipes(), "Pepino")
	assert.Zero(t, c.Writes(StorageKey))
}

func TestToggleByID(t *testing.T) {
	ctx := t.Context()
	s := Load(ctx, cache.NewInMemoryCache())
	s.ToggleByID(ctx, "x")
	assert.True(t, s.IsSelected("x"))
	s.ToggleByID(ctx, "x")
	assert.False(t, s.IsSelected("x"))
	assert.Zero(t, s.Len())
}

func TestPersistRoundTrip(t *testing.T) {
	ctx := t.Context()
	c := cache.NewFileCache(t.TempDir())
	s := Load(ctx, c)
	s.Initialize(ctx, tomatoRecipes())
	s.ToggleByID(ctx, "z9")

	reloaded := Load(ctx, c)
	assert.Equal(t, s.IDs(), reloaded.IDs())
}

func TestLoad_CorruptDocumentStartsEmpty(t *testing.T) {
	ctx := t.Context()
	c := cache.NewInMemoryCache()
	require.NoError(t, c.Put(ctx, StorageKey, "{not json", cache.Unconditional()))

	s := Load(ctx, c)
	assert.Zero(t, s.Len())
}

func TestSelectedOf(t *testing.T) {
	ctx := t.Context()
	s := Load(ctx, cache.NewInMemoryCache())
	r := recipes.Recipe{ID: "A", Ingredients: []recipes.Ingredient{{ID: "a1"}, {ID: "a2"}, {ID: "a3"}}}
	s.ToggleByID(ctx, "a3")
	s.ToggleByID(ctx, "a1")
	assert.Equal(t, []string{"a1", "a3"}, s.SelectedOf(r))
}

type brokenCache struct{}

func (brokenCache) Get(context.Context, string) (io.ReadCloser, error) {
	return nil, errors.New("disk on fire")
}
func (brokenCache) Exists(context.Context, string) (bool, error) { return false, nil }
func (brokenCache) Put(context.Context, string, string, cache.PutOptions) error {
	return errors.New("disk on fire")
}

func TestStorageFailuresAreSwallowed(t *testing.T) {
	ctx := t.Context()
	s := Load(ctx, brokenCache{})
	rs := tomatoRecipes()

	s.Initialize(ctx, rs)
	s.ToggleByName(ctx, rs, "Tomate")
	s.ToggleByID(ctx, "a1")

	assert.Equal(t, []string{"a1"}, s.IDs(), "in-memory state still updates")
}

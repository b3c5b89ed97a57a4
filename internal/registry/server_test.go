package registry

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"despensa/internal/cache"
	"despensa/internal/plan"
	"despensa/internal/pricing"
)

func newTestServer(t *testing.T) (*Registry, http.Handler) {
	t.Helper()
	reg := New(t.Context(), cache.NewInMemoryCache(), plan.NewBuilder(nil))
	reg.SetRecipes(t.Context(), tomatoRecipes())
	s := NewHandler(reg)
	s.now = func() time.Time { return time.Date(2026, time.October, 19, 9, 0, 0, 0, time.UTC) }
	mux := http.NewServeMux()
	s.Register(mux)
	return reg, mux
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rr.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v (body %q)", err, rr.Body.String())
	}
	return v
}

func TestIngredientsEndpoint(t *testing.T) {
	_, h := newTestServer(t)

	rr := do(t, h, http.MethodGet, "/ingredients", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	resp := decode[ingredientsResponse](t, rr)
	if len(resp.Ingredients) != 2 || resp.Selected != 2 {
		t.Fatalf("unexpected response %+v", resp)
	}
	if resp.Ingredients[0].Display != "5 ud" {
		t.Fatalf("expected display '5 ud', got %q", resp.Ingredients[0].Display)
	}
}

func TestToggleEndpoints(t *testing.T) {
	reg, h := newTestServer(t)

	rr := do(t, h, http.MethodPost, "/ingredients/toggle", `{"name": "Tomate"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if resp := decode[ingredientsResponse](t, rr); resp.Selected != 1 {
		t.Fatalf("expected one selected group after toggle, got %d", resp.Selected)
	}
	if reg.Selection().IsSelected("a1") || reg.Selection().IsSelected("b1") {
		t.Fatalf("tomato instances should be cleared")
	}

	rr = do(t, h, http.MethodPost, "/ingredients/a1/toggle", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if resp := decode[map[string]any](t, rr); resp["selected"] != true {
		t.Fatalf("expected a1 selected, got %v", resp)
	}

	if rr := do(t, h, http.MethodPost, "/ingredients/toggle", `{"name": ""}`); rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty name, got %d", rr.Code)
	}
	if rr := do(t, h, http.MethodPost, "/ingredients/toggle", `{"nombre": "Tomate"}`); rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown field, got %d", rr.Code)
	}
}

func TestCartEndpoints(t *testing.T) {
	reg, h := newTestServer(t)

	rr := do(t, h, http.MethodPost, "/cart", `{"recipe_id": "RecipeB", "servings": 4}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	resp := decode[cartResponse](t, rr)
	if len(resp.Entries) != 1 || resp.TotalIngredients != 2 {
		t.Fatalf("unexpected cart %+v", resp)
	}
	if got := resp.Entries[0].SelectedIngredients; len(got) != 2 {
		t.Fatalf("expected the current selection to be snapshotted, got %v", got)
	}

	if rr := do(t, h, http.MethodPost, "/cart", `{"recipe_id": "RecipeA", "servings": 0}`); rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for zero servings, got %d", rr.Code)
	}
	if rr := do(t, h, http.MethodPost, "/cart", `{"recipe_id": "missing", "servings": 1}`); rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown recipe, got %d", rr.Code)
	}

	rr = do(t, h, http.MethodGet, "/cart/prices?supermarket=lidl", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	prices := decode[pricesResponse](t, rr)
	if len(prices.Quotes) != len(pricing.Supermarkets()) {
		t.Fatalf("expected a quote per supermarket, got %d", len(prices.Quotes))
	}
	if prices.List == nil || prices.List.Supermarket != "Lidl" || len(prices.List.Items) != 2 {
		t.Fatalf("unexpected shopping list %+v", prices.List)
	}
	if rr := do(t, h, http.MethodGet, "/cart/prices?supermarket=Eroski", ""); rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown supermarket, got %d", rr.Code)
	}

	rr = do(t, h, http.MethodDelete, "/cart/RecipeB", "")
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rr.Code)
	}
	if reg.Cart().Len() != 0 {
		t.Fatalf("expected empty cart")
	}
	if !reg.Selection().IsSelected("b1") || !reg.Selection().IsSelected("b2") {
		t.Fatalf("removing from the cart must not touch the selection")
	}
}

func TestPlanEndpoint(t *testing.T) {
	reg, h := newTestServer(t)

	if rr := do(t, h, http.MethodGet, "/plan", ""); rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 before any plan, got %d", rr.Code)
	}

	rr := do(t, h, http.MethodPost, "/plan", `{"days": 2, "meals": ["cena"], "people": 3, "supermarket": "Dia"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	p := decode[plan.Plan](t, rr)
	if len(p.Slots) != 2 || p.Slots[0].Date != "2026-10-19" || p.Slots[1].Date != "2026-10-20" {
		t.Fatalf("unexpected slots %+v", p.Slots)
	}
	if p.Slots[0].Recipe.Servings != 3 {
		t.Fatalf("expected recipes scaled to 3 people, got %d", p.Slots[0].Recipe.Servings)
	}
	if !p.Fallback || p.SourceError != "" {
		t.Fatalf("expected bundled recipes without a source error, got fallback=%v error=%q", p.Fallback, p.SourceError)
	}
	if len(reg.Recipes()) != 2 {
		t.Fatalf("plan should become the working set")
	}

	rr = do(t, h, http.MethodGet, "/plan", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 for current plan, got %d", rr.Code)
	}
	current := decode[map[string]any](t, rr)
	if current["fallback"] != true || current["loading"] != false {
		t.Fatalf("expected fallback and loading flags, got %v", current)
	}

	cases := map[string]struct {
		body string
		code int
	}{
		"no dates":     {`{"meals": ["cena"]}`, http.StatusBadRequest},
		"bad start":    {`{"start": "mañana", "days": 1}`, http.StatusBadRequest},
		"bad date":     {`{"dates": ["19-10-2026"]}`, http.StatusBadRequest},
		"bad store":    {`{"days": 1, "supermarket": "Eroski"}`, http.StatusBadRequest},
		"restrictions": {`{"days": 1, "restrictions": ["carnivoro"]}`, http.StatusUnprocessableEntity},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			if rr := do(t, h, http.MethodPost, "/plan", tc.body); rr.Code != tc.code {
				t.Fatalf("expected %d, got %d: %s", tc.code, rr.Code, rr.Body.String())
			}
		})
	}
}

func TestRecipeEndpoints(t *testing.T) {
	_, h := newTestServer(t)

	rr := do(t, h, http.MethodGet, "/recipes", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	list := decode[[]recipeView](t, rr)
	if len(list) != 2 || list[0].Hash == "" || list[0].ID != "RecipeA" {
		t.Fatalf("unexpected recipes %+v", list)
	}

	rr = do(t, h, http.MethodGet, "/recipe/"+list[1].Hash, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 for archived recipe, got %d", rr.Code)
	}
	if got := decode[map[string]any](t, rr); got["title"] != "RecipeB" {
		t.Fatalf("unexpected archived recipe %v", got)
	}

	if rr := do(t, h, http.MethodGet, "/recipe/missing", ""); rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}

func TestArchivedEndpointStaysInsideCache(t *testing.T) {
	root := t.TempDir()
	secret := `{"id":"leak","title":"outside the cache"}`
	if err := os.WriteFile(filepath.Join(root, "secret.json"), []byte(secret), 0o644); err != nil {
		t.Fatal(err)
	}
	reg := New(t.Context(), cache.NewFileCache(filepath.Join(root, "data")), nil)
	reg.SetRecipes(t.Context(), tomatoRecipes())
	mux := http.NewServeMux()
	NewHandler(reg).Register(mux)

	for _, target := range []string{
		"/recipe/..%2F..%2Fsecret.json",
		"/recipe/..%2Fsecret.json",
		"/recipe/..%2Fplan",
	} {
		rr := do(t, mux, http.MethodGet, target, "")
		if rr.Code != http.StatusNotFound {
			t.Fatalf("%s: expected 404, got %d: %s", target, rr.Code, rr.Body.String())
		}
	}

	hash := tomatoRecipes()[0].ComputeHash()
	if rr := do(t, mux, http.MethodGet, "/recipe/"+hash, ""); rr.Code != http.StatusOK {
		t.Fatalf("expected archived recipe from the file cache, got %d", rr.Code)
	}
}

func TestCurrentPlanReportsLoading(t *testing.T) {
	reg := New(t.Context(), cache.NewInMemoryCache(), &fakeBuilder{loading: true})
	mux := http.NewServeMux()
	NewHandler(reg).Register(mux)

	rr := do(t, mux, http.MethodGet, "/plan", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 while loading, got %d", rr.Code)
	}
	if got := decode[map[string]any](t, rr); got["loading"] != true {
		t.Fatalf("expected loading flag, got %v", got)
	}
}

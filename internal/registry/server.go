package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"despensa/internal/cache"
	"despensa/internal/cart"
	"despensa/internal/ingredients"
	"despensa/internal/plan"
	"despensa/internal/pricing"
	"despensa/internal/recipes"

	"github.com/samber/lo"
)

const maxBodyBytes = 1 << 20

type server struct {
	reg *Registry
	now func() time.Time
}

// NewHandler serves the ingredient list, the cart and plan building as JSON.
func NewHandler(reg *Registry) *server {
	return &server{reg: reg, now: time.Now}
}

func (s *server) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /recipes", s.handleRecipes)
	mux.HandleFunc("GET /recipe/{hash}", s.handleArchived)
	mux.HandleFunc("GET /ingredients", s.handleIngredients)
	mux.HandleFunc("POST /ingredients/toggle", s.handleToggleName)
	mux.HandleFunc("POST /ingredients/{id}/toggle", s.handleToggleID)
	mux.HandleFunc("GET /cart", s.handleCart)
	mux.HandleFunc("POST /cart", s.handleAddToCart)
	mux.HandleFunc("DELETE /cart/{id}", s.handleRemoveFromCart)
	mux.HandleFunc("GET /cart/prices", s.handlePrices)
	mux.HandleFunc("GET /plan", s.handleCurrentPlan)
	mux.HandleFunc("POST /plan", s.handlePlan)
}

type groupView struct {
	ingredients.Grouped
	Display string `json:"display"`
}

type ingredientsResponse struct {
	Ingredients []groupView `json:"ingredients"`
	Selected    int         `json:"selected"`
}

func (s *server) ingredientsResponse() ingredientsResponse {
	groups := s.reg.Grouped()
	return ingredientsResponse{
		Ingredients: lo.Map(groups, func(g ingredients.Grouped, _ int) groupView {
			return groupView{Grouped: g, Display: g.String()}
		}),
		Selected: len(ingredients.SelectedOnly(groups)),
	}
}

type recipeView struct {
	Hash string `json:"hash"`
	recipes.Recipe
}

func (s *server) handleRecipes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, lo.Map(s.reg.Recipes(), func(rc recipes.Recipe, _ int) recipeView {
		return recipeView{Hash: rc.ComputeHash(), Recipe: rc}
	}))
}

func (s *server) handleArchived(w http.ResponseWriter, r *http.Request) {
	recipe, err := s.reg.Archived(r.Context(), r.PathValue("hash"))
	if errors.Is(err, cache.ErrNotFound) {
		http.Error(w, "recipe not found", http.StatusNotFound)
		return
	}
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to load archived recipe", "error", err)
		http.Error(w, "failed to load recipe", http.StatusInternalServerError)
		return
	}
	writeJSON(w, r, http.StatusOK, recipe)
}

func (s *server) handleIngredients(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, s.ingredientsResponse())
}

type toggleRequest struct {
	Name string `json:"name"`
}

func (s *server) handleToggleName(w http.ResponseWriter, r *http.Request) {
	var req toggleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		http.Error(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		http.Error(w, "missing ingredient name", http.StatusBadRequest)
		return
	}
	s.reg.ToggleByName(r.Context(), req.Name)
	writeJSON(w, r, http.StatusOK, s.ingredientsResponse())
}

func (s *server) handleToggleID(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		http.Error(w, "missing ingredient id", http.StatusBadRequest)
		return
	}
	s.reg.ToggleByID(r.Context(), id)
	writeJSON(w, r, http.StatusOK, map[string]any{
		"id":       id,
		"selected": s.reg.Selection().IsSelected(id),
	})
}

type cartResponse struct {
	Entries          []cart.Entry `json:"entries"`
	TotalIngredients int          `json:"total_ingredients"`
}

func (s *server) handleCart(w http.ResponseWriter, r *http.Request) {
	c := s.reg.Cart()
	writeJSON(w, r, http.StatusOK, cartResponse{Entries: c.Entries(), TotalIngredients: c.TotalIngredients()})
}

type addToCartRequest struct {
	RecipeID string `json:"recipe_id"`
	Servings int    `json:"servings"`
	// SelectedIngredients left out means the current selection is used.
	SelectedIngredients []string `json:"selected_ingredients"`
}

func (s *server) handleAddToCart(w http.ResponseWriter, r *http.Request) {
	var req addToCartRequest
	if err := decodeJSON(w, r, &req); err != nil {
		http.Error(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}
	recipe, ok := s.reg.Recipe(req.RecipeID)
	if !ok {
		http.Error(w, "recipe not found", http.StatusNotFound)
		return
	}
	if err := s.reg.Cart().Add(r.Context(), recipe, req.Servings, req.SelectedIngredients); err != nil {
		if errors.Is(err, cart.ErrInvalidServings) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		slog.ErrorContext(r.Context(), "failed to add to cart", "recipe", req.RecipeID, "error", err)
		http.Error(w, "failed to add to cart", http.StatusInternalServerError)
		return
	}
	s.handleCart(w, r)
}

func (s *server) handleRemoveFromCart(w http.ResponseWriter, r *http.Request) {
	s.reg.Cart().Remove(r.Context(), r.PathValue("id"))
	w.WriteHeader(http.StatusNoContent)
}

type pricesResponse struct {
	List   *cart.ShoppingList `json:"list,omitempty"`
	Quotes []pricing.Quote    `json:"quotes"`
}

// handlePrices compares every supermarket. With ?supermarket= or a planned
// supermarket it also returns the itemized list for that store.
func (s *server) handlePrices(w http.ResponseWriter, r *http.Request) {
	c := s.reg.Cart()
	supermarket := r.URL.Query().Get("supermarket")
	if supermarket == "" {
		if p := s.reg.CurrentPlan(); p != nil {
			supermarket = p.Request.Supermarket
		}
	}

	resp := pricesResponse{Quotes: c.Compare()}
	if supermarket != "" {
		list, err := c.ShoppingList(supermarket)
		if err != nil {
			if errors.Is(err, pricing.ErrUnknownSupermarket) {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			http.Error(w, "failed to price cart", http.StatusInternalServerError)
			return
		}
		resp.List = list
	}
	writeJSON(w, r, http.StatusOK, resp)
}

// planView adds the live loading flag to the stored plan, whose fallback and
// source_error fields describe how it was built.
type planView struct {
	*plan.Plan
	Loading bool `json:"loading"`
}

func (s *server) handleCurrentPlan(w http.ResponseWriter, r *http.Request) {
	p, loading := s.reg.CurrentPlan(), s.reg.Loading()
	if p == nil && !loading {
		http.Error(w, "no plan yet", http.StatusNotFound)
		return
	}
	writeJSON(w, r, http.StatusOK, planView{Plan: p, Loading: loading})
}

type planRequest struct {
	plan.Request
	// Start and Days fill Dates when they are not given. Start defaults to
	// today.
	Start string `json:"start"`
	Days  int    `json:"days"`
}

func (s *server) handlePlan(w http.ResponseWriter, r *http.Request) {
	var req planRequest
	if err := decodeJSON(w, r, &req); err != nil {
		http.Error(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}
	if len(req.Dates) == 0 && req.Days > 0 {
		start := s.now()
		if req.Start != "" {
			parsed, err := time.Parse(time.DateOnly, req.Start)
			if err != nil {
				http.Error(w, fmt.Sprintf("invalid start date: %v", err), http.StatusBadRequest)
				return
			}
			start = parsed
		}
		req.Dates = plan.Days(start, req.Days)
	}
	if len(req.Meals) == 0 {
		req.Meals = plan.Meals
	}
	if req.Supermarket != "" {
		if _, err := pricing.Lookup(req.Supermarket); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}

	p, err := s.reg.Plan(r.Context(), req.Request)
	switch {
	case errors.Is(err, plan.ErrNoDates), errors.Is(err, plan.ErrNoMeals), errors.Is(err, plan.ErrBadDate):
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	case errors.Is(err, plan.ErrNoRecipes):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	case err != nil:
		slog.ErrorContext(r.Context(), "failed to build plan", "error", err)
		http.Error(w, "failed to build plan", http.StatusInternalServerError)
		return
	}
	writeJSON(w, r, http.StatusOK, p)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.ErrorContext(r.Context(), "failed to encode response", "error", err)
	}
}

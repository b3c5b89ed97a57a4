// Package plan lays recipes from a bank out over days and meals and produces
// the working recipe set the ingredient list is built from.
package plan

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"despensa/internal/recipes"

	"github.com/samber/lo"
)

var (
	ErrNoDates   = errors.New("plan needs at least one date")
	ErrNoMeals   = errors.New("plan needs at least one meal")
	ErrNoRecipes = errors.New("no recipe matches the restrictions")
	ErrBadDate   = errors.New("dates must be formatted as YYYY-MM-DD")
)

// Meals in the order they appear on a day.
var Meals = []string{"desayuno", "comida", "cena"}

type Request struct {
	// Dates are calendar days formatted as YYYY-MM-DD.
	Dates        []string `json:"dates"`
	Meals        []string `json:"meals"`
	People       int      `json:"people"`
	Restrictions []string `json:"restrictions,omitempty"`
	Supermarket  string   `json:"supermarket,omitempty"`
}

type Slot struct {
	Date   string         `json:"date"`
	Meal   string         `json:"meal"`
	Recipe recipes.Recipe `json:"recipe"`
}

type Plan struct {
	Request Request `json:"request"`
	Slots   []Slot  `json:"slots"`
	// Fallback is set when bundled recipes filled some or all of the slots.
	Fallback bool `json:"fallback,omitempty"`
	// SourceError describes the recipe bank failures behind a fallback.
	SourceError string `json:"source_error,omitempty"`
}

// Recipes returns the working set in slot order.
func (p *Plan) Recipes() []recipes.Recipe {
	if p == nil {
		return nil
	}
	return lo.Map(p.Slots, func(s Slot, _ int) recipes.Recipe { return s.Recipe })
}

// Days returns n consecutive dates starting at start.
func Days(start time.Time, n int) []string {
	out := make([]string, 0, max(n, 0))
	for i := range n {
		out = append(out, start.AddDate(0, 0, i).Format(time.DateOnly))
	}
	return out
}

func (r Request) normalize() (Request, error) {
	if len(r.Dates) == 0 {
		return r, ErrNoDates
	}
	for _, d := range r.Dates {
		if _, err := time.Parse(time.DateOnly, d); err != nil {
			return r, fmt.Errorf("%w: %q", ErrBadDate, d)
		}
	}
	meals := lo.Uniq(lo.FilterMap(r.Meals, func(m string, _ int) (string, bool) {
		m = strings.ToLower(strings.TrimSpace(m))
		return m, m != ""
	}))
	if len(meals) == 0 {
		return r, ErrNoMeals
	}
	r.Meals = meals
	if r.People <= 0 {
		r.People = recipes.DefaultServings
	}
	r.Restrictions = lo.FilterMap(r.Restrictions, func(t string, _ int) (string, bool) {
		t = strings.ToLower(strings.TrimSpace(t))
		return t, t != ""
	})
	return r, nil
}

// Compose fills every date and meal of req from bank. Each meal draws from
// recipes of the matching category, or from the whole filtered bank when the
// category is empty, and cycles through its pool before repeating a recipe.
// Every slot holds its own occurrence, scaled to req.People.
func Compose(bank []recipes.Recipe, req Request) (*Plan, error) {
	req, err := req.normalize()
	if err != nil {
		return nil, err
	}

	eligible := lo.Filter(bank, func(r recipes.Recipe, _ int) bool {
		return r.HasTags(req.Restrictions...)
	})
	if len(eligible) == 0 {
		return nil, ErrNoRecipes
	}
	byCategory := lo.GroupBy(eligible, func(r recipes.Recipe) string { return r.Category })

	cursor := map[string]int{}
	next := func(meal string) recipes.Recipe {
		pool, key := byCategory[meal], meal
		if len(pool) == 0 {
			pool, key = eligible, ""
		}
		r := pool[cursor[key]%len(pool)]
		cursor[key]++
		return r
	}

	p := &Plan{Request: req, Slots: make([]Slot, 0, len(req.Dates)*len(req.Meals))}
	for _, date := range req.Dates {
		for _, meal := range req.Meals {
			slot := date + "/" + meal
			p.Slots = append(p.Slots, Slot{
				Date:   date,
				Meal:   meal,
				Recipe: recipes.Occurrence(recipes.Scale(next(meal), req.People), slot),
			})
		}
	}
	return p, nil
}

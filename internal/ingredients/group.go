// Package ingredients merges ingredient lines that share a name across a set
// of recipes into one shopping list entry.
package ingredients

import (
	"despensa/internal/recipes"

	"github.com/samber/lo"
)

// Selection answers whether one ingredient instance is selected.
type Selection interface {
	IsSelected(id string) bool
}

// Grouped is the derived view over every instance sharing Name. It is never
// persisted; IsSelected is computed from the selection each time.
type Grouped struct {
	Name        string   `json:"name"`
	TotalAmount float64  `json:"total_amount"`
	Unit        string   `json:"unit"`
	Recipes     []string `json:"recipes"`
	AllIDs      []string `json:"all_ids"`
	IsSelected  bool     `json:"is_selected"`
}

// String renders the total with its unit. A zero total still renders.
func (g Grouped) String() string {
	amount := recipes.FormatAmount(g.TotalAmount)
	if g.Unit == "" {
		return amount
	}
	return amount + " " + g.Unit
}

// Group walks recipes and their ingredients in order and merges instances by
// exact name. Output keeps the first-seen order of names. The unit of the
// first instance wins; later units are ignored. sel may be nil, in which case
// nothing is selected.
func Group(rs []recipes.Recipe, sel Selection) []Grouped {
	index := make(map[string]int)
	var out []Grouped
	for _, r := range rs {
		for _, ing := range r.Ingredients {
			i, ok := index[ing.Name]
			if !ok {
				index[ing.Name] = len(out)
				out = append(out, Grouped{
					Name:        ing.Name,
					TotalAmount: recipes.ParseAmount(ing.Amount),
					Unit:        ing.Unit,
					Recipes:     []string{r.Title},
					AllIDs:      []string{ing.ID},
				})
				continue
			}
			g := &out[i]
			g.Recipes = append(g.Recipes, r.Title)
			g.TotalAmount += recipes.ParseAmount(ing.Amount)
			g.AllIDs = append(g.AllIDs, ing.ID)
		}
	}

	for i := range out {
		out[i].IsSelected = AllSelected(out[i].AllIDs, sel)
	}
	return out
}

// AllSelected is the one grouped selection rule: a group is selected only when
// every instance id is selected. Toggling by name relies on the same rule.
func AllSelected(ids []string, sel Selection) bool {
	if sel == nil || len(ids) == 0 {
		return false
	}
	return lo.EveryBy(ids, sel.IsSelected)
}

// IDsNamed returns every instance id called name across rs, in order.
func IDsNamed(rs []recipes.Recipe, name string) []string {
	return lo.FlatMap(rs, func(r recipes.Recipe, _ int) []string {
		return lo.FilterMap(r.Ingredients, func(ing recipes.Ingredient, _ int) (string, bool) {
			return ing.ID, ing.Name == name
		})
	})
}

// SelectedOnly keeps the groups marked selected.
func SelectedOnly(groups []Grouped) []Grouped {
	return lo.Filter(groups, func(g Grouped, _ int) bool { return g.IsSelected })
}

// AllIDs returns every ingredient instance id in rs.
func AllIDs(rs []recipes.Recipe) []string {
	return lo.FlatMap(rs, func(r recipes.Recipe, _ int) []string { return r.IngredientIDs() })
}

package recipes

import (
	"encoding/base64"
	"hash/fnv"
	"io"
	"strconv"

	"github.com/samber/lo"
)

const DefaultServings = 2

// Ingredient is one ingredient line of one recipe occurrence. ID is unique per
// instance; Name is the grouping key and is compared as-is.
type Ingredient struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Amount   string `json:"amount"`
	Unit     string `json:"unit"`
	Selected bool   `json:"selected,omitempty"`
}

type Recipe struct {
	ID           string       `json:"id"`
	Title        string       `json:"title"`
	Description  string       `json:"description,omitempty"`
	Category     string       `json:"category,omitempty"`
	Servings     int          `json:"servings"`
	Calories     int          `json:"calories,omitempty"`
	Protein      float64      `json:"protein,omitempty"`
	Carbs        float64      `json:"carbs,omitempty"`
	Fat          float64      `json:"fat,omitempty"`
	ImageURL     string       `json:"image_url,omitempty"`
	Tags         []string     `json:"tags,omitempty"`
	Instructions []string     `json:"instructions,omitempty"`
	Ingredients  []Ingredient `json:"ingredients"`
}

// ComputeHash calculates the fnv128 hash of the recipe content.
func (r *Recipe) ComputeHash() string {
	fnv := fnv.New128a()
	lo.Must(io.WriteString(fnv, r.Title))
	lo.Must(io.WriteString(fnv, r.Description))
	lo.Must(io.WriteString(fnv, strconv.Itoa(r.Servings)))
	for _, ing := range r.Ingredients {
		lo.Must(io.WriteString(fnv, ing.Name))
		lo.Must(io.WriteString(fnv, ing.Amount))
		lo.Must(io.WriteString(fnv, ing.Unit))
	}
	for _, instr := range r.Instructions {
		lo.Must(io.WriteString(fnv, instr))
	}
	return base64.URLEncoding.EncodeToString(fnv.Sum(nil))
}

// IngredientIDs returns the instance ids of r in order.
func (r Recipe) IngredientIDs() []string {
	return lo.Map(r.Ingredients, func(ing Ingredient, _ int) string { return ing.ID })
}

// HasTags reports whether r carries every tag in tags.
func (r Recipe) HasTags(tags ...string) bool {
	return lo.Every(r.Tags, tags)
}

// clone copies r deep enough that callers can edit the ingredient list of
// the result without touching r.
func (r Recipe) clone() Recipe {
	out := r
	out.Tags = append([]string(nil), r.Tags...)
	out.Instructions = append([]string(nil), r.Instructions...)
	out.Ingredients = append([]Ingredient(nil), r.Ingredients...)
	return out
}

// Occurrence returns a distinct copy of r for one slot of a working set.
// Ingredient ids get the slot as suffix so two occurrences of the same recipe
// never share an instance id.
func Occurrence(r Recipe, slot string) Recipe {
	out := r.clone()
	for i := range out.Ingredients {
		out.Ingredients[i].ID = out.Ingredients[i].ID + "@" + slot
	}
	return out
}

// Scale returns a copy of r with amounts scaled from r.Servings to servings.
// Every amount ParseAmount reads a number from is scaled; text after a
// leading number is kept. Other amounts are kept as written. Ids are
// unchanged.
func Scale(r Recipe, servings int) Recipe {
	out := r.clone()
	if servings <= 0 {
		return out
	}
	base := r.Servings
	if base <= 0 {
		base = servings
	}
	out.Servings = servings
	if base == servings {
		return out
	}

	factor := float64(servings) / float64(base)
	for i := range out.Ingredients {
		amount := out.Ingredients[i].Amount
		if v, ok := parseNumber(amount); ok {
			out.Ingredients[i].Amount = FormatAmount(v * factor)
			continue
		}
		if v, rest, ok := splitLeadingNumber(amount); ok {
			out.Ingredients[i].Amount = FormatAmount(v*factor) + rest
		}
	}
	return out
}

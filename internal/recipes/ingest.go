package recipes

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

var (
	ErrMissingID    = errors.New("recipe has no id")
	ErrMissingTitle = errors.New("recipe has no title")
)

// FlexString accepts a JSON string, number or boolean and keeps its text.
// The hosted database and the generator disagree on whether amounts and ids
// are numbers or strings.
type FlexString string

func (f *FlexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FlexString(strings.TrimSpace(s))
		return nil
	case '{', '[':
		return fmt.Errorf("expected string or number, got %s", data)
	}
	*f = FlexString(data)
	return nil
}

func (f FlexString) String() string {
	return string(f)
}

// Row is a recipe row as served by the hosted recipe bank, ingredients
// embedded as a JSON column.
type Row struct {
	ID           FlexString      `json:"id"`
	Title        string          `json:"title"`
	Description  string          `json:"description"`
	Category     string          `json:"category"`
	Servings     int             `json:"servings"`
	Calories     float64         `json:"calories"`
	Protein      float64         `json:"protein"`
	Carbs        float64         `json:"carbs"`
	Fat          float64         `json:"fat"`
	ImageURL     string          `json:"image_url"`
	Tags         []string        `json:"tags"`
	Instructions []string        `json:"instructions"`
	Ingredients  []RowIngredient `json:"ingredients"`
}

type RowIngredient struct {
	ID       FlexString `json:"id"`
	Name     string     `json:"name"`
	Quantity FlexString `json:"quantity"`
	Unit     string     `json:"unit"`
}

// FromRow normalizes a database row.
func FromRow(row Row) (Recipe, error) {
	id := row.ID.String()
	if id == "" {
		return Recipe{}, ErrMissingID
	}
	title := strings.TrimSpace(row.Title)
	if title == "" {
		return Recipe{}, fmt.Errorf("row %s: %w", id, ErrMissingTitle)
	}

	r := Recipe{
		ID:           id,
		Title:        title,
		Description:  row.Description,
		Category:     strings.ToLower(strings.TrimSpace(row.Category)),
		Servings:     orDefaultServings(row.Servings),
		Calories:     int(math.Round(row.Calories)),
		Protein:      row.Protein,
		Carbs:        row.Carbs,
		Fat:          row.Fat,
		ImageURL:     row.ImageURL,
		Tags:         normalizeTags(row.Tags),
		Instructions: row.Instructions,
		Ingredients:  make([]Ingredient, 0, len(row.Ingredients)),
	}
	for i, ing := range row.Ingredients {
		ingID := ing.ID.String()
		if ingID == "" {
			ingID = syntheticID(id, i)
		}
		r.Ingredients = append(r.Ingredients, Ingredient{
			ID:     ingID,
			Name:   strings.TrimSpace(ing.Name),
			Amount: ing.Quantity.String(),
			Unit:   strings.TrimSpace(ing.Unit),
		})
	}
	return r, nil
}

// Generated is the recipe shape the generation functions return.
type Generated struct {
	Title       string                `json:"title" jsonschema:"required"`
	Description string                `json:"description"`
	Category    string                `json:"category" jsonschema:"enum=desayuno,enum=comida,enum=cena"`
	Servings    int                   `json:"servings"`
	Nutrition   GeneratedNutrition    `json:"nutrition"`
	Ingredients []GeneratedIngredient `json:"ingredients" jsonschema:"required"`
	Steps       []string              `json:"steps" jsonschema:"required"`
	Tags        []string              `json:"tags"`
	ImageURL    string                `json:"image_url,omitempty" jsonschema:"-"`
}

type GeneratedNutrition struct {
	Calories float64 `json:"calories"`
	Protein  float64 `json:"protein"`
	Carbs    float64 `json:"carbs"`
	Fat      float64 `json:"fat"`
}

type GeneratedIngredient struct {
	Name   string     `json:"name" jsonschema:"required"`
	Amount FlexString `json:"amount"`
	Unit   string     `json:"unit"`
}

// FromGenerated normalizes generator output. Generated recipes carry no ids,
// so a fresh recipe id is minted and ingredient ids derive from it.
func FromGenerated(g Generated) Recipe {
	id := uuid.NewString()
	r := Recipe{
		ID:           id,
		Title:        strings.TrimSpace(g.Title),
		Description:  g.Description,
		Category:     strings.ToLower(strings.TrimSpace(g.Category)),
		Servings:     orDefaultServings(g.Servings),
		Calories:     int(math.Round(g.Nutrition.Calories)),
		Protein:      g.Nutrition.Protein,
		Carbs:        g.Nutrition.Carbs,
		Fat:          g.Nutrition.Fat,
		ImageURL:     g.ImageURL,
		Tags:         normalizeTags(g.Tags),
		Instructions: g.Steps,
		Ingredients:  make([]Ingredient, 0, len(g.Ingredients)),
	}
	for i, ing := range g.Ingredients {
		r.Ingredients = append(r.Ingredients, Ingredient{
			ID:     syntheticID(id, i),
			Name:   strings.TrimSpace(ing.Name),
			Amount: ing.Amount.String(),
			Unit:   strings.TrimSpace(ing.Unit),
		})
	}
	return r
}

// Example is a bundled sample recipe. Ingredients are written as free text
// lines such as "2 ud Tomate" or "1/2 cdta Sal".
type Example struct {
	Slug     string   `json:"slug"`
	Name     string   `json:"name"`
	Category string   `json:"category"`
	Serves   int      `json:"serves"`
	Kcal     int      `json:"kcal"`
	Tags     []string `json:"tags"`
	Lines    []string `json:"ingredients"`
	Steps    []string `json:"steps"`
}

func FromExample(e Example) (Recipe, error) {
	if e.Slug == "" {
		return Recipe{}, ErrMissingID
	}
	if strings.TrimSpace(e.Name) == "" {
		return Recipe{}, fmt.Errorf("example %s: %w", e.Slug, ErrMissingTitle)
	}
	r := Recipe{
		ID:           e.Slug,
		Title:        strings.TrimSpace(e.Name),
		Category:     strings.ToLower(strings.TrimSpace(e.Category)),
		Servings:     orDefaultServings(e.Serves),
		Calories:     e.Kcal,
		Tags:         normalizeTags(e.Tags),
		Instructions: e.Steps,
		Ingredients:  make([]Ingredient, 0, len(e.Lines)),
	}
	for i, line := range e.Lines {
		ing := ParseLine(line)
		ing.ID = syntheticID(e.Slug, i)
		r.Ingredients = append(r.Ingredients, ing)
	}
	return r, nil
}

var knownUnits = map[string]bool{
	"g": true, "kg": true, "ml": true, "l": true, "ud": true,
	"cda": true, "cdas": true, "cdta": true, "cdtas": true,
	"taza": true, "tazas": true, "pizca": true, "diente": true, "dientes": true,
	"lata": true, "latas": true, "manojo": true, "loncha": true, "lonchas": true,
	"filete": true, "filetes": true,
}

// ParseLine splits a free text ingredient line into amount, unit and name.
// A line without a leading quantity becomes a name with no amount.
func ParseLine(line string) Ingredient {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return Ingredient{}
	}
	if _, ok := parseNumber(fields[0]); !ok {
		return Ingredient{Name: strings.Join(fields, " ")}
	}
	ing := Ingredient{Amount: strings.ReplaceAll(fields[0], ",", ".")}
	rest := fields[1:]
	if len(rest) > 1 && knownUnits[strings.ToLower(rest[0])] {
		ing.Unit = strings.ToLower(rest[0])
		rest = rest[1:]
	}
	if len(rest) > 1 && rest[0] == "de" {
		rest = rest[1:]
	}
	ing.Name = strings.Join(rest, " ")
	return ing
}

// normalizeTags lowercases and trims tags so they match plan restrictions.
// Empty and repeated tags are dropped.
func normalizeTags(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	return lo.Uniq(lo.FilterMap(tags, func(t string, _ int) (string, bool) {
		t = strings.ToLower(strings.TrimSpace(t))
		return t, t != ""
	}))
}

func syntheticID(recipeID string, index int) string {
	return recipeID + "-" + strconv.Itoa(index+1)
}

func orDefaultServings(n int) int {
	if n <= 0 {
		return DefaultServings
	}
	return n
}

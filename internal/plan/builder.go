package plan

import (
	"context"
	"errors"
	"log/slog"
	"slices"

	"despensa/internal/recipes"
	"despensa/internal/recipesource"

	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"
)

const defaultPerCategory = 20

// Builder gathers a recipe bank for the requested meals and composes a plan
// from it.
type Builder struct {
	loader      *recipesource.Loader
	perCategory int
}

// NewBuilder returns a builder reading from loader. A nil loader means only
// the bundled examples are used.
func NewBuilder(loader *recipesource.Loader) *Builder {
	return &Builder{loader: loader, perCategory: defaultPerCategory}
}

// Build composes a plan from the hosted bank. Meals whose category failed to
// load draw from the bundled examples of the same category, and the whole
// plan does when the bank cannot fill it. The plan records both.
func (b *Builder) Build(ctx context.Context, req Request) (*Plan, error) {
	req, err := req.normalize()
	if err != nil {
		return nil, err
	}
	examples, err := recipes.Examples()
	if err != nil {
		slog.ErrorContext(ctx, "some example recipes failed to load", "error", err)
	}
	if b.loader == nil {
		p, err := Compose(examples, req)
		if err != nil {
			return nil, err
		}
		p.Fallback = true
		return p, nil
	}

	bank, failed, fetchErr := b.bank(ctx, req.Meals)
	var sourceErr string
	if fetchErr != nil {
		sourceErr = fetchErr.Error()
		slog.WarnContext(ctx, "filling failed meals with examples", "meals", failed)
		bank = append(bank, lo.Filter(examples, func(r recipes.Recipe, _ int) bool {
			return slices.Contains(failed, r.Category)
		})...)
	}

	if len(bank) > 0 {
		p, err := Compose(bank, req)
		if err == nil {
			p.Fallback = len(failed) > 0
			p.SourceError = sourceErr
			return p, nil
		}
		slog.WarnContext(ctx, "hosted recipes could not fill the plan, using examples", "error", err)
	}

	p, err := Compose(examples, req)
	if err != nil {
		return nil, err
	}
	p.Fallback = true
	p.SourceError = sourceErr
	return p, nil
}

// Loading reports whether a category fetch is in flight.
func (b *Builder) Loading() bool {
	return b.loader != nil && b.loader.Loading()
}

// bank fetches every meal category and returns the recipes with the meals
// whose fetch failed and their joined errors.
func (b *Builder) bank(ctx context.Context, meals []string) ([]recipes.Recipe, []string, error) {
	pages := make([][]recipes.Recipe, len(meals))
	errs := make([]error, len(meals))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, meal := range meals {
		g.Go(func() error {
			pages[i] = b.loader.Load(gctx, meal, b.perCategory)
			errs[i] = b.loader.Err(meal)
			return nil
		})
	}
	_ = g.Wait()

	bank := lo.UniqBy(lo.Flatten(pages), func(r recipes.Recipe) string { return r.ID })
	failed := lo.Filter(meals, func(_ string, i int) bool { return errs[i] != nil })
	return bank, failed, errors.Join(errs...)
}

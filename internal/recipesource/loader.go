package recipesource

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"

	"despensa/internal/recipes"

	"github.com/samber/lo"
)

// Loader turns source failures into an empty result plus flags the caller can
// show. Errors never reach the aggregator or the stores.
type Loader struct {
	src Source

	mu       sync.Mutex
	inFlight int
	errs     map[string]error
}

func NewLoader(src Source) *Loader {
	return &Loader{src: src, errs: map[string]error{}}
}

// Load returns the recipes for category, or an empty slice when the source
// failed. The failure is kept per category until that category loads again.
func (l *Loader) Load(ctx context.Context, category string, limit int) []recipes.Recipe {
	l.mu.Lock()
	l.inFlight++
	l.mu.Unlock()

	rs, err := l.src.Fetch(ctx, category, limit)

	l.mu.Lock()
	defer l.mu.Unlock()
	l.inFlight--
	if err != nil {
		slog.ErrorContext(ctx, "failed to load recipes", "category", category, "error", err)
		l.errs[category] = err
		return []recipes.Recipe{}
	}
	delete(l.errs, category)
	if rs == nil {
		rs = []recipes.Recipe{}
	}
	return rs
}

// Loading reports whether a load is in progress.
func (l *Loader) Loading() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.inFlight > 0
}

// Err returns the last failure of each given category, or of every category
// when none are named, joined in category order.
func (l *Loader) Err(categories ...string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(categories) == 0 {
		categories = lo.Keys(l.errs)
	}
	categories = lo.Uniq(categories)
	slices.Sort(categories)

	var errs []error
	for _, c := range categories {
		if err, ok := l.errs[c]; ok {
			errs = append(errs, &CategoryError{Category: c, Err: err})
		}
	}
	return errors.Join(errs...)
}

// CategoryError is a failed load of one category.
type CategoryError struct {
	Category string
	Err      error
}

func (e *CategoryError) Error() string {
	return e.Category + ": " + e.Err.Error()
}

func (e *CategoryError) Unwrap() error {
	return e.Err
}

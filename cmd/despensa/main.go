package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"log"
	"os"
	"strings"
	"time"

	"despensa/internal/cache"
	"despensa/internal/config"
	"despensa/internal/generator"
	"despensa/internal/logging"
	"despensa/internal/plan"
	"despensa/internal/recipesource"
	"despensa/internal/registry"

	"github.com/joho/godotenv"
)

type options struct {
	serve bool
	addr  string

	plan         bool
	generate     bool
	start        string
	days         int
	meals        string
	people       int
	restrictions string
	supermarket  string

	list     bool
	toggle   string
	toggleID string

	cart     bool
	add      string
	servings int
	remove   string
}

func main() {
	var o options
	var help bool

	flag.BoolVar(&o.serve, "serve", false, "Run HTTP server mode")
	flag.StringVar(&o.addr, "addr", ":8080", "Address to bind in server mode")
	flag.BoolVar(&o.plan, "plan", false, "Build a meal plan and make it the working set")
	flag.BoolVar(&o.generate, "generate", false, "Ask the generator for fresh recipes instead of the recipe bank")
	flag.StringVar(&o.start, "start", "", "First day of the plan (YYYY-MM-DD, default today)")
	flag.IntVar(&o.days, "days", 7, "Number of days to plan")
	flag.StringVar(&o.meals, "meals", strings.Join(plan.Meals, ","), "Comma separated meals per day")
	flag.IntVar(&o.people, "people", 2, "Number of people to cook for")
	flag.StringVar(&o.restrictions, "restrictions", "", "Comma separated tags every recipe must carry (e.g. vegano)")
	flag.StringVar(&o.supermarket, "supermarket", "", "Supermarket for price estimates")
	flag.BoolVar(&o.list, "list", false, "Print the ingredient list of the working set")
	flag.StringVar(&o.toggle, "toggle", "", "Toggle every ingredient with this name")
	flag.StringVar(&o.toggleID, "toggle-id", "", "Toggle one ingredient instance by id")
	flag.BoolVar(&o.cart, "cart", false, "Print the cart and its price at every supermarket")
	flag.StringVar(&o.add, "add", "", "Add the recipe with this id to the cart")
	flag.IntVar(&o.servings, "servings", 2, "Servings for -add")
	flag.StringVar(&o.remove, "remove", "", "Remove the recipe with this id from the cart")
	flag.BoolVar(&help, "help", false, "Show help message")
	flag.BoolVar(&help, "h", false, "Show help message")
	flag.Parse()

	if help {
		showHelp()
		return
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Fatalf("failed to load .env: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	ctx := context.Background()
	shutdown, err := logging.Setup(ctx, cfg)
	if err != nil {
		log.Fatalf("failed to set up logging: %v", err)
	}
	flush := func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(flushCtx); err != nil {
			log.Printf("failed to flush logs: %v", err)
		}
	}

	if o.supermarket == "" {
		o.supermarket = cfg.Supermarket
	}

	if o.serve {
		err = runServer(cfg, o.addr)
	} else {
		err = run(ctx, cfg, o, os.Stdout)
	}
	flush()
	if err != nil {
		log.Fatalf("Error: %v", err)
	}
}

func newRegistry(ctx context.Context, cfg *config.Config) (*registry.Registry, error) {
	c, err := cache.MakeCache(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create cache: %w", err)
	}
	var loader *recipesource.Loader
	if cfg.Recipes.URL != "" {
		loader = recipesource.NewLoader(recipesource.NewClient(cfg.Recipes))
	}
	return registry.New(ctx, c, plan.NewBuilder(loader)), nil
}

func run(ctx context.Context, cfg *config.Config, o options, out io.Writer) error {
	reg, err := newRegistry(ctx, cfg)
	if err != nil {
		return err
	}

	did := false
	switch {
	case o.generate:
		gen := generator.NewClient(cfg.Generator)
		rs, err := gen.GenerateRecipes(ctx, generator.Request{
			People:       o.people,
			Days:         o.days,
			Meals:        splitList(o.meals),
			Restrictions: splitList(o.restrictions),
		})
		if err != nil {
			return err
		}
		reg.SetRecipes(ctx, gen.Illustrate(ctx, rs))
		printRecipes(out, reg.Recipes())
		did = true
	case o.plan:
		req, err := o.planRequest(time.Now())
		if err != nil {
			return err
		}
		p, err := reg.Plan(ctx, req)
		if err != nil {
			return err
		}
		if p.SourceError != "" {
			fmt.Fprintf(out, "recipe bank unavailable, using bundled recipes: %s\n", p.SourceError)
		}
		printPlan(out, p)
		did = true
	}

	if o.toggle != "" {
		reg.ToggleByName(ctx, o.toggle)
		o.list = true
	}
	if o.toggleID != "" {
		reg.ToggleByID(ctx, o.toggleID)
		o.list = true
	}
	if o.list {
		printIngredients(out, reg.Grouped())
		did = true
	}

	if o.add != "" {
		recipe, ok := reg.Recipe(o.add)
		if !ok {
			return fmt.Errorf("recipe %q is not in the working set", o.add)
		}
		if err := reg.Cart().Add(ctx, recipe, o.servings, nil); err != nil {
			return err
		}
		o.cart = true
	}
	if o.remove != "" {
		reg.Cart().Remove(ctx, o.remove)
		o.cart = true
	}
	if o.cart {
		if err := printCart(out, reg.Cart(), o.supermarket); err != nil {
			return err
		}
		did = true
	}

	if !did {
		showHelp()
	}
	return nil
}

func (o options) planRequest(today time.Time) (plan.Request, error) {
	start := today
	if o.start != "" {
		parsed, err := time.Parse(time.DateOnly, o.start)
		if err != nil {
			return plan.Request{}, fmt.Errorf("invalid -start: %w", err)
		}
		start = parsed
	}
	return plan.Request{
		Dates:        plan.Days(start, o.days),
		Meals:        splitList(o.meals),
		People:       o.people,
		Restrictions: splitList(o.restrictions),
		Supermarket:  o.supermarket,
	}, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func showHelp() {
	fmt.Println("Despensa - meal planning and shopping lists")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  despensa -plan [-days 7] [-meals desayuno,comida,cena] [-people 2] [-restrictions vegano]")
	fmt.Println("  despensa -list | -toggle <name> | -toggle-id <id>")
	fmt.Println("  despensa -cart | -add <recipe id> [-servings 2] | -remove <recipe id>")
	fmt.Println("  despensa -serve [-addr :8080]")
	fmt.Println()
	fmt.Println("Options:")
	flag.PrintDefaults()
}

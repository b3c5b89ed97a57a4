package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"despensa/internal/cart"
	"despensa/internal/ingredients"
	"despensa/internal/plan"
	"despensa/internal/pricing"
	"despensa/internal/recipes"
)

func printRecipes(out io.Writer, rs []recipes.Recipe) {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	for _, r := range rs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d kcal\n", r.ID, r.Title, r.Category, r.Calories)
	}
	_ = tw.Flush()
}

func printPlan(out io.Writer, p *plan.Plan) {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "Plan for %d people\n", p.Request.People)
	for _, s := range p.Slots {
		fmt.Fprintf(tw, "%s\t%s\t%s\t(%s)\n", s.Date, s.Meal, s.Recipe.Title, s.Recipe.ID)
	}
	_ = tw.Flush()
}

func printIngredients(out io.Writer, groups []ingredients.Grouped) {
	if len(groups) == 0 {
		fmt.Fprintln(out, "No ingredients. Build a plan first with -plan.")
		return
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	for _, g := range groups {
		mark := "[ ]"
		if g.IsSelected {
			mark = "[x]"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", mark, g.Name, g, strings.Join(g.Recipes, ", "))
	}
	_ = tw.Flush()
	fmt.Fprintf(out, "%d of %d selected\n", len(ingredients.SelectedOnly(groups)), len(groups))
}

func printCart(out io.Writer, c *cart.Cart, supermarket string) error {
	entries := c.Entries()
	if len(entries) == 0 {
		fmt.Fprintln(out, "The cart is empty.")
		return nil
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%d servings\t%d ingredients\n", e.Recipe.ID, e.Recipe.Title, e.Servings, len(e.SelectedIngredients))
	}
	_ = tw.Flush()

	list, err := c.ShoppingList(supermarket)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "\nShopping list at %s\n", list.Supermarket)
	tw = tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	for _, item := range list.Items {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", item.Name, item.Grouped, item.Packs, pricing.Format(item.Price))
	}
	fmt.Fprintf(tw, "Total\t\t\t%s\n", pricing.Format(list.Total))
	_ = tw.Flush()

	fmt.Fprintln(out, "\nCompared")
	tw = tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	for _, q := range c.Compare() {
		fmt.Fprintf(tw, "%s\t%s\n", q.Supermarket, pricing.Format(q.Total))
	}
	return tw.Flush()
}

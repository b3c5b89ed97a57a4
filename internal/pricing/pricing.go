// Package pricing simulates supermarket prices for a shopping list. Prices
// are derived from the ingredient name, so the same list always costs the
// same at the same store.
package pricing

import (
	"errors"
	"hash/fnv"
	"io"
	"math"
	"slices"
	"strings"

	"github.com/samber/lo"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var ErrUnknownSupermarket = errors.New("unknown supermarket")

type Supermarket struct {
	Name   string  `json:"name"`
	Factor float64 `json:"factor"`
}

var supermarkets = []Supermarket{
	{Name: "Mercadona", Factor: 1.00},
	{Name: "Carrefour", Factor: 1.05},
	{Name: "Lidl", Factor: 0.93},
	{Name: "Dia", Factor: 0.97},
	{Name: "Alcampo", Factor: 1.02},
}

// Supermarkets lists the stores prices can be compared across.
func Supermarkets() []Supermarket {
	return slices.Clone(supermarkets)
}

// Lookup finds a supermarket by name, ignoring case.
func Lookup(name string) (Supermarket, error) {
	s, ok := lo.Find(supermarkets, func(s Supermarket) bool {
		return strings.EqualFold(s.Name, strings.TrimSpace(name))
	})
	if !ok {
		return Supermarket{}, ErrUnknownSupermarket
	}
	return s, nil
}

// Line is one shopping list entry to price.
type Line struct {
	Name   string
	Amount float64
	Unit   string
}

type PricedLine struct {
	Name  string  `json:"name"`
	Packs int     `json:"packs"`
	Price float64 `json:"price"`
}

type Quote struct {
	Supermarket string       `json:"supermarket"`
	Lines       []PricedLine `json:"lines"`
	Total       float64      `json:"total"`
}

// QuoteFor prices lines at one supermarket.
func QuoteFor(supermarket string, lines []Line) (Quote, error) {
	s, err := Lookup(supermarket)
	if err != nil {
		return Quote{}, err
	}
	return quote(s, lines), nil
}

// Compare prices lines at every supermarket, cheapest first.
func Compare(lines []Line) []Quote {
	quotes := lo.Map(supermarkets, func(s Supermarket, _ int) Quote { return quote(s, lines) })
	slices.SortStableFunc(quotes, func(a, b Quote) int {
		switch {
		case a.Total < b.Total:
			return -1
		case a.Total > b.Total:
			return 1
		}
		return strings.Compare(a.Supermarket, b.Supermarket)
	})
	return quotes
}

func quote(s Supermarket, lines []Line) Quote {
	q := Quote{Supermarket: s.Name, Lines: make([]PricedLine, 0, len(lines))}
	for _, l := range lines {
		packs := Packs(l.Amount, l.Unit)
		price := cents(UnitPrice(l.Name) * s.Factor * jitter(s.Name, l.Name) * float64(packs))
		q.Lines = append(q.Lines, PricedLine{Name: l.Name, Packs: packs, Price: price})
		q.Total += price
	}
	q.Total = cents(q.Total)
	return q
}

// UnitPrice is the simulated base price of one pack of name, 0.40 to 4.90.
func UnitPrice(name string) float64 {
	return 0.40 + float64(hash(name)%451)/100
}

// Packs estimates how many retail packs cover amount of unit. Weights and
// volumes are sold per kilo or litre; spoon and pinch measures come out of a
// single pack.
func Packs(amount float64, unit string) int {
	if amount <= 0 {
		return 1
	}
	var qty float64
	switch strings.ToLower(unit) {
	case "g", "ml":
		qty = amount / 1000
	case "kg", "l":
		qty = amount
	case "cda", "cdas", "cdta", "cdtas", "pizca", "diente", "dientes":
		return 1
	default:
		qty = amount
	}
	return max(1, int(math.Ceil(qty-1e-9)))
}

// jitter moves a store's price for one product by up to five percent either way.
func jitter(store, name string) float64 {
	return 0.95 + float64(hash(store+"/"+name)%101)/1000
}

func hash(s string) uint32 {
	h := fnv.New32a()
	_, _ = io.WriteString(h, s)
	return h.Sum32()
}

func cents(v float64) float64 {
	return math.Round(v*100) / 100
}

var printer = message.NewPrinter(language.Spanish)

// Format renders amount in euros for display.
func Format(amount float64) string {
	return printer.Sprint(currency.Symbol(currency.EUR.Amount(cents(amount))))
}

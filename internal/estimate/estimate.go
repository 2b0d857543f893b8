package estimate

import (
	"math/rand/v2"
	"strings"
	"sync"

	"gonum.org/v1/gonum/stat/distuv"
)

type Category string

const (
	Seafood    Category = "seafood"
	Fruits     Category = "fruits"
	Vegetables Category = "vegetables"
	Grains     Category = "grains"
	Chicken    Category = "chicken"
	Beef       Category = "beef"
	Pork       Category = "pork"
	Low        Category = "low"
)

// Range is the per-serving microplastics count range of a category.
type Range struct {
	Min float64
	Max float64
}

// Rule maps a set of label keywords to a category.
type Rule struct {
	Category Category
	Keywords []string
}

// Rules are evaluated in order; the first rule with a matching keyword wins.
var Rules = []Rule{
	{Seafood, []string{"fish", "seafood", "clam", "crab", "lobster", "oyster", "scallop", "shrimp", "tuna", "salmon"}},
	{Fruits, []string{"apple", "banana", "orange", "grape", "strawberry", "blueberry", "peach", "pear", "mango", "kiwi"}},
	{Vegetables, []string{"carrot", "tomato", "cucumber", "lettuce", "spinach", "broccoli", "cauliflower", "onion", "potato", "corn"}},
	{Grains, []string{"bread", "rice", "pasta", "noodle"}},
	{Chicken, []string{"chicken"}},
	{Beef, []string{"beef", "steak", "burger"}},
	{Pork, []string{"pork"}},
}

var Ranges = map[Category]Range{
	Seafood:    {8, 15},
	Chicken:    {2, 6},
	Beef:       {2, 5},
	Pork:       {2, 5},
	Fruits:     {0, 2},
	Vegetables: {0, 2},
	Grains:     {0, 3},
	Low:        {1, 4},
}

// Categorize returns the category of a label using the default rules.
func Categorize(label string) Category {
	lower := strings.ToLower(label)
	for _, rule := range Rules {
		for _, kw := range rule.Keywords {
			if strings.Contains(lower, kw) {
				return rule.Category
			}
		}
	}
	return Low
}

// Multiplier scales a base estimate by model confidence.
func Multiplier(confidence float64) float64 {
	return 0.5 + 0.5*confidence
}

// Estimator draws microplastics estimates. The zero value is not usable;
// construct with New.
type Estimator struct {
	mu  sync.Mutex
	src rand.Source
}

type Option func(*Estimator)

// WithSeed makes the estimates reproducible.
func WithSeed(seed uint64) Option {
	return func(e *Estimator) {
		e.src = rand.NewPCG(seed, seed)
	}
}

func New(opts ...Option) *Estimator {
	e := &Estimator{}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Estimate classifies label and returns a random count within the category's
// range, scaled by confidence and truncated toward zero.
func (e *Estimator) Estimate(label string, confidence float64) (Category, int) {
	category := Categorize(label)
	r, ok := Ranges[category]
	if !ok {
		r = Ranges[Low]
	}

	// rand.Source is not safe for concurrent use; the global source is.
	e.mu.Lock()
	base := distuv.Uniform{Min: r.Min, Max: r.Max, Src: e.src}.Rand()
	e.mu.Unlock()

	return category, int(base * Multiplier(confidence))
}

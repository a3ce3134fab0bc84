// Package sequencing checks an ordered list of poses against category
// sequencing rules. The check is advisory: it reports the first problem as a
// human-readable warning and never blocks the caller.
package sequencing

import "fmt"

// Category classifies a pose for sequencing purposes.
type Category string

const (
	CategoryStanding    Category = "standing"
	CategoryBalance     Category = "balance"
	CategoryBackbend    Category = "backbend"
	CategoryForwardBend Category = "forward_bend"
	CategoryTwist       Category = "twist"
	CategoryInversion   Category = "inversion"
	CategoryCounterpose Category = "counterpose"
	CategoryHipOpener   Category = "hip_opener"
	CategoryRest        Category = "rest"
)

// Pair is two categories that must never sit next to each other, in either
// order.
type Pair [2]Category

// RuleSet is the static sequencing metadata.
type RuleSet struct {
	// Opposing lists category pairs that may not be adjacent.
	Opposing []Pair
	// FollowUps maps a category to the categories of which at least one must
	// appear somewhere after it. A flagged category may never end a sequence.
	FollowUps map[Category][]Category
}

// Result is the outcome of a validation. Warning is empty when Valid.
type Result struct {
	Valid   bool   `json:"valid"`
	Warning string `json:"warning,omitempty"`
}

// Lookup resolves an item id to its category.
type Lookup interface {
	CategoryOf(id string) (Category, bool)
}

// DefaultRules returns the built-in rule set.
func DefaultRules() RuleSet {
	return RuleSet{
		Opposing: []Pair{
			{CategoryBackbend, CategoryTwist},
		},
		FollowUps: map[Category][]Category{
			CategoryBackbend:  {CategoryCounterpose, CategoryForwardBend, CategoryRest},
			CategoryInversion: {CategoryCounterpose, CategoryRest},
		},
	}
}

// Validate checks ids against the default rules.
func Validate(ids []string, catalog Lookup) Result {
	return DefaultRules().Validate(ids, catalog)
}

// Validate checks ids against r. Adjacency is checked before follow-ups and
// only the first violation is reported. Ids the catalog does not know carry
// no category and never trigger a rule.
func (r RuleSet) Validate(ids []string, catalog Lookup) Result {
	categories := make([]Category, len(ids))
	known := make([]bool, len(ids))
	for i, id := range ids {
		categories[i], known[i] = catalog.CategoryOf(id)
	}

	for i := 0; i+1 < len(ids); i++ {
		if !known[i] || !known[i+1] {
			continue
		}
		if r.opposed(categories[i], categories[i+1]) {
			return Result{Warning: fmt.Sprintf(
				"%s (%s) is directly followed by %s (%s); these categories should not be adjacent",
				ids[i], categories[i], ids[i+1], categories[i+1])}
		}
	}

	for i := range ids {
		if !known[i] {
			continue
		}
		allowed, flagged := r.FollowUps[categories[i]]
		if !flagged {
			continue
		}
		if i == len(ids)-1 {
			return Result{Warning: fmt.Sprintf(
				"sequence ends with %s (%s); finish with a %s",
				ids[i], categories[i], describe(allowed))}
		}
		if !followedBy(categories[i+1:], known[i+1:], allowed) {
			return Result{Warning: fmt.Sprintf(
				"%s (%s) is never followed by a %s",
				ids[i], categories[i], describe(allowed))}
		}
	}

	return Result{Valid: true}
}

func (r RuleSet) opposed(a, b Category) bool {
	for _, p := range r.Opposing {
		if (p[0] == a && p[1] == b) || (p[0] == b && p[1] == a) {
			return true
		}
	}
	return false
}

func followedBy(later []Category, known []bool, allowed []Category) bool {
	for i, c := range later {
		if !known[i] {
			continue
		}
		for _, a := range allowed {
			if c == a {
				return true
			}
		}
	}
	return false
}

func describe(categories []Category) string {
	switch len(categories) {
	case 0:
		return "follow-up pose"
	case 1:
		return string(categories[0])
	}
	s := ""
	for i, c := range categories {
		switch {
		case i == 0:
		case i == len(categories)-1:
			s += " or "
		default:
			s += ", "
		}
		s += string(c)
	}
	return s
}

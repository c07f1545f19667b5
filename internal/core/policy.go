package core

// carryPolicies maps canonical category names to their accumulation policy.
// "Mensuel" and "Annuel" budgets carry their leftover balance into the next
// period; "Courant" and the savings categories reset to the reference amount.
var carryPolicies = map[string]Policy{
	"Courant": PolicyReset,
	"Mensuel": PolicyCarryOver,
	"Annuel":  PolicyCarryOver,
	"Épargne": PolicyReset,
	"Livret":  PolicyReset,
}

// PolicyFor returns the accumulation policy for a category name. Unknown
// categories reset.
func PolicyFor(categoryName string) Policy {
	if p, ok := carryPolicies[categoryName]; ok {
		return p
	}
	return PolicyReset
}

// IsCarryOver reports whether budgets in the named category keep their
// leftover balance across a rollover.
func IsCarryOver(categoryName string) bool {
	return PolicyFor(categoryName) == PolicyCarryOver
}

// DefaultCategories is the canonical category set seeded into a new
// household aggregate.
func DefaultCategories() []Category {
	return []Category{
		{ID: "courant", Name: "Courant", Description: "dépenses courantes, remise à zéro chaque mois"},
		{ID: "mensuel", Name: "Mensuel", Description: "budget mensuel avec report du solde"},
		{ID: "annuel", Name: "Annuel", Description: "budget annuel avec report du solde"},
		{ID: "epargne", Name: "Épargne", Description: "épargne, remise à zéro chaque mois"},
	}
}

package model

// Scope tells the resolver whether an article is resolved for a topic or
// for a link inside an event or infobox cell.
type Scope int

const (
	ScopeEvent Scope = iota
	ScopeTopic
)

func (s Scope) String() string {
	if s == ScopeTopic {
		return "topic"
	}
	return "event"
}

// Budget bounds how many hops of links inside location cells the resolver
// follows. The zero value is unset; build budgets with NewBudget.
type Budget struct {
	hops int
	set  bool
}

// NewBudget returns a budget of n hops, floored at zero.
func NewBudget(n int) Budget {
	return Budget{hops: max(n, 0), set: true}
}

// Hops returns the remaining hop count.
func (b Budget) Hops() int { return b.hops }

// IsSet reports whether the budget was built with NewBudget.
func (b Budget) IsSet() bool { return b.set }

// Spend returns the budget after one hop, floored at zero.
func (b Budget) Spend() Budget {
	if b.hops > 0 {
		b.hops--
	}
	return b
}

// ResolveKey identifies one memoised article resolution.
type ResolveKey struct {
	URL    string
	Scope  Scope
	Budget Budget
}

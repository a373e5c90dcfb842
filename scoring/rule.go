// Package scoring ranks candidate locations for a demand with an ordered set
// of rules. Each applicable rule scores a location from 0 to 100 and the
// location's score is the truncated average of those scores.
package scoring

import (
	"github.com/xraph/allot/demand"
	"github.com/xraph/allot/location"
)

// MaxScore is the highest score a rule may award.
const MaxScore = 100

// Snapshot is what the ledger knows about one variant at a candidate.
type Snapshot struct {
	Known         bool
	Available     int64
	Backorderable bool
}

// Candidate is a location under evaluation together with the facts rules
// read. Candidates are built once per request and never mutated by rules.
type Candidate struct {
	Location *location.Location
	// Stock is keyed by variant id.
	Stock map[string]Snapshot
	// Primary is set when the location is the effectively active primary
	// location of the demand's store.
	Primary bool
}

// Rule scores candidates. Priority orders evaluation (higher first) so
// breakdowns read the same way every time; it never vetoes a location.
type Rule interface {
	Name() string
	Priority() int
	Applies(c *Candidate, dc *demand.Context) bool
	Score(c *Candidate, dc *demand.Context) int
}

// RuleFunc builds a Rule from functions. A nil applies means always.
func RuleFunc(name string, priority int, applies func(*Candidate, *demand.Context) bool, score func(*Candidate, *demand.Context) int) Rule {
	return &funcRule{name: name, priority: priority, applies: applies, score: score}
}

type funcRule struct {
	name     string
	priority int
	applies  func(*Candidate, *demand.Context) bool
	score    func(*Candidate, *demand.Context) int
}

func (r *funcRule) Name() string  { return r.name }
func (r *funcRule) Priority() int { return r.priority }

func (r *funcRule) Applies(c *Candidate, dc *demand.Context) bool {
	return r.applies == nil || r.applies(c, dc)
}

func (r *funcRule) Score(c *Candidate, dc *demand.Context) int {
	return r.score(c, dc)
}

// ──────────────────────────────────────────────────
// Baseline rules
// ──────────────────────────────────────────────────

// StorePreference favors the store's primary location.
type StorePreference struct{}

func (StorePreference) Name() string  { return "store_preference" }
func (StorePreference) Priority() int { return 300 }

func (StorePreference) Applies(_ *Candidate, dc *demand.Context) bool {
	return dc.HasStore()
}

func (StorePreference) Score(c *Candidate, _ *demand.Context) int {
	if c.Primary {
		return MaxScore
	}
	return 0
}

// StockAvailability averages per-item availability scores: 100 when the
// request fits, 50 when backorderable, 10 when stocked but short, 0 when the
// variant is unknown at the location.
type StockAvailability struct{}

func (StockAvailability) Name() string  { return "stock_availability" }
func (StockAvailability) Priority() int { return 200 }

func (StockAvailability) Applies(_ *Candidate, dc *demand.Context) bool {
	return len(dc.Items) > 0
}

func (StockAvailability) Score(c *Candidate, dc *demand.Context) int {
	items := dc.Merged()
	if len(items) == 0 {
		return 0
	}
	total := 0
	for _, item := range items {
		snap, ok := c.Stock[item.VariantID]
		switch {
		case !ok || !snap.Known:
		case snap.Available >= item.Quantity:
			total += MaxScore
		case snap.Backorderable:
			total += 50
		default:
			total += 10
		}
	}
	return total / len(items)
}

// CapabilityMatch checks the location can serve the order type.
type CapabilityMatch struct{}

func (CapabilityMatch) Name() string  { return "capability_match" }
func (CapabilityMatch) Priority() int { return 100 }

func (CapabilityMatch) Applies(*Candidate, *demand.Context) bool { return true }

func (CapabilityMatch) Score(c *Candidate, dc *demand.Context) int {
	if c.Location.Serves(dc.OrderType) {
		return MaxScore
	}
	return 0
}

// Baseline returns the three built-in rules.
func Baseline() []Rule {
	return []Rule{StorePreference{}, StockAvailability{}, CapabilityMatch{}}
}

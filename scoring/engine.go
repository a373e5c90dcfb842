package scoring

import (
	"cmp"
	"slices"
	"sync"

	"github.com/xraph/allot/demand"
	"github.com/xraph/allot/id"
)

// RuleScore is one line of a score breakdown.
type RuleScore struct {
	Rule  string `json:"rule"`
	Score int    `json:"score"`
}

// Ranked is a scored candidate.
type Ranked struct {
	Candidate  *Candidate    `json:"-"`
	LocationID id.LocationID `json:"location_id"`
	Score      int           `json:"score"`
	Breakdown  []RuleScore   `json:"breakdown"`
}

// Engine holds the registered rules. Rank is safe for concurrent use and
// does not touch shared mutable state.
type Engine struct {
	mu    sync.RWMutex
	rules []Rule
}

// NewEngine returns an engine with rules registered.
func NewEngine(rules ...Rule) *Engine {
	e := &Engine{}
	for _, r := range rules {
		e.Register(r)
	}
	return e
}

// Register adds a rule. A rule with the same name replaces the old one.
func (e *Engine) Register(r Rule) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.rules = slices.DeleteFunc(e.rules, func(x Rule) bool { return x.Name() == r.Name() })
	e.rules = append(e.rules, r)
	slices.SortStableFunc(e.rules, func(a, b Rule) int {
		if c := cmp.Compare(b.Priority(), a.Priority()); c != 0 {
			return c
		}
		return cmp.Compare(a.Name(), b.Name())
	})
}

// Rules returns the registered rules in evaluation order.
func (e *Engine) Rules() []Rule {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return slices.Clone(e.rules)
}

// Score evaluates one candidate. Rule scores are clamped to [0, 100]; a
// candidate with no applicable rule scores 0.
func (e *Engine) Score(c *Candidate, dc *demand.Context) (int, []RuleScore) {
	rules := e.Rules()
	breakdown := make([]RuleScore, 0, len(rules))
	sum := 0
	for _, r := range rules {
		if !r.Applies(c, dc) {
			continue
		}
		s := min(max(r.Score(c, dc), 0), MaxScore)
		sum += s
		breakdown = append(breakdown, RuleScore{Rule: r.Name(), Score: s})
	}
	if len(breakdown) == 0 {
		return 0, breakdown
	}
	return sum / len(breakdown), breakdown
}

// Rank scores every candidate and orders them by score descending, then
// location priority ascending, then location id ascending.
func (e *Engine) Rank(candidates []*Candidate, dc *demand.Context) []Ranked {
	out := make([]Ranked, 0, len(candidates))
	for _, c := range candidates {
		score, breakdown := e.Score(c, dc)
		out = append(out, Ranked{
			Candidate:  c,
			LocationID: c.Location.ID,
			Score:      score,
			Breakdown:  breakdown,
		})
	}
	slices.SortFunc(out, Compare)
	return out
}

// Compare is the ranking order used by Rank.
func Compare(a, b Ranked) int {
	if c := cmp.Compare(b.Score, a.Score); c != 0 {
		return c
	}
	la, lb := a.Candidate.Location, b.Candidate.Location
	if c := cmp.Compare(la.Priority, lb.Priority); c != 0 {
		return c
	}
	return la.ID.Compare(lb.ID)
}

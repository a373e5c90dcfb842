package scoring_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/allot/demand"
	"github.com/xraph/allot/id"
	"github.com/xraph/allot/location"
	"github.com/xraph/allot/scoring"
)

func loc(raw string, priority int, caps location.Capabilities) *location.Location {
	return &location.Location{
		ID:           id.MustParse(raw),
		Name:         raw,
		Type:         location.TypeWarehouse,
		Priority:     priority,
		Capabilities: caps,
		Active:       true,
	}
}

const (
	locA = "loc_01h2xcejqtf2nbrexx3vqjhp41"
	locB = "loc_01h2xcejqtf2nbrexx3vqjhp42"
	locC = "loc_01h2xcejqtf2nbrexx3vqjhp43"
)

var online = location.Capabilities{CanFulfillOnline: true}

func TestStorePreferenceScoresOnlyThePrimary(t *testing.T) {
	dc := &demand.Context{
		StoreID:   "store-1",
		OrderType: demand.OrderOnline,
		Items:     []demand.Item{{VariantID: "sku", Quantity: 1}},
	}
	rule := scoring.StorePreference{}

	primary := &scoring.Candidate{Location: loc(locA, 1, online), Primary: true}
	stocked := &scoring.Candidate{
		Location: loc(locB, 1, online),
		Stock:    map[string]scoring.Snapshot{"sku": {Known: true, Available: 1000}},
	}
	empty := &scoring.Candidate{Location: loc(locC, 1, online)}

	require.True(t, rule.Applies(primary, dc))
	assert.Equal(t, 100, rule.Score(primary, dc))
	assert.Equal(t, 0, rule.Score(stocked, dc))
	assert.Equal(t, 0, rule.Score(empty, dc))

	assert.False(t, rule.Applies(primary, &demand.Context{OrderType: demand.OrderOnline}))
}

func TestStockAvailabilityAveragesItems(t *testing.T) {
	dc := &demand.Context{
		OrderType: demand.OrderOnline,
		Items: []demand.Item{
			{VariantID: "fits", Quantity: 2},
			{VariantID: "back", Quantity: 5},
			{VariantID: "short", Quantity: 5},
			{VariantID: "unknown", Quantity: 1},
		},
	}
	c := &scoring.Candidate{
		Location: loc(locA, 1, online),
		Stock: map[string]scoring.Snapshot{
			"fits":  {Known: true, Available: 2},
			"back":  {Known: true, Available: 0, Backorderable: true},
			"short": {Known: true, Available: 4},
		},
	}
	// (100 + 50 + 10 + 0) / 4
	assert.Equal(t, 40, scoring.StockAvailability{}.Score(c, dc))
}

func TestCapabilityMatch(t *testing.T) {
	c := &scoring.Candidate{Location: loc(locA, 1, online)}
	rule := scoring.CapabilityMatch{}
	assert.Equal(t, 100, rule.Score(c, &demand.Context{OrderType: demand.OrderOnline}))
	assert.Equal(t, 0, rule.Score(c, &demand.Context{OrderType: demand.OrderInstorePickup}))
}

func TestScoreTruncatesAverage(t *testing.T) {
	e := scoring.NewEngine(
		scoring.RuleFunc("a", 3, nil, func(*scoring.Candidate, *demand.Context) int { return 100 }),
		scoring.RuleFunc("b", 2, nil, func(*scoring.Candidate, *demand.Context) int { return 100 }),
		scoring.RuleFunc("c", 1, nil, func(*scoring.Candidate, *demand.Context) int { return 85 }),
		scoring.RuleFunc("never", 0,
			func(*scoring.Candidate, *demand.Context) bool { return false },
			func(*scoring.Candidate, *demand.Context) int { return 0 }),
		scoring.RuleFunc("clamped", -1, nil, func(*scoring.Candidate, *demand.Context) int { return 250 }),
	)
	score, breakdown := e.Score(&scoring.Candidate{Location: loc(locA, 1, online)}, &demand.Context{})

	// (100 + 100 + 85 + 100) / 4 = 96.25
	assert.Equal(t, 96, score)
	assert.Equal(t, []scoring.RuleScore{
		{Rule: "a", Score: 100},
		{Rule: "b", Score: 100},
		{Rule: "c", Score: 85},
		{Rule: "clamped", Score: 100},
	}, breakdown)
}

func TestNoApplicableRulesScoresZero(t *testing.T) {
	e := scoring.NewEngine(scoring.StorePreference{})
	score, breakdown := e.Score(&scoring.Candidate{Location: loc(locA, 1, online), Primary: true}, &demand.Context{})
	assert.Zero(t, score)
	assert.Empty(t, breakdown)
}

func TestRankThreeKeyOrdering(t *testing.T) {
	flat := scoring.RuleFunc("flat", 1, nil, func(c *scoring.Candidate, _ *demand.Context) int {
		if c.Primary {
			return 90
		}
		return 50
	})
	e := scoring.NewEngine(flat)

	best := &scoring.Candidate{Location: loc(locC, 9, online), Primary: true}
	lowPriority := &scoring.Candidate{Location: loc(locB, 1, online)}
	tieA := &scoring.Candidate{Location: loc(locA, 2, online)}
	tieB := &scoring.Candidate{Location: loc(locB, 2, online)}
	tieB.Location.ID = id.MustParse("loc_01h2xcejqtf2nbrexx3vqjhp44")

	ranked := e.Rank([]*scoring.Candidate{tieB, tieA, lowPriority, best}, &demand.Context{})
	require.Len(t, ranked, 4)

	// score desc, then priority asc, then id asc
	assert.Equal(t, best, ranked[0].Candidate)
	assert.Equal(t, lowPriority, ranked[1].Candidate)
	assert.Equal(t, tieA, ranked[2].Candidate)
	assert.Equal(t, tieB, ranked[3].Candidate)
}

func TestRankIsDeterministic(t *testing.T) {
	e := scoring.NewEngine(scoring.Baseline()...)
	dc := &demand.Context{
		StoreID:   "s",
		OrderType: demand.OrderOnline,
		Items:     []demand.Item{{VariantID: "sku", Quantity: 3}},
	}
	build := func() []*scoring.Candidate {
		return []*scoring.Candidate{
			{Location: loc(locA, 1, online), Stock: map[string]scoring.Snapshot{"sku": {Known: true, Available: 1}}},
			{Location: loc(locB, 1, online), Stock: map[string]scoring.Snapshot{"sku": {Known: true, Available: 5}}},
			{Location: loc(locC, 1, online), Primary: true},
		}
	}

	first := e.Rank(build(), dc)
	second := e.Rank(build(), dc)
	require.Len(t, second, len(first))
	for i := range first {
		assert.Equal(t, first[i].LocationID.String(), second[i].LocationID.String())
		assert.Equal(t, first[i].Score, second[i].Score)
		assert.Equal(t, first[i].Breakdown, second[i].Breakdown)
	}

	// locB: (0 + 100 + 100) / 3 = 66, locC: (100 + 0 + 100) / 3 = 66,
	// locA: (0 + 10 + 100) / 3 = 36. locB and locC tie on score and
	// priority, so the id decides.
	assert.Equal(t, locB, first[0].LocationID.String())
	assert.Equal(t, locC, first[1].LocationID.String())
	assert.Equal(t, locA, first[2].LocationID.String())
	assert.Equal(t, []scoring.RuleScore{
		{Rule: "store_preference", Score: 0},
		{Rule: "stock_availability", Score: 100},
		{Rule: "capability_match", Score: 100},
	}, first[0].Breakdown)
}

func TestRegisterReplacesByName(t *testing.T) {
	e := scoring.NewEngine(scoring.Baseline()...)
	e.Register(scoring.RuleFunc("capability_match", 100, nil, func(*scoring.Candidate, *demand.Context) int { return 1 }))
	assert.Len(t, e.Rules(), 3)
}

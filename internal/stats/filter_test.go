package stats

import (
	"testing"
	"time"

	"mcsr-tracker/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func int64Ptr(v int64) *int64 { return &v }
func boolPtr(v bool) *bool    { return &v }

// matchOpts builds test records directly; the fetch pipeline is exercised
// elsewhere.
type matchOpts struct {
	id        int64
	date      int64
	outcome   domain.Outcome
	forfeited bool
	matchTime *int64
	completed bool
	season    int
	seedType  string
	matchType int
	players   int
	userUUID  string
	segments  map[string]domain.Segment
}

func mkMatch(o matchOpts) *domain.Match {
	if o.matchType == 0 {
		o.matchType = 1
	}
	if o.players == 0 {
		o.players = 2
	}
	if o.seedType == "" {
		o.seedType = "village"
	}
	if o.userUUID == "" {
		o.userUUID = "uuid-user"
	}
	m := &domain.Match{
		ID:               o.id,
		AnalyzedUsername: "Feinberg",
		Date:             o.date,
		Timestamp:        time.Unix(o.date, 0),
		Forfeited:        o.forfeited,
		SeedType:         o.seedType,
		Season:           o.season,
		MatchType:        o.matchType,
		PlayerCount:      o.players,
		UserUUID:         o.userUUID,
		Outcome:          o.outcome,
		MatchTime:        o.matchTime,
		UserCompleted:    o.completed,
		Segments:         map[string]domain.Segment{},
		EloChanges:       map[string]domain.EloChange{},
	}
	if o.segments != nil {
		m.ApplySegments(o.segments)
	}
	return m
}

func completedRun(id, date, timeMS int64, season int) *domain.Match {
	return mkMatch(matchOpts{
		id: id, date: date, outcome: domain.OutcomeWin,
		matchTime: int64Ptr(timeMS), completed: true, season: season,
	})
}

func idsOf(matches []*domain.Match) []int64 {
	ids := make([]int64, 0, len(matches))
	for _, m := range matches {
		ids = append(ids, m.ID)
	}
	return ids
}

func TestFilterDefaultsKeepEverything(t *testing.T) {
	matches := []*domain.Match{
		completedRun(1, 100, 600000, 5),
		mkMatch(matchOpts{id: 2, date: 200, outcome: domain.OutcomeLoss}),
		mkMatch(matchOpts{id: 3, date: 300, outcome: domain.OutcomeDraw}),
		mkMatch(matchOpts{id: 4, date: 400, outcome: domain.OutcomeLoss, forfeited: true}),
	}

	filtered := FilterMatches(matches, NewFilter())
	assert.Len(t, filtered, 4)
	// Default sort: newest first.
	assert.Equal(t, []int64{4, 3, 2, 1}, idsOf(filtered))
}

func TestFilterDoesNotMutateInput(t *testing.T) {
	matches := []*domain.Match{
		completedRun(1, 100, 600000, 5),
		completedRun(2, 200, 500000, 5),
	}

	FilterMatches(matches, NewFilter())
	assert.Equal(t, []int64{1, 2}, idsOf(matches))
}

func TestFilterIdempotent(t *testing.T) {
	matches := []*domain.Match{
		completedRun(1, 100, 600000, 5),
		mkMatch(matchOpts{id: 2, date: 200, outcome: domain.OutcomeDraw}),
		mkMatch(matchOpts{id: 3, date: 300, outcome: domain.OutcomeLoss, forfeited: true}),
	}

	f := NewFilter()
	f.IncludeDraws = false
	f.SortBy = SortByDate
	f.SortDescending = false

	once := FilterMatches(matches, f)
	twice := FilterMatches(once, f)
	assert.Equal(t, idsOf(once), idsOf(twice))
}

func TestFilterCompletedOnly(t *testing.T) {
	matches := []*domain.Match{
		completedRun(1, 100, 600000, 5),
		// A forfeit with a completion flag is not a completed run.
		mkMatch(matchOpts{id: 2, date: 200, outcome: domain.OutcomeWin, forfeited: true, matchTime: int64Ptr(300000), completed: true}),
		mkMatch(matchOpts{id: 3, date: 300, outcome: domain.OutcomeDraw, matchTime: int64Ptr(500000), completed: true}),
		mkMatch(matchOpts{id: 4, date: 400, outcome: domain.OutcomeWin, completed: true}),
	}

	f := NewFilter()
	f.CompletedOnly = true
	filtered := FilterMatches(matches, f)
	assert.Equal(t, []int64{1}, idsOf(filtered))
}

func TestFilterOutcomeToggles(t *testing.T) {
	matches := []*domain.Match{
		mkMatch(matchOpts{id: 1, date: 100, outcome: domain.OutcomeWin}),
		mkMatch(matchOpts{id: 2, date: 200, outcome: domain.OutcomeLoss}),
		mkMatch(matchOpts{id: 3, date: 300, outcome: domain.OutcomeDraw}),
		mkMatch(matchOpts{id: 4, date: 400, outcome: domain.OutcomeLoss, forfeited: true}),
	}

	f := NewFilter()
	f.IncludeDraws = false
	f.IncludeForfeits = false
	filtered := FilterMatches(matches, f)
	assert.Equal(t, []int64{2, 1}, idsOf(filtered))

	f = NewFilter()
	f.IncludeWins = false
	f.IncludeLosses = false
	filtered = FilterMatches(matches, f)
	assert.Equal(t, []int64{3}, idsOf(filtered))
}

func TestFilterTimeBounds(t *testing.T) {
	matches := []*domain.Match{
		completedRun(1, 100, 400000, 5),
		completedRun(2, 200, 600000, 5),
		completedRun(3, 300, 800000, 5),
		mkMatch(matchOpts{id: 4, date: 400, outcome: domain.OutcomeLoss}),
	}

	f := NewFilter()
	f.MinTimeMS = int64Ptr(500000)
	f.MaxTimeMS = int64Ptr(700000)
	filtered := FilterMatches(matches, f)
	// A record without a time never satisfies a bound.
	assert.Equal(t, []int64{2}, idsOf(filtered))

	f = NewFilter()
	f.RequireTime = true
	filtered = FilterMatches(matches, f)
	assert.NotContains(t, idsOf(filtered), int64(4))
}

func TestFilterPrivateRooms(t *testing.T) {
	matches := []*domain.Match{
		mkMatch(matchOpts{id: 1, date: 100, outcome: domain.OutcomeWin}),
		mkMatch(matchOpts{id: 2, date: 200, outcome: domain.OutcomeWin, matchType: 3}),
		mkMatch(matchOpts{id: 3, date: 300, outcome: domain.OutcomeWin, players: 5}),
	}

	f := NewFilter()
	f.IncludePrivateRooms = false
	filtered := FilterMatches(matches, f)
	assert.Equal(t, []int64{1}, idsOf(filtered))
}

func TestFilterUserIdentified(t *testing.T) {
	matches := []*domain.Match{
		mkMatch(matchOpts{id: 1, date: 100, outcome: domain.OutcomeWin}),
		mkMatch(matchOpts{id: 2, date: 200, outcome: domain.OutcomeUnresolved, userUUID: "-"}),
	}
	matches[1].UserUUID = ""

	f := NewFilter()
	f.RequireUserIdentified = true
	filtered := FilterMatches(matches, f)
	assert.Equal(t, []int64{1}, idsOf(filtered))

	// A solo match counts as identified even without a uuid.
	matches[1].PlayerCount = 1
	filtered = FilterMatches(matches, f)
	assert.Len(t, filtered, 2)
}

func TestFilterSeasonsAndSeedTypes(t *testing.T) {
	matches := []*domain.Match{
		mkMatch(matchOpts{id: 1, date: 100, outcome: domain.OutcomeWin, season: 4, seedType: "village"}),
		mkMatch(matchOpts{id: 2, date: 200, outcome: domain.OutcomeWin, season: 5, seedType: "shipwreck"}),
		mkMatch(matchOpts{id: 3, date: 300, outcome: domain.OutcomeWin, season: 5, seedType: "village"}),
	}

	f := NewFilter()
	f.Seasons = []int{5}
	f.SeedTypes = []string{"village"}
	filtered := FilterMatches(matches, f)
	assert.Equal(t, []int64{3}, idsOf(filtered))
}

func TestFilterDateRange(t *testing.T) {
	matches := []*domain.Match{
		mkMatch(matchOpts{id: 1, date: 1000, outcome: domain.OutcomeWin}),
		mkMatch(matchOpts{id: 2, date: 2000, outcome: domain.OutcomeWin}),
		mkMatch(matchOpts{id: 3, date: 3000, outcome: domain.OutcomeWin}),
	}

	from := time.Unix(1500, 0)
	to := time.Unix(2500, 0)
	f := NewFilter()
	f.DateFrom = &from
	f.DateTo = &to
	filtered := FilterMatches(matches, f)
	assert.Equal(t, []int64{2}, idsOf(filtered))
}

func TestFilterDetailedData(t *testing.T) {
	withDetails := mkMatch(matchOpts{id: 1, date: 100, outcome: domain.OutcomeWin,
		segments: map[string]domain.Segment{"nether_enter": {AbsoluteTime: 100000}}})
	without := mkMatch(matchOpts{id: 2, date: 200, outcome: domain.OutcomeWin})

	f := NewFilter()
	f.HasDetailedData = boolPtr(true)
	filtered := FilterMatches([]*domain.Match{withDetails, without}, f)
	assert.Equal(t, []int64{1}, idsOf(filtered))
}

func TestSortByTimeNilsLast(t *testing.T) {
	matches := []*domain.Match{
		mkMatch(matchOpts{id: 1, date: 100, outcome: domain.OutcomeLoss}),
		completedRun(2, 200, 700000, 5),
		completedRun(3, 300, 500000, 5),
	}

	f := NewFilter()
	f.SortBy = SortByTime
	f.SortDescending = false
	filtered := FilterMatches(matches, f)
	assert.Equal(t, []int64{3, 2, 1}, idsOf(filtered))

	f.SortDescending = true
	filtered = FilterMatches(matches, f)
	// Unknown times stay last even when descending.
	assert.Equal(t, []int64{2, 3, 1}, idsOf(filtered))
}

func TestSortByDateAscIsExactReverseOfDesc(t *testing.T) {
	matches := []*domain.Match{
		mkMatch(matchOpts{id: 1, date: 300, outcome: domain.OutcomeWin}),
		mkMatch(matchOpts{id: 2, date: 100, outcome: domain.OutcomeWin}),
		mkMatch(matchOpts{id: 3, date: 200, outcome: domain.OutcomeWin}),
	}

	f := NewFilter()
	f.SortDescending = false
	asc := idsOf(FilterMatches(matches, f))

	f.SortDescending = true
	desc := idsOf(FilterMatches(matches, f))

	require.Len(t, desc, len(asc))
	for i := range asc {
		assert.Equal(t, asc[i], desc[len(desc)-1-i])
	}
}

func TestSortBySeason(t *testing.T) {
	matches := []*domain.Match{
		mkMatch(matchOpts{id: 1, date: 100, outcome: domain.OutcomeWin, season: 7}),
		mkMatch(matchOpts{id: 2, date: 200, outcome: domain.OutcomeWin, season: 3}),
	}

	f := NewFilter()
	f.SortBy = SortBySeason
	f.SortDescending = false
	assert.Equal(t, []int64{2, 1}, idsOf(FilterMatches(matches, f)))
}

func TestUserCompletedPredicate(t *testing.T) {
	matches := []*domain.Match{
		completedRun(1, 100, 600000, 5),
		mkMatch(matchOpts{id: 2, date: 200, outcome: domain.OutcomeLoss}),
	}

	f := NewFilter()
	f.UserCompleted = boolPtr(false)
	assert.Equal(t, []int64{2}, idsOf(FilterMatches(matches, f)))
}

package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func int64Ptr(v int64) *int64 { return &v }
func intPtr(v int) *int       { return &v }

func rawTwoPlayer(winnerUUID string, winnerTime *int64, forfeited bool) RawMatch {
	var result *RawResult
	if winnerUUID != "" || winnerTime != nil {
		result = &RawResult{UUID: winnerUUID, Time: winnerTime}
	}
	return RawMatch{
		ID:        42,
		Date:      1700000000,
		Forfeited: forfeited,
		Season:    7,
		SeedType:  "village",
		Players: []RawPlayer{
			{Nickname: "Feinberg", UUID: "uuid-user"},
			{Nickname: "Couriway", UUID: "uuid-opponent"},
		},
		Result: result,
	}
}

func TestNewMatchWinCompleted(t *testing.T) {
	m := NewMatch(rawTwoPlayer("uuid-user", int64Ptr(612345), false), "feinberg")

	assert.Equal(t, OutcomeWin, m.Outcome)
	assert.Equal(t, "uuid-user", m.UserUUID)
	require.NotNil(t, m.MatchTime)
	assert.Equal(t, int64(612345), *m.MatchTime)
	assert.True(t, m.UserCompleted)
	assert.Equal(t, "Won", m.Status())
}

func TestNewMatchWinWithoutTimeNotCompleted(t *testing.T) {
	// A win row without a result time cannot claim a completed run.
	m := NewMatch(rawTwoPlayer("uuid-user", nil, false), "Feinberg")

	assert.Equal(t, OutcomeWin, m.Outcome)
	assert.Nil(t, m.MatchTime)
	assert.False(t, m.UserCompleted)
}

func TestNewMatchForfeitWinNotCompleted(t *testing.T) {
	m := NewMatch(rawTwoPlayer("uuid-user", int64Ptr(300000), true), "Feinberg")

	assert.Equal(t, OutcomeWin, m.Outcome)
	require.NotNil(t, m.MatchTime)
	assert.False(t, m.UserCompleted)
	assert.Equal(t, "Forfeit Win", m.Status())
}

func TestNewMatchLoss(t *testing.T) {
	m := NewMatch(rawTwoPlayer("uuid-opponent", int64Ptr(550000), false), "Feinberg")

	assert.Equal(t, OutcomeLoss, m.Outcome)
	// The opponent's time says nothing about the user's own run.
	assert.Nil(t, m.MatchTime)
	assert.False(t, m.UserCompleted)
	assert.Equal(t, "Couriway", m.Winner)
	assert.Equal(t, "Lost", m.Status())
}

func TestNewMatchDraw(t *testing.T) {
	m := NewMatch(rawTwoPlayer("", nil, false), "Feinberg")

	assert.Equal(t, OutcomeDraw, m.Outcome)
	assert.False(t, m.UserCompleted)
	assert.Equal(t, "Draw", m.Status())
}

func TestNewMatchForfeitLoss(t *testing.T) {
	m := NewMatch(rawTwoPlayer("uuid-opponent", nil, true), "Feinberg")

	assert.Equal(t, OutcomeLoss, m.Outcome)
	assert.Equal(t, "Forfeit Loss", m.Status())
}

func TestNewMatchUserNotIdentified(t *testing.T) {
	m := NewMatch(rawTwoPlayer("uuid-user", int64Ptr(612345), false), "SomeoneElse")

	assert.Equal(t, OutcomeUnresolved, m.Outcome)
	assert.Empty(t, m.UserUUID)
	assert.Nil(t, m.UserInfo)
	assert.False(t, m.UserCompleted)
}

func TestNewMatchSoloUnidentifiedCompletion(t *testing.T) {
	raw := RawMatch{
		ID:      7,
		Date:    1700000000,
		Players: []RawPlayer{{Nickname: "Other", UUID: "uuid-other"}},
		Result:  &RawResult{Time: int64Ptr(480000)},
	}
	m := NewMatch(raw, "Feinberg")

	require.NotNil(t, m.MatchTime)
	assert.Equal(t, int64(480000), *m.MatchTime)
	assert.True(t, m.UserCompleted)
}

func TestUserCompletedImpliesMatchTime(t *testing.T) {
	rows := []RawMatch{
		rawTwoPlayer("uuid-user", int64Ptr(612345), false),
		rawTwoPlayer("uuid-user", nil, false),
		rawTwoPlayer("uuid-user", int64Ptr(300000), true),
		rawTwoPlayer("uuid-opponent", int64Ptr(550000), false),
		rawTwoPlayer("", nil, false),
		rawTwoPlayer("", nil, true),
	}
	for _, raw := range rows {
		m := NewMatch(raw, "Feinberg")
		if m.UserCompleted {
			assert.NotNil(t, m.MatchTime, "completed match %v must carry a time", m)
		}
	}
}

func TestApplySegmentsSplitTimes(t *testing.T) {
	m := NewMatch(rawTwoPlayer("uuid-user", int64Ptr(900000), false), "Feinberg")

	m.ApplySegments(map[string]Segment{
		"nether_enter":     {AbsoluteTime: 100000},
		"fortress_enter":   {AbsoluteTime: 250000},
		"stronghold_enter": {AbsoluteTime: 600000},
	})

	require.True(t, m.HasDetailedData)
	assert.Equal(t, int64(100000), m.Segments["nether_enter"].SplitTime)
	// bastion_enter missing: the fortress split spans from the nether entry.
	assert.Equal(t, int64(150000), m.Segments["fortress_enter"].SplitTime)
	assert.Equal(t, int64(350000), m.Segments["stronghold_enter"].SplitTime)

	last, at, found := m.LastSegment()
	require.True(t, found)
	assert.Equal(t, "stronghold_enter", last)
	assert.Equal(t, int64(600000), at)
}

func TestApplySegmentsEmpty(t *testing.T) {
	m := NewMatch(rawTwoPlayer("uuid-user", nil, false), "Feinberg")
	m.ApplySegments(nil)

	assert.False(t, m.HasDetailedData)
	_, _, found := m.LastSegment()
	assert.False(t, found)
}

func TestUserEloAccessors(t *testing.T) {
	raw := rawTwoPlayer("uuid-user", int64Ptr(612345), false)
	raw.Players[0].EloRate = intPtr(1520)
	raw.Players[0].EloChange = intPtr(14)

	m := NewMatch(raw, "Feinberg")

	require.NotNil(t, m.UserEloRate())
	assert.Equal(t, 1520, *m.UserEloRate())
	require.NotNil(t, m.UserEloBefore())
	assert.Equal(t, 1506, *m.UserEloBefore())
}

func TestUserEloAccessorsUnknownUser(t *testing.T) {
	m := NewMatch(rawTwoPlayer("uuid-user", nil, false), "SomeoneElse")

	assert.Nil(t, m.UserEloRate())
	assert.Nil(t, m.UserEloChange())
	assert.Nil(t, m.UserEloBefore())
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "12:34.321", FormatDuration(754321))
	assert.Equal(t, "0:00.000", FormatDuration(0))
	assert.Equal(t, "1:05.007", FormatDuration(65007))
}

func TestTimeStringUnknown(t *testing.T) {
	m := NewMatch(rawTwoPlayer("uuid-opponent", int64Ptr(550000), false), "Feinberg")

	assert.Equal(t, "N/A", m.TimeString())
	assert.Equal(t, "9:10.000", m.WinnerTimeString())
}

func TestSegmentVocabulary(t *testing.T) {
	assert.True(t, IsValidSegment("nether_enter"))
	assert.True(t, IsValidSegment("game_end"))
	assert.False(t, IsValidSegment("overworld"))
	assert.Equal(t, "Nether Enter", SegmentDisplayName("nether_enter"))
}

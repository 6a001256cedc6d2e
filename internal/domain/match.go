package domain

import (
	"fmt"
	"strings"
	"time"
)

// RawMatch is one row of the MCSR Ranked list endpoint
// (GET /users/{username}/matches).
type RawMatch struct {
	ID        int64       `json:"id"`
	Date      int64       `json:"date"`
	Category  string      `json:"category"`
	Forfeited bool        `json:"forfeited"`
	Seed      *RawSeed    `json:"seed"`
	SeedID    string      `json:"seedID"`
	SeedType  string      `json:"seedType"`
	Season    int         `json:"season"`
	Type      *int        `json:"type"`
	Players   []RawPlayer `json:"players"`
	Result    *RawResult  `json:"result"`
}

type RawSeed struct {
	SeedID string `json:"seedID"`
}

type RawPlayer struct {
	Nickname  string `json:"nickname"`
	UUID      string `json:"uuid"`
	EloRate   *int   `json:"eloRate"`
	EloChange *int   `json:"eloChange"`
}

type RawResult struct {
	UUID string `json:"uuid"`
	Time *int64 `json:"time"`
}

// Outcome is the analyzed user's result in a match. The source modelled this
// as a win/loss/nil tri-state plus a draw flag; the tagged form keeps the
// draw and unresolved cases distinct.
type Outcome int

const (
	OutcomeUnresolved Outcome = iota
	OutcomeWin
	OutcomeLoss
	OutcomeDraw
)

func (o Outcome) String() string {
	switch o {
	case OutcomeWin:
		return "win"
	case OutcomeLoss:
		return "loss"
	case OutcomeDraw:
		return "draw"
	default:
		return "unresolved"
	}
}

type Player struct {
	Nickname  string
	UUID      string
	EloRate   *int
	EloChange *int
}

// Segment holds one timeline milestone of a run. Times are milliseconds
// since run start; SplitTime is relative to the previous segment in
// SegmentOrder.
type Segment struct {
	AbsoluteTime int64
	SplitTime    int64
}

type EloChange struct {
	Change  *int
	EloRate *int
}

// Match is the normalized record of one ranked match, derived once from a
// raw list-endpoint row (or reconstructed from cache). Only the detail-fetch
// step mutates it afterwards, filling Segments, HasDetailedData and
// EloChanges; the filter/aggregate/forecast layers treat it as read-only.
type Match struct {
	ID               int64
	AnalyzedUsername string
	Date             int64
	Timestamp        time.Time
	Category         string
	Forfeited        bool
	SeedID           string
	SeedType         string
	Season           int
	MatchType        int
	PlayerCount      int
	Players          []Player

	Winner     string
	WinnerTime *int64

	// UserUUID is empty when the analyzed user could not be identified
	// among the participants.
	UserUUID string
	UserInfo *Player

	Outcome       Outcome
	MatchTime     *int64
	UserCompleted bool

	Segments        map[string]Segment
	HasDetailedData bool
	EloChanges      map[string]EloChange
}

// NewMatch builds a Match from a raw API row. The analyzed user is resolved
// by case-insensitive nickname comparison.
func NewMatch(raw RawMatch, analyzedUsername string) *Match {
	m := &Match{
		ID:               raw.ID,
		AnalyzedUsername: analyzedUsername,
		Date:             raw.Date,
		Timestamp:        time.Unix(raw.Date, 0),
		Category:         raw.Category,
		Forfeited:        raw.Forfeited,
		Season:           raw.Season,
		MatchType:        1, // ranked unless the payload says otherwise
		PlayerCount:      len(raw.Players),
		Segments:         map[string]Segment{},
		EloChanges:       map[string]EloChange{},
	}

	if raw.Type != nil {
		m.MatchType = *raw.Type
	}

	m.SeedID = "unknown"
	if raw.Seed != nil && raw.Seed.SeedID != "" {
		m.SeedID = raw.Seed.SeedID
	} else if raw.SeedID != "" {
		m.SeedID = raw.SeedID
	}
	m.SeedType = raw.SeedType
	if m.SeedType == "" {
		m.SeedType = "unknown"
	}

	for _, p := range raw.Players {
		player := Player{
			Nickname:  p.Nickname,
			UUID:      p.UUID,
			EloRate:   p.EloRate,
			EloChange: p.EloChange,
		}
		m.Players = append(m.Players, player)

		if analyzedUsername != "" && strings.EqualFold(p.Nickname, analyzedUsername) {
			m.UserUUID = p.UUID
			info := player
			m.UserInfo = &info
		}
	}

	var winnerUUID string
	if raw.Result != nil {
		winnerUUID = raw.Result.UUID
		m.WinnerTime = raw.Result.Time
	}
	if winnerUUID != "" {
		for _, p := range m.Players {
			if p.UUID == winnerUUID {
				m.Winner = p.Nickname
				break
			}
		}
	}

	switch {
	case m.UserUUID != "" && winnerUUID != "":
		if m.UserUUID == winnerUUID {
			m.Outcome = OutcomeWin
		} else {
			m.Outcome = OutcomeLoss
		}
	case m.UserUUID != "" && winnerUUID == "" && !m.Forfeited:
		m.Outcome = OutcomeDraw
	default:
		m.Outcome = OutcomeUnresolved
	}

	m.deriveCompletion()
	return m
}

// deriveCompletion fills MatchTime and UserCompleted from the outcome.
// Only data the list payload actually provides is trusted: a losing
// player's own completion time is unknown here and stays nil rather than
// being guessed. A forfeit win is not a completed run.
func (m *Match) deriveCompletion() {
	switch {
	case m.Outcome == OutcomeWin && !m.Forfeited:
		m.MatchTime = m.WinnerTime
		m.UserCompleted = m.WinnerTime != nil
	case m.Outcome == OutcomeWin && m.Forfeited:
		m.MatchTime = m.WinnerTime
		m.UserCompleted = false
	case m.Outcome == OutcomeLoss:
		m.MatchTime = nil
		m.UserCompleted = false
	case m.Outcome == OutcomeDraw:
		m.MatchTime = m.WinnerTime
		m.UserCompleted = false
	case m.PlayerCount == 1 && !m.Forfeited:
		m.MatchTime = m.WinnerTime
		m.UserCompleted = m.WinnerTime != nil
	case m.PlayerCount == 1 && m.Forfeited:
		m.MatchTime = m.WinnerTime
		m.UserCompleted = false
	default:
		m.MatchTime = nil
		m.UserCompleted = false
	}
}

// ApplySegments installs detail-fetch results on the record. Split times
// are recomputed in segment order so cached and freshly fetched data agree.
func (m *Match) ApplySegments(segments map[string]Segment) {
	if segments == nil {
		segments = map[string]Segment{}
	}
	var prev int64
	for _, key := range SegmentOrder {
		seg, ok := segments[key]
		if !ok {
			continue
		}
		seg.SplitTime = seg.AbsoluteTime - prev
		prev = seg.AbsoluteTime
		segments[key] = seg
	}
	m.Segments = segments
	m.HasDetailedData = len(segments) > 0
}

// LastSegment returns the furthest segment reached and its absolute time.
func (m *Match) LastSegment() (string, int64, bool) {
	var (
		last  string
		at    int64
		found bool
	)
	for _, key := range SegmentOrder {
		if seg, ok := m.Segments[key]; ok {
			last = key
			at = seg.AbsoluteTime
			found = true
		}
	}
	return last, at, found
}

// Status describes the match from the analyzed user's perspective.
func (m *Match) Status() string {
	if m.Forfeited {
		switch m.Outcome {
		case OutcomeWin:
			return "Forfeit Win"
		case OutcomeLoss:
			return "Forfeit Loss"
		default:
			return "Forfeited"
		}
	}
	switch m.Outcome {
	case OutcomeWin:
		return "Won"
	case OutcomeLoss:
		return "Lost"
	default:
		return "Draw"
	}
}

// UserEloRate is the user's rating after this match, if known.
func (m *Match) UserEloRate() *int {
	if m.UserInfo == nil {
		return nil
	}
	return m.UserInfo.EloRate
}

func (m *Match) UserEloChange() *int {
	if m.UserInfo == nil {
		return nil
	}
	return m.UserInfo.EloChange
}

// UserEloBefore derives the user's rating going into this match.
func (m *Match) UserEloBefore() *int {
	rate := m.UserEloRate()
	change := m.UserEloChange()
	if rate == nil || change == nil {
		return nil
	}
	before := *rate - *change
	return &before
}

// FormatDuration renders milliseconds as M:SS.mmm.
func FormatDuration(ms int64) string {
	seconds := ms / 1000
	return fmt.Sprintf("%d:%02d.%03d", seconds/60, seconds%60, ms%1000)
}

// TimeString renders the user's completion time, or "N/A" when unknown.
func (m *Match) TimeString() string {
	if m.MatchTime == nil {
		return "N/A"
	}
	return FormatDuration(*m.MatchTime)
}

func (m *Match) WinnerTimeString() string {
	if m.WinnerTime == nil {
		return "N/A"
	}
	return FormatDuration(*m.WinnerTime)
}

func (m *Match) DateString() string {
	return m.Timestamp.Format("2006-01-02 15:04")
}

func (m *Match) String() string {
	return fmt.Sprintf("%s: %s, %s", m.Status(), m.DateString(), m.TimeString())
}

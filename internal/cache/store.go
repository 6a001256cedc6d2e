// Package cache persists match, segment and rate-limit state as JSON files.
// Caching is a performance optimization only: reads degrade to empty state
// and write failures are swallowed.
package cache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"mcsr-tracker/internal/domain"

	"github.com/rs/zerolog"
)

type Store struct {
	dir    string
	logger zerolog.Logger
}

func NewStore(dir string, logger zerolog.Logger) *Store {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		logger.Warn().Err(err).Str("dir", dir).Msg("failed to create cache directory")
	}
	return &Store{dir: dir, logger: logger}
}

func (s *Store) MatchPath(username string) string {
	return filepath.Join(s.dir, fmt.Sprintf("%s_matches.json", username))
}

func (s *Store) SegmentPath(username string) string {
	return filepath.Join(s.dir, fmt.Sprintf("%s_segments.json", username))
}

func (s *Store) RateLimitPath(username string) string {
	return filepath.Join(s.dir, fmt.Sprintf("%s_rate_limit.json", username))
}

// matchRecord is the precomputed-record cache shape. Field names mirror the
// legacy writer so caches produced by older builds keep decoding.
type matchRecord struct {
	ID               int64                      `json:"id"`
	AnalyzedUsername string                     `json:"analyzed_username"`
	Date             int64                      `json:"date"`
	Timestamp        string                     `json:"datetime_obj"`
	Category         string                     `json:"category"`
	Forfeited        bool                       `json:"forfeited"`
	SeedID           string                     `json:"seed_id"`
	SeedType         string                     `json:"seed_type"`
	Season           int                        `json:"season"`
	MatchType        int                        `json:"match_type"`
	PlayerCount      int                        `json:"player_count"`
	Players          []recordPlayer             `json:"players"`
	Winner           *string                    `json:"winner"`
	WinnerTime       *int64                     `json:"winner_time"`
	UserUUID         *string                    `json:"user_uuid"`
	UserInfo         *domain.RawPlayer          `json:"user_player_info"`
	IsUserWin        *bool                      `json:"is_user_win"`
	IsDraw           bool                       `json:"is_draw"`
	MatchTime        *int64                     `json:"match_time"`
	UserCompleted    bool                       `json:"user_completed"`
	Segments         map[string]SegmentTimes    `json:"segments"`
	HasDetailedData  bool                       `json:"has_detailed_data"`
	EloChanges       map[string]recordEloChange `json:"elo_changes"`
}

type recordPlayer struct {
	Nickname  string  `json:"nickname"`
	UUID      *string `json:"uuid"`
	EloRate   *int    `json:"elo_rate"`
	EloChange *int    `json:"elo_change"`
}

type recordEloChange struct {
	Change  *int `json:"change"`
	EloRate *int `json:"eloRate"`
}

type SegmentTimes struct {
	AbsoluteTime int64 `json:"absolute_time"`
	SplitTime    int64 `json:"split_time"`
}

// SegmentEntry is one segment-cache value, keyed by match id string.
type SegmentEntry struct {
	Segments  map[string]SegmentTimes `json:"segments"`
	FetchedAt float64                 `json:"fetched_at"`
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999",
	"2006-01-02 15:04:05.999999",
	"2006-01-02 15:04:05",
}

func parseTimestamp(value string, epoch int64) time.Time {
	for _, layout := range timestampLayouts {
		if ts, err := time.ParseInLocation(layout, value, time.Local); err == nil {
			return ts
		}
	}
	return time.Unix(epoch, 0)
}

// toDomain rebuilds a Match from a persisted field-map through the typed
// constructor fields rather than blind attribute restoration.
func (r matchRecord) toDomain() *domain.Match {
	m := &domain.Match{
		ID:               r.ID,
		AnalyzedUsername: r.AnalyzedUsername,
		Date:             r.Date,
		Timestamp:        parseTimestamp(r.Timestamp, r.Date),
		Category:         r.Category,
		Forfeited:        r.Forfeited,
		SeedID:           r.SeedID,
		SeedType:         r.SeedType,
		Season:           r.Season,
		MatchType:        r.MatchType,
		PlayerCount:      r.PlayerCount,
		WinnerTime:       r.WinnerTime,
		MatchTime:        r.MatchTime,
		UserCompleted:    r.UserCompleted,
		Segments:         map[string]domain.Segment{},
		EloChanges:       map[string]domain.EloChange{},
	}
	if r.Winner != nil {
		m.Winner = *r.Winner
	}
	if r.UserUUID != nil {
		m.UserUUID = *r.UserUUID
	}
	for _, p := range r.Players {
		player := domain.Player{Nickname: p.Nickname, EloRate: p.EloRate, EloChange: p.EloChange}
		if p.UUID != nil {
			player.UUID = *p.UUID
		}
		m.Players = append(m.Players, player)
	}
	if r.UserInfo != nil {
		m.UserInfo = &domain.Player{
			Nickname:  r.UserInfo.Nickname,
			UUID:      r.UserInfo.UUID,
			EloRate:   r.UserInfo.EloRate,
			EloChange: r.UserInfo.EloChange,
		}
	}

	switch {
	case r.IsUserWin != nil && *r.IsUserWin:
		m.Outcome = domain.OutcomeWin
	case r.IsUserWin != nil:
		m.Outcome = domain.OutcomeLoss
	case r.IsDraw:
		m.Outcome = domain.OutcomeDraw
	default:
		m.Outcome = domain.OutcomeUnresolved
	}

	if len(r.Segments) > 0 {
		m.ApplySegments(toDomainSegments(r.Segments))
	}
	for uuid, change := range r.EloChanges {
		m.EloChanges[uuid] = domain.EloChange{Change: change.Change, EloRate: change.EloRate}
	}
	return m
}

func toRecord(m *domain.Match) matchRecord {
	r := matchRecord{
		ID:               m.ID,
		AnalyzedUsername: m.AnalyzedUsername,
		Date:             m.Date,
		Timestamp:        m.Timestamp.Format(time.RFC3339),
		Category:         m.Category,
		Forfeited:        m.Forfeited,
		SeedID:           m.SeedID,
		SeedType:         m.SeedType,
		Season:           m.Season,
		MatchType:        m.MatchType,
		PlayerCount:      m.PlayerCount,
		WinnerTime:       m.WinnerTime,
		IsDraw:           m.Outcome == domain.OutcomeDraw,
		MatchTime:        m.MatchTime,
		UserCompleted:    m.UserCompleted,
		HasDetailedData:  m.HasDetailedData,
		Segments:         FromDomainSegments(m.Segments),
		EloChanges:       map[string]recordEloChange{},
	}
	if m.Winner != "" {
		winner := m.Winner
		r.Winner = &winner
	}
	if m.UserUUID != "" {
		uuid := m.UserUUID
		r.UserUUID = &uuid
	}
	if m.UserInfo != nil {
		r.UserInfo = &domain.RawPlayer{
			Nickname:  m.UserInfo.Nickname,
			UUID:      m.UserInfo.UUID,
			EloRate:   m.UserInfo.EloRate,
			EloChange: m.UserInfo.EloChange,
		}
	}
	switch m.Outcome {
	case domain.OutcomeWin:
		win := true
		r.IsUserWin = &win
	case domain.OutcomeLoss:
		win := false
		r.IsUserWin = &win
	}
	for _, p := range m.Players {
		rp := recordPlayer{Nickname: p.Nickname, EloRate: p.EloRate, EloChange: p.EloChange}
		if p.UUID != "" {
			uuid := p.UUID
			rp.UUID = &uuid
		}
		r.Players = append(r.Players, rp)
	}
	for uuid, change := range m.EloChanges {
		r.EloChanges[uuid] = recordEloChange{Change: change.Change, EloRate: change.EloRate}
	}
	return r
}

func toDomainSegments(times map[string]SegmentTimes) map[string]domain.Segment {
	segments := make(map[string]domain.Segment, len(times))
	for key, t := range times {
		segments[key] = domain.Segment{AbsoluteTime: t.AbsoluteTime, SplitTime: t.SplitTime}
	}
	return segments
}

func FromDomainSegments(segments map[string]domain.Segment) map[string]SegmentTimes {
	times := make(map[string]SegmentTimes, len(segments))
	for key, seg := range segments {
		times[key] = SegmentTimes{AbsoluteTime: seg.AbsoluteTime, SplitTime: seg.SplitTime}
	}
	return times
}

// LoadMatches decodes a match cache file. Two historical shapes are
// supported: raw API rows and precomputed record field-maps; a record row
// is recognized by its analyzed_username key. Returns false when no usable
// cache exists.
func (s *Store) LoadMatches(username string) ([]*domain.Match, bool) {
	raw, err := os.ReadFile(s.MatchPath(username))
	if err != nil {
		return nil, false
	}

	var rows []json.RawMessage
	if err := json.Unmarshal(raw, &rows); err != nil {
		s.logger.Warn().Err(err).Str("username", username).Msg("match cache is corrupt, ignoring")
		return nil, false
	}
	if len(rows) == 0 {
		return []*domain.Match{}, true
	}

	var probe map[string]json.RawMessage
	if err := json.Unmarshal(rows[0], &probe); err != nil {
		s.logger.Warn().Err(err).Str("username", username).Msg("match cache row is corrupt, ignoring")
		return nil, false
	}
	_, isRecordShape := probe["analyzed_username"]

	matches := make([]*domain.Match, 0, len(rows))
	for _, row := range rows {
		if isRecordShape {
			var record matchRecord
			if err := json.Unmarshal(row, &record); err != nil {
				s.logger.Warn().Err(err).Str("username", username).Msg("skipping undecodable cached record")
				continue
			}
			matches = append(matches, record.toDomain())
			continue
		}
		var rawMatch domain.RawMatch
		if err := json.Unmarshal(row, &rawMatch); err != nil {
			s.logger.Warn().Err(err).Str("username", username).Msg("skipping undecodable cached row")
			continue
		}
		matches = append(matches, domain.NewMatch(rawMatch, username))
	}
	return matches, true
}

// SaveMatches writes the record-shape cache. Disk errors are logged and
// swallowed; the in-memory result is unaffected.
func (s *Store) SaveMatches(username string, matches []*domain.Match) {
	records := make([]matchRecord, 0, len(matches))
	for _, m := range matches {
		records = append(records, toRecord(m))
	}
	raw, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		s.logger.Warn().Err(err).Str("username", username).Msg("failed to encode match cache")
		return
	}
	if err := os.WriteFile(s.MatchPath(username), raw, 0o644); err != nil {
		s.logger.Warn().Err(err).Str("username", username).Msg("failed to write match cache")
	}
}

// LoadSegments reads the segment cache, keyed by match id string.
func (s *Store) LoadSegments(username string) map[string]SegmentEntry {
	entries := map[string]SegmentEntry{}
	raw, err := os.ReadFile(s.SegmentPath(username))
	if err != nil {
		return entries
	}
	if err := json.Unmarshal(raw, &entries); err != nil {
		s.logger.Warn().Err(err).Str("username", username).Msg("segment cache is corrupt, ignoring")
		return map[string]SegmentEntry{}
	}
	return entries
}

func (s *Store) SaveSegments(username string, entries map[string]SegmentEntry) {
	raw, err := json.Marshal(entries)
	if err != nil {
		s.logger.Warn().Err(err).Str("username", username).Msg("failed to encode segment cache")
		return
	}
	if err := os.WriteFile(s.SegmentPath(username), raw, 0o644); err != nil {
		s.logger.Warn().Err(err).Str("username", username).Msg("failed to write segment cache")
	}
}

// Clear removes cached state for a user and reports how many files were
// deleted. Segment data is kept unless clearDetailed is set.
func (s *Store) Clear(username string, clearDetailed bool) int {
	paths := []string{s.MatchPath(username), s.RateLimitPath(username)}
	if clearDetailed {
		paths = append(paths, s.SegmentPath(username))
	}
	removed := 0
	for _, path := range paths {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := os.Remove(path); err != nil {
			s.logger.Warn().Err(err).Str("path", path).Msg("failed to remove cache file")
			continue
		}
		removed++
	}
	return removed
}

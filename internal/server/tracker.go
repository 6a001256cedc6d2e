// Package server exposes the tracker over a JSON HTTP API. Every handler
// resolves the target username from the path, acquires that user's
// repository through the manager (which serializes access), and maps domain
// records into response payloads.
package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"mcsr-tracker/internal/domain"
	"mcsr-tracker/internal/repository"
	"mcsr-tracker/internal/stats"

	"github.com/rs/zerolog"
)

type TrackerServer struct {
	manager *repository.Manager
	logger  zerolog.Logger
}

func NewTrackerServer(manager *repository.Manager, logger zerolog.Logger) *TrackerServer {
	return &TrackerServer{manager: manager, logger: logger}
}

// Handler builds the route table.
func (s *TrackerServer) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/v1/users/{username}/matches", s.GetMatches)
	mux.HandleFunc("POST /api/v1/users/{username}/segments", s.FetchSegments)
	mux.HandleFunc("GET /api/v1/users/{username}/stats", s.GetStats)
	mux.HandleFunc("GET /api/v1/users/{username}/breakdowns/{kind}", s.GetBreakdown)
	mux.HandleFunc("GET /api/v1/users/{username}/forecasts", s.GetForecasts)
	mux.HandleFunc("GET /api/v1/users/{username}/rate-limit", s.GetRateLimit)
	mux.HandleFunc("DELETE /api/v1/users/{username}/cache", s.ClearCache)

	return mux
}

// matchView is the wire form of a match record.
type matchView struct {
	ID            int64             `json:"id"`
	Date          int64             `json:"date"`
	Datetime      string            `json:"datetime"`
	Status        string            `json:"status"`
	Outcome       string            `json:"outcome"`
	Forfeited     bool              `json:"forfeited"`
	Season        int               `json:"season"`
	SeedType      string            `json:"seed_type"`
	MatchType     int               `json:"match_type"`
	PlayerCount   int               `json:"player_count"`
	Winner        string            `json:"winner,omitempty"`
	MatchTime     *int64            `json:"match_time"`
	TimeDisplay   string            `json:"time_display"`
	UserCompleted bool              `json:"user_completed"`
	EloRate       *int              `json:"elo_rate,omitempty"`
	EloChange     *int              `json:"elo_change,omitempty"`
	HasDetails    bool              `json:"has_detailed_data"`
	Segments      map[string]mcSegs `json:"segments,omitempty"`
}

type mcSegs struct {
	AbsoluteTime int64 `json:"absolute_time"`
	SplitTime    int64 `json:"split_time"`
}

func toMatchView(m *domain.Match) matchView {
	v := matchView{
		ID:            m.ID,
		Date:          m.Date,
		Datetime:      m.Timestamp.Format(time.RFC3339),
		Status:        m.Status(),
		Outcome:       m.Outcome.String(),
		Forfeited:     m.Forfeited,
		Season:        m.Season,
		SeedType:      m.SeedType,
		MatchType:     m.MatchType,
		PlayerCount:   m.PlayerCount,
		Winner:        m.Winner,
		MatchTime:     m.MatchTime,
		TimeDisplay:   m.TimeString(),
		UserCompleted: m.UserCompleted,
		EloRate:       m.UserEloRate(),
		EloChange:     m.UserEloChange(),
		HasDetails:    m.HasDetailedData,
	}
	if len(m.Segments) > 0 {
		v.Segments = make(map[string]mcSegs, len(m.Segments))
		for key, seg := range m.Segments {
			v.Segments[key] = mcSegs{AbsoluteTime: seg.AbsoluteTime, SplitTime: seg.SplitTime}
		}
	}
	return v
}

// GetMatches returns the (optionally refreshed and filtered) match list.
func (s *TrackerServer) GetMatches(w http.ResponseWriter, r *http.Request) {
	username := r.PathValue("username")
	query := r.URL.Query()

	refresh := queryBool(query.Get("refresh"))
	maxMatches := queryInt(query.Get("max"), 0)

	repo, release := s.manager.Acquire(username)
	matches, err := repo.FetchAll(r.Context(), !refresh, maxMatches)
	release()
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, err)
		return
	}

	filtered := stats.FilterMatches(matches, parseFilter(query))

	views := make([]matchView, 0, len(filtered))
	for _, m := range filtered {
		views = append(views, toMatchView(m))
	}

	writeJSON(w, r, http.StatusOK, map[string]any{
		"username": username,
		"total":    len(matches),
		"matches":  views,
	})
}

// FetchSegments pulls detail data for matches still missing it.
func (s *TrackerServer) FetchSegments(w http.ResponseWriter, r *http.Request) {
	username := r.PathValue("username")
	query := r.URL.Query()

	maxMatches := queryInt(query.Get("max"), 0)
	force := queryBool(query.Get("force"))

	repo, release := s.manager.Acquire(username)
	defer release()

	if _, err := repo.FetchAll(r.Context(), true, 0); err != nil {
		writeError(w, r, http.StatusInternalServerError, err)
		return
	}
	fetched, err := repo.FetchSegmentData(r.Context(), maxMatches, force)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, err)
		return
	}

	writeJSON(w, r, http.StatusOK, map[string]any{
		"username": username,
		"fetched":  fetched,
	})
}

// GetStats returns the headline summary plus outcome category counts.
func (s *TrackerServer) GetStats(w http.ResponseWriter, r *http.Request) {
	username := r.PathValue("username")

	matches, err := s.loadFiltered(r, username)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, err)
		return
	}

	categories := stats.CategorizeMatches(matches)
	writeJSON(w, r, http.StatusOK, map[string]any{
		"username": username,
		"basic":    stats.Basic(matches),
		"categories": map[string]int{
			"wins":             len(categories.Wins),
			"losses":           len(categories.Losses),
			"draws":            len(categories.Draws),
			"forfeits":         len(categories.Forfeits),
			"completions":      len(categories.Completions),
			"solo_completions": len(categories.SoloCompletions),
		},
		"completion_rate": stats.CompletionRate(matches),
	})
}

// GetBreakdown returns one of the grouped summaries: seasons, seed-types,
// segments or splits.
func (s *TrackerServer) GetBreakdown(w http.ResponseWriter, r *http.Request) {
	username := r.PathValue("username")
	kind := r.PathValue("kind")

	matches, err := s.loadFiltered(r, username)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, err)
		return
	}

	var breakdown any
	switch kind {
	case "seasons":
		breakdown = stats.SeasonBreakdown(matches)
	case "seed-types":
		breakdown = stats.SeedTypeBreakdown(matches)
	case "segments":
		breakdown = stats.SegmentBreakdown(matches)
	case "splits":
		breakdown = stats.SplitBreakdown(matches)
	default:
		http.Error(w, "unknown breakdown: "+kind, http.StatusNotFound)
		return
	}

	writeJSON(w, r, http.StatusOK, map[string]any{
		"username":  username,
		"kind":      kind,
		"breakdown": breakdown,
	})
}

// GetForecasts returns forecast results sorted fastest first.
func (s *TrackerServer) GetForecasts(w http.ResponseWriter, r *http.Request) {
	username := r.PathValue("username")
	query := r.URL.Query()

	window := queryInt(query.Get("window"), stats.DefaultRollingWindow)
	percentile := queryFloat(query.Get("percentile"), stats.DefaultForecastPercentile)

	matches, err := s.loadFiltered(r, username)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, err)
		return
	}

	results := stats.CreateForecastResults(matches, window, percentile)
	writeJSON(w, r, http.StatusOK, map[string]any{
		"username":   username,
		"window":     window,
		"percentile": percentile,
		"forecasts":  results,
	})
}

func (s *TrackerServer) GetRateLimit(w http.ResponseWriter, r *http.Request) {
	username := r.PathValue("username")

	repo, release := s.manager.Acquire(username)
	status := repo.RateLimitStatus()
	release()

	writeJSON(w, r, http.StatusOK, status)
}

// ClearCache removes the user's persisted files; detailed=true also drops
// the segment cache.
func (s *TrackerServer) ClearCache(w http.ResponseWriter, r *http.Request) {
	username := r.PathValue("username")
	clearDetailed := queryBool(r.URL.Query().Get("detailed"))

	repo, release := s.manager.Acquire(username)
	removed := repo.ClearUserData(clearDetailed)
	release()

	writeJSON(w, r, http.StatusOK, map[string]any{
		"username":      username,
		"files_removed": removed,
	})
}

// loadFiltered is the shared read path: cached fetch, then the query filter.
func (s *TrackerServer) loadFiltered(r *http.Request, username string) ([]*domain.Match, error) {
	repo, release := s.manager.Acquire(username)
	matches, err := repo.FetchAll(r.Context(), true, 0)
	release()
	if err != nil {
		return nil, err
	}
	return stats.FilterMatches(matches, parseFilter(r.URL.Query())), nil
}

// parseFilter maps query params onto a Filter; absent params keep the
// permissive defaults.
func parseFilter(query map[string][]string) stats.Filter {
	get := func(key string) string {
		if vs, ok := query[key]; ok && len(vs) > 0 {
			return vs[0]
		}
		return ""
	}

	f := stats.NewFilter()

	if v := get("completed_only"); v != "" {
		f.CompletedOnly = queryBool(v)
	}
	if v := get("include_draws"); v != "" {
		f.IncludeDraws = queryBool(v)
	}
	if v := get("include_forfeits"); v != "" {
		f.IncludeForfeits = queryBool(v)
	}
	if v := get("include_wins"); v != "" {
		f.IncludeWins = queryBool(v)
	}
	if v := get("include_losses"); v != "" {
		f.IncludeLosses = queryBool(v)
	}
	if v := get("include_private"); v != "" {
		f.IncludePrivateRooms = queryBool(v)
	}
	if v := get("require_time"); v != "" {
		f.RequireTime = queryBool(v)
	}
	if v := get("require_user"); v != "" {
		f.RequireUserIdentified = queryBool(v)
	}
	if v := get("detailed"); v != "" {
		b := queryBool(v)
		f.HasDetailedData = &b
	}
	if v := get("min_time"); v != "" {
		if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
			f.MinTimeMS = &ms
		}
	}
	if v := get("max_time"); v != "" {
		if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
			f.MaxTimeMS = &ms
		}
	}
	if v := get("match_types"); v != "" {
		for _, part := range strings.Split(v, ",") {
			if matchType, err := strconv.Atoi(strings.TrimSpace(part)); err == nil {
				f.MatchTypes = append(f.MatchTypes, matchType)
			}
		}
	}
	if v := get("max_players"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			f.MaxPlayerCount = &n
		}
	}
	if v := get("seasons"); v != "" {
		for _, part := range strings.Split(v, ",") {
			if season, err := strconv.Atoi(strings.TrimSpace(part)); err == nil {
				f.Seasons = append(f.Seasons, season)
			}
		}
	}
	if v := get("seed_types"); v != "" {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				f.SeedTypes = append(f.SeedTypes, part)
			}
		}
	}
	if v := get("date_from"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			f.DateFrom = &t
		}
	}
	if v := get("date_to"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			f.DateTo = &t
		}
	}
	if v := get("sort"); v != "" {
		f.SortBy = v
	}
	if v := get("desc"); v != "" {
		f.SortDescending = queryBool(v)
	}

	return f
}

func queryBool(v string) bool {
	b, err := strconv.ParseBool(v)
	return err == nil && b
}

func queryInt(v string, fallback int) int {
	if n, err := strconv.Atoi(v); err == nil {
		return n
	}
	return fallback
}

func queryFloat(v string, fallback float64) float64 {
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return f
	}
	return fallback
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("failed to encode response")
	}
}

func writeError(w http.ResponseWriter, r *http.Request, status int, err error) {
	zerolog.Ctx(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
	writeJSON(w, r, status, map[string]string{"error": err.Error()})
}

// Package stats contains the pure analysis layers: match filtering,
// statistical breakdowns and speedrun forecasting. Nothing here mutates a
// match record or performs I/O.
package stats

import (
	"sort"
	"time"

	"mcsr-tracker/internal/domain"
)

const (
	SortByDate   = "date"
	SortByTime   = "time"
	SortBySeason = "season"
)

// Filter is the predicate set applied to a match collection. Stages run in
// a fixed order (completion, time range, match type, categorical, date
// range) with AND semantics; an unset predicate is a no-op for its stage.
type Filter struct {
	CompletedOnly   bool
	UserCompleted   *bool
	IncludeWins     bool
	IncludeLosses   bool
	IncludeDraws    bool
	IncludeForfeits bool

	RequireTime bool
	MinTimeMS   *int64
	MaxTimeMS   *int64

	IncludePrivateRooms   bool
	MatchTypes            []int
	MaxPlayerCount        *int
	RequireUserIdentified bool
	HasDetailedData       *bool

	Seasons   []int
	SeedTypes []string

	DateFrom *time.Time
	DateTo   *time.Time

	SortBy         string
	SortDescending bool
}

// NewFilter returns the permissive default: every outcome class included,
// private rooms included, sorted by date descending.
func NewFilter() Filter {
	return Filter{
		IncludeWins:         true,
		IncludeLosses:       true,
		IncludeDraws:        true,
		IncludeForfeits:     true,
		IncludePrivateRooms: true,
		SortBy:              SortByDate,
		SortDescending:      true,
	}
}

// FilterMatches applies f to a snapshot copy of matches; the input slice
// and its records are never modified.
func FilterMatches(matches []*domain.Match, f Filter) []*domain.Match {
	filtered := make([]*domain.Match, len(matches))
	copy(filtered, matches)

	filtered = applyCompletionFilters(filtered, f)
	filtered = applyTimeFilters(filtered, f)
	filtered = applyMatchTypeFilters(filtered, f)
	filtered = applyCategoricalFilters(filtered, f)
	filtered = applyDateFilters(filtered, f)
	return sortMatches(filtered, f.SortBy, f.SortDescending)
}

// isCompletedRun reports whether the user genuinely finished this run:
// forfeit wins and draws do not count.
func isCompletedRun(m *domain.Match) bool {
	return m.UserCompleted && m.MatchTime != nil && m.Outcome != domain.OutcomeDraw && !m.Forfeited
}

func applyCompletionFilters(matches []*domain.Match, f Filter) []*domain.Match {
	filtered := matches

	if f.CompletedOnly {
		filtered = keep(filtered, isCompletedRun)
	}
	if f.UserCompleted != nil {
		filtered = keep(filtered, func(m *domain.Match) bool { return m.UserCompleted == *f.UserCompleted })
	}
	if !f.IncludeDraws {
		filtered = keep(filtered, func(m *domain.Match) bool { return m.Outcome != domain.OutcomeDraw })
	}
	if !f.IncludeForfeits {
		filtered = keep(filtered, func(m *domain.Match) bool { return !m.Forfeited })
	}
	if !f.IncludeWins {
		filtered = keep(filtered, func(m *domain.Match) bool { return m.Outcome != domain.OutcomeWin })
	}
	if !f.IncludeLosses {
		filtered = keep(filtered, func(m *domain.Match) bool { return m.Outcome != domain.OutcomeLoss })
	}
	return filtered
}

// Time bounds silently drop records with an unknown match time: a record
// without a time never satisfies a bound.
func applyTimeFilters(matches []*domain.Match, f Filter) []*domain.Match {
	filtered := matches

	if f.RequireTime {
		filtered = keep(filtered, func(m *domain.Match) bool { return m.MatchTime != nil })
	}
	if f.MinTimeMS != nil {
		filtered = keep(filtered, func(m *domain.Match) bool {
			return m.MatchTime != nil && *m.MatchTime >= *f.MinTimeMS
		})
	}
	if f.MaxTimeMS != nil {
		filtered = keep(filtered, func(m *domain.Match) bool {
			return m.MatchTime != nil && *m.MatchTime <= *f.MaxTimeMS
		})
	}
	return filtered
}

func applyMatchTypeFilters(matches []*domain.Match, f Filter) []*domain.Match {
	filtered := matches

	if !f.IncludePrivateRooms {
		filtered = keep(filtered, func(m *domain.Match) bool {
			return !(m.MatchType == 3 || m.PlayerCount > 2)
		})
	}
	if f.MatchTypes != nil {
		allowed := map[int]struct{}{}
		for _, t := range f.MatchTypes {
			allowed[t] = struct{}{}
		}
		filtered = keep(filtered, func(m *domain.Match) bool {
			_, ok := allowed[m.MatchType]
			return ok
		})
	}
	if f.MaxPlayerCount != nil {
		filtered = keep(filtered, func(m *domain.Match) bool { return m.PlayerCount <= *f.MaxPlayerCount })
	}
	if f.RequireUserIdentified {
		filtered = keep(filtered, func(m *domain.Match) bool {
			return m.UserUUID != "" || m.PlayerCount == 1
		})
	}
	if f.HasDetailedData != nil {
		filtered = keep(filtered, func(m *domain.Match) bool { return m.HasDetailedData == *f.HasDetailedData })
	}
	return filtered
}

func applyCategoricalFilters(matches []*domain.Match, f Filter) []*domain.Match {
	filtered := matches

	if f.Seasons != nil {
		allowed := map[int]struct{}{}
		for _, s := range f.Seasons {
			allowed[s] = struct{}{}
		}
		filtered = keep(filtered, func(m *domain.Match) bool {
			_, ok := allowed[m.Season]
			return ok
		})
	}
	if f.SeedTypes != nil {
		allowed := map[string]struct{}{}
		for _, s := range f.SeedTypes {
			allowed[s] = struct{}{}
		}
		filtered = keep(filtered, func(m *domain.Match) bool {
			_, ok := allowed[m.SeedType]
			return ok
		})
	}
	return filtered
}

func applyDateFilters(matches []*domain.Match, f Filter) []*domain.Match {
	filtered := matches

	if f.DateFrom != nil {
		filtered = keep(filtered, func(m *domain.Match) bool { return !m.Timestamp.Before(*f.DateFrom) })
	}
	if f.DateTo != nil {
		filtered = keep(filtered, func(m *domain.Match) bool { return !m.Timestamp.After(*f.DateTo) })
	}
	return filtered
}

func sortMatches(matches []*domain.Match, sortBy string, descending bool) []*domain.Match {
	switch sortBy {
	case SortByDate:
		sort.SliceStable(matches, func(i, j int) bool {
			if descending {
				return matches[i].Date > matches[j].Date
			}
			return matches[i].Date < matches[j].Date
		})
	case SortByTime:
		// Records with an unknown time sort last in either direction.
		sort.SliceStable(matches, func(i, j int) bool {
			a, b := matches[i].MatchTime, matches[j].MatchTime
			if a == nil {
				return false
			}
			if b == nil {
				return true
			}
			if descending {
				return *a > *b
			}
			return *a < *b
		})
	case SortBySeason:
		sort.SliceStable(matches, func(i, j int) bool {
			if descending {
				return matches[i].Season > matches[j].Season
			}
			return matches[i].Season < matches[j].Season
		})
	}
	return matches
}

func keep(matches []*domain.Match, pred func(*domain.Match) bool) []*domain.Match {
	out := matches[:0:len(matches)]
	for _, m := range matches {
		if pred(m) {
			out = append(out, m)
		}
	}
	return out
}

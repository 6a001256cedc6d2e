package stats

import (
	"mcsr-tracker/internal/domain"

	mstats "github.com/montanaflynn/stats"
)

// Summary is the five-statistic description of a sample of times.
type Summary struct {
	Count  int     `json:"matches"`
	Best   float64 `json:"best"`
	Worst  float64 `json:"worst"`
	Mean   float64 `json:"average"`
	Median float64 `json:"median"`
	StdDev float64 `json:"std_dev"`
}

func summarize(values []float64) Summary {
	s := Summary{Count: len(values)}
	if len(values) == 0 {
		return s
	}
	s.Best, _ = mstats.Min(values)
	s.Worst, _ = mstats.Max(values)
	s.Mean, _ = mstats.Mean(values)
	s.Median, _ = mstats.Median(values)
	// Sample standard deviation is 0 for a single-element group.
	if len(values) > 1 {
		s.StdDev, _ = mstats.StandardDeviationSample(values)
	}
	return s
}

// SeasonBreakdown groups completed runs by season.
func SeasonBreakdown(matches []*domain.Match) map[int]Summary {
	groups := map[int][]float64{}
	for _, m := range matches {
		if !isCompletedRun(m) {
			continue
		}
		groups[m.Season] = append(groups[m.Season], float64(*m.MatchTime))
	}

	breakdown := make(map[int]Summary, len(groups))
	for season, times := range groups {
		breakdown[season] = summarize(times)
	}
	return breakdown
}

// SeedTypeBreakdown groups completed runs by seed type.
func SeedTypeBreakdown(matches []*domain.Match) map[string]Summary {
	groups := map[string][]float64{}
	for _, m := range matches {
		if !isCompletedRun(m) {
			continue
		}
		groups[m.SeedType] = append(groups[m.SeedType], float64(*m.MatchTime))
	}

	breakdown := make(map[string]Summary, len(groups))
	for seedType, times := range groups {
		breakdown[seedType] = summarize(times)
	}
	return breakdown
}

// SegmentBreakdown summarizes absolute segment times across matches with
// detail data. game_end entries count only when the user actually finished
// the run.
func SegmentBreakdown(matches []*domain.Match) map[string]Summary {
	breakdown := map[string]Summary{}
	for _, key := range domain.SegmentOrder {
		var times []float64
		for _, m := range matches {
			seg, ok := m.Segments[key]
			if !ok {
				continue
			}
			if key == "game_end" && !m.UserCompleted {
				continue
			}
			times = append(times, float64(seg.AbsoluteTime))
		}
		if len(times) > 0 {
			breakdown[key] = summarize(times)
		}
	}
	return breakdown
}

// SplitBreakdown summarizes per-segment split times. In addition to the
// game_end rule, a draw or forfeit excludes its own last recorded segment:
// the player was still mid-segment when the match ended, so that partial
// duration is not a completed split.
func SplitBreakdown(matches []*domain.Match) map[string]Summary {
	breakdown := map[string]Summary{}
	for _, key := range domain.SegmentOrder {
		var splits []float64
		for _, m := range matches {
			seg, ok := m.Segments[key]
			if !ok {
				continue
			}
			if key == "game_end" && !m.UserCompleted {
				continue
			}
			if m.Outcome == domain.OutcomeDraw || m.Forfeited {
				if last, _, found := m.LastSegment(); found && last == key {
					continue
				}
			}
			splits = append(splits, float64(seg.SplitTime))
		}
		if len(splits) > 0 {
			breakdown[key] = summarize(splits)
		}
	}
	return breakdown
}

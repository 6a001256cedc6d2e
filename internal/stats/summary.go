package stats

import (
	mstats "github.com/montanaflynn/stats"

	"mcsr-tracker/internal/domain"
)

// Categories buckets a match collection by outcome class.
type Categories struct {
	Wins            []*domain.Match
	Losses          []*domain.Match
	Draws           []*domain.Match
	Forfeits        []*domain.Match
	Completions     []*domain.Match
	SoloCompletions []*domain.Match
}

func CategorizeMatches(matches []*domain.Match) Categories {
	var c Categories
	for _, m := range matches {
		switch m.Outcome {
		case domain.OutcomeWin:
			c.Wins = append(c.Wins, m)
		case domain.OutcomeLoss:
			c.Losses = append(c.Losses, m)
		case domain.OutcomeDraw:
			c.Draws = append(c.Draws, m)
		default:
			if m.Forfeited {
				c.Forfeits = append(c.Forfeits, m)
			}
		}
		if isCompletedRun(m) {
			c.Completions = append(c.Completions, m)
		}
		if m.PlayerCount == 1 && m.UserCompleted && !m.Forfeited {
			c.SoloCompletions = append(c.SoloCompletions, m)
		}
	}
	return c
}

// WinRate is wins over decided games; draws and unresolved matches are
// excluded from the denominator.
func WinRate(matches []*domain.Match) float64 {
	c := CategorizeMatches(matches)
	decided := len(c.Wins) + len(c.Losses)
	if decided == 0 {
		return 0
	}
	return float64(len(c.Wins)) / float64(decided)
}

func CompletionRate(matches []*domain.Match) float64 {
	if len(matches) == 0 {
		return 0
	}
	c := CategorizeMatches(matches)
	return float64(len(c.Completions)) / float64(len(matches))
}

// BasicStats is the headline summary for a match collection.
type BasicStats struct {
	TotalMatches int      `json:"total_matches"`
	Completed    int      `json:"completed"`
	BestTime     *int64   `json:"best_time"`
	AverageTime  *float64 `json:"average_time"`
	WinRate      float64  `json:"win_rate"`
}

func Basic(matches []*domain.Match) BasicStats {
	c := CategorizeMatches(matches)
	result := BasicStats{
		TotalMatches: len(matches),
		Completed:    len(c.Completions),
		WinRate:      WinRate(matches) * 100,
	}

	var times []float64
	for _, m := range c.Completions {
		times = append(times, float64(*m.MatchTime))
	}
	if len(times) > 0 {
		best, _ := mstats.Min(times)
		bestMS := int64(best)
		result.BestTime = &bestMS
		mean, _ := mstats.Mean(times)
		result.AverageTime = &mean
	}
	return result
}

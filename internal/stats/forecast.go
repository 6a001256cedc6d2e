package stats

import (
	"sort"

	"mcsr-tracker/internal/domain"
)

const (
	DefaultRollingWindow      = 20
	DefaultForecastPercentile = 50.0

	// Minimum historical samples before a segment percentile is trusted.
	minPercentileSamples = 3
)

// Forecaster estimates a finish time for an incomplete run from the
// player's own pace as it existed at the time of that run: only completed,
// detail-carrying matches strictly before the run's date feed the model,
// truncated to the most recent rolling-window of them.
type Forecaster struct {
	matches    []*domain.Match
	window     int
	percentile float64
}

func NewForecaster(matches []*domain.Match, window int, percentile float64) *Forecaster {
	sorted := make([]*domain.Match, len(matches))
	copy(sorted, matches)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Date < sorted[j].Date })

	if window <= 0 {
		window = DefaultRollingWindow
	}
	return &Forecaster{matches: sorted, window: window, percentile: percentile}
}

// Percentile computes the p-th percentile of values with linear
// interpolation between the two nearest ranks.
func Percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	n := len(sorted)
	if p <= 0 {
		return sorted[0]
	}
	if p >= 100 {
		return sorted[n-1]
	}

	index := (p / 100.0) * float64(n-1)
	lower := int(index)
	upper := lower + 1
	if upper > n-1 {
		upper = n - 1
	}
	if lower == upper {
		return sorted[lower]
	}
	weight := index - float64(lower)
	return sorted[lower]*(1-weight) + sorted[upper]*weight
}

func (f *Forecaster) indexOf(m *domain.Match) (int, bool) {
	for i, candidate := range f.matches {
		if candidate.ID == m.ID {
			return i, true
		}
	}
	return 0, false
}

// historicalWindow returns the completed, detail-carrying matches strictly
// before m's date, capped to the most recent window entries.
func (f *Forecaster) historicalWindow(m *domain.Match, upTo int) []*domain.Match {
	var history []*domain.Match
	for i := 0; i < upTo; i++ {
		h := f.matches[i]
		if h.UserCompleted && h.HasDetailedData && h.Date < m.Date {
			history = append(history, h)
		}
	}
	if len(history) > f.window {
		history = history[len(history)-f.window:]
	}
	return history
}

// rollingPercentiles computes the target-percentile absolute time for each
// segment with at least minPercentileSamples historical samples.
func (f *Forecaster) rollingPercentiles(m *domain.Match, upTo int) map[string]float64 {
	history := f.historicalWindow(m, upTo)

	percentiles := map[string]float64{}
	for _, segment := range domain.SegmentOrder {
		var times []float64
		for _, h := range history {
			if seg, ok := h.Segments[segment]; ok {
				times = append(times, float64(seg.AbsoluteTime))
			}
		}
		if len(times) >= minPercentileSamples {
			percentiles[segment] = Percentile(times, f.percentile)
		}
	}
	return percentiles
}

// historicalSplits collects positive historical split times for one
// segment, same window rules as rollingPercentiles.
func (f *Forecaster) historicalSplits(m *domain.Match, upTo int, segment string) []float64 {
	var splits []float64
	for i := 0; i < upTo; i++ {
		h := f.matches[i]
		if !h.UserCompleted || !h.HasDetailedData || h.Date >= m.Date {
			continue
		}
		if seg, ok := h.Segments[segment]; ok && seg.SplitTime > 0 {
			splits = append(splits, float64(seg.SplitTime))
		}
	}
	if len(splits) > f.window {
		splits = splits[len(splits)-f.window:]
	}
	return splits
}

// Forecast estimates the finish time for m in milliseconds. A completed run
// forecasts exactly its actual time. An incomplete run accumulates forward
// from its last reached segment using the rolling percentile absolute times;
// if any required remaining segment cannot be computed the run is
// un-forecastable and ok is false — no partial number is returned.
func (f *Forecaster) Forecast(m *domain.Match) (int64, bool) {
	if m.UserCompleted && m.MatchTime != nil {
		return *m.MatchTime, true
	}
	if !m.HasDetailedData || len(m.Segments) == 0 {
		return 0, false
	}

	index, ok := f.indexOf(m)
	if !ok {
		return 0, false
	}

	percentiles := f.rollingPercentiles(m, index)
	if len(percentiles) == 0 {
		return 0, false
	}

	lastSegment, currentTime, ok := m.LastSegment()
	if !ok {
		return 0, false
	}

	remaining := remainingSegments(lastSegment)
	if len(remaining) == 0 {
		return currentTime, true
	}

	forecast := float64(currentTime)
	for i, segment := range remaining {
		pct, ok := percentiles[segment]
		if !ok {
			return 0, false
		}

		if i == 0 {
			// First remaining segment: distance from the current
			// position to its percentile absolute time.
			if pct > float64(currentTime) {
				forecast += pct - float64(currentTime)
			}
			continue
		}

		prev := previousSegment(segment)
		if prev == "" {
			return 0, false
		}
		if prevPct, ok := percentiles[prev]; ok {
			if split := pct - prevPct; split > 0 {
				forecast += split
			}
			continue
		}

		// The previous segment had no percentile; fall back to the
		// percentile of historical split times for this segment.
		splits := f.historicalSplits(m, index, segment)
		if len(splits) == 0 {
			return 0, false
		}
		forecast += Percentile(splits, f.percentile)
	}

	return int64(forecast), true
}

func remainingSegments(lastSegment string) []string {
	for i, segment := range domain.SegmentOrder {
		if segment == lastSegment {
			return domain.SegmentOrder[i+1:]
		}
	}
	return nil
}

func previousSegment(segment string) string {
	for i, candidate := range domain.SegmentOrder {
		if candidate == segment {
			if i == 0 {
				return ""
			}
			return domain.SegmentOrder[i-1]
		}
	}
	return ""
}

// Breakdown is the diagnostic view of one forecast.
type Breakdown struct {
	Type                 string   `json:"type"`
	CurrentTime          int64    `json:"current_time"`
	ActualTime           *int64   `json:"actual_time,omitempty"`
	ForecastTime         int64    `json:"forecast_time"`
	SegmentsCompleted    []string `json:"segments_completed"`
	SegmentsForecasted   []string `json:"segments_forecasted"`
	LastCompletedSegment string   `json:"last_completed_segment,omitempty"`
	// Historical matches actually available, capped by the configured
	// window.
	RollingWindowUsed int `json:"rolling_window_used"`
}

// ForecastBreakdown explains how the forecast for m was built.
func (f *Forecaster) ForecastBreakdown(m *domain.Match) (*Breakdown, bool) {
	if m.UserCompleted && m.MatchTime != nil {
		var completed []string
		for _, segment := range domain.SegmentOrder {
			if _, ok := m.Segments[segment]; ok {
				completed = append(completed, segment)
			}
		}
		return &Breakdown{
			Type:               "completed",
			ActualTime:         m.MatchTime,
			ForecastTime:       *m.MatchTime,
			SegmentsCompleted:  completed,
			SegmentsForecasted: []string{},
		}, true
	}

	index, ok := f.indexOf(m)
	if !ok {
		return nil, false
	}

	forecast, ok := f.Forecast(m)
	if !ok {
		return nil, false
	}

	lastSegment, currentTime, ok := m.LastSegment()
	if !ok {
		return nil, false
	}

	percentiles := f.rollingPercentiles(m, index)

	var completed, forecasted []string
	reachedLast := false
	for _, segment := range domain.SegmentOrder {
		if !reachedLast {
			if _, ok := m.Segments[segment]; ok {
				completed = append(completed, segment)
			}
			if segment == lastSegment {
				reachedLast = true
			}
			continue
		}
		if _, ok := percentiles[segment]; ok {
			forecasted = append(forecasted, segment)
		}
	}

	return &Breakdown{
		Type:                 "forecasted",
		CurrentTime:          currentTime,
		ForecastTime:         forecast,
		SegmentsCompleted:    completed,
		SegmentsForecasted:   forecasted,
		LastCompletedSegment: lastSegment,
		RollingWindowUsed:    len(f.historicalWindow(m, index)),
	}, true
}

// ForecastResult pairs a match with its forecast for leaderboard-style
// listings.
type ForecastResult struct {
	Match        *domain.Match `json:"-"`
	MatchID      int64         `json:"match_id"`
	ForecastTime int64         `json:"forecast_time"`
	Breakdown    *Breakdown    `json:"breakdown"`
	IsCompleted  bool          `json:"is_completed"`
	ActualTime   *int64        `json:"actual_time,omitempty"`
}

// CreateForecastResults forecasts every candidate match, keeps the ones
// whose forecast or actual time could be computed, and sorts ascending by
// that time, fastest first.
func CreateForecastResults(matches []*domain.Match, window int, percentile float64) []ForecastResult {
	forecaster := NewForecaster(matches, window, percentile)

	var results []ForecastResult
	for _, m := range matches {
		forecast, ok := forecaster.Forecast(m)
		if !ok {
			continue
		}
		breakdown, _ := forecaster.ForecastBreakdown(m)
		result := ForecastResult{
			Match:        m,
			MatchID:      m.ID,
			ForecastTime: forecast,
			Breakdown:    breakdown,
			IsCompleted:  m.UserCompleted,
		}
		if m.UserCompleted {
			result.ActualTime = m.MatchTime
		}
		results = append(results, result)
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].ForecastTime < results[j].ForecastTime
	})
	return results
}

// Package repository produces the authoritative, de-duplicated match set
// for a username, from the MCSR Ranked API or the local cache.
package repository

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"time"

	"mcsr-tracker/internal/api"
	"mcsr-tracker/internal/cache"
	"mcsr-tracker/internal/constants"
	"mcsr-tracker/internal/domain"
	"mcsr-tracker/internal/ratelimit"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
	"github.com/sethvargo/go-retry"
)

// Timeline event types mapped into the segment vocabulary. end_enter and
// game_end have no known timeline event type; those keys exist in the
// vocabulary and in aggregation but are never filled by detail fetches.
var segmentEventTypes = map[string]string{
	"story.enter_the_nether":           "nether_enter",
	"nether.find_bastion":              "bastion_enter",
	"nether.find_fortress":             "fortress_enter",
	"projectelo.timeline.blind_travel": "blind_portal",
	"story.follow_ender_eye":           "stronghold_enter",
}

// MatchRepository synchronizes one user's match history. Methods are safe
// to call from a background worker but concurrent calls for the same
// username must be serialized externally (see Manager): the rate-limit
// ledger and the in-memory match set are not internally locked.
type MatchRepository struct {
	username string
	client   *api.MCSRClient
	store    *cache.Store
	limiter  *ratelimit.Limiter
	logger   zerolog.Logger

	matches []*domain.Match

	// Injectable for tests; production uses time.Sleep and the
	// constants cool-down.
	sleep    func(time.Duration)
	cooldown time.Duration
}

func NewMatchRepository(username string, client *api.MCSRClient, store *cache.Store, logger zerolog.Logger) *MatchRepository {
	limiter := ratelimit.New(constants.RateLimitMaxRequests, constants.RateLimitWindow)
	limiter.Load(store.RateLimitPath(username))

	return &MatchRepository{
		username: username,
		client:   client,
		store:    store,
		limiter:  limiter,
		logger:   logger.With().Str("username", username).Logger(),
		sleep:    time.Sleep,
		cooldown: constants.RateLimitCooldown,
	}
}

// Matches returns the current in-memory match set.
func (r *MatchRepository) Matches() []*domain.Match {
	return r.matches
}

func (r *MatchRepository) RateLimitStatus() ratelimit.Status {
	return r.limiter.Snapshot()
}

// FetchAll produces the match set for the user. With useCache and an
// existing cache it deserializes the persisted records and syncs
// incrementally on top of them, so the result is always a superset of the
// cache; with useCache and no cache, or without useCache, it performs a
// full refresh across every discovered season. maxMatches of 0 means no
// explicit cap.
//
// Transport and HTTP failures never surface as errors here: each page loop
// aborts gracefully and returns what was accumulated. The only error is a
// cancelled context, honored at page boundaries.
func (r *MatchRepository) FetchAll(ctx context.Context, useCache bool, maxMatches int) ([]*domain.Match, error) {
	syncID, _ := gonanoid.New()
	logger := r.logger.With().Str("sync_id", syncID).Logger()
	logger.Info().Bool("use_cache", useCache).Int("max_matches", maxMatches).Msg("fetching matches")

	if maxMatches <= 0 {
		maxMatches = constants.DefaultMaxMatches
	}

	var cached []*domain.Match
	haveCache := false
	if useCache {
		cached, haveCache = r.store.LoadMatches(r.username)
	}

	var err error
	if haveCache {
		r.matches, err = r.incrementalRefresh(ctx, logger, cached, maxMatches)
	} else {
		r.matches, err = r.fullRefresh(ctx, logger, maxMatches)
	}
	if err != nil {
		return r.matches, err
	}

	r.store.SaveMatches(r.username, r.matches)
	applied := r.applyCachedSegments()
	r.limiter.Save(r.store.RateLimitPath(r.username))

	logger.Info().Int("matches", len(r.matches)).Int("segments_applied", applied).Msg("fetch complete")
	return r.matches, nil
}

// fullRefresh discovers every season with data and pages through each one.
func (r *MatchRepository) fullRefresh(ctx context.Context, logger zerolog.Logger, maxMatches int) ([]*domain.Match, error) {
	seasons, err := r.discoverSeasons(ctx, logger)
	if err != nil {
		return nil, err
	}
	logger.Debug().Ints("seasons", seasons).Msg("season discovery complete")

	if len(seasons) == 0 {
		// No season had data; fall back to the current-season listing.
		rows, err := r.fetchSeasonRows(ctx, logger, 0, maxMatches)
		return r.toMatches(rows), err
	}

	var matches []*domain.Match
	for _, season := range seasons {
		rows, err := r.fetchSeasonRows(ctx, logger, season, constants.DefaultMaxMatches)
		matches = append(matches, r.toMatches(rows)...)
		if err != nil {
			return matches, err
		}
	}
	return matches, nil
}

// incrementalRefresh pages newest-first and stops on the first id already
// in the cache. Match ids are monotonic, so once a known id shows up no
// season older than the current one can hold anything new. The cached
// records are appended after the new ones, so the result is always a
// superset of the cache.
func (r *MatchRepository) incrementalRefresh(ctx context.Context, logger zerolog.Logger, cached []*domain.Match, maxMatches int) ([]*domain.Match, error) {
	existingIDs := make(map[int64]struct{}, len(cached))
	for _, m := range cached {
		existingIDs[m.ID] = struct{}{}
	}
	logger.Debug().Int("existing_ids", len(existingIDs)).Msg("starting incremental refresh")

	seasons, err := r.discoverSeasons(ctx, logger)
	if err != nil {
		return cached, err
	}
	if len(seasons) == 0 {
		rows, err := r.fetchSeasonRows(ctx, logger, 0, maxMatches)
		return append(r.toMatches(rows), cached...), err
	}

	// Newest season first.
	sort.Sort(sort.Reverse(sort.IntSlice(seasons)))

	var newMatches []*domain.Match
	total := 0

outer:
	for _, season := range seasons {
		before := int64(0)
		for {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return append(newMatches, cached...), ctxErr
			}

			rows, err := r.fetchPage(ctx, season, constants.PageSize, before)
			if err != nil {
				logger.Warn().Err(err).Int("season", season).Msg("page fetch failed, keeping accumulated matches")
				break outer
			}
			if len(rows) == 0 {
				break
			}

			for _, row := range rows {
				if _, known := existingIDs[row.ID]; known {
					logger.Debug().Int64("match_id", row.ID).Msg("reached known match, stopping incremental fetch")
					break outer
				}
				newMatches = append(newMatches, domain.NewMatch(row, r.username))
				total++
				if total >= maxMatches {
					logger.Debug().Int("max_matches", maxMatches).Msg("reached match cap")
					break outer
				}
			}

			before = rows[len(rows)-1].ID
			if len(rows) < constants.PageSize {
				break
			}
		}
	}

	logger.Info().Int("new_matches", len(newMatches)).Msg("incremental fetch complete")
	return append(newMatches, cached...), nil
}

// discoverSeasons probes each candidate season with a 1-row request.
func (r *MatchRepository) discoverSeasons(ctx context.Context, logger zerolog.Logger) ([]int, error) {
	var seasons []int
	for season := constants.SeasonProbeFirst; season <= constants.SeasonProbeLast; season++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return seasons, ctxErr
		}
		rows, err := r.fetchPage(ctx, season, 1, 0)
		if err != nil {
			logger.Debug().Err(err).Int("season", season).Msg("season probe failed")
			continue
		}
		if len(rows) > 0 {
			seasons = append(seasons, season)
		}
	}
	return seasons, nil
}

// fetchSeasonRows pages one season oldest cursor forward until exhausted
// or limit rows are collected.
func (r *MatchRepository) fetchSeasonRows(ctx context.Context, logger zerolog.Logger, season int, limit int) ([]domain.RawMatch, error) {
	var rows []domain.RawMatch
	before := int64(0)

	for len(rows) < limit {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return rows, ctxErr
		}

		count := constants.PageSize
		if remaining := limit - len(rows); remaining < count {
			count = remaining
		}

		page, err := r.fetchPage(ctx, season, count, before)
		if err != nil {
			logger.Warn().Err(err).Int("season", season).Int64("before", before).Msg("page fetch failed, keeping accumulated rows")
			return rows, nil
		}
		if len(page) == 0 {
			break
		}

		rows = append(rows, page...)
		before = page[len(page)-1].ID
		if len(page) < count {
			break
		}
	}

	return rows, nil
}

// fetchPage performs one rate-limited list request. HTTP 429 is retried on
// a fixed cool-down; any other failure is returned for the caller to abort
// its page loop.
func (r *MatchRepository) fetchPage(ctx context.Context, season int, count int, before int64) ([]domain.RawMatch, error) {
	r.waitForLimiter()

	var resp *api.MatchesResponse
	backoff := retry.WithMaxRetries(constants.RateLimitRetries, retry.NewConstant(r.cooldown))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		r.limiter.Record()
		var reqErr error
		resp, reqErr = r.client.ListMatches(ctx, r.username, season, count, before)
		if errors.Is(reqErr, api.ErrRateLimited) {
			return retry.RetryableError(reqErr)
		}
		return reqErr
	})
	if err != nil {
		return nil, err
	}
	return resp.Data, nil
}

func (r *MatchRepository) waitForLimiter() {
	if r.limiter.CanProceed() {
		return
	}
	if wait := r.limiter.WaitTime(); wait > 0 {
		r.logger.Debug().Dur("wait", wait).Msg("rate limit window full, waiting")
		r.sleep(wait)
	}
}

func (r *MatchRepository) toMatches(rows []domain.RawMatch) []*domain.Match {
	matches := make([]*domain.Match, 0, len(rows))
	for _, row := range rows {
		matches = append(matches, domain.NewMatch(row, r.username))
	}
	return matches
}

// applyCachedSegments installs persisted segment data on the loaded set.
func (r *MatchRepository) applyCachedSegments() int {
	entries := r.store.LoadSegments(r.username)
	if len(entries) == 0 {
		return 0
	}
	applied := 0
	for _, m := range r.matches {
		entry, ok := entries[strconv.FormatInt(m.ID, 10)]
		if !ok {
			continue
		}
		segments := make(map[string]domain.Segment, len(entry.Segments))
		for key, t := range entry.Segments {
			segments[key] = domain.Segment{AbsoluteTime: t.AbsoluteTime, SplitTime: t.SplitTime}
		}
		m.ApplySegments(segments)
		if m.HasDetailedData {
			applied++
		}
	}
	return applied
}

// FetchSegmentData pulls the per-match detail endpoint for up to maxMatches
// matches that still lack segment data, newest first, and persists the
// results in the segment cache. Returns how many matches were fetched.
func (r *MatchRepository) FetchSegmentData(ctx context.Context, maxMatches int, forceRefresh bool) (int, error) {
	if maxMatches <= 0 {
		maxMatches = constants.DefaultSegmentFetchLimit
	}

	syncID, _ := gonanoid.New()
	logger := r.logger.With().Str("sync_id", syncID).Logger()

	entries := r.store.LoadSegments(r.username)

	sorted := make([]*domain.Match, len(r.matches))
	copy(sorted, r.matches)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Date > sorted[j].Date })

	var toFetch []*domain.Match
	for _, m := range sorted {
		if len(toFetch) >= maxMatches {
			break
		}
		if _, cached := entries[strconv.FormatInt(m.ID, 10)]; forceRefresh || !cached {
			toFetch = append(toFetch, m)
		}
	}
	if len(toFetch) == 0 {
		return 0, nil
	}
	logger.Info().Int("matches", len(toFetch)).Bool("force_refresh", forceRefresh).Msg("fetching segment data")

	fetched := 0
	for _, m := range toFetch {
		if ctxErr := ctx.Err(); ctxErr != nil {
			break
		}

		detail, err := r.fetchDetail(ctx, m.ID)
		if err != nil {
			logger.Debug().Err(err).Int64("match_id", m.ID).Msg("detail fetch failed, skipping match")
			continue
		}

		segments := map[string]domain.Segment{}
		for _, event := range detail.Timelines {
			key, recognized := segmentEventTypes[event.Type]
			if !recognized || event.Time == nil || event.UUID != m.UserUUID {
				continue
			}
			segments[key] = domain.Segment{AbsoluteTime: *event.Time}
		}
		m.ApplySegments(segments)

		m.EloChanges = map[string]domain.EloChange{}
		for _, change := range detail.Changes {
			if change.UUID == "" {
				continue
			}
			m.EloChanges[change.UUID] = domain.EloChange{Change: change.Change, EloRate: change.EloRate}
		}

		entries[strconv.FormatInt(m.ID, 10)] = cache.SegmentEntry{
			Segments:  cache.FromDomainSegments(m.Segments),
			FetchedAt: float64(time.Now().UnixNano()) / float64(time.Second),
		}
		fetched++
	}

	r.store.SaveSegments(r.username, entries)
	r.limiter.Save(r.store.RateLimitPath(r.username))

	logger.Info().Int("fetched", fetched).Msg("segment fetch complete")
	return fetched, nil
}

func (r *MatchRepository) fetchDetail(ctx context.Context, matchID int64) (*api.MatchDetail, error) {
	r.waitForLimiter()

	var resp *api.MatchDetailResponse
	backoff := retry.WithMaxRetries(constants.RateLimitRetries, retry.NewConstant(r.cooldown))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		r.limiter.Record()
		var reqErr error
		resp, reqErr = r.client.GetMatchDetail(ctx, matchID)
		if errors.Is(reqErr, api.ErrRateLimited) {
			return retry.RetryableError(reqErr)
		}
		return reqErr
	})
	if err != nil {
		return nil, err
	}
	return &resp.Data, nil
}

// ClearUserData removes cached state for the user and resets the in-memory
// set. Returns the number of files removed.
func (r *MatchRepository) ClearUserData(clearDetailed bool) int {
	removed := r.store.Clear(r.username, clearDetailed)
	r.matches = nil
	return removed
}

// Package api is the HTTP client for the MCSR Ranked API.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"mcsr-tracker/internal/config"
	"mcsr-tracker/internal/constants"
	"mcsr-tracker/internal/domain"

	"github.com/valyala/fasthttp"
	"golang.org/x/time/rate"
)

// ErrRateLimited is returned on HTTP 429 so callers can apply the fixed
// cool-down and retry the same page.
var ErrRateLimited = errors.New("rate limited by API")

type MCSRClient struct {
	baseURL string
	client  *fasthttp.Client

	// Courtesy pacing between consecutive requests, separate from the
	// sliding-window admission control in internal/ratelimit.
	pacer *rate.Limiter
}

func NewMCSRClient(cfg *config.Config) *MCSRClient {
	return &MCSRClient{
		baseURL: cfg.APIBaseURL,
		client: &fasthttp.Client{
			MaxConnsPerHost:     100,
			ReadTimeout:         10 * time.Second,
			WriteTimeout:        10 * time.Second,
			MaxIdleConnDuration: 1 * time.Minute,
		},
		pacer: rate.NewLimiter(rate.Every(constants.RequestPaceInterval), 1),
	}
}

type MatchesResponse struct {
	Data []domain.RawMatch `json:"data"`
}

type MatchDetailResponse struct {
	Data MatchDetail `json:"data"`
}

type MatchDetail struct {
	Timelines []TimelineEvent `json:"timelines"`
	Changes   []EloChangeRow  `json:"changes"`
}

type TimelineEvent struct {
	Type string `json:"type"`
	Time *int64 `json:"time"`
	UUID string `json:"uuid"`
}

type EloChangeRow struct {
	UUID    string `json:"uuid"`
	Change  *int   `json:"change"`
	EloRate *int   `json:"eloRate"`
}

// ListMatches pages the user match list. A zero season means the current
// season; a zero before means the newest page.
func (c *MCSRClient) ListMatches(ctx context.Context, username string, season int, count int, before int64) (*MatchesResponse, error) {
	url := fmt.Sprintf("%s/users/%s/matches?count=%d", c.baseURL, username, count)
	if season > 0 {
		url += fmt.Sprintf("&season=%d", season)
	}
	if before > 0 {
		url += fmt.Sprintf("&before=%d", before)
	}
	return doRequest[MatchesResponse](ctx, c, url)
}

// GetMatchDetail fetches the per-match detail endpoint with timelines and
// elo changes.
func (c *MCSRClient) GetMatchDetail(ctx context.Context, matchID int64) (*MatchDetailResponse, error) {
	url := fmt.Sprintf("%s/matches/%d", c.baseURL, matchID)
	return doRequest[MatchDetailResponse](ctx, c, url)
}

func doRequest[T any](ctx context.Context, client *MCSRClient, url string) (*T, error) {
	if err := client.pacer.Wait(ctx); err != nil {
		return nil, err
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(url)
	req.Header.SetMethod(fasthttp.MethodGet)

	deadline, ok := ctx.Deadline()
	if ok {
		if err := client.client.DoDeadline(req, resp, deadline); err != nil {
			return nil, err
		}
	} else {
		if err := client.client.Do(req, resp); err != nil {
			return nil, err
		}
	}

	if resp.StatusCode() == fasthttp.StatusTooManyRequests {
		return nil, ErrRateLimited
	}
	if resp.StatusCode() != fasthttp.StatusOK {
		return nil, fmt.Errorf("API error: %d", resp.StatusCode())
	}

	var result T
	if err := json.Unmarshal(resp.Body(), &result); err != nil {
		return nil, err
	}
	return &result, nil
}

package rerank

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sort"
	"strings"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	apperrors "recommend-workers/internal/common/errors"
	httpclient "recommend-workers/internal/common/http"
	"recommend-workers/internal/common/logger"
	"recommend-workers/internal/common/metrics"
	"recommend-workers/internal/models"
	"recommend-workers/internal/recommendation/scoring"
)

const (
	breakerName        = "genai-rerank"
	generatePath       = "/api/ai/generate"
	maxExplained       = 5
	maxPromptTags      = 10
	maxDescriptionLen  = 200
	breakerMinRequests = 5
	breakerFailRatio   = 0.6
)

var errRateLimited = errors.New("rerank rate limit exceeded")

type LLMConfig struct {
	BaseURL     string
	APIKey      string
	Model       string
	Timeout     time.Duration
	MaxTokens   int
	Temperature float64
	RatePerSec  float64
	Burst       int
	// BreakerTimeout is how long the breaker stays open before probing again.
	BreakerTimeout time.Duration
}

// LLMRanker asks a language model to order candidates and explain the top
// picks. Calls are single-shot: no retries, bounded by Timeout, guarded by a
// circuit breaker and a rate limiter.
type LLMRanker struct {
	cfg           LLMConfig
	client        *httpclient.Client
	deterministic *DeterministicRanker
	breaker       *gobreaker.CircuitBreaker[[]llmEntry]
	limiter       *rate.Limiter
	logger        logger.Logger
}

type llmEntry struct {
	ObjectIndex       int     `json:"object_index"`
	PersonalizedScore float64 `json:"personalized_score"`
	Hook              string  `json:"hook"`
	WhyYoullLike      string  `json:"why_youll_like"`
	FriendCallout     string  `json:"friend_callout"`
	Caveats           string  `json:"caveats"`
}

type generateRequest struct {
	Prompt      string  `json:"prompt"`
	Model       string  `json:"model,omitempty"`
	MaxTokens   int     `json:"max_tokens"`
	Temperature float64 `json:"temperature"`
}

type generateResponse struct {
	Text string `json:"text"`
}

func NewLLMRanker(cfg LLMConfig, scorer *scoring.Scorer, log logger.Logger) *LLMRanker {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 8 * time.Second
	}
	if cfg.BreakerTimeout <= 0 {
		cfg.BreakerTimeout = 30 * time.Second
	}

	limit := rate.Inf
	if cfg.RatePerSec > 0 {
		limit = rate.Limit(cfg.RatePerSec)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}

	client := httpclient.NewClient(cfg.Timeout)
	if cfg.APIKey != "" {
		client.WithHeader("Authorization", "Bearer "+cfg.APIKey)
	}

	log = logger.ForComponent(log, "llm-ranker")
	metrics.CircuitBreakerState.WithLabelValues(breakerName).Set(0)

	breaker := gobreaker.NewCircuitBreaker[[]llmEntry](gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < breakerMinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= breakerFailRatio
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("Circuit breaker state change", map[string]interface{}{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			})
			metrics.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
		},
	})

	return &LLMRanker{
		cfg:           cfg,
		client:        client,
		deterministic: NewDeterministicRanker(scorer),
		breaker:       breaker,
		limiter:       rate.NewLimiter(limit, burst),
		logger:        log,
	}
}

func (l *LLMRanker) Name() string { return "llm" }

func (l *LLMRanker) Rank(ctx context.Context, req Request) ([]models.RankedResult, error) {
	if len(req.Candidates) == 0 {
		return []models.RankedResult{}, nil
	}
	if !l.limiter.Allow() {
		return nil, apperrors.NewLLMRerankFailedError(errRateLimited)
	}

	ctx, cancel := context.WithTimeout(ctx, l.cfg.Timeout)
	defer cancel()

	prompt := BuildPrompt(req)
	start := time.Now()

	entries, err := l.breaker.Execute(func() ([]llmEntry, error) {
		return l.call(ctx, prompt, len(req.Candidates))
	})
	if err != nil {
		return nil, classify(ctx, err)
	}

	results := l.assemble(req, entries)
	l.logger.Info("LLM rerank completed", map[string]interface{}{
		"candidates": len(req.Candidates),
		"ranked":     len(entries),
		"durationMs": time.Since(start).Milliseconds(),
	})
	return results, nil
}

func (l *LLMRanker) call(ctx context.Context, prompt string, n int) ([]llmEntry, error) {
	body := generateRequest{
		Prompt:      prompt,
		Model:       l.cfg.Model,
		MaxTokens:   l.cfg.MaxTokens,
		Temperature: l.cfg.Temperature,
	}

	var resp generateResponse
	url := strings.TrimRight(l.cfg.BaseURL, "/") + generatePath
	if err := l.client.PostJSON(ctx, url, body, &resp); err != nil {
		return nil, err
	}

	entries, err := parseEntries(resp.Text, n)
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// assemble orders model entries by score and appends candidates the model
// left out, scored deterministically, in input order.
func (l *LLMRanker) assemble(req Request, entries []llmEntry) []models.RankedResult {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].PersonalizedScore > entries[j].PersonalizedScore
	})

	explain := explainedCount(req.Signals.Context.Mode, len(req.Candidates))
	used := make(map[int]bool, len(entries))
	results := make([]models.RankedResult, 0, len(req.Candidates))

	for i, e := range entries {
		c := req.Candidates[e.ObjectIndex-1]
		used[e.ObjectIndex] = true
		r := models.RankedResult{
			Object:            c,
			PersonalizedScore: e.PersonalizedScore,
		}
		if i < explain {
			r.Explanation = e.explanation(c)
		}
		results = append(results, r)
	}

	for i, c := range req.Candidates {
		if used[i+1] {
			continue
		}
		results = append(results, l.deterministic.result(c, req.Signals))
	}

	assignRanks(results)
	return results
}

func (e llmEntry) explanation(c models.Candidate) *models.Explanation {
	if e.Hook == "" && e.WhyYoullLike == "" && e.FriendCallout == "" && e.Caveats == "" {
		return nil
	}
	exp := &models.Explanation{
		Hook:          e.Hook,
		WhyYoullLike:  e.WhyYoullLike,
		FriendCallout: e.FriendCallout,
		Caveats:       e.Caveats,
		Tags:          c.Tags,
	}
	if len(c.ExternalRatings) > 0 {
		exp.DetailedRatings = make(map[string]float64, len(c.ExternalRatings))
		for _, r := range c.ExternalRatings {
			exp.DetailedRatings[r.Source] = r.Score
		}
	}
	return exp
}

// parseEntries decodes a model reply into usable entries. Code fences are
// stripped, entries with an out-of-range or repeated object_index are skipped,
// and scores are clamped to [0,10]. It fails when nothing usable remains.
func parseEntries(text string, n int) ([]llmEntry, error) {
	payload := stripCodeFence(text)

	var raw []llmEntry
	if err := json.Unmarshal([]byte(payload), &raw); err != nil {
		start, end := strings.Index(payload, "["), strings.LastIndex(payload, "]")
		if start < 0 || end <= start {
			return nil, apperrors.NewLLMResponseMalformedError(err.Error())
		}
		if err := json.Unmarshal([]byte(payload[start:end+1]), &raw); err != nil {
			return nil, apperrors.NewLLMResponseMalformedError(err.Error())
		}
	}

	seen := make(map[int]bool, len(raw))
	entries := make([]llmEntry, 0, len(raw))
	for _, e := range raw {
		if e.ObjectIndex < 1 || e.ObjectIndex > n || seen[e.ObjectIndex] {
			continue
		}
		seen[e.ObjectIndex] = true
		e.PersonalizedScore = clampScore(e.PersonalizedScore)
		entries = append(entries, e)
	}

	if len(entries) == 0 {
		return nil, apperrors.NewLLMResponseMalformedError(fmt.Sprintf("no usable entries in %d returned", len(raw)))
	}
	return entries, nil
}

func stripCodeFence(text string) string {
	s := strings.TrimSpace(text)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	if nl := strings.Index(s, "\n"); nl >= 0 {
		s = s[nl+1:]
	} else {
		s = strings.TrimPrefix(s, "```")
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

func classify(ctx context.Context, err error) error {
	var stdErr *apperrors.StandardError
	if errors.As(err, &stdErr) {
		return stdErr
	}
	if errors.Is(err, context.DeadlineExceeded) || ctx.Err() == context.DeadlineExceeded {
		return apperrors.NewLLMTimeoutError()
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return apperrors.NewLLMTimeoutError()
	}
	return apperrors.NewLLMRerankFailedError(err)
}

func explainedCount(mode models.Mode, n int) int {
	if mode == models.ModeDecide {
		return 1
	}
	if n < maxExplained {
		return n
	}
	return maxExplained
}

func clampScore(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 10:
		return 10
	}
	return v
}

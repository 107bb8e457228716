package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/feedback-search/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/feedback-search/internal/feedback"
	"github.com/Adithya-Monish-Kumar-K/feedback-search/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/feedback-search/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/feedback-search/internal/searcher/query"
	apperrors "github.com/Adithya-Monish-Kumar-K/feedback-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/feedback-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/feedback-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/feedback-search/pkg/middleware"
)

type Searcher interface {
	Search(ctx context.Context, root *query.Node, params query.Params) (*executor.SearchResult, error)
}

type Config struct {
	DefaultLimit int
	MaxResults   int
	// ExpandByDefault applies when the request has no expand parameter.
	ExpandByDefault bool
}

// Handler serves search requests. The expansion model, cache, collector and
// metrics are optional.
type Handler struct {
	searcher  Searcher
	expansion feedback.ExpansionModel
	cache     *cache.QueryCache
	collector *analytics.Collector
	metrics   *metrics.Metrics
	cfg       Config
	logger    *slog.Logger
}

func New(
	searcher Searcher,
	expansion feedback.ExpansionModel,
	queryCache *cache.QueryCache,
	collector *analytics.Collector,
	m *metrics.Metrics,
	cfg Config,
) *Handler {
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = 10
	}
	if cfg.MaxResults < cfg.DefaultLimit {
		cfg.MaxResults = cfg.DefaultLimit
	}
	return &Handler{
		searcher:  searcher,
		expansion: expansion,
		cache:     queryCache,
		collector: collector,
		metrics:   m,
		cfg:       cfg,
		logger:    slog.Default().With("component", "search-handler"),
	}
}

// Search serves GET /api/v1/search?q=&limit=&expand=&fbDocs=&fbTerm=&fbOrigWeight=.
// A recoverable expansion failure falls back to the original query.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	log := logger.FromContext(ctx)
	values := r.URL.Query()

	raw := strings.TrimSpace(values.Get("q"))
	if raw == "" {
		h.writeError(w, http.StatusBadRequest, "query parameter 'q' is required")
		return
	}

	limit := h.cfg.DefaultLimit
	if limitStr := values.Get("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed < 1 {
			h.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(parsed, h.cfg.MaxResults)
	}

	expand := h.cfg.ExpandByDefault
	if expandStr := values.Get("expand"); expandStr != "" {
		parsed, err := strconv.ParseBool(expandStr)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "expand must be a boolean")
			return
		}
		expand = parsed
	}

	root, err := query.Parse(strings.ToLower(raw))
	if err != nil {
		h.writeError(w, apperrors.HTTPStatusCode(err), err.Error())
		return
	}
	params, err := requestParams(values, limit)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	final := root
	var expansion *feedback.Result
	if expand && h.expansion != nil {
		expStart := time.Now()
		expansion = h.expansion.Expand(ctx, root, params)
		h.trackExpansion(ctx, raw, expansion, time.Since(expStart))
		switch {
		case expansion.OK():
			final = expansion.Query
		case expansion.Recoverable():
			log.Info("expansion failed, using original query",
				"query", raw,
				"failed_at", expansion.FailedAt.String(),
				"error", expansion.Err,
			)
		default:
			log.Error("expansion failed", "query", raw, "error", expansion.Err)
			h.writeError(w, apperrors.HTTPStatusCode(expansion.Err), "search failed")
			return
		}
	}

	compute := func() (*executor.SearchResult, error) {
		res, err := h.searcher.Search(ctx, final, params)
		if err != nil {
			return nil, err
		}
		if expansion != nil && expansion.OK() {
			res.Expanded = true
			res.ExpansionTerms = expansion.Terms
		}
		return res, nil
	}

	var result *executor.SearchResult
	cacheHit := false
	if h.cache != nil {
		result, cacheHit, err = h.cache.GetOrCompute(ctx, final.String(), params, compute)
	} else {
		result, err = compute()
	}
	if err != nil {
		log.Error("search execution failed", "query", raw, "error", err)
		if h.metrics != nil {
			h.metrics.SearchQueriesTotal.WithLabelValues("error").Inc()
		}
		h.writeError(w, apperrors.HTTPStatusCode(err), "search failed")
		return
	}

	latency := time.Since(start)
	log.Info("search completed",
		"query", raw,
		"expanded", result.Expanded,
		"total_hits", result.TotalHits,
		"returned", len(result.Results),
		"cache_hit", cacheHit,
		"latency_ms", latency.Milliseconds(),
	)
	h.observeSearch(result, cacheHit, latency)
	if h.collector != nil {
		eventType := analytics.EventSearch
		if result.TotalHits == 0 {
			eventType = analytics.EventZeroResult
		}
		h.collector.Track(analytics.SearchEvent{
			Type:      eventType,
			Query:     raw,
			Terms:     final.Terms(),
			TotalHits: result.TotalHits,
			Returned:  len(result.Results),
			LatencyMs: latency.Milliseconds(),
			CacheHit:  cacheHit,
			Expanded:  result.Expanded,
			Timestamp: time.Now().UTC(),
			RequestID: middleware.GetRequestID(ctx),
		})
	}

	h.writeJSON(w, http.StatusOK, result)
}

// requestParams builds the query parameters from the request. requested is
// the result limit.
func requestParams(values url.Values, limit int) (query.Params, error) {
	params := query.Params{query.ParamRequested: float64(limit)}
	for _, key := range []string{query.ParamFbDocs, query.ParamFbTerm, query.ParamFbOrigWeight, query.ParamMu} {
		s := values.Get(key)
		if s == "" {
			continue
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("%s must be a number", key)
		}
		params[key] = v
	}
	return params, nil
}

func (h *Handler) trackExpansion(ctx context.Context, raw string, res *feedback.Result, latency time.Duration) {
	event := analytics.NewExpansionEvent("", middleware.GetRequestID(ctx), raw, res, latency)
	if h.metrics != nil {
		reason := ""
		if event.Outcome == analytics.OutcomeFellBack {
			reason = event.FailedAt
		}
		h.metrics.ObserveExpansion(event.Outcome, reason, event.Iterations, latency.Seconds())
	}
	if h.collector != nil {
		h.collector.TrackExpansion(event)
	}
}

func (h *Handler) observeSearch(result *executor.SearchResult, cacheHit bool, latency time.Duration) {
	if h.metrics == nil {
		return
	}
	resultType := "hit"
	if result.TotalHits == 0 {
		resultType = "zero_result"
	}
	cacheStatus := "miss"
	if cacheHit {
		cacheStatus = "hit"
		h.metrics.CacheHitsTotal.Inc()
	} else if h.cache != nil {
		h.metrics.CacheMissesTotal.Inc()
	}
	h.metrics.SearchQueriesTotal.WithLabelValues(resultType).Inc()
	h.metrics.SearchLatency.WithLabelValues(cacheStatus).Observe(latency.Seconds())
	h.metrics.SearchResultsCount.Observe(float64(len(result.Results)))
}

func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}

	hits, misses := h.cache.Stats()
	total := hits + misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(hits) / float64(total) * 100
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"hits":     hits,
		"misses":   misses,
		"total":    total,
		"hit_rate": fmt.Sprintf("%.1f%%", hitRate),
	})
}

func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeError(w, http.StatusServiceUnavailable, "caching is disabled")
		return
	}

	if err := h.cache.Invalidate(r.Context()); err != nil {
		h.logger.Error("cache invalidation failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "cache invalidation failed")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]string{"status": "invalidated"})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}

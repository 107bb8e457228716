package analytics

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
)

const maxTermsLimit = 500

// Handler serves read-only views of an Aggregator.
type Handler struct {
	aggregator *Aggregator
	logger     *slog.Logger
}

func NewHandler(aggregator *Aggregator) *Handler {
	return &Handler{
		aggregator: aggregator,
		logger:     slog.Default().With("component", "analytics-handler"),
	}
}

// ExpansionSummary is the body of GET /api/v1/analytics/expansions.
type ExpansionSummary struct {
	Total           int64            `json:"total"`
	Expanded        int64            `json:"expanded"`
	FellBack        int64            `json:"fell_back"`
	FallbackRate    float64          `json:"fallback_rate"`
	NonConverged    int64            `json:"non_converged"`
	FailuresByState map[string]int64 `json:"failures_by_state"`
	AvgIterations   float64          `json:"avg_iterations"`
	TopTerms        []QueryCount     `json:"top_terms"`
}

// Stats serves GET /api/v1/analytics.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	h.write(w, http.StatusOK, h.aggregator.Stats())
}

// Expansions serves GET /api/v1/analytics/expansions.
func (h *Handler) Expansions(w http.ResponseWriter, r *http.Request) {
	s := h.aggregator.Stats()
	sum := ExpansionSummary{
		Total:           s.TotalExpansions,
		Expanded:        s.Expanded,
		FellBack:        s.FellBack,
		NonConverged:    s.NonConverged,
		FailuresByState: s.FailuresByState,
		AvgIterations:   s.AvgIterations,
		TopTerms:        s.TopExpansionTerms,
	}
	if s.TotalExpansions > 0 {
		sum.FallbackRate = float64(s.FellBack) / float64(s.TotalExpansions)
	}
	h.write(w, http.StatusOK, sum)
}

// Terms serves GET /api/v1/analytics/terms?limit=N, the feedback terms
// most often added to queries.
func (h *Handler) Terms(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			h.write(w, http.StatusBadRequest, map[string]string{"error": "limit must be a positive integer"})
			return
		}
		limit = min(n, maxTermsLimit)
	}
	h.write(w, http.StatusOK, map[string]any{"terms": h.aggregator.TopTerms(limit)})
}

func (h *Handler) write(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("failed to write analytics response", "error", err)
	}
}

package rest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/nnvector/ivfcoord/pkg/ivf"
	"github.com/nnvector/ivfcoord/pkg/observability"
)

// searcher is the subset of ivf.Coordinator/ivf.CachedCoordinator the
// handler depends on, so either can be wired in without the handler caring
// which.
type searcher interface {
	Search(queries [][]float32, params ivf.SearchParams) (*ivf.SearchResult, error)
}

// cacheReporter is implemented by *ivf.CachedCoordinator. A Handler wired
// against a plain *ivf.Coordinator simply omits cache stats.
type cacheReporter interface {
	CacheStats() (hits, misses int64, size int, hitRate float64)
}

// poolReporter is implemented by *ivf.Coordinator (and promoted through
// *ivf.CachedCoordinator's embedding). A Handler wired against a searcher
// that implements neither simply omits pool/partition stats.
type poolReporter interface {
	PoolState() (state string, numWorkers int)
	PartitionCount() int
}

// SearchDefaults fills in SearchParams fields a caller omits from a request
// body, sourced from the Coordinator's own configuration.
type SearchDefaults struct {
	Nprobe          int
	BatchedScan     bool
	OverfetchFactor int
}

// Handler serves the coordinator's search surface over HTTP, in-process:
// there is no wire protocol between this handler and the Coordinator, only
// a Go function call.
type Handler struct {
	coordinator searcher
	defaults    SearchDefaults
	metrics     *observability.Metrics
	logger      *observability.Logger
	startedAt   time.Time
}

// NewHandler creates a new REST API handler around coord.
func NewHandler(coord searcher, defaults SearchDefaults, metrics *observability.Metrics, logger *observability.Logger) *Handler {
	return &Handler{
		coordinator: coord,
		defaults:    defaults,
		metrics:     metrics,
		logger:      logger,
		startedAt:   time.Now(),
	}
}

// searchRequest is the wire shape of POST /v1/search.
type searchRequest struct {
	Queries         [][]float32 `json:"queries"`
	K               int         `json:"k"`
	Nprobe          int         `json:"nprobe,omitempty"`
	BatchedScan     bool        `json:"batched_scan,omitempty"`
	FilterColumn    string      `json:"filter_column,omitempty"`
	FilterOp        string      `json:"filter_op,omitempty"`
	FilterValue     any         `json:"filter_value,omitempty"`
	Filtering       string      `json:"filtering,omitempty"` // "none" | "pre" | "post"
	OverfetchFactor int         `json:"overfetch_factor,omitempty"`
}

// searchResponse is the wire shape of a successful POST /v1/search.
type searchResponse struct {
	IDs           [][]int64   `json:"ids"`
	Distances     [][]float32 `json:"distances"`
	ForcedBatched bool        `json:"forced_batched"`
	TimingMS      timingMS    `json:"timing_ms"`
}

type timingMS struct {
	Total           float64 `json:"total"`
	JobEnqueue      float64 `json:"job_enqueue"`
	JobWait         float64 `json:"job_wait"`
	BufferInit      float64 `json:"buffer_init"`
	ResultAggregate float64 `json:"result_aggregate"`
}

func toTimingMS(t ivf.TimingInfo) timingMS {
	return timingMS{
		Total:           t.Total.Seconds() * 1000,
		JobEnqueue:      t.JobEnqueue.Seconds() * 1000,
		JobWait:         t.JobWait.Seconds() * 1000,
		BufferInit:      t.BufferInit.Seconds() * 1000,
		ResultAggregate: t.ResultAggregate.Seconds() * 1000,
	}
}

func parseFiltering(s string) ivf.FilteringType {
	switch s {
	case "pre":
		return ivf.FilterPre
	case "post":
		return ivf.FilterPost
	default:
		return ivf.FilterNone
	}
}

// Search handles POST /v1/search.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}

	nprobe := req.Nprobe
	if nprobe <= 0 {
		nprobe = h.defaults.Nprobe
	}
	batchedScan := req.BatchedScan || h.defaults.BatchedScan
	overfetch := req.OverfetchFactor
	if overfetch <= 0 {
		overfetch = h.defaults.OverfetchFactor
	}

	params := ivf.SearchParams{
		K:               req.K,
		Nprobe:          nprobe,
		BatchedScan:     batchedScan,
		FilterColumn:    req.FilterColumn,
		FilterOp:        req.FilterOp,
		FilterValue:     req.FilterValue,
		FilteringType:   parseFiltering(req.Filtering),
		OverfetchFactor: overfetch,
	}

	start := time.Now()
	result, err := h.coordinator.Search(req.Queries, params)
	duration := time.Since(start)

	if err != nil {
		status := http.StatusInternalServerError
		kind, ok := ivf.KindOf(err)
		if ok {
			switch kind {
			case ivf.ErrInvalidInput:
				status = http.StatusBadRequest
			case ivf.ErrInvalidState:
				status = http.StatusConflict
			case ivf.ErrCancelled:
				status = http.StatusServiceUnavailable
			}
		}
		if h.metrics != nil {
			errKind := "unknown"
			if ok {
				errKind = kind.String()
			}
			h.metrics.RecordError("Search", errKind)
			h.metrics.RecordRequest("Search", "error", duration)
		}
		if h.logger != nil {
			h.logger.Error("search failed", map[string]interface{}{"error": err.Error()})
		}
		writeError(w, err.Error(), status)
		return
	}

	if h.metrics != nil {
		resultSize := 0
		for _, row := range result.IDs {
			for _, id := range row {
				if id != -1 {
					resultSize++
				}
			}
		}
		h.metrics.RecordSearch(duration, len(req.Queries), resultSize, 0, nprobe, result.ForcedBatched)
		h.metrics.RecordRequest("Search", "success", duration)
	}

	resp := searchResponse{
		IDs:           result.IDs,
		Distances:     result.Distances,
		ForcedBatched: result.ForcedBatched,
		TimingMS:      toTimingMS(result.Timing),
	}
	writeJSON(w, resp, http.StatusOK)
}

// healthResponse is the wire shape of GET /v1/health.
type healthResponse struct {
	Status   string `json:"status"`
	UptimeMS int64  `json:"uptime_ms"`
}

// HealthCheck handles GET /v1/health.
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, healthResponse{
		Status:   "ok",
		UptimeMS: time.Since(h.startedAt).Milliseconds(),
	}, http.StatusOK)
}

// statsResponse is the wire shape of GET /v1/stats.
type statsResponse struct {
	UptimeMS       int64       `json:"uptime_ms"`
	Cache          *cacheStats `json:"cache,omitempty"`
	PoolState      string      `json:"pool_state,omitempty"`
	NumWorkers     int         `json:"num_workers,omitempty"`
	PartitionCount int         `json:"partition_count,omitempty"`
}

type cacheStats struct {
	Hits    int64   `json:"hits"`
	Misses  int64   `json:"misses"`
	Size    int     `json:"size"`
	HitRate float64 `json:"hit_rate"`
}

// GetStats handles GET /v1/stats.
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	resp := statsResponse{UptimeMS: time.Since(h.startedAt).Milliseconds()}
	if reporter, ok := h.coordinator.(cacheReporter); ok {
		hits, misses, size, hitRate := reporter.CacheStats()
		resp.Cache = &cacheStats{Hits: hits, Misses: misses, Size: size, HitRate: hitRate}
		if h.metrics != nil {
			h.metrics.UpdateCacheSize(size)
		}
	}
	if reporter, ok := h.coordinator.(poolReporter); ok {
		state, numWorkers := reporter.PoolState()
		resp.PoolState = state
		resp.NumWorkers = numWorkers
		resp.PartitionCount = reporter.PartitionCount()
		if h.metrics != nil {
			h.metrics.UpdateWorkerPoolSize(numWorkers)
		}
	}
	writeJSON(w, resp, http.StatusOK)
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, fmt.Sprintf("failed to encode response: %v", err), http.StatusInternalServerError)
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"error":  message,
		"status": statusCode,
	})
}

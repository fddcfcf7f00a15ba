// Package httpapi exposes merklesentry's operator-facing HTTP surface: a
// service descriptor, health checks at varying depth, cache maintenance,
// and a manual build trigger. Handler and JSON-helper style is grounded on
// the chi-based services in the accordsai-contractlane pack example (the
// teacher carries no HTTP layer of its own), simplified to this service's
// single JSON-in/JSON-out surface.
package httpapi

import (
	"encoding/json"
	"net/http"
	"runtime"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/quietridge/merklesentry/internal/apperr"
	"github.com/quietridge/merklesentry/internal/cache"
	"github.com/quietridge/merklesentry/internal/logging"
	"github.com/quietridge/merklesentry/internal/orchestrator"
	"github.com/quietridge/merklesentry/internal/scheduler"
	"github.com/quietridge/merklesentry/internal/storage"
)

const version = "1.0.0"

// Deps are the collaborators the HTTP surface reads from. It never mutates
// build state except via Scheduler.Trigger on the manual-build route.
type Deps struct {
	Environment string
	Backend     storage.Backend
	Cache       *cache.Cache
	Scheduler   *scheduler.Scheduler
	Orchestrator *orchestrator.Orchestrator
	Log         *logging.Component
}

// NewRouter builds the chi router for the external interface in
// SPEC_FULL.md §6.
func NewRouter(deps Deps) *chi.Mux {
	r := chi.NewRouter()
	h := &handler{deps: deps, startedAt: time.Now()}

	r.Get("/", h.descriptor)
	r.Get("/health", h.health)
	r.Get("/health/status", h.healthStatus)
	r.Get("/health/cache", h.healthCache)
	r.Post("/health/cache/clear", h.cacheClear)
	r.Post("/health/cache/warmup", h.cacheWarmup)
	r.Post("/health/build", h.manualBuild)

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error":   "not_found",
			"message": "no such route",
		})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error":   "not_found",
			"message": "no such route",
		})
	})

	return r
}

type handler struct {
	deps      Deps
	startedAt time.Time
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeError renders err as a JSON {error, message} body, suppressing the
// underlying message outside development per SPEC_FULL.md §7.
func (h *handler) writeError(w http.ResponseWriter, status int, kind string, err error) {
	message := "internal error"
	if h.deps.Environment == "development" {
		message = err.Error()
	}
	writeJSON(w, status, map[string]string{"error": kind, "message": message})
}

func (h *handler) descriptor(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"name":    "merklesentry",
		"version": version,
		"status":  "running",
		"features": map[string]interface{}{
			"cacheEnabled":   h.deps.Cache.Enabled(),
			"cacheConnected": h.deps.Cache.Healthy(),
			"backendVariant": backendVariant(h.deps.Backend),
		},
		"endpoints": map[string]string{
			"health":       "GET /health",
			"healthStatus": "GET /health/status",
			"healthCache":  "GET /health/cache",
			"cacheClear":   "POST /health/cache/clear",
			"cacheWarmup":  "POST /health/cache/warmup",
			"manualBuild":  "POST /health/build",
		},
	})
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()

	backendStatus := h.deps.Backend.TestConnection(ctx)
	cacheHealthy := h.deps.Cache.Healthy()
	schedHealth := h.deps.Scheduler.Health()
	lastBuild := h.deps.Orchestrator.LastBuildStatus()

	stats, statsErr := h.deps.Backend.Stats(ctx)
	checks := map[string]interface{}{
		"backend":   checkResult(backendStatus.Connected, backendStatus.Error),
		"cache":     checkResult(cacheHealthy, cacheWarning(h.deps.Cache)),
		"scheduler": checkResult(schedHealth.Healthy, ""),
		"treeBuilder": checkResult(lastBuild.Success || lastBuild.Timestamp.IsZero(), lastBuild.Error),
		"fileSystem":  checkResult(lastBuild.ErrorKind != string(apperr.KindIO), lastBuild.Error),
	}

	// Cache being down is a warning, not a reason to fail overall health.
	overallHealthy := backendStatus.Connected && schedHealth.Healthy

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	body := map[string]interface{}{
		"status":          healthLabel(overallHealthy),
		"checks":          checks,
		"lastBuild":       lastBuild,
		"backendStats":    stats,
		"responseTimeMs":  time.Since(start).Milliseconds(),
		"memoryAllocMiB":  memStats.Alloc / (1024 * 1024),
		"uptimeSeconds":   int(time.Since(h.startedAt).Seconds()),
	}
	if statsErr != nil {
		body["backendStatsError"] = statsErr.Error()
	}

	status := http.StatusOK
	if !overallHealthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, body)
}

func (h *handler) healthStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	recent, err := h.deps.Backend.GetRecentRoots(ctx, 5)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, string(apperr.KindIO), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"scheduler":    h.deps.Scheduler.Health(),
		"lastBuild":    h.deps.Orchestrator.LastBuildStatus(),
		"backend":      h.deps.Backend.TestConnection(ctx),
		"cache":        cacheSummary(h.deps.Cache),
		"recentRoots":  recent,
	})
}

func (h *handler) healthCache(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	keys := h.deps.Cache.ListKeys(ctx)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"enabled":   h.deps.Cache.Enabled(),
		"connected": h.deps.Cache.Healthy(),
		"keyCount":  len(keys),
		"keys":      keys,
	})
}

func (h *handler) cacheClear(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	n := h.deps.Cache.Invalidate(ctx, cache.KeyLatestRoot+"*")
	n += h.deps.Cache.Invalidate(ctx, "merkle:*")
	writeJSON(w, http.StatusOK, map[string]interface{}{"invalidated": n})
}

func (h *handler) cacheWarmup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	hash, ok, err := h.deps.Backend.GetLatestRootHash(ctx)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, string(apperr.KindIO), err)
		return
	}
	if !ok {
		writeJSON(w, http.StatusOK, map[string]interface{}{"warmed": false, "reason": "no committed root"})
		return
	}
	h.deps.Cache.SetLatestRoot(ctx, hash)

	recent, err := h.deps.Backend.GetRecentRoots(ctx, 5)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, string(apperr.KindIO), err)
		return
	}
	for _, rec := range recent {
		h.deps.Cache.SetTreeMetadata(ctx, rec.RootHash, cache.TreeMetadata{
			ItemCount:  rec.ItemCount,
			SourcePath: rec.SourcePath,
			CreatedAt:  rec.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"warmed": true, "rootHash": hash, "metadataCount": len(recent)})
}

func (h *handler) manualBuild(w http.ResponseWriter, r *http.Request) {
	err := h.deps.Scheduler.Trigger(r.Context())
	if err == nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"triggered": true,
			"lastBuild": h.deps.Orchestrator.LastBuildStatus(),
		})
		return
	}
	if apperr.Is(err, apperr.KindBusy) {
		h.writeError(w, http.StatusConflict, string(apperr.KindBusy), err)
		return
	}
	h.writeError(w, http.StatusInternalServerError, string(apperr.KindIO), err)
}

func checkResult(ok bool, detail string) map[string]interface{} {
	m := map[string]interface{}{"healthy": ok}
	if detail != "" {
		m["detail"] = detail
	}
	return m
}

func cacheWarning(c *cache.Cache) string {
	if c.Healthy() || !c.Enabled() {
		return ""
	}
	return "cache tier unreachable; serving from backend"
}

func cacheSummary(c *cache.Cache) map[string]interface{} {
	return map[string]interface{}{
		"enabled":   c.Enabled(),
		"connected": c.Healthy(),
	}
}

func healthLabel(ok bool) string {
	if ok {
		return "healthy"
	}
	return "unhealthy"
}

func backendVariant(b storage.Backend) string {
	switch b.(type) {
	case *storage.Relational:
		return string(storage.VariantRelational)
	case *storage.ObjectStore:
		return string(storage.VariantObjectStore)
	default:
		return "unknown"
	}
}

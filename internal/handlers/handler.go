package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"servicepulse/internal/config"
	"servicepulse/internal/health"
	"servicepulse/internal/models"
	"servicepulse/internal/scheduler"
	"servicepulse/internal/snapshot"
	"servicepulse/internal/store"
)

// Handler exposes the monitoring core over HTTP.
type Handler struct {
	store  store.Store
	sched  *scheduler.Scheduler
	board  *snapshot.Board
	uptime *health.UptimeCalculator
}

func New(st store.Store, sched *scheduler.Scheduler, board *snapshot.Board) *Handler {
	return &Handler{
		store:  st,
		sched:  sched,
		board:  board,
		uptime: health.NewUptimeCalculator(st),
	}
}

// Routes mounts the API under the given router.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/status", h.GetStatus)
	r.Get("/stats", h.GetStats)

	r.Route("/services", func(r chi.Router) {
		r.Get("/", h.ListServices)
		r.Post("/", h.CreateService)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.GetService)
			r.Put("/", h.UpdateService)
			r.Delete("/", h.DeleteService)
			r.Post("/toggle", h.ToggleService)
			r.Post("/check", h.CheckNow)
			r.Get("/results", h.ListResults)
			r.Get("/uptime", h.GetUptime)
		})
	})
}

// GetStatus serves the latest snapshot without touching the database.
func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.board.Current())
}

func (h *Handler) ListServices(w http.ResponseWriter, r *http.Request) {
	services, err := h.store.ListServices(r.Context())
	if err != nil {
		log.Printf("list services failed: %v", err)
		writeError(w, http.StatusInternalServerError, "list services failed")
		return
	}
	writeJSON(w, http.StatusOK, services)
}

func (h *Handler) GetService(w http.ResponseWriter, r *http.Request) {
	svc, ok := h.fetchService(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, svc)
}

type serviceRequest struct {
	Name            *string        `json:"name"`
	Description     *string        `json:"description"`
	Type            *string        `json:"type"`
	Target          *string        `json:"target"`
	Config          map[string]any `json:"config"`
	IntervalSeconds *int           `json:"interval_seconds"`
	TimeoutSeconds  *int           `json:"timeout_seconds"`
	Tags            []string       `json:"tags"`
	GroupName       *string        `json:"group_name"`
}

func (h *Handler) CreateService(w http.ResponseWriter, r *http.Request) {
	var req serviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == nil || strings.TrimSpace(*req.Name) == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	if req.Type == nil || !models.ServiceType(*req.Type).Valid() {
		writeError(w, http.StatusBadRequest, "invalid service type")
		return
	}
	if req.Target == nil || strings.TrimSpace(*req.Target) == "" {
		writeError(w, http.StatusBadRequest, "target is required")
		return
	}

	now := time.Now().UTC()
	svc := &models.Service{
		ID:              uuid.New(),
		Name:            strings.TrimSpace(*req.Name),
		Type:            models.ServiceType(*req.Type),
		Target:          strings.TrimSpace(*req.Target),
		Config:          req.Config,
		IntervalSeconds: 60,
		TimeoutSeconds:  30,
		Status:          models.StatusUnknown,
		IsActive:        true,
		Tags:            req.Tags,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if req.Description != nil {
		svc.Description = *req.Description
	}
	if req.GroupName != nil {
		svc.GroupName = *req.GroupName
	}
	if req.IntervalSeconds != nil {
		svc.IntervalSeconds = *req.IntervalSeconds
	}
	if req.TimeoutSeconds != nil {
		svc.TimeoutSeconds = *req.TimeoutSeconds
	}
	if msg := validateSchedule(svc); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	if err := h.store.SaveService(r.Context(), svc); err != nil {
		log.Printf("create service failed: %v", err)
		writeError(w, http.StatusInternalServerError, "create service failed")
		return
	}
	h.board.Update(svc)
	writeJSON(w, http.StatusCreated, svc)
}

func (h *Handler) UpdateService(w http.ResponseWriter, r *http.Request) {
	svc, ok := h.fetchService(w, r)
	if !ok {
		return
	}

	var req serviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Name != nil && strings.TrimSpace(*req.Name) != "" {
		svc.Name = strings.TrimSpace(*req.Name)
	}
	if req.Description != nil {
		svc.Description = *req.Description
	}
	if req.Type != nil {
		if !models.ServiceType(*req.Type).Valid() {
			writeError(w, http.StatusBadRequest, "invalid service type")
			return
		}
		svc.Type = models.ServiceType(*req.Type)
	}
	if req.Target != nil && strings.TrimSpace(*req.Target) != "" {
		svc.Target = strings.TrimSpace(*req.Target)
	}
	if req.Config != nil {
		svc.Config = req.Config
	}
	if req.IntervalSeconds != nil {
		svc.IntervalSeconds = *req.IntervalSeconds
	}
	if req.TimeoutSeconds != nil {
		svc.TimeoutSeconds = *req.TimeoutSeconds
	}
	if req.Tags != nil {
		svc.Tags = req.Tags
	}
	if req.GroupName != nil {
		svc.GroupName = *req.GroupName
	}
	if msg := validateSchedule(svc); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}
	svc.UpdatedAt = time.Now().UTC()

	if err := h.store.SaveService(r.Context(), svc); err != nil {
		log.Printf("update service failed: %v", err)
		writeError(w, http.StatusInternalServerError, "update service failed")
		return
	}
	h.board.Update(svc)
	writeJSON(w, http.StatusOK, svc)
}

func (h *Handler) DeleteService(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	if err := h.store.DeleteService(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "service not found")
			return
		}
		log.Printf("delete service failed: %v", err)
		writeError(w, http.StatusInternalServerError, "delete service failed")
		return
	}
	h.board.Remove(id)
	w.WriteHeader(http.StatusNoContent)
}

// ToggleService pauses or resumes monitoring. Deactivating forces paused;
// reactivating resets to unknown until the next check decides.
func (h *Handler) ToggleService(w http.ResponseWriter, r *http.Request) {
	svc, ok := h.fetchService(w, r)
	if !ok {
		return
	}

	var req struct {
		IsActive bool `json:"is_active"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	svc.IsActive = req.IsActive
	if req.IsActive {
		svc.Status = models.StatusUnknown
	} else {
		svc.Status = models.StatusPaused
	}
	svc.UpdatedAt = time.Now().UTC()

	if err := h.store.SaveService(r.Context(), svc); err != nil {
		log.Printf("toggle service failed: %v", err)
		writeError(w, http.StatusInternalServerError, "toggle service failed")
		return
	}
	h.board.Update(svc)
	writeJSON(w, http.StatusOK, svc)
}

// CheckNow triggers a synchronous check and returns its result.
func (h *Handler) CheckNow(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	result, err := h.sched.RunCheckNow(r.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			writeError(w, http.StatusNotFound, "service not found")
		case errors.Is(err, scheduler.ErrServiceInactive):
			writeError(w, http.StatusConflict, "service is not active")
		default:
			log.Printf("manual check failed: %v", err)
			writeError(w, http.StatusInternalServerError, "check failed")
		}
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) ListResults(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}

	results, err := h.store.ListCheckResults(r.Context(), id, limit)
	if err != nil {
		log.Printf("list results failed: %v", err)
		writeError(w, http.StatusInternalServerError, "list results failed")
		return
	}
	if results == nil {
		results = []*models.CheckResult{}
	}
	writeJSON(w, http.StatusOK, results)
}

// GetUptime reports the healthy-check ratio over a sliding window
// (default 24h).
func (h *Handler) GetUptime(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	window := health.DefaultUptimeWindow
	if raw := strings.TrimSpace(r.URL.Query().Get("window")); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			writeError(w, http.StatusBadRequest, "invalid window duration")
			return
		}
		window = d
	}

	pct, err := h.uptime.Compute(r.Context(), id, window)
	if err != nil {
		log.Printf("uptime query failed: %v", err)
		writeError(w, http.StatusInternalServerError, "uptime query failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"service_id":   id.String(),
		"window":       window.String(),
		"uptime_pct":   pct,
		"generated_at": time.Now().UTC().Format(time.RFC3339),
	})
}

// GetStats aggregates dashboard counters across all services.
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	services, err := h.store.ListServices(r.Context())
	if err != nil {
		log.Printf("stats query failed: %v", err)
		writeError(w, http.StatusInternalServerError, "stats query failed")
		return
	}

	now := time.Now().UTC()
	statusCounts := make(map[string]int)
	var due int
	var latencySum float64
	var latencyCount int

	for _, svc := range services {
		statusCounts[string(svc.Status)]++
		if svc.IsActive && svc.Status != models.StatusPaused && !svc.DueAt().After(now) {
			due++
		}
		if svc.LastCheckAt != nil {
			latencySum += svc.LastResponseTimeMS
			latencyCount++
		}
	}

	var avgLatency any
	if latencyCount > 0 {
		avgLatency = latencySum / float64(latencyCount)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"total_services":       len(services),
		"status_counts":        statusCounts,
		"services_due":         due,
		"avg_response_time_ms": avgLatency,
	})
}

func (h *Handler) fetchService(w http.ResponseWriter, r *http.Request) (*models.Service, bool) {
	id, ok := parseID(w, r)
	if !ok {
		return nil, false
	}
	svc, err := h.store.GetService(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "service not found")
		} else {
			log.Printf("get service failed: %v", err)
			writeError(w, http.StatusInternalServerError, "get service failed")
		}
		return nil, false
	}
	return svc, true
}

func parseID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid service id")
		return uuid.Nil, false
	}
	return id, true
}

func validateSchedule(svc *models.Service) string {
	if svc.IntervalSeconds < config.MinIntervalSeconds {
		return "interval_seconds must be >= " + strconv.Itoa(config.MinIntervalSeconds)
	}
	if svc.TimeoutSeconds < config.MinTimeoutSeconds {
		return "timeout_seconds must be >= " + strconv.Itoa(config.MinTimeoutSeconds)
	}
	return ""
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("encode response failed: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

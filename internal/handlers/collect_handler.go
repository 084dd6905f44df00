package handlers

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/tracklight-systems/tracklight/internal/batcher"
	"github.com/tracklight-systems/tracklight/internal/logging"
)

// CollectHandler receives event submissions from page beacons and feeds the
// batching manager. The endpoint always answers success for well-formed
// requests; telemetry intake must never surface pipeline errors to clients.
type CollectHandler struct {
	manager *batcher.Manager
	logger  *logging.Logger
}

func NewCollectHandler(manager *batcher.Manager, logger *logging.Logger) *CollectHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &CollectHandler{
		manager: manager,
		logger:  logger,
	}
}

// HandleCollect accepts a single submission object or an array of
// submissions.
func (h *CollectHandler) HandleCollect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.sendError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.sendError(w, "invalid body", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	if len(body) == 0 {
		h.sendError(w, "no data", http.StatusBadRequest)
		return
	}

	var subs []batcher.Submission
	if err := json.Unmarshal(body, &subs); err != nil {
		var single batcher.Submission
		if err := json.Unmarshal(body, &single); err != nil {
			h.sendError(w, "invalid event", http.StatusBadRequest)
			return
		}
		subs = append(subs, single)
	}

	if ua := r.Header.Get("User-Agent"); ua != "" {
		for i := range subs {
			if subs[i].UserAgent == "" {
				subs[i].UserAgent = ua
			}
		}
	}

	for _, sub := range subs {
		h.manager.TrackEvent(r.Context(), sub)
	}

	h.sendSuccess(w, len(subs))
}

// Health reports liveness.
func (h *CollectHandler) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"status": "healthy",
	})
}

// Ready reports readiness.
func (h *CollectHandler) Ready(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"status": "ready",
	})
}

func (h *CollectHandler) sendSuccess(w http.ResponseWriter, accepted int) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status":   "ok",
		"accepted": accepted,
	})
}

func (h *CollectHandler) sendError(w http.ResponseWriter, message string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{
		"status":  "error",
		"message": message,
	})
}

package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/scrypster/luminaries/internal/events"
	"github.com/scrypster/luminaries/internal/identity"
	"github.com/scrypster/luminaries/internal/logging"
	"github.com/scrypster/luminaries/internal/storage"
	"github.com/scrypster/luminaries/pkg/types"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 1 << 20

// Publisher accepts trigger events. *events.Bus implements it.
type Publisher interface {
	Publish(ctx context.Context, ev events.PersonEvent) error
}

// QueueSizeGetter reports the enrichment queue depth.
type QueueSizeGetter interface {
	QueueLength() int
}

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	Error   string                 `json:"error"`
	Code    string                 `json:"code"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// APIHandlers serves the JSON API.
type APIHandlers struct {
	store    storage.Store
	bus      Publisher
	resolver *identity.Resolver
	queue    QueueSizeGetter
}

// NewAPIHandlers creates the handlers. resolver and queue may be nil.
func NewAPIHandlers(store storage.Store, bus Publisher, resolver *identity.Resolver, queue QueueSizeGetter) *APIHandlers {
	return &APIHandlers{store: store, bus: bus, resolver: resolver, queue: queue}
}

// PublishEvent handles POST /api/events. The run happens asynchronously;
// progress is pushed over /ws.
func (h *APIHandlers) PublishEvent(w http.ResponseWriter, r *http.Request) {
	var ev events.PersonEvent
	if err := decodeBody(w, r, &ev); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if err := ev.Validate(); err != nil {
		respondError(w, http.StatusBadRequest, "invalid event", err)
		return
	}
	if _, err := h.store.GetPerson(r.Context(), ev.PersonID); err != nil {
		respondStoreError(w, err)
		return
	}
	if err := h.bus.Publish(r.Context(), ev); err != nil {
		respondError(w, http.StatusServiceUnavailable, "event not accepted", err)
		return
	}
	respondJSON(w, http.StatusAccepted, map[string]string{
		"status":    "accepted",
		"person_id": ev.PersonID,
		"event":     string(ev.Event),
	})
}

// Resolve handles GET /api/resolve?q=name.
func (h *APIHandlers) Resolve(w http.ResponseWriter, r *http.Request) {
	if h.resolver == nil {
		respondError(w, http.StatusServiceUnavailable, "identity resolution is not configured", nil)
		return
	}
	res, err := h.resolver.Resolve(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

type createPersonRequest struct {
	IdentityKey string `json:"identity_key"`
}

// CreatePerson handles POST /api/persons. It confirms a knowledge-base
// candidate and publishes person/created for a new row, person/refresh for
// an existing one.
func (h *APIHandlers) CreatePerson(w http.ResponseWriter, r *http.Request) {
	if h.resolver == nil {
		respondError(w, http.StatusServiceUnavailable, "identity resolution is not configured", nil)
		return
	}
	var req createPersonRequest
	if err := decodeBody(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	p, created, err := h.resolver.Confirm(r.Context(), req.IdentityKey)
	switch {
	case errors.Is(err, identity.ErrNotFound):
		respondError(w, http.StatusNotFound, "unknown identity", err)
		return
	case err != nil:
		respondStoreError(w, err)
		return
	}

	trigger, status := types.TriggerRefresh, http.StatusOK
	if created {
		trigger, status = types.TriggerCreated, http.StatusCreated
	}
	if err := h.bus.Publish(r.Context(), events.PersonEvent{Event: trigger, PersonID: p.ID}); err != nil {
		logging.Ctx(r.Context()).Warn().Err(err).Str("person_id", p.ID).Msg("Person saved but enrichment not triggered")
	}
	respondJSON(w, status, p)
}

// ListPersons handles GET /api/persons.
func (h *APIHandlers) ListPersons(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := storage.ListOptions{
		Page:      atoiDefault(q.Get("page"), 1),
		Limit:     atoiDefault(q.Get("limit"), 20),
		SortBy:    q.Get("sort"),
		SortOrder: q.Get("order"),
	}
	if status := types.PersonStatus(q.Get("status")); status != "" {
		if !types.IsValidPersonStatus(status) {
			respondError(w, http.StatusBadRequest, "invalid status", nil)
			return
		}
		opts.Status = status
	}

	result, err := h.store.ListPersons(r.Context(), opts)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"persons":   result.Items,
		"total":     result.Total,
		"page":      result.Page,
		"page_size": result.PageSize,
		"has_more":  result.HasMore,
	})
}

// GetPerson handles GET /api/persons/{id}. Every successful read counts as
// a view.
func (h *APIHandlers) GetPerson(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	view, err := h.store.GetPersonView(r.Context(), id)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	if err := h.store.IncrementViewCount(r.Context(), id); err != nil {
		logging.Ctx(r.Context()).Warn().Err(err).Str("person_id", id).Msg("Failed to count view")
	} else {
		view.ViewCount++
	}
	respondJSON(w, http.StatusOK, view)
}

// GetPersonRuns handles GET /api/persons/{id}/runs.
func (h *APIHandlers) GetPersonRuns(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := h.store.GetPerson(r.Context(), id); err != nil {
		respondStoreError(w, err)
		return
	}
	runs, err := h.store.ListRuns(r.Context(), id, atoiDefault(r.URL.Query().Get("limit"), 20))
	if err != nil {
		respondStoreError(w, err)
		return
	}
	if runs == nil {
		runs = []*types.EnrichmentRun{}
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"runs": runs})
}

// GetPersonCards handles GET /api/persons/{id}/cards.
func (h *APIHandlers) GetPersonCards(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := h.store.GetPerson(r.Context(), id); err != nil {
		respondStoreError(w, err)
		return
	}
	cards, err := h.store.ListCards(r.Context(), id)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	if cards == nil {
		cards = []*types.Card{}
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"cards": cards})
}

// GetStats handles GET /api/stats.
func (h *APIHandlers) GetStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	stats := map[string]interface{}{}

	byStatus := map[string]int{}
	for _, s := range []types.PersonStatus{types.StatusPending, types.StatusBuilding, types.StatusReady, types.StatusError} {
		ids, err := h.store.ListPersonIDsByStatus(ctx, s)
		if err != nil {
			respondStoreError(w, err)
			return
		}
		byStatus[string(s)] = len(ids)
	}
	stats["persons"] = byStatus

	sessions := map[string]int{}
	for _, o := range []types.ResolutionOutcome{types.OutcomeLocal, types.OutcomeExternal, types.OutcomeAmbiguous, types.OutcomeNotFound} {
		n, err := h.store.CountSessions(ctx, o)
		if err != nil {
			respondStoreError(w, err)
			return
		}
		sessions[string(o)] = n
	}
	stats["resolutions"] = sessions

	if h.queue != nil {
		stats["queue_length"] = h.queue.QueueLength()
	}
	respondJSON(w, http.StatusOK, stats)
}

// Health handles GET /api/health.
func Health(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func atoiDefault(s string, def int) int {
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return def
}

// respondStoreError maps storage errors to status codes.
func respondStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		respondError(w, http.StatusNotFound, "not found", err)
	case errors.Is(err, storage.ErrInvalidInput):
		respondError(w, http.StatusBadRequest, "invalid input", err)
	case errors.Is(err, storage.ErrConflict):
		respondError(w, http.StatusConflict, "conflict", err)
	default:
		logging.Error().Err(err).Msg("Request failed")
		respondError(w, http.StatusInternalServerError, "internal error", nil)
	}
}

// respondJSON writes a JSON response with the given status code.
func respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		// Headers are already sent.
		logging.Warn().Err(err).Msg("Failed to encode JSON response")
	}
}

// respondError writes an error response with the given status code.
func respondError(w http.ResponseWriter, statusCode int, message string, err error) {
	errResp := ErrorResponse{
		Error: message,
		Code:  http.StatusText(statusCode),
	}
	if err != nil {
		errResp.Details = map[string]interface{}{
			"error": err.Error(),
		}
	}
	respondJSON(w, statusCode, errResp)
}

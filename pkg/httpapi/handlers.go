package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/illmade-knight/go-event-gateway/pkg/gateway"
	"github.com/illmade-knight/go-event-gateway/pkg/model"
	"github.com/rs/zerolog"
)

// Handler translates the REST surface into gateway calls. All business
// failures originate in the gateway; this layer only maps them to status
// codes and minimal JSON bodies.
type Handler struct {
	gateway gateway.Gateway
	logger  zerolog.Logger
}

// NewHandler creates the REST handler around a gateway.
func NewHandler(gw gateway.Gateway, logger zerolog.Logger) *Handler {
	return &Handler{
		gateway: gw,
		logger:  logger.With().Str("component", "HTTPHandler").Logger(),
	}
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

func writeError(w http.ResponseWriter, status int, message string) {
	payload, _ := json.Marshal(map[string]string{"error": message})
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(payload)
}

// HealthCheck reports liveness.
func (h *Handler) HealthCheck(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, `{"status":"healthy"}`)
}

// HandleEvent ingests one event: deserialize, stamp transport metadata, run
// the pipeline, map the error taxonomy onto status codes.
func (h *Handler) HandleEvent(w http.ResponseWriter, r *http.Request) {
	var event model.Event
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if meta := transportMetadataFrom(r.Context()); len(meta) > 0 {
		event.TransportMetadata = meta
	}

	err := h.gateway.Handle(r.Context(), &event)
	if err == nil {
		w.WriteHeader(http.StatusOK)
		return
	}

	var schemaInvalid *gateway.SchemaInvalidError
	var noTopic *gateway.NoTopicError
	switch {
	case errors.As(err, &schemaInvalid):
		writeError(w, http.StatusBadRequest, "schema validation failed")
	case errors.As(err, &noTopic):
		writeError(w, http.StatusNotAcceptable, "no destination found")
	default:
		h.logger.Error().Err(err).Str("event_id", event.ID.String()).Msg("Event handling failed.")
		w.WriteHeader(http.StatusInternalServerError)
	}
}

type routingRuleRequest struct {
	Order                 int              `json:"order"`
	Topic                 model.Topic      `json:"topic"`
	EventTypeCondition    model.Condition  `json:"eventTypeCondition"`
	EventVersionCondition *model.Condition `json:"eventVersionCondition,omitempty"`
	Description           *string          `json:"description,omitempty"`
}

func (req *routingRuleRequest) toRule(id uuid.UUID) model.TopicRoutingRule {
	return model.TopicRoutingRule{
		ID:                    id,
		Order:                 req.Order,
		Topic:                 req.Topic,
		EventTypeCondition:    req.EventTypeCondition,
		EventVersionCondition: req.EventVersionCondition,
		Description:           req.Description,
	}
}

// ListRules returns every routing rule.
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	rules, err := h.gateway.GetRoutingRules(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list routing rules.")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	h.respondList(w, rules)
}

// CreateRule adds a routing rule with a freshly assigned id.
func (h *Handler) CreateRule(w http.ResponseWriter, r *http.Request) {
	var req routingRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	h.adminWrite(w, h.gateway.AddRoutingRule(r.Context(), req.toRule(uuid.New())))
}

// UpdateRule replaces the rule record at id.
func (h *Handler) UpdateRule(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	var req routingRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	h.adminWrite(w, h.gateway.UpdateRoutingRule(r.Context(), id, req.toRule(id)))
}

// DeleteRule removes the rule at id; deleting a missing rule succeeds.
func (h *Handler) DeleteRule(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	h.adminWrite(w, h.gateway.DeleteRoutingRule(r.Context(), id))
}

type topicValidationRequest struct {
	Topic  model.Topic      `json:"topic"`
	Schema model.DataSchema `json:"schema"`
}

// ListValidations returns the registered schemas grouped by topic.
func (h *Handler) ListValidations(w http.ResponseWriter, r *http.Request) {
	validations, err := h.gateway.GetTopicValidations(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list topic validations.")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	h.respondList(w, validations)
}

// CreateValidation registers a schema for a topic with a fresh id.
func (h *Handler) CreateValidation(w http.ResponseWriter, r *http.Request) {
	var req topicValidationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	validation := model.TopicValidationConfig{
		ID:     uuid.New(),
		Topic:  req.Topic,
		Schema: req.Schema,
	}
	h.adminWrite(w, h.gateway.AddTopicValidation(r.Context(), validation))
}

// DeleteValidation removes the validation at id; deleting a missing
// validation succeeds.
func (h *Handler) DeleteValidation(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	h.adminWrite(w, h.gateway.DeleteTopicValidation(r.Context(), id))
}

// adminWrite maps the outcome of an admin mutation onto status codes:
// 204 on success, 400 for invalid input, 404 for missing targets, 500 with
// an empty body for everything else.
func (h *Handler) adminWrite(w http.ResponseWriter, err error) {
	if err == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	var invalid *gateway.InvalidInputError
	var notFound *gateway.NotFoundError
	switch {
	case errors.As(err, &invalid):
		writeError(w, http.StatusBadRequest, invalid.Reason)
	case errors.As(err, &notFound):
		writeError(w, http.StatusNotFound, "not found")
	default:
		h.logger.Error().Err(err).Msg("Admin operation failed.")
		w.WriteHeader(http.StatusInternalServerError)
	}
}

func (h *Handler) respondList(w http.ResponseWriter, body any) {
	payload, err := json.Marshal(body)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to serialize response.")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(payload)
}

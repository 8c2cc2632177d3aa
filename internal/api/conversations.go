package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/boganlabs/bogan/internal/conversation"
	"github.com/boganlabs/bogan/internal/interview"
	"github.com/boganlabs/bogan/internal/log"
)

// Interviewer drives interview turns. *interview.Orchestrator
// implements it.
type Interviewer interface {
	StartSession(ctx context.Context, language string) (*conversation.Session, error)
	AppendUserMessage(ctx context.Context, sessionID uuid.UUID, text string) error
	RunTurn(ctx context.Context, sessionID uuid.UUID, emit interview.EmitFunc) error
	SubmitDemographics(ctx context.Context, sessionID uuid.UUID, age int, biologicalSex string) error
}

// ConversationStore is the read surface the handlers need.
// *conversation.Store implements it.
type ConversationStore interface {
	Session(ctx context.Context, id uuid.UUID) (*conversation.Session, error)
	ListSessions(ctx context.Context, limit, offset int32) ([]*conversation.Session, error)
	Turns(ctx context.Context, sessionID uuid.UUID) ([]*conversation.Turn, error)
	Findings(ctx context.Context, sessionID uuid.UUID) ([]conversation.Finding, error)
	Diagnoses(ctx context.Context, sessionID uuid.UUID) ([]conversation.Diagnosis, error)
}

// conversationHandler serves the conversation endpoints.
type conversationHandler struct {
	interviewer Interviewer
	store       ConversationStore
	logger      log.Logger
}

const maxBodyBytes = 1 << 20 // 1MB

// maxMessageLength bounds a single patient message.
const maxMessageLength = 10000

type createRequest struct {
	Language string `json:"language"`
	Content  string `json:"content"`
}

// create handles POST /api/conversations. An optional content field
// records the patient's first message in the same call, saving the
// client a round trip before streaming.
func (h *conversationHandler) create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid request body", h.logger)
		return
	}
	if req.Language == "" {
		req.Language = "en"
	}
	if len(req.Content) > maxMessageLength {
		writeError(w, http.StatusBadRequest, "MESSAGE_TOO_LONG", "message exceeds maximum length", h.logger)
		return
	}

	sess, err := h.interviewer.StartSession(r.Context(), req.Language)
	if err != nil {
		writeDomainError(w, err, h.logger)
		return
	}
	if req.Content != "" {
		if err := h.interviewer.AppendUserMessage(r.Context(), sess.ID, req.Content); err != nil {
			writeDomainError(w, err, h.logger)
			return
		}
	}
	writeJSON(w, http.StatusCreated, sess, h.logger)
}

// list handles GET /api/conversations.
func (h *conversationHandler) list(w http.ResponseWriter, r *http.Request) {
	limit := queryInt32(r, "limit", 50)
	offset := queryInt32(r, "offset", 0)
	if limit < 1 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	sessions, err := h.store.ListSessions(r.Context(), limit, offset)
	if err != nil {
		writeDomainError(w, err, h.logger)
		return
	}
	if sessions == nil {
		sessions = []*conversation.Session{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"conversations": sessions}, h.logger)
}

// get handles GET /api/conversations/{id}.
func (h *conversationHandler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	sess, err := h.store.Session(r.Context(), id)
	if err != nil {
		writeDomainError(w, err, h.logger)
		return
	}
	turns, err := h.store.Turns(r.Context(), id)
	if err != nil {
		writeDomainError(w, err, h.logger)
		return
	}
	if turns == nil {
		turns = []*conversation.Turn{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"conversation": sess, "turns": turns}, h.logger)
}

type messageRequest struct {
	Content string `json:"content"`
}

// appendMessage handles POST /api/conversations/{id}/messages. The
// message is persisted here; generation runs on the stream endpoint.
func (h *conversationHandler) appendMessage(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	var req messageRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid request body", h.logger)
		return
	}
	if req.Content == "" {
		writeError(w, http.StatusBadRequest, "MISSING_CONTENT", "content is required", h.logger)
		return
	}
	if len(req.Content) > maxMessageLength {
		writeError(w, http.StatusBadRequest, "MESSAGE_TOO_LONG", "message exceeds maximum length", h.logger)
		return
	}

	if err := h.interviewer.AppendUserMessage(r.Context(), id, req.Content); err != nil {
		writeDomainError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"}, h.logger)
}

// stream handles GET /api/conversations/{id}/stream. It runs one
// generation turn and relays the turn's events over SSE. The request
// context follows the connection, so a client disconnect aborts the
// in-flight generation.
func (h *conversationHandler) stream(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	sse, err := newSSEWriter(w)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "STREAMING_UNSUPPORTED", "streaming not supported", h.logger)
		return
	}

	emit := func(ev interview.Event) error {
		switch ev.Kind {
		case interview.EventText:
			return sse.writeEvent(string(ev.Kind), map[string]string{"text": ev.Text})
		case interview.EventTool:
			return sse.writeEvent(string(ev.Kind), ev.Tool)
		case interview.EventDone:
			return sse.writeEvent(string(ev.Kind), ev.Done)
		default:
			return sse.writeEvent(string(ev.Kind), struct{}{})
		}
	}

	if err := h.interviewer.RunTurn(r.Context(), id, emit); err != nil {
		if r.Context().Err() != nil {
			h.logger.Info("client disconnected during turn", "conversation_id", id)
			return
		}
		_, code, message := mapError(err)
		h.logger.Error("turn failed", "conversation_id", id, "error", err)
		sse.writeError(code, message)
	}
}

type demographicsRequest struct {
	Age           int    `json:"age"`
	BiologicalSex string `json:"biological_sex"`
}

// demographics handles POST /api/conversations/{id}/demographics.
func (h *conversationHandler) demographics(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	var req demographicsRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid request body", h.logger)
		return
	}

	if err := h.interviewer.SubmitDemographics(r.Context(), id, req.Age, req.BiologicalSex); err != nil {
		writeDomainError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"status": "recorded"}, h.logger)
}

// findingGroup collects one category's values in recording order.
type findingGroup struct {
	Category string   `json:"category"`
	Values   []string `json:"values"`
}

// findings handles GET /api/conversations/{id}/findings. Findings are
// grouped by category, categories ordered by first appearance.
func (h *conversationHandler) findings(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	findings, err := h.store.Findings(r.Context(), id)
	if err != nil {
		writeDomainError(w, err, h.logger)
		return
	}

	groups := []findingGroup{}
	index := make(map[string]int)
	for _, f := range findings {
		i, seen := index[f.Category]
		if !seen {
			i = len(groups)
			index[f.Category] = i
			groups = append(groups, findingGroup{Category: f.Category})
		}
		groups[i].Values = append(groups[i].Values, f.Value)
	}
	writeJSON(w, http.StatusOK, map[string]any{"findings": groups}, h.logger)
}

// diagnoses handles GET /api/conversations/{id}/diagnoses.
func (h *conversationHandler) diagnoses(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	diagnoses, err := h.store.Diagnoses(r.Context(), id)
	if err != nil {
		writeDomainError(w, err, h.logger)
		return
	}
	if diagnoses == nil {
		diagnoses = []conversation.Diagnosis{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"diagnoses": diagnoses}, h.logger)
}

// pathID parses the {id} path segment, writing a 400 on failure.
func (h *conversationHandler) pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ID", "invalid conversation id", h.logger)
		return uuid.Nil, false
	}
	return id, true
}

func queryInt32(r *http.Request, key string, def int32) int32 {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	n, err := strconv.ParseInt(raw, 10, 32)
	if err != nil {
		return def
	}
	return int32(n)
}

package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/boganlabs/bogan/internal/conversation"
	"github.com/boganlabs/bogan/internal/interview"
	"github.com/boganlabs/bogan/internal/log"
	"github.com/boganlabs/bogan/internal/translate"
)

// errorBody is the JSON error envelope.
type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// writeJSON writes a JSON response. The body is encoded into a buffer
// first so headers are only sent after successful encoding.
func writeJSON(w http.ResponseWriter, status int, data any, logger log.Logger) {
	buf := new(bytes.Buffer)
	if err := json.NewEncoder(buf).Encode(data); err != nil {
		logger.Error("encoding JSON response", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	if _, err := w.Write(buf.Bytes()); err != nil {
		// Client disconnects are common and expected.
		logger.Debug("writing response body", "error", err)
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, code, message string, logger log.Logger) {
	writeJSON(w, status, map[string]errorBody{"error": {Code: code, Message: message}}, logger)
}

// mapError translates a domain error into an HTTP status and a stable
// error code clients can branch on.
func mapError(err error) (status int, code string, message string) {
	switch {
	case errors.Is(err, conversation.ErrSessionNotFound):
		return http.StatusNotFound, "SESSION_NOT_FOUND", "conversation not found"
	case errors.Is(err, conversation.ErrProfileNotFound):
		return http.StatusNotFound, "PROFILE_NOT_FOUND", "demographics not collected yet"
	case errors.Is(err, conversation.ErrProfileExists):
		return http.StatusConflict, "PROFILE_EXISTS", "demographics already collected"
	case errors.Is(err, conversation.ErrDiagnosesExist):
		return http.StatusConflict, "DIAGNOSES_EXIST", "differentials already recorded"
	case errors.Is(err, conversation.ErrInvalidProfile):
		return http.StatusBadRequest, "INVALID_PROFILE", err.Error()
	case errors.Is(err, interview.ErrTurnInFlight):
		return http.StatusConflict, "TURN_IN_FLIGHT", "a turn is already running for this conversation"
	case errors.Is(err, interview.ErrSessionCompleted):
		return http.StatusConflict, "SESSION_COMPLETED", "the interview has concluded"
	case errors.Is(err, interview.ErrNoPendingToolCall):
		return http.StatusConflict, "NO_PENDING_TOOL_CALL", "no demographics request is pending"
	case errors.Is(err, interview.ErrTranslationFailed):
		// The message was not persisted; the client may resend it.
		return http.StatusBadGateway, "TRANSLATION_FAILED", "translation failed, please resend your message"
	case errors.Is(err, translate.ErrUnsupportedLanguage):
		return http.StatusBadRequest, "UNSUPPORTED_LANGUAGE", err.Error()
	default:
		return http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error"
	}
}

// writeDomainError maps err and writes it as a JSON error response.
func writeDomainError(w http.ResponseWriter, err error, logger log.Logger) {
	status, code, message := mapError(err)
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", "error", err)
	}
	writeError(w, status, code, message, logger)
}

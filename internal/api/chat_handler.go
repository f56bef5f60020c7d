package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/phrazzld/taskflow-api/internal/api/shared"
	"github.com/phrazzld/taskflow-api/internal/platform/gemini"
	"github.com/phrazzld/taskflow-api/internal/redact"
	"github.com/phrazzld/taskflow-api/internal/service/command"
)

// ChatHandler handles POST /api/chat: free text in, an executed command's
// result (or a clarification question) out.
type ChatHandler struct {
	interpreter command.Interpreter
	dispatcher  *command.Dispatcher
	validator   *validator.Validate
	logger      *slog.Logger
}

// NewChatHandler creates a ChatHandler.
func NewChatHandler(interpreter command.Interpreter, dispatcher *command.Dispatcher, logger *slog.Logger) *ChatHandler {
	return &ChatHandler{
		interpreter: interpreter,
		dispatcher:  dispatcher,
		validator:   validator.New(),
		logger:      logger.With(slog.String("component", "chat_handler")),
	}
}

// Chat handles POST /api/chat.
func (h *ChatHandler) Chat(w http.ResponseWriter, r *http.Request) {
	ownerID := shared.GetOwnerID(r.Context())

	var req ChatRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}

	cmd, clarification, err := h.interpreter.Interpret(r.Context(), ownerID, req.Text)
	if err != nil {
		h.respondInterpreterError(w, r, err)
		return
	}
	if clarification != nil {
		shared.RespondWithJSON(w, r, http.StatusOK, ChatResponse{
			Clarification: clarification.Question,
		})
		return
	}

	result, err := h.dispatcher.Dispatch(r.Context(), ownerID, cmd)
	if err != nil {
		status := MapErrorToStatusCode(err)
		if status >= http.StatusInternalServerError {
			h.logger.ErrorContext(r.Context(), "chat command failed",
				slog.String("trace_id", shared.GetTraceID(r.Context())),
				slog.String("error", redact.Error(err)))
		}
		shared.RespondWithError(w, r, status, GetSafeErrorMessage(err))
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, ChatResponse{Result: result})
}

func (h *ChatHandler) respondInterpreterError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, gemini.ErrEmptyText):
		shared.RespondWithError(w, r, http.StatusBadRequest, "Text cannot be empty")
	case errors.Is(err, gemini.ErrContentBlocked):
		shared.RespondWithError(w, r, http.StatusUnprocessableEntity, "Request could not be processed")
	case errors.Is(err, gemini.ErrInvalidResponse):
		shared.RespondWithError(w, r, http.StatusBadGateway, "Could not understand the request; try rephrasing")
	case errors.Is(err, gemini.ErrTransientFailure):
		shared.RespondWithError(w, r, http.StatusServiceUnavailable, "Language service is temporarily unavailable")
	default:
		h.logger.ErrorContext(r.Context(), "interpreter failed",
			slog.String("trace_id", shared.GetTraceID(r.Context())),
			slog.String("error", redact.Error(err)))
		shared.RespondWithError(w, r, http.StatusInternalServerError, "An unexpected error occurred")
	}
}

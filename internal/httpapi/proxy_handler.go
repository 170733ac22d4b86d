package httpapi

import (
	"errors"
	"net/http"

	"unified_gateway/internal/completion"
	"unified_gateway/internal/middleware"
	"unified_gateway/internal/utils"
)

// handleChat is the entry point for chat completions.
//
// Flow:
//  1. Decode JSON body
//  2. Check required fields
//  3. Dispatch to the provider (validation of provider and model happens there)
//  4. Map the dispatch error, if any, to a status code
func (d *Dependencies) handleChat(w http.ResponseWriter, r *http.Request) {
	var req completion.Request
	if err := utils.DecodeJSONBody(r, &req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	if detail := validateChatRequest(&req); detail != "" {
		utils.RespondWithError(w, http.StatusUnprocessableEntity, detail)
		return
	}

	resp, err := d.Dispatcher.CreateCompletion(r.Context(), req)
	if err != nil {
		if record, ok := middleware.GetAPIKeyRecord(r.Context()); ok && d.logger != nil {
			d.logger.Debug("Completion rejected", "key_id", record.ID, "provider", req.Provider, "model", req.Model)
		}
		writeCompletionError(w, err)
		return
	}

	d.respond(w, http.StatusOK, resp)
}

// validateChatRequest returns a detail string for the first missing field.
// An empty messages array is accepted; an absent one is not.
func validateChatRequest(req *completion.Request) string {
	switch {
	case req.Provider == "":
		return "field required: provider"
	case req.Model == "":
		return "field required: model"
	case req.Messages == nil:
		return "field required: messages"
	}
	for _, m := range req.Messages {
		if m.Role == "" {
			return "field required: messages.role"
		}
	}
	return ""
}

// writeCompletionError maps the dispatcher's error taxonomy onto status codes.
func writeCompletionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, completion.ErrProviderNotConfigured):
		utils.RespondWithError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, completion.ErrModelNotAvailable):
		utils.RespondWithError(w, http.StatusBadRequest, err.Error())
	default:
		utils.RespondWithError(w, http.StatusInternalServerError, err.Error())
	}
}

func (d *Dependencies) respond(w http.ResponseWriter, code int, payload interface{}) {
	if err := utils.RespondWithJSON(w, code, payload); err != nil && d.logger != nil {
		d.logger.Error("Failed to write response", "error", err)
	}
}

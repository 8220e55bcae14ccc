package server

import (
	"encoding/json"
	"net/http"

	"llmgate/internal/codec"
	"llmgate/internal/types"
)

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeEntryError renders an error in the entry protocol's native envelope.
func writeEntryError(w http.ResponseWriter, entry codec.Protocol, status int, msg string) {
	if entry == codec.ProtocolAnthropic {
		writeJSON(w, status, types.AnthropicErrorResponse{
			Type:  "error",
			Error: types.AnthropicErrorBody{Type: anthropicErrorType(status), Message: msg},
		})
		return
	}
	writeJSON(w, status, types.ErrorResponse{
		Error: types.ErrorDetail{Message: msg, Type: openaiErrorType(status)},
	})
}

func anthropicErrorType(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "invalid_request_error"
	case http.StatusUnauthorized:
		return "authentication_error"
	case http.StatusNotFound:
		return "not_found_error"
	case http.StatusTooManyRequests:
		return "rate_limit_error"
	case http.StatusBadGateway, http.StatusServiceUnavailable:
		return "api_error"
	default:
		return "api_error"
	}
}

func openaiErrorType(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "invalid_request_error"
	case http.StatusUnauthorized:
		return "authentication_error"
	case http.StatusTooManyRequests:
		return "rate_limit_error"
	default:
		return "api_error"
	}
}

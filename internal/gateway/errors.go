package gateway

import (
	"encoding/json"
	"net/http"

	"github.com/llmwire/llmwire/internal/api/anthropic"
	"github.com/llmwire/llmwire/internal/api/openai"
	"github.com/llmwire/llmwire/internal/domain"
)

// writeError renders err in the error envelope of the protocol the client
// spoke. The HTTP status comes from the canonical error.
func writeError(w http.ResponseWriter, format domain.WireFormat, err error) {
	apiErr := domain.AsAPIError(err)

	var envelope any
	if format == domain.WireFormatAnthropic {
		envelope = anthropic.ErrorFromCanonical(apiErr)
	} else {
		envelope = openai.ErrorFromCanonical(apiErr)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(apiErr.HTTPStatusCode())
	json.NewEncoder(w).Encode(envelope)
}

package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/tidwall/gjson"

	"llmgate/internal/codec"
	"llmgate/internal/pipeline"
	responsesstate "llmgate/internal/responses-state"
	"llmgate/internal/sse"
	"llmgate/internal/types"
)

// handleEntry serves one entry protocol: resolve the pipeline, run the
// chain, and reply in the entry protocol — as a JSON body, a converted
// upstream stream, or a synthesized stream for force-non-streaming
// pipelines.
func (s *Server) handleEntry(entry codec.Protocol) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, ok := s.readBody(w, r, entry)
		if !ok {
			return
		}

		if entry == codec.ProtocolOpenAIResponses {
			expanded, err := s.expandPreviousResponse(body)
			if err != nil {
				writeEntryError(w, entry, http.StatusBadRequest, err.Error())
				return
			}
			body = expanded
		}

		pipelineID, ok := s.cfg.PipelineFor(entry)
		if !ok {
			writeEntryError(w, entry, http.StatusNotFound, "no pipeline configured for this endpoint")
			return
		}
		route, err := s.manager.NewRoute(pipelineID)
		if err != nil {
			writeEntryError(w, entry, http.StatusInternalServerError, err.Error())
			return
		}

		env := pipeline.NewEnvelope(body, route)
		if err := s.manager.Process(r.Context(), env); err != nil {
			s.writePipelineError(w, entry, err)
			return
		}

		if env.StatusCode >= 400 {
			writeEntryError(w, entry, env.StatusCode, upstreamErrorMessage(env.Data))
			return
		}

		spec, _ := s.manager.Spec(pipelineID)

		if env.Stream != nil {
			defer env.Stream.Close()
			s.convertStream(w, r, entry, spec.Provider.Protocol(), env)
			return
		}
		if entry == codec.ProtocolOpenAIResponses {
			s.rememberResponse(body, env.Data)
		}

		if env.Bool(pipeline.MetaSynthesizeStream) {
			s.synthesizeStream(w, entry, env)
			return
		}

		writeJSONBody(w, s.backfillUsage(entry, body, env.Data))
	}
}

// expandPreviousResponse resolves previous_response_id by prepending the
// stored conversation snapshot to the request. Requests without the field
// pass through untouched; decoding problems are left for the pipeline so
// the error shape stays consistent.
func (s *Server) expandPreviousResponse(body []byte) ([]byte, error) {
	req, err := codec.DecodeRequest(body, codec.ProtocolOpenAIResponses)
	if err != nil || req.PreviousResponseID == "" {
		return body, nil
	}
	snap, ok := s.respState.Get(req.PreviousResponseID)
	if !ok {
		return nil, fmt.Errorf("unknown or expired previous_response_id %q", req.PreviousResponseID)
	}
	req.Messages = append(snap.Messages, req.Messages...)
	if req.System == "" {
		req.System = snap.System
	}
	req.PreviousResponseID = ""
	return codec.EncodeRequest(req, codec.ProtocolOpenAIResponses)
}

// rememberResponse stores the conversation snapshot under the reply's id so
// a later request can chain onto it. Streamed replies are not captured; the
// converter never materializes them.
func (s *Server) rememberResponse(reqBody, respBody []byte) {
	req, err := codec.DecodeRequest(reqBody, codec.ProtocolOpenAIResponses)
	if err != nil {
		return
	}
	resp, err := codec.DecodeResponse(respBody, codec.ProtocolOpenAIResponses)
	if err != nil || resp.ID == "" {
		return
	}
	assistant := types.CanonicalMessage{
		Role:      "assistant",
		Content:   resp.Text,
		ToolCalls: resp.ToolCalls,
	}
	s.respState.Put(resp.ID, responsesstate.Snapshot{
		System:   req.System,
		Messages: append(req.Messages, assistant),
	})
}

// convertStream pipes the upstream SSE body through the event converter
// into the entry protocol.
func (s *Server) convertStream(w http.ResponseWriter, r *http.Request, entry, outgoing codec.Protocol, env *pipeline.Envelope) {
	dec, err := sse.NewDecoder(outgoing, env.Stream)
	if err != nil {
		writeEntryError(w, entry, http.StatusInternalServerError, err.Error())
		return
	}
	emit, err := sse.NewEmitter(entry, w)
	if err != nil {
		writeEntryError(w, entry, http.StatusInternalServerError, err.Error())
		return
	}

	writeStreamHeaders(w)
	if err := sse.NewConverter(dec, emit).Run(r.Context()); err != nil {
		// Headers are long gone; the converter already closed the client
		// session, so this is only observable in the log.
		slog.Warn("stream conversion ended with error",
			"request_id", env.Route.RequestID,
			"pipeline", env.Route.PipelineID,
			"error", err,
		)
	}
}

// synthesizeStream replays a non-streaming reply as a stream for clients
// that asked for one on a force-non-streaming pipeline.
func (s *Server) synthesizeStream(w http.ResponseWriter, entry codec.Protocol, env *pipeline.Envelope) {
	resp, err := codec.DecodeResponse(env.Data, entry)
	if err != nil {
		writeEntryError(w, entry, http.StatusBadGateway, err.Error())
		return
	}
	emit, err := sse.NewEmitter(entry, w)
	if err != nil {
		writeEntryError(w, entry, http.StatusInternalServerError, err.Error())
		return
	}
	writeStreamHeaders(w)
	if err := sse.Synthesize(resp, emit); err != nil {
		slog.Warn("stream synthesis failed", "request_id", env.Route.RequestID, "error", err)
	}
}

// backfillUsage adds an estimated usage block when the upstream reported
// none. The reply is our own encoder's output, so the decode/encode
// round-trip is lossless.
func (s *Server) backfillUsage(entry codec.Protocol, reqBody, respBody []byte) []byte {
	resp, err := codec.DecodeResponse(respBody, entry)
	if err != nil || resp.Usage != nil {
		return respBody
	}
	req, err := codec.DecodeRequest(reqBody, entry)
	if err != nil {
		return respBody
	}
	s.estimator.FillResponse(req, resp)
	encoded, err := codec.EncodeResponse(resp, entry)
	if err != nil {
		return respBody
	}
	return encoded
}

// handleCountTokens estimates prompt tokens for an Anthropic-shaped request.
func (s *Server) handleCountTokens(w http.ResponseWriter, r *http.Request) {
	body, ok := s.readBody(w, r, codec.ProtocolAnthropic)
	if !ok {
		return
	}
	req, err := codec.DecodeRequest(body, codec.ProtocolAnthropic)
	if err != nil {
		writeEntryError(w, codec.ProtocolAnthropic, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, types.AnthropicCountTokensResponse{
		InputTokens: s.estimator.CountRequest(req),
	})
}

// handleListModels lists the models reachable through configured pipelines.
func (s *Server) handleListModels(w http.ResponseWriter, r *http.Request) {
	list := types.ModelList{Object: "list"}
	seen := map[string]bool{}
	for _, pl := range s.cfg.Pipelines {
		if seen[pl.Model] {
			continue
		}
		seen[pl.Model] = true
		list.Data = append(list.Data, types.ModelObject{
			ID:      pl.Model,
			Object:  "model",
			OwnedBy: pl.Provider,
		})
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) readBody(w http.ResponseWriter, r *http.Request, entry codec.Protocol) ([]byte, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeEntryError(w, entry, http.StatusBadRequest, "failed to read request body")
		return nil, false
	}
	if !json.Valid(body) {
		writeEntryError(w, entry, http.StatusBadRequest, "request body is not valid JSON")
		return nil, false
	}
	return body, true
}

// writePipelineError maps stage failures to HTTP statuses: malformed client
// payloads are 400s, everything past the gateway boundary is a 502.
func (s *Server) writePipelineError(w http.ResponseWriter, entry codec.Protocol, err error) {
	status := http.StatusBadGateway
	if errors.Is(err, codec.ErrProtocolMismatch) || errors.Is(err, codec.ErrUnsupportedProtocol) {
		status = http.StatusBadRequest
	}
	if se, ok := pipeline.AsStageError(err); ok {
		slog.Error("pipeline stage failed", "stage", se.Stage, "error", se.Err)
	} else {
		slog.Error("pipeline failed", "error", err)
	}
	writeEntryError(w, entry, status, err.Error())
}

func upstreamErrorMessage(body []byte) string {
	for _, path := range []string{"error.message", "error", "message"} {
		if v := gjson.GetBytes(body, path); v.Exists() && v.Type == gjson.String && v.String() != "" {
			return v.String()
		}
	}
	if len(body) > 0 {
		return string(body)
	}
	return "upstream error"
}

func writeStreamHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
}

func writeJSONBody(w http.ResponseWriter, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

// Package http implements the §6 HTTP endpoint table: request-id tagging,
// bearer-token authentication, JSON encode/decode, and the kinded-error-to-
// status mapping of §7. Grounded on the teacher's gorilla/mux + gorilla/
// handlers router wiring in server/api.go (mux.NewRouter, handlers.Compress
// Handler, a recovery wrapper), re-expressed as a plain JSON REST surface
// instead of a gRPC-gateway front end.
package http

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/speedrun-hub/obstacle-engine/internal/apierr"
	"github.com/speedrun-hub/obstacle-engine/internal/notify"
)

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		_ = json.NewEncoder(w).Encode(body)
	}
}

type errorEnvelope struct {
	Error string `json:"error"`
}

// writeError maps err to its §7 HTTP status, masking RankCompute/Internal
// behind a generic 500 and shipping their full diagnostic to sink.
func writeError(w http.ResponseWriter, logger *zap.Logger, sink notify.Sink, r *http.Request, err error) {
	apiErr, ok := apierr.As(err)
	if !ok {
		apiErr = apierr.Internal(err, "unhandled error")
	}

	requestID := requestIDFromContext(r.Context())
	if apiErr.Kind.Masked() {
		logger.Error("masked error", zap.String("request_id", requestID), zap.Error(apiErr))
		if sink != nil {
			sink.Report(r.Context(), apiErr, requestID)
		}
		writeJSON(w, apiErr.Kind.HTTPStatus(), errorEnvelope{Error: "internal error"})
		return
	}

	writeJSON(w, apiErr.Kind.HTTPStatus(), errorEnvelope{Error: apiErr.Error()})
}

func decodeJSON(r *http.Request, dst interface{}) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(dst)
}

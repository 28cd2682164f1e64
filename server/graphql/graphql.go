// Package graphql implements the thin root-query surface §1 scopes this
// system to: event/edition/map listing reads only, no mutations and no
// resolver-level field graph. Grounded on the operation names of the
// original's graphql-api crate (original_source/game_api/src/graphql/
// event.rs: `event`, `editions`, `edition` resolvers on the root query
// object) but implemented as a hand-written dispatch table rather than a
// generated schema, since no GraphQL server library appears anywhere in
// the retrieval pack (see DESIGN.md).
package graphql

import (
	"context"
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/speedrun-hub/obstacle-engine/internal/apierr"
	"github.com/speedrun-hub/obstacle-engine/internal/durable"
)

// Request is the minimal GraphQL request envelope this surface accepts:
// an operation name and its variables, no query document parsing.
type Request struct {
	OperationName string          `json:"operationName"`
	Variables     json.RawMessage `json:"variables"`
}

type response struct {
	Data   interface{}  `json:"data,omitempty"`
	Errors []gqlError   `json:"errors,omitempty"`
}

type gqlError struct {
	Message string `json:"message"`
}

// resolver is one root-query operation. Each one decodes its own variables
// shape out of req.Variables.
type resolver func(ctx context.Context, db *durable.Store, req Request) (interface{}, error)

var resolvers = map[string]resolver{
	"event":            resolveEvent,
	"editions":         resolveEditions,
	"edition":          resolveEdition,
}

// Handler serves the single POST endpoint this surface exposes.
type Handler struct {
	logger *zap.Logger
	db     *durable.Store
}

func NewHandler(logger *zap.Logger, db *durable.Store) *Handler {
	return &Handler{logger: logger, db: db}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeResponse(w, response{Errors: []gqlError{{Message: "malformed request body"}}})
		return
	}

	resolve, ok := resolvers[req.OperationName]
	if !ok {
		writeResponse(w, response{Errors: []gqlError{{Message: "unknown operation: " + req.OperationName}}})
		return
	}

	data, err := resolve(r.Context(), h.db, req)
	if err != nil {
		if apiErr, ok := apierr.As(err); ok {
			writeResponse(w, response{Errors: []gqlError{{Message: apiErr.Error()}}})
			return
		}
		h.logger.Error("graphql resolver failed", zap.String("operation", req.OperationName), zap.Error(err))
		writeResponse(w, response{Errors: []gqlError{{Message: "internal error"}}})
		return
	}
	writeResponse(w, response{Data: data})
}

func writeResponse(w http.ResponseWriter, resp response) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func resolveEvent(ctx context.Context, db *durable.Store, req Request) (interface{}, error) {
	var vars struct {
		Handle string `json:"handle"`
	}
	if err := json.Unmarshal(req.Variables, &vars); err != nil {
		return nil, apierr.Internal(err, "decode event query variables")
	}
	return db.MustHaveEventHandle(ctx, vars.Handle)
}

func resolveEditions(ctx context.Context, db *durable.Store, req Request) (interface{}, error) {
	var vars struct {
		Handle string `json:"handle"`
	}
	if err := json.Unmarshal(req.Variables, &vars); err != nil {
		return nil, apierr.Internal(err, "decode editions query variables")
	}
	event, editions, err := db.ListEventEditions(ctx, vars.Handle)
	if err != nil {
		return nil, err
	}
	return struct {
		Event    interface{} `json:"event"`
		Editions interface{} `json:"editions"`
	}{event, editions}, nil
}

func resolveEdition(ctx context.Context, db *durable.Store, req Request) (interface{}, error) {
	var vars struct {
		Handle    string `json:"handle"`
		EditionID int32  `json:"editionId"`
	}
	if err := json.Unmarshal(req.Variables, &vars); err != nil {
		return nil, apierr.Internal(err, "decode edition query variables")
	}
	event, edition, maps, err := db.ListEventEditionMaps(ctx, vars.Handle, vars.EditionID)
	if err != nil {
		return nil, err
	}
	return struct {
		Event   interface{} `json:"event"`
		Edition interface{} `json:"edition"`
		Maps    interface{} `json:"maps"`
	}{event, edition, maps}, nil
}

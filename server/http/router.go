package http

import (
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/speedrun-hub/obstacle-engine/internal/authn"
)

// NewRouter builds the full §6 endpoint table behind the teacher's
// compression + recovery + request-id middleware stack. graphqlHandler, if
// non-nil, is mounted at /graphql under the same middleware chain.
func NewRouter(logger *zap.Logger, srv *Server, verifier *authn.Verifier, graphqlHandler http.Handler) http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/overview", srv.handleOverview).Methods(http.MethodGet)
	r.HandleFunc("/player/finished", srv.handleFinished).Methods(http.MethodPost)
	r.HandleFunc("/event/{handle}/{edition}/player/finished", srv.handleFinished).Methods(http.MethodPost)
	r.HandleFunc("/player/pb", srv.handlePlayerPB).Methods(http.MethodGet)
	r.HandleFunc("/event/{handle}/{edition}/overview", srv.handleEventOverview).Methods(http.MethodGet)
	r.HandleFunc("/event", srv.handleListEvents).Methods(http.MethodGet)
	r.HandleFunc("/event/{handle}", srv.handleListEditions).Methods(http.MethodGet)
	r.HandleFunc("/event/{handle}/{edition}", srv.handleListEditionMaps).Methods(http.MethodGet)
	if graphqlHandler != nil {
		r.Handle("/graphql", graphqlHandler).Methods(http.MethodPost)
	}

	var h http.Handler = r
	h = authMiddleware(verifier)(h)
	h = recoveryMiddleware(logger, srv.sink)(h)
	h = requestIDMiddleware(h)
	h = handlers.CompressHandler(h)
	return h
}

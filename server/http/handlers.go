package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/speedrun-hub/obstacle-engine/internal/apierr"
	"github.com/speedrun-hub/obstacle-engine/internal/authn"
	"github.com/speedrun-hub/obstacle-engine/internal/durable"
	"github.com/speedrun-hub/obstacle-engine/internal/ingest"
	"github.com/speedrun-hub/obstacle-engine/internal/model"
	"github.com/speedrun-hub/obstacle-engine/internal/notify"
	"github.com/speedrun-hub/obstacle-engine/internal/ranking"
	"github.com/speedrun-hub/obstacle-engine/internal/selector"
)

// Server holds every collaborator the §6 endpoint table's handlers need.
type Server struct {
	logger   *zap.Logger
	db       *durable.Store
	syncer   *ranking.Syncer
	ingestor *ingest.Ingestor
	verifier *authn.Verifier
	sink     notify.Sink
}

func NewServer(logger *zap.Logger, db *durable.Store, syncer *ranking.Syncer, ingestor *ingest.Ingestor, verifier *authn.Verifier, sink notify.Sink) *Server {
	return &Server{logger: logger, db: db, syncer: syncer, ingestor: ingestor, verifier: verifier, sink: sink}
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	writeError(w, s.logger, s.sink, r, err)
}

// handleOverview serves `GET /overview?mapId=&playerId=`.
func (s *Server) handleOverview(w http.ResponseWriter, r *http.Request) {
	s.overview(w, r, selector.Global, "")
}

// handleEventOverview serves `GET /event/{handle}/{edition}/overview?map_uid=&login=`.
func (s *Server) handleEventOverview(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	handle := vars["handle"]
	editionID, err := strconv.Atoi(vars["edition"])
	if err != nil {
		s.fail(w, r, apierr.EventEditionNotFound(handle, 0))
		return
	}

	_, edition, err := s.db.MustHaveEventEdition(r.Context(), handle, int32(editionID))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if !edition.IsVisible(time.Now().UTC()) {
		s.fail(w, r, apierr.EventHasExpired(handle, int32(editionID)))
		return
	}

	s.overview(w, r, selector.Edition(edition.EventID, edition.EditionID), "login")
}

func (s *Server) overview(w http.ResponseWriter, r *http.Request, id selector.Identity, loginParam string) {
	q := r.URL.Query()
	mapUID := firstNonEmpty(q.Get("mapId"), q.Get("map_uid"))
	if mapUID == "" {
		s.fail(w, r, apierr.MapNotFound(""))
		return
	}

	m, err := s.db.MustHaveMap(r.Context(), mapUID)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	var playerLogin string
	if loginParam != "" {
		playerLogin = q.Get(loginParam)
	} else {
		playerLogin = q.Get("playerId")
	}

	if _, err := s.syncer.UpdateLeaderboard(r.Context(), m.ID, id); err != nil {
		s.fail(w, r, err)
		return
	}

	pbRows, err := s.db.GetPBRows(r.Context(), nil, m.ID, id)
	if err != nil {
		s.fail(w, r, apierr.Internal(err, "load pb rows for overview"))
		return
	}

	rows := make([]Row, len(pbRows))
	times := make([]int32, len(pbRows))
	for i, pb := range pbRows {
		times[i] = pb.Time
		rows[i] = Row{PlayerID: pb.PlayerID, Time: pb.Time}
	}
	ranks := ranking.CompetitionRanks(times)
	for i := range rows {
		rows[i].Rank = ranks[i]
	}

	playerIdx := -1
	var player *model.Player
	if playerLogin != "" {
		player, err = s.db.GetPlayerByLogin(r.Context(), playerLogin)
		if err != nil {
			s.fail(w, r, apierr.Internal(err, "lookup player for overview"))
			return
		}
		if player == nil {
			s.fail(w, r, apierr.PlayerNotFound(playerLogin))
			return
		}
		for i, pb := range pbRows {
			if pb.PlayerID == player.ID {
				playerIdx = i
				break
			}
		}
	}

	framed := frame(rows, playerIdx)
	s.hydrateLogins(r, framed)
	writeJSON(w, http.StatusOK, framed)
}

func (s *Server) hydrateLogins(r *http.Request, rows []Row) {
	for i := range rows {
		p, err := s.db.GetPlayerByID(r.Context(), rows[i].PlayerID)
		if err != nil || p == nil {
			continue
		}
		rows[i].Login = p.Login
		rows[i].Name = p.Name
	}
}

// handleFinished serves `POST /player/finished` and, scoped to an edition,
// `POST /event/{handle}/{edition}/player/finished`.
func (s *Server) handleFinished(w http.ResponseWriter, r *http.Request) {
	claims, err := requireAuth(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	var body struct {
		MapUID       string             `json:"map_uid"`
		Time         int32              `json:"time"`
		RespawnCount int32              `json:"respawn_count"`
		Flags        model.RecordFlags  `json:"flags"`
		CPs          []int32            `json:"cps"`
		ModeVersion  *string            `json:"mode_version"`
	}
	if err := decodeJSON(r, &body); err != nil {
		s.fail(w, r, apierr.Internal(err, "decode finish request body"))
		return
	}

	req := ingest.Request{
		PlayerLogin:  claims.Login,
		MapUID:       body.MapUID,
		Time:         body.Time,
		RespawnCount: body.RespawnCount,
		Flags:        body.Flags,
		ModeVersion:  body.ModeVersion,
		CPTimes:      body.CPs,
	}

	vars := mux.Vars(r)
	if handle, ok := vars["handle"]; ok {
		editionID, convErr := strconv.Atoi(vars["edition"])
		if convErr != nil {
			s.fail(w, r, apierr.EventEditionNotFound(handle, 0))
			return
		}
		e := int32(editionID)
		req.EventHandle = &handle
		req.EditionID = &e
	}

	result, err := s.ingestor.Ingest(r.Context(), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handlePlayerPB serves `GET /player/pb?map_uid=`.
func (s *Server) handlePlayerPB(w http.ResponseWriter, r *http.Request) {
	claims, err := requireAuth(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	mapUID := r.URL.Query().Get("map_uid")
	m, err := s.db.MustHaveMap(r.Context(), mapUID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	player, err := s.db.MustHavePlayer(r.Context(), claims.Login)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	record, cps, err := s.db.GetPBRecord(r.Context(), player.ID, m.ID, selector.Global)
	if err != nil {
		s.fail(w, r, apierr.Internal(err, "load pb record"))
		return
	}
	if record == nil {
		s.fail(w, r, apierr.PlayerNotFound(claims.Login))
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Record *model.Record         `json:"record"`
		CPs    []model.RecordCPTime `json:"cps"`
	}{record, cps})
}

// handleListEvents serves `GET /event`.
func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	events, err := s.db.ListEvents(r.Context())
	if err != nil {
		s.fail(w, r, apierr.Internal(err, "list events"))
		return
	}
	writeJSON(w, http.StatusOK, events)
}

// handleListEditions serves `GET /event/{handle}`.
func (s *Server) handleListEditions(w http.ResponseWriter, r *http.Request) {
	handle := mux.Vars(r)["handle"]
	event, editions, err := s.db.ListEventEditions(r.Context(), handle)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Event    *model.Event          `json:"event"`
		Editions []model.EventEdition `json:"editions"`
	}{event, editions})
}

// handleListEditionMaps serves `GET /event/{handle}/{edition}`.
func (s *Server) handleListEditionMaps(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	handle := vars["handle"]
	editionID, err := strconv.Atoi(vars["edition"])
	if err != nil {
		s.fail(w, r, apierr.EventEditionNotFound(handle, 0))
		return
	}

	event, edition, maps, err := s.db.ListEventEditionMaps(r.Context(), handle, int32(editionID))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Event   *model.Event           `json:"event"`
		Edition *model.EventEdition    `json:"edition"`
		Maps    []model.EventEditionMap `json:"maps"`
	}{event, edition, maps})
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// Package durable implements the durable store adapter of spec §4.1: typed
// access to players, maps, records, events, editions and medal times, plus
// the transactional plumbing finish ingestion (§4.6) and the mappack scorer
// (§4.8) need. Grounded on the teacher's database/sql-over-pgx usage in
// server/core_leaderboard.go, generalized from nakama's leaderboard schema
// to this system's player/map/record/event schema.
package durable

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgtype"
	_ "github.com/jackc/pgx/v4/stdlib"

	"github.com/speedrun-hub/obstacle-engine/internal/apierr"
	"github.com/speedrun-hub/obstacle-engine/internal/model"
	"github.com/speedrun-hub/obstacle-engine/internal/selector"
)

// Querier is satisfied by *sql.DB and *sql.Tx, letting every Store method
// run either standalone or inside a transaction.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Store is the durable store adapter. The zero value is not usable; build
// one with Open.
type Store struct {
	db *sql.DB
}

// Open connects to Postgres through pgx's database/sql driver, matching the
// teacher's `_ "github.com/lib/pq"`-then-`sql.Open` shape, swapped for pgx.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// DB exposes the underlying pool for callers that need it directly (rank
// cache warm-up style bulk scans, migrations bootstrap).
func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Close() error { return s.db.Close() }

// Tx is a running transaction, matching §5's transactional discipline:
// ReadWrite for finish ingestion, RepeatableRead+ReadOnly for scorer reads.
// It is an interface rather than a concrete struct so that internal/ingest
// and internal/ranking can be unit-tested against Fake
// without a live Postgres connection (see fake.go); callers outside this
// package never see the underlying Querier.
type Tx interface {
	Commit() error
	Rollback() error
}

// sqlTx is the real, pgx-backed Tx implementation.
type sqlTx struct {
	tx *sql.Tx
}

func (t *sqlTx) Commit() error   { return t.tx.Commit() }
func (t *sqlTx) Rollback() error { return t.tx.Rollback() }

// querierFor resolves the Querier a Store method should run against: s.db
// when tx is nil (or the zero value of its dynamic type), or the real
// *sql.Tx backing a *sqlTx. Any other Tx implementation reaching here
// (i.e. Fake's tx passed into a real Store) is a wiring bug, not a runtime
// condition to recover from.
func (s *Store) querierFor(tx Tx) Querier {
	if tx == nil {
		return s.db
	}
	real, ok := tx.(*sqlTx)
	if !ok {
		panic("durable: Store method called with a foreign Tx implementation")
	}
	if real == nil {
		return s.db
	}
	return real.tx
}

// BeginReadWrite opens the transaction finish ingestion runs in (§4.6 step 3,
// §5).
func (s *Store) BeginReadWrite(ctx context.Context) (Tx, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, err
	}
	return &sqlTx{tx: tx}, nil
}

// BeginScorerRead opens the repeatable-read, read-only transaction the
// mappack scorer uses (§4.1, §5).
func (s *Store) BeginScorerRead(ctx context.Context) (Tx, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		return nil, err
	}
	return &sqlTx{tx: tx}, nil
}

// isUniqueViolation detects Postgres' unique_violation the way the teacher's
// server/db_error.go does (dbErrorUniqueViolation = pgerrcode.UniqueViolation),
// generalized to pgconn's structured error instead of a string suffix match.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgerrcode.UniqueViolation
	}
	return false
}

// GetMapByUID returns the map with the given game UID, or nil if absent.
func (s *Store) GetMapByUID(ctx context.Context, uid string) (*model.Map, error) {
	return getMapByUID(ctx, s.db, uid)
}

func getMapByUID(ctx context.Context, q Querier, uid string) (*model.Map, error) {
	row := q.QueryRowContext(ctx, `
		SELECT id, game_uid, author_id, name, cp_count, medal_bronze, medal_silver, medal_gold, medal_author
		FROM maps WHERE game_uid = $1`, uid)
	m, err := scanMap(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return m, err
}

func scanMap(row *sql.Row) (*model.Map, error) {
	var m model.Map
	var cpCount sql.NullInt32
	var bronze, silver, gold, author sql.NullInt32
	if err := row.Scan(&m.ID, &m.GameUID, &m.AuthorID, &m.Name, &cpCount, &bronze, &silver, &gold, &author); err != nil {
		return nil, err
	}
	if cpCount.Valid {
		v := cpCount.Int32
		m.CPCount = &v
	}
	if bronze.Valid && silver.Valid && gold.Valid && author.Valid {
		m.MedalTimes = &model.MedalTimes{Bronze: bronze.Int32, Silver: silver.Int32, Gold: gold.Int32, Author: author.Int32}
	}
	return &m, nil
}

// GetPlayerByLogin returns the player with the given login, or nil if absent.
func (s *Store) GetPlayerByLogin(ctx context.Context, login string) (*model.Player, error) {
	return getPlayerByLogin(ctx, s.db, login)
}

func getPlayerByLogin(ctx context.Context, q Querier, login string) (*model.Player, error) {
	row := q.QueryRowContext(ctx, `
		SELECT id, login, name, joined_at, zone_path, role FROM players WHERE login = $1`, login)
	var p model.Player
	var joinedAt pgtype.Timestamptz
	var zonePath sql.NullString
	var role string
	if err := row.Scan(&p.ID, &p.Login, &p.Name, &joinedAt, &zonePath, &role); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if joinedAt.Status == pgtype.Present {
		t := joinedAt.Time
		p.JoinedAt = &t
	}
	if zonePath.Valid {
		p.ZonePath = &zonePath.String
	}
	p.Role = model.Role(role)
	return &p, nil
}

// GetPlayerByID returns the player with the given id, or nil if absent.
// Used to hydrate overview rows, which carry player ids from the fast
// store's sorted set rather than logins.
func (s *Store) GetPlayerByID(ctx context.Context, playerID int32) (*model.Player, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, login, name, joined_at, zone_path, role FROM players WHERE id = $1`, playerID)
	var p model.Player
	var joinedAt pgtype.Timestamptz
	var zonePath sql.NullString
	var role string
	if err := row.Scan(&p.ID, &p.Login, &p.Name, &joinedAt, &zonePath, &role); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if joinedAt.Status == pgtype.Present {
		t := joinedAt.Time
		p.JoinedAt = &t
	}
	if zonePath.Valid {
		p.ZonePath = &zonePath.String
	}
	p.Role = model.Role(role)
	return &p, nil
}

// MustHaveMap resolves uid or returns apierr.MapNotFound.
func (s *Store) MustHaveMap(ctx context.Context, uid string) (*model.Map, error) {
	m, err := s.GetMapByUID(ctx, uid)
	if err != nil {
		return nil, apierr.Internal(err, "lookup map by uid")
	}
	if m == nil {
		return nil, apierr.MapNotFound(uid)
	}
	return m, nil
}

// MustHavePlayer resolves login or returns apierr.PlayerNotFound.
func (s *Store) MustHavePlayer(ctx context.Context, login string) (*model.Player, error) {
	p, err := s.GetPlayerByLogin(ctx, login)
	if err != nil {
		return nil, apierr.Internal(err, "lookup player by login")
	}
	if p == nil {
		return nil, apierr.PlayerNotFound(login)
	}
	return p, nil
}

// MustHaveEventHandle resolves handle or returns apierr.EventNotFound.
func (s *Store) MustHaveEventHandle(ctx context.Context, handle string) (*model.Event, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, handle FROM events WHERE handle = $1`, handle)
	var e model.Event
	if err := row.Scan(&e.ID, &e.Handle); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apierr.EventNotFound(handle)
		}
		return nil, apierr.Internal(err, "lookup event by handle")
	}
	return &e, nil
}

// MustHaveEventEdition resolves (handle, editionID) or returns
// apierr.EventEditionNotFound.
func (s *Store) MustHaveEventEdition(ctx context.Context, handle string, editionID int32) (*model.Event, *model.EventEdition, error) {
	return mustHaveEventEdition(ctx, s.db, handle, editionID)
}

func mustHaveEventEdition(ctx context.Context, q Querier, handle string, editionID int32) (*model.Event, *model.EventEdition, error) {
	row := q.QueryRowContext(ctx, `
		SELECT e.id, e.handle, ee.edition_id, ee.name, ee.subtitle, ee.start_date, ee.ttl_seconds,
		       ee.mx_id, ee.save_non_event_record, ee.non_original_maps, ee.is_transparent, ee.transitive_save,
		       ee.manialink_url, ee.icon
		FROM events e
		JOIN event_editions ee ON ee.event_id = e.id
		WHERE e.handle = $1 AND ee.edition_id = $2`, handle, editionID)

	var ev model.Event
	var ed model.EventEdition
	var subtitle sql.NullString
	var startDate pgtype.Timestamptz
	var ttl sql.NullInt64
	var mxID sql.NullInt32
	var manialinkURL, icon sql.NullString
	if err := row.Scan(&ev.ID, &ev.Handle, &ed.EditionID, &ed.Name, &subtitle, &startDate, &ttl,
		&mxID, &ed.SaveNonEventRecord, &ed.NonOriginalMaps, &ed.IsTransparent, &ed.TransitiveSave,
		&manialinkURL, &icon); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, apierr.EventEditionNotFound(handle, editionID)
		}
		return nil, nil, apierr.Internal(err, "lookup event edition")
	}
	ed.EventID = ev.ID
	if startDate.Status == pgtype.Present {
		ed.StartDate = startDate.Time
	}
	if subtitle.Valid {
		ed.Subtitle = &subtitle.String
	}
	if ttl.Valid {
		ed.TTLSeconds = &ttl.Int64
	}
	if mxID.Valid {
		ed.MXID = &mxID.Int32
	}
	ed.Display = scanDisplayParams(manialinkURL, icon)
	return &ev, &ed, nil
}

// scanDisplayParams builds a DisplayParams from nullable manialink_url/icon
// columns, or nil if neither is set.
func scanDisplayParams(manialinkURL, icon sql.NullString) *model.DisplayParams {
	if !manialinkURL.Valid && !icon.Valid {
		return nil
	}
	d := &model.DisplayParams{}
	if manialinkURL.Valid {
		d.ManialinkURL = &manialinkURL.String
	}
	if icon.Valid {
		d.Icon = &icon.String
	}
	return d
}

// MapLink is the per-map linkage data returned by HaveEventEditionWithMap.
type MapLink struct {
	Map             *model.Map
	OriginalMapID   *int32
	TransitiveSave  bool
}

// HaveEventEditionWithMap is the single logical lookup of §4.1: resolves
// event, edition and the edition's linkage to mapUID, failing if any link is
// missing (§8 scenario `event_finish_non_transitive_save`: finishing the
// original map directly must 404 because the edition does not claim it).
func (s *Store) HaveEventEditionWithMap(ctx context.Context, mapUID, handle string, editionID int32) (*model.Event, *model.EventEdition, *MapLink, error) {
	return haveEventEditionWithMap(ctx, s.db, mapUID, handle, editionID)
}

func haveEventEditionWithMap(ctx context.Context, q Querier, mapUID, handle string, editionID int32) (*model.Event, *model.EventEdition, *MapLink, error) {
	ev, ed, err := mustHaveEventEdition(ctx, q, handle, editionID)
	if err != nil {
		return nil, nil, nil, err
	}

	m, err := getMapByUID(ctx, q, mapUID)
	if err != nil {
		return nil, nil, nil, apierr.Internal(err, "lookup map by uid")
	}
	if m == nil {
		return nil, nil, nil, apierr.MapNotFound(mapUID)
	}

	row := q.QueryRowContext(ctx, `
		SELECT original_map_id, transitive_save FROM event_edition_maps
		WHERE event_id = $1 AND edition_id = $2 AND map_id = $3`, ev.ID, ed.EditionID, m.ID)
	var originalMapID sql.NullInt32
	var transitiveSave bool
	if err := row.Scan(&originalMapID, &transitiveSave); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// The edition exists but does not claim this map: §8
			// event_finish_non_transitive_save returns EventEditionNotFound,
			// not MapNotFound, because from the edition's perspective the
			// map simply isn't part of it.
			return nil, nil, nil, apierr.EventEditionNotFound(handle, editionID)
		}
		return nil, nil, nil, apierr.Internal(err, "lookup event edition map link")
	}

	link := &MapLink{Map: m, TransitiveSave: transitiveSave}
	if originalMapID.Valid {
		v := originalMapID.Int32
		link.OriginalMapID = &v
	}
	return ev, ed, link, nil
}

// EditionRef is one element of the stream returned by GetEditionsContainingMap.
type EditionRef struct {
	EventID       int32
	EditionID     int32
	OriginalMapID *int32
	TransitiveSave bool
	IsTransparent bool
	SaveNonEventRecord bool
	StartDate     time.Time
}

// GetEditionsContainingMap returns every edition containing mapID, ordered by
// edition start descending (§4.1), for the non-event fan-out of §4.6 step 7.
// tx may be nil to run outside a transaction.
func (s *Store) GetEditionsContainingMap(ctx context.Context, tx Tx, mapID int32) ([]EditionRef, error) {
	return getEditionsContainingMap(ctx, s.querierFor(tx), mapID)
}

func getEditionsContainingMap(ctx context.Context, q Querier, mapID int32) ([]EditionRef, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT ee.event_id, ee.edition_id, eem.original_map_id, eem.transitive_save,
		       ee.transitive_save, ee.is_transparent, ee.save_non_event_record, ee.start_date
		FROM event_edition_maps eem
		JOIN event_editions ee ON ee.event_id = eem.event_id AND ee.edition_id = eem.edition_id
		WHERE eem.map_id = $1
		ORDER BY ee.start_date DESC`, mapID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []EditionRef
	for rows.Next() {
		var r EditionRef
		var originalMapID sql.NullInt32
		var perMapTransitiveSave, editionTransitiveSave bool
		if err := rows.Scan(&r.EventID, &r.EditionID, &originalMapID, &perMapTransitiveSave,
			&editionTransitiveSave, &r.IsTransparent, &r.SaveNonEventRecord, &r.StartDate); err != nil {
			return nil, err
		}
		r.TransitiveSave = perMapTransitiveSave || editionTransitiveSave
		if originalMapID.Valid {
			v := originalMapID.Int32
			r.OriginalMapID = &v
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// GetMedalTimes returns the per-map medal times for an edition, falling back
// to nil when the edition doesn't override them.
func (s *Store) GetMedalTimes(ctx context.Context, eventID, editionID, mapID int32) (*model.MedalTimes, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT medal_bronze, medal_silver, medal_gold, medal_author FROM event_edition_maps
		WHERE event_id = $1 AND edition_id = $2 AND map_id = $3`, eventID, editionID, mapID)
	var bronze, silver, gold, author sql.NullInt32
	if err := row.Scan(&bronze, &silver, &gold, &author); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if !bronze.Valid || !silver.Valid || !gold.Valid || !author.Valid {
		return nil, nil
	}
	return &model.MedalTimes{Bronze: bronze.Int32, Silver: silver.Int32, Gold: gold.Int32, Author: author.Int32}, nil
}

// GetPBTime returns the player's current best time under the given
// leaderboard identity, or ok=false if they have no record there. tx may be
// nil to run outside a transaction.
func (s *Store) GetPBTime(ctx context.Context, tx Tx, playerID, mapID int32, id selector.Identity) (int32, bool, error) {
	return getPBTime(ctx, s.querierFor(tx), playerID, mapID, id)
}

func getPBTime(ctx context.Context, q Querier, playerID, mapID int32, id selector.Identity) (int32, bool, error) {
	query, args := pbQuery(id, "r.time", playerID, mapID)
	row := q.QueryRowContext(ctx, query, args...)
	var t int32
	if err := row.Scan(&t); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return t, true, nil
}

// pbQuery builds the "personal best for (player, map) under identity" query,
// selecting selectExpr, filtered to one player/map. The PB tie-break is
// lowest time, earliest timestamp (§3).
func pbQuery(id selector.Identity, selectExpr string, playerID, mapID int32) (string, []interface{}) {
	if id.IsGlobal() {
		return `
			SELECT ` + selectExpr + ` FROM records r
			WHERE r.player_id = $1 AND r.map_id = $2
			ORDER BY r.time ASC, r.ts ASC LIMIT 1`, []interface{}{playerID, mapID}
	}
	return `
		SELECT ` + selectExpr + ` FROM records r
		JOIN event_edition_records eer ON eer.record_id = r.id
		WHERE r.player_id = $1 AND r.map_id = $2 AND eer.event_id = $3 AND eer.edition_id = $4
		ORDER BY r.time ASC, r.ts ASC LIMIT 1`, []interface{}{playerID, mapID, id.EventID, id.EditionID}
}

// PBRow is one row of a map's full PB leaderboard (one row per player).
type PBRow struct {
	PlayerID int32
	Time     int32
}

// GetPBRows returns the PB for every player on (mapID, identity), ordered by
// time ascending, used by §4.3 force-rebuild and §4.8 scoring. tx may be nil
// to run outside a transaction.
func (s *Store) GetPBRows(ctx context.Context, tx Tx, mapID int32, id selector.Identity) ([]PBRow, error) {
	return getPBRows(ctx, s.querierFor(tx), mapID, id)
}

func getPBRows(ctx context.Context, q Querier, mapID int32, id selector.Identity) ([]PBRow, error) {
	var query string
	args := []interface{}{mapID}
	if id.IsGlobal() {
		query = `
			SELECT player_id, MIN(time) AS pb FROM records
			WHERE map_id = $1
			GROUP BY player_id
			ORDER BY pb ASC`
	} else {
		query = `
			SELECT r.player_id, MIN(r.time) AS pb FROM records r
			JOIN event_edition_records eer ON eer.record_id = r.id
			WHERE r.map_id = $1 AND eer.event_id = $2 AND eer.edition_id = $3
			GROUP BY r.player_id
			ORDER BY pb ASC`
		args = append(args, id.EventID, id.EditionID)
	}
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []PBRow
	for rows.Next() {
		var r PBRow
		if err := rows.Scan(&r.PlayerID, &r.Time); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// CountPBRows is the `SELECT COUNT(*) ... GROUP BY player_id` count of §4.3
// step 1, implemented as a count over the grouped subquery. tx may be nil to
// run outside a transaction.
func (s *Store) CountPBRows(ctx context.Context, tx Tx, mapID int32, id selector.Identity) (int64, error) {
	q := s.querierFor(tx)
	var query string
	args := []interface{}{mapID}
	if id.IsGlobal() {
		query = `SELECT COUNT(*) FROM (SELECT 1 FROM records WHERE map_id = $1 GROUP BY player_id) t`
	} else {
		query = `
			SELECT COUNT(*) FROM (
				SELECT 1 FROM records r
				JOIN event_edition_records eer ON eer.record_id = r.id
				WHERE r.map_id = $1 AND eer.event_id = $2 AND eer.edition_id = $3
				GROUP BY r.player_id
			) t`
		args = append(args, id.EventID, id.EditionID)
	}
	row := q.QueryRowContext(ctx, query, args...)
	var n int64
	if err := row.Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// InsertRecordParams groups InsertRecord's arguments.
type InsertRecordParams struct {
	PlayerID     int32
	MapID        int32
	Time         int32
	RespawnCount int32
	Flags        model.RecordFlags
	Timestamp    time.Time
	ModeVersion  *string
	CPTimes      []int32 // optional checkpoint splits, index = cp number
}

// InsertRecord writes a new record row and its optional CP splits, returning
// the new record id (§4.1, §3 [ADD] CP splits). tx may be nil to run outside
// a transaction.
func (s *Store) InsertRecord(ctx context.Context, tx Tx, p InsertRecordParams) (int64, error) {
	q := s.querierFor(tx)
	row := q.QueryRowContext(ctx, `
		INSERT INTO records (player_id, map_id, time, respawn_count, ts, flags, mode_version)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`,
		p.PlayerID, p.MapID, p.Time, p.RespawnCount, pgtype.Timestamptz{Time: p.Timestamp, Status: pgtype.Present}, uint32(p.Flags), p.ModeVersion)
	var id int64
	if err := row.Scan(&id); err != nil {
		return 0, err
	}
	for cp, t := range p.CPTimes {
		if _, err := q.ExecContext(ctx, `
			INSERT INTO record_cp_times (record_id, cp_num, time) VALUES ($1, $2, $3)`, id, cp, t); err != nil {
			return 0, err
		}
	}
	return id, nil
}

// LinkEventRecord writes the EventEditionRecord linkage row of §4.1. A
// unique violation on the (event_id, edition_id, record_id) triple is
// swallowed rather than surfaced, since a retried ingestion re-linking the
// same record to the same edition is the idempotent case, not an error
// (§8 property 4). tx may be nil to run outside a transaction.
func (s *Store) LinkEventRecord(ctx context.Context, tx Tx, recordID int64, eventID, editionID int32) error {
	q := s.querierFor(tx)
	_, err := q.ExecContext(ctx, `
		INSERT INTO event_edition_records (event_id, edition_id, record_id) VALUES ($1, $2, $3)`,
		eventID, editionID, recordID)
	if err != nil && isUniqueViolation(err) {
		return nil
	}
	return err
}

// CloneRecordForOriginal writes a record with event_record_id = sourceRecordID
// on originalMapID (§4.1, §4.6 step 6/7). tx may be nil to run outside a
// transaction.
func (s *Store) CloneRecordForOriginal(ctx context.Context, tx Tx, originalMapID int32, sourceRecordID int64, playerID, t, rs int32, flags model.RecordFlags, ts time.Time) (int64, error) {
	q := s.querierFor(tx)
	row := q.QueryRowContext(ctx, `
		INSERT INTO records (player_id, map_id, time, respawn_count, ts, flags, event_record_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`,
		playerID, originalMapID, t, rs, pgtype.Timestamptz{Time: ts, Status: pgtype.Present}, uint32(flags), sourceRecordID)
	var id int64
	if err := row.Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

// GetPBRecord fetches the full PB record (for the /player/pb endpoint, §6)
// plus its CP split times.
func (s *Store) GetPBRecord(ctx context.Context, playerID, mapID int32, id selector.Identity) (*model.Record, []model.RecordCPTime, error) {
	query, args := pbQuery(id, "r.id, r.player_id, r.map_id, r.time, r.respawn_count, r.ts, r.flags, r.mode_version, r.event_record_id", playerID, mapID)
	row := s.db.QueryRowContext(ctx, query, args...)

	var r model.Record
	var flags uint32
	var ts pgtype.Timestamptz
	var modeVersion sql.NullString
	var eventRecordID sql.NullInt64
	if err := row.Scan(&r.ID, &r.PlayerID, &r.MapID, &r.Time, &r.RespawnCount, &ts, &flags, &modeVersion, &eventRecordID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, nil
		}
		return nil, nil, err
	}
	if ts.Status == pgtype.Present {
		r.Timestamp = ts.Time
	}
	r.Flags = model.RecordFlags(flags)
	if modeVersion.Valid {
		r.ModeVersion = &modeVersion.String
	}
	if eventRecordID.Valid {
		v := eventRecordID.Int64
		r.EventRecordID = &v
	}

	cpRows, err := s.db.QueryContext(ctx, `
		SELECT record_id, cp_num, time FROM record_cp_times WHERE record_id = $1 ORDER BY cp_num ASC`, r.ID)
	if err != nil {
		return nil, nil, err
	}
	defer cpRows.Close()
	var cps []model.RecordCPTime
	for cpRows.Next() {
		var c model.RecordCPTime
		if err := cpRows.Scan(&c.RecordID, &c.CPNum, &c.Time); err != nil {
			return nil, nil, err
		}
		cps = append(cps, c)
	}
	return &r, cps, cpRows.Err()
}

// ListEvents returns every event, for the `GET /event` listing (§6).
func (s *Store) ListEvents(ctx context.Context) ([]model.Event, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, handle, cooldown_seconds FROM events ORDER BY handle ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Event
	for rows.Next() {
		var e model.Event
		var cooldown sql.NullInt64
		if err := rows.Scan(&e.ID, &e.Handle, &cooldown); err != nil {
			return nil, err
		}
		if cooldown.Valid {
			d := time.Duration(cooldown.Int64) * time.Second
			e.Cooldown = &d
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ListEventEditions returns every edition of the event named by handle, for
// `GET /event/{handle}` (§6).
func (s *Store) ListEventEditions(ctx context.Context, handle string) (*model.Event, []model.EventEdition, error) {
	event, err := s.MustHaveEventHandle(ctx, handle)
	if err != nil {
		return nil, nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT edition_id, name, subtitle, start_date, ttl_seconds, mx_id,
		       save_non_event_record, non_original_maps, is_transparent, transitive_save,
		       manialink_url, icon
		FROM event_editions WHERE event_id = $1 ORDER BY start_date DESC`, event.ID)
	if err != nil {
		return nil, nil, apierr.Internal(err, "list event editions")
	}
	defer rows.Close()

	var editions []model.EventEdition
	for rows.Next() {
		var ed model.EventEdition
		var subtitle sql.NullString
		var startDate pgtype.Timestamptz
		var ttl sql.NullInt64
		var mxID sql.NullInt32
		var manialinkURL, icon sql.NullString
		if err := rows.Scan(&ed.EditionID, &ed.Name, &subtitle, &startDate, &ttl,
			&mxID, &ed.SaveNonEventRecord, &ed.NonOriginalMaps, &ed.IsTransparent, &ed.TransitiveSave,
			&manialinkURL, &icon); err != nil {
			return nil, nil, apierr.Internal(err, "scan event edition")
		}
		ed.EventID = event.ID
		if startDate.Status == pgtype.Present {
			ed.StartDate = startDate.Time
		}
		if subtitle.Valid {
			ed.Subtitle = &subtitle.String
		}
		if ttl.Valid {
			ed.TTLSeconds = &ttl.Int64
		}
		if mxID.Valid {
			ed.MXID = &mxID.Int32
		}
		ed.Display = scanDisplayParams(manialinkURL, icon)
		editions = append(editions, ed)
	}
	return event, editions, rows.Err()
}

// ListEventEditionMaps returns the maps bound into (handle, editionID),
// grouped by category, for `GET /event/{handle}/{edition}` (§6).
func (s *Store) ListEventEditionMaps(ctx context.Context, handle string, editionID int32) (*model.Event, *model.EventEdition, []model.EventEditionMap, error) {
	event, edition, err := s.MustHaveEventEdition(ctx, handle, editionID)
	if err != nil {
		return nil, nil, nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT eem.map_id, eem."order", eem.original_map_id, eem.transitive_save,
		       m.medal_bronze, m.medal_silver, m.medal_gold, m.medal_author,
		       ec.id, ec.handle, ec.name, ec.banner_url, ec.hex_color
		FROM event_edition_maps eem
		JOIN maps m ON m.id = eem.map_id
		LEFT JOIN event_categories ec ON ec.id = eem.category_id
		WHERE eem.event_id = $1 AND eem.edition_id = $2
		ORDER BY eem."order" ASC`, event.ID, edition.EditionID)
	if err != nil {
		return nil, nil, nil, apierr.Internal(err, "list event edition maps")
	}
	defer rows.Close()

	var maps []model.EventEditionMap
	for rows.Next() {
		var m model.EventEditionMap
		var originalMapID sql.NullInt32
		var bronze, silver, gold, author sql.NullInt32
		var catID sql.NullInt32
		var catHandle, catName, bannerURL, hexColor sql.NullString
		if err := rows.Scan(&m.MapID, &m.Order, &originalMapID, &m.TransitiveSave,
			&bronze, &silver, &gold, &author, &catID, &catHandle, &catName, &bannerURL, &hexColor); err != nil {
			return nil, nil, nil, apierr.Internal(err, "scan event edition map")
		}
		m.EventID = event.ID
		m.EditionID = edition.EditionID
		if catID.Valid {
			cat := &model.EventCategory{ID: catID.Int32, Handle: catHandle.String, Name: catName.String}
			if bannerURL.Valid {
				cat.BannerURL = &bannerURL.String
			}
			if hexColor.Valid {
				cat.HexColor = &hexColor.String
			}
			m.Category = cat
		}
		if originalMapID.Valid {
			v := originalMapID.Int32
			m.OriginalMapID = &v
		}
		if bronze.Valid && silver.Valid && gold.Valid && author.Valid {
			m.MedalTimes = &model.MedalTimes{Bronze: bronze.Int32, Silver: silver.Int32, Gold: gold.Int32, Author: author.Int32}
		}
		maps = append(maps, m)
	}
	return event, edition, maps, rows.Err()
}

package cli

import (
	"context"
	"encoding/csv"
	"flag"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/speedrun-hub/obstacle-engine/internal/durable"
	"github.com/speedrun-hub/obstacle-engine/internal/faststore"
	"github.com/speedrun-hub/obstacle-engine/internal/ingest"
	"github.com/speedrun-hub/obstacle-engine/internal/mappack"
	"github.com/speedrun-hub/obstacle-engine/internal/model"
	"github.com/speedrun-hub/obstacle-engine/internal/ranking"
	"github.com/speedrun-hub/obstacle-engine/server"
)

// MXIngestMain bulk-loads an MX-style mappack's finish records from a CSV
// export and registers the pack for the next sweep tick. Per §1 this
// collaborator carries no ingestion logic of its own: it builds
// ingest.Request values off each row and hands them to the same Ingestor
// the HTTP server uses, so a bulk-loaded run and a live player submission
// go through identical validation and ranking.
//
// Expected CSV columns, no header row: player_login,map_uid,time_ms,
// respawn_count,mode_version (mode_version may be empty).
func MXIngestMain(args []string) {
	consoleLogger := server.NewJSONLogger(os.Stdout, zap.InfoLevel, server.JSONFormat)

	flagSet := flag.NewFlagSet("mxingest", flag.ExitOnError)
	dsn := flagSet.String("database.dsn", "postgres://root@localhost:5432/obstacle_engine?sslmode=disable", "Postgres DSN.")
	redisAddr := flagSet.String("redis.addr", "localhost:6379", "Redis address.")
	file := flagSet.String("file", "", "Path to the CSV export of finish records.")
	packID := flagSet.String("pack-id", "", "Mappack identifier to register the ingested maps under.")
	_ = flagSet.Parse(args)

	if *file == "" || *packID == "" {
		consoleLogger.Fatal("mxingest requires -file and -pack-id")
	}

	ctx := context.Background()

	db, err := durable.Open(ctx, *dsn)
	if err != nil {
		consoleLogger.Fatal("failed to connect to durable store", zap.Error(err))
	}
	defer db.Close()

	redisClient := redis.NewClient(&redis.Options{Addr: *redisAddr})
	defer redisClient.Close()
	fs := faststore.New(redisClient)

	locks := ranking.NewLockRegistry(consoleLogger)
	syncer := ranking.NewSyncer(consoleLogger, db, fs, locks)
	resolver := ranking.NewResolver(consoleLogger, db, fs, locks, syncer)
	ingestor := ingest.New(consoleLogger, db, fs, resolver, locks)

	f, err := os.Open(*file)
	if err != nil {
		consoleLogger.Fatal("failed to open csv file", zap.Error(err))
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	seenMaps := make(map[string]struct{})
	var mapUIDs []string
	rowNum, ingested, failed := 0, 0, 0

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		rowNum++
		if err != nil {
			consoleLogger.Error("failed to read csv row", zap.Int("row", rowNum), zap.Error(err))
			failed++
			continue
		}
		if len(record) < 4 {
			consoleLogger.Error("csv row has too few columns", zap.Int("row", rowNum))
			failed++
			continue
		}

		login, mapUID := record[0], record[1]
		t, err := strconv.ParseInt(record[2], 10, 32)
		if err != nil {
			consoleLogger.Error("invalid time column", zap.Int("row", rowNum), zap.Error(err))
			failed++
			continue
		}
		respawns, err := strconv.ParseInt(record[3], 10, 32)
		if err != nil {
			consoleLogger.Error("invalid respawn_count column", zap.Int("row", rowNum), zap.Error(err))
			failed++
			continue
		}

		var modeVersion *string
		if len(record) > 4 && record[4] != "" {
			mv := record[4]
			modeVersion = &mv
		}

		req := ingest.Request{
			PlayerLogin:  login,
			MapUID:       mapUID,
			Time:         int32(t),
			RespawnCount: int32(respawns),
			Flags:        model.RecordFlags(0),
			ModeVersion:  modeVersion,
			Timestamp:    time.Now().UTC(),
		}

		if _, err := ingestor.Ingest(ctx, req); err != nil {
			consoleLogger.Error("failed to ingest row", zap.Int("row", rowNum), zap.String("login", login), zap.String("map_uid", mapUID), zap.Error(err))
			failed++
			continue
		}

		if _, ok := seenMaps[mapUID]; !ok {
			seenMaps[mapUID] = struct{}{}
			mapUIDs = append(mapUIDs, mapUID)
		}
		ingested++
	}

	if err := mappack.RegisterMX(ctx, fs, *packID, mapUIDs); err != nil {
		consoleLogger.Fatal("failed to register mappack", zap.Error(err))
	}

	consoleLogger.Info("mxingest complete",
		zap.String("pack_id", *packID),
		zap.Int("rows", rowNum),
		zap.Int("ingested", ingested),
		zap.Int("failed", failed),
		zap.Int("maps", len(mapUIDs)))
}

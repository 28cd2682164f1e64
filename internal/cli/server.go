// Package cli holds the process entrypoints this engine ships: the HTTP
// server, the schema migrator, and the MX mappack ingestion tool. Grounded
// on the teacher's root main.go bootstrap shape (console logger first,
// config parse, structured-logger handoff, startup info lines, signal-
// driven shutdown) and cmd/migrate.go's subcommand dispatch, re-pointed at
// this system's collaborators instead of nakama's socket/runtime/presence
// stack.
package cli

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/speedrun-hub/obstacle-engine/internal/authn"
	"github.com/speedrun-hub/obstacle-engine/internal/durable"
	"github.com/speedrun-hub/obstacle-engine/internal/faststore"
	"github.com/speedrun-hub/obstacle-engine/internal/ingest"
	"github.com/speedrun-hub/obstacle-engine/internal/mappack"
	"github.com/speedrun-hub/obstacle-engine/internal/notify"
	"github.com/speedrun-hub/obstacle-engine/internal/ranking"
	"github.com/speedrun-hub/obstacle-engine/server"
	"github.com/speedrun-hub/obstacle-engine/server/graphql"
	enginehttp "github.com/speedrun-hub/obstacle-engine/server/http"
)

// ServerMain runs the HTTP+GraphQL server until it receives SIGINT/SIGTERM.
func ServerMain(args []string) {
	consoleLogger := server.NewJSONLogger(os.Stdout, zap.InfoLevel, server.JSONFormat)
	config := server.ParseArgs(consoleLogger, args)
	logger, _ := server.SetupLogging(consoleLogger, config)

	logger.Info("obstacle-engine starting",
		zap.String("name", config.GetName()),
		zap.Int("port", config.GetPort()))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := durable.Open(ctx, config.GetDatabase().DSN)
	if err != nil {
		logger.Fatal("failed to connect to durable store", zap.Error(err))
	}
	defer db.Close()

	redisClient := redis.NewClient(&redis.Options{
		Addr:     config.GetRedis().Addr,
		Password: config.GetRedis().Password,
		DB:       config.GetRedis().DB,
	})
	defer redisClient.Close()
	fs := faststore.New(redisClient)

	locks := ranking.NewLockRegistry(logger)
	syncer := ranking.NewSyncer(logger, db, fs, locks)
	resolver := ranking.NewResolver(logger, db, fs, locks, syncer)
	ingestor := ingest.New(logger, db, fs, resolver, locks)

	verifier := authn.NewVerifier(config.GetSession().SigningKey)

	var sink notify.Sink
	if config.GetNotify().DiscordWebhookURL != "" {
		sink = notify.NewDiscordWebhook(logger, http.DefaultClient, config.GetNotify().DiscordWebhookURL)
	}

	scorer := mappack.NewScorer(logger, db, fs, resolver)
	mxTTL := time.Duration(config.GetEvents().MXMappackTTLHours) * time.Hour
	mxSource := mappack.NewRegisteredSource(db, fs, mxTTL)
	sweeper, err := mappack.NewSweeper(logger, scorer, mxSource, config.GetEvents().MXMappackSweepSchedule)
	if err != nil {
		logger.Fatal("invalid mx mappack sweep schedule", zap.Error(err))
	}
	go sweeper.Run(ctx)

	httpSrv := enginehttp.NewServer(logger, db, syncer, ingestor, verifier, sink)
	graphqlHandler := graphql.NewHandler(logger, db)
	router := enginehttp.NewRouter(logger, httpSrv, verifier, graphqlHandler)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", config.GetPort()),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("http listener starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("http listener failed", zap.Error(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("obstacle-engine shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/jesselively/Email-Family-PDF-Merger/internal/dispatcher"
	"github.com/jesselively/Email-Family-PDF-Merger/internal/metrics"
	"github.com/jesselively/Email-Family-PDF-Merger/internal/queue"
	"github.com/jesselively/Email-Family-PDF-Merger/internal/statuscheck"
	"github.com/jesselively/Email-Family-PDF-Merger/internal/storage"
	"github.com/jesselively/Email-Family-PDF-Merger/internal/store"
	"github.com/jesselively/Email-Family-PDF-Merger/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP orchestrator and run worker",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	initLogging(false)
	metrics.Init()

	rq, err := queue.NewRedisQueue(cfg.Queue.RedisURL, cfg.Queue.Stream, cfg.Queue.Group)
	if err != nil {
		return fmt.Errorf("connect run queue: %w", err)
	}
	defer rq.Close()

	runs, err := store.NewRedisRuns(cfg.Queue.RedisURL)
	if err != nil {
		return fmt.Errorf("init run status store: %w", err)
	}
	defer runs.Close()

	var arch *storage.Archiver
	if cfg.Archive.Enabled() {
		arch, err = storage.New(cmd.Context(), cfg.Archive)
		if err != nil {
			log.Error().Err(err).Msg("archive setup failed, continuing without")
			arch = nil
		}
	}

	disp := dispatcher.New(dispatcher.Config{
		Concurrency:  cfg.Worker.Concurrency,
		RunTimeout:   cfg.Worker.RunTimeout,
		PollInterval: cfg.Queue.PollInterval,
	}, rq, runs, buildEngine(), arch)
	disp.Start()

	health := statuscheck.New(statuscheck.Options{
		Redis:         rq,
		ArchiveBucket: cfg.Archive.Bucket,
		TmpDir:        cfg.Merge.TmpDir,
	})

	mux := http.NewServeMux()
	web.New(web.Dependencies{Queue: rq, Runs: runs, Health: health}).RegisterRoutes(mux)
	mux.Handle("/metrics", metrics.Handler())

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	srv := &http.Server{Addr: ":" + port, Handler: mux}

	go func() {
		log.Info().Msgf("HTTP server listening on :%s", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("http server error")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
	if err := disp.Stop(ctx); err != nil {
		log.Warn().Err(err).Msg("worker did not drain in time")
	}
	log.Info().Msg("shutdown complete")
	return nil
}

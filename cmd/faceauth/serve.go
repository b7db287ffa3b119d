package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"faceauth-go/internal/api/handlers"
	"faceauth-go/internal/cleanup"
	"faceauth-go/internal/enrollment"
	"faceauth-go/internal/integrations/mqtt"
	"faceauth-go/internal/server"
	"faceauth-go/internal/server/sse"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Long: `Start the HTTP API for enrollment, training, recognition and face login.
The recognizer is trained from the stored reference faces on startup.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, enrollment.SourceAPI)
	if err != nil {
		return err
	}
	defer a.Close()

	publisher := mqtt.NewPublisher(cfg.MQTT)
	if err := publisher.Start(); err != nil {
		log.Warnf("MQTT nicht verfügbar, fahre ohne fort: %v", err)
	}
	defer publisher.Stop()

	hubCtx, stopHub := context.WithCancel(ctx)
	defer stopHub()
	hub := sse.NewHub()
	go hub.Run(hubCtx)

	cleanupService := cleanup.NewService(a.repo, cfg.Cleanup.RetentionDays, cfg.Cleanup.Interval)
	cleanupService.Start()
	defer cleanupService.Stop()

	api := handlers.NewAPIHandler(a.engine, a.store, a.repo, hub, cfg.Server.MaxUploadMB, publisher)
	srv, err := server.New(cfg, api)
	if err != nil {
		return err
	}
	return srv.Run(ctx)
}

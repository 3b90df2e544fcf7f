// Command frozenkv-server boots one replica: it loads server settings from
// an INI config file (or built-in defaults), opens the catalog rooted at
// the configured data directory, and serves the wire protocol until
// SIGINT/SIGTERM triggers a graceful shutdown.
package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"

	"frozenkv/internal/catalog"
	"frozenkv/internal/config"
	"frozenkv/internal/server"
	"frozenkv/internal/telemetry"
)

func main() {
	configPath := flag.String("config", "", "path to an INI server configuration file")
	flag.Parse()

	var settings *config.ServerSettings
	var err error
	if *configPath != "" {
		settings, err = config.Load(*configPath)
	} else {
		settings = config.Default()
	}
	if err != nil {
		panic(err)
	}

	logger, err := telemetry.New(settings.Development)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	cat := catalog.New(catalog.Config{Root: settings.DataDir, Logger: logger})
	if err := cat.Open(); err != nil {
		logger.Fatalw("failed to open catalog", "error", err)
	}
	defer cat.Close()

	srv := server.New(server.Config{
		ListenAddr:     settings.ListenAddr,
		Catalog:        cat,
		Logger:         logger,
		FeedQueueDepth: settings.FeedQueueDepth,
	})

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Infow("shutdown signal received")
		srv.Stop()
	}()

	if err := srv.Serve(); err != nil {
		logger.Fatalw("server exited with error", "error", err)
	}
}

// Command neorelay serves the NeoChat relay: a store-and-forward mailbox for
// sealed envelopes plus a profile directory.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/opd-ai/neochat/config"
	"github.com/opd-ai/neochat/relay"
)

const pruneInterval = 10 * time.Minute

func main() {
	configPath := flag.String("config", "neorelay.yaml", "Path to the YAML configuration file")
	listen := flag.String("listen", "", "Listen address (overrides the configuration)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}
	logrus.SetLevel(cfg.Level())
	if *listen != "" {
		cfg.Relay.Listen = *listen
	}

	registry := prometheus.NewRegistry()
	server, err := relay.NewServer(relay.ServerOptions{
		Registerer:   registry,
		TunnelDomain: cfg.DNSTunnel.BaseDomain,
	})
	if err != nil {
		logrus.WithError(err).Fatal("Failed to create relay")
	}

	mux := http.NewServeMux()
	mux.Handle("/", server.Handler())
	if cfg.Metrics.Enabled {
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	}

	httpServer := &http.Server{
		Addr:              cfg.Relay.Listen,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		ticker := time.NewTicker(pruneInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				server.Prune()
			}
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logrus.WithError(err).Warn("Relay shutdown did not complete")
		}
	}()

	logrus.WithFields(logrus.Fields{
		"function": "main",
		"listen":   cfg.Relay.Listen,
		"metrics":  cfg.Metrics.Enabled,
		"tunnel":   cfg.DNSTunnel.BaseDomain,
	}).Info("Relay listening")

	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logrus.WithError(err).Fatal("Relay stopped")
	}
}

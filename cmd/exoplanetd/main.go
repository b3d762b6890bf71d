// Command exoplanetd serves the exoplanet classification API.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/YuminosukeSato/exoplanet-classifier/internal/api"
	"github.com/YuminosukeSato/exoplanet-classifier/internal/config"
	"github.com/YuminosukeSato/exoplanet-classifier/internal/history"
	"github.com/YuminosukeSato/exoplanet-classifier/internal/service"
	"github.com/YuminosukeSato/exoplanet-classifier/internal/store"
	"github.com/YuminosukeSato/exoplanet-classifier/pkg/errors"
	"github.com/YuminosukeSato/exoplanet-classifier/pkg/log"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "exoplanetd: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	provider, err := log.NewZerologProvider(cfg.Logging())
	if err != nil {
		return err
	}
	defer provider.Close()
	log.SetProvider(provider)
	logger := log.GetLoggerWithName("exoplanetd")

	for _, dir := range []string{cfg.DataDir, cfg.ModelDir, filepath.Dir(cfg.HistoryDB)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrapf(err, "failed to create %s", dir)
		}
	}

	hist, err := history.Open(cfg.HistoryDB)
	if err != nil {
		return err
	}
	defer hist.Close()

	svc, err := service.New(store.New(cfg.ModelDir), service.Options{
		DatasetPath:   cfg.DatasetPath(),
		InfoCacheSize: cfg.InfoCacheSize,
		History:       hist,
	})
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr: cfg.HTTPAddr,
		Handler: api.NewRouter(svc, api.Options{
			CORSOrigins:    cfg.CORSOrigins,
			MaxUploadBytes: cfg.MaxUploadBytes(),
		}),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Server listening",
			"http.addr", cfg.HTTPAddr,
			log.ArtifactDirKey, cfg.ModelDir,
			log.DatasetPathKey, cfg.DatasetPath(),
			"model_trained", svc.IsTrained(),
		)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "server failed")
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

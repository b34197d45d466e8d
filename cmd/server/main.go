// Package main starts the directory mock: it loads the directory from the
// built-in seed, a YAML seed file or PostgreSQL, and serves it over HTTP
// or HTTPS until interrupted.
package main

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	nethttp "net/http"

	"github.com/atinyakov/gvagate/internal/config"
	"github.com/atinyakov/gvagate/internal/db"
	"github.com/atinyakov/gvagate/internal/logger"
	"github.com/atinyakov/gvagate/internal/repository"
	"github.com/atinyakov/gvagate/internal/server/handler/http"
	"github.com/atinyakov/gvagate/internal/service"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

var (
	// version holds the build version set via ldflags.
	version string
	// buildDate holds the build timestamp set via ldflags.
	buildDate string
)

const shutdownTimeout = 5 * time.Second

func main() {
	// A missing .env is normal outside development.
	_ = godotenv.Load()

	options := config.Parse()

	fmt.Printf("Build version: %s\n", cmpOr(version, "N/A"))
	fmt.Printf("Build date: %s\n", cmpOr(buildDate, "N/A"))

	log := logger.New()
	defer func() { _ = log.Log.Sync() }()
	if err := log.Init(options.LogLevel); err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	zapLogger := log.Log

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	snap, err := loadSnapshot(ctx, options)
	if err != nil {
		zapLogger.Fatal("cannot load directory", zap.Error(err))
	}
	zapLogger.Info("directory loaded",
		zap.String("source", snapshotSource(options)),
		zap.Int("groups", len(snap.Groups)),
		zap.Int("users", len(snap.Credentials)),
	)

	server, err := newServer(options, snap, zapLogger)
	if err != nil {
		zapLogger.Fatal("cannot configure server", zap.Error(err))
	}

	if err := serve(ctx, server, options.TLSEnabled(), zapLogger); err != nil {
		zapLogger.Fatal("server failed", zap.Error(err))
	}
}

// loadSnapshot reads the directory from the configured source. PostgreSQL
// is read once and the connection closed; its token comes from the
// built-in seed unless overridden.
func loadSnapshot(ctx context.Context, options *config.Options) (*repository.Snapshot, error) {
	var (
		snap *repository.Snapshot
		err  error
	)

	switch {
	case options.DatabaseDSN != "":
		snap, err = loadPostgres(ctx, options.DatabaseDSN)
	case options.SeedFile != "":
		snap, err = repository.LoadSeed(options.SeedFile)
	default:
		snap, err = repository.DefaultSnapshot()
	}
	if err != nil {
		return nil, err
	}

	if options.MachineToken != "" {
		snap.MachineToken = options.MachineToken
	}
	if snap.MachineToken == "" {
		def, err := repository.DefaultSnapshot()
		if err != nil {
			return nil, err
		}
		snap.MachineToken = def.MachineToken
	}
	return snap, nil
}

func loadPostgres(ctx context.Context, dsn string) (*repository.Snapshot, error) {
	conn, err := db.InitPostgres(dsn)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	return repository.LoadPostgresSnapshot(ctx, conn)
}

func snapshotSource(options *config.Options) string {
	switch {
	case options.DatabaseDSN != "":
		return "postgres"
	case options.SeedFile != "":
		return options.SeedFile
	default:
		return "builtin"
	}
}

// newServer wires repository, service, handler and router into an
// *http.Server, loading the TLS key pair when configured.
func newServer(options *config.Options, snap *repository.Snapshot, zapLogger *zap.Logger) (*nethttp.Server, error) {
	repo := repository.NewMemoryDirectoryRepository(snap)
	directoryService := service.NewDirectoryService(repo, repo.MachineToken())
	directoryHandler := http.NewDirectoryHandler(directoryService, zapLogger)
	router := http.NewRouter(directoryHandler, zapLogger, options.AllowedOrigins)

	server := &nethttp.Server{
		Addr:              options.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	if options.TLSEnabled() {
		cert, err := tls.LoadX509KeyPair(options.TLSCert, options.TLSKey)
		if err != nil {
			return nil, fmt.Errorf("failed to load server TLS cert/key: %w", err)
		}
		server.TLSConfig = &tls.Config{
			Certificates: []tls.Certificate{cert},
			MinVersion:   tls.VersionTLS12,
		}
	}
	return server, nil
}

// serve runs server until ctx is done, then shuts it down gracefully.
func serve(ctx context.Context, server *nethttp.Server, useTLS bool, zapLogger *zap.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		if useTLS {
			zapLogger.Info("starting HTTPS server", zap.String("addr", server.Addr))
			errCh <- server.ListenAndServeTLS("", "")
		} else {
			zapLogger.Info("starting HTTP server", zap.String("addr", server.Addr))
			errCh <- server.ListenAndServe()
		}
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, nethttp.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	zapLogger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

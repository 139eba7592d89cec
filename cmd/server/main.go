package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/rs/zerolog/log"

	"github.com/jrsteele09/go-session-auth/auth"
	"github.com/jrsteele09/go-session-auth/guard"
	"github.com/jrsteele09/go-session-auth/internal/config"
	"github.com/jrsteele09/go-session-auth/internal/logger"
	"github.com/jrsteele09/go-session-auth/server"
	"github.com/jrsteele09/go-session-auth/store"
	"github.com/jrsteele09/go-session-auth/store/boltstore"
	"github.com/jrsteele09/go-session-auth/store/memstore"
	"github.com/jrsteele09/go-session-auth/store/redisstore"
	"github.com/jrsteele09/go-session-auth/token"
	"github.com/jrsteele09/go-session-auth/token/refresh"
)

const (
	adminName       = "Administrator"
	shutdownTimeout = 5 * time.Second
)

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("server stopped with error")
	}
	log.Info().Msg("server stopped")
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Bytes("stack", debug.Stack()).Msg("recovered from panic")
			returnError = errors.New("panic recovered")
		}
	}()

	c, err := config.Load()
	if err != nil {
		return err
	}
	logger.Setup(c.GetEnv(), c.GetLogLevel())
	displayAppname(c.GetAppName())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	credentials, err := openStore(ctx, c)
	if err != nil {
		return err
	}
	defer func() {
		if err := credentials.Close(); err != nil {
			log.Error().Err(err).Msg("closing credential store")
		}
	}()

	handler, refreshTokens, err := buildServer(ctx, c, credentials)
	if err != nil {
		return err
	}
	go refreshTokens.RunSweeper(ctx, c.GetSweepInterval())

	httpServer := &http.Server{
		Addr:              c.GetPort(),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() { serveErr <- listenAndServe(httpServer) }()

	select {
	case err := <-serveErr:
		return err
	case <-waitForStopSignal():
	}
	return shutdown(httpServer)
}

// buildServer wires the token codecs, managers, issuer and guard over store
func buildServer(ctx context.Context, c config.Config, credentials store.CredentialStore) (*server.Server, *refresh.Manager, error) {
	accessSigner, err := token.NewHMACSigner(c.GetAccessSecret())
	if err != nil {
		return nil, nil, fmt.Errorf("access signer: %w", err)
	}
	refreshSigner, err := token.NewHMACSigner(c.GetRefreshSecret())
	if err != nil {
		return nil, nil, fmt.Errorf("refresh signer: %w", err)
	}

	accessTokens := token.NewManager(token.NewCodec(accessSigner),
		token.WithAccessTokenExpiry(c.GetAccessTokenExpiry()))
	refreshTokens := refresh.NewManager(credentials, credentials, token.NewCodec(refreshSigner), accessTokens,
		refresh.WithRefreshTokenExpiry(c.GetRefreshTokenExpiry()),
		refresh.WithRotation(c.GetRotateRefreshTokens()))

	authService, err := auth.NewService(credentials, accessTokens, refreshTokens)
	if err != nil {
		return nil, nil, err
	}
	if email, password, ok := c.GetAdminCredentials(); ok {
		if _, err := authService.EnsureAdmin(ctx, adminName, email, password); err != nil {
			return nil, nil, fmt.Errorf("admin bootstrap: %w", err)
		}
	}

	s, err := server.New(c, authService, refreshTokens, guard.New(accessTokens))
	if err != nil {
		return nil, nil, err
	}
	return s, refreshTokens, nil
}

func openStore(ctx context.Context, c config.StoreConfig) (store.CredentialStore, error) {
	switch c.GetStoreBackend() {
	case config.StoreBolt:
		if err := os.MkdirAll(filepath.Dir(c.GetBoltPath()), 0o700); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
		log.Info().Str("path", c.GetBoltPath()).Msg("using bolt credential store")
		s, err := boltstore.Open(c.GetBoltPath())
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.StoreRedis:
		log.Info().Str("addr", c.GetRedisAddr()).Msg("using redis credential store")
		s, err := redisstore.Dial(ctx, c.GetRedisAddr(), c.GetRedisPassword(), c.GetRedisDB(), c.GetRedisPrefix())
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		log.Warn().Msg("using in-memory credential store, sessions will not survive a restart")
		return memstore.New(), nil
	}
}

func listenAndServe(server *http.Server) error {
	log.Info().Str("addr", server.Addr).Msg("server listening")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server.ListenAndServe %w", err)
	}
	return nil
}

func waitForStopSignal() <-chan os.Signal {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	return stop
}

func shutdown(server *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}

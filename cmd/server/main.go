// Package main provides the server entry point.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/osa030/vibebox/internal/api/audioproxy"
	apiconnect "github.com/osa030/vibebox/internal/api/connect"
	"github.com/osa030/vibebox/internal/app/notification"
	"github.com/osa030/vibebox/internal/app/playback"
	"github.com/osa030/vibebox/internal/app/prefetch"
	"github.com/osa030/vibebox/internal/app/resolver"
	"github.com/osa030/vibebox/internal/infra/audiobackend"
	"github.com/osa030/vibebox/internal/infra/config"
	"github.com/osa030/vibebox/internal/infra/logger"
	"github.com/osa030/vibebox/internal/infra/spotify"
)

var (
	app        = kingpin.New("vibebox-server", "vibebox playback server")
	configPath = app.Flag("config", "Path to config file").Default("config/server.yaml").String()
	verbose    = app.Flag("verbose", "Enable verbose (DEBUG) logging").Short('v').Bool()
	logfile    = app.Flag("logfile", "Path to log file (default: stdout)").String()
	logFormat  = app.Flag("log-format", "Log format (console or json)").Default("console").Enum("console", "json")

	checkConfigCmd = app.Command("check-config", "Validate the config file and exit")
)

func init() {
	app.Command("start", "Start the server (default)").Default()
}

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	loggerConfig := logger.Config{
		Output: "stdout",
		Level:  "info",
		Format: *logFormat,
	}
	if *verbose {
		loggerConfig.Level = "debug"
	}
	if *logfile != "" {
		loggerConfig.Output = *logfile
		loggerConfig.File = *logfile
	}
	if err := logger.Init(loggerConfig); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}

	zlog.Info().Msgf("Loading config from %s", *configPath)
	cfg, err := config.Load(*configPath)
	if err != nil {
		zlog.Fatal().Msgf("Failed to load config: %v", err)
	}

	if command == checkConfigCmd.FullCommand() {
		fmt.Printf("config ok: addr=%s backend=%s resolver=%s prefetch_depth=%d user_token=%t\n",
			cfg.Server.Addr, cfg.Backend.BaseURL, cfg.Resolver.Type, cfg.Playback.PrefetchDepth, cfg.HasUserToken())
		return
	}

	if err := run(cfg); err != nil {
		zlog.Error().Msgf("Server error: %v", err)
		os.Exit(1)
	}
}

// run executes the main server logic. Using a separate function ensures
// defer statements are executed even when returning with an error.
func run(cfg *config.Config) error {
	ctx := context.Background()

	catalog, err := spotify.New(ctx, spotify.Config{
		ClientID:     cfg.Spotify.ClientID,
		ClientSecret: cfg.Spotify.ClientSecret,
		RefreshToken: cfg.Spotify.RefreshToken,
		Market:       cfg.Spotify.Market,
	})
	if err != nil {
		return errors.Wrap(err, "failed to create Spotify client")
	}
	if !cfg.HasUserToken() {
		zlog.Info().Msg("No Spotify refresh token configured, saved tracks are unavailable")
	}

	backend, err := audiobackend.New(audiobackend.Config{
		BaseURL: cfg.Backend.BaseURL,
		Timeout: cfg.BackendTimeout(),
	})
	if err != nil {
		return errors.Wrap(err, "failed to create audio backend client")
	}

	res, err := resolver.NewFromConfig(cfg, backend)
	if err != nil {
		return err
	}

	prefetcher := prefetch.New(backend, prefetch.Config{
		RatePerSec: cfg.Playback.PrefetchRatePerSec,
		Burst:      cfg.Playback.PrefetchBurst,
		Timeout:    cfg.WarmTimeout(),
	})
	defer prefetcher.Close()

	session, err := playback.NewSession(playback.Config{
		PrefetchDepth:  cfg.Playback.PrefetchDepth,
		ResolveTimeout: cfg.ResolveTimeout(),
		EventBuffer:    cfg.Playback.EventBuffer,
	}, res, prefetcher)
	if err != nil {
		return errors.Wrap(err, "failed to create playback session")
	}

	notifier := notification.NewManager()
	eventsDone := make(chan struct{})
	go func() {
		defer close(eventsDone)
		forwardEvents(session, notifier)
	}()

	playerService := apiconnect.NewPlayerService(session, catalog, notifier)

	mux := http.NewServeMux()
	playerPath, playerHandler := apiconnect.NewHandler(playerService, cfg.Server.Token)
	mux.Handle(playerPath, playerHandler)
	mux.Handle(audioproxy.Prefix, audioproxy.NewHandler(backend))

	if cfg.Server.Token == "" {
		zlog.Warn().Msg("No player token configured, RPC API is unauthenticated")
	}

	serverAddr := cfg.Server.Addr
	// Create server with h2c (HTTP/2 cleartext) support
	server := &http.Server{
		Addr:              serverAddr,
		Handler:           h2c.NewHandler(mux, &http2.Server{}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrCh := make(chan error, 1)
	serverStartedCh := make(chan struct{})

	go func() {
		zlog.Info().Msgf("Starting server: addr=%s public_url=%s", serverAddr, cfg.Server.PublicURL)
		close(serverStartedCh)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrCh <- err
		}
	}()

	<-serverStartedCh
	// Give the server a moment to fully initialize
	time.Sleep(100 * time.Millisecond)

	executeHooks(cfg.Server.Hooks.OnStarted, "on_started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	select {
	case <-sigCh:
		zlog.Info().Msg("Received shutdown signal...")
	case err := <-serverErrCh:
		runErr = errors.Wrap(err, "server error")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Close streams first so Shutdown does not wait on open subscriptions
	playerService.Close()

	if err := server.Shutdown(shutdownCtx); err != nil {
		zlog.Error().Msgf("Failed to shutdown server: %v", err)
	}

	session.Close()
	<-eventsDone
	notifier.Close()

	zlog.Info().Msg("Server stopped")

	executeHooks(cfg.Server.Hooks.OnStopped, "on_stopped")

	return runErr
}

// forwardEvents broadcasts every session event with the snapshot taken after it.
// Returns when the session closes its event channel.
func forwardEvents(session *playback.Session, notifier *notification.Manager) {
	for e := range session.Events() {
		if e.Type == playback.EventResolutionDiscarded {
			continue
		}
		notifier.Broadcast(notification.FromEvent(e, session.Snapshot()))
	}
}

// executeHooks runs a list of shell commands.
func executeHooks(hooks []string, stage string) {
	if len(hooks) == 0 {
		return
	}

	zlog.Info().Msgf("Executing %s hooks (%d commands)", stage, len(hooks))

	for _, hook := range hooks {
		zlog.Info().Msgf("Executing hook: %s", hook)
		// Use sh -c to allow shell features like redirection or pipes
		cmd := exec.Command("sh", "-c", hook)
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr

		if err := cmd.Run(); err != nil {
			zlog.Error().Err(err).Msgf("Failed to execute hook: %s", hook)
		}
	}
}

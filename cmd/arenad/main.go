// arenad - real-time swarm battle server
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	flag "github.com/spf13/pflag"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ernie/swarm-arena/internal/api"
	"github.com/ernie/swarm-arena/internal/arena"
	"github.com/ernie/swarm-arena/internal/auth"
	"github.com/ernie/swarm-arena/internal/bracket"
	"github.com/ernie/swarm-arena/internal/config"
	"github.com/ernie/swarm-arena/internal/engine/skirmish"
	"github.com/ernie/swarm-arena/internal/events"
	"github.com/ernie/swarm-arena/internal/leaderboard"
	"github.com/ernie/swarm-arena/internal/logging"
	"github.com/ernie/swarm-arena/internal/marketplace"
	"github.com/ernie/swarm-arena/internal/matchmaking"
	"github.com/ernie/swarm-arena/internal/session"
	"github.com/ernie/swarm-arena/internal/storage"
	"github.com/ernie/swarm-arena/internal/telemetry"
)

var version = "dev"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "serve":
		err = cmdServe(os.Args[2:])
	case "leaderboard":
		err = cmdLeaderboard(os.Args[2:])
	case "matches":
		err = cmdMatches(os.Args[2:])
	case "user":
		err = cmdUser(os.Args[2:])
	case "version":
		fmt.Printf("arenad %s\n", version)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Usage: arenad <command> [options] [args]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  serve                          Start the battle server")
	fmt.Println("  leaderboard [--top N]          Show top players (default: 20)")
	fmt.Println("  matches [--recent N]           Show recently completed matches (default: 20)")
	fmt.Println("  user add [--admin] <username>  Add a user (prompts for password)")
	fmt.Println("  user remove <username>         Remove a user")
	fmt.Println("  user list                      List all users")
	fmt.Println("  user reset <username>          Reset a user's password")
	fmt.Println("  version                        Show version")
	fmt.Println("  help                           Show this help")
	fmt.Println()
	fmt.Println("Global Options:")
	fmt.Println("  --config <path>    Path to a YAML configuration file")
	fmt.Println()
	fmt.Println("Settings may also come from ARENA_* environment variables or a .env file.")
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Println("  arenad serve --config /etc/arenad/config.yml")
	fmt.Println("  arenad leaderboard --top 50")
	fmt.Println("  arenad user add --admin root")
}

// cmdServe starts the HTTP server, battle loops and event bus
func cmdServe(args []string) (err error) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file")
	fs.Parse(args)

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("arenad starting", zap.String("version", version))

	shutdownTracing, err := telemetry.Setup(ctx, telemetry.Config{
		Endpoint:    cfg.Telemetry.OTLPEndpoint,
		ServiceName: cfg.Telemetry.ServiceName,
		Version:     version,
		SampleRatio: cfg.Telemetry.SampleRatio,
		Insecure:    cfg.Telemetry.Insecure,
	})
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err = multierr.Append(err, shutdownTracing(flushCtx))
	}()

	store, err := storage.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("initializing database: %w", err)
	}
	defer func() { err = multierr.Append(err, store.Close()) }()
	logger.Info("database initialized", zap.String("path", cfg.Database.Path))

	board := leaderboard.New()
	entries, err := store.LoadLeaderboard(ctx)
	if err != nil {
		return fmt.Errorf("loading leaderboard: %w", err)
	}
	board.Load(entries)
	logger.Info("leaderboard restored", zap.Int("players", len(entries)))

	publisher, closeEvents, err := openEvents(cfg.Events, logger)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, closeEvents()) }()

	authService := auth.NewService(cfg.Auth.JWTSecret, cfg.Auth.TokenDuration)
	if cfg.Auth.JWTSecret == "" {
		logger.Warn("no JWT secret configured, auth tokens will use an empty secret")
	}

	arenas := arena.NewManager(skirmish.Factory, arena.ManagerConfig{
		NumMobs:        cfg.Arena.NumMobs,
		TickRate:       cfg.Arena.TickRate,
		ObserverBuffer: cfg.Arena.ObserverBuffer,
	}, publisher, logger)
	defer arenas.Close()

	tournaments := bracket.NewRegistry(publisher, logger)
	matches := matchmaking.NewService(board, store, publisher, logger)
	matches.UseBrackets(tournaments)

	router := api.NewRouter(api.Deps{
		Users:        store,
		Auth:         authService,
		Arenas:       arenas,
		Sessions:     session.NewRegistry(),
		Matchmaking:  matches,
		Leaderboard:  board,
		Tournaments:  tournaments,
		Strategies:   marketplace.New(),
		Publisher:    publisher,
		Logger:       logger,
		CommandRate:  cfg.Arena.CommandRate,
		CommandBurst: cfg.Arena.CommandBurst,
	})

	server := &http.Server{
		Addr:        cfg.Addr(),
		Handler:     router,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("HTTP server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return arenas.RunReaper(gctx, cfg.Arena.ReapInterval, cfg.Arena.Retention)
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	logger.Info("shutdown complete")
	return err
}

// openEvents picks the event bus: an embedded NATS server, an external one,
// or none at all.
func openEvents(cfg config.EventsConfig, logger *zap.Logger) (events.Publisher, func() error, error) {
	url := cfg.NATSURL
	var embedded *events.Embedded
	if cfg.Embedded {
		var err error
		embedded, err = events.StartEmbedded("127.0.0.1", cfg.EmbeddedPort)
		if err != nil {
			return nil, nil, err
		}
		url = embedded.ClientURL()
		logger.Info("embedded NATS started", zap.String("url", url))
	}

	if url == "" {
		logger.Info("event publishing disabled")
		return events.Nop{}, func() error { return nil }, nil
	}

	pub, err := events.Connect(url, cfg.SubjectPrefix, logger)
	if err != nil {
		if embedded != nil {
			embedded.Close()
		}
		return nil, nil, err
	}
	closer := func() error {
		err := pub.Close()
		if embedded != nil {
			err = multierr.Append(err, embedded.Close())
		}
		return err
	}
	return pub, closer, nil
}

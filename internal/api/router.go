package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/ernie/swarm-arena/internal/arena"
	"github.com/ernie/swarm-arena/internal/auth"
	"github.com/ernie/swarm-arena/internal/bracket"
	"github.com/ernie/swarm-arena/internal/events"
	"github.com/ernie/swarm-arena/internal/leaderboard"
	"github.com/ernie/swarm-arena/internal/marketplace"
	"github.com/ernie/swarm-arena/internal/matchmaking"
	"github.com/ernie/swarm-arena/internal/session"
	"github.com/ernie/swarm-arena/internal/storage"
)

// Users is the account lookup needed for login. storage.Store implements it.
type Users interface {
	GetUserByUsername(ctx context.Context, username string) (*storage.User, error)
	UpdateUserLastLogin(ctx context.Context, userID int64) error
}

// Deps are the components the router serves.
type Deps struct {
	Users       Users
	Auth        *auth.Service
	Arenas      *arena.Manager
	Sessions    *session.Registry
	Matchmaking *matchmaking.Service
	Leaderboard *leaderboard.Board
	Tournaments *bracket.Registry
	Strategies  *marketplace.Marketplace
	Publisher   events.Publisher
	Logger      *zap.Logger

	// Per-connection inbound websocket message budget
	CommandRate  float64
	CommandBurst int
}

// Router holds the HTTP routes and dependencies
type Router struct {
	mux chi.Router
	Deps
}

// NewRouter creates a new HTTP router
func NewRouter(deps Deps) *Router {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Publisher == nil {
		deps.Publisher = events.Nop{}
	}
	if deps.Sessions == nil {
		deps.Sessions = session.NewRegistry()
	}
	if deps.CommandRate <= 0 {
		deps.CommandRate = 40
	}
	if deps.CommandBurst <= 0 {
		deps.CommandBurst = 10
	}

	r := &Router{mux: chi.NewRouter(), Deps: deps}

	r.mux.Use(middleware.RequestID)
	r.mux.Use(middleware.RealIP)
	r.mux.Use(requestLogger(deps.Logger))
	r.mux.Use(middleware.Recoverer)

	r.mux.Route("/api", func(api chi.Router) {
		api.Post("/auth/login", r.handleLogin)
		api.Get("/auth/check", r.handleAuthCheck)

		api.Get("/battles", r.handleListBattles)
		api.Post("/battles", r.requireAuth(r.handleCreateBattle))
		api.Get("/battles/{id}/state", r.handleBattleState)
		api.Get("/battles/{id}/replay", r.handleBattleReplay)
		api.Post("/battles/{id}/pause", r.requireAdmin(r.handlePauseBattle))
		api.Delete("/battles/{id}", r.requireAdmin(r.handleDiscardBattle))

		api.Post("/matchmaking/join", r.requireAuth(r.handleJoinQueue))
		api.Get("/matches", r.handleActiveMatches)
		api.Post("/matches/{id}/complete", r.requireAdmin(r.handleCompleteMatch))
		api.Get("/matches/{id}/replay", r.handleMatchReplay)

		api.Get("/leaderboard", r.handleLeaderboard)
		api.Get("/players/{id}/history", r.handlePlayerHistory)

		api.Post("/tournaments", r.requireAdmin(r.handleCreateTournament))
		api.Get("/tournaments/{id}", r.handleGetTournament)
		api.Post("/tournaments/{id}/advance", r.requireAdmin(r.handleAdvanceTournament))

		api.Post("/strategies", r.requireAuth(r.handleUploadStrategy))
		api.Get("/strategies/top", r.handleTopStrategies)
		api.Get("/strategies/{id}", r.handleDownloadStrategy)
		api.Post("/strategies/{id}/rate", r.requireAuth(r.handleRateStrategy))
	})

	r.mux.Get("/ws/battles/{id}", r.handleBattleSocket)
	r.mux.Get("/health", r.handleHealth)

	return r
}

// ServeHTTP implements http.Handler
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	// CORS headers for API
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

	if req.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}

	r.mux.ServeHTTP(w, req)
}

var tracer = otel.Tracer("github.com/ernie/swarm-arena/internal/api")

func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			ctx, span := tracer.Start(req.Context(), req.Method+" "+req.URL.Path,
				trace.WithSpanKind(trace.SpanKindServer))
			defer span.End()

			ww := middleware.NewWrapResponseWriter(w, req.ProtoMajor)
			start := time.Now()
			defer func() {
				fields := []zap.Field{
					zap.String("method", req.Method),
					zap.String("path", req.URL.Path),
					zap.Int("status", ww.Status()),
					zap.Duration("duration", time.Since(start)),
					zap.String("request_id", middleware.GetReqID(ctx)),
				}
				if sc := span.SpanContext(); sc.IsValid() {
					fields = append(fields, zap.String("trace_id", sc.TraceID().String()))
				}
				logger.Debug("http request", fields...)
			}()
			next.ServeHTTP(ww, req.WithContext(ctx))
		})
	}
}

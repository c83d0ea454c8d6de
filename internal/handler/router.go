package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	settingsHandler "github.com/zhouzirui/design-desk/backend/internal/handler/settings"
	"github.com/zhouzirui/design-desk/backend/internal/handler/stream"
	"github.com/zhouzirui/design-desk/backend/internal/handler/thread"
	"github.com/zhouzirui/design-desk/backend/internal/handler/ws"
	middlewarePkg "github.com/zhouzirui/design-desk/backend/internal/middleware"
	"github.com/zhouzirui/design-desk/backend/internal/model/chat"
	"github.com/zhouzirui/design-desk/backend/internal/model/settings"
	"github.com/zhouzirui/design-desk/backend/pkg/utils"
)

// Deps are the services the HTTP layer is built on.
type Deps struct {
	Threads        chat.Store
	Settings       settings.Store
	Turns          stream.Submitter
	Models         settingsHandler.ModelLister
	AllowedOrigins []string
	Logger         zerolog.Logger
}

// NewRouter wires HTTP routes to core services.
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middlewarePkg.RequestLogger(deps.Logger))
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS(deps.AllowedOrigins))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := deps.Threads.Ping(r.Context()); err != nil {
			utils.RespondError(w, http.StatusServiceUnavailable, "store unavailable")
			return
		}
		utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(api chi.Router) {
		thread.New(deps.Threads, deps.Logger).RegisterRoutes(api)
		settingsHandler.New(deps.Settings, deps.Models, deps.Logger).RegisterRoutes(api)
		stream.New(deps.Turns, deps.Logger).RegisterRoutes(api)
		ws.New(deps.Turns, deps.Threads, deps.AllowedOrigins, deps.Logger).RegisterRoutes(api)
	})

	return r
}

package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/zhouzirui/sahayak/backend/internal/handler/chat"
	"github.com/zhouzirui/sahayak/backend/internal/handler/persona"
	middlewarePkg "github.com/zhouzirui/sahayak/backend/internal/middleware"
	personaModel "github.com/zhouzirui/sahayak/backend/internal/model/persona"
	"github.com/zhouzirui/sahayak/backend/internal/observability"
	"github.com/zhouzirui/sahayak/backend/pkg/utils"
)

// NewRouter wires HTTP routes to core services.
func NewRouter(personas personaModel.Store, turns chat.TurnService, metrics *observability.Metrics, logger *zap.SugaredLogger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	personaHandler := persona.New(personas)
	chatHandler := chat.New(turns, logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/api", func(api chi.Router) {
		personaHandler.RegisterRoutes(api)
		chatHandler.RegisterRoutes(api)
		chatHandler.RegisterWebSocketRoutes(api)
	})

	return r
}

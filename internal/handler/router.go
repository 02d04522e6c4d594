package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/zhouzirui/talknest/backend/internal/config"
	"github.com/zhouzirui/talknest/backend/internal/handler/chat"
	"github.com/zhouzirui/talknest/backend/internal/handler/upload"
	middlewarePkg "github.com/zhouzirui/talknest/backend/internal/middleware"
	chatService "github.com/zhouzirui/talknest/backend/internal/service/chat"
	uploadService "github.com/zhouzirui/talknest/backend/internal/service/upload"
	"github.com/zhouzirui/talknest/backend/pkg/utils"
)

// Deps 路由依赖的核心服务
type Deps struct {
	Registry   *chatService.Registry
	Dispatcher *chatService.Dispatcher
	Uploads    uploadService.Store
	Logger     *zap.Logger
}

// Router 是服务的 HTTP 入口，并持有需要在关闭时通知的实时连接
type Router struct {
	chi.Router
	sessions *chat.WebSocketHandler
}

// CloseSessions 向所有实时连接发送正常关闭帧
func (r *Router) CloseSessions() {
	r.sessions.CloseAll()
}

// WaitSessions 等待实时连接全部退出
func (r *Router) WaitSessions(ctx context.Context) error {
	return r.sessions.Wait(ctx)
}

// NewRouter wires HTTP routes to core services.
func NewRouter(cfg *config.Config, deps Deps) *Router {
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middlewarePkg.RequestLogger(log))
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS(cfg.Server.AllowedOrigins))

	// Create handlers
	chatHandler := chat.NewWebSocketHandler(deps.Registry, deps.Dispatcher, cfg.Chat, cfg.Server.AllowedOrigins, log)
	uploadHandler := upload.New(deps.Uploads, cfg.Upload.PublicBaseURL, cfg.Upload.MaxBytes, log)

	chatHandler.RegisterRoutes(r)
	uploadHandler.RegisterRoutes(r)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		utils.RespondJSON(log, w, http.StatusOK, map[string]any{
			"status":   "ok",
			"sessions": deps.Registry.Count(),
		})
	})

	return &Router{Router: r, sessions: chatHandler}
}

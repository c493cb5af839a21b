package http

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/cors"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/pulsechat-server/internal/auth"
	"github.com/vovakirdan/pulsechat-server/internal/config"
	"github.com/vovakirdan/pulsechat-server/internal/core"
	"github.com/vovakirdan/pulsechat-server/internal/metrics"
	"github.com/vovakirdan/pulsechat-server/internal/ratelimit"
	"github.com/vovakirdan/pulsechat-server/internal/service/chats"
	"github.com/vovakirdan/pulsechat-server/internal/service/receipts"
	"github.com/vovakirdan/pulsechat-server/internal/store"
)

// Deps are the collaborators the HTTP layer serves.
type Deps struct {
	Hub      *core.Hub
	Auth     *auth.Service
	Store    store.Store
	Chats    *chats.Service
	Receipts *receipts.Service
	Limiter  MessageLimiter // optional
}

// NewServer builds an HTTP server with REST, websocket and ops routes.
func NewServer(deps Deps, cfg *config.Config, logger *zerolog.Logger) *stdhttp.Server {
	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           NewHandler(deps, cfg, logger),
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

// NewHandler builds the routed handler wrapped in CORS.
func NewHandler(deps Deps, cfg *config.Config, logger *zerolog.Logger) stdhttp.Handler {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), LoggerMiddleware(logger))

	router.GET("/health", healthHandler)
	if cfg.MetricsEnabled {
		router.GET("/metrics", gin.WrapH(metrics.Handler()))
	}

	var members MembershipChecker
	if deps.Store != nil {
		members = deps.Store
	}
	// gin's writer refuses the hijack after the 101, so /ws bypasses the router.
	mux := stdhttp.NewServeMux()
	mux.Handle("/ws", NewWSHandler(deps.Hub, deps.Auth, members, WSOptions{
		AuthRequired:     cfg.WSAuthRequired,
		VerifyMembership: cfg.VerifyChatMembership,
		MaxMessageBytes:  cfg.MaxMessageBytes,
		RateLimit:        cfg.WSRateLimit,
		ClientBuffer:     cfg.ClientBuffer,
		AllowedOrigins:   cfg.AllowedOrigins,
	}, logger))
	mux.Handle("/", router)

	if deps.Auth != nil && deps.Store != nil {
		registerAPI(router, deps, cfg, logger)
	}

	return cors.New(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{stdhttp.MethodGet, stdhttp.MethodPost, stdhttp.MethodPut, stdhttp.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: false,
	}).Handler(mux)
}

func registerAPI(router *gin.Engine, deps Deps, cfg *config.Config, logger *zerolog.Logger) {
	chatService := deps.Chats
	if chatService == nil {
		chatService = chats.New(deps.Store)
	}
	receiptService := deps.Receipts
	if receiptService == nil {
		receiptService = receipts.New(deps.Store, logger)
	}

	users := NewUserHandlers(deps.Auth, deps.Store, deps.Hub, logger)
	chatH := NewChatHandlers(chatService, logger)
	messages := NewMessageHandlers(chatService, receiptService, logger)

	api := router.Group("/api")
	api.POST("/user", users.Register)
	api.POST("/user/login", users.Login)

	authed := api.Group("", AuthMiddleware(deps.Auth, logger))
	authed.GET("/user", users.SearchUsers)
	authed.GET("/user/online", users.OnlineUsers)

	authed.POST("/chat", chatH.AccessChat)
	authed.GET("/chat", chatH.ListChats)
	authed.POST("/chat/group", chatH.CreateGroup)
	authed.PUT("/chat/rename", chatH.RenameGroup)
	authed.PUT("/chat/groupadd", chatH.AddToGroup)
	authed.PUT("/chat/groupremove", chatH.RemoveFromGroup)

	rule := ratelimit.MessageRule(cfg.MessageRateLimit, cfg.MessageRateWindow)
	authed.GET("/message/:chatId", messages.ListMessages)
	authed.POST("/message", RateLimitMiddleware(deps.Limiter, rule, logger), messages.SendMessage)
}

func healthHandler(c *gin.Context) {
	c.String(stdhttp.StatusOK, "ok")
}

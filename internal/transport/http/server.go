package http

import (
	"net/http"
	"net/url"
	"slices"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"zerocode-chat/internal/bootstrap"
	"zerocode-chat/internal/pkg/logging"
	"zerocode-chat/internal/transport/http/handler"
	"zerocode-chat/internal/transport/http/middleware"
)

func NewRouter(app *bootstrap.App) *gin.Engine {
	gin.SetMode(app.Config.App.GinMode)
	router := gin.New()
	router.Use(middleware.RequestLogger(logging.Component("http")), gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     app.Config.CORS.AllowOrigins,
		AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	healthHandler := handler.NewHealthHandler(app)
	authHandler := handler.NewAuthHandler(app.AuthService, app.ChatService)
	chatHandler := handler.NewChatHandler(app.ChatService)
	streamHandler := handler.NewStreamHandler(app.ChatService, originAllowed(app.Config.CORS.AllowOrigins))
	requireAuth := middleware.AuthToken(app.AuthService)

	router.GET("/healthz", healthHandler.Check)

	v1 := router.Group("/api/v1")
	authGroup := v1.Group("/auth")
	authGroup.POST("/register", authHandler.Register)
	authGroup.POST("/login", authHandler.Login)
	authGroup.POST("/logout", requireAuth, authHandler.Logout)
	authGroup.GET("/me", requireAuth, authHandler.Me)

	chatGroup := v1.Group("/chat")
	chatGroup.Use(requireAuth)
	chatGroup.GET("/state", chatHandler.State)
	chatGroup.POST("/messages", chatHandler.SendMessage)
	chatGroup.DELETE("/messages", chatHandler.Clear)
	chatGroup.POST("/recall", chatHandler.Recall)
	chatGroup.GET("/export", chatHandler.Export)
	chatGroup.GET("/archive", chatHandler.Archive)
	chatGroup.GET("/ws", streamHandler.Stream)

	return router
}

// originAllowed applies the CORS allow-list to websocket upgrades. Requests without
// an Origin header (non-browser clients) are allowed.
func originAllowed(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || slices.Contains(allowed, "*") {
			return true
		}
		if slices.Contains(allowed, origin) {
			return true
		}
		u, err := url.Parse(origin)
		return err == nil && u.Host == r.Host
	}
}

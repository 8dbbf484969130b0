package server

import (
	"github.com/labstack/echo/v4"

	"github.com/solovey/codemesh/internal/application/config"
	"github.com/solovey/codemesh/internal/infra/ports/http/handlers"
	"github.com/solovey/codemesh/internal/infra/ports/http/middleware"
)

func New(
	cfg *config.Config,
	authHandler *handlers.AuthHandler,
	roomHandler *handlers.RoomHandler,
	versionHandler *handlers.VersionHandler,
	aiHandler *handlers.AIHandler,
	executeHandler *handlers.ExecuteHandler,
	iceHandler *handlers.IceHandler,
	wsHandler *handlers.WebSocketHandler,
) *echo.Echo {
	e := echo.New()

	e.Use(middleware.SlogLogger())
	e.Use(middleware.PrometheusMiddleware())

	api := e.Group("/api")
	{
		authGroup := api.Group("/auth")
		{
			authGroup.POST("/register", authHandler.Register)
			authGroup.POST("/login", authHandler.Login)
		}

		v1 := api.Group("/v1")
		v1.Use(middleware.JWTAuthMiddleware(cfg.JWTSecret))
		{
			v1.GET("/me", authHandler.GetMe)

			v1.GET("/ice", iceHandler.IceServers)

			v1.GET("/ws", wsHandler.Handle)

			v1.GET("/rooms", roomHandler.ListRooms)
			v1.POST("/rooms", roomHandler.CreateRoom)
			v1.GET("/rooms/:roomId", roomHandler.GetRoom)
			v1.POST("/rooms/:roomId/join", roomHandler.JoinRoom)
			v1.DELETE("/rooms/:roomId", roomHandler.DeleteRoom)

			v1.GET("/versions/:roomId", versionHandler.ListVersions)
			v1.POST("/versions/:roomId", versionHandler.SaveVersion)
			v1.GET("/versions/id/:id", versionHandler.GetVersion)
			v1.DELETE("/versions/id/:id", versionHandler.DeleteVersion)

			v1.POST("/ai/review", aiHandler.Review)
			v1.POST("/ai/chat", aiHandler.Chat)

			v1.POST("/execute", executeHandler.Execute)
		}
	}

	e.Static("/", "web")

	return e
}

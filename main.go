package main

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"go.uber.org/zap"

	"github.com/theleywin/Realtime-Talent-Nest/src/controllers"
	"github.com/theleywin/Realtime-Talent-Nest/src/lib"
	"github.com/theleywin/Realtime-Talent-Nest/src/middleware"
	"github.com/theleywin/Realtime-Talent-Nest/src/routes"
	"github.com/theleywin/Realtime-Talent-Nest/src/services/chat"
	"github.com/theleywin/Realtime-Talent-Nest/src/services/connections"
	"github.com/theleywin/Realtime-Talent-Nest/src/services/feed"
	"github.com/theleywin/Realtime-Talent-Nest/src/store/mongodb"
)

func main() {
	logger := lib.NewLogger()
	defer logger.Sync()

	cfg := lib.LoadConfig()
	ctx := context.Background()

	db, err := lib.ConnectDB(ctx, cfg)
	if err != nil {
		logger.Fatal("failed to connect to mongo", zap.Error(err))
	}
	st := mongodb.New(db, logger)
	st.SetBatchLimit(cfg.FanoutBatchSize)
	if err := st.EnsureIndexes(ctx); err != nil {
		logger.Fatal("failed to create indexes", zap.Error(err))
	}

	connSvc := connections.NewService(st, logger)
	chatSvc := chat.NewService(st, logger)
	feedSvc := feed.NewService(connSvc, chatSvc, st, logger)

	app := fiber.New()
	app.Use(cors.New())

	auth := middleware.ProtectRoute(cfg.JWTSecret)
	routes.ConnectionRoutes(app, auth, controllers.NewConnectionController(connSvc))
	routes.ChatRoutes(app, auth, controllers.NewChatController(chatSvc, connSvc))
	routes.ActivityRoutes(app, auth, controllers.NewActivityController(st))
	routes.FeedRoutes(app, auth, controllers.NewFeedController(feedSvc, logger))

	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.SendString("OK")
	})

	logger.Info("server listening", zap.String("port", cfg.Port))
	if err := app.Listen(":" + cfg.Port); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}

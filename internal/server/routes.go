package server

import (
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2/middleware/cors"
)

func (s *FiberServer) RegisterFiberRoutes() {
	s.App.Use(cors.New(cors.Config{
		AllowOrigins:     "*",
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS,PATCH",
		AllowHeaders:     "Accept,Authorization,Content-Type",
		AllowCredentials: false, // credentials require explicit origins
		MaxAge:           300,
	}))

	s.App.Get("/health", s.healthHandler)

	api := s.App.Group("/api/v1")

	api.Get("/round", s.roundStateHandler)
	api.Get("/rounds", s.roundHistoryHandler)
	api.Post("/round/wager", s.placeWagerHandler)
	api.Post("/round/withdraw", s.withdrawHandler)
	api.Post("/round/verify", s.verifyHandler)

	api.Get("/user/:userId/balance", s.balanceHandler)
	api.Post("/user/:userId/deposit", s.depositHandler)

	s.App.Get("/ws", websocket.New(s.wsHandler))
}

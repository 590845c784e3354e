package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/rs/zerolog"

	"lifesync/middleware"
	"lifesync/services"
)

// SetupSessionRoutes registers the remote session store API. streamAuth
// guards the live endpoints when set.
func SetupSessionRoutes(app *fiber.App, svc *services.SessionService, streamAuth fiber.Handler, logger zerolog.Logger) {
	sessions := app.Group("/sessions")

	sessions.Post("/", svc.CreateSession)
	sessions.Get("/:id", svc.GetSession)
	sessions.Post("/:id/members", svc.AddMember)
	sessions.Get("/:id/state", svc.GetState)
	sessions.Put("/:id/state", svc.PutState)

	live := []fiber.Handler{}
	if streamAuth != nil {
		live = append(live, streamAuth)
	}
	sessions.Get("/:id/stream", append(live, svc.StreamState)...)
	sessions.Get("/:id/ws", append(live, svc.RequireSocket, websocket.New(svc.SocketState))...)

	sessions.Delete("/:id", middleware.UserContextMiddleware(logger), svc.DeleteSession)
}

func SetupCardRoutes(app *fiber.App, svc *services.CardService) {
	app.Get("/cards/search", svc.Search)
}

func SetupIconRoutes(app *fiber.App, svc *services.IconService, uploadDir string) {
	app.Post("/icons", svc.Upload)
	app.Static("/uploads", uploadDir)
}

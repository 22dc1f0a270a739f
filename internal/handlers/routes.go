package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/Windi-Fikriyansyah/pasar_tani/internal/middleware"
	"github.com/Windi-Fikriyansyah/pasar_tani/internal/models"
)

// Mount registers the API under /api. Messaging is limited to buyers and
// sellers; admins can still read their session and products.
func Mount(app fiber.Router, secret string, session *SessionHandler, messages *MessageHandler, products *ProductHandler) {
	api := app.Group("/api")

	protected := api.Group("/",
		middleware.JWTFromRequest(secret),
		middleware.AttachJWTLocals(),
	)

	protected.Get("/me", session.Me)
	protected.Post("/auth/refresh", session.Refresh)
	protected.Post("/auth/logout", session.Logout)
	protected.Get("/products/:id", products.GetDetail)

	msg := protected.Group("/messages",
		middleware.RequireRoles(string(models.RoleBuyer), string(models.RoleSeller)),
	)
	msg.Get("/received", messages.GetReceived)
	msg.Get("/sent", messages.GetSent)
	msg.Get("/unread-count", messages.GetUnreadTotal)
	msg.Get("/conversation/:peerId", messages.GetConversation)
	msg.Post("/", messages.SendMessage)
	msg.Patch("/:id/read", messages.MarkAsRead)
	msg.Delete("/:id", messages.DeleteMessage)
}

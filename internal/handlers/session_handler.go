package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/Windi-Fikriyansyah/pasar_tani/internal/middleware"
	"github.com/Windi-Fikriyansyah/pasar_tani/internal/repository"
	"github.com/Windi-Fikriyansyah/pasar_tani/internal/utils"
)

type FieldErrors map[string][]string

func (e FieldErrors) Add(field, msg string) {
	e[field] = append(e[field], msg)
}

func validationFail(c *fiber.Ctx, errs FieldErrors) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"success": false,
		"message": "Validation error",
		"errors":  errs,
	})
}

// SessionHandler serves the signed in user. Credentials are issued by the
// marketplace login; this service only verifies and renews them.
type SessionHandler struct {
	Catalog   repository.CatalogRepository
	JWTSecret string
	Expires   int
	Log       *zap.Logger
}

func (h *SessionHandler) Me(c *fiber.Ctx) error {
	userID, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}

	u, err := h.Catalog.FindUser(c.UserContext(), userID)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			h.Log.Error("lookup user failed", zap.Uint("user_id", userID), zap.Error(err))
		}
		return fail(c, fiber.StatusUnauthorized, "User not found")
	}
	if !u.IsActive {
		return fail(c, fiber.StatusForbidden, "Account is inactive")
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"id":    u.ID,
			"name":  u.Name,
			"email": u.Email,
			"role":  u.Role,
		},
	})
}

// Refresh issues a fresh token for the current user and sets it as the
// session cookie.
func (h *SessionHandler) Refresh(c *fiber.Ctx) error {
	userID, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}

	u, err := h.Catalog.FindUser(c.UserContext(), userID)
	if err != nil || !u.IsActive {
		return unauthorized(c)
	}

	token, err := utils.SignJWT(h.JWTSecret, u.ID, string(u.Role), h.Expires)
	if err != nil {
		h.Log.Error("sign token failed", zap.Uint("user_id", userID), zap.Error(err))
		return fail(c, fiber.StatusInternalServerError, "Failed to create token")
	}

	c.Cookie(&fiber.Cookie{
		Name:     middleware.TokenCookie,
		Value:    token,
		Path:     "/",
		HTTPOnly: true,
		SameSite: "Lax",
		MaxAge:   h.Expires * 60,
	})

	return c.JSON(fiber.Map{
		"success": true,
		"data":    fiber.Map{"token": token},
	})
}

func (h *SessionHandler) Logout(c *fiber.Ctx) error {
	c.Cookie(&fiber.Cookie{
		Name:     middleware.TokenCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HTTPOnly: true,
		SameSite: "Lax",
	})

	return c.JSON(fiber.Map{
		"success": true,
		"message": "Logged out",
	})
}

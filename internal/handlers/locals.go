package handlers

import (
	"fmt"

	"github.com/gofiber/fiber/v2"
)

func getUserID(c *fiber.Ctx) (uint, error) {
	v := c.Locals("userId")
	if v == nil {
		return 0, fmt.Errorf("unauthorized")
	}

	switch t := v.(type) {
	case uint:
		if t == 0 {
			return 0, fmt.Errorf("unauthorized")
		}
		return t, nil
	default:
		return 0, fmt.Errorf("invalid userId type: %T", v)
	}
}

func unauthorized(c *fiber.Ctx) error {
	return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"success": false, "message": "Unauthorized"})
}

func fail(c *fiber.Ctx, status int, msg string) error {
	return c.Status(status).JSON(fiber.Map{"success": false, "message": msg})
}

package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/Windi-Fikriyansyah/pasar_tani/internal/repository"
)

type ProductHandler struct {
	Catalog repository.CatalogRepository
	Log     *zap.Logger
}

func NewProductHandler(catalog repository.CatalogRepository, log *zap.Logger) *ProductHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &ProductHandler{Catalog: catalog, Log: log}
}

// GetDetail returns the listing a message refers to. Drafts are hidden; sold
// out listings stay visible so old inquiries still resolve.
func (h *ProductHandler) GetDetail(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return fail(c, fiber.StatusBadRequest, "Invalid product ID")
	}

	product, err := h.Catalog.FindProduct(c.UserContext(), uint(id))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fail(c, fiber.StatusNotFound, "Product not found")
		}
		h.Log.Error("lookup product failed", zap.Int("product_id", id), zap.Error(err))
		return fail(c, fiber.StatusInternalServerError, "Failed to fetch product")
	}

	if product.Status == "draft" {
		return fail(c, fiber.StatusNotFound, "Product not found")
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"id":         product.ID,
			"seller_id":  product.SellerID,
			"title":      product.Title,
			"category":   product.Category,
			"unit":       product.Unit,
			"price":      product.Price,
			"status":     product.Status,
			"attributes": product.Attributes,
		},
	})
}

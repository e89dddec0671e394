package handler

import (
	"github.com/gofiber/fiber/v2"

	"github.com/fairyhunter13/coupon-dispenser/internal/model"
)

// CouponServiceInterface defines the interface for catalog reads.
type CouponServiceInterface interface {
	Coupons() []model.Coupon
}

// CouponHandler handles HTTP requests for the coupon catalog.
type CouponHandler struct {
	service CouponServiceInterface
}

// NewCouponHandler creates a new CouponHandler with the given service.
func NewCouponHandler(svc CouponServiceInterface) *CouponHandler {
	return &CouponHandler{service: svc}
}

// ListCoupons handles GET /coupons requests and returns the whole catalog.
func (h *CouponHandler) ListCoupons(c *fiber.Ctx) error {
	return c.JSON(h.service.Coupons())
}

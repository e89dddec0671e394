package handler

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"
	"github.com/rs/zerolog/log"

	"github.com/fairyhunter13/coupon-dispenser/internal/model"
	"github.com/fairyhunter13/coupon-dispenser/internal/service"
)

// ClaimServiceInterface defines the interface for claim business logic.
type ClaimServiceInterface interface {
	Claim(ctx context.Context, ip, trackerID string) (service.ClaimResult, error)
	Eligibility(ctx context.Context, ip, trackerID string) service.EligibilityResult
}

// CookieOptions controls the tracker cookie attributes.
type CookieOptions struct {
	MaxAge   time.Duration
	Secure   bool
	SameSite string
}

// ClaimHandler handles HTTP requests for claim operations.
type ClaimHandler struct {
	service ClaimServiceInterface
	cookie  CookieOptions
}

// NewClaimHandler creates a new ClaimHandler with the given service and cookie options.
func NewClaimHandler(svc ClaimServiceInterface, cookie CookieOptions) *ClaimHandler {
	return &ClaimHandler{service: svc, cookie: cookie}
}

// ClaimCoupon handles POST /claim requests to claim the next coupon.
func (h *ClaimHandler) ClaimCoupon(c *fiber.Ctx) error {
	ip := ClientIP(c)

	res, err := h.service.Claim(c.Context(), ip, trackerID(c))
	if res.TrackerIssued {
		h.setTrackerCookie(c, res.TrackerID)
	}

	if err != nil {
		var rl *service.RateLimitedError
		if errors.As(err, &rl) {
			c.Set(fiber.HeaderRetryAfter, strconv.Itoa(rl.Remaining))
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": fmt.Sprintf("Not eligible to claim a coupon yet. Try again in %d seconds.", rl.Remaining),
			})
		}
		if errors.Is(err, service.ErrNoCouponsAvailable) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "No coupons available."})
		}
		log.Error().
			Err(err).
			Str("request_id", c.GetRespHeader(fiber.HeaderXRequestID)).
			Str("method", c.Method()).
			Str("path", c.Path()).
			Str("client_ip", ip).
			Msg("failed to claim coupon")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal server error"})
	}

	log.Info().
		Str("request_id", c.GetRespHeader(fiber.HeaderXRequestID)).
		Str("client_ip", ip).
		Str("coupon_code", res.Coupon.Code).
		Bool("tracker_issued", res.TrackerIssued).
		Msg("coupon claimed successfully")

	return c.JSON(model.ClaimResponse{ClaimedCoupon: res.Coupon})
}

// CheckEligibility handles GET /eligibility requests. It never records a claim.
func (h *ClaimHandler) CheckEligibility(c *fiber.Ctx) error {
	res := h.service.Eligibility(c.Context(), ClientIP(c), trackerID(c))

	return c.JSON(model.EligibilityResponse{
		Eligible:   res.Eligible,
		Remaining:  res.Remaining,
		NextCoupon: res.NextCoupon,
	})
}

// trackerID returns the request's tracker cookie. The ledger keeps it as a map
// key, so it must not alias the reused request buffer.
func trackerID(c *fiber.Ctx) string {
	return utils.CopyString(c.Cookies(TrackerCookieName))
}

func (h *ClaimHandler) setTrackerCookie(c *fiber.Ctx, trackerID string) {
	c.Cookie(&fiber.Cookie{
		Name:     TrackerCookieName,
		Value:    trackerID,
		Path:     "/",
		MaxAge:   int(h.cookie.MaxAge / time.Second),
		HTTPOnly: true,
		Secure:   h.cookie.Secure,
		SameSite: h.cookie.SameSite,
	})
}

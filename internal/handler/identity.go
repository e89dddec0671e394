package handler

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"
)

// TrackerCookieName is the cookie carrying the client's tracker id.
const TrackerCookieName = "couponTracker"

// ClientIP returns the first entry of X-Forwarded-For, falling back to the peer address.
//
// X-Forwarded-For is set by the client unless a reverse proxy in front of the
// service overwrites it, so a client can pick its own IP identity. The tracker
// cookie is the second line of defence.
func ClientIP(c *fiber.Ctx) string {
	if xff := c.Get(fiber.HeaderXForwardedFor); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return utils.CopyString(ip)
		}
	}
	return c.Context().RemoteIP().String()
}

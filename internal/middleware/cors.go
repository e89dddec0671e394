package middleware

import (
	"net/url"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
)

// CORS allows credentialed cross-origin requests from the configured origins
// and from any origin whose host ends with one of suffixes.
func CORS(origins, suffixes []string) fiber.Handler {
	exact := make([]string, 0, len(origins))
	for _, o := range origins {
		if o = normalizeOrigin(o); o != "" {
			exact = append(exact, o)
		}
	}
	hostSuffixes := make([]string, 0, len(suffixes))
	for _, s := range suffixes {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			hostSuffixes = append(hostSuffixes, s)
		}
	}

	return cors.New(cors.Config{
		AllowOriginsFunc: func(origin string) bool {
			return OriginAllowed(origin, exact, hostSuffixes)
		},
		AllowMethods:     "GET,POST,OPTIONS",
		AllowHeaders:     "Origin,Content-Type,Accept",
		AllowCredentials: true,
		ExposeHeaders:    "Retry-After",
	})
}

// OriginAllowed reports whether origin equals one of origins or its host ends
// with one of suffixes. Comparison is case-insensitive and ignores a trailing slash.
func OriginAllowed(origin string, origins, suffixes []string) bool {
	o := normalizeOrigin(origin)
	if o == "" {
		return false
	}
	for _, allowed := range origins {
		if o == normalizeOrigin(allowed) {
			return true
		}
	}

	u, err := url.Parse(o)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return false
	}
	host := u.Hostname()
	for _, suffix := range suffixes {
		suffix = strings.ToLower(strings.TrimSpace(suffix))
		if suffix != "" && strings.HasSuffix(host, suffix) {
			return true
		}
	}
	return false
}

func normalizeOrigin(origin string) string {
	return strings.TrimSuffix(strings.ToLower(strings.TrimSpace(origin)), "/")
}

// security.go provides Gin middleware that injects protective HTTP response headers
// and the Cache-Control policy for catalog and media responses.
package middleware

import (
	"strconv"

	"github.com/gin-gonic/gin"
)

// SecurityHeadersConfig holds configuration for security headers
type SecurityHeadersConfig struct {
	// EnableHSTS enables HTTP Strict Transport Security; only meaningful behind TLS
	EnableHSTS bool
	// HSTSMaxAge is the max-age value for HSTS in seconds
	HSTSMaxAge int
	// HSTSIncludeSubdomains includes subdomains in HSTS
	HSTSIncludeSubdomains bool
	// FrameOptionsValue is the value for X-Frame-Options (DENY, SAMEORIGIN); empty omits it
	FrameOptionsValue string
	// ContentSecurityPolicy is the CSP header value
	ContentSecurityPolicy string
	// ReferrerPolicy is the Referrer-Policy header value
	ReferrerPolicy string
	// CrossOriginResourcePolicy controls which origins may embed responses such as
	// audio files; empty omits it
	CrossOriginResourcePolicy string
}

// DefaultSecurityHeadersConfig returns headers for the JSON API and media routes.
// The bundled player is served from the same origin, so media is same-origin only.
func DefaultSecurityHeadersConfig(tls bool) SecurityHeadersConfig {
	return SecurityHeadersConfig{
		EnableHSTS:                tls,
		HSTSMaxAge:                31536000, // 1 year
		HSTSIncludeSubdomains:     true,
		FrameOptionsValue:         "DENY",
		ContentSecurityPolicy:     "default-src 'none'; media-src 'self'; frame-ancestors 'none'",
		ReferrerPolicy:            "no-referrer",
		CrossOriginResourcePolicy: "same-origin",
	}
}

// SecurityHeadersMiddleware adds security headers to all responses
func SecurityHeadersMiddleware(config SecurityHeadersConfig) gin.HandlerFunc {
	hsts := ""
	if config.EnableHSTS {
		hsts = "max-age=" + strconv.Itoa(config.HSTSMaxAge)
		if config.HSTSIncludeSubdomains {
			hsts += "; includeSubDomains"
		}
	}

	return func(c *gin.Context) {
		if hsts != "" {
			c.Header("Strict-Transport-Security", hsts)
		}
		if config.FrameOptionsValue != "" {
			c.Header("X-Frame-Options", config.FrameOptionsValue)
		}
		c.Header("X-Content-Type-Options", "nosniff")
		if config.ContentSecurityPolicy != "" {
			c.Header("Content-Security-Policy", config.ContentSecurityPolicy)
		}
		if config.ReferrerPolicy != "" {
			c.Header("Referrer-Policy", config.ReferrerPolicy)
		}
		if config.CrossOriginResourcePolicy != "" {
			c.Header("Cross-Origin-Resource-Policy", config.CrossOriginResourcePolicy)
		}

		c.Next()
	}
}

// CacheMaxAge is how long clients may cache catalog and media responses.
const CacheMaxAge = 3600

// CacheControlMiddleware marks every response as publicly cacheable for CacheMaxAge
// seconds. With enabled false (development) no header is set so edits to the
// catalog show up immediately. The header is set before the handler runs so that
// streamed bodies carry it.
func CacheControlMiddleware(enabled bool) gin.HandlerFunc {
	value := "public, max-age=" + strconv.Itoa(CacheMaxAge)
	return func(c *gin.Context) {
		if enabled {
			c.Header("Cache-Control", value)
		}
		c.Next()
	}
}

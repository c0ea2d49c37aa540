package api

import (
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/gin-gonic/gin"
)

// AllowedOrigins is the set of browser origins allowed to call the control
// API.
type AllowedOrigins struct {
	origins map[string]struct{}
}

// IsAllowed returns true for an empty origin (non-browser clients such as the
// deckhost CLI) or an origin in the allowlist.
func (ao *AllowedOrigins) IsAllowed(origin string) bool {
	if origin == "" {
		return true
	}
	_, ok := ao.origins[origin]
	return ok
}

// ParseAllowedOrigins validates and normalizes each origin to
// scheme://host[:port].
func ParseAllowedOrigins(list []string) (*AllowedOrigins, error) {
	origins := make(map[string]struct{})

	for _, origin := range list {
		origin = strings.TrimSpace(origin)
		if origin == "" {
			continue
		}

		parsed, err := url.Parse(origin)
		if err != nil {
			return nil, fmt.Errorf("invalid origin %q: %w", origin, err)
		}

		switch {
		case parsed.Scheme == "" || parsed.Host == "":
			return nil, fmt.Errorf("invalid origin %q: must have scheme and host", origin)
		case parsed.Path != "":
			return nil, fmt.Errorf("invalid origin %q: must not have path", origin)
		case parsed.RawQuery != "":
			return nil, fmt.Errorf("invalid origin %q: must not have query", origin)
		case parsed.Fragment != "":
			return nil, fmt.Errorf("invalid origin %q: must not have fragment", origin)
		}

		origins[fmt.Sprintf("%s://%s", parsed.Scheme, parsed.Host)] = struct{}{}
	}

	return &AllowedOrigins{origins: origins}, nil
}

// BuildDefaultAllowedOrigins allows the loopback origins of the control API
// itself and of the backend server's UI.
func BuildDefaultAllowedOrigins(ports ...int) *AllowedOrigins {
	origins := make(map[string]struct{})
	for _, port := range ports {
		origins[fmt.Sprintf("http://localhost:%d", port)] = struct{}{}
		origins[fmt.Sprintf("http://127.0.0.1:%d", port)] = struct{}{}
		origins[fmt.Sprintf("http://[::1]:%d", port)] = struct{}{}
	}
	return &AllowedOrigins{origins: origins}
}

// GetAllowedOrigins prefers DECKHOST_ALLOWED_ORIGINS (comma separated), then
// the configured list, then the loopback defaults for ports.
func GetAllowedOrigins(configured []string, ports ...int) (*AllowedOrigins, error) {
	if env := os.Getenv("DECKHOST_ALLOWED_ORIGINS"); env != "" {
		return ParseAllowedOrigins(strings.Split(env, ","))
	}
	if len(configured) > 0 {
		return ParseAllowedOrigins(configured)
	}
	return BuildDefaultAllowedOrigins(ports...), nil
}

// CORSMiddleware rejects requests from origins outside the allowlist and sets
// CORS headers for allowed ones.
func CORSMiddleware(allowedOrigins *AllowedOrigins) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")

		if origin != "" {
			if !allowedOrigins.IsAllowed(origin) {
				c.AbortWithStatus(http.StatusForbidden)
				return
			}

			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Vary", "Origin")

			if c.Request.Method == http.MethodOptions {
				c.Header("Access-Control-Allow-Methods", "GET,POST,DELETE,OPTIONS")
				c.Header("Access-Control-Allow-Headers", "Content-Type")
				c.AbortWithStatus(http.StatusNoContent)
				return
			}
		}

		c.Next()
	}
}

// CheckWebSocketOrigin returns a function suitable for websocket.Upgrader.CheckOrigin
// that uses the shared allowlist.
func CheckWebSocketOrigin(allowedOrigins *AllowedOrigins) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		return allowedOrigins.IsAllowed(r.Header.Get("Origin"))
	}
}

// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file enforces the browser-origin allow-list. gin-contrib/cors handles
// preflight negotiation and response headers, but by itself it only withholds
// headers from unknown origins; the browser then blocks the response while
// the server still does the work. OriginAllowList goes further and rejects
// non-preflight requests from unrecognized origins outright, before any
// validation or dispatch happens.
package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// OriginAllowList returns a Gin middleware that rejects requests whose Origin
// header is present but not in allowed, with a 403 in the standard envelope.
//
// Rules:
//   - OPTIONS requests always pass: CORS preflight must be answered
//     unconditionally (the cors middleware withholds approval headers for
//     unknown origins, which is rejection enough for a preflight).
//   - Requests without an Origin header pass: non-browser clients
//     (health checks, curl, server-to-server) do not send one.
//   - An empty allow-list disables enforcement (development convenience).
func OriginAllowList(allowed []string) gin.HandlerFunc {
	if len(allowed) == 0 {
		return func(c *gin.Context) { c.Next() }
	}

	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		set[o] = struct{}{}
	}

	return func(c *gin.Context) {
		if c.Request.Method == http.MethodOptions {
			c.Next()
			return
		}
		origin := c.GetHeader("Origin")
		if origin == "" {
			c.Next()
			return
		}
		if _, ok := set[origin]; !ok {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"success":    false,
				"request_id": c.Writer.Header().Get("X-Request-ID"),
				"code":       "forbidden",
				"message":    "origin not allowed",
			})
			return
		}
		c.Next()
	}
}

package api

import (
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/japaniel/lingomorph/pkg/observe"
)

// requestLogger logs one line per request and records its duration.
func requestLogger(log *slog.Logger, m *observe.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		elapsed := time.Since(start)

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		if m != nil {
			m.HTTPRequestDuration.Record(c.Request.Context(), elapsed.Seconds(), metric.WithAttributes(
				attribute.String("method", c.Request.Method),
				attribute.String("route", route),
				attribute.String("code", strconv.Itoa(status)),
			))
		}
		log.Debug("request", "method", c.Request.Method, "route", route, "status", status, "duration", elapsed)
	}
}

// extensionSchemes are the origins browser extensions send.
var extensionSchemes = []string{"chrome-extension", "moz-extension", "safari-web-extension"}

// allowOrigin accepts browser extensions and pages served from loopback.
func allowOrigin(origin string) bool {
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	for _, s := range extensionSchemes {
		if u.Scheme == s {
			return true
		}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	host := u.Hostname()
	return host == "localhost" || host == "127.0.0.1" || host == "::1" || strings.HasSuffix(host, ".localhost")
}

func corsPolicy() gin.HandlerFunc {
	return cors.New(cors.Config{
		AllowOriginFunc: allowOrigin,
		AllowMethods:    []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:    []string{"Content-Type"},
		MaxAge:          12 * time.Hour,
	})
}

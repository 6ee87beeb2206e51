// Package httpapi wires the ops HTTP server (Gin): health and Prometheus
// endpoints, Swagger UI, and the read-only stats API under /api/v1. It
// centralizes tracing, correlation IDs, logging, panic recovery, metrics,
// compression, CORS, security headers, the optional API key and rate
// limiting.
package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/tbourn/go-gif-bot/internal/config"
	_ "github.com/tbourn/go-gif-bot/internal/http/docs" // registers the swag document
	"github.com/tbourn/go-gif-bot/internal/http/handlers"
	"github.com/tbourn/go-gif-bot/internal/http/middleware"
)

// APIBasePath prefixes the stats API.
const APIBasePath = "/api/v1"

// RegisterRoutes attaches all middleware and endpoints to r.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. Logger: structured access log
//  4. Recovery: capture panics after logger
//  5. Metrics
//  6. gzip, CORS and security headers
//
// The API group adds the optional API key and then the rate limiter, so an
// authenticated client is limited per key rather than per IP.
func RegisterRoutes(r *gin.Engine, stats handlers.StatsService, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger())
	r.Use(middleware.Recovery())

	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.Use(gzip.Gzip(gzip.DefaultCompression))
	r.Use(corsMiddleware(cfg.Ops.CORS.AllowedOrigins)...)
	r.Use(middleware.SecurityHeaders())

	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	h := handlers.New(stats)
	rl := middleware.NewRateLimiter(cfg.Ops.RateRPS, cfg.Ops.RateBurst, middleware.KeyByAPIKeyOrIP())

	api := r.Group(APIBasePath, middleware.APIKey(cfg.Ops.APIKey), rl.Handler())
	{
		api.GET("/stats", h.GetAggregate)
		api.GET("/stats/top", h.GetTopUsers)
		api.GET("/stats/recent", h.GetRecentUsage)
		api.GET("/users/:id", h.GetUser)
		api.GET("/guilds/:id", h.GetGuild)
	}
}

// corsMiddleware allows any origin when none are configured. Otherwise the
// request Origin is echoed only when it is in the allowlist.
func corsMiddleware(origins []string) []gin.HandlerFunc {
	base := cors.Config{
		AllowMethods:     []string{http.MethodGet, http.MethodOptions},
		AllowHeaders:     []string{"Origin", "Accept", middleware.HeaderAPIKey, "X-Request-ID"},
		ExposeHeaders:    []string{"X-Request-ID", "Content-Length", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}

	if len(origins) == 0 {
		base.AllowAllOrigins = true
		return []gin.HandlerFunc{
			// ACAO: * also for requests without an Origin header (health checks, curl).
			func(c *gin.Context) {
				c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
				c.Next()
			},
			cors.New(base),
		}
	}

	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		allowed[o] = struct{}{}
	}
	base.AllowOrigins = origins
	return []gin.HandlerFunc{
		func(c *gin.Context) {
			if origin := c.GetHeader("Origin"); origin != "" {
				if _, ok := allowed[origin]; ok {
					h := c.Writer.Header()
					h.Set("Access-Control-Allow-Origin", origin)
					h.Add("Vary", "Origin")
				}
			}
			c.Next()
		},
		cors.New(base),
	}
}

// NewServer returns an *http.Server for handler with timeouts suited to a
// small JSON API.
func NewServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"
	"go.uber.org/zap"

	"course-push-backend/config"
	"course-push-backend/internal/mw"
)

// NewRouter creates and configures a new Gin router.
func NewRouter(cfg *config.Config, handler *Handler, log *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(mw.Recovery(log), mw.RequestLogger(log))

	rateLimiter := mw.RateLimiter(rate.Limit(cfg.Server.RateLimitPerSec), cfg.Server.RateLimitBurst)

	cacheTTL := time.Duration(cfg.Server.CacheTTLSeconds) * time.Second
	cacheStore := cache.New(cacheTTL, 2*cacheTTL)
	caching := mw.Cache(cacheStore, cacheTTL)

	auth := mw.JWTAuth(cfg.Auth.JWTSecret)
	adminOnly := mw.RequireRole(cfg.Auth.AdminRoles...)

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	push := r.Group("/push")
	push.Use(rateLimiter)
	{
		push.GET("/vapid-public-key", caching, handler.GetVAPIDPublicKey)

		push.POST("/subscribe", auth, handler.Subscribe)
		push.DELETE("/unsubscribe", auth, handler.Unsubscribe)
		push.GET("/subscriptions", auth, handler.ListSubscriptions)
		push.POST("/test", auth, handler.SendTest)

		push.POST("/cleanup", auth, adminOnly, handler.Cleanup)
		push.POST("/events", auth, adminOnly, handler.PostEvent)
	}

	return r
}

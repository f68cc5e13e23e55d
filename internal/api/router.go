package api

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"brewery-production-backend/config"
	"brewery-production-backend/internal/metrics"
	"brewery-production-backend/internal/mw"
)

// NewRouter creates and configures a new Gin router.
func NewRouter(handler *Handler, cfg config.ServerConfig, logger *logrus.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), corsMiddleware(cfg), mw.RequestID(), mw.Logger(logger))

	r.GET("/healthz", handler.Healthz)
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	ttl := time.Duration(cfg.CacheTTLSeconds) * time.Second
	cacheStore := cache.New(ttl, 2*ttl)
	caching := mw.Cache(cacheStore, ttl)

	api := r.Group("/api")
	api.Use(mw.Tenant(cfg.TenantHeader, cfg.ActorHeader), mw.RateLimiter(rate.Limit(cfg.RateLimitPerSec), cfg.RateLimitBurst))
	{
		api.POST("/tanks", handler.RegisterTank)
		api.GET("/tanks", handler.ListTanks)
		api.GET("/tanks/:id", handler.GetTank)
		api.POST("/tanks/:id/cip", handler.CompleteCIP)

		api.POST("/brews", handler.StartBrew)
		api.POST("/batches/:id/split", handler.SplitBatch)
		api.GET("/batches/:id/timeline", handler.GetTimeline)
		api.POST("/batches/:id/packaging", handler.StartPackaging)

		api.GET("/lots/:id", handler.GetLot)
		api.POST("/lots/:id/phase", handler.AdvancePhase)
		api.POST("/lots/:id/transfer", handler.TransferLot)
		api.POST("/lots/:id/complete", handler.CompleteLot)

		api.GET("/blends/candidates", handler.ListBlendCandidates)
		api.POST("/blends", handler.CreateBlend)

		api.POST("/inventory/items", handler.CreateItem)
		api.GET("/inventory/items/:id", handler.GetItem)
		api.POST("/inventory/items/:id/movements", handler.RecordMovement)
		api.GET("/inventory/items/:id/movements", handler.ListMovements)
		api.PUT("/inventory/items/:id/balance", handler.AdjustBalance)
		api.POST("/inventory/movements/:uuid/reverse", handler.ReverseMovement)

		api.GET("/package-types", caching, handler.GetPackageTypes)

		api.PUT("/alerts/subscriptions", handler.PutSubscription)
		api.DELETE("/alerts/subscriptions", handler.DeleteSubscription)
		api.GET("/alerts/vapid_public_key", caching, handler.GetVAPIDPublicKey)
	}

	return r
}

func corsMiddleware(cfg config.ServerConfig) gin.HandlerFunc {
	corsConfig := cors.DefaultConfig()
	if len(cfg.CORSOrigins) == 0 {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = cfg.CORSOrigins
	}
	corsConfig.AddAllowMethods("GET", "POST", "PUT", "DELETE", "OPTIONS")
	corsConfig.AddAllowHeaders(cfg.TenantHeader, cfg.ActorHeader, mw.RequestIDHeader)
	corsConfig.AddExposeHeaders(mw.RequestIDHeader, mw.CacheHeader)
	return cors.New(corsConfig)
}

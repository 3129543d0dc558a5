package api

import (
	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
	"gorm.io/gorm"

	"facility-finder-backend/config"
	"facility-finder-backend/internal/events"
	"facility-finder-backend/internal/mw"
)

// Deps are the collaborators the router serves.
type Deps struct {
	Finder   Finder
	DB       *gorm.DB
	Position PositionSink
	Events   *events.Bus
	Webpush  *webpush.Options
	Server   config.ServerConfig
}

// NewRouter creates and configures a new Gin router.
func NewRouter(d Deps) *gin.Engine {
	r := gin.Default()

	handler := NewHandler(d.Finder, d.DB, d.Position, d.Webpush)

	limit := rate.Inf
	if d.Server.RateLimitPerSec > 0 {
		limit = rate.Limit(d.Server.RateLimitPerSec)
	}
	rateLimiter := mw.RateLimiter(limit, d.Server.RateLimitBurst)

	// Cached list responses are dropped whenever the entity list changes.
	responses := mw.NewResponseCache(d.Server.CacheTTL)
	handler.onChange = responses.Purge
	if d.Events != nil {
		for _, kind := range []events.Kind{events.LocationsUpdated, events.WeeklyUpdated, events.OccupancyUpdated, events.PositionUpdated} {
			d.Events.Subscribe(kind, func(events.Event) { responses.Purge() })
		}
	}
	caching := responses.Handler()

	api := r.Group("/api")
	api.Use(rateLimiter)
	{
		api.GET("/locations", caching, handler.GetLocations)
		api.GET("/locations/:id", handler.GetLocation)
		api.POST("/refresh", handler.PostRefresh)
		api.PUT("/position", handler.PutPosition)
		api.GET("/status", handler.GetStatus)

		api.GET("/subscriptions", handler.GetSubscription)
		api.PUT("/subscriptions", handler.PutSubscription)
		api.DELETE("/subscriptions", handler.DeleteSubscription)
		api.GET("/vapid_public_key", handler.GetVAPIDPublicKey)
	}

	return r
}

package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/campbelljlowman/auxparty-api/database"
	"github.com/campbelljlowman/auxparty-api/session"
)

// PlayHistory is the persisted play log. It is optional.
type PlayHistory interface {
	RecentlyPlayed(ctx context.Context, sessionID string, limit int) ([]database.PlayedTrack, error)
	GetCompletedSessionMetrics(ctx context.Context) ([]session.Metrics, error)
}

type Options struct {
	AllowedOrigins []string
	PlayHistory    PlayHistory
	MetricsHandler http.Handler
}

type handler struct {
	session     *session.Session
	playHistory PlayHistory
}

func InitializeRoutes(s *session.Session, opts Options) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())
	router.Use(cors.New(corsConfig(opts.AllowedOrigins)))

	h := &handler{session: s, playHistory: opts.PlayHistory}

	router.GET("/hc", healthCheck)

	router.GET("/queue", h.getQueue)
	router.POST("/queue", h.addToQueue)
	router.POST("/queue/remove", h.removeFromQueue)
	router.POST("/queue/reorder", h.reorderQueue)

	router.POST("/vote/:kind", h.vote)

	router.POST("/play", h.play)
	router.POST("/previous", h.previous)
	router.POST("/pause", h.pause)

	router.GET("/search", h.search)
	router.GET("/history", h.getHistory)
	router.GET("/history/played", h.getPlayedTracks)
	router.GET("/session/metrics", h.getSessionMetrics)

	router.GET("/ws", h.websocket)
	router.GET("/events", h.events)

	if opts.MetricsHandler != nil {
		router.GET("/metrics", gin.WrapH(opts.MetricsHandler))
	}

	return router
}

func corsConfig(allowedOrigins []string) cors.Config {
	config := cors.DefaultConfig()
	config.AllowMethods = []string{http.MethodGet, http.MethodPost, http.MethodOptions}
	config.MaxAge = 12 * time.Hour

	for _, origin := range allowedOrigins {
		if origin == "*" {
			config.AllowAllOrigins = true
			return config
		}
	}
	if len(allowedOrigins) == 0 {
		config.AllowAllOrigins = true
		return config
	}
	config.AllowOrigins = allowedOrigins
	return config
}

func healthCheck(c *gin.Context) {
	c.String(http.StatusOK, "API is healthy!")
}

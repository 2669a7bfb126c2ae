package http

import (
	"context"
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/inkbytefo/oxis-xcord-sub000/internal/adapters/signal"
	"github.com/inkbytefo/oxis-xcord-sub000/internal/app"
	"github.com/inkbytefo/oxis-xcord-sub000/internal/config"
	"github.com/inkbytefo/oxis-xcord-sub000/internal/media"
)

type Deps struct {
	Orch       *app.Orchestrator
	Pool       *media.Pool
	Controller *signal.Controller
	Metrics    http.Handler
}

func SetupRouter(ctx context.Context, cfg *config.Config, deps Deps) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	r.Use(sessions.Sessions("VoiceSessions", store))

	r.GET("/health", func(c *gin.Context) {
		if !deps.Pool.Healthy() {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "workers": deps.Pool.Size()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "workers": deps.Pool.Size()})
	})

	r.GET("/rooms", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"rooms": deps.Orch.Rooms.List()})
	})

	if deps.Metrics != nil {
		r.GET("/metrics", gin.WrapH(deps.Metrics))
	} else {
		r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	r.GET("/ws/signal", func(c *gin.Context) {
		deps.Controller.HandleSignal(ctx, c)
	})

	log.Info().Str("module", "adapters.http").Msg("router setup")
	return r
}

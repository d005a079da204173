package http

import (
	"context"
	"net/http"

	"github.com/dkeye/callrelay/internal/adapters/signal"
	"github.com/dkeye/callrelay/internal/app/orch"
	"github.com/dkeye/callrelay/internal/config"
	"github.com/dkeye/callrelay/internal/domain"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"
)

const sessionName = "CallRelaySession"

func genClientToken() string {
	return uuid.NewString()
}

// ClientTokenMiddleware pins a random token to the cookie session so
// log lines from one browser can be correlated across reconnects. The
// signal handler copies the cookie into the upgrade response.
func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		session := sessions.Default(c)
		token, _ := session.Get("ct").(string)
		if token == "" {
			token = genClientToken()
			c.Set(signal.ClientTokenFreshKey, true)
			session.Set("ct", token)
			if err := session.Save(); err != nil {
				log.Warn().Err(err).Str("module", "adapters.http").Msg("save client token")
			}
		}
		c.Set(signal.ClientTokenKey, token)
		c.Next()
	}
}

// CORSMiddleware applies the origin allow-list to plain HTTP requests
// and answers preflights.
func CORSMiddleware(cc *cors.Cors) gin.HandlerFunc {
	return func(c *gin.Context) {
		cc.HandlerFunc(c.Writer, c.Request)
		if c.Request.Method == http.MethodOptions && c.GetHeader("Access-Control-Request-Method") != "" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// NewCORS builds the origin policy. An empty list allows no cross-origin
// browser at all, unlike rs/cors where it means any origin.
func NewCORS(origins []string) *cors.Cors {
	opts := cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	}
	if len(origins) == 0 {
		opts.AllowOriginFunc = func(string) bool { return false }
	}
	return cors.New(opts)
}

func SetupRouter(ctx context.Context, cfg *config.Config, o *orch.Orchestrator, gatherer prometheus.Gatherer) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	r.Use(sessions.Sessions(sessionName, store))
	r.Use(ClientTokenMiddleware())

	origins := NewCORS(cfg.AllowedOrigins)

	ctrl := signal.NewSignalWSController(ctx, o, signal.Options{
		ReadLimit:  cfg.ReadLimit,
		PingPeriod: cfg.PingPeriod,
		PongWait:   cfg.PongWait,
		WriteWait:  cfg.WriteWait,
		SendBuffer: cfg.SendBuffer,
	})
	ctrl.Origins = origins
	if cfg.ConnectRateLimit > 0 {
		ctrl.Limiter = signal.NewRoomRateLimiter(cfg.ConnectRateLimit, cfg.ConnectRateWindow)
		go sweepLimiter(ctx, ctrl.Limiter, cfg.ConnectRateWindow)
	}

	r.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})
	if gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	r.GET("/chat/:callId", ctrl.HandleSignal)

	api := r.Group("/api")
	api.Use(CORSMiddleware(origins))

	api.OPTIONS("/*path", func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	api.GET("/rooms", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"rooms": o.Rooms()})
	})

	api.GET("/rooms/:callId", func(c *gin.Context) {
		c.JSON(http.StatusOK, o.Room(domain.CallID(c.Param("callId"))))
	})

	api.DELETE("/rooms/:callId", func(c *gin.Context) {
		n := o.EvictRoom(domain.CallID(c.Param("callId")))
		c.JSON(http.StatusOK, gin.H{"evicted": n})
	})

	log.Info().Str("module", "adapters.http").Strs("origins", cfg.AllowedOrigins).Msg("router setup")
	return r
}

// Package admin serves the HTTP side of a tuple-space server: health, space sizes and
// Prometheus metrics.
package admin

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"tuplespace/logging"
	"tuplespace/space"
)

type Admin struct {
	repo     *space.Repository
	router   *gin.Engine
	logger   *zap.Logger
	appeared time.Time
	metrics  *prometheus.Registry // space gauges, gathered with the default registry

	httpServer *http.Server
}

func New(repo *space.Repository, logger *zap.Logger) *Admin {
	logger = logging.OrNop(logger)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLogger(logger))

	a := &Admin{
		repo:     repo,
		router:   r,
		logger:   logger,
		appeared: time.Now(),
		metrics:  prometheus.NewRegistry(),
	}
	a.metrics.MustRegister(newSpaceCollector(repo))
	a.registerRoutes()
	a.httpServer = &http.Server{
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return a
}

func (a *Admin) Handler() http.Handler {
	return a.router
}

func (a *Admin) registerRoutes() {
	a.router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"uptime": time.Since(a.appeared).String(),
			"spaces": len(a.repo.Names()),
		})
	})

	a.router.GET("/spaces", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"spaces": a.repo.Sizes()})
	})

	a.router.GET("/spaces/:name", func(c *gin.Context) {
		name := c.Param("name")
		sp, ok := a.repo.Space(name)
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown space " + name})
			return
		}
		c.JSON(http.StatusOK, gin.H{"name": name, "size": sp.Size()})
	})

	gatherers := prometheus.Gatherers{prometheus.DefaultGatherer, a.metrics}
	a.router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherers, promhttp.HandlerOpts{})))
}

// Serve answers HTTP requests on l until Shutdown. Serve after Shutdown returns nil
// at once.
func (a *Admin) Serve(l net.Listener) error {
	a.logger.Info("admin listening", zap.Stringer("addr", l.Addr()))
	if err := a.httpServer.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (a *Admin) Shutdown(ctx context.Context) error {
	return a.httpServer.Shutdown(ctx)
}

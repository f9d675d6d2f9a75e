// Package api is the control surface of the sync service: it requests runs and reports status.
// It never calls pipeline code, it only touches the request marker and reads the status file.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/HuyNguyen260398/s3-sync-compress/status"
)

// Log implement Logrus logger for request logging.
var Log = logrus.New()

const (
	DefaultAddr        = "127.0.0.1:8001"
	DefaultTriggerFile = "/tmp/trigger_sync"
	shutdownTimeout    = 5 * time.Second
)

// Config of the control surface.
type Config struct {
	TriggerFile string
	StatusFile  string
	// AllowOrigins enables CORS for the listed origins, "*" allows any.
	AllowOrigins []string
}

type handler struct {
	cfg Config
}

// NewRouter returns the gin engine serving every route both at the root and under /api.
func NewRouter(cfg Config) *gin.Engine {
	if cfg.TriggerFile == "" {
		cfg.TriggerFile = DefaultTriggerFile
	}

	router := gin.New()
	router.Use(Logger())
	router.Use(Recovery())
	if len(cfg.AllowOrigins) > 0 {
		router.Use(cors.New(corsConfig(cfg.AllowOrigins)))
	}

	h := &handler{cfg: cfg}
	for _, base := range []string{"/", "/api"} {
		g := router.Group(base)
		g.POST("/start-sync", h.startSync)
		g.GET("/health", h.health)
		g.GET("/status", h.status)
	}
	return router
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	for _, o := range origins {
		if o == "*" {
			cfg.AllowAllOrigins = true
			return cfg
		}
	}
	cfg.AllowOrigins = origins
	return cfg
}

func (h *handler) startSync(c *gin.Context) {
	if err := Touch(h.cfg.TriggerFile); err != nil {
		Log.Errorf("Failed to trigger sync: %s", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to trigger sync",
			"message": err.Error(),
		})
		return
	}
	Log.Infof("Sync triggered via API")
	c.JSON(http.StatusOK, gin.H{
		"status":  "sync triggered",
		"message": "Sync process will start shortly",
	})
}

func (h *handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"message": "API server is running",
	})
}

func (h *handler) status(c *gin.Context) {
	st, err := status.Load(h.cfg.StatusFile)
	if err != nil {
		Log.Errorf("Failed to read status file %s: %s", h.cfg.StatusFile, err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to read status",
			"message": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, st)
}

// ListenAndServe serves handler on addr until ctx is done, then shuts down gracefully.
func ListenAndServe(ctx context.Context, addr string, handler http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		Log.Infof("Starting API server on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	Log.Infof("Shutting down API server")
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(sctx)
}

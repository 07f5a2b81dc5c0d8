// Package server exposes the served map over HTTP. Every request becomes a
// dispatcher command, so HTTP clients and in-process callers share the same
// serialized access to the controller.
package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/OCAP2/clustermap/internal/dispatcher"
	"github.com/OCAP2/clustermap/internal/marker"
	"github.com/OCAP2/clustermap/internal/monitor"
	"github.com/OCAP2/clustermap/internal/snapshot"
	"github.com/OCAP2/clustermap/internal/storage"
	"github.com/OCAP2/clustermap/internal/worker"
	"github.com/OCAP2/clustermap/pkg/clustermap"
	"github.com/gin-gonic/gin"
	"github.com/paulmach/orb/geojson"
)

// ShutdownTimeout bounds how long Run waits for open requests on shutdown
const ShutdownTimeout = 5 * time.Second

// maxBodySize caps request bodies
const maxBodySize = 1 << 20

// Dependencies holds all dependencies for the HTTP server
type Dependencies struct {
	Dispatcher *dispatcher.Dispatcher
	// Monitor serves GET /api/status. Optional.
	Monitor *monitor.Service
	// Backend serves GET /api/maps. Optional.
	Backend storage.Backend
	Logger  *slog.Logger
}

// Server is the HTTP API
type Server struct {
	deps   Dependencies
	router *gin.Engine
}

// New creates the server and its routes
func New(deps Dependencies) *Server {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	s := &Server{deps: deps}

	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger(), cors())

	api := r.Group("/api")

	api.GET("/map", s.command(worker.CmdMapGet))
	api.GET("/map/snapshot", s.snapshot)
	api.POST("/map/save", s.command(worker.CmdMapSave))
	api.GET("/maps", s.listMaps)
	api.POST("/maps/:name/load", s.command(worker.CmdMapLoad))

	api.POST("/markers", s.command(worker.CmdMarkerAdd))
	api.DELETE("/markers/:index", s.command(worker.CmdMarkerRemove))
	api.POST("/markers/:index/popup", s.command(worker.CmdMarkerPopup))
	api.POST("/markers/:index/click", s.command(worker.CmdMarkerClick))

	api.GET("/tiles/url", s.command(worker.CmdTileURL))
	api.GET("/status", s.status)

	s.router = r
	return s
}

// Handler returns the HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves on addr until ctx is cancelled.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.deps.Logger.Info("HTTP API listening", "address", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down HTTP server: %w", err)
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// command returns a handler that turns the request into the named command.
// Path and query parameters become command parameters, the body is passed
// through unchanged.
func (s *Server) command(name string) gin.HandlerFunc {
	return func(c *gin.Context) {
		res, err := s.dispatch(c, name)
		if err != nil {
			s.fail(c, err)
			return
		}
		if res == nil {
			c.Status(http.StatusNoContent)
			return
		}
		c.JSON(http.StatusOK, res)
	}
}

func (s *Server) dispatch(c *gin.Context, name string) (any, error) {
	params := make(map[string]string)
	for key, values := range c.Request.URL.Query() {
		if len(values) > 0 {
			params[key] = values[0]
		}
	}
	for _, p := range c.Params {
		params[p.Key] = p.Value
	}

	var body []byte
	if c.Request.Body != nil {
		var err error
		body, err = io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxBodySize))
		if err != nil {
			return nil, fmt.Errorf("%w: reading body: %w", worker.ErrInvalidCommand, err)
		}
	}

	return s.deps.Dispatcher.Dispatch(dispatcher.Command{
		Name:   name,
		Params: params,
		Body:   body,
	})
}

func (s *Server) snapshot(c *gin.Context) {
	res, err := s.dispatch(c, worker.CmdMapSnapshot)
	if err != nil {
		s.fail(c, err)
		return
	}
	fc, ok := res.(*geojson.FeatureCollection)
	if !ok {
		s.fail(c, fmt.Errorf("unexpected snapshot result %T", res))
		return
	}

	var buf bytes.Buffer
	if err := snapshot.Encode(&buf, fc); err != nil {
		s.fail(c, err)
		return
	}
	c.Data(http.StatusOK, "application/geo+json", buf.Bytes())
}

func (s *Server) listMaps(c *gin.Context) {
	if s.deps.Backend == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "no storage backend"})
		return
	}
	names, err := s.deps.Backend.ListMaps()
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"maps": names})
}

func (s *Server) status(c *gin.Context) {
	if s.deps.Monitor == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "status monitor disabled"})
		return
	}
	c.JSON(http.StatusOK, s.deps.Monitor.Status())
}

func (s *Server) fail(c *gin.Context, err error) {
	code := statusCode(err)
	if code >= http.StatusInternalServerError {
		s.deps.Logger.Error("Request failed", "path", c.FullPath(), "error", err)
	}
	c.JSON(code, gin.H{"error": err.Error()})
}

// statusCode maps command errors to HTTP status codes
func statusCode(err error) int {
	switch {
	case errors.Is(err, worker.ErrInvalidCommand),
		errors.Is(err, marker.ErrMissingPosition),
		errors.Is(err, storage.ErrInvalidName):
		return http.StatusBadRequest
	case errors.Is(err, clustermap.ErrIndexOutOfRange),
		errors.Is(err, worker.ErrNoMap),
		errors.Is(err, storage.ErrMapNotFound),
		errors.Is(err, dispatcher.ErrUnknownCommand):
		return http.StatusNotFound
	case errors.Is(err, clustermap.ErrNotRendered):
		return http.StatusConflict
	case errors.Is(err, dispatcher.ErrQueueFull):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.deps.Logger.Debug("HTTP request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start))
	}
}

func cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"feedreader/internal/model"
	"feedreader/internal/service"
)

// NewHTTPHandler creates a gin engine serving the tools.
func (s *Server) NewHTTPHandler() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(requestLogger(s.log))
	r.Use(gin.Recovery())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "timestamp": time.Now().UTC().Format(time.RFC3339)})
	})
	r.GET("/tools", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"tools": s.Tools()})
	})
	r.POST("/tools/:name", s.handleTool)

	return r
}

func (s *Server) handleTool(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxLineSize))
	if err != nil {
		c.JSON(http.StatusBadRequest, Response{Error: fmt.Sprintf("read body: %v", err)})
		return
	}

	resp, err := s.dispatch(c.Request.Context(), Call{Tool: c.Param("name"), Arguments: json.RawMessage(body)})
	c.JSON(statusFor(err), resp)
}

// statusFor maps a tool error to the closest HTTP status.
func statusFor(err error) int {
	var (
		unknown   *UnknownToolError
		notFound  *model.NotFoundError
		dup       *model.DuplicateError
		discovery *model.DiscoveryFailedError
		invalid   *service.ValidationError
		badArgs   *ArgumentError
	)
	switch {
	case err == nil:
		return http.StatusOK
	case errors.As(err, &unknown), errors.As(err, &notFound):
		return http.StatusNotFound
	case errors.As(err, &dup):
		return http.StatusConflict
	case errors.As(err, &invalid), errors.As(err, &badArgs):
		return http.StatusBadRequest
	case errors.As(err, &discovery):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// ListenAndServe listens on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.NewHTTPHandler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("serving tools on http", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("listen: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	}
}

func requestLogger(log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Info("http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"latency", time.Since(start),
			"client_ip", c.ClientIP(),
		)
	}
}

// Package api exposes transcript ingestion and participant queries over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"mimic-ai/backend/internal/graph"
	"mimic-ai/backend/internal/ingest"
	apperrors "mimic-ai/backend/pkg/errors"
	"mimic-ai/backend/pkg/logger"
)

const (
	defaultContextLimit = 20
	maxContextLimit     = 200
)

// Ingester parses and stores a raw transcript.
type Ingester interface {
	ParseAndIngest(ctx context.Context, raw string) (*ingest.Result, error)
}

// Server holds the HTTP handlers' dependencies.
type Server struct {
	ingester       Ingester
	reader         graph.Reader
	maxUploadBytes int64
	// ingestMu serialises ingestion; concurrent batches would interleave FOLLOWS chains
	ingestMu sync.Mutex
	logger   *zap.Logger
}

// NewServer creates a server. maxUploadBytes bounds uploaded files.
func NewServer(ingester Ingester, reader graph.Reader, maxUploadBytes int64) *Server {
	return &Server{
		ingester:       ingester,
		reader:         reader,
		maxUploadBytes: maxUploadBytes,
		logger:         logger.Named("api"),
	}
}

// UploadResponse is returned by both ingestion endpoints.
type UploadResponse struct {
	Success    bool           `json:"success"`
	Message    string         `json:"message"`
	Statistics *ingest.Result `json:"statistics"`
}

// Router builds the gin engine.
func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.MaxMultipartMemory = s.maxUploadBytes
	router.Use(requestID())
	router.Use(ginLogger(s.logger))
	router.Use(recordMetrics())
	router.Use(gin.Recovery())
	router.Use(cors())

	router.GET("/", s.root)
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api")
	{
		api.POST("/upload", s.upload)
		api.POST("/messages/add", s.addMessages)
		api.GET("/status", s.status)
		api.GET("/users", s.users)
		api.GET("/users/:name/patterns", s.patterns)
		api.GET("/users/:name/context", s.conversationContext)
	}
	return router
}

func (s *Server) root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message": "Mimic.AI Backend API",
		"endpoints": gin.H{
			"upload":       "/api/upload",
			"add_messages": "/api/messages/add",
			"status":       "/api/status",
			"users":        "/api/users",
		},
	})
}

// upload ingests a multipart .txt chat export under the "file" field.
func (s *Server) upload(c *gin.Context) {
	fh, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}
	if !strings.EqualFold(filepath.Ext(fh.Filename), ".txt") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Only .txt files are supported"})
		return
	}
	if fh.Size > s.maxUploadBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": fmt.Sprintf("file exceeds %d bytes", s.maxUploadBytes)})
		return
	}

	f, err := fh.Open()
	if err != nil {
		s.logger.Error("Failed to open upload", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read file"})
		return
	}
	defer f.Close()

	content, err := io.ReadAll(io.LimitReader(f, s.maxUploadBytes+1))
	if err != nil {
		s.logger.Error("Failed to read upload", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read file"})
		return
	}
	if int64(len(content)) > s.maxUploadBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": fmt.Sprintf("file exceeds %d bytes", s.maxUploadBytes)})
		return
	}
	if !utf8.Valid(content) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "File encoding error. Please ensure the file is UTF-8 encoded"})
		return
	}

	s.logger.Info("Received chat export",
		zap.String("filename", fh.Filename),
		zap.Int("bytes", len(content)),
	)
	s.ingestRaw(c, string(content), "processed")
}

// addMessages ingests raw transcript text from a JSON body.
func (s *Server) addMessages(c *gin.Context) {
	var req struct {
		Messages string `json:"messages" binding:"required"`
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.maxUploadBytes)
	if err := c.ShouldBindJSON(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": fmt.Sprintf("body exceeds %d bytes", s.maxUploadBytes)})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.ingestRaw(c, req.Messages, "added")
}

func (s *Server) ingestRaw(c *gin.Context, raw, verb string) {
	s.ingestMu.Lock()
	result, err := s.ingester.ParseAndIngest(c.Request.Context(), raw)
	s.ingestMu.Unlock()

	if err != nil {
		var empty *apperrors.EmptyBatchError
		if errors.As(err, &empty) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "No valid messages found"})
			return
		}
		s.logger.Error("Ingestion failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to ingest messages"})
		return
	}

	c.JSON(http.StatusOK, UploadResponse{
		Success:    true,
		Message:    fmt.Sprintf("Successfully %s %d messages", verb, result.MessagesCreated),
		Statistics: result,
	})
}

// status runs the stats and participant queries concurrently.
func (s *Server) status(c *gin.Context) {
	var (
		stats *graph.DatabaseStats
		users []string
	)

	g, ctx := errgroup.WithContext(c.Request.Context())
	g.Go(func() error {
		var err error
		stats, err = s.reader.DatabaseStats(ctx)
		return err
	})
	g.Go(func() error {
		var err error
		users, err = s.reader.ListParticipants(ctx)
		return err
	})
	if err := g.Wait(); err != nil {
		s.logger.Error("Failed to fetch status", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve status"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":         "operational",
		"database_stats": stats,
		"users":          users,
	})
}

func (s *Server) users(c *gin.Context) {
	users, err := s.reader.ListParticipants(c.Request.Context())
	if err != nil {
		s.logger.Error("Failed to list users", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve users"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": users, "count": len(users)})
}

func (s *Server) patterns(c *gin.Context) {
	name := c.Param("name")
	profile, err := s.reader.ParticipantProfile(c.Request.Context(), name)
	if err != nil {
		s.readFailed(c, name, err)
		return
	}
	c.JSON(http.StatusOK, profile)
}

func (s *Server) conversationContext(c *gin.Context) {
	name := c.Param("name")
	limit := defaultContextLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxContextLimit {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("limit must be between 1 and %d", maxContextLimit)})
			return
		}
		limit = n
	}

	if _, err := s.reader.ParticipantProfile(c.Request.Context(), name); err != nil {
		s.readFailed(c, name, err)
		return
	}
	messages, err := s.reader.RecentMessages(c.Request.Context(), name, limit)
	if err != nil {
		s.readFailed(c, name, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": name, "messages": messages, "count": len(messages)})
}

func (s *Server) readFailed(c *gin.Context, name string, err error) {
	var notFound *apperrors.ErrParticipantNotFound
	if errors.As(err, &notFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("User '%s' not found", name)})
		return
	}
	s.logger.Error("Failed to query participant", zap.String("name", name), zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve participant"})
}

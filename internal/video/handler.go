package video

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"

	"videohub/pkg/db"
	"videohub/pkg/logger"
	"videohub/pkg/validator"

	"github.com/gin-gonic/gin"
)

// Repository is the catalog surface the handler needs.
type Repository interface {
	Find(ctx context.Context, id string) (Video, error)
	Add(ctx context.Context, v Video) error
}

// ViewPublisher announces a play without blocking the response.
type ViewPublisher interface {
	PublishAsync(ctx context.Context, videoPath string)
}

// hop-by-hop headers are not forwarded in either direction.
var hopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

type Handler struct {
	catalog   Repository
	publisher ViewPublisher
	storage   *url.URL
	client    *http.Client
	logger    logger.Logger
}

// NewHandler streams from the storage service at storageURL.
func NewHandler(catalog Repository, publisher ViewPublisher, storageURL *url.URL, client *http.Client, log logger.Logger) *Handler {
	if client == nil {
		client = http.DefaultClient
	}
	return &Handler{
		catalog:   catalog,
		publisher: publisher,
		storage:   storageURL,
		client:    client,
		logger:    log,
	}
}

// StreamHandler serves GET /video?id=<id>.
func (h *Handler) StreamHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		id := c.Query("id")
		if id == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "id is required"})
			return
		}

		v, err := h.catalog.Find(ctx, id)
		if errors.Is(err, db.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "video not found"})
			return
		}
		if err != nil {
			h.logger.Error(ctx, "failed to look up video", logger.Field{Key: "video_id", Value: id}, logger.Err(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to look up video"})
			return
		}

		upstream := *h.storage
		upstream.Path = "/video"
		upstream.RawQuery = url.Values{"path": {v.Path}}.Encode()

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, upstream.String(), nil)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to build storage request"})
			return
		}
		req.Header = c.Request.Header.Clone()
		for _, hh := range hopHeaders {
			req.Header.Del(hh)
		}

		resp, err := h.client.Do(req)
		if err != nil {
			h.logger.Error(ctx, "storage request failed", logger.Field{Key: "video_path", Value: v.Path}, logger.Err(err))
			c.JSON(http.StatusBadGateway, gin.H{"error": "storage unavailable"})
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			h.publisher.PublishAsync(ctx, v.Path)
		}

		for k, vals := range resp.Header {
			c.Writer.Header()[k] = vals
		}
		for _, hh := range hopHeaders {
			c.Writer.Header().Del(hh)
		}
		c.Status(resp.StatusCode)

		if _, err := io.Copy(c.Writer, resp.Body); err != nil {
			h.logger.Warn(ctx, "video stream interrupted", logger.Field{Key: "video_path", Value: v.Path}, logger.Err(err))
		}
	}
}

// RegisterRequest is the body of POST /videos.
type RegisterRequest struct {
	ID   string `json:"id" binding:"required"`
	Path string `json:"video_path" binding:"required"`
}

// RegisterHandler serves POST /videos, adding a catalog entry.
func (h *Handler) RegisterHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req RegisterRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		if err := validator.ValidateVideoID(req.ID); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "id: " + err.Error()})
			return
		}
		if err := validator.ValidateVideoPath(req.Path); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "video_path: " + err.Error()})
			return
		}

		v := Video{ID: req.ID, Path: req.Path}
		if err := h.catalog.Add(c.Request.Context(), v); err != nil {
			h.logger.Error(c.Request.Context(), "failed to register video", logger.Err(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to register video"})
			return
		}

		c.JSON(http.StatusCreated, v)
	}
}

// Register mounts the video routes.
func (h *Handler) Register(r gin.IRouter) {
	r.GET("/video", h.StreamHandler())
	r.POST("/videos", h.RegisterHandler())
}

package storage

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"videohub/pkg/logger"
	"videohub/pkg/validator"

	"github.com/gin-gonic/gin"
)

const (
	defaultContentType = "video/mp4"
	videoPathHeader    = "X-Video-Path"
)

type Handler struct {
	blobs  Blobs
	logger logger.Logger
}

func NewHandler(blobs Blobs, log logger.Logger) *Handler {
	return &Handler{blobs: blobs, logger: log}
}

// StreamHandler serves GET /video?path=<path>.
func (h *Handler) StreamHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		path := c.Query("path")
		if err := validator.ValidateVideoPath(path); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "path: " + err.Error()})
			return
		}

		blob, err := h.blobs.Get(ctx, path)
		if errors.Is(err, ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "video not found"})
			return
		}
		if err != nil {
			h.logger.Error(ctx, "failed to open blob", logger.Field{Key: "video_path", Value: path}, logger.Err(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to open video"})
			return
		}
		defer blob.Body.Close()

		contentType := blob.ContentType
		if contentType == "" {
			contentType = defaultContentType
		}
		c.Header("Content-Type", contentType)
		if blob.Size > 0 {
			c.Header("Content-Length", strconv.FormatInt(blob.Size, 10))
		}
		c.Status(http.StatusOK)

		if _, err := io.Copy(c.Writer, blob.Body); err != nil {
			h.logger.Warn(ctx, "blob stream interrupted", logger.Field{Key: "video_path", Value: path}, logger.Err(err))
		}
	}
}

// UploadHandler serves POST /upload. The blob path comes from the
// X-Video-Path header and the body is stored as-is.
func (h *Handler) UploadHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		path := c.GetHeader(videoPathHeader)
		if err := validator.ValidateVideoPath(path); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": videoPathHeader + ": " + err.Error()})
			return
		}
		if c.Request.ContentLength < 0 {
			c.JSON(http.StatusLengthRequired, gin.H{"error": "Content-Length is required"})
			return
		}

		contentType := c.ContentType()
		if contentType == "" {
			contentType = defaultContentType
		}

		if err := h.blobs.Put(ctx, path, c.Request.Body, c.Request.ContentLength, contentType); err != nil {
			h.logger.Error(ctx, "failed to store blob", logger.Field{Key: "video_path", Value: path}, logger.Err(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store video"})
			return
		}

		h.logger.Info(ctx, "video stored",
			logger.Field{Key: "video_path", Value: path},
			logger.Field{Key: "size", Value: c.Request.ContentLength},
		)
		c.JSON(http.StatusCreated, gin.H{"video_path": path})
	}
}

// Register mounts the storage routes.
func (h *Handler) Register(r gin.IRouter) {
	r.GET("/video", h.StreamHandler())
	r.POST("/upload", h.UploadHandler())
}

package handlers

import (
	"context"
	"errors"
	"io"
	"mime"
	"net/http"
	"path"
	"strconv"

	"commhub/internal/apperr"
	"commhub/internal/operator"
	"commhub/internal/services"
	"commhub/pkg/models"

	"github.com/labstack/echo/v4"
)

// MediaURLPrefix is the route prefix under which stored attachments are served
const MediaURLPrefix = "/api/v1/communications/media/"

// AttachmentLookup resolves stored files to their attachment rows
type AttachmentLookup interface {
	GetAttachmentByPath(ctx context.Context, path string) (*models.Attachment, error)
}

// MediaHandler serves uploads and stored attachments
type MediaHandler struct {
	ops         *operator.Service
	media       *services.MediaStore
	attachments AttachmentLookup
}

// NewMediaHandler creates a new media handler
func NewMediaHandler(ops *operator.Service, media *services.MediaStore, attachments AttachmentLookup) *MediaHandler {
	return &MediaHandler{ops: ops, media: media, attachments: attachments}
}

// UploadResponse describes a stored upload
type UploadResponse struct {
	ID       string          `json:"id"`
	Filename string          `json:"filename"`
	Type     models.FileType `json:"type"`
	URL      string          `json:"url"`
	MimeType string          `json:"mime_type"`
	Size     int64           `json:"size"`
}

// Upload godoc
// @Summary Upload a file for a later send
// @Tags communications
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "File"
// @Success 201 {object} UploadResponse
// @Failure 400 {object} ErrorResponse
// @Router /communications/upload [post]
func (h *MediaHandler) Upload(c echo.Context) error {
	c.Request().Body = http.MaxBytesReader(c.Response(), c.Request().Body, services.MaxUploadSize+(1<<20))
	fh, err := c.FormFile("file")
	if err != nil {
		return badRequest(c, "file is required")
	}
	f, err := fh.Open()
	if err != nil {
		return badRequest(c, "unable to read file")
	}
	defer f.Close()

	att, err := h.ops.Upload(c.Request().Context(), f, fh.Header.Get("Content-Type"), fh.Filename)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, UploadResponse{
		ID:       att.ID.String(),
		Filename: att.OriginalName,
		Type:     att.FileType,
		URL:      MediaURLPrefix + att.FilePath,
		MimeType: att.MimeType,
		Size:     att.FileSize,
	})
}

// ServeMedia godoc
// @Summary Download a stored attachment
// @Tags communications
// @Param path path string true "Media path, e.g. attachments/<uuid>.pdf"
// @Success 200 {file} binary
// @Success 304
// @Failure 404 {object} ErrorResponse
// @Router /communications/media/{path} [get]
func (h *MediaHandler) ServeMedia(c echo.Context) error {
	return h.serve(c, c.Param("*"))
}

// ServeFile godoc
// @Summary Download a stored attachment by file name
// @Tags communications
// @Param name path string true "File name"
// @Success 200 {file} binary
// @Success 304
// @Failure 404 {object} ErrorResponse
// @Router /communications/files/{name} [get]
func (h *MediaHandler) ServeFile(c echo.Context) error {
	return h.serve(c, path.Join("attachments", path.Base(c.Param("name"))))
}

func (h *MediaHandler) serve(c echo.Context, key string) error {
	key, err := services.CleanMediaPath(key)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	att, err := h.attachments.GetAttachmentByPath(ctx, key)
	if err != nil {
		return err
	}

	etag := services.ETag(att)
	res := c.Response()
	res.Header().Set("ETag", etag)
	res.Header().Set("Cache-Control", "private, max-age=86400")
	if match := c.Request().Header.Get("If-None-Match"); match != "" && match == etag {
		return c.NoContent(http.StatusNotModified)
	}

	rc, size, err := h.media.Open(ctx, key)
	if errors.Is(err, services.ErrMediaNotFound) {
		return apperr.NotFound("media %s not found", key)
	}
	if err != nil {
		return err
	}
	defer rc.Close()

	contentType := att.MimeType
	if contentType == "" {
		contentType = echo.MIMEOctetStream
	}
	res.Header().Set(echo.HeaderContentType, contentType)
	if size > 0 {
		res.Header().Set(echo.HeaderContentLength, strconv.FormatInt(size, 10))
	}
	if att.OriginalName != "" {
		res.Header().Set(echo.HeaderContentDisposition, mime.FormatMediaType("inline", map[string]string{"filename": att.OriginalName}))
	}
	res.WriteHeader(http.StatusOK)
	if c.Request().Method == http.MethodHead {
		return nil
	}
	_, err = io.Copy(res, rc)
	return err
}

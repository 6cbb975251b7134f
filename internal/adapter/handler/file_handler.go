package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/zots0127/fileshare/internal/domain/entities"
	"github.com/zots0127/fileshare/internal/infrastructure/staging"
	"github.com/zots0127/fileshare/internal/usecase"
	"github.com/zots0127/fileshare/pkg/logging"
	"github.com/zots0127/fileshare/pkg/middleware"
)

// maxFieldSize bounds each non-file multipart field
const maxFieldSize = 64 << 10

// FileService is the lifecycle surface the handler drives
type FileService interface {
	Upload(ctx context.Context, actor string, staged usecase.StagedFile, req entities.PermissionRequest) (*usecase.UploadResult, error)
	Rename(ctx context.Context, actor, oldName, newName string) (*usecase.RenameResult, error)
	Delete(ctx context.Context, actor, name string) (*usecase.DeleteResult, error)
	ListForUser(ctx context.Context, userEmail string) ([]entities.FileListing, error)
	UpdatePermissions(ctx context.Context, actor, name string, req entities.PermissionRequest) error
	Download(ctx context.Context, actor, name string) (io.ReadCloser, *entities.FileObject, error)
}

// FileHandler handles the file API
type FileHandler struct {
	files  FileService
	stager *staging.Stager
	logger *zap.Logger
}

// NewFileHandler creates a new file handler
func NewFileHandler(files FileService, stager *staging.Stager, logger *zap.Logger) *FileHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileHandler{files: files, stager: stager, logger: logger}
}

// RegisterRoutes registers file routes on an authenticated group
func (h *FileHandler) RegisterRoutes(router gin.IRouter) {
	router.POST("/files", h.Upload)
	router.GET("/files", h.List)
	router.GET("/files/:name", h.Download)
	router.PATCH("/files/:name", h.Rename)
	router.DELETE("/files/:name", h.Delete)
	router.PUT("/files/:name/permissions", h.UpdatePermissions)
}

type renameRequest struct {
	NewName string `json:"new_name" binding:"required"`
}

// Upload stages the multipart "file" part and hands it to the lifecycle.
// Permission lists may be repeated fields or comma separated values.
//
// The lifecycle keeps the staged copy after a store failure, but an HTTP
// request cannot be retried against it, so the handler removes it whatever
// the outcome. Retries upload the bytes again.
func (h *FileHandler) Upload(c *gin.Context) {
	reader, err := c.Request.MultipartReader()
	if err != nil {
		h.writeError(c, entities.ValidationError("", "expected a multipart/form-data body"))
		return
	}

	var (
		staged *staging.File
		fields = make(map[string][]string)
	)
	defer func() {
		// removed on success by the lifecycle; on failure nothing references it
		if staged != nil {
			staged.Remove()
		}
	}()

	for {
		part, err := reader.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			h.writeError(c, entities.ValidationError("", "malformed multipart body: %v", err))
			return
		}

		switch name := part.FormName(); {
		case name == "file":
			if staged != nil {
				part.Close()
				h.writeError(c, entities.ValidationError("", "exactly one file part is allowed"))
				return
			}
			staged, err = h.stager.Stage(part.FileName(), part)
			part.Close()
			if errors.Is(err, staging.ErrTooLarge) {
				c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{
					"error":   "too_large",
					"message": err.Error(),
				})
				return
			}
			if err != nil {
				h.writeError(c, fmt.Errorf("stage upload: %w", err))
				return
			}
		case name != "":
			value, err := io.ReadAll(io.LimitReader(part, maxFieldSize))
			part.Close()
			if err != nil {
				h.writeError(c, entities.ValidationError("", "read field %s: %v", name, err))
				return
			}
			fields[name] = append(fields[name], string(value))
		default:
			part.Close()
		}
	}

	if staged == nil {
		h.writeError(c, entities.ValidationError("", "missing file part"))
		return
	}

	req := entities.PermissionRequest{
		EditUsers:     splitList(fields["edit_users"]),
		DownloadUsers: splitList(fields["download_users"]),
		ReadUsers:     splitList(fields["read_users"]),
	}

	result, err := h.files.Upload(c.Request.Context(), middleware.ActorFromContext(c), staged, req)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"file_name":    result.File.Name,
		"content_type": result.File.ContentType,
		"size":         result.File.SizeBytes,
		"permissions":  result.Permissions,
	})
}

// List returns the files the caller can access
func (h *FileHandler) List(c *gin.Context) {
	listing, err := h.files.ListForUser(c.Request.Context(), middleware.ActorFromContext(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"files": listing})
}

// Download streams a file as an attachment
func (h *FileHandler) Download(c *gin.Context) {
	rc, file, err := h.files.Download(c.Request.Context(), middleware.ActorFromContext(c), c.Param("name"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	defer rc.Close()

	contentType := file.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	size := file.SizeBytes
	if size <= 0 {
		size = -1
	}
	c.DataFromReader(http.StatusOK, size, contentType, rc, map[string]string{
		"Content-Disposition": mime.FormatMediaType("attachment", map[string]string{"filename": file.Name}),
	})
}

// Rename moves a file to the name in the JSON body
func (h *FileHandler) Rename(c *gin.Context) {
	var body renameRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		h.writeError(c, entities.ValidationError(c.Param("name"), "new_name is required"))
		return
	}

	result, err := h.files.Rename(c.Request.Context(), middleware.ActorFromContext(c), c.Param("name"), strings.TrimSpace(body.NewName))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"old_name": result.OldName, "new_name": result.NewName})
}

// Delete removes a file
func (h *FileHandler) Delete(c *gin.Context) {
	result, err := h.files.Delete(c.Request.Context(), middleware.ActorFromContext(c), c.Param("name"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"file_name": result.FileName})
}

// UpdatePermissions replaces the permission lists of a file
func (h *FileHandler) UpdatePermissions(c *gin.Context) {
	var req entities.PermissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.writeError(c, entities.ValidationError(c.Param("name"), "invalid permission lists: %v", err))
		return
	}
	req.EditUsers = splitList(req.EditUsers)
	req.DownloadUsers = splitList(req.DownloadUsers)
	req.ReadUsers = splitList(req.ReadUsers)

	name := c.Param("name")
	if err := h.files.UpdatePermissions(c.Request.Context(), middleware.ActorFromContext(c), name, req); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"file_name": name})
}

// writeError maps lifecycle error kinds to HTTP status codes
func (h *FileHandler) writeError(c *gin.Context, err error) {
	log := logging.FromContext(c.Request.Context(), h.logger)

	var le *entities.LifecycleError
	if !errors.As(err, &le) {
		log.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}

	body := gin.H{"error": le.Kind.String(), "message": le.Error()}
	status := http.StatusInternalServerError
	switch le.Kind {
	case entities.KindValidation:
		status = http.StatusBadRequest
	case entities.KindPermissionDenied:
		status = http.StatusForbidden
	case entities.KindNotFound:
		status = http.StatusNotFound
	case entities.KindConflict:
		status = http.StatusConflict
	case entities.KindStoreTimeout:
		status = http.StatusGatewayTimeout
	case entities.KindStoreWrite:
		status = http.StatusBadGateway
	case entities.KindPartialUpload, entities.KindPartialRename, entities.KindOrphanedObject:
		body["file_name"] = le.FileName
		body["last_state"] = string(le.LastState)
	}

	if status >= http.StatusInternalServerError {
		log.Error("lifecycle operation failed", zap.String("kind", le.Kind.String()), zap.Error(err))
	}
	c.AbortWithStatusJSON(status, body)
}

// splitList flattens repeated and comma separated values, dropping blanks
func splitList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, item := range strings.Split(v, ",") {
			if item = strings.TrimSpace(item); item != "" {
				out = append(out, item)
			}
		}
	}
	return out
}

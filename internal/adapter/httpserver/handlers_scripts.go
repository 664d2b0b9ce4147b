package httpserver

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/pscheid92/marketpulse/internal/domain"
	apperrors "github.com/pscheid92/marketpulse/internal/platform/errors"
)

const (
	bulkUploadField   = "scripts"
	maxScriptFileSize = 1 << 20
	maxUploadMemory   = 8 << 20
)

type scriptRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	Category    *string `json:"category"`
	Code        *string `json:"code"`
}

func (s *Server) registerScriptRoutes(api *echo.Group) {
	api.GET("/pine-scripts", s.handleListScripts)
	api.POST("/pine-scripts", s.handleCreateScript)
	api.POST("/pine-scripts/bulk-upload", s.handleBulkUpload)
	api.PUT("/pine-scripts/:id", s.handleUpdateScript)
	api.DELETE("/pine-scripts/:id", s.handleDeleteScript)
	api.POST("/pine-scripts/:id/view", s.handleViewScript)
}

// handleListScripts searches when search or category is given, otherwise lists by owner.
func (s *Server) handleListScripts(c echo.Context) error {
	ctx := c.Request().Context()
	search := c.QueryParam("search")
	rawCategory := c.QueryParam("category")

	var (
		scripts []domain.PineScript
		err     error
	)
	if search != "" || rawCategory != "" {
		var category *domain.ScriptCategory
		if rawCategory != "" {
			cat := domain.ScriptCategory(rawCategory)
			if !cat.Valid() {
				return apperrors.ValidationError("unknown category").WithField("category", rawCategory)
			}
			category = &cat
		}
		scripts, err = s.scripts.Search(ctx, search, category)
	} else {
		scripts, err = s.scripts.List(ctx, c.QueryParam("userId"))
	}
	if err != nil {
		return apperrors.InternalError("failed to fetch pine scripts", err)
	}
	return writeJSON(c, http.StatusOK, scripts)
}

func (s *Server) handleCreateScript(c echo.Context) error {
	var req scriptRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.ValidationError("invalid request body")
	}

	in := domain.NewPineScript{
		UserID:      domain.DefaultUserID,
		Name:        deref(req.Name),
		Description: req.Description,
		Category:    domain.ScriptCategory(deref(req.Category)),
		Code:        deref(req.Code),
	}
	script, err := s.scripts.Create(c.Request().Context(), in)
	if err != nil {
		return scriptError(err)
	}
	return writeJSON(c, http.StatusCreated, script)
}

// handleBulkUpload creates one strategy script per uploaded file, named after the file.
// A single invalid file rejects the whole upload.
func (s *Server) handleBulkUpload(c echo.Context) error {
	if err := c.Request().ParseMultipartForm(maxUploadMemory); err != nil {
		return apperrors.ValidationError("expected multipart form data")
	}
	files := c.Request().MultipartForm.File[bulkUploadField]
	if len(files) == 0 {
		return apperrors.ValidationError("no files uploaded").WithField("field", bulkUploadField)
	}

	inputs := make([]domain.NewPineScript, 0, len(files))
	for _, fh := range files {
		code, err := readUploadedFile(fh)
		if err != nil {
			return apperrors.ValidationError(err.Error()).WithField("file", fh.Filename)
		}

		name := strings.TrimSuffix(fh.Filename, ".pine")
		description := "Uploaded script: " + name
		in := domain.NewPineScript{
			UserID:      domain.DefaultUserID,
			Name:        name,
			Description: &description,
			Category:    domain.ScriptCategoryStrategy,
			Code:        code,
		}
		if err := in.Validate(); err != nil {
			return apperrors.ValidationError(err.Error()).WithField("file", fh.Filename)
		}
		inputs = append(inputs, in)
	}

	// Every file is valid before any script is stored.
	created := make([]domain.PineScript, 0, len(inputs))
	for _, in := range inputs {
		script, err := s.scripts.Create(c.Request().Context(), in)
		if err != nil {
			return scriptError(err)
		}
		created = append(created, *script)
	}
	return writeJSON(c, http.StatusCreated, created)
}

func (s *Server) handleUpdateScript(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}

	var req scriptRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.ValidationError("invalid request body")
	}

	patch := domain.PineScriptPatch{
		Name:        req.Name,
		Description: req.Description,
		Code:        req.Code,
	}
	if req.Category != nil {
		cat := domain.ScriptCategory(*req.Category)
		patch.Category = &cat
	}

	script, err := s.scripts.Update(c.Request().Context(), id, patch)
	if err != nil {
		return scriptError(err)
	}
	return writeJSON(c, http.StatusOK, script)
}

func (s *Server) handleDeleteScript(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	if err := s.scripts.Delete(c.Request().Context(), id); err != nil {
		return scriptError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleViewScript(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	if err := s.scripts.IncrementViews(c.Request().Context(), id); err != nil {
		return scriptError(err)
	}
	return writeJSON(c, http.StatusOK, map[string]bool{"success": true})
}

func scriptError(err error) error {
	switch {
	case errors.Is(err, domain.ErrScriptNotFound):
		return apperrors.NotFoundError("pine script not found")
	case errors.Is(err, domain.ErrInvalidScript):
		return apperrors.ValidationError(err.Error())
	default:
		return apperrors.InternalError("pine script operation failed", err)
	}
}

func readUploadedFile(fh *multipart.FileHeader) (string, error) {
	if fh.Size > maxScriptFileSize {
		return "", fmt.Errorf("file exceeds %d bytes", maxScriptFileSize)
	}
	f, err := fh.Open()
	if err != nil {
		return "", fmt.Errorf("failed to open upload: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, maxScriptFileSize))
	if err != nil {
		return "", fmt.Errorf("failed to read upload: %w", err)
	}
	return string(data), nil
}

func parseID(c echo.Context) (uuid.UUID, error) {
	raw := c.Param("id")
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, apperrors.ValidationError("id must be a UUID").WithField("id", raw)
	}
	return id, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

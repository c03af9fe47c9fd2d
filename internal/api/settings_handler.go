package api

import (
	"context"
	"fmt"
	"net/http"

	"picmark/gallery/internal/apperr"
	"picmark/gallery/internal/domain"

	"github.com/gin-gonic/gin"
)

// SettingsStore reads and replaces the upload settings.
type SettingsStore interface {
	UploadSettings(ctx context.Context) (domain.UploadSettings, error)
	Save(ctx context.Context, s domain.UploadSettings) (domain.UploadSettings, error)
}

type SettingsHandler struct {
	settings SettingsStore
}

func NewSettingsHandler(settings SettingsStore) *SettingsHandler {
	return &SettingsHandler{settings: settings}
}

type UpdateUploadSettingsRequest struct {
	MaxSizeMB        int      `json:"maxSizeMB" binding:"gte=0"`
	AllowedMimeTypes []string `json:"allowedMimeTypes"`
	NamingStrategy   string   `json:"namingStrategy" binding:"omitempty,oneof=original timestamp uuid"`
}

// GetUploadSettings godoc
// @Summary Current upload settings
// @Tags Settings
// @Produce json
// @Success 200 {object} domain.UploadSettings
// @Router /settings/upload [get]
func (h *SettingsHandler) GetUploadSettings(c *gin.Context) {
	s, err := h.settings.UploadSettings(c.Request.Context())
	if err != nil {
		writeError(c, apperr.E(apperr.CodeInternal, "SettingsHandler.GetUploadSettings", "failed to load settings", err))
		return
	}
	c.JSON(http.StatusOK, s)
}

// UpdateUploadSettings godoc
// @Summary Replace the upload settings
// @Description Admin only. Takes effect on the next credential or validation.
// @Tags Settings
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param settings body UpdateUploadSettingsRequest true "New settings"
// @Success 200 {object} domain.UploadSettings
// @Failure 403 {object} gin.H "Not an admin"
// @Router /settings/upload [put]
func (h *SettingsHandler) UpdateUploadSettings(c *gin.Context) {
	var req UpdateUploadSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, fmt.Sprintf("Validation error: %v", err))
		return
	}

	saved, err := h.settings.Save(c.Request.Context(), domain.UploadSettings{
		MaxSizeMB:        req.MaxSizeMB,
		AllowedMimeTypes: req.AllowedMimeTypes,
		NamingStrategy:   domain.NamingStrategy(req.NamingStrategy),
	})
	if err != nil {
		writeError(c, apperr.E(apperr.CodeInternal, "SettingsHandler.UpdateUploadSettings", "failed to save settings", err))
		return
	}
	c.JSON(http.StatusOK, saved)
}

package api

import (
	"net/http"

	"picmark/gallery/internal/service"

	"github.com/gin-gonic/gin"
)

// UploadHandler hands out direct-upload credentials.
type UploadHandler struct {
	images service.ImageService
}

func NewUploadHandler(images service.ImageService) *UploadHandler {
	return &UploadHandler{images: images}
}

// GetToken godoc
// @Summary Get an upload credential
// @Description Names the object and returns a credential scoped to that key.
// @Tags Upload
// @Produce json
// @Security BearerAuth
// @Param filename query string true "Original filename"
// @Param format query string false "Target format (webp, jpeg, png)"
// @Success 200 {object} service.CredentialResponse
// @Failure 400 {object} gin.H "Missing filename"
// @Router /token [get]
func (h *UploadHandler) GetToken(c *gin.Context) {
	req := service.CredentialRequest{
		Filename: c.Query("filename"),
		Format:   c.Query("format"),
		Flags: map[string]string{
			"compress":  c.Query("compress"),
			"watermark": c.Query("watermark"),
		},
	}

	resp, err := h.images.RequestCredential(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

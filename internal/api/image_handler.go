package api

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"picmark/gallery/internal/apperr"
	"picmark/gallery/internal/domain"
	"picmark/gallery/internal/service"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type ImageHandler struct {
	images service.ImageService
}

func NewImageHandler(images service.ImageService) *ImageHandler {
	return &ImageHandler{images: images}
}

// --- DTOs ---

// FinalizeImageRequest mirrors the store's return body plus the user's own metadata.
type FinalizeImageRequest struct {
	Key         string   `json:"key" binding:"required"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	URL         string   `json:"url"`
	Tags        []string `json:"tags"`
	Width       int      `json:"width" binding:"gte=0"`
	Height      int      `json:"height" binding:"gte=0"`
	FileSize    *int64   `json:"fileSize" binding:"omitempty,gte=0"`
	Size        *int64   `json:"size" binding:"omitempty,gte=0"` // store return body spelling
	MimeType    string   `json:"mimeType"`
	Format      string   `json:"format"`
	IsPublic    *bool    `json:"isPublic"`
}

type ImageResponse struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	URL         string    `json:"url"`
	Key         string    `json:"key"`
	Tags        []string  `json:"tags"`
	Owner       string    `json:"owner"`
	IsPublic    bool      `json:"isPublic"`
	Width       int       `json:"width"`
	Height      int       `json:"height"`
	FileSize    int64     `json:"fileSize"`
	Format      string    `json:"format"`
	CreatedAt   time.Time `json:"createdAt"`
}

type ImageListResponse struct {
	Images []ImageResponse `json:"images"`
	Total  int64           `json:"total"`
	Page   int             `json:"page"`
	Limit  int             `json:"limit"`
}

// --- Handler Methods ---

// FinalizeUpload godoc
// @Summary Save metadata of a finished upload
// @Tags Images
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param image body FinalizeImageRequest true "Upload result"
// @Success 201 {object} ImageResponse
// @Failure 400 {object} gin.H "Rejected by the upload policy"
// @Failure 409 {object} gin.H "Already saved"
// @Router /images [post]
func (h *ImageHandler) FinalizeUpload(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		abortWithError(c, http.StatusUnauthorized, "Login required")
		return
	}

	var req FinalizeImageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, fmt.Sprintf("Validation error: %v", err))
		return
	}

	size := req.FileSize
	if size == nil {
		size = req.Size
	}
	if size == nil {
		abortWithError(c, http.StatusBadRequest, "Validation error: fileSize is required")
		return
	}

	format := req.Format
	if format == "" {
		format = req.MimeType
	}

	image, err := h.images.FinalizeUpload(c.Request.Context(), actor, service.FinalizeRequest{
		Title:       req.Title,
		Description: req.Description,
		Key:         req.Key,
		URL:         req.URL,
		Tags:        req.Tags,
		Width:       req.Width,
		Height:      req.Height,
		FileSize:    *size,
		Format:      strings.TrimPrefix(strings.ToLower(format), "image/"),
		IsPublic:    req.IsPublic,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, MapImageToResponse(image))
}

// GetImage godoc
// @Summary Get one image
// @Tags Images
// @Produce json
// @Param id path string true "Image ObjectID Hex"
// @Success 200 {object} ImageResponse
// @Failure 403 {object} gin.H "Private image"
// @Failure 404 {object} gin.H "Not found"
// @Router /images/{id} [get]
func (h *ImageHandler) GetImage(c *gin.Context) {
	id, ok := imageIDParam(c)
	if !ok {
		return
	}
	actor, _ := actorFromContext(c)

	image, err := h.images.GetImage(c.Request.Context(), actor, id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, MapImageToResponse(image))
}

// ListImages godoc
// @Summary List images
// @Tags Images
// @Produce json
// @Param page query int false "Page, starting at 1"
// @Param limit query int false "Page size"
// @Param tags query string false "Comma separated tags"
// @Param mine query bool false "Only the caller's images"
// @Success 200 {object} ImageListResponse
// @Router /images [get]
func (h *ImageHandler) ListImages(c *gin.Context) {
	actor, _ := actorFromContext(c)

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	mine, _ := strconv.ParseBool(c.DefaultQuery("mine", "false"))

	var tags []string
	for _, t := range strings.Split(c.Query("tags"), ",") {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}

	result, err := h.images.ListImages(c.Request.Context(), actor, service.ListRequest{
		Page:  page,
		Limit: limit,
		Tags:  tags,
		Mine:  mine,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	resp := ImageListResponse{
		Images: make([]ImageResponse, 0, len(result.Images)),
		Total:  result.Total,
		Page:   result.Page,
		Limit:  result.Limit,
	}
	for i := range result.Images {
		resp.Images = append(resp.Images, MapImageToResponse(&result.Images[i]))
	}
	c.JSON(http.StatusOK, resp)
}

// DeleteImage godoc
// @Summary Delete an image
// @Description Removes the metadata record and then the stored object. A 207 means the
// @Description record is gone but the stored object could not be confirmed deleted.
// @Tags Images
// @Produce json
// @Security BearerAuth
// @Param id path string true "Image ObjectID Hex"
// @Success 200 {object} domain.DeletionReport
// @Success 207 {object} domain.DeletionReport
// @Failure 403 {object} gin.H "Not the owner"
// @Failure 404 {object} gin.H "Not found"
// @Router /images/{id} [delete]
func (h *ImageHandler) DeleteImage(c *gin.Context) {
	id, ok := imageIDParam(c)
	if !ok {
		return
	}
	actor, ok := actorFromContext(c)
	if !ok {
		abortWithError(c, http.StatusUnauthorized, "Login required")
		return
	}

	report, err := h.images.DeleteImage(c.Request.Context(), actor, id)
	if err != nil && apperr.IsCode(err, apperr.CodePartialFailure) && report != nil {
		_ = c.Error(err)
		c.JSON(http.StatusMultiStatus, report)
		return
	}
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func imageIDParam(c *gin.Context) (primitive.ObjectID, bool) {
	id, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		abortWithError(c, http.StatusBadRequest, "Invalid image ID format")
		return primitive.NilObjectID, false
	}
	return id, true
}

// MapImageToResponse converts a domain Image to its response DTO.
func MapImageToResponse(image *domain.Image) ImageResponse {
	tags := image.Tags
	if tags == nil {
		tags = []string{}
	}
	return ImageResponse{
		ID:          image.ID.Hex(),
		Title:       image.Title,
		Description: image.Description,
		URL:         image.URL,
		Key:         image.Key,
		Tags:        tags,
		Owner:       image.OwnerID.Hex(),
		IsPublic:    image.IsPublic,
		Width:       image.Width,
		Height:      image.Height,
		FileSize:    image.FileSize,
		Format:      image.Format,
		CreatedAt:   image.CreatedAt,
	}
}

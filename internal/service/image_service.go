package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"picmark/gallery/internal/apperr"
	"picmark/gallery/internal/domain"
	"picmark/gallery/internal/logger"
	"picmark/gallery/internal/metrics"
	"picmark/gallery/internal/naming"
	"picmark/gallery/internal/repository"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	DefaultDeleteTimeout = 5 * time.Second
	defaultPageSize      = 20
	maxPageSize          = 100
)

// --- Collaborators ---

type KeyNamer interface {
	Derive(originalFilename string, strategy domain.NamingStrategy, formatConversion string) naming.Result
}

type CredentialSigner interface {
	Issue(storageKey string) (domain.UploadCredential, error)
}

type ObjectDeleter interface {
	Delete(ctx context.Context, storageKey string) domain.DeletionOutcome
}

// --- Requests / responses ---

// CredentialRequest carries the client's filename and an optional format conversion.
// Flags are accepted for client compatibility and do not influence the credential.
type CredentialRequest struct {
	Filename string
	Format   string
	Flags    map[string]string
}

type CredentialResponse struct {
	Token     string    `json:"token"`
	Key       string    `json:"key"`
	Domain    string    `json:"domain"`
	Filename  string    `json:"filename"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// FinalizeRequest is the metadata a client reports after its direct upload finished.
type FinalizeRequest struct {
	Title       string
	Description string
	Key         string
	URL         string
	Tags        []string
	Width       int
	Height      int
	FileSize    int64
	Format      string
	IsPublic    *bool
}

type ListRequest struct {
	Page  int
	Limit int
	Tags  []string
	Mine  bool
}

type ImagePage struct {
	Images []domain.Image `json:"images"`
	Total  int64          `json:"total"`
	Page   int            `json:"page"`
	Limit  int            `json:"limit"`
}

type ImageService interface {
	RequestCredential(ctx context.Context, req CredentialRequest) (*CredentialResponse, error)
	FinalizeUpload(ctx context.Context, actor domain.Actor, req FinalizeRequest) (*domain.Image, error)
	GetImage(ctx context.Context, actor domain.Actor, id primitive.ObjectID) (*domain.Image, error)
	ListImages(ctx context.Context, actor domain.Actor, req ListRequest) (*ImagePage, error)
	DeleteImage(ctx context.Context, actor domain.Actor, id primitive.ObjectID) (*domain.DeletionReport, error)
}

// --- Implementation ---

type ImageServiceConfig struct {
	Domain        string // public base URL of the bucket
	DeleteTimeout time.Duration
}

type imageService struct {
	namer    KeyNamer
	signer   CredentialSigner
	policy   *UploadPolicy
	settings SettingsSource
	deleter  ObjectDeleter
	images   repository.ImageRepository
	cfg      ImageServiceConfig
	log      *logrus.Logger
	metrics  *metrics.Metrics
}

func NewImageService(
	namer KeyNamer,
	signer CredentialSigner,
	policy *UploadPolicy,
	settings SettingsSource,
	deleter ObjectDeleter,
	images repository.ImageRepository,
	cfg ImageServiceConfig,
	log *logrus.Logger,
	m *metrics.Metrics,
) ImageService {
	if cfg.DeleteTimeout <= 0 {
		cfg.DeleteTimeout = DefaultDeleteTimeout
	}
	cfg.Domain = strings.TrimRight(cfg.Domain, "/")
	if log == nil {
		log = logger.Discard()
	}
	return &imageService{
		namer:    namer,
		signer:   signer,
		policy:   policy,
		settings: settings,
		deleter:  deleter,
		images:   images,
		cfg:      cfg,
		log:      log,
		metrics:  m,
	}
}

// RequestCredential names the object and signs an upload credential scoped to that key.
func (s *imageService) RequestCredential(ctx context.Context, req CredentialRequest) (*CredentialResponse, error) {
	const op = "ImageService.RequestCredential"

	if strings.TrimSpace(req.Filename) == "" {
		return nil, apperr.E(apperr.CodeInvalidArgument, op, "filename is required", nil)
	}

	settings, err := s.settings.UploadSettings(ctx)
	if err != nil {
		return nil, apperr.E(apperr.CodeInternal, op, "failed to load upload settings", err)
	}

	named := s.namer.Derive(req.Filename, settings.NamingStrategy, req.Format)
	cred, err := s.signer.Issue(named.StorageKey)
	if err != nil {
		s.log.WithError(err).Error("failed to issue upload credential")
		return nil, err
	}
	s.metrics.CredentialIssued()

	s.log.WithFields(logrus.Fields{
		"key":      named.StorageKey,
		"strategy": settings.NamingStrategy,
		"format":   req.Format,
	}).Debug("upload credential issued")

	return &CredentialResponse{
		Token:     cred.Token,
		Key:       cred.StorageKey,
		Domain:    s.cfg.Domain,
		Filename:  named.DisplayFilename,
		ExpiresAt: cred.ExpiresAt,
	}, nil
}

// FinalizeUpload validates the reported metadata and persists it. A rejection does not
// remove the object the client already uploaded.
func (s *imageService) FinalizeUpload(ctx context.Context, actor domain.Actor, req FinalizeRequest) (*domain.Image, error) {
	const op = "ImageService.FinalizeUpload"

	if actor.UserID.IsZero() {
		return nil, apperr.E(apperr.CodeUnauthorized, op, "login required", nil)
	}
	if !naming.ValidKey(req.Key) {
		return nil, apperr.E(apperr.CodeInvalidArgument, op, "a valid storage key is required", nil)
	}

	mimeType := MimeFromFormat(req.Format)
	result, err := s.policy.Validate(ctx, req.FileSize, mimeType)
	if err != nil {
		return nil, apperr.E(apperr.CodeInternal, op, "failed to load upload settings", err)
	}
	s.metrics.Validation(result.Verdict)

	if !result.Accepted() {
		s.log.WithFields(logrus.Fields{
			"key":     req.Key,
			"size":    req.FileSize,
			"mime":    mimeType,
			"verdict": result.Verdict,
		}).Warn("upload rejected after transfer; remote object left in place")
		return nil, apperr.E(apperr.CodeValidation, op, rejectionMessage(result), nil)
	}

	image := &domain.Image{
		Title:       req.Title,
		Description: req.Description,
		URL:         req.URL,
		Key:         req.Key,
		Tags:        req.Tags,
		OwnerID:     actor.UserID,
		IsPublic:    true,
		Width:       req.Width,
		Height:      req.Height,
		FileSize:    req.FileSize,
		Format:      strings.ToLower(req.Format),
	}
	if req.IsPublic != nil {
		image.IsPublic = *req.IsPublic
	}
	if image.URL == "" {
		image.URL = s.cfg.Domain + "/" + req.Key
	}
	if image.Title == "" {
		image.Title = req.Key[strings.LastIndex(req.Key, "/")+1:]
	}

	if _, err := s.images.Create(ctx, image); err != nil {
		if errors.Is(err, repository.ErrDuplicateKey) {
			return nil, apperr.E(apperr.CodeConflict, op, "this upload was already saved", err)
		}
		return nil, apperr.E(apperr.CodeInternal, op, "failed to save image", err)
	}

	s.log.WithFields(logrus.Fields{"imageId": image.ID.Hex(), "key": image.Key}).Info("image saved")
	return image, nil
}

func (s *imageService) GetImage(ctx context.Context, actor domain.Actor, id primitive.ObjectID) (*domain.Image, error) {
	const op = "ImageService.GetImage"

	image, err := s.images.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.E(apperr.CodeNotFound, op, "image not found", err)
		}
		return nil, apperr.E(apperr.CodeInternal, op, "failed to load image", err)
	}
	if !image.IsPublic && !CanModify(actor, image) {
		return nil, apperr.E(apperr.CodeForbidden, op, "image is private", nil)
	}
	return image, nil
}

// ListImages shows admins everything and everyone else their own plus public images.
func (s *imageService) ListImages(ctx context.Context, actor domain.Actor, req ListRequest) (*ImagePage, error) {
	const op = "ImageService.ListImages"

	page, limit := req.Page, req.Limit
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}

	filter := domain.ImageFilter{
		Tags:  req.Tags,
		Skip:  int64((page - 1) * limit),
		Limit: int64(limit),
	}
	switch {
	case req.Mine:
		if actor.UserID.IsZero() {
			return nil, apperr.E(apperr.CodeUnauthorized, op, "login required", nil)
		}
		filter.OwnerID = &actor.UserID
	case !actor.IsAdmin():
		filter.VisibleTo = &actor.UserID
	}

	images, total, err := s.images.List(ctx, filter)
	if err != nil {
		return nil, apperr.E(apperr.CodeInternal, op, "failed to list images", err)
	}
	return &ImagePage{Images: images, Total: total, Page: page, Limit: limit}, nil
}

// DeleteImage removes the metadata record first, then the stored object. Both outcomes
// are reported; when only the metadata went away the report is returned together with
// a PARTIAL_FAILURE error.
func (s *imageService) DeleteImage(ctx context.Context, actor domain.Actor, id primitive.ObjectID) (*domain.DeletionReport, error) {
	const op = "ImageService.DeleteImage"

	image, err := s.images.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.E(apperr.CodeNotFound, op, "image not found", err)
		}
		return nil, apperr.E(apperr.CodeInternal, op, "failed to load image", err)
	}
	if !CanModify(actor, image) {
		return nil, apperr.E(apperr.CodeForbidden, op, "you may not delete this image", nil)
	}

	log := s.log.WithFields(logrus.Fields{"imageId": id.Hex(), "key": image.Key})

	if err := s.images.DeleteByID(ctx, id); err != nil {
		log.WithError(err).Error("failed to remove image metadata")
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.E(apperr.CodeNotFound, op, "image not found", err)
		}
		return nil, apperr.E(apperr.CodeInternal, op, "failed to remove image metadata", err)
	}

	// The record is already gone; a client hanging up must not abandon the stored object.
	remoteCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.DeleteTimeout)
	defer cancel()
	outcome := s.deleter.Delete(remoteCtx, image.Key)

	report := &domain.DeletionReport{
		ImageID:         id.Hex(),
		Key:             image.Key,
		MetadataRemoved: true,
		Remote:          outcome,
		Status:          domain.DeletionComplete,
	}

	if outcome.Succeeded() {
		if outcome.Kind == domain.OutcomeRegionMismatchRetried {
			report.Message = outcome.Hint
		}
		log.WithField("outcome", outcome.Kind).Info("image deleted")
		return report, nil
	}

	report.Status = domain.DeletionPartial
	report.Message = "metadata removed, remote not confirmed"
	log.WithError(outcome.Cause).Error("image metadata removed but stored object was not deleted; reconcile manually")
	return report, apperr.E(apperr.CodePartialFailure, op, report.Message, outcome.Cause)
}

// CanModify is the ownership predicate: owners and admins may change an image.
func CanModify(actor domain.Actor, image *domain.Image) bool {
	if actor.IsAdmin() {
		return true
	}
	return !actor.UserID.IsZero() && actor.UserID == image.OwnerID
}

func rejectionMessage(r domain.ValidationResult) string {
	switch r.Verdict {
	case domain.RejectedSize:
		return fmt.Sprintf("file exceeds the %d MB limit", r.LimitBytes/(1024*1024))
	case domain.RejectedType:
		return fmt.Sprintf("file type not allowed; allowed types: %s", strings.Join(r.Allowed, ", "))
	default:
		return "upload rejected"
	}
}

package service

import (
	"context"
	"strings"

	"picmark/gallery/internal/domain"
)

// SettingsSource hands out a live settings snapshot; it is called on every validation.
type SettingsSource interface {
	UploadSettings(ctx context.Context) (domain.UploadSettings, error)
}

// UploadPolicy accepts or rejects finished uploads by size and MIME type.
// It runs after the bytes are already in the object store, so a rejection leaves the
// remote object behind.
type UploadPolicy struct {
	settings SettingsSource
}

func NewUploadPolicy(settings SettingsSource) *UploadPolicy {
	return &UploadPolicy{settings: settings}
}

// Validate checks sizeBytes against maxSizeMB and mimeType against the allow-list.
// An empty allow-list places no restriction on the type.
func (p *UploadPolicy) Validate(ctx context.Context, sizeBytes int64, mimeType string) (domain.ValidationResult, error) {
	s, err := p.settings.UploadSettings(ctx)
	if err != nil {
		return domain.ValidationResult{}, err
	}
	s = s.WithDefaults()

	if limit := s.MaxSizeBytes(); sizeBytes > limit {
		return domain.ValidationResult{Verdict: domain.RejectedSize, LimitBytes: limit}, nil
	}

	if len(s.AllowedMimeTypes) > 0 {
		mimeType = strings.ToLower(strings.TrimSpace(mimeType))
		allowed := false
		for _, t := range s.AllowedMimeTypes {
			if strings.ToLower(t) == mimeType {
				allowed = true
				break
			}
		}
		if !allowed {
			return domain.ValidationResult{Verdict: domain.RejectedType, Allowed: s.AllowedMimeTypes}, nil
		}
	}

	return domain.ValidationResult{Verdict: domain.Accepted}, nil
}

// MimeFromFormat turns an image format ("png", "JPEG") into "image/<format>".
func MimeFromFormat(format string) string {
	format = strings.ToLower(strings.TrimSpace(format))
	if strings.Contains(format, "/") {
		return format
	}
	return "image/" + format
}

// Package settings serves the operator-editable upload policy.
package settings

import (
	"context"
	"strings"
	"time"

	"picmark/gallery/internal/cache"
	"picmark/gallery/internal/domain"
	"picmark/gallery/internal/logger"
	"picmark/gallery/internal/repository"

	"github.com/sirupsen/logrus"
)

const cacheKey = "settings:upload"

// Provider reads a fresh settings snapshot on every call, optionally through a short-lived cache.
type Provider struct {
	repo  repository.SettingsRepository
	cache cache.Cache
	ttl   time.Duration
	log   *logrus.Logger
}

// NewProvider wires the provider; c may be nil to disable caching.
func NewProvider(repo repository.SettingsRepository, c cache.Cache, ttl time.Duration, log *logrus.Logger) *Provider {
	if log == nil {
		log = logger.Discard()
	}
	return &Provider{repo: repo, cache: c, ttl: ttl, log: log}
}

// UploadSettings returns the current settings with defaults applied.
func (p *Provider) UploadSettings(ctx context.Context) (domain.UploadSettings, error) {
	if p.cache != nil && p.ttl > 0 {
		var cached domain.UploadSettings
		hit, err := p.cache.GetJSON(ctx, cacheKey, &cached)
		if err != nil {
			p.log.WithError(err).Warn("settings cache read failed")
		}
		if hit {
			return cached.WithDefaults(), nil
		}
	}

	s, err := p.repo.GetUploadSettings(ctx)
	if err != nil {
		return domain.UploadSettings{}, err
	}
	s = s.WithDefaults()

	if p.cache != nil && p.ttl > 0 {
		if err := p.cache.SetJSON(ctx, cacheKey, s, p.ttl); err != nil {
			p.log.WithError(err).Warn("settings cache write failed")
		}
	}
	return s, nil
}

// Save normalizes and stores s, then drops any cached copy.
func (p *Provider) Save(ctx context.Context, s domain.UploadSettings) (domain.UploadSettings, error) {
	s = Normalize(s)
	if err := p.repo.SaveUploadSettings(ctx, s); err != nil {
		return domain.UploadSettings{}, err
	}
	if p.cache != nil {
		if err := p.cache.Del(ctx, cacheKey); err != nil {
			p.log.WithError(err).Warn("settings cache invalidation failed")
		}
	}
	p.log.WithFields(logrus.Fields{
		"maxSizeMB":      s.MaxSizeMB,
		"allowedTypes":   s.AllowedMimeTypes,
		"namingStrategy": s.NamingStrategy,
	}).Info("upload settings saved")
	return s, nil
}

// Normalize lower-cases and de-duplicates MIME types and applies defaults.
func Normalize(s domain.UploadSettings) domain.UploadSettings {
	seen := make(map[string]struct{}, len(s.AllowedMimeTypes))
	types := make([]string, 0, len(s.AllowedMimeTypes))
	for _, t := range s.AllowedMimeTypes {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		types = append(types, t)
	}
	s.AllowedMimeTypes = types
	return s.WithDefaults()
}

package domain

import "strings"

// NamingStrategy selects how storage keys and display filenames are generated.
type NamingStrategy string

const (
	NamingOriginal  NamingStrategy = "original"
	NamingTimestamp NamingStrategy = "timestamp"
	NamingUUID      NamingStrategy = "uuid"
)

// ParseNamingStrategy maps unknown or empty values to NamingTimestamp.
func ParseNamingStrategy(s string) NamingStrategy {
	switch NamingStrategy(strings.ToLower(strings.TrimSpace(s))) {
	case NamingOriginal:
		return NamingOriginal
	case NamingUUID:
		return NamingUUID
	default:
		return NamingTimestamp
	}
}

const DefaultMaxSizeMB = 10

// UploadSettings is the operator-editable upload policy, stored as the "system" settings document.
type UploadSettings struct {
	MaxSizeMB        int            `bson:"maxSizeMB" json:"maxSizeMB"`
	AllowedMimeTypes []string       `bson:"allowedMimeTypes" json:"allowedMimeTypes"`
	NamingStrategy   NamingStrategy `bson:"namingStrategy" json:"namingStrategy"`
}

// WithDefaults fills unset fields.
func (s UploadSettings) WithDefaults() UploadSettings {
	if s.MaxSizeMB <= 0 {
		s.MaxSizeMB = DefaultMaxSizeMB
	}
	s.NamingStrategy = ParseNamingStrategy(string(s.NamingStrategy))
	return s
}

// MaxSizeBytes is the inclusive upper bound on an accepted upload.
func (s UploadSettings) MaxSizeBytes() int64 {
	return int64(s.WithDefaults().MaxSizeMB) * 1024 * 1024
}

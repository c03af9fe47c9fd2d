package storage

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"picmark/gallery/internal/config"

	"github.com/sirupsen/logrus"
)

// DeleteResponse is the store's answer to a delete request.
type DeleteResponse struct {
	StatusCode int
	Code       string // provider error code, empty on success
	Message    string
}

// OK reports whether the store confirmed the delete.
func (r *DeleteResponse) OK() bool {
	return r != nil && r.StatusCode == http.StatusOK
}

// ObjectRemover issues exactly one delete request against one region.
// A non-nil error means no answer came back from the store (transport failure);
// store-reported failures are returned as a DeleteResponse.
type ObjectRemover interface {
	DeleteObject(ctx context.Context, bucket, key, region string) (*DeleteResponse, error)
}

// Store error codes meaning "the object is not hosted in this region".
var regionMismatchCodes = map[string]struct{}{
	"IncorrectZone":                {},
	"IncorrectRegion":              {},
	"IncorrectEndpoint":            {},
	"PermanentRedirect":            {},
	"AuthorizationHeaderMalformed": {},
}

// IsRegionMismatch reports whether resp asks the caller to try another region.
func IsRegionMismatch(resp *DeleteResponse) bool {
	if resp == nil {
		return false
	}
	if _, ok := regionMismatchCodes[resp.Code]; ok {
		return true
	}
	return resp.StatusCode == http.StatusMovedPermanently
}

// Region is one isolated deployment of the object store.
type Region struct {
	Code     string
	Endpoint string
	Label    string
}

var ErrNoConfiguredRegion = errors.New("no configured storage region")

// RegionRegistry is the ordered set of known regions with the operator-configured one marked.
// It is read-only after construction.
type RegionRegistry struct {
	configured Region
	regions    []Region
}

// NewRegionRegistry keeps the first occurrence of each region code. A configured region
// missing from regions is still attempted first but takes no slot in the failover order.
func NewRegionRegistry(configured string, regions []Region) (*RegionRegistry, error) {
	if configured == "" {
		return nil, ErrNoConfiguredRegion
	}
	seen := make(map[string]struct{}, len(regions))
	ordered := make([]Region, 0, len(regions))
	for _, r := range regions {
		if r.Code == "" {
			continue
		}
		if _, dup := seen[r.Code]; dup {
			continue
		}
		seen[r.Code] = struct{}{}
		ordered = append(ordered, r)
	}

	reg := &RegionRegistry{configured: Region{Code: configured}, regions: ordered}
	if r, ok := reg.Lookup(configured); ok {
		reg.configured = r
	}
	return reg, nil
}

// RegistryFromConfig builds the registry from the storage section of the config.
func RegistryFromConfig(cfg config.StorageConfig) (*RegionRegistry, error) {
	regions := make([]Region, 0, len(cfg.Regions))
	for _, r := range cfg.Regions {
		regions = append(regions, Region{Code: r.Code, Endpoint: r.Endpoint, Label: r.Label})
	}
	return NewRegionRegistry(cfg.Region, regions)
}

func (r *RegionRegistry) Configured() Region { return r.configured }

// All returns the configured region followed by the failover order.
func (r *RegionRegistry) All() []Region {
	return append([]Region{r.configured}, r.Failover()...)
}

// Failover returns every known region except the configured one, in declared order.
func (r *RegionRegistry) Failover() []Region {
	out := make([]Region, 0, len(r.regions))
	for _, reg := range r.regions {
		if reg.Code != r.configured.Code {
			out = append(out, reg)
		}
	}
	return out
}

func (r *RegionRegistry) Lookup(code string) (Region, bool) {
	for _, reg := range r.regions {
		if reg.Code == code {
			return reg, true
		}
	}
	return Region{}, false
}

// NewRemover builds the ObjectRemover selected by cfg.Driver.
func NewRemover(ctx context.Context, cfg config.StorageConfig, regions *RegionRegistry, log *logrus.Logger) (ObjectRemover, error) {
	switch strings.ToLower(cfg.Driver) {
	case "", "aws", "s3":
		return NewS3Remover(ctx, cfg, regions, log)
	case "minio":
		return NewMinioRemover(cfg, regions, log)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

package storage

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"picmark/gallery/internal/config"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/sirupsen/logrus"
)

// MinioRemover deletes objects from MinIO or any S3-compatible store with per-region endpoints.
type MinioRemover struct {
	clients map[string]*minio.Client
}

// NewMinioRemover needs an endpoint for every region; minio-go does not resolve them.
func NewMinioRemover(cfg config.StorageConfig, regions *RegionRegistry, log *logrus.Logger) (*MinioRemover, error) {
	clients := make(map[string]*minio.Client)
	for _, region := range regions.All() {
		if region.Endpoint == "" {
			return nil, fmt.Errorf("region %q has no endpoint", region.Code)
		}
		host, secure := splitEndpoint(region.Endpoint, cfg.UseSSL)
		client, err := minio.New(host, &minio.Options{
			Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
			Secure: secure,
			Region: region.Code,
		})
		if err != nil {
			return nil, fmt.Errorf("create minio client for region %q: %w", region.Code, err)
		}
		clients[region.Code] = client
	}

	log.WithFields(logrus.Fields{"bucket": cfg.Bucket, "regions": len(clients)}).Info("MinIO remover initialized")
	return &MinioRemover{clients: clients}, nil
}

func (m *MinioRemover) DeleteObject(ctx context.Context, bucket, key, region string) (*DeleteResponse, error) {
	client, ok := m.clients[region]
	if !ok {
		return nil, fmt.Errorf("no minio client for region %q", region)
	}

	err := client.RemoveObject(ctx, bucket, key, minio.RemoveObjectOptions{})
	if err == nil {
		return &DeleteResponse{StatusCode: http.StatusOK}, nil
	}

	er := minio.ToErrorResponse(err)
	if er.StatusCode == 0 && er.Code == "" {
		return nil, err
	}
	return &DeleteResponse{StatusCode: er.StatusCode, Code: er.Code, Message: er.Message}, nil
}

// splitEndpoint accepts "host:port" or a URL; a URL scheme overrides useSSL.
func splitEndpoint(endpoint string, useSSL bool) (string, bool) {
	if !strings.Contains(endpoint, "://") {
		return endpoint, useSSL
	}
	u, err := url.Parse(endpoint)
	if err != nil || u.Host == "" {
		return endpoint, useSSL
	}
	return u.Host, u.Scheme == "https"
}

package storage

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"picmark/gallery/internal/config"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	awsCfg "github.com/aws/aws-sdk-go-v2/config" // Alias config to avoid clash
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/sirupsen/logrus"
)

// S3Remover deletes objects through the S3 API, holding one client per known region.
type S3Remover struct {
	clients map[string]*s3.Client
}

// NewS3Remover creates one client per region in the registry. Regions with an endpoint
// use it as the base endpoint (S3-compatible providers); others use AWS resolution.
func NewS3Remover(ctx context.Context, cfg config.StorageConfig, regions *RegionRegistry, log *logrus.Logger) (*S3Remover, error) {
	awsSDKConfig, err := awsCfg.LoadDefaultConfig(ctx,
		awsCfg.WithRegion(regions.Configured().Code),
		awsCfg.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	clients := make(map[string]*s3.Client)
	for _, region := range regions.All() {
		region := region
		clients[region.Code] = s3.NewFromConfig(awsSDKConfig, func(o *s3.Options) {
			o.Region = region.Code
			if region.Endpoint != "" {
				o.BaseEndpoint = aws.String(region.Endpoint)
			}
			// Most S3-compatible services require path-style addressing.
			o.UsePathStyle = true
		})
		log.WithFields(logrus.Fields{"region": region.Code, "endpoint": region.Endpoint}).Debug("s3 client ready")
	}

	log.WithFields(logrus.Fields{"bucket": cfg.Bucket, "regions": len(clients)}).Info("S3 remover initialized")
	return &S3Remover{clients: clients}, nil
}

// DeleteObject issues one DeleteObject call in region. API errors are returned as a
// DeleteResponse; anything that produced no store answer is returned as an error.
func (s *S3Remover) DeleteObject(ctx context.Context, bucket, key, region string) (*DeleteResponse, error) {
	client, ok := s.clients[region]
	if !ok {
		return nil, fmt.Errorf("no s3 client for region %q", region)
	}

	_, err := client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err == nil {
		// S3 answers 204; callers only care that the store confirmed it.
		return &DeleteResponse{StatusCode: http.StatusOK}, nil
	}

	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return nil, err
	}
	resp := &DeleteResponse{Code: apiErr.ErrorCode(), Message: apiErr.ErrorMessage()}
	var respErr *awshttp.ResponseError
	if errors.As(err, &respErr) {
		resp.StatusCode = respErr.HTTPStatusCode()
	}
	return resp, nil
}

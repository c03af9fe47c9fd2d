package storage

import (
	"context"
	"fmt"

	"picmark/gallery/internal/apperr"
	"picmark/gallery/internal/domain"
	"picmark/gallery/internal/logger"
	"picmark/gallery/internal/metrics"

	"github.com/sirupsen/logrus"
)

// DeletionCoordinator removes stored objects, failing over across regions when the
// configured region reports that it does not host the object.
//
// Every region is attempted at most once per call and failover is strictly sequential.
// Callers bound the total time through ctx.
type DeletionCoordinator struct {
	remover ObjectRemover
	regions *RegionRegistry
	bucket  string
	log     *logrus.Logger
	metrics *metrics.Metrics
}

func NewDeletionCoordinator(remover ObjectRemover, regions *RegionRegistry, bucket string, log *logrus.Logger, m *metrics.Metrics) *DeletionCoordinator {
	if log == nil {
		log = logger.Discard()
	}
	return &DeletionCoordinator{
		remover: remover,
		regions: regions,
		bucket:  bucket,
		log:     log,
		metrics: m,
	}
}

// Delete removes key from the bucket. The returned outcome is never stored.
func (c *DeletionCoordinator) Delete(ctx context.Context, key string) domain.DeletionOutcome {
	outcome := c.delete(ctx, key)
	c.metrics.Deletion(outcome.Kind)
	return outcome
}

func (c *DeletionCoordinator) delete(ctx context.Context, key string) domain.DeletionOutcome {
	const op = "DeletionCoordinator.Delete"

	if key == "" {
		return failed(apperr.E(apperr.CodeInvalidArgument, op, "empty storage key", nil))
	}
	if c.bucket == "" {
		return failed(apperr.E(apperr.CodeConfiguration, op, "storage bucket is not configured", nil))
	}

	configured := c.regions.Configured()
	log := c.log.WithFields(logrus.Fields{"bucket": c.bucket, "key": key})
	log.WithField("region", configured.Code).Debug("deleting object in configured region")

	resp, err := c.remover.DeleteObject(ctx, c.bucket, key, configured.Code)
	if err != nil {
		log.WithError(err).WithField("region", configured.Code).Error("delete request failed")
		return failed(apperr.E(apperr.CodeTransport, op, "delete request failed", err))
	}
	if resp.OK() {
		log.WithField("region", configured.Code).Info("object deleted")
		return domain.DeletionOutcome{Kind: domain.OutcomeDeleted, Region: configured.Code}
	}
	if !IsRegionMismatch(resp) {
		log.WithFields(logrus.Fields{
			"region": configured.Code,
			"status": resp.StatusCode,
			"code":   resp.Code,
		}).Error("store rejected delete")
		return failed(apperr.E(apperr.CodeTransport, op, "store rejected delete", rejection(resp)))
	}

	log.WithField("region", configured.Code).Warn("object is not hosted in the configured region, trying the others")
	return c.failover(ctx, key, configured.Code, rejection(resp), log)
}

func (c *DeletionCoordinator) failover(ctx context.Context, key, configured string, lastErr error, log *logrus.Entry) domain.DeletionOutcome {
	const op = "DeletionCoordinator.failover"

	tried := map[string]struct{}{configured: {}}

	for _, region := range c.regions.Failover() {
		if _, done := tried[region.Code]; done {
			continue
		}
		if err := ctx.Err(); err != nil {
			return failed(apperr.E(apperr.CodeTransport, op, "failover interrupted", err))
		}
		tried[region.Code] = struct{}{}

		resp, err := c.remover.DeleteObject(ctx, c.bucket, key, region.Code)
		switch {
		case err != nil:
			lastErr = err
		case resp.OK():
			c.metrics.FailoverAttempt(region.Code, true)
			hint := fmt.Sprintf("object lives in region %q; set storage.region to %q to avoid failover", region.Code, region.Code)
			log.WithField("region", region.Code).Warn(hint)
			return domain.DeletionOutcome{
				Kind:   domain.OutcomeRegionMismatchRetried,
				Region: region.Code,
				Hint:   hint,
			}
		default:
			lastErr = rejection(resp)
		}
		c.metrics.FailoverAttempt(region.Code, false)
		log.WithError(lastErr).WithField("region", region.Code).Info("failover delete did not succeed")
	}

	log.Error("delete failed in every known region")
	return failed(apperr.E(apperr.CodeRegionMismatch, op, "exhausted all regions", lastErr))
}

func failed(cause error) domain.DeletionOutcome {
	return domain.DeletionOutcome{
		Kind:   domain.OutcomeFailed,
		Reason: apperr.Message(cause, cause.Error()),
		Cause:  cause,
	}
}

func rejection(resp *DeleteResponse) error {
	if resp == nil {
		return fmt.Errorf("empty response from store")
	}
	return fmt.Errorf("status %d %s: %s", resp.StatusCode, resp.Code, resp.Message)
}

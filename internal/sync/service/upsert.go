package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"voterstore/internal/partition/models"
	"voterstore/internal/partition/store"
	"voterstore/internal/sync/metrics"
	dErrors "voterstore/pkg/domain-errors"
	"voterstore/pkg/platform/sentinel"
	"voterstore/pkg/requestcontext"
)

// UpsertResult reports every change in the batch exactly once in SuccessIDs
// or Failed. Changes that lost the last-write-wins comparison are successes
// and are additionally listed in DroppedIDs.
type UpsertResult struct {
	SuccessIDs []string
	Failed     []models.FailedChange
	DroppedIDs []string
}

// BulkUpsert applies changes in order. Each change stands alone: a failure is
// recorded and the batch continues. A change overwrites a stored record only
// when its UpdatedAt is not older than the stored one (ties go to the
// incoming change). Each stored record is stamped with the server clock at
// the moment it is written.
//
// There is no transaction around the read-compare-write; two concurrent
// batches touching one id can lose an update.
func (s *Service) BulkUpsert(ctx context.Context, partition store.Partition, changes []models.SyncChange) (_ *UpsertResult, err error) {
	if partition == nil {
		return nil, dErrors.New(dErrors.CodeInternal, "no partition selected")
	}
	if s.maxBatch > 0 && len(changes) > s.maxBatch {
		return nil, dErrors.New(dErrors.CodeBadRequest,
			fmt.Sprintf("batch exceeds %d changes", s.maxBatch))
	}

	ctx, span := tracer.Start(ctx, "sync.bulk_upsert", trace.WithAttributes(
		attribute.String("partition.name", partition.Name()),
		attribute.Int("upsert.changes", len(changes)),
	))
	defer func() { endSpan(span, err) }()

	platform := requestcontext.ClientPlatform(ctx)
	if s.metrics != nil {
		s.metrics.ObserveBatch(len(changes))
	}

	result := &UpsertResult{
		SuccessIDs: []string{},
		Failed:     []models.FailedChange{},
		DroppedIDs: []string{},
	}
	for _, change := range changes {
		outcome, applyErr := s.apply(ctx, partition, change)
		switch outcome {
		case metrics.OutcomeCreated, metrics.OutcomeApplied:
			result.SuccessIDs = append(result.SuccessIDs, change.ID)
		case metrics.OutcomeDropped:
			result.SuccessIDs = append(result.SuccessIDs, change.ID)
			result.DroppedIDs = append(result.DroppedIDs, change.ID)
		case metrics.OutcomeBadChange:
			result.Failed = append(result.Failed, models.FailedChange{ID: change.ID, Reason: models.ReasonBadChange})
		default:
			s.logger.WarnContext(ctx, "sync change failed",
				"partition", partition.Name(),
				"record_id", change.ID,
				"error", applyErr,
				"request_id", requestcontext.RequestID(ctx),
			)
			result.Failed = append(result.Failed, models.FailedChange{ID: change.ID, Reason: models.ReasonException})
		}
		if s.metrics != nil {
			s.metrics.IncrementUpsert(outcome, platform)
		}
	}

	span.SetAttributes(
		attribute.Int("upsert.succeeded", len(result.SuccessIDs)),
		attribute.Int("upsert.failed", len(result.Failed)),
		attribute.Int("upsert.dropped", len(result.DroppedIDs)),
	)
	return result, nil
}

// apply returns the outcome of one change and, for exceptions, the cause.
func (s *Service) apply(ctx context.Context, p store.Partition, change models.SyncChange) (string, error) {
	if change.Malformed || strings.TrimSpace(change.ID) == "" || !change.Op.IsValid() {
		return metrics.OutcomeBadChange, nil
	}

	stored, err := p.Get(ctx, change.ID)
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		outcome, err := s.create(ctx, p, change)
		if !errors.Is(err, sentinel.ErrAlreadyExists) {
			return outcome, err
		}
		// Created concurrently; compare against the winner instead.
		if stored, err = p.Get(ctx, change.ID); err != nil {
			return metrics.OutcomeException, err
		}
	case err != nil:
		return metrics.OutcomeException, err
	}

	if change.UpdatedAt.Before(stored.UpdatedAt) {
		return metrics.OutcomeDropped, nil
	}
	if err := stored.Merge(change.Payload, s.writeTime()); err != nil {
		return metrics.OutcomeException, err
	}
	if err := p.Replace(ctx, stored); err != nil {
		return metrics.OutcomeException, err
	}
	return metrics.OutcomeApplied, nil
}

func (s *Service) create(ctx context.Context, p store.Partition, change models.SyncChange) (string, error) {
	rec, err := models.NewRecord(change.ID, change.Payload, s.writeTime())
	if err != nil {
		return metrics.OutcomeException, err
	}
	if err := p.Insert(ctx, rec); err != nil {
		return metrics.OutcomeException, err
	}
	return metrics.OutcomeCreated, nil
}

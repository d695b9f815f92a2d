package jobs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/odvcencio/queuehealth/internal/database"
)

const jobsTracerName = "github.com/odvcencio/queuehealth/internal/jobs"

// ErrStoreUnavailable reports that the job queue store could not be reached or queried.
var ErrStoreUnavailable = errors.New("job queue store unavailable")

// Gateway is read-only access to the pending job queue.
type Gateway interface {
	// Count returns the number of pending jobs.
	Count(ctx context.Context) (int64, error)
	// Oldest returns the creation time of the oldest pending job, or nil when
	// the queue is empty.
	Oldest(ctx context.Context) (*time.Time, error)
}

// Queue reads pending job state from the database. It never writes.
type Queue struct {
	db database.DB
}

func NewQueue(db database.DB) *Queue {
	return &Queue{db: db}
}

func (q *Queue) Count(ctx context.Context) (int64, error) {
	ctx, span := otel.Tracer(jobsTracerName).Start(ctx, "jobs.Count")
	defer span.End()

	count, err := q.db.CountDelayedJobs(ctx)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return 0, fmt.Errorf("count delayed jobs: %w: %w", ErrStoreUnavailable, err)
	}
	span.SetAttributes(attribute.Int64("jobs.count", count))
	return count, nil
}

func (q *Queue) Oldest(ctx context.Context) (*time.Time, error) {
	ctx, span := otel.Tracer(jobsTracerName).Start(ctx, "jobs.Oldest")
	defer span.End()

	job, err := q.db.OldestDelayedJob(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("oldest delayed job: %w: %w", ErrStoreUnavailable, err)
	}
	span.SetAttributes(attribute.Int64("jobs.oldest_id", job.ID))
	createdAt := job.CreatedAt.UTC()
	return &createdAt, nil
}

package service

import (
	"context"
	"time"

	"github.com/odvcencio/queuehealth/internal/jobs"
)

// NoDelayedJobsMessage is reported when the job queue is empty.
const NoDelayedJobsMessage = "No delayed jobs found"

const timestampLayout = "2006-01-02T15:04:05.000Z07:00"

// Timestamp renders as an ISO-8601 UTC string with millisecond precision.
type Timestamp time.Time

func (t Timestamp) MarshalJSON() ([]byte, error) {
	return []byte(`"` + time.Time(t).UTC().Format(timestampLayout) + `"`), nil
}

func (t Timestamp) String() string {
	return time.Time(t).UTC().Format(timestampLayout)
}

// DelayedJobsStatus carries either Count and Oldest, or Msg alone.
type DelayedJobsStatus struct {
	Count  *int64     `json:"count,omitempty"`
	Oldest *Timestamp `json:"oldest,omitempty"`
	Msg    string     `json:"msg,omitempty"`
}

type OnlineStatus struct {
	Online bool `json:"online"`
}

type HealthService struct {
	gateway jobs.Gateway
}

func NewHealthService(gateway jobs.Gateway) *HealthService {
	return &HealthService{gateway: gateway}
}

// Status is the liveness report. It does not touch the job queue.
func (s *HealthService) Status() OnlineStatus {
	return OnlineStatus{Online: true}
}

// BuildDelayedJobsStatus reads the pending job count and, when non-zero, the
// creation time of the oldest job. Gateway errors are returned unchanged.
func (s *HealthService) BuildDelayedJobsStatus(ctx context.Context) (*DelayedJobsStatus, error) {
	count, err := s.gateway.Count(ctx)
	if err != nil {
		return nil, err
	}
	if count <= 0 {
		return &DelayedJobsStatus{Msg: NoDelayedJobsMessage}, nil
	}

	oldest, err := s.gateway.Oldest(ctx)
	if err != nil {
		return nil, err
	}
	// The queue drained between the two reads, or no row carries a created_at.
	if oldest == nil {
		return &DelayedJobsStatus{Msg: NoDelayedJobsMessage}, nil
	}
	ts := Timestamp(*oldest)
	return &DelayedJobsStatus{Count: &count, Oldest: &ts}, nil
}

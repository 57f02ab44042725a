package api

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/oriys/tenantgate/internal/logging"
	"github.com/oriys/tenantgate/internal/metrics"
	"github.com/oriys/tenantgate/internal/store"
	"github.com/oriys/tenantgate/internal/tenant"
)

// UsageSink persists resource usage samples.
type UsageSink interface {
	RecordUsage(ctx context.Context, tenantID uuid.UUID, resourceType string, amount int64, at time.Time) error
}

type usageSample struct {
	tenantID uuid.UUID
	at       time.Time
}

// UsageRecorder counts admitted tenant requests toward the rpc_requests
// quota. Samples are written by a background worker; a full buffer drops
// the sample.
type UsageRecorder struct {
	sink    UsageSink
	samples chan usageSample
	timeout time.Duration
	now     func() time.Time
	done    chan struct{}
}

func NewUsageRecorder(sink UsageSink, buffer int) *UsageRecorder {
	if buffer <= 0 {
		buffer = 1024
	}
	return &UsageRecorder{
		sink:    sink,
		samples: make(chan usageSample, buffer),
		timeout: 5 * time.Second,
		now:     time.Now,
		done:    make(chan struct{}),
	}
}

// Run writes samples until ctx is cancelled, then drains what is buffered.
func (u *UsageRecorder) Run(ctx context.Context) {
	defer close(u.done)
	for {
		select {
		case s := <-u.samples:
			u.write(context.WithoutCancel(ctx), s)
		case <-ctx.Done():
			for {
				select {
				case s := <-u.samples:
					u.write(context.WithoutCancel(ctx), s)
				default:
					return
				}
			}
		}
	}
}

// Done is closed once Run has returned.
func (u *UsageRecorder) Done() <-chan struct{} { return u.done }

func (u *UsageRecorder) write(ctx context.Context, s usageSample) {
	ctx, cancel := context.WithTimeout(ctx, u.timeout)
	defer cancel()
	if err := u.sink.RecordUsage(ctx, s.tenantID, store.UsageRPCRequests, 1, s.at); err != nil {
		metrics.RecordBestEffortFailure("record_usage")
		logging.Op().Warn("failed to record rpc usage", "tenant_id", s.tenantID, "error", err)
	}
}

func (u *UsageRecorder) enqueue(tenantID uuid.UUID) {
	select {
	case u.samples <- usageSample{tenantID: tenantID, at: u.now()}:
	default:
		metrics.RecordBestEffortFailure("record_usage")
	}
}

// Middleware records one rpc request for every scoped request it serves.
func (u *UsageRecorder) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if tc, ok := tenant.CurrentOrNone(r.Context()); ok {
			u.enqueue(tc.TenantID)
		}
		next.ServeHTTP(w, r)
	})
}

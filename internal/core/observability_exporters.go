package core

import (
	"context"
	"encoding/json"
	"expvar"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

var expvarSeq uint64

// OperationStats aggregates outcomes for one operation.
type OperationStats struct {
	Success int64   `json:"success"`
	Errors  int64   `json:"errors"`
	TotalMS float64 `json:"total_ms"`
	MaxMS   float64 `json:"max_ms"`
}

// ExpvarMetricsRecorder publishes per-operation counters and latency totals
// through expvar.
type ExpvarMetricsRecorder struct {
	name string
	mu   sync.Mutex
	ops  map[string]*OperationStats
}

// ExpvarMetricsSnapshot is a copy of the recorded stats.
type ExpvarMetricsSnapshot struct {
	Operations map[string]OperationStats `json:"operations"`
	RecordedAt time.Time                 `json:"recorded_at"`
}

// NewExpvarMetricsRecorder publishes a recorder under name. An empty name is
// replaced with a unique one.
func NewExpvarMetricsRecorder(name string) *ExpvarMetricsRecorder {
	if name == "" {
		name = fmt.Sprintf("bloodsync_operations_%d", atomic.AddUint64(&expvarSeq, 1))
	}
	rec := &ExpvarMetricsRecorder{name: name, ops: make(map[string]*OperationStats)}
	expvar.Publish(name, expvar.Func(func() any {
		return rec.Snapshot()
	}))
	return rec
}

// Name returns the expvar export name.
func (r *ExpvarMetricsRecorder) Name() string {
	return r.name
}

// Snapshot copies the current stats.
func (r *ExpvarMetricsRecorder) Snapshot() ExpvarMetricsSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	ops := make(map[string]OperationStats, len(r.ops))
	for op, st := range r.ops {
		ops[op] = *st
	}
	return ExpvarMetricsSnapshot{Operations: ops, RecordedAt: time.Now().UTC()}
}

// Observe implements MetricsRecorder.
func (r *ExpvarMetricsRecorder) Observe(_ context.Context, operation string, success bool, duration time.Duration) {
	if operation == "" {
		return
	}
	ms := float64(duration) / float64(time.Millisecond)
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.ops[operation]
	if !ok {
		st = &OperationStats{}
		r.ops[operation] = st
	}
	if success {
		st.Success++
	} else {
		st.Errors++
	}
	st.TotalMS += ms
	st.MaxMS = max(st.MaxMS, ms)
}

// SpanRecord is one finished span written by JSONLineTracer.
type SpanRecord struct {
	SpanID     string    `json:"span_id"`
	ParentID   string    `json:"parent_id,omitempty"`
	Operation  string    `json:"operation"`
	Status     string    `json:"status"`
	DurationMS float64   `json:"duration_ms"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
}

type spanKey struct{}

// JSONLineTracer writes finished spans as JSON lines and keeps the most recent
// ones in memory. Nested operations record their parent span id.
type JSONLineTracer struct {
	mu    sync.Mutex
	enc   *json.Encoder
	limit int
	spans []SpanRecord
}

// NewJSONLineTracer writes spans to w (nil keeps them in memory only) and
// retains up to limit spans; limit <= 0 keeps 1024.
func NewJSONLineTracer(w io.Writer, limit int) *JSONLineTracer {
	if limit <= 0 {
		limit = 1024
	}
	t := &JSONLineTracer{limit: limit}
	if w != nil {
		t.enc = json.NewEncoder(w)
	}
	return t
}

// Spans returns the retained spans, oldest first.
func (t *JSONLineTracer) Spans() []SpanRecord {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]SpanRecord, len(t.spans))
	copy(out, t.spans)
	return out
}

// Start implements Tracer.
func (t *JSONLineTracer) Start(ctx context.Context, operation string) (context.Context, TraceSpan) {
	span := &jsonLineSpan{
		tracer: t,
		record: SpanRecord{
			SpanID:    uuid.NewString(),
			Operation: operation,
			StartedAt: time.Now().UTC(),
		},
	}
	if parent, ok := ctx.Value(spanKey{}).(string); ok {
		span.record.ParentID = parent
	}
	return context.WithValue(ctx, spanKey{}, span.record.SpanID), span
}

type jsonLineSpan struct {
	tracer *JSONLineTracer
	record SpanRecord
}

func (s *jsonLineSpan) End(err error) {
	rec := s.record
	rec.Status = "success"
	if err != nil {
		rec.Status = "error"
		rec.Error = err.Error()
	}
	rec.DurationMS = float64(time.Since(rec.StartedAt)) / float64(time.Millisecond)

	t := s.tracer
	t.mu.Lock()
	defer t.mu.Unlock()
	t.spans = append(t.spans, rec)
	if len(t.spans) > t.limit {
		t.spans = t.spans[len(t.spans)-t.limit:]
	}
	if t.enc != nil {
		_ = t.enc.Encode(rec)
	}
}

package core

import (
	"context"
	"encoding/json"
	"expvar"
	"fmt"
	"io"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"keepernest/pkg/domain"
)

// OutcomeOK labels operations that returned no error.
const OutcomeOK = "ok"

// outcomeLabel names the outcome of an operation by its error class.
func outcomeLabel(class domain.ErrorClass) string {
	if class == domain.ClassNone {
		return OutcomeOK
	}
	return string(class)
}

var statsSeq atomic.Uint64

// OperationStat aggregates one service operation.
type OperationStat struct {
	Outcomes map[string]int64 `json:"outcomes"`
	TotalMS  float64          `json:"total_ms"`
	MaxMS    float64          `json:"max_ms"`
	// LastInfraFailure is when the store or another dependency last failed
	// this operation; zero if it never did.
	LastInfraFailure time.Time `json:"last_infra_failure,omitempty"`
}

// Calls is the number of observed invocations.
func (s OperationStat) Calls() int64 {
	var n int64
	for _, c := range s.Outcomes {
		n += c
	}
	return n
}

// OperationStats is a MetricsRecorder that keeps per-operation outcome
// counts split by error class, so rejected requests and infrastructure
// failures are told apart. It is published under /debug/vars.
type OperationStats struct {
	name string
	now  func() time.Time
	mu   sync.Mutex
	ops  map[string]*OperationStat
}

// NewOperationStats publishes a recorder under name, or under a generated
// unique name when name is empty.
func NewOperationStats(name string) *OperationStats {
	if name == "" {
		name = fmt.Sprintf("keepernest_operations_%d", statsSeq.Add(1))
	}
	s := &OperationStats{name: name, now: time.Now, ops: make(map[string]*OperationStat)}
	expvar.Publish(name, expvar.Func(func() any { return s.Snapshot() }))
	return s
}

// Name is the expvar key.
func (s *OperationStats) Name() string { return s.name }

// Observe implements MetricsRecorder.
func (s *OperationStats) Observe(_ context.Context, operation string, class domain.ErrorClass, duration time.Duration) {
	if operation == "" {
		return
	}
	ms := float64(duration) / float64(time.Millisecond)
	s.mu.Lock()
	defer s.mu.Unlock()
	stat, ok := s.ops[operation]
	if !ok {
		stat = &OperationStat{Outcomes: make(map[string]int64)}
		s.ops[operation] = stat
	}
	stat.Outcomes[outcomeLabel(class)]++
	stat.TotalMS += ms
	if ms > stat.MaxMS {
		stat.MaxMS = ms
	}
	if class == domain.ClassInfrastructure {
		stat.LastInfraFailure = s.now().UTC()
	}
}

// Snapshot copies the current aggregates.
func (s *OperationStats) Snapshot() map[string]OperationStat {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]OperationStat, len(s.ops))
	for op, stat := range s.ops {
		cp := *stat
		cp.Outcomes = make(map[string]int64, len(stat.Outcomes))
		for k, v := range stat.Outcomes {
			cp.Outcomes[k] = v
		}
		out[op] = cp
	}
	return out
}

// Degraded lists operations whose infrastructure failures make up at least
// ratio of their calls, sorted by name.
func (s *OperationStats) Degraded(ratio float64) []string {
	var out []string
	for op, stat := range s.Snapshot() {
		calls := stat.Calls()
		if calls == 0 {
			continue
		}
		if float64(stat.Outcomes[string(domain.ClassInfrastructure)])/float64(calls) >= ratio {
			out = append(out, op)
		}
	}
	sort.Strings(out)
	return out
}

// DefaultSpanLogKeep bounds how many spans a SpanLog retains.
const DefaultSpanLogKeep = 256

// SpanRecord is one finished operation as written by SpanLog.
type SpanRecord struct {
	Operation  string    `json:"op"`
	Outcome    string    `json:"outcome"`
	Hint       string    `json:"hint,omitempty"`
	Error      string    `json:"error,omitempty"`
	DurationMS float64   `json:"duration_ms"`
	StartedAt  time.Time `json:"started_at"`
}

// SpanLog is a Tracer that writes each finished operation as a JSON line and
// keeps the most recent ones in memory. Used by the CLI --trace-json flag.
type SpanLog struct {
	mu     sync.Mutex
	enc    *json.Encoder
	keep   int
	recent []SpanRecord
}

// NewSpanLog writes to w (nil discards) and retains up to keep spans;
// keep <= 0 uses DefaultSpanLogKeep.
func NewSpanLog(w io.Writer, keep int) *SpanLog {
	if keep <= 0 {
		keep = DefaultSpanLogKeep
	}
	l := &SpanLog{keep: keep}
	if w != nil {
		l.enc = json.NewEncoder(w)
	}
	return l
}

// Recent returns the retained spans, oldest first.
func (l *SpanLog) Recent() []SpanRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]SpanRecord(nil), l.recent...)
}

// Start implements Tracer.
func (l *SpanLog) Start(ctx context.Context, operation string) (context.Context, TraceSpan) {
	return ctx, spanLogSpan{log: l, op: operation, started: time.Now().UTC()}
}

type spanLogSpan struct {
	log     *SpanLog
	op      string
	started time.Time
}

func (s spanLogSpan) End(err error) {
	rec := SpanRecord{
		Operation:  s.op,
		Outcome:    outcomeLabel(domain.Classify(err)),
		Hint:       domain.Hint(err),
		DurationMS: float64(time.Since(s.started)) / float64(time.Millisecond),
		StartedAt:  s.started,
	}
	if err != nil {
		rec.Error = err.Error()
	}
	l := s.log
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.recent) == l.keep {
		copy(l.recent, l.recent[1:])
		l.recent = l.recent[:l.keep-1]
	}
	l.recent = append(l.recent, rec)
	if l.enc != nil {
		_ = l.enc.Encode(rec)
	}
}

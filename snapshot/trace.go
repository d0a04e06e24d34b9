package snapshot

import (
	"runtime/metrics"
	"time"

	"go.uber.org/atomic"
)

const heapObjectsMetric = "/memory/classes/heap/objects:bytes"

// TraceInterval is how often a running Tracer samples the heap.
var TraceInterval = time.Millisecond

// Traced is the heap attributable to a traced call, relative to the heap at
// StartTrace.
type Traced struct {
	Current int64
	Peak    int64
}

// Tracer samples the Go heap between StartTrace and Stop. It does no work
// outside that window.
type Tracer struct {
	start uint64
	peak  atomic.Uint64
	stop  chan struct{}
	done  chan struct{}
}

// StartTrace begins allocator tracing. Callers must call Stop.
func StartTrace() *Tracer {
	start := heapInUse()
	t := &Tracer{
		start: start,
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	t.peak.Store(start)
	go t.sample()
	return t
}

func (t *Tracer) sample() {
	defer close(t.done)
	ticker := time.NewTicker(TraceInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			t.observe(heapInUse())
		case <-t.stop:
			return
		}
	}
}

func (t *Tracer) observe(v uint64) {
	for {
		cur := t.peak.Load()
		if v <= cur || t.peak.CompareAndSwap(cur, v) {
			return
		}
	}
}

// Stop ends tracing and returns the traced current and peak sizes. Stop is
// safe to call once; later calls return the same reading shape without
// re-sampling the stopped goroutine.
func (t *Tracer) Stop() Traced {
	now := heapInUse()
	select {
	case <-t.stop:
	default:
		close(t.stop)
	}
	<-t.done
	t.observe(now)

	peak := int64(t.peak.Load()) - int64(t.start)
	if peak < 0 {
		peak = 0
	}
	return Traced{
		Current: int64(now) - int64(t.start),
		Peak:    peak,
	}
}

func heapInUse() uint64 {
	samples := []metrics.Sample{{Name: heapObjectsMetric}}
	metrics.Read(samples)
	if samples[0].Value.Kind() != metrics.KindUint64 {
		return 0
	}
	return samples[0].Value.Uint64()
}

// Package snapshot captures point-in-time process readings (CPU, resident
// memory, threads, disk and network counters, Go heap) and computes the
// deltas between two readings.
//
// Capture never fails: a counter the platform cannot provide is reported as
// unavailable and rendered with the Unavailable placeholder.
package snapshot

import (
	"os"
	"time"

	"github.com/shirou/gopsutil/net"
	"github.com/shirou/gopsutil/process"
)

// Unavailable is rendered in place of a counter the platform could not read.
const Unavailable = "unavailable"

// Options selects the optional counters of a resource capture.
type Options struct {
	IO      bool
	Network bool
}

// Resource is an immutable resource reading of the current process.
type Resource struct {
	Timestamp time.Time

	// CPUTime is user+system CPU seconds consumed by the process so far.
	CPUTime float64
	HasCPU  bool

	RSS    uint64
	HasRSS bool

	Threads    int32
	HasThreads bool

	DiskRead  uint64
	DiskWrite uint64
	HasDisk   bool

	NetSent uint64
	NetRecv uint64
	HasNet  bool
}

// Memory is an immutable memory reading of the current process.
type Memory struct {
	Timestamp time.Time
	RSS       uint64
	HasRSS    bool
	// Heap is the Go heap occupied by objects; always available.
	Heap uint64
}

// Engine captures readings for the current process. Captures only read
// process counters, so a single Engine is safe for concurrent use.
type Engine struct {
	proc *process.Process
}

// NewEngine binds an Engine to the running process. On platforms where the
// process cannot be inspected every process counter degrades to unavailable.
func NewEngine() *Engine {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		p = nil
	}
	return &Engine{proc: p}
}

// CaptureResource reads the resource counters requested by opts.
func (e *Engine) CaptureResource(opts Options) Resource {
	r := Resource{Timestamp: time.Now()}
	if e == nil || e.proc == nil {
		return r
	}

	if times, err := e.proc.Times(); err == nil && times != nil {
		r.CPUTime = times.User + times.System
		r.HasCPU = true
	}
	if mem, err := e.proc.MemoryInfo(); err == nil && mem != nil {
		r.RSS = mem.RSS
		r.HasRSS = true
	}
	if n, err := e.proc.NumThreads(); err == nil {
		r.Threads = n
		r.HasThreads = true
	}
	if opts.IO {
		if io, err := e.proc.IOCounters(); err == nil && io != nil {
			r.DiskRead = io.ReadBytes
			r.DiskWrite = io.WriteBytes
			r.HasDisk = true
		}
	}
	if opts.Network {
		if counters, err := net.IOCounters(false); err == nil && len(counters) > 0 {
			r.NetSent = counters[0].BytesSent
			r.NetRecv = counters[0].BytesRecv
			r.HasNet = true
		}
	}
	return r
}

// CaptureMemory reads resident memory and the Go heap.
func (e *Engine) CaptureMemory() Memory {
	m := Memory{Timestamp: time.Now(), Heap: heapInUse()}
	if e == nil || e.proc == nil {
		return m
	}

	if mem, err := e.proc.MemoryInfo(); err == nil && mem != nil {
		m.RSS = mem.RSS
		m.HasRSS = true
	}
	return m
}

package snapshot

import (
	"fmt"
	"math"
	"time"
)

// ResourceDelta is the difference between two resource readings.
type ResourceDelta struct {
	Elapsed time.Duration

	// CPUPercent is process CPU usage over the window between the readings.
	CPUPercent float64
	HasCPU     bool

	RSS       uint64
	RSSChange int64
	HasRSS    bool

	Threads    int32
	HasThreads bool

	DiskRead  int64
	DiskWrite int64
	HasDisk   bool

	NetSent int64
	NetRecv int64
	HasNet  bool
}

// MemoryDelta is the difference between two memory readings. Current and
// Change use resident memory when both readings have it, the Go heap
// otherwise.
type MemoryDelta struct {
	Current int64
	Change  int64
}

// DiffResource computes after - before. A field is available only when both
// readings carry it.
func DiffResource(before, after Resource) ResourceDelta {
	d := ResourceDelta{Elapsed: after.Timestamp.Sub(before.Timestamp)}
	if d.Elapsed < 0 {
		d.Elapsed = 0
	}

	if before.HasCPU && after.HasCPU {
		d.HasCPU = true
		if secs := d.Elapsed.Seconds(); secs > 0 {
			d.CPUPercent = math.Max(0, (after.CPUTime-before.CPUTime)/secs*100)
		}
	}
	if before.HasRSS && after.HasRSS {
		d.HasRSS = true
		d.RSS = after.RSS
		d.RSSChange = int64(after.RSS) - int64(before.RSS)
	}
	if after.HasThreads {
		d.HasThreads = true
		d.Threads = after.Threads
	}
	if before.HasDisk && after.HasDisk {
		d.HasDisk = true
		d.DiskRead = int64(after.DiskRead) - int64(before.DiskRead)
		d.DiskWrite = int64(after.DiskWrite) - int64(before.DiskWrite)
	}
	if before.HasNet && after.HasNet {
		d.HasNet = true
		d.NetSent = int64(after.NetSent) - int64(before.NetSent)
		d.NetRecv = int64(after.NetRecv) - int64(before.NetRecv)
	}
	return d
}

// DiffMemory computes after - before.
func DiffMemory(before, after Memory) MemoryDelta {
	if before.HasRSS && after.HasRSS {
		return MemoryDelta{
			Current: int64(after.RSS),
			Change:  int64(after.RSS) - int64(before.RSS),
		}
	}
	return MemoryDelta{
		Current: int64(after.Heap),
		Change:  int64(after.Heap) - int64(before.Heap),
	}
}

var byteUnits = [...]string{"B", "KB", "MB", "GB"}

// FormatBytes renders n in binary multiples with two decimals, e.g.
// 1024 -> "1.00KB". Negative values keep their sign.
func FormatBytes(n int64) string {
	sign := ""
	v := float64(n)
	if v < 0 {
		sign = "-"
		v = -v
	}
	i := 0
	for v >= 1024 && i < len(byteUnits)-1 {
		v /= 1024
		i++
	}
	return fmt.Sprintf("%s%.2f%s", sign, v, byteUnits[i])
}

// FormatSignedBytes is FormatBytes with an explicit "+" for n >= 0.
func FormatSignedBytes(n int64) string {
	if n >= 0 {
		return "+" + FormatBytes(n)
	}
	return FormatBytes(n)
}

package instrument

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Station-Manager/perflog/snapshot"
)

const (
	statusSuccess = "SUCCESS"
	statusError   = "ERROR"
)

const sep = " | "

func seconds(r Record) string {
	return strconv.FormatFloat(r.Elapsed.Seconds(), 'f', 4, 64) + "s"
}

func status(r Record) string {
	if r.Success {
		return statusSuccess
	}
	return statusError
}

// performanceMessage renders
// "PERFORMANCE | name | STATUS | 0.0000s[ | failure][ | Args: (...) | Kwargs: {...}]".
func performanceMessage(r Record, o Options, args []interface{}, kwargs map[string]interface{}) string {
	var b strings.Builder
	b.WriteString("PERFORMANCE")
	b.WriteString(sep + r.Name)
	b.WriteString(sep + status(r))
	b.WriteString(sep + seconds(r))
	if r.Failure != "" {
		b.WriteString(sep + r.Failure)
	}
	if o.IncludeArguments {
		b.WriteString(sep + "Args: " + truncate(reprArgs(args), o.MaxArgLength))
		b.WriteString(sep + "Kwargs: " + truncate(reprKwargs(kwargs), o.MaxArgLength))
	}
	return b.String()
}

// memoryMessage renders
// "MEMORY | name | STATUS | 0.0000s | Current: x | Change: ±y[ | Traced: x (Peak: y)]".
func memoryMessage(r Record, d snapshot.MemoryDelta, traced *snapshot.Traced) string {
	var b strings.Builder
	b.WriteString("MEMORY")
	b.WriteString(sep + r.Name)
	b.WriteString(sep + status(r))
	b.WriteString(sep + seconds(r))
	b.WriteString(sep + "Current: " + snapshot.FormatBytes(d.Current))
	b.WriteString(sep + "Change: " + snapshot.FormatSignedBytes(d.Change))
	if traced != nil {
		fmt.Fprintf(&b, "%sTraced: %s (Peak: %s)", sep,
			snapshot.FormatBytes(traced.Current), snapshot.FormatBytes(traced.Peak))
	}
	return b.String()
}

// resourceMessage renders
// "RESOURCES | name | STATUS | 0.0000s | CPU: p% | Memory: x (±y) | Threads: n[ | I/O: R:x W:y][ | Network: Sent:x Recv:y]".
// Counters the platform could not read are rendered as unavailable.
func resourceMessage(r Record, d snapshot.ResourceDelta, o Options) string {
	var b strings.Builder
	b.WriteString("RESOURCES")
	b.WriteString(sep + r.Name)
	b.WriteString(sep + status(r))
	b.WriteString(sep + seconds(r))

	if d.HasCPU {
		b.WriteString(sep + "CPU: " + strconv.FormatFloat(d.CPUPercent, 'f', 1, 64) + "%")
	} else {
		b.WriteString(sep + "CPU: " + snapshot.Unavailable)
	}

	if d.HasRSS {
		fmt.Fprintf(&b, "%sMemory: %s (%s)", sep,
			snapshot.FormatBytes(int64(d.RSS)), snapshot.FormatSignedBytes(d.RSSChange))
	} else {
		b.WriteString(sep + "Memory: " + snapshot.Unavailable)
	}

	if d.HasThreads {
		b.WriteString(sep + "Threads: " + strconv.Itoa(int(d.Threads)))
	} else {
		b.WriteString(sep + "Threads: " + snapshot.Unavailable)
	}

	if o.IncludeIO {
		if d.HasDisk {
			fmt.Fprintf(&b, "%sI/O: R:%s W:%s", sep,
				snapshot.FormatBytes(d.DiskRead), snapshot.FormatBytes(d.DiskWrite))
		} else {
			b.WriteString(sep + "I/O: " + snapshot.Unavailable)
		}
	}
	if o.IncludeNetwork {
		if d.HasNet {
			fmt.Fprintf(&b, "%sNetwork: Sent:%s Recv:%s", sep,
				snapshot.FormatBytes(d.NetSent), snapshot.FormatBytes(d.NetRecv))
		} else {
			b.WriteString(sep + "Network: " + snapshot.Unavailable)
		}
	}
	return b.String()
}

// analysisMessage renders "ERROR_ANALYSIS | name | failure | Probable cause: text".
func analysisMessage(r Record, cause string) string {
	return "ERROR_ANALYSIS" + sep + r.Name + sep + r.Failure + sep + "Probable cause: " + cause
}

package membership

import (
	"runtime"

	"github.com/prometheus/procfs"
)

// sampleHostLoad reads the host's load average and memory pressure,
// normalized to [0,1]. On platforms without procfs both values are zero,
// which makes the local node look idle to the scorer rather than breaking
// the announce cycle.
func sampleHostLoad() (cpu, mem float64) {
	fs, err := procfs.NewDefaultFS()
	if err != nil {
		return 0, 0
	}

	if avg, err := fs.LoadAvg(); err == nil {
		cpu = avg.Load1 / float64(runtime.NumCPU())
		if cpu > 1 {
			cpu = 1
		}
	}

	if mi, err := fs.Meminfo(); err == nil && mi.MemTotal != nil && mi.MemAvailable != nil && *mi.MemTotal > 0 {
		mem = 1 - float64(*mi.MemAvailable)/float64(*mi.MemTotal)
		if mem < 0 {
			mem = 0
		}
	}

	return cpu, mem
}

package banner

import (
	"fmt"
	"io"

	"kvbench/internal/config"
)

// Print writes the run banner: the configuration summary shown before the
// workload starts. Suppressed entirely in CSV mode so stdout stays pure.
func Print(w io.Writer, cfg *config.Config, processes int) {
	fmt.Fprintln(w, "KV Benchmark")
	fmt.Fprintf(w, "Host: %s\n", cfg.Host)
	fmt.Fprintf(w, "Port: %d\n", cfg.Port)
	fmt.Fprintf(w, "Threads: %d\n", cfg.Threads)
	fmt.Fprintf(w, "Processes: %d\n", processes)
	if cfg.DurationBased() {
		fmt.Fprintf(w, "Test Duration: %ds\n", cfg.TestDurationSec)
	} else {
		fmt.Fprintf(w, "Total Requests: %d\n", cfg.Requests)
	}
	fmt.Fprintf(w, "Data Size: %d\n", cfg.DataSize)
	fmt.Fprintf(w, "Command: %s\n", cfg.Command)
	fmt.Fprintf(w, "Is Cluster: %v\n", cfg.Cluster)
	fmt.Fprintf(w, "Read from Replica: %v\n", cfg.ReadFromReplica)
	fmt.Fprintf(w, "Use TLS: %v\n", cfg.TLS)
	fmt.Fprintln(w)
}

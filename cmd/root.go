package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"kvbench/internal/config"
	"kvbench/internal/logging"
	"kvbench/internal/orchestrator"
)

var cfg = config.Default()

var rootCmd = &cobra.Command{
	Use:   "kvbench",
	Short: "kvbench - load generator for Valkey/Redis-compatible datastores",
	Long: `
kvbench issues a configurable volume of SET/GET/custom operations against a
running server (standalone or cluster), paces the offered load, and records
the latency of every request in HDR histograms.

It reports either a human progress line plus a final summary, or per-interval
CSV metrics on stdout when --interval-metrics-interval-duration-sec is set.`,
	Run: func(cmd *cobra.Command, args []string) {
		if cmd.Flags().Changed("requests") && cmd.Flags().Changed("test-duration") {
			fmt.Fprintln(os.Stderr, "Error: --requests and --test-duration are mutually exclusive")
			os.Exit(orchestrator.ExitConfig)
		}
		os.Exit(run())
	},
}

// Execute runs the CLI.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(orchestrator.ExitConfig)
	}
}

func run() int {
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return orchestrator.ExitConfig
	}

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return orchestrator.ExitConfig
	}
	defer logger.Sync()

	// A signal is a clean interrupt: workers stop at the next loop check
	// and final metrics are flushed.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return orchestrator.New(cfg, logger).Run(ctx)
}

func init() {
	cobra.OnInitialize(initConfig)

	f := rootCmd.Flags()

	// Connection
	f.StringVarP(&cfg.Host, "host", "H", cfg.Host, "Server hostname")
	f.IntVarP(&cfg.Port, "port", "p", cfg.Port, "Server port")
	f.BoolVar(&cfg.TLS, "tls", false, "Use TLS for the connection")
	f.BoolVar(&cfg.Cluster, "cluster", false, "Use the cluster client")
	f.BoolVar(&cfg.ReadFromReplica, "read-from-replica", false, "Read from replica nodes")
	f.IntVar(&cfg.RequestTimeoutMs, "request-timeout", 0, "Per-request timeout in milliseconds (<=0 unset)")
	f.IntVar(&cfg.ConnectTimeoutMs, "connection-timeout", 0, "Connection establishment timeout in milliseconds")

	// Workload
	f.IntVarP(&cfg.Clients, "clients", "c", cfg.Clients, "Number of parallel connections")
	f.IntVar(&cfg.ClientsRampStart, "clients-ramp-start", 0, "Initial pool size for the client ramp")
	f.IntVar(&cfg.ClientsRampEnd, "clients-ramp-end", 0, "Final pool size for the client ramp")
	f.IntVar(&cfg.ClientsPerRamp, "clients-per-ramp", 0, "Clients added per ramp step")
	f.IntVar(&cfg.ClientRampIntervalSec, "client-ramp-interval", 0, "Seconds between ramp steps")
	f.IntVar(&cfg.Threads, "threads", cfg.Threads, "Number of worker tasks per process")
	f.Int64VarP(&cfg.Requests, "requests", "n", cfg.Requests, "Total number of requests")
	f.IntVar(&cfg.TestDurationSec, "test-duration", 0, "Test duration in seconds (mutually exclusive with --requests)")
	f.IntVarP(&cfg.DataSize, "datasize", "d", cfg.DataSize, "Data size of value in bytes for SET")
	f.StringVarP(&cfg.Command, "type", "t", cfg.Command, "Command to benchmark: set, get or custom")
	f.Int64VarP(&cfg.RandomKeyspace, "random", "r", 0, "Use random keys from a keyspace of this size")
	f.Int64Var(&cfg.SequentialKeyspace, "sequential", 0, "Use sequential keys modulo this keyspace")
	f.Int64Var(&cfg.KeyspaceOffset, "keyspace-offset", 0, "Offset added to generated key numbers")
	f.BoolVar(&cfg.SequentialRandomStart, "sequential-random-start", false, "Randomize each worker's sequential start")

	// Rate
	f.IntVar(&cfg.QPS, "qps", 0, "Fixed queries-per-second limit")
	f.IntVar(&cfg.StartQPS, "start-qps", 0, "Starting QPS for the dynamic rate")
	f.IntVar(&cfg.EndQPS, "end-qps", 0, "Ending QPS for the dynamic rate")
	f.IntVar(&cfg.QPSChangeIntervalSec, "qps-change-interval", 0, "Seconds between QPS adjustments")
	f.IntVar(&cfg.QPSChange, "qps-change", 0, "QPS adjustment per interval (linear mode)")
	f.StringVar(&cfg.QPSRampMode, "qps-ramp-mode", cfg.QPSRampMode, "QPS ramp mode: linear or exponential")
	f.Float64Var(&cfg.QPSRampFactor, "qps-ramp-factor", 0, "Multiplier per interval (exponential mode)")

	// Reporting
	f.IntVar(&cfg.CSVIntervalSec, "interval-metrics-interval-duration-sec", 0, "Emit CSV metrics every N seconds (enables CSV mode)")
	f.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level: OFF, ERROR, WARNING, INFO or DEBUG")

	// Fan-out
	f.StringVar(&cfg.Processes, "processes", cfg.Processes, "Worker group count, or \"auto\" for the CPU count")
	f.BoolVar(&cfg.SingleProcess, "single-process", false, "Force a single worker group")

	// Custom commands
	f.StringVar(&cfg.CustomCommandFile, "custom-command-file", "", "Path selecting the custom command implementation")
	f.StringVar(&cfg.CustomCommandArgs, "custom-command-args", "", "Opaque args string passed to the custom command")

	_ = viper.BindPFlags(f)
}

func initConfig() {
	viper.SetEnvPrefix("KVBENCH")
	viper.AutomaticEnv()
}

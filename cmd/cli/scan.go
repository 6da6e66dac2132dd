package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/anstrom/newhosts/internal/config"
	"github.com/anstrom/newhosts/internal/db"
	"github.com/anstrom/newhosts/internal/discovery"
	"github.com/anstrom/newhosts/internal/errors"
	"github.com/anstrom/newhosts/internal/logging"
	"github.com/anstrom/newhosts/internal/metrics"
	"github.com/anstrom/newhosts/internal/network"
	"github.com/anstrom/newhosts/internal/probe"
	"github.com/anstrom/newhosts/internal/report"
	"github.com/anstrom/newhosts/internal/watch"
)

// probeRunner executes the external probe tools; nil runs them with os/exec.
var probeRunner probe.Runner

type scanOptions struct {
	configuration  bool
	listNetworks   bool
	iface          string
	checks         int
	timeout        int
	workers        int
	tools          []string
	all            bool
	timestamp      int64
	changed        bool
	watchSeconds   int
	schedule       string
	collect        bool
	createSchema   bool
	output         string
	metrics        bool
	metricsAddress string
}

func newScanCmd() *cobra.Command {
	return scanCommand(&scanOptions{})
}

func scanCommand(opts *scanOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan [network]",
		Short: "Scan a network for hosts",
		Long: `Probe every address of a network with the enabled tools and record one
detection per address. The network is a range (192.168.1.1-192.168.1.254),
a CIDR block (192.168.1.0/24), a single address, or with -C the name of a
saved network.

With -T the results are compared with the detections recorded at that
timestamp and every address gets a status:
  +  new host          -  MAC address lost
  !  MAC changed       ~  hostname changed
  =  unchanged`,
		Example: `  newhosts scan 192.168.1.0/24
  newhosts scan -C home -T 1718000000 -O
  newhosts scan -C home -w 60 -c
  newhosts scan 10.0.0.1-10.0.0.50 --tools ping,nmap -o json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScan(cmd, opts, args)
		},
	}

	flags := cmd.Flags()
	flags.BoolVarP(&opts.configuration, "configuration", "C", false, "use saved configuration for network name")
	flags.BoolVarP(&opts.listNetworks, "list-configurations", "l", false, "list saved network configurations")
	flags.StringVarP(&opts.iface, "interface", "I", "", "interface name to use")
	flags.IntVarP(&opts.checks, "count", "n", 0, "max checks to do for each tool")
	flags.IntVarP(&opts.timeout, "timeout", "t", 0, "max timeout in seconds for each request")
	flags.IntVarP(&opts.workers, "workers", "W", 0, "number of parallel workers for every tool")
	flags.StringSliceVar(&opts.tools, "tools", nil, "probe tools to run (ping, arping, hostname, nmap)")
	flags.BoolVarP(&opts.all, "all", "a", false, "show the state of every tool")
	flags.Int64VarP(&opts.timestamp, "timestamp", "T", 0, "timestamp to compare")
	flags.BoolVarP(&opts.changed, "changed", "O", false, "show only changed hosts during compare")
	flags.IntVarP(&opts.watchSeconds, "watch", "w", 0, "watch mode (wait time in seconds)")
	flags.StringVar(&opts.schedule, "schedule", "", "watch mode on a cron schedule")
	flags.BoolVarP(&opts.collect, "collect", "c", false, "collect data during watch mode")
	flags.BoolVar(&opts.createSchema, "create-schema", false, "create the database schema")
	flags.StringVarP(&opts.output, "output", "o", "text", "output format (text, json)")
	flags.BoolVar(&opts.metrics, "metrics", false, "serve Prometheus metrics during watch mode")
	flags.StringVar(&opts.metricsAddress, "metrics-listen", "", "metrics listen address")

	for key, name := range scanFlagKeys {
		if err := viper.BindPFlag(key, flags.Lookup(name)); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to bind %s flag: %v\n", name, err)
		}
	}

	return cmd
}

// scanFlagKeys maps configuration keys to the scan flags bound to them.
// A bound key set by flag, NEWHOSTS_ environment variable or config file
// overrides the loaded configuration.
var scanFlagKeys = map[string]string{
	"probes.interface":    "interface",
	"probes.checks":       "count",
	"probes.tools":        "tools",
	"watch.changed_only":  "changed",
	"metrics.enabled":     "metrics",
	"metrics.listen_addr": "metrics-listen",
}

func runScan(cmd *cobra.Command, opts *scanOptions, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := opts.apply(cmd.Flags(), cfg); err != nil {
		return err
	}

	watchOpts := opts.watchOptions(cmd.Flags(), cfg)
	if watchOpts.Collect && !watchOpts.Watch {
		return errors.ErrConflictingFlags("--collect requires watch mode (-w or --schedule)")
	}

	format, err := report.ParseFormat(opts.output)
	if err != nil {
		return err
	}

	if !opts.listNetworks && len(args) == 0 {
		return errors.ErrConfigMissing("network")
	}

	// Ad hoc ranges are checked before touching the store.
	var rng network.Range
	if len(args) == 1 && !opts.configuration {
		if rng, err = network.Parse(args[0]); err != nil {
			return err
		}
	}

	set, err := probe.Build(cfg.Probes, probeRunner)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return withDatabase(ctx, cfg, func(database *db.DB) error {
		if err := prepareSchema(ctx, database, opts.createSchema); err != nil {
			return err
		}

		if opts.listNetworks {
			return listNetworks(ctx, cmd.OutOrStdout(), database)
		}

		if opts.configuration {
			if rng, err = network.Lookup(ctx, database, args[0]); err != nil {
				return err
			}
		}

		engine := discovery.NewEngine(database, set, discovery.Options{
			ProbeDeadline: cfg.Probes.Deadline(),
			Workers:       opts.workers,
		})
		writer := report.NewWriter(cmd.OutOrStdout(), report.Options{
			Format:      format,
			All:         opts.all,
			ChangedOnly: watchOpts.Compare && cfg.Watch.ChangedOnly,
			Header:      watchOpts.Watch,
		})
		watcher, err := watch.NewWatcher(engine, database, rng, watchOpts, writer)
		if err != nil {
			return err
		}

		if watchOpts.Watch && cfg.Metrics.Enabled {
			startMetricsServer(ctx, cfg)
		}

		logging.Info("Scanning network",
			"network", rng.Name,
			"range", rng.String(),
			"addresses", rng.Len(),
			"tools", set.Kinds(),
			"watch", watchOpts.Watch)
		return watcher.Run(ctx)
	})
}

// apply copies the probe flags and their bound configuration keys onto the
// configuration.
func (o *scanOptions) apply(flags *pflag.FlagSet, cfg *config.Config) error {
	if viper.IsSet("probes.interface") {
		cfg.Probes.Interface = viper.GetString("probes.interface")
	}
	if viper.IsSet("probes.checks") {
		cfg.Probes.Checks = viper.GetInt("probes.checks")
	}
	if flags.Changed("timeout") {
		cfg.Probes.Timeout = time.Duration(o.timeout) * time.Second
	}
	if viper.IsSet("probes.tools") {
		cfg.Probes.Tools = splitList(viper.GetStringSlice("probes.tools"))
	}
	if flags.Changed("workers") && o.workers < 1 {
		return errors.ErrConfigInvalid("workers", o.workers)
	}
	if viper.IsSet("watch.changed_only") {
		cfg.Watch.ChangedOnly = viper.GetBool("watch.changed_only")
	}
	if viper.IsSet("metrics.enabled") {
		cfg.Metrics.Enabled = viper.GetBool("metrics.enabled")
	}
	if addr := viper.GetString("metrics.listen_addr"); addr != "" {
		cfg.Metrics.ListenAddr = addr
	}
	return cfg.Validate()
}

// splitList flattens comma separated entries, as given in environment
// variables, into a single list.
func splitList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, item := range strings.Split(v, ",") {
			if item = strings.TrimSpace(item); item != "" {
				out = append(out, item)
			}
		}
	}
	return out
}

func (o *scanOptions) watchOptions(flags *pflag.FlagSet, cfg *config.Config) watch.Options {
	opts := watch.Options{
		Interval: cfg.Watch.Interval,
		Schedule: o.schedule,
		Collect:  o.collect || cfg.Watch.Collect,
	}
	if flags.Changed("watch") {
		opts.Watch = true
		opts.Interval = time.Duration(o.watchSeconds) * time.Second
	}
	if o.schedule != "" {
		opts.Watch = true
	}
	if !flags.Changed("collect") && !opts.Watch {
		// A collect default from the config file only applies to watch mode.
		opts.Collect = false
	}
	if flags.Changed("timestamp") {
		opts.Compare = true
		opts.CompareTimestamp = o.timestamp
	}
	return opts
}

func startMetricsServer(ctx context.Context, cfg *config.Config) {
	metrics.SetEnabled(true)

	var accessLog io.Writer
	if cfg.Logging.Level == logging.LevelDebug {
		accessLog = os.Stderr
	}
	server := metrics.NewServer(cfg.Metrics.ListenAddr, metrics.GetGlobalMetrics(), accessLog)
	go func() {
		if err := server.Start(ctx); err != nil {
			logging.Error("Metrics server stopped", "error", err)
		}
	}()
}

// listNetworks prints the saved networks and ends with exit status 1.
func listNetworks(ctx context.Context, out io.Writer, database *db.DB) error {
	networks, err := database.ListNetworks(ctx)
	if err != nil {
		return err
	}
	if len(networks) == 0 {
		fmt.Fprintln(out, "No saved networks")
	} else if err := report.WriteNetworks(out, networks); err != nil {
		return err
	}
	return &exitCodeError{code: 1}
}

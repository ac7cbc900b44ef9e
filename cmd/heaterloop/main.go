package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/san-kum/heaterloop/internal/app"
	"github.com/san-kum/heaterloop/internal/config"
	"github.com/san-kum/heaterloop/internal/metrics"
	"github.com/san-kum/heaterloop/internal/storage"
	"github.com/san-kum/heaterloop/internal/viz"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var (
	dataDir string

	configFile  string
	preset      string
	mode        string
	address     string
	loopback    bool
	headless    bool
	record      bool
	metricsAddr string
	logLevel    string
	logFile     string
	runFor      time.Duration
	theme       string

	plotWidth  int
	plotHeight int
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "heaterloop",
		Short:        "heater feedback control against an OPC UA plant server",
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&dataDir, "data", "data", "data directory for recordings and logs")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "run the control loops",
		Args:  cobra.NoArgs,
		RunE:  runLoops,
	}
	runCmd.Flags().StringVar(&configFile, "config", "", "config file path (yaml)")
	runCmd.Flags().StringVar(&preset, "preset", "", "use preset configuration")
	runCmd.Flags().StringVar(&mode, "mode", config.ModeParallelSum, "control mode")
	runCmd.Flags().StringVar(&address, "address", "", "server host, empty for this machine")
	runCmd.Flags().BoolVar(&loopback, "loopback", false, "simulate the plant server in process")
	runCmd.Flags().BoolVar(&headless, "headless", false, "run without the terminal view")
	runCmd.Flags().BoolVar(&record, "record", false, "record the control trace under --data")
	runCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve prometheus metrics on this address")
	runCmd.Flags().StringVar(&logLevel, "log-level", "info", "log level (debug|info|warn|error)")
	runCmd.Flags().StringVar(&logFile, "log-file", "", "log file; defaults to <data>/heaterloop.log with the terminal view")
	runCmd.Flags().DurationVar(&runFor, "duration", 0, "stop after this long (0 runs until interrupted)")
	runCmd.Flags().StringVar(&theme, "theme", viz.ThemeControlRoom.Name, "terminal view theme")

	configCmd := &cobra.Command{
		Use:   "config",
		Short: "print the effective configuration as yaml",
		Args:  cobra.NoArgs,
		RunE:  printConfig,
	}
	configCmd.Flags().StringVar(&configFile, "config", "", "config file path (yaml)")
	configCmd.Flags().StringVar(&preset, "preset", "", "use preset configuration")

	presetsCmd := &cobra.Command{
		Use:   "presets",
		Short: "list available presets",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			for _, p := range config.ListPresets() {
				fmt.Printf("  %s\n", p)
			}
		},
	}

	runsCmd := &cobra.Command{
		Use:   "runs",
		Short: "list recorded runs",
		Args:  cobra.NoArgs,
		RunE:  listRuns,
	}

	plotCmd := &cobra.Command{
		Use:   "plot [run_id]",
		Short: "plot a recorded run",
		Args:  cobra.ExactArgs(1),
		RunE:  plotRun,
	}
	plotCmd.Flags().IntVar(&plotWidth, "width", 80, "plot width")
	plotCmd.Flags().IntVar(&plotHeight, "height", 12, "plot height")

	exportCmd := &cobra.Command{
		Use:   "export [run_id]",
		Short: "export a recorded run to JSON",
		Args:  cobra.ExactArgs(1),
		RunE:  exportRun,
	}

	rootCmd.AddCommand(runCmd, configCmd, presetsCmd, runsCmd, plotCmd, exportCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig applies, in order: defaults, the config file, the preset and
// the flags the user actually set.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if configFile != "" {
		var err error
		if cfg, err = config.Load(configFile); err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
	}
	if preset != "" {
		apply, ok := config.Presets[preset]
		if !ok {
			return nil, fmt.Errorf("unknown preset: %s (available: %v)", preset, config.ListPresets())
		}
		apply(cfg)
	}

	flags := cmd.Flags()
	if flags.Changed("mode") {
		cfg.Control.Mode = mode
	}
	if flags.Changed("address") {
		cfg.Telemetry.Address = address
	}
	if flags.Changed("loopback") {
		cfg.Telemetry.Loopback = loopback
	}
	if flags.Changed("record") {
		cfg.Record.Enabled = record
	}
	if flags.Changed("metrics-addr") {
		cfg.Metrics.Addr = metricsAddr
	}
	if flags.Changed("log-level") {
		cfg.Log.Level = logLevel
	}
	if flags.Changed("log-file") {
		cfg.Log.File = logFile
	}
	if flags.Changed("data") || cfg.Record.Dir == "" {
		cfg.Record.Dir = dataDir
	}
	return cfg, nil
}

func runLoops(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if !headless && cfg.Log.File == "" {
		cfg.Log.File = filepath.Join(cfg.Record.Dir, "heaterloop.log")
	}
	logger, closer, err := app.NewLogger(cfg.Log)
	if err != nil {
		return err
	}
	defer closer.Close()

	a, err := app.New(cfg, app.Options{Headless: headless, Duration: runFor, Theme: theme}, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	start := time.Now()
	if err := a.Run(ctx); err != nil {
		return err
	}

	if headless {
		fmt.Printf("completed in %v\n", time.Since(start).Round(time.Millisecond))
		fmt.Println("\nmetrics:")
		printMetrics(a.Metrics)
	}
	return nil
}

func printMetrics(ms []metrics.Metric) {
	for _, m := range ms {
		fmt.Printf("  %s: %.6f\n", m.Name(), m.Value())
	}
}

func printConfig(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	enc := yaml.NewEncoder(os.Stdout)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return err
	}
	return enc.Close()
}

func listRuns(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	runs, err := st.List()
	if err != nil {
		return err
	}

	if len(runs) == 0 {
		fmt.Println("no runs found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tMODE\tTIME\tTICKS\tPERIOD\tENDPOINT")

	for _, run := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%.3fs\t%s\n",
			run.ID,
			run.Mode,
			run.Timestamp.Format("2006-01-02 15:04:05"),
			run.Ticks,
			run.Period,
			run.Endpoint,
		)
	}

	return w.Flush()
}

func plotRun(cmd *cobra.Command, args []string) error {
	runID := args[0]

	st := storage.New(dataDir)
	meta, err := st.Load(runID)
	if err != nil {
		return err
	}
	tr, err := st.LoadTrace(runID)
	if err != nil {
		return err
	}

	fmt.Printf("run: %s\n", meta.ID)
	fmt.Printf("mode: %s\n", meta.Mode)
	fmt.Printf("samples: %d\n\n", len(tr.Rows))

	graph, err := viz.PlotTrace(tr, plotWidth, plotHeight)
	if err != nil {
		return err
	}
	fmt.Println(graph)

	if len(meta.Metrics) > 0 {
		names := make([]string, 0, len(meta.Metrics))
		for name := range meta.Metrics {
			names = append(names, name)
		}
		sort.Strings(names)
		fmt.Println("metrics:")
		for _, name := range names {
			fmt.Printf("  %s: %.6f\n", name, meta.Metrics[name])
		}
	}
	return nil
}

func exportRun(cmd *cobra.Command, args []string) error {
	return storage.New(dataDir).ExportJSON(os.Stdout, args[0])
}

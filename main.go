// Package main provides the trefm command line tool.
package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"trefm-analyzer/internal/app"
	"trefm-analyzer/internal/config"
	"trefm-analyzer/internal/metrics"
	"trefm-analyzer/internal/params"
	"trefm-analyzer/internal/pipeline"
	"trefm-analyzer/internal/render"
	"trefm-analyzer/internal/store"
	"trefm-analyzer/internal/version"
)

var rootCmd = &cobra.Command{
	Use:           "trefm",
	Short:         "Time-resolved EFM analysis of scanning probe data.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if quiet {
			log.SetOutput(io.Discard)
		}
	},
}

var (
	quiet      bool
	configPath string

	refPath     string
	datasetName string
	workers     int
	clearFilter bool
	previewPath string
	pushURL     string

	psdFreq    float64
	sampleFreq float64
	offset     float64
	overwrite  bool
)

func init() {
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Suppress progress output")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML configuration file")

	processCmd := &cobra.Command{
		Use:   "process [flags] file",
		Short: "Compute tFP, shift and instantaneous frequency for a scan",
		Args:  cobra.ExactArgs(1),
		RunE:  runProcess,
	}
	processCmd.Flags().StringVar(&refPath, "ref", "", "Path of the raw dataset, e.g. /FF_Group/FF_Avg")
	processCmd.Flags().StringVarP(&datasetName, "dataset", "d", "", "Name of the raw dataset to search for")
	processCmd.Flags().IntVarP(&workers, "workers", "j", 1, "Rows processed concurrently")
	processCmd.Flags().BoolVar(&clearFilter, "clear-filter", false, "Skip the bandpass filter for prefiltered data")
	processCmd.Flags().StringVarP(&previewPath, "preview", "p", "", "Write a tFP preview TIFF while processing")
	processCmd.Flags().StringVar(&pushURL, "push", "", "Prometheus Pushgateway URL")
	rootCmd.AddCommand(processCmd)

	calibrateCmd := &cobra.Command{
		Use:   "calibrate [flags] file waveform params",
		Short: "Store a transfer function from a thermal tune waveform",
		Args:  cobra.ExactArgs(3),
		RunE:  runCalibrate,
	}
	calibrateCmd.Flags().Float64Var(&psdFreq, "psd-freq", 1e6, "Upper frequency of the thermal tune in Hz")
	calibrateCmd.Flags().Float64Var(&sampleFreq, "sample-freq", 10e6, "Resampling target in Hz, 0 to skip")
	calibrateCmd.Flags().Float64Var(&offset, "offset", 0.0016, "Offset added to the normalized transfer function")
	calibrateCmd.Flags().BoolVarP(&overwrite, "overwrite", "f", false, "Replace an existing calibration")
	rootCmd.AddCommand(calibrateCmd)

	infoCmd := &cobra.Command{
		Use:   "info file",
		Short: "List groups, datasets and acquisition parameters",
		Args:  cobra.ExactArgs(1),
		RunE:  runInfo,
	}
	rootCmd.AddCommand(infoCmd)

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run:   func(cmd *cobra.Command, args []string) { fmt.Println(version.String()) },
	}
	rootCmd.AddCommand(versionCmd)
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "trefm: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig reads --config, or returns the defaults.
func loadConfig() (*config.Config, error) {
	if configPath == "" {
		return config.Default(), nil
	}
	return config.Load(configPath)
}

func runProcess(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	if flags.Changed("dataset") {
		cfg.Analysis.RawDataset = datasetName
	}
	if flags.Changed("workers") {
		cfg.Analysis.Workers = workers
	}
	if flags.Changed("clear-filter") {
		cfg.Analysis.Filter = !clearFilter
	}
	if flags.Changed("preview") {
		cfg.Preview.Path = previewPath
	}
	if flags.Changed("push") {
		cfg.Metrics.Pushgateway.Enabled = pushURL != ""
		cfg.Metrics.Pushgateway.URL = pushURL
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	state := app.NewState()
	if err := state.Open(store.PathSource(args[0])); err != nil {
		return err
	}
	defer state.Close()

	raw, err := state.LocateRaw(refPath, cfg.Analysis.RawDataset)
	if err != nil {
		return err
	}
	acq, err := state.Parameters().Acquisition()
	if err != nil {
		return err
	}
	log.Printf("Recombination: %v, ROI: %g s", acq.Recombination, acq.ROI)

	m := metrics.New()
	state.Metrics = m

	opts := app.DefaultProcessOptions()
	opts.BadPixelThreshold = cfg.Analysis.BadPixelThreshold
	opts.Pipeline.Pixel = cfg.PixelOptions()
	opts.Pipeline.Workers = cfg.Analysis.Workers
	observers := pipeline.Observers{pipeline.LogObserver{}}
	var preview *render.Preview
	if cfg.Preview.Path != "" {
		preview = render.NewPreview(cfg.Preview.Path, acq.NumRows, acq.NumCols, max(1, acq.NumRows/20))
		observers = append(observers, preview)
	}
	opts.Pipeline.Observer = observers

	res, err := state.Process(ctx, opts)
	if err != nil {
		return err
	}
	if preview != nil && preview.Err() != nil {
		log.Printf("Preview: not written: %v", preview.Err())
	}

	if pg := cfg.Metrics.Pushgateway; pg.Enabled {
		grouping := map[string]string{"scan": strings.TrimSuffix(filepath.Base(args[0]), filepath.Ext(args[0]))}
		if err := m.Push(pg.URL, pg.Job, grouping); err != nil {
			log.Printf("Metrics: push to %s failed: %v", pg.URL, err)
		}
	}

	fmt.Printf("%s: %s -> %s (run %s, %d failed rows, %d bad pixels)\n",
		args[0], raw, res.Group, res.RunID, len(res.Output.RowErrors), len(res.Mask))
	return nil
}

func runCalibrate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	if flags.Changed("psd-freq") {
		cfg.Calibration.PSDFreq = psdFreq
	}
	if flags.Changed("sample-freq") {
		cfg.Calibration.SampleFreq = sampleFreq
	}
	if flags.Changed("offset") {
		cfg.Calibration.Offset = offset
	}
	if flags.Changed("overwrite") {
		cfg.Calibration.Overwrite = overwrite
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	state := app.NewState()
	if err := state.Open(store.PathSource(args[0])); err != nil {
		return err
	}
	defer state.Close()

	tf, err := state.Calibrate(args[1], args[2], cfg.CalibrationOptions(), cfg.Calibration.Overwrite)
	if err != nil {
		return err
	}
	fmt.Printf("%s: %d-point transfer function, Q = %g, %d resampled points\n",
		args[0], len(tf.Raw), tf.Params.GetOr(params.KeyQ, 0), len(tf.Resampled))
	return nil
}

func runInfo(cmd *cobra.Command, args []string) error {
	f, err := store.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	err = f.Walk("/", func(n store.NodeInfo) error {
		if n.Path == "/" {
			fmt.Println("/")
			return nil
		}
		indent := strings.Repeat("  ", strings.Count(n.Path, "/"))
		if n.Kind == store.KindDataset {
			fmt.Printf("%s%s  %s %v\n", indent, n.Name(), n.DType, n.Shape)
		} else {
			fmt.Printf("%s%s/\n", indent, n.Name())
		}
		return nil
	})
	if err != nil {
		return err
	}

	state := app.NewState()
	if err := state.Open(store.HandleSource{File: f}); err != nil {
		return err
	}
	raw, err := state.LocateRaw("", "")
	if err != nil {
		fmt.Printf("\nno %s dataset\n", app.DefaultRawDataset)
		return nil
	}
	acq, err := state.Parameters().Acquisition()
	if err != nil {
		fmt.Printf("\n%s: %v\n", raw, err)
		return nil
	}
	fmt.Printf("\n%s: %d x %d pixels, %d points per pixel (%d averaged), %g Hz sampling, trigger at sample %d\n",
		raw, acq.NumRows, acq.NumCols, acq.PntsPerPixel, acq.PntsPerAvg, acq.SamplingRate, acq.Trigger)
	return nil
}

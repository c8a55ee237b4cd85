// Package config loads analyzer settings from YAML.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"trefm-analyzer/internal/app"
	"trefm-analyzer/internal/badpixel"
	"trefm-analyzer/internal/calibration"
	"trefm-analyzer/internal/params"
	"trefm-analyzer/internal/pixel"
)

// Config represents the complete analyzer configuration.
type Config struct {
	Analysis    AnalysisConfig    `yaml:"analysis"`
	Calibration CalibrationConfig `yaml:"calibration"`
	Metrics     MetricsConfig     `yaml:"metrics"`
	Preview     PreviewConfig     `yaml:"preview"`
}

// AnalysisConfig contains pixel analysis and scheduling settings
type AnalysisConfig struct {
	RawDataset        string  `yaml:"raw_dataset"`         // Dataset name located when no explicit path is given
	Workers           int     `yaml:"workers"`             // Rows processed concurrently
	Filter            bool    `yaml:"filter"`              // Bandpass around drive_freq before the Hilbert transform
	Taps              int     `yaml:"taps"`                // FIR length
	Bandwidth         float64 `yaml:"bandwidth"`           // Passband width as a fraction of drive_freq
	Window            string  `yaml:"window"`              // blackman, hamming or hann
	EdgeFraction      float64 `yaml:"edge_fraction"`       // Tapered fraction at each end of the trace
	NoiseK            float64 `yaml:"noise_k"`             // Event significance in baseline standard deviations
	MinExcursion      float64 `yaml:"min_excursion"`       // Event significance floor (Hz)
	OnsetFraction     float64 `yaml:"onset_fraction"`      // Fraction of the peak that marks the onset
	SteadyFraction    float64 `yaml:"steady_fraction"`     // Trailing fraction averaged for the shift
	HoldPeriods       float64 `yaml:"hold_periods"`        // Drive periods an excursion must persist
	BadPixelThreshold float64 `yaml:"bad_pixel_threshold"` // Outlier threshold in local standard deviations
}

// CalibrationConfig contains transfer function settings
type CalibrationConfig struct {
	PSDFreq    float64 `yaml:"psd_freq"`    // Thermal tune upper frequency (Hz)
	SampleFreq float64 `yaml:"sample_freq"` // Resampling target (Hz), 0 disables
	Offset     float64 `yaml:"offset"`
	Lift       float64 `yaml:"lift"`
	Overwrite  bool    `yaml:"overwrite"` // Replace an existing calibration
}

// MetricsConfig contains Prometheus settings
type MetricsConfig struct {
	Pushgateway PushgatewayConfig `yaml:"pushgateway"`
}

// PushgatewayConfig contains Prometheus Pushgateway settings
type PushgatewayConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"` // e.g. http://pushgateway:9091
	Job     string `yaml:"job"`
}

// PreviewConfig controls the map preview written while rows complete
type PreviewConfig struct {
	Path string `yaml:"path"` // TIFF output, empty disables
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	po := pixel.DefaultOptions()
	co := calibration.DefaultOptions()
	return &Config{
		Analysis: AnalysisConfig{
			RawDataset:        app.DefaultRawDataset,
			Workers:           1,
			Filter:            po.Filter,
			Taps:              po.Taps,
			Bandwidth:         po.Bandwidth,
			Window:            string(po.Window),
			EdgeFraction:      po.EdgeFraction,
			NoiseK:            po.NoiseK,
			MinExcursion:      po.MinExcursion,
			OnsetFraction:     po.OnsetFraction,
			SteadyFraction:    po.SteadyFraction,
			HoldPeriods:       po.HoldPeriods,
			BadPixelThreshold: badpixel.DefaultThreshold,
		},
		Calibration: CalibrationConfig{
			PSDFreq:    co.PSDFreq,
			SampleFreq: co.SampleFreq,
			Offset:     co.Offset,
			Lift:       co.Lift,
		},
		Metrics: MetricsConfig{
			Pushgateway: PushgatewayConfig{Job: "trefm"},
		},
	}
}

// Load reads a YAML file on top of Default and validates the result.
func Load(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", filename, err)
	}
	return config, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	a := c.Analysis
	if a.RawDataset == "" {
		return fmt.Errorf("analysis.raw_dataset is required")
	}
	if a.Workers < 1 {
		return fmt.Errorf("analysis.workers must be at least 1")
	}
	if a.Filter && a.Taps < 3 {
		return fmt.Errorf("analysis.taps must be at least 3")
	}
	if a.Filter && (a.Bandwidth <= 0 || a.Bandwidth >= 2) {
		return fmt.Errorf("analysis.bandwidth must be in (0, 2)")
	}
	switch pixel.Window(a.Window) {
	case pixel.Blackman, pixel.Hamming, pixel.Hann:
	default:
		return fmt.Errorf("analysis.window %q is not one of blackman, hamming, hann", a.Window)
	}
	if a.EdgeFraction < 0 || a.EdgeFraction >= 0.5 {
		return fmt.Errorf("analysis.edge_fraction must be in [0, 0.5)")
	}
	if a.OnsetFraction <= 0 || a.OnsetFraction > 1 {
		return fmt.Errorf("analysis.onset_fraction must be in (0, 1]")
	}
	if a.SteadyFraction <= 0 || a.SteadyFraction > 1 {
		return fmt.Errorf("analysis.steady_fraction must be in (0, 1]")
	}
	if a.HoldPeriods < 0 {
		return fmt.Errorf("analysis.hold_periods must not be negative")
	}
	if a.BadPixelThreshold <= 0 {
		return fmt.Errorf("analysis.bad_pixel_threshold must be positive")
	}

	cal := c.Calibration
	if cal.PSDFreq <= 0 {
		return fmt.Errorf("calibration.psd_freq must be positive")
	}
	if cal.SampleFreq < 0 {
		return fmt.Errorf("calibration.sample_freq must not be negative")
	}

	if p := c.Metrics.Pushgateway; p.Enabled {
		if p.URL == "" {
			return fmt.Errorf("metrics.pushgateway.url is required when enabled")
		}
		if p.Job == "" {
			return fmt.Errorf("metrics.pushgateway.job is required when enabled")
		}
	}
	return nil
}

// PixelOptions returns the analysis settings as pixel options.
func (c *Config) PixelOptions() pixel.Options {
	a := c.Analysis
	opts := pixel.DefaultOptions().
		WithDetection(a.NoiseK, a.MinExcursion, a.OnsetFraction)
	if a.Filter {
		opts = opts.WithFilter(a.Taps, a.Bandwidth, pixel.Window(a.Window))
	} else {
		opts = opts.WithoutFilter()
	}
	opts.EdgeFraction = a.EdgeFraction
	opts.SteadyFraction = a.SteadyFraction
	opts.HoldPeriods = a.HoldPeriods
	return opts
}

// CalibrationOptions returns the calibration settings.
func (c *Config) CalibrationOptions() calibration.Options {
	cal := c.Calibration
	opts := calibration.DefaultOptions().
		WithPSDFreq(cal.PSDFreq).
		WithSampleFreq(cal.SampleFreq).
		WithOffset(cal.Offset)
	opts.Lift = cal.Lift
	return opts
}

// LoadOptions returns the parameter table options implied by the
// calibration settings.
func (c *Config) LoadOptions() params.LoadOptions {
	return params.LoadOptions{PSDFreq: c.Calibration.PSDFreq, Lift: c.Calibration.Lift}
}

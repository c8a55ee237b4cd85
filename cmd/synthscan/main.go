// Command synthscan writes a synthetic trEFM scan, and optionally a thermal
// tune waveform and parameter table, for trying out the analyzer.
package main

import (
	"encoding/binary"
	"fmt"
	"math"
	"math/rand/v2"
	"os"

	"github.com/spf13/pflag"
	"gonum.org/v1/gonum/mat"

	"trefm-analyzer/internal/ibw"
	"trefm-analyzer/internal/params"
	"trefm-analyzer/internal/store"
)

// Scan describes a synthetic acquisition. Every pixel is a drive-frequency
// sine whose frequency moves by Shift after trigger+delay, with the delay
// ramping linearly from MinDelay in the first column to MaxDelay in the last.
type Scan struct {
	Rows, Cols   int
	PntsPerAvg   int
	Averages     int     // Segments per pixel
	SamplingRate float64 // Hz
	DriveFreq    float64 // Hz
	Trigger      int     // Sample index
	MinDelay     float64 // Seconds after trigger
	MaxDelay     float64
	Shift        float64 // Hz
	Tau          float64 // Exponential rise time in seconds, 0 for a step
	Noise        float64 // Gaussian amplitude noise
	Seed         uint64
}

// Delay returns the event delay of column j.
func (s Scan) Delay(j int) float64 {
	if s.Cols == 1 {
		return s.MinDelay
	}
	return s.MinDelay + (s.MaxDelay-s.MinDelay)*float64(j)/float64(s.Cols-1)
}

// Signal generates one averaging segment with the event delay given.
func (s Scan) Signal(dst []float64, delay float64, rng *rand.Rand) {
	t0 := float64(s.Trigger)/s.SamplingRate + delay
	phase := 0.0
	for i := range dst {
		t := float64(i) / s.SamplingRate
		f := s.DriveFreq
		if t >= t0 {
			if s.Tau > 0 {
				f += s.Shift * (1 - math.Exp(-(t-t0)/s.Tau))
			} else {
				f += s.Shift
			}
		}
		dst[i] = math.Sin(phase)
		if s.Noise > 0 {
			dst[i] += s.Noise * rng.NormFloat64()
		}
		phase += 2 * math.Pi * f / s.SamplingRate
	}
}

// Parameters returns the acquisition attributes of the scan.
func (s Scan) Parameters() map[string]any {
	return map[string]any{
		params.KeyNumRows:       s.Rows,
		params.KeyNumCols:       s.Cols,
		params.KeyPntsPerPixel:  s.PntsPerAvg * s.Averages,
		params.KeyPntsPerAvg:    s.PntsPerAvg,
		params.KeySamplingRate:  s.SamplingRate,
		params.KeyDriveFreq:     s.DriveFreq,
		params.KeyTriggerSample: s.Trigger,
		params.KeyTrigger:       float64(s.Trigger) / s.SamplingRate,
		params.KeyTotalTime:     float64(s.PntsPerAvg) / s.SamplingRate,
		params.KeyFastScanSize:  float64(s.Cols) * 100e-9,
		params.KeySlowScanSize:  float64(s.Rows) * 100e-9,
		params.KeyRecombination: false,
		params.KeyROI:           0.0,
	}
}

// Write stores the scan as /FF_Group/FF_Raw in f with its parameters on the
// group.
func (s Scan) Write(f *store.File) error {
	ppp := s.PntsPerAvg * s.Averages
	rng := rngFor(s)
	raw := mat.NewDense(s.Rows*s.Cols, ppp, nil)
	for i := 0; i < s.Rows; i++ {
		for j := 0; j < s.Cols; j++ {
			row := raw.RawRowView(i*s.Cols + j)
			for k := 0; k < s.Averages; k++ {
				s.Signal(row[k*s.PntsPerAvg:(k+1)*s.PntsPerAvg], s.Delay(j), rng)
			}
		}
	}
	if _, err := f.WriteArray("/FF_Group", "FF_Raw", store.FromDense(raw), nil); err != nil {
		return err
	}
	return f.SetAttrs("/FF_Group", s.Parameters())
}

func rngFor(s Scan) *rand.Rand {
	return rand.New(rand.NewPCG(s.Seed, s.Seed^0x5eed))
}

// ThermalTune returns an n-point driven harmonic oscillator amplitude
// response over [0, psdFreq] with resonance f0 and quality factor q.
func ThermalTune(n int, psdFreq, f0, q float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		f := psdFreq * float64(i) / float64(n-1)
		r := f / f0
		out[i] = 1 / math.Sqrt(math.Pow(1-r*r, 2)+math.Pow(r/q, 2))
	}
	return out
}

func writeTune(path string, n int, psdFreq, f0, q float64) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := ibw.Encode(file, "ThermalTune", ThermalTune(n, psdFreq, f0, q), binary.LittleEndian); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

func writeParams(path string, f0, q float64) error {
	table := fmt.Sprintf("Parameters\n\tInitial\tFinal\nQ\t%g\t%g\nDriveFrequency\t%g\t%g\nAMPINVOLS\t1e-07\t1e-07\n", q, q, f0, f0)
	return os.WriteFile(path, []byte(table), 0644)
}

func main() {
	var (
		output     = pflag.StringP("output", "o", "", "Container file to create")
		rows       = pflag.IntP("rows", "r", 8, "Scan rows")
		cols       = pflag.IntP("cols", "c", 16, "Scan columns")
		points     = pflag.Int("points", 1600, "Points per averaged trace")
		averages   = pflag.IntP("averages", "a", 1, "Segments averaged per pixel")
		rate       = pflag.Float64P("rate", "s", 10e6, "Sampling rate in Hz")
		drive      = pflag.Float64P("drive", "f", 300e3, "Drive frequency in Hz")
		trigger    = pflag.Int("trigger", 400, "Trigger sample")
		minDelay   = pflag.Float64("min-delay", 10e-6, "Event delay of the first column in seconds")
		maxDelay   = pflag.Float64("max-delay", 60e-6, "Event delay of the last column in seconds")
		shift      = pflag.Float64("shift", -2000, "Frequency shift in Hz")
		tau        = pflag.Float64("tau", 0, "Exponential rise time in seconds, 0 for a step")
		noise      = pflag.Float64P("noise", "n", 0.01, "Gaussian amplitude noise")
		seed       = pflag.Uint64("seed", 1, "Noise seed")
		tunePath   = pflag.String("tune", "", "Also write a thermal tune .ibw here")
		paramsPath = pflag.String("params", "", "Also write a parameter table here")
		quality    = pflag.Float64P("quality", "Q", 300, "Cantilever quality factor for --tune and --params")
		psdFreq    = pflag.Float64("psd-freq", 1e6, "Thermal tune upper frequency in Hz")
		tunePoints = pflag.Int("tune-points", 1024, "Thermal tune length")
	)
	pflag.Parse()

	if *output == "" {
		fmt.Println("Usage: synthscan -o <file> [flags]")
		pflag.PrintDefaults()
		os.Exit(1)
	}

	scan := Scan{
		Rows: *rows, Cols: *cols,
		PntsPerAvg: *points, Averages: *averages,
		SamplingRate: *rate, DriveFreq: *drive,
		Trigger:  *trigger,
		MinDelay: *minDelay, MaxDelay: *maxDelay,
		Shift: *shift, Tau: *tau,
		Noise: *noise, Seed: *seed,
	}
	if scan.Rows < 1 || scan.Cols < 1 || scan.Averages < 1 || scan.Trigger >= scan.PntsPerAvg {
		fmt.Fprintln(os.Stderr, "Invalid scan geometry")
		os.Exit(1)
	}

	f, err := store.Create(*output)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create %s: %v\n", *output, err)
		os.Exit(1)
	}
	if err := scan.Write(f); err != nil {
		f.Close()
		fmt.Fprintf(os.Stderr, "Failed to write scan: %v\n", err)
		os.Exit(1)
	}
	if err := f.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to close %s: %v\n", *output, err)
		os.Exit(1)
	}
	fmt.Printf("Wrote %d x %d scan to %s (tFP %.1f-%.1f us)\n",
		scan.Rows, scan.Cols, *output, scan.MinDelay*1e6, scan.MaxDelay*1e6)

	if *tunePath != "" {
		if err := writeTune(*tunePath, *tunePoints, *psdFreq, *drive, *quality); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to write thermal tune: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Wrote thermal tune to %s\n", *tunePath)
	}
	if *paramsPath != "" {
		if err := writeParams(*paramsPath, *drive, *quality); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to write parameters: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Wrote parameters to %s\n", *paramsPath)
	}
}

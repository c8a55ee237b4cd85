// Package params provides the instrument parameter table and the typed
// acquisition view shared by every analysis stage.
package params

import (
	"fmt"
	"math"
	"sort"
)

// Well-known parameter keys.
const (
	KeyNumRows       = "num_rows"
	KeyNumCols       = "num_cols"
	KeyPntsPerPixel  = "pnts_per_pixel"
	KeyPntsPerAvg    = "pnts_per_avg"
	KeySamplingRate  = "sampling_rate"
	KeyTrigger       = "trigger"
	KeyTriggerSample = "trigger_sample"
	KeyDriveFreq     = "drive_freq"
	KeyTotalTime     = "total_time"
	KeyFastScanSize  = "FastScanSize"
	KeySlowScanSize  = "SlowScanSize"
	KeyRecombination = "recombination"
	KeyROI           = "roi"
	KeyQ             = "Q"
	KeyPSDFreq       = "PSDFreq"
	KeyLift          = "Lift"
)

// Parameters is an immutable set of named scalar values.
type Parameters struct {
	values map[string]float64
}

// New creates Parameters from a map. The map is copied.
func New(values map[string]float64) Parameters {
	p := Parameters{values: make(map[string]float64, len(values))}
	for k, v := range values {
		p.values[k] = v
	}
	return p
}

// FromAttributes builds Parameters from stored attributes. Numeric and boolean
// values are kept; everything else is skipped.
func FromAttributes(attrs map[string]any) Parameters {
	values := make(map[string]float64, len(attrs))
	for k, v := range attrs {
		switch x := v.(type) {
		case float64:
			values[k] = x
		case float32:
			values[k] = float64(x)
		case int:
			values[k] = float64(x)
		case int64:
			values[k] = float64(x)
		case bool:
			if x {
				values[k] = 1
			} else {
				values[k] = 0
			}
		}
	}
	return Parameters{values: values}
}

// Get returns the value for key, or a ParseError if the key is absent.
func (p Parameters) Get(key string) (float64, error) {
	v, ok := p.values[key]
	if !ok {
		return 0, &ParseError{Key: key, Err: ErrMissingKey}
	}
	return v, nil
}

// Int returns the value for key as an integer.
func (p Parameters) Int(key string) (int, error) {
	v, err := p.Get(key)
	if err != nil {
		return 0, err
	}
	if v != math.Trunc(v) {
		return 0, &ParseError{Key: key, Err: fmt.Errorf("value %g is not an integer", v)}
	}
	return int(v), nil
}

// Lookup returns the value for key and whether it was present.
func (p Parameters) Lookup(key string) (float64, bool) {
	v, ok := p.values[key]
	return v, ok
}

// GetOr returns the value for key or def if absent.
func (p Parameters) GetOr(key string, def float64) float64 {
	if v, ok := p.values[key]; ok {
		return v
	}
	return def
}

// Has reports whether key is present.
func (p Parameters) Has(key string) bool {
	_, ok := p.values[key]
	return ok
}

// With returns a copy of p with key set to value.
func (p Parameters) With(key string, value float64) Parameters {
	out := New(p.values)
	out.values[key] = value
	return out
}

// Merge returns a copy of p overlaid with the values of other.
func (p Parameters) Merge(other Parameters) Parameters {
	out := New(p.values)
	for k, v := range other.values {
		out.values[k] = v
	}
	return out
}

// Keys returns the parameter names in sorted order.
func (p Parameters) Keys() []string {
	keys := make([]string, 0, len(p.values))
	for k := range p.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Len returns the number of parameters.
func (p Parameters) Len() int {
	return len(p.values)
}

// Attributes returns the parameters as a generic attribute map for storage.
func (p Parameters) Attributes() map[string]any {
	out := make(map[string]any, len(p.values))
	for k, v := range p.values {
		out[k] = v
	}
	return out
}

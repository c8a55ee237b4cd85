package params

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// Defaults injected into every loaded parameter table.
const (
	DefaultPSDFreq = 1e6
	DefaultLift    = 50.0
)

// valueColumn is the header name of the value column in instrument exports.
const valueColumn = "Initial"

// LoadOptions controls the constants injected by Load.
type LoadOptions struct {
	PSDFreq float64 // Calibration frequency ceiling (Hz)
	Lift    float64 // Lift height (nm)
}

// DefaultLoadOptions returns the standard injected constants.
func DefaultLoadOptions() LoadOptions {
	return LoadOptions{PSDFreq: DefaultPSDFreq, Lift: DefaultLift}
}

// Load reads a tab-separated parameter table from path.
func Load(path string, opts LoadOptions) (Parameters, error) {
	f, err := os.Open(path)
	if err != nil {
		return Parameters{}, err
	}
	defer f.Close()

	p, err := Parse(f, opts)
	if err != nil {
		var pe *ParseError
		if errors.As(err, &pe) {
			pe.Path = path
		}
		return Parameters{}, err
	}
	return p, nil
}

// Parse decodes a parameter table. Single-cell title rows before the header
// are skipped, the header row locates the value column, and each following
// row is a name/value pair. A table without a header row is rejected.
func Parse(r io.Reader, opts LoadOptions) (Parameters, error) {
	cr := csv.NewReader(r)
	cr.Comma = '\t'
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.TrimLeadingSpace = true

	values := make(map[string]float64)
	valueCol := -1
	line := 0

	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return Parameters{}, &ParseError{Line: line + 1, Err: err}
		}
		line, _ = cr.FieldPos(0)

		if isBlank(record) {
			continue
		}

		if valueCol < 0 {
			// Title and header rows come first; the header is the first row
			// with at least two cells whose value cell is not a number.
			if len(record) < 2 {
				continue
			}
			if _, err := parseValue(record[1]); err == nil {
				return Parameters{}, &ParseError{
					Line: line,
					Key:  strings.TrimSpace(record[0]),
					Err:  errors.New("parameter row before the header row"),
				}
			}
			valueCol = headerValueColumn(record)
			continue
		}

		if len(record) <= valueCol {
			return Parameters{}, &ParseError{
				Line: line,
				Key:  strings.TrimSpace(record[0]),
				Err:  fmt.Errorf("expected at least %d columns, got %d", valueCol+1, len(record)),
			}
		}

		key := strings.TrimSpace(record[0])
		if key == "" {
			return Parameters{}, &ParseError{Line: line, Err: errors.New("empty parameter name")}
		}
		v, err := parseValue(record[valueCol])
		if err != nil {
			return Parameters{}, &ParseError{Line: line, Key: key, Err: err}
		}
		values[key] = v
	}

	if len(values) == 0 {
		return Parameters{}, &ParseError{Err: errors.New("no parameters found")}
	}

	values[KeyPSDFreq] = opts.PSDFreq
	values[KeyLift] = opts.Lift
	return Parameters{values: values}, nil
}

func headerValueColumn(header []string) int {
	for i, h := range header {
		if i > 0 && strings.EqualFold(strings.TrimSpace(h), valueColumn) {
			return i
		}
	}
	return 1
}

func parseValue(s string) (float64, error) {
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "true":
		return 1, nil
	case "false":
		return 0, nil
	}
	return strconv.ParseFloat(s, 64)
}

func isBlank(record []string) bool {
	for _, c := range record {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

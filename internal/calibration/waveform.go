package calibration

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"trefm-analyzer/internal/ibw"
)

// LoadWaveform reads a reference waveform. Igor binary waves (.ibw) are
// decoded directly; anything else is read as whitespace separated numbers,
// with lines starting with '#' ignored.
func LoadWaveform(path string) ([]float64, error) {
	if strings.EqualFold(filepath.Ext(path), ".ibw") {
		w, err := ibw.ReadFile(path)
		if err != nil {
			return nil, err
		}
		return w.Data, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []float64
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 16*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		for _, field := range strings.Fields(text) {
			v, err := strconv.ParseFloat(strings.TrimSuffix(field, ","), 64)
			if err != nil {
				return nil, fmt.Errorf("%s:%d: bad sample %q", path, line, field)
			}
			out = append(out, v)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%s: no samples", path)
	}
	return out, nil
}

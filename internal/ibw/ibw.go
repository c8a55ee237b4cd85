// Package ibw reads Igor Pro binary wave files (versions 2 and 5), the format
// instrument software uses to export thermal-tune transfer functions.
package ibw

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"math/cmplx"
	"os"
)

// Igor number types.
const (
	typeComplex  = 0x01
	typeFloat32  = 0x02
	typeFloat64  = 0x04
	typeInt8     = 0x08
	typeInt16    = 0x10
	typeInt32    = 0x20
	typeUnsigned = 0x40
)

// Header sizes. Version 2 wave headers end with a 16 byte wData stub that
// overlaps the start of the data.
const (
	binHeader2Size  = 16
	waveHeader2Size = 126
	binHeader5Size  = 64
	waveHeader5Size = 320
)

// ErrUnsupportedVersion is returned for wave file versions other than 2 and 5.
var ErrUnsupportedVersion = errors.New("ibw: unsupported version")

// Wave is a decoded binary wave. Complex waves are reduced to magnitudes.
type Wave struct {
	Name    string
	Version int
	Complex bool
	Data    []float64
}

// ReadFile decodes the wave stored at path.
func ReadFile(path string) (*Wave, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	w, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return w, nil
}

// Read decodes a wave from r.
func Read(r io.Reader) (*Wave, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return Decode(data)
}

// Decode decodes a complete wave file image.
func Decode(data []byte) (*Wave, error) {
	if len(data) < 2 {
		return nil, io.ErrUnexpectedEOF
	}

	order, version, err := byteOrder(data)
	if err != nil {
		return nil, err
	}

	var (
		npnts    int
		numType  int
		name     []byte
		dataFrom int
	)

	switch version {
	case 2:
		if len(data) < binHeader2Size+waveHeader2Size-16 {
			return nil, io.ErrUnexpectedEOF
		}
		wh := data[binHeader2Size:]
		numType = int(order.Uint16(wh[0:]))
		name = wh[6:26]
		npnts = int(int32(order.Uint32(wh[42:])))
		dataFrom = binHeader2Size + waveHeader2Size - 16
	case 5:
		if len(data) < binHeader5Size+waveHeader5Size {
			return nil, io.ErrUnexpectedEOF
		}
		wh := data[binHeader5Size:]
		npnts = int(int32(order.Uint32(wh[12:])))
		numType = int(order.Uint16(wh[16:]))
		name = wh[28:60]
		dataFrom = binHeader5Size + waveHeader5Size
	}

	if npnts < 0 {
		return nil, fmt.Errorf("ibw: negative point count %d", npnts)
	}

	w := &Wave{
		Name:    cString(name),
		Version: version,
		Complex: numType&typeComplex != 0,
	}
	w.Data, err = decodeData(data[dataFrom:], order, numType, npnts)
	if err != nil {
		return nil, err
	}
	return w, nil
}

// byteOrder infers the file byte order from the version field.
func byteOrder(data []byte) (binary.ByteOrder, int, error) {
	if v := int(binary.LittleEndian.Uint16(data)); v == 2 || v == 5 {
		return binary.LittleEndian, v, nil
	}
	if v := int(binary.BigEndian.Uint16(data)); v == 2 || v == 5 {
		return binary.BigEndian, v, nil
	}
	return nil, 0, ErrUnsupportedVersion
}

func decodeData(raw []byte, order binary.ByteOrder, numType, npnts int) ([]float64, error) {
	size, read, err := elementReader(order, numType)
	if err != nil {
		return nil, err
	}

	values := npnts
	if numType&typeComplex != 0 {
		values *= 2
	}
	if len(raw) < values*size {
		return nil, fmt.Errorf("ibw: %d data bytes, need %d: %w", len(raw), values*size, io.ErrUnexpectedEOF)
	}

	out := make([]float64, npnts)
	for i := range out {
		if numType&typeComplex != 0 {
			re := read(raw[(2*i)*size:])
			im := read(raw[(2*i+1)*size:])
			out[i] = cmplx.Abs(complex(re, im))
		} else {
			out[i] = read(raw[i*size:])
		}
	}
	return out, nil
}

func elementReader(order binary.ByteOrder, numType int) (int, func([]byte) float64, error) {
	unsigned := numType&typeUnsigned != 0
	switch numType &^ (typeComplex | typeUnsigned) {
	case typeFloat32:
		return 4, func(b []byte) float64 { return float64(math.Float32frombits(order.Uint32(b))) }, nil
	case typeFloat64:
		return 8, func(b []byte) float64 { return math.Float64frombits(order.Uint64(b)) }, nil
	case typeInt8:
		if unsigned {
			return 1, func(b []byte) float64 { return float64(b[0]) }, nil
		}
		return 1, func(b []byte) float64 { return float64(int8(b[0])) }, nil
	case typeInt16:
		if unsigned {
			return 2, func(b []byte) float64 { return float64(order.Uint16(b)) }, nil
		}
		return 2, func(b []byte) float64 { return float64(int16(order.Uint16(b))) }, nil
	case typeInt32:
		if unsigned {
			return 4, func(b []byte) float64 { return float64(order.Uint32(b)) }, nil
		}
		return 4, func(b []byte) float64 { return float64(int32(order.Uint32(b))) }, nil
	}
	return 0, nil, fmt.Errorf("ibw: unsupported number type 0x%x", numType)
}

func cString(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}

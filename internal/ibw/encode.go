package ibw

import (
	"encoding/binary"
	"io"
	"math"
)

// Encode writes data as a version 5 double-precision wave.
func Encode(w io.Writer, name string, data []float64, order binary.ByteOrder) error {
	buf := make([]byte, binHeader5Size+waveHeader5Size+8*len(data))

	order.PutUint16(buf[0:], 5)
	order.PutUint32(buf[4:], uint32(waveHeader5Size+8*len(data)))

	wh := buf[binHeader5Size:]
	order.PutUint32(wh[12:], uint32(len(data)))
	order.PutUint16(wh[16:], typeFloat64)
	order.PutUint16(wh[26:], 1)
	copy(wh[28:59], name)
	order.PutUint32(wh[68:], uint32(len(data)))

	body := buf[binHeader5Size+waveHeader5Size:]
	for i, v := range data {
		order.PutUint64(body[8*i:], math.Float64bits(v))
	}

	order.PutUint16(buf[2:], checksum(buf[:binHeader5Size+waveHeader5Size], order))
	_, err := w.Write(buf)
	return err
}

// checksum makes the int16 sum over both headers zero, as Igor expects.
func checksum(header []byte, order binary.ByteOrder) uint16 {
	var sum uint16
	for i := 0; i+1 < len(header); i += 2 {
		sum += order.Uint16(header[i:])
	}
	return -sum
}

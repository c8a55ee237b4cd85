package store

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// chunkTarget is the approximate number of float64 words per stored chunk.
const chunkTarget = 1 << 16

var (
	codecOnce sync.Once
	encoder   *zstd.Encoder
	decoder   *zstd.Decoder
	codecErr  error
)

// codec returns the shared zstd encoder and decoder. EncodeAll and DecodeAll
// are safe for concurrent use.
func codec() (*zstd.Encoder, *zstd.Decoder, error) {
	codecOnce.Do(func() {
		encoder, codecErr = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if codecErr != nil {
			return
		}
		decoder, codecErr = zstd.NewReader(nil)
	})
	return encoder, decoder, codecErr
}

// chunkRows returns how many leading rows are stored per chunk.
func chunkRows(rowWords int) int {
	if rowWords <= 0 {
		return 1
	}
	n := chunkTarget / rowWords
	if n < 1 {
		n = 1
	}
	return n
}

// encodeWords packs little-endian float64 words and compresses them.
func encodeWords(words []float64) ([]byte, error) {
	enc, _, err := codec()
	if err != nil {
		return nil, err
	}
	raw := make([]byte, 8*len(words))
	for i, v := range words {
		binary.LittleEndian.PutUint64(raw[8*i:], math.Float64bits(v))
	}
	return enc.EncodeAll(raw, nil), nil
}

// decodeWords reverses encodeWords.
func decodeWords(blob []byte) ([]float64, error) {
	_, dec, err := codec()
	if err != nil {
		return nil, err
	}
	raw, err := dec.DecodeAll(blob, nil)
	if err != nil {
		return nil, fmt.Errorf("store: decompress chunk: %w", err)
	}
	if len(raw)%8 != 0 {
		return nil, fmt.Errorf("store: corrupt chunk of %d bytes", len(raw))
	}
	words := make([]float64, len(raw)/8)
	for i := range words {
		words[i] = math.Float64frombits(binary.LittleEndian.Uint64(raw[8*i:]))
	}
	return words, nil
}

// arrayWords flattens an array into float64 words, interleaving complex parts.
func arrayWords(a Array) []float64 {
	if a.DType != Complex128 {
		return a.Data
	}
	words := make([]float64, 2*len(a.Cmplx))
	for i, c := range a.Cmplx {
		words[2*i] = real(c)
		words[2*i+1] = imag(c)
	}
	return words
}

// wordsArray rebuilds an array from flattened words.
func wordsArray(dtype DType, shape []int, words []float64) Array {
	if dtype != Complex128 {
		return Array{DType: Float64, Shape: shape, Data: words}
	}
	c := make([]complex128, len(words)/2)
	for i := range c {
		c[i] = complex(words[2*i], words[2*i+1])
	}
	return Array{DType: Complex128, Shape: shape, Cmplx: c}
}

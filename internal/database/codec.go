package database

import (
	"encoding/binary"
	"fmt"
	"math"
)

// EncodeEmbedding packs an embedding as little-endian float32 values.
func EncodeEmbedding(emb []float32) []byte {
	buf := make([]byte, 4*len(emb))
	for i, v := range emb {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(v))
	}
	return buf
}

// DecodeEmbedding is the inverse of EncodeEmbedding.
func DecodeEmbedding(buf []byte) ([]float32, error) {
	if len(buf)%4 != 0 {
		return nil, fmt.Errorf("%w: embedding blob length %d is not a multiple of 4", ErrValidationFailed, len(buf))
	}
	emb := make([]float32, len(buf)/4)
	for i := range emb {
		emb[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[4*i:]))
	}
	return emb, nil
}

// ValidateEmbedding checks that emb has exactly dim finite components and
// a non-zero magnitude.
// A dim of zero skips the length check.
func ValidateEmbedding(emb []float32, dim int) error {
	if len(emb) == 0 {
		return fmt.Errorf("%w: embedding is empty", ErrValidationFailed)
	}
	if dim > 0 && len(emb) != dim {
		return fmt.Errorf("%w: embedding has %d dimensions, want %d", ErrValidationFailed, len(emb), dim)
	}
	var norm float64
	for i, v := range emb {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return fmt.Errorf("%w: embedding component %d is not finite", ErrValidationFailed, i)
		}
		norm += f * f
	}
	if norm == 0 {
		return fmt.Errorf("%w: embedding has zero magnitude", ErrValidationFailed)
	}
	return nil
}

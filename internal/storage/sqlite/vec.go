package sqlite

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/sandevgo/localrag/pkg/sqlite"
)

func serializeVector(vec []float32) ([]byte, error) {
	blob, err := sqlite.SerializeVector(vec)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize vector: %w", err)
	}
	return blob, nil
}

// deserializeVector is the inverse of serializeVector.
func deserializeVector(blob []byte) ([]float32, error) {
	if len(blob)%4 != 0 {
		return nil, fmt.Errorf("invalid vector blob length %d", len(blob))
	}
	vec := make([]float32, len(blob)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4:]))
	}
	return vec, nil
}

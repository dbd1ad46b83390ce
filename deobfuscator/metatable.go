package deobfuscator

import (
	"context"
	"fmt"
)

const (
	MetaTableSize  = 256
	metaTableBytes = MetaTableSize * MetaTableSize * 4
	// ExpansionDomain is the fixed 64-bit constant passed to the seed expander.
	ExpansionDomain uint64 = 2352940687395663367
)

// MetaTable is the 256x256 RGBA lookup table indexed by a vertex's meta UV cell.
type MetaTable struct {
	data []byte
}

func NewLegacyMetaTable(seed int64) *MetaTable {
	g := NewLaneRandomGenerator(seed)
	data := make([]byte, metaTableBytes)
	for i := 0; i < MetaTableSize*MetaTableSize; i++ {
		data[i*4] = byte(g.NextInRange(256))
		data[i*4+1] = byte(g.NextInRange(256))
		data[i*4+2] = byte(g.NextInRange(256))
		data[i*4+3] = 255
	}
	return &MetaTable{data: data}
}

func NewExpandedMetaTable(ctx context.Context, expander Expander, seed int64) (*MetaTable, error) {
	if expander == nil {
		return nil, ErrExpanderUnavailable
	}
	data, err := expander.ExpandTexture(ctx, seed, ExpansionDomain)
	if err != nil {
		return nil, fmt.Errorf("failed to expand meta texture: %w", err)
	}
	return NewMetaTableFromBytes(data)
}

func NewMetaTableFromBytes(data []byte) (*MetaTable, error) {
	if len(data) != metaTableBytes {
		return nil, fmt.Errorf("meta texture has %d bytes, want %d", len(data), metaTableBytes)
	}
	return &MetaTable{data: data}, nil
}

// Bytes exposes the raw RGBA buffer. Callers must not modify it.
func (t *MetaTable) Bytes() []byte {
	return t.data
}

// Lookup returns the RGB channels of cell (u, v), each normalised to [0, 1].
func (t *MetaTable) Lookup(u, v int) (float64, float64, float64) {
	index := (v*MetaTableSize + u) * 4
	return float64(t.data[index]) / 255,
		float64(t.data[index+1]) / 255,
		float64(t.data[index+2]) / 255
}

package deobfuscator

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/qmuntal/gltf"
)

type positionView struct {
	data   []byte
	offset int
	stride int
	count  int
}

func newPositionView(doc *gltf.Document, acr *gltf.Accessor) (*positionView, error) {
	if acr.ComponentType != gltf.ComponentFloat || acr.Type != gltf.AccessorVec3 || acr.Normalized {
		return nil, fmt.Errorf("%w: component type %v, type %v", ErrUnsupportedAccessor, acr.ComponentType, acr.Type)
	}
	if acr.Sparse != nil {
		return nil, fmt.Errorf("%w: sparse accessor", ErrUnsupportedAccessor)
	}
	if acr.BufferView == nil || *acr.BufferView < 0 || *acr.BufferView >= len(doc.BufferViews) {
		return nil, fmt.Errorf("%w: missing buffer view", ErrUnsupportedAccessor)
	}
	bv := doc.BufferViews[*acr.BufferView]
	if bv.Buffer < 0 || bv.Buffer >= len(doc.Buffers) {
		return nil, fmt.Errorf("%w: buffer view references missing buffer %d", ErrUnsupportedAccessor, bv.Buffer)
	}
	stride := bv.ByteStride
	if stride == 0 {
		stride = 12
	}
	view := &positionView{
		data:   doc.Buffers[bv.Buffer].Data,
		offset: bv.ByteOffset + acr.ByteOffset,
		stride: stride,
		count:  acr.Count,
	}
	if view.count > 0 {
		end := view.offset + (view.count-1)*stride + 12
		if end > bv.ByteOffset+bv.ByteLength || end > len(view.data) {
			return nil, fmt.Errorf("%w: accessor overruns its buffer view", ErrUnsupportedAccessor)
		}
	}
	return view, nil
}

func (v *positionView) read() [][3]float32 {
	out := make([][3]float32, v.count)
	for i := range out {
		base := v.offset + i*v.stride
		for c := 0; c < 3; c++ {
			out[i][c] = math.Float32frombits(binary.LittleEndian.Uint32(v.data[base+c*4:]))
		}
	}
	return out
}

func (v *positionView) write(positions [][3]float32) {
	for i, p := range positions {
		base := v.offset + i*v.stride
		for c := 0; c < 3; c++ {
			binary.LittleEndian.PutUint32(v.data[base+c*4:], math.Float32bits(p[c]))
		}
	}
}

func updateBounds(acr *gltf.Accessor, positions [][3]float32) {
	if len(positions) == 0 {
		return
	}
	lo := []float64{math.Inf(1), math.Inf(1), math.Inf(1)}
	hi := []float64{math.Inf(-1), math.Inf(-1), math.Inf(-1)}
	for _, p := range positions {
		for c := 0; c < 3; c++ {
			lo[c] = math.Min(lo[c], float64(p[c]))
			hi[c] = math.Max(hi[c], float64(p[c]))
		}
	}
	acr.Min = lo
	acr.Max = hi
}

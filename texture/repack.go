package texture

import (
	"fmt"

	"github.com/qmuntal/gltf"
)

const viewAlignment = 4

func padTo(data []byte, alignment int) []byte {
	for len(data)%alignment != 0 {
		data = append(data, 0)
	}
	return data
}

// Repack rebuilds every embedded buffer from its views, in view order,
// substituting the payloads in replacements (keyed by buffer view). Bytes no
// view points at are dropped. Views start on 4-byte boundaries.
func Repack(doc *gltf.Document, replacements map[int][]byte) error {
	rebuilt := make([][]byte, len(doc.Buffers))
	touched := make([]bool, len(doc.Buffers))
	for i, bv := range doc.BufferViews {
		if bv == nil {
			continue
		}
		if bv.Buffer < 0 || bv.Buffer >= len(doc.Buffers) {
			return fmt.Errorf("buffer view %d references missing buffer %d", i, bv.Buffer)
		}
		buf := doc.Buffers[bv.Buffer]
		if buf.Data == nil {
			if _, ok := replacements[i]; ok {
				return fmt.Errorf("buffer view %d lives in external buffer %d", i, bv.Buffer)
			}
			continue
		}
		payload, ok := replacements[i]
		if !ok {
			end := bv.ByteOffset + bv.ByteLength
			if bv.ByteOffset < 0 || end > len(buf.Data) {
				return fmt.Errorf("buffer view %d outside of buffer %d", i, bv.Buffer)
			}
			payload = buf.Data[bv.ByteOffset:end]
		}
		out := padTo(rebuilt[bv.Buffer], viewAlignment)
		bv.ByteOffset = len(out)
		bv.ByteLength = len(payload)
		rebuilt[bv.Buffer] = append(out, payload...)
		touched[bv.Buffer] = true
	}
	for i, buf := range doc.Buffers {
		if buf.Data == nil {
			continue
		}
		data := padTo(rebuilt[i], viewAlignment)
		if !touched[i] {
			data = []byte{}
		}
		buf.Data = data
		buf.ByteLength = len(data)
	}
	return nil
}

package texture

import (
	"bytes"
	"fmt"
	"image"
	"io"

	harukiBinary "haruki-vroid-deobfuscator/utils/binary"

	"github.com/galaco/dxt"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
)

const (
	vkFormatUndefined     = 0
	vkFormatR8G8B8A8Unorm = 37
	vkFormatR8G8B8A8Srgb  = 43
	vkFormatBC1RGBUnorm   = 131
	vkFormatBC1RGBSrgb    = 132
	vkFormatBC1RGBAUnorm  = 133
	vkFormatBC1RGBASrgb   = 134
	vkFormatBC3Unorm      = 137
	vkFormatBC3Srgb       = 138

	supercompressionNone    = 0
	supercompressionBasisLZ = 1
	supercompressionZstd    = 2
	supercompressionZlib    = 3

	ktx2HeaderSize = 80
)

type KTX2Header struct {
	VkFormat         uint32
	TypeSize         uint32
	Width            uint32
	Height           uint32
	Depth            uint32
	Layers           uint32
	Faces            uint32
	Levels           uint32
	Supercompression uint32
}

type ktx2Level struct {
	offset       uint64
	length       uint64
	uncompressed uint64
}

// ParseKTX2 reads the header and returns the still supercompressed bytes of
// level 0, the largest mip.
func ParseKTX2(data []byte) (*KTX2Header, []byte, error) {
	if !bytes.HasPrefix(data, ktx2Identifier) {
		return nil, nil, fmt.Errorf("%w: bad identifier", ErrUnsupportedKTX2)
	}
	s := harukiBinary.NewStream(data, "little")
	if err := s.Seek(int64(len(ktx2Identifier))); err != nil {
		return nil, nil, err
	}
	fields, err := s.ReadUInt32s(9)
	if err != nil {
		return nil, nil, fmt.Errorf("truncated KTX2 header: %w", err)
	}
	h := &KTX2Header{
		VkFormat:         fields[0],
		TypeSize:         fields[1],
		Width:            fields[2],
		Height:           fields[3],
		Depth:            fields[4],
		Layers:           fields[5],
		Faces:            fields[6],
		Levels:           fields[7],
		Supercompression: fields[8],
	}
	if err := s.Seek(ktx2HeaderSize); err != nil {
		return nil, nil, fmt.Errorf("truncated KTX2 index: %w", err)
	}
	var lvl ktx2Level
	if lvl.offset, err = s.ReadUInt64(); err != nil {
		return nil, nil, fmt.Errorf("truncated KTX2 level index: %w", err)
	}
	if lvl.length, err = s.ReadUInt64(); err != nil {
		return nil, nil, fmt.Errorf("truncated KTX2 level index: %w", err)
	}
	if lvl.uncompressed, err = s.ReadUInt64(); err != nil {
		return nil, nil, fmt.Errorf("truncated KTX2 level index: %w", err)
	}
	if lvl.offset > uint64(s.Size()) || lvl.length > uint64(s.Size()) {
		return nil, nil, fmt.Errorf("KTX2 level 0 outside of %d bytes", s.Size())
	}
	level, err := s.ReadBytesAt(int(lvl.length), int64(lvl.offset))
	if err != nil {
		return nil, nil, fmt.Errorf("KTX2 level 0: %w", err)
	}
	return h, level, nil
}

func inflateLevel(scheme uint32, level []byte) ([]byte, error) {
	switch scheme {
	case supercompressionNone:
		return level, nil
	case supercompressionZstd:
		dec, err := zstd.NewReader(nil)
		if err != nil {
			return nil, err
		}
		defer dec.Close()
		return dec.DecodeAll(level, nil)
	case supercompressionZlib:
		r, err := zlib.NewReader(bytes.NewReader(level))
		if err != nil {
			return nil, err
		}
		defer func(r io.ReadCloser) {
			_ = r.Close()
		}(r)
		return io.ReadAll(r)
	}
	return nil, fmt.Errorf("%w: supercompression scheme %d", ErrUnsupportedKTX2, scheme)
}

// DecodeKTX2 decodes uncompressed RGBA8, BC1 and BC3 payloads in process.
// Anything else, including BasisLZ and UASTC, yields ErrUnsupportedKTX2.
func DecodeKTX2(data []byte) (image.Image, error) {
	h, level, err := ParseKTX2(data)
	if err != nil {
		return nil, err
	}
	if h.VkFormat == vkFormatUndefined || h.Supercompression == supercompressionBasisLZ {
		return nil, fmt.Errorf("%w: universal payload", ErrUnsupportedKTX2)
	}
	if h.Width == 0 || h.Height == 0 {
		return nil, fmt.Errorf("KTX2 with empty extent %dx%d", h.Width, h.Height)
	}
	if h.Width > maxKTX2Extent || h.Height > maxKTX2Extent {
		return nil, fmt.Errorf("KTX2 extent %dx%d exceeds %d", h.Width, h.Height, maxKTX2Extent)
	}
	pixels, err := inflateLevel(h.Supercompression, level)
	if err != nil {
		return nil, fmt.Errorf("failed to inflate KTX2 level 0: %w", err)
	}
	w, ht := int(h.Width), int(h.Height)

	switch h.VkFormat {
	case vkFormatR8G8B8A8Unorm, vkFormatR8G8B8A8Srgb:
		want := uint64(h.Width) * uint64(h.Height) * 4
		if uint64(len(pixels)) < want {
			return nil, fmt.Errorf("KTX2 RGBA level has %d bytes, want %d", len(pixels), want)
		}
		img := image.NewNRGBA(image.Rect(0, 0, w, ht))
		copy(img.Pix, pixels[:want])
		return img, nil
	case vkFormatBC1RGBUnorm, vkFormatBC1RGBSrgb, vkFormatBC1RGBAUnorm, vkFormatBC1RGBASrgb:
		return decodeBlocks(pixels, w, ht, 8, decodeDXT1)
	case vkFormatBC3Unorm, vkFormatBC3Srgb:
		return decodeBlocks(pixels, w, ht, 16, decodeDXT5)
	}
	return nil, fmt.Errorf("%w: vkFormat %d", ErrUnsupportedKTX2, h.VkFormat)
}

// maxKTX2Extent bounds each side of a decoded level.
const maxKTX2Extent = 16384

type blockDecoder func(data []byte, w, h int) ([]byte, error)

func decodeDXT1(data []byte, w, h int) ([]byte, error) { return dxt.Decode(data, w, h, dxt.DXT1) }
func decodeDXT5(data []byte, w, h int) ([]byte, error) { return dxt.Decode(data, w, h, dxt.DXT5) }

func decodeBlocks(pixels []byte, w, h, blockSize int, decode blockDecoder) (image.Image, error) {
	pw, ph := (w+3)/4*4, (h+3)/4*4
	want := (pw / 4) * (ph / 4) * blockSize
	if len(pixels) < want {
		return nil, fmt.Errorf("KTX2 block level has %d bytes, want %d", len(pixels), want)
	}
	rgba, err := decode(pixels[:want], pw, ph)
	if err != nil {
		return nil, fmt.Errorf("failed to decode block texture: %w", err)
	}
	if len(rgba) < pw*ph*4 {
		return nil, fmt.Errorf("block decoder returned %d bytes, want %d", len(rgba), pw*ph*4)
	}
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		copy(img.Pix[y*w*4:(y+1)*w*4], rgba[y*pw*4:y*pw*4+w*4])
	}
	return img, nil
}

package texture

import "bytes"

const (
	MimePNG   = "image/png"
	MimeJPEG  = "image/jpeg"
	MimeWebP  = "image/webp"
	MimeKTX2  = "image/ktx2"
	MimeBasis = "image/basis"
)

type Kind string

const (
	KindPNG     Kind = "png"
	KindJPEG    Kind = "jpeg"
	KindRIFF    Kind = "riff"
	KindKTX2    Kind = "ktx2"
	KindUnknown Kind = "bin"
)

var (
	pngMagic  = []byte{0x89, 0x50, 0x4e, 0x47}
	riffMagic = []byte{0x52, 0x49, 0x46, 0x46}
	// Only these four JPEG markers are recognised.
	jpegMagics = [][]byte{
		{0xff, 0xd8, 0xff, 0xdb},
		{0xff, 0xd8, 0xff, 0xe0},
		{0xff, 0xd8, 0xff, 0xee},
		{0xff, 0xd8, 0xff, 0xe1},
	}
	ktx2Identifier = []byte{0xab, 'K', 'T', 'X', ' ', '2', '0', 0xbb, '\r', '\n', 0x1a, '\n'}
)

// Sniff classifies a payload by its leading bytes.
func Sniff(data []byte) Kind {
	switch {
	case bytes.HasPrefix(data, pngMagic):
		return KindPNG
	case bytes.HasPrefix(data, riffMagic):
		return KindRIFF
	case bytes.HasPrefix(data, ktx2Identifier):
		return KindKTX2
	}
	for _, m := range jpegMagics {
		if bytes.HasPrefix(data, m) {
			return KindJPEG
		}
	}
	return KindUnknown
}

// Extension returns the file extension used when dumping a payload of mimeType.
func Extension(mimeType string) string {
	switch mimeType {
	case MimePNG:
		return "png"
	case MimeJPEG:
		return "jpg"
	case MimeWebP:
		return "webp"
	case MimeKTX2:
		return "ktx2"
	case MimeBasis:
		return "basis"
	}
	return "bin"
}

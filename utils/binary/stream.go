// Package binary reads fixed-layout little- or big-endian records from a byte slice.
package binary

import (
	"bytes"
	encbinary "encoding/binary"
	"fmt"
	"io"
)

type Stream struct {
	base   *bytes.Reader
	size   int64
	Endian encbinary.ByteOrder
}

func NewStream(data []byte, endian string) *Stream {
	s := &Stream{base: bytes.NewReader(data), size: int64(len(data))}
	if endian == "big" {
		s.Endian = encbinary.BigEndian
	} else {
		s.Endian = encbinary.LittleEndian
	}
	return s
}

func (s *Stream) Position() int64 {
	return s.size - int64(s.base.Len())
}

func (s *Stream) Size() int64 {
	return s.size
}

func (s *Stream) Seek(offset int64) error {
	if offset < 0 || offset > s.size {
		return fmt.Errorf("seek to %d outside of %d bytes", offset, s.size)
	}
	_, err := s.base.Seek(offset, io.SeekStart)
	return err
}

func (s *Stream) Skip(n int64) error {
	return s.Seek(s.Position() + n)
}

func (s *Stream) ReadBytes(length int) ([]byte, error) {
	if length < 0 || int64(length) > int64(s.base.Len()) {
		return nil, io.ErrUnexpectedEOF
	}
	buf := make([]byte, length)
	_, err := io.ReadFull(s.base, buf)
	return buf, err
}

// ReadBytesAt reads without moving the cursor.
func (s *Stream) ReadBytesAt(length int, offset int64) ([]byte, error) {
	if offset < 0 || length < 0 || offset+int64(length) > s.size {
		return nil, fmt.Errorf("range %d+%d outside of %d bytes", offset, length, s.size)
	}
	buf := make([]byte, length)
	_, err := s.base.ReadAt(buf, offset)
	return buf, err
}

func (s *Stream) ReadUInt32() (uint32, error) {
	buf, err := s.ReadBytes(4)
	if err != nil {
		return 0, err
	}
	return s.Endian.Uint32(buf), nil
}

func (s *Stream) ReadUInt64() (uint64, error) {
	buf, err := s.ReadBytes(8)
	if err != nil {
		return 0, err
	}
	return s.Endian.Uint64(buf), nil
}

// ReadUInt32s reads n consecutive values.
func (s *Stream) ReadUInt32s(n int) ([]uint32, error) {
	out := make([]uint32, n)
	for i := range out {
		v, err := s.ReadUInt32()
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

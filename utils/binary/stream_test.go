package binary

import "testing"

func TestStreamReads(t *testing.T) {
	data := []byte{1, 0, 0, 0, 2, 0, 0, 0, 0, 0, 0, 0, 0xaa, 0xbb}
	s := NewStream(data, "little")
	v, err := s.ReadUInt32()
	if err != nil || v != 1 {
		t.Fatalf("ReadUInt32() = %d, %v", v, err)
	}
	u, err := s.ReadUInt64()
	if err != nil || u != 2 {
		t.Fatalf("ReadUInt64() = %d, %v", u, err)
	}
	if s.Position() != 12 {
		t.Errorf("Position() = %d, want 12", s.Position())
	}
	tail, err := s.ReadBytesAt(2, 12)
	if err != nil || tail[0] != 0xaa || tail[1] != 0xbb {
		t.Errorf("ReadBytesAt() = %v, %v", tail, err)
	}
	if s.Position() != 12 {
		t.Error("ReadBytesAt() moved the cursor")
	}
	if _, err := s.ReadUInt32(); err == nil {
		t.Error("ReadUInt32() past the end should fail")
	}
	if _, err := s.ReadBytesAt(4, 12); err == nil {
		t.Error("ReadBytesAt() past the end should fail")
	}
}

func TestStreamBigEndian(t *testing.T) {
	s := NewStream([]byte{0, 0, 1, 0}, "big")
	v, err := s.ReadUInt32()
	if err != nil || v != 256 {
		t.Errorf("ReadUInt32() = %d, %v, want 256", v, err)
	}
}

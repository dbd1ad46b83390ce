package deobfuscator

import (
	"crypto/sha1"
	"encoding/binary"
	"fmt"
	"strings"
)

// SeedMap maps a timestamp key (decimal string) to its resolved seed.
type SeedMap map[string]int64

var seedMapStartingState = SeedMap{
	"1764841611": 29199,
	"66995809":   77365945,
}

const parameterizedRetrievalMarker = "s=op"

// StartingSeedMap returns a copy of the built-in starting table.
func StartingSeedMap() SeedMap {
	out := make(SeedMap, len(seedMapStartingState))
	for k, v := range seedMapStartingState {
		out[k] = v
	}
	return out
}

// Wrap32 applies two's-complement signed 32-bit overflow to v.
func Wrap32(v int64) int64 {
	return int64(int32(uint32(v)))
}

// ResolveSeeds derives the seed map for an asset. When retrievalURL carries the
// parameterized retrieval marker, the starting seeds are shifted by a hash of the
// retrieval path; otherwise by the numeric asset id.
func ResolveSeeds(assetID string, retrievalURL string) (SeedMap, error) {
	return resolveSeeds(seedMapStartingState, assetID, retrievalURL)
}

func resolveSeeds(start SeedMap, assetID string, retrievalURL string) (SeedMap, error) {
	out := make(SeedMap, len(start))
	if strings.Contains(retrievalURL, parameterizedRetrievalMarker) {
		h := int64(PathHash(retrievalPath(retrievalURL)))
		for k, base := range start {
			out[k] = Wrap32(base + h)
		}
		return out, nil
	}

	n, err := parseLeadingInt(assetID)
	if err != nil {
		return nil, err
	}
	for k, base := range start {
		out[k] = base + n
	}
	return out, nil
}

func retrievalPath(retrievalURL string) string {
	offset := 5
	if strings.Contains(retrievalURL, "/v1/") || strings.Contains(retrievalURL, "/v2/") {
		offset = 6
	}
	parts := strings.Split(retrievalURL, "/")
	if offset >= len(parts) {
		return ""
	}
	return strings.Join(parts[offset:], "/")
}

// PathHash returns the trailing four bytes of the SHA-1 digest of path as a
// little-endian signed integer.
func PathHash(path string) int32 {
	sum := sha1.Sum([]byte(path))
	return int32(binary.LittleEndian.Uint32(sum[len(sum)-4:]))
}

// parseLeadingInt accepts what a base-10 parseInt accepts: optional leading
// whitespace and sign, then at least one digit; trailing garbage is ignored.
func parseLeadingInt(s string) (int64, error) {
	s = strings.TrimLeft(s, " \t\r\n")
	neg := false
	if s != "" && (s[0] == '+' || s[0] == '-') {
		neg = s[0] == '-'
		s = s[1:]
	}
	var n int64
	digits := 0
	for _, c := range s {
		if c < '0' || c > '9' {
			break
		}
		n = n*10 + int64(c-'0')
		digits++
		if digits > 18 {
			return 0, fmt.Errorf("%w: %q is out of range", ErrInvalidAssetID, s)
		}
	}
	if digits == 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAssetID, s)
	}
	if neg {
		n = -n
	}
	return n, nil
}

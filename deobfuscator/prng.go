package deobfuscator

import "math"

const (
	defaultPRNGSeed = 0x5491333
	// ForcedLaneX is written into the x register before any sample is drawn.
	ForcedLaneX = 0x2567de00
)

// RandomGenerator is the four-register xorshift generator used by the legacy
// obfuscation versions. Sequences must match the upstream generator bit for bit.
type RandomGenerator struct {
	x, y, z, w uint32
}

func NewRandomGenerator(seed int64) *RandomGenerator {
	return &RandomGenerator{
		x: 0x75bcd15,
		y: 0x159a55e5,
		z: 0x1f123bb5,
		w: uint32(seed),
	}
}

func NewDefaultRandomGenerator() *RandomGenerator {
	return NewRandomGenerator(defaultPRNGSeed)
}

// NewLaneRandomGenerator returns a generator for seed with x forced to ForcedLaneX.
func NewLaneRandomGenerator(seed int64) *RandomGenerator {
	g := NewRandomGenerator(seed)
	g.ReplaceX(ForcedLaneX)
	return g
}

func (g *RandomGenerator) ReplaceX(x uint32) {
	g.x = x
}

// Step advances the state and returns the new w register as a signed 32-bit value.
func (g *RandomGenerator) Step() int32 {
	t := g.x ^ (g.x << 11)
	g.x = g.y
	g.y = g.z
	g.z = g.w
	g.w = g.w ^ (g.w >> 19) ^ (t ^ (t >> 8))
	return int32(g.w)
}

// Next returns |step| / 2^31. Note that a step of math.MinInt32 yields exactly 1.
func (g *RandomGenerator) Next() float64 {
	v := int64(g.Step())
	if v < 0 {
		v = -v
	}
	return float64(v) / 0x80000000
}

func (g *RandomGenerator) NextInRange(n int) int {
	return int(math.Floor(float64(n)*g.Next())) % n
}

package deobfuscator

import "testing"

func TestDefaultGeneratorSteps(t *testing.T) {
	want := []int32{-593279510, 458299110, -1794094678, -661847888, 516391518, -1917697722}
	g := NewDefaultRandomGenerator()
	for i, w := range want {
		if got := g.Step(); got != w {
			t.Fatalf("step %d = %d, want %d", i, got, w)
		}
	}
}

func TestLaneGenerator(t *testing.T) {
	g := NewLaneRandomGenerator(29204)
	for i, w := range []int32{462175178, -595693533, 1379874698, 1370259211} {
		if got := g.Step(); got != w {
			t.Fatalf("step %d = %d, want %d", i, got, w)
		}
	}

	for _, tt := range []struct {
		seed int64
		want []int
	}{
		{29204, []int{55, 71, 164, 163, 87, 8, 161, 197}},
		{-123456789, []int{57, 73, 170, 230, 88, 76, 175, 165}},
	} {
		g := NewLaneRandomGenerator(tt.seed)
		for i, w := range tt.want {
			if got := g.NextInRange(256); got != w {
				t.Errorf("seed %d sample %d = %d, want %d", tt.seed, i, got, w)
			}
		}
	}
}

func TestNextBounds(t *testing.T) {
	g := NewLaneRandomGenerator(77365950)
	for i := 0; i < 10000; i++ {
		if v := g.Next(); v < 0 || v > 1 {
			t.Fatalf("Next() = %v outside [0, 1]", v)
		}
		if v := g.NextInRange(7); v < 0 || v >= 7 {
			t.Fatalf("NextInRange(7) = %d", v)
		}
	}
}

func TestNextOfMinInt32(t *testing.T) {
	// x ^ (x << 11) = 0x80808080 and w = 0 make the next step math.MinInt32.
	g := &RandomGenerator{x: 0xa4848080}
	if v := g.Next(); v != 1 {
		t.Errorf("Next() = %v, want 1", v)
	}
	g = &RandomGenerator{x: 0xa4848080}
	if v := g.NextInRange(256); v != 0 {
		t.Errorf("NextInRange(256) = %d, want 0", v)
	}
}

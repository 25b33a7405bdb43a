package resample

import (
	"math"
	"testing"
)

func near(a, b float32) bool {
	return math.Abs(float64(a-b)) < 1e-5
}

func TestRatioClamp(t *testing.T) {
	tests := []struct {
		in, out int
		want    float64
	}{
		{100, 100, 1},
		{100, 200, 2},
		{1, 1000, MaxRatio},
		{1000, 1, MinRatio},
		{0, 10, 1},
	}
	for _, tt := range tests {
		if got := Ratio(tt.in, tt.out); got != tt.want {
			t.Errorf("Ratio(%d, %d) = %v, want %v", tt.in, tt.out, got, tt.want)
		}
	}
}

func TestIdentity(t *testing.T) {
	in := []float32{0.1, -0.2, 0.3, -0.4, 0.5, -0.6}
	out := Resample(in, 2, 3, 3)
	for i := range in {
		if !near(out[i], in[i]) {
			t.Fatalf("out %v, want %v", out, in)
		}
	}
}

func TestUpsampleInterpolates(t *testing.T) {
	out := Resample([]float32{0, 2, 4}, 1, 3, 6)
	want := []float32{0, 1, 2, 3, 4, 4}
	for i := range want {
		if !near(out[i], want[i]) {
			t.Fatalf("out %v, want %v", out, want)
		}
	}
}

func TestStereoChannelsStaySeparate(t *testing.T) {
	// left ramps up, right is constant
	in := []float32{0, 1, 2, 1, 4, 1}
	out := Resample(in, 2, 3, 6)
	for i := 0; i < 6; i++ {
		if !near(out[i*2+1], 1) {
			t.Errorf("right channel frame %d = %v", i, out[i*2+1])
		}
	}
	if !near(out[2], 1) {
		t.Errorf("left frame 1 = %v, want 1", out[2])
	}
}

func TestShortfallRepeatsLastFrame(t *testing.T) {
	out := make([]float32, 200)
	produced := Into(out, []float32{1, 3}, 1, 2, 200)
	if produced != 128 {
		t.Fatalf("produced %d frames, want 128 at the maximum ratio", produced)
	}
	for i := produced; i < len(out); i++ {
		if out[i] != out[produced-1] {
			t.Fatalf("frame %d = %v, want repeated %v", i, out[i], out[produced-1])
		}
	}
	if !near(out[produced-1], 3) {
		t.Errorf("last frame %v, want 3", out[produced-1])
	}
}

func TestDownsampleClamped(t *testing.T) {
	in := make([]float32, 100)
	for i := range in {
		in[i] = float32(i)
	}
	out := Resample(in, 1, 100, 1)
	if len(out) != 1 || out[0] != 0 {
		t.Errorf("out %v", out)
	}
}

func TestEmptyInputIsSilence(t *testing.T) {
	out := Resample(nil, 2, 0, 4)
	if len(out) != 8 {
		t.Fatalf("len %d", len(out))
	}
	for _, v := range out {
		if v != 0 {
			t.Fatalf("out %v, want silence", out)
		}
	}
}

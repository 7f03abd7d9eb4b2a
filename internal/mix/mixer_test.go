package mix

import (
	"math"
	"testing"
)

func TestDownmixMonoAverages(t *testing.T) {
	stereo := []float32{1, 0, 0.5, 0.5, -1, 1}
	mono := DownmixMono(stereo, 3, 2)
	want := []float32{0.5, 0.5, 0}
	for i := range want {
		if mono[i] != want[i] {
			t.Fatalf("mono[%d] = %v, want %v", i, mono[i], want[i])
		}
	}
}

func TestDownmixMonoPassthrough(t *testing.T) {
	in := []float32{0.1, 0.2, 0.3}
	out := DownmixMono(in, 3, 1)
	if &out[0] != &in[0] {
		t.Fatal("mono input should not be copied")
	}
}

func TestInterleaveStereo(t *testing.T) {
	left := []float32{1, 2, 3}
	right := []float32{-1, -2, -3}
	out := InterleaveStereo(left, right, 3)
	want := []float32{1, -1, 2, -2, 3, -3}
	if len(out) != len(want) {
		t.Fatalf("len = %d, want %d", len(out), len(want))
	}
	for i := range want {
		if out[i] != want[i] {
			t.Fatalf("out[%d] = %v, want %v", i, out[i], want[i])
		}
	}
}

func TestRMS(t *testing.T) {
	if got := RMS(nil); got != 0 {
		t.Fatalf("RMS(nil) = %v", got)
	}

	sine := make([]float32, 48000)
	for i := range sine {
		sine[i] = float32(math.Sin(2 * math.Pi * 1000 * float64(i) / 48000))
	}
	got := RMS(sine)
	if math.Abs(got-1/math.Sqrt2) > 0.001 {
		t.Fatalf("RMS(sine) = %v, want ~0.707", got)
	}
}

func TestSilence(t *testing.T) {
	s := Silence(10, 2)
	if len(s) != 20 {
		t.Fatalf("len = %d, want 20", len(s))
	}
	for i, v := range s {
		if v != 0 {
			t.Fatalf("s[%d] = %v, want 0", i, v)
		}
	}
}

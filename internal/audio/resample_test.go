package audio

import "testing"

func TestResampleLinearLength(t *testing.T) {
	in := []float32{0, 1, 2, 3}
	out := resampleLinear(in, 16000, 8000)
	if len(out) != 2 {
		t.Fatalf("downsample length got %d", len(out))
	}
	out = resampleLinear(in, 8000, 16000)
	if len(out) != 8 {
		t.Fatalf("upsample length got %d", len(out))
	}
}

func TestResampleLinearEnds(t *testing.T) {
	in := []float32{0, 10}
	out := resampleLinear(in, 1000, 2000)
	if out[0] != 0 || out[len(out)-1] != 10 {
		t.Fatalf("endpoints not preserved: %v", out)
	}
}

func TestResampleFrame48kTo16k(t *testing.T) {
	in := make([]int16, 960)
	for i := range in {
		in[i] = 1000
	}
	out := Resample(in, 48000, 16000)
	if len(out) != 320 {
		t.Fatalf("frame length got %d want 320", len(out))
	}
	for i, s := range out {
		if s < 999 || s > 1000 {
			t.Fatalf("sample %d = %d", i, s)
		}
	}
}

func TestFloatConversionClamps(t *testing.T) {
	out := FromFloat32([]float32{2, -2, 0})
	if out[0] != 32767 || out[1] != -32768 || out[2] != 0 {
		t.Fatalf("unexpected clamp: %v", out)
	}
}

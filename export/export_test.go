package export

import (
	"bytes"
	"math"
	"testing"

	"go-looper/midi"
)

func TestWAVRoundTrip(t *testing.T) {
	in := Audio{Channels: 2, SampleRate: 44100}
	for i := 0; i < 500; i++ {
		v := float32(math.Sin(float64(i) / 10))
		in.Samples = append(in.Samples, v, -v/2)
	}

	var buf bytes.Buffer
	if err := WriteWAV(&buf, in); err != nil {
		t.Fatal(err)
	}
	out, err := ReadWAV(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatal(err)
	}
	if out.Channels != 2 || out.SampleRate != 44100 {
		t.Fatalf("format %d ch %d Hz", out.Channels, out.SampleRate)
	}
	if len(out.Samples) != len(in.Samples) {
		t.Fatalf("read %d samples, wrote %d", len(out.Samples), len(in.Samples))
	}
	for i := range in.Samples {
		if d := math.Abs(float64(out.Samples[i] - in.Samples[i])); d > 1e-3 {
			t.Fatalf("sample %d: %v vs %v", i, out.Samples[i], in.Samples[i])
		}
	}
}

func TestWAVClipsOutOfRange(t *testing.T) {
	if toPCM(2) != math.MaxInt16 || toPCM(-2) != -math.MaxInt16 {
		t.Errorf("toPCM did not clip: %d %d", toPCM(2), toPCM(-2))
	}
}

func TestWAVRejectsManyChannels(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteWAV(&buf, Audio{Channels: 3, SampleRate: 48000}); err == nil {
		t.Error("expected an error for 3 channels")
	}
}

func TestInterleave(t *testing.T) {
	a := Interleave([][]float32{{1, 2, 3}, {4, 5, 6}}, 48000)
	want := []float32{1, 4, 2, 5, 3, 6}
	for i := range want {
		if a.Samples[i] != want[i] {
			t.Fatalf("Interleave = %v", a.Samples)
		}
	}
	back := Deinterleave(a)
	if len(back) != 2 || back[1][2] != 6 {
		t.Errorf("Deinterleave = %v", back)
	}
}

func TestSMFRoundTrip(t *testing.T) {
	const rate = 48000
	in := []midi.Message{
		midi.NewMessage(0, []byte{0x90, 60, 100}),
		midi.NewMessage(0, []byte{0xB0, 7, 90}),
		midi.NewMessage(12000, []byte{0x80, 60, 0}),
		midi.NewMessage(24000, []byte{0x91, 64, 80}),
		midi.NewMessage(36000, []byte{0x81, 64, 0}),
	}

	var buf bytes.Buffer
	if err := WriteSMF(&buf, in, rate, 0); err != nil {
		t.Fatal(err)
	}
	out, err := ReadSMF(&buf, rate)
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != len(in) {
		t.Fatalf("read %d messages: %v", len(out), out)
	}
	for i := range in {
		if out[i].Time != in[i].Time || !bytes.Equal(out[i].Data, in[i].Data) {
			t.Errorf("message %d: %v, want %v", i, out[i], in[i])
		}
	}
}

func TestSMFRejectsBadRate(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteSMF(&buf, nil, 0, 120); err == nil {
		t.Error("expected an error for sample rate 0")
	}
}

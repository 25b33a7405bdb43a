// Package resample converts interleaved float32 audio between frame counts
// by linear interpolation.
package resample

const (
	MinRatio = 1.0 / 16
	MaxRatio = 64.0
)

// Ratio returns the conversion ratio for turning inFrames into outFrames,
// clamped to [MinRatio, MaxRatio].
func Ratio(inFrames, outFrames int) float64 {
	if inFrames <= 0 {
		return 1
	}
	r := float64(outFrames) / float64(inFrames)
	return min(max(r, MinRatio), MaxRatio)
}

// Resample converts inFrames interleaved frames of in to outFrames frames.
// If the clamped ratio cannot produce outFrames, the last produced frame
// is repeated to fill the rest (silence if nothing was produced).
func Resample(in []float32, channels, inFrames, outFrames int) []float32 {
	if channels <= 0 || outFrames <= 0 {
		return nil
	}
	out := make([]float32, outFrames*channels)
	Into(out, in, channels, inFrames, outFrames)
	return out
}

// Into is Resample writing into out, which must hold outFrames*channels
// samples. It returns the number of frames interpolated rather than
// repeated.
func Into(out, in []float32, channels, inFrames, outFrames int) int {
	if channels <= 0 || outFrames <= 0 {
		return 0
	}
	inFrames = min(inFrames, len(in)/channels)
	if inFrames <= 0 {
		clear(out[:outFrames*channels])
		return 0
	}

	ratio := Ratio(inFrames, outFrames)
	produced := min(int(float64(inFrames)*ratio), outFrames)
	if produced < 1 {
		produced = 1
	}

	step := 1 / ratio
	for i := 0; i < produced; i++ {
		pos := float64(i) * step
		j := int(pos)
		frac := float32(pos - float64(j))
		if j >= inFrames-1 {
			j, frac = inFrames-1, 0
		}
		next := min(j+1, inFrames-1)
		for c := 0; c < channels; c++ {
			y0 := in[j*channels+c]
			y1 := in[next*channels+c]
			out[i*channels+c] = linear(y0, y1, frac)
		}
	}

	last := out[(produced-1)*channels : produced*channels]
	for i := produced; i < outFrames; i++ {
		copy(out[i*channels:(i+1)*channels], last)
	}
	return produced
}

func linear(y0, y1, frac float32) float32 {
	return y0 + (y1-y0)*frac
}

package audio

// Resampler converts interleaved float32 audio from one sample rate to
// another using linear interpolation. It carries the last input frame of
// each call so that successive calls produce the same output as one call
// over the concatenated input.
type Resampler struct {
	channels int
	ratio    float64 // input frames consumed per output frame
	cursor   float64 // position into [last, input...] of the next output
	last     []float32
	hasLast  bool
	passthru bool
}

// NewResampler returns a resampler from inRate to outRate. When the rates
// are equal the input is passed through untouched.
func NewResampler(inRate, outRate, channels int) *Resampler {
	return &Resampler{
		channels: channels,
		ratio:    float64(inRate) / float64(outRate),
		last:     make([]float32, channels),
		passthru: inRate == outRate,
	}
}

// Process resamples frames of interleaved input and returns the converted
// frames. The returned slice is freshly allocated except in the
// pass-through case, where the input is returned as-is.
func (r *Resampler) Process(in []float32, frames int) []float32 {
	if frames <= 0 {
		return nil
	}
	if r.passthru {
		return in[:frames*r.channels]
	}

	// Work over the virtual sequence src = [last, in...] so interpolation
	// can straddle the call boundary.
	var src []float32
	if r.hasLast {
		src = make([]float32, 0, (frames+1)*r.channels)
		src = append(src, r.last...)
		src = append(src, in[:frames*r.channels]...)
	} else {
		src = in[:frames*r.channels]
		r.hasLast = true
	}
	n := len(src) / r.channels

	out := make([]float32, 0, (int(float64(n)/r.ratio)+2)*r.channels)
	pos := r.cursor
	for int(pos)+1 < n {
		i := int(pos)
		frac := float32(pos - float64(i))
		a := src[i*r.channels : (i+1)*r.channels]
		b := src[(i+1)*r.channels : (i+2)*r.channels]
		for c := 0; c < r.channels; c++ {
			out = append(out, a[c]+(b[c]-a[c])*frac)
		}
		pos += r.ratio
	}

	// Keep the final input frame; the cursor becomes relative to it.
	copy(r.last, src[(n-1)*r.channels:])
	r.cursor = pos - float64(n-1)

	return out
}

// Reset clears the carried state so the next Process call starts fresh.
func (r *Resampler) Reset() {
	r.cursor = 0
	r.hasLast = false
}

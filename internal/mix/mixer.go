// Package mix implements the sample-domain operations applied between
// capture and file output: channel downmix, stereo interleave, and level
// metering.
package mix

import "math"

// DownmixMono averages the channels of interleaved input into mono. Input
// that is already mono is returned as-is.
func DownmixMono(samples []float32, frames, channels int) []float32 {
	if channels == 1 {
		return samples[:frames]
	}
	out := make([]float32, frames)
	for i := 0; i < frames; i++ {
		var sum float32
		for c := 0; c < channels; c++ {
			sum += samples[i*channels+c]
		}
		out[i] = sum / float32(channels)
	}
	return out
}

// InterleaveStereo merges two mono signals into interleaved stereo with
// left in channel 0 and right in channel 1. Both inputs must hold at
// least frames samples.
func InterleaveStereo(left, right []float32, frames int) []float32 {
	out := make([]float32, frames*2)
	for i := 0; i < frames; i++ {
		out[2*i] = left[i]
		out[2*i+1] = right[i]
	}
	return out
}

// RMS returns the root mean square level of the samples, 0 for an empty
// slice. Full-scale sine input yields about 0.707.
func RMS(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// Silence returns frames*channels zero samples.
func Silence(frames, channels int) []float32 {
	return make([]float32, frames*channels)
}

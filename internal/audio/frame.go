// Package audio implements live capture from loopback and microphone
// endpoints, per-source buffering, and sample-rate conversion.
package audio

import "time"

// DeviceKind selects which kind of endpoint a source captures from.
type DeviceKind string

const (
	// DeviceKindLoopback captures the mix that would be sent to an
	// output device (what the system is playing).
	DeviceKindLoopback DeviceKind = "loopback"

	// DeviceKindMicrophone captures a physical input endpoint.
	DeviceKindMicrophone DeviceKind = "microphone"
)

// Format describes a negotiated capture format. The endpoint decides the
// actual values; they may differ from what was requested.
type Format struct {
	SampleRate int
	Channels   int
}

// FrameBlock is a batch of interleaved float32 samples read from a capture
// source, tagged with the capture time of its first frame. Immutable after
// creation.
type FrameBlock struct {
	Samples    []float32
	Frames     int
	Channels   int
	SampleRate int
	Timestamp  time.Time
}

// Duration returns the play time covered by the block.
func (b FrameBlock) Duration() time.Duration {
	if b.SampleRate <= 0 {
		return 0
	}
	return time.Duration(b.Frames) * time.Second / time.Duration(b.SampleRate)
}

// Device describes one enumerable audio endpoint.
type Device struct {
	ID        string `json:"id" yaml:"id"`
	Name      string `json:"name" yaml:"name"`
	IsDefault bool   `json:"is_default" yaml:"is_default"`
}

// Devices groups the endpoints available for each capture kind.
type Devices struct {
	Loopback   []Device `json:"loopback" yaml:"loopback"`
	Microphone []Device `json:"microphone" yaml:"microphone"`
}

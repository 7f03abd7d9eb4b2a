package audio

import "time"

// dataFunc receives interleaved float32 samples from a capture endpoint.
// ts is the arrival time of the first frame. The callback runs on the
// backend's audio thread and must not block.
type dataFunc func(samples []float32, frames int, ts time.Time)

// captureEndpoint is one opened capture stream.
type captureEndpoint interface {
	start() error
	stop() error
	uninit()
}

// endpointContext abstracts the platform audio backend so the capture
// layer can be exercised without hardware.
type endpointContext interface {
	// openEndpoint opens a capture stream on the given device. An empty
	// deviceID selects the system default for the kind. The returned
	// Format is the rate and channel count the device actually delivers,
	// which may differ from the requested one.
	openEndpoint(kind DeviceKind, deviceID string, requested Format, cb dataFunc) (captureEndpoint, Format, error)

	// listDevices enumerates the devices usable for each kind.
	listDevices() (Devices, error)

	close() error
}

// newEndpointContext is set by the active backend's init function.
var newEndpointContext func() (endpointContext, error)

//go:build !cgo || noaudio

package audio

import "fmt"

func init() {
	newEndpointContext = newNullEndpointContext
}

// nullEndpointContext stands in when the build has no audio backend. Every
// open attempt fails with ErrDeviceUnavailable so callers surface a clear
// error instead of crashing.
type nullEndpointContext struct{}

func newNullEndpointContext() (endpointContext, error) {
	return nullEndpointContext{}, nil
}

func (nullEndpointContext) openEndpoint(kind DeviceKind, deviceID string, requested Format, cb dataFunc) (captureEndpoint, Format, error) {
	return nil, Format{}, fmt.Errorf("%w: built without audio backend", ErrDeviceUnavailable)
}

func (nullEndpointContext) listDevices() (Devices, error) {
	return Devices{}, nil
}

func (nullEndpointContext) close() error { return nil }

package audio

import (
	"errors"
	"testing"
	"time"
)

// fakeEndpointContext drives a CaptureSource without hardware. The test
// pushes frames through the captured callback.
type fakeEndpointContext struct {
	openErr    error
	negotiated Format
	devices    Devices

	endpoint *fakeEndpoint
	closed   bool
}

type fakeEndpoint struct {
	cb       dataFunc
	started  bool
	stopped  bool
	uninited bool
}

func (f *fakeEndpointContext) openEndpoint(kind DeviceKind, deviceID string, requested Format, cb dataFunc) (captureEndpoint, Format, error) {
	if f.openErr != nil {
		return nil, Format{}, f.openErr
	}
	negotiated := f.negotiated
	if negotiated == (Format{}) {
		negotiated = requested
	}
	f.endpoint = &fakeEndpoint{cb: cb}
	return f.endpoint, negotiated, nil
}

func (f *fakeEndpointContext) listDevices() (Devices, error) { return f.devices, nil }

func (f *fakeEndpointContext) close() error {
	f.closed = true
	return nil
}

func (e *fakeEndpoint) start() error { e.started = true; return nil }
func (e *fakeEndpoint) stop() error  { e.stopped = true; return nil }
func (e *fakeEndpoint) uninit()      { e.uninited = true }

// withFakeEndpoint swaps the backend for the duration of the test.
func withFakeEndpoint(t *testing.T, fake *fakeEndpointContext) {
	t.Helper()
	prev := newEndpointContext
	newEndpointContext = func() (endpointContext, error) { return fake, nil }
	t.Cleanup(func() { newEndpointContext = prev })
}

func newTestSource(t *testing.T, fake *fakeEndpointContext, warn WarnFunc) *CaptureSource {
	t.Helper()
	withFakeEndpoint(t, fake)
	return NewCaptureSource(SourceConfig{
		Kind:           DeviceKindMicrophone,
		SampleRate:     48000,
		Channels:       1,
		BufferDuration: 100 * time.Millisecond,
		OnWarn:         warn,
	})
}

func TestCaptureSourceLifecycle(t *testing.T) {
	fake := &fakeEndpointContext{}
	src := newTestSource(t, fake, nil)

	if src.State() != SourceUninitialized {
		t.Fatalf("state = %s, want UNINITIALIZED", src.State())
	}
	if err := src.Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if src.State() != SourceInitialized {
		t.Fatalf("state = %s, want INITIALIZED", src.State())
	}
	if err := src.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !fake.endpoint.started {
		t.Fatal("endpoint was not started")
	}
	if err := src.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if !fake.endpoint.stopped {
		t.Fatal("endpoint was not stopped")
	}
	if err := src.Cleanup(); err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if !fake.endpoint.uninited || !fake.closed {
		t.Fatal("endpoint or context was not released")
	}
}

func TestCaptureSourceStopIdempotent(t *testing.T) {
	fake := &fakeEndpointContext{}
	src := newTestSource(t, fake, nil)
	if err := src.Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if err := src.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	for i := 0; i < 3; i++ {
		if err := src.Stop(); err != nil {
			t.Fatalf("Stop #%d: %v", i+1, err)
		}
	}
	if src.State() != SourceStopped {
		t.Fatalf("state = %s, want STOPPED", src.State())
	}
}

func TestCaptureSourceInvalidTransitions(t *testing.T) {
	fake := &fakeEndpointContext{}
	src := newTestSource(t, fake, nil)

	if err := src.Start(); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("Start before Initialize: %v, want ErrInvalidState", err)
	}
	if _, err := src.ReadFrames(64); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("ReadFrames before Start: %v, want ErrInvalidState", err)
	}

	if err := src.Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if err := src.Initialize(); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("double Initialize: %v, want ErrInvalidState", err)
	}
}

func TestCaptureSourceInitializeDeviceFailure(t *testing.T) {
	fake := &fakeEndpointContext{openErr: ErrDeviceUnavailable}
	src := newTestSource(t, fake, nil)

	err := src.Initialize()
	if !errors.Is(err, ErrDeviceUnavailable) {
		t.Fatalf("Initialize: %v, want ErrDeviceUnavailable", err)
	}
	if src.State() != SourceFailed {
		t.Fatalf("state = %s, want FAILED", src.State())
	}
	if !fake.closed {
		t.Fatal("context leaked after failed open")
	}
	if src.LastError() == nil {
		t.Fatal("LastError not recorded")
	}
}

func TestCaptureSourceReadFrames(t *testing.T) {
	fake := &fakeEndpointContext{}
	src := newTestSource(t, fake, nil)
	if err := src.Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if err := src.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	t0 := time.Unix(50, 0)
	fake.endpoint.cb(monoFrames(0, 480), 480, t0)

	if got := src.AvailableFrames(); got != 480 {
		t.Fatalf("AvailableFrames = %d, want 480", got)
	}

	block, err := src.ReadFrames(480)
	if err != nil {
		t.Fatalf("ReadFrames: %v", err)
	}
	if block.Frames != 480 {
		t.Fatalf("Frames = %d, want 480", block.Frames)
	}
	if !block.Timestamp.Equal(t0) {
		t.Fatalf("Timestamp = %v, want %v", block.Timestamp, t0)
	}
	if block.SampleRate != 48000 || block.Channels != 1 {
		t.Fatalf("format = %d Hz %d ch", block.SampleRate, block.Channels)
	}
}

func TestCaptureSourceOverrunWarning(t *testing.T) {
	var warnings []error
	fake := &fakeEndpointContext{}
	src := newTestSource(t, fake, func(err error) { warnings = append(warnings, err) })
	if err := src.Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if err := src.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	// Ring holds 100 ms = 4800 frames; push 2 s without draining.
	for i := 0; i < 200; i++ {
		fake.endpoint.cb(monoFrames(0, 480), 480, time.Unix(0, 0))
	}

	if _, err := src.ReadFrames(480); err != nil {
		t.Fatalf("ReadFrames: %v", err)
	}
	if len(warnings) != 1 {
		t.Fatalf("got %d warnings, want 1", len(warnings))
	}
	if !errors.Is(warnings[0], ErrBufferOverrun) {
		t.Fatalf("warning = %v, want ErrBufferOverrun", warnings[0])
	}

	// Capture keeps running after an overrun.
	if src.State() != SourceCapturing {
		t.Fatalf("state = %s, want CAPTURING", src.State())
	}
}

func TestCaptureSourceNegotiatedFormat(t *testing.T) {
	fake := &fakeEndpointContext{negotiated: Format{SampleRate: 44100, Channels: 2}}
	src := newTestSource(t, fake, nil)
	if err := src.Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if got := src.Format(); got.SampleRate != 44100 || got.Channels != 2 {
		t.Fatalf("Format = %+v, want 44100 Hz stereo", got)
	}
}

package audio

import (
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// SourceState tracks a capture source through its lifecycle.
type SourceState string

const (
	SourceUninitialized SourceState = "UNINITIALIZED"
	SourceInitialized   SourceState = "INITIALIZED"
	SourceCapturing     SourceState = "CAPTURING"
	SourceStopped       SourceState = "STOPPED"
	SourceFailed        SourceState = "FAILED"
)

// WarnFunc receives non-fatal capture warnings, such as buffer overruns.
// It is called from the polling goroutine that reads frames, never from
// the audio callback.
type WarnFunc func(err error)

// SourceConfig configures one capture source.
type SourceConfig struct {
	Kind     DeviceKind
	DeviceID string // empty selects the system default

	// Requested format. The device may negotiate something different;
	// the actual format is available from Format() after Initialize.
	SampleRate int
	Channels   int

	// BufferDuration sizes the internal ring. Frames older than this are
	// overwritten if the consumer falls behind.
	BufferDuration time.Duration

	OnWarn WarnFunc
}

// CaptureSource owns one capture endpoint and buffers its frames until the
// consumer drains them with ReadFrames. The endpoint callback writes into
// a ring that overwrites its oldest frames when full, so a slow consumer
// loses old audio instead of blocking the device.
type CaptureSource struct {
	cfg SourceConfig

	mutex    sync.Mutex
	state    SourceState
	ctx      endpointContext
	endpoint captureEndpoint
	format   Format
	ring     *frameRing
	overruns uint64
	lastErr  error
}

// NewCaptureSource returns a source in the uninitialized state.
func NewCaptureSource(cfg SourceConfig) *CaptureSource {
	return &CaptureSource{cfg: cfg, state: SourceUninitialized}
}

// Initialize opens the endpoint and negotiates the capture format. The
// source must be uninitialized; after Stop, Cleanup returns it there.
func (s *CaptureSource) Initialize() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.state != SourceUninitialized {
		return fmt.Errorf("%w: cannot initialize %s source in state %s", ErrInvalidState, s.cfg.Kind, s.state)
	}

	ctx, err := newEndpointContext()
	if err != nil {
		s.fail(err)
		return err
	}

	requested := Format{SampleRate: s.cfg.SampleRate, Channels: s.cfg.Channels}
	endpoint, negotiated, err := ctx.openEndpoint(s.cfg.Kind, s.cfg.DeviceID, requested, s.onData)
	if err != nil {
		ctx.close()
		s.fail(err)
		return err
	}

	bufDur := s.cfg.BufferDuration
	if bufDur <= 0 {
		bufDur = 100 * time.Millisecond
	}
	capFrames := int(time.Duration(negotiated.SampleRate) * bufDur / time.Second)
	if capFrames < 1 {
		capFrames = 1
	}

	s.ctx = ctx
	s.endpoint = endpoint
	s.format = negotiated
	s.ring = newFrameRing(capFrames, negotiated.Channels, negotiated.SampleRate)
	s.state = SourceInitialized

	slog.Debug("capture source initialized",
		"kind", s.cfg.Kind,
		"sample_rate", negotiated.SampleRate,
		"channels", negotiated.Channels,
		"buffer_frames", capFrames)
	return nil
}

// onData is the endpoint callback. It must not block.
func (s *CaptureSource) onData(samples []float32, frames int, ts time.Time) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.state != SourceCapturing {
		return
	}
	if over := s.ring.write(samples, frames, ts); over > 0 {
		s.overruns += uint64(over)
	}
}

// Start begins delivering frames into the buffer.
func (s *CaptureSource) Start() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.state != SourceInitialized {
		return fmt.Errorf("%w: cannot start %s source in state %s", ErrInvalidState, s.cfg.Kind, s.state)
	}

	s.state = SourceCapturing
	if err := s.endpoint.start(); err != nil {
		s.fail(err)
		return err
	}

	slog.Info("capture started", "kind", s.cfg.Kind)
	return nil
}

// Format returns the negotiated capture format. Only valid once the source
// has been initialized.
func (s *CaptureSource) Format() Format {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.format
}

// State returns the current lifecycle state.
func (s *CaptureSource) State() SourceState {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.state
}

// AvailableFrames returns the number of buffered frames without blocking.
func (s *CaptureSource) AvailableFrames() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.ring == nil {
		return 0
	}
	return s.ring.available()
}

// ReadFrames drains up to maxFrames buffered frames. A short or empty
// block is normal when the device has not delivered yet. Overruns that
// happened since the last read are reported through OnWarn.
func (s *CaptureSource) ReadFrames(maxFrames int) (FrameBlock, error) {
	s.mutex.Lock()
	if s.state != SourceCapturing {
		state := s.state
		s.mutex.Unlock()
		return FrameBlock{}, fmt.Errorf("%w: cannot read from %s source in state %s", ErrInvalidState, s.cfg.Kind, state)
	}

	dst := make([]float32, maxFrames*s.format.Channels)
	frames, ts := s.ring.read(dst, maxFrames)

	var overruns uint64
	if s.overruns > 0 {
		overruns = s.overruns
		s.overruns = 0
	}
	format := s.format
	warn := s.cfg.OnWarn
	s.mutex.Unlock()

	if overruns > 0 {
		slog.Warn("capture buffer overrun", "kind", s.cfg.Kind, "dropped_frames", overruns)
		if warn != nil {
			warn(fmt.Errorf("%w: %s dropped %d frames", ErrBufferOverrun, s.cfg.Kind, overruns))
		}
	}

	return FrameBlock{
		Samples:    dst[:frames*format.Channels],
		Frames:     frames,
		Channels:   format.Channels,
		SampleRate: format.SampleRate,
		Timestamp:  ts,
	}, nil
}

// Stop halts capture. Calling Stop on an already stopped source is a no-op.
func (s *CaptureSource) Stop() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	switch s.state {
	case SourceStopped, SourceUninitialized:
		return nil
	case SourceFailed:
		// Failed sources still release the endpoint.
	case SourceCapturing, SourceInitialized:
	default:
		return fmt.Errorf("%w: cannot stop %s source in state %s", ErrInvalidState, s.cfg.Kind, s.state)
	}

	var stopErr error
	if s.endpoint != nil && s.state == SourceCapturing {
		stopErr = s.endpoint.stop()
	}
	if s.state != SourceFailed {
		s.state = SourceStopped
	}

	slog.Info("capture stopped", "kind", s.cfg.Kind)
	return stopErr
}

// Cleanup releases the endpoint and backend context. The source returns to
// the uninitialized state and may be initialized again.
func (s *CaptureSource) Cleanup() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.endpoint != nil {
		s.endpoint.uninit()
		s.endpoint = nil
	}
	var err error
	if s.ctx != nil {
		err = s.ctx.close()
		s.ctx = nil
	}
	s.ring = nil
	s.state = SourceUninitialized
	return err
}

// LastError returns the error that moved the source into the failed state.
func (s *CaptureSource) LastError() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.lastErr
}

// fail records a fatal error. Caller must hold the mutex.
func (s *CaptureSource) fail(err error) {
	s.state = SourceFailed
	s.lastErr = err
	slog.Error("capture source failed", "kind", s.cfg.Kind, "error", err)
}

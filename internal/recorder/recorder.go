// Package recorder coordinates the two capture sources, aligns their
// streams onto a common clock, and feeds the output file. The loopback
// and microphone sources run at whatever rates their devices negotiated;
// the recorder resamples both to the configured target rate and emits
// fixed-size stereo blocks with the microphone on the left channel and
// the loopback mix on the right.
package recorder

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/audiolibrelab/dualcap/internal/audio"
	"github.com/audiolibrelab/dualcap/internal/metrics"
	"github.com/audiolibrelab/dualcap/internal/mix"
	"github.com/audiolibrelab/dualcap/internal/wav"
)

// Errors specific to recorder lifecycle handling.
var (
	ErrInvalidState    = errors.New("recorder: invalid state")
	ErrShutdownTimeout = errors.New("recorder: capture loop did not stop in time")
	ErrInitialization  = errors.New("recorder: initialization failed")
)

// stopTimeout bounds how long Stop waits for the capture loop to drain.
const stopTimeout = 5 * time.Second

// headerPatchInterval controls how often the WAV size fields are rewritten
// while recording, so a crash loses at most this much bookkeeping.
const headerPatchInterval = time.Second

// State tracks the recorder through its lifecycle.
type State string

const (
	StateIdle      State = "IDLE"
	StateReady     State = "READY"
	StateRecording State = "RECORDING"
	StateStopping  State = "STOPPING"
	StateFailed    State = "FAILED"
)

func (s State) gaugeValue() float64 {
	switch s {
	case StateRecording:
		return 1
	case StateStopping:
		return 2
	case StateFailed:
		return 3
	case StateReady:
		return 4
	default:
		return 0
	}
}

// ErrorFunc receives capture errors. A fatal error arrives at most once
// per session and moves the recorder into the failed state. Recoverable
// trouble, such as a buffer overrun dropping frames, is delivered through
// the same callback while recording continues; errors.Is against
// audio.ErrBufferOverrun tells the two apart.
type ErrorFunc func(err error)

// LevelFunc receives the RMS level of each source's latest audio, for VU
// display. Called from the capture loop.
type LevelFunc func(micRMS, loopbackRMS float64)

// DataFunc receives each aligned block as it is emitted: one mono buffer
// per source at the target rate, and the block's offset from the start of
// the session. Called from the capture loop; implementations must not
// block and must not retain the slices.
type DataFunc func(mic, loopback []float32, timestamp time.Duration)

// Config configures one recording session.
type Config struct {
	OutputPath string

	// TargetSampleRate is the rate of the output file. Both sources are
	// resampled to it regardless of what their devices negotiated.
	TargetSampleRate int
	BitDepth         int

	// BufferDuration sizes the capture rings and sets the emitted block
	// length. It also bounds how long one source may starve the other
	// before silence is inserted.
	BufferDuration time.Duration

	LoopbackDeviceID   string
	MicrophoneDeviceID string

	OnError ErrorFunc
	OnLevel LevelFunc
	OnData  DataFunc

	Metrics *metrics.Metrics
}

// Status is a snapshot of a recorder for display and the control API.
type Status struct {
	State        State         `json:"state"`
	OutputPath   string        `json:"output_path,omitempty"`
	StartTime    time.Time     `json:"start_time"`
	Position     time.Duration `json:"position"`
	BytesWritten uint64        `json:"bytes_written"`
	LastError    string        `json:"last_error,omitempty"`
}

// blockWriter is the slice of wav.Writer the capture loop needs. Split out
// so tests can inject write failures.
type blockWriter interface {
	AppendFrames(samples []float32) error
	UpdateHeader() error
	Finalize() error
	BytesWritten() uint64
}

// frameSource is the slice of audio.CaptureSource the capture loop needs.
type frameSource interface {
	Initialize() error
	Start() error
	Format() audio.Format
	AvailableFrames() int
	ReadFrames(maxFrames int) (audio.FrameBlock, error)
	Stop() error
	Cleanup() error
}

// Recorder runs one dual-source capture session at a time.
type Recorder struct {
	cfg Config

	// Injection points for tests. Defaults capture real devices and
	// write real files.
	newSource func(audio.SourceConfig) frameSource
	newWriter func(path string, format wav.Format) (blockWriter, error)

	mutex     sync.Mutex
	state     State
	lastErr   error
	startTime time.Time
	writer    blockWriter

	loopback   frameSource
	microphone frameSource

	stopChan chan struct{}
	doneChan chan struct{}

	// Set when a stuck capture loop is given up on, so its late writes
	// and failure reports are discarded instead of resurrecting state.
	abandoned atomic.Bool

	// Written by the capture loop, read under the mutex for Status.
	emittedFrames uint64
}

// New returns an idle recorder.
func New(cfg Config) *Recorder {
	if cfg.TargetSampleRate <= 0 {
		cfg.TargetSampleRate = 48000
	}
	if cfg.BitDepth <= 0 {
		cfg.BitDepth = 16
	}
	if cfg.BufferDuration <= 0 {
		cfg.BufferDuration = 100 * time.Millisecond
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.New(noopRegisterer{})
	}
	return &Recorder{
		cfg:   cfg,
		state: StateIdle,
		newSource: func(sc audio.SourceConfig) frameSource {
			return audio.NewCaptureSource(sc)
		},
		newWriter: func(path string, format wav.Format) (blockWriter, error) {
			return wav.Create(path, format)
		},
	}
}

// Initialize opens both capture endpoints and creates the output file
// with its placeholder header, without starting the devices. On any
// failure everything opened so far is released and the recorder stays
// idle, with the error retained for Status.
func (r *Recorder) Initialize() error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if r.state != StateIdle {
		return fmt.Errorf("%w: cannot initialize while %s", ErrInvalidState, r.state)
	}

	loopback := r.newSource(audio.SourceConfig{
		Kind:           audio.DeviceKindLoopback,
		DeviceID:       r.cfg.LoopbackDeviceID,
		SampleRate:     r.cfg.TargetSampleRate,
		Channels:       2,
		BufferDuration: r.cfg.BufferDuration,
		OnWarn:         r.warnFor(audio.DeviceKindLoopback),
	})
	microphone := r.newSource(audio.SourceConfig{
		Kind:           audio.DeviceKindMicrophone,
		DeviceID:       r.cfg.MicrophoneDeviceID,
		SampleRate:     r.cfg.TargetSampleRate,
		Channels:       1,
		BufferDuration: r.cfg.BufferDuration,
		OnWarn:         r.warnFor(audio.DeviceKindMicrophone),
	})

	if err := loopback.Initialize(); err != nil {
		loopback.Cleanup()
		return r.setupFailed(fmt.Errorf("%w: loopback: %v", ErrInitialization, err))
	}
	if err := microphone.Initialize(); err != nil {
		loopback.Cleanup()
		microphone.Cleanup()
		return r.setupFailed(fmt.Errorf("%w: microphone: %v", ErrInitialization, err))
	}

	writer, err := r.newWriter(r.cfg.OutputPath, wav.Format{
		SampleRate: r.cfg.TargetSampleRate,
		Channels:   2,
		BitDepth:   r.cfg.BitDepth,
	})
	if err != nil {
		loopback.Cleanup()
		microphone.Cleanup()
		return r.setupFailed(err)
	}

	r.loopback = loopback
	r.microphone = microphone
	r.writer = writer
	r.setState(StateReady)

	slog.Info("recorder initialized",
		"output", r.cfg.OutputPath,
		"sample_rate", r.cfg.TargetSampleRate,
		"loopback_format", loopback.Format(),
		"microphone_format", microphone.Format())
	return nil
}

// Start begins capture on an initialized recorder and spawns the loop.
// A failed device start releases everything Initialize opened and the
// recorder returns to idle.
func (r *Recorder) Start() error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if r.state != StateReady {
		return fmt.Errorf("%w: cannot start while %s", ErrInvalidState, r.state)
	}

	if err := r.loopback.Start(); err != nil {
		r.releaseLocked()
		return r.setupFailed(fmt.Errorf("%w: loopback: %v", ErrInitialization, err))
	}
	if err := r.microphone.Start(); err != nil {
		r.releaseLocked()
		return r.setupFailed(fmt.Errorf("%w: microphone: %v", ErrInitialization, err))
	}

	r.startTime = time.Now()
	r.emittedFrames = 0
	r.lastErr = nil
	r.abandoned.Store(false)
	r.stopChan = make(chan struct{})
	r.doneChan = make(chan struct{})
	r.setState(StateRecording)

	go r.captureLoop(r.stopChan, r.doneChan)

	slog.Info("recording started", "output", r.cfg.OutputPath)
	return nil
}

// setupFailed records an Initialize/Start error so LastError reflects it.
// The recorder is back to idle and may be initialized again. Caller must
// hold the mutex.
func (r *Recorder) setupFailed(err error) error {
	r.lastErr = err
	return err
}

// releaseLocked stops and releases both sources and finalizes the writer,
// returning the recorder to idle. Caller must hold the mutex.
func (r *Recorder) releaseLocked() {
	if r.loopback != nil {
		r.loopback.Stop()
		r.loopback.Cleanup()
		r.loopback = nil
	}
	if r.microphone != nil {
		r.microphone.Stop()
		r.microphone.Cleanup()
		r.microphone = nil
	}
	if r.writer != nil {
		r.writer.Finalize()
		r.writer = nil
	}
	r.setState(StateIdle)
}

// Stop ends the session. It waits up to stopTimeout for the capture loop
// to drain, finalizes the output file, and releases the devices. Stopping
// an idle recorder is a no-op. A session that already failed still has its
// devices released, but the output file is left as the loop last wrote it.
func (r *Recorder) Stop() error {
	r.mutex.Lock()
	switch r.state {
	case StateIdle:
		r.mutex.Unlock()
		return nil
	case StateReady:
		// Initialized but never started: nothing to drain.
		defer r.mutex.Unlock()
		r.releaseLocked()
		return nil
	case StateStopping:
		r.mutex.Unlock()
		return fmt.Errorf("%w: stop already in progress", ErrInvalidState)
	}

	wasFailed := r.state == StateFailed
	r.setState(StateStopping)
	stopChan, doneChan := r.stopChan, r.doneChan
	r.mutex.Unlock()

	close(stopChan)

	var timedOut bool
	select {
	case <-doneChan:
	case <-time.After(stopTimeout):
		timedOut = true
		r.abandoned.Store(true)
		slog.Error("capture loop did not exit, abandoning it")
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.loopback.Stop()
	r.microphone.Stop()
	r.loopback.Cleanup()
	r.microphone.Cleanup()

	var finalizeErr error
	if wasFailed || timedOut {
		// Flush what made it to disk but keep the failure visible.
		r.writer.Finalize()
	} else {
		finalizeErr = r.writer.Finalize()
	}

	duration := time.Since(r.startTime)
	r.cfg.Metrics.SessionSeconds.Observe(duration.Seconds())
	r.setState(StateIdle)

	slog.Info("recording stopped",
		"output", r.cfg.OutputPath,
		"duration", duration,
		"bytes", r.writer.BytesWritten())

	if timedOut {
		return ErrShutdownTimeout
	}
	return finalizeErr
}

// Cleanup releases whatever the recorder still holds, regardless of
// state. Safe after Stop, after a failure, or on a recorder that never
// started. The capture loop, if still running, is signalled first.
func (r *Recorder) Cleanup() {
	r.mutex.Lock()
	if r.state == StateStopping {
		// Stop owns the teardown already.
		r.mutex.Unlock()
		return
	}
	stopChan, doneChan := r.stopChan, r.doneChan
	loopRunning := r.state == StateRecording || r.state == StateFailed
	r.mutex.Unlock()

	if loopRunning && stopChan != nil {
		select {
		case <-stopChan:
		default:
			close(stopChan)
		}
		select {
		case <-doneChan:
		case <-time.After(stopTimeout):
			r.abandoned.Store(true)
			slog.Error("capture loop did not exit, abandoning it")
		}
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.releaseLocked()
}

// IsRecording reports whether a session is active.
func (r *Recorder) IsRecording() bool {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.state == StateRecording
}

// LastError returns the error that moved the recorder into the failed
// state, or nil.
func (r *Recorder) LastError() error {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.lastErr
}

// Status returns a snapshot of the current session.
func (r *Recorder) Status() Status {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	s := Status{State: r.state}
	if r.lastErr != nil {
		s.LastError = r.lastErr.Error()
	}
	if r.state == StateIdle {
		return s
	}
	s.OutputPath = r.cfg.OutputPath
	s.StartTime = r.startTime
	s.Position = time.Duration(r.emittedFrames) * time.Second / time.Duration(r.cfg.TargetSampleRate)
	if r.writer != nil {
		s.BytesWritten = r.writer.BytesWritten()
	}
	return s
}

func (r *Recorder) setState(s State) {
	r.state = s
	r.cfg.Metrics.RecorderState.Set(s.gaugeValue())
}

// warnFor builds the warning handler for one capture side. Overruns are
// counted per source and surfaced through the error callback; the state
// machine is untouched, recording continues.
func (r *Recorder) warnFor(kind audio.DeviceKind) audio.WarnFunc {
	name := string(kind)
	return func(err error) {
		if errors.Is(err, audio.ErrBufferOverrun) {
			r.cfg.Metrics.BufferOverruns.WithLabelValues(name).Inc()
		}
		if r.cfg.OnError != nil {
			r.cfg.OnError(err)
		}
	}
}

// fail moves the recorder to the failed state and reports the error once.
// Called from the capture loop. Once the loop has been abandoned its
// failures are stale and dropped.
func (r *Recorder) fail(err error) {
	if r.abandoned.Load() {
		return
	}
	r.mutex.Lock()
	alreadyFailed := r.state == StateFailed
	if !alreadyFailed {
		r.setState(StateFailed)
		r.lastErr = err
	}
	onError := r.cfg.OnError
	r.mutex.Unlock()

	if alreadyFailed {
		return
	}
	slog.Error("recording failed", "error", err)
	if onError != nil {
		onError(err)
	}
}

// sidePipe holds the per-source conversion state inside the capture loop.
type sidePipe struct {
	name      string
	source    frameSource
	resampler *audio.Resampler
	pending   []float32 // mono samples at the target rate
}

// drain moves everything buffered in the source into pending.
func (p *sidePipe) drain(r *Recorder) float64 {
	var level float64
	for p.source.AvailableFrames() > 0 {
		block, err := p.source.ReadFrames(p.source.AvailableFrames())
		if err != nil || block.Frames == 0 {
			break
		}
		mono := mix.DownmixMono(block.Samples, block.Frames, block.Channels)
		level = mix.RMS(mono)
		p.pending = append(p.pending, p.resampler.Process(mono, block.Frames)...)
		r.cfg.Metrics.FramesCaptured.WithLabelValues(p.name).Add(float64(block.Frames))
	}
	r.cfg.Metrics.SourceLevel.WithLabelValues(p.name).Set(level)
	return level
}

func (r *Recorder) captureLoop(stopChan, doneChan chan struct{}) {
	defer close(doneChan)

	targetRate := r.cfg.TargetSampleRate
	blockFrames := int(time.Duration(targetRate) * r.cfg.BufferDuration / time.Second)
	if blockFrames < 1 {
		blockFrames = 1
	}

	loop := &sidePipe{
		name:      "loopback",
		source:    r.loopback,
		resampler: audio.NewResampler(r.loopback.Format().SampleRate, targetRate, 1),
	}
	mic := &sidePipe{
		name:      "microphone",
		source:    r.microphone,
		resampler: audio.NewResampler(r.microphone.Format().SampleRate, targetRate, 1),
	}

	poll := r.cfg.BufferDuration / 4
	if poll < time.Millisecond {
		poll = time.Millisecond
	}
	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	lastEmit := time.Now()
	lastPatch := time.Now()

	for {
		select {
		case <-stopChan:
			// Final drain, then flush whatever pairs up. The shorter
			// side is padded so no captured audio is discarded.
			loop.drain(r)
			mic.drain(r)
			r.flushTail(mic, loop)
			return

		case <-ticker.C:
			loopLevel := loop.drain(r)
			micLevel := mic.drain(r)
			if r.cfg.OnLevel != nil {
				r.cfg.OnLevel(micLevel, loopLevel)
			}

			emitted := false
			for len(mic.pending) >= blockFrames && len(loop.pending) >= blockFrames {
				if !r.emitBlock(mic, loop, blockFrames) {
					return
				}
				emitted = true
			}

			// One source running dry must not stall the other
			// indefinitely. After a full buffer period with no
			// output, pad the empty side with silence.
			if !emitted && time.Since(lastEmit) >= r.cfg.BufferDuration {
				dry := r.padDrySide(mic, loop, blockFrames)
				if dry != nil {
					if !r.emitBlock(mic, loop, blockFrames) {
						return
					}
					emitted = true
				}
			}
			if emitted {
				lastEmit = time.Now()
			}

			if time.Since(lastPatch) >= headerPatchInterval {
				if err := r.writer.UpdateHeader(); err != nil {
					r.cfg.Metrics.WriteErrors.Inc()
					r.fail(err)
					return
				}
				lastPatch = time.Now()
			}
		}
	}
}

// padDrySide appends silence to whichever side is short of one block while
// the other has one ready. Returns the padded side, or nil if neither side
// has a full block yet.
func (r *Recorder) padDrySide(mic, loop *sidePipe, blockFrames int) *sidePipe {
	var dry *sidePipe
	switch {
	case len(mic.pending) >= blockFrames && len(loop.pending) < blockFrames:
		dry = loop
	case len(loop.pending) >= blockFrames && len(mic.pending) < blockFrames:
		dry = mic
	default:
		return nil
	}

	missing := blockFrames - len(dry.pending)
	dry.pending = append(dry.pending, mix.Silence(missing, 1)...)
	r.cfg.Metrics.FramesPadded.WithLabelValues(dry.name).Add(float64(missing))
	slog.Debug("padded dry capture side", "side", dry.name, "frames", missing)
	return dry
}

// emitBlock interleaves one block from each side, appends it to the
// output, and hands it to the data callback. Returns false after a write
// failure, which ends the loop.
func (r *Recorder) emitBlock(mic, loop *sidePipe, blockFrames int) bool {
	// An abandoned loop must not touch the writer Stop already finalized.
	if r.abandoned.Load() {
		return false
	}
	micBlock := mic.pending[:blockFrames]
	loopBlock := loop.pending[:blockFrames]
	stereo := mix.InterleaveStereo(micBlock, loopBlock, blockFrames)

	if err := r.writer.AppendFrames(stereo); err != nil {
		r.cfg.Metrics.WriteErrors.Inc()
		r.fail(err)
		return false
	}

	r.mutex.Lock()
	timestamp := time.Duration(r.emittedFrames) * time.Second / time.Duration(r.cfg.TargetSampleRate)
	r.emittedFrames += uint64(blockFrames)
	r.mutex.Unlock()

	if r.cfg.OnData != nil {
		r.cfg.OnData(micBlock, loopBlock, timestamp)
	}

	mic.pending = mic.pending[blockFrames:]
	loop.pending = loop.pending[blockFrames:]

	r.cfg.Metrics.BlocksEmitted.Inc()
	r.cfg.Metrics.BytesWritten.Add(float64(blockFrames * 2 * 2))
	return true
}

// flushTail writes out the remaining samples at shutdown, padding the
// shorter side to the longer one.
func (r *Recorder) flushTail(mic, loop *sidePipe) {
	frames := len(mic.pending)
	if len(loop.pending) > frames {
		frames = len(loop.pending)
	}
	if frames == 0 {
		return
	}

	if missing := frames - len(mic.pending); missing > 0 {
		mic.pending = append(mic.pending, mix.Silence(missing, 1)...)
		r.cfg.Metrics.FramesPadded.WithLabelValues(mic.name).Add(float64(missing))
	}
	if missing := frames - len(loop.pending); missing > 0 {
		loop.pending = append(loop.pending, mix.Silence(missing, 1)...)
		r.cfg.Metrics.FramesPadded.WithLabelValues(loop.name).Add(float64(missing))
	}

	r.emitBlock(mic, loop, frames)
}

// noopRegisterer lets a recorder run without a metrics registry, as in
// tests and one-shot CLI use.
type noopRegisterer struct{}

func (noopRegisterer) Register(prometheus.Collector) error  { return nil }
func (noopRegisterer) MustRegister(...prometheus.Collector) {}
func (noopRegisterer) Unregister(prometheus.Collector) bool { return true }

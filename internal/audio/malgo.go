//go:build cgo && !noaudio

package audio

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"github.com/gen2brain/malgo"
)

func init() {
	newEndpointContext = newMalgoEndpointContext
}

// malgoEndpointContext implements endpointContext on top of miniaudio.
// One context is shared by the loopback and microphone endpoints.
type malgoEndpointContext struct {
	ctx *malgo.AllocatedContext
}

func newMalgoEndpointContext() (endpointContext, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}
	return &malgoEndpointContext{ctx: ctx}, nil
}

func (m *malgoEndpointContext) close() error {
	if err := m.ctx.Uninit(); err != nil {
		return err
	}
	m.ctx.Free()
	return nil
}

func toMalgoDeviceID(id string) malgo.DeviceID {
	var res malgo.DeviceID
	copy(res[:], id)
	return res
}

var emptyMalgoDeviceID malgo.DeviceID

func (m *malgoEndpointContext) openEndpoint(kind DeviceKind, deviceID string, requested Format, cb dataFunc) (captureEndpoint, Format, error) {
	deviceType := malgo.Capture
	if kind == DeviceKindLoopback {
		deviceType = malgo.Loopback
	}

	deviceConfig := malgo.DefaultDeviceConfig(deviceType)
	deviceConfig.SampleRate = uint32(requested.SampleRate)
	deviceConfig.Capture.Format = malgo.FormatF32
	deviceConfig.Capture.Channels = uint32(requested.Channels)
	deviceConfig.Alsa.NoMMap = 1

	if id := toMalgoDeviceID(deviceID); id != emptyMalgoDeviceID {
		if kind == DeviceKindLoopback {
			// Loopback taps a playback device; miniaudio selects it
			// through the playback side of the config.
			deviceConfig.Playback.DeviceID = id.Pointer()
		} else {
			deviceConfig.Capture.DeviceID = id.Pointer()
		}
	}

	sampleBytes := malgo.SampleSizeInBytes(malgo.FormatF32)

	onData := func(_, input []byte, frameCount uint32) {
		if frameCount == 0 || len(input) == 0 {
			return
		}
		n := len(input) / sampleBytes
		samples := make([]float32, n)
		for i := 0; i < n; i++ {
			bits := binary.LittleEndian.Uint32(input[i*sampleBytes:])
			samples[i] = math.Float32frombits(bits)
		}
		cb(samples, int(frameCount), time.Now())
	}

	device, err := malgo.InitDevice(m.ctx.Context, deviceConfig, malgo.DeviceCallbacks{Data: onData})
	if err != nil {
		return nil, Format{}, fmt.Errorf("%w: %s: %v", ErrDeviceUnavailable, kind, err)
	}

	negotiated := Format{
		SampleRate: int(device.SampleRate()),
		Channels:   int(device.CaptureChannels()),
	}
	if negotiated.SampleRate == 0 || negotiated.Channels == 0 {
		device.Uninit()
		return nil, Format{}, fmt.Errorf("%w: %s reported no usable format", ErrFormatNegotiation, kind)
	}

	return &malgoEndpoint{device: device}, negotiated, nil
}

func (m *malgoEndpointContext) listDevices() (Devices, error) {
	loopback, err := m.listKind(malgo.Playback)
	if err != nil {
		return Devices{}, err
	}
	mics, err := m.listKind(malgo.Capture)
	if err != nil {
		return Devices{}, err
	}
	return Devices{Loopback: loopback, Microphone: mics}, nil
}

func (m *malgoEndpointContext) listKind(typ malgo.DeviceType) ([]Device, error) {
	infos, err := m.ctx.Devices(typ)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}

	res := make([]Device, 0, len(infos))
	seen := make(map[string]struct{}, len(infos))
	for _, info := range infos {
		full, err := m.ctx.DeviceInfo(typ, info.ID, malgo.Shared)
		if err != nil {
			continue
		}
		id := string(append([]byte(nil), full.ID[:]...))
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		res = append(res, Device{
			ID:        id,
			Name:      full.Name(),
			IsDefault: full.IsDefault == 1,
		})
	}
	return res, nil
}

type malgoEndpoint struct {
	device *malgo.Device
}

func (e *malgoEndpoint) start() error {
	if err := e.device.Start(); err != nil {
		return fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}
	return nil
}

func (e *malgoEndpoint) stop() error {
	return e.device.Stop()
}

func (e *malgoEndpoint) uninit() {
	e.device.Uninit()
}

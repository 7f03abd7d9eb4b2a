package audio

import (
	"sync"
	"time"
)

// frameRing is a single-producer single-consumer ring buffer of interleaved
// float32 frames. The producer is the endpoint data callback, the consumer
// is the recorder's draining loop. When full, the oldest frames are
// overwritten so the hardware callback never blocks; the overwrite count is
// reported back to the producer.
//
// The head timestamp tracks the capture time of the frame at the read
// cursor and is advanced by the frame period on every consume/overwrite,
// so ReadFrames can report the capture time of the first frame it returns.
type frameRing struct {
	mu sync.Mutex

	buf       []float32
	channels  int
	capFrames int
	rate      int

	readPos  int
	count    int
	headTime time.Time
	hasTime  bool
}

func newFrameRing(capFrames, channels, sampleRate int) *frameRing {
	return &frameRing{
		buf:       make([]float32, capFrames*channels),
		channels:  channels,
		capFrames: capFrames,
		rate:      sampleRate,
	}
}

// framePeriod returns the duration of n frames at the ring's native rate.
func (r *frameRing) framePeriod(n int) time.Duration {
	return time.Duration(n) * time.Second / time.Duration(r.rate)
}

// write appends frames, overwriting the oldest buffered frames when the
// ring is full. ts is the capture time of the first written frame. Returns
// the number of frames that were overwritten (0 in the common case).
func (r *frameRing) write(samples []float32, frames int, ts time.Time) (overwritten int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if frames <= 0 {
		return 0
	}

	// A batch larger than the ring keeps only its newest capFrames.
	if frames > r.capFrames {
		skip := frames - r.capFrames
		samples = samples[skip*r.channels:]
		ts = ts.Add(r.framePeriod(skip))
		overwritten += skip
		frames = r.capFrames
	}

	// An empty ring re-latches onto the batch's own capture time, so a
	// device pause does not leave the head stuck at a pre-gap timestamp.
	if !r.hasTime || r.count == 0 {
		r.headTime = ts
		r.hasTime = true
	}

	// Drop oldest frames to make room.
	if excess := r.count + frames - r.capFrames; excess > 0 {
		r.readPos = (r.readPos + excess) % r.capFrames
		r.count -= excess
		r.headTime = r.headTime.Add(r.framePeriod(excess))
		overwritten += excess
	}

	writePos := (r.readPos + r.count) % r.capFrames
	for i := 0; i < frames; i++ {
		pos := (writePos + i) % r.capFrames
		copy(r.buf[pos*r.channels:(pos+1)*r.channels], samples[i*r.channels:(i+1)*r.channels])
	}
	r.count += frames

	return overwritten
}

// available returns the number of buffered frames without blocking.
func (r *frameRing) available() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

// read copies up to maxFrames out of the ring into dst, advancing the read
// cursor. Returns the frames copied and the capture time of the first one.
// Fewer frames than requested is normal, not an error.
func (r *frameRing) read(dst []float32, maxFrames int) (frames int, ts time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	frames = maxFrames
	if frames > r.count {
		frames = r.count
	}
	if max := len(dst) / r.channels; frames > max {
		frames = max
	}
	if frames <= 0 {
		return 0, r.headTime
	}

	ts = r.headTime
	for i := 0; i < frames; i++ {
		pos := (r.readPos + i) % r.capFrames
		copy(dst[i*r.channels:(i+1)*r.channels], r.buf[pos*r.channels:(pos+1)*r.channels])
	}
	r.readPos = (r.readPos + frames) % r.capFrames
	r.count -= frames
	r.headTime = r.headTime.Add(r.framePeriod(frames))

	return frames, ts
}

// reset empties the ring.
func (r *frameRing) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.readPos = 0
	r.count = 0
	r.hasTime = false
}

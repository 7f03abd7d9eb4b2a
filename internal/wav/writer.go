// Package wav implements a streaming PCM WAV writer. Samples are appended
// incrementally while the RIFF size fields hold placeholders; the header is
// patched in place so a crash mid-session still leaves a file that most
// tools can open after the sizes are fixed up.
package wav

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
)

// Errors reported by the writer. Both wrap the underlying OS error.
var (
	ErrFileCreate = errors.New("wav: file create failed")
	ErrWrite      = errors.New("wav: write failed")
)

const headerSize = 44

// header is the canonical 44-byte PCM WAV header.
type header struct {
	ChunkID       [4]byte // "RIFF"
	ChunkSize     uint32  // file size - 8
	Format        [4]byte // "WAVE"
	Subchunk1ID   [4]byte // "fmt "
	Subchunk1Size uint32  // 16 for PCM
	AudioFormat   uint16  // 1 for PCM
	NumChannels   uint16
	SampleRate    uint32
	ByteRate      uint32 // SampleRate * NumChannels * BitsPerSample / 8
	BlockAlign    uint16 // NumChannels * BitsPerSample / 8
	BitsPerSample uint16
	Subchunk2ID   [4]byte // "data"
	Subchunk2Size uint32  // bytes of PCM data
}

// Format describes the PCM encoding of the file.
type Format struct {
	SampleRate int
	Channels   int
	BitDepth   int
}

// Writer streams PCM into a WAV file. Safe for use from one goroutine.
type Writer struct {
	mu        sync.Mutex
	f         *os.File
	buf       *bufio.Writer
	format    Format
	dataBytes uint32
	finalized bool
}

// Create opens path for writing and writes a placeholder header. Only
// 16-bit PCM is supported.
func Create(path string, format Format) (*Writer, error) {
	if format.BitDepth != 16 {
		return nil, fmt.Errorf("%w: unsupported bit depth %d", ErrFileCreate, format.BitDepth)
	}
	if format.SampleRate <= 0 || format.Channels <= 0 {
		return nil, fmt.Errorf("%w: invalid format %d Hz %d ch", ErrFileCreate, format.SampleRate, format.Channels)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrFileCreate, path, err)
	}

	w := &Writer{
		f:      f,
		buf:    bufio.NewWriterSize(f, 64*1024),
		format: format,
	}
	if err := binary.Write(w.buf, binary.LittleEndian, w.header()); err != nil {
		f.Close()
		os.Remove(path)
		return nil, fmt.Errorf("%w: %s: %v", ErrFileCreate, path, err)
	}
	return w, nil
}

func (w *Writer) header() header {
	return header{
		ChunkID:       [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     36 + w.dataBytes,
		Format:        [4]byte{'W', 'A', 'V', 'E'},
		Subchunk1ID:   [4]byte{'f', 'm', 't', ' '},
		Subchunk1Size: 16,
		AudioFormat:   1,
		NumChannels:   uint16(w.format.Channels),
		SampleRate:    uint32(w.format.SampleRate),
		ByteRate:      uint32(w.format.SampleRate * w.format.Channels * w.format.BitDepth / 8),
		BlockAlign:    uint16(w.format.Channels * w.format.BitDepth / 8),
		BitsPerSample: uint16(w.format.BitDepth),
		Subchunk2ID:   [4]byte{'d', 'a', 't', 'a'},
		Subchunk2Size: w.dataBytes,
	}
}

// AppendFrames converts interleaved float32 samples to signed 16-bit PCM
// and appends them. Samples outside [-1, 1] are clipped.
func (w *Writer) AppendFrames(samples []float32) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.finalized {
		return fmt.Errorf("%w: writer already finalized", ErrWrite)
	}

	pcm := make([]byte, len(samples)*2)
	for i, s := range samples {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(int16(s*32767)))
	}

	if _, err := w.buf.Write(pcm); err != nil {
		return fmt.Errorf("%w: %v", ErrWrite, err)
	}
	w.dataBytes += uint32(len(pcm))
	return nil
}

// BytesWritten returns the PCM payload size so far, excluding the header.
func (w *Writer) BytesWritten() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return uint64(w.dataBytes)
}

// UpdateHeader flushes buffered samples and rewrites the size fields in
// place, then returns the file position to the end for further appends.
func (w *Writer) UpdateHeader() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.finalized {
		return fmt.Errorf("%w: writer already finalized", ErrWrite)
	}
	return w.patchHeader()
}

// patchHeader rewrites the header. Caller must hold the mutex.
func (w *Writer) patchHeader() error {
	if err := w.buf.Flush(); err != nil {
		return fmt.Errorf("%w: %v", ErrWrite, err)
	}
	if _, err := w.f.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("%w: %v", ErrWrite, err)
	}
	if err := binary.Write(w.f, binary.LittleEndian, w.header()); err != nil {
		return fmt.Errorf("%w: %v", ErrWrite, err)
	}
	if _, err := w.f.Seek(0, io.SeekEnd); err != nil {
		return fmt.Errorf("%w: %v", ErrWrite, err)
	}
	return nil
}

// Finalize patches the header with the final sizes and closes the file.
// Calling Finalize again is a no-op.
func (w *Writer) Finalize() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.finalized {
		return nil
	}
	w.finalized = true

	patchErr := w.patchHeader()
	closeErr := w.f.Close()
	if patchErr != nil {
		return patchErr
	}
	if closeErr != nil {
		return fmt.Errorf("%w: %v", ErrWrite, closeErr)
	}
	return nil
}

package wav

import (
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func readHeader(t *testing.T, path string) header {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer f.Close()

	var h header
	if err := binary.Read(f, binary.LittleEndian, &h); err != nil {
		t.Fatalf("read header: %v", err)
	}
	return h
}

func TestCreateWritesPlaceholderHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.wav")
	w, err := Create(path, Format{SampleRate: 44100, Channels: 2, BitDepth: 16})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := w.Finalize(); err != nil {
		t.Fatalf("Finalize: %v", err)
	}

	h := readHeader(t, path)
	if string(h.ChunkID[:]) != "RIFF" || string(h.Format[:]) != "WAVE" {
		t.Fatalf("bad magic: %q %q", h.ChunkID, h.Format)
	}
	if h.AudioFormat != 1 || h.BitsPerSample != 16 {
		t.Fatalf("bad format fields: fmt=%d bits=%d", h.AudioFormat, h.BitsPerSample)
	}
	if h.NumChannels != 2 || h.SampleRate != 44100 {
		t.Fatalf("bad format: %d ch %d Hz", h.NumChannels, h.SampleRate)
	}
	if h.ByteRate != 44100*2*2 || h.BlockAlign != 4 {
		t.Fatalf("bad derived fields: byteRate=%d blockAlign=%d", h.ByteRate, h.BlockAlign)
	}
	if h.Subchunk2Size != 0 || h.ChunkSize != 36 {
		t.Fatalf("empty file sizes wrong: data=%d chunk=%d", h.Subchunk2Size, h.ChunkSize)
	}
}

func TestAppendAndFinalizeSizes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.wav")
	w, err := Create(path, Format{SampleRate: 48000, Channels: 1, BitDepth: 16})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	samples := make([]float32, 480)
	for i := 0; i < 10; i++ {
		if err := w.AppendFrames(samples); err != nil {
			t.Fatalf("AppendFrames: %v", err)
		}
	}
	if err := w.Finalize(); err != nil {
		t.Fatalf("Finalize: %v", err)
	}

	const wantData = 480 * 10 * 2
	h := readHeader(t, path)
	if h.Subchunk2Size != wantData {
		t.Fatalf("data size = %d, want %d", h.Subchunk2Size, wantData)
	}
	if h.ChunkSize != 36+wantData {
		t.Fatalf("chunk size = %d, want %d", h.ChunkSize, 36+wantData)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Size() != headerSize+wantData {
		t.Fatalf("file size = %d, want %d", info.Size(), headerSize+wantData)
	}
}

func TestUpdateHeaderMidStream(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.wav")
	w, err := Create(path, Format{SampleRate: 48000, Channels: 1, BitDepth: 16})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := w.AppendFrames(make([]float32, 100)); err != nil {
		t.Fatalf("AppendFrames: %v", err)
	}
	if err := w.UpdateHeader(); err != nil {
		t.Fatalf("UpdateHeader: %v", err)
	}

	h := readHeader(t, path)
	if h.Subchunk2Size != 200 {
		t.Fatalf("mid-stream data size = %d, want 200", h.Subchunk2Size)
	}

	// Appends continue at the end of the file after the patch.
	if err := w.AppendFrames(make([]float32, 100)); err != nil {
		t.Fatalf("AppendFrames after patch: %v", err)
	}
	if err := w.Finalize(); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	h = readHeader(t, path)
	if h.Subchunk2Size != 400 {
		t.Fatalf("final data size = %d, want 400", h.Subchunk2Size)
	}
}

func TestAppendClipsOutOfRange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.wav")
	w, err := Create(path, Format{SampleRate: 8000, Channels: 1, BitDepth: 16})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := w.AppendFrames([]float32{2.0, -2.0}); err != nil {
		t.Fatalf("AppendFrames: %v", err)
	}
	if err := w.Finalize(); err != nil {
		t.Fatalf("Finalize: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	hi := int16(binary.LittleEndian.Uint16(data[headerSize:]))
	lo := int16(binary.LittleEndian.Uint16(data[headerSize+2:]))
	if hi != 32767 || lo != -32767 {
		t.Fatalf("clipped samples = %d, %d; want 32767, -32767", hi, lo)
	}
}

func TestCreateBadPath(t *testing.T) {
	_, err := Create(filepath.Join(t.TempDir(), "missing", "out.wav"),
		Format{SampleRate: 48000, Channels: 1, BitDepth: 16})
	if !errors.Is(err, ErrFileCreate) {
		t.Fatalf("Create into missing dir: %v, want ErrFileCreate", err)
	}
}

func TestCreateRejectsBadFormat(t *testing.T) {
	dir := t.TempDir()
	if _, err := Create(filepath.Join(dir, "a.wav"), Format{SampleRate: 48000, Channels: 1, BitDepth: 24}); !errors.Is(err, ErrFileCreate) {
		t.Fatalf("24-bit: %v, want ErrFileCreate", err)
	}
	if _, err := Create(filepath.Join(dir, "b.wav"), Format{SampleRate: 0, Channels: 1, BitDepth: 16}); !errors.Is(err, ErrFileCreate) {
		t.Fatalf("zero rate: %v, want ErrFileCreate", err)
	}
}

func TestFinalizeIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.wav")
	w, err := Create(path, Format{SampleRate: 48000, Channels: 1, BitDepth: 16})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := w.Finalize(); err != nil {
		t.Fatalf("first Finalize: %v", err)
	}
	if err := w.Finalize(); err != nil {
		t.Fatalf("second Finalize: %v", err)
	}
	if err := w.AppendFrames([]float32{0}); !errors.Is(err, ErrWrite) {
		t.Fatalf("append after finalize: %v, want ErrWrite", err)
	}
}

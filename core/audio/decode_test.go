package audio

import (
	"encoding/binary"
	"testing"
)

func buildWAV(t *testing.T, samples []int16, formatTag, channels uint16) []byte {
	t.Helper()

	data := make([]byte, len(samples)*2)
	for i, sample := range samples {
		binary.LittleEndian.PutUint16(data[i*2:], uint16(sample))
	}

	fmtBody := make([]byte, 16)
	binary.LittleEndian.PutUint16(fmtBody[0:], formatTag)
	binary.LittleEndian.PutUint16(fmtBody[2:], channels)
	binary.LittleEndian.PutUint32(fmtBody[4:], DefaultSampleRate)

	out := []byte("RIFF\x00\x00\x00\x00WAVE")
	out = append(out, "fmt "...)
	out = binary.LittleEndian.AppendUint32(out, uint32(len(fmtBody)))
	out = append(out, fmtBody...)
	out = append(out, "data"...)
	out = binary.LittleEndian.AppendUint32(out, uint32(len(data)))
	out = append(out, data...)
	binary.LittleEndian.PutUint32(out[4:], uint32(len(out)-8))
	return out
}

func TestDecodeChunkPrefersContainer(t *testing.T) {
	chunk := buildWAV(t, []int16{-32768, 0, 32767}, 1, 1)

	samples, err := DecodeChunk(chunk)
	if err != nil {
		t.Fatalf("expected wav chunk to decode, got error: %v", err)
	}

	if got := len(samples); got != 3 {
		t.Fatalf("expected 3 samples, got %d", got)
	}
	if samples[0] != -1.0 {
		t.Fatalf("expected full-scale negative sample to normalize to -1.0, got %v", samples[0])
	}
	if samples[2] >= 1.0 || samples[2] < 0.999 {
		t.Fatalf("expected full-scale positive sample to normalize just below 1.0, got %v", samples[2])
	}
}

func TestDecodeChunkFallsBackToRawPCM(t *testing.T) {
	raw := make([]byte, 8)
	positive, negative := int16(16384), int16(-16384)
	binary.LittleEndian.PutUint16(raw[0:], uint16(positive))
	binary.LittleEndian.PutUint16(raw[2:], uint16(negative))

	samples, err := DecodeChunk(raw)
	if err != nil {
		t.Fatalf("expected raw pcm fallback to decode, got error: %v", err)
	}

	if got := len(samples); got != 4 {
		t.Fatalf("expected 4 samples, got %d", got)
	}
	if samples[0] != 0.5 {
		t.Fatalf("expected 16384 to normalize to 0.5, got %v", samples[0])
	}
	if samples[1] != -0.5 {
		t.Fatalf("expected -16384 to normalize to -0.5, got %v", samples[1])
	}
}

func TestDecodeChunkRejectsOddLengthPCM(t *testing.T) {
	if _, err := DecodeChunk([]byte{0x01, 0x02, 0x03}); err == nil {
		t.Fatalf("expected odd-length raw chunk to fail decoding")
	}
}

func TestDecodeChunkRejectsUnsupportedWAVFormat(t *testing.T) {
	chunk := buildWAV(t, []int16{0}, 3, 1) // float wav

	if _, err := DecodeChunk(chunk); err == nil {
		t.Fatalf("expected non-PCM wav to be rejected rather than misread as raw PCM")
	}
}

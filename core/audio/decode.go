package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
)

var (
	errNotWAV            = errors.New("chunk is not a RIFF/WAVE container")
	ErrUnsupportedFormat = errors.New("unsupported audio format")
)

// DecodeChunk turns one network audio chunk into normalized float32 samples.
//
// Container decoding is attempted first; raw PCM is not self-describing, so
// on container parse failure the chunk is reinterpreted as bare little-endian
// PCM16 mono and normalized by dividing by 32768.
func DecodeChunk(chunk []byte) ([]float32, error) {
	if samples, err := decodeWAV(chunk); err == nil {
		return samples, nil
	} else if !errors.Is(err, errNotWAV) {
		return nil, err
	}

	return DecodePCM16(chunk)
}

// DecodePCM16 interprets raw little-endian signed 16-bit PCM.
func DecodePCM16(chunk []byte) ([]float32, error) {
	if len(chunk)%2 != 0 {
		return nil, fmt.Errorf("pcm16 chunk has odd length %d", len(chunk))
	}

	samples := make([]float32, len(chunk)/2)
	for i := range samples {
		samples[i] = float32(int16(binary.LittleEndian.Uint16(chunk[i*2:]))) / 32768
	}
	return samples, nil
}

// decodeWAV walks a RIFF/WAVE container and decodes its PCM16 data chunk.
func decodeWAV(chunk []byte) ([]float32, error) {
	if len(chunk) < 12 || string(chunk[0:4]) != "RIFF" || string(chunk[8:12]) != "WAVE" {
		return nil, errNotWAV
	}

	var dataFound bool
	var formatTag, channels uint16
	var data []byte

	offset := 12
	for offset+8 <= len(chunk) {
		id := string(chunk[offset : offset+4])
		size := int(binary.LittleEndian.Uint32(chunk[offset+4 : offset+8]))
		body := chunk[offset+8:]
		if size > len(body) {
			size = len(body)
		}

		switch id {
		case "fmt ":
			if size < 16 {
				return nil, fmt.Errorf("wav fmt chunk truncated to %d bytes", size)
			}
			formatTag = binary.LittleEndian.Uint16(body[0:2])
			channels = binary.LittleEndian.Uint16(body[2:4])
		case "data":
			data = body[:size]
			dataFound = true
		}

		// Chunks are word-aligned.
		offset += 8 + size + size%2
	}

	if !dataFound {
		return nil, fmt.Errorf("wav container has no data chunk")
	}
	if formatTag != 1 {
		return nil, fmt.Errorf("%w: wav format tag %d", ErrUnsupportedFormat, formatTag)
	}
	if channels > 1 {
		return nil, fmt.Errorf("%w: %d channels", ErrUnsupportedFormat, channels)
	}

	return DecodePCM16(data)
}

package audio

import (
	"encoding/binary"
	"math"
)

// FrameSamples is the fixed frame length the encoder emits: 1200 samples of
// mono audio, ~50ms at the default 24kHz sample rate.
const FrameSamples = 1200

// FrameEncoder accumulates floating-point samples and emits fixed-size
// little-endian PCM16 frames through a registered callback.
//
// Write runs on the capture device's audio path, so it never blocks and the
// only allocation is the one outgoing frame buffer (a fresh buffer per frame,
// the callback may retain it).
type FrameEncoder struct {
	frame  []byte
	filled int

	onFrame func(frame []byte)
}

func NewFrameEncoder(onFrame func(frame []byte)) *FrameEncoder {
	if onFrame == nil {
		onFrame = func([]byte) {}
	}

	return &FrameEncoder{
		frame:   make([]byte, FrameSamples*2),
		onFrame: onFrame,
	}
}

// Write pushes captured samples into the accumulator, emitting a frame every
// time FrameSamples samples have been collected.
func (e *FrameEncoder) Write(samples []float32) {
	for _, sample := range samples {
		binary.LittleEndian.PutUint16(e.frame[e.filled*2:], uint16(EncodeSample(sample)))
		e.filled++

		if e.filled == FrameSamples {
			frame := e.frame
			e.frame = make([]byte, FrameSamples*2)
			e.filled = 0
			e.onFrame(frame)
		}
	}
}

// Reset drops any partially accumulated frame. Used when capture restarts so
// stale samples never prefix the next stream.
func (e *FrameEncoder) Reset() {
	e.filled = 0
}

// EncodeSample converts one floating-point sample in [-1, 1] to signed 16-bit
// PCM. Values outside the range are clamped; negatives scale by 32768 and
// non-negatives by 32767 so ±1.0 map exactly onto the int16 extremes.
func EncodeSample(sample float32) int16 {
	if sample > 1 {
		sample = 1
	} else if sample < -1 {
		sample = -1
	}

	if sample < 0 {
		return int16(math.Round(float64(sample) * 32768))
	}
	return int16(math.Round(float64(sample) * 32767))
}

// EncodePCM16 converts normalized samples to little-endian PCM16 bytes.
func EncodePCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, sample := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(EncodeSample(sample)))
	}
	return out
}

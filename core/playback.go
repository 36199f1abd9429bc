package session

import (
	"sync"

	"github.com/voxprep/voxprep-core/core/audio"
)

// playbackBatchChunks is the minimum number of buffered chunks before a
// flush to the device, trading a little latency for fewer scheduling calls.
// A stream-complete signal flushes whatever is buffered, down to one chunk.
const playbackBatchChunks = 5

// audioSink is the playback side of an audio device.
type audioSink interface {
	SendAudio(audio []byte) error
	ClearBuffer()
}

// playbackScheduler plays decoded audio chunks back-to-back: strictly FIFO,
// one consumer loop, no overlap. Chunks buffer until a minimum batch
// accumulates or the stream completes. Interrupt drops everything pending
// and silences the sink synchronously, for barge-in.
type playbackScheduler struct {
	mu sync.Mutex

	sink audioSink

	pending        [][]byte
	streamComplete bool
	stopped        bool

	// generation increments on every Interrupt so a batch taken out before
	// the interrupt cannot keep feeding the sink after it.
	generation int

	updateSignal chan struct{}
	done         chan struct{}
}

func newPlaybackScheduler(sink audioSink) *playbackScheduler {
	scheduler := &playbackScheduler{
		sink:         sink,
		updateSignal: make(chan struct{}, 1),
		done:         make(chan struct{}),
	}
	go scheduler.run()
	return scheduler
}

// Enqueue decodes one incoming chunk and appends it to the playback queue.
// Decode failures are logged and the chunk skipped; they never abort
// playback of subsequent chunks.
func (s *playbackScheduler) Enqueue(chunk []byte) {
	samples, err := audio.DecodeChunk(chunk)
	if err != nil {
		logger.Warn("skipping undecodable audio chunk", "size", len(chunk), "error", err)
		return
	}

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.pending = append(s.pending, audio.EncodePCM16(samples))
	s.mu.Unlock()
	s.signalUpdate()
}

// StreamComplete flushes any buffered chunks regardless of batch size. With
// nothing buffered it is a no-op: the flag must not leak into the next
// response's batching.
func (s *playbackScheduler) StreamComplete() {
	s.mu.Lock()
	s.streamComplete = len(s.pending) > 0
	s.mu.Unlock()
	s.signalUpdate()
}

// Interrupt synchronously stops current playback and clears the queue and
// chunk buffer. A subsequent Enqueue starts fresh from an empty queue.
func (s *playbackScheduler) Interrupt() {
	s.mu.Lock()
	s.pending = nil
	s.streamComplete = false
	s.generation++
	s.mu.Unlock()

	s.sink.ClearBuffer()
	s.signalUpdate()
}

// StopAll clears all queues and ends the consumer loop. Used at session
// teardown; the scheduler cannot be restarted afterwards.
func (s *playbackScheduler) StopAll() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	s.pending = nil
	s.mu.Unlock()

	s.signalUpdate()
	<-s.done
	s.sink.ClearBuffer()
}

func (s *playbackScheduler) run() {
	defer close(s.done)

	for {
		batch, generation, ok := s.nextBatch()
		if !ok {
			return
		}
		for _, chunk := range batch {
			if s.interrupted(generation) {
				break
			}
			if err := s.sink.SendAudio(chunk); err != nil {
				logger.Warn("failed to play audio chunk", "size", len(chunk), "error", err)
			}
		}
	}
}

func (s *playbackScheduler) interrupted(generation int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation != generation
}

func (s *playbackScheduler) nextBatch() ([][]byte, int, bool) {
	for {
		s.mu.Lock()
		if s.stopped {
			s.mu.Unlock()
			return nil, 0, false
		}
		if len(s.pending) >= playbackBatchChunks || (s.streamComplete && len(s.pending) > 0) {
			batch := s.pending
			generation := s.generation
			s.pending = nil
			s.streamComplete = false
			s.mu.Unlock()
			return batch, generation, true
		}
		s.mu.Unlock()

		<-s.updateSignal
	}
}

func (s *playbackScheduler) signalUpdate() {
	select {
	case s.updateSignal <- struct{}{}:
	default:
	}
}
